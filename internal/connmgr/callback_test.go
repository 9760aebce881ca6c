package connmgr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCallbackCellDefaultsToFailClosed(t *testing.T) {
	var cell callbackCell
	cb := cell.get()
	result := cb.Drain(context.Background(), nil, tcpAddr("10.0.0.1", 0), "10.0.0.1", time.Now())
	assert.Equal(t, DrainFailed, result)
}

func TestCallbackCellSetThenClear(t *testing.T) {
	var cell callbackCell
	cell.set(Callback{Drain: alwaysSucceeds})

	cb := cell.get()
	result := cb.Drain(context.Background(), nil, tcpAddr("10.0.0.1", 0), "10.0.0.1", time.Now())
	assert.Equal(t, DrainSuccess, result)

	cleared := cell.clear()
	assert.NotNil(t, cleared.Drain)

	// After clear, get() falls back to the default again.
	result = cell.get().Drain(context.Background(), nil, tcpAddr("10.0.0.1", 0), "10.0.0.1", time.Now())
	assert.Equal(t, DrainFailed, result)
}
