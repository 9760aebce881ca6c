package connmgr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientWaitForChangeWakesOnStateChange(t *testing.T) {
	c := newClient("test", false)

	woke := make(chan struct{})
	go func() {
		c.mu.Lock()
		_ = c.waitForChange(context.Background())
		c.mu.Unlock()
		close(woke)
	}()

	time.Sleep(10 * time.Millisecond)
	c.mu.Lock()
	c.changeState(Activating, nil)
	c.mu.Unlock()

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by changeState")
	}
}

func TestClientWaitForChangeRespectsContextDeadline(t *testing.T) {
	c := newClient("test", false)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c.mu.Lock()
	err := c.waitForChange(ctx)
	c.mu.Unlock()

	require.Error(t, err)
}

func TestClientReleaseReportsUnreferenced(t *testing.T) {
	c := newClient("test", false)
	c.hold()
	c.hold()

	assert.False(t, c.release())
	assert.True(t, c.release())
}

func TestClientConnectionCountMatchesSet(t *testing.T) {
	c := newClient("test", false)
	conn := &Connection{ID: "x"}

	c.mu.Lock()
	c.addConnection(conn)
	c.mu.Unlock()
	assert.Equal(t, 1, c.ConnectionCount())

	c.mu.Lock()
	c.removeConnection(conn)
	c.mu.Unlock()
	assert.Equal(t, 0, c.ConnectionCount())
}
