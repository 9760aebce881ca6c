package commands

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregate/coregate/internal/connmgr"
)

func TestStubDrainPeersReportsSuccessWithNoConnections(t *testing.T) {
	result := stubDrainPeers(context.Background(), nil, nil, "10.0.0.1:4045", time.Now())
	assert.Equal(t, connmgr.DrainSuccessNoConnections, result)
}

func TestHandleConnectionAdmitsAndClosesWhenManagerDisabled(t *testing.T) {
	manager := connmgr.NewManager(connmgr.Options{Enabled: false})

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		handleConnection(context.Background(), serverConn, manager)
	}()

	// A disabled manager admits immediately; closing the client side
	// should unblock handleConnection's read loop via EOF.
	require.NoError(t, clientConn.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handleConnection did not return after peer closed the connection")
	}
}

func TestAcceptLoopStopsWhenListenerCloses(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	manager := connmgr.NewManager(connmgr.Options{Enabled: false})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		acceptLoop(ctx, ln, manager)
	}()

	cancel()
	require.NoError(t, ln.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("acceptLoop did not return after its listener closed")
	}
}
