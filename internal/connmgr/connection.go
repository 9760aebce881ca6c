package connmgr

import "github.com/google/uuid"

// Connection is the per-transport state attached by connection_started.
// It does not own Transport (the RPC layer destroying the transport is
// what triggers connection_finished), but it does hold a reference on
// Client for as long as it is managed, released when the connection
// finishes.
type Connection struct {
	ID        string
	transport *Transport
	client    *Client
	isManaged bool
}

func newConnection(transport *Transport, client *Client, managed bool) *Connection {
	return &Connection{
		ID:        uuid.NewString(),
		transport: transport,
		client:    client,
		isManaged: managed,
	}
}
