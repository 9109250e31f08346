// Package conn defines the connections a server dispatches requests over and
// the sources that hand them out.
package conn

import (
	"context"
	"fmt"

	"github.com/ikmak/mongo-topology/addr"
	"github.com/ikmak/mongo-topology/msg"
)

// Connection is responsible for reading and writing messages.
type Connection interface {
	// Write writes a number of messages to the connection.
	Write(context.Context, ...msg.Request) error
	// Read reads the next reply from the connection.
	Read(context.Context) (*msg.Reply, error)
	// Close closes the connection, or returns it to the Source it came from.
	Close() error
	// ID identifies the connection in logs and errors.
	ID() string
}

// Dialer opens a new connection to the server at the given address.
type Dialer func(context.Context, addr.Addr) (Connection, error)

// Source hands out connections to a single server.
type Source interface {
	// Acquire gets a connection. Closing the connection releases it.
	Acquire(context.Context) (Connection, error)
	// Clear drops every idle connection and marks the ones in use as stale.
	Clear()
	// Close closes the source and every connection it owns.
	Close() error
}

// SourceFactory creates the Source for a server.
type SourceFactory func(addr.Addr) (Source, error)

// ConnectionError represents a failure to establish or use a connection.
type ConnectionError struct {
	Addr         addr.Addr
	ConnectionID string
	Wrapped      error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.ConnectionID != "" {
		return fmt.Sprintf("connection(%s) to %s failed: %v", e.ConnectionID, e.Addr, e.Wrapped)
	}
	return fmt.Sprintf("connection to %s failed: %v", e.Addr, e.Wrapped)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Wrapped
}

// Cause returns the underlying error for github.com/pkg/errors.Cause.
func (e *ConnectionError) Cause() error {
	return e.Wrapped
}
