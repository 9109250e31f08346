package server

import (
	"fmt"

	"github.com/ikmak/mongo-topology/addr"
	"github.com/pkg/errors"
)

// ErrServerClosed occurs when an operation is attempted on a closed server.
var ErrServerClosed = errors.New("server is closed")

// ErrNoHealthProbe occurs when a server is refreshed without a health probe.
var ErrNoHealthProbe = errors.New("no health probe configured")

// ProbeError is returned when checking the health of a server fails.
type ProbeError struct {
	Addr    addr.Addr
	Wrapped error
}

// Error implements the error interface.
func (e *ProbeError) Error() string {
	return fmt.Sprintf("health probe of %s failed: %v", e.Addr, e.Wrapped)
}

// Unwrap returns the underlying error.
func (e *ProbeError) Unwrap() error { return e.Wrapped }

// DispatchError is returned when sending requests to a server or reading its
// reply fails.
type DispatchError struct {
	Addr    addr.Addr
	Wrapped error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch to %s failed: %v", e.Addr, e.Wrapped)
}

// Unwrap returns the underlying error.
func (e *DispatchError) Unwrap() error { return e.Wrapped }
