package cluster

import (
	"fmt"

	"github.com/ikmak/mongo-topology/description"
	"github.com/pkg/errors"
)

// ErrClusterClosed occurs when an operation is attempted on a closed cluster.
var ErrClusterClosed = errors.New("cluster is closed")

// NoServersAvailableError is returned when no member of the cluster satisfies
// a selector.
type NoServersAvailableError struct {
	Desc    description.Topology
	Wrapped error
}

// Error implements the error interface.
func (e *NoServersAvailableError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("no servers available: %v, current topology: %s", e.Wrapped, e.Desc)
	}
	return fmt.Sprintf("no servers available, current topology: %s", e.Desc)
}

// Unwrap returns the underlying error.
func (e *NoServersAvailableError) Unwrap() error { return e.Wrapped }
