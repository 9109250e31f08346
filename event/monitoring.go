// Package event defines the callbacks through which servers and clusters
// report their monitoring activity.
package event

import (
	"time"

	"github.com/google/uuid"
	"github.com/ikmak/mongo-topology/addr"
	"github.com/ikmak/mongo-topology/description"
)

// ServerDescriptionChangedEvent represents a server description change.
type ServerDescriptionChangedEvent struct {
	Address             addr.Addr
	TopologyID          uuid.UUID
	PreviousDescription description.Server
	NewDescription      description.Server
}

// ServerOpeningEvent is an event generated when the server is initialized.
type ServerOpeningEvent struct {
	Address    addr.Addr
	TopologyID uuid.UUID
}

// ServerClosedEvent is an event generated when the server is closed.
type ServerClosedEvent struct {
	Address    addr.Addr
	TopologyID uuid.UUID
}

// TopologyOpeningEvent is an event generated when the topology is initialized.
type TopologyOpeningEvent struct {
	TopologyID uuid.UUID
	Seeds      []addr.Addr
}

// TopologyClosedEvent is an event generated when the topology is closed.
type TopologyClosedEvent struct {
	TopologyID uuid.UUID
}

// TopologyHostsChangedEvent is generated when a probe reports a member list
// that differs from the previous one reported by the same server.
type TopologyHostsChangedEvent struct {
	TopologyID uuid.UUID
	Source     addr.Addr
	Added      []addr.Addr
	Removed    []addr.Addr
}

// ServerHeartbeatStartedEvent is an event generated when a health probe is
// started.
type ServerHeartbeatStartedEvent struct {
	Address      addr.Addr
	ConnectionID string
}

// ServerHeartbeatSucceededEvent is an event generated when a health probe
// succeeds.
type ServerHeartbeatSucceededEvent struct {
	Address      addr.Addr
	Duration     time.Duration
	Reply        description.Server
	ConnectionID string
}

// ServerHeartbeatFailedEvent is an event generated when a health probe fails.
type ServerHeartbeatFailedEvent struct {
	Address      addr.Addr
	Duration     time.Duration
	Failure      error
	ConnectionID string
}

// ServerMonitor represents a monitor that is triggered for different server
// events. Heartbeats are sent to individual servers to check their current
// status; the topology events report changes to the set of known servers.
// Callbacks run on the goroutine that produced the event and must not block.
type ServerMonitor struct {
	ServerDescriptionChanged func(*ServerDescriptionChangedEvent)
	ServerOpening            func(*ServerOpeningEvent)
	ServerClosed             func(*ServerClosedEvent)
	TopologyOpening          func(*TopologyOpeningEvent)
	TopologyClosed           func(*TopologyClosedEvent)
	TopologyHostsChanged     func(*TopologyHostsChangedEvent)
	ServerHeartbeatStarted   func(*ServerHeartbeatStartedEvent)
	ServerHeartbeatSucceeded func(*ServerHeartbeatSucceededEvent)
	ServerHeartbeatFailed    func(*ServerHeartbeatFailedEvent)
}

// Merge returns a monitor that calls every callback of both m and other.
// Either may be nil.
func (m *ServerMonitor) Merge(other *ServerMonitor) *ServerMonitor {
	if m == nil {
		return other
	}
	if other == nil {
		return m
	}

	return &ServerMonitor{
		ServerDescriptionChanged: chain(m.ServerDescriptionChanged, other.ServerDescriptionChanged),
		ServerOpening:            chain(m.ServerOpening, other.ServerOpening),
		ServerClosed:             chain(m.ServerClosed, other.ServerClosed),
		TopologyOpening:          chain(m.TopologyOpening, other.TopologyOpening),
		TopologyClosed:           chain(m.TopologyClosed, other.TopologyClosed),
		TopologyHostsChanged:     chain(m.TopologyHostsChanged, other.TopologyHostsChanged),
		ServerHeartbeatStarted:   chain(m.ServerHeartbeatStarted, other.ServerHeartbeatStarted),
		ServerHeartbeatSucceeded: chain(m.ServerHeartbeatSucceeded, other.ServerHeartbeatSucceeded),
		ServerHeartbeatFailed:    chain(m.ServerHeartbeatFailed, other.ServerHeartbeatFailed),
	}
}

func chain[E any](a, b func(*E)) func(*E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(e *E) {
		a(e)
		b(e)
	}
}
