package server

import (
	"context"

	"github.com/ikmak/mongo-topology/addr"
	"github.com/ikmak/mongo-topology/conn"
	"github.com/ikmak/mongo-topology/description"
)

// HealthProbe asks a server for its current status over a connection.
// Probes run while the server's exclusivity guard is held, so they must only
// use the connection they are given.
type HealthProbe interface {
	Probe(ctx context.Context, address addr.Addr, c conn.Connection) (*description.ServerInfo, error)
}

// HealthProbeFunc adapts a function to the HealthProbe interface.
type HealthProbeFunc func(context.Context, addr.Addr, conn.Connection) (*description.ServerInfo, error)

// Probe implements the HealthProbe interface.
func (f HealthProbeFunc) Probe(ctx context.Context, address addr.Addr, c conn.Connection) (*description.ServerInfo, error) {
	return f(ctx, address, c)
}
