package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/ikmak/mongo-topology/addr"
	"github.com/ikmak/mongo-topology/description"
	"github.com/ikmak/mongo-topology/event"
	"github.com/ikmak/mongo-topology/internal/clustertest"
	. "github.com/ikmak/mongo-topology/metrics"
	"github.com/ikmak/mongo-topology/server"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNew_registers_metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	New(reg)

	require.Panics(t, func() { New(reg) })
}

func TestCollector_ServerMonitor(t *testing.T) {
	t.Parallel()

	c := New(prometheus.NewRegistry())
	m := c.ServerMonitor()
	a := addr.MustParse("a")

	m.ServerOpening(&event.ServerOpeningEvent{Address: a})
	m.ServerHeartbeatStarted(&event.ServerHeartbeatStartedEvent{Address: a})
	m.ServerHeartbeatSucceeded(&event.ServerHeartbeatSucceededEvent{Address: a, Duration: time.Millisecond})
	m.ServerHeartbeatStarted(&event.ServerHeartbeatStartedEvent{Address: a})
	m.ServerHeartbeatFailed(&event.ServerHeartbeatFailedEvent{Address: a, Failure: errors.New("timeout")})
	m.ServerDescriptionChanged(&event.ServerDescriptionChangedEvent{
		Address:        a,
		NewDescription: description.Server{Addr: a, Kind: description.RSPrimary},
	})
	m.ServerDescriptionChanged(&event.ServerDescriptionChangedEvent{
		Address:        a,
		NewDescription: description.Server{Addr: a, Kind: description.RSSecondary},
	})
	m.TopologyHostsChanged(&event.TopologyHostsChangedEvent{Source: a})

	require.Equal(t, 1.0, testutil.ToFloat64(c.OpenServers))
	require.Equal(t, 2.0, testutil.ToFloat64(c.Heartbeats.WithLabelValues("a:27017")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.HeartbeatFailures.WithLabelValues("a:27017")))
	require.Equal(t, 2, testutil.CollectAndCount(c.HeartbeatDuration))
	require.Equal(t, 2.0, testutil.ToFloat64(c.DescriptionChanges.WithLabelValues("a:27017")))
	require.Equal(t, 1, testutil.CollectAndCount(c.ServerKind))
	require.Equal(t, 1.0, testutil.ToFloat64(c.ServerKind.WithLabelValues("a:27017", "RSSecondary")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.HostsChanges.WithLabelValues("a:27017")))

	m.ServerClosed(&event.ServerClosedEvent{Address: a})
	require.Equal(t, 0.0, testutil.ToFloat64(c.OpenServers))
	require.Equal(t, 0, testutil.CollectAndCount(c.ServerKind))
}

func TestCollector_with_server(t *testing.T) {
	t.Parallel()

	d := clustertest.NewDeployment().Set("a", clustertest.Node{Info: clustertest.Standalone()})
	c := New(prometheus.NewRegistry())

	s := server.New(addr.MustParse("a"),
		server.WithConnectionDialer(d.Dialer()),
		server.WithHealthProbe(server.HealthProbeFunc(d.HealthProbe)),
		server.WithServerMonitor(c.ServerMonitor()),
	)
	require.NoError(t, s.Connect(context.Background()))

	require.GreaterOrEqual(t, testutil.ToFloat64(c.Heartbeats.WithLabelValues("a:27017")), 1.0)
	require.Equal(t, 1.0, testutil.ToFloat64(c.ServerKind.WithLabelValues("a:27017", "Standalone")))

	require.NoError(t, s.Close())
	require.Equal(t, 0.0, testutil.ToFloat64(c.OpenServers))
}
