package cluster

import (
	"time"

	"github.com/ikmak/mongo-topology/connstring"
	"github.com/ikmak/mongo-topology/event"
	"github.com/ikmak/mongo-topology/internal/logger"
	"github.com/ikmak/mongo-topology/readpref"
	"github.com/ikmak/mongo-topology/server"
	"github.com/ikmak/mongo-topology/serverselector"
)

// DefaultServerSelectionTimeout is how long SelectServer waits for a suitable
// server.
const DefaultServerSelectionTimeout = 30 * time.Second

func newConfig(opts ...Option) *config {
	cfg := &config{
		readPref:               readpref.Primary(),
		localThreshold:         serverselector.DefaultLatencyWindow,
		serverSelectionTimeout: DefaultServerSelectionTimeout,
	}

	cfg.apply(opts...)

	if cfg.logger == nil && logger.EnvHasComponentVariables() {
		cfg.logger = logger.New(nil, nil)
	}

	return cfg
}

// Option configures a cluster.
type Option func(*config)

type config struct {
	mode                   MonitorMode
	replicaSetName         string
	seedList               []string
	serverOpts             []server.Option
	readPref               *readpref.ReadPref
	localThreshold         time.Duration
	serverSelectionTimeout time.Duration
	serverMonitor          *event.ServerMonitor
	logger                 *logger.Logger
	err                    error
}

func (c *config) apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// MonitorMode indicates whether the cluster discovers members reported by
// its servers.
type MonitorMode uint8

// MonitorMode constants.
const (
	AutomaticMode MonitorMode = iota
	SingleMode
)

// WithConnString configures the cluster using the connection string. Its
// hosts are added to the seeds given to New.
func WithConnString(cs connstring.ConnString) Option {
	return func(c *config) {
		if cs.Connect == connstring.SingleConnect {
			c.mode = SingleMode
		}

		c.seedList = append(c.seedList, cs.Hosts...)

		if cs.ReplicaSet != "" {
			c.replicaSetName = cs.ReplicaSet
		}

		if cs.HeartbeatInterval > 0 {
			c.serverOpts = append(c.serverOpts, server.WithHeartbeatInterval(cs.HeartbeatInterval))
		}

		if cs.ConnectTimeout > 0 {
			c.serverOpts = append(c.serverOpts, server.WithHeartbeatTimeout(cs.ConnectTimeout))
		}

		if cs.MaxPoolSizeSet {
			c.serverOpts = append(c.serverOpts, server.WithMaxConnections(cs.MaxPoolSize))
		}

		if cs.LocalThresholdSet {
			c.localThreshold = cs.LocalThreshold
		}

		if cs.ServerSelectionTimeout > 0 {
			c.serverSelectionTimeout = cs.ServerSelectionTimeout
		}

		rp, err := cs.ReadPref()
		if err != nil && c.err == nil {
			c.err = err
		}
		if rp != nil {
			c.readPref = rp
		}
	}
}

// WithMode configures the cluster's monitor mode.
func WithMode(mode MonitorMode) Option {
	return func(c *config) {
		c.mode = mode
	}
}

// WithReplicaSetName restricts the cluster to members of the named replica
// set.
func WithReplicaSetName(name string) Option {
	return func(c *config) {
		c.replicaSetName = name
	}
}

// WithHeartbeatInterval configures the heartbeat interval of every server.
func WithHeartbeatInterval(interval time.Duration) Option {
	return WithMoreServerOptions(server.WithHeartbeatInterval(interval))
}

// WithReadPreference configures the read preference of DefaultSelector.
func WithReadPreference(rp *readpref.ReadPref) Option {
	return func(c *config) {
		if rp != nil {
			c.readPref = rp
		}
	}
}

// WithLocalThreshold configures the latency window of DefaultSelector.
func WithLocalThreshold(window time.Duration) Option {
	return func(c *config) {
		c.localThreshold = window
	}
}

// WithServerSelectionTimeout configures a cluster's server selection timeout.
func WithServerSelectionTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.serverSelectionTimeout = timeout
	}
}

// WithServerOptions configures a cluster's server options for
// when a new server needs to get created. The options provided
// overwrite all previously configured options.
func WithServerOptions(opts ...server.Option) Option {
	return func(c *config) {
		c.serverOpts = opts
	}
}

// WithMoreServerOptions configures a cluster's server options for
// when a new server needs to get created. The options provided are
// appended to any current options and may override previously
// configured options.
func WithMoreServerOptions(opts ...server.Option) Option {
	return func(c *config) {
		c.serverOpts = append(c.serverOpts, opts...)
	}
}

// WithServerMonitor configures the event callbacks of the cluster and of
// every server in it.
func WithServerMonitor(m *event.ServerMonitor) Option {
	return func(c *config) {
		c.serverMonitor = c.serverMonitor.Merge(m)
	}
}

// WithLogSink configures logging to sink for the cluster and its servers.
func WithLogSink(sink server.LogSink, levels map[server.LogComponent]server.LogLevel) Option {
	return func(c *config) {
		c.logger = logger.New(sink, levels)
	}
}
