package server

import (
	"time"

	"github.com/google/uuid"
	"github.com/ikmak/mongo-topology/conn"
	"github.com/ikmak/mongo-topology/description"
	"github.com/ikmak/mongo-topology/event"
	"github.com/ikmak/mongo-topology/internal/logger"
	"github.com/pkg/errors"
)

const (
	// DefaultHeartbeatInterval is the time between two scheduled probes.
	DefaultHeartbeatInterval = 5 * time.Second
	// DefaultHeartbeatTimeout bounds a single probe.
	DefaultHeartbeatTimeout = 10 * time.Second
	// DefaultShutdownGracePeriod is how long Close waits for the monitor.
	DefaultShutdownGracePeriod = time.Second
)

func newConfig(opts ...Option) *config {
	cfg := &config{
		heartbeatInterval: DefaultHeartbeatInterval,
		heartbeatTimeout:  DefaultHeartbeatTimeout,
		shutdownGrace:     DefaultShutdownGracePeriod,
		maxConns:          conn.DefaultMaxSize,
	}

	cfg.apply(opts...)

	if cfg.logger == nil && logger.EnvHasComponentVariables() {
		cfg.logger = logger.New(nil, nil)
	}

	return cfg
}

// Option configures a server.
type Option func(*config)

type config struct {
	probe             HealthProbe
	dialer            conn.Dialer
	sourceFactory     conn.SourceFactory
	maxConns          uint64
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	shutdownGrace     time.Duration
	serverMonitor     *event.ServerMonitor
	updateCallback    func(description.Server)
	topologyChanges   chan<- TopologyChange
	topologyID        uuid.UUID
	logger            *logger.Logger
}

func (c *config) apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

func (c *config) connectionSource() conn.SourceFactory {
	if c.sourceFactory != nil {
		return c.sourceFactory
	}
	return conn.PoolFactory(c.maxConns, c.dialer)
}

// ValidateOptions reports whether opts configure a health probe and a way to
// open connections.
func ValidateOptions(opts ...Option) error {
	cfg := newConfig(opts...)
	if cfg.probe == nil {
		return ErrNoHealthProbe
	}
	if cfg.sourceFactory == nil && cfg.dialer == nil {
		return errors.New("no connection dialer or source configured")
	}
	return nil
}

// WithHealthProbe configures the probe used to check the server.
func WithHealthProbe(probe HealthProbe) Option {
	return func(c *config) {
		c.probe = probe
	}
}

// WithConnectionDialer configures the dialer to use
// to create a new connection.
func WithConnectionDialer(dialer conn.Dialer) Option {
	return func(c *config) {
		c.dialer = dialer
	}
}

// WithConnectionSource configures how the server's connection source is
// created. It takes precedence over WithConnectionDialer.
func WithConnectionSource(factory conn.SourceFactory) Option {
	return func(c *config) {
		c.sourceFactory = factory
	}
}

// WithMaxConnections configures maximum number of connections to
// allow for a given server. Zero selects the default.
func WithMaxConnections(max uint64) Option {
	return func(c *config) {
		c.maxConns = max
	}
}

// WithHeartbeatInterval configures a server's heartbeat interval.
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(c *config) {
		if interval > 0 {
			c.heartbeatInterval = interval
		}
	}
}

// WithHeartbeatTimeout configures how long a single probe may take.
func WithHeartbeatTimeout(timeout time.Duration) Option {
	return func(c *config) {
		if timeout > 0 {
			c.heartbeatTimeout = timeout
		}
	}
}

// WithShutdownGracePeriod configures how long Close waits for the monitor to
// stop before force closing the connection source.
func WithShutdownGracePeriod(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.shutdownGrace = d
		}
	}
}

// WithServerMonitor configures the event callbacks.
func WithServerMonitor(m *event.ServerMonitor) Option {
	return func(c *config) {
		c.serverMonitor = c.serverMonitor.Merge(m)
	}
}

// WithUpdateCallback registers a function called after every probe with the
// description it produced.
func WithUpdateCallback(fn func(description.Server)) Option {
	return func(c *config) {
		c.updateCallback = fn
	}
}

// WithTopologyChanges configures the channel that receives member list
// changes reported by the server.
func WithTopologyChanges(ch chan<- TopologyChange) Option {
	return func(c *config) {
		c.topologyChanges = ch
	}
}

// WithTopologyID sets the id of the topology this server belongs to. It is
// only used in events and logs.
func WithTopologyID(id uuid.UUID) Option {
	return func(c *config) {
		c.topologyID = id
	}
}

// WithLogger configures the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}
