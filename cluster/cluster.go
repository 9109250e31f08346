// Package cluster keeps track of the members of a deployment and selects the
// ones suitable for an operation.
package cluster

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/ikmak/mongo-topology/addr"
	"github.com/ikmak/mongo-topology/description"
	"github.com/ikmak/mongo-topology/event"
	"github.com/ikmak/mongo-topology/internal/logger"
	"github.com/ikmak/mongo-topology/server"
	"github.com/ikmak/mongo-topology/serverselector"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSeed       = "localhost:27017"
	changesBufferSize = 16
)

// Cluster owns the servers of a deployment. Servers are created for the
// configured seeds and for every host a reachable member reports, and are
// dropped once nobody reports them anymore.
type Cluster struct {
	cfg   *config
	id    uuid.UUID
	seeds []addr.Addr

	// addresses and servers correspond by position.
	lock      sync.RWMutex
	addresses []addr.Addr
	servers   []*server.Server
	closed    bool

	changes chan server.TopologyChange
	done    chan struct{}

	randLock sync.Mutex
	rand     *rand.Rand

	closeOnce sync.Once
	closeErr  error
}

// New creates a new cluster from seeds. A malformed seed fails with an
// *addr.FormatError. The server options must configure a health probe and a
// way to open connections. No server is contacted until the cluster is used.
func New(seeds []string, opts ...Option) (*Cluster, error) {
	cfg := newConfig(opts...)
	if cfg.err != nil {
		return nil, cfg.err
	}

	raw := append(append([]string(nil), seeds...), cfg.seedList...)
	if len(raw) == 0 {
		raw = []string{defaultSeed}
	}

	parsed, err := addr.ParseAll(raw...)
	if err != nil {
		return nil, err
	}

	var unique []addr.Addr
	for _, a := range parsed {
		if !slices.Contains(unique, a) {
			unique = append(unique, a)
		}
	}

	if cfg.mode == SingleMode && len(unique) != 1 {
		return nil, errors.Errorf("single mode needs exactly one seed, got %d", len(unique))
	}

	if err := server.ValidateOptions(cfg.serverOpts...); err != nil {
		return nil, errors.Wrap(err, "invalid server options")
	}

	c := &Cluster{
		cfg:     cfg,
		id:      uuid.New(),
		seeds:   unique,
		changes: make(chan server.TopologyChange, changesBufferSize),
		done:    make(chan struct{}),
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	cfg.logger.Print(logger.LevelDebug, logger.ComponentTopology, logger.TopologyOpening, c.logKV()...)
	if m := cfg.serverMonitor; m != nil && m.TopologyOpening != nil {
		m.TopologyOpening(&event.TopologyOpeningEvent{TopologyID: c.id, Seeds: unique})
	}

	for _, a := range unique {
		c.Add(a)
	}

	go c.coordinate()

	return c, nil
}

// ID returns the id of the cluster used in events and logs.
func (c *Cluster) ID() uuid.UUID {
	return c.id
}

// Equal reports whether both clusters were configured with the same seeds.
// Live membership is not compared.
func (c *Cluster) Equal(other *Cluster) bool {
	if c == nil || other == nil {
		return c == other
	}
	return slices.Equal(c.seeds, other.seeds)
}

// Add creates a server for address unless the cluster already has one. It
// returns the new server, or nil when address was already a member or the
// cluster is closed.
func (c *Cluster) Add(address addr.Addr) *server.Server {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.closed || slices.Contains(c.addresses, address) {
		return nil
	}

	s := server.New(address, c.serverOptions()...)
	c.addresses = append(c.addresses, address)
	c.servers = append(c.servers, s)

	c.cfg.logger.Print(logger.LevelDebug, logger.ComponentTopology, logger.TopologyServerAdded,
		c.logKV(logger.KeyServerHost, address.Host, logger.KeyServerPort, int(address.Port))...)

	return s
}

// Remove drops the server for address and closes it. It reports whether the
// address was a member.
func (c *Cluster) Remove(address addr.Addr) bool {
	c.lock.Lock()
	idx := slices.Index(c.addresses, address)
	if idx == -1 {
		c.lock.Unlock()
		return false
	}
	s := c.servers[idx]
	c.addresses = append(c.addresses[:idx:idx], c.addresses[idx+1:]...)
	c.servers = append(c.servers[:idx:idx], c.servers[idx+1:]...)
	c.lock.Unlock()

	if err := s.Close(); err != nil {
		c.cfg.logger.Error(logger.ComponentTopology, err, logger.TopologyServerRemoved, c.logKV()...)
	}
	c.cfg.logger.Print(logger.LevelDebug, logger.ComponentTopology, logger.TopologyServerRemoved,
		c.logKV(logger.KeyServerHost, address.Host, logger.KeyServerPort, int(address.Port))...)

	return true
}

// Addresses returns the addresses of every member, in the order they joined.
func (c *Cluster) Addresses() []addr.Addr {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return append([]addr.Addr(nil), c.addresses...)
}

// Members returns the current description of every member.
func (c *Cluster) Members() []description.Server {
	servers := c.snapshot()
	descs := make([]description.Server, 0, len(servers))
	for _, s := range servers {
		descs = append(descs, s.Description())
	}
	return descs
}

// Desc returns a description of the deployment built from the current
// description of every member. A cluster in SingleMode always describes a
// Single topology.
func (c *Cluster) Desc() description.Topology {
	topo := description.NewTopology(c.Members())
	if c.cfg.mode == SingleMode {
		topo.Kind = description.Single
	}
	return topo
}

// Servers returns the members that are currently operable. Using a server
// for the first time starts its monitor, so a member that was never used
// shows up once its first probe succeeds.
func (c *Cluster) Servers() []*server.Server {
	servers, _ := c.operable()
	return servers
}

// operable returns the operable members together with the description each
// was judged operable on.
func (c *Cluster) operable() ([]*server.Server, []description.Server) {
	members := c.snapshot()
	servers := members[:0]
	descs := make([]description.Server, 0, len(members))
	for _, s := range members {
		desc, ok := s.OperableDescription()
		if !ok {
			continue
		}
		if rs := c.cfg.replicaSetName; rs != "" && desc.SetName != rs {
			continue
		}
		servers = append(servers, s)
		descs = append(descs, desc)
	}
	return servers, descs
}

// DefaultSelector returns the selector built from the configured read
// preference and local threshold.
func (c *Cluster) DefaultSelector() description.ServerSelector {
	return serverselector.ForReadPref(c.cfg.readPref, c.cfg.localThreshold)
}

// Select returns the operable servers that satisfy selector. It fails with a
// *NoServersAvailableError when there are none.
func (c *Cluster) Select(selector description.ServerSelector) ([]*server.Server, error) {
	if c.isClosed() {
		return nil, ErrClusterClosed
	}
	if selector == nil {
		selector = c.DefaultSelector()
	}

	operable, candidates := c.operable()
	byAddr := make(map[addr.Addr]*server.Server, len(operable))
	for _, s := range operable {
		byAddr[s.Addr()] = s
	}

	topo := c.Desc()
	suitable, err := selector.SelectServer(topo, candidates)
	if err != nil {
		return nil, errors.Wrap(err, "server selection failed")
	}

	selected := make([]*server.Server, 0, len(suitable))
	for _, d := range suitable {
		if s, ok := byAddr[d.Addr]; ok {
			selected = append(selected, s)
		}
	}
	if len(selected) == 0 {
		return nil, &NoServersAvailableError{Desc: topo}
	}

	return selected, nil
}

// SelectServer picks one of the servers satisfying selector at random. While
// none is available it requests immediate checks and retries with an
// exponential backoff until the server selection timeout elapses or ctx is
// done. A nil selector selects with DefaultSelector.
func (c *Cluster) SelectServer(ctx context.Context, selector description.ServerSelector) (*server.Server, error) {
	if selector == nil {
		selector = c.DefaultSelector()
	}

	start := time.Now()
	kv := func(extra ...interface{}) []interface{} {
		return c.logKV(append([]interface{}{logger.KeySelector, fmt.Sprint(selector)}, extra...)...)
	}
	c.cfg.logger.Print(logger.LevelDebug, logger.ComponentServerSelection, logger.ServerSelectionStarted, kv()...)

	waiting := false
	operation := func() (*server.Server, error) {
		servers, err := c.Select(selector)
		if err == nil {
			return c.pick(servers), nil
		}

		var noServers *NoServersAvailableError
		if !errors.As(err, &noServers) {
			return nil, backoff.Permanent(err)
		}

		c.RequestImmediateCheck()
		if !waiting {
			waiting = true
			remaining := c.cfg.serverSelectionTimeout - time.Since(start)
			c.cfg.logger.Print(logger.LevelInfo, logger.ComponentServerSelection, logger.ServerSelectionWaiting,
				kv(logger.KeyRemainingTimeMS, remaining.Milliseconds())...)
		}
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = time.Second

	retryOpts := []backoff.RetryOption{backoff.WithBackOff(b)}
	if c.cfg.serverSelectionTimeout > 0 {
		retryOpts = append(retryOpts, backoff.WithMaxElapsedTime(c.cfg.serverSelectionTimeout))
	} else {
		retryOpts = append(retryOpts, backoff.WithMaxTries(1))
	}

	s, err := backoff.Retry(ctx, operation, retryOpts...)
	if err != nil {
		c.cfg.logger.Error(logger.ComponentServerSelection, err, logger.ServerSelectionFailed,
			kv(logger.KeyDurationMS, time.Since(start).Milliseconds())...)
		return nil, err
	}

	c.cfg.logger.Print(logger.LevelDebug, logger.ComponentServerSelection, logger.ServerSelectionSucceeded,
		kv(logger.KeyServerHost, s.Addr().Host, logger.KeyServerPort, int(s.Addr().Port))...)
	return s, nil
}

// Connect initializes every member and probes them all concurrently. Failed
// probes only show in the member descriptions.
func (c *Cluster) Connect(ctx context.Context) error {
	if c.isClosed() {
		return ErrClusterClosed
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range c.snapshot() {
		g.Go(func() error {
			if err := s.Connect(ctx); err != nil && !errors.Is(err, server.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// RequestImmediateCheck asks every member to probe its server right away.
func (c *Cluster) RequestImmediateCheck() {
	for _, s := range c.snapshot() {
		s.RequestImmediateCheck()
	}
}

// Close stops discovery and closes every member.
func (c *Cluster) Close() error {
	c.closeOnce.Do(func() {
		c.lock.Lock()
		c.closed = true
		servers := append([]*server.Server(nil), c.servers...)
		c.lock.Unlock()

		close(c.done)

		var g errgroup.Group
		for _, s := range servers {
			g.Go(s.Close)
		}
		c.closeErr = g.Wait()

		c.cfg.logger.Print(logger.LevelDebug, logger.ComponentTopology, logger.TopologyClosed, c.logKV()...)
		if m := c.cfg.serverMonitor; m != nil && m.TopologyClosed != nil {
			m.TopologyClosed(&event.TopologyClosedEvent{TopologyID: c.id})
		}
	})
	return c.closeErr
}

func (c *Cluster) isClosed() bool {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.closed
}

func (c *Cluster) snapshot() []*server.Server {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return append([]*server.Server(nil), c.servers...)
}

func (c *Cluster) server(address addr.Addr) *server.Server {
	c.lock.RLock()
	defer c.lock.RUnlock()
	if idx := slices.Index(c.addresses, address); idx != -1 {
		return c.servers[idx]
	}
	return nil
}

func (c *Cluster) pick(servers []*server.Server) *server.Server {
	c.randLock.Lock()
	defer c.randLock.Unlock()
	return servers[c.rand.Intn(len(servers))]
}

func (c *Cluster) serverOptions() []server.Option {
	opts := append([]server.Option(nil), c.cfg.serverOpts...)
	opts = append(opts, server.WithTopologyID(c.id))
	if c.cfg.mode != SingleMode {
		opts = append(opts, server.WithTopologyChanges(c.changes))
	}
	if c.cfg.serverMonitor != nil {
		opts = append(opts, server.WithServerMonitor(c.cfg.serverMonitor))
	}
	if c.cfg.logger != nil {
		opts = append(opts, server.WithLogger(c.cfg.logger))
	}
	return opts
}

func (c *Cluster) logKV(kv ...interface{}) []interface{} {
	return append([]interface{}{logger.KeyTopologyID, c.id.String()}, kv...)
}
