// Package server tracks the health of a single member of a deployment and
// dispatches requests to it.
package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ikmak/mongo-topology/addr"
	"github.com/ikmak/mongo-topology/conn"
	"github.com/ikmak/mongo-topology/description"
	"github.com/ikmak/mongo-topology/event"
	"github.com/ikmak/mongo-topology/internal/logger"
	"github.com/ikmak/mongo-topology/msg"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// TopologyChange reports that the member list announced by Source changed
// between two successful probes.
type TopologyChange struct {
	Source  addr.Addr
	Added   []addr.Addr
	Removed []addr.Addr
}

// Server is a single member of a deployment. Nothing is opened until the
// server is first used; from then on a background monitor keeps its
// description current until Close is called.
type Server struct {
	cfg     *config
	address addr.Addr

	initOnce    sync.Once
	initErr     error
	source      conn.Source
	monitorDone chan struct{}

	// exclusive admits one request/reply exchange at a time, whether it is
	// a dispatch or a probe.
	exclusive *semaphore.Weighted
	refresh   singleflight.Group

	descLock sync.RWMutex
	desc     description.Server

	rtt *rttTracker

	hostsLock sync.Mutex
	hosts     []addr.Addr

	closed    int32
	done      chan struct{}
	checkNow  chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New creates a new server. No connection is made and no monitor is started
// until the server is first used.
func New(address addr.Addr, opts ...Option) *Server {
	cfg := newConfig(opts...)

	desc := description.NewDefaultServer(address)
	desc.HeartbeatInterval = cfg.heartbeatInterval

	return &Server{
		cfg:       cfg,
		address:   address,
		exclusive: semaphore.NewWeighted(1),
		desc:      desc,
		rtt:       newRTTTracker(cfg.heartbeatInterval),
		done:      make(chan struct{}),
		checkNow:  make(chan struct{}, 1),
	}
}

// Addr returns the address of the server.
func (s *Server) Addr() addr.Addr {
	return s.address
}

// Equal reports whether both servers have the same address.
func (s *Server) Equal(other *Server) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.address == other.address
}

// String implements the fmt.Stringer interface.
func (s *Server) String() string {
	return s.Description().String()
}

// Description returns the most recent description of the server.
func (s *Server) Description() description.Server {
	s.descLock.RLock()
	defer s.descLock.RUnlock()
	return s.desc
}

// Operable reports whether requests may be routed to the server. The first
// call starts the monitor; until its first probe completes the server is not
// operable.
func (s *Server) Operable() bool {
	_, ok := s.OperableDescription()
	return ok
}

// OperableDescription is Operable that also returns the description the
// answer was based on.
func (s *Server) OperableDescription() (description.Server, bool) {
	if s.isClosed() {
		return s.Description(), false
	}
	if err := s.initialize(); err != nil {
		return s.Description(), false
	}
	desc := s.Description()
	return desc, desc.IsReadable()
}

// Connect initializes the server and checks it right away instead of waiting
// for the monitor. A failed check is reflected in the description rather than
// returned.
func (s *Server) Connect(ctx context.Context) error {
	if err := s.initialize(); err != nil {
		return err
	}
	_, err := s.Refresh(ctx)
	if errors.Is(err, ErrServerClosed) || ctx.Err() != nil {
		return err
	}
	return nil
}

// RequestImmediateCheck will cause the monitor to probe the server right
// away, instead of waiting for the heartbeat interval.
func (s *Server) RequestImmediateCheck() {
	select {
	case s.checkNow <- struct{}{}:
	default:
	}
}

// Dispatch writes reqs to the server and, when the last one expects an
// answer, reads the reply. No other dispatch or probe to this server runs
// while the exchange is in progress.
func (s *Server) Dispatch(ctx context.Context, reqs ...msg.Request) (*msg.Reply, error) {
	if len(reqs) == 0 {
		return nil, errors.New("no requests to dispatch")
	}
	if s.isClosed() {
		return nil, ErrServerClosed
	}
	if err := s.initialize(); err != nil {
		return nil, err
	}

	if err := s.exclusive.Acquire(ctx, 1); err != nil {
		return nil, &DispatchError{Addr: s.address, Wrapped: err}
	}
	defer s.exclusive.Release(1)

	reply, err := s.exchange(ctx, reqs)
	if err != nil {
		s.cfg.logger.Error(logger.ComponentConnection, err, logger.ConnectionDispatchFailed, s.logKV()...)
		var connErr *conn.ConnectionError
		if errors.As(err, &connErr) {
			s.RequestImmediateCheck()
		}
		return nil, &DispatchError{Addr: s.address, Wrapped: err}
	}

	return reply, nil
}

func (s *Server) exchange(ctx context.Context, reqs []msg.Request) (*msg.Reply, error) {
	c, err := s.source.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if err := c.Write(ctx, reqs...); err != nil {
		return nil, err
	}

	last, replyable := msg.LastReplyable(reqs)
	if !replyable {
		return nil, nil
	}

	reply, err := c.Read(ctx)
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, errors.Errorf("no reply to request %d", last.RequestID())
	}
	if reply.ResponseTo != 0 && reply.ResponseTo != last.RequestID() {
		return nil, errors.Errorf("reply answers request %d, expected %d", reply.ResponseTo, last.RequestID())
	}

	return reply, nil
}

// Refresh probes the server and installs the resulting description.
// Concurrent calls share a single probe. The probe is bounded by the
// heartbeat timeout only: when ctx ends first Refresh returns ctx's error and
// the probe completes in the background.
func (s *Server) Refresh(ctx context.Context) (description.Server, error) {
	ch := s.refresh.DoChan("refresh", func() (interface{}, error) {
		return s.check(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		desc, _ := res.Val.(description.Server)
		return desc, res.Err
	case <-ctx.Done():
		return s.Description(), ctx.Err()
	}
}

// Close stops the monitor and closes the connection source. Results of
// probes still in flight are discarded. Close waits at most the shutdown
// grace period for the monitor before force closing connections.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		// under descLock so that no description is installed after Close
		s.descLock.Lock()
		atomic.StoreInt32(&s.closed, 1)
		s.descLock.Unlock()

		s.initOnce.Do(func() { s.initErr = ErrServerClosed })
		close(s.done)

		if s.monitorDone != nil {
			timer := time.NewTimer(s.cfg.shutdownGrace)
			select {
			case <-s.monitorDone:
			case <-timer.C:
				s.cfg.logger.Print(logger.LevelDebug, logger.ComponentConnection, logger.ConnectionForceClosed, s.logKV()...)
			}
			timer.Stop()
		}

		if s.source != nil {
			s.closeErr = s.source.Close()
			s.cfg.logger.Print(logger.LevelDebug, logger.ComponentConnection, logger.ConnectionPoolClosed, s.logKV()...)
		}

		s.cfg.logger.Print(logger.LevelInfo, logger.ComponentTopology, logger.TopologyServerClosed, s.logKV()...)
		if m := s.cfg.serverMonitor; m != nil && m.ServerClosed != nil {
			m.ServerClosed(&event.ServerClosedEvent{Address: s.address, TopologyID: s.cfg.topologyID})
		}
	})
	return s.closeErr
}

func (s *Server) isClosed() bool {
	return atomic.LoadInt32(&s.closed) == 1
}

// initialize creates the connection source and starts the monitor exactly
// once.
func (s *Server) initialize() error {
	s.initOnce.Do(func() {
		source, err := s.cfg.connectionSource()(s.address)
		if err != nil {
			s.initErr = &conn.ConnectionError{Addr: s.address, Wrapped: err}
			return
		}
		s.source = source

		s.cfg.logger.Print(logger.LevelDebug, logger.ComponentConnection, logger.ConnectionPoolCreated,
			s.logKV(logger.KeyMaxPoolSize, s.cfg.maxConns)...)
		s.cfg.logger.Print(logger.LevelInfo, logger.ComponentTopology, logger.TopologyServerOpening, s.logKV()...)
		if m := s.cfg.serverMonitor; m != nil && m.ServerOpening != nil {
			m.ServerOpening(&event.ServerOpeningEvent{Address: s.address, TopologyID: s.cfg.topologyID})
		}

		s.monitorDone = make(chan struct{})
		go s.monitor()
	})
	return s.initErr
}

// check runs one probe and installs its result unless the server was closed
// in the meantime.
func (s *Server) check(ctx context.Context) (description.Server, error) {
	if s.isClosed() {
		return s.Description(), ErrServerClosed
	}
	if err := s.initialize(); err != nil {
		return s.Description(), err
	}
	if s.cfg.probe == nil {
		return s.Description(), ErrNoHealthProbe
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.heartbeatTimeout)
	defer cancel()

	info, connID, rtt, err := s.probe(ctx)
	if s.isClosed() {
		return s.Description(), ErrServerClosed
	}

	if err == nil && info == nil {
		err = errors.New("health probe returned no status")
	}
	if err == nil && !info.OK {
		err = errors.New("health probe reported a not ok status")
	}

	if err != nil {
		probeErr := &ProbeError{Addr: s.address, Wrapped: err}

		desc := description.NewServerFromError(s.address, probeErr)
		desc.HeartbeatInterval = s.cfg.heartbeatInterval
		if !s.install(desc) {
			return s.Description(), ErrServerClosed
		}

		s.source.Clear()
		s.rtt.reset()

		s.cfg.logger.Error(logger.ComponentTopology, err, logger.TopologyServerHeartbeatFailed,
			s.logKV(logger.KeyDurationMS, rtt.Milliseconds())...)
		s.cfg.logger.Print(logger.LevelDebug, logger.ComponentConnection, logger.ConnectionPoolCleared, s.logKV()...)
		if m := s.cfg.serverMonitor; m != nil && m.ServerHeartbeatFailed != nil {
			m.ServerHeartbeatFailed(&event.ServerHeartbeatFailedEvent{
				Address:      s.address,
				Duration:     rtt,
				Failure:      probeErr,
				ConnectionID: connID,
			})
		}

		return desc, probeErr
	}

	s.rtt.addSample(rtt)
	avg, _ := s.rtt.getRTT()

	desc := description.BuildServer(s.address, info, avg)
	desc.RTT90 = s.rtt.getRTT90()
	desc.HeartbeatInterval = s.cfg.heartbeatInterval
	if !s.install(desc) {
		return s.Description(), ErrServerClosed
	}

	s.cfg.logger.Print(logger.LevelDebug, logger.ComponentTopology, logger.TopologyServerHeartbeatSucceeded,
		s.logKV(logger.KeyDurationMS, rtt.Milliseconds())...)
	if m := s.cfg.serverMonitor; m != nil && m.ServerHeartbeatSucceeded != nil {
		m.ServerHeartbeatSucceeded(&event.ServerHeartbeatSucceededEvent{
			Address:      s.address,
			Duration:     rtt,
			Reply:        desc,
			ConnectionID: connID,
		})
	}

	s.reportHosts(desc.Members)

	return desc, nil
}

// probe runs the health probe over a connection from the source while
// holding the exclusivity guard.
func (s *Server) probe(ctx context.Context) (*description.ServerInfo, string, time.Duration, error) {
	if err := s.exclusive.Acquire(ctx, 1); err != nil {
		return nil, "", 0, err
	}
	defer s.exclusive.Release(1)

	c, err := s.source.Acquire(ctx)
	if err != nil {
		return nil, "", 0, err
	}
	defer c.Close()

	s.cfg.logger.Print(logger.LevelDebug, logger.ComponentTopology, logger.TopologyServerHeartbeatStarted,
		s.logKV(logger.KeyDriverConnectionID, c.ID())...)
	if m := s.cfg.serverMonitor; m != nil && m.ServerHeartbeatStarted != nil {
		m.ServerHeartbeatStarted(&event.ServerHeartbeatStartedEvent{Address: s.address, ConnectionID: c.ID()})
	}

	start := time.Now()
	info, err := s.cfg.probe.Probe(ctx, s.address, c)
	return info, c.ID(), time.Since(start), err
}

// install replaces the description and reports whether it did. Nothing is
// installed once the server is closed.
func (s *Server) install(desc description.Server) bool {
	s.descLock.Lock()
	if s.isClosed() {
		s.descLock.Unlock()
		return false
	}
	prev := s.desc
	s.desc = desc
	s.descLock.Unlock()

	if !prev.Equal(desc) {
		s.cfg.logger.Print(logger.LevelDebug, logger.ComponentTopology, logger.TopologyServerDescriptionChanged,
			s.logKV(logger.KeyPreviousDesc, prev.String(), logger.KeyNewDescription, desc.String())...)
		if m := s.cfg.serverMonitor; m != nil && m.ServerDescriptionChanged != nil {
			m.ServerDescriptionChanged(&event.ServerDescriptionChangedEvent{
				Address:             s.address,
				TopologyID:          s.cfg.topologyID,
				PreviousDescription: prev,
				NewDescription:      desc,
			})
		}
	}

	if s.cfg.updateCallback != nil {
		s.cfg.updateCallback(desc)
	}
	return true
}

// reportHosts sends a TopologyChange when members differs from the list
// reported by the previous successful probe.
func (s *Server) reportHosts(members []addr.Addr) {
	s.hostsLock.Lock()
	diff := description.DiffHosts(s.hosts, members)
	s.hosts = append([]addr.Addr(nil), members...)
	s.hostsLock.Unlock()

	if diff.Empty() || s.cfg.topologyChanges == nil {
		return
	}

	change := TopologyChange{Source: s.address, Added: diff.Added, Removed: diff.Removed}
	select {
	case s.cfg.topologyChanges <- change:
	case <-s.done:
	}
}
