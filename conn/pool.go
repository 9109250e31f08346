package conn

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ikmak/mongo-topology/addr"
	"github.com/ikmak/mongo-topology/msg"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxSize is the number of connections a Pool allows by default.
const DefaultMaxSize = 100

// ErrPoolClosed is an error that occurs when
// attempting to use a pool that is closed.
var ErrPoolClosed = errors.New("pool is closed")

// NewPool creates a new connection pool for address. At most maxSize
// connections are checked out at once; zero means DefaultMaxSize.
func NewPool(address addr.Addr, maxSize uint64, dial Dialer) *Pool {
	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}
	return &Pool{
		address:  address,
		dial:     dial,
		permits:  semaphore.NewWeighted(int64(maxSize)),
		conns:    make(chan *poolConn, maxSize),
		inflight: make(map[*poolConn]struct{}),
	}
}

// PoolFactory returns a SourceFactory that creates pools using dial.
func PoolFactory(maxSize uint64, dial Dialer) SourceFactory {
	return func(a addr.Addr) (Source, error) {
		if dial == nil {
			return nil, errors.New("no dialer configured")
		}
		return NewPool(a, maxSize, dial), nil
	}
}

// Pool holds connections such that they can be checked out
// and reused.
type Pool struct {
	address addr.Addr
	dial    Dialer
	permits *semaphore.Weighted
	gen     uint64

	connsLock sync.Mutex
	conns     chan *poolConn
	inflight  map[*poolConn]struct{}
}

var _ Source = &Pool{}

// Clear clears the pool. Idle connections are closed right away; the ones in
// use are closed when they are returned.
func (p *Pool) Clear() {
	atomic.AddUint64(&p.gen, 1)

	p.connsLock.Lock()
	conns := p.conns
	p.connsLock.Unlock()

	if conns == nil {
		return
	}

	for {
		select {
		case c, ok := <-conns:
			if !ok {
				return
			}
			_ = c.closeConnection()
		default:
			return
		}
	}
}

// Close closes the pool, making it unusable. It closes all connections,
// including the ones currently checked out.
func (p *Pool) Close() error {
	p.connsLock.Lock()
	conns := p.conns
	p.conns = nil
	inflight := p.inflight
	p.inflight = nil
	p.connsLock.Unlock()

	if conns == nil {
		return nil
	}

	var firstErr error
	close(conns)
	for c := range conns {
		if err := c.closeConnection(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for c := range inflight {
		if err := c.closeConnection(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Acquire gets a connection from the pool, dialing a new one when none is
// idle. To return the connection to the pool, close it.
func (p *Pool) Acquire(ctx context.Context) (Connection, error) {
	p.connsLock.Lock()
	conns := p.conns
	p.connsLock.Unlock()

	if conns == nil {
		return nil, ErrPoolClosed
	}

	if err := p.permits.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	c, err := p.getConn(ctx, conns)
	if err != nil {
		p.permits.Release(1)
		return nil, err
	}

	p.connsLock.Lock()
	if p.inflight == nil {
		p.connsLock.Unlock()
		_ = c.closeConnection()
		p.permits.Release(1)
		return nil, ErrPoolClosed
	}
	p.inflight[c] = struct{}{}
	p.connsLock.Unlock()

	return c, nil
}

func (p *Pool) expired(gen uint64) bool {
	return gen < atomic.LoadUint64(&p.gen)
}

func (p *Pool) getConn(ctx context.Context, conns chan *poolConn) (*poolConn, error) {
	for {
		gen := atomic.LoadUint64(&p.gen)
		select {
		case c, ok := <-conns:
			if !ok {
				return nil, ErrPoolClosed
			}
			if p.expired(c.gen) {
				_ = c.closeConnection()
				continue
			}
			atomic.StoreInt32(&c.released, 0)
			return c, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			c, err := p.dial(ctx, p.address)
			if err != nil {
				return nil, &ConnectionError{Addr: p.address, Wrapped: err}
			}
			return &poolConn{Connection: c, p: p, gen: gen}, nil
		}
	}
}

func (p *Pool) returnConn(c *poolConn) error {
	p.connsLock.Lock()
	defer p.connsLock.Unlock()
	defer p.permits.Release(1)

	if p.inflight == nil {
		return c.closeConnection()
	}
	delete(p.inflight, c)

	if c.failed || p.expired(c.gen) {
		return c.closeConnection()
	}

	select {
	case p.conns <- c:
		return nil
	default:
		// pool is full
		return c.closeConnection()
	}
}

type poolConn struct {
	Connection
	p   *Pool
	gen uint64

	// failed is set once a read or write errors; such connections are not
	// reused.
	failed    bool
	released  int32
	closeOnce sync.Once
	closeErr  error
}

func (c *poolConn) Write(ctx context.Context, reqs ...msg.Request) error {
	err := c.Connection.Write(ctx, reqs...)
	if err != nil {
		c.failed = true
		return &ConnectionError{Addr: c.p.address, ConnectionID: c.ID(), Wrapped: err}
	}
	return nil
}

func (c *poolConn) Read(ctx context.Context) (*msg.Reply, error) {
	reply, err := c.Connection.Read(ctx)
	if err != nil {
		c.failed = true
		return nil, &ConnectionError{Addr: c.p.address, ConnectionID: c.ID(), Wrapped: err}
	}
	return reply, nil
}

// Close returns the connection to its pool. Only the first call has an effect.
func (c *poolConn) Close() error {
	if !atomic.CompareAndSwapInt32(&c.released, 0, 1) {
		return nil
	}
	return c.p.returnConn(c)
}

func (c *poolConn) closeConnection() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Connection.Close()
	})
	return c.closeErr
}
