package conn_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ikmak/mongo-topology/addr"
	. "github.com/ikmak/mongo-topology/conn"
	"github.com/ikmak/mongo-topology/msg"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id       string
	closed   int32
	writeErr error
}

func (c *fakeConn) Write(context.Context, ...msg.Request) error { return c.writeErr }
func (c *fakeConn) Read(context.Context) (*msg.Reply, error)    { return &msg.Reply{}, nil }
func (c *fakeConn) ID() string                                  { return c.id }
func (c *fakeConn) Close() error {
	atomic.AddInt32(&c.closed, 1)
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
}

func (d *fakeDialer) dial(_ context.Context, a addr.Addr) (Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	c := &fakeConn{id: fmt.Sprintf("%s[%d]", a, len(d.conns))}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

var poolAddr = addr.MustParse("localhost:27017")

func TestPool_reuses_connections(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	p := NewPool(poolAddr, 2, d.dial)

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, c1.Close())
	require.NoError(t, c1.Close())

	c2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, c1.ID(), c2.ID())
	require.Equal(t, 1, d.dialed())
	require.NoError(t, c2.Close())
}

func TestPool_limits_checked_out_connections(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	p := NewPool(poolAddr, 1, d.dial)

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	require.True(t, errors.Is(err, context.DeadlineExceeded))

	require.NoError(t, c1.Close())
	c2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, c2.Close())
}

func TestPool_discards_failed_connections(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	p := NewPool(poolAddr, 2, d.dial)

	c, err := p.Acquire(context.Background())
	require.NoError(t, err)
	d.conns[0].writeErr = errors.New("broken pipe")

	err = c.Write(context.Background(), msg.NewCommand("admin", nil))
	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	require.Equal(t, poolAddr, connErr.Addr)
	require.NoError(t, c.Close())
	require.Equal(t, int32(1), atomic.LoadInt32(&d.conns[0].closed))

	c, err = p.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, d.dialed())
	require.NoError(t, c.Close())
}

func TestPool_Clear(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	p := NewPool(poolAddr, 2, d.dial)

	idle, err := p.Acquire(context.Background())
	require.NoError(t, err)
	inUse, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, idle.Close())

	p.Clear()
	require.Equal(t, int32(1), atomic.LoadInt32(&d.conns[0].closed))
	require.Equal(t, int32(0), atomic.LoadInt32(&d.conns[1].closed))

	require.NoError(t, inUse.Close())
	require.Equal(t, int32(1), atomic.LoadInt32(&d.conns[1].closed))

	c, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, d.dialed())
	require.NoError(t, c.Close())
}

func TestPool_Close(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	p := NewPool(poolAddr, 2, d.dial)

	inUse, err := p.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.Equal(t, int32(1), atomic.LoadInt32(&d.conns[0].closed))

	_, err = p.Acquire(context.Background())
	require.Equal(t, ErrPoolClosed, err)

	require.NoError(t, inUse.Close())
	require.Equal(t, int32(1), atomic.LoadInt32(&d.conns[0].closed))
	require.NoError(t, p.Close())
}

func TestPool_dial_error(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{err: errors.New("connection refused")}
	p := NewPool(poolAddr, 1, d.dial)

	_, err := p.Acquire(context.Background())
	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	require.EqualError(t, errors.Cause(err), "connection refused")

	d.mu.Lock()
	d.err = nil
	d.mu.Unlock()

	// the permit was returned
	c, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

func TestPoolFactory(t *testing.T) {
	t.Parallel()

	_, err := PoolFactory(1, nil)(poolAddr)
	require.Error(t, err)

	src, err := PoolFactory(1, (&fakeDialer{}).dial)(poolAddr)
	require.NoError(t, err)
	require.NoError(t, src.Close())
}
