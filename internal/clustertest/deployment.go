// Package clustertest simulates deployments for tests: a dialer handing out
// in-memory connections and a health probe answering from a table of server
// states.
package clustertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ikmak/mongo-topology/addr"
	"github.com/ikmak/mongo-topology/conn"
	"github.com/ikmak/mongo-topology/description"
	"github.com/ikmak/mongo-topology/msg"
	"github.com/pkg/errors"
)

// ErrUnknownHost is returned when dialing or probing an address that is not
// part of the deployment.
var ErrUnknownHost = errors.New("unknown host")

// Node is the simulated state of one server.
type Node struct {
	Info description.ServerInfo
	// ProbeErr makes every probe fail.
	ProbeErr error
	// DialErr makes every dial fail.
	DialErr error
	// Delay is added to every probe.
	Delay time.Duration
	// Gate, when set, blocks probes until it is closed.
	Gate chan struct{}
}

// Entry is one record of the write log.
type Entry struct {
	ConnID    string
	RequestID int32
	Begin     bool
}

// Deployment is a simulated set of servers. It is safe for concurrent use.
type Deployment struct {
	mu     sync.Mutex
	nodes  map[addr.Addr]*Node
	probes map[addr.Addr]int
	dials  map[addr.Addr]int
	log    []Entry
	nextID int

	// WriteDelay is how long a write takes between its begin and end
	// entries in the log.
	WriteDelay time.Duration
}

// NewDeployment creates an empty deployment.
func NewDeployment() *Deployment {
	return &Deployment{
		nodes:  make(map[addr.Addr]*Node),
		probes: make(map[addr.Addr]int),
		dials:  make(map[addr.Addr]int),
	}
}

// Set installs the state of the server at address, replacing any previous
// state.
func (d *Deployment) Set(address string, node Node) *Deployment {
	a := addr.MustParse(address)
	d.mu.Lock()
	defer d.mu.Unlock()
	n := node
	d.nodes[a] = &n
	return d
}

// Update modifies the state of the server at address in place.
func (d *Deployment) Update(address string, fn func(*Node)) {
	a := addr.MustParse(address)
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.nodes[a]
	if !ok {
		n = &Node{}
		d.nodes[a] = n
	}
	fn(n)
}

// Remove takes the server at address out of the deployment.
func (d *Deployment) Remove(address string) {
	a := addr.MustParse(address)
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.nodes, a)
}

// Probes returns how many probes reached the server at address.
func (d *Deployment) Probes(address string) int {
	a := addr.MustParse(address)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.probes[a]
}

// Dials returns how many connections were opened to the server at address.
func (d *Deployment) Dials(address string) int {
	a := addr.MustParse(address)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[a]
}

// Log returns a copy of the write log.
func (d *Deployment) Log() []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Entry(nil), d.log...)
}

func (d *Deployment) node(a addr.Addr) (Node, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.nodes[a]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

func (d *Deployment) record(e Entry) {
	d.mu.Lock()
	d.log = append(d.log, e)
	d.mu.Unlock()
}

// Dialer returns a dialer that connects to the simulated servers.
func (d *Deployment) Dialer() conn.Dialer {
	return func(ctx context.Context, a addr.Addr) (conn.Connection, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		d.mu.Lock()
		defer d.mu.Unlock()

		n, ok := d.nodes[a]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownHost, "dial %s", a)
		}
		if n.DialErr != nil {
			return nil, n.DialErr
		}

		d.dials[a]++
		d.nextID++
		return &Connection{d: d, address: a, id: fmt.Sprintf("%s[%d]", a, d.nextID)}, nil
	}
}

// HealthProbe answers with the Info of the probed server. The probe writes an
// ismaster command over the connection first, so probes show up in the write
// log next to dispatches.
func (d *Deployment) HealthProbe(ctx context.Context, a addr.Addr, c conn.Connection) (*description.ServerInfo, error) {
	d.mu.Lock()
	d.probes[a]++
	d.mu.Unlock()

	n, ok := d.node(a)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownHost, "probe %s", a)
	}

	if n.Gate != nil {
		select {
		case <-n.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if n.Delay > 0 {
		timer := time.NewTimer(n.Delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	if err := c.Write(ctx, msg.NewCommand("admin", []byte("ismaster"))); err != nil {
		return nil, err
	}
	if _, err := c.Read(ctx); err != nil {
		return nil, err
	}

	// the state may have changed while the probe was held
	if n, ok = d.node(a); !ok {
		return nil, errors.Wrapf(ErrUnknownHost, "probe %s", a)
	}
	if n.ProbeErr != nil {
		return nil, n.ProbeErr
	}

	info := n.Info
	return &info, nil
}

// Connection is an in-memory connection to a simulated server. Replies echo
// the payload of the last request written.
type Connection struct {
	d       *Deployment
	address addr.Addr
	id      string

	mu     sync.Mutex
	last   msg.Request
	closed bool
}

// ID implements the conn.Connection interface.
func (c *Connection) ID() string { return c.id }

// Write implements the conn.Connection interface.
func (c *Connection) Write(ctx context.Context, reqs ...msg.Request) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errors.New("connection closed")
	}

	for _, req := range reqs {
		c.d.record(Entry{ConnID: c.id, RequestID: req.RequestID(), Begin: true})
		if c.d.WriteDelay > 0 {
			select {
			case <-time.After(c.d.WriteDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		c.d.record(Entry{ConnID: c.id, RequestID: req.RequestID()})
	}

	c.mu.Lock()
	c.last = reqs[len(reqs)-1]
	c.mu.Unlock()
	return nil
}

// Read implements the conn.Connection interface.
func (c *Connection) Read(ctx context.Context) (*msg.Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.New("connection closed")
	}
	if c.last == nil {
		return nil, errors.New("nothing to reply to")
	}

	reply := &msg.Reply{ResponseTo: c.last.RequestID()}
	if cmd, ok := c.last.(*msg.Command); ok {
		reply.Body = append([]byte(nil), cmd.Payload...)
	}
	return reply, nil
}

// Close implements the conn.Connection interface.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Standalone is the status of a standalone server.
func Standalone() description.ServerInfo {
	return description.ServerInfo{OK: true, IsMaster: true}
}

// Mongos is the status of a mongos router.
func Mongos() description.ServerInfo {
	return description.ServerInfo{OK: true, IsMaster: true, Msg: "isdbgrid"}
}

// Primary is the status of a replica set primary announcing hosts.
func Primary(setName string, hosts ...string) description.ServerInfo {
	return description.ServerInfo{OK: true, IsMaster: true, SetName: setName, Hosts: hosts}
}

// Secondary is the status of a replica set secondary announcing hosts.
func Secondary(setName string, hosts ...string) description.ServerInfo {
	return description.ServerInfo{OK: true, Secondary: true, SetName: setName, Hosts: hosts}
}
