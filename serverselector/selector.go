// Package serverselector provides the description.ServerSelector
// implementations used to route operations to members of a deployment.
package serverselector

import (
	"time"

	"github.com/ikmak/mongo-topology/description"
	"github.com/ikmak/mongo-topology/readpref"
)

// DefaultLatencyWindow is the acceptable latency window used when none is
// configured.
const DefaultLatencyWindow = 15 * time.Millisecond

var (
	_ description.ServerSelector = &Composite{}
	_ description.ServerSelector = &Operable{}
	_ description.ServerSelector = &Latency{}
	_ description.ServerSelector = &Write{}
	_ description.ServerSelector = Func(nil)
)

// Composite runs its selectors as a pipeline. Each selector only sees the
// servers kept by the one before it, so [Operable, ReadPref] picks operable
// servers first and applies the read preference to what is left.
type Composite struct {
	Selectors []description.ServerSelector
}

// SelectServer implements description.ServerSelector.
func (c *Composite) SelectServer(topo description.Topology, candidates []description.Server) ([]description.Server, error) {
	for _, sel := range c.Selectors {
		var err error
		if candidates, err = sel.SelectServer(topo, candidates); err != nil {
			return nil, err
		}
	}
	return candidates, nil
}

// Operable keeps the candidates that operations may be routed to: reachable,
// visible primaries and secondaries.
type Operable struct{}

// SelectServer implements description.ServerSelector.
func (*Operable) SelectServer(_ description.Topology, candidates []description.Server) ([]description.Server, error) {
	return keep(candidates, description.Server.IsReadable), nil
}

// Latency keeps the servers whose average round trip time is within Latency
// of the fastest one. Servers without a measured RTT are dropped unless no
// candidate has one. A negative Latency disables the filter.
type Latency struct {
	Latency time.Duration
}

// SelectServer implements description.ServerSelector.
func (l *Latency) SelectServer(_ description.Topology, candidates []description.Server) ([]description.Server, error) {
	if l.Latency < 0 || len(candidates) < 2 {
		return candidates, nil
	}

	fastest, found := time.Duration(0), false
	for _, s := range candidates {
		if s.AverageRTTSet && (!found || s.AverageRTT < fastest) {
			fastest, found = s.AverageRTT, true
		}
	}
	if !found {
		return candidates, nil
	}

	limit := fastest + l.Latency
	return keep(candidates, func(s description.Server) bool {
		return s.AverageRTTSet && s.AverageRTT <= limit
	}), nil
}

// Write keeps the servers that accept writes. Every server of a Single
// topology does.
type Write struct{}

// SelectServer implements description.ServerSelector.
func (*Write) SelectServer(topo description.Topology, candidates []description.Server) ([]description.Server, error) {
	if topo.Kind == description.Single {
		return candidates, nil
	}
	return keep(candidates, description.Server.IsPrimary), nil
}

// Func adapts a plain function to description.ServerSelector.
type Func func(description.Topology, []description.Server) ([]description.Server, error)

// SelectServer implements description.ServerSelector.
func (f Func) SelectServer(topo description.Topology, candidates []description.Server) ([]description.Server, error) {
	return f(topo, candidates)
}

// ForReadPref builds the selector chain used for ordinary reads: operable
// servers, narrowed by the read preference and then by the latency window.
// A nil read preference means primary.
func ForReadPref(rp *readpref.ReadPref, window time.Duration) description.ServerSelector {
	if rp == nil {
		rp = readpref.Primary()
	}
	return &Composite{Selectors: []description.ServerSelector{
		&Operable{},
		&ReadPref{ReadPref: rp},
		&Latency{Latency: window},
	}}
}

// ForWrite builds the selector chain used for writes.
func ForWrite(window time.Duration) description.ServerSelector {
	return &Composite{Selectors: []description.ServerSelector{
		&Operable{},
		&Write{},
		&Latency{Latency: window},
	}}
}

// keep returns the candidates matching pred. The input is returned as is when
// every candidate matches; otherwise a new slice is allocated.
func keep(candidates []description.Server, pred func(description.Server) bool) []description.Server {
	for i, s := range candidates {
		if pred(s) {
			continue
		}
		out := make([]description.Server, i, len(candidates)-1)
		copy(out, candidates[:i])
		for _, rest := range candidates[i+1:] {
			if pred(rest) {
				out = append(out, rest)
			}
		}
		return out
	}
	return candidates
}

func ofKind(kind description.Kind) func(description.Server) bool {
	return func(s description.Server) bool { return s.Kind == kind }
}
