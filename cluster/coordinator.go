package cluster

import (
	"slices"

	"github.com/ikmak/mongo-topology/addr"
	"github.com/ikmak/mongo-topology/event"
	"github.com/ikmak/mongo-topology/internal/logger"
	"github.com/ikmak/mongo-topology/server"
)

// coordinate applies the member list changes reported by the servers, one at
// a time, until the cluster is closed.
func (c *Cluster) coordinate() {
	for {
		select {
		case change := <-c.changes:
			c.apply(change)
		case <-c.done:
			return
		}
	}
}

func (c *Cluster) apply(change server.TopologyChange) {
	source := c.server(change.Source)
	if source == nil {
		return
	}
	if rs := c.cfg.replicaSetName; rs != "" && source.Description().SetName != rs {
		return
	}

	c.cfg.logger.Print(logger.LevelDebug, logger.ComponentTopology, logger.TopologyHostsChanged,
		c.logKV(
			logger.KeyServerHost, change.Source.Host,
			logger.KeyServerPort, int(change.Source.Port),
			logger.KeyAddedHosts, addrStrings(change.Added),
			logger.KeyRemovedHosts, addrStrings(change.Removed),
		)...)
	if m := c.cfg.serverMonitor; m != nil && m.TopologyHostsChanged != nil {
		m.TopologyHostsChanged(&event.TopologyHostsChangedEvent{
			TopologyID: c.id,
			Source:     change.Source,
			Added:      change.Added,
			Removed:    change.Removed,
		})
	}

	for _, a := range change.Added {
		if s := c.Add(a); s != nil {
			// start monitoring so the new member's own hosts get discovered
			s.Operable()
		}
	}

	for _, a := range change.Removed {
		if slices.Contains(c.seeds, a) || c.reportedByOthers(a, change.Source) {
			continue
		}
		c.Remove(a)
	}
}

// reportedByOthers reports whether a reachable member other than source
// still lists address. A member does not vouch for itself.
func (c *Cluster) reportedByOthers(address, source addr.Addr) bool {
	for _, s := range c.snapshot() {
		if s.Addr() == source || s.Addr() == address {
			continue
		}
		desc := s.Description()
		if desc.Reachable() && slices.Contains(desc.Members, address) {
			return true
		}
	}
	return false
}

func addrStrings(addrs []addr.Addr) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}
