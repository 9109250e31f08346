package description

import (
	"sort"
	"strings"

	"github.com/ikmak/mongo-topology/addr"
)

// ServerSelector narrows a list of candidate servers to those eligible for an
// operation.
type ServerSelector interface {
	SelectServer(Topology, []Server) ([]Server, error)
}

// Topology is a description of a deployment.
type Topology struct {
	Kind    TopologyKind
	Servers []Server
}

// NewTopology builds a Topology whose kind is derived from the servers.
func NewTopology(servers []Server) Topology {
	return Topology{
		Kind:    TopologyKindFromServers(servers),
		Servers: servers,
	}
}

// Server returns the server description with the specified address.
func (t Topology) Server(a addr.Addr) (Server, bool) {
	for _, s := range t.Servers {
		if s.Addr == a {
			return s, true
		}
	}
	return Server{}, false
}

// String implements the fmt.Stringer interface.
func (t Topology) String() string {
	parts := make([]string, 0, len(t.Servers))
	for _, s := range t.Servers {
		parts = append(parts, "{ "+s.String()+" }")
	}
	return "Type: " + t.Kind.String() + ", Servers: [" + strings.Join(parts, ", ") + "]"
}

// TopologyKindFromServers infers the shape of the deployment from what its
// servers report. Routers take precedence over replica set members, which
// take precedence over standalone servers.
func TopologyKindFromServers(servers []Server) TopologyKind {
	kind := TopologyKindUnknown
	for _, s := range servers {
		switch s.Kind {
		case Mongos:
			return Sharded
		case RSPrimary:
			kind = ReplicaSetWithPrimary
		case RSSecondary, RSArbiter, RSGhost, RSMember, Hidden:
			if kind != ReplicaSetWithPrimary {
				kind = ReplicaSetNoPrimary
			}
		case Standalone:
			if kind == TopologyKindUnknown {
				kind = Single
			}
		}
	}
	return kind
}

// HostsDiff is the difference between two reported host lists.
type HostsDiff struct {
	Added   []addr.Addr
	Removed []addr.Addr
}

// Empty reports whether the lists were the same.
func (d HostsDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// DiffHosts returns the hosts present in new but not in old, and those present
// in old but not in new. Both results are sorted.
func DiffHosts(old, new []addr.Addr) HostsDiff {
	var diff HostsDiff

	oldHosts := addrSorter(append([]addr.Addr(nil), old...))
	newHosts := addrSorter(append([]addr.Addr(nil), new...))

	sort.Sort(oldHosts)
	sort.Sort(newHosts)

	i := 0
	j := 0
	for {
		if i < len(oldHosts) && j < len(newHosts) {
			switch comp := compareAddr(oldHosts[i], newHosts[j]); {
			case comp > 0:
				diff.Added = append(diff.Added, newHosts[j])
				j++
			case comp < 0:
				diff.Removed = append(diff.Removed, oldHosts[i])
				i++
			default:
				i++
				j++
			}
		} else if i < len(oldHosts) {
			diff.Removed = append(diff.Removed, oldHosts[i])
			i++
		} else if j < len(newHosts) {
			diff.Added = append(diff.Added, newHosts[j])
			j++
		} else {
			break
		}
	}

	return diff
}

func compareAddr(a, b addr.Addr) int {
	if c := strings.Compare(a.Host, b.Host); c != 0 {
		return c
	}
	switch {
	case a.Port < b.Port:
		return -1
	case a.Port > b.Port:
		return 1
	}
	return 0
}

type addrSorter []addr.Addr

func (x addrSorter) Len() int           { return len(x) }
func (x addrSorter) Swap(i, j int)      { x[i], x[j] = x[j], x[i] }
func (x addrSorter) Less(i, j int) bool { return compareAddr(x[i], x[j]) < 0 }
