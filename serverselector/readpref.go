package serverselector

import (
	"time"

	"github.com/ikmak/mongo-topology/description"
	"github.com/ikmak/mongo-topology/readpref"
	"github.com/ikmak/mongo-topology/tag"
	"github.com/pkg/errors"
)

const (
	// idleWritePeriod is how often an idle primary writes a no-op, which
	// bounds how stale an otherwise healthy secondary can look.
	idleWritePeriod = 10 * time.Second

	minMaxStaleness = 90 * time.Second
)

var _ description.ServerSelector = &ReadPref{}

// ReadPref applies a read preference. Every server of a Single topology is
// eligible and only mongos routers are eligible in a Sharded one.
type ReadPref struct {
	ReadPref *readpref.ReadPref
}

// SelectServer implements description.ServerSelector.
func (r *ReadPref) SelectServer(topo description.Topology, candidates []description.Server) ([]description.Server, error) {
	switch topo.Kind {
	case description.Single:
		return candidates, nil
	case description.Sharded:
		return keep(candidates, ofKind(description.Mongos)), nil
	case description.ReplicaSetNoPrimary, description.ReplicaSetWithPrimary:
		if err := checkMaxStaleness(r.ReadPref, topo); err != nil {
			return nil, err
		}
		return replicaSetMembers(r.ReadPref, candidates)
	}
	return nil, nil
}

func replicaSetMembers(rp *readpref.ReadPref, candidates []description.Server) ([]description.Server, error) {
	primary := keep(candidates, ofKind(description.RSPrimary))
	secondaries := func() []description.Server {
		return matchTagSets(freshSecondaries(rp, candidates), rp.TagSets())
	}

	switch rp.Mode() {
	case readpref.PrimaryMode:
		return primary, nil
	case readpref.PrimaryPreferredMode:
		if len(primary) > 0 {
			return primary, nil
		}
		return secondaries(), nil
	case readpref.SecondaryMode:
		return secondaries(), nil
	case readpref.SecondaryPreferredMode:
		if s := secondaries(); len(s) > 0 {
			return s, nil
		}
		return primary, nil
	case readpref.NearestMode:
		eligible := make([]description.Server, 0, len(candidates))
		eligible = append(eligible, primary...)
		eligible = append(eligible, freshSecondaries(rp, candidates)...)
		return matchTagSets(eligible, rp.TagSets()), nil
	}
	return nil, errors.Errorf("unsupported mode: %d", rp.Mode())
}

func checkMaxStaleness(rp *readpref.ReadPref, topo description.Topology) error {
	maxStaleness, set := rp.MaxStaleness()
	if !set {
		return nil
	}
	if maxStaleness < minMaxStaleness {
		return errors.Errorf("max staleness (%s) must be greater than or equal to %s", maxStaleness, minMaxStaleness)
	}
	if len(topo.Servers) == 0 {
		return nil
	}

	// members share one heartbeat interval
	heartbeat := topo.Servers[0].HeartbeatInterval
	if maxStaleness < heartbeat+idleWritePeriod {
		return errors.Errorf(
			"max staleness (%s) must be greater than or equal to the heartbeat interval (%s) plus idle write period (%s)",
			maxStaleness, heartbeat, idleWritePeriod,
		)
	}
	return nil
}

// freshSecondaries returns the secondaries whose estimated replication lag is
// within the max staleness of rp. Lag is measured against the primary when
// there is one and against the most recent secondary write otherwise.
func freshSecondaries(rp *readpref.ReadPref, candidates []description.Server) []description.Server {
	secondaries := keep(candidates, ofKind(description.RSSecondary))
	maxStaleness, set := rp.MaxStaleness()
	if !set || len(secondaries) == 0 {
		return secondaries
	}

	for _, p := range candidates {
		if p.Kind != description.RSPrimary {
			continue
		}
		primaryLag := p.LastUpdateTime.Sub(p.LastWriteTime)
		return keep(secondaries, func(s description.Server) bool {
			return s.LastUpdateTime.Sub(s.LastWriteTime)-primaryLag+s.HeartbeatInterval <= maxStaleness
		})
	}

	var newest time.Time
	for _, s := range secondaries {
		if s.LastWriteTime.After(newest) {
			newest = s.LastWriteTime
		}
	}
	return keep(secondaries, func(s description.Server) bool {
		return newest.Sub(s.LastWriteTime)+s.HeartbeatInterval <= maxStaleness
	})
}

// matchTagSets returns the servers matching the first tag set that matches
// any server. An empty set matches every server and no sets means no
// filtering.
func matchTagSets(servers []description.Server, sets []tag.Set) []description.Server {
	if len(sets) == 0 {
		return servers
	}
	for _, set := range sets {
		if len(set) == 0 {
			return servers
		}
		matched := keep(servers, func(s description.Server) bool {
			return len(s.Tags) > 0 && s.Tags.ContainsAll(set)
		})
		if len(matched) > 0 {
			return matched
		}
	}
	return []description.Server{}
}
