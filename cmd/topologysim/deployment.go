package main

import (
	"os"
	"strings"
	"time"

	"github.com/ikmak/mongo-topology/description"
	"github.com/ikmak/mongo-topology/internal/clustertest"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// deploymentFile is the TOML description of a simulated deployment.
type deploymentFile struct {
	Seeds   []string     `toml:"seeds"`
	URI     string       `toml:"uri"`
	Servers []serverSpec `toml:"servers"`
}

type serverSpec struct {
	Address  string            `toml:"address"`
	Kind     string            `toml:"kind"`
	SetName  string            `toml:"set_name"`
	Hosts    []string          `toml:"hosts"`
	Passives []string          `toml:"passives"`
	Arbiters []string          `toml:"arbiters"`
	Tags     map[string]string `toml:"tags"`
	DelayMS  int64             `toml:"delay_ms"`
	// LagMS is how far the last write of a secondary trails the primary.
	LagMS int64 `toml:"lag_ms"`
}

func loadDeployment(path string) (*deploymentFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseDeployment(data)
}

func parseDeployment(data []byte) (*deploymentFile, error) {
	var f deploymentFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "invalid deployment file")
	}
	if len(f.Servers) == 0 {
		return nil, errors.New("deployment has no servers")
	}
	for _, s := range f.Servers {
		if s.Address == "" {
			return nil, errors.New("every server needs an address")
		}
	}
	return &f, nil
}

// build turns the file into a simulated deployment. Write times are relative
// to now.
func (f *deploymentFile) build(now time.Time) (*clustertest.Deployment, error) {
	d := clustertest.NewDeployment()
	for _, s := range f.Servers {
		node, err := s.node(now)
		if err != nil {
			return nil, errors.Wrapf(err, "server %s", s.Address)
		}
		d.Set(s.Address, node)
	}
	return d, nil
}

func (s serverSpec) node(now time.Time) (clustertest.Node, error) {
	info := description.ServerInfo{
		OK:            true,
		SetName:       s.SetName,
		Hosts:         s.Hosts,
		Passives:      s.Passives,
		Arbiters:      s.Arbiters,
		Tags:          s.Tags,
		LastWriteTime: now.Add(-time.Duration(s.LagMS) * time.Millisecond),
	}

	node := clustertest.Node{Delay: time.Duration(s.DelayMS) * time.Millisecond}

	kind := strings.ToLower(s.Kind)
	switch kind {
	case "standalone", "":
		info.IsMaster = true
	case "mongos":
		info.IsMaster = true
		info.Msg = "isdbgrid"
	case "primary":
		info.IsMaster = true
	case "secondary":
		info.Secondary = true
	case "hidden":
		info.Secondary = true
		info.Hidden = true
	case "arbiter":
		info.ArbiterOnly = true
	case "ghost":
		info.IsReplicaSet = true
	case "down":
		node.ProbeErr = errors.New("connection refused")
	default:
		return clustertest.Node{}, errors.Errorf("unknown kind %q", s.Kind)
	}

	if (kind == "primary" || kind == "secondary" || kind == "hidden" || kind == "arbiter") && s.SetName == "" {
		return clustertest.Node{}, errors.Errorf("kind %s needs a set_name", s.Kind)
	}

	node.Info = info
	return node, nil
}
