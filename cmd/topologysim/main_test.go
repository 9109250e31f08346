package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ikmak/mongo-topology/addr"
	"github.com/ikmak/mongo-topology/tag"
	"github.com/stretchr/testify/require"
)

const replicaSet = `
seeds = ["a:27017"]

[[servers]]
address = "a:27017"
kind = "primary"
set_name = "rs"
hosts = ["a:27017", "b:27017", "c:27017"]
tags = { dc = "ny" }

[[servers]]
address = "b:27017"
kind = "secondary"
set_name = "rs"
hosts = ["a:27017", "b:27017", "c:27017"]
tags = { dc = "ny" }

[[servers]]
address = "c:27017"
kind = "secondary"
set_name = "rs"
hosts = ["a:27017", "b:27017", "c:27017"]
tags = { dc = "sf" }
delay_ms = 40
`

func writeDeployment(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "deployment.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseDeployment(t *testing.T) {
	t.Parallel()

	f, err := parseDeployment([]byte(replicaSet))
	require.NoError(t, err)
	require.Equal(t, []string{"a:27017"}, f.Seeds)
	require.Len(t, f.Servers, 3)
	require.Equal(t, map[string]string{"dc": "sf"}, f.Servers[2].Tags)
	require.Equal(t, int64(40), f.Servers[2].DelayMS)

	_, err = parseDeployment([]byte(`seeds = [`))
	require.Error(t, err)

	_, err = parseDeployment([]byte(`seeds = ["a"]`))
	require.Error(t, err)

	_, err = parseDeployment([]byte("[[servers]]\nkind = \"standalone\""))
	require.Error(t, err)
}

func TestServerSpec_node(t *testing.T) {
	t.Parallel()

	now := time.Now()

	node, err := serverSpec{Address: "a", Kind: "Mongos"}.node(now)
	require.NoError(t, err)
	require.Equal(t, "isdbgrid", node.Info.Msg)

	node, err = serverSpec{Address: "a", Kind: "secondary", SetName: "rs", LagMS: 1500}.node(now)
	require.NoError(t, err)
	require.True(t, node.Info.Secondary)
	require.Equal(t, now.Add(-1500*time.Millisecond), node.Info.LastWriteTime)

	node, err = serverSpec{Address: "a", Kind: "down"}.node(now)
	require.NoError(t, err)
	require.Error(t, node.ProbeErr)

	_, err = serverSpec{Address: "a", Kind: "primary"}.node(now)
	require.Error(t, err)

	_, err = serverSpec{Address: "a", Kind: "leader"}.node(now)
	require.Error(t, err)
}

func TestParseTagSet(t *testing.T) {
	t.Parallel()

	set, err := parseTagSet("dc:ny,rack:1")
	require.NoError(t, err)
	require.Equal(t, tag.NewTagSet("dc", "ny", "rack", "1"), set)

	set, err = parseTagSet("")
	require.NoError(t, err)
	require.Empty(t, set)

	_, err = parseTagSet("dc")
	require.Error(t, err)
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cli := &CLI{Deployment: writeDeployment(t, replicaSet), Timeout: time.Second, out: &out}

	require.NoError(t, (&describeCmd{}).Run(context.Background(), cli))

	var v topologyView
	require.NoError(t, json.Unmarshal(out.Bytes(), &v))
	require.Equal(t, "ReplicaSetWithPrimary", v.Kind)
	require.Len(t, v.Members, 3)
	require.Equal(t, "a:27017", v.Members[0].Address)
	require.Equal(t, "RSPrimary", v.Members[0].Kind)
	require.Equal(t, map[string]string{"dc": "ny"}, v.Members[0].Tags)
}

func TestSelect(t *testing.T) {
	t.Parallel()

	path := writeDeployment(t, replicaSet)

	tests := []struct {
		name     string
		cmd      selectCmd
		eligible []string
	}{
		{"primary", selectCmd{Mode: "primary", LocalThreshold: 15 * time.Millisecond}, []string{"a:27017"}},
		{"write", selectCmd{Write: true, LocalThreshold: 15 * time.Millisecond}, []string{"a:27017"}},
		{"secondary in sf", selectCmd{Mode: "secondary", Tags: []string{"dc:sf"}, LocalThreshold: -1}, []string{"c:27017"}},
		{"secondary falls back", selectCmd{Mode: "secondary", Tags: []string{"dc:la", ""}, LocalThreshold: -1}, []string{"b:27017", "c:27017"}},
		{"nearest", selectCmd{Mode: "nearest", LocalThreshold: 15 * time.Millisecond}, []string{"a:27017", "b:27017"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			cli := &CLI{Deployment: path, Timeout: time.Second, out: &out}

			require.NoError(t, tt.cmd.Run(context.Background(), cli))

			var v topologyView
			require.NoError(t, json.Unmarshal(out.Bytes(), &v))
			require.ElementsMatch(t, tt.eligible, v.Eligible)
			require.Contains(t, tt.eligible, v.Picked)
		})
	}
}

func TestSelect_uri(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cli := &CLI{
		Deployment: writeDeployment(t, replicaSet),
		URI:        "mongodb://b:27017/?readPreference=secondary&connect=direct",
		Timeout:    time.Second,
		out:        &out,
	}

	require.NoError(t, (&selectCmd{Mode: "secondary", Tags: []string{""}, LocalThreshold: -1}).Run(context.Background(), cli))

	var v topologyView
	require.NoError(t, json.Unmarshal(out.Bytes(), &v))
	require.Len(t, v.Members, 1)
	require.Equal(t, []string{addr.MustParse("b").String()}, v.Eligible)
	require.True(t, v.SlaveOK)
	require.Equal(t, map[string]interface{}{
		"mode": "secondary",
		"tags": []interface{}{map[string]interface{}{}},
	}, v.ReadPreference)
}

func TestSelect_invalid_mode(t *testing.T) {
	t.Parallel()

	cli := &CLI{Deployment: writeDeployment(t, replicaSet), Timeout: time.Second}
	require.Error(t, (&selectCmd{Mode: "fastest"}).Run(context.Background(), cli))
}
