// Command topologysim runs the topology monitor against a simulated
// deployment described in a TOML file and prints what it sees as JSON.
package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/ikmak/mongo-topology/cluster"
	"github.com/ikmak/mongo-topology/connstring"
	"github.com/ikmak/mongo-topology/description"
	"github.com/ikmak/mongo-topology/internal/logger"
	"github.com/ikmak/mongo-topology/readpref"
	"github.com/ikmak/mongo-topology/server"
	"github.com/ikmak/mongo-topology/serverselector"
	"github.com/ikmak/mongo-topology/tag"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/pretty"
)

const (
	settleDelay    = 20 * time.Millisecond
	settleAttempts = 10
)

// CLI is the root command.
type CLI struct {
	Deployment string        `short:"d" required:"" type:"existingfile" env:"TOPOLOGYSIM_DEPLOYMENT" help:"Deployment file (TOML)."`
	URI        string        `env:"TOPOLOGYSIM_URI" help:"Connection string; its hosts replace the seeds of the deployment file."`
	LogLevel   string        `enum:"off,info,debug" default:"off" env:"TOPOLOGYSIM_LOG_LEVEL" help:"Topology log level (off, info, debug)."`
	Timeout    time.Duration `default:"2s" help:"Server selection timeout."`
	Color      bool          `help:"Colorize the JSON output."`

	Describe describeCmd `cmd:"" help:"Probe every member and print the topology."`
	Select   selectCmd   `cmd:"" help:"Select the servers eligible for a read or write."`

	out io.Writer `kong:"-"`
}

type describeCmd struct{}

func (cmd *describeCmd) Run(ctx context.Context, cli *CLI) error {
	c, err := cli.open(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	return cli.print(newTopologyView(c, nil, nil))
}

type selectCmd struct {
	Mode           string        `arg:"" optional:"" default:"primary" help:"Read preference mode."`
	Tags           []string      `sep:"none" help:"Tag set as name:value pairs separated by commas. Repeat for fallbacks."`
	MaxStaleness   time.Duration `help:"Maximum replication lag of a secondary."`
	LocalThreshold time.Duration `default:"15ms" help:"Latency window."`
	Write          bool          `help:"Select for a write instead of a read."`
}

func (cmd *selectCmd) Run(ctx context.Context, cli *CLI) error {
	selector, rp, err := cmd.selector()
	if err != nil {
		return err
	}

	c, err := cli.open(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	picked, err := c.SelectServer(ctx, selector)
	if err != nil {
		return err
	}
	eligible, err := c.Select(selector)
	if err != nil {
		return err
	}

	v := newTopologyView(c, eligible, picked)
	if rp != nil {
		v.ReadPreference = rp.ToMongos()
		v.SlaveOK = rp.Mode().SlaveOK()
	}
	return cli.print(v)
}

// selector returns the selector for the command and, for reads, the read
// preference it was built from.
func (cmd *selectCmd) selector() (description.ServerSelector, *readpref.ReadPref, error) {
	if cmd.Write {
		return serverselector.ForWrite(cmd.LocalThreshold), nil, nil
	}

	mode, err := readpref.ModeFromString(cmd.Mode)
	if err != nil {
		return nil, nil, err
	}

	var opts []readpref.Option
	if len(cmd.Tags) > 0 {
		sets := make([]tag.Set, 0, len(cmd.Tags))
		for _, raw := range cmd.Tags {
			set, err := parseTagSet(raw)
			if err != nil {
				return nil, nil, err
			}
			sets = append(sets, set)
		}
		opts = append(opts, readpref.WithTagSets(sets...))
	}
	if cmd.MaxStaleness > 0 {
		opts = append(opts, readpref.WithMaxStaleness(cmd.MaxStaleness))
	}

	rp, err := readpref.New(mode, opts...)
	if err != nil {
		return nil, nil, err
	}
	return serverselector.ForReadPref(rp, cmd.LocalThreshold), rp, nil
}

func parseTagSet(raw string) (tag.Set, error) {
	set := tag.Set{}
	if raw == "" {
		return set, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		nv := strings.SplitN(pair, ":", 2)
		if len(nv) != 2 || nv[0] == "" {
			return nil, errors.Errorf("invalid tag %q, expected name:value", pair)
		}
		set = append(set, tag.Tag{Name: nv[0], Value: nv[1]})
	}
	return set, nil
}

// open builds the simulated deployment and a cluster on top of it, then
// waits for discovery to settle.
func (cli *CLI) open(ctx context.Context) (*cluster.Cluster, error) {
	f, err := loadDeployment(cli.Deployment)
	if err != nil {
		return nil, err
	}
	d, err := f.build(time.Now())
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.DebugLevel)

	opts := []cluster.Option{
		cluster.WithServerOptions(
			server.WithConnectionDialer(d.Dialer()),
			server.WithHealthProbe(server.HealthProbeFunc(d.HealthProbe)),
			server.WithShutdownGracePeriod(100*time.Millisecond),
		),
		cluster.WithServerSelectionTimeout(cli.Timeout),
		cluster.WithLogSink(logger.WrapLogrus(log), map[server.LogComponent]server.LogLevel{
			server.LogComponentAll: logLevel(cli.LogLevel),
		}),
	}

	seeds := f.Seeds
	uri := f.URI
	if cli.URI != "" {
		uri = cli.URI
	}
	if uri != "" {
		cs, err := connstring.Parse(uri)
		if err != nil {
			return nil, err
		}
		opts = append(opts, cluster.WithConnString(cs))
		seeds = nil
	} else if len(seeds) == 0 {
		for _, s := range f.Servers {
			seeds = append(seeds, s.Address)
		}
	}

	c, err := cluster.New(seeds, opts...)
	if err != nil {
		return nil, err
	}

	if err := settle(ctx, c); err != nil {
		_ = c.Close()
		return nil, err
	}

	log.WithField("members", len(c.Addresses())).Debug("deployment settled")
	return c, nil
}

// settle connects the cluster until discovery stops adding members. Reported
// hosts are applied asynchronously, so each round waits a little.
func settle(ctx context.Context, c *cluster.Cluster) error {
	for i := 0; i < settleAttempts; i++ {
		before := len(c.Addresses())
		if err := c.Connect(ctx); err != nil {
			return err
		}

		select {
		case <-time.After(settleDelay):
		case <-ctx.Done():
			return ctx.Err()
		}

		if len(c.Addresses()) == before {
			return nil
		}
	}
	return nil
}

func logLevel(s string) server.LogLevel {
	switch s {
	case "info":
		return server.LogLevelInfo
	case "debug":
		return server.LogLevelDebug
	}
	return server.LogLevelOff
}

type memberView struct {
	Address      string            `json:"address"`
	Kind         string            `json:"kind"`
	SetName      string            `json:"setName,omitempty"`
	AverageRTTMS float64           `json:"averageRTTMS"`
	Tags         map[string]string `json:"tags,omitempty"`
	Error        string            `json:"error,omitempty"`
}

type topologyView struct {
	ID       string       `json:"id"`
	Kind     string       `json:"kind"`
	Members  []memberView `json:"members"`
	Eligible []string     `json:"eligible,omitempty"`
	Picked   string       `json:"picked,omitempty"`

	// ReadPreference is the document a mongos would be sent.
	ReadPreference map[string]interface{} `json:"readPreference,omitempty"`
	SlaveOK        bool                   `json:"slaveOk,omitempty"`
}

func newTopologyView(c *cluster.Cluster, eligible []*server.Server, picked *server.Server) topologyView {
	topo := c.Desc()
	v := topologyView{ID: c.ID().String(), Kind: topo.Kind.String()}

	for _, m := range topo.Servers {
		mv := memberView{
			Address: m.Addr.String(),
			Kind:    m.Kind.String(),
			SetName: m.SetName,
			Tags:    m.Tags.Map(),
		}
		if m.AverageRTTSet {
			mv.AverageRTTMS = float64(m.AverageRTT) / float64(time.Millisecond)
		}
		if m.LastError != nil {
			mv.Error = m.LastError.Error()
		}
		if len(mv.Tags) == 0 {
			mv.Tags = nil
		}
		v.Members = append(v.Members, mv)
	}

	for _, s := range eligible {
		v.Eligible = append(v.Eligible, s.Addr().String())
	}
	if picked != nil {
		v.Picked = picked.Addr().String()
	}

	return v
}

func (cli *CLI) print(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	data = pretty.Pretty(data)
	if cli.Color {
		data = pretty.Color(data, nil)
	}

	out := cli.out
	if out == nil {
		out = os.Stdout
	}
	_, err = out.Write(data)
	return err
}

func main() {
	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Fatal("loading .env")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("topologysim"),
		kong.Description("Monitor a simulated deployment and select servers from it."),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.UsageOnError(),
	)
	if err != nil {
		logrus.WithError(err).Fatal("building command line parser")
	}

	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	err = kctx.Run(cli)
	parser.FatalIfErrorf(err)
}
