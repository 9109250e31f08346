// Package connstring parses mongodb:// connection strings into seeds and
// topology options.
package connstring

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ikmak/mongo-topology/addr"
	"github.com/ikmak/mongo-topology/readpref"
	"github.com/ikmak/mongo-topology/tag"
	"github.com/pkg/errors"
)

const scheme = "mongodb://"

// ConnectMode says whether members reported by the seeds are discovered.
type ConnectMode uint8

// ConnectMode constants.
const (
	AutoConnect ConnectMode = iota
	SingleConnect
)

// ConnString is a parsed connection string.
type ConnString struct {
	Original string
	Hosts    []string
	Database string

	AppName                string
	Connect                ConnectMode
	ConnectTimeout         time.Duration
	HeartbeatInterval      time.Duration
	LocalThreshold         time.Duration
	LocalThresholdSet      bool
	MaxPoolSize            uint64
	MaxPoolSizeSet         bool
	MaxStaleness           time.Duration
	MaxStalenessSet        bool
	ReadPreference         string
	ReadPreferenceTagSets  []map[string]string
	ReplicaSet             string
	ServerSelectionTimeout time.Duration

	// UnknownOptions holds options that were not recognized, keyed by their
	// lower-cased name.
	UnknownOptions map[string][]string
}

// Parse parses uri.
func Parse(uri string) (ConnString, error) {
	p := parser{ConnString: ConnString{Original: uri}}
	if err := p.parse(uri); err != nil {
		return ConnString{}, errors.Wrap(err, "error parsing uri")
	}
	return p.ConnString, nil
}

func (cs ConnString) String() string {
	return cs.Original
}

// ReadPref builds the read preference described by the readPreference,
// readPreferenceTags and maxStalenessSeconds options. It returns nil when
// none of them were given.
func (cs ConnString) ReadPref() (*readpref.ReadPref, error) {
	if cs.ReadPreference == "" && len(cs.ReadPreferenceTagSets) == 0 && !cs.MaxStalenessSet {
		return nil, nil
	}

	mode := readpref.PrimaryMode
	if cs.ReadPreference != "" {
		var err error
		if mode, err = readpref.ModeFromString(cs.ReadPreference); err != nil {
			return nil, err
		}
	}

	var opts []readpref.Option
	if len(cs.ReadPreferenceTagSets) > 0 {
		opts = append(opts, readpref.WithTagSets(tag.NewTagSetsFromMaps(cs.ReadPreferenceTagSets)...))
	}
	if cs.MaxStalenessSet {
		opts = append(opts, readpref.WithMaxStaleness(cs.MaxStaleness))
	}

	return readpref.New(mode, opts...)
}

type parser struct {
	ConnString
}

func (p *parser) parse(original string) error {
	if !strings.HasPrefix(original, scheme) {
		return errors.Errorf("scheme must be %q", strings.TrimSuffix(scheme, "://"))
	}
	uri := original[len(scheme):]

	hosts := uri
	rest := ""
	if idx := strings.IndexAny(uri, "/?"); idx != -1 {
		hosts, rest = uri[:idx], uri[idx:]
	}

	if strings.Contains(hosts, "@") {
		return errors.New("credentials are not supported")
	}

	for _, host := range strings.Split(hosts, ",") {
		unescaped, err := url.PathUnescape(host)
		if err != nil {
			return errors.Wrapf(err, "invalid host %q", host)
		}
		if _, err := addr.Parse(unescaped); err != nil {
			return err
		}
		p.Hosts = append(p.Hosts, unescaped)
	}

	if strings.HasPrefix(rest, "/") {
		rest = rest[1:]
		db := rest
		if idx := strings.IndexByte(rest, '?'); idx != -1 {
			db, rest = rest[:idx], rest[idx:]
		} else {
			rest = ""
		}
		var err error
		if p.Database, err = url.PathUnescape(db); err != nil {
			return errors.Wrapf(err, "invalid database %q", db)
		}
	}

	if rest == "" {
		return nil
	}
	if !strings.HasPrefix(rest, "?") {
		return errors.New("must have a ? separator between path and query")
	}

	for _, pair := range strings.FieldsFunc(rest[1:], func(r rune) bool { return r == '&' || r == ';' }) {
		if err := p.addOption(pair); err != nil {
			return err
		}
	}

	return nil
}

func (p *parser) addOption(pair string) error {
	kv := strings.SplitN(pair, "=", 2)
	if len(kv) != 2 || kv[0] == "" {
		return errors.Errorf("invalid option %q", pair)
	}

	key, err := url.QueryUnescape(kv[0])
	if err != nil {
		return errors.Wrapf(err, "invalid option key %q", kv[0])
	}
	value, err := url.QueryUnescape(kv[1])
	if err != nil {
		return errors.Wrapf(err, "invalid option value %q", kv[1])
	}

	lowerKey := strings.ToLower(key)
	switch lowerKey {
	case "appname":
		p.AppName = value
	case "connect":
		switch strings.ToLower(value) {
		case "automatic":
			p.Connect = AutoConnect
		case "direct":
			p.Connect = SingleConnect
		default:
			return errors.Errorf("invalid value for %s: %s", key, value)
		}
	case "connecttimeoutms":
		p.ConnectTimeout, err = parseMS(key, value)
	case "heartbeatfrequencyms":
		p.HeartbeatInterval, err = parseMS(key, value)
	case "localthresholdms":
		p.LocalThreshold, err = parseMS(key, value)
		p.LocalThresholdSet = err == nil
	case "maxpoolsize":
		p.MaxPoolSize, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Errorf("invalid value for %s: %s", key, value)
		}
		p.MaxPoolSizeSet = true
	case "maxstalenessseconds":
		n, convErr := strconv.Atoi(value)
		if convErr != nil || n < -1 {
			return errors.Errorf("invalid value for %s: %s", key, value)
		}
		// -1 explicitly means no maximum
		if n >= 0 {
			p.MaxStaleness = time.Duration(n) * time.Second
			p.MaxStalenessSet = true
		}
	case "readpreference":
		p.ReadPreference = value
	case "readpreferencetags":
		tags := make(map[string]string)
		if value != "" {
			for _, t := range strings.Split(value, ",") {
				nv := strings.SplitN(t, ":", 2)
				if len(nv) != 2 || nv[0] == "" {
					return errors.Errorf("invalid value for %s: %s", key, value)
				}
				tags[nv[0]] = nv[1]
			}
		}
		p.ReadPreferenceTagSets = append(p.ReadPreferenceTagSets, tags)
	case "replicaset":
		p.ReplicaSet = value
	case "serverselectiontimeoutms":
		p.ServerSelectionTimeout, err = parseMS(key, value)
	default:
		if p.UnknownOptions == nil {
			p.UnknownOptions = make(map[string][]string)
		}
		p.UnknownOptions[lowerKey] = append(p.UnknownOptions[lowerKey], value)
	}

	return err
}

func parseMS(key, value string) (time.Duration, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, errors.Errorf("invalid value for %s: %s", key, value)
	}
	return time.Duration(n) * time.Millisecond, nil
}
