// Package addr parses and canonicalizes the host:port identifiers used to
// name servers in a deployment.
package addr

import (
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/idna"
)

// DefaultPort is the port assumed when an address omits one.
const DefaultPort uint16 = 27017

// hostProfile maps hostnames the way a resolver would, but does not insist on
// STD3 rules so that names like "db_1.internal" remain valid.
var hostProfile = idna.New(
	idna.MapForLookup(),
	idna.StrictDomainName(false),
	idna.Transitional(false),
)

// Addr is a canonicalized network address of a server. It can be either an IP
// address or a DNS name. Two Addrs are equal iff they name the same host and port.
type Addr struct {
	Host string
	Port uint16
}

// FormatError is returned when a string cannot be parsed as an address.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return "invalid address " + strconv.Quote(e.Input) + ": " + e.Reason
}

// Parse parses raw as a host[:port] pair and canonicalizes it. IPv6 literals
// must be enclosed in brackets when a port is present.
func Parse(raw string) (Addr, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Addr{}, &FormatError{Input: raw, Reason: "empty address"}
	}

	host, portStr, err := splitHostPort(s)
	if err != nil {
		return Addr{}, &FormatError{Input: raw, Reason: err.Error()}
	}

	port := DefaultPort
	if portStr != "" {
		p, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return Addr{}, &FormatError{Input: raw, Reason: "port must be a number between 1 and 65535"}
		}
		if p == 0 {
			return Addr{}, &FormatError{Input: raw, Reason: "port must be a number between 1 and 65535"}
		}
		port = uint16(p)
	}

	host, err = canonicalHost(host)
	if err != nil {
		return Addr{}, &FormatError{Input: raw, Reason: err.Error()}
	}

	return Addr{Host: host, Port: port}, nil
}

// MustParse is like Parse but panics when raw is malformed.
func MustParse(raw string) Addr {
	a, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseAll parses every entry in raw, stopping at the first malformed one.
func ParseAll(raw ...string) ([]Addr, error) {
	out := make([]Addr, 0, len(raw))
	for _, r := range raw {
		a, err := Parse(r)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// String is the canonical form of the address, e.g. localhost:27017,
// 1.2.3.4:27017 or [::1]:27017.
func (a Addr) String() string {
	return net.JoinHostPort(a.Host, strconv.FormatUint(uint64(a.Port), 10))
}

// Network is the network protocol for this address.
func (a Addr) Network() string { return "tcp" }

// IsZero reports whether a is the zero Addr.
func (a Addr) IsZero() bool {
	return a.Host == "" && a.Port == 0
}

func splitHostPort(s string) (string, string, error) {
	if strings.HasPrefix(s, "[") {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return "", "", errors.New("missing ']' in address")
		}
		host := s[1:end]
		rest := s[end+1:]
		switch {
		case rest == "":
			return host, "", nil
		case strings.HasPrefix(rest, ":") && len(rest) > 1:
			return host, rest[1:], nil
		default:
			return "", "", errors.New("unexpected characters after ']'")
		}
	}

	switch strings.Count(s, ":") {
	case 0:
		return s, "", nil
	case 1:
		i := strings.IndexByte(s, ':')
		if i == len(s)-1 {
			return "", "", errors.New("missing port after ':'")
		}
		return s[:i], s[i+1:], nil
	default:
		// a bare IPv6 literal without a port
		if net.ParseIP(s) != nil {
			return s, "", nil
		}
		return "", "", errors.New("too many colons in address")
	}
}

func canonicalHost(host string) (string, error) {
	if host == "" {
		return "", errors.New("missing host")
	}

	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}

	if strings.ContainsAny(host, " /[]") {
		return "", errors.Errorf("invalid host %q", host)
	}

	mapped, err := hostProfile.ToASCII(strings.TrimSuffix(host, "."))
	if err != nil {
		return "", errors.Wrapf(err, "invalid host %q", host)
	}

	return mapped, nil
}
