package description

import (
	"fmt"
	"strings"
	"time"

	"github.com/ikmak/mongo-topology/addr"
	"github.com/ikmak/mongo-topology/tag"
	"github.com/pkg/errors"
)

// UnsetRTT is the unset value for a round trip time.
const UnsetRTT = -1 * time.Millisecond

// ServerInfo is the status a health probe reports for a server. Its shape
// follows the reply to the ismaster command.
type ServerInfo struct {
	OK            bool
	IsMaster      bool
	Secondary     bool
	Hidden        bool
	ArbiterOnly   bool
	IsReplicaSet  bool
	Msg           string
	SetName       string
	SetVersion    uint32
	Me            string
	Hosts         []string
	Passives      []string
	Arbiters      []string
	Tags          map[string]string
	LastWriteTime time.Time
}

// Server is an immutable snapshot of a server's observed state. A refresh
// produces a new Server value rather than modifying an existing one.
type Server struct {
	Addr addr.Addr

	AverageRTT        time.Duration
	AverageRTTSet     bool
	RTT90             time.Duration
	CanonicalAddr     addr.Addr
	HeartbeatInterval time.Duration
	Kind              Kind
	LastError         error
	LastUpdateTime    time.Time
	LastWriteTime     time.Time
	Members           []addr.Addr
	SetName           string
	SetVersion        uint32
	Tags              tag.Set
}

// NewDefaultServer creates a description for a server that has never been
// checked.
func NewDefaultServer(a addr.Addr) Server {
	return Server{Addr: a, CanonicalAddr: a}
}

// NewServerFromError creates a description for a server whose most recent
// check failed.
func NewServerFromError(a addr.Addr, err error) Server {
	return Server{
		Addr:           a,
		CanonicalAddr:  a,
		LastError:      err,
		LastUpdateTime: time.Now().UTC(),
	}
}

// BuildServer builds a description from the status a health probe returned
// and the round trip time measured for it. Host entries that cannot be parsed
// are left out of Members.
func BuildServer(a addr.Addr, info *ServerInfo, rtt time.Duration) Server {
	s := Server{
		Addr:           a,
		CanonicalAddr:  a,
		LastUpdateTime: time.Now().UTC(),
		LastWriteTime:  info.LastWriteTime,
		SetName:        info.SetName,
		SetVersion:     info.SetVersion,
		Tags:           tag.NewTagSetFromMap(info.Tags),
	}
	s.SetAverageRTT(rtt)

	if info.Me != "" {
		if me, err := addr.Parse(info.Me); err == nil {
			s.CanonicalAddr = me
		}
	}

	if !info.OK {
		s.LastError = errors.New("not ok")
		return s
	}

	seen := make(map[addr.Addr]struct{})
	for _, hosts := range [][]string{info.Hosts, info.Passives, info.Arbiters} {
		for _, host := range hosts {
			member, err := addr.Parse(host)
			if err != nil {
				continue
			}
			if _, dup := seen[member]; dup {
				continue
			}
			seen[member] = struct{}{}
			s.Members = append(s.Members, member)
		}
	}

	s.Kind = Standalone

	if info.IsReplicaSet {
		s.Kind = RSGhost
	} else if info.SetName != "" {
		if info.IsMaster {
			s.Kind = RSPrimary
		} else if info.Hidden {
			s.Kind = Hidden
		} else if info.Secondary {
			s.Kind = RSSecondary
		} else if info.ArbiterOnly {
			s.Kind = RSArbiter
		} else {
			s.Kind = RSMember
		}
	} else if info.Msg == "isdbgrid" {
		s.Kind = Mongos
	}

	return s
}

// SetAverageRTT sets the average round trip time.
func (s *Server) SetAverageRTT(rtt time.Duration) {
	s.AverageRTT = rtt
	if rtt == UnsetRTT {
		s.AverageRTT = 0
		s.AverageRTTSet = false
	} else {
		s.AverageRTTSet = true
	}
}

// IsPrimary reports whether the server accepts writes: a replica set
// primary, a standalone server or a mongos router.
func (s Server) IsPrimary() bool {
	switch s.Kind {
	case RSPrimary, Standalone, Mongos:
		return true
	}
	return false
}

// IsSecondary reports whether the server is a visible replica set secondary.
func (s Server) IsSecondary() bool {
	return s.Kind == RSSecondary
}

// IsHidden reports whether the server is a hidden replica set member.
func (s Server) IsHidden() bool {
	return s.Kind == Hidden
}

// Reachable reports whether the most recent check of the server succeeded.
func (s Server) Reachable() bool {
	return s.Kind != Unknown && s.LastError == nil
}

// IsReadable reports whether operations may be routed to the server.
func (s Server) IsReadable() bool {
	return (s.IsPrimary() || s.IsSecondary()) && !s.IsHidden() && s.Reachable()
}

// Equal compares two descriptions, ignoring the update time and round trip
// measurements.
func (s Server) Equal(other Server) bool {
	if s.Addr != other.Addr || s.CanonicalAddr != other.CanonicalAddr || s.Kind != other.Kind ||
		s.SetName != other.SetName || s.SetVersion != other.SetVersion {
		return false
	}

	if (s.LastError == nil) != (other.LastError == nil) {
		return false
	}
	if s.LastError != nil && s.LastError.Error() != other.LastError.Error() {
		return false
	}

	if len(s.Tags) != len(other.Tags) || !s.Tags.ContainsAll(other.Tags) {
		return false
	}

	return len(DiffHosts(s.Members, other.Members).Added) == 0 &&
		len(DiffHosts(other.Members, s.Members).Added) == 0
}

// String implements the fmt.Stringer interface.
func (s Server) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Addr: %s, Type: %s", s.Addr, s.Kind)
	if len(s.Tags) > 0 {
		fmt.Fprintf(&b, ", Tag sets: %v", s.Tags.Map())
	}
	if s.AverageRTTSet {
		fmt.Fprintf(&b, ", Average RTT: %s", s.AverageRTT)
	}
	if s.LastError != nil {
		fmt.Fprintf(&b, ", Last error: %s", s.LastError)
	}
	return b.String()
}
