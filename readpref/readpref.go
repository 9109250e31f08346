// Package readpref describes which members of a deployment an operation may
// be routed to.
package readpref

import (
	"bytes"
	"fmt"
	"time"

	"github.com/ikmak/mongo-topology/tag"
	"github.com/pkg/errors"
)

// ErrInvalidReadPref is returned when tags or a max staleness are combined
// with PrimaryMode.
var ErrInvalidReadPref = errors.New("can not specify tags or max staleness with mode primary")

// Primary constructs a read preference with a PrimaryMode.
func Primary() *ReadPref {
	return &ReadPref{mode: PrimaryMode}
}

// PrimaryPreferred constructs a read preference with a PrimaryPreferredMode.
func PrimaryPreferred(opts ...Option) *ReadPref {
	return must(PrimaryPreferredMode, opts...)
}

// SecondaryPreferred constructs a read preference with a SecondaryPreferredMode.
func SecondaryPreferred(opts ...Option) *ReadPref {
	return must(SecondaryPreferredMode, opts...)
}

// Secondary constructs a read preference with a SecondaryMode.
func Secondary(opts ...Option) *ReadPref {
	return must(SecondaryMode, opts...)
}

// Nearest constructs a read preference with a NearestMode.
func Nearest(opts ...Option) *ReadPref {
	return must(NearestMode, opts...)
}

// New creates a read preference with the given mode, validating the options.
func New(mode Mode, opts ...Option) (*ReadPref, error) {
	if !mode.IsValid() {
		return nil, errors.Errorf("invalid read preference mode %d", mode)
	}

	rp := &ReadPref{mode: mode}

	for _, opt := range opts {
		if err := opt(rp); err != nil {
			return nil, err
		}
	}

	if !mode.TagsAllowed() && len(rp.tagSets) > 0 {
		return nil, ErrInvalidReadPref
	}
	if mode == PrimaryMode && rp.maxStalenessSet {
		return nil, ErrInvalidReadPref
	}

	return rp, nil
}

func must(mode Mode, opts ...Option) *ReadPref {
	rp, err := New(mode, opts...)
	if err != nil {
		panic(err)
	}
	return rp
}

// ReadPref determines which servers are considered suitable for read operations.
type ReadPref struct {
	maxStaleness    time.Duration
	maxStalenessSet bool
	mode            Mode
	tagSets         []tag.Set
}

// MaxStaleness is the maximum amount of time to allow
// a server to be considered eligible for selection. The
// second return value indicates if this value has been set.
func (r *ReadPref) MaxStaleness() (time.Duration, bool) {
	return r.maxStaleness, r.maxStalenessSet
}

// Mode indicates the mode of the read preference.
func (r *ReadPref) Mode() Mode {
	return r.mode
}

// TagSets are multiple tag sets indicating
// which servers should be considered.
func (r *ReadPref) TagSets() []tag.Set {
	return r.tagSets
}

// ToMongos returns the read preference document sent to a mongos router:
// the mode, then the tag sets and the max staleness in seconds when present.
func (r *ReadPref) ToMongos() map[string]interface{} {
	doc := map[string]interface{}{"mode": r.mode.String()}
	if len(r.tagSets) > 0 {
		tags := make([]map[string]string, 0, len(r.tagSets))
		for _, ts := range r.tagSets {
			tags = append(tags, ts.Map())
		}
		doc["tags"] = tags
	}
	if r.maxStalenessSet {
		doc["maxStalenessSeconds"] = int64(r.maxStaleness / time.Second)
	}
	return doc
}

// String returns a human-readable description of the read preference.
func (r *ReadPref) String() string {
	var b bytes.Buffer
	b.WriteString(r.mode.String())
	delim := "("
	if r.maxStalenessSet {
		fmt.Fprintf(&b, "%smaxStaleness=%v", delim, r.maxStaleness)
		delim = " "
	}
	for _, ts := range r.tagSets {
		fmt.Fprintf(&b, "%stagSet=%v", delim, ts.Map())
		delim = " "
	}
	if delim != "(" {
		b.WriteString(")")
	}
	return b.String()
}
