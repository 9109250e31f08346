package readpref

import (
	"time"

	"github.com/ikmak/mongo-topology/tag"
	"github.com/pkg/errors"
)

// Option configures a read preference
type Option func(*ReadPref) error

// WithMaxStaleness sets the maximum staleness a
// server is allowed.
func WithMaxStaleness(ms time.Duration) Option {
	return func(rp *ReadPref) error {
		if ms < 0 {
			return errors.Errorf("max staleness must not be negative, got %s", ms)
		}
		rp.maxStaleness = ms
		rp.maxStalenessSet = true
		return nil
	}
}

// WithTags sets a single tag set used to match
// a server. The last call to WithTags or WithTagSets
// overrides all previous calls to either method.
func WithTags(tags ...string) Option {
	return func(rp *ReadPref) error {
		if len(tags)%2 != 0 {
			return errors.New("an even number of tags must be specified")
		}
		rp.tagSets = []tag.Set{tag.NewTagSet(tags...)}
		return nil
	}
}

// WithTagSets sets the tag sets used to match
// a server. The last call to WithTags or WithTagSets
// overrides all previous calls to either method.
func WithTagSets(tagSets ...tag.Set) Option {
	return func(rp *ReadPref) error {
		rp.tagSets = tagSets
		return nil
	}
}
