// Package tag defines the name/value pairs servers advertise and read
// preferences use to steer selection.
package tag

import "sort"

// Tag is a name/value pair.
type Tag struct {
	Name  string
	Value string
}

// Set is an ordered list of Tags.
type Set []Tag

// NewTagSet creates a new tag set by taking the entries in pairs.
func NewTagSet(tags ...string) Set {
	if len(tags)%2 != 0 {
		panic("tag.NewTagSet: argument count is odd")
	}

	set := make(Set, 0, len(tags)/2)
	for i := 0; i < len(tags); i += 2 {
		set = append(set, Tag{Name: tags[i], Value: tags[i+1]})
	}
	return set
}

// NewTagSetFromMap creates a new tag set from a map. The resulting set is
// ordered by tag name.
func NewTagSetFromMap(m map[string]string) Set {
	set := make(Set, 0, len(m))
	for k, v := range m {
		set = append(set, Tag{Name: k, Value: v})
	}
	sort.Slice(set, func(i, j int) bool { return set[i].Name < set[j].Name })

	return set
}

// NewTagSetsFromMaps creates new tag sets from maps.
func NewTagSetsFromMaps(maps []map[string]string) []Set {
	sets := make([]Set, 0, len(maps))
	for _, m := range maps {
		sets = append(sets, NewTagSetFromMap(m))
	}
	return sets
}

// Contains indicates whether the name/value pair
// exists in the tag set.
func (ts Set) Contains(name, value string) bool {
	for _, t := range ts {
		if t.Name == name && t.Value == value {
			return true
		}
	}

	return false
}

// ContainsAll indicates whether all the name/value pairs
// exist in the tag set.
func (ts Set) ContainsAll(other []Tag) bool {
	for _, ot := range other {
		if !ts.Contains(ot.Name, ot.Value) {
			return false
		}
	}

	return true
}

// Map returns the tag set as a map. Later duplicates win.
func (ts Set) Map() map[string]string {
	m := make(map[string]string, len(ts))
	for _, t := range ts {
		m[t.Name] = t.Value
	}
	return m
}
