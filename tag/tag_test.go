package tag_test

import (
	"testing"

	. "github.com/ikmak/mongo-topology/tag"
	"github.com/stretchr/testify/require"
)

func TestTagSets_NewTagSet(t *testing.T) {
	t.Parallel()

	ts := NewTagSet("a", "1")

	require.True(t, ts.Contains("a", "1"))
	require.False(t, ts.Contains("1", "a"))
	require.False(t, ts.Contains("A", "1"))
	require.False(t, ts.Contains("a", "10"))
}

func TestTagSets_NewTagSet_odd_arguments(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() { NewTagSet("a") })
}

func TestTagSets_NewTagSetFromMap(t *testing.T) {
	t.Parallel()

	ts := NewTagSetFromMap(map[string]string{"b": "2", "a": "1"})

	require.Equal(t, Set{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}}, ts)
	require.True(t, ts.Contains("a", "1"))
	require.False(t, ts.Contains("1", "a"))
	require.False(t, ts.Contains("A", "1"))
	require.False(t, ts.Contains("a", "10"))
}

func TestTagSets_NewTagSetsFromMaps(t *testing.T) {
	t.Parallel()

	tss := NewTagSetsFromMaps([]map[string]string{{"a": "1"}, {"b": "1"}, {}})

	require.Len(t, tss, 3)

	ts := tss[0]
	require.True(t, ts.Contains("a", "1"))
	require.False(t, ts.Contains("a", "10"))

	ts = tss[1]
	require.True(t, ts.Contains("b", "1"))
	require.False(t, ts.Contains("B", "1"))

	require.Empty(t, tss[2])
}

func TestTagSets_ContainsAll(t *testing.T) {
	t.Parallel()

	ts := NewTagSet("a", "1", "b", "2")

	test := NewTagSet("a", "1")
	require.True(t, ts.ContainsAll(test))
	test = NewTagSet("a", "1", "b", "2")
	require.True(t, ts.ContainsAll(test))
	require.True(t, ts.ContainsAll(nil))

	test = NewTagSet("a", "2", "b", "1")
	require.False(t, ts.ContainsAll(test))
	test = NewTagSet("a", "1", "b", "1")
	require.False(t, ts.ContainsAll(test))
	test = NewTagSet("a", "2", "b", "2")
	require.False(t, ts.ContainsAll(test))
}

func TestTagSets_Map(t *testing.T) {
	t.Parallel()

	require.Equal(t, map[string]string{"a": "1", "b": "2"}, NewTagSet("a", "1", "b", "2").Map())
}
