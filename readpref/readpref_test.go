package readpref_test

import (
	"testing"
	"time"

	. "github.com/ikmak/mongo-topology/readpref"
	"github.com/ikmak/mongo-topology/tag"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	rp, err := New(SecondaryMode, WithTags("dc", "ny"), WithMaxStaleness(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, SecondaryMode, rp.Mode())
	require.Equal(t, []tag.Set{tag.NewTagSet("dc", "ny")}, rp.TagSets())

	ms, set := rp.MaxStaleness()
	require.True(t, set)
	require.Equal(t, 2*time.Minute, ms)

	_, err = New(PrimaryMode, WithTags("dc", "ny"))
	require.True(t, errors.Is(err, ErrInvalidReadPref))

	_, err = New(PrimaryMode, WithMaxStaleness(time.Minute))
	require.True(t, errors.Is(err, ErrInvalidReadPref))

	_, err = New(NearestMode, WithTags("odd"))
	require.Error(t, err)

	_, err = New(Mode(42))
	require.Error(t, err)
}

func TestWithTagSets_last_wins(t *testing.T) {
	t.Parallel()

	rp := Nearest(WithTags("a", "1"), WithTagSets(tag.NewTagSet("b", "2"), tag.Set{}))
	require.Equal(t, []tag.Set{tag.NewTagSet("b", "2"), {}}, rp.TagSets())
}

func TestModeFromString(t *testing.T) {
	t.Parallel()

	for _, m := range []Mode{PrimaryMode, PrimaryPreferredMode, SecondaryMode, SecondaryPreferredMode, NearestMode} {
		parsed, err := ModeFromString(m.String())
		require.NoError(t, err)
		require.Equal(t, m, parsed)
	}

	m, err := ModeFromString("SECONDARYPREFERRED")
	require.NoError(t, err)
	require.Equal(t, SecondaryPreferredMode, m)

	_, err = ModeFromString("closest")
	require.Error(t, err)
}

func TestReadPref_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "primary", Primary().String())
	require.Equal(t,
		"secondary(maxStaleness=1m30s tagSet=map[dc:ny])",
		Secondary(WithMaxStaleness(90*time.Second), WithTags("dc", "ny")).String(),
	)
}

func TestMode_SlaveOK_and_TagsAllowed(t *testing.T) {
	t.Parallel()

	require.False(t, PrimaryMode.SlaveOK())
	require.False(t, PrimaryMode.TagsAllowed())

	for _, m := range []Mode{PrimaryPreferredMode, SecondaryMode, SecondaryPreferredMode, NearestMode} {
		require.True(t, m.SlaveOK(), m.String())
		require.True(t, m.TagsAllowed(), m.String())
	}
}

func TestReadPref_ToMongos(t *testing.T) {
	t.Parallel()

	require.Equal(t, map[string]interface{}{"mode": "primary"}, Primary().ToMongos())
	require.Equal(t, map[string]interface{}{"mode": "nearest"}, Nearest().ToMongos())

	rp := Nearest(WithTagSets(tag.NewTagSet("dc", "ny", "rack", "1"), tag.Set{}))
	require.Equal(t, map[string]interface{}{
		"mode": "nearest",
		"tags": []map[string]string{{"dc": "ny", "rack": "1"}, {}},
	}, rp.ToMongos())

	rp = SecondaryPreferred(WithMaxStaleness(2 * time.Minute))
	require.Equal(t, map[string]interface{}{
		"mode":                "secondaryPreferred",
		"maxStalenessSeconds": int64(120),
	}, rp.ToMongos())
}
