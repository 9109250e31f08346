package addr_test

import (
	"testing"

	. "github.com/ikmak/mongo-topology/addr"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		host string
		port uint16
		str  string
	}{
		{"localhost:27017", "localhost", 27017, "localhost:27017"},
		{"localhost", "localhost", 27017, "localhost:27017"},
		{"LocalHost:27018", "localhost", 27018, "localhost:27018"},
		{" db1.example.com:1 ", "db1.example.com", 1, "db1.example.com:1"},
		{"db_1.internal:27019", "db_1.internal", 27019, "db_1.internal:27019"},
		{"1.2.3.4:5", "1.2.3.4", 5, "1.2.3.4:5"},
		{"[::1]:27017", "::1", 27017, "[::1]:27017"},
		{"[::1]", "::1", 27017, "[::1]:27017"},
		{"::1", "::1", 27017, "[::1]:27017"},
		{"example.com.:80", "example.com", 80, "example.com:80"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			a, err := Parse(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.host, a.Host)
			require.Equal(t, tt.port, a.Port)
			require.Equal(t, tt.str, a.String())
		})
	}
}

func TestParse_invalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"",
		"   ",
		":27017",
		"localhost:",
		"localhost:0",
		"localhost:65536",
		"localhost:abc",
		"[::1",
		"[::1]x",
		"a:b:c",
		"bad host:1",
	} {
		in := in
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			require.Error(t, err)

			var fe *FormatError
			require.True(t, errors.As(err, &fe))
			require.Equal(t, in, fe.Input)
		})
	}
}

func TestParse_round_trip(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"localhost", "A.B.C:1234", "[fe80::1]:9", "10.0.0.1", "db_1"} {
		first, err := Parse(in)
		require.NoError(t, err)

		second, err := Parse(first.String())
		require.NoError(t, err)
		require.Equal(t, first, second)
	}
}

func TestParseAll(t *testing.T) {
	t.Parallel()

	addrs, err := ParseAll("a:1", "b:2")
	require.NoError(t, err)
	require.Equal(t, []Addr{{Host: "a", Port: 1}, {Host: "b", Port: 2}}, addrs)

	_, err = ParseAll("a:1", "b:x")
	require.Error(t, err)
}

func TestMustParse_panics(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() { MustParse("a:b:c") })
	require.Equal(t, Addr{Host: "a", Port: 1}, MustParse("a:1"))
}
