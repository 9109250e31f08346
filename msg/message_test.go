package msg_test

import (
	"testing"

	. "github.com/ikmak/mongo-topology/msg"
	"github.com/stretchr/testify/require"
)

func TestNextRequestID(t *testing.T) {
	t.Parallel()

	a := NewCommand("admin", nil)
	b := NewCommand("admin", nil)
	require.Greater(t, b.RequestID(), a.RequestID())
	require.GreaterOrEqual(t, CurrentRequestID(), b.RequestID())
}

func TestLastReplyable(t *testing.T) {
	t.Parallel()

	_, ok := LastReplyable(nil)
	require.False(t, ok)

	first := NewCommand("db", []byte("a"))
	last := &Command{ReqID: 7, NoReply: true}

	req, ok := LastReplyable([]Request{first, last})
	require.False(t, ok)
	require.Equal(t, int32(7), req.RequestID())

	req, ok = LastReplyable([]Request{last, first})
	require.True(t, ok)
	require.Equal(t, first.RequestID(), req.RequestID())
}
