package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRTTTracker(t *testing.T) {
	t.Parallel()

	t.Run("first sample is the average", func(t *testing.T) {
		r := newRTTTracker(DefaultHeartbeatInterval)

		_, set := r.getRTT()
		require.False(t, set)

		r.addSample(10 * time.Millisecond)
		avg, set := r.getRTT()
		require.True(t, set)
		require.Equal(t, 10*time.Millisecond, avg)
	})
	t.Run("later samples are weighted", func(t *testing.T) {
		r := newRTTTracker(DefaultHeartbeatInterval)

		r.addSample(10 * time.Millisecond)
		r.addSample(20 * time.Millisecond)
		avg, _ := r.getRTT()
		require.InDelta(t, float64(12*time.Millisecond), float64(avg), float64(time.Microsecond))
	})
	t.Run("percentile needs enough samples", func(t *testing.T) {
		r := newRTTTracker(DefaultHeartbeatInterval)

		for i := 0; i < minSamples-1; i++ {
			r.addSample(5 * time.Millisecond)
		}
		require.Zero(t, r.getRTT90())

		r.addSample(5 * time.Millisecond)
		require.Equal(t, 5*time.Millisecond, r.getRTT90())
	})
	t.Run("reset", func(t *testing.T) {
		r := newRTTTracker(DefaultHeartbeatInterval)

		for i := 0; i < minSamples; i++ {
			r.addSample(5 * time.Millisecond)
		}
		r.reset()

		_, set := r.getRTT()
		require.False(t, set)
		require.Zero(t, r.getRTT90())
		r.addSample(7 * time.Millisecond)
		avg, set := r.getRTT()
		require.True(t, set)
		require.Equal(t, 7*time.Millisecond, avg)
	})
	t.Run("window size", func(t *testing.T) {
		require.Len(t, newRTTTracker(time.Hour).samples, minSamples)
		require.Len(t, newRTTTracker(time.Millisecond).samples, maxSamples)
		require.Len(t, newRTTTracker(10*time.Second).samples, 30)
		require.Len(t, newRTTTracker(0).samples, minSamples)
	})
}
