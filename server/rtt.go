package server

import (
	"math"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
)

const (
	rttAlphaValue = 0.2
	minSamples    = 10
	maxSamples    = 500
	rttWindow     = 5 * time.Minute
)

// rttTracker keeps an exponentially weighted moving average of probe round
// trip times along with a window of raw samples for the 90th percentile.
type rttTracker struct {
	mu            sync.RWMutex // mu guards every field
	samples       []time.Duration
	offset        int
	rtt90         time.Duration
	averageRTT    time.Duration
	averageRTTSet bool
}

func newRTTTracker(interval time.Duration) *rttTracker {
	numSamples := minSamples
	if interval > 0 {
		numSamples = int(math.Max(minSamples, math.Min(maxSamples, float64(rttWindow/interval))))
	}

	return &rttTracker{
		samples: make([]time.Duration, numSamples),
	}
}

// reset forgets every sample. It is called when a probe fails.
func (r *rttTracker) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.samples {
		r.samples[i] = 0
	}
	r.offset = 0
	r.rtt90 = 0
	r.averageRTT = 0
	r.averageRTTSet = false
}

// addSample records rtt and updates the average.
func (r *rttTracker) addSample(rtt time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// zero samples are treated as empty slots
	if rtt <= 0 {
		rtt = time.Nanosecond
	}

	r.samples[r.offset] = rtt
	r.offset = (r.offset + 1) % len(r.samples)
	r.rtt90 = percentile(90.0, r.samples, minSamples)

	if !r.averageRTTSet {
		r.averageRTT = rtt
		r.averageRTTSet = true
		return
	}

	r.averageRTT = time.Duration(rttAlphaValue*float64(rtt) + (1-rttAlphaValue)*float64(r.averageRTT))
}

// getRTT returns the exponentially weighted moving average observed round-trip time.
func (r *rttTracker) getRTT() (time.Duration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.averageRTT, r.averageRTTSet
}

// getRTT90 returns the 90th percentile observed round-trip time over the window period.
func (r *rttTracker) getRTT90() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.rtt90
}

// percentile returns the specified percentile value of the slice of duration
// samples. Zero values are not considered samples and are ignored. If fewer
// than minSamples are found in the slice, percentile returns 0.
func percentile(perc float64, samples []time.Duration, minSamples int) time.Duration {
	floatSamples := make([]float64, 0, len(samples))
	for _, sample := range samples {
		if sample > 0 {
			floatSamples = append(floatSamples, float64(sample))
		}
	}
	if len(floatSamples) == 0 || len(floatSamples) < minSamples {
		return 0
	}

	p, err := stats.Percentile(floatSamples, perc)
	if err != nil {
		panic(errors.Wrapf(err, "server: error calculating %f percentile RTT for samples %v", perc, floatSamples))
	}
	return time.Duration(p)
}
