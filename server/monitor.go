package server

import (
	"context"
	"time"
)

// minHeartbeatInterval rate limits probes, including requested immediate
// checks.
const minHeartbeatInterval = 500 * time.Millisecond

// monitor probes the server right away and then every heartbeat interval, or
// sooner when an immediate check is requested, until the server is closed.
// Probes never overlap: the next one is scheduled only after the previous one
// returned.
func (s *Server) monitor() {
	defer close(s.monitorDone)

	heartbeatTimer := time.NewTimer(0)
	rateLimitTimer := time.NewTimer(0)
	defer heartbeatTimer.Stop()
	defer rateLimitTimer.Stop()

	for {
		select {
		case <-heartbeatTimer.C:
		case <-s.checkNow:
		case <-s.done:
			return
		}

		// wait if the last probe was less than minHeartbeatInterval ago
		select {
		case <-rateLimitTimer.C:
		case <-s.done:
			return
		}

		// the probe context is not tied to done so that Close can let an
		// in-flight probe finish within the grace period
		_, _ = s.Refresh(context.Background())

		rateLimitTimer.Reset(minHeartbeatInterval)
		if !heartbeatTimer.Stop() {
			select {
			case <-heartbeatTimer.C:
			default:
			}
		}
		heartbeatTimer.Reset(s.cfg.heartbeatInterval)
	}
}
