package solver

import (
	"math"
	"time"

	"github.com/samcharles93/convtune/internal/logger"
	"github.com/samcharles93/convtune/internal/perfconfig"
)

// DefaultHeartbeatInterval is how often a running search reports progress.
const DefaultHeartbeatInterval = 3 * time.Second

// heartbeat emits a progress line once per interval of wall time, with the
// best candidate seen within that window.
type heartbeat struct {
	log      logger.Logger
	interval time.Duration
	now      func() time.Time

	windowStart time.Time
	cumulative  time.Duration
	nWithin     int
	bestWithin  time.Duration
	nBest       int
	bestConfig  perfconfig.Any
}

func newHeartbeat(log logger.Logger, interval time.Duration, now func() time.Time) *heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	if now == nil {
		now = time.Now
	}
	return &heartbeat{log: log, interval: interval, now: now}
}

func (h *heartbeat) Start(cfg perfconfig.Any) {
	h.cumulative = 0
	h.bestConfig = cfg
	h.next()
}

func (h *heartbeat) next() {
	h.bestWithin = time.Duration(math.MaxInt64)
	h.nWithin = 0
	h.windowStart = h.now()
}

// Monitor records candidate nRecent and logs when the window has elapsed.
// It reports whether a line was emitted.
func (h *heartbeat) Monitor(failed bool, recent time.Duration, nRecent int, totalBest time.Duration, nFailed, nTotal int, cfg perfconfig.Any) bool {
	h.nWithin++
	if !failed && recent < h.bestWithin {
		h.bestWithin = recent
		h.nBest = nRecent
		h.bestConfig = cfg
	}
	elapsed := h.now().Sub(h.windowStart)
	if elapsed <= h.interval {
		return false
	}
	h.cumulative += elapsed
	var eta time.Duration
	if nRecent != 0 {
		eta = time.Duration(float64(nTotal-nRecent) * float64(h.cumulative) / float64(nRecent))
	}
	h.log.Warn("search progress",
		"attempted", nRecent,
		"failed", nFailed,
		"total", nTotal,
		"best", durationOrNone(totalBest),
		"window", h.nWithin,
		"window_best", durationOrNone(h.bestWithin),
		"window_best_index", h.nBest,
		"window_best_config", h.bestConfig.String(),
		"eta", eta.Round(time.Second),
	)
	h.next()
	return true
}

// durationOrNone hides the "nothing measured yet" sentinel in log lines.
func durationOrNone(d time.Duration) any {
	if d == time.Duration(math.MaxInt64) {
		return "none"
	}
	return d
}
