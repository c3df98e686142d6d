package api

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// submitLimiter bounds manual job submissions per lane and globally
// over a sliding one-minute window.
type submitLimiter struct {
	mu         sync.Mutex
	perLaneMax int
	globalMax  int
	window     time.Duration
	lanes      map[string][]int64
	global     []int64
}

func newSubmitLimiterFromEnv() *submitLimiter {
	perLane := getenvIntRL("RULES_SUBMIT_RATE_LIMIT_PER_MIN", 120)
	global := getenvIntRL("RULES_SUBMIT_GLOBAL_RATE_LIMIT_PER_MIN", 300)
	if perLane < 0 {
		perLane = 0
	}
	if global < 0 {
		global = 0
	}
	return &submitLimiter{
		perLaneMax: perLane,
		globalMax:  global,
		window:     time.Minute,
		lanes:      map[string][]int64{},
		global:     make([]int64, 0, 256),
	}
}

func (l *submitLimiter) allow(lane string, now time.Time) bool {
	if l == nil || (l.perLaneMax == 0 && l.globalMax == 0) {
		return true
	}
	ts := now.UTC().Unix()
	cutoff := ts - int64(l.window.Seconds())
	l.mu.Lock()
	defer l.mu.Unlock()

	l.global = trimCutoff(l.global, cutoff)
	if l.globalMax > 0 && len(l.global) >= l.globalMax {
		return false
	}

	history := trimCutoff(l.lanes[lane], cutoff)
	if l.perLaneMax > 0 && len(history) >= l.perLaneMax {
		l.lanes[lane] = history
		return false
	}

	history = append(history, ts)
	l.lanes[lane] = history
	l.global = append(l.global, ts)
	return true
}

func trimCutoff(in []int64, cutoff int64) []int64 {
	if len(in) == 0 {
		return in
	}
	i := 0
	for i < len(in) && in[i] <= cutoff {
		i++
	}
	if i == 0 {
		return in
	}
	out := make([]int64, len(in)-i)
	copy(out, in[i:])
	return out
}

func getenvIntRL(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
