package dispatch

import (
	"sync"
	"time"
)

// Stats counts dispatched commands. Safe for concurrent use.
type Stats struct {
	mu       sync.Mutex
	total    int64
	failed   int64
	byMethod map[string]int64
	last     time.Time
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Total       int64            `json:"total"`
	Failed      int64            `json:"failed"`
	ByMethod    map[string]int64 `json:"by_method"`
	LastCommand *time.Time       `json:"last_command,omitempty"`
}

func newStats() *Stats {
	return &Stats{byMethod: make(map[string]int64)}
}

func (s *Stats) record(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if !r.OK {
		s.failed++
	}
	s.byMethod[MethodLabel(r.Method)]++
	s.last = r.At
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		Total:    s.total,
		Failed:   s.failed,
		ByMethod: make(map[string]int64, len(s.byMethod)),
	}
	for m, n := range s.byMethod {
		snap.ByMethod[m] = n
	}
	if !s.last.IsZero() {
		last := s.last
		snap.LastCommand = &last
	}
	return snap
}
