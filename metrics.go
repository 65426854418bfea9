package main

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Stats holds in-process request counters served by /metrics.
type Stats struct {
	mu       sync.Mutex
	started  time.Time
	requests uint64
	byStatus map[int]uint64
}

func NewStats() *Stats {
	return &Stats{started: time.Now(), byStatus: make(map[int]uint64)}
}

func (s *Stats) record(status int) {
	s.mu.Lock()
	s.requests++
	s.byStatus[status]++
	s.mu.Unlock()
}

func (s *Stats) snapshot() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	byStatus := make(map[string]uint64, len(s.byStatus))
	for code, n := range s.byStatus {
		byStatus[strconv.Itoa(code)] = n
	}
	return map[string]interface{}{
		"uptimeSeconds": int64(time.Since(s.started) / time.Second),
		"requests":      s.requests,
		"byStatus":      byStatus,
	}
}

func (a *App) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.stats.snapshot())
}
