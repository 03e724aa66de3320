// Package store keeps the session's measurement history: an unbounded
// append log for export and statistics, and a bounded per-device
// recent-history cache for live display.
package store

import (
	"sync"
	"time"

	"codeberg.org/benchkit/dmmlogd/internal/measurement"
)

const DefaultMaxPoints = 1000

// Store is safe for concurrent use. Readers always receive copies; a
// concurrent Record can never corrupt or truncate an in-flight read.
type Store struct {
	mu        sync.RWMutex
	log       []measurement.Measurement
	cache     map[string][]measurement.Point
	maxPoints int
	now       func() time.Time
}

func New(maxPoints int) *Store {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}

	return &Store{
		cache:     make(map[string][]measurement.Point),
		maxPoints: maxPoints,
		now:       time.Now,
	}
}

// Record appends m to the log and, for OK records, to the device's
// recent-history cache, evicting the oldest point at capacity.
func (s *Store) Record(m measurement.Measurement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log = append(s.log, m)

	if m.Status != measurement.StatusOK {
		return
	}

	points := append(s.cache[m.DeviceName], measurement.Point{
		Timestamp: m.Timestamp,
		Value:     m.Value,
	})
	if len(points) > s.maxPoints {
		points = points[len(points)-s.maxPoints:]
	}
	s.cache[m.DeviceName] = points
}

// Query returns log entries in arrival order, optionally filtered to
// one device and truncated to the most recent limit entries.
func (s *Store) Query(device string, limit int) []measurement.Measurement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []measurement.Measurement
	if device == "" {
		out = make([]measurement.Measurement, len(s.log))
		copy(out, s.log)
	} else {
		for _, m := range s.log {
			if m.DeviceName == device {
				out = append(out, m)
			}
		}
	}

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}

	return out
}

// LatestPerDevice returns the most recently appended record for each
// device seen in the log.
func (s *Store) LatestPerDevice() map[string]measurement.Measurement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]measurement.Measurement)
	for i := len(s.log) - 1; i >= 0; i-- {
		m := s.log[i]
		if _, ok := latest[m.DeviceName]; !ok {
			latest[m.DeviceName] = m
		}
	}

	return latest
}

// RecentSeries returns the device's cached points, chronologically
// ordered. A positive window drops points older than now-window; zero
// returns the full cache. The cache itself is never mutated by reads.
func (s *Store) RecentSeries(device string, window time.Duration) []measurement.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := s.cache[device]
	if window > 0 {
		cutoff := s.now().Add(-window)
		start := len(points)
		for i, p := range points {
			if !p.Timestamp.Before(cutoff) {
				start = i
				break
			}
		}
		points = points[start:]
	}

	out := make([]measurement.Point, len(points))
	copy(out, points)

	return out
}

// Clear empties the log and every cache when device is "", or removes
// only that device's log entries and cache when given. Each call is
// one critical section, never partial.
func (s *Store) Clear(device string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if device == "" {
		removed := len(s.log)
		s.log = nil
		s.cache = make(map[string][]measurement.Point)
		return removed
	}

	kept := s.log[:0:0]
	removed := 0
	for _, m := range s.log {
		if m.DeviceName == device {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	s.log = kept
	delete(s.cache, device)

	return removed
}

// Len returns the number of log entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.log)
}
