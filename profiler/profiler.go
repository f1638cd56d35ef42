// Package profiler - per-stage timing for kernel pipelines.
package profiler

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// TimeTracker tracks timing statistics for one stage.
type TimeTracker struct {
	name      string
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// Stats is a snapshot of a stage's timings.
type Stats struct {
	Name  string        `json:"name"`
	Count int64         `json:"count"`
	Total time.Duration `json:"total"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Mean  time.Duration `json:"mean"`
}

// StageTimer records how long each named stage of a pipeline takes.
//
// A nil *StageTimer is valid and records nothing, so callers can time stages
// unconditionally and only pay for it when profiling is enabled.
type StageTimer struct {
	mu     sync.RWMutex
	stages map[string]*TimeTracker
	order  []string
}

// NewStageTimer creates an empty timer.
func NewStageTimer() *StageTimer {
	return &StageTimer{stages: make(map[string]*TimeTracker)}
}

// Track begins timing a stage.
//
// Arguments:
// - name: The name of the stage to track
//
// Returns:
// - A function to call when the stage completes
//
// @example
//
//	done := timer.Track("nms")
//	runStage()
//	done()
func (s *StageTimer) Track(name string) func() {
	if s == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		s.Record(name, time.Since(start))
	}
}

// Record adds one duration sample to a stage.
func (s *StageTimer) Record(name string, duration time.Duration) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tracker, exists := s.stages[name]
	if !exists {
		tracker = &TimeTracker{
			name:    name,
			minTime: duration,
			maxTime: duration,
		}
		s.stages[name] = tracker
		s.order = append(s.order, name)
	}

	tracker.totalTime += duration
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// Stats returns a snapshot of every stage, in the order stages were first seen.
func (s *StageTimer) Stats() []Stats {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Stats, 0, len(s.order))
	for _, name := range s.order {
		tr := s.stages[name]
		out = append(out, Stats{
			Name:  tr.name,
			Count: tr.count,
			Total: tr.totalTime,
			Min:   tr.minTime,
			Max:   tr.maxTime,
			Mean:  tr.totalTime / time.Duration(tr.count),
		})
	}
	return out
}

// Reset drops every recorded sample.
func (s *StageTimer) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages = make(map[string]*TimeTracker)
	s.order = nil
}

// String renders a one-line summary of mean stage times.
func (s *StageTimer) String() string {
	stats := s.Stats()
	parts := make([]string, 0, len(stats))
	for _, st := range stats {
		parts = append(parts, fmt.Sprintf("%s=%v", st.Name, st.Mean))
	}
	return strings.Join(parts, " ")
}
