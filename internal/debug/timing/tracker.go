package timing

import (
	"sort"
	"sync"
	"time"
)

// Span is an in-flight measurement returned by StartTiming.
type Span struct {
	Operation string
	StartTime time.Time
}

// Stat summarizes all measurements of one operation.
type Stat struct {
	Operation string
	Count     int
	Total     time.Duration
	Max       time.Duration
}

func (s Stat) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Tracker accumulates durations per operation. It is safe for concurrent
// use, so one Tracker can serve every pipeline run in a batch.
type Tracker struct {
	timings map[string][]time.Duration
	mu      sync.RWMutex
	enabled bool
	now     func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		timings: make(map[string][]time.Duration),
		enabled: true,
		now:     time.Now,
	}
}

func (tt *Tracker) SetEnabled(enabled bool) {
	tt.mu.Lock()
	tt.enabled = enabled
	tt.mu.Unlock()
}

func (tt *Tracker) StartTiming(operation string) Span {
	return Span{Operation: operation, StartTime: tt.now()}
}

// EndTiming records the span and returns its duration.
func (tt *Tracker) EndTiming(span Span) time.Duration {
	duration := tt.now().Sub(span.StartTime)

	tt.mu.Lock()
	defer tt.mu.Unlock()
	if !tt.enabled {
		return duration
	}
	tt.timings[span.Operation] = append(tt.timings[span.Operation], duration)

	return duration
}

func (tt *Tracker) GetTimings(operation string) []time.Duration {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	timings := tt.timings[operation]
	if timings == nil {
		return nil
	}

	result := make([]time.Duration, len(timings))
	copy(result, timings)
	return result
}

// Summary returns one Stat per operation, sorted by operation name.
func (tt *Tracker) Summary() []Stat {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	stats := make([]Stat, 0, len(tt.timings))
	for operation, timings := range tt.timings {
		stat := Stat{Operation: operation, Count: len(timings)}
		for _, d := range timings {
			stat.Total += d
			if d > stat.Max {
				stat.Max = d
			}
		}
		stats = append(stats, stat)
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].Operation < stats[j].Operation })
	return stats
}

func (tt *Tracker) Reset() {
	tt.mu.Lock()
	tt.timings = make(map[string][]time.Duration)
	tt.mu.Unlock()
}
