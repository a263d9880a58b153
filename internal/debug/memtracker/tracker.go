// Package memtracker records the lifetime of every safe.Mat so that leaked
// image buffers can be reported after a run.
package memtracker

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type AllocationInfo struct {
	ID          uint64
	Size        int64
	Tag         string
	AllocatedAt time.Time
}

type MemoryStats struct {
	TotalAllocated   int64
	TotalDeallocated int64
	CurrentlyActive  int64
	AllocationCount  int64
	// UntrackedReleases counts buffers closed that were created before the
	// tracker was installed.
	UntrackedReleases int64
}

// Tracker implements safe.AllocationTracker. It is safe for concurrent use.
type Tracker struct {
	allocations  map[uint64]AllocationInfo
	mu           sync.RWMutex
	enabled      atomic.Bool
	now          func() time.Time
	totalAlloc   int64
	totalDealloc int64
	allocCount   int64
	untracked    int64
}

func NewTracker() *Tracker {
	mt := &Tracker{
		allocations: make(map[uint64]AllocationInfo),
		now:         time.Now,
	}
	mt.enabled.Store(true)
	return mt
}

func (mt *Tracker) TrackAllocation(id uint64, size int64, tag string) {
	if !mt.enabled.Load() {
		return
	}

	atomic.AddInt64(&mt.totalAlloc, size)
	atomic.AddInt64(&mt.allocCount, 1)

	mt.mu.Lock()
	mt.allocations[id] = AllocationInfo{ID: id, Size: size, Tag: tag, AllocatedAt: mt.now()}
	mt.mu.Unlock()
}

func (mt *Tracker) TrackDeallocation(id uint64, tag string) {
	if !mt.enabled.Load() {
		return
	}

	mt.mu.Lock()
	info, exists := mt.allocations[id]
	if exists {
		delete(mt.allocations, id)
	}
	mt.mu.Unlock()

	if exists {
		atomic.AddInt64(&mt.totalDealloc, info.Size)
	} else {
		atomic.AddInt64(&mt.untracked, 1)
	}
}

func (mt *Tracker) GetStats() MemoryStats {
	mt.mu.RLock()
	active := int64(len(mt.allocations))
	mt.mu.RUnlock()

	return MemoryStats{
		TotalAllocated:    atomic.LoadInt64(&mt.totalAlloc),
		TotalDeallocated:  atomic.LoadInt64(&mt.totalDealloc),
		CurrentlyActive:   active,
		AllocationCount:   atomic.LoadInt64(&mt.allocCount),
		UntrackedReleases: atomic.LoadInt64(&mt.untracked),
	}
}

func (mt *Tracker) SetEnabled(enabled bool) {
	mt.enabled.Store(enabled)
}

// Active returns the buffers still open, oldest first.
func (mt *Tracker) Active() []AllocationInfo {
	mt.mu.RLock()
	out := make([]AllocationInfo, 0, len(mt.allocations))
	for _, info := range mt.allocations {
		out = append(out, info)
	}
	mt.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DetectLeaks returns open buffers allocated more than olderThan ago.
func (mt *Tracker) DetectLeaks(olderThan time.Duration) []AllocationInfo {
	threshold := mt.now().Add(-olderThan)
	var leaks []AllocationInfo
	for _, info := range mt.Active() {
		if info.AllocatedAt.Before(threshold) {
			leaks = append(leaks, info)
		}
	}
	return leaks
}

func (mt *Tracker) GetAllocationsByTag(tag string) []AllocationInfo {
	var result []AllocationInfo
	for _, info := range mt.Active() {
		if info.Tag == tag {
			result = append(result, info)
		}
	}
	return result
}
