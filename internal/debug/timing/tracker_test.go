package timing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	current := time.Unix(0, 0)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(step)
		return current
	}
}

func TestTrackerRecordsDurations(t *testing.T) {
	tt := NewTracker()
	tt.now = fakeClock(10 * time.Millisecond)

	d := tt.EndTiming(tt.StartTiming("deskew"))
	assert.Equal(t, 10*time.Millisecond, d)
	tt.EndTiming(tt.StartTiming("deskew"))
	tt.EndTiming(tt.StartTiming("clahe_filter"))

	assert.Len(t, tt.GetTimings("deskew"), 2)
	assert.Nil(t, tt.GetTimings("missing"))

	summary := tt.Summary()
	require.Len(t, summary, 2)
	assert.Equal(t, "clahe_filter", summary[0].Operation)
	assert.Equal(t, "deskew", summary[1].Operation)
	assert.Equal(t, 2, summary[1].Count)
	assert.Equal(t, 20*time.Millisecond, summary[1].Total)
	assert.Equal(t, 10*time.Millisecond, summary[1].Mean())
}

func TestTrackerDisabled(t *testing.T) {
	tt := NewTracker()
	tt.SetEnabled(false)
	tt.EndTiming(tt.StartTiming("deskew"))
	assert.Empty(t, tt.Summary())
}

func TestTrackerConcurrentUse(t *testing.T) {
	tt := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tt.EndTiming(tt.StartTiming("median_filter"))
		}()
	}
	wg.Wait()
	assert.Len(t, tt.GetTimings("median_filter"), 8)

	tt.Reset()
	assert.Empty(t, tt.Summary())
	assert.Zero(t, Stat{}.Mean())
}
