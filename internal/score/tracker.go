package score

import (
	"sync"
	"time"

	"github.com/ppiankov/ranger/internal/model"
)

// DefaultWindow is how many recent observations of each kind a Tracker keeps
const DefaultWindow = 1000

// Tracker aggregates live traffic into PerformanceMetrics over a sliding window.
// Rates with no observations report as healthy (1 for ratios of good outcomes,
// 0 for error rate).
type Tracker struct {
	mu            sync.Mutex
	window        int
	durations     ring[time.Duration]
	failures      ring[bool]
	lookups       ring[bool]
	feedback      ring[bool]
	verifications ring[bool]
}

// NewTracker creates a tracker; window <= 0 uses DefaultWindow
func NewTracker(window int) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{window: window}
}

// RecordInteraction records one handled message or request
func (t *Tracker) RecordInteraction(d time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.durations.push(d, t.window)
	t.failures.push(err != nil, t.window)
}

// RecordLookup records whether a knowledge lookup found a record
func (t *Tracker) RecordLookup(hit bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lookups.push(hit, t.window)
}

// RecordFeedback records explicit user feedback
func (t *Tracker) RecordFeedback(positive bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.feedback.push(positive, t.window)
}

// RecordVerification records a verification outcome
func (t *Tracker) RecordVerification(verified bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.verifications.push(verified, t.window)
}

// Snapshot computes the current metrics
func (t *Tracker) Snapshot() model.PerformanceMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	pm := model.PerformanceMetrics{
		AccuracyRate:      ratio(t.verifications.items, 1),
		UserSatisfaction:  ratio(t.feedback.items, 1),
		KnowledgeCoverage: ratio(t.lookups.items, 1),
		ErrorRate:         ratio(t.failures.items, 0),
		Samples:           int64(len(t.durations.items)),
	}
	if n := len(t.durations.items); n > 0 {
		var total time.Duration
		for _, d := range t.durations.items {
			total += d
		}
		pm.ResponseTimeAvg = total.Seconds() / float64(n)
	}
	return pm
}

// ratio is the share of true values, or empty when there are none
func ratio(values []bool, empty float64) float64 {
	if len(values) == 0 {
		return empty
	}
	n := 0
	for _, v := range values {
		if v {
			n++
		}
	}
	return float64(n) / float64(len(values))
}

// ring keeps the last n pushed values
type ring[T any] struct {
	items []T
	next  int
}

func (r *ring[T]) push(v T, n int) {
	if len(r.items) < n {
		r.items = append(r.items, v)
		return
	}
	r.items[r.next] = v
	r.next = (r.next + 1) % n
}
