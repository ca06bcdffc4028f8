// Package progress implements the Progress Tracker: it turns a stream of
// (completed_items, timestamp) observations into processing rate, ETA with
// confidence, and bottleneck signals, per execution.
package progress

import (
	"math"
	"sync"
	"time"

	core "github.com/shipforge/orchestrator/internal/app/core/service"
)

// Point is one progress observation.
type Point struct {
	CompletedItems int
	At             time.Time
}

// rateSample is one computed rate, tagged with the stage that produced it.
type rateSample struct {
	RatePerMinute float64
	Stage         string
	At            time.Time
}

// Summary is the point-in-time derived view of one execution's progress.
type Summary struct {
	ProcessingRate       float64 // items/min
	EstimatedMinutesLeft float64
	EstimatedCompletion  time.Time
	Confidence           float64
	PointCount           int
}

// executionState is the per-execution ring-buffer state. Owned by a single
// Tracker; external readers only ever see a Summary snapshot taken under
// the Tracker's lock, never the buffers themselves.
type executionState struct {
	startTime  time.Time
	totalItems int
	points     []Point
	rates      []rateSample

	estimate   Summary
	lastBottle map[string]BottleneckKind // stage name -> last emitted kind
}

// Tracker holds per-execution progress state.
type Tracker struct {
	mu             sync.Mutex
	executions     map[string]*executionState
	historyPoints  int
	ratePoints     int
	rateWindow     int
	maxAge         time.Duration
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithHistoryPoints overrides the default 100-point progress ring buffer.
func WithHistoryPoints(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.historyPoints = n
		}
	}
}

// WithRatePoints overrides the default 20-sample rate ring buffer.
func WithRatePoints(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.ratePoints = n
		}
	}
}

// New constructs a Progress Tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		executions:    make(map[string]*executionState),
		historyPoints: 100,
		ratePoints:    20,
		rateWindow:    5,
		maxAge:        24 * time.Hour,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartTracking begins tracking a new execution with the given total item
// count. A zero-item execution is tracked but will never emit a progress
// point or bottleneck alert.
func (t *Tracker) StartTracking(executionID string, totalItems int, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.executions[executionID] = &executionState{
		startTime:  now,
		totalItems: totalItems,
		lastBottle: make(map[string]BottleneckKind),
	}
}

// StopTracking drops all state for executionID.
func (t *Tracker) StopTracking(executionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.executions, executionID)
}

// Sweep purges tracked executions whose start time is older than 24h.
func (t *Tracker) Sweep(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, st := range t.executions {
		if now.Sub(st.startTime) > t.maxAge {
			delete(t.executions, id)
		}
	}
}

// Observe records one (completed_items, timestamp) point for executionID
// and recomputes rate, ETA, and confidence. stage tags the rate sample for
// bottleneck/provenance purposes. Observing on an execution that was never
// started via StartTracking is a no-op.
func (t *Tracker) Observe(executionID string, completedItems int, stage string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.executions[executionID]
	if !ok {
		return
	}
	if st.totalItems == 0 {
		return
	}

	st.points = append(st.points, Point{CompletedItems: completedItems, At: now})
	if len(st.points) > t.historyPoints {
		st.points = st.points[len(st.points)-t.historyPoints:]
	}

	if rate, ok := computeRate(st.points, t.rateWindow); ok {
		st.rates = append(st.rates, rateSample{RatePerMinute: rate, Stage: stage, At: now})
		if len(st.rates) > t.ratePoints {
			st.rates = st.rates[len(st.rates)-t.ratePoints:]
		}
	}

	st.estimate = computeEstimate(st, now)
}

// computeRate uses up to the last `window` progress points: rate =
// Δitems/Δseconds * 60, clamped to zero when negative. Returns ok=false
// when there are not yet at least two points to difference, or the
// resulting rate is not positive (per §4.3, only positive samples enter
// the rate ring buffer).
func computeRate(points []Point, window int) (float64, bool) {
	if len(points) < 2 {
		return 0, false
	}
	start := 0
	if len(points) > window {
		start = len(points) - window
	}
	first := points[start]
	last := points[len(points)-1]

	deltaItems := last.CompletedItems - first.CompletedItems
	deltaSeconds := last.At.Sub(first.At).Seconds()
	if deltaSeconds <= 0 {
		return 0, false
	}
	rate := float64(deltaItems) / deltaSeconds * 60
	if rate < 0 {
		rate = 0
	}
	if rate <= 0 {
		return 0, false
	}
	return rate, true
}

// computeEstimate derives the weighted-average ETA and confidence from the
// rate ring buffer, per §4.3.
func computeEstimate(st *executionState, now time.Time) Summary {
	if len(st.rates) == 0 {
		return Summary{PointCount: len(st.points)}
	}

	n := len(st.rates)
	var weightedSum, weightTotal float64
	for i, r := range st.rates {
		weight := float64(i + 1) // oldest weight=1, newest weight=n
		weightedSum += r.RatePerMinute * weight
		weightTotal += weight
	}
	weightedRate := weightedSum / weightTotal

	var lastCompleted int
	if len(st.points) > 0 {
		lastCompleted = st.points[len(st.points)-1].CompletedItems
	}
	remaining := st.totalItems - lastCompleted
	if remaining < 0 {
		remaining = 0
	}

	var etaMinutes float64
	var completion time.Time
	if weightedRate > 0 {
		etaMinutes = float64(remaining) / weightedRate
		completion = now.Add(time.Duration(etaMinutes * float64(time.Minute)))
	}

	mean := mean(st.rates)
	stdDev := stddev(st.rates, mean)
	cv := 0.0
	if mean > 0 {
		cv = stdDev / mean
	}
	confidence := math.Max(0, 1-cv)
	densityBonus := math.Min(0.2, float64(n)/50)
	confidence = math.Min(1, confidence+densityBonus)
	confidence = math.Max(0, confidence)

	return Summary{
		ProcessingRate:       weightedRate,
		EstimatedMinutesLeft: etaMinutes,
		EstimatedCompletion:  completion,
		Confidence:           confidence,
		PointCount:           len(st.points),
	}
}

func mean(samples []rateSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s.RatePerMinute
	}
	return sum / float64(len(samples))
}

func stddev(samples []rateSample, mean float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSq float64
	for _, s := range samples {
		d := s.RatePerMinute - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}

// Summary returns the latest derived estimate for an execution. The zero
// value is returned for an unknown or zero-item execution.
func (t *Tracker) Summary(executionID string) Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.executions[executionID]
	if !ok {
		return Summary{}
	}
	return st.estimate
}

// Descriptor advertises the Progress Tracker's placement and capabilities.
func (t *Tracker) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:   "progress-tracker",
		Domain: "progress-tracking",
		Layer:  core.LayerEngine,
	}.WithCapabilities("rate-estimation", "eta-confidence", "bottleneck-detection")
}
