package progress

import (
	"time"

	"github.com/shipforge/orchestrator/internal/app/domain/alert"
)

// BottleneckKind enumerates the three signals the tracker predicts for a
// running Step, per §4.3.
type BottleneckKind string

const (
	BottleneckNone            BottleneckKind = ""
	BottleneckSlowProcessing  BottleneckKind = "slow_processing"
	BottleneckHighErrorRate   BottleneckKind = "high_error_rate"
	BottleneckStuck           BottleneckKind = "stuck"
)

// Bottleneck is one detected signal for a running step.
type Bottleneck struct {
	Kind     BottleneckKind
	Severity alert.Severity
}

// DetectBottleneck evaluates the three conditions in §4.3 against one
// running step's elapsed time and item counters, in priority order: stuck
// (most severe) first, then high error rate, then slow processing. Returns
// ok=false when no condition matches.
//
// expectedItems = (elapsed_minutes) * 10, the baseline throughput the slow
// processing check compares against.
func DetectBottleneck(elapsed time.Duration, processed, failed int) (Bottleneck, bool) {
	if elapsed > 30*time.Minute && processed == 0 {
		return Bottleneck{Kind: BottleneckStuck, Severity: alert.SeverityCritical}, true
	}
	if processed > 10 && float64(failed)/float64(processed) > 0.2 {
		return Bottleneck{Kind: BottleneckHighErrorRate, Severity: alert.SeverityHigh}, true
	}
	expected := elapsed.Minutes() * 10
	if elapsed > 5*time.Minute && float64(processed) < 0.5*expected {
		return Bottleneck{Kind: BottleneckSlowProcessing, Severity: alert.SeverityMedium}, true
	}
	return Bottleneck{}, false
}

// CheckBottleneck evaluates DetectBottleneck for a (execution, step) pair
// and reports whether this is a *new* signal worth alerting on: it is
// deduped against the last kind emitted for that step so a condition that
// persists across ticks alerts exactly once, re-alerting only when the
// condition changes (including clearing, which resets the dedupe state).
func (t *Tracker) CheckBottleneck(executionID, stepName string, elapsed time.Duration, processed, failed int) (Bottleneck, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.executions[executionID]
	if !ok {
		return Bottleneck{}, false
	}
	if st.totalItems == 0 {
		return Bottleneck{}, false
	}

	b, found := DetectBottleneck(elapsed, processed, failed)
	if st.lastBottle == nil {
		st.lastBottle = make(map[string]BottleneckKind)
	}
	prev := st.lastBottle[stepName]

	if !found {
		st.lastBottle[stepName] = BottleneckNone
		return Bottleneck{}, false
	}
	if prev == b.Kind {
		return Bottleneck{}, false
	}
	st.lastBottle[stepName] = b.Kind
	return b, true
}
