package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shipforge/orchestrator/internal/app/platform"
)

// snapshot is the recovery artefact written at every stage boundary and
// progress-tick interval, keyed by execution id (§4.2).
type snapshot struct {
	StepIndex              int       `json:"step_index"`
	TemplateName           string    `json:"template_name"`
	LastProgressItems      int       `json:"last_progress_items"`
	LastProgressAt         time.Time `json:"last_progress_at"`
	PauseRequested         bool      `json:"pause_requested"`
	CancelRequested        bool      `json:"cancel_requested"`
}

const (
	snapshotTTL  = 7 * 24 * time.Hour
	itemCacheTTL = 7 * 24 * time.Hour
)

func (o *Orchestrator) putSnapshot(ctx context.Context, executionID string, s snapshot) {
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	_ = o.cache.Put(ctx, "execution_state:"+executionID, data, snapshotTTL)
}

func (o *Orchestrator) getSnapshot(ctx context.Context, executionID string) (snapshot, bool) {
	data, ok, err := o.cache.Get(ctx, "execution_state:"+executionID)
	if err != nil || !ok {
		return snapshot{}, false
	}
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return snapshot{}, false
	}
	return s, true
}

func (o *Orchestrator) putItems(ctx context.Context, executionID string, items []platform.Item) {
	data, err := json.Marshal(items)
	if err != nil {
		return
	}
	_ = o.cache.Put(ctx, "execution_items:"+executionID, data, itemCacheTTL)
}

func (o *Orchestrator) getItems(ctx context.Context, executionID string) ([]platform.Item, bool) {
	data, ok, err := o.cache.Get(ctx, "execution_items:"+executionID)
	if err != nil || !ok {
		return nil, false
	}
	var items []platform.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, false
	}
	return items, true
}

// snapshotThrottle decides whether a mid-stage snapshot write is due, per
// the "≥ 5s and ≥ 50 items since last write" cadence in §4.2.
type snapshotThrottle struct {
	lastAt    time.Time
	lastItems int
}

func (s *snapshotThrottle) due(now time.Time, itemsSoFar int) bool {
	if s.lastAt.IsZero() {
		return true
	}
	return now.Sub(s.lastAt) >= 5*time.Second && itemsSoFar-s.lastItems >= 50
}

func (s *snapshotThrottle) mark(now time.Time, itemsSoFar int) {
	s.lastAt = now
	s.lastItems = itemsSoFar
}
