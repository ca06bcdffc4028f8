// Package memory is a thread-safe in-memory implementation of
// internal/app/storage.Store, used in development and in tests where a
// deterministic store matters more than durability.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	core "github.com/shipforge/orchestrator/internal/app/core/service"
	"github.com/shipforge/orchestrator/internal/app/domain/account"
	"github.com/shipforge/orchestrator/internal/app/domain/alert"
	"github.com/shipforge/orchestrator/internal/app/domain/batch"
	"github.com/shipforge/orchestrator/internal/app/domain/execution"
	"github.com/shipforge/orchestrator/internal/app/domain/itemresult"
	"github.com/shipforge/orchestrator/internal/app/domain/platformregistration"
	"github.com/shipforge/orchestrator/internal/app/domain/step"
	"github.com/shipforge/orchestrator/internal/app/domain/template"
	"github.com/shipforge/orchestrator/internal/app/storage"
)

// Store is a thread-safe in-memory persistence layer implementing
// storage.Store. It is intended for tests and local development.
type Store struct {
	mu sync.RWMutex

	executions    map[string]execution.Execution
	steps         map[string]map[string]step.Step // executionID -> name -> step
	itemResults   map[string]map[string]itemresult.ItemResult // executionID -> itemID -> result
	registrations map[string]platformregistration.PlatformRegistration
	alerts        map[string]alert.Alert
	templates     map[string]template.Template
	batches       map[string]batch.Batch
	accounts      map[string]account.Account
}

var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		executions:    make(map[string]execution.Execution),
		steps:         make(map[string]map[string]step.Step),
		itemResults:   make(map[string]map[string]itemresult.ItemResult),
		registrations: make(map[string]platformregistration.PlatformRegistration),
		alerts:        make(map[string]alert.Alert),
		templates:     make(map[string]template.Template),
		batches:       make(map[string]batch.Batch),
		accounts:      make(map[string]account.Account),
	}
}

// --- ExecutionStore ----------------------------------------------------------

func (s *Store) CreateExecution(_ context.Context, exec execution.Execution) (execution.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	exec.CreatedAt = now
	exec.UpdatedAt = now
	exec.Config = copyAny(exec.Config)
	exec.ResultsSummary = copyAny(exec.ResultsSummary)

	s.executions[exec.ID] = exec
	return exec, nil
}

func (s *Store) UpdateExecution(_ context.Context, exec execution.Execution) (execution.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.executions[exec.ID]
	if !ok {
		return execution.Execution{}, storage.NewNotFoundError("execution", exec.ID)
	}
	exec.CreatedAt = existing.CreatedAt
	exec.UpdatedAt = time.Now().UTC()
	exec.Config = copyAny(exec.Config)
	exec.ResultsSummary = copyAny(exec.ResultsSummary)
	s.executions[exec.ID] = exec
	return exec, nil
}

func (s *Store) GetExecution(_ context.Context, id string) (execution.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.executions[id]
	if !ok {
		return execution.Execution{}, storage.NewNotFoundError("execution", id)
	}
	return exec, nil
}

func (s *Store) ListExecutions(_ context.Context, filter storage.ExecutionFilter) ([]execution.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []execution.Execution
	for _, e := range s.executions {
		if filter.TemplateName != "" && e.TemplateName != filter.TemplateName {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	if filter.Offset > 0 && filter.Offset < len(out) {
		out = out[filter.Offset:]
	} else if filter.Offset >= len(out) {
		out = nil
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) ListRecoveryCandidates(_ context.Context, staleSince time.Duration) ([]execution.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-staleSince)
	var out []execution.Execution
	for _, e := range s.executions {
		if e.Status != execution.StatusRunning && e.Status != execution.StatusPaused {
			continue
		}
		if e.UpdatedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- StepStore ---------------------------------------------------------------

func (s *Store) CreateStep(_ context.Context, st step.Step) (step.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	st.CreatedAt = now
	st.UpdatedAt = now

	if s.steps[st.ExecutionID] == nil {
		s.steps[st.ExecutionID] = make(map[string]step.Step)
	}
	s.steps[st.ExecutionID][st.Name] = st
	return st, nil
}

func (s *Store) UpdateStep(_ context.Context, st step.Step) (step.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byName, ok := s.steps[st.ExecutionID]
	if !ok {
		return step.Step{}, storage.NewNotFoundError("step", st.Name)
	}
	existing, ok := byName[st.Name]
	if !ok {
		return step.Step{}, storage.NewNotFoundError("step", st.Name)
	}
	st.CreatedAt = existing.CreatedAt
	st.UpdatedAt = time.Now().UTC()
	byName[st.Name] = st
	return st, nil
}

func (s *Store) GetStep(_ context.Context, executionID, name string) (step.Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byName, ok := s.steps[executionID]
	if !ok {
		return step.Step{}, storage.NewNotFoundError("step", name)
	}
	st, ok := byName[name]
	if !ok {
		return step.Step{}, storage.NewNotFoundError("step", name)
	}
	return st, nil
}

func (s *Store) ListSteps(_ context.Context, executionID string) ([]step.Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []step.Step
	for _, st := range s.steps[executionID] {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

// --- ItemResultStore -----------------------------------------------------------

func (s *Store) UpsertItemResult(_ context.Context, r itemresult.ItemResult) (itemresult.ItemResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		if byItem, ok := s.itemResults[r.ExecutionID]; ok {
			if existing, ok := byItem[r.ItemID]; ok {
				r.CreatedAt = existing.CreatedAt
			}
		}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	if s.itemResults[r.ExecutionID] == nil {
		s.itemResults[r.ExecutionID] = make(map[string]itemresult.ItemResult)
	}
	s.itemResults[r.ExecutionID][r.ItemID] = r
	return r, nil
}

func (s *Store) GetItemResult(_ context.Context, executionID, itemID string) (itemresult.ItemResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byItem, ok := s.itemResults[executionID]
	if !ok {
		return itemresult.ItemResult{}, storage.NewNotFoundError("item_result", itemID)
	}
	r, ok := byItem[itemID]
	if !ok {
		return itemresult.ItemResult{}, storage.NewNotFoundError("item_result", itemID)
	}
	return r, nil
}

func (s *Store) ListItemResults(_ context.Context, executionID string) ([]itemresult.ItemResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []itemresult.ItemResult
	for _, r := range s.itemResults[executionID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

// --- PlatformRegistrationStore --------------------------------------------------

func (s *Store) UpsertPlatformRegistration(_ context.Context, r platformregistration.PlatformRegistration) (platformregistration.PlatformRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if existing, ok := s.registrations[r.ID]; ok {
		r.CreatedAt = existing.CreatedAt
	} else {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	s.registrations[r.ID] = r
	return r, nil
}

func (s *Store) GetPlatformRegistration(_ context.Context, id string) (platformregistration.PlatformRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.registrations[id]
	if !ok {
		return platformregistration.PlatformRegistration{}, storage.NewNotFoundError("platform_registration", id)
	}
	return r, nil
}

func (s *Store) ListPlatformRegistrations(_ context.Context, itemResultID string) ([]platformregistration.PlatformRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []platformregistration.PlatformRegistration
	for _, r := range s.registrations {
		if r.ItemResultID == itemResultID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out, nil
}

func (s *Store) ListRetryable(_ context.Context, itemResultIDs []string, platform string, now time.Time) ([]platformregistration.PlatformRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(itemResultIDs))
	for _, id := range itemResultIDs {
		wanted[id] = true
	}

	var out []platformregistration.PlatformRegistration
	for _, r := range s.registrations {
		if !wanted[r.ItemResultID] {
			continue
		}
		if platform != "" && r.Platform != platform {
			continue
		}
		if r.Status.Terminal() {
			continue
		}
		if !r.NextRetryAt.IsZero() && r.NextRetryAt.After(now) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// --- AlertStore ----------------------------------------------------------------

func (s *Store) CreateAlert(_ context.Context, a alert.Alert) (alert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()
	s.alerts[a.ID] = a
	return a, nil
}

func (s *Store) UpdateAlert(_ context.Context, a alert.Alert) (alert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.alerts[a.ID]
	if !ok {
		return alert.Alert{}, storage.NewNotFoundError("alert", a.ID)
	}
	a.CreatedAt = existing.CreatedAt
	s.alerts[a.ID] = a
	return a, nil
}

func (s *Store) GetAlert(_ context.Context, id string) (alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return alert.Alert{}, storage.NewNotFoundError("alert", id)
	}
	return a, nil
}

func (s *Store) ListUnacknowledged(_ context.Context, limit int) ([]alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []alert.Alert
	for _, a := range s.alerts {
		if !a.Acknowledged {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListByExecution(_ context.Context, executionID string) ([]alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []alert.Alert
	for _, a := range s.alerts {
		if a.ExecutionID == executionID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- TemplateStore ---------------------------------------------------------------

func (s *Store) RegisterTemplate(_ context.Context, t template.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.templates[t.Name]; exists {
		return storage.ErrAlreadyExists
	}
	s.templates[t.Name] = t
	return nil
}

func (s *Store) GetTemplate(_ context.Context, name string) (template.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[name]
	if !ok {
		return template.Template{}, storage.NewNotFoundError("template", name)
	}
	return t, nil
}

func (s *Store) ListTemplates(_ context.Context) ([]template.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []template.Template
	for _, t := range s.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- BatchStore --------------------------------------------------------------

func (s *Store) CreateBatch(_ context.Context, b batch.Batch) (batch.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	s.batches[b.ID] = b
	return b, nil
}

func (s *Store) UpdateBatch(_ context.Context, b batch.Batch) (batch.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.batches[b.ID]
	if !ok {
		return batch.Batch{}, storage.NewNotFoundError("batch", b.ID)
	}
	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = time.Now().UTC()
	s.batches[b.ID] = b
	return b, nil
}

func (s *Store) GetBatch(_ context.Context, id string) (batch.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return batch.Batch{}, storage.NewNotFoundError("batch", id)
	}
	return b, nil
}

func (s *Store) ListDueBatches(_ context.Context, before time.Time) ([]batch.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []batch.Batch
	for _, b := range s.batches {
		if b.Status != batch.StatusPending {
			continue
		}
		if b.ScheduledAt.IsZero() || !b.ScheduledAt.After(before) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

// --- AccountStore --------------------------------------------------------------

func (s *Store) CreateAccount(_ context.Context, a account.Account) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	s.accounts[a.ID] = a
	return a, nil
}

func (s *Store) UpdateAccount(_ context.Context, a account.Account) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.accounts[a.ID]
	if !ok {
		return account.Account{}, storage.NewNotFoundError("account", a.ID)
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	s.accounts[a.ID] = a
	return a, nil
}

func (s *Store) GetAccount(_ context.Context, id string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return account.Account{}, storage.NewNotFoundError("account", id)
	}
	return a, nil
}

func (s *Store) ListActiveAccounts(_ context.Context, userID, platform string) ([]account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []account.Account
	for _, a := range s.accounts {
		if a.UserID != userID || a.Platform != platform {
			continue
		}
		if !a.Selectable() {
			continue
		}
		out = append(out, a)
	}
	// Least-recently-used first so selection naturally distributes load.
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsedAt.Before(out[j].LastUsedAt) })
	return out, nil
}

func (s *Store) RecordAPIUsage(_ context.Context, accountID string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return storage.NewNotFoundError("account", accountID)
	}
	a.APICallsTotal++
	if !success {
		a.APICallsFailed++
	}
	a.LastUsedAt = time.Now().UTC()
	a.UpdatedAt = a.LastUsedAt
	s.accounts[accountID] = a
	return nil
}

// Descriptor advertises this store's placement and capabilities.
func (s *Store) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:   "state-store",
		Domain: "state-store",
		Layer:  core.LayerStorage,
	}.WithCapabilities("in-memory", "non-durable")
}

func copyAny(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
