// Package orchestrator implements the Orchestrator: it drives a
// registered workflow template's stages to completion in topological
// order, fanning per-item work across a bounded worker pool for
// parallel-allowed stages, honouring pause/cancel intents at stage
// boundaries, and persisting every observable transition through the
// State Store.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/shipforge/orchestrator/internal/app/domain/template"
	"github.com/shipforge/orchestrator/internal/app/platform"
)

// ItemOutcome is the result of running one item through one stage.
type ItemOutcome struct {
	ItemID   string
	Status   string // itemresult.SubStatus value
	Artifact map[string]any
	Err      error
}

// StageReport is the aggregate result of running a whole-batch stage
// handler over an item set.
type StageReport struct {
	Outcomes []ItemOutcome
}

// ItemHandler processes a single item for a parallel-allowed stage. The
// Orchestrator itself performs the bounded-concurrency fan-out for these
// stages (§4.1 "per-item fan-out inside a stage"), calling this handler
// once per item.
type ItemHandler func(ctx context.Context, item platform.Item, cfg map[string]any) ItemOutcome

// BatchHandler processes a whole item set in one call for a stage that is
// not parallel-allowed. cancel is closed when the orchestrator's
// cooperative cancellation intent has been set.
type BatchHandler func(ctx context.Context, items []platform.Item, cfg map[string]any, cancel <-chan struct{}) (StageReport, error)

// StageHandler is exactly one of Item or Batch, selected by the stage
// descriptor's ParallelAllowed flag.
type StageHandler struct {
	Item  ItemHandler
	Batch BatchHandler
}

// RegisteredTemplate pairs a workflow template with the stage handlers
// that implement it, keyed by stage name. This is the in-process
// "workflow as data" registry named in §9: templates are registered once
// at startup and read-only thereafter.
type RegisteredTemplate struct {
	Template template.Template
	Handlers map[string]StageHandler
}

// Registry is the static, process-wide set of workflow templates the
// Orchestrator can run.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]RegisteredTemplate
}

// NewRegistry constructs an empty template registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]RegisteredTemplate)}
}

// Register validates the template's dependency graph (rejecting cycles and
// dangling dependency names) and adds it to the registry. Every stage must
// have a handler; a template missing one is a caller programming error.
func (r *Registry) Register(rt RegisteredTemplate) error {
	if err := rt.Template.Validate(); err != nil {
		return &DependencyCycleError{TemplateName: rt.Template.Name, Cause: err}
	}
	for _, sd := range rt.Template.Stages {
		h, ok := rt.Handlers[sd.Name]
		if !ok {
			return fmt.Errorf("template %q: stage %q has no registered handler", rt.Template.Name, sd.Name)
		}
		if sd.ParallelAllowed && h.Item == nil {
			return fmt.Errorf("template %q: parallel-allowed stage %q needs an ItemHandler", rt.Template.Name, sd.Name)
		}
		if !sd.ParallelAllowed && h.Batch == nil {
			return fmt.Errorf("template %q: stage %q needs a BatchHandler", rt.Template.Name, sd.Name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[rt.Template.Name] = rt
	return nil
}

// Get returns the registered template by name.
func (r *Registry) Get(name string) (RegisteredTemplate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.templates[name]
	return rt, ok
}

// Names returns every registered template name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for n := range r.templates {
		names = append(names, n)
	}
	return names
}
