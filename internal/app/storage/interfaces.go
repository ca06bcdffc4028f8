// Package storage defines the durable persistence contracts for the
// orchestration core: Executions, Steps, Item Results, Platform
// Registrations, Alerts, Workflow Templates, Batches, and Accounts.
//
// Every method is transactional at the granularity of one entity. The
// contracts offer no multi-entity transaction: a Step's counters and its
// owning Execution's counters on one progress tick are written by separate
// calls, and neither write is rolled back if the other fails.
package storage

import (
	"context"
	"time"

	"github.com/shipforge/orchestrator/internal/app/domain/account"
	"github.com/shipforge/orchestrator/internal/app/domain/alert"
	"github.com/shipforge/orchestrator/internal/app/domain/batch"
	"github.com/shipforge/orchestrator/internal/app/domain/execution"
	"github.com/shipforge/orchestrator/internal/app/domain/itemresult"
	"github.com/shipforge/orchestrator/internal/app/domain/platformregistration"
	"github.com/shipforge/orchestrator/internal/app/domain/step"
	"github.com/shipforge/orchestrator/internal/app/domain/template"
)

// ExecutionFilter narrows ListExecutions results.
type ExecutionFilter struct {
	TemplateName string
	Status       execution.Status
	Limit        int
	Offset       int
}

// ExecutionStore persists Execution records.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, exec execution.Execution) (execution.Execution, error)
	UpdateExecution(ctx context.Context, exec execution.Execution) (execution.Execution, error)
	GetExecution(ctx context.Context, id string) (execution.Execution, error)
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]execution.Execution, error)
	ListRecoveryCandidates(ctx context.Context, staleSince time.Duration) ([]execution.Execution, error)
}

// StepStore persists Step records.
type StepStore interface {
	CreateStep(ctx context.Context, s step.Step) (step.Step, error)
	UpdateStep(ctx context.Context, s step.Step) (step.Step, error)
	GetStep(ctx context.Context, executionID, name string) (step.Step, error)
	ListSteps(ctx context.Context, executionID string) ([]step.Step, error)
}

// ItemResultStore persists ItemResult records.
type ItemResultStore interface {
	UpsertItemResult(ctx context.Context, r itemresult.ItemResult) (itemresult.ItemResult, error)
	GetItemResult(ctx context.Context, executionID, itemID string) (itemresult.ItemResult, error)
	ListItemResults(ctx context.Context, executionID string) ([]itemresult.ItemResult, error)
}

// PlatformRegistrationStore persists PlatformRegistration records.
type PlatformRegistrationStore interface {
	UpsertPlatformRegistration(ctx context.Context, r platformregistration.PlatformRegistration) (platformregistration.PlatformRegistration, error)
	GetPlatformRegistration(ctx context.Context, id string) (platformregistration.PlatformRegistration, error)
	ListPlatformRegistrations(ctx context.Context, itemResultID string) ([]platformregistration.PlatformRegistration, error)
	ListRetryable(ctx context.Context, batchItemResultIDs []string, platform string, now time.Time) ([]platformregistration.PlatformRegistration, error)
}

// AlertStore persists Alert records.
type AlertStore interface {
	CreateAlert(ctx context.Context, a alert.Alert) (alert.Alert, error)
	UpdateAlert(ctx context.Context, a alert.Alert) (alert.Alert, error)
	GetAlert(ctx context.Context, id string) (alert.Alert, error)
	ListUnacknowledged(ctx context.Context, limit int) ([]alert.Alert, error)
	ListByExecution(ctx context.Context, executionID string) ([]alert.Alert, error)
}

// TemplateStore persists registered Workflow Templates. Templates are
// immutable once registered; the static in-process registry
// (internal/app/services/orchestrator.Registry) is the canonical source of
// truth, this store exists so registrations survive a process restart.
type TemplateStore interface {
	RegisterTemplate(ctx context.Context, t template.Template) error
	GetTemplate(ctx context.Context, name string) (template.Template, error)
	ListTemplates(ctx context.Context) ([]template.Template, error)
}

// BatchStore persists Batch records.
type BatchStore interface {
	CreateBatch(ctx context.Context, b batch.Batch) (batch.Batch, error)
	UpdateBatch(ctx context.Context, b batch.Batch) (batch.Batch, error)
	GetBatch(ctx context.Context, id string) (batch.Batch, error)
	ListDueBatches(ctx context.Context, before time.Time) ([]batch.Batch, error)
}

// AccountStore persists platform Account records and their usage counters.
type AccountStore interface {
	CreateAccount(ctx context.Context, a account.Account) (account.Account, error)
	UpdateAccount(ctx context.Context, a account.Account) (account.Account, error)
	GetAccount(ctx context.Context, id string) (account.Account, error)
	ListActiveAccounts(ctx context.Context, userID, platform string) ([]account.Account, error)
	RecordAPIUsage(ctx context.Context, accountID string, success bool) error
}

// Store aggregates every durable persistence contract the orchestration
// core depends on.
type Store interface {
	ExecutionStore
	StepStore
	ItemResultStore
	PlatformRegistrationStore
	AlertStore
	TemplateStore
	BatchStore
	AccountStore
}
