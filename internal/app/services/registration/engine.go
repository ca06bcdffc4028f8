// Package registration implements the Registration Engine: given a batch
// of canonical items and a target platform set, it drives every (item,
// platform) pair to either a success carrying a platform-assigned id or a
// durably recorded failure, under a bounded-concurrency worker pool and a
// per-platform retry policy.
package registration

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	core "github.com/shipforge/orchestrator/internal/app/core/service"
	"github.com/shipforge/orchestrator/internal/app/domain/account"
	"github.com/shipforge/orchestrator/internal/app/domain/alert"
	"github.com/shipforge/orchestrator/internal/app/domain/batch"
	"github.com/shipforge/orchestrator/internal/app/domain/itemresult"
	"github.com/shipforge/orchestrator/internal/app/domain/platformregistration"
	"github.com/shipforge/orchestrator/internal/app/cache"
	"github.com/shipforge/orchestrator/internal/app/platform"
	"github.com/shipforge/orchestrator/internal/app/storage"
	"github.com/shipforge/orchestrator/pkg/logger"
)

// AlertSink is the narrow interface the engine emits alerts through,
// satisfied by *alerts.Emitter. Kept local to avoid an import cycle.
type AlertSink interface {
	Emit(ctx context.Context, executionID string, kind alert.Kind, severity alert.Severity, title, body, component string, payload map[string]any) (string, error)
}

type noopAlertSink struct{}

func (noopAlertSink) Emit(context.Context, string, alert.Kind, alert.Severity, string, string, string, map[string]any) (string, error) {
	return "", nil
}

// PlatformSummary tallies one platform's outcomes within a batch run.
type PlatformSummary struct {
	Attempted int
	Succeeded int
	Failed    int
	LastError string
}

// Summary is the result handed back from ProcessBatch/RegisterSingle/RetryFailed.
type Summary struct {
	BatchID     string
	Total       int
	Completed   int
	Failed      int
	Status      batch.Status
	PerPlatform map[string]PlatformSummary
}

// Detail is the batch_status snapshot: the batch row plus its item results.
type Detail struct {
	Batch batch.Batch
	Items []itemresult.ItemResult
}

// Engine is the Registration Engine.
type Engine struct {
	store     storage.Store
	cache     cache.Cache
	platforms *platform.Registry
	retry     RetryPolicy
	log       *logger.Logger
	tracer    core.Tracer
	hooks     core.ObservationHooks
	alerts    AlertSink

	defaultConcurrency int
	callTimeout        time.Duration
	itemCacheTTL       time.Duration

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter

	cancelMu sync.Mutex
	cancels  map[string]chan struct{}
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithRetryPolicy overrides the default [30,60,120,300]/4-attempt schedule.
func WithRetryPolicy(p RetryPolicy) Option { return func(e *Engine) { e.retry = p } }

// WithConcurrency overrides the default max_concurrent_registrations (10).
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.defaultConcurrency = n
		}
	}
}

// WithCallTimeout overrides the default platform_call_timeout_seconds (30s).
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

// WithTracer attaches a span tracer to per-item dispatch.
func WithTracer(tracer core.Tracer) Option {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// WithObservationHooks attaches metrics/observation callbacks to dispatch.
func WithObservationHooks(hooks core.ObservationHooks) Option {
	return func(e *Engine) { e.hooks = hooks }
}

// WithAlertSink attaches the Alert Emitter for permanent-failure alerts.
func WithAlertSink(sink AlertSink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.alerts = sink
		}
	}
}

// New constructs a Registration Engine.
func New(store storage.Store, c cache.Cache, platforms *platform.Registry, log *logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.NewDefault("registration-engine")
	}
	e := &Engine{
		store:               store,
		cache:                c,
		platforms:            platforms,
		retry:                DefaultRetryPolicy(),
		log:                  log,
		tracer:               core.NoopTracer,
		hooks:                core.NoopObservationHooks,
		alerts:               noopAlertSink{},
		defaultConcurrency:   10,
		callTimeout:          30 * time.Second,
		itemCacheTTL:         7 * 24 * time.Hour,
		limiters:             make(map[string]*rate.Limiter),
		cancels:              make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateBatch creates a Batch row and stashes its item set in the ephemeral
// cache (batches hold canonical items only for the duration of processing;
// the durable system of record is the Item Results/Platform Registrations
// it produces).
func (e *Engine) CreateBatch(ctx context.Context, userID, name string, items []platform.Item, targetPlatforms []string, priority int, settings batch.Settings, scheduledAt time.Time) (string, error) {
	b := batch.Batch{
		ID:              uuid.NewString(),
		UserID:          userID,
		Name:            name,
		TargetPlatforms: targetPlatforms,
		Priority:        priority,
		Total:           len(items),
		Status:          batch.StatusPending,
		Settings:        settings,
		ScheduledAt:     scheduledAt,
	}
	created, err := e.store.CreateBatch(ctx, b)
	if err != nil {
		return "", err
	}
	if err := e.putItems(ctx, created.ID, items); err != nil {
		return "", err
	}
	return created.ID, nil
}

// RegisterSingle creates an ephemeral single-item batch and processes it
// immediately, returning its summary.
func (e *Engine) RegisterSingle(ctx context.Context, userID string, item platform.Item, targetPlatforms []string, priority int) (Summary, error) {
	batchID, err := e.CreateBatch(ctx, userID, "single:"+item.ID, []platform.Item{item}, targetPlatforms, priority, batch.Settings{}, time.Time{})
	if err != nil {
		return Summary{}, err
	}
	return e.ProcessBatch(ctx, batchID, false)
}

// CancelBatch signals any in-flight ProcessBatch run for batchID to stop
// dispatching new work units; in-flight platform calls already issued are
// not aborted. With no run in flight, a non-terminal batch is marked
// cancelled directly and true is returned; an already-terminal batch
// returns false.
func (e *Engine) CancelBatch(ctx context.Context, batchID string) (bool, error) {
	e.cancelMu.Lock()
	ch, ok := e.cancels[batchID]
	e.cancelMu.Unlock()
	if !ok {
		b, err := e.store.GetBatch(ctx, batchID)
		if err != nil {
			return false, err
		}
		if b.Status.Terminal() {
			return false, nil
		}
		b.Status = batch.StatusCancelled
		if _, err := e.store.UpdateBatch(ctx, b); err != nil {
			return false, err
		}
		return true, nil
	}
	select {
	case <-ch:
	default:
		close(ch)
	}
	return true, nil
}

// BatchStatus returns the detailed batch snapshot.
func (e *Engine) BatchStatus(ctx context.Context, batchID string) (Detail, error) {
	b, err := e.store.GetBatch(ctx, batchID)
	if err != nil {
		return Detail{}, err
	}
	items, err := e.store.ListItemResults(ctx, batchID)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Batch: b, Items: items}, nil
}

// RetryFailed reprocesses a batch's eligible-for-retry platform
// registrations, optionally scoped to one platform.
func (e *Engine) RetryFailed(ctx context.Context, batchID string, platformFilter *string) (Summary, error) {
	filter := ""
	if platformFilter != nil {
		filter = *platformFilter
	}
	return e.process(ctx, batchID, true, filter)
}

// ProcessBatch drives a batch's item/platform work units to completion.
func (e *Engine) ProcessBatch(ctx context.Context, batchID string, force bool) (Summary, error) {
	b, err := e.store.GetBatch(ctx, batchID)
	if err != nil {
		return Summary{}, err
	}
	if b.Status.Terminal() && !force {
		return Summary{}, &BatchTerminalError{BatchID: batchID, Status: string(b.Status)}
	}
	return e.process(ctx, batchID, force, "")
}

func (e *Engine) process(ctx context.Context, batchID string, force bool, platformFilter string) (Summary, error) {
	b, err := e.store.GetBatch(ctx, batchID)
	if err != nil {
		return Summary{}, err
	}
	if b.Status.Terminal() && !force {
		return Summary{}, &BatchTerminalError{BatchID: batchID, Status: string(b.Status)}
	}

	items, err := e.getItems(ctx, batchID)
	if err != nil {
		return Summary{}, err
	}

	b.Status = batch.StatusRunning
	if _, err := e.store.UpdateBatch(ctx, b); err != nil {
		return Summary{}, err
	}

	cancelCh := make(chan struct{})
	e.cancelMu.Lock()
	e.cancels[batchID] = cancelCh
	e.cancelMu.Unlock()
	defer func() {
		e.cancelMu.Lock()
		delete(e.cancels, batchID)
		e.cancelMu.Unlock()
	}()

	concurrency := b.Settings.MaxConcurrentRegistrations
	if concurrency <= 0 {
		concurrency = e.defaultConcurrency
	}
	retryPolicy := e.retry
	if b.Settings.MaxRetryAttempts > 0 {
		retryPolicy.MaxAttempts = b.Settings.MaxRetryAttempts
	}

	type unit struct {
		item     platform.Item
		platform string
	}
	var units []unit
	for _, it := range items {
		for _, plat := range b.TargetPlatforms {
			if platformFilter != "" && plat != platformFilter {
				continue
			}
			units = append(units, unit{item: it, platform: plat})
		}
	}

	sem := make(chan struct{}, clampConcurrency(concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex
	perPlatform := make(map[string]PlatformSummary, len(b.TargetPlatforms))

	for _, u := range units {
		select {
		case <-cancelCh:
		default:
		}
		select {
		case <-cancelCh:
			continue
		case <-ctx.Done():
			continue
		default:
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(u unit) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, dispatchErr := e.dispatch(ctx, b, u.item, u.platform, retryPolicy)

			mu.Lock()
			ps := perPlatform[u.platform]
			ps.Attempted++
			if outcome.Status == platformregistration.StatusCompleted {
				ps.Succeeded++
			} else if outcome.Status == platformregistration.StatusFailed {
				ps.Failed++
				if dispatchErr != nil {
					ps.LastError = dispatchErr.Error()
				} else {
					ps.LastError = outcome.LastError
				}
			}
			perPlatform[u.platform] = ps
			mu.Unlock()
		}(u)
	}
	wg.Wait()

	cancelled := false
	select {
	case <-cancelCh:
		cancelled = true
	default:
	}

	completed, partial, failed, err := e.recomputeItems(ctx, batchID, items, b.TargetPlatforms)
	if err != nil {
		return Summary{}, err
	}

	b, err = e.store.GetBatch(ctx, batchID)
	if err != nil {
		return Summary{}, err
	}
	// Batch.Completed tracks items that landed on every target platform;
	// partially-completed items still count toward "processed" progress
	// but must not be conflated with a fully-completed batch.
	b.Completed = completed
	b.Failed = failed
	settled := completed + partial + failed
	switch {
	case cancelled:
		b.Status = batch.StatusCancelled
	case partial == 0 && failed == 0 && completed == b.Total:
		b.Status = batch.StatusCompleted
	case partial == 0 && completed == 0 && failed == b.Total:
		b.Status = batch.StatusFailed
	case settled == b.Total:
		b.Status = batch.StatusPartiallyCompleted
	default:
		b.Status = batch.StatusRunning
	}
	b, err = e.store.UpdateBatch(ctx, b)
	if err != nil {
		return Summary{}, err
	}

	return Summary{
		BatchID:     batchID,
		Total:       b.Total,
		Completed:   b.Completed,
		Failed:      b.Failed,
		Status:      b.Status,
		PerPlatform: perPlatform,
	}, nil
}

// dispatch drives one (item, platform) work unit through transform, call,
// response extraction, and retry bookkeeping, persisting the resulting
// Platform Registration.
func (e *Engine) dispatch(ctx context.Context, b batch.Batch, item platform.Item, platformName string, retryPolicy RetryPolicy) (platformregistration.PlatformRegistration, error) {
	meta := map[string]string{"batch_id": b.ID, "item_id": item.ID, "platform": platformName}
	spanCtx, finishSpan := e.tracer.StartSpan(ctx, "registration.dispatch", meta)
	finishObs := core.StartObservation(spanCtx, e.hooks, meta)

	itemResult, err := e.ensureItemResult(spanCtx, b.ID, item.ID)
	if err != nil {
		finishObs(err)
		finishSpan(err)
		return platformregistration.PlatformRegistration{}, err
	}
	reg, err := e.loadOrCreateRegistration(spanCtx, itemResult.ID, platformName)
	if err != nil {
		finishObs(err)
		finishSpan(err)
		return reg, err
	}
	// A completed registration is done; a failed one is only redispatched
	// while it remains eligible for retry. Either way, a terminal
	// registration that should not be retried is never redispatched.
	if reg.Status == platformregistration.StatusCompleted {
		finishObs(nil)
		finishSpan(nil)
		return reg, nil
	}
	if reg.Status == platformregistration.StatusFailed && !reg.EligibleForRetry(retryPolicy.MaxAttempts) {
		finishObs(nil)
		finishSpan(nil)
		return reg, nil
	}
	if !reg.NextRetryAt.IsZero() && time.Now().Before(reg.NextRetryAt) {
		finishObs(nil)
		finishSpan(nil)
		return reg, nil
	}

	binding, ok := e.platforms.Lookup(platformName)
	if !ok {
		reg.Status = platformregistration.StatusFailed
		reg.LastError = (&platform.ErrUnknownPlatform{Platform: platformName}).Error()
		reg.LastErrorPermanent = true
		reg = e.save(spanCtx, reg)
		finishObs(nil)
		finishSpan(nil)
		return reg, nil
	}

	acct, hasAccount := e.resolveAccount(spanCtx, b.UserID, platformName)
	if !hasAccount {
		reg.Status = platformregistration.StatusFailed
		reg.LastError = (&NoActiveAccountError{Platform: platformName}).Error()
		reg.LastErrorPermanent = true
		reg = e.save(spanCtx, reg)
		finishObs(nil)
		finishSpan(nil)
		return reg, nil
	}

	e.waitRateLimit(spanCtx, platformName)

	payload, transformErr := binding.Transform(item)
	reg.AttemptCount++
	reg.Status = platformregistration.StatusRunning
	reg.ScheduledAt = time.Now().UTC()
	if transformErr != nil {
		reg.Status = platformregistration.StatusFailed
		reg.LastError = transformErr.Error()
		reg.LastErrorPermanent = true
		reg = e.save(spanCtx, reg)
		_ = e.store.RecordAPIUsage(spanCtx, acct.ID, false)
		e.alertPermanent(spanCtx, b, item, platformName, transformErr)
		finishObs(transformErr)
		finishSpan(transformErr)
		return reg, transformErr
	}
	reg.Payload = payloadToMap(payload)

	idemKey := fmt.Sprintf("%s:%s:%d", item.ID, platformName, reg.AttemptCount)
	callCtx, cancel := context.WithTimeout(spanCtx, e.callTimeout)
	body, callErr := binding.Adapter.CreateProduct(callCtx, idemKey, payload)
	cancel()
	reg.APICallCount++

	success := callErr == nil
	_ = e.store.RecordAPIUsage(spanCtx, acct.ID, success)

	if callErr != nil {
		reg.LastError = callErr.Error()
		reg.LastErrorPermanent = platform.IsPermanent(callErr)
		if reg.EligibleForRetry(retryPolicy.MaxAttempts) {
			reg.Status = platformregistration.StatusPending
			reg.NextRetryAt = retryPolicy.NextRetryAt(reg.AttemptCount, time.Now())
		} else {
			reg.Status = platformregistration.StatusFailed
			e.alertPermanent(spanCtx, b, item, platformName, callErr)
		}
		reg = e.save(spanCtx, reg)
		finishObs(callErr)
		finishSpan(callErr)
		return reg, callErr
	}

	productID, found := binding.ExtractID(body)
	if !found {
		missingErr := platform.NewPermanentError(platform.ErrKindMissingProductID, "response carried no product id", nil)
		reg.LastError = missingErr.Error()
		reg.LastErrorPermanent = true
		reg.Status = platformregistration.StatusFailed
		reg = e.save(spanCtx, reg)
		e.alertPermanent(spanCtx, b, item, platformName, missingErr)
		finishObs(missingErr)
		finishSpan(missingErr)
		return reg, missingErr
	}

	reg.Status = platformregistration.StatusCompleted
	reg.PlatformProductID = productID
	reg.LastError = ""
	reg.LastErrorPermanent = false
	reg.NextRetryAt = time.Time{}
	reg = e.save(spanCtx, reg)
	finishObs(nil)
	finishSpan(nil)
	return reg, nil
}

func (e *Engine) alertPermanent(ctx context.Context, b batch.Batch, item platform.Item, platformName string, cause error) {
	_, _ = e.alerts.Emit(ctx, "", alert.KindError, alert.SeverityHigh,
		fmt.Sprintf("registration failed for item %s on %s", item.ID, platformName),
		cause.Error(), "registration", map[string]any{
			"batch_id": b.ID,
			"item_id":  item.ID,
			"platform": platformName,
		})
}

func (e *Engine) resolveAccount(ctx context.Context, userID, platformName string) (account.Account, bool) {
	candidates, err := e.store.ListActiveAccounts(ctx, userID, platformName)
	if err != nil || len(candidates) == 0 {
		return account.Account{}, false
	}
	return selectAccount(candidates)
}

func (e *Engine) waitRateLimit(ctx context.Context, platformName string) {
	e.limitersMu.Lock()
	l, ok := e.limiters[platformName]
	if !ok {
		l = rate.NewLimiter(rate.Limit(20), 20)
		e.limiters[platformName] = l
	}
	e.limitersMu.Unlock()
	_ = l.Wait(ctx)
}

// ensureItemResult gets or lazily creates the ItemResult row that owns a
// given (batch, item) pair's Platform Registrations.
func (e *Engine) ensureItemResult(ctx context.Context, batchID, itemID string) (itemresult.ItemResult, error) {
	existing, err := e.store.GetItemResult(ctx, batchID, itemID)
	if err == nil {
		return existing, nil
	}
	if !storage.IsNotFound(err) {
		return itemresult.ItemResult{}, err
	}
	created := itemresult.ItemResult{
		ID:          uuid.NewString(),
		ExecutionID: batchID,
		ItemID:      itemID,
		FinalStatus: itemresult.FinalPending,
	}
	return e.store.UpsertItemResult(ctx, created)
}

func (e *Engine) loadOrCreateRegistration(ctx context.Context, itemResultID, platformName string) (platformregistration.PlatformRegistration, error) {
	existing, err := e.store.ListPlatformRegistrations(ctx, itemResultID)
	if err != nil {
		return platformregistration.PlatformRegistration{}, err
	}
	for _, r := range existing {
		if r.Platform == platformName {
			return r, nil
		}
	}
	return platformregistration.PlatformRegistration{
		ID:           uuid.NewString(),
		ItemResultID: itemResultID,
		Platform:     platformName,
		Status:       platformregistration.StatusPending,
	}, nil
}

func (e *Engine) save(ctx context.Context, reg platformregistration.PlatformRegistration) platformregistration.PlatformRegistration {
	saved, err := e.store.UpsertPlatformRegistration(ctx, reg)
	if err != nil {
		e.log.WithPlatform(reg.Platform).WithError(err).WithField("registration_id", reg.ID).Warn("persist platform registration failed")
		return reg
	}
	return saved
}

// recomputeItems recomputes each item's overall status from its platform
// registrations using the table in §4.4, persists the Item Result, and
// returns the batch's completed/partially-completed/failed counts.
func (e *Engine) recomputeItems(ctx context.Context, batchID string, items []platform.Item, platforms []string) (completed, partial, failed int, err error) {
	for _, it := range items {
		existing, gerr := e.store.GetItemResult(ctx, batchID, it.ID)
		if gerr != nil && !storage.IsNotFound(gerr) {
			return 0, 0, 0, gerr
		}
		if existing.ID == "" {
			// No work unit ever touched this item (e.g. the run was
			// cancelled before any of its units were dispatched); nothing
			// to recompute.
			continue
		}
		regs, lerr := e.store.ListPlatformRegistrations(ctx, existing.ID)
		if lerr != nil {
			return 0, 0, 0, lerr
		}
		status := overallStatus(regs, len(platforms))

		stages := existing.Stages
		if stages == nil {
			stages = map[string]itemresult.StageOutcome{}
		}
		artifact := map[string]any{}
		var lastErr string
		for _, r := range regs {
			artifact[r.Platform] = map[string]any{
				"status":     string(r.Status),
				"product_id": r.PlatformProductID,
				"attempts":   r.AttemptCount,
			}
			if r.LastError != "" {
				lastErr = r.LastError
			}
		}
		stages["multi_platform_registration"] = itemresult.StageOutcome{
			Stage:       "multi_platform_registration",
			Status:      subStatusFor(status),
			CompletedAt: time.Now().UTC(),
			Artifact:    artifact,
		}
		result := itemresult.ItemResult{
			ID:          existing.ID,
			ExecutionID: batchID,
			ItemID:      it.ID,
			Stages:      stages,
			FinalStatus: status,
			LastError:   lastErr,
		}
		if result.ID == "" {
			result.ID = uuid.NewString()
		}
		if _, uerr := e.store.UpsertItemResult(ctx, result); uerr != nil {
			return 0, 0, 0, uerr
		}
		switch status {
		case itemresult.FinalCompleted:
			completed++
		case itemresult.FinalFailed:
			failed++
		case itemresult.FinalPartiallyCompleted:
			partial++
		}
	}
	return completed, partial, failed, nil
}

// overallStatus derives the per-item overall status from its platform
// registrations per the table in §4.4.
func overallStatus(regs []platformregistration.PlatformRegistration, targetPlatformCount int) itemresult.FinalStatus {
	if len(regs) == 0 {
		return itemresult.FinalPending
	}
	allCompleted := true
	anyRunning := false
	anyCompleted := false
	anyTerminalFailed := false
	for _, r := range regs {
		switch r.Status {
		case platformregistration.StatusCompleted:
			anyCompleted = true
		case platformregistration.StatusRunning, platformregistration.StatusPending:
			allCompleted = false
			anyRunning = true
		case platformregistration.StatusFailed:
			allCompleted = false
			anyTerminalFailed = true
		}
	}
	if allCompleted && len(regs) >= targetPlatformCount {
		return itemresult.FinalCompleted
	}
	if anyRunning {
		return itemresult.FinalRunning
	}
	if anyCompleted && anyTerminalFailed {
		return itemresult.FinalPartiallyCompleted
	}
	if anyTerminalFailed && !anyCompleted {
		return itemresult.FinalFailed
	}
	return itemresult.FinalPending
}

func subStatusFor(status itemresult.FinalStatus) itemresult.SubStatus {
	switch status {
	case itemresult.FinalCompleted, itemresult.FinalPartiallyCompleted:
		return itemresult.SubStatusCompleted
	case itemresult.FinalFailed:
		return itemresult.SubStatusFailed
	case itemresult.FinalRunning:
		return itemresult.SubStatusRunning
	default:
		return itemresult.SubStatusPending
	}
}

func payloadToMap(p platform.Payload) map[string]any {
	return map[string]any{
		"name":                  p.Name,
		"description":           p.Description,
		"price":                 p.Price,
		"original_price":        p.OriginalPrice,
		"stock":                 p.Stock,
		"weight":                p.Weight,
		"category_id":           p.CategoryID,
		"brand":                 p.Brand,
		"main_image_url":        p.MainImageURL,
		"additional_image_urls": p.AdditionalImageURLs,
		"attributes":            p.Attributes,
		"keywords":              p.Keywords,
		"tags":                  p.Tags,
	}
}

func clampConcurrency(n int) int {
	if n <= 0 {
		return 10
	}
	return n
}

// --- batch item stash (ephemeral cache) -------------------------------------

func (e *Engine) putItems(ctx context.Context, batchID string, items []platform.Item) error {
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return e.cache.Put(ctx, "batch_items:"+batchID, data, e.itemCacheTTL)
}

func (e *Engine) getItems(ctx context.Context, batchID string) ([]platform.Item, error) {
	data, ok, err := e.cache.Get(ctx, "batch_items:"+batchID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("registration: no cached item set for batch %q (cache entry expired or process restarted without recovery)", batchID)
	}
	var items []platform.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Descriptor advertises the Registration Engine's placement and, since the
// platform set is dynamic, its currently registered platform names as
// capabilities.
func (e *Engine) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:   "registration-engine",
		Domain: "platform-registration",
		Layer:  core.LayerEngine,
	}.WithCapabilities(e.platforms.Platforms()...)
}
