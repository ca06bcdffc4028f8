package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shipforge/orchestrator/internal/app/domain/batch"
	"github.com/shipforge/orchestrator/internal/app/services/registration"
	"github.com/shipforge/orchestrator/internal/app/storage/memory"
)

type fakeProcessor struct {
	mu        sync.Mutex
	processed []string
	err       error
}

func (f *fakeProcessor) ProcessBatch(_ context.Context, batchID string, _ bool) (registration.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, batchID)
	if f.err != nil {
		return registration.Summary{}, f.err
	}
	return registration.Summary{Status: batch.StatusCompleted}, nil
}

func (f *fakeProcessor) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.processed))
	copy(out, f.processed)
	return out
}

func TestTick_ProcessesOnlyDueBatches(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	due, err := store.CreateBatch(ctx, batch.Batch{Status: batch.StatusPending, Total: 1, ScheduledAt: time.Now().UTC().Add(-time.Minute)})
	if err != nil {
		t.Fatalf("create due batch: %v", err)
	}
	notYet, err := store.CreateBatch(ctx, batch.Batch{Status: batch.StatusPending, Total: 1, ScheduledAt: time.Now().UTC().Add(time.Hour)})
	if err != nil {
		t.Fatalf("create future batch: %v", err)
	}
	alreadyRunning, err := store.CreateBatch(ctx, batch.Batch{Status: batch.StatusRunning, Total: 1, ScheduledAt: time.Now().UTC().Add(-time.Minute)})
	if err != nil {
		t.Fatalf("create running batch: %v", err)
	}

	proc := &fakeProcessor{}
	s := New(store, proc, nil)
	s.tick(ctx)

	calls := proc.calls()
	if len(calls) != 1 || calls[0] != due.ID {
		t.Fatalf("expected exactly the due batch %q processed, got %v (future=%q running=%q)", due.ID, calls, notYet.ID, alreadyRunning.ID)
	}
}

func TestTick_ProcessorErrorDoesNotHaltOtherBatches(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	b1, _ := store.CreateBatch(ctx, batch.Batch{Status: batch.StatusPending, Total: 1, ScheduledAt: past})
	b2, _ := store.CreateBatch(ctx, batch.Batch{Status: batch.StatusPending, Total: 1, ScheduledAt: past})

	proc := &fakeProcessor{err: errBoom}
	s := New(store, proc, nil)
	s.tick(ctx)

	calls := proc.calls()
	if len(calls) != 2 {
		t.Fatalf("expected both due batches attempted despite processor errors, got %v (want %v and %v)", calls, b1.ID, b2.ID)
	}
}

func TestTick_EmptyDueListIsANoop(t *testing.T) {
	store := memory.New()
	proc := &fakeProcessor{}
	s := New(store, proc, nil)
	s.tick(context.Background())
	if len(proc.calls()) != 0 {
		t.Fatalf("expected no processor calls with nothing due, got %v", proc.calls())
	}
}

func TestStartStop_RunsAndHaltsTheCronLoop(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	_, err := store.CreateBatch(ctx, batch.Batch{Status: batch.StatusPending, Total: 1, ScheduledAt: time.Now().UTC().Add(-time.Minute)})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}

	proc := &fakeProcessor{}
	s := New(store, proc, nil, WithSpec("@every 10ms"))
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(proc.calls()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the cron loop to process the due batch")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

var errBoom = &processorError{"processor exploded"}

type processorError struct{ msg string }

func (e *processorError) Error() string { return e.msg }
