// Package fake provides a deterministic in-memory platform.Adapter for
// tests: canned outcomes queued per item id (the idempotency key's first
// segment) and consumed one per attempt, no network calls, no timing
// nondeterminism beyond an optional artificial delay.
package fake

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shipforge/orchestrator/internal/app/platform"
)

// Outcome is one scripted response for a single CreateProduct call.
type Outcome struct {
	ProductID string
	Err       error
}

// Adapter is a scripted platform.Adapter: each call to CreateProduct for a
// given item id consumes the next Outcome from that item's queue. An empty
// queue defaults to a synthetic success.
type Adapter struct {
	mu      sync.Mutex
	calls   int
	queues  map[string][]Outcome
	delay   time.Duration
	get     func(platformProductID string) (platform.ResponseBlob, error)
}

// New constructs a fake adapter. delay, if positive, is applied to every
// CreateProduct call to simulate artificial platform latency (used by the
// cancellation-mid-fan-out scenario).
func New(delay time.Duration) *Adapter {
	return &Adapter{
		queues: make(map[string][]Outcome),
		delay:  delay,
	}
}

// Script queues outcomes for a given canonical item id, consumed in order
// across successive CreateProduct attempts for that item.
func (a *Adapter) Script(itemID string, outcomes ...Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queues[itemID] = append(a.queues[itemID], outcomes...)
}

// WithGetProduct overrides the default GetProduct behaviour.
func (a *Adapter) WithGetProduct(fn func(platformProductID string) (platform.ResponseBlob, error)) *Adapter {
	a.get = fn
	return a
}

// CallCount returns the total number of CreateProduct invocations observed.
func (a *Adapter) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *Adapter) CreateProduct(ctx context.Context, idempotencyKey string, payload platform.Payload) (platform.ResponseBlob, error) {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	itemID := idempotencyKey
	if i := strings.IndexByte(idempotencyKey, ':'); i >= 0 {
		itemID = idempotencyKey[:i]
	}

	a.mu.Lock()
	a.calls++
	var outcome Outcome
	var found bool
	if queue := a.queues[itemID]; len(queue) > 0 {
		outcome, a.queues[itemID] = queue[0], queue[1:]
		found = true
	}
	a.mu.Unlock()

	if !found {
		return []byte(`{"productId":"FAKE-` + idempotencyKey + `"}`), nil
	}
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	return []byte(`{"productId":"` + outcome.ProductID + `"}`), nil
}

func (a *Adapter) GetProduct(ctx context.Context, platformProductID string) (platform.ResponseBlob, error) {
	if a.get != nil {
		return a.get(platformProductID)
	}
	return []byte(`{"productId":"` + platformProductID + `"}`), nil
}
