package system

import (
	"context"

	core "github.com/shipforge/orchestrator/internal/app/core/service"
)

// Service represents a background component the process entrypoint owns the
// lifecycle of, such as the Recoverer's stale-execution sweep or the
// Scheduler's cron loop. orchestratord starts every Service before serving
// traffic and stops them on shutdown, in order.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// DescriptorProvider optionally advertises a component's placement and
// capabilities so the ops surface can report what's running without hand
// maintaining a separate list.
type DescriptorProvider interface {
	Descriptor() core.Descriptor
}
