package platform

import (
	"fmt"
	"sync"

	core "github.com/shipforge/orchestrator/internal/app/core/service"
)

// Binding is everything the Registration Engine needs to drive one target
// selling platform: the network adapter, the canonical-to-payload
// transform, and the response-id extractor.
type Binding struct {
	Adapter     Adapter
	Transform   Transformer
	ExtractID   IDExtractor
}

// Registry is the static, process-wide set of platforms the Registration
// Engine can dispatch to, mirroring the template registry's "workflow as
// data" idiom: platforms are registered once at startup and read-only
// thereafter.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]Binding
}

// NewRegistry constructs an empty platform registry.
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string]Binding)}
}

// Register adds or replaces the binding for a platform name.
func (r *Registry) Register(platformName string, binding Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[platformName] = binding
}

// Lookup returns the binding for a platform name, or false if unregistered.
func (r *Registry) Lookup(platformName string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[platformName]
	return b, ok
}

// Platforms returns the currently registered platform names.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.bindings))
	for name := range r.bindings {
		names = append(names, name)
	}
	return names
}

// ErrUnknownPlatform is returned by callers that look up an unregistered
// platform name directly (Lookup itself just returns ok=false).
type ErrUnknownPlatform struct {
	Platform string
}

func (e *ErrUnknownPlatform) Error() string {
	return fmt.Sprintf("platform %q is not registered", e.Platform)
}

// Descriptor advertises the platform registry's placement, with each
// registered platform name surfaced as a capability.
func (r *Registry) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:   "platform-registry",
		Domain: "platform-adapters",
		Layer:  core.LayerAdapter,
	}.WithCapabilities(r.Platforms()...)
}
