package service

// Layer describes the architectural slice a service belongs to: the ops
// surface that accepts operator/API traffic, the platform adapters that
// talk to external storefronts, the engines that drive execution, the
// durable storage underneath, and the operational housekeeping (recovery,
// scheduling, alerting) that keeps the rest honest.
type Layer string

const (
	LayerIntake  Layer = "intake"
	LayerAdapter Layer = "adapter"
	LayerEngine  Layer = "engine"
	LayerStorage Layer = "storage"
	LayerOps     Layer = "ops"
)

// Descriptor advertises a service's placement and capabilities. It is optional
// and does not change runtime behavior, but allows orchestration layers and
// documentation to reason about modules consistently.
type Descriptor struct {
	Name         string
	Domain       string
	Layer        Layer
	Capabilities []string
}

// WithCapabilities returns a copy of the descriptor with additional
// capabilities appended.
func (d Descriptor) WithCapabilities(caps ...string) Descriptor {
	if len(caps) == 0 {
		return d
	}
	combined := make([]string, 0, len(d.Capabilities)+len(caps))
	combined = append(combined, d.Capabilities...)
	combined = append(combined, caps...)
	d.Capabilities = combined
	return d
}
