package system

import (
	"sort"

	core "github.com/shipforge/orchestrator/internal/app/core/service"
)

// CollectDescriptors extracts a Descriptor from each provider, skipping nil
// entries, and sorts the result by layer then name so the /services ops
// endpoint renders the same ordering on every call.
func CollectDescriptors(providers []DescriptorProvider) []core.Descriptor {
	var out []core.Descriptor
	for _, p := range providers {
		if p == nil {
			continue
		}
		out = append(out, p.Descriptor())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Layer == out[j].Layer {
			return out[i].Name < out[j].Name
		}
		return out[i].Layer < out[j].Layer
	})
	return out
}
