package testutil

import (
	"context"
	"sync"

	"github.com/specialistvlad/bootreplay/internal/capability"
	"github.com/specialistvlad/bootreplay/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// ProbeCapability is the name of the capability registered by ProbeModule.
const ProbeCapability = "probe"

// ProbeModule registers a "probe" capability whose single operation,
// note(string), appends to Notes. Every binding created by the module
// shares the same log.
type ProbeModule struct {
	mu    sync.Mutex
	notes []string
}

// Register registers the probe contract and binding.
func (m *ProbeModule) Register(r *registry.Registry) {
	r.RegisterContract(capability.NewContract(ProbeCapability,
		&capability.Method{Name: "note", Params: []cty.Type{cty.String}},
	))
	r.RegisterBinding(ProbeCapability, func(capability.Env) (*capability.Binding, error) {
		return &capability.Binding{
			Capability: ProbeCapability,
			Methods: map[string]any{
				"note": func(_ context.Context, s string) error {
					m.mu.Lock()
					defer m.mu.Unlock()
					m.notes = append(m.notes, s)
					return nil
				},
			},
		}, nil
	})
}

// Notes returns a copy of everything noted so far.
func (m *ProbeModule) Notes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.notes))
	copy(out, m.notes)
	return out
}
