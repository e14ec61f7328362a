package registry

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/specialistvlad/bootreplay/internal/buildstep"
	"github.com/specialistvlad/bootreplay/internal/capability"
	"github.com/specialistvlad/bootreplay/internal/config"
)

// Module is the interface that all modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds everything registered by the modules of a single
// application instance. It is populated once and read-only afterwards.
type Registry struct {
	contracts  map[string]*capability.Contract
	factories  map[string]capability.Factory
	namespaces map[string]config.Namespace
	steps      []*buildstep.Step
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		contracts:  make(map[string]*capability.Contract),
		factories:  make(map[string]capability.Factory),
		namespaces: make(map[string]config.Namespace),
	}
}

// Load creates a registry populated by modules, in order.
func Load(modules ...Module) *Registry {
	r := New()
	for _, m := range modules {
		m.Register(r)
	}
	return r
}

// RegisterContract declares a capability that steps may record against.
func (r *Registry) RegisterContract(c *capability.Contract) {
	if _, exists := r.contracts[c.Name]; exists {
		panic(fmt.Sprintf("contract for capability '%s' already registered", c.Name))
	}
	slog.Debug("Registering capability contract.", "capability", c.Name, "methods", c.MethodNames())
	r.contracts[c.Name] = c
}

// RegisterBinding registers the factory of a capability's live binding.
func (r *Registry) RegisterBinding(capabilityName string, f capability.Factory) {
	if _, exists := r.factories[capabilityName]; exists {
		panic(fmt.Sprintf("binding for capability '%s' already registered", capabilityName))
	}
	slog.Debug("Registering capability binding.", "capability", capabilityName)
	r.factories[capabilityName] = f
}

// RegisterNamespace registers a configuration namespace.
func (r *Registry) RegisterNamespace(ns config.Namespace) {
	if _, exists := r.namespaces[ns.Name]; exists {
		panic(fmt.Sprintf("config namespace '%s' already registered", ns.Name))
	}
	slog.Debug("Registering config namespace.", "namespace", ns.Name)
	r.namespaces[ns.Name] = ns
}

// RegisterStep adds a build step. Duplicate names are not rejected here;
// they surface as a build failure when the step graph is assembled.
func (r *Registry) RegisterStep(s *buildstep.Step) {
	slog.Debug("Registering build step.", "step", s.Name, "phase", s.Phase)
	r.steps = append(r.steps, s)
}

// Contract looks up a capability contract.
func (r *Registry) Contract(name string) (*capability.Contract, bool) {
	c, ok := r.contracts[name]
	return c, ok
}

// Steps returns the registered steps in registration order.
func (r *Registry) Steps() []*buildstep.Step {
	out := make([]*buildstep.Step, len(r.steps))
	copy(out, r.steps)
	return out
}

// Namespaces returns the registered configuration namespaces sorted by name.
func (r *Registry) Namespaces() []config.Namespace {
	out := make([]config.Namespace, 0, len(r.namespaces))
	for _, ns := range r.namespaces {
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Bindings constructs a fresh live binding for every registered capability,
// sorted by capability name.
func (r *Registry) Bindings(env capability.Env) ([]*capability.Binding, error) {
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]*capability.Binding, 0, len(names))
	for _, name := range names {
		b, err := r.factories[name](env)
		if err != nil {
			return nil, fmt.Errorf("create binding for capability %q: %w", name, err)
		}
		if b.Capability != name {
			return nil, fmt.Errorf("factory for capability %q returned a binding for %q", name, b.Capability)
		}
		out = append(out, b)
	}
	return out, nil
}
