package buildstep

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/specialistvlad/bootreplay/internal/action"
	"github.com/specialistvlad/bootreplay/internal/dag"
	"github.com/specialistvlad/bootreplay/internal/failure"
)

// Descriptor is the static description of a step.
type Descriptor struct {
	Name string
	// Phase tags every action the step records.
	Phase   action.Phase
	Inputs  []string
	Outputs []string
}

// RunFunc is the body of a step. It reads inputs, produces outputs and
// records actions through bc; it must not cause side effects itself.
type RunFunc func(ctx context.Context, bc *Context) error

// Step is a unit of build-time logic.
type Step struct {
	Descriptor
	Run RunFunc
}

// Graph collects the steps of one build.
type Graph struct {
	steps map[string]*Step
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{steps: make(map[string]*Step)}
}

// Add registers a step. Step names are unique within a graph.
func (g *Graph) Add(s *Step) error {
	if s == nil || s.Name == "" {
		return errors.New("step must have a name")
	}
	if !s.Phase.Valid() {
		return fmt.Errorf("step %q: unknown phase %q", s.Name, s.Phase)
	}
	if s.Run == nil {
		return fmt.Errorf("step %q has no run function", s.Name)
	}
	if _, exists := g.steps[s.Name]; exists {
		return failure.New(failure.ErrDuplicateStepName, "step %q is registered twice", s.Name)
	}
	g.steps[s.Name] = s
	return nil
}

// Len returns the number of registered steps.
func (g *Graph) Len() int { return len(g.steps) }

// Names returns the registered step names in sorted order.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.steps))
	for n := range g.steps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Plan is a validated, ordered graph ready to execute.
type Plan struct {
	steps map[string]*Step
	dag   *dag.Graph
	order []string
	seeds map[string]bool
}

// Plan resolves producers and computes the execution order. Seeds are the
// items available before any step runs.
func (g *Graph) Plan(seeds []string) (*Plan, error) {
	seedSet := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		seedSet[s] = true
	}

	d := dag.New()
	producers := make(map[string]string)
	for _, name := range g.Names() {
		d.AddNode(name)
		for _, out := range g.steps[name].Outputs {
			if seedSet[out] {
				return nil, failure.New(failure.ErrDuplicateProducer,
					"item %q is produced by step %q and also provided up front", out, name)
			}
			if other, ok := producers[out]; ok {
				return nil, failure.New(failure.ErrDuplicateProducer,
					"item %q is produced by both %q and %q", out, other, name)
			}
			producers[out] = name
		}
	}

	for _, name := range g.Names() {
		for _, in := range g.steps[name].Inputs {
			if seedSet[in] {
				continue
			}
			producer, ok := producers[in]
			if !ok {
				return nil, failure.New(failure.ErrUnsatisfiedInput,
					"step %q consumes %q, which no step produces", name, in)
			}
			if producer == name {
				return nil, failure.New(failure.ErrCyclicBuildStepDependency,
					"step %q consumes its own output %q", name, in)
			}
			if err := d.AddEdge(producer, name); err != nil {
				return nil, fmt.Errorf("link %s -> %s: %w", producer, name, err)
			}
		}
	}

	order, err := d.TopologicalOrder()
	if err != nil {
		var cycle *dag.CycleError
		if errors.As(err, &cycle) {
			return nil, failure.Wrap(failure.ErrCyclicBuildStepDependency, err, "build steps depend on each other")
		}
		return nil, err
	}

	return &Plan{steps: g.steps, dag: d, order: order, seeds: seedSet}, nil
}

// Order returns the step names in execution order.
func (p *Plan) Order() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}
