// Package recorder captures capability invocations made by a build step.
// Nothing is executed: each call becomes a RecordedAction that the runtime
// replays later against the live capability.
package recorder

import (
	"fmt"
	"sync"

	"github.com/specialistvlad/bootreplay/internal/action"
	"github.com/specialistvlad/bootreplay/internal/capability"
	"github.com/specialistvlad/bootreplay/internal/failure"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Contracts resolves capability contracts by name.
type Contracts interface {
	Contract(name string) (*capability.Contract, bool)
}

// Recorder collects the actions of a single build step. The first error is
// sticky: once a call fails, the step's output is unusable and the build
// must abort.
type Recorder struct {
	step      string
	phase     action.Phase
	contracts Contracts

	mu      sync.Mutex
	actions []action.RecordedAction
	err     error
}

// New returns a recorder for step whose actions belong to phase.
func New(step string, phase action.Phase, contracts Contracts) *Recorder {
	return &Recorder{
		step:      step,
		phase:     phase,
		contracts: contracts,
		actions:   []action.RecordedAction{},
	}
}

// Step returns the name of the owning build step.
func (r *Recorder) Step() string { return r.step }

// Phase returns the phase recorded actions are tagged with.
func (r *Recorder) Phase() action.Phase { return r.phase }

// Record captures capability.method(args...).
func (r *Recorder) Record(capabilityName, method string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	rec, err := r.capture(capabilityName, method, args)
	if err != nil {
		r.err = err
		return err
	}
	r.actions = append(r.actions, rec)
	return nil
}

func (r *Recorder) capture(capabilityName, method string, args []any) (action.RecordedAction, error) {
	contract, ok := r.contracts.Contract(capabilityName)
	if !ok {
		return action.RecordedAction{}, failure.New(failure.ErrUnsupportedRecording,
			"step %q: capability %q is not declared", r.step, capabilityName)
	}
	m, ok := contract.Method(method)
	if !ok {
		return action.RecordedAction{}, failure.New(failure.ErrUnsupportedRecording,
			"step %q: capability %q has no operation %q", r.step, capabilityName, method)
	}
	if !m.EffectOnly() {
		return action.RecordedAction{}, failure.New(failure.ErrUnsupportedRecording,
			"step %q: %s.%s returns %s, which is not available at build time",
			r.step, capabilityName, method, m.Result.FriendlyName())
	}
	if len(args) != len(m.Params) {
		return action.RecordedAction{}, failure.New(failure.ErrUnsupportedRecording,
			"step %q: %s.%s takes %d arguments, got %d", r.step, capabilityName, method, len(m.Params), len(args))
	}

	encoded := make([]action.Value, len(args))
	for i, arg := range args {
		v, err := action.Encode(arg)
		if err != nil {
			return action.RecordedAction{}, failure.Wrap(failure.ErrNonSerializableArgument, err,
				"step %q: %s.%s argument %d", r.step, capabilityName, method, i)
		}
		if v, err = conform(v, m.Params[i]); err != nil {
			return action.RecordedAction{}, failure.Wrap(failure.ErrUnsupportedRecording, err,
				"step %q: %s.%s argument %d", r.step, capabilityName, method, i)
		}
		encoded[i] = v
	}

	return action.RecordedAction{
		Capability: capabilityName,
		Method:     method,
		Args:       encoded,
		Phase:      r.phase,
	}, nil
}

// conform converts v to the declared parameter type, so an argument that
// could never be replayed fails the build instead of the startup.
func conform(v action.Value, want cty.Type) (action.Value, error) {
	cv, err := v.Decode()
	if err != nil {
		return action.Value{}, err
	}
	if cv.Type().Equals(want) {
		return v, nil
	}
	conv, err := convert.Convert(cv, want)
	if err != nil {
		return action.Value{}, fmt.Errorf("%s does not fit parameter type %s: %w",
			cv.Type().FriendlyName(), want.FriendlyName(), err)
	}
	return action.Encode(conv)
}

// Actions returns a copy of the recorded actions in call order.
func (r *Recorder) Actions() []action.RecordedAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]action.RecordedAction, len(r.actions))
	copy(out, r.actions)
	return out
}

// Err returns the first recording error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
