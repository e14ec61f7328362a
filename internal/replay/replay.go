// Package replay executes recorded action sequences against live
// capabilities. A Process models one process lifetime: each phase runs at
// most once, sequentially, on the caller's goroutine.
package replay

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/specialistvlad/bootreplay/internal/action"
	"github.com/specialistvlad/bootreplay/internal/capability"
	"github.com/specialistvlad/bootreplay/internal/ctxlog"
	"github.com/specialistvlad/bootreplay/internal/failure"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Process owns the live bindings of one process lifetime.
type Process struct {
	bindings map[string]*capability.Binding

	mu       sync.Mutex
	executed map[action.Phase]string
}

// NewProcess validates the bindings and returns a process in which no phase
// has executed yet.
func NewProcess(bindings ...*capability.Binding) (*Process, error) {
	p := &Process{
		bindings: make(map[string]*capability.Binding, len(bindings)),
		executed: make(map[action.Phase]string),
	}
	for _, b := range bindings {
		if err := b.Validate(); err != nil {
			return nil, err
		}
		if _, dup := p.bindings[b.Capability]; dup {
			return nil, fmt.Errorf("capability %q is bound twice", b.Capability)
		}
		p.bindings[b.Capability] = b
	}
	return p, nil
}

// Capabilities returns the bound capability names in sorted order.
func (p *Process) Capabilities() []string {
	names := make([]string, 0, len(p.bindings))
	for n := range p.bindings {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// OnStaticInit is the host hook for the STATIC_INIT phase.
func (p *Process) OnStaticInit(ctx context.Context, seq *action.ActionSequence) error {
	return p.Execute(ctx, action.StaticInit, seq)
}

// OnStartup is the host hook for the STARTUP phase.
func (p *Process) OnStartup(ctx context.Context, seq *action.ActionSequence) error {
	return p.Execute(ctx, action.Startup, seq)
}

// Executed reports whether phase has run, and the fingerprint of the
// sequence it ran.
func (p *Process) Executed(phase action.Phase) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fp, ok := p.executed[phase]
	return fp, ok
}

// Execute replays seq as phase. A phase is consumed by its first attempt,
// successful or not: a failed phase is fatal and is never retried within
// the same process.
func (p *Process) Execute(ctx context.Context, phase action.Phase, seq *action.ActionSequence) error {
	if seq == nil {
		seq = &action.ActionSequence{Phase: phase}
	}

	p.mu.Lock()
	if _, done := p.executed[phase]; done {
		p.mu.Unlock()
		return failure.New(failure.ErrPhaseAlreadyExecuted, "phase %s has already run in this process", phase)
	}
	p.executed[phase] = seq.Fingerprint()
	p.mu.Unlock()

	logger := ctxlog.FromContext(ctx).With("phase", phase)
	if seq.Phase != phase {
		return failure.New(failure.ErrReplayTypeMismatch, "sequence of phase %s handed to the %s hook", seq.Phase, phase)
	}

	logger.Debug("Replaying phase.", "actions", seq.Len())
	for i, a := range seq.Actions {
		if a.Phase != phase {
			return failure.New(failure.ErrReplayTypeMismatch, "action %d (%s) belongs to phase %s", i, a, a.Phase)
		}
		logger.Debug("Invoking recorded action.", "index", i, "action", a.String())
		if err := p.invoke(ctx, a); err != nil {
			return fmt.Errorf("phase %s, action %d: %w", phase, i, err)
		}
	}
	logger.Debug("Phase complete.")
	return nil
}

func (p *Process) invoke(ctx context.Context, a action.RecordedAction) error {
	b, ok := p.bindings[a.Capability]
	if !ok {
		return failure.New(failure.ErrUnresolvedCapability, "no live binding for capability %q", a.Capability)
	}
	fn, ok := b.Methods[a.Method]
	if !ok {
		return failure.New(failure.ErrUnresolvedCapability, "capability %q has no operation %q", a.Capability, a.Method)
	}

	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if got, want := len(a.Args), ft.NumIn()-1; got != want {
		return failure.New(failure.ErrReplayTypeMismatch, "%s.%s takes %d arguments, recorded %d", a.Capability, a.Method, want, got)
	}

	vals, err := a.DecodeArgs()
	if err != nil {
		return failure.Wrap(failure.ErrReplayTypeMismatch, err, "%s.%s", a.Capability, a.Method)
	}

	in := make([]reflect.Value, 0, ft.NumIn())
	in = append(in, reflect.ValueOf(ctx))
	for i, v := range vals {
		target := reflect.New(ft.In(i + 1))
		if err := gocty.FromCtyValue(v, target.Interface()); err != nil {
			return failure.Wrap(failure.ErrReplayTypeMismatch, err,
				"%s.%s argument %d: recorded %s, expected %s", a.Capability, a.Method, i, v.Type().FriendlyName(), ft.In(i+1))
		}
		in = append(in, target.Elem())
	}

	out := fv.Call(in)
	if errVal := out[0].Interface(); errVal != nil {
		return failure.Wrap(failure.ErrInvocationFailed, errVal.(error), "%s", a)
	}
	return nil
}
