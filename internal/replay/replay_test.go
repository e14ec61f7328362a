package replay

import (
	"context"
	"errors"
	"testing"

	"github.com/specialistvlad/bootreplay/internal/action"
	"github.com/specialistvlad/bootreplay/internal/capability"
	"github.com/specialistvlad/bootreplay/internal/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePrinter struct {
	lines []string
	fail  error
}

func (f *fakePrinter) binding() *capability.Binding {
	return &capability.Binding{
		Capability: "printer",
		Methods: map[string]any{
			"print": func(_ context.Context, msg string) error {
				if f.fail != nil {
					return f.fail
				}
				f.lines = append(f.lines, msg)
				return nil
			},
			"repeat": func(_ context.Context, msg string, times int) error {
				for i := 0; i < times; i++ {
					f.lines = append(f.lines, msg)
				}
				return nil
			},
		},
	}
}

func act(t *testing.T, phase action.Phase, capName, method string, args ...any) action.RecordedAction {
	t.Helper()
	vals := make([]action.Value, len(args))
	for i, a := range args {
		v, err := action.Encode(a)
		require.NoError(t, err)
		vals[i] = v
	}
	return action.RecordedAction{Capability: capName, Method: method, Args: vals, Phase: phase}
}

func seq(phase action.Phase, actions ...action.RecordedAction) *action.ActionSequence {
	return &action.ActionSequence{Phase: phase, Actions: actions}
}

func TestOnStartup_ReplaysInOrder(t *testing.T) {
	t.Parallel()

	printer := &fakePrinter{}
	p, err := NewProcess(printer.binding())
	require.NoError(t, err)

	err = p.OnStartup(context.Background(), seq(action.Startup,
		act(t, action.Startup, "printer", "print", "HELLO"),
		act(t, action.Startup, "printer", "repeat", "x", 2),
		act(t, action.Startup, "printer", "print", "BYE"),
	))

	require.NoError(t, err)
	assert.Equal(t, []string{"HELLO", "x", "x", "BYE"}, printer.lines)
}

func TestExecute_ExactlyOncePerPhase(t *testing.T) {
	t.Parallel()

	printer := &fakePrinter{}
	p, err := NewProcess(printer.binding())
	require.NoError(t, err)
	s := seq(action.Startup, act(t, action.Startup, "printer", "print", "HELLO"))

	require.NoError(t, p.OnStartup(context.Background(), s))
	err = p.OnStartup(context.Background(), s)

	assert.True(t, errors.Is(err, failure.ErrPhaseAlreadyExecuted))
	assert.Equal(t, []string{"HELLO"}, printer.lines, "second call must not replay")

	fp, ok := p.Executed(action.Startup)
	assert.True(t, ok)
	assert.Equal(t, s.Fingerprint(), fp)
	_, ok = p.Executed(action.StaticInit)
	assert.False(t, ok)

	// STATIC_INIT is independent and still available.
	assert.NoError(t, p.OnStaticInit(context.Background(), nil))
}

func TestExecute_RuntimeFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		action func(t *testing.T) action.RecordedAction
		kind   error
	}{
		{
			name:   "unknown capability",
			action: func(t *testing.T) action.RecordedAction { return act(t, action.Startup, "mailer", "send", "x") },
			kind:   failure.ErrUnresolvedCapability,
		},
		{
			name:   "unknown operation",
			action: func(t *testing.T) action.RecordedAction { return act(t, action.Startup, "printer", "flush") },
			kind:   failure.ErrUnresolvedCapability,
		},
		{
			name:   "argument of the wrong type",
			action: func(t *testing.T) action.RecordedAction { return act(t, action.Startup, "printer", "print", 42) },
			kind:   failure.ErrReplayTypeMismatch,
		},
		{
			name:   "wrong arity",
			action: func(t *testing.T) action.RecordedAction { return act(t, action.Startup, "printer", "print", "a", "b") },
			kind:   failure.ErrReplayTypeMismatch,
		},
		{
			name: "corrupt argument",
			action: func(t *testing.T) action.RecordedAction {
				a := act(t, action.Startup, "printer", "print", "x")
				a.Args[0].Value = []byte(`{`)
				return a
			},
			kind: failure.ErrReplayTypeMismatch,
		},
		{
			name:   "action tagged with another phase",
			action: func(t *testing.T) action.RecordedAction { return act(t, action.StaticInit, "printer", "print", "x") },
			kind:   failure.ErrReplayTypeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			printer := &fakePrinter{}
			p, err := NewProcess(printer.binding())
			require.NoError(t, err)

			err = p.OnStartup(context.Background(), seq(action.Startup, tt.action(t)))

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
			assert.True(t, failure.IsRuntime(err))
			assert.Empty(t, printer.lines)
		})
	}
}

func TestExecute_StopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	printer := &fakePrinter{}
	p, err := NewProcess(printer.binding())
	require.NoError(t, err)

	err = p.OnStartup(context.Background(), seq(action.Startup,
		act(t, action.Startup, "printer", "print", "one"),
		act(t, action.Startup, "ghost", "boo"),
		act(t, action.Startup, "printer", "print", "never"),
	))

	assert.True(t, errors.Is(err, failure.ErrUnresolvedCapability))
	assert.ErrorContains(t, err, "action 1")
	assert.Equal(t, []string{"one"}, printer.lines)

	// No partial-phase recovery: the phase is consumed.
	assert.True(t, errors.Is(p.OnStartup(context.Background(), nil), failure.ErrPhaseAlreadyExecuted))
}

func TestExecute_InvocationFailed(t *testing.T) {
	t.Parallel()

	cause := errors.New("terminal gone")
	printer := &fakePrinter{fail: cause}
	p, err := NewProcess(printer.binding())
	require.NoError(t, err)

	err = p.OnStartup(context.Background(), seq(action.Startup, act(t, action.Startup, "printer", "print", "x")))

	assert.True(t, errors.Is(err, failure.ErrInvocationFailed))
	assert.True(t, errors.Is(err, cause))
}

func TestExecute_SequenceForAnotherPhase(t *testing.T) {
	t.Parallel()

	p, err := NewProcess()
	require.NoError(t, err)

	err = p.OnStaticInit(context.Background(), seq(action.Startup))
	assert.True(t, errors.Is(err, failure.ErrReplayTypeMismatch))
}

func TestNewProcess_RejectsBadBindings(t *testing.T) {
	t.Parallel()

	_, err := NewProcess(&capability.Binding{
		Capability: "printer",
		Methods:    map[string]any{"print": func(msg string) {}},
	})
	assert.ErrorContains(t, err, "context.Context")

	printer := &fakePrinter{}
	_, err = NewProcess(printer.binding(), printer.binding())
	assert.ErrorContains(t, err, "bound twice")

	p, err := NewProcess(printer.binding())
	require.NoError(t, err)
	assert.Equal(t, []string{"printer"}, p.Capabilities())
}
