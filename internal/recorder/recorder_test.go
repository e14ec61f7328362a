package recorder

import (
	"errors"
	"math"
	"testing"

	"github.com/specialistvlad/bootreplay/internal/action"
	"github.com/specialistvlad/bootreplay/internal/capability"
	"github.com/specialistvlad/bootreplay/internal/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

type contracts map[string]*capability.Contract

func (c contracts) Contract(name string) (*capability.Contract, bool) {
	ct, ok := c[name]
	return ct, ok
}

func testContracts() contracts {
	return contracts{
		"printer": capability.NewContract("printer",
			&capability.Method{Name: "print", Params: []cty.Type{cty.String}},
			&capability.Method{Name: "width", Result: cty.Number},
		),
		"gauge": capability.NewContract("gauge",
			&capability.Method{Name: "set", Params: []cty.Type{cty.Number}},
		),
	}
}

func TestRecord_CapturesInsteadOfExecuting(t *testing.T) {
	t.Parallel()

	rec := New("banner-print", action.Startup, testContracts())

	require.NoError(t, rec.Record("printer", "print", "HELLO"))
	require.NoError(t, rec.Record("printer", "print", "WORLD"))

	actions := rec.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, `printer.print("HELLO")`, actions[0].String())
	assert.Equal(t, `printer.print("WORLD")`, actions[1].String())
	assert.Equal(t, action.Startup, actions[0].Phase)
	assert.NoError(t, rec.Err())
}

func TestRecord_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		call func(r *Recorder) error
		kind error
	}{
		{
			name: "operation with a result",
			call: func(r *Recorder) error { return r.Record("printer", "width") },
			kind: failure.ErrUnsupportedRecording,
		},
		{
			name: "undeclared capability",
			call: func(r *Recorder) error { return r.Record("mailer", "send", "x") },
			kind: failure.ErrUnsupportedRecording,
		},
		{
			name: "undeclared operation",
			call: func(r *Recorder) error { return r.Record("printer", "flush") },
			kind: failure.ErrUnsupportedRecording,
		},
		{
			name: "wrong arity",
			call: func(r *Recorder) error { return r.Record("printer", "print", "a", "b") },
			kind: failure.ErrUnsupportedRecording,
		},
		{
			name: "live object argument",
			call: func(r *Recorder) error { return r.Record("printer", "print", make(chan string)) },
			kind: failure.ErrNonSerializableArgument,
		},
		{
			name: "NaN argument",
			call: func(r *Recorder) error { return r.Record("gauge", "set", math.NaN()) },
			kind: failure.ErrNonSerializableArgument,
		},
		{
			name: "list for a string parameter",
			call: func(r *Recorder) error { return r.Record("printer", "print", []string{"a", "b"}) },
			kind: failure.ErrUnsupportedRecording,
		},
		{
			name: "text for a number parameter",
			call: func(r *Recorder) error { return r.Record("gauge", "set", "high") },
			kind: failure.ErrUnsupportedRecording,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := New("step", action.Startup, testContracts())

			err := tt.call(rec)

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
			assert.True(t, failure.IsBuild(err))
			assert.Empty(t, rec.Actions())
		})
	}
}

func TestRecord_ConvertsToParameterType(t *testing.T) {
	t.Parallel()

	rec := New("gauge-set", action.Startup, testContracts())

	require.NoError(t, rec.Record("printer", "print", 42))
	require.NoError(t, rec.Record("gauge", "set", "7"))

	actions := rec.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, `printer.print("42")`, actions[0].String())
	assert.Equal(t, `gauge.set(7)`, actions[1].String())
}

func TestRecord_ErrorIsSticky(t *testing.T) {
	t.Parallel()

	rec := New("step", action.StaticInit, testContracts())
	first := rec.Record("printer", "print", func() {})
	require.Error(t, first)

	// Later valid calls are refused so a half-recorded step never escapes.
	err := rec.Record("printer", "print", "fine")
	assert.Equal(t, first, err)
	assert.Equal(t, first, rec.Err())
	assert.Empty(t, rec.Actions())
}
