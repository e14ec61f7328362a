package testutil

import (
	"errors"
	"testing"

	"github.com/specialistvlad/bootreplay/internal/action"
	"github.com/specialistvlad/bootreplay/internal/failure"
	"github.com/stretchr/testify/require"
)

// RequireKind asserts that err carries the given failure kind.
func RequireKind(t *testing.T, err error, kind error) {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, kind), "expected %v, got: %v", kind, err)
	require.NotEqual(t, failure.ClassUnknown, failure.ClassOf(err), "error is not classified: %v", err)
}

// Render returns the human readable form of every action in seq.
func Render(seq *action.ActionSequence) []string {
	out := make([]string, 0, seq.Len())
	for _, a := range seq.Actions {
		out = append(out, a.String())
	}
	return out
}
