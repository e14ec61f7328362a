package failure

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_MatchesKindAndCause(t *testing.T) {
	t.Parallel()

	err := Wrap(ErrStepFailed, fs.ErrNotExist, "step %q", "banner-resource")
	wrapped := fmt.Errorf("build: %w", err)

	assert.True(t, errors.Is(wrapped, ErrStepFailed))
	assert.True(t, errors.Is(wrapped, fs.ErrNotExist))
	assert.False(t, errors.Is(wrapped, ErrDuplicateStepName))
	assert.Equal(t, `StepFailed: step "banner-resource": file does not exist`, err.Error())
}

func TestClassOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"build", New(ErrCyclicBuildStepDependency, "a -> b -> a"), ClassBuild},
		{"runtime", New(ErrUnresolvedCapability, "printer"), ClassRuntime},
		{"watch", New(ErrResourceUnreadable, "banner.txt"), ClassWatch},
		{"wrapped runtime", fmt.Errorf("boot: %w", New(ErrReplayTypeMismatch, "arg 0")), ClassRuntime},
		{"plain", errors.New("boom"), ClassUnknown},
		{"nil", nil, ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ClassOf(tt.err))
		})
	}

	assert.True(t, IsBuild(New(ErrMissingRequiredConfig, "banner.path")))
	assert.True(t, IsRuntime(New(ErrPhaseAlreadyExecuted, "STARTUP")))
	assert.Equal(t, "BuildFailure", ClassBuild.String())
}
