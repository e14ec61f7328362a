package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Run(t *testing.T) {
	t.Parallel()
	out := &bytes.Buffer{}

	inv, shouldExit, err := Parse([]string{
		"run", "-c", "a.hcl", "--set", "banner.path=b.txt", "--set", "x=y",
		"--root", "/srv", "--workers", "3", "--log-format", "TEXT", "--store", "state.db", "extra.yaml",
	}, out)

	require.NoError(t, err)
	require.False(t, shouldExit)
	assert.Equal(t, CommandRun, inv.Command)
	assert.Equal(t, []string{"a.hcl", "extra.yaml"}, inv.Config.ConfigPaths)
	assert.Equal(t, []string{"banner.path=b.txt", "x=y"}, inv.Config.Overrides)
	assert.Equal(t, "/srv", inv.Config.ResourceRoot)
	assert.Equal(t, 3, inv.Config.WorkerCount)
	assert.Equal(t, "text", inv.Config.LogFormat)
	assert.Equal(t, "info", inv.Config.LogLevel)
	assert.Equal(t, "state.db", inv.Config.StorePath)
}

func TestParse_WatchFlags(t *testing.T) {
	t.Parallel()

	inv, _, err := Parse([]string{"watch", "--debounce", "50ms", "--poll-interval", "1s",
		"--notify=false", "--report-url", "http://localhost:3000/socket.io/"}, &bytes.Buffer{})

	require.NoError(t, err)
	assert.Equal(t, CommandWatch, inv.Command)
	assert.Equal(t, 50*time.Millisecond, inv.Config.Debounce)
	assert.Equal(t, time.Second, inv.Config.PollInterval)
	assert.False(t, inv.Config.UseNotify)
	assert.Equal(t, "http://localhost:3000/socket.io/", inv.Config.ReportURL)
}

func TestParse_WatchDefaults(t *testing.T) {
	t.Parallel()

	inv, _, err := Parse([]string{"watch"}, &bytes.Buffer{})

	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, inv.Config.Debounce)
	assert.True(t, inv.Config.UseNotify)
	assert.Equal(t, ".", inv.Config.ResourceRoot)
	assert.Equal(t, 10, inv.Config.WorkerCount)
}

func TestParse_Help(t *testing.T) {
	t.Parallel()
	for _, args := range [][]string{nil, {"--help"}, {"run", "-h"}} {
		out := &bytes.Buffer{}

		inv, shouldExit, err := Parse(args, out)

		require.NoError(t, err, args)
		assert.True(t, shouldExit, args)
		assert.Nil(t, inv)
		assert.Contains(t, out.String(), "Usage:")
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown flag", []string{"run", "--nope"}, "unknown flag: --nope"},
		{"bad log format", []string{"build", "--log-format", "xml"}, "invalid log-format"},
		{"bad log level", []string{"build", "--log-level", "loud"}, "invalid log-level"},
		{"bad override", []string{"build", "--set", "novalue"}, "expected key=value"},
		{"no workers", []string{"build", "--workers", "0"}, "WorkerCount must be positive"},
		{"watch without observer", []string{"watch", "--notify=false"}, "--poll-interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := Parse(tt.args, &bytes.Buffer{})

			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tt.want)
		})
	}
}
