package cli

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/specialistvlad/bootreplay/internal/app"
	"github.com/specialistvlad/bootreplay/internal/watcher"
	"github.com/spf13/cobra"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Command names the lifecycle to run.
type Command string

const (
	CommandBuild Command = "build"
	CommandRun   Command = "run"
	CommandWatch Command = "watch"
)

// Invocation is a parsed command line.
type Invocation struct {
	Command Command
	Config  *app.Config
}

type flags struct {
	configPaths     []string
	overrides       []string
	root            string
	workers         int
	logFormat       string
	logLevel        string
	store           string
	healthcheckPort int

	debounce     time.Duration
	pollInterval time.Duration
	notify       bool
	reportURL    string
}

// Parse processes command-line arguments. It returns the invocation, a
// boolean indicating if the program should exit cleanly (help was shown),
// or an ExitError.
func Parse(args []string, output io.Writer) (*Invocation, bool, error) {
	slog.Debug("CLI parser started.")
	var (
		f   flags
		inv *Invocation
	)

	capture := func(c Command) func(*cobra.Command, []string) error {
		return func(_ *cobra.Command, positional []string) error {
			cfg, err := f.config(positional, c == CommandWatch)
			if err != nil {
				return err
			}
			inv = &Invocation{Command: c, Config: cfg}
			return nil
		}
	}

	root := &cobra.Command{
		Use:   "bootreplay",
		Short: "Record startup work at build time and replay it when the process starts.",
		Long: `bootreplay runs build steps that read configuration and resources, records
the capability calls they make and replays them, in phase order, when the
process starts.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	if args == nil {
		// cobra falls back to os.Args for a nil slice.
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(output)
	root.SetErr(output)

	pf := root.PersistentFlags()
	pf.StringSliceVarP(&f.configPaths, "config", "c", nil, "Configuration file or directory (.hcl, .yaml). Repeatable.")
	pf.StringArrayVar(&f.overrides, "set", nil, "Override a configuration value, as key=value. Repeatable.")
	pf.StringVar(&f.root, "root", ".", "Directory relative resource paths are resolved against.")
	pf.IntVar(&f.workers, "workers", 10, "Number of concurrent workers for build steps.")
	pf.StringVar(&f.logFormat, "log-format", "json", "Log output format. Options: 'text' or 'json'.")
	pf.StringVar(&f.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.StringVar(&f.store, "store", "", "SQLite file keeping the last valid artifact. Empty disables it.")
	pf.IntVar(&f.healthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")

	buildCmd := &cobra.Command{
		Use:   "build [CONFIG_PATH...]",
		Short: "Run the build steps and print the artifact",
		RunE:  capture(CommandBuild),
	}
	runCmd := &cobra.Command{
		Use:   "run [CONFIG_PATH...]",
		Short: "Build, then replay the artifact once",
		RunE:  capture(CommandRun),
	}
	watchCmd := &cobra.Command{
		Use:   "watch [CONFIG_PATH...]",
		Short: "Run, then rebuild whenever a watched resource changes",
		RunE:  capture(CommandWatch),
	}
	wf := watchCmd.Flags()
	wf.DurationVar(&f.debounce, "debounce", watcher.DefaultDebounce, "Quiet period after the last change before rebuilding.")
	wf.DurationVar(&f.pollInterval, "poll-interval", 0, "Poll watched resources at this interval. 0 disables polling.")
	wf.BoolVar(&f.notify, "notify", true, "Use file system notifications.")
	wf.StringVar(&f.reportURL, "report-url", "", "socket.io endpoint receiving rebuild status events.")

	root.AddCommand(buildCmd, runCmd, watchCmd)

	if err := root.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return nil, false, exitErr
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if inv == nil {
		return nil, true, nil
	}
	slog.Debug("CLI parser finished successfully.", "command", inv.Command)
	return inv, false, nil
}

func (f *flags) config(positional []string, watching bool) (*app.Config, error) {
	logFormat := strings.ToLower(f.logFormat)
	if logFormat != "text" && logFormat != "json" {
		return nil, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(f.logLevel)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	if watching && !f.notify && f.pollInterval <= 0 {
		return nil, &ExitError{Code: 2, Message: "watch needs --notify or a positive --poll-interval"}
	}
	slog.Debug("CLI parameter validation complete.")

	cfg, err := app.NewConfig(app.Config{
		ConfigPaths:     append(append([]string{}, f.configPaths...), positional...),
		Overrides:       f.overrides,
		ResourceRoot:    f.root,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		WorkerCount:     f.workers,
		HealthcheckPort: f.healthcheckPort,
		StorePath:       f.store,
		Debounce:        f.debounce,
		PollInterval:    f.pollInterval,
		UseNotify:       f.notify,
		ReportURL:       f.reportURL,
	})
	if err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	return cfg, nil
}
