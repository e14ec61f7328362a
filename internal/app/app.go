package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/specialistvlad/bootreplay/internal/artifactstore"
	"github.com/specialistvlad/bootreplay/internal/capability"
	"github.com/specialistvlad/bootreplay/internal/config"
	"github.com/specialistvlad/bootreplay/internal/ctxlog"
	"github.com/specialistvlad/bootreplay/internal/pipeline"
	"github.com/specialistvlad/bootreplay/internal/registry"
	"github.com/specialistvlad/bootreplay/internal/replay"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	config   *Config
	builder  *pipeline.Builder
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
// A registry whose contracts and bindings disagree is a programmer error
// and panics.
func NewApp(outW io.Writer, cfg *Config, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	if len(modules) == 0 {
		modules = coreModules
	}
	reg := registry.Load(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules))

	if err := reg.ValidateRegistry(ctx); err != nil {
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		config:   cfg,
		builder: &pipeline.Builder{
			Registry:     reg,
			ResourceRoot: cfg.ResourceRoot,
			Workers:      cfg.WorkerCount,
		},
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

func (a *App) withLogger(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

// attempt is one build with the configuration files it read.
type attempt struct {
	*pipeline.Result
	configFiles []string
}

// watched returns every path the attempt depends on.
func (at attempt) watched() []string {
	out := append([]string{}, at.configFiles...)
	if at.Result != nil {
		out = append(out, at.Result.Watched...)
	}
	return out
}

// build loads configuration from files, environment and overrides, in
// increasing precedence, and runs one build.
func (a *App) build(ctx context.Context) (attempt, error) {
	at := attempt{Result: &pipeline.Result{}}

	files, err := config.LoadFiles(ctx, a.config.ConfigPaths...)
	for _, src := range files {
		at.configFiles = append(at.configFiles, src.Name)
	}
	if err != nil {
		return at, fmt.Errorf("load configuration: %w", err)
	}
	environ := a.config.Environ
	if environ == nil {
		environ = os.Environ()
	}
	overrides, err := config.ParseSet(a.config.Overrides)
	if err != nil {
		return at, err
	}
	sources := append(files, config.FromEnviron(environ), overrides)
	values := config.Merge(sources...)

	res, err := a.builder.Build(ctx, values)
	at.Result = res
	return at, err
}

// newProcess binds every capability to its live implementation.
func (a *App) newProcess() (*replay.Process, error) {
	bindings, err := a.registry.Bindings(capability.Env{Out: a.outW, Logger: a.logger})
	if err != nil {
		return nil, err
	}
	return replay.NewProcess(bindings...)
}

// openStore returns nil when persistence is disabled.
func (a *App) openStore() (*artifactstore.Store, error) {
	if a.config.StorePath == "" {
		return nil, nil
	}
	store, err := artifactstore.Open(a.config.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	return store, nil
}

func (a *App) persist(ctx context.Context, store *artifactstore.Store, at attempt) {
	if store == nil || at.Artifact == nil {
		return
	}
	saved, err := store.Save(ctx, at.Artifact)
	if err != nil {
		a.logger.Error("Failed to persist artifact.", "error", err)
		return
	}
	a.logger.Debug("Artifact persisted.", "new", saved, "fingerprint", at.Artifact.Fingerprint())
}
