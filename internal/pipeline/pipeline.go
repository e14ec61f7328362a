// Package pipeline runs one build attempt end to end: bind configuration,
// assemble and plan the step graph, execute it and sequence the recorded
// actions into an artifact.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/specialistvlad/bootreplay/internal/action"
	"github.com/specialistvlad/bootreplay/internal/buildstep"
	"github.com/specialistvlad/bootreplay/internal/config"
	"github.com/specialistvlad/bootreplay/internal/ctxlog"
	"github.com/specialistvlad/bootreplay/internal/registry"
	"github.com/specialistvlad/bootreplay/internal/sequencer"
)

// Builder builds artifacts from the steps of a registry.
type Builder struct {
	Registry     *registry.Registry
	ResourceRoot string
	Workers      int
}

// Result is the output of one build attempt.
type Result struct {
	// Artifact is nil when the build failed.
	Artifact *action.Artifact
	// Watched lists the resources the attempt read, including those of a
	// failed attempt, so that fixing a resource can trigger a new build.
	Watched  []string
	Snapshot *config.Snapshot
}

// Build runs a build against the merged configuration values. Any error
// aborts the attempt before a sequence is produced; the returned Result is
// never nil.
func (b *Builder) Build(ctx context.Context, values map[string]string) (*Result, error) {
	logger := ctxlog.FromContext(ctx)
	start := time.Now()
	res := &Result{Watched: []string{}}

	snap, err := config.BindAll(values, b.Registry.Namespaces())
	if err != nil {
		return res, fmt.Errorf("bind configuration: %w", err)
	}
	res.Snapshot = snap
	logger.Debug("Configuration bound.", "namespaces", snap.Namespaces(), "fingerprint", snap.Fingerprint())

	g := buildstep.NewGraph()
	for _, s := range b.Registry.Steps() {
		if err := g.Add(s); err != nil {
			return res, fmt.Errorf("assemble build graph: %w", err)
		}
	}

	seeds := snap.Seeds()
	seedNames := make([]string, 0, len(seeds))
	for name := range seeds {
		seedNames = append(seedNames, name)
	}
	plan, err := g.Plan(seedNames)
	if err != nil {
		return res, fmt.Errorf("plan build graph: %w", err)
	}
	logger.Debug("Build graph planned.", "order", plan.Order())

	outcome, err := plan.Execute(ctx, buildstep.Env{
		Contracts:    b.Registry,
		Seeds:        seeds,
		ResourceRoot: b.ResourceRoot,
		Workers:      b.Workers,
	})
	if outcome != nil {
		res.Watched = outcome.Watched
	}
	if err != nil {
		return res, fmt.Errorf("execute build graph: %w", err)
	}

	art, err := sequencer.Artifact(outcome, snap.Fingerprint())
	if err != nil {
		return res, fmt.Errorf("sequence actions: %w", err)
	}
	res.Artifact = art

	counts := make([]any, 0, 2*len(action.Phases))
	for _, p := range action.Phases {
		counts = append(counts, string(p), art.Sequence(p).Len())
	}
	logger.Info("Build complete.", append([]any{"steps", len(outcome.Order), "duration", time.Since(start)}, counts...)...)
	return res, nil
}
