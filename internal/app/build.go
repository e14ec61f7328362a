package app

import (
	"context"
	"fmt"

	"github.com/specialistvlad/bootreplay/internal/action"
)

// Build runs one build, persists the artifact when a store is configured
// and writes its canonical JSON to the output.
func (a *App) Build(ctx context.Context) (*action.Artifact, error) {
	ctx = a.withLogger(ctx)
	a.logger.Debug("App.Build method started.")

	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	if store != nil {
		defer store.Close()
	}

	at, err := a.build(ctx)
	if err != nil {
		return nil, fmt.Errorf("build failed: %w", err)
	}
	a.persist(ctx, store, at)

	b, err := at.Artifact.Bytes()
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(a.outW, string(b))
	return at.Artifact, nil
}
