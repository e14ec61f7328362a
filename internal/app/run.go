package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/bootreplay/internal/action"
	"github.com/specialistvlad/bootreplay/internal/artifactstore"
	"github.com/specialistvlad/bootreplay/internal/session"
)

// Run builds the artifact and boots a process from it. When the build
// fails, the last persisted artifact is booted instead; with none available
// the process refuses to start.
func (a *App) Run(ctx context.Context) error {
	ctx = a.withLogger(ctx)
	a.logger.Debug("App.Run method started.")

	store, err := a.openStore()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	art, _, err := a.initial(ctx, store)
	if err != nil {
		return err
	}

	sess := session.New(a.newProcess)
	defer sess.Close(ctx)

	stop := a.startHealthcheck(ctx, sess)
	defer stop()

	a.logger.Info("🚀 Replaying artifact.", "fingerprint", art.Fingerprint())
	if err := sess.Boot(ctx, art); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	a.logger.Info("🏁 Startup finished.")
	return nil
}

// initial runs the first build and falls back to the stored artifact when
// it fails. The attempt is returned either way so its resources can be
// watched.
func (a *App) initial(ctx context.Context, store *artifactstore.Store) (*action.Artifact, attempt, error) {
	at, buildErr := a.build(ctx)
	if buildErr == nil {
		a.persist(ctx, store, at)
		return at.Artifact, at, nil
	}
	a.logger.Error("Build failed.", "error", buildErr)

	if store != nil {
		prev, err := store.Latest(ctx)
		switch {
		case err == nil:
			a.logger.Warn("Using the last valid artifact.", "fingerprint", prev.Fingerprint())
			return prev, at, nil
		case !errors.Is(err, artifactstore.ErrNotFound):
			a.logger.Error("Failed to load the last valid artifact.", "error", err)
		}
	}
	return nil, at, fmt.Errorf("refusing to start without a valid artifact: %w", buildErr)
}
