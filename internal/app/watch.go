package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/bootreplay/internal/artifactstore"
	"github.com/specialistvlad/bootreplay/internal/devreport"
	"github.com/specialistvlad/bootreplay/internal/failure"
	"github.com/specialistvlad/bootreplay/internal/session"
	"github.com/specialistvlad/bootreplay/internal/watcher"
)

// Watch boots like Run and then rebuilds whenever a configuration file or
// a resource read by the build changes. A failed rebuild keeps the active
// artifact. Watch starts even when no artifact exists yet, and boots once
// the first build succeeds. A runtime failure while applying a rebuilt
// artifact ends the watch with that error, like a failed startup. Otherwise
// Watch returns when ctx is cancelled.
func (a *App) Watch(ctx context.Context) error {
	ctx = a.withLogger(ctx)
	a.logger.Debug("App.Watch method started.")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store, err := a.openStore()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	sess := session.New(a.newProcess)
	defer sess.Close(ctx)

	stop := a.startHealthcheck(ctx, sess)
	defer stop()

	// Set by the coordinator goroutine, read after Run returned.
	var fatal error
	rebuild := func(ctx context.Context) (watcher.Rebuild, error) {
		at, err := a.build(ctx)
		out := watcher.Rebuild{Watched: at.watched()}
		if err != nil {
			return out, err
		}
		out.Commit = func() error {
			err := a.commit(ctx, store, sess, at)
			if failure.IsRuntime(err) {
				fatal = err
				cancel()
			}
			return err
		}
		return out, nil
	}

	art, first, err := a.initial(ctx, store)

	// Registrations are fingerprinted before the boot and the reporter dial,
	// so edits made while those run still count as changes.
	var report func(watcher.Status)
	w := watcher.New(first.watched(), rebuild, watcher.Options{
		Debounce:     a.config.Debounce,
		PollInterval: a.config.PollInterval,
		UseNotify:    a.config.UseNotify,
		OnStatus:     func(s watcher.Status) { report(s) },
	})

	if err != nil {
		a.logger.Warn("Waiting for a successful build before booting.", "error", err)
	} else if err := sess.Boot(ctx, art); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}

	reporters := []devreport.Reporter{&devreport.LogReporter{Logger: a.logger}}
	if a.config.ReportURL != "" {
		sr, err := devreport.DialSocket(ctx, a.config.ReportURL, devreport.SocketOptions{})
		if err != nil {
			a.logger.Warn("Status reporter unavailable, continuing without it.", "error", err)
		} else {
			defer sr.Close()
			reporters = append(reporters, sr)
		}
	}
	report = devreport.Fanout(reporters...)

	err = w.Run(ctx)
	if fatal != nil {
		return fmt.Errorf("startup failed: %w", fatal)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch failed: %w", err)
	}
	a.logger.Info("Watch stopped.")
	return nil
}

// commit persists a successful attempt and puts its artifact into effect.
func (a *App) commit(ctx context.Context, store *artifactstore.Store, sess *session.Session, at attempt) error {
	a.persist(ctx, store, at)
	if sess.Active() == nil {
		return sess.Boot(ctx, at.Artifact)
	}
	d, err := sess.Apply(ctx, at.Artifact)
	a.logger.Info("Artifact applied.", "changed", d.Changed, "swapped", d.Swapped, "restart", d.Restart)
	return err
}
