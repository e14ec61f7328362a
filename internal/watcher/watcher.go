// Package watcher observes the resources a build read and re-enters the
// build when their content changes.
//
// Changes are detected by content fingerprint, so touching a file without
// changing it does nothing. Bursts of changes are coalesced by a debounce
// timer that feeds a single-slot trigger channel; a coordinator goroutine
// drains the channel and runs one rebuild at a time. A rebuild whose
// generation was overtaken by a newer change is discarded instead of
// committed.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/specialistvlad/bootreplay/internal/ctxlog"
	"github.com/specialistvlad/bootreplay/internal/failure"
	"golang.org/x/sync/errgroup"
)

// Watcher owns the registrations of a development session.
type Watcher struct {
	rebuild RebuildFunc
	opts    Options

	mu       sync.Mutex
	regs     map[string]*Registration
	state    State
	observed uint64
	built    uint64 // owned by the coordinator
	pending  map[string]struct{}
	timer    *time.Timer
	trigger  chan uint64
	resync   chan struct{}
}

// New registers paths and reads their initial fingerprints.
func New(paths []string, rebuild RebuildFunc, opts Options) *Watcher {
	if rebuild == nil {
		panic("watcher: rebuild function is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	w := &Watcher{
		rebuild: rebuild,
		opts:    opts,
		regs:    make(map[string]*Registration),
		pending: make(map[string]struct{}),
		trigger: make(chan uint64, 1),
		resync:  make(chan struct{}, 1),
	}
	for _, p := range paths {
		w.register(p)
	}
	return w
}

func (w *Watcher) register(path string) {
	path = filepath.Clean(path)
	if _, ok := w.regs[path]; ok {
		return
	}
	fp, err := Fingerprint(path)
	if err != nil {
		fp = ""
	}
	w.regs[path] = &Registration{Path: path, LastFingerprint: fp, Rebuild: w.rebuild}
}

// Fingerprint returns the hex sha256 of the file at path. A missing file
// has the empty fingerprint.
func Fingerprint(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Registrations returns a copy of the current registrations sorted by path.
func (w *Watcher) Registrations() []Registration {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Registration, 0, len(w.regs))
	for _, r := range w.regs {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// State returns the current state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Poll reads every registered resource once and reports whether any
// fingerprint changed. Unreadable resources keep their previous
// fingerprint.
func (w *Watcher) Poll(ctx context.Context) bool {
	w.mu.Lock()
	paths := make([]string, 0, len(w.regs))
	for p := range w.regs {
		paths = append(paths, p)
	}
	w.mu.Unlock()
	sort.Strings(paths)

	var changed []string
	for _, p := range paths {
		if w.observe(ctx, p) {
			changed = append(changed, p)
		}
	}
	if len(changed) == 0 {
		return false
	}
	w.changed(changed)
	return true
}

// observe reads one resource and updates its registration. It reports
// whether the fingerprint changed.
func (w *Watcher) observe(ctx context.Context, path string) bool {
	fp, err := Fingerprint(path)
	if err != nil {
		err = failure.Wrap(failure.ErrResourceUnreadable, err, "resource %q", path)
		ctxlog.FromContext(ctx).Warn("Watched resource is unreadable, keeping previous fingerprint.",
			"path", path, "error", err)
		w.emit(Status{State: w.State(), Changed: []string{path}, Err: err})
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	reg, ok := w.regs[path]
	if !ok || reg.LastFingerprint == fp {
		return false
	}
	reg.LastFingerprint = fp
	return true
}

// changed records a new generation and (re)arms the debounce timer.
func (w *Watcher) changed(paths []string) {
	var statuses []Status

	w.mu.Lock()
	w.observed++
	for _, p := range paths {
		w.pending[p] = struct{}{}
	}
	if w.state != Rebuilding {
		if w.state == Idle {
			w.state = ChangeDetected
			statuses = append(statuses, w.statusLocked(paths))
		}
		w.state = Debouncing
		statuses = append(statuses, w.statusLocked(paths))
	}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.opts.Debounce, w.fire)
	} else {
		w.timer.Reset(w.opts.Debounce)
	}
	w.mu.Unlock()

	for _, s := range statuses {
		w.emit(s)
	}
}

// fire hands the latest generation to the coordinator. An older trigger
// still waiting in the slot is replaced.
func (w *Watcher) fire() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.trigger:
	default:
	}
	w.trigger <- w.observed
}

func (w *Watcher) statusLocked(changed []string) Status {
	c := append([]string(nil), changed...)
	sort.Strings(c)
	return Status{State: w.state, Changed: c, Generation: w.observed}
}

func (w *Watcher) emit(s Status) {
	if w.opts.OnStatus != nil {
		w.opts.OnStatus(s)
	}
}

// Run observes the registered resources until ctx is done. It returns nil
// on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.opts.UseNotify && w.opts.PollInterval <= 0 {
		return fmt.Errorf("watcher: neither notifications nor polling are enabled")
	}
	logger := ctxlog.FromContext(ctx)
	logger.Info("Watching resources.", "count", len(w.Registrations()),
		"notify", w.opts.UseNotify, "poll_interval", w.opts.PollInterval, "debounce", w.opts.Debounce)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.coordinate(gctx) })
	if w.opts.UseNotify {
		g.Go(func() error { return w.notify(gctx) })
	}
	if w.opts.PollInterval > 0 {
		g.Go(func() error { return w.poll(gctx) })
	}

	err := g.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Watcher) poll(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

func (w *Watcher) notify(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	watching := make(map[string]bool)
	addDirs := func() {
		for _, dir := range w.dirs() {
			if watching[dir] {
				continue
			}
			if err := fsw.Add(dir); err != nil {
				logger.Warn("Cannot watch directory.", "dir", dir, "error", err)
				continue
			}
			watching[dir] = true
		}
	}
	addDirs()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.resync:
			addDirs()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			path := filepath.Clean(event.Name)
			if !w.watches(path) {
				continue
			}
			if w.observe(ctx, path) {
				w.changed([]string{path})
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("File watcher error.", "error", err)
		}
	}
}

func (w *Watcher) watches(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.regs[path]
	return ok
}

func (w *Watcher) dirs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for p := range w.regs {
		d := filepath.Dir(p)
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}

func (w *Watcher) coordinate(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case gen := <-w.trigger:
			// A timer re-armed while its expired run waited on w.mu fires
			// twice for one generation.
			if gen <= w.built {
				continue
			}
			w.built = gen
			w.runRebuild(ctx, gen)
		}
	}
}

func (w *Watcher) runRebuild(ctx context.Context, gen uint64) {
	ctx, logger := ctxlog.With(ctx, "generation", gen)

	w.mu.Lock()
	changed := make([]string, 0, len(w.pending))
	for p := range w.pending {
		changed = append(changed, p)
	}
	w.pending = make(map[string]struct{})
	w.state = Rebuilding
	started := w.statusLocked(changed)
	w.mu.Unlock()
	w.emit(started)

	logger.Info("Rebuilding.", "changed", started.Changed)
	start := time.Now()
	out, err := w.rebuild(ctx)
	duration := time.Since(start)

	w.mu.Lock()
	superseded := w.observed != gen
	w.mu.Unlock()

	final := Status{Changed: started.Changed, Generation: gen, Duration: duration}
	switch {
	case superseded:
		final.Discarded = true
		final.Err = err
		logger.Info("Rebuild superseded by a newer change, discarding result.", "duration", duration)
	case err != nil:
		final.Err = err
		logger.Error("Rebuild failed, keeping the active artifact.", "error", err, "duration", duration)
	default:
		if out.Commit != nil {
			err = out.Commit()
		}
		if err != nil {
			final.Err = err
			logger.Error("Rebuild could not be committed.", "error", err, "duration", duration)
		} else {
			final.Committed = true
			logger.Info("Rebuild committed.", "duration", duration)
		}
	}

	w.mu.Lock()
	w.updateRegistrationsLocked(out.Watched, final.Committed)
	if w.observed != gen {
		w.state = Debouncing
	} else {
		w.state = Idle
	}
	final.State = w.state
	w.mu.Unlock()

	select {
	case w.resync <- struct{}{}:
	default:
	}
	w.emit(final)
}

// updateRegistrationsLocked replaces the watched set after a committed
// rebuild and extends it otherwise, so a failed attempt still watches
// whatever it read.
func (w *Watcher) updateRegistrationsLocked(watched []string, replace bool) {
	next := make(map[string]*Registration, len(watched))
	if !replace {
		for p, r := range w.regs {
			next[p] = r
		}
	}
	for _, p := range watched {
		p = filepath.Clean(p)
		if r, ok := w.regs[p]; ok {
			next[p] = r
			continue
		}
		fp, err := Fingerprint(p)
		if err != nil {
			fp = ""
		}
		next[p] = &Registration{Path: p, LastFingerprint: fp, Rebuild: w.rebuild}
	}
	w.regs = next
}
