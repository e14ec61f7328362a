// Package session holds the artifact a development or production run is
// currently serving and the replay process that consumed it.
//
// When a rebuild produces a new artifact, Apply decides how it takes effect:
// sequences of phases that have not executed yet are swapped in place, while
// a changed sequence of a phase that already ran cannot be applied to the
// live process (a phase runs once per process), so the session restarts on
// a fresh process and replays every phase of the new artifact.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/specialistvlad/bootreplay/internal/action"
	"github.com/specialistvlad/bootreplay/internal/ctxlog"
	"github.com/specialistvlad/bootreplay/internal/replay"
)

// ProcessFactory creates a replay process with fresh live bindings.
type ProcessFactory func() (*replay.Process, error)

// Decision describes how an artifact was applied.
type Decision struct {
	// Changed is false when the new artifact is identical to the active one.
	Changed bool
	// Swapped lists phases whose pending sequence was replaced in place.
	Swapped []action.Phase
	// Restart is set when an executed phase changed and the session moved
	// to a new process.
	Restart bool
}

// Session represents a single run and manages its lifecycle.
type Session struct {
	newProcess ProcessFactory

	mu       sync.Mutex
	active   *action.Artifact
	proc     *replay.Process
	restarts int
}

// New returns an idle session.
func New(newProcess ProcessFactory) *Session {
	return &Session{newProcess: newProcess}
}

// Active returns the artifact currently in effect, or nil.
func (s *Session) Active() *action.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Restarts returns how many times the session moved to a new process.
func (s *Session) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// Boot makes art the active artifact and runs every phase that has not run
// in the current process yet, in phase order. Any error is a runtime
// failure and is returned as is; the previously active artifact stays in
// effect.
func (s *Session) Boot(ctx context.Context, art *action.Artifact) error {
	if art == nil {
		return errors.New("no artifact to boot")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	proc := s.proc
	if proc == nil {
		var err error
		if proc, err = s.newProcess(); err != nil {
			return fmt.Errorf("create process: %w", err)
		}
	}
	if err := runPending(ctx, proc, art); err != nil {
		return err
	}
	s.proc = proc
	s.active = art
	return nil
}

// Apply makes next the active artifact. Phases already executed with a
// different sequence force a restart onto a new process, which replays the
// whole artifact.
func (s *Session) Apply(ctx context.Context, next *action.Artifact) (Decision, error) {
	if next == nil {
		return Decision{}, errors.New("no artifact to apply")
	}
	logger := ctxlog.FromContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	var d Decision
	d.Changed = s.active == nil || s.active.Fingerprint() != next.Fingerprint()

	for _, p := range action.Phases {
		nextFP := next.Sequence(p).Fingerprint()
		if s.proc != nil {
			if executedFP, ok := s.proc.Executed(p); ok {
				if executedFP != nextFP {
					d.Restart = true
				}
				continue
			}
		}
		if s.active == nil || s.active.Sequence(p).Fingerprint() != nextFP {
			d.Swapped = append(d.Swapped, p)
		}
	}
	if !d.Restart {
		s.active = next
		if len(d.Swapped) > 0 {
			logger.Info("Swapped pending sequences in place.", "phases", d.Swapped)
		}
		return d, nil
	}

	d.Swapped = nil
	logger.Info("An executed phase changed, restarting on a new process.")
	proc, err := s.newProcess()
	if err != nil {
		return d, fmt.Errorf("create process: %w", err)
	}
	// The new process only replaces the old one once it replayed every
	// phase; until then the old artifact and process stay in effect.
	if err := runPending(ctx, proc, next); err != nil {
		return d, err
	}
	s.proc = proc
	s.active = next
	s.restarts++
	return d, nil
}

// Close drops the current process.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proc = nil
	return nil
}

func runPending(ctx context.Context, proc *replay.Process, art *action.Artifact) error {
	for _, p := range action.Phases {
		if _, done := proc.Executed(p); done {
			continue
		}
		if err := proc.Execute(ctx, p, art.Sequence(p)); err != nil {
			return err
		}
	}
	return nil
}
