package watcher

import (
	"context"
	"fmt"
	"time"
)

// State is the position of the watcher in its rebuild cycle.
type State int

const (
	Idle State = iota
	ChangeDetected
	Debouncing
	Rebuilding
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case ChangeDetected:
		return "CHANGE_DETECTED"
	case Debouncing:
		return "DEBOUNCING"
	case Rebuilding:
		return "REBUILDING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Registration is one watched resource.
type Registration struct {
	Path string
	// LastFingerprint is the hex sha256 of the last content read, or empty
	// if the resource has never been readable.
	LastFingerprint string
	// Rebuild is invoked when the resource changes. All registrations of a
	// watcher share the same function.
	Rebuild RebuildFunc
}

// RebuildFunc runs one rebuild attempt.
type RebuildFunc func(ctx context.Context) (Rebuild, error)

// Status is reported on every state transition and after every rebuild.
type Status struct {
	State State
	// Changed lists the resources whose change led to this status.
	Changed []string
	// Generation counts observed changes; a rebuild works on the generation
	// that triggered it.
	Generation uint64
	// Err is set after a failed rebuild or an unreadable resource.
	Err error
	// Discarded is set when a finished rebuild was superseded by a newer
	// change and its result was dropped.
	Discarded bool
	// Committed is set when a rebuild result took effect.
	Committed bool
	Duration  time.Duration
}

// Rebuild is the outcome of a rebuild attempt.
type Rebuild struct {
	// Watched is the resource set the attempt depends on.
	Watched []string
	// Commit makes the result take effect. It is only called when no newer
	// change was observed while the rebuild ran.
	Commit func() error
}

// Options configure a Watcher.
type Options struct {
	// Debounce is the quiet period after the last change before a rebuild
	// starts.
	Debounce time.Duration
	// PollInterval enables polling at the given interval. Zero disables it.
	PollInterval time.Duration
	// UseNotify enables file system notifications.
	UseNotify bool
	// OnStatus receives every status. It runs on watcher goroutines and
	// must not block.
	OnStatus func(Status)
}

// DefaultDebounce is used when Options.Debounce is zero.
const DefaultDebounce = 200 * time.Millisecond
