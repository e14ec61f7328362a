// Package devreport turns watcher status updates into developer-facing
// signals: log lines and, optionally, socket.io events for a dev UI.
package devreport

import (
	"log/slog"
	"time"

	"github.com/specialistvlad/bootreplay/internal/watcher"
)

// Reporter receives every watcher status. Report must not block.
type Reporter interface {
	Report(s watcher.Status)
}

// Event is the wire form of a watcher status.
type Event struct {
	State      string   `json:"state"`
	Changed    []string `json:"changed"`
	Generation uint64   `json:"generation"`
	Committed  bool     `json:"committed"`
	Discarded  bool     `json:"discarded"`
	Error      string   `json:"error,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

// FromStatus converts s into an Event.
func FromStatus(s watcher.Status) Event {
	e := Event{
		State:      s.State.String(),
		Changed:    append([]string{}, s.Changed...),
		Generation: s.Generation,
		Committed:  s.Committed,
		Discarded:  s.Discarded,
		DurationMS: s.Duration.Milliseconds(),
	}
	if s.Err != nil {
		e.Error = s.Err.Error()
	}
	return e
}

// Fields returns the event as a plain map, the shape socket.io emits.
func (e Event) Fields() map[string]any {
	m := map[string]any{
		"state":       e.State,
		"changed":     e.Changed,
		"generation":  e.Generation,
		"committed":   e.Committed,
		"discarded":   e.Discarded,
		"duration_ms": e.DurationMS,
	}
	if e.Error != "" {
		m["error"] = e.Error
	}
	return m
}

// Fanout returns a status callback that forwards to every reporter in
// order. Nil reporters are skipped.
func Fanout(reporters ...Reporter) func(watcher.Status) {
	return func(s watcher.Status) {
		for _, r := range reporters {
			if r != nil {
				r.Report(s)
			}
		}
	}
}

// LogReporter writes one log line per finished rebuild and per watch
// failure. Intermediate state changes are logged at debug level.
type LogReporter struct {
	Logger *slog.Logger
}

// Report implements Reporter.
func (r *LogReporter) Report(s watcher.Status) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"state", s.State.String(), "generation", s.Generation}
	if len(s.Changed) > 0 {
		attrs = append(attrs, "changed", s.Changed)
	}
	if s.Duration > 0 {
		attrs = append(attrs, "duration", s.Duration.Round(time.Millisecond))
	}

	switch {
	case s.Committed:
		logger.Info("Artifact rebuilt and applied.", attrs...)
	case s.Discarded:
		logger.Info("Rebuild result discarded, a newer change is pending.", attrs...)
	case s.Err != nil:
		logger.Error("Rebuild status reports an error.", append(attrs, "error", s.Err)...)
	default:
		logger.Debug("Watcher state changed.", attrs...)
	}
}
