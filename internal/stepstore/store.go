// Package stepstore holds the mutable state of one build graph execution:
// the status of every step, the items steps produce for each other and the
// error of each failed step.
//
// # Concurrency Model
//
// Workers update their own step's state while other workers read the items
// they depend on. Keys are independent and known up front, so the store is
// built on sync.Map rather than one global lock.
//
// Items have a single writer: the first Put of an item wins and every later
// Put of the same item fails. A build that tries to overwrite an item is
// broken and must not silently pick one of the values.
package stepstore

import (
	"fmt"
	"sync"
)

// Status is the execution state of a step.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusDone
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusRunning:
		return "Running"
	case StatusDone:
		return "Done"
	case StatusFailed:
		return "Failed"
	case StatusSkipped:
		return "Skipped"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Store is safe for concurrent use.
type Store struct {
	states sync.Map // step name -> Status
	items  sync.Map // item name -> any
	errors sync.Map // step name -> error
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// Seed stores items that exist before any step runs, such as the bound
// configuration namespaces.
func (s *Store) Seed(items map[string]any) error {
	for name, v := range items {
		if err := s.Put(name, v); err != nil {
			return err
		}
	}
	return nil
}

// Put records an item. It fails if the item already has a value.
func (s *Store) Put(item string, value any) error {
	if _, loaded := s.items.LoadOrStore(item, value); loaded {
		return fmt.Errorf("item %q already has a value", item)
	}
	return nil
}

// Get returns an item and whether it was set.
func (s *Store) Get(item string) (any, bool) {
	return s.items.Load(item)
}

// SetStatus updates the status of a step.
func (s *Store) SetStatus(step string, status Status) {
	s.states.Store(step, status)
}

// Status returns the status of a step, StatusPending if never set.
func (s *Store) Status(step string) Status {
	v, ok := s.states.Load(step)
	if !ok {
		return StatusPending
	}
	return v.(Status)
}

// SetError records the failure of a step.
func (s *Store) SetError(step string, err error) {
	s.errors.Store(step, err)
}

// Error returns the recorded failure of a step, or nil.
func (s *Store) Error(step string) error {
	v, ok := s.errors.Load(step)
	if !ok {
		return nil
	}
	return v.(error)
}
