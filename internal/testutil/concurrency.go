package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/specialistvlad/bootreplay/internal/action"
	"github.com/specialistvlad/bootreplay/internal/buildstep"
	"github.com/specialistvlad/bootreplay/internal/registry"
)

// MockSleeperModule is a shared, self-contained module for concurrency tests.
// It registers independent build steps that sleep and records the
// execution time of each.
type MockSleeperModule struct {
	ExecutionTimes map[string]*ExecutionRecord
	mu             sync.Mutex
	sleepDuration  time.Duration
	names          []string
}

// NewMockSleeperModule creates a sleeper module with one step per name.
func NewMockSleeperModule(sleep time.Duration, names ...string) *MockSleeperModule {
	return &MockSleeperModule{
		ExecutionTimes: make(map[string]*ExecutionRecord),
		sleepDuration:  sleep,
		names:          names,
	}
}

// Register registers the sleeper steps.
func (m *MockSleeperModule) Register(r *registry.Registry) {
	for _, name := range m.names {
		r.RegisterStep(&buildstep.Step{
			Descriptor: buildstep.Descriptor{Name: name, Phase: action.Startup},
			Run: func(_ context.Context, bc *buildstep.Context) error {
				startTime := time.Now()
				time.Sleep(m.sleepDuration)
				endTime := time.Now()

				m.mu.Lock()
				m.ExecutionTimes[bc.Step()] = &ExecutionRecord{Start: startTime, End: endTime}
				m.mu.Unlock()
				return nil
			},
		})
	}
}

// Record returns the execution record of a step.
func (m *MockSleeperModule) Record(name string) *ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ExecutionTimes[name]
}
