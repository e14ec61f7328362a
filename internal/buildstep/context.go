package buildstep

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/specialistvlad/bootreplay/internal/recorder"
	"github.com/specialistvlad/bootreplay/internal/stepstore"
)

// Context is what a running step sees of the build.
type Context struct {
	step  *Step
	store *stepstore.Store
	rec   *recorder.Recorder
	root  string

	mu        sync.Mutex
	produced  map[string]bool
	resources []string
}

func newContext(step *Step, store *stepstore.Store, rec *recorder.Recorder, root string) *Context {
	return &Context{
		step:     step,
		store:    store,
		rec:      rec,
		root:     root,
		produced: make(map[string]bool, len(step.Outputs)),
	}
}

// Step returns the name of the running step.
func (c *Context) Step() string { return c.step.Name }

// Recorder returns the step's action recorder.
func (c *Context) Recorder() *recorder.Recorder { return c.rec }

// Record is shorthand for Recorder().Record.
func (c *Context) Record(capabilityName, method string, args ...any) error {
	return c.rec.Record(capabilityName, method, args...)
}

// Input returns the value of a declared input.
func (c *Context) Input(name string) (any, error) {
	if !slices.Contains(c.step.Inputs, name) {
		return nil, fmt.Errorf("step %q did not declare input %q", c.step.Name, name)
	}
	v, ok := c.store.Get(name)
	if !ok {
		return nil, fmt.Errorf("step %q: input %q has no value", c.step.Name, name)
	}
	return v, nil
}

// InputAs returns a declared input converted to T.
func InputAs[T any](c *Context, name string) (T, error) {
	var zero T
	v, err := c.Input(name)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("step %q: input %q is %T, not %T", c.step.Name, name, v, zero)
	}
	return typed, nil
}

// Produce publishes a declared output. Each output is produced once.
func (c *Context) Produce(name string, value any) error {
	if !slices.Contains(c.step.Outputs, name) {
		return fmt.Errorf("step %q did not declare output %q", c.step.Name, name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.produced[name] {
		return fmt.Errorf("step %q produced %q twice", c.step.Name, name)
	}
	if err := c.store.Put(name, value); err != nil {
		return fmt.Errorf("step %q: %w", c.step.Name, err)
	}
	c.produced[name] = true
	return nil
}

// ReadResource reads a whole file and registers it for change watching.
// Relative paths resolve against the resource root. The path is registered
// even when reading fails, so that creating the file triggers a rebuild.
func (c *Context) ReadResource(path string) ([]byte, error) {
	abs := ResolvePath(c.root, path)

	c.mu.Lock()
	if !slices.Contains(c.resources, abs) {
		c.resources = append(c.resources, abs)
	}
	c.mu.Unlock()

	b, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read resource %q: %w", path, err)
	}
	return b, nil
}

// ResolvePath resolves path against root unless it is already absolute.
func ResolvePath(root, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	p := filepath.Join(root, path)
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func (c *Context) missingOutputs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var missing []string
	for _, out := range c.step.Outputs {
		if !c.produced[out] {
			missing = append(missing, out)
		}
	}
	return missing
}

func (c *Context) readResources() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.resources)
}
