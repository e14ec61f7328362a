// Package capability describes the named roles live objects fulfil at
// runtime. A Contract is the build-side view (which operations exist, which
// of them may be recorded); a Binding is the runtime-side view (the Go
// functions a live instance exposes for replay).
package capability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sort"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Method declares one operation of a capability.
type Method struct {
	Name   string
	Params []cty.Type
	// Result is cty.NilType for effect-only operations. Operations with a
	// result cannot be recorded, since build logic would need the value.
	Result cty.Type
}

// EffectOnly reports whether the operation returns nothing.
func (m *Method) EffectOnly() bool {
	return m.Result == cty.NilType
}

// Contract lists the operations of a capability.
type Contract struct {
	Name    string
	Methods map[string]*Method
}

// NewContract builds a contract from its methods.
func NewContract(name string, methods ...*Method) *Contract {
	c := &Contract{Name: name, Methods: make(map[string]*Method, len(methods))}
	for _, m := range methods {
		c.Methods[m.Name] = m
	}
	return c
}

// Method looks up an operation by name.
func (c *Contract) Method(name string) (*Method, bool) {
	m, ok := c.Methods[name]
	return m, ok
}

// MethodNames returns the operation names in sorted order.
func (c *Contract) MethodNames() []string {
	names := make([]string, 0, len(c.Methods))
	for n := range c.Methods {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Env is what a binding factory may use to construct a live instance.
type Env struct {
	Out    io.Writer
	Logger *slog.Logger
}

// Factory creates the live binding of a capability for one process lifetime.
type Factory func(env Env) (*Binding, error)

// Binding maps operation names to Go functions of the shape
// func(context.Context, A1, ..., An) error.
type Binding struct {
	Capability string
	Methods    map[string]any
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Validate checks that every method has a replayable signature.
func (b *Binding) Validate() error {
	if b.Capability == "" {
		return fmt.Errorf("binding has no capability name")
	}
	for name, fn := range b.Methods {
		if _, err := ParamTypes(fn); err != nil {
			return fmt.Errorf("capability %q method %q: %w", b.Capability, name, err)
		}
	}
	return nil
}

// ParamTypes returns the cty types implied by a binding function's
// parameters after the leading context.
func ParamTypes(fn any) ([]cty.Type, error) {
	ft := reflect.TypeOf(fn)
	if ft == nil || ft.Kind() != reflect.Func {
		return nil, fmt.Errorf("expected a function, got %T", fn)
	}
	if ft.NumIn() == 0 || ft.In(0) != contextType {
		return nil, fmt.Errorf("first parameter must be context.Context")
	}
	if ft.IsVariadic() {
		return nil, fmt.Errorf("variadic functions cannot be replayed")
	}
	if ft.NumOut() != 1 || ft.Out(0) != errorType {
		return nil, fmt.Errorf("function must return exactly one error")
	}

	params := make([]cty.Type, 0, ft.NumIn()-1)
	for i := 1; i < ft.NumIn(); i++ {
		ty, err := gocty.ImpliedType(reflect.Zero(ft.In(i)).Interface())
		if err != nil {
			return nil, fmt.Errorf("parameter %d (%s): %w", i, ft.In(i), err)
		}
		params = append(params, ty)
	}
	return params, nil
}
