package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/specialistvlad/bootreplay/internal/action"
	"github.com/specialistvlad/bootreplay/internal/failure"
)

// Namespace is a group of options owned by one extension.
type Namespace struct {
	Name string
	// New returns a pointer to a zero option struct with env tags.
	New func() any
}

// Prefix is the key prefix of the namespace's options.
func (n Namespace) Prefix() string {
	return NormalizeKey(n.Name) + "_"
}

// SeedName is the build graph item under which a bound namespace is
// available to steps.
func SeedName(namespace string) string {
	return "config." + namespace
}

// Bind binds one namespace.
func Bind(values map[string]string, ns Namespace) (any, error) {
	target := ns.New()
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("namespace %q: New must return a pointer to a struct, got %T", ns.Name, target)
	}

	if values == nil {
		// A nil environment makes env fall back to the process environment.
		values = map[string]string{}
	}
	err := env.ParseWithOptions(target, env.Options{
		Environment: values,
		Prefix:      ns.Prefix(),
	})
	if err != nil {
		if missing := missingKeys(err); len(missing) > 0 {
			return nil, failure.New(failure.ErrMissingRequiredConfig,
				"namespace %q: required option %s not set", ns.Name, strings.Join(missing, ", "))
		}
		return nil, fmt.Errorf("namespace %q: %w", ns.Name, err)
	}
	return rv.Elem().Interface(), nil
}

func missingKeys(err error) []string {
	var keys []string
	var agg env.AggregateError
	if errors.As(err, &agg) {
		for _, e := range agg.Errors {
			var notSet env.VarIsNotSetError
			if errors.As(e, &notSet) {
				keys = append(keys, notSet.Key)
			}
			var empty env.EmptyVarError
			if errors.As(e, &empty) {
				keys = append(keys, empty.Key)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// Snapshot is the immutable result of binding every namespace.
type Snapshot struct {
	values      map[string]any
	fingerprint string
}

// BindAll binds every namespace against values. All namespaces are
// attempted so that one error reports every missing key.
func BindAll(values map[string]string, namespaces []Namespace) (*Snapshot, error) {
	sorted := make([]Namespace, len(namespaces))
	copy(sorted, namespaces)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Name == sorted[i-1].Name {
			return nil, fmt.Errorf("namespace %q is registered twice", sorted[i].Name)
		}
	}

	snap := &Snapshot{values: make(map[string]any, len(sorted))}
	var errs []error
	for _, ns := range sorted {
		v, err := Bind(values, ns)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		snap.values[ns.Name] = v
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	b, err := json.Marshal(snap.values)
	if err != nil {
		return nil, fmt.Errorf("fingerprint config: %w", err)
	}
	snap.fingerprint = action.Hash(b)
	return snap, nil
}

// Get returns the bound value of a namespace.
func (s *Snapshot) Get(namespace string) (any, bool) {
	v, ok := s.values[namespace]
	return v, ok
}

// Namespaces returns the bound namespace names in sorted order.
func (s *Snapshot) Namespaces() []string {
	names := make([]string, 0, len(s.values))
	for n := range s.values {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Seeds returns the snapshot as build graph items.
func (s *Snapshot) Seeds() map[string]any {
	seeds := make(map[string]any, len(s.values))
	for n, v := range s.values {
		seeds[SeedName(n)] = v
	}
	return seeds
}

// Fingerprint identifies the bound values.
func (s *Snapshot) Fingerprint() string { return s.fingerprint }
