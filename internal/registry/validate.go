package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/specialistvlad/bootreplay/internal/capability"
	"github.com/specialistvlad/bootreplay/internal/ctxlog"
)

// ValidateRegistry performs a strict parity check between capability
// contracts and their live bindings. It checks both the presence of
// operations and the compatibility of their parameter types.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	bindings := make(map[string]*capability.Binding)
	probe := capability.Env{Out: io.Discard, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	all, err := r.Bindings(probe)
	if err != nil {
		return fmt.Errorf("registry validation failed: %w", err)
	}
	for _, b := range all {
		if err := b.Validate(); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		bindings[b.Capability] = b
	}

	for _, name := range sortedKeys(r.contracts) {
		contract := r.contracts[name]
		binding, ok := bindings[name]
		if !ok {
			if _, registered := r.factories[name]; !registered {
				errs = append(errs, fmt.Sprintf("capability '%s': contract has no live binding", name))
			}
			continue
		}

		for _, methodName := range contract.MethodNames() {
			m := contract.Methods[methodName]
			if !m.EffectOnly() {
				logger.Debug("Operation returns a value and cannot be replayed, skipping parity check.", "capability", name, "method", methodName)
				continue
			}
			fn, ok := binding.Methods[methodName]
			if !ok {
				errs = append(errs, fmt.Sprintf("capability '%s': contract declares operation '%s' which the binding does not implement", name, methodName))
				continue
			}
			// Validate has already checked the signature.
			params, _ := capability.ParamTypes(fn)
			if len(params) != len(m.Params) {
				errs = append(errs, fmt.Sprintf("capability '%s', operation '%s': contract takes %d arguments but binding takes %d",
					name, methodName, len(m.Params), len(params)))
				continue
			}
			for i := range params {
				if !m.Params[i].Equals(params[i]) {
					errs = append(errs, fmt.Sprintf("capability '%s', operation '%s', argument %d: type mismatch. Contract requires '%s' but binding accepts '%s'",
						name, methodName, i, m.Params[i].FriendlyName(), params[i].FriendlyName()))
				}
			}
		}

		for _, methodName := range sortedKeys(binding.Methods) {
			if _, ok := contract.Method(methodName); !ok {
				errs = append(errs, fmt.Sprintf("capability '%s': binding implements operation '%s' which the contract does not declare", name, methodName))
			}
		}
	}

	for _, name := range sortedKeys(r.factories) {
		if _, ok := r.contracts[name]; !ok {
			errs = append(errs, fmt.Sprintf("capability '%s': binding has no contract", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	logger.Debug("Registry validated.", "capabilities", len(r.contracts), "steps", len(r.steps), "namespaces", len(r.namespaces))
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
