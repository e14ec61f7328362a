// Package envvars provides the "environment" capability and a STATIC_INIT
// step that exports configured variables into the process environment
// before anything else starts.
package envvars

import (
	"context"
	"os"
	"sort"

	"github.com/specialistvlad/bootreplay/internal/action"
	"github.com/specialistvlad/bootreplay/internal/buildstep"
	"github.com/specialistvlad/bootreplay/internal/capability"
	"github.com/specialistvlad/bootreplay/internal/config"
	"github.com/specialistvlad/bootreplay/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Capability is the name of the capability.
const Capability = "environment"

// Namespace is the configuration namespace of the exported variables.
const Namespace = "environment"

const methodSetenv = "setenv"

// Config lists the variables to export, as ENVIRONMENT_EXPORT="K1:v1,K2:v2".
type Config struct {
	Export map[string]string `env:"EXPORT"`
}

// Module implements the registry.Module interface for this package.
type Module struct {
	// Setenv replaces os.Setenv in the live binding; nil means os.Setenv.
	Setenv func(key, value string) error
}

// Register registers the capability, its namespace and the export step.
func (m *Module) Register(r *registry.Registry) {
	setenv := m.Setenv
	if setenv == nil {
		setenv = os.Setenv
	}
	r.RegisterContract(capability.NewContract(Capability,
		&capability.Method{Name: methodSetenv, Params: []cty.Type{cty.String, cty.String}},
	))
	r.RegisterBinding(Capability, func(capability.Env) (*capability.Binding, error) {
		return &capability.Binding{
			Capability: Capability,
			Methods: map[string]any{
				methodSetenv: func(_ context.Context, key, value string) error {
					return setenv(key, value)
				},
			},
		}, nil
	})
	r.RegisterNamespace(config.Namespace{Name: Namespace, New: func() any { return new(Config) }})
	r.RegisterStep(ExportStep())
}

// ExportStep records one setenv per configured variable, sorted by name.
func ExportStep() *buildstep.Step {
	return &buildstep.Step{
		Descriptor: buildstep.Descriptor{
			Name:   "environment-export",
			Phase:  action.StaticInit,
			Inputs: []string{config.SeedName(Namespace)},
		},
		Run: func(ctx context.Context, bc *buildstep.Context) error {
			cfg, err := buildstep.InputAs[Config](bc, config.SeedName(Namespace))
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(cfg.Export))
			for k := range cfg.Export {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if err := bc.Record(Capability, methodSetenv, k, cfg.Export[k]); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
