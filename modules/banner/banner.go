// Package banner prints a text banner at startup. The banner text lives in
// a resource file named by the "banner.path" option; it is read at build
// time and the print is replayed when the process starts.
package banner

import (
	"context"
	"strings"

	"github.com/specialistvlad/bootreplay/internal/action"
	"github.com/specialistvlad/bootreplay/internal/buildstep"
	"github.com/specialistvlad/bootreplay/internal/config"
	"github.com/specialistvlad/bootreplay/internal/ctxlog"
	"github.com/specialistvlad/bootreplay/internal/registry"
	"github.com/specialistvlad/bootreplay/modules/printer"
)

// Namespace is the configuration namespace of the banner options.
const Namespace = "banner"

// ContentItem carries the banner text from the resource step to the print
// step.
const ContentItem = "banner.content"

// Config holds the banner options.
type Config struct {
	// Path locates the banner resource, relative to the resource root.
	Path string `env:"PATH,required"`
}

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the namespace and both build steps.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterNamespace(config.Namespace{Name: Namespace, New: func() any { return new(Config) }})
	r.RegisterStep(ResourceStep())
	r.RegisterStep(PrintStep())
}

// ResourceStep reads the banner resource.
func ResourceStep() *buildstep.Step {
	return &buildstep.Step{
		Descriptor: buildstep.Descriptor{
			Name:    "banner-resource",
			Phase:   action.Startup,
			Inputs:  []string{config.SeedName(Namespace)},
			Outputs: []string{ContentItem},
		},
		Run: readResource,
	}
}

func readResource(ctx context.Context, bc *buildstep.Context) error {
	cfg, err := buildstep.InputAs[Config](bc, config.SeedName(Namespace))
	if err != nil {
		return err
	}
	b, err := bc.ReadResource(cfg.Path)
	if err != nil {
		return err
	}
	// Editors usually leave a trailing newline; the printer adds its own.
	content := strings.TrimRight(string(b), "\r\n")
	ctxlog.FromContext(ctx).Debug("Read banner resource.", "path", cfg.Path, "bytes", len(b))
	return bc.Produce(ContentItem, content)
}

// PrintStep records the startup print of the banner.
func PrintStep() *buildstep.Step {
	return &buildstep.Step{
		Descriptor: buildstep.Descriptor{
			Name:   "banner-print",
			Phase:  action.Startup,
			Inputs: []string{ContentItem},
		},
		Run: func(ctx context.Context, bc *buildstep.Context) error {
			content, err := buildstep.InputAs[string](bc, ContentItem)
			if err != nil {
				return err
			}
			return printer.NewRecorder(bc.Recorder()).Print(content)
		},
	}
}
