// Package printer provides the "printer" capability: a line-oriented text
// sink. Build steps record prints through Recorder; at runtime the live
// binding writes each line to the process output.
package printer

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/specialistvlad/bootreplay/internal/capability"
	"github.com/specialistvlad/bootreplay/internal/recorder"
	"github.com/specialistvlad/bootreplay/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Capability is the name of the capability.
const Capability = "printer"

const methodPrint = "print"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the contract and the live binding.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterContract(Contract())
	r.RegisterBinding(Capability, NewBinding)
}

// Contract declares the operations that may be recorded.
func Contract() *capability.Contract {
	return capability.NewContract(Capability,
		&capability.Method{Name: methodPrint, Params: []cty.Type{cty.String}},
	)
}

// Printer is the live instance.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

// New returns a printer writing to out.
func New(out io.Writer) *Printer {
	return &Printer{out: out}
}

// Print writes msg followed by a newline.
func (p *Printer) Print(ctx context.Context, msg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.out, msg)
	return err
}

// NewBinding is the capability.Factory of the printer.
func NewBinding(env capability.Env) (*capability.Binding, error) {
	if env.Out == nil {
		return nil, fmt.Errorf("printer needs an output writer")
	}
	p := New(env.Out)
	return &capability.Binding{
		Capability: Capability,
		Methods:    map[string]any{methodPrint: p.Print},
	}, nil
}

// Recorder is the build-time stand-in for a Printer: same operations,
// recorded instead of executed.
type Recorder struct {
	rec *recorder.Recorder
}

// NewRecorder wraps a step's recorder.
func NewRecorder(rec *recorder.Recorder) Recorder {
	return Recorder{rec: rec}
}

// Print records printer.print(msg).
func (r Recorder) Print(msg string) error {
	return r.rec.Record(Capability, methodPrint, msg)
}
