package buildstep

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/bootreplay/internal/action"
	"github.com/specialistvlad/bootreplay/internal/ctxlog"
	"github.com/specialistvlad/bootreplay/internal/failure"
	"github.com/specialistvlad/bootreplay/internal/recorder"
	"github.com/specialistvlad/bootreplay/internal/stepstore"
)

// Env is the environment a plan executes in.
type Env struct {
	// Contracts declares the capabilities steps may record against.
	Contracts recorder.Contracts
	// Seeds holds the values of the items passed to Plan as seeds.
	Seeds map[string]any
	// ResourceRoot is where relative resource paths resolve.
	ResourceRoot string
	// Workers bounds step parallelism; zero means one per CPU.
	Workers int
}

// Result is the output of one successful step.
type Result struct {
	Step      string
	Phase     action.Phase
	Actions   []action.RecordedAction
	Resources []string
}

// Outcome is everything an execution produced. It is returned even when
// the execution fails so that callers can still watch the resources that
// were read.
type Outcome struct {
	Order []string
	// Results holds the successful steps in plan order.
	Results []Result
	// Watched is the sorted set of resources read by any step.
	Watched []string
}

type run struct {
	plan  *Plan
	env   Env
	store *stepstore.Store

	depCount map[string]*atomic.Int32
	skipOnce map[string]*sync.Once
	contexts sync.Map // step name -> *Context
	results  sync.Map // step name -> Result
	wg       sync.WaitGroup
}

// Execute runs every step of the plan and returns their results in plan
// order. The returned error belongs to the earliest failed step in plan
// order.
func (p *Plan) Execute(ctx context.Context, env Env) (*Outcome, error) {
	logger := ctxlog.FromContext(ctx)
	outcome := &Outcome{Order: p.Order(), Results: []Result{}, Watched: []string{}}

	for seed := range p.seeds {
		if _, ok := env.Seeds[seed]; !ok {
			return outcome, failure.New(failure.ErrUnsatisfiedInput, "no value for seed %q", seed)
		}
	}

	r := &run{
		plan:     p,
		env:      env,
		store:    stepstore.New(),
		depCount: make(map[string]*atomic.Int32, len(p.order)),
		skipOnce: make(map[string]*sync.Once, len(p.order)),
	}
	if err := r.store.Seed(env.Seeds); err != nil {
		return outcome, err
	}
	for _, name := range p.order {
		deps, err := p.dag.Dependencies(name)
		if err != nil {
			return outcome, err
		}
		count := &atomic.Int32{}
		count.Store(int32(len(deps)))
		r.depCount[name] = count
		r.skipOnce[name] = &sync.Once{}
	}
	if len(p.order) == 0 {
		return outcome, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	readyChan := make(chan string, len(p.order))
	for _, name := range p.order {
		if r.depCount[name].Load() == 0 {
			logger.Debug("Found root step.", "step", name)
			readyChan <- name
		}
	}
	r.wg.Add(len(p.order))

	workers := env.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(p.order))

	logger.Debug("Starting worker pool.", "workers", workers)
	var pool sync.WaitGroup
	pool.Add(workers)
	for i := 0; i < workers; i++ {
		go func(id int) {
			defer pool.Done()
			r.worker(runCtx, readyChan, cancel, id)
		}(i)
	}

	r.wg.Wait()
	close(readyChan)
	pool.Wait()
	logger.Debug("All steps settled.")

	outcome.Watched = r.watched()
	for _, name := range p.order {
		if res, ok := r.results.Load(name); ok {
			outcome.Results = append(outcome.Results, res.(Result))
		}
	}

	if err := r.rootCause(); err != nil {
		return outcome, err
	}
	if err := ctx.Err(); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// worker is the processing loop of a single concurrent worker.
func (r *run) worker(ctx context.Context, readyChan chan string, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for name := range readyChan {
		workerLogger := logger.With("workerID", workerID, "step", name)

		if ctx.Err() != nil {
			workerLogger.Warn("Context canceled, skipping step.")
			r.skip(ctx, name, ctx.Err())
			continue
		}

		workerLogger.Debug("Worker picked up step.")
		r.store.SetStatus(name, stepstore.StatusRunning)

		if err := r.runStep(ctx, name); err != nil {
			workerLogger.Error("Build step failed.", "error", err)
			r.store.SetStatus(name, stepstore.StatusFailed)
			r.store.SetError(name, err)
			cancel()
			r.skipDependents(ctx, name)
			r.wg.Done()
			continue
		}

		workerLogger.Debug("Build step succeeded.")
		r.store.SetStatus(name, stepstore.StatusDone)

		dependents, err := r.plan.dag.Dependents(name)
		if err != nil {
			workerLogger.Error("Failed to get dependents for completed step.", "error", err)
		}
		for _, dependent := range dependents {
			if r.depCount[dependent].Add(-1) == 0 {
				workerLogger.Debug("Unlocking dependent step.", "dependent", dependent)
				readyChan <- dependent
			}
		}
		r.wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

func (r *run) runStep(ctx context.Context, name string) (err error) {
	step := r.plan.steps[name]
	rec := recorder.New(name, step.Phase, r.env.Contracts)
	bc := newContext(step, r.store, rec, r.env.ResourceRoot)
	r.contexts.Store(name, bc)

	defer func() {
		if p := recover(); p != nil {
			err = failure.New(failure.ErrStepFailed, "step %q panicked: %v", name, p)
		}
	}()

	runErr := step.Run(ctxlog.WithLogger(ctx, ctxlog.FromContext(ctx).With("step", name)), bc)
	// A recording failure wins even if the step swallowed it.
	if recErr := rec.Err(); recErr != nil {
		return stepError(name, recErr)
	}
	if runErr != nil {
		return stepError(name, runErr)
	}
	if missing := bc.missingOutputs(); len(missing) > 0 {
		return failure.New(failure.ErrStepFailed, "step %q did not produce %s", name, strings.Join(missing, ", "))
	}

	r.results.Store(name, Result{
		Step:      name,
		Phase:     step.Phase,
		Actions:   rec.Actions(),
		Resources: bc.readResources(),
	})
	return nil
}

func stepError(name string, err error) error {
	if failure.KindOf(err) != nil {
		return fmt.Errorf("step %q: %w", name, err)
	}
	return failure.Wrap(failure.ErrStepFailed, err, "step %q", name)
}

// skip marks a step as skipped exactly once and cascades to its dependents.
func (r *run) skip(ctx context.Context, name string, cause error) {
	r.skipOnce[name].Do(func() {
		r.store.SetStatus(name, stepstore.StatusSkipped)
		r.store.SetError(name, cause)
		r.wg.Done()
		r.skipDependents(ctx, name)
	})
}

func (r *run) skipDependents(ctx context.Context, name string) {
	logger := ctxlog.FromContext(ctx)
	dependents, err := r.plan.dag.Dependents(name)
	if err != nil {
		logger.Error("Failed to get dependents for failed step.", "step", name, "error", err)
		return
	}
	for _, dependent := range dependents {
		logger.Warn("Skipping dependent step due to upstream failure.", "step", dependent, "dependency", name)
		r.skip(ctx, dependent, fmt.Errorf("skipped due to upstream failure of %q", name))
	}
}

// rootCause picks the earliest failed step in plan order, preferring real
// failures over steps that only observed the cancellation.
func (r *run) rootCause() error {
	var canceled error
	for _, name := range r.plan.order {
		if r.store.Status(name) != stepstore.StatusFailed {
			continue
		}
		err := r.store.Error(name)
		if errors.Is(err, context.Canceled) {
			if canceled == nil {
				canceled = err
			}
			continue
		}
		return err
	}
	return canceled
}

func (r *run) watched() []string {
	set := make(map[string]bool)
	r.contexts.Range(func(_, v any) bool {
		for _, path := range v.(*Context).readResources() {
			set[path] = true
		}
		return true
	})
	out := make([]string, 0, len(set))
	for path := range set {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}
