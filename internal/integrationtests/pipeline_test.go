package integrationtests

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/bootreplay/internal/action"
	"github.com/specialistvlad/bootreplay/internal/buildstep"
	"github.com/specialistvlad/bootreplay/internal/capability"
	"github.com/specialistvlad/bootreplay/internal/config"
	"github.com/specialistvlad/bootreplay/internal/failure"
	"github.com/specialistvlad/bootreplay/internal/pipeline"
	"github.com/specialistvlad/bootreplay/internal/registry"
	"github.com/specialistvlad/bootreplay/internal/replay"
	"github.com/specialistvlad/bootreplay/internal/session"
	"github.com/specialistvlad/bootreplay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeterConfig struct {
	Name  string `env:"NAME,required"`
	Times int    `env:"TIMES" envDefault:"1"`
}

// greeterModule chains three steps across both phases: a STATIC_INIT step
// notes the configured name, a STARTUP step derives a greeting from it and
// a second STARTUP step notes the greeting the configured number of times.
type greeterModule struct{}

func (greeterModule) Register(r *registry.Registry) {
	seed := config.SeedName("greeter")
	r.RegisterNamespace(config.Namespace{Name: "greeter", New: func() any { return new(greeterConfig) }})
	r.RegisterStep(&buildstep.Step{
		Descriptor: buildstep.Descriptor{Name: "greeter-name", Phase: action.StaticInit, Inputs: []string{seed}},
		Run: func(_ context.Context, bc *buildstep.Context) error {
			cfg, err := buildstep.InputAs[greeterConfig](bc, seed)
			if err != nil {
				return err
			}
			return bc.Record(testutil.ProbeCapability, "note", "name="+cfg.Name)
		},
	})
	r.RegisterStep(&buildstep.Step{
		Descriptor: buildstep.Descriptor{
			Name: "greeter-compose", Phase: action.Startup,
			Inputs: []string{seed}, Outputs: []string{"greeting"},
		},
		Run: func(_ context.Context, bc *buildstep.Context) error {
			cfg, err := buildstep.InputAs[greeterConfig](bc, seed)
			if err != nil {
				return err
			}
			return bc.Produce("greeting", "hello "+cfg.Name)
		},
	})
	r.RegisterStep(&buildstep.Step{
		Descriptor: buildstep.Descriptor{
			Name: "greeter-say", Phase: action.Startup,
			Inputs: []string{seed, "greeting"},
		},
		Run: func(_ context.Context, bc *buildstep.Context) error {
			cfg, err := buildstep.InputAs[greeterConfig](bc, seed)
			if err != nil {
				return err
			}
			greeting, err := buildstep.InputAs[string](bc, "greeting")
			if err != nil {
				return err
			}
			for i := 0; i < cfg.Times; i++ {
				if err := bc.Record(testutil.ProbeCapability, "note", greeting); err != nil {
					return err
				}
			}
			return nil
		},
	})
}

func setup(t *testing.T, extra ...registry.Module) (*pipeline.Builder, *testutil.ProbeModule) {
	t.Helper()
	probe := &testutil.ProbeModule{}
	modules := append([]registry.Module{probe, greeterModule{}}, extra...)
	r := registry.Load(modules...)
	require.NoError(t, r.ValidateRegistry(context.Background()))
	return &pipeline.Builder{Registry: r, Workers: 4}, probe
}

func processFactory(r *registry.Registry) session.ProcessFactory {
	return func() (*replay.Process, error) {
		bindings, err := r.Bindings(capability.Env{})
		if err != nil {
			return nil, err
		}
		return replay.NewProcess(bindings...)
	}
}

func TestSystem_StaticInitReplaysBeforeStartup(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)
	b, probe := setup(t)

	res, err := b.Build(ctx, map[string]string{"GREETER_NAME": "ada", "GREETER_TIMES": "2"})
	require.NoError(t, err)
	sess := session.New(processFactory(b.Registry))
	require.NoError(t, sess.Boot(ctx, res.Artifact))

	want := []string{"name=ada", "hello ada", "hello ada"}
	if diff := cmp.Diff(want, probe.Notes()); diff != "" {
		t.Errorf("replayed notes mismatch (-want +got):\n%s", diff)
	}
	steps := res.Artifact.Steps
	require.ElementsMatch(t, []string{"greeter-name", "greeter-compose", "greeter-say"}, steps)
	assert.Less(t, slices.Index(steps, "greeter-compose"), slices.Index(steps, "greeter-say"),
		"a producer runs before its consumer: %v", steps)
}

func TestSystem_PhasesRunExactlyOncePerProcess(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)
	b, probe := setup(t)
	res, err := b.Build(ctx, map[string]string{"GREETER_NAME": "ada"})
	require.NoError(t, err)
	proc, err := processFactory(b.Registry)()
	require.NoError(t, err)
	require.NoError(t, proc.OnStaticInit(ctx, res.Artifact.Sequence(action.StaticInit)))
	require.NoError(t, proc.OnStartup(ctx, res.Artifact.Sequence(action.Startup)))

	err = proc.OnStartup(ctx, res.Artifact.Sequence(action.Startup))

	testutil.RequireKind(t, err, failure.ErrPhaseAlreadyExecuted)
	assert.Equal(t, []string{"name=ada", "hello ada"}, probe.Notes())
}

func TestSystem_RebuildRestartsOnlyWhenAnExecutedPhaseChanged(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)
	b, probe := setup(t)
	sess := session.New(processFactory(b.Registry))

	first, err := b.Build(ctx, map[string]string{"GREETER_NAME": "ada"})
	require.NoError(t, err)
	require.NoError(t, sess.Boot(ctx, first.Artifact))

	// Same values: nothing changes and nothing replays.
	same, err := b.Build(ctx, map[string]string{"GREETER_NAME": "ada"})
	require.NoError(t, err)
	d, err := sess.Apply(ctx, same.Artifact)
	require.NoError(t, err)
	assert.False(t, d.Changed)
	assert.False(t, d.Restart)

	// A new name changes both executed phases.
	next, err := b.Build(ctx, map[string]string{"GREETER_NAME": "grace"})
	require.NoError(t, err)
	d, err = sess.Apply(ctx, next.Artifact)
	require.NoError(t, err)

	assert.True(t, d.Restart)
	assert.Equal(t, 1, sess.Restarts())
	assert.Equal(t, []string{"name=ada", "hello ada", "name=grace", "hello grace"}, probe.Notes())
}

func TestSystem_FailedBuildNeverReachesTheSession(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)
	b, probe := setup(t)
	sess := session.New(processFactory(b.Registry))
	good, err := b.Build(ctx, map[string]string{"GREETER_NAME": "ada"})
	require.NoError(t, err)
	require.NoError(t, sess.Boot(ctx, good.Artifact))

	bad, err := b.Build(ctx, map[string]string{"GREETER_TIMES": "3"})

	testutil.RequireKind(t, err, failure.ErrMissingRequiredConfig)
	assert.Nil(t, bad.Artifact)
	assert.Equal(t, good.Artifact.Fingerprint(), sess.Active().Fingerprint())
	assert.Equal(t, []string{"name=ada", "hello ada"}, probe.Notes())
}

func TestSystem_IndependentStepsBuildConcurrently(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)
	sleeper := testutil.NewMockSleeperModule(100*time.Millisecond, "sleep-a", "sleep-b")
	b, _ := setup(t, sleeper)

	res, err := b.Build(ctx, map[string]string{"GREETER_NAME": "ada"})

	require.NoError(t, err)
	a, c := sleeper.Record("sleep-a"), sleeper.Record("sleep-b")
	require.NotNil(t, a)
	require.NotNil(t, c)
	assert.True(t, a.Overlaps(c), "independent build steps should overlap")
	assert.Equal(t, 2, res.Artifact.Sequence(action.Startup).Len()+res.Artifact.Sequence(action.StaticInit).Len())
}
