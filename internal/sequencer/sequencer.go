// Package sequencer turns per-step recorded actions into one totally ordered
// ActionSequence per phase.
package sequencer

import (
	"fmt"

	"github.com/specialistvlad/bootreplay/internal/action"
	"github.com/specialistvlad/bootreplay/internal/buildstep"
)

// Sequence groups actions by phase. Results must be in plan order; within
// a step, actions keep the order they were recorded in. Every phase gets a
// sequence, empty if no step recorded into it.
func Sequence(results []buildstep.Result) (map[action.Phase]*action.ActionSequence, error) {
	seqs := make(map[action.Phase]*action.ActionSequence, len(action.Phases))
	for _, p := range action.Phases {
		seqs[p] = &action.ActionSequence{Phase: p, Actions: []action.RecordedAction{}}
	}

	for _, res := range results {
		for _, a := range res.Actions {
			seq, ok := seqs[a.Phase]
			if !ok {
				return nil, fmt.Errorf("step %q recorded %s in unknown phase %q", res.Step, a, a.Phase)
			}
			seq.Actions = append(seq.Actions, a)
		}
	}
	return seqs, nil
}

// Artifact bundles the sequences of one successful build.
func Artifact(outcome *buildstep.Outcome, configFingerprint string) (*action.Artifact, error) {
	seqs, err := Sequence(outcome.Results)
	if err != nil {
		return nil, err
	}
	steps := outcome.Order
	if steps == nil {
		steps = []string{}
	}
	watched := outcome.Watched
	if watched == nil {
		watched = []string{}
	}
	return &action.Artifact{
		ConfigFingerprint: configFingerprint,
		Steps:             steps,
		Watched:           watched,
		Sequences:         seqs,
	}, nil
}
