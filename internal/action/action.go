// Package action holds the data that crosses the build/runtime boundary:
// recorded invocations, their serialized arguments, the per-phase sequences
// and the artifact that bundles them.
//
// Everything here is plain data with a canonical JSON form. Two builds fed
// the same configuration and resource content must produce byte-identical
// sequences, so no field may depend on timing, pointers or map iteration.
package action

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// RecordedAction is one captured, effect-only invocation of a capability.
type RecordedAction struct {
	Capability string  `json:"capability"`
	Method     string  `json:"method"`
	Args       []Value `json:"args"`
	Phase      Phase   `json:"phase"`
}

// DecodeArgs restores the argument values.
func (a RecordedAction) DecodeArgs() ([]cty.Value, error) {
	out := make([]cty.Value, len(a.Args))
	for i, arg := range a.Args {
		v, err := arg.Decode()
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (a RecordedAction) String() string {
	args := make([]string, len(a.Args))
	for i, arg := range a.Args {
		args[i] = arg.String()
	}
	return fmt.Sprintf("%s.%s(%s)", a.Capability, a.Method, strings.Join(args, ", "))
}

// ActionSequence is the totally ordered list of actions of one phase.
type ActionSequence struct {
	Phase   Phase            `json:"phase"`
	Actions []RecordedAction `json:"actions"`
}

// Len returns the number of actions; a nil sequence is empty.
func (s *ActionSequence) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Actions)
}

// Bytes returns the canonical encoding of the sequence.
func (s *ActionSequence) Bytes() ([]byte, error) {
	return json.Marshal(s)
}

// Fingerprint is the hex sha256 of Bytes. It returns an empty string if the
// sequence cannot be encoded; callers treat that as "differs from anything".
func (s *ActionSequence) Fingerprint() string {
	b, err := s.Bytes()
	if err != nil {
		return ""
	}
	return Hash(b)
}

// Artifact is the complete output of one build.
type Artifact struct {
	ConfigFingerprint string                    `json:"config_fingerprint"`
	Steps             []string                  `json:"steps"`
	Watched           []string                  `json:"watched"`
	Sequences         map[Phase]*ActionSequence `json:"sequences"`
}

// Sequence returns the sequence of phase p, never nil.
func (a *Artifact) Sequence(p Phase) *ActionSequence {
	if a != nil {
		if s, ok := a.Sequences[p]; ok && s != nil {
			return s
		}
	}
	return &ActionSequence{Phase: p, Actions: []RecordedAction{}}
}

// Bytes returns the canonical encoding of the artifact. encoding/json sorts
// map keys, which keeps the phase map stable.
func (a *Artifact) Bytes() ([]byte, error) {
	return json.Marshal(a)
}

// Fingerprint is the hex sha256 of Bytes, or "" if encoding fails.
func (a *Artifact) Fingerprint() string {
	b, err := a.Bytes()
	if err != nil {
		return ""
	}
	return Hash(b)
}

// ParseArtifact decodes an artifact previously produced by Bytes.
func ParseArtifact(b []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	for p, seq := range a.Sequences {
		if !p.Valid() {
			return nil, fmt.Errorf("decode artifact: unknown phase %q", p)
		}
		if seq == nil {
			return nil, fmt.Errorf("decode artifact: phase %s has no sequence", p)
		}
		if seq.Actions == nil {
			seq.Actions = []RecordedAction{}
		}
	}
	return &a, nil
}

// Hash returns the hex sha256 of b.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
