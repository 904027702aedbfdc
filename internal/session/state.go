// Package session holds the consumer side of the worker protocol: the state
// shown to the user and the reducer that keeps it coherent with the latest
// submitted source.
package session

import (
	"fmt"

	"github.com/fluxbase-eu/bundlesize/internal/bundler"
)

// Phase is the lifecycle of the displayed bundle
type Phase string

const (
	PhaseInitial Phase = "initial"
	PhaseDirty   Phase = "dirty"
	PhaseLoading Phase = "loading"
	PhaseDone    Phase = "done"
	PhaseErrored Phase = "errored"
)

// State is the displayed source, its last accepted output and the phase.
type State struct {
	Source string
	Output []bundler.Chunk
	Phase  Phase
}

// Action is one state transition. The set is closed: only the types in this
// package implement it.
type Action interface {
	isAction()
}

// SourceChanged records an edit of the source.
type SourceChanged struct {
	Source string
}

// Submitted records that the current source was sent to the worker.
type Submitted struct{}

// Bundled delivers a worker result produced from Input.
type Bundled struct {
	Input  string
	Output []bundler.Chunk
}

// Failed delivers a worker failure for Input.
type Failed struct {
	Input string
}

func (SourceChanged) isAction() {}
func (Submitted) isAction()     {}
func (Bundled) isAction()       {}
func (Failed) isAction()        {}

// Initial returns the state before any edit.
func Initial(source string) State {
	return State{Source: source, Phase: PhaseInitial}
}

// Reduce applies a to s. Results and failures whose input no longer matches
// the current source are stale and leave the state unchanged. An action type
// outside this package is a programming error and panics.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case SourceChanged:
		s.Source = a.Source
		s.Phase = PhaseDirty
	case Submitted:
		s.Phase = PhaseLoading
	case Bundled:
		if a.Input != s.Source {
			return s
		}
		s.Output = a.Output
		s.Phase = PhaseDone
	case Failed:
		if a.Input != s.Source {
			return s
		}
		// previous output stays on screen
		s.Phase = PhaseErrored
	default:
		panic(fmt.Sprintf("session: unknown action %T", a))
	}
	return s
}

// Size returns the byte size of the accepted output.
func (s State) Size() int {
	size := 0
	for _, c := range s.Output {
		size += len(c.Code)
	}
	return size
}
