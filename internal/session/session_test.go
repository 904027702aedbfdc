package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/bundlesize/internal/bundler"
	"github.com/fluxbase-eu/bundlesize/internal/worker"
)

func chunks(code string) []bundler.Chunk {
	return []bundler.Chunk{{FileName: "bundle.js", Code: code}}
}

func TestReduce(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		action   Action
		expected State
	}{
		{
			name:     "source change marks dirty",
			state:    State{Source: "a", Output: chunks("x"), Phase: PhaseDone},
			action:   SourceChanged{Source: "b"},
			expected: State{Source: "b", Output: chunks("x"), Phase: PhaseDirty},
		},
		{
			name:     "submit keeps output",
			state:    State{Source: "a", Output: chunks("x"), Phase: PhaseDirty},
			action:   Submitted{},
			expected: State{Source: "a", Output: chunks("x"), Phase: PhaseLoading},
		},
		{
			name:     "fresh result is accepted",
			state:    State{Source: "a", Phase: PhaseLoading},
			action:   Bundled{Input: "a", Output: chunks("y")},
			expected: State{Source: "a", Output: chunks("y"), Phase: PhaseDone},
		},
		{
			name:     "stale result is discarded",
			state:    State{Source: "b", Output: chunks("x"), Phase: PhaseLoading},
			action:   Bundled{Input: "a", Output: chunks("y")},
			expected: State{Source: "b", Output: chunks("x"), Phase: PhaseLoading},
		},
		{
			name:     "fresh failure keeps previous output",
			state:    State{Source: "a", Output: chunks("x"), Phase: PhaseLoading},
			action:   Failed{Input: "a"},
			expected: State{Source: "a", Output: chunks("x"), Phase: PhaseErrored},
		},
		{
			name:     "stale failure is discarded",
			state:    State{Source: "b", Phase: PhaseLoading},
			action:   Failed{Input: "a"},
			expected: State{Source: "b", Phase: PhaseLoading},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Reduce(tt.state, tt.action))
		})
	}
}

func TestReduce_StaleDiscard(t *testing.T) {
	s := Initial("")
	s = Reduce(s, SourceChanged{Source: "v1"})
	s = Reduce(s, Submitted{})
	s = Reduce(s, SourceChanged{Source: "v2"})
	before := s

	s = Reduce(s, Bundled{Input: "v1", Output: chunks("stale")})

	assert.Equal(t, before, s)
	assert.Equal(t, "v2", s.Source)
	assert.Equal(t, PhaseDirty, s.Phase)
	assert.Nil(t, s.Output)
}

func TestReduce_FreshAccept(t *testing.T) {
	s := Initial("")
	s = Reduce(s, SourceChanged{Source: "v1"})
	s = Reduce(s, Submitted{})
	s = Reduce(s, Bundled{Input: "v1", Output: chunks("fresh")})

	assert.Equal(t, PhaseDone, s.Phase)
	assert.Equal(t, chunks("fresh"), s.Output)
	assert.Equal(t, 5, s.Size())
}

type bogusAction struct{}

func (bogusAction) isAction() {}

func TestReduce_UnknownActionPanics(t *testing.T) {
	assert.PanicsWithValue(t, "session: unknown action session.bogusAction", func() {
		Reduce(Initial(""), bogusAction{})
	})
	assert.Panics(t, func() {
		Reduce(Initial(""), nil)
	})
}

func TestSession_SubmitAndApply(t *testing.T) {
	s := New("export default 1;")
	assert.Equal(t, PhaseInitial, s.State().Phase)

	req := s.Submit(bundler.MinifyOptions{"mangle": true})
	assert.Equal(t, worker.MessageTypeBundle, req.Type)
	assert.Equal(t, "export default 1;", req.Source)
	assert.True(t, req.TerserOptions.Mangle())
	assert.Equal(t, PhaseLoading, s.State().Phase)

	assert.False(t, s.Apply(worker.AckBundle))
	assert.False(t, s.Apply(worker.StatusEvent{Type: worker.MessageTypeStatus, Message: "created bundle"}))
	assert.Equal(t, PhaseLoading, s.State().Phase)

	accepted := s.Apply(worker.BundledEvent{
		Type:   worker.MessageTypeBundled,
		Input:  "export default 1;",
		Output: chunks("var a=1;export{a as default};"),
	})
	assert.True(t, accepted)
	assert.Equal(t, PhaseDone, s.State().Phase)
	assert.Equal(t, 29, s.Size())
}

func TestSession_DiscardsStaleEvents(t *testing.T) {
	s := New("")
	s.SetSource("v1")
	first := s.Submit(nil)
	s.SetSource("v2")
	s.Submit(nil)

	assert.False(t, s.Apply(worker.BundledEvent{Type: worker.MessageTypeBundled, Input: first.Source, Output: chunks("old")}))
	assert.False(t, s.Apply(worker.ErrorEvent{Type: worker.MessageTypeError, Input: first.Source}))

	state := s.State()
	assert.Equal(t, "v2", state.Source)
	assert.Equal(t, PhaseLoading, state.Phase)
	assert.Empty(t, state.Output)

	assert.True(t, s.Apply(worker.ErrorEvent{Type: worker.MessageTypeError, Input: "v2"}))
	assert.Equal(t, PhaseErrored, s.State().Phase)
}

func TestSession_ConcurrentApply(t *testing.T) {
	s := New("")
	s.SetSource("v3")
	s.Submit(nil)

	var wg sync.WaitGroup
	for _, input := range []string{"v1", "v2", "v3"} {
		wg.Add(1)
		go func(input string) {
			defer wg.Done()
			s.Apply(worker.BundledEvent{Type: worker.MessageTypeBundled, Input: input, Output: chunks(input)})
		}(input)
	}
	wg.Wait()

	state := s.State()
	require.Equal(t, PhaseDone, state.Phase)
	assert.Equal(t, chunks("v3"), state.Output)
}
