package session

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/bundlesize/internal/bundler"
	"github.com/fluxbase-eu/bundlesize/internal/worker"
)

// Session owns a State and serializes actions on it. Worker events can be
// applied from any goroutine.
type Session struct {
	mu    sync.Mutex
	state State
}

// New creates a session showing source.
func New(source string) *Session {
	return &Session{state: Initial(source)}
}

// State returns a snapshot of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies a and returns the resulting state.
func (s *Session) Dispatch(a Action) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reduce(s.state, a)
	return s.state
}

// SetSource dispatches SourceChanged.
func (s *Session) SetSource(source string) State {
	return s.Dispatch(SourceChanged{Source: source})
}

// Submit marks the current source as loading and returns the request that
// should be sent to the worker for it.
func (s *Session) Submit(opts bundler.MinifyOptions) worker.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reduce(s.state, Submitted{})
	return worker.Request{
		Type:          worker.MessageTypeBundle,
		Source:        s.state.Source,
		TerserOptions: opts,
	}
}

// Apply maps a worker message onto the state. Acknowledgements and status
// events do not change it. It reports whether the message was accepted,
// which is false for stale results.
func (s *Session) Apply(msg any) bool {
	var action Action
	var input string
	switch m := msg.(type) {
	case worker.BundledEvent:
		action, input = Bundled{Input: m.Input, Output: m.Output}, m.Input
	case worker.ErrorEvent:
		action, input = Failed{Input: m.Input}, m.Input
	default:
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if input != s.state.Source {
		log.Debug().Int("input_bytes", len(input)).Msg("Discarding stale bundle result")
		return false
	}
	s.state = Reduce(s.state, action)
	return true
}

// Size returns the byte size of the accepted output.
func (s *Session) Size() int {
	return s.State().Size()
}
