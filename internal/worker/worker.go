// Package worker implements the bundling worker: it accepts bundle and abort
// requests, runs the bundling pipeline and posts progress, results and errors
// back to its consumer.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/bundlesize/internal/bundler"
	"github.com/fluxbase-eu/bundlesize/internal/observability"
)

// Bundler runs one bundling job
type Bundler interface {
	Bundle(ctx context.Context, req bundler.Request) (*bundler.Result, error)
}

// Poster delivers outbound messages to the consumer. Post is called from
// several goroutines and must be safe for concurrent use.
type Poster interface {
	Post(msg any) error
}

// PosterFunc adapts a function to Poster
type PosterFunc func(msg any) error

// Post calls f(msg)
func (f PosterFunc) Post(msg any) error {
	return f(msg)
}

// ChanPoster posts messages onto a channel
type ChanPoster chan<- any

// Post sends msg on the channel, blocking until it is received
func (p ChanPoster) Post(msg any) error {
	p <- msg
	return nil
}

// Worker handles requests from a single consumer.
//
// Runs are not queued and not cancelled: a bundle request arriving while
// another is in flight starts a second run, and abort is acknowledged
// without stopping anything. Consumers discard stale results by comparing
// the echoed input.
type Worker struct {
	pipeline Bundler
	poster   Poster
	metrics  *observability.Metrics

	wg sync.WaitGroup
}

// New creates a worker posting to poster
func New(pipeline Bundler, poster Poster, metrics *observability.Metrics) *Worker {
	return &Worker{
		pipeline: pipeline,
		poster:   poster,
		metrics:  metrics,
	}
}

// Handle processes one request. The acknowledgement is posted before Handle
// returns; a bundle run continues in the background after that.
// A *ProtocolError is returned for unknown request types.
func (w *Worker) Handle(ctx context.Context, req Request) error {
	switch req.Type {
	case MessageTypeBundle:
		w.metrics.RecordWorkerMessage("in", string(req.Type))
		if err := w.post(AckBundle); err != nil {
			return err
		}
		id := uuid.New().String()
		log.Debug().
			Str("request_id", id).
			Int("source_bytes", len(req.Source)).
			Bool("mangle", req.TerserOptions.Mangle()).
			Msg("Bundle requested")

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.bundle(context.WithoutCancel(ctx), id, req)
		}()
		return nil

	case MessageTypeAbort:
		w.metrics.RecordWorkerMessage("in", string(req.Type))
		// In-flight runs keep going; their results are still posted
		return w.post(AckAbort)

	default:
		w.metrics.RecordWorkerMessage("in", "invalid")
		return &ProtocolError{Type: req.Type}
	}
}

// Run handles requests until the channel is closed, ctx is done, or a
// request fails. A *ProtocolError ends the loop. Run does not wait for
// in-flight bundle runs; call Wait for that.
func (w *Worker) Run(ctx context.Context, requests <-chan Request) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req, ok := <-requests:
			if !ok {
				return nil
			}
			if err := w.Handle(ctx, req); err != nil {
				log.Error().Err(err).Str("type", string(req.Type)).Msg("Worker stopped")
				return err
			}
		}
	}
}

// Wait blocks until all in-flight bundle runs have posted their final event.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) bundle(ctx context.Context, id string, req Request) {
	result, err := w.pipeline.Bundle(ctx, bundler.Request{
		ID:     id,
		Source: req.Source,
		Minify: req.TerserOptions,
		OnBuilt: func() {
			w.postLogged(id, newStatus(StatusCreatedBundle))
		},
	})
	if err != nil {
		log.Warn().Err(err).Str("request_id", id).Msg("Bundle failed")
		w.postLogged(id, newError(req.Source))
		return
	}

	w.postLogged(id, newBundled(result))
}

func (w *Worker) post(msg any) error {
	if err := w.poster.Post(msg); err != nil {
		return fmt.Errorf("failed to post %s: %w", messageType(msg), err)
	}
	w.metrics.RecordWorkerMessage("out", messageType(msg))
	return nil
}

// postLogged posts from a background run, where there is no caller to
// return the error to.
func (w *Worker) postLogged(id string, msg any) {
	if err := w.post(msg); err != nil {
		log.Error().Err(err).Str("request_id", id).Msg("Failed to deliver worker message")
	}
}

func messageType(msg any) string {
	switch m := msg.(type) {
	case Ack:
		return string(m)
	case StatusEvent:
		return string(m.Type)
	case BundledEvent:
		return string(m.Type)
	case ErrorEvent:
		return string(m.Type)
	default:
		return "unknown"
	}
}
