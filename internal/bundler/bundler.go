// Package bundler bundles an in-memory ES module together with its registry
// dependencies into a single minified ES module.
package bundler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fluxbase-eu/bundlesize/internal/fetchcache"
	"github.com/fluxbase-eu/bundlesize/internal/loader"
	"github.com/fluxbase-eu/bundlesize/internal/observability"
	"github.com/fluxbase-eu/bundlesize/internal/resolver"
)

var (
	// ErrBundle wraps every failure while building the module graph.
	ErrBundle = errors.New("bundling failed")
	// ErrMinify wraps failures of the minification transform.
	ErrMinify = errors.New("minification failed")
)

const outputFile = "bundle.js"

// Options configures a Pipeline.
type Options struct {
	Registry  string
	Fetcher   fetchcache.Fetcher
	Externals []string
	Metrics   *observability.Metrics
}

// Pipeline drives esbuild with the registry resolver and loader.
// A Pipeline is safe for concurrent use; each Bundle call is independent
// apart from the shared Fetcher.
type Pipeline struct {
	resolver  *resolver.Resolver
	fetcher   fetchcache.Fetcher
	externals []string
	metrics   *observability.Metrics
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	return &Pipeline{
		resolver:  resolver.New(opts.Registry, opts.Fetcher),
		fetcher:   opts.Fetcher,
		externals: opts.Externals,
		metrics:   opts.Metrics,
	}
}

// Request is one bundling job.
type Request struct {
	Source string
	Minify MinifyOptions
	// OnBuilt, if set, is called once the module graph is built and before minification.
	OnBuilt func()
	// ID correlates logs and traces; optional.
	ID string
}

// Result is a finished bundle. Input is the source that produced it.
type Result struct {
	Input  string  `json:"input"`
	Chunks []Chunk `json:"output"`

	metafile *Metafile
}

// Chunk is one unit of generated code.
type Chunk struct {
	FileName string                `json:"fileName"`
	Code     string                `json:"code"`
	IsEntry  bool                  `json:"isEntry"`
	Exports  []string              `json:"exports"`
	Imports  []string              `json:"imports"`
	Modules  map[string]ModuleInfo `json:"modules"`
}

// ModuleInfo describes how much of a chunk a module accounts for before minification.
type ModuleInfo struct {
	RenderedLength int `json:"renderedLength"`
}

// Size returns the total byte size of all chunks.
func (r *Result) Size() int {
	size := 0
	for _, c := range r.Chunks {
		size += len(c.Code)
	}
	return size
}

// Bundle builds, minifies and assembles req.Source. Any failure during graph
// construction is reported as ErrBundle; no partial result is returned.
func (p *Pipeline) Bundle(ctx context.Context, req Request) (result *Result, err error) {
	start := time.Now()
	p.metrics.BundleStarted()

	ctx, span := observability.StartBundleSpan(ctx, observability.BundleSpanConfig{
		RequestID:   req.ID,
		SourceBytes: len(req.Source),
		Mangle:      req.Minify.Mangle(),
	})
	defer func() {
		outcome := "success"
		size := 0
		switch {
		case errors.Is(err, ErrMinify):
			outcome = "minify_error"
		case err != nil:
			outcome = "bundle_error"
		default:
			size = result.Size()
		}
		p.metrics.RecordBundle(outcome, time.Since(start), size)
		observability.EndSpan(span, err)
	}()

	files, meta, err := p.build(ctx, req.Source)
	if err != nil {
		return nil, err
	}
	observability.AddSpanEvent(ctx, "created bundle", attribute.Int("bundle.chunks", len(files)))
	if req.OnBuilt != nil {
		req.OnBuilt()
	}

	result = &Result{Input: req.Source, metafile: meta}
	for _, file := range files {
		code, err := minify(string(file.Contents), req.Minify)
		if err != nil {
			return nil, err
		}
		result.Chunks = append(result.Chunks, newChunk(file, code, meta))
	}

	observability.SetSpanAttributes(ctx,
		attribute.Int("bundle.chunks", len(result.Chunks)),
		attribute.Int("bundle.size_bytes", result.Size()),
	)

	log.Debug().
		Str("request_id", req.ID).
		Int("chunks", len(result.Chunks)).
		Int("bytes", result.Size()).
		Dur("duration", time.Since(start)).
		Msg("Bundle generated")

	return result, nil
}

func (p *Pipeline) build(ctx context.Context, source string) ([]api.OutputFile, *Metafile, error) {
	run := &pluginRun{
		ctx:       ctx,
		resolver:  p.resolver,
		loader:    loader.New(source, p.fetcher),
		externals: p.externals,
	}

	built := api.Build(api.BuildOptions{
		EntryPoints: []string{resolver.VirtualEntry},
		Bundle:      true,
		Write:       false,
		Metafile:    true,
		Format:      api.FormatESModule,
		Platform:    api.PlatformBrowser,
		Target:      api.ESNext,
		Splitting:   false, // dynamic imports are inlined into the single chunk
		Outfile:     outputFile,
		LogLevel:    api.LogLevelSilent,
		Plugins:     []api.Plugin{run.plugin()},
	})

	if len(built.Errors) > 0 {
		return nil, nil, newBuildError(built.Errors, run.firstError())
	}
	if len(built.OutputFiles) == 0 {
		return nil, nil, fmt.Errorf("%w: no output files", ErrBundle)
	}

	var meta Metafile
	if err := json.Unmarshal([]byte(built.Metafile), &meta); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to parse metafile: %v", ErrBundle, err)
	}

	return built.OutputFiles, &meta, nil
}

func newChunk(file api.OutputFile, code string, meta *Metafile) Chunk {
	name := filepath.Base(file.Path)
	chunk := Chunk{
		FileName: name,
		Code:     code,
		IsEntry:  true,
		Exports:  []string{},
		Imports:  []string{},
		Modules:  map[string]ModuleInfo{},
	}

	out, ok := findOutput(meta, name)
	if !ok {
		return chunk
	}
	if out.Exports != nil {
		chunk.Exports = out.Exports
	}
	for _, imp := range out.Imports {
		if imp.External {
			chunk.Imports = append(chunk.Imports, imp.Path)
		}
	}
	for input, contrib := range out.Inputs {
		chunk.Modules[moduleID(input)] = ModuleInfo{RenderedLength: contrib.BytesInOutput}
	}
	return chunk
}

// findOutput looks up a metafile output by file name; metafile keys are
// relative to the working directory.
func findOutput(meta *Metafile, name string) (MetafileOutput, bool) {
	if meta == nil {
		return MetafileOutput{}, false
	}
	for key, out := range meta.Outputs {
		if key == name || strings.HasSuffix(key, "/"+name) {
			return out, true
		}
	}
	return MetafileOutput{}, false
}

// BuildError carries the esbuild messages of a failed build.
type BuildError struct {
	Messages []string
	cause    error
}

func newBuildError(msgs []api.Message, cause error) *BuildError {
	e := &BuildError{cause: cause}
	for _, m := range msgs {
		text := m.Text
		if m.Location != nil {
			text = fmt.Sprintf("%s:%d:%d: %s", moduleID(m.Location.File), m.Location.Line, m.Location.Column, m.Text)
		}
		e.Messages = append(e.Messages, text)
	}
	return e
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%s: %s", ErrBundle, strings.Join(e.Messages, "; "))
}

// Unwrap exposes ErrBundle and, when a resolver or loader failed, its error.
func (e *BuildError) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrBundle, e.cause}
	}
	return []error{ErrBundle}
}
