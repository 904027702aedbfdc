package bundler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fluxbase-eu/bundlesize/internal/fetchcache"
	"github.com/fluxbase-eu/bundlesize/internal/observability"
	"github.com/fluxbase-eu/bundlesize/internal/resolver"
	"github.com/fluxbase-eu/bundlesize/internal/testutil"
)

var testExternals = []string{"react", "react-dom", "prop-types"}

func newPipeline(t *testing.T) (*Pipeline, *testutil.Registry) {
	t.Helper()
	registry := testutil.NewRegistry(t)
	p := New(Options{
		Registry:  registry.URL(),
		Fetcher:   fetchcache.New(fetchcache.Options{}),
		Externals: testExternals,
		Metrics:   observability.NewMetrics(prometheus.NewRegistry()),
	})
	return p, registry
}

// addPackage publishes a two-file ES module package on the fake registry.
func addPackage(registry *testutil.Registry) {
	registry.AddManifest("pkg", map[string]any{"name": "pkg", "module": "esm/index.js"})
	registry.AddFile("/pkg/esm/index.js", `
export { helper } from './helper.js';
export const unused = 'this string is tree-shaken';
`)
	registry.AddFile("/pkg/esm/helper.js", `export function helper(value) { return value * 2; }`)
}

func TestBundle_DefaultExport(t *testing.T) {
	p, registry := newPipeline(t)

	result, err := p.Bundle(context.Background(), Request{
		Source: "export default 1;",
		Minify: MinifyOptions{"mangle": false},
	})
	require.NoError(t, err)

	assert.Equal(t, "export default 1;", result.Input)
	require.Len(t, result.Chunks, 1)
	chunk := result.Chunks[0]
	assert.Equal(t, "bundle.js", chunk.FileName)
	assert.True(t, chunk.IsEntry)
	assert.Contains(t, chunk.Code, "export{")
	assert.Contains(t, chunk.Code, "as default}")
	assert.Equal(t, []string{"default"}, chunk.Exports)
	assert.Contains(t, chunk.Modules, resolver.VirtualEntry)
	assert.Equal(t, len(chunk.Code), result.Size())
	assert.Equal(t, 0, registry.TotalHits())
}

func TestBundle_RegistryDependency(t *testing.T) {
	p, registry := newPipeline(t)
	addPackage(registry)

	result, err := p.Bundle(context.Background(), Request{
		Source: "import { helper } from 'pkg'; console.log(helper(21));",
		Minify: MinifyOptions{"mangle": true},
	})
	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)

	code := result.Chunks[0].Code
	assert.Contains(t, code, "console.log")
	assert.Contains(t, code, "*2")
	assert.NotContains(t, code, "this string is tree-shaken")

	modules := result.Chunks[0].Modules
	assert.Contains(t, modules, registry.URL()+"/pkg/esm/helper.js")

	assert.Equal(t, 1, registry.Hits("/pkg/package.json"))
	assert.Equal(t, 1, registry.Hits("/pkg/esm/index.js"))
	assert.Equal(t, 1, registry.Hits("/pkg/esm/helper.js"))

	a := Analyze(result, registry.URL())
	assert.Contains(t, []string{"pkg", "<entry>"}, a.Modules[0].Package)
}

func TestBundle_Mangle(t *testing.T) {
	source := "export function twice(someLongParameterName) { return someLongParameterName + someLongParameterName; }"

	p, _ := newPipeline(t)
	plain, err := p.Bundle(context.Background(), Request{Source: source, Minify: MinifyOptions{"mangle": false}})
	require.NoError(t, err)
	mangled, err := p.Bundle(context.Background(), Request{Source: source, Minify: MinifyOptions{"mangle": true}})
	require.NoError(t, err)

	assert.Contains(t, plain.Chunks[0].Code, "someLongParameterName")
	assert.NotContains(t, mangled.Chunks[0].Code, "someLongParameterName")
	assert.Less(t, mangled.Size(), plain.Size())
	assert.Equal(t, []string{"twice"}, mangled.Chunks[0].Exports)
}

func TestBundle_ExternalsAreNotFetched(t *testing.T) {
	p, registry := newPipeline(t)

	result, err := p.Bundle(context.Background(), Request{
		Source: "import React from 'react'; import { createRoot } from 'react-dom/client'; console.log(React, createRoot);",
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"react", "react-dom/client"}, result.Chunks[0].Imports)
	assert.Equal(t, 0, registry.TotalHits())
}

func TestBundle_SyntaxError(t *testing.T) {
	p, _ := newPipeline(t)

	result, err := p.Bundle(context.Background(), Request{Source: "export default (;"})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrBundle)

	var buildErr *BuildError
	require.True(t, errors.As(err, &buildErr))
	require.NotEmpty(t, buildErr.Messages)
	assert.Contains(t, buildErr.Messages[0], "virtual-entry")
}

func TestBundle_CommonJSPackage(t *testing.T) {
	p, registry := newPipeline(t)
	registry.AddManifest("legacy", map[string]any{"name": "legacy", "main": "index.js"})

	_, err := p.Bundle(context.Background(), Request{Source: "import legacy from 'legacy'; legacy();"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBundle)
	assert.ErrorIs(t, err, resolver.ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), "appears to be in commonJS")
}

func TestBundle_RelativeImportFromEntry(t *testing.T) {
	p, _ := newPipeline(t)

	_, err := p.Bundle(context.Background(), Request{Source: "import './local.js';"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBundle)
	assert.ErrorIs(t, err, resolver.ErrRelativeFromEntry)
}

func TestBundle_MissingModule(t *testing.T) {
	p, registry := newPipeline(t)
	registry.AddManifest("broken", map[string]any{"module": "esm/missing.js"})

	_, err := p.Bundle(context.Background(), Request{Source: "import 'broken';"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBundle)
	assert.ErrorIs(t, err, fetchcache.ErrNotOK)
}

func bundleSpan(t *testing.T, spans []sdktrace.ReadOnlySpan) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, span := range spans {
		if span.Name() == "bundle" {
			return span
		}
	}
	t.Fatal("no bundle span recorded")
	return nil
}

func TestBundle_Tracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})

	p, registry := newPipeline(t)
	registry.AddManifest("broken", map[string]any{"module": "esm/missing.js"})

	t.Run("success records size", func(t *testing.T) {
		seen := len(recorder.Ended())
		result, err := p.Bundle(context.Background(), Request{Source: "export default 1;"})
		require.NoError(t, err)

		span := bundleSpan(t, recorder.Ended()[seen:])
		assert.Contains(t, span.Attributes(), attribute.Int("bundle.chunks", 1))
		assert.Contains(t, span.Attributes(), attribute.Int("bundle.size_bytes", result.Size()))
	})

	t.Run("plugin failure is recorded on the bundle span", func(t *testing.T) {
		seen := len(recorder.Ended())
		_, err := p.Bundle(context.Background(), Request{Source: "import 'broken';"})
		require.Error(t, err)

		span := bundleSpan(t, recorder.Ended()[seen:])
		assert.Equal(t, codes.Error, span.Status().Code)

		var messages []string
		for _, event := range span.Events() {
			if event.Name != "exception" {
				continue
			}
			for _, kv := range event.Attributes {
				if kv.Key == "exception.message" {
					messages = append(messages, kv.Value.AsString())
				}
			}
		}
		require.NotEmpty(t, messages)
		assert.Contains(t, messages[0], "missing.js")
	})
}

func TestBundle_OnBuilt(t *testing.T) {
	p, _ := newPipeline(t)

	calls := 0
	_, err := p.Bundle(context.Background(), Request{
		Source:  "export const a = 1;",
		OnBuilt: func() { calls++ },
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	_, err = p.Bundle(context.Background(), Request{
		Source:  "export const = ;",
		OnBuilt: func() { calls++ },
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "OnBuilt must not run when the build fails")
}

func TestBundle_ConcurrentRunsShareCache(t *testing.T) {
	p, registry := newPipeline(t)
	addPackage(registry)

	sources := []string{
		"import { helper } from 'pkg'; console.log(helper(1));",
		"import { helper } from 'pkg'; console.log(helper(2));",
		"import { helper } from 'pkg'; console.log(helper(3));",
	}

	var wg sync.WaitGroup
	results := make([]*Result, len(sources))
	errs := make([]error, len(sources))
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src string) {
			defer wg.Done()
			results[i], errs[i] = p.Bundle(context.Background(), Request{Source: src})
		}(i, src)
	}
	wg.Wait()

	for i := range sources {
		require.NoError(t, errs[i])
		assert.Equal(t, sources[i], results[i].Input)
	}
	assert.Equal(t, 1, registry.Hits("/pkg/package.json"))
	assert.Equal(t, 1, registry.Hits("/pkg/esm/helper.js"))
}

func TestMinify_KeepsModernSyntax(t *testing.T) {
	code, err := minify(`
export const pick = (a, b) => a ?? b;
export class Counter { #count = 0; next() { return ++this.#count; } }
export const total = await Promise.resolve(1n);
`, MinifyOptions{"mangle": true})
	require.NoError(t, err)

	assert.Contains(t, code, "??")
	assert.Contains(t, code, "#")
	assert.Contains(t, code, "await")
	assert.Contains(t, code, "1n")
}

func TestMinify_InvalidInput(t *testing.T) {
	_, err := minify("let = ;", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMinify)
}

func TestLoaderFor(t *testing.T) {
	assert.Equal(t, api.LoaderJSON, loaderFor("https://unpkg.com/pkg/data.json"))
	assert.Equal(t, api.LoaderJS, loaderFor("https://unpkg.com/pkg/index.js?module"))
	assert.Equal(t, api.LoaderEmpty, loaderFor("https://unpkg.com/pkg/style.css"))
	assert.Equal(t, api.LoaderJS, loaderFor(resolver.VirtualEntry))
}
