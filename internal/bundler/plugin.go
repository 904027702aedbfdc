package bundler

import (
	"context"
	"path"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/bundlesize/internal/loader"
	"github.com/fluxbase-eu/bundlesize/internal/observability"
	"github.com/fluxbase-eu/bundlesize/internal/resolver"
)

const (
	namespaceVirtual = "virtual"
	namespaceRemote  = "remote"
)

// pluginRun holds the per-request state the esbuild callbacks need.
// esbuild calls the callbacks from several goroutines at once.
type pluginRun struct {
	ctx       context.Context
	resolver  *resolver.Resolver
	loader    *loader.Loader
	externals []string

	mu  sync.Mutex
	err error
}

func (r *pluginRun) plugin() api.Plugin {
	return api.Plugin{
		Name: "registry",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `.*`}, r.onResolve)
			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: namespaceVirtual}, r.onLoad)
			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: namespaceRemote}, r.onLoad)
		},
	}
}

func (r *pluginRun) onResolve(args api.OnResolveArgs) (api.OnResolveResult, error) {
	if args.Kind == api.ResolveEntryPoint {
		return api.OnResolveResult{Path: args.Path, Namespace: namespaceVirtual}, nil
	}

	if isExternal(args.Path, r.externals) {
		return api.OnResolveResult{Path: args.Path, External: true}, nil
	}

	url, err := r.resolver.Resolve(r.ctx, args.Path, args.Importer)
	if err != nil {
		r.record(err)
		return api.OnResolveResult{}, err
	}

	log.Debug().
		Str("specifier", args.Path).
		Str("importer", args.Importer).
		Str("url", url).
		Msg("Resolved import")

	return api.OnResolveResult{Path: url, Namespace: namespaceRemote}, nil
}

func (r *pluginRun) onLoad(args api.OnLoadArgs) (api.OnLoadResult, error) {
	contents, handled, err := r.loader.Load(r.ctx, args.Path)
	if err != nil {
		r.record(err)
		return api.OnLoadResult{}, err
	}
	if !handled {
		return api.OnLoadResult{}, nil
	}
	return api.OnLoadResult{
		Contents: &contents,
		Loader:   loaderFor(args.Path),
	}, nil
}

func (r *pluginRun) record(err error) {
	observability.RecordError(r.ctx, err)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

func (r *pluginRun) firstError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// isExternal reports whether specifier is one of externals or a subpath of one.
func isExternal(specifier string, externals []string) bool {
	for _, name := range externals {
		if specifier == name || strings.HasPrefix(specifier, name+"/") {
			return true
		}
	}
	return false
}

func loaderFor(id string) api.Loader {
	if i := strings.IndexAny(id, "?#"); i >= 0 {
		id = id[:i]
	}
	switch path.Ext(id) {
	case ".json":
		return api.LoaderJSON
	case ".css":
		return api.LoaderEmpty
	default:
		return api.LoaderJS
	}
}
