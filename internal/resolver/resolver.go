// Package resolver turns import specifiers into absolute, fetchable URLs on a
// package registry such as unpkg.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/bundlesize/internal/fetchcache"
	"github.com/fluxbase-eu/bundlesize/internal/observability"
)

// VirtualEntry is the module id of the in-memory entry holding the user's source.
const VirtualEntry = "virtual-entry"

var (
	// ErrUnsupportedFormat means the package has no ES module entry and is assumed to be commonJS.
	ErrUnsupportedFormat = errors.New("unsupported module format")
	// ErrRelativeFromEntry means the entry source imported a relative path, which has no base URL.
	ErrRelativeFromEntry = errors.New("relative imports are not supported in the entry source")
)

// Manifest is the subset of package.json the resolver cares about.
type Manifest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Module  string `json:"module"`
}

// Resolver maps (specifier, importer) pairs to module URLs.
type Resolver struct {
	registry string
	fetcher  fetchcache.Fetcher
}

// New creates a resolver for registry (e.g. https://unpkg.com) reading through fetcher.
func New(registry string, fetcher fetchcache.Fetcher) *Resolver {
	return &Resolver{
		registry: strings.TrimRight(registry, "/"),
		fetcher:  fetcher,
	}
}

// Registry returns the registry base URL.
func (r *Resolver) Registry() string {
	return r.registry
}

// Resolve returns the absolute URL of the module specifier refers to when imported from importer.
// importer is either a module URL or VirtualEntry.
func (r *Resolver) Resolve(ctx context.Context, specifier, importer string) (resolved string, err error) {
	ctx, span := observability.StartResolveSpan(ctx, specifier, importer)
	defer func() { observability.EndSpan(span, err) }()

	switch {
	case IsRemote(specifier):
		return specifier, nil
	case IsRelative(specifier):
		return r.resolveRelative(ctx, specifier, importer)
	default:
		return r.resolveBare(ctx, specifier)
	}
}

func (r *Resolver) resolveRelative(ctx context.Context, specifier, importer string) (string, error) {
	if !IsRemote(importer) {
		log.Warn().
			Str("specifier", specifier).
			Str("importer", importer).
			Msg("Relative import without a remote importer")
		return "", fmt.Errorf("resolve %q from %s: %w", specifier, importer, ErrRelativeFromEntry)
	}

	// The importer may have been a redirect (e.g. /pkg@1/esm/AppBar -> /pkg@1/esm/AppBar/index.js),
	// so rebase against where it actually ended up.
	resp, err := r.fetcher.Get(ctx, importer)
	if err != nil {
		return "", fmt.Errorf("resolve %q from %s: %w", specifier, importer, err)
	}

	resolved, err := rebase(resp.URL, specifier)
	if err != nil {
		return "", fmt.Errorf("resolve %q from %s: %w", specifier, importer, err)
	}
	return resolved, nil
}

func (r *Resolver) resolveBare(ctx context.Context, specifier string) (string, error) {
	packageURL := r.registry + "/" + specifier

	resp, err := r.fetcher.Get(ctx, packageURL+"/package.json")
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", specifier, err)
	}

	if !resp.OK() {
		// Deep imports like pkg/sub/file.js have no manifest; let the registry sort it out.
		log.Debug().
			Str("specifier", specifier).
			Int("status", resp.StatusCode).
			Msg("No manifest, using package URL")
		return packageURL, nil
	}

	var manifest Manifest
	if err := resp.JSON(&manifest); err != nil {
		return "", fmt.Errorf("resolve %q: %w", specifier, err)
	}
	if manifest.Module == "" {
		return "", fmt.Errorf("can only bundle ES modules but %s appears to be in commonJS: %w", specifier, ErrUnsupportedFormat)
	}

	resolved, err := rebase(packageURL+"/", manifest.Module)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", specifier, err)
	}
	return resolved, nil
}

// IsRelative reports whether specifier is a path relative to its importer.
func IsRelative(specifier string) bool {
	return strings.HasPrefix(specifier, ".")
}

// IsRemote reports whether id is an absolute http(s) URL.
func IsRemote(id string) bool {
	return strings.HasPrefix(id, "https://") || strings.HasPrefix(id, "http://")
}

func rebase(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", base, err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}
