// Package loader supplies module contents to the bundling engine: the user's
// in-memory entry source and remote modules fetched from the registry.
package loader

import (
	"context"
	"fmt"

	"github.com/fluxbase-eu/bundlesize/internal/fetchcache"
	"github.com/fluxbase-eu/bundlesize/internal/resolver"
)

// Loader is created once per bundle request and holds that request's entry source.
type Loader struct {
	entry   string
	fetcher fetchcache.Fetcher
}

// New creates a loader serving entry as the virtual entry module.
func New(entry string, fetcher fetchcache.Fetcher) *Loader {
	return &Loader{entry: entry, fetcher: fetcher}
}

// Load returns the source text of id. handled is false for ids this loader does not own.
func (l *Loader) Load(ctx context.Context, id string) (contents string, handled bool, err error) {
	switch {
	case id == resolver.VirtualEntry:
		return l.entry, true, nil
	case resolver.IsRemote(id):
		resp, err := l.fetcher.Get(ctx, id)
		if err != nil {
			return "", true, fmt.Errorf("load %s: %w", id, err)
		}
		text, err := resp.Text()
		if err != nil {
			return "", true, fmt.Errorf("load %s: %w", id, err)
		}
		return text, true, nil
	default:
		return "", false, nil
	}
}
