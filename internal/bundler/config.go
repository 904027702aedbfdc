package bundler

import (
	"net/http"

	"github.com/fluxbase-eu/bundlesize/internal/config"
	"github.com/fluxbase-eu/bundlesize/internal/fetchcache"
	"github.com/fluxbase-eu/bundlesize/internal/observability"
)

// FromConfig builds a pipeline and the response cache it fetches through.
// The cache is returned so callers can share or reset it.
func FromConfig(cfg *config.Config, metrics *observability.Metrics) (*Pipeline, *fetchcache.Cache) {
	cache := fetchcache.New(fetchcache.Options{
		Client:    &http.Client{Timeout: cfg.Registry.FetchTimeout},
		UserAgent: cfg.Registry.UserAgent,
		Limiter:   fetchcache.NewLimiter(cfg.Registry.RateLimit, cfg.Registry.RateBurst),
		Metrics:   metrics,
	})

	pipeline := New(Options{
		Registry:  cfg.Registry.BaseURL(),
		Fetcher:   cache,
		Externals: cfg.Bundler.Externals,
		Metrics:   metrics,
	})
	return pipeline, cache
}
