// Package fetchcache deduplicates outbound HTTP GETs by URL.
//
// A Cache issues at most one network fetch per distinct URL for its whole
// lifetime. Concurrent callers for the same URL share the in-flight fetch, and
// every caller gets its own copy of the response so bodies can be read
// independently.
package fetchcache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/fluxbase-eu/bundlesize/internal/observability"
)

// Fetcher is the read side of the cache used by the resolver and loader.
type Fetcher interface {
	Get(ctx context.Context, url string) (*Response, error)
}

// Options configures a Cache.
type Options struct {
	Client    *http.Client
	UserAgent string
	// Limiter throttles outbound fetches. Cache hits are never throttled.
	Limiter *rate.Limiter
	Metrics *observability.Metrics
}

// Cache is a process-lifetime response cache keyed by absolute URL.
type Cache struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
	metrics   *observability.Metrics

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	done chan struct{}
	resp *Response
	err  error
}

// New creates an empty cache.
func New(opts Options) *Cache {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Cache{
		client:    client,
		userAgent: opts.UserAgent,
		limiter:   opts.Limiter,
		metrics:   opts.Metrics,
		entries:   make(map[string]*entry),
	}
}

// NewLimiter returns a limiter for perSecond fetches, or nil when perSecond is 0.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Get returns a private copy of the response for url, fetching it on first use.
//
// The entry is registered before the network call starts, so callers racing on
// the same URL all wait for the single fetch. Network errors are cached as
// well; non-2xx responses are returned as responses.
func (c *Cache) Get(ctx context.Context, url string) (*Response, error) {
	c.mu.Lock()
	e, ok := c.entries[url]
	if !ok {
		e = &entry{done: make(chan struct{})}
		c.entries[url] = e
	}
	c.mu.Unlock()

	if !ok {
		// The shared fetch must not die with the first caller's context.
		go c.fill(context.WithoutCancel(ctx), url, e)
	} else {
		c.metrics.RecordCacheHit()
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if e.err != nil {
		return nil, e.err
	}
	return e.resp.Clone(), nil
}

// Len returns the number of URLs fetched or being fetched.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Reset drops every entry. In-flight fetches finish but are no longer reachable.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

func (c *Cache) fill(ctx context.Context, url string, e *entry) {
	defer close(e.done)
	e.resp, e.err = c.fetch(ctx, url)
}

func (c *Cache) fetch(ctx context.Context, url string) (resp *Response, err error) {
	ctx, span := observability.StartFetchSpan(ctx, url)
	defer func() { observability.EndSpan(span, err) }()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	httpResp, err := c.client.Do(req)
	if err != nil {
		c.metrics.RecordFetch(0, time.Since(start))
		log.Debug().Err(err).Str("url", url).Msg("Fetch failed")
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(httpResp.Body)
	c.metrics.RecordFetch(httpResp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: reading body: %w", url, err)
	}

	final := url
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		final = httpResp.Request.URL.String()
	}

	log.Debug().
		Str("url", url).
		Str("final_url", final).
		Int("status", httpResp.StatusCode).
		Int("bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("Fetched")

	return &Response{
		URL:        final,
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header.Clone(),
		body:       body,
	}, nil
}
