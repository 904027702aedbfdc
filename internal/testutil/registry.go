// Package testutil provides shared test utilities for unit testing.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Registry is a fake package registry served over httptest. It serves static
// files, redirects and arbitrary status codes, and counts every request by path.
type Registry struct {
	Server *httptest.Server

	mu        sync.Mutex
	files     map[string]registryFile
	redirects map[string]string
	hits      map[string]int
	hold      chan struct{}
}

type registryFile struct {
	status      int
	contentType string
	body        []byte
}

// NewRegistry starts a fake registry that is closed when the test ends.
func NewRegistry(t testing.TB) *Registry {
	t.Helper()
	r := &Registry{
		files:     make(map[string]registryFile),
		redirects: make(map[string]string),
		hits:      make(map[string]int),
	}
	r.Server = httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(func() {
		r.Release()
		r.Server.Close()
	})
	return r
}

// URL returns the registry base URL without a trailing slash.
func (r *Registry) URL() string {
	return r.Server.URL
}

// AddFile serves body with status 200 at path.
func (r *Registry) AddFile(path, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[path] = registryFile{status: http.StatusOK, contentType: "application/javascript", body: []byte(body)}
}

// AddManifest serves manifest as /<pkg>/package.json.
func (r *Registry) AddManifest(pkg string, manifest map[string]any) {
	data, err := json.Marshal(manifest)
	if err != nil {
		panic(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files["/"+pkg+"/package.json"] = registryFile{status: http.StatusOK, contentType: "application/json", body: data}
}

// AddStatus answers path with an empty body and the given status.
func (r *Registry) AddStatus(path string, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[path] = registryFile{status: status, contentType: "text/plain"}
}

// AddRedirect answers from with a 302 to to.
func (r *Registry) AddRedirect(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redirects[from] = to
}

// Hits returns how many requests were made for path.
func (r *Registry) Hits(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits[path]
}

// TotalHits returns the number of requests served.
func (r *Registry) TotalHits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.hits {
		total += n
	}
	return total
}

// Hold makes every following request block until Release is called.
func (r *Registry) Hold() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hold == nil {
		r.hold = make(chan struct{})
	}
}

// Release unblocks requests held by Hold.
func (r *Registry) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hold != nil {
		close(r.hold)
		r.hold = nil
	}
}

func (r *Registry) serve(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	r.hits[req.URL.Path]++
	hold := r.hold
	target, isRedirect := r.redirects[req.URL.Path]
	file, isFile := r.files[req.URL.Path]
	r.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-req.Context().Done():
			return
		}
	}

	switch {
	case isRedirect:
		http.Redirect(w, req, target, http.StatusFound)
	case isFile:
		w.Header().Set("Content-Type", file.contentType)
		w.WriteHeader(file.status)
		_, _ = w.Write(file.body)
	default:
		http.NotFound(w, req)
	}
}
