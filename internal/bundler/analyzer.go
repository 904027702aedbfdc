package bundler

import (
	"sort"
	"strings"

	"github.com/fluxbase-eu/bundlesize/internal/resolver"
)

// Analysis is the size breakdown of a bundle.
type Analysis struct {
	// TotalBytes is the size of the minified output.
	TotalBytes int `json:"totalBytes"`
	// RenderedBytes is the size of the output before minification.
	RenderedBytes int              `json:"renderedBytes"`
	Modules       []ModuleAnalysis `json:"modules"`
	Externals     []string         `json:"externals"`
	Warnings      []string         `json:"warnings,omitempty"`
}

// ModuleAnalysis is one module's share of the bundle before minification.
type ModuleAnalysis struct {
	ID            string  `json:"id"`
	Package       string  `json:"package"`
	BytesInOutput int     `json:"bytesInOutput"`
	Percentage    float64 `json:"percentage"`
}

// Analyze computes the size breakdown of r from its chunk metadata.
func Analyze(r *Result, registry string) *Analysis {
	a := &Analysis{
		TotalBytes: r.Size(),
		Modules:    []ModuleAnalysis{},
		Externals:  []string{},
	}

	externals := map[string]bool{}
	for _, chunk := range r.Chunks {
		for id, info := range chunk.Modules {
			a.RenderedBytes += info.RenderedLength
			a.Modules = append(a.Modules, ModuleAnalysis{
				ID:            id,
				Package:       packageName(id, registry),
				BytesInOutput: info.RenderedLength,
			})
		}
		for _, imp := range chunk.Imports {
			externals[imp] = true
		}
	}

	for i := range a.Modules {
		if a.RenderedBytes > 0 {
			a.Modules[i].Percentage = float64(a.Modules[i].BytesInOutput) / float64(a.RenderedBytes) * 100
		}
	}

	// Largest first, ties by id so output is stable
	sort.Slice(a.Modules, func(i, j int) bool {
		if a.Modules[i].BytesInOutput != a.Modules[j].BytesInOutput {
			return a.Modules[i].BytesInOutput > a.Modules[j].BytesInOutput
		}
		return a.Modules[i].ID < a.Modules[j].ID
	})

	for name := range externals {
		a.Externals = append(a.Externals, name)
	}
	sort.Strings(a.Externals)

	if len(r.Chunks) > 1 {
		a.Warnings = append(a.Warnings, "bundle produced more than one chunk")
	}
	return a
}

// Packages sums module sizes per package, largest first.
func (a *Analysis) Packages() []ModuleAnalysis {
	totals := map[string]int{}
	for _, m := range a.Modules {
		totals[m.Package] += m.BytesInOutput
	}

	pkgs := make([]ModuleAnalysis, 0, len(totals))
	for name, bytes := range totals {
		pct := 0.0
		if a.RenderedBytes > 0 {
			pct = float64(bytes) / float64(a.RenderedBytes) * 100
		}
		pkgs = append(pkgs, ModuleAnalysis{ID: name, Package: name, BytesInOutput: bytes, Percentage: pct})
	}
	sort.Slice(pkgs, func(i, j int) bool {
		if pkgs[i].BytesInOutput != pkgs[j].BytesInOutput {
			return pkgs[i].BytesInOutput > pkgs[j].BytesInOutput
		}
		return pkgs[i].ID < pkgs[j].ID
	})
	return pkgs
}

// packageName derives "pkg" or "@scope/pkg" from a registry module URL.
// The entry module is reported as "<entry>".
func packageName(id, registry string) string {
	rest, ok := strings.CutPrefix(id, strings.TrimRight(registry, "/")+"/")
	if !ok {
		if id == resolver.VirtualEntry {
			return "<entry>"
		}
		return id
	}

	parts := strings.SplitN(rest, "/", 3)
	name := parts[0]
	if strings.HasPrefix(name, "@") && len(parts) > 1 {
		name = parts[0] + "/" + parts[1]
	}
	// strip a version suffix: react@18.2.0, @scope/pkg@1.0.0
	if i := strings.LastIndex(name, "@"); i > 0 {
		name = name[:i]
	}
	return name
}
