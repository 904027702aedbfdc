package bundler

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// MinifyOptions maps minifier option names to switches, in the shape clients
// send them (e.g. {"mangle": true}).
//
//	mangle     rename local identifiers (default false)
//	compress   rewrite syntax into shorter forms (default true)
//	whitespace strip whitespace (default true)
//
// Unknown names are ignored.
type MinifyOptions map[string]bool

// Mangle reports whether local identifiers are renamed.
func (o MinifyOptions) Mangle() bool {
	return o["mangle"]
}

// Compress reports whether syntax is minified.
func (o MinifyOptions) Compress() bool {
	return o.flag("compress", true)
}

// Whitespace reports whether whitespace is removed.
func (o MinifyOptions) Whitespace() bool {
	return o.flag("whitespace", true)
}

func (o MinifyOptions) flag(name string, def bool) bool {
	if v, ok := o[name]; ok {
		return v
	}
	return def
}

func minify(code string, opts MinifyOptions) (string, error) {
	result := api.Transform(code, api.TransformOptions{
		Loader:            api.LoaderJS,
		Format:            api.FormatESModule,
		// input syntax is kept as written, never lowered
		Target:            api.ESNext,
		MinifyWhitespace:  opts.Whitespace(),
		MinifySyntax:      opts.Compress(),
		MinifyIdentifiers: opts.Mangle(),
		LogLevel:          api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		var msgs []string
		for _, m := range result.Errors {
			msgs = append(msgs, m.Text)
		}
		return "", fmt.Errorf("%w: %s", ErrMinify, strings.Join(msgs, "; "))
	}
	return string(result.Code), nil
}
