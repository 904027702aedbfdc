package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/fluxbase-eu/bundlesize/internal/bundler"
)

func newTestFormatter(format Format, quiet bool) (*Formatter, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	f := NewFormatter(format, quiet)
	f.Writer = &out
	f.ErrWriter = &errOut
	return f, &out, &errOut
}

func testResult() *bundler.Result {
	return &bundler.Result{
		Input: "import clsx from 'clsx'; export default clsx('a');",
		Chunks: []bundler.Chunk{{
			FileName: "bundle.js",
			Code:     "var o=1;export{o as default};",
			Exports:  []string{"default"},
			Imports:  []string{"react"},
			Modules: map[string]bundler.ModuleInfo{
				"virtual-entry": {RenderedLength: 40},
				"https://unpkg.com/clsx@1.1.0/dist/clsx.m.js": {RenderedLength: 160},
			},
		}},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected Format
		wantErr  bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{"yml", FormatYAML, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestPrintBundle_Quiet(t *testing.T) {
	f, out, _ := newTestFormatter(FormatTable, true)

	require.NoError(t, f.PrintBundle(testResult(), nil, false))
	assert.Equal(t, "29\n", out.String())
}

func TestPrintBundle_Table(t *testing.T) {
	f, out, _ := newTestFormatter(FormatTable, false)
	result := testResult()

	require.NoError(t, f.PrintBundle(result, bundler.Analyze(result, "https://unpkg.com"), true))

	text := out.String()
	assert.Contains(t, text, "Bundle size: 29 B (29 bytes)")
	assert.Contains(t, text, "External imports (not bundled):")
	assert.Contains(t, text, "- react")
	assert.Contains(t, text, "clsx")
	assert.Contains(t, text, "80.0%")
	assert.Contains(t, text, "<entry>")
	assert.Contains(t, text, "Modules:")
}

func TestPrintBundle_JSON(t *testing.T) {
	f, out, _ := newTestFormatter(FormatJSON, false)

	require.NoError(t, f.PrintBundle(testResult(), nil, false))

	var report BundleReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, 29, report.Size)
	assert.Equal(t, "29 B", report.SizeHuman)
	require.Len(t, report.Chunks, 1)
	assert.Equal(t, []string{"default"}, report.Chunks[0].Exports)
	assert.Nil(t, report.Analysis)
}

func TestPrintBundle_YAML(t *testing.T) {
	f, out, _ := newTestFormatter(FormatYAML, false)
	result := testResult()

	require.NoError(t, f.PrintBundle(result, bundler.Analyze(result, "https://unpkg.com"), false))

	var report map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, 29, report["size"])
	assert.Contains(t, report, "analysis")
}

func TestPrintWarning(t *testing.T) {
	f, out, errOut := newTestFormatter(FormatTable, false)

	f.PrintWarning("bundle produced more than one chunk")
	f.PrintSuccess("done")

	assert.Equal(t, "Warning: bundle produced more than one chunk\n", errOut.String())
	assert.Equal(t, "done\n", out.String())

	quiet, out, errOut := newTestFormatter(FormatTable, true)
	quiet.PrintWarning("hidden")
	quiet.PrintError("shown")
	assert.Empty(t, out.String())
	assert.Equal(t, "Error: shown\n", errOut.String())
}
