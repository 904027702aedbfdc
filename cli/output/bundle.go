package output

import (
	"fmt"
	"strconv"

	"github.com/fluxbase-eu/bundlesize/cli/util"
	"github.com/fluxbase-eu/bundlesize/internal/bundler"
)

const defaultRows = 10

// BundleReport is the machine-readable form of a bundle result
type BundleReport struct {
	Size      int               `json:"size" yaml:"size"`
	SizeHuman string            `json:"sizeHuman" yaml:"sizeHuman"`
	Chunks    []ChunkReport     `json:"chunks" yaml:"chunks"`
	Analysis  *bundler.Analysis `json:"analysis,omitempty" yaml:"analysis,omitempty"`
}

// ChunkReport summarizes one output chunk
type ChunkReport struct {
	FileName string   `json:"fileName" yaml:"fileName"`
	Size     int      `json:"size" yaml:"size"`
	Exports  []string `json:"exports" yaml:"exports"`
	Imports  []string `json:"imports" yaml:"imports"`
}

// NewBundleReport builds a report; analysis may be nil.
func NewBundleReport(result *bundler.Result, analysis *bundler.Analysis) BundleReport {
	report := BundleReport{
		Size:      result.Size(),
		SizeHuman: util.FormatBytes(result.Size()),
		Chunks:    make([]ChunkReport, 0, len(result.Chunks)),
		Analysis:  analysis,
	}
	for _, c := range result.Chunks {
		report.Chunks = append(report.Chunks, ChunkReport{
			FileName: c.FileName,
			Size:     len(c.Code),
			Exports:  c.Exports,
			Imports:  c.Imports,
		})
	}
	return report
}

// PrintBundle prints a bundle result. In quiet mode only the byte count is
// written, so the output can be used in scripts.
func (f *Formatter) PrintBundle(result *bundler.Result, analysis *bundler.Analysis, showDetails bool) error {
	if f.Quiet {
		_, err := fmt.Fprintln(f.Writer, result.Size())
		return err
	}

	if f.Format != FormatTable {
		return f.Print(NewBundleReport(result, analysis))
	}

	_, _ = fmt.Fprintf(f.Writer, "Bundle size: %s (%d bytes)\n", util.FormatBytes(result.Size()), result.Size())
	if analysis == nil {
		return nil
	}
	f.printAnalysis(analysis, showDetails)
	return nil
}

func (f *Formatter) printAnalysis(a *bundler.Analysis, showDetails bool) {
	_, _ = fmt.Fprintf(f.Writer, "Before minification: %s\n", util.FormatBytes(a.RenderedBytes))

	if len(a.Externals) > 0 {
		_, _ = fmt.Fprintln(f.Writer, "\nExternal imports (not bundled):")
		for _, name := range a.Externals {
			_, _ = fmt.Fprintf(f.Writer, "  - %s\n", name)
		}
	}

	pkgs := a.Packages()
	if len(pkgs) > 0 {
		_, _ = fmt.Fprintln(f.Writer, "\nPackages:")
		f.PrintTable(sizeTable("PACKAGE", pkgs, limit(len(pkgs), showDetails)))
	}

	if showDetails && len(a.Modules) > 0 {
		_, _ = fmt.Fprintln(f.Writer, "\nModules:")
		f.PrintTable(sizeTable("MODULE", a.Modules, len(a.Modules)))
	} else if remaining := len(pkgs) - defaultRows; remaining > 0 {
		_, _ = fmt.Fprintf(f.Writer, "  ... and %d more packages (use --details)\n", remaining)
	}

	for _, w := range a.Warnings {
		f.PrintWarning(w)
	}
}

func sizeTable(label string, rows []bundler.ModuleAnalysis, n int) TableData {
	data := TableData{
		Headers:    []string{label, "SIZE", "SHARE"},
		RightAlign: []int{1, 2},
	}
	for _, m := range rows[:n] {
		data.Rows = append(data.Rows, []string{
			util.TruncatePath(m.ID, 60),
			util.FormatBytes(m.BytesInOutput),
			strconv.FormatFloat(m.Percentage, 'f', 1, 64) + "%",
		})
	}
	return data
}

func limit(n int, all bool) int {
	if all || n <= defaultRows {
		return n
	}
	return defaultRows
}
