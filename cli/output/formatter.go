// Package output provides output formatting for the bundlesize CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// Format represents the output format
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (valid: table, json, yaml)", s)
	}
}

// Formatter formats output in various formats
type Formatter struct {
	Format Format
	Quiet  bool
	Writer io.Writer
	// ErrWriter receives warnings and errors
	ErrWriter io.Writer
}

// NewFormatter creates a new formatter
func NewFormatter(format Format, quiet bool) *Formatter {
	return &Formatter{
		Format:    format,
		Quiet:     quiet,
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
	}
}

// Print outputs data as JSON or YAML. Table mode falls back to JSON.
func (f *Formatter) Print(data any) error {
	if f.Format == FormatYAML {
		return f.printYAML(data)
	}
	return f.printJSON(data)
}

func (f *Formatter) printJSON(data any) error {
	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (f *Formatter) printYAML(data any) error {
	encoder := yaml.NewEncoder(f.Writer)
	encoder.SetIndent(2)
	defer func() { _ = encoder.Close() }()
	return encoder.Encode(data)
}

// TableData represents tabular data for table output
type TableData struct {
	Headers []string
	Rows    [][]string
	// RightAlign lists column indexes holding numbers
	RightAlign []int
}

// PrintTable renders data as an aligned, borderless table
func (f *Formatter) PrintTable(data TableData) {
	table := tablewriter.NewWriter(f.Writer)

	if len(data.Headers) > 0 {
		table.SetHeader(data.Headers)
	}

	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	if len(data.RightAlign) > 0 && len(data.Headers) > 0 {
		align := make([]int, len(data.Headers))
		for i := range align {
			align[i] = tablewriter.ALIGN_LEFT
		}
		for _, col := range data.RightAlign {
			if col < len(align) {
				align[col] = tablewriter.ALIGN_RIGHT
			}
		}
		table.SetColumnAlignment(align)
	} else {
		table.SetAlignment(tablewriter.ALIGN_LEFT)
	}

	table.AppendBulk(data.Rows)
	table.Render()
}

// PrintSuccess prints a success message
func (f *Formatter) PrintSuccess(message string) {
	if f.Quiet {
		return
	}
	_, _ = fmt.Fprintln(f.Writer, message)
}

// PrintError prints an error message
func (f *Formatter) PrintError(message string) {
	_, _ = fmt.Fprintln(f.ErrWriter, "Error:", message)
}

// PrintWarning prints a warning message
func (f *Formatter) PrintWarning(message string) {
	if f.Quiet {
		return
	}
	_, _ = fmt.Fprintln(f.ErrWriter, "Warning:", message)
}
