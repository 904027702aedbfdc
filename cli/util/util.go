// Package util provides utility functions for the bundlesize CLI.
package util

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

// ErrNoInput is returned when source is read from an interactive stdin
var ErrNoInput = errors.New("no source given: pass a file or pipe source on stdin")

// ReadSource reads module source from path, or from stdin when path is "" or "-".
func ReadSource(path string, stdin *os.File) (string, error) {
	if path == "" || path == "-" {
		if term.IsTerminal(int(stdin.Fd())) {
			return "", ErrNoInput
		}
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// FormatBytes formats a byte count for display, e.g. "1.2 kB"
func FormatBytes(n int) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// TruncatePath shortens s from the left to at most maxLen characters
func TruncatePath(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[len(s)-maxLen:]
	}
	return "..." + s[len(s)-maxLen+3:]
}
