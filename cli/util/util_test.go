package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSource_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entry.js")
	require.NoError(t, os.WriteFile(path, []byte("export default 1;"), 0o644))

	src, err := ReadSource(path, os.Stdin)
	require.NoError(t, err)
	assert.Equal(t, "export default 1;", src)

	_, err = ReadSource(filepath.Join(t.TempDir(), "missing.js"), os.Stdin)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadSource_Stdin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stdin")
	require.NoError(t, os.WriteFile(path, []byte("export const a = 1;"), 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	src, err := ReadSource("-", f)
	require.NoError(t, err)
	assert.Equal(t, "export const a = 1;", src)
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int
		expected string
	}{
		{0, "0 B"},
		{-1, "0 B"},
		{512, "512 B"},
		{1500, "1.5 kB"},
		{2_000_000, "2.0 MB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatBytes(tt.bytes))
	}
}

func TestTruncatePath(t *testing.T) {
	assert.Equal(t, "short.js", TruncatePath("short.js", 20))
	assert.Equal(t, "...ore/esm/Button.js", TruncatePath("https://unpkg.com/@material-ui/core/esm/Button.js", 20))
	assert.Equal(t, ".js", TruncatePath("index.js", 3))
}
