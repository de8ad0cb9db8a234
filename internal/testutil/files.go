package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memdump-analysis/pkg/compression"
)

// WriteTrace writes a trace into dir and returns its path. A .gz or .zst
// name compresses the data accordingly.
func WriteTrace(t *testing.T, dir, name string, data []byte) string {
	t.Helper()

	data, err := compression.Compress(data, compression.TypeFromPath(name), compression.LevelDefault)
	require.NoError(t, err)

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// ReadCompressedJSON decodes a gzip or zstd compressed JSON file into v.
func ReadCompressedJSON(t *testing.T, path string, v interface{}) {
	t.Helper()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	data, err := compression.AutoDecompress(raw)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}
