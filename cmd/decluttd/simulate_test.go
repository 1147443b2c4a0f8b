package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSimulatePrintsReasonAsJSON(t *testing.T) {
	itemPath := filepath.Join(t.TempDir(), "item.json")
	require.NoError(t, os.WriteFile(itemPath, []byte(`{
		"id": 1,
		"title": "Some.Movie.2024",
		"protocol": "torrent",
		"size": 1000,
		"sizeleft": 900,
		"seeders": 0
	}`), 0o644))

	out := captureStdout(t, func() {
		require.NoError(t, runSimulate(itemPath, "Radarr"))
	})

	assert.Contains(t, out, `"reason"`)
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	require.NoError(t, w.Close())
	os.Stdout = old

	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)
	return buf.String()
}
