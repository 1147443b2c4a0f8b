package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queuejanitor/decluttd/internal/ledger"
)

func TestRunClearSingleKeyLeavesOthersIntact(t *testing.T) {
	strikePath := filepath.Join(t.TempDir(), "strikes.json")
	store, err := ledger.Load(strikePath)
	require.NoError(t, err)
	store.Put("Radarr:1", ledger.Entry{Count: 1})
	store.Put("Radarr:2", ledger.Entry{Count: 2})
	require.NoError(t, store.Save())

	withConfig(t, strikePath)

	out := captureStdout(t, func() {
		require.NoError(t, runClear("Radarr:1"))
	})
	assert.Contains(t, out, "cleared Radarr:1")

	reloaded, err := ledger.Load(strikePath)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Len())
}

func TestRunClearEmptyKeyWipesEverything(t *testing.T) {
	strikePath := filepath.Join(t.TempDir(), "strikes.json")
	store, err := ledger.Load(strikePath)
	require.NoError(t, err)
	store.Put("Radarr:1", ledger.Entry{Count: 1})
	require.NoError(t, store.Save())

	withConfig(t, strikePath)

	out := captureStdout(t, func() {
		require.NoError(t, runClear(""))
	})
	assert.Contains(t, out, "cleared entire ledger")

	reloaded, err := ledger.Load(strikePath)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.Len())
}
