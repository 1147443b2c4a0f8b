package item_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queuejanitor/decluttd/internal/item"
)

func snap(t *testing.T, raw map[string]any) item.Snapshot {
	t.Helper()
	return item.NewSnapshot(raw)
}

func TestProgressPercentClampedToRange(t *testing.T) {
	s := snap(t, map[string]any{"size": float64(1000), "sizeleft": float64(-500)})
	pct, ok := s.ProgressPercent()
	require.True(t, ok)
	assert.Equal(t, 100.0, pct, "downloaded exceeding size clamps to 100")

	s = snap(t, map[string]any{"size": float64(0)})
	_, ok = s.ProgressPercent()
	assert.False(t, ok, "non-positive size yields no progress reading")
}

func TestSeedersFallbackChain(t *testing.T) {
	s := snap(t, map[string]any{
		"release": map[string]any{"seeders": float64(7)},
	})
	seeders, ok := s.Seeders()
	require.True(t, ok)
	assert.Equal(t, int64(7), seeders)

	s = snap(t, map[string]any{"seeders": float64(3)})
	seeders, ok = s.Seeders()
	require.True(t, ok)
	assert.Equal(t, int64(3), seeders, "top-level seeders wins over no release data")
}

func TestIsTorrentAcceptsNumeralProtocol(t *testing.T) {
	assert.True(t, snap(t, map[string]any{"protocol": "Torrent"}).IsTorrent())
	assert.True(t, snap(t, map[string]any{"protocol": float64(1)}).IsTorrent())
	assert.False(t, snap(t, map[string]any{"protocol": "usenet"}).IsTorrent())
}

func TestDownloadedBytesNeverNegative(t *testing.T) {
	s := snap(t, map[string]any{"size": float64(100), "sizeleft": float64(150)})
	downloaded, ok := s.DownloadedBytes()
	require.True(t, ok)
	assert.Equal(t, int64(0), downloaded)
}

func TestWithEnrichmentLeavesOriginalUntouched(t *testing.T) {
	original := snap(t, map[string]any{"id": float64(1)})
	enriched := original.WithEnrichment(map[string]any{"clientState": "downloading"})

	_, ok := original.Raw()["clientState"]
	assert.False(t, ok, "enrichment must not mutate the source snapshot")
	assert.Equal(t, "downloading", enriched.ClientState())
}

func TestCoerceHelpersDefaultOnBadInput(t *testing.T) {
	assert.Equal(t, 5, item.CoerceInt("not a number", 5))
	assert.Equal(t, 42, item.CoerceInt(float64(42), 0))
	assert.Equal(t, true, item.CoerceBool("yes", false))
	assert.Equal(t, false, item.CoerceBool("no", true))
	assert.Equal(t, "fallback", item.CoerceString(map[string]any{}, "fallback"))
}
