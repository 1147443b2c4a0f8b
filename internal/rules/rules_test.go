package rules_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/queuejanitor/decluttd/internal/item"
	"github.com/queuejanitor/decluttd/internal/ledger"
	"github.com/queuejanitor/decluttd/internal/rules"
	"github.com/queuejanitor/decluttd/internal/settings"
)

func fixedNow() time.Time { return time.Unix(1_000_000, 0) }

func TestEvaluateLowSeedersWithinProgressCeiling(t *testing.T) {
	snap := item.NewSnapshot(map[string]any{
		"id":       float64(101),
		"title":    "Z",
		"protocol": "torrent",
		"size":     float64(1000),
		"sizeleft": float64(900),
		"release":  map[string]any{"seeders": float64(0)},
	})
	entry := ledger.Entry{FirstSeenTS: fixedNow().Unix() - 60}
	resolver := settings.Resolver{Global: settings.Layer{
		rules.KeySeederStallThreshold:     0,
		rules.KeySeederProgressCeilingPct: 25,
	}}

	reason := rules.Evaluate("Radarr", snap, entry, false, resolver, rules.Globals{}, fixedNow())
	assert.Equal(t, rules.ReasonLowSeeders, reason)
}

func TestEvaluateLowSeedersSuppressedAboveProgressCeiling(t *testing.T) {
	snap := item.NewSnapshot(map[string]any{
		"id":       float64(101),
		"title":    "Z",
		"protocol": "torrent",
		"size":     float64(1000),
		"sizeleft": float64(100), // 90% downloaded
		"seeders":  float64(0),
	})
	entry := ledger.Entry{FirstSeenTS: fixedNow().Unix()}
	resolver := settings.Resolver{Global: settings.Layer{
		rules.KeySeederStallThreshold:     0,
		rules.KeySeederProgressCeilingPct: 25,
	}}

	reason := rules.Evaluate("Radarr", snap, entry, false, resolver, rules.Globals{}, fixedNow())
	assert.Equal(t, rules.ReasonNone, reason, "progress above the ceiling exempts an otherwise-stalled torrent")
}

func TestEvaluateGracePeriodSuppressesEverything(t *testing.T) {
	snap := item.NewSnapshot(map[string]any{
		"id": float64(1), "title": "Z", "protocol": "torrent", "seeders": float64(0),
	})
	entry := ledger.Entry{FirstSeenTS: fixedNow().Unix() - 60} // 1 minute old
	resolver := settings.Resolver{Global: settings.Layer{
		rules.KeyGracePeriodMinutes:   30,
		rules.KeySeederStallThreshold: 0,
	}}

	reason := rules.Evaluate("Radarr", snap, entry, false, resolver, rules.Globals{}, fixedNow())
	assert.Equal(t, rules.ReasonNone, reason)
}

func TestEvaluateMaxQueueAgeHardRemoval(t *testing.T) {
	snap := item.NewSnapshot(map[string]any{"id": float64(1), "title": "Z"})
	entry := ledger.Entry{FirstSeenTS: fixedNow().Unix() - 7200}
	resolver := settings.Resolver{Global: settings.Layer{rules.KeyMaxQueueAgeHours: 1}}

	reason := rules.Evaluate("Radarr", snap, entry, false, resolver, rules.Globals{}, fixedNow())
	assert.Equal(t, rules.ReasonMaxAge, reason)
}

func TestIndexerThresholdOverridesGlobal(t *testing.T) {
	snap := item.NewSnapshot(map[string]any{
		"id": float64(1), "title": "Z", "protocol": "torrent",
		"seeders": float64(2), "indexer": "PrivateTracker",
	})
	entry := ledger.Entry{FirstSeenTS: fixedNow().Unix()}
	resolver := settings.Resolver{Global: settings.Layer{rules.KeySeederStallThreshold: 0}}
	globals := rules.Globals{IndexerThresholds: map[string]int{"PrivateTracker": 5}}

	reason := rules.Evaluate("Radarr", snap, entry, false, resolver, globals, fixedNow())
	assert.Equal(t, rules.ReasonLowSeeders, reason, "indexer override of 5 makes 2 seeders count as low")
}

func TestClientStateAsStalledDefaultsToDisabled(t *testing.T) {
	snap := item.NewSnapshot(map[string]any{
		"id": float64(1), "title": "Z", "protocol": "torrent",
		"clientState": "stalledDL",
	})
	entry := ledger.Entry{FirstSeenTS: fixedNow().Unix()}
	resolver := settings.Resolver{Global: settings.Layer{}}

	reason := rules.Evaluate("Radarr", snap, entry, false, resolver, rules.Globals{}, fixedNow())
	assert.Equal(t, rules.ReasonNone, reason, "client_state_as_stalled is opt-in and defaults to false")
}

func TestClientStateAsStalledFiresOnceEnabled(t *testing.T) {
	snap := item.NewSnapshot(map[string]any{
		"id": float64(1), "title": "Z", "protocol": "torrent",
		"clientState": "stalledDL",
	})
	entry := ledger.Entry{FirstSeenTS: fixedNow().Unix()}
	resolver := settings.Resolver{Global: settings.Layer{rules.KeyClientStateAsStalled: true}}

	reason := rules.Evaluate("Radarr", snap, entry, false, resolver, rules.Globals{}, fixedNow())
	assert.Equal(t, rules.ReasonClientState, reason)
}

func TestLowSeedersWinsOverStalledWhenBothApply(t *testing.T) {
	snap := item.NewSnapshot(map[string]any{
		"id": float64(1), "title": "Z", "protocol": "torrent",
		"status": "stalled", "seeders": float64(0),
	})
	entry := ledger.Entry{FirstSeenTS: fixedNow().Unix()}
	resolver := settings.Resolver{Global: settings.Layer{rules.KeySeederStallThreshold: 0}}

	reason := rules.Evaluate("Radarr", snap, entry, false, resolver, rules.Globals{}, fixedNow())
	assert.Equal(t, rules.ReasonLowSeeders, reason, "seeder condition is checked before the stalled fallback")
}

func TestStalledFallbackWhenNoSeederRuleApplies(t *testing.T) {
	snap := item.NewSnapshot(map[string]any{
		"id": float64(1), "title": "Z", "protocol": "torrent",
		"status": "stalled", "seeders": float64(50),
	})
	entry := ledger.Entry{FirstSeenTS: fixedNow().Unix()}
	resolver := settings.Resolver{Global: settings.Layer{rules.KeySeederStallThreshold: 0}}

	reason := rules.Evaluate("Radarr", snap, entry, false, resolver, rules.Globals{}, fixedNow())
	assert.Equal(t, rules.ReasonStalled, reason, "plenty of seeders means the seeder rule doesn't match, so stalled still fires")
}

func TestEvaluateIsDeterministic(t *testing.T) {
	snap := item.NewSnapshot(map[string]any{
		"id": float64(1), "title": "Z", "protocol": "torrent", "seeders": float64(0),
	})
	entry := ledger.Entry{FirstSeenTS: fixedNow().Unix()}
	resolver := settings.Resolver{Global: settings.Layer{rules.KeySeederStallThreshold: 0}}

	first := rules.Evaluate("Radarr", snap, entry, false, resolver, rules.Globals{}, fixedNow())
	second := rules.Evaluate("Radarr", snap, entry, false, resolver, rules.Globals{}, fixedNow())
	assert.Equal(t, first, second)
}
