package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queuejanitor/decluttd/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaultsWhenBlockMissing(t *testing.T) {
	path := writeConfig(t, "services:\n  Radarr:\n    api_url: http://radarr\n")
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.General.RetryAttempts)
	assert.Equal(t, "/app/data/strikes.json", cfg.General.StrikeFilePath)
	assert.Equal(t, "all", cfg.General.ResetStrikesOnProgress)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.General.RetryAttempts)
	assert.Empty(t, cfg.Managers)
}

func TestLoadParsesManagersAndDefaultsBlocklistParamTrue(t *testing.T) {
	path := writeConfig(t, `
services:
  Radarr:
    api_url: http://radarr:7878
    api_key: abc
    stall_limit: 3
  Sonarr:
    api_url: http://sonarr:8989
    api_key: def
    use_blocklist_param: false
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Managers, 2)

	radarr, ok := cfg.ManagerByName("Radarr")
	require.True(t, ok)
	assert.Equal(t, config.KindRadarr, radarr.Kind)
	assert.Equal(t, 3, radarr.StallLimit)
	assert.True(t, radarr.UseBlocklistParam, "blocklist param defaults to true when unset")

	sonarr, ok := cfg.ManagerByName("Sonarr")
	require.True(t, ok)
	assert.False(t, sonarr.UseBlocklistParam)
}

func TestLoadManagerThrottleDefaultsWhenUnset(t *testing.T) {
	path := writeConfig(t, "services:\n  Radarr:\n    api_url: http://radarr\n")
	cfg, err := config.Load(path)
	require.NoError(t, err)

	radarr, ok := cfg.ManagerByName("Radarr")
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), radarr.MinRequestInterval)
	assert.Equal(t, 4, radarr.MaxConcurrentRequests)
}

func TestLoadManagerThrottleParsesConfiguredValues(t *testing.T) {
	path := writeConfig(t, `
services:
  Radarr:
    api_url: http://radarr
    min_request_interval_ms: 250
    max_concurrent_requests: 2
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	radarr, ok := cfg.ManagerByName("Radarr")
	require.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, radarr.MinRequestInterval)
	assert.Equal(t, 2, radarr.MaxConcurrentRequests)

	_, hasInterval := radarr.Overrides["min_request_interval_ms"]
	_, hasConcurrency := radarr.Overrides["max_concurrent_requests"]
	assert.False(t, hasInterval, "throttle keys are dedicated Manager fields, not rule-engine overrides")
	assert.False(t, hasConcurrency)
}

func TestLoadRegistersManagerFromEnvWithNoYAMLBlock(t *testing.T) {
	t.Setenv("RADARR_URL", "http://from-env:1234")
	t.Setenv("RADARR_API_KEY", "env-key")

	path := writeConfig(t, "general:\n  debug_logging: false\n")
	cfg, err := config.Load(path)
	require.NoError(t, err)

	radarr, ok := cfg.ManagerByName("Radarr")
	require.True(t, ok, "a fully env-supplied manager must register even without a services: block")
	assert.Equal(t, "http://from-env:1234", radarr.APIURL)
	assert.Equal(t, "env-key", radarr.APIKey)
}

func TestLoadManagerOverridesExcludeKnownFields(t *testing.T) {
	path := writeConfig(t, `
services:
  Radarr:
    api_url: http://radarr
    api_key: abc
    auto_search: true
    use_blocklist_param: true
    stall_limit_hours: 5
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	radarr, ok := cfg.ManagerByName("Radarr")
	require.True(t, ok)
	_, hasURL := radarr.Overrides["api_url"]
	_, hasAutoSearch := radarr.Overrides["auto_search"]
	assert.False(t, hasURL)
	assert.False(t, hasAutoSearch)
	assert.Equal(t, 5, int(radarr.Overrides["stall_limit_hours"].(int)))
}

func TestLoadEnvOverrideOnlyAppliesWhenYAMLUnset(t *testing.T) {
	t.Setenv("RADARR_URL", "http://from-env:1234")
	t.Setenv("RADARR_API_KEY", "env-key")

	path := writeConfig(t, "services:\n  Radarr: {}\n")
	cfg, err := config.Load(path)
	require.NoError(t, err)

	radarr, ok := cfg.ManagerByName("Radarr")
	require.True(t, ok)
	assert.Equal(t, "http://from-env:1234", radarr.APIURL)
	assert.Equal(t, "env-key", radarr.APIKey)
}

func TestLoadCategoriesSeparateTitleContainsFromValues(t *testing.T) {
	path := writeConfig(t, `
categories:
  - title_contains: ["4K", "remux"]
    seeder_stall_threshold: 5
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Categories, 1)
	assert.Equal(t, []string{"4K", "remux"}, cfg.Categories[0].TitleContains)
	assert.Equal(t, 5, int(cfg.Categories[0].Values["seeder_stall_threshold"].(int)))
}

func TestLoadIndexerPoliciesParsesOptionalThreshold(t *testing.T) {
	path := writeConfig(t, `
indexer_policies:
  BadIndexer:
    failure_remove_after: 2
    seeder_stall_threshold: 1
  OtherIndexer:
    failure_remove_after: 1
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	bad := cfg.IndexerPolicies["BadIndexer"]
	assert.Equal(t, 2, bad.FailureRemoveAfter)
	require.NotNil(t, bad.SeederStallThreshold)
	assert.Equal(t, 1, *bad.SeederStallThreshold)

	other := cfg.IndexerPolicies["OtherIndexer"]
	assert.Nil(t, other.SeederStallThreshold)

	thresholds := cfg.IndexerThresholds()
	assert.Equal(t, map[string]int{"BadIndexer": 1}, thresholds)
}

func TestLoadWhitelistBuildsLookupSets(t *testing.T) {
	path := writeConfig(t, `
whitelist:
  ids: [1, 2, 3]
  download_ids: ["abc123"]
  title_contains: ["Keep Me"]
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Whitelist.IDs[2])
	assert.True(t, cfg.Whitelist.DownloadIDs["abc123"])
	assert.Equal(t, []string{"Keep Me"}, cfg.Whitelist.TitleContains)
}

func TestLoadDestinationsParsesReasonsAndHeaders(t *testing.T) {
	path := writeConfig(t, `
notifications:
  destinations:
    - name: ops-discord
      type: discord
      url: https://discord.example/webhook
      batch: true
      reasons: ["low_seeders", "max_age"]
      headers:
        X-Api-Key: secret
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Destinations, 1)
	d := cfg.Destinations[0]
	assert.Equal(t, "discord", d.Type)
	assert.True(t, d.Batch)
	assert.Equal(t, []string{"low_seeders", "max_age"}, d.Reasons)
	assert.Equal(t, "secret", d.Headers["X-Api-Key"])
}

func TestResolverWiresCategoriesManagersAndGlobal(t *testing.T) {
	path := writeConfig(t, `
rule_engine:
  stall_limit: 2
services:
  Radarr:
    api_url: http://radarr
    stall_limit: 7
categories:
  - title_contains: ["4K"]
    stall_limit: 9
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	resolver := cfg.Resolver()
	got := resolver.Int("Radarr", "4K Movie", "stall_limit", -1)
	assert.Equal(t, 9, got, "category layer should win over manager and global")

	got = resolver.Int("Radarr", "Plain Movie", "stall_limit", -1)
	assert.Equal(t, 7, got, "the per-manager layer still carries stall_limit, so it wins over the global default")
}
