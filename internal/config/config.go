// Package config loads and sanitizes the YAML configuration described in
// spec §6, using github.com/spf13/viper the way the teacher
// (edholm.dev/qbit-service) already does for its flat qBittorrent config,
// generalized to the full document shape and to environment-variable
// overrides for manager endpoints.
//
// Every read returns a value or a documented default — there are no
// recoverable faults once Load has returned a *Config (spec §9 "explicit
// option types").
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/queuejanitor/decluttd/internal/settings"
)

// ManagerKind identifies which REST dialect and search-command shape a
// manager speaks (spec §4.E).
type ManagerKind string

const (
	KindSonarr ManagerKind = "sonarr"
	KindRadarr ManagerKind = "radarr"
	KindLidarr ManagerKind = "lidarr"
)

// Manager is one configured Sonarr/Radarr/Lidarr-style instance.
type Manager struct {
	Name                  string
	Kind                  ManagerKind
	APIURL                string
	APIKey                string
	StallLimit            int
	AutoSearch            bool
	UseBlocklistParam     bool // true -> "blocklist", false -> "blacklist"
	RemoveFromClient      bool
	SkipImport            bool
	MinRequestInterval    time.Duration // services.<Manager>.min_request_interval_ms
	MaxConcurrentRequests int           // services.<Manager>.max_concurrent_requests
	Overrides             map[string]any // per-manager rule-engine overrides
}

// General holds process-wide knobs (spec §6 general.*).
type General struct {
	DebugLogging         bool
	StructuredLogs       bool
	DryRun               bool
	ExplainDecisions     bool
	RequestTimeout       time.Duration
	RetryAttempts        int
	RetryBackoff         time.Duration
	StrikeFilePath       string
	APITimeout           time.Duration
	ResetStrikesOnProgress string // "all" or a base-10 integer string
}

// Reannounce holds the rule_engine.reannounce.* block.
type Reannounce struct {
	Enabled         bool
	CooldownMinutes int
	MaxAttempts     int
	DoRecheck       bool
	OnlyWhenSeedsZero bool
}

// Category is a `categories:` entry (spec §4.G).
type Category struct {
	TitleContains []string
	Values        map[string]any
}

// IndexerPolicy is an `indexer_policies.<name>` entry (spec §6).
type IndexerPolicy struct {
	FailureRemoveAfter   int
	SeederStallThreshold *int
}

// Whitelist is the `whitelist.*` block (spec §6).
type Whitelist struct {
	IDs           map[int64]bool
	DownloadIDs   map[string]bool
	TitleContains []string
}

// ClientConfig is one `clients.<kind>` block.
type ClientConfig struct {
	URL      string
	Username string
	Password string
}

// Destination is one `notifications.destinations[]` entry.
type Destination struct {
	Name     string
	Type     string // discord, slack, generic
	URL      string
	Batch    bool
	Reasons  []string // exact match or "*"
	Template string
	RawJSON  bool
	Headers  map[string]string
}

// Config is the fully sanitized, typed configuration record threaded
// through the runner (spec §9 "explicit config and state records").
type Config struct {
	General         General
	Managers        []Manager
	RuleEngine      map[string]any // global rule_engine.* defaults
	Reannounce      Reannounce
	Categories      []Category
	IndexerPolicies map[string]IndexerPolicy
	Whitelist       Whitelist
	Clients         map[string]ClientConfig
	Destinations    []Destination
}

// Load reads the YAML file at path (or the usual viper search paths when
// path == ""), overlays `<MANAGER>_URL`/`<MANAGER>_API_KEY` environment
// variables, and returns a sanitized Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/app")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	return sanitize(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.request_timeout", "10s")
	v.SetDefault("general.retry_attempts", 2)
	v.SetDefault("general.retry_backoff", "1s")
	v.SetDefault("general.strike_file_path", "/app/data/strikes.json")
	v.SetDefault("general.api_timeout", "300s")
	v.SetDefault("general.reset_strikes_on_progress", "all")
}

func sanitize(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		RuleEngine:      map[string]any{},
		IndexerPolicies: map[string]IndexerPolicy{},
		Clients:         map[string]ClientConfig{},
	}

	cfg.General = General{
		DebugLogging:           v.GetBool("general.debug_logging"),
		StructuredLogs:         v.GetBool("general.structured_logs"),
		DryRun:                 v.GetBool("general.dry_run"),
		ExplainDecisions:       v.GetBool("general.explain_decisions"),
		RequestTimeout:         v.GetDuration("general.request_timeout"),
		RetryAttempts:          v.GetInt("general.retry_attempts"),
		RetryBackoff:           v.GetDuration("general.retry_backoff"),
		StrikeFilePath:         v.GetString("general.strike_file_path"),
		APITimeout:             v.GetDuration("general.api_timeout"),
		ResetStrikesOnProgress: v.GetString("general.reset_strikes_on_progress"),
	}

	cfg.RuleEngine = sanitizeMap(v.GetStringMap("rule_engine"))
	delete(cfg.RuleEngine, "reannounce")

	cfg.Reannounce = Reannounce{
		Enabled:           v.GetBool("rule_engine.reannounce.enabled"),
		CooldownMinutes:   v.GetInt("rule_engine.reannounce.cooldown_minutes"),
		MaxAttempts:       v.GetInt("rule_engine.reannounce.max_attempts"),
		DoRecheck:         v.GetBool("rule_engine.reannounce.do_recheck"),
		OnlyWhenSeedsZero: v.GetBool("rule_engine.reannounce.only_when_seeds_zero"),
	}

	for _, kind := range []string{"Sonarr", "Radarr", "Lidarr"} {
		key := "services." + kind
		apiURL := v.GetString(key + ".api_url")
		apiKey := v.GetString(key + ".api_key")
		if envURL := v.GetString(strings.ToUpper(kind) + "_URL"); envURL != "" && apiURL == "" {
			apiURL = envURL
		}
		if envKey := v.GetString(strings.ToUpper(kind) + "_API_KEY"); envKey != "" && apiKey == "" {
			apiKey = envKey
		}
		// A manager is registered when either its YAML block exists or its
		// endpoint was fully supplied via env vars — a pure-env deployment
		// (no `services:` block at all) must still register it, matching
		// the original's env-only invocation (spec §6 "Environment").
		if !v.IsSet(key) && apiURL == "" && apiKey == "" {
			continue
		}
		overrides := sanitizeMap(v.GetStringMap(key))
		delete(overrides, "api_url")
		delete(overrides, "api_key")
		delete(overrides, "auto_search")
		delete(overrides, "use_blocklist_param")
		delete(overrides, "min_request_interval_ms")
		delete(overrides, "max_concurrent_requests")

		cfg.Managers = append(cfg.Managers, Manager{
			Name:                  kind,
			Kind:                  ManagerKind(strings.ToLower(kind)),
			APIURL:                apiURL,
			APIKey:                apiKey,
			StallLimit:            v.GetInt(key + ".stall_limit"),
			AutoSearch:            v.GetBool(key + ".auto_search"),
			UseBlocklistParam:     getBoolDefault(v, key+".use_blocklist_param", true),
			RemoveFromClient:      v.GetBool(key + ".remove_from_client"),
			SkipImport:            v.GetBool(key + ".skip_import"),
			MinRequestInterval:    time.Duration(v.GetInt(key+".min_request_interval_ms")) * time.Millisecond,
			MaxConcurrentRequests: getIntDefault(v, key+".max_concurrent_requests", 4),
			Overrides:             overrides,
		})
	}

	var categories []Category
	if rawList, ok := v.Get("categories").([]any); ok {
		for _, raw := range rawList {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			cat := Category{Values: sanitizeMap(m)}
			delete(cat.Values, "title_contains")
			if tc, ok := m["title_contains"].([]any); ok {
				for _, t := range tc {
					if s, ok := t.(string); ok {
						cat.TitleContains = append(cat.TitleContains, s)
					}
				}
			}
			categories = append(categories, cat)
		}
	}
	cfg.Categories = categories

	indexerPolicies := v.GetStringMap("indexer_policies")
	for name, raw := range indexerPolicies {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		policy := IndexerPolicy{FailureRemoveAfter: asInt(m["failure_remove_after"])}
		if thr, ok := m["seeder_stall_threshold"]; ok {
			n := asInt(thr)
			policy.SeederStallThreshold = &n
		}
		cfg.IndexerPolicies[name] = policy
	}

	cfg.Whitelist = Whitelist{
		IDs:         map[int64]bool{},
		DownloadIDs: map[string]bool{},
	}
	for _, id := range v.GetIntSlice("whitelist.ids") {
		cfg.Whitelist.IDs[int64(id)] = true
	}
	for _, id := range v.GetStringSlice("whitelist.download_ids") {
		cfg.Whitelist.DownloadIDs[id] = true
	}
	cfg.Whitelist.TitleContains = v.GetStringSlice("whitelist.title_contains")

	for _, kind := range []string{"qbittorrent", "transmission", "deluge"} {
		key := "clients." + kind
		if !v.IsSet(key) {
			continue
		}
		cfg.Clients[kind] = ClientConfig{
			URL:      v.GetString(key + ".url"),
			Username: v.GetString(key + ".username"),
			Password: v.GetString(key + ".password"),
		}
	}

	if raw, ok := v.Get("notifications.destinations").([]any); ok {
		for _, d := range raw {
			m, ok := d.(map[string]any)
			if !ok {
				continue
			}
			dest := Destination{
				Name:     asString(m["name"]),
				Type:     asString(m["type"]),
				URL:      asString(m["url"]),
				Batch:    asBool(m["batch"]),
				Template: asString(m["template"]),
				RawJSON:  asBool(m["raw_json"]),
				Headers:  map[string]string{},
			}
			if reasons, ok := m["reasons"].([]any); ok {
				for _, r := range reasons {
					dest.Reasons = append(dest.Reasons, asString(r))
				}
			}
			if headers, ok := m["headers"].(map[string]any); ok {
				for k, v := range headers {
					dest.Headers[k] = asString(v)
				}
			}
			cfg.Destinations = append(cfg.Destinations, dest)
		}
	}

	return cfg, nil
}

// Resolver builds a settings.Resolver spanning this config's categories,
// per-manager overrides, and global rule_engine defaults, per spec §4.G.
func (c *Config) Resolver() settings.Resolver {
	r := settings.Resolver{
		Managers: map[string]settings.Layer{},
		Global:   settings.Layer(c.RuleEngine),
	}
	for _, cat := range c.Categories {
		r.Categories = append(r.Categories, settings.Category{
			TitleContains: cat.TitleContains,
			Values:        settings.Layer(cat.Values),
		})
	}
	for _, m := range c.Managers {
		r.Managers[m.Name] = settings.Layer(m.Overrides)
	}
	return r
}

// IndexerThresholds returns the per-indexer seeder_stall_threshold
// overrides, for use as rules.Globals.IndexerThresholds.
func (c *Config) IndexerThresholds() map[string]int {
	out := map[string]int{}
	for name, policy := range c.IndexerPolicies {
		if policy.SeederStallThreshold != nil {
			out[name] = *policy.SeederStallThreshold
		}
	}
	return out
}

// ManagerByName returns the configured Manager with the given name.
func (c *Config) ManagerByName(name string) (Manager, bool) {
	for _, m := range c.Managers {
		if m.Name == name {
			return m, true
		}
	}
	return Manager{}, false
}

func getBoolDefault(v *viper.Viper, key string, def bool) bool {
	if !v.IsSet(key) {
		return def
	}
	return v.GetBool(key)
}

func getIntDefault(v *viper.Viper, key string, def int) int {
	if !v.IsSet(key) {
		return def
	}
	return v.GetInt(key)
}

// sanitizeMap copies the scalar values of m into a flat map[string]any
// suitable for settings.Layer, dropping nested objects and lists. Unknown
// scalar keys are kept; the resolver only reads the keys it is asked for
// (spec §4.G "unknown keys are ignored").
func sanitizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch v.(type) {
		case map[string]any, []any:
			continue
		default:
			out[k] = v
		}
	}
	return out
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}
