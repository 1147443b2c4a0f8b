// Package rules implements the stateless per-item rule evaluator of spec
// §4.C: given an item, its ledger entry, resolved settings, and the
// current time, it returns the first matching removal/strike reason, or
// no reason at all. Evaluation order is significant — the first matching
// rule wins.
package rules

import (
	"time"

	"github.com/queuejanitor/decluttd/internal/item"
	"github.com/queuejanitor/decluttd/internal/ledger"
	"github.com/queuejanitor/decluttd/internal/settings"
)

// Reason is one of the canonical decision tags from spec §3.
type Reason string

const (
	ReasonNone                              Reason = ""
	ReasonProgress                          Reason = "progress"
	ReasonQueued                            Reason = "queued"
	ReasonWhitelisted                       Reason = "whitelisted"
	ReasonReannounceScheduled               Reason = "reannounce_scheduled"
	ReasonStalled                           Reason = "stalled"
	ReasonLowSeeders                        Reason = "low_seeders"
	ReasonNoProgressTimeout                 Reason = "no_progress_timeout"
	ReasonMaxAge                            Reason = "max_age"
	ReasonTrackerError                      Reason = "tracker_error"
	ReasonClientState                       Reason = "client_state"
	ReasonClientNoPeers                     Reason = "client_no_peers"
	ReasonMinSpeed                          Reason = "min_speed"
	ReasonLargeZeroSeeders                  Reason = "large_zero_seeders"
	ReasonDownloadedButErrored              Reason = "downloaded_but_errored"
	ReasonCompletedPreservedIndexerFailure  Reason = "completed_preserved_indexer_failure"
	ReasonCompletedPreservedTrackerError    Reason = "completed_preserved_tracker_error"
	ReasonIndexerFailurePolicy              Reason = "indexer_failure_policy"
)

// Rule-engine setting keys, resolved through settings.Resolver's
// category -> per-manager -> global chain (spec §4.G/§6).
const (
	KeyGracePeriodMinutes        = "grace_period_minutes"
	KeyMaxQueueAgeHours          = "max_queue_age_hours"
	KeyNoProgressMaxAgeMinutes   = "no_progress_max_age_minutes"
	KeyMinSpeedBytesPerSec       = "min_speed_bytes_per_sec"
	KeyMinSpeedDurationMinutes   = "min_speed_duration_minutes"
	KeyClientStateAsStalled      = "client_state_as_stalled"
	KeyClientZeroActivityMinutes = "client_zero_activity_minutes"
	KeyLargeSizeGB               = "large_size_gb"
	KeyLargeProgressCeilingPct   = "large_progress_ceiling_percent"
	KeyLargeZeroSeedersMinutes   = "large_zero_seeders_remove_minutes"
	KeySeederStallThreshold      = "seeder_stall_threshold"
	KeySeederProgressCeilingPct  = "seeder_progress_ceiling_percent"
	KeyStallLimit                = "stall_limit"
	KeyTrackerErrorStrikes       = "tracker_error_strikes"
	KeyFailureRemoveAfter        = "failure_remove_after"
)

var clientStalledStates = map[string]bool{"stalleddl": true, "stalledup": true, "error": true}

// Globals carries knobs that are not resolved through the category chain:
// the per-indexer seeder_stall_threshold overrides from indexer_policies
// (spec §6).
type Globals struct {
	IndexerThresholds map[string]int // indexer name -> seeder_stall_threshold override
}

// IndexerThreshold returns the per-indexer seeder_stall_threshold override,
// if one is configured, per spec §4.C rule 8 ("per-indexer override of
// threshold wins over global").
func (g Globals) IndexerThreshold(indexerName string) (int, bool) {
	if g.IndexerThresholds == nil {
		return 0, false
	}
	v, ok := g.IndexerThresholds[indexerName]
	return v, ok
}

// Evaluate runs the ordered rule chain of spec §4.C and returns the first
// matching reason, or ReasonNone. It is pure and deterministic: given
// identical inputs it always returns the same reason with no side effects.
func Evaluate(manager string, snap item.Snapshot, entry ledger.Entry, progressed bool, eff settings.Resolver, globals Globals, now time.Time) Reason {
	title := snap.Title()
	nowUnix := now.Unix()

	// 1. Grace period.
	graceMinutes := eff.Int(manager, title, KeyGracePeriodMinutes, 0)
	if graceMinutes > 0 && nowUnix-entry.FirstSeenTS < int64(graceMinutes)*60 {
		return ReasonNone
	}

	// 2. Max queue age.
	maxAgeHours := eff.Int(manager, title, KeyMaxQueueAgeHours, 0)
	if maxAgeHours > 0 && nowUnix-entry.FirstSeenTS >= int64(maxAgeHours)*3600 {
		return ReasonMaxAge
	}

	// 3. No-progress timeout.
	noProgressMinutes := eff.Int(manager, title, KeyNoProgressMaxAgeMinutes, 0)
	if !progressed && noProgressMinutes > 0 && entry.LastProgressTS != nil {
		if nowUnix-*entry.LastProgressTS >= int64(noProgressMinutes)*60 {
			return ReasonNoProgressTimeout
		}
	}

	// 4. Min-speed.
	if snap.IsTorrent() {
		minSpeed := eff.Int(manager, title, KeyMinSpeedBytesPerSec, 0)
		minSpeedDuration := eff.Int(manager, title, KeyMinSpeedDurationMinutes, 0)
		if minSpeed > 0 && minSpeedDuration > 0 {
			if speed, ok := snap.ClientSpeed(); ok && speed < int64(minSpeed) {
				since := sinceProgressOrFirstSeen(entry)
				if nowUnix-since >= int64(minSpeedDuration)*60 {
					return ReasonMinSpeed
				}
			}
		}
	}

	// 5. Client state as stalled (opt-in, spec §4.C rule 5).
	if eff.Bool(manager, title, KeyClientStateAsStalled, false) {
		if clientStalledStates[snap.ClientState()] {
			return ReasonClientState
		}
	}

	// 6. Client zero activity.
	if snap.IsTorrent() {
		zeroMinutes := eff.Int(manager, title, KeyClientZeroActivityMinutes, 0)
		if zeroMinutes > 0 {
			peers, hasPeers := snap.ClientPeers()
			seeds, hasSeeds := snap.ClientSeeds()
			if hasPeers && hasSeeds && peers == 0 && seeds == 0 {
				since := sinceProgressOrFirstSeen(entry)
				if nowUnix-since >= int64(zeroMinutes)*60 {
					return ReasonClientNoPeers
				}
			}
		}
	}

	// 7. Large-size zero-seeders.
	if snap.IsTorrent() {
		largeSizeGB := eff.Float(manager, title, KeyLargeSizeGB, 0)
		largeMinutes := eff.Int(manager, title, KeyLargeZeroSeedersMinutes, 0)
		if largeSizeGB > 0 && largeMinutes > 0 {
			if size, ok := snap.Size(); ok && float64(size) >= largeSizeGB*float64(1<<30) {
				if seeders, ok := snap.Seeders(); ok && seeders == 0 {
					ceiling := eff.Float(manager, title, KeyLargeProgressCeilingPct, 100)
					progressOK := true
					if pct, ok := snap.ProgressPercent(); ok {
						progressOK = pct <= ceiling
					}
					if progressOK && nowUnix-entry.FirstSeenTS >= int64(largeMinutes)*60 {
						return ReasonLargeZeroSeeders
					}
				}
			}
		}
	}

	// 8. Low-seeders vs. stalled — the seeder condition is checked first so
	// that an item which is both stalled and torrent-with-low-seeders is
	// tagged low_seeders, matching the original's evaluation order.
	if snap.IsTorrent() {
		threshold := eff.Int(manager, title, KeySeederStallThreshold, -1)
		if indexerName, ok := snap.IndexerName(); ok {
			if override, ok := globals.IndexerThreshold(indexerName); ok {
				threshold = override
			}
		}
		if threshold >= 0 {
			if seeders, ok := snap.Seeders(); ok && seeders <= int64(threshold) {
				ceiling := eff.Float(manager, title, KeySeederProgressCeilingPct, 100)
				progressOK := true
				if pct, ok := snap.ProgressPercent(); ok {
					progressOK = pct <= ceiling
				}
				if progressOK {
					return ReasonLowSeeders
				}
			}
		}
	}
	if snap.IsStalled() {
		return ReasonStalled
	}

	return ReasonNone
}

func sinceProgressOrFirstSeen(entry ledger.Entry) int64 {
	if entry.LastProgressTS != nil {
		return *entry.LastProgressTS
	}
	return entry.FirstSeenTS
}
