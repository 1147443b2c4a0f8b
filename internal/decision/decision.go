// Package decision wraps the rule evaluator with the whitelist/completed
// guards, grace handling, reannounce scheduling, and strike bookkeeping of
// spec §4.D. It is the only mutator of the strike ledger.
package decision

import (
	"strconv"
	"strings"
	"time"

	"github.com/queuejanitor/decluttd/internal/config"
	"github.com/queuejanitor/decluttd/internal/item"
	"github.com/queuejanitor/decluttd/internal/ledger"
	"github.com/queuejanitor/decluttd/internal/rules"
	"github.com/queuejanitor/decluttd/internal/settings"
	"github.com/queuejanitor/decluttd/internal/stats"
)

var importFailureMarkers = []string{
	"import failed", "failed to import", "manual import", "manually import",
	"manual intervention", "waiting to import", "waiting for import",
}

var importFailureWords = []string{"fail", "manual", "intervention", "waiting"}

var trackerErrorMarkers = []string{
	"unregistered", "not registered", "torrent not found", "not found on tracker",
}

// Result is the decision engine's verdict for one item: whether to remove
// it (and blacklist/search), whether a reannounce was scheduled this call,
// and which reason drove the outcome (for event-bus logging).
type Result struct {
	ShouldRemove        bool
	TriggerSearch       bool
	ReannounceRequested bool
	Reason              rules.Reason
}

// Engine owns the ledger and decides the fate of each item, per spec §4.D.
type Engine struct {
	cfg      *config.Config
	ledger   *ledger.Store
	resolver settings.Resolver
	globals  rules.Globals
}

// NewEngine builds a decision engine bound to a ledger store and config.
func NewEngine(cfg *config.Config, store *ledger.Store) *Engine {
	return &Engine{
		cfg:      cfg,
		ledger:   store,
		resolver: cfg.Resolver(),
		globals:  rules.Globals{IndexerThresholds: cfg.IndexerThresholds()},
	}
}

// Decide evaluates one item and mutates the ledger accordingly. now should
// be a single fixed timestamp for the whole cycle's worth of calls that
// need to agree on "now", though spec allows per-item now in practice the
// runner passes time.Now() once per item.
func (e *Engine) Decide(manager config.Manager, snap item.Snapshot, now time.Time, counters *stats.Counters) Result {
	counters.Processed++

	itemID, ok := snap.ID()
	if !ok {
		return Result{}
	}
	key := ledger.Key(manager.Name, itemID)
	title := snap.Title()
	nowUnix := now.Unix()

	fullyDownloaded := e.isFullyDownloaded(snap)

	// 3. Per-indexer failure policy.
	indexerName, hasIndexer := snap.IndexerName()
	if hasIndexer {
		if policy, ok := e.cfg.IndexerPolicies[indexerName]; ok && policy.FailureRemoveAfter > 0 {
			idxEntry := e.ledger.GetIndexer(ledger.IndexerKey(manager.Name, indexerName))
			if idxEntry.Failures >= policy.FailureRemoveAfter {
				if fullyDownloaded {
					entry := e.ledger.Get(key, nowUnix)
					entry.LastReason = string(rules.ReasonCompletedPreservedIndexerFailure)
					e.ledger.Put(key, entry)
					return Result{}
				}
				e.ledger.Delete(key)
				counters.Removed++
				counters.IndexerFailureRemovals++
				return Result{ShouldRemove: true, TriggerSearch: manager.AutoSearch, Reason: rules.ReasonIndexerFailurePolicy}
			}
		}
	}

	// 4. Whitelist.
	if e.isWhitelisted(itemID, snap) {
		entry := e.ledger.Get(key, nowUnix)
		entry.LastReason = string(rules.ReasonWhitelisted)
		e.ledger.Put(key, entry)
		return Result{}
	}

	// 5. Completed-but-errored guard.
	if fullyDownloaded && e.looksImportFailed(snap) {
		entry := e.ledger.Get(key, nowUnix)
		entry.LastReason = string(rules.ReasonDownloadedButErrored)
		e.ledger.Put(key, entry)
		return Result{}
	}

	entry := e.ledger.Get(key, nowUnix)

	// 6. Pre-progress max age hard cap.
	maxAgeHours := e.resolver.Int(manager.Name, title, rules.KeyMaxQueueAgeHours, 0)
	if maxAgeHours > 0 && nowUnix-entry.FirstSeenTS >= int64(maxAgeHours)*3600 {
		e.ledger.Delete(key)
		counters.Removed++
		return Result{ShouldRemove: true, TriggerSearch: manager.AutoSearch, Reason: rules.ReasonMaxAge}
	}

	// 7. Tracker-error persistence.
	threshold := e.resolver.Int(manager.Name, title, rules.KeyTrackerErrorStrikes, 0)
	if threshold > 0 && e.looksTrackerError(snap) {
		entry.ErrorStrikes++
		if entry.ErrorStrikes >= threshold {
			if fullyDownloaded {
				entry.LastReason = string(rules.ReasonCompletedPreservedTrackerError)
				e.ledger.Put(key, entry)
				return Result{}
			}
			if hasIndexer {
				e.ledger.BumpIndexerFailure(ledger.IndexerKey(manager.Name, indexerName), nowUnix)
			}
			e.ledger.Delete(key)
			counters.Removed++
			return Result{ShouldRemove: true, TriggerSearch: manager.AutoSearch, Reason: rules.ReasonTrackerError}
		}
		e.ledger.Put(key, entry)
	}

	// 8. Reannounce scheduling (pre-strike).
	if scheduled := e.tryReannounce(manager, snap, &entry, nowUnix, counters); scheduled {
		e.ledger.Put(key, entry)
		return Result{ReannounceRequested: true}
	}

	// 9. Progress detection.
	downloaded, hasDownloaded := snap.DownloadedBytes()
	progressed := false
	if hasDownloaded && entry.LastDownloaded != nil {
		progressed = downloaded > *entry.LastDownloaded
	} else if snap.Status() == "downloading" && entry.LastDownloaded == nil {
		progressed = true
	}
	if e.zeroActivityOverride(manager, snap, title, entry, nowUnix) {
		progressed = false
	}

	// 11. Progress resets strikes.
	if progressed {
		e.applyProgress(&entry, downloaded, hasDownloaded, snap, nowUnix, counters)
		e.ledger.Put(key, entry)
		return Result{}
	}

	// 12. Queued.
	if snap.IsQueued() {
		counters.Queued++
		entry.LastReason = string(rules.ReasonQueued)
		e.ledger.Put(key, entry)
		return Result{}
	}

	// 13. Evaluator.
	reason := rules.Evaluate(manager.Name, snap, entry, progressed, e.resolver, e.globals, now)
	if reason == rules.ReasonNone {
		entry.LastDownloaded = optionalInt64(downloaded, hasDownloaded)
		if seeders, ok := snap.Seeders(); ok {
			entry.LastSeenSeeders = &seeders
		}
		e.ledger.Put(key, entry)
		return Result{}
	}

	// 14. Reannounce gate re-checked once a reason is produced.
	if scheduled := e.tryReannounce(manager, snap, &entry, nowUnix, counters); scheduled {
		e.ledger.Put(key, entry)
		return Result{ReannounceRequested: true}
	}

	// 15. No-progress timeout removes immediately, no strike increment.
	if reason == rules.ReasonNoProgressTimeout {
		e.ledger.Delete(key)
		counters.Removed++
		return Result{ShouldRemove: true, TriggerSearch: manager.AutoSearch, Reason: reason}
	}

	// 16. Strike increment and stall-limit check.
	entry.Count++
	entry.LastReason = string(reason)
	counters.StrikeIncreased++
	effectiveStallLimit := e.resolver.Int(manager.Name, title, rules.KeyStallLimit, manager.StallLimit)
	if effectiveStallLimit > 0 && entry.Count >= effectiveStallLimit {
		e.ledger.Delete(key)
		counters.Removed++
		return Result{ShouldRemove: true, TriggerSearch: manager.AutoSearch, Reason: reason}
	}
	e.ledger.Put(key, entry)
	return Result{}
}

func (e *Engine) isFullyDownloaded(snap item.Snapshot) bool {
	if left, ok := snap.SizeLeft(); ok && left == 0 {
		return true
	}
	if pct, ok := snap.ProgressPercent(); ok && pct >= 99.9 {
		return true
	}
	return false
}

func (e *Engine) isWhitelisted(itemID int64, snap item.Snapshot) bool {
	wl := e.cfg.Whitelist
	if wl.IDs[itemID] {
		return true
	}
	if dlID, ok := snap.DownloadID(); ok && wl.DownloadIDs[dlID] {
		return true
	}
	lowerTitle := strings.ToLower(snap.Title())
	for _, substr := range wl.TitleContains {
		if substr != "" && strings.Contains(lowerTitle, strings.ToLower(substr)) {
			return true
		}
	}
	return false
}

func (e *Engine) looksImportFailed(snap item.Snapshot) bool {
	status := snap.Status()
	tracked := snap.TrackedDownloadStatus()
	if status == "warning" || status == "error" || tracked == "warning" || tracked == "error" {
		return true
	}
	if snap.AnyTextContainsAny(importFailureMarkers...) {
		return true
	}
	return snap.AnyTextContains("import") && snap.AnyTextContainsAny(importFailureWords...)
}

func (e *Engine) looksTrackerError(snap item.Snapshot) bool {
	return snap.AnyTextContainsAny(trackerErrorMarkers...) || snap.ClientTrackerTextContainsAny(trackerErrorMarkers...)
}

// tryReannounce is the single reannounce gate referenced at both of spec
// §4.D's insertion points (steps 8 and 14); see spec §9's design note that
// the two checkpoints must share one gate so a torrent is reannounced at
// most once per cycle (enforced ultimately by the runner's per-cycle
// dedup set on (manager,downloadId), spec I5b).
func (e *Engine) tryReannounce(manager config.Manager, snap item.Snapshot, entry *ledger.Entry, nowUnix int64, counters *stats.Counters) bool {
	ra := e.cfg.Reannounce
	if !ra.Enabled || !snap.IsTorrent() {
		return false
	}
	if ra.OnlyWhenSeedsZero {
		seeders, ok := snap.Seeders()
		if !ok || seeders != 0 {
			return false
		}
	}
	if entry.ReannounceAttempt >= ra.MaxAttempts {
		return false
	}
	if entry.LastReannounceTS != nil && nowUnix-*entry.LastReannounceTS < int64(ra.CooldownMinutes)*60 {
		return false
	}
	entry.LastReason = string(rules.ReasonReannounceScheduled)
	counters.ReannounceScheduled++
	return true
}

func (e *Engine) zeroActivityOverride(manager config.Manager, snap item.Snapshot, title string, entry ledger.Entry, nowUnix int64) bool {
	if !snap.IsTorrent() {
		return false
	}
	minutes := e.resolver.Int(manager.Name, title, rules.KeyClientZeroActivityMinutes, 0)
	if minutes <= 0 {
		return false
	}
	peers, hasPeers := snap.ClientPeers()
	seeds, hasSeeds := snap.ClientSeeds()
	if !hasPeers || !hasSeeds || peers != 0 || seeds != 0 {
		return false
	}
	since := entry.FirstSeenTS
	if entry.LastProgressTS != nil {
		since = *entry.LastProgressTS
	}
	return nowUnix-since >= int64(minutes)*60
}

func (e *Engine) applyProgress(entry *ledger.Entry, downloaded int64, hasDownloaded bool, snap item.Snapshot, nowUnix int64, counters *stats.Counters) {
	before := entry.Count
	policy := e.cfg.General.ResetStrikesOnProgress
	switch {
	case policy == "all":
		entry.Count = 0
	default:
		if n, err := strconv.Atoi(policy); err == nil && n >= 1 {
			entry.Count -= n
			if entry.Count < 0 {
				entry.Count = 0
			}
		}
	}
	if entry.Count < before {
		counters.StrikeDecreased++
	}
	if hasDownloaded {
		entry.LastDownloaded = &downloaded
	}
	entry.LastProgressTS = &nowUnix
	if seeders, ok := snap.Seeders(); ok {
		entry.LastSeenSeeders = &seeders
	}
	entry.LastReason = string(rules.ReasonProgress)
}

// RecordReannounceAttempt is called by the runner once it has actually
// invoked the torrent client's reannounce call for an item Decide reported
// as ReannounceRequested, bumping the attempt counter and cooldown
// timestamp regardless of outcome (a failed call still consumes an
// attempt, per spec §4.D step 8/14's MaxAttempts guard).
func (e *Engine) RecordReannounceAttempt(manager config.Manager, itemID int64, now time.Time, success bool, counters *stats.Counters) {
	key := ledger.Key(manager.Name, itemID)
	nowUnix := now.Unix()
	entry := e.ledger.Get(key, nowUnix)
	entry.ReannounceAttempt++
	entry.LastReannounceTS = &nowUnix
	e.ledger.Put(key, entry)
	counters.ReannounceAttempted++
	if success {
		counters.ReannounceSuccessful++
	}
}

func optionalInt64(v int64, ok bool) *int64 {
	if !ok {
		return nil
	}
	return &v
}
