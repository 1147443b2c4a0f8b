// Package runner implements the scheduler of spec §4.F: an infinite,
// cooperatively cancellable cycle loop that fans out across configured
// managers in parallel (golang.org/x/sync/errgroup, the same fan-out
// primitive prxssh-rabbit's torrent package uses for concurrent peer
// work), paginates each manager's queue, enriches items with live
// torrent-client state, drives the decision engine, performs removals and
// reannounces, and emits a structured summary plus notification flush at
// the end of each cycle.
package runner

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/queuejanitor/decluttd/internal/arr"
	"github.com/queuejanitor/decluttd/internal/client"
	"github.com/queuejanitor/decluttd/internal/config"
	"github.com/queuejanitor/decluttd/internal/decision"
	"github.com/queuejanitor/decluttd/internal/eventbus"
	"github.com/queuejanitor/decluttd/internal/httpx"
	"github.com/queuejanitor/decluttd/internal/item"
	"github.com/queuejanitor/decluttd/internal/ledger"
	"github.com/queuejanitor/decluttd/internal/metrics"
	"github.com/queuejanitor/decluttd/internal/rules"
	"github.com/queuejanitor/decluttd/internal/stats"
)

const maxPageSize = 100

// Runner orchestrates one manager-polling cycle end to end.
type Runner struct {
	cfg     *config.Config
	ledger  *ledger.Store
	engine  *decision.Engine
	clients *client.Pool
	bus     *eventbus.Bus
	metrics *metrics.Collector
	logger  *logrus.Entry

	managers map[string]*arr.Client
}

// New wires a runner from a sanitized config, an already-loaded ledger,
// and every collaborator the cycle needs.
func New(cfg *config.Config, store *ledger.Store, bus *eventbus.Bus, pool *client.Pool, collector *metrics.Collector, logger *logrus.Entry) *Runner {
	r := &Runner{
		cfg:      cfg,
		ledger:   store,
		engine:   decision.NewEngine(cfg, store),
		clients:  pool,
		bus:      bus,
		metrics:  collector,
		logger:   logger,
		managers: map[string]*arr.Client{},
	}
	for _, m := range cfg.Managers {
		httpClient := httpx.New(httpx.Config{
			Timeout:            cfg.General.RequestTimeout,
			RetryAttempts:      cfg.General.RetryAttempts,
			RetryBackoff:       cfg.General.RetryBackoff,
			MinRequestInterval: m.MinRequestInterval,
			MaxConcurrency:     m.MaxConcurrentRequests,
		}, logger.WithField("manager", m.Name))
		r.managers[m.Name] = arr.New(m, httpClient)
	}
	return r
}

// Run blocks, executing cycles until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	for {
		start := time.Now()
		r.RunCycle(ctx)
		if r.metrics != nil {
			r.metrics.ObserveCycleDuration(time.Since(start).Seconds())
		}

		select {
		case <-ctx.Done():
			r.logger.Info("shutdown requested, stopping runner")
			return
		case <-time.After(r.cfg.General.APITimeout):
		}
	}
}

// RunCycle executes exactly one cycle: parallel per-manager processing,
// summary logging, and notification flush (spec §4.F).
func (r *Runner) RunCycle(ctx context.Context) {
	var g errgroup.Group
	total := stats.Counters{}

	type named struct {
		name string
		c    stats.Counters
	}
	results := make(chan named, len(r.cfg.Managers))

	for _, m := range r.cfg.Managers {
		manager := m
		g.Go(func() error {
			c := r.manageService(ctx, manager)
			results <- named{name: manager.Name, c: c}
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	perManager := map[string]stats.Counters{}
	for n := range results {
		perManager[n.name] = n.c
		total.Add(n.c)
		if r.metrics != nil {
			r.metrics.Observe(n.name, n.c, n.c.ItemsWithStrikes)
		}
	}

	r.logSummary(total, perManager)
	r.bus.Flush(ctx)
}

// manageService runs manage_service for one manager (spec §4.F step 2):
// probe, paginate, dedup, enrich, decide, act. Dedup sets are local to
// this call rather than a cross-goroutine shared map — keys already carry
// the manager name, so no two manageService calls ever contend for the
// same key, and a native Go map written from a single goroutine needs no
// lock (unlike the reference's GIL-backed asyncio tasks, Go's memory
// model treats concurrent map writes as a race even on disjoint keys, so
// a per-manager map is the correct translation, not a shared one).
func (r *Runner) manageService(ctx context.Context, manager config.Manager) stats.Counters {
	logger := r.logger.WithField("manager", manager.Name)
	counters := stats.Counters{}

	if manager.APIURL == "" || manager.APIKey == "" {
		return counters
	}
	arrClient, ok := r.managers[manager.Name]
	if !ok {
		return counters
	}

	probe, err := arrClient.FetchQueuePage(ctx, 1, 1)
	if err != nil {
		logger.WithError(err).Warn("failed to probe queue size, skipping manager this cycle")
		return counters
	}
	if probe.TotalRecords == 0 {
		return counters
	}

	pageSize := probe.TotalRecords
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	pages := int(math.Ceil(float64(probe.TotalRecords) / float64(pageSize)))

	processedSeen := map[int64]bool{}
	reannounceSeen := map[string]bool{}

	for page := 1; page <= pages; page++ {
		if ctx.Err() != nil {
			return counters
		}

		queuePage, err := arrClient.FetchQueuePage(ctx, page, pageSize)
		if err != nil {
			logger.WithError(err).WithField("page", page).Warn("failed to fetch queue page, skipping remaining pages")
			break
		}

		for _, snap := range queuePage.Records {
			r.processItem(ctx, manager, arrClient, snap, processedSeen, reannounceSeen, &counters, logger)
		}

		if err := r.ledger.Save(); err != nil {
			logger.WithError(err).Warn("failed to save ledger after page")
		}
	}

	counters.ItemsWithStrikes = r.countStrikesFor(manager.Name)
	return counters
}

func (r *Runner) processItem(ctx context.Context, manager config.Manager, arrClient *arr.Client, snap item.Snapshot, processedSeen map[int64]bool, reannounceSeen map[string]bool, counters *stats.Counters, logger *logrus.Entry) {
	id, ok := snap.ID()
	if ok {
		if processedSeen[id] {
			return
		}
		processedSeen[id] = true
	}

	snap = r.enrich(ctx, manager, snap)

	now := time.Now()
	result := r.engine.Decide(manager, snap, now, counters)

	if result.ReannounceRequested {
		downloadID, hasDL := snap.DownloadID()
		if hasDL && !reannounceSeen[downloadID] {
			reannounceSeen[downloadID] = true
			success := r.clients.Reannounce(ctx, downloadID, r.cfg.Reannounce.DoRecheck)
			r.engine.RecordReannounceAttempt(manager, id, now, success, counters)
			r.bus.Emit(eventbus.Event{
				Kind:    "reannounce_attempted",
				Service: manager.Name,
				ID:      id,
				Title:   snap.Title(),
				Reason:  string(rules.ReasonReannounceScheduled),
				Notify:  false,
			})
		}
		return
	}

	if !result.ShouldRemove {
		return
	}

	size, _ := snap.Size()

	if r.cfg.General.DryRun {
		r.bus.Emit(eventbus.Event{
			Kind:      "dry_remove",
			Service:   manager.Name,
			ID:        id,
			Title:     snap.Title(),
			Reason:    string(result.Reason),
			SizeBytes: size,
			Notify:    true,
		})
		return
	}

	if err := arrClient.RemoveAndBlacklist(ctx, id); err != nil {
		logger.WithError(err).WithField("id", id).Warn("failed to remove queue entry")
		return
	}
	if result.TriggerSearch {
		if err := arrClient.TriggerSearch(ctx, snap); err != nil {
			logger.WithError(err).WithField("id", id).Warn("failed to trigger replacement search")
		}
	}
	r.bus.Emit(eventbus.Event{
		Kind:      "remove",
		Service:   manager.Name,
		ID:        id,
		Title:     snap.Title(),
		Reason:    string(result.Reason),
		SizeBytes: size,
		Notify:    true,
	})
}

// enrich returns a copy of snap with the client-enrichment fields of spec §3
// added (the original snapshot is not modified): speed
// (only when a min-speed rule could use it), live state/peers/seeds, and
// tracker messages, all best-effort — adapter failures leave the item
// un-enriched rather than aborting the cycle (spec §7 "adapter errors").
func (r *Runner) enrich(ctx context.Context, manager config.Manager, snap item.Snapshot) item.Snapshot {
	if !snap.IsTorrent() {
		return snap
	}
	downloadID, ok := snap.DownloadID()
	if !ok || r.clients == nil {
		return snap
	}

	fields := map[string]any{}

	minSpeed := r.cfg.Resolver().Int(manager.Name, snap.Title(), rules.KeyMinSpeedBytesPerSec, 0)
	if minSpeed > 0 {
		if speed, ok := r.clients.Speed(ctx, downloadID); ok {
			fields["clientDlSpeed"] = speed
		}
	}

	if info, ok := r.clients.Info(ctx, downloadID); ok {
		fields["clientState"] = info.State
		fields["clientPeers"] = info.Peers
		fields["clientSeeds"] = info.Seeds
	}

	if trackers, ok := r.clients.Trackers(ctx, downloadID); ok {
		msgs := make([]string, 0, len(trackers))
		for _, t := range trackers {
			msgs = append(msgs, t.Message)
		}
		fields["clientTrackersMsg"] = msgs
	}

	if len(fields) == 0 {
		return snap
	}
	return snap.WithEnrichment(fields)
}

func (r *Runner) countStrikesFor(managerName string) int {
	count := 0
	prefix := managerName + ":"
	for key, entry := range r.ledger.Snapshot() {
		if ledger.IsIndexerKey(key) {
			continue
		}
		if len(key) > len(prefix) && key[:len(prefix)] == prefix && entry.Count > 0 {
			count++
		}
	}
	return count
}

func (r *Runner) logSummary(total stats.Counters, perManager map[string]stats.Counters) {
	fields := logrus.Fields{
		"processed":                total.Processed,
		"removed":                  total.Removed,
		"queued":                   total.Queued,
		"strike_increased":         total.StrikeIncreased,
		"strike_decreased":         total.StrikeDecreased,
		"reannounce_scheduled":     total.ReannounceScheduled,
		"reannounce_attempted":     total.ReannounceAttempted,
		"reannounce_successful":    total.ReannounceSuccessful,
		"indexer_failure_removals": total.IndexerFailureRemovals,
		"items_with_strikes":       total.ItemsWithStrikes,
	}
	r.logger.WithFields(fields).Info("cycle summary")

	for name, c := range perManager {
		r.logger.WithFields(logrus.Fields{
			"manager":                  name,
			"processed":                c.Processed,
			"removed":                  c.Removed,
			"queued":                   c.Queued,
			"strike_increased":         c.StrikeIncreased,
			"strike_decreased":         c.StrikeDecreased,
			"reannounce_scheduled":     c.ReannounceScheduled,
			"reannounce_attempted":     c.ReannounceAttempted,
			"reannounce_successful":    c.ReannounceSuccessful,
			"indexer_failure_removals": c.IndexerFailureRemovals,
			"items_with_strikes":       c.ItemsWithStrikes,
		}).Debug("manager summary")
	}
}
