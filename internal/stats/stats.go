// Package stats defines the summary counters the decision engine
// increments and the runner aggregates into the end-of-cycle log line
// (spec §4.F/§7: "a structured summary is always logged at end of
// cycle, including counts of every decision type").
package stats

// Counters is one manager's (or the whole cycle's) tally for a single run.
type Counters struct {
	Processed              int
	Removed                int
	Queued                 int
	StrikeIncreased        int
	StrikeDecreased        int
	ReannounceScheduled    int
	ReannounceAttempted    int
	ReannounceSuccessful   int
	IndexerFailureRemovals int
	ItemsWithStrikes       int
}

// Add accumulates other's counts into c.
func (c *Counters) Add(other Counters) {
	c.Processed += other.Processed
	c.Removed += other.Removed
	c.Queued += other.Queued
	c.StrikeIncreased += other.StrikeIncreased
	c.StrikeDecreased += other.StrikeDecreased
	c.ReannounceScheduled += other.ReannounceScheduled
	c.ReannounceAttempted += other.ReannounceAttempted
	c.ReannounceSuccessful += other.ReannounceSuccessful
	c.IndexerFailureRemovals += other.IndexerFailureRemovals
	c.ItemsWithStrikes += other.ItemsWithStrikes
}
