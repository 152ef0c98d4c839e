// Package monitoring keeps in-process counters for the fetch pipeline:
// which tier answered, how often requests degraded, and how many batches
// were dropped. Partial failures never fail a request, so this is where
// they stay visible.
package monitoring

import (
	"fmt"
	"sync"
	"time"

	"github.com/fleetops/kpi-cli/internal/model"
)

// Snapshot is a point-in-time view of pipeline health, served at /metrics.
type Snapshot struct {
	AttemptsByTier   map[string]int `json:"attempts_by_tier"`
	SuccessesByTier  map[string]int `json:"successes_by_tier"`
	DegradedByFamily map[string]int `json:"degraded_by_family"`
	BatchesIssued    int            `json:"batches_issued"`
	BatchesFailed    int            `json:"batches_failed"`
	StartedAt        time.Time      `json:"started_at"`
	CollectedAt      time.Time      `json:"collected_at"`
}

// Collector accumulates pipeline events. It satisfies the orchestrator's
// Recorder interface.
type Collector struct {
	mu               sync.Mutex
	attemptsByTier   map[string]int
	successesByTier  map[string]int
	degradedByFamily map[string]int
	batchesIssued    int
	batchesFailed    int
	startedAt        time.Time
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		attemptsByTier:   make(map[string]int),
		successesByTier:  make(map[string]int),
		degradedByFamily: make(map[string]int),
		startedAt:        time.Now().UTC(),
	}
}

func tierKey(fam model.Family, tier model.TierName) string {
	return fmt.Sprintf("%s/%s", fam, tier)
}

// RecordAttempt counts one tier attempt and its outcome.
func (c *Collector) RecordAttempt(a model.TierAttempt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := tierKey(a.Family, a.Tier)
	c.attemptsByTier[key]++
	if a.Succeeded {
		c.successesByTier[key]++
	}
}

// RecordDegraded counts a request answered by a fallback tier.
func (c *Collector) RecordDegraded(fam model.Family, tier model.TierName) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.degradedByFamily[string(fam)]++
}

// RecordBatchFailures accumulates batch telemetry from the raw tier.
func (c *Collector) RecordBatchFailures(fam model.Family, issued, failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batchesIssued += issued
	c.batchesFailed += failed
}

// Snapshot copies the current counters.
func (c *Collector) Snapshot() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := &Snapshot{
		AttemptsByTier:   make(map[string]int, len(c.attemptsByTier)),
		SuccessesByTier:  make(map[string]int, len(c.successesByTier)),
		DegradedByFamily: make(map[string]int, len(c.degradedByFamily)),
		BatchesIssued:    c.batchesIssued,
		BatchesFailed:    c.batchesFailed,
		StartedAt:        c.startedAt,
		CollectedAt:      time.Now().UTC(),
	}
	for k, v := range c.attemptsByTier {
		snap.AttemptsByTier[k] = v
	}
	for k, v := range c.successesByTier {
		snap.SuccessesByTier[k] = v
	}
	for k, v := range c.degradedByFamily {
		snap.DegradedByFamily[k] = v
	}
	return snap
}
