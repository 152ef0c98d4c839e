// Package aggregate recomputes, from unaggregated detail rows, the derived
// metrics the primary aggregation endpoint would have produced. It is the
// deepest fallback tier: correct but expensive.
package aggregate

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/fleetops/kpi-cli/internal/batch"
	"github.com/fleetops/kpi-cli/internal/model"
	"github.com/fleetops/kpi-cli/internal/store"
)

const (
	defaultIdentityCap = 5000
	defaultDetailCap   = 2000 // per batch query
)

// Outcome is the engine's result plus the batching telemetry callers surface
// in logs and metrics.
type Outcome struct {
	Couriers      []model.CourierAggregate
	BatchesIssued int
	BatchesFailed int
}

// Engine is the raw aggregation tier.
type Engine struct {
	store       store.Store
	profileCfg  batch.Config // identity lookups select narrow columns
	detailCfg   batch.Config // statistics rows are wide, smaller batches
	identityCap int
	detailCap   int
	now         func() time.Time
	collator    *collate.Collator
}

// Option configures the engine.
type Option func(*Engine)

// WithNow fixes the clock (for testing recency math).
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithBatchConfigs overrides the profile and detail batching parameters.
func WithBatchConfigs(profile, detail batch.Config) Option {
	return func(e *Engine) {
		e.profileCfg = profile
		e.detailCfg = detail
	}
}

// WithRowCaps overrides the identity and per-batch detail row caps.
func WithRowCaps(identity, detail int) Option {
	return func(e *Engine) {
		e.identityCap = identity
		e.detailCap = detail
	}
}

// New creates a raw aggregation engine.
func New(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:       st,
		profileCfg:  batch.Config{Size: 100, Window: 3, WindowDelay: 50 * time.Millisecond},
		detailCfg:   batch.DefaultConfig(),
		identityCap: defaultIdentityCap,
		detailCap:   defaultDetailCap,
		now:         time.Now,
		collator:    collate.New(language.BrazilianPortuguese),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Aggregate reproduces the server-side aggregation for the given filter.
func (e *Engine) Aggregate(ctx context.Context, f *model.Filter) (*Outcome, error) {
	ids, err := e.store.DistinctCourierIDs(ctx, f, e.identityCap)
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: resolve courier ids")
	}
	if len(ids) == 0 {
		return &Outcome{}, nil
	}

	// Seed one zero-valued accumulator per observed id.
	accs := make(map[string]*model.CourierAggregate, len(ids))
	for _, id := range ids {
		accs[id] = &model.CourierAggregate{CourierID: id}
	}

	profiles, err := batch.Fetch(ctx, ids, e.profileCfg, func(ctx context.Context, chunk []string) ([]model.CourierProfile, error) {
		return e.store.CourierProfiles(ctx, chunk)
	})
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: fetch profiles")
	}
	for _, p := range profiles.Rows {
		if acc, ok := accs[p.CourierID]; ok {
			acc.Name = p.Name
			acc.Region = p.Region
			acc.VehicleType = p.VehicleType
		}
	}

	details, err := batch.Fetch(ctx, ids, e.detailCfg, func(ctx context.Context, chunk []string) ([]model.CourierActivityRow, error) {
		return e.store.CourierActivityRows(ctx, chunk, f, e.detailCap)
	})
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: fetch detail rows")
	}

	for i := range details.Rows {
		e.fold(accs, &details.Rows[i])
	}

	now := e.now()
	out := make([]model.CourierAggregate, 0, len(accs))
	for _, acc := range accs {
		Finalize(acc, now)
		if !firstActiveInWindow(acc, f) {
			continue
		}
		out = append(out, *acc)
	}

	sort.Slice(out, func(i, j int) bool {
		return e.collator.CompareString(out[i].Name, out[j].Name) < 0
	})

	zap.L().Debug("raw aggregation complete",
		zap.Int("couriers", len(out)),
		zap.Int("detail_rows", len(details.Rows)),
		zap.Int("batches_failed", profiles.BatchesFailed+details.BatchesFailed),
	)

	return &Outcome{
		Couriers:      out,
		BatchesIssued: profiles.BatchesIssued + details.BatchesIssued,
		BatchesFailed: profiles.BatchesFailed + details.BatchesFailed,
	}, nil
}

// fold accumulates one detail row into its courier's accumulator.
func (e *Engine) fold(accs map[string]*model.CourierAggregate, row *model.CourierActivityRow) {
	acc, ok := accs[row.CourierID]
	if !ok {
		// Ids can surface in detail rows that identity resolution capped
		// out of; they still get an accumulator.
		acc = &model.CourierAggregate{CourierID: row.CourierID}
		accs[row.CourierID] = acc
	}

	if acc.Name == "" {
		acc.Name = row.Name
	}
	if acc.Region == "" {
		acc.Region = row.Region
	}

	acc.Offered += row.Offered
	acc.Accepted += row.Accepted
	acc.Rejected += row.Rejected
	acc.Completed += row.Completed
	acc.AvailableSeconds += ParseHHMMSS(row.AvailableTime)
	acc.GrossValue += row.GrossValue
	acc.DeliveryFees += row.DeliveryFee

	if row.Date != nil {
		if acc.FirstActive == nil || row.Date.Before(*acc.FirstActive) {
			d := *row.Date
			acc.FirstActive = &d
		}
		if acc.LastActive == nil || row.Date.After(*acc.LastActive) {
			d := *row.Date
			acc.LastActive = &d
		}
	}
}

// firstActiveInWindow applies the independent first-active date window. It
// runs after folding because a courier's earliest activity is only known
// once all of its rows are in.
func firstActiveInWindow(acc *model.CourierAggregate, f *model.Filter) bool {
	if f.FirstActiveStart == nil && f.FirstActiveEnd == nil {
		return true
	}
	if acc.FirstActive == nil {
		return false
	}
	if f.FirstActiveStart != nil && acc.FirstActive.Before(*f.FirstActiveStart) {
		return false
	}
	if f.FirstActiveEnd != nil && acc.FirstActive.After(*f.FirstActiveEnd) {
		return false
	}
	return true
}
