// Package viewtier reads the pre-aggregated daily rollup. It sits between
// the primary endpoint and the raw aggregation engine: cheaper than raw,
// less fresh than primary.
package viewtier

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/fleetops/kpi-cli/internal/aggregate"
	"github.com/fleetops/kpi-cli/internal/model"
	"github.com/fleetops/kpi-cli/internal/store"
)

// Result is the view tier's answer. Conclusive=false means "the view has
// nothing for this filter, try deeper" rather than a true zero; the
// orchestrator falls through to the raw engine in that case.
type Result struct {
	Couriers   []model.CourierAggregate
	Conclusive bool
}

// Reader is the materialized-view tier.
type Reader struct {
	store    store.Store
	now      func() time.Time
	collator *collate.Collator
}

// New creates a view-tier reader.
func New(st store.Store) *Reader {
	return &Reader{
		store:    st,
		now:      time.Now,
		collator: collate.New(language.BrazilianPortuguese),
	}
}

// WithNow fixes the clock for testing.
func (r *Reader) WithNow(now func() time.Time) *Reader {
	r.now = now
	return r
}

// Fetch attempts a single read against the rollup view. Errors never
// propagate: a failed or empty read degrades to an inconclusive result so
// the orchestrator can try the raw tier, and the original primary-endpoint
// error classification is never masked by a fallback failure.
func (r *Reader) Fetch(ctx context.Context, f *model.Filter) (*Result, error) {
	rows, err := r.store.ViewRows(ctx, f)
	if err != nil {
		zap.L().Warn("view tier read failed, treating as no data", zap.Error(err))
		return &Result{Conclusive: false}, nil
	}

	rows, err = r.narrowComposites(ctx, f, rows)
	if err != nil {
		zap.L().Warn("view tier membership lookup failed, treating as no data", zap.Error(err))
		return &Result{Conclusive: false}, nil
	}

	if len(rows) == 0 {
		// A zero from an explicit date-range query is the true zero. A zero
		// from an unfiltered-date query is inconclusive: the rollup may
		// simply not cover the request, so the raw tier gets a chance.
		return &Result{Conclusive: f.HasExplicitDates()}, nil
	}

	couriers := r.toAggregates(rows)
	r.enrich(ctx, couriers)

	sort.Slice(couriers, func(i, j int) bool {
		return r.collator.CompareString(couriers[i].Name, couriers[j].Name) < 0
	})

	return &Result{Couriers: couriers, Conclusive: true}, nil
}

// narrowComposites re-validates rows against composite region groupings.
// The rollup is coarser than a grouped "city": when a requested region is a
// grouping, its fine-grained membership is fetched and rows are kept only if
// their sub-region belongs to it.
func (r *Reader) narrowComposites(ctx context.Context, f *model.Filter, rows []model.ViewRow) ([]model.ViewRow, error) {
	if f.Regions.IsZero() || len(rows) == 0 {
		return rows, nil
	}

	memberSet := make(map[string]bool)
	anyComposite := false
	for _, region := range f.Regions {
		members, err := r.store.SubRegionMembers(ctx, region)
		if err != nil {
			return nil, err
		}
		if len(members) == 0 {
			continue // plain region, already filtered server-side
		}
		anyComposite = true
		for _, m := range members {
			memberSet[m] = true
		}
	}
	if !anyComposite {
		return rows, nil
	}

	narrowed := rows[:0]
	for _, row := range rows {
		if memberSet[row.SubRegion] {
			narrowed = append(narrowed, row)
		}
	}
	zap.L().Debug("narrowed composite region rows",
		zap.Int("before", len(rows)),
		zap.Int("after", len(narrowed)),
	)
	return narrowed, nil
}

func (r *Reader) toAggregates(rows []model.ViewRow) []model.CourierAggregate {
	now := r.now()
	out := make([]model.CourierAggregate, 0, len(rows))
	for _, row := range rows {
		agg := model.CourierAggregate{
			CourierID:        row.CourierID,
			Name:             row.Name,
			Region:           row.Region,
			Offered:          row.Offered,
			Accepted:         row.Accepted,
			Rejected:         row.Rejected,
			Completed:        row.Completed,
			AvailableSeconds: row.AvailableSeconds,
			GrossValue:       row.GrossValue,
			DeliveryFees:     row.DeliveryFees,
			LastActive:       row.LastActive,
		}
		aggregate.Finalize(&agg, now)
		out = append(out, agg)
	}
	return out
}

// enrich joins vehicle type by courier id. The attribute is absent from the
// rollup. Best-effort: a failed lookup leaves the field empty.
func (r *Reader) enrich(ctx context.Context, couriers []model.CourierAggregate) {
	ids := make([]string, len(couriers))
	for i, c := range couriers {
		ids[i] = c.CourierID
	}

	profiles, err := r.store.CourierProfiles(ctx, ids)
	if err != nil {
		zap.L().Warn("view tier enrichment failed", zap.Error(err))
		return
	}

	vehicles := make(map[string]string, len(profiles))
	for _, p := range profiles {
		vehicles[p.CourierID] = p.VehicleType
	}
	for i := range couriers {
		couriers[i].VehicleType = vehicles[couriers[i].CourierID]
	}
}
