package fetch

import (
	"context"

	"github.com/fleetops/kpi-cli/internal/aggregate"
	"github.com/fleetops/kpi-cli/internal/model"
	"github.com/fleetops/kpi-cli/internal/viewtier"
	"github.com/fleetops/kpi-cli/pkg/edge"
)

// Tier is one fallback level. Attempt returns the normalized result and
// whether it is usable: a conclusive answer the orchestrator can return.
// The view tier trusts any conclusive read, rows or not. The raw tier is
// usable only with rows for the courier and values families; for UTR a
// structurally valid zero also counts.
type Tier interface {
	Name() model.TierName
	Attempt(ctx context.Context, f *model.Filter) (res *model.FamilyResult, usable bool, err error)
}

// primaryTier calls the remote aggregation function.
type primaryTier struct {
	client   edge.Client
	family   model.Family
	settings FamilySettings
}

func (t *primaryTier) Name() model.TierName { return model.TierPrimary }

func (t *primaryTier) Attempt(ctx context.Context, f *model.Filter) (*model.FamilyResult, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.settings.Timeout())
	defer cancel()

	params := Project(f, t.settings.Params)
	raw, err := t.client.Call(ctx, t.settings.Function, params)
	if err != nil {
		return nil, false, err
	}

	res, err := Normalize(t.family, raw)
	if err != nil {
		return nil, false, err
	}
	// Empty-but-valid is success for the primary tier, full stop. It must
	// not trigger fallback.
	return res, true, nil
}

// viewTier adapts the materialized-view reader.
type viewTier struct {
	reader *viewtier.Reader
	family model.Family
}

func (t *viewTier) Name() model.TierName { return model.TierView }

func (t *viewTier) Attempt(ctx context.Context, f *model.Filter) (*model.FamilyResult, bool, error) {
	res, err := t.reader.Fetch(ctx, f)
	if err != nil {
		return nil, false, err
	}
	if !res.Conclusive {
		return nil, false, nil
	}
	// Conclusive means trusted as-is, including the explicit-date-range
	// zero. Cascading past it to the raw tier would turn a true zero into
	// a spurious unavailability error.
	fr := resultFromAggregates(t.family, model.TierView, res.Couriers)
	return fr, true, nil
}

// rawTier adapts the raw aggregation engine.
type rawTier struct {
	engine       *aggregate.Engine
	family       model.Family
	onBatchStats func(issued, failed int)
}

func (t *rawTier) Name() model.TierName { return model.TierRaw }

func (t *rawTier) Attempt(ctx context.Context, f *model.Filter) (*model.FamilyResult, bool, error) {
	out, err := t.engine.Aggregate(ctx, f)
	if err != nil {
		return nil, false, err
	}
	if t.onBatchStats != nil {
		t.onBatchStats(out.BatchesIssued, out.BatchesFailed)
	}
	fr := resultFromAggregates(t.family, model.TierRaw, out.Couriers)
	return fr, usableRows(t.family, fr.RowCount), nil
}

func usableRows(fam model.Family, rows int) bool {
	return rows > 0 || fam == model.FamilyUTR
}

// resultFromAggregates builds the family's canonical result from courier
// aggregates, so every tier hands back the exact same shape.
func resultFromAggregates(fam model.Family, tier model.TierName, couriers []model.CourierAggregate) *model.FamilyResult {
	res := &model.FamilyResult{Family: fam, Tier: tier, RowCount: len(couriers)}
	switch fam {
	case model.FamilyUTR:
		res.UTR = aggregate.UTRFromAggregates(couriers)
	case model.FamilyCouriers:
		res.Couriers = couriers
	case model.FamilyValues:
		res.Values = aggregate.ValuesFromAggregates(couriers)
	}
	return res
}
