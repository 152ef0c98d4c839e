package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/kpi-cli/internal/model"
	"github.com/fleetops/kpi-cli/internal/store"
	"github.com/fleetops/kpi-cli/internal/viewtier"
	"github.com/fleetops/kpi-cli/pkg/edge"
)

// stubTier is a scripted tier for cascade tests.
type stubTier struct {
	name   model.TierName
	res    *model.FamilyResult
	usable bool
	err    error
	calls  int
}

func (s *stubTier) Name() model.TierName { return s.name }

func (s *stubTier) Attempt(ctx context.Context, f *model.Filter) (*model.FamilyResult, bool, error) {
	s.calls++
	return s.res, s.usable, s.err
}

type recordingRecorder struct {
	attempts []model.TierAttempt
	degraded []model.TierName
}

func (r *recordingRecorder) RecordAttempt(a model.TierAttempt) {
	r.attempts = append(r.attempts, a)
}

func (r *recordingRecorder) RecordDegraded(fam model.Family, tier model.TierName) {
	r.degraded = append(r.degraded, tier)
}

func (r *recordingRecorder) RecordBatchFailures(fam model.Family, issued, failed int) {}

func okResult(tier model.TierName, rows int) *model.FamilyResult {
	return &model.FamilyResult{Family: model.FamilyCouriers, Tier: tier, RowCount: rows}
}

func missingFnErr() error {
	return &edge.APIError{Status: 404, Code: "PGRST202", Message: "could not find the function"}
}

func TestFetchPrimarySuccessSkipsFallback(t *testing.T) {
	primary := &stubTier{name: model.TierPrimary, res: okResult(model.TierPrimary, 3), usable: true}
	view := &stubTier{name: model.TierView}
	raw := &stubTier{name: model.TierRaw}
	o := NewOrchestratorWithTiers(model.FamilyCouriers, nil, primary, view, raw)

	res, err := o.Fetch(context.Background(), &model.Filter{})
	require.NoError(t, err)
	assert.Equal(t, model.TierPrimary, res.Tier)
	assert.Equal(t, 1, primary.calls)
	assert.Zero(t, view.calls)
	assert.Zero(t, raw.calls)
}

func TestFetchEmptyPrimaryIsSuccessNotFallback(t *testing.T) {
	// An empty but structurally valid primary response must not trigger
	// the cascade.
	primary := &stubTier{name: model.TierPrimary, res: okResult(model.TierPrimary, 0), usable: true}
	view := &stubTier{name: model.TierView}
	o := NewOrchestratorWithTiers(model.FamilyCouriers, nil, primary, view)

	res, err := o.Fetch(context.Background(), &model.Filter{})
	require.NoError(t, err)
	assert.Zero(t, res.RowCount)
	assert.Zero(t, view.calls)
}

func TestFetchRateLimitedNeverFallsBack(t *testing.T) {
	primary := &stubTier{name: model.TierPrimary, err: &edge.APIError{Status: 429, Message: "too many requests"}}
	view := &stubTier{name: model.TierView, res: okResult(model.TierView, 5), usable: true}
	raw := &stubTier{name: model.TierRaw, res: okResult(model.TierRaw, 5), usable: true}
	o := NewOrchestratorWithTiers(model.FamilyCouriers, nil, primary, view, raw)

	_, err := o.Fetch(context.Background(), &model.Filter{})
	assert.ErrorIs(t, err, ErrRetryRateLimited)
	assert.Zero(t, view.calls)
	assert.Zero(t, raw.calls)
}

func TestFetchMissingFunctionFallsToView(t *testing.T) {
	rec := &recordingRecorder{}
	primary := &stubTier{name: model.TierPrimary, err: missingFnErr()}
	view := &stubTier{name: model.TierView, res: okResult(model.TierView, 7), usable: true}
	raw := &stubTier{name: model.TierRaw}
	o := NewOrchestratorWithTiers(model.FamilyCouriers, rec, primary, view, raw)

	res, err := o.Fetch(context.Background(), &model.Filter{})
	require.NoError(t, err)
	assert.Equal(t, model.TierView, res.Tier)
	assert.Equal(t, 1, view.calls)
	assert.Zero(t, raw.calls)
	assert.Equal(t, []model.TierName{model.TierView}, rec.degraded)
}

// emptyStore is a store.Store with no data, backing a real view reader in
// cascade tests.
type emptyStore struct{}

func (emptyStore) ViewRows(ctx context.Context, f *model.Filter) ([]model.ViewRow, error) {
	return nil, nil
}

func (emptyStore) SubRegionMembers(ctx context.Context, group string) ([]string, error) {
	return nil, nil
}

func (emptyStore) CourierProfiles(ctx context.Context, courierIDs []string) ([]model.CourierProfile, error) {
	return nil, nil
}

func (emptyStore) DistinctCourierIDs(ctx context.Context, f *model.Filter, rowCap int) ([]string, error) {
	return nil, nil
}

func (emptyStore) CourierActivityRows(ctx context.Context, courierIDs []string, f *model.Filter, rowCap int) ([]model.CourierActivityRow, error) {
	return nil, nil
}

func (emptyStore) Regions(ctx context.Context) ([]string, error) { return nil, nil }

func (emptyStore) WeeksYears(ctx context.Context) ([]store.WeekYear, error) { return nil, nil }

func (emptyStore) Close() {}

func TestFetchConclusiveViewZeroIsEmptySuccess(t *testing.T) {
	// Explicit date range, empty rollup: the view's zero is the true zero
	// for every family and the raw tier must never run.
	start := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.March, 7, 0, 0, 0, 0, time.UTC)
	f := &model.Filter{StartDate: &start, EndDate: &end}

	for _, fam := range []model.Family{model.FamilyUTR, model.FamilyCouriers, model.FamilyValues} {
		t.Run(string(fam), func(t *testing.T) {
			primary := &stubTier{name: model.TierPrimary, err: missingFnErr()}
			view := &viewTier{reader: viewtier.New(emptyStore{}), family: fam}
			raw := &stubTier{name: model.TierRaw, res: okResult(model.TierRaw, 9), usable: true}
			o := NewOrchestratorWithTiers(fam, nil, primary, view, raw)

			res, err := o.Fetch(context.Background(), f)
			require.NoError(t, err)
			assert.Equal(t, model.TierView, res.Tier)
			assert.Zero(t, res.RowCount)
			assert.Zero(t, raw.calls)
		})
	}
}

func TestFetchInconclusiveViewZeroStillCascades(t *testing.T) {
	// Same empty rollup but no explicit dates: the zero is inconclusive
	// and the raw tier gets its chance.
	primary := &stubTier{name: model.TierPrimary, err: missingFnErr()}
	view := &viewTier{reader: viewtier.New(emptyStore{}), family: model.FamilyCouriers}
	raw := &stubTier{name: model.TierRaw, res: okResult(model.TierRaw, 4), usable: true}
	o := NewOrchestratorWithTiers(model.FamilyCouriers, nil, primary, view, raw)

	res, err := o.Fetch(context.Background(), &model.Filter{Year: 2026, Week: 10})
	require.NoError(t, err)
	assert.Equal(t, model.TierRaw, res.Tier)
	assert.Equal(t, 1, raw.calls)
}

func TestFetchInconclusiveViewFallsToRaw(t *testing.T) {
	primary := &stubTier{name: model.TierPrimary, err: missingFnErr()}
	view := &stubTier{name: model.TierView, res: okResult(model.TierView, 0), usable: false}
	raw := &stubTier{name: model.TierRaw, res: okResult(model.TierRaw, 4), usable: true}
	o := NewOrchestratorWithTiers(model.FamilyCouriers, nil, primary, view, raw)

	res, err := o.Fetch(context.Background(), &model.Filter{})
	require.NoError(t, err)
	assert.Equal(t, model.TierRaw, res.Tier)
	assert.Equal(t, 1, view.calls)
	assert.Equal(t, 1, raw.calls)
}

func TestFetchFallbackTierErrorIsSkipped(t *testing.T) {
	primary := &stubTier{name: model.TierPrimary, err: missingFnErr()}
	view := &stubTier{name: model.TierView, err: errors.New("view query failed")}
	raw := &stubTier{name: model.TierRaw, res: okResult(model.TierRaw, 2), usable: true}
	o := NewOrchestratorWithTiers(model.FamilyCouriers, nil, primary, view, raw)

	res, err := o.Fetch(context.Background(), &model.Filter{})
	require.NoError(t, err)
	assert.Equal(t, model.TierRaw, res.Tier)
}

func TestFetchServerErrorExhaustedIsRetryable(t *testing.T) {
	primary := &stubTier{name: model.TierPrimary, err: &edge.APIError{Status: 500, Message: "internal error"}}
	view := &stubTier{name: model.TierView, usable: false, res: okResult(model.TierView, 0)}
	raw := &stubTier{name: model.TierRaw, usable: false, res: okResult(model.TierRaw, 0)}
	o := NewOrchestratorWithTiers(model.FamilyCouriers, nil, primary, view, raw)

	_, err := o.Fetch(context.Background(), &model.Filter{})
	assert.ErrorIs(t, err, ErrRetryServer)
	assert.True(t, IsRetryable(err))
}

func TestFetchMissingFunctionExhaustedIsTerminal(t *testing.T) {
	primary := &stubTier{name: model.TierPrimary, err: missingFnErr()}
	view := &stubTier{name: model.TierView, usable: false, res: okResult(model.TierView, 0)}
	raw := &stubTier{name: model.TierRaw, err: errors.New("aggregation failed")}
	o := NewOrchestratorWithTiers(model.FamilyCouriers, nil, primary, view, raw)

	_, err := o.Fetch(context.Background(), &model.Filter{})

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "couriers", unavailable.Family)
	assert.False(t, IsRetryable(err))
}

func TestFetchUnclassifiedErrorPropagates(t *testing.T) {
	authErr := &edge.APIError{Status: 403, Message: "permission denied"}
	primary := &stubTier{name: model.TierPrimary, err: authErr}
	view := &stubTier{name: model.TierView, res: okResult(model.TierView, 5), usable: true}
	o := NewOrchestratorWithTiers(model.FamilyCouriers, nil, primary, view)

	_, err := o.Fetch(context.Background(), &model.Filter{})

	var apiErr *edge.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.Status)
	assert.Zero(t, view.calls)
}

func TestFetchRecordsAttempts(t *testing.T) {
	rec := &recordingRecorder{}
	primary := &stubTier{name: model.TierPrimary, err: missingFnErr()}
	view := &stubTier{name: model.TierView, res: okResult(model.TierView, 7), usable: true}
	o := NewOrchestratorWithTiers(model.FamilyCouriers, rec, primary, view)

	_, err := o.Fetch(context.Background(), &model.Filter{})
	require.NoError(t, err)

	require.Len(t, rec.attempts, 2)
	assert.Equal(t, model.TierPrimary, rec.attempts[0].Tier)
	assert.False(t, rec.attempts[0].Succeeded)
	assert.NotEmpty(t, rec.attempts[0].Err)
	assert.Equal(t, model.TierView, rec.attempts[1].Tier)
	assert.True(t, rec.attempts[1].Succeeded)
	assert.Equal(t, 7, rec.attempts[1].Rows)

	// Both attempts belong to the same request.
	assert.Equal(t, rec.attempts[0].RequestID, rec.attempts[1].RequestID)
	assert.NotEmpty(t, rec.attempts[0].RequestID)
}

func TestUsableRows(t *testing.T) {
	// Raw-tier gate: a zero-row answer stands for UTR (a ratio can be
	// zero) but not for row listings.
	assert.True(t, usableRows(model.FamilyUTR, 0))
	assert.False(t, usableRows(model.FamilyCouriers, 0))
	assert.False(t, usableRows(model.FamilyValues, 0))
	assert.True(t, usableRows(model.FamilyCouriers, 1))
}

func TestFetchWithoutTiersErrors(t *testing.T) {
	o := NewOrchestratorWithTiers(model.FamilyCouriers, nil)

	res, err := o.Fetch(context.Background(), &model.Filter{})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tiers")
}
