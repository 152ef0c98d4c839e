package aggregate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/kpi-cli/internal/batch"
	"github.com/fleetops/kpi-cli/internal/model"
	"github.com/fleetops/kpi-cli/internal/store"
)

type fakeStore struct {
	ids      []string
	idsErr   error
	profiles []model.CourierProfile
	rows     []model.CourierActivityRow
	rowsErr  error

	profileCalls int
	detailCalls  int
}

func (s *fakeStore) ViewRows(ctx context.Context, f *model.Filter) ([]model.ViewRow, error) {
	return nil, nil
}

func (s *fakeStore) SubRegionMembers(ctx context.Context, group string) ([]string, error) {
	return nil, nil
}

func (s *fakeStore) CourierProfiles(ctx context.Context, courierIDs []string) ([]model.CourierProfile, error) {
	s.profileCalls++
	out := make([]model.CourierProfile, 0)
	want := make(map[string]bool, len(courierIDs))
	for _, id := range courierIDs {
		want[id] = true
	}
	for _, p := range s.profiles {
		if want[p.CourierID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) DistinctCourierIDs(ctx context.Context, f *model.Filter, rowCap int) ([]string, error) {
	if s.idsErr != nil {
		return nil, s.idsErr
	}
	if len(s.ids) > rowCap {
		return s.ids[:rowCap], nil
	}
	return s.ids, nil
}

func (s *fakeStore) CourierActivityRows(ctx context.Context, courierIDs []string, f *model.Filter, rowCap int) ([]model.CourierActivityRow, error) {
	s.detailCalls++
	if s.rowsErr != nil {
		return nil, s.rowsErr
	}
	want := make(map[string]bool, len(courierIDs))
	for _, id := range courierIDs {
		want[id] = true
	}
	out := make([]model.CourierActivityRow, 0)
	for _, r := range s.rows {
		if want[r.CourierID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) Regions(ctx context.Context) ([]string, error) { return nil, nil }

func (s *fakeStore) WeeksYears(ctx context.Context) ([]store.WeekYear, error) { return nil, nil }

func (s *fakeStore) Close() {}

func datePtr(s string) *time.Time {
	d, _ := time.Parse(time.DateOnly, s)
	return &d
}

func testNow() time.Time {
	return time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
}

func TestAggregateFoldsDetailRows(t *testing.T) {
	st := &fakeStore{
		ids: []string{"c1", "c2"},
		profiles: []model.CourierProfile{
			{CourierID: "c1", Name: "Ana", Region: "norte", VehicleType: "moto"},
			{CourierID: "c2", Name: "Bruno", Region: "sul", VehicleType: "bike"},
		},
		rows: []model.CourierActivityRow{
			{CourierID: "c1", Date: datePtr("2026-03-09"), Offered: 6, Accepted: 5, Rejected: 1, Completed: 5, AvailableTime: "02:00:00", GrossValue: 100, DeliveryFee: 15},
			{CourierID: "c1", Date: datePtr("2026-03-10"), Offered: 4, Accepted: 3, Rejected: 1, Completed: 3, AvailableTime: "01:00:00", GrossValue: 60, DeliveryFee: 9},
			{CourierID: "c2", Date: datePtr("2026-03-10"), Offered: 2, Accepted: 2, Completed: 2, AvailableTime: "00:30:00", GrossValue: 40, DeliveryFee: 6},
		},
	}
	engine := New(st, WithNow(testNow))

	out, err := engine.Aggregate(context.Background(), &model.Filter{})
	require.NoError(t, err)
	require.Len(t, out.Couriers, 2)

	ana := out.Couriers[0]
	assert.Equal(t, "Ana", ana.Name)
	assert.Equal(t, "moto", ana.VehicleType)
	assert.Equal(t, 10, ana.Offered)
	assert.Equal(t, 8, ana.Accepted)
	assert.Equal(t, 2, ana.Rejected)
	assert.Equal(t, 8, ana.Completed)
	assert.Equal(t, int64(3*3600), ana.AvailableSeconds)
	assert.InDelta(t, 160.0, ana.GrossValue, 1e-9)
	assert.InDelta(t, 24.0, ana.DeliveryFees, 1e-9)
	assert.InDelta(t, 20.0, ana.RejectionPct, 1e-9)
	require.NotNil(t, ana.FirstActive)
	assert.Equal(t, "2026-03-09", ana.FirstActive.Format(time.DateOnly))
	assert.Equal(t, 5, ana.DaysSinceActive)
}

func TestAggregateSeedsZeroRowCouriers(t *testing.T) {
	// c2 matched identity resolution but has no detail rows in the window.
	// It must still appear, zero-valued, in the output.
	st := &fakeStore{
		ids: []string{"c1", "c2"},
		profiles: []model.CourierProfile{
			{CourierID: "c1", Name: "Ana"},
			{CourierID: "c2", Name: "Bruno"},
		},
		rows: []model.CourierActivityRow{
			{CourierID: "c1", Date: datePtr("2026-03-10"), Offered: 1, Accepted: 1, Completed: 1, AvailableTime: "01:00:00"},
		},
	}
	engine := New(st, WithNow(testNow))

	out, err := engine.Aggregate(context.Background(), &model.Filter{})
	require.NoError(t, err)
	require.Len(t, out.Couriers, 2)

	bruno := out.Couriers[1]
	assert.Equal(t, "Bruno", bruno.Name)
	assert.Zero(t, bruno.Offered)
	assert.Zero(t, bruno.AdherencePct)
	assert.Nil(t, bruno.FirstActive)
}

func TestAggregateSortsByCollatedName(t *testing.T) {
	st := &fakeStore{
		ids: []string{"c1", "c2", "c3"},
		profiles: []model.CourierProfile{
			{CourierID: "c1", Name: "Érico"},
			{CourierID: "c2", Name: "Ana"},
			{CourierID: "c3", Name: "Fábio"},
		},
	}
	engine := New(st, WithNow(testNow))

	out, err := engine.Aggregate(context.Background(), &model.Filter{})
	require.NoError(t, err)
	require.Len(t, out.Couriers, 3)

	// Byte-order sorting would push accented names to the end.
	assert.Equal(t, "Ana", out.Couriers[0].Name)
	assert.Equal(t, "Érico", out.Couriers[1].Name)
	assert.Equal(t, "Fábio", out.Couriers[2].Name)
}

func TestAggregateFirstActiveWindow(t *testing.T) {
	st := &fakeStore{
		ids: []string{"c1", "c2", "c3"},
		rows: []model.CourierActivityRow{
			{CourierID: "c1", Name: "Ana", Date: datePtr("2026-02-10"), Completed: 1},
			{CourierID: "c2", Name: "Bruno", Date: datePtr("2026-03-05"), Completed: 1},
			// c3 has no dated rows at all.
		},
	}
	engine := New(st, WithNow(testNow))

	f := &model.Filter{
		FirstActiveStart: datePtr("2026-03-01"),
		FirstActiveEnd:   datePtr("2026-03-31"),
	}
	out, err := engine.Aggregate(context.Background(), f)
	require.NoError(t, err)

	// Only Bruno's earliest activity falls in March. A courier with no
	// observable first-active date cannot satisfy the window.
	require.Len(t, out.Couriers, 1)
	assert.Equal(t, "Bruno", out.Couriers[0].Name)
}

func TestAggregateBatchesIDSet(t *testing.T) {
	ids := make([]string, 230)
	for i := range ids {
		ids[i] = "c" + string(rune('a'+i/26)) + string(rune('a'+i%26))
	}
	st := &fakeStore{ids: ids}
	engine := New(st,
		WithNow(testNow),
		WithBatchConfigs(
			batch.Config{Size: 100, Window: 3},
			batch.Config{Size: 50, Window: 3},
		),
	)

	out, err := engine.Aggregate(context.Background(), &model.Filter{})
	require.NoError(t, err)

	// 230 ids: 3 profile batches of 100 plus 5 detail batches of 50.
	assert.Equal(t, 3, st.profileCalls)
	assert.Equal(t, 5, st.detailCalls)
	assert.Equal(t, 8, out.BatchesIssued)
	assert.Zero(t, out.BatchesFailed)
	assert.Len(t, out.Couriers, 230)
}

func TestAggregatePartialBatchFailure(t *testing.T) {
	st := &fakeStore{
		ids:     []string{"c1", "c2"},
		rowsErr: errors.New("statement timeout"),
	}
	engine := New(st, WithNow(testNow))

	out, err := engine.Aggregate(context.Background(), &model.Filter{})
	require.NoError(t, err)

	// Detail batches all failed; couriers still surface, zero-valued, and
	// the loss is counted.
	assert.Len(t, out.Couriers, 2)
	assert.Equal(t, 1, out.BatchesFailed)
}

func TestAggregateEmptyIdentitySet(t *testing.T) {
	engine := New(&fakeStore{}, WithNow(testNow))

	out, err := engine.Aggregate(context.Background(), &model.Filter{})
	require.NoError(t, err)
	assert.Empty(t, out.Couriers)
	assert.Zero(t, out.BatchesIssued)
}

func TestAggregateIdentityResolutionError(t *testing.T) {
	engine := New(&fakeStore{idsErr: errors.New("connection refused")}, WithNow(testNow))

	_, err := engine.Aggregate(context.Background(), &model.Filter{})
	assert.Error(t, err)
}
