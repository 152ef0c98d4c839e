// Package store implements the direct table reads behind the view and raw
// fallback tiers.
package store

import (
	"context"

	"github.com/fleetops/kpi-cli/internal/model"
)

// WeekYear is one entry of the available-weeks dimension list.
type WeekYear struct {
	Year int `json:"year"`
	Week int `json:"week"`
}

// Store defines the read operations the fallback tiers need.
type Store interface {
	// ViewRows reads per-courier totals from the daily rollup view,
	// applying the request's dimension and date filters.
	ViewRows(ctx context.Context, f *model.Filter) ([]model.ViewRow, error)

	// SubRegionMembers returns the fine-grained sub-regions belonging to a
	// composite region grouping. Empty when the name is not a grouping.
	SubRegionMembers(ctx context.Context, group string) ([]string, error)

	// CourierProfiles reads the identity records for the given courier ids.
	// The view does not carry vehicle type, so the view tier joins it
	// in-memory from this lookup; the raw tier seeds accumulators from it.
	CourierProfiles(ctx context.Context, courierIDs []string) ([]model.CourierProfile, error)

	// DistinctCourierIDs resolves the identity set matching the non-volume
	// filters, capped at rowCap rows.
	DistinctCourierIDs(ctx context.Context, f *model.Filter, rowCap int) ([]string, error)

	// CourierActivityRows reads unaggregated detail rows for the given
	// courier ids, capped at rowCap rows. Callers batch the id list.
	CourierActivityRows(ctx context.Context, courierIDs []string, f *model.Filter, rowCap int) ([]model.CourierActivityRow, error)

	// Regions lists the distinct regions present in the detail table.
	Regions(ctx context.Context) ([]string, error)

	// WeeksYears lists the distinct (year, week) pairs with any activity.
	WeeksYears(ctx context.Context) ([]WeekYear, error)

	Close()
}
