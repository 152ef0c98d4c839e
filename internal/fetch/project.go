package fetch

import (
	"time"

	"github.com/fleetops/kpi-cli/internal/model"
)

// Project builds the parameter map for a primary-endpoint call: only the
// allow-listed keys, and only when the filter actually carries a value.
// Absent dimensions are omitted entirely, never sent as empty strings.
func Project(f *model.Filter, allowed []string) map[string]any {
	full := map[string]any{}
	if f.Year > 0 {
		full["year"] = f.Year
	}
	if f.Week > 0 {
		full["week"] = f.Week
	}
	if !f.Regions.IsZero() {
		full["regions"] = []string(f.Regions)
	}
	if !f.SubRegions.IsZero() {
		full["sub_regions"] = []string(f.SubRegions)
	}
	if !f.Origins.IsZero() {
		full["origins"] = []string(f.Origins)
	}
	if f.Shift != "" {
		full["shift"] = f.Shift
	}
	if f.StartDate != nil {
		full["start_date"] = f.StartDate.Format(time.DateOnly)
	}
	if f.EndDate != nil {
		full["end_date"] = f.EndDate.Format(time.DateOnly)
	}
	if f.OrgID != "" {
		full["org_id"] = f.OrgID
	}
	if f.Search != "" {
		full["search"] = f.Search
	}

	out := make(map[string]any, len(full))
	for _, key := range allowed {
		if v, ok := full[key]; ok {
			out[key] = v
		}
	}
	return out
}
