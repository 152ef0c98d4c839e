package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// FlexStrings is a dimension value that backends and callers represent as
// either a single string or a list. Both shapes decode to the same set.
type FlexStrings []string

// UnmarshalJSON accepts "north" and ["north","south"] alike.
func (f *FlexStrings) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*f = nil
		} else {
			*f = FlexStrings{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("model: dimension value must be string or string list: %w", err)
	}
	*f = FlexStrings(many)
	return nil
}

// IsZero reports whether the dimension carries no values.
func (f FlexStrings) IsZero() bool { return len(f) == 0 }

// Filter is the sparse dimension payload attached to every fetch request.
// All fields are optional; zero values mean "not filtered on this axis".
type Filter struct {
	Year       int         `json:"year,omitempty"`
	Week       int         `json:"week,omitempty"` // ISO week number
	Regions    FlexStrings `json:"regions,omitempty"`
	SubRegions FlexStrings `json:"sub_regions,omitempty"`
	Origins    FlexStrings `json:"origins,omitempty"`
	Shift      string      `json:"shift,omitempty"`
	StartDate  *time.Time  `json:"start_date,omitempty"`
	EndDate    *time.Time  `json:"end_date,omitempty"`
	OrgID      string      `json:"org_id,omitempty"`
	Search     string      `json:"search,omitempty"`

	// FirstActiveStart/End form an independent window on a courier's earliest
	// observed activity. It excludes couriers after aggregation, not rows
	// before it.
	FirstActiveStart *time.Time `json:"first_active_start,omitempty"`
	FirstActiveEnd   *time.Time `json:"first_active_end,omitempty"`
}

// HasExplicitDates reports whether the caller supplied a literal date range.
// Explicit dates always beat the (year, week) pair for row selection.
func (f *Filter) HasExplicitDates() bool {
	return f.StartDate != nil && f.EndDate != nil
}

// Window resolves the effective date window for row selection.
// Precedence: explicit start/end, then (year, week), then year alone as the
// full calendar year. ok is false when no date axis is present at all.
func (f *Filter) Window() (start, end time.Time, ok bool) {
	if f.HasExplicitDates() {
		return *f.StartDate, *f.EndDate, true
	}
	if f.Year > 0 && f.Week > 0 {
		start = ISOWeekStart(f.Year, f.Week)
		return start, start.AddDate(0, 0, 6), true
	}
	if f.Year > 0 {
		start = time.Date(f.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, time.Date(f.Year, time.December, 31, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, time.Time{}, false
}

// ISOWeekStart returns the Monday of the given ISO week.
func ISOWeekStart(year, week int) time.Time {
	// Jan 4 is always inside ISO week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	week1Monday := jan4.AddDate(0, 0, 1-weekday)
	return week1Monday.AddDate(0, 0, (week-1)*7)
}
