package aggregate

import (
	"math"
	"time"

	"github.com/fleetops/kpi-cli/internal/model"
)

// AdherencePct computes delivered-hours over expected-hours as a percentage.
// Delivered hours are the completed-trip ratio applied to the scheduled
// available hours. All zero denominators yield 0, never NaN or Inf.
func AdherencePct(completed, accepted int, availableSeconds int64) float64 {
	if accepted == 0 || availableSeconds == 0 {
		return 0
	}
	availableHours := float64(availableSeconds) / 3600.0
	deliveredHours := (float64(completed) / float64(accepted)) * availableHours
	expectedHours := availableHours
	pct := deliveredHours / expectedHours * 100
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return 0
	}
	return pct
}

// RejectionPct computes rejected over offered as a percentage, with the
// offered=0 case pinned to 0.
func RejectionPct(rejected, offered int) float64 {
	if offered == 0 {
		return 0
	}
	return float64(rejected) / float64(offered) * 100
}

// DaysSinceActive counts whole calendar days between lastActive and now.
// Both sides are truncated to their calendar date first so partial days and
// timezone drift cannot skew the count.
func DaysSinceActive(lastActive, now time.Time) int {
	last := time.Date(lastActive.Year(), lastActive.Month(), lastActive.Day(), 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	days := int(today.Sub(last).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Finalize computes the derived fields on a folded accumulator.
func Finalize(agg *model.CourierAggregate, now time.Time) {
	agg.AdherencePct = AdherencePct(agg.Completed, agg.Accepted, agg.AvailableSeconds)
	agg.RejectionPct = RejectionPct(agg.Rejected, agg.Offered)
	if agg.LastActive != nil {
		agg.DaysSinceActive = DaysSinceActive(*agg.LastActive, now)
	}
}

// UTRFromAggregates reduces courier aggregates to the UTR family summary:
// completed orders per scheduled-available hour.
func UTRFromAggregates(aggs []model.CourierAggregate) *model.UTRSummary {
	s := &model.UTRSummary{}
	var totalSeconds int64
	for _, a := range aggs {
		s.TotalOrders += a.Completed
		totalSeconds += a.AvailableSeconds
	}
	s.TotalHours = float64(totalSeconds) / 3600.0
	if s.TotalHours > 0 {
		s.UTR = float64(s.TotalOrders) / s.TotalHours
	}
	return s
}

// ValuesFromAggregates reduces courier aggregates to the financial summary.
func ValuesFromAggregates(aggs []model.CourierAggregate) *model.ValuesSummary {
	s := &model.ValuesSummary{}
	for _, a := range aggs {
		s.GrossValue += a.GrossValue
		s.DeliveryFees += a.DeliveryFees
		s.Orders += a.Completed
	}
	return s
}
