package model

import "time"

// CourierActivityRow is one unaggregated per-period row from the detail
// table. AvailableTime arrives as an "HH:MM:SS" duration string.
type CourierActivityRow struct {
	CourierID     string     `json:"courier_id"`
	Name          string     `json:"name"`
	Region        string     `json:"region"`
	Date          *time.Time `json:"date"`
	Offered       int        `json:"offered"`
	Accepted      int        `json:"accepted"`
	Rejected      int        `json:"rejected"`
	Completed     int        `json:"completed"`
	AvailableTime string     `json:"available_time"`
	GrossValue    float64    `json:"gross_value"`
	DeliveryFee   float64    `json:"delivery_fee"`
}

// CourierProfile is the slowly-changing identity record for a courier.
type CourierProfile struct {
	CourierID   string `json:"courier_id"`
	Name        string `json:"name"`
	Region      string `json:"region"`
	VehicleType string `json:"vehicle_type"`
}

// ViewRow is one pre-aggregated row from the materialized view.
type ViewRow struct {
	CourierID        string     `json:"courier_id"`
	Name             string     `json:"name"`
	Region           string     `json:"region"`
	SubRegion        string     `json:"sub_region"`
	Offered          int        `json:"offered"`
	Accepted         int        `json:"accepted"`
	Rejected         int        `json:"rejected"`
	Completed        int        `json:"completed"`
	AvailableSeconds int64      `json:"available_seconds"`
	GrossValue       float64    `json:"gross_value"`
	DeliveryFees     float64    `json:"delivery_fees"`
	LastActive       *time.Time `json:"last_active"`
}

// CourierAggregate is the per-courier result shape every tier normalizes to.
// Counters are accumulated across all matching rows; derived fields are
// computed once folding is complete.
type CourierAggregate struct {
	CourierID        string     `json:"courier_id"`
	Name             string     `json:"name"`
	Region           string     `json:"region"`
	VehicleType      string     `json:"vehicle_type,omitempty"`
	Offered          int        `json:"offered"`
	Accepted         int        `json:"accepted"`
	Rejected         int        `json:"rejected"`
	Completed        int        `json:"completed"`
	AvailableSeconds int64      `json:"available_seconds"`
	GrossValue       float64    `json:"gross_value,omitempty"`
	DeliveryFees     float64    `json:"delivery_fees,omitempty"`
	AdherencePct     float64    `json:"adherence_pct"`
	RejectionPct     float64    `json:"rejection_pct"`
	FirstActive      *time.Time `json:"first_active,omitempty"`
	LastActive       *time.Time `json:"last_active,omitempty"`
	DaysSinceActive  int        `json:"days_since_active"`
}
