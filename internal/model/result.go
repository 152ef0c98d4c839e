package model

import "time"

// Family identifies a metric family served by the pipeline.
type Family string

const (
	FamilyUTR      Family = "utr"
	FamilyCouriers Family = "couriers"
	FamilyValues   Family = "values"
)

// Valid reports whether f names a known metric family.
func (f Family) Valid() bool {
	switch f {
	case FamilyUTR, FamilyCouriers, FamilyValues:
		return true
	}
	return false
}

// TierName identifies which fallback level produced a result.
type TierName string

const (
	TierPrimary TierName = "primary"
	TierView    TierName = "view"
	TierRaw     TierName = "raw"
)

// UTRSummary is the normalized UTR family payload: total completed orders,
// total scheduled-available hours, and their ratio.
type UTRSummary struct {
	TotalOrders int     `json:"total_orders"`
	TotalHours  float64 `json:"total_hours"`
	UTR         float64 `json:"utr"`
}

// ValuesSummary is the normalized financial family payload.
type ValuesSummary struct {
	GrossValue   float64 `json:"gross_value"`
	DeliveryFees float64 `json:"delivery_fees"`
	Orders       int     `json:"orders"`
}

// FamilyResult is the single normalized shape the orchestrator returns for
// any family from any tier. Exactly one of UTR, Couriers, Values is set,
// matching the Family field.
type FamilyResult struct {
	Family   Family             `json:"family"`
	Tier     TierName           `json:"tier"`
	UTR      *UTRSummary        `json:"utr,omitempty"`
	Couriers []CourierAggregate `json:"couriers,omitempty"`
	Values   *ValuesSummary     `json:"values,omitempty"`
	RowCount int                `json:"row_count"`
}

// ErrorInfo is the consumer-facing error shape. Message is always short and
// human-readable; raw backend payloads never pass through it.
type ErrorInfo struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// FetchResult is the consumer contract: data or error, never both.
type FetchResult struct {
	Data  *FamilyResult `json:"data"`
	Error *ErrorInfo    `json:"error"`
}

// TierAttempt records one tier's outcome within a single orchestrated fetch.
// Used for logging and the monitoring snapshot only, never persisted.
type TierAttempt struct {
	RequestID string        `json:"request_id"`
	Family    Family        `json:"family"`
	Tier      TierName      `json:"tier"`
	Succeeded bool          `json:"succeeded"`
	Rows      int           `json:"rows"`
	Err       string        `json:"err,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}
