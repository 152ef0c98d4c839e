package fetch

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/fleetops/kpi-cli/internal/model"
)

// responseShape is the sum of shapes the primary endpoint is known to
// return: a bare object, a bare array, or an object wrapping an array plus
// a count. decodeShape matches them exhaustively in that order.
type responseShape struct {
	object  json.RawMessage
	array   []json.RawMessage
	count   *int
	wrapped bool
}

func decodeShape(raw json.RawMessage) (*responseShape, error) {
	trimmed := trimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return &responseShape{}, nil
	}

	switch trimmed[0] {
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return nil, eris.Wrap(err, "fetch: decode array response")
		}
		return &responseShape{array: arr}, nil
	case '{':
		// Wrapped shape first: {"rows": [...], "count": n}.
		var wrapper struct {
			Rows  []json.RawMessage `json:"rows"`
			Count *int              `json:"count"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err == nil && wrapper.Rows != nil {
			return &responseShape{array: wrapper.Rows, count: wrapper.Count, wrapped: true}, nil
		}
		return &responseShape{object: trimmed}, nil
	}
	return nil, eris.Errorf("fetch: unrecognized response shape starting with %q", trimmed[0])
}

func trimSpace(raw json.RawMessage) json.RawMessage {
	start, end := 0, len(raw)
	for start < end && isSpace(raw[start]) {
		start++
	}
	for end > start && isSpace(raw[end-1]) {
		end--
	}
	return raw[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// Normalize converts a raw primary-endpoint response into the canonical
// result for the family. An empty-but-structurally-valid response is a
// success with zero rows, never an error.
func Normalize(fam model.Family, raw json.RawMessage) (*model.FamilyResult, error) {
	shape, err := decodeShape(raw)
	if err != nil {
		return nil, err
	}

	switch fam {
	case model.FamilyUTR:
		return normalizeUTR(shape)
	case model.FamilyCouriers:
		return normalizeCouriers(shape)
	case model.FamilyValues:
		return normalizeValues(shape)
	}
	return nil, eris.Errorf("fetch: unknown family %q", fam)
}

func normalizeUTR(shape *responseShape) (*model.FamilyResult, error) {
	res := &model.FamilyResult{Family: model.FamilyUTR, Tier: model.TierPrimary}

	if shape.object != nil {
		var s model.UTRSummary
		if err := json.Unmarshal(shape.object, &s); err != nil {
			return nil, eris.Wrap(err, "fetch: decode utr object")
		}
		res.UTR = &s
		res.RowCount = 1
		return res, nil
	}

	// Array / wrapped: sum the per-row totals and re-derive the ratio.
	sum := &model.UTRSummary{}
	for _, item := range shape.array {
		var s model.UTRSummary
		if err := json.Unmarshal(item, &s); err != nil {
			return nil, eris.Wrap(err, "fetch: decode utr row")
		}
		sum.TotalOrders += s.TotalOrders
		sum.TotalHours += s.TotalHours
	}
	if sum.TotalHours > 0 {
		sum.UTR = float64(sum.TotalOrders) / sum.TotalHours
	}
	res.UTR = sum
	res.RowCount = len(shape.array)
	return res, nil
}

func normalizeCouriers(shape *responseShape) (*model.FamilyResult, error) {
	res := &model.FamilyResult{Family: model.FamilyCouriers, Tier: model.TierPrimary}

	if shape.object != nil {
		var c model.CourierAggregate
		if err := json.Unmarshal(shape.object, &c); err != nil {
			return nil, eris.Wrap(err, "fetch: decode courier object")
		}
		res.Couriers = []model.CourierAggregate{c}
		res.RowCount = 1
		return res, nil
	}

	couriers := make([]model.CourierAggregate, 0, len(shape.array))
	for _, item := range shape.array {
		var c model.CourierAggregate
		if err := json.Unmarshal(item, &c); err != nil {
			return nil, eris.Wrap(err, "fetch: decode courier row")
		}
		couriers = append(couriers, c)
	}
	res.Couriers = couriers
	res.RowCount = len(couriers)
	if shape.count != nil {
		res.RowCount = *shape.count
	}
	return res, nil
}

func normalizeValues(shape *responseShape) (*model.FamilyResult, error) {
	res := &model.FamilyResult{Family: model.FamilyValues, Tier: model.TierPrimary}

	if shape.object != nil {
		var v model.ValuesSummary
		if err := json.Unmarshal(shape.object, &v); err != nil {
			return nil, eris.Wrap(err, "fetch: decode values object")
		}
		res.Values = &v
		res.RowCount = 1
		return res, nil
	}

	sum := &model.ValuesSummary{}
	for _, item := range shape.array {
		var v model.ValuesSummary
		if err := json.Unmarshal(item, &v); err != nil {
			return nil, eris.Wrap(err, "fetch: decode values row")
		}
		sum.GrossValue += v.GrossValue
		sum.DeliveryFees += v.DeliveryFees
		sum.Orders += v.Orders
	}
	res.Values = sum
	res.RowCount = len(shape.array)
	return res, nil
}
