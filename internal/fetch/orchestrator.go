// Package fetch orchestrates the tiered retrieval pipeline: primary
// aggregation endpoint, materialized-view tier, raw aggregation tier.
// Tiers run strictly in order, one active at a time; the first usable
// result wins.
package fetch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fleetops/kpi-cli/internal/aggregate"
	"github.com/fleetops/kpi-cli/internal/classify"
	"github.com/fleetops/kpi-cli/internal/model"
	"github.com/fleetops/kpi-cli/internal/viewtier"
	"github.com/fleetops/kpi-cli/pkg/edge"
)

// Recorder receives pipeline observability events.
type Recorder interface {
	RecordAttempt(a model.TierAttempt)
	RecordDegraded(fam model.Family, tier model.TierName)
	RecordBatchFailures(fam model.Family, issued, failed int)
}

// NopRecorder discards all events.
type NopRecorder struct{}

func (NopRecorder) RecordAttempt(model.TierAttempt)             {}
func (NopRecorder) RecordDegraded(model.Family, model.TierName) {}
func (NopRecorder) RecordBatchFailures(model.Family, int, int)  {}

// Orchestrator runs the tier cascade for one metric family.
type Orchestrator struct {
	family   model.Family
	tiers    []Tier
	recorder Recorder
}

// NewOrchestrator wires the standard three-tier cascade for a family.
func NewOrchestrator(fam model.Family, client edge.Client, reader *viewtier.Reader, engine *aggregate.Engine, tuning *Tuning, recorder Recorder) *Orchestrator {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	o := &Orchestrator{family: fam, recorder: recorder}
	o.tiers = []Tier{
		&primaryTier{client: client, family: fam, settings: tuning.Settings(fam)},
		&viewTier{reader: reader, family: fam},
		&rawTier{engine: engine, family: fam, onBatchStats: func(issued, failed int) {
			recorder.RecordBatchFailures(fam, issued, failed)
		}},
	}
	return o
}

// NewOrchestratorWithTiers builds an orchestrator over an explicit tier
// list. Used by tests and by callers that need a trimmed cascade.
func NewOrchestratorWithTiers(fam model.Family, recorder Recorder, tiers ...Tier) *Orchestrator {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Orchestrator{family: fam, tiers: tiers, recorder: recorder}
}

// Fetch runs the cascade and returns one normalized result or an error.
// Error contract:
//   - ErrRetryRateLimited: throttled, retry later, no fallback was tried.
//   - ErrRetryServer: server error and fallback produced nothing usable.
//   - *UnavailableError: the remote function does not exist and fallback
//     produced nothing usable. Terminal.
//   - anything else: the primary endpoint's original error, unchanged.
func (o *Orchestrator) Fetch(ctx context.Context, f *model.Filter) (*model.FamilyResult, error) {
	if len(o.tiers) == 0 {
		return nil, eris.Errorf("fetch: %s orchestrator has no tiers", o.family)
	}

	requestID := uuid.NewString()

	primary := o.tiers[0]
	res, _, err := o.attempt(ctx, requestID, primary, f)
	if err == nil {
		return res, nil
	}

	kind := classify.Classify(err)
	zap.L().Warn("primary endpoint failed",
		zap.String("request_id", requestID),
		zap.String("family", string(o.family)),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)

	switch kind {
	case classify.KindRateLimited:
		// Fallback tiers hit the same backend and would be throttled too.
		return nil, ErrRetryRateLimited

	case classify.KindServerError, classify.KindFunctionMissing:
		if res := o.fallback(ctx, requestID, f); res != nil {
			return res, nil
		}
		if kind == classify.KindServerError {
			return nil, ErrRetryServer
		}
		return nil, &UnavailableError{Family: string(o.family)}

	default:
		return nil, err
	}
}

// fallback walks the remaining tiers in order and returns the first usable
// result. A fallback tier's own failure is caught and logged here so it can
// never mask the primary error's classification.
func (o *Orchestrator) fallback(ctx context.Context, requestID string, f *model.Filter) *model.FamilyResult {
	for _, tier := range o.tiers[1:] {
		res, usable, err := o.attempt(ctx, requestID, tier, f)
		if err != nil {
			zap.L().Warn("fallback tier failed",
				zap.String("request_id", requestID),
				zap.String("family", string(o.family)),
				zap.String("tier", string(tier.Name())),
				zap.Error(err),
			)
			continue
		}
		if usable {
			o.recorder.RecordDegraded(o.family, tier.Name())
			return res
		}
	}
	return nil
}

func (o *Orchestrator) attempt(ctx context.Context, requestID string, tier Tier, f *model.Filter) (*model.FamilyResult, bool, error) {
	start := time.Now()
	res, usable, err := tier.Attempt(ctx, f)

	attempt := model.TierAttempt{
		RequestID: requestID,
		Family:    o.family,
		Tier:      tier.Name(),
		Succeeded: err == nil && usable,
		Elapsed:   time.Since(start),
	}
	if res != nil {
		attempt.Rows = res.RowCount
	}
	if err != nil {
		attempt.Err = err.Error()
	}
	o.recorder.RecordAttempt(attempt)

	return res, usable, err
}
