package remuneration

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/remuneration-engine/generic"
)

// =============================================================================
// DIAGNOSTICS - Injected sink for traces and failures
// =============================================================================

// IndicatorTrace is the intermediate state of one scored indicator.
type IndicatorTrace struct {
	FacilityID        string
	ReportMonth       generic.ReportMonth
	IndicatorCode     string
	TargetType        generic.TargetType
	Actual            decimal.Decimal
	Denominator       decimal.Decimal
	Target            string
	ActualPercentage  decimal.Decimal
	DisplayPercentage decimal.Decimal
	Incentive         decimal.Decimal
	MaxRemuneration   decimal.Decimal
	TBGated           bool
}

// Diagnostics receives what the engine would otherwise log.
// Implementations must be safe for concurrent use.
type Diagnostics interface {
	IndicatorScored(ctx context.Context, trace IndicatorTrace)
	IndicatorSkipped(ctx context.Context, facilityID, indicatorCode string, err error)
	RecordFailed(ctx context.Context, kind, key string, err error)
	RecomputeFinished(ctx context.Context, result *Result, elapsed time.Duration)
}

// NopDiagnostics discards everything.
type NopDiagnostics struct{}

func (NopDiagnostics) IndicatorScored(context.Context, IndicatorTrace)           {}
func (NopDiagnostics) IndicatorSkipped(context.Context, string, string, error)   {}
func (NopDiagnostics) RecordFailed(context.Context, string, string, error)       {}
func (NopDiagnostics) RecomputeFinished(context.Context, *Result, time.Duration) {}

var _ Diagnostics = NopDiagnostics{}
