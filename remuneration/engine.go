/*
engine.go - Remuneration orchestrator

PURPOSE:
  Recomputes every derived record for one (facility, report month)
  inside a single transaction.

FLOW:
  1. Load facility                     (missing -> fatal, rollback)
  2. Load indicators for its type       (no config -> skipped, recorded)
  3. Load and index field values
  4. Per indicator: resolve, score, upsert FacilityRecord
                                        (failure -> recorded, continue)
  5. Facility remuneration = sum of incentives
  6. Performance = mean of display percentages, TB-gated excluded
  7. Per hw/asha worker: allocated * performance / 100, upsert
                                        (failure -> recorded, continue)
  8. Upsert Calculation                 (failure -> fatal, rollback)

  Ordering matters only between phases: the aggregate is computed after
  every indicator, worker payouts after the aggregate.

FAILURES:
  Fatal failures return a Result with Success=false and zero totals
  together with the error. Per-record failures are visible in
  Result.Indicators / Result.Workers, never only in logs.
*/
package remuneration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/remuneration-engine/generic"
)

// =============================================================================
// RESULT - Summary plus per-record outcome fold
// =============================================================================

// IndicatorOutcome is what happened to one indicator.
type IndicatorOutcome struct {
	IndicatorID   string
	IndicatorCode string
	Record        *FacilityRecord // nil when skipped
	Skipped       bool
	Excluded      bool // left out of the aggregate (TB-gated)
	Err           error
}

// WorkerOutcome is what happened to one worker.
type WorkerOutcome struct {
	WorkerID string
	Record   *WorkerRecord
	Err      error
}

// Result is the outcome of one recompute.
type Result struct {
	Success     bool
	Error       string
	FacilityID  string
	ReportMonth generic.ReportMonth
	Summary     Calculation
	Indicators  []IndicatorOutcome
	Workers     []WorkerOutcome
}

// Failures returns every per-record error.
func (r *Result) Failures() []error {
	var errs []error
	for _, o := range r.Indicators {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	for _, o := range r.Workers {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errs
}

// Indicator returns the outcome for an indicator code.
func (r *Result) Indicator(code string) (IndicatorOutcome, bool) {
	for _, o := range r.Indicators {
		if o.IndicatorCode == code {
			return o, true
		}
	}
	return IndicatorOutcome{}, false
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store    TxStore
	resolver *Resolver
	diag     Diagnostics
	now      func() time.Time
	newID    func() string
	hooks    []func(context.Context, *Result)
}

type Option func(*Engine)

func WithDiagnostics(d Diagnostics) Option {
	return func(e *Engine) {
		if d != nil {
			e.diag = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// WithRecomputeHook registers fn to run after every successful recompute,
// once the transaction has committed.
func WithRecomputeHook(fn func(context.Context, *Result)) Option {
	return func(e *Engine) { e.hooks = append(e.hooks, fn) }
}

func NewEngine(store TxStore, rules Rules, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		resolver: NewResolver(rules),
		diag:     NopDiagnostics{},
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Resolver() *Resolver { return e.resolver }

// Recompute scores a facility for a month and persists every derived record.
func (e *Engine) Recompute(ctx context.Context, facilityID string, month generic.ReportMonth) (*Result, error) {
	start := e.now()
	var res *Result

	err := e.store.WithTx(ctx, func(s Store) error {
		res = &Result{FacilityID: facilityID, ReportMonth: month}
		return e.recompute(ctx, s, res)
	})
	if err != nil {
		failed := &Result{
			Success:     false,
			Error:       err.Error(),
			FacilityID:  facilityID,
			ReportMonth: month,
			Summary:     Calculation{FacilityID: facilityID, ReportMonth: month},
		}
		e.diag.RecomputeFinished(ctx, failed, e.now().Sub(start))
		return failed, err
	}

	res.Success = true
	e.diag.RecomputeFinished(ctx, res, e.now().Sub(start))
	for _, hook := range e.hooks {
		hook(ctx, res)
	}
	return res, nil
}

func (e *Engine) recompute(ctx context.Context, s Store, res *Result) error {
	facility, err := s.GetFacility(ctx, res.FacilityID)
	if err != nil {
		return fmt.Errorf("load facility: %w", err)
	}
	facilityType := facility.FacilityTypeName

	indicators, err := s.ListIndicators(ctx, facilityType)
	if err != nil {
		return fmt.Errorf("load indicators: %w", err)
	}

	values, err := s.ListFieldValues(ctx, res.FacilityID, res.ReportMonth)
	if err != nil {
		return fmt.Errorf("load field values: %w", err)
	}
	index := NewFieldIndex(values)
	now := e.now().UTC()

	// Phase 1: indicators
	facilityTotal := decimal.Zero
	var scored []decimal.Decimal

	for _, ind := range indicators {
		if ind.Remuneration == nil {
			skipErr := &generic.IndicatorError{
				IndicatorID: ind.ID, Code: ind.Code, Stage: "resolve",
				Err: generic.ErrMissingRemunerationConfig,
			}
			res.Indicators = append(res.Indicators, IndicatorOutcome{
				IndicatorID: ind.ID, IndicatorCode: ind.Code, Skipped: true, Err: skipErr,
			})
			e.diag.IndicatorSkipped(ctx, res.FacilityID, ind.Code, skipErr)
			continue
		}

		outcome := IndicatorOutcome{IndicatorID: ind.ID, IndicatorCode: ind.Code}

		resolution, calcErr := e.resolve(ind, facilityType, index)
		if calcErr != nil {
			outcome.Err = &generic.IndicatorError{IndicatorID: ind.ID, Code: ind.Code, Stage: "calculate", Err: calcErr}
			e.diag.RecordFailed(ctx, "indicator", ind.Code, outcome.Err)
		} else {
			e.diag.IndicatorScored(ctx, traceOf(res, ind, resolution))
		}

		rec := FacilityRecord{
			ID:                 e.newID(),
			FacilityID:         res.FacilityID,
			ReportMonth:        res.ReportMonth,
			IndicatorID:        ind.ID,
			IndicatorCode:      ind.Code,
			ActualValue:        resolution.Actual,
			TargetValue:        resolution.Target.Value,
			AchievedPercentage: resolution.DisplayPercentage,
			IncentiveAmount:    resolution.Incentive,
			MaxRemuneration:    resolution.MaxRemuneration,
			Status:             resolution.Status(),
			UpdatedAt:          now,
		}
		outcome.Record = &rec

		if err := s.UpsertFacilityRecord(ctx, rec); err != nil {
			outcome.Err = &generic.IndicatorError{IndicatorID: ind.ID, Code: ind.Code, Stage: "persist", Err: err}
			e.diag.RecordFailed(ctx, "facility_record", ind.Code, outcome.Err)
		}

		facilityTotal = facilityTotal.Add(rec.IncentiveAmount)
		if resolution.TBGated {
			outcome.Excluded = true
		} else {
			scored = append(scored, rec.AchievedPercentage)
		}
		res.Indicators = append(res.Indicators, outcome)
	}

	// Phase 2: aggregate
	performance := average(scored)

	// Phase 3: workers
	workers, err := s.ListWorkers(ctx, res.FacilityID)
	if err != nil {
		return fmt.Errorf("load workers: %w", err)
	}

	workerTotal := decimal.Zero
	hwCount, ashaCount := 0, 0
	for _, w := range workers {
		if !w.WorkerType.Scored() {
			continue
		}
		if w.WorkerType == WorkerHW {
			hwCount++
		} else {
			ashaCount++
		}

		rec := WorkerRecord{
			ID:                    e.newID(),
			WorkerID:              w.ID,
			FacilityID:            res.FacilityID,
			ReportMonth:           res.ReportMonth,
			WorkerType:            w.WorkerType,
			AllocatedAmount:       w.AllocatedAmount,
			PerformancePercentage: performance,
			CalculatedAmount:      WorkerPayout(w.AllocatedAmount, performance),
			UpdatedAt:             now,
		}
		outcome := WorkerOutcome{WorkerID: w.ID, Record: &rec}
		if err := s.UpsertWorkerRecord(ctx, rec); err != nil {
			outcome.Err = fmt.Errorf("worker %s: %w", w.ID, err)
			e.diag.RecordFailed(ctx, "worker_record", w.ID, outcome.Err)
		}
		workerTotal = workerTotal.Add(rec.CalculatedAmount)
		res.Workers = append(res.Workers, outcome)
	}

	// Phase 4: summary
	res.Summary = Calculation{
		ID:                    e.newID(),
		FacilityID:            res.FacilityID,
		ReportMonth:           res.ReportMonth,
		PerformancePercentage: performance,
		FacilityRemuneration:  generic.Round(facilityTotal),
		WorkerRemuneration:    generic.Round(workerTotal),
		GrandTotal:            generic.Round(facilityTotal.Add(workerTotal)),
		HWCount:               hwCount,
		ASHACount:             ashaCount,
		CalculatedAt:          now,
	}
	if err := s.UpsertCalculation(ctx, res.Summary); err != nil {
		return fmt.Errorf("upsert calculation: %w", err)
	}
	return nil
}

// resolve scores an indicator, converting a panic into a zero-payout
// resolution and an error.
func (e *Engine) resolve(ind Indicator, facilityType string, index FieldIndex) (res Resolution, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = Resolution{}
			if ind.Remuneration != nil {
				res.MaxRemuneration = ind.Remuneration.BaseAmount
			}
			err = fmt.Errorf("%w: %v", generic.ErrCalculationPanic, r)
		}
	}()
	return e.resolver.Resolve(ind, facilityType, index), nil
}

// WorkerPayout is allocated * performance / 100, rounded to 2 places.
func WorkerPayout(allocated, performance decimal.Decimal) decimal.Decimal {
	return generic.Round(allocated.Mul(performance).Div(generic.Hundred))
}

func average(pcts []decimal.Decimal) decimal.Decimal {
	if len(pcts) == 0 {
		return decimal.Zero
	}
	return generic.Round(decimal.Sum(decimal.Zero, pcts...).Div(decimal.NewFromInt(int64(len(pcts)))))
}

func traceOf(res *Result, ind Indicator, r Resolution) IndicatorTrace {
	return IndicatorTrace{
		FacilityID:        res.FacilityID,
		ReportMonth:       res.ReportMonth,
		IndicatorCode:     ind.Code,
		TargetType:        ind.TargetType,
		Actual:            r.Actual,
		Denominator:       r.Denominator,
		Target:            r.Target.String(),
		ActualPercentage:  r.Calculation.ActualPercentage,
		DisplayPercentage: r.DisplayPercentage,
		Incentive:         r.Incentive,
		MaxRemuneration:   r.MaxRemuneration,
		TBGated:           r.TBGated,
	}
}
