/*
calculator.go - Remuneration formula calculator

PURPOSE:
  Given an actual value, a denominator, a maximum payout and the
  indicator's target configuration, computes the achievement percentage
  and the payout for one indicator.

TARGET SEMANTICS:
  BINARY:
    actual > 0 -> 100% and the full maximum, otherwise 0% and nothing.

  RANGE (e.g. 5-10 sessions):
    achievement = formula(actual, target)
    threshold   = range.min, or the scalar target without a range
    actual >= threshold -> full maximum
    actual <  threshold -> maximum * actual / threshold

  PERCENTAGE_RANGE (e.g. 3-5% of population):
    pct       = formula(actual, denominator)
    threshold = range.min, or the scalar target without a range
    pct >= threshold -> 100%, full maximum
    pct <  threshold -> pct / threshold * 100, proportional payout

  Reaching the floor of a band counts as fully achieved. Performance
  above the floor is not reflected in the percentage.

FACILITY-SPECIFIC TARGETS:
  FormulaConfig.FacilitySpecificTargets[facilityType] replaces both the
  scalar target and the threshold.

INVARIANTS:
  - 0 <= Remuneration <= MaxRemuneration, rounded to 2 places
  - 0 <= DisplayPercentage <= 100, rounded to 2 places
  - Never panics on arithmetic input; zero divisors yield 0
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// CalculationInput is everything needed to score one indicator.
type CalculationInput struct {
	Actual          decimal.Decimal
	Denominator     decimal.Decimal
	MaxRemuneration decimal.Decimal
	Config          FormulaConfig
	Target          TargetSpec
	FacilityType    string
}

// CalculationResult is the outcome for one indicator.
type CalculationResult struct {
	// Remuneration is the payout, within [0, MaxRemuneration].
	Remuneration decimal.Decimal

	// AchievedPercentage is the achievement after threshold handling and
	// the optional percentage cap. It may exceed 100 for RANGE targets.
	AchievedPercentage decimal.Decimal

	// ActualPercentage is the raw formula output.
	ActualPercentage decimal.Decimal

	// DisplayPercentage is what gets stored and averaged: the achievement
	// capped to [0, 100].
	DisplayPercentage decimal.Decimal

	// Target is the effective target after facility-specific overrides.
	Target TargetSpec
}

// Achieved reports whether the indicator reached its threshold.
func (r CalculationResult) Achieved() bool {
	return r.DisplayPercentage.GreaterThanOrEqual(Hundred)
}

// CalculateRemuneration scores one indicator.
func CalculateRemuneration(in CalculationInput) CalculationResult {
	target := EffectiveTarget(in.Config, in.Target, in.FacilityType)
	maxPay := decimal.Max(in.MaxRemuneration, decimal.Zero)

	var achieved, actualPct, ratio decimal.Decimal

	switch in.Config.Type {
	case TargetTypeBinary:
		if in.Actual.IsPositive() {
			achieved, actualPct, ratio = Hundred, Hundred, decimal.NewFromInt(1)
		}

	case TargetTypeRange:
		actualPct = EvaluateFormula(in.Config.Formula, in.Actual, target.Value)
		achieved = actualPct
		threshold := target.Threshold()
		if threshold.IsPositive() && in.Actual.GreaterThanOrEqual(threshold) {
			ratio = decimal.NewFromInt(1)
		} else {
			ratio = SafeDiv(in.Actual, threshold)
		}

	case TargetTypePercentageRange:
		actualPct = EvaluateFormula(in.Config.Formula, in.Actual, in.Denominator)
		achieved = thresholdAchievement(actualPct, target.Threshold())
		ratio = CapPercent(achieved).Div(Hundred)

	default:
		actualPct = EvaluateFormula(in.Config.Formula, in.Actual, in.Denominator)
		achieved = actualPct
		ratio = CapPercent(achieved).Div(Hundred)
	}

	if c := in.Config.MaxPercentage; c != nil && c.IsPositive() {
		achieved = decimal.Min(achieved, *c)
		ratio = decimal.Min(ratio, c.Div(Hundred))
	}

	pay := Clamp(maxPay.Mul(ratio), decimal.Zero, maxPay)

	return CalculationResult{
		Remuneration:       Round(pay),
		AchievedPercentage: Round(achieved),
		ActualPercentage:   Round(actualPct),
		DisplayPercentage:  Round(CapPercent(achieved)),
		Target:             target,
	}
}

// EffectiveTarget applies the config range and facility-specific target
// overrides to a parsed target.
func EffectiveTarget(cfg FormulaConfig, target TargetSpec, facilityType string) TargetSpec {
	if v, ok := cfg.FacilityTarget(facilityType); ok && v.IsPositive() {
		return target.WithValue(v)
	}
	if cfg.Range.Valid() {
		r := *cfg.Range
		target.Range = &r
		if target.Kind != TargetBinary {
			target.Kind = TargetRange
		}
	}
	return target
}

// thresholdAchievement maps a percentage to achievement against a floor:
// at or above the floor is 100, below it is proportional.
func thresholdAchievement(pct, threshold decimal.Decimal) decimal.Decimal {
	if !threshold.IsPositive() {
		return pct
	}
	if pct.GreaterThanOrEqual(threshold) {
		return Hundred
	}
	return pct.Div(threshold).Mul(Hundred)
}
