/*
resolver.go - Indicator resolution

PURPOSE:
  Turns one indicator plus a period's field values into the numbers the
  calculator needs, then applies the business rules that decide what is
  stored and averaged.

RESOLUTION ORDER:
  1. Actual: numerator field value, 0 when missing. Yes/No-coded
     indicators are normalized to 0/1.
  2. Denominator, first match wins:
       fixed scale for the indicator
       denominator field value
       BINARY: expected target count for the facility type
       default population for the facility type
  3. Target: parsed target value, overridden by a positive target field.
  4. Score: generic.CalculateRemuneration.
  5. TB gating: when the gating count is zero, TB-conditional indicators
     show 0%, are paid against their conditional amount and are excluded
     from the facility aggregate.

The resolver is pure. It never touches storage and never logs.
*/
package remuneration

import (
	"github.com/shopspring/decimal"
	"github.com/warp/remuneration-engine/generic"
)

// Resolver resolves indicators against submitted field values.
type Resolver struct {
	Rules Rules
}

func NewResolver(rules Rules) *Resolver {
	return &Resolver{Rules: rules}
}

// Resolution is the scored outcome for one indicator.
type Resolution struct {
	Actual          decimal.Decimal
	Denominator     decimal.Decimal
	Target          generic.TargetSpec
	MaxRemuneration decimal.Decimal

	Calculation generic.CalculationResult

	// DisplayPercentage is the stored and averaged percentage.
	DisplayPercentage decimal.Decimal
	Incentive         decimal.Decimal

	// TBGated is set when the indicator is TB-conditional and the gating
	// count is zero. Gated indicators are excluded from the aggregate.
	TBGated bool
}

func (r Resolution) Status() Status { return StatusFor(r.DisplayPercentage) }

// GatingCount returns the TB gating field value, 0 when not submitted.
func (r *Resolver) GatingCount(values FieldIndex) decimal.Decimal {
	v, ok := values.GetByCode(r.Rules.TBGatingField)
	if !ok {
		return decimal.Zero
	}
	return v.Numeric()
}

// Resolve scores one indicator for a facility type.
func (r *Resolver) Resolve(ind Indicator, facilityType string, values FieldIndex) Resolution {
	cfg := ind.FormulaConfig
	if ind.TargetType.Valid() {
		cfg.Type = ind.TargetType
	}

	target := generic.ParseTarget(ind.TargetValue, cfg.TargetValue)
	if tv, ok := values.Get(ind.TargetFieldID); ok {
		if n := tv.Numeric(); n.IsPositive() {
			target.Value = n
		}
	}

	res := Resolution{
		Actual:      r.actual(ind, values),
		Denominator: r.denominator(ind, cfg, target, facilityType, values),
	}

	maxPay := decimal.Zero
	if ind.Remuneration != nil {
		maxPay = ind.Remuneration.BaseAmount
	}

	if r.Rules.IsTBConditional(ind.Code) && r.GatingCount(values).IsZero() {
		res.TBGated = true
		if ind.Remuneration != nil && ind.Remuneration.ConditionalAmount != nil {
			maxPay = *ind.Remuneration.ConditionalAmount
		}
	}
	res.MaxRemuneration = maxPay

	res.Calculation = generic.CalculateRemuneration(generic.CalculationInput{
		Actual:          res.Actual,
		Denominator:     res.Denominator,
		MaxRemuneration: maxPay,
		Config:          cfg,
		Target:          target,
		FacilityType:    facilityType,
	})
	res.Target = res.Calculation.Target
	res.Incentive = res.Calculation.Remuneration
	res.DisplayPercentage = res.Calculation.DisplayPercentage
	if res.TBGated {
		res.DisplayPercentage = decimal.Zero
	}
	return res
}

func (r *Resolver) actual(ind Indicator, values FieldIndex) decimal.Decimal {
	v, ok := values.Get(ind.NumeratorFieldID)
	if !ok {
		return decimal.Zero
	}
	if r.Rules.IsYesNo(ind.Code) {
		return v.YesNo()
	}
	return v.Numeric()
}

func (r *Resolver) denominator(ind Indicator, cfg generic.FormulaConfig, target generic.TargetSpec, facilityType string, values FieldIndex) decimal.Decimal {
	if scale, ok := r.Rules.fixedScale(ind.Code); ok {
		return scale
	}
	if v, ok := values.Get(ind.DenominatorFieldID); ok {
		return v.Numeric()
	}
	if cfg.Type == generic.TargetTypeBinary {
		if n, ok := r.Rules.binaryTargetCount(ind.Code, facilityType); ok {
			return n
		}
		return generic.EffectiveTarget(cfg, target, facilityType).Value
	}
	return r.Rules.population(facilityType)
}
