package remuneration

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RULES - Facility-type indexed constants
// =============================================================================

// Rules holds the constant tables indicator resolution depends on.
// Adding a facility type or a special-cased indicator is a change to
// this value, not to the resolver. Indicator codes are matched exactly
// first, then by their base code (the part before the first "_"), so
// "TF001_PHC" picks up rules keyed by "TF001".
type Rules struct {
	// DefaultPopulation is the last-resort denominator per facility type.
	DefaultPopulation map[string]decimal.Decimal

	// FallbackPopulation is used for facility types missing from DefaultPopulation.
	FallbackPopulation decimal.Decimal

	// FixedScale forces the denominator for an indicator (e.g. a /5
	// satisfaction score), regardless of submitted values.
	FixedScale map[string]decimal.Decimal

	// BinaryTargetCounts is the expected count per indicator and facility
	// type, used as denominator for binary indicators.
	BinaryTargetCounts map[string]map[string]decimal.Decimal

	// BinaryTargetDefaults is the expected count when the facility type
	// has no entry in BinaryTargetCounts.
	BinaryTargetDefaults map[string]decimal.Decimal

	// YesNoIndicators are coded "1"/"0" and normalized accordingly.
	YesNoIndicators []string

	// TBConditionalIndicators are paid their conditional amount, shown as
	// 0% and excluded from the aggregate while the gating count is zero.
	TBConditionalIndicators []string

	// TBGatingField is the field code holding the total TB patient count.
	TBGatingField string
}

func (r Rules) IsYesNo(code string) bool {
	return containsCode(r.YesNoIndicators, code)
}

func (r Rules) IsTBConditional(code string) bool {
	return containsCode(r.TBConditionalIndicators, code)
}

func (r Rules) fixedScale(code string) (decimal.Decimal, bool) {
	return lookupCode(r.FixedScale, code)
}

func (r Rules) binaryTargetCount(code, facilityType string) (decimal.Decimal, bool) {
	for _, c := range codeKeys(code) {
		if byType, ok := r.BinaryTargetCounts[c]; ok {
			if v, ok := byType[facilityType]; ok && v.IsPositive() {
				return v, true
			}
		}
	}
	v, ok := lookupCode(r.BinaryTargetDefaults, code)
	return v, ok && v.IsPositive()
}

func (r Rules) population(facilityType string) decimal.Decimal {
	if v, ok := r.DefaultPopulation[facilityType]; ok && v.IsPositive() {
		return v
	}
	return r.FallbackPopulation
}

// codeKeys returns the exact code followed by its base code, if different.
func codeKeys(code string) []string {
	if i := strings.Index(code, "_"); i > 0 {
		return []string{code, code[:i]}
	}
	return []string{code}
}

func containsCode(list []string, code string) bool {
	for _, c := range codeKeys(code) {
		for _, l := range list {
			if l == c {
				return true
			}
		}
	}
	return false
}

func lookupCode(m map[string]decimal.Decimal, code string) (decimal.Decimal, bool) {
	for _, c := range codeKeys(code) {
		if v, ok := m[c]; ok {
			return v, true
		}
	}
	return decimal.Zero, false
}
