/*
Package generic provides the core scoring kernel of the remuneration engine.

PURPOSE:
  This package contains the facility-agnostic arithmetic used to turn a
  raw numerator/denominator pair into an achievement percentage and a
  payout. It knows nothing about facilities, workers, or storage; the
  remuneration package feeds it resolved numbers and persists the output.

KEY CONCEPTS IN THIS FILE (types.go):
  - TargetType: The shape of an indicator's goal (binary, range, % range)
  - Range: A {min, max} band parsed from stored target values
  - FormulaConfig: Per-indicator calculation overrides
  - Decimal helpers: Rounding and clamping for money and percentages

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point drift in payouts
  2. Total functions: Arithmetic edge cases resolve to 0, never to an error
  3. No I/O: Everything here is pure and safe to call from any goroutine

USAGE:
  result := generic.CalculateRemuneration(generic.CalculationInput{
      Actual:          generic.NewDecimal(400),
      Denominator:     generic.NewDecimal(10000),
      MaxRemuneration: generic.NewDecimal(1000),
      Config:          generic.FormulaConfig{Type: generic.TargetTypePercentageRange},
      Target:          generic.ParseTarget("3-5%", nil),
  })

SEE ALSO:
  - formula.go: Formula evaluator
  - target.go: Target normalization
  - calculator.go: Payout calculation
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// TARGET TYPE - Shape of an indicator's goal
// =============================================================================

type TargetType string

const (
	TargetTypeBinary          TargetType = "BINARY"
	TargetTypeRange           TargetType = "RANGE"
	TargetTypePercentageRange TargetType = "PERCENTAGE_RANGE"
)

// Valid reports whether t is one of the known target types.
func (t TargetType) Valid() bool {
	switch t {
	case TargetTypeBinary, TargetTypeRange, TargetTypePercentageRange:
		return true
	}
	return false
}

// =============================================================================
// RANGE - {min, max} band
// =============================================================================

type Range struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

// Valid reports whether the range can be used as a threshold.
// A zero or negative minimum cannot scale proportional credit.
func (r *Range) Valid() bool {
	return r != nil && r.Min.IsPositive()
}

// =============================================================================
// FORMULA CONFIG - Per-indicator calculation overrides
// =============================================================================

// FormulaConfig carries the calculation settings stored alongside an
// indicator. Every field is optional; a zero FormulaConfig computes
// (A/B)*100 with the indicator's own target type.
type FormulaConfig struct {
	Type          TargetType
	Formula       string
	TargetValue   *decimal.Decimal
	Range         *Range
	MaxPercentage *decimal.Decimal

	// FacilitySpecificTargets maps a facility type name to the target used
	// instead of the global one (e.g. SC_HWC=1, PHC=4).
	FacilitySpecificTargets map[string]decimal.Decimal
}

// FacilityTarget returns the facility-specific target for a facility type.
func (c FormulaConfig) FacilityTarget(facilityType string) (decimal.Decimal, bool) {
	if len(c.FacilitySpecificTargets) == 0 {
		return decimal.Zero, false
	}
	v, ok := c.FacilitySpecificTargets[facilityType]
	return v, ok
}

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

var (
	Hundred = decimal.NewFromInt(100)
	Half    = decimal.NewFromInt(50)
)

// MoneyPlaces is the precision used for stored amounts and percentages.
const MoneyPlaces int32 = 2

func NewDecimal(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func DecimalPtr(d decimal.Decimal) *decimal.Decimal { return &d }

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Round rounds to MoneyPlaces using half-up rounding.
func Round(d decimal.Decimal) decimal.Decimal { return d.Round(MoneyPlaces) }

// Clamp limits d to [lo, hi].
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// CapPercent limits a percentage to [0, 100].
func CapPercent(d decimal.Decimal) decimal.Decimal { return Clamp(d, decimal.Zero, Hundred) }

// SafeDiv returns a/b, or zero when b is zero.
func SafeDiv(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.Div(b)
}
