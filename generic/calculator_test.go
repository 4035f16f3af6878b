/*
calculator_test.go - Behavior tests for the scoring kernel

ORGANIZATION:
  1. Binary targets - All-or-nothing
  2. Range targets - Floor reached means fully paid
  3. Percentage-range targets - Threshold and proportional credit
  4. Overrides - Facility-specific targets and percentage caps
  5. Invariants - Payout bounds and zero divisors

Each test has GIVEN/WHEN/THEN comments explaining the scenario.
*/
package generic_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/remuneration-engine/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal { return generic.MustParseDecimal(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got.String(), msgAndArgs)
}

func calc(typ generic.TargetType, actual, denom, max, target string) generic.CalculationResult {
	return generic.CalculateRemuneration(generic.CalculationInput{
		Actual:          dec(actual),
		Denominator:     dec(denom),
		MaxRemuneration: dec(max),
		Config:          generic.FormulaConfig{Type: typ},
		Target:          generic.ParseTarget(target, nil),
	})
}

// =============================================================================
// BINARY
// =============================================================================

func TestCalculate_Binary_ZeroActual_NothingPaid(t *testing.T) {
	// GIVEN: A binary indicator worth 500
	// WHEN: Nothing was reported
	// THEN: 0% and no payout

	r := calc(generic.TargetTypeBinary, "0", "1", "500", "true")

	assertDecimal(t, "0", r.Remuneration)
	assertDecimal(t, "0", r.DisplayPercentage)
	assert.False(t, r.Achieved())
}

func TestCalculate_Binary_AnyPositive_FullPayout(t *testing.T) {
	// GIVEN: A binary indicator worth 500
	// WHEN: Any positive value was reported
	// THEN: 100% and the full maximum, no partial credit

	for _, actual := range []string{"0.5", "1", "3", "100"} {
		r := calc(generic.TargetTypeBinary, actual, "20", "500", "1")
		assertDecimal(t, "500", r.Remuneration, "actual=%s", actual)
		assertDecimal(t, "100", r.DisplayPercentage, "actual=%s", actual)
		assert.True(t, r.Achieved())
	}
}

func TestCalculate_Binary_NegativeActual_NothingPaid(t *testing.T) {
	r := calc(generic.TargetTypeBinary, "-2", "1", "500", "true")
	assertDecimal(t, "0", r.Remuneration)
}

// =============================================================================
// RANGE
// =============================================================================

func TestCalculate_Range_FloorReached_FullPayout(t *testing.T) {
	// GIVEN: Target band 5-10 sessions, maximum 500
	// WHEN: Exactly 5 sessions were held
	// THEN: The floor is reached, full 500 is paid

	r := calc(generic.TargetTypeRange, "5", "0", "500", `{"min":5,"max":10}`)
	assertDecimal(t, "500", r.Remuneration)
}

func TestCalculate_Range_BelowFloor_Proportional(t *testing.T) {
	// GIVEN: Target band 5-10 sessions, maximum 500
	// WHEN: 3 sessions were held
	// THEN: 3/5 of 500 = 300

	r := calc(generic.TargetTypeRange, "3", "0", "500", `{"min":5,"max":10}`)
	assertDecimal(t, "300", r.Remuneration)
}

func TestCalculate_Range_AboveCeiling_CappedAtMax(t *testing.T) {
	// GIVEN: Target band 5-10 sessions, maximum 500
	// WHEN: 12 sessions were held
	// THEN: Payout never exceeds 500

	r := calc(generic.TargetTypeRange, "12", "0", "500", `{"min":5,"max":10}`)
	assertDecimal(t, "500", r.Remuneration)
	assertDecimal(t, "100", r.DisplayPercentage)
}

func TestCalculate_Range_ScalarTarget_OverAchievementCappedForDisplay(t *testing.T) {
	// GIVEN: Scalar target 10
	// WHEN: 15 were reported
	// THEN: Raw achievement is 150 but display is capped at 100

	r := calc(generic.TargetTypeRange, "15", "0", "200", "10")
	assertDecimal(t, "150", r.AchievedPercentage)
	assertDecimal(t, "100", r.DisplayPercentage)
	assertDecimal(t, "200", r.Remuneration)
}

// =============================================================================
// PERCENTAGE RANGE
// =============================================================================

func TestCalculate_PercentageRange_AtOrAboveFloor_FullyAchieved(t *testing.T) {
	// GIVEN: Band 3-5%, maximum 1000, population 10000
	// WHEN: 400 cases reported (4%)
	// THEN: Displayed 100%, full 1000

	r := calc(generic.TargetTypePercentageRange, "400", "10000", "1000", "3-5%")

	assertDecimal(t, "4", r.ActualPercentage)
	assertDecimal(t, "100", r.DisplayPercentage)
	assertDecimal(t, "1000", r.Remuneration)
}

func TestCalculate_PercentageRange_BelowFloor_ProportionalCredit(t *testing.T) {
	// GIVEN: Band 3-5%, maximum 1000, population 10000
	// WHEN: 200 cases reported (2%)
	// THEN: Displayed 2/3*100 = 66.67%, payout 666.67

	r := calc(generic.TargetTypePercentageRange, "200", "10000", "1000", `{"min":3,"max":5}`)

	assertDecimal(t, "2", r.ActualPercentage)
	assertDecimal(t, "66.67", r.DisplayPercentage)
	assertDecimal(t, "666.67", r.Remuneration)
}

func TestCalculate_PercentageRange_ZeroDenominator_NoPayout(t *testing.T) {
	// GIVEN: A percentage-range indicator
	// WHEN: The denominator is 0
	// THEN: 0% and 0 payout, no panic

	assert.NotPanics(t, func() {
		r := calc(generic.TargetTypePercentageRange, "50", "0", "1000", "3-5%")
		assertDecimal(t, "0", r.DisplayPercentage)
		assertDecimal(t, "0", r.Remuneration)
	})
}

func TestCalculate_PercentageRange_PerPeriodFormula(t *testing.T) {
	// GIVEN: Monthly normalization (A/(B/12))*100 with band 50-100%
	// WHEN: 100 of a yearly 2400 population reported
	// THEN: 100/(2400/12) = 50%, floor reached

	r := generic.CalculateRemuneration(generic.CalculationInput{
		Actual:          dec("100"),
		Denominator:     dec("2400"),
		MaxRemuneration: dec("800"),
		Config:          generic.FormulaConfig{Type: generic.TargetTypePercentageRange, Formula: "(A/(B/12))*100"},
		Target:          generic.ParseTarget("50-100%", nil),
	})

	assertDecimal(t, "50", r.ActualPercentage)
	assertDecimal(t, "100", r.DisplayPercentage)
	assertDecimal(t, "800", r.Remuneration)
}

// =============================================================================
// OVERRIDES
// =============================================================================

func TestCalculate_FacilitySpecificTarget_ReplacesThreshold(t *testing.T) {
	// GIVEN: Elderly clinics with yearly target SC_HWC=1, others=4
	// WHEN: One clinic was held at an SC_HWC and at a PHC
	// THEN: SC_HWC is fully paid, PHC gets 1/4

	cfg := generic.FormulaConfig{
		Type: generic.TargetTypeRange,
		FacilitySpecificTargets: map[string]decimal.Decimal{
			"SC_HWC": dec("1"),
			"PHC":    dec("4"),
		},
	}

	sc := generic.CalculateRemuneration(generic.CalculationInput{
		Actual: dec("1"), MaxRemuneration: dec("400"), Config: cfg,
		Target: generic.ParseTarget("4", nil), FacilityType: "SC_HWC",
	})
	phc := generic.CalculateRemuneration(generic.CalculationInput{
		Actual: dec("1"), MaxRemuneration: dec("400"), Config: cfg,
		Target: generic.ParseTarget("4", nil), FacilityType: "PHC",
	})

	assertDecimal(t, "400", sc.Remuneration)
	assertDecimal(t, "100", sc.DisplayPercentage)
	assertDecimal(t, "100", phc.Remuneration)
	assertDecimal(t, "25", phc.DisplayPercentage)
}

func TestCalculate_ConfigRange_OverridesParsedTarget(t *testing.T) {
	cfg := generic.FormulaConfig{
		Type:  generic.TargetTypePercentageRange,
		Range: &generic.Range{Min: dec("10"), Max: dec("20")},
	}
	r := generic.CalculateRemuneration(generic.CalculationInput{
		Actual: dec("5"), Denominator: dec("100"), MaxRemuneration: dec("100"),
		Config: cfg, Target: generic.ParseTarget("3", nil),
	})

	// 5% against a 10% floor
	assertDecimal(t, "50", r.DisplayPercentage)
	assertDecimal(t, "50", r.Remuneration)
}

func TestCalculate_MaxPercentage_CapsAchievementAndPayout(t *testing.T) {
	limit := dec("80")
	r := generic.CalculateRemuneration(generic.CalculationInput{
		Actual: dec("9"), Denominator: dec("10"), MaxRemuneration: dec("1000"),
		Config: generic.FormulaConfig{MaxPercentage: &limit},
		Target: generic.ParseTarget("", nil),
	})

	assertDecimal(t, "80", r.DisplayPercentage)
	assertDecimal(t, "800", r.Remuneration)
}

// =============================================================================
// INVARIANTS
// =============================================================================

func TestCalculate_PayoutAlwaysWithinBounds(t *testing.T) {
	// GIVEN: Every target type and a spread of inputs
	// THEN: 0 <= payout <= max and 0 <= display <= 100

	types := []generic.TargetType{
		generic.TargetTypeBinary, generic.TargetTypeRange, generic.TargetTypePercentageRange, "",
	}
	actuals := []string{"-10", "0", "1", "3", "50", "1e6"}
	denoms := []string{"0", "1", "100", "10000"}

	for _, typ := range types {
		for _, a := range actuals {
			for _, d := range denoms {
				r := calc(typ, a, d, "750", "3-5%")
				assert.False(t, r.Remuneration.IsNegative(), "%s a=%s d=%s", typ, a, d)
				assert.True(t, r.Remuneration.LessThanOrEqual(dec("750")), "%s a=%s d=%s", typ, a, d)
				assert.False(t, r.DisplayPercentage.IsNegative())
				assert.True(t, r.DisplayPercentage.LessThanOrEqual(generic.Hundred))
			}
		}
	}
}

func TestCalculate_Range_IgnoresDenominator(t *testing.T) {
	// GIVEN: Target band 5-10 sessions, maximum 500
	// WHEN: 3 sessions were held and the denominator is zero
	// THEN: The band alone scores it, 3/10 for display and 3/5 of 500 paid

	for _, denom := range []string{"0", "7", "10000"} {
		r := calc(generic.TargetTypeRange, "3", denom, "500", "5-10")
		assertDecimal(t, "30", r.DisplayPercentage, "denom=%s", denom)
		assertDecimal(t, "300", r.Remuneration, "denom=%s", denom)
	}
}

func TestCalculate_NegativeMax_TreatedAsZero(t *testing.T) {
	r := calc(generic.TargetTypeBinary, "1", "1", "-100", "1")
	assertDecimal(t, "0", r.Remuneration)
}
