/*
formula.go - Formula evaluation and registration

PURPOSE:
  Turns a raw numerator/denominator pair into an achievement percentage
  using the small vocabulary of expressions stored in indicator configs.

HOW IT WORKS:
  1. The expression is normalized (whitespace removed, upper-cased)
  2. Registered expressions are looked up in the registry
  3. The "(A/(B/N))*100" family is matched structurally for any N > 0
  4. Anything else falls back to DefaultFormula

  Built-in expressions:
    (A/B)*100       default
    A/B*100         same, without parentheses
    (A*100)/B       same, multiply first
    (A/(B/N))*100   B pre-divided by N (e.g. population/12 per month)

ZERO DIVISION:
  Every built-in returns 0 when any divisor evaluates to 0. Registered
  formulas are expected to follow the same rule.

USAGE:
  pct := generic.EvaluateFormula("(A/(B/12))*100", actual, population)

  // In an init() of a package that needs another shape
  generic.RegisterFormula("(A/B)*1000", func(a, b decimal.Decimal) decimal.Decimal {
      return generic.SafeDiv(a, b).Mul(decimal.NewFromInt(1000))
  })

SEE ALSO:
  - calculator.go: Applies the formula output to target semantics
*/
package generic

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// DefaultFormula is used when an indicator has no formula or an unknown one.
const DefaultFormula = "(A/B)*100"

// FormulaFunc evaluates a formula for actual A and denominator B.
type FormulaFunc func(a, b decimal.Decimal) decimal.Decimal

// =============================================================================
// FORMULA REGISTRY
// =============================================================================

var (
	formulaRegistry = make(map[string]FormulaFunc)
	formulaMu       sync.RWMutex
)

func init() {
	RegisterFormula("(A/B)*100", percentOf)
	RegisterFormula("A/B*100", percentOf)
	RegisterFormula("(A*100)/B", percentOf)
}

// RegisterFormula adds an expression to the global registry.
// The expression is normalized before storage, so spacing and case don't matter.
func RegisterFormula(expr string, fn FormulaFunc) {
	formulaMu.Lock()
	defer formulaMu.Unlock()
	formulaRegistry[NormalizeFormula(expr)] = fn
}

// LookupFormula finds a formula by expression.
// Returns nil if the expression is neither registered nor a known family.
func LookupFormula(expr string) FormulaFunc {
	key := NormalizeFormula(expr)

	formulaMu.RLock()
	fn := formulaRegistry[key]
	formulaMu.RUnlock()
	if fn != nil {
		return fn
	}

	if n, ok := perPeriodDivisor(key); ok {
		return func(a, b decimal.Decimal) decimal.Decimal {
			return percentOf(a, SafeDiv(b, n))
		}
	}
	return nil
}

// MustLookupFormula finds a formula or panics.
// Use in tests or when you're certain the formula exists.
func MustLookupFormula(expr string) FormulaFunc {
	fn := LookupFormula(expr)
	if fn == nil {
		panic(fmt.Sprintf("formula not registered: %s", expr))
	}
	return fn
}

// ListFormulas returns all registered expressions, sorted.
func ListFormulas() []string {
	formulaMu.RLock()
	defer formulaMu.RUnlock()
	result := make([]string, 0, len(formulaRegistry))
	for k := range formulaRegistry {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// IsKnownFormula reports whether expr resolves without falling back.
func IsKnownFormula(expr string) bool {
	return LookupFormula(expr) != nil
}

// =============================================================================
// EVALUATION
// =============================================================================

// EvaluateFormula applies the formula to a and b.
// Empty or unknown expressions evaluate as DefaultFormula. The result is
// not clamped.
func EvaluateFormula(expr string, a, b decimal.Decimal) decimal.Decimal {
	fn := LookupFormula(expr)
	if fn == nil {
		fn = percentOf
	}
	return fn(a, b)
}

// NormalizeFormula strips whitespace and upper-cases the operands.
func NormalizeFormula(expr string) string {
	return strings.ToUpper(strings.Join(strings.Fields(expr), ""))
}

func percentOf(a, b decimal.Decimal) decimal.Decimal {
	return SafeDiv(a, b).Mul(Hundred)
}

var perPeriodPattern = regexp.MustCompile(`^\(A/\(B/(\d+(?:\.\d+)?)\)\)\*100$`)

// perPeriodDivisor extracts N from "(A/(B/N))*100".
func perPeriodDivisor(normalized string) (decimal.Decimal, bool) {
	m := perPeriodPattern.FindStringSubmatch(normalized)
	if m == nil {
		return decimal.Zero, false
	}
	n, err := decimal.NewFromString(m[1])
	if err != nil {
		return decimal.Zero, false
	}
	return n, true
}
