/*
target.go - Target normalization

PURPOSE:
  Indicator targets are stored in one polymorphic column: a JSON range
  object, a percent band string, a plain numeric band, a boolean string,
  or a plain number. ParseTarget turns all of them into a TargetSpec so
  calculation code never touches raw strings.

ACCEPTED FORMS:
  {"min":3,"max":5}   -> Range(3,5), Value 5
  "50-100%"           -> Range(50,100), Value 100
  "3-5"               -> Range(3,5), Value 5
  "80%"               -> Scalar 80
  "true" / "false"    -> Binary 1 / 0
  "12"                -> Scalar 12
  "\"3-5%\""          -> JSON-quoted strings are unwrapped first

FALLBACK:
  An empty, unparseable or zero value resolves to the fallback
  (formula_config.targetValue) when it is positive, else to 1.
  ParseTarget never fails and never returns a zero Value.
*/
package generic

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

type TargetKind string

const (
	TargetBinary TargetKind = "binary"
	TargetScalar TargetKind = "scalar"
	TargetRange  TargetKind = "range"
)

// TargetSpec is the normalized form of an indicator target.
type TargetSpec struct {
	Kind  TargetKind
	Value decimal.Decimal
	Range *Range
}

// Threshold returns the value at which an indicator counts as fully
// achieved: the range floor when there is a usable range, else Value.
func (t TargetSpec) Threshold() decimal.Decimal {
	if t.Range.Valid() {
		return t.Range.Min
	}
	return t.Value
}

// WithValue returns a copy whose scalar and threshold are both v.
// Used for facility-specific targets and target-field overrides.
func (t TargetSpec) WithValue(v decimal.Decimal) TargetSpec {
	return TargetSpec{Kind: TargetScalar, Value: v}
}

func (t TargetSpec) String() string {
	if t.Range != nil {
		return t.Range.Min.String() + "-" + t.Range.Max.String()
	}
	return t.Value.String()
}

var bandPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*-\s*(\d+(?:\.\d+)?)\s*%?$`)

// ParseTarget normalizes a stored target value.
func ParseTarget(raw string, fallback *decimal.Decimal) TargetSpec {
	spec := parseTarget(strings.TrimSpace(raw), 0)
	if !spec.Value.IsPositive() {
		spec.Value = fallbackTarget(fallback)
	}
	return spec
}

func fallbackTarget(fallback *decimal.Decimal) decimal.Decimal {
	if fallback != nil && fallback.IsPositive() {
		return *fallback
	}
	return decimal.NewFromInt(1)
}

func parseTarget(s string, depth int) TargetSpec {
	if s == "" || depth > 2 {
		return TargetSpec{Kind: TargetScalar}
	}

	switch {
	case strings.HasPrefix(s, "{"):
		return parseRangeObject(s)
	case strings.HasPrefix(s, `"`):
		var inner string
		if err := json.Unmarshal([]byte(s), &inner); err != nil {
			return TargetSpec{Kind: TargetScalar}
		}
		return parseTarget(strings.TrimSpace(inner), depth+1)
	}

	switch strings.ToLower(s) {
	case "true":
		return TargetSpec{Kind: TargetBinary, Value: decimal.NewFromInt(1)}
	case "false":
		return TargetSpec{Kind: TargetBinary, Value: decimal.Zero}
	}

	if m := bandPattern.FindStringSubmatch(s); m != nil {
		lo, _ := decimal.NewFromString(m[1])
		hi, _ := decimal.NewFromString(m[2])
		return TargetSpec{Kind: TargetRange, Value: hi, Range: &Range{Min: lo, Max: hi}}
	}

	if v, err := decimal.NewFromString(strings.TrimSpace(strings.TrimSuffix(s, "%"))); err == nil {
		return TargetSpec{Kind: TargetScalar, Value: v}
	}
	return TargetSpec{Kind: TargetScalar}
}

func parseRangeObject(s string) TargetSpec {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return TargetSpec{Kind: TargetScalar}
	}
	lo, okLo := decimalFromAny(obj["min"])
	hi, okHi := decimalFromAny(obj["max"])
	switch {
	case okLo && okHi:
		return TargetSpec{Kind: TargetRange, Value: hi, Range: &Range{Min: lo, Max: hi}}
	case okHi:
		return TargetSpec{Kind: TargetScalar, Value: hi}
	case okLo:
		return TargetSpec{Kind: TargetScalar, Value: lo}
	}
	return TargetSpec{Kind: TargetScalar}
}

// decimalFromAny converts a decoded JSON scalar to a decimal.
func decimalFromAny(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case float64:
		return decimal.NewFromFloat(x), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(x), "%")))
		return d, err == nil
	case bool:
		if x {
			return decimal.NewFromInt(1), true
		}
		return decimal.Zero, true
	}
	return decimal.Zero, false
}
