package remuneration

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// VALUE COERCION
// =============================================================================

var one = decimal.NewFromInt(1)

// Numeric coerces the populated slot to a number.
// Booleans become 0/1; strings and JSON must hold a number; anything
// else is 0.
func (v FieldValue) Numeric() decimal.Decimal {
	switch {
	case v.NumericValue != nil:
		return *v.NumericValue
	case v.BooleanValue != nil:
		return boolDecimal(*v.BooleanValue)
	case v.StringValue != nil:
		d, err := decimal.NewFromString(strings.TrimSpace(*v.StringValue))
		if err != nil {
			return decimal.Zero
		}
		return d
	case len(v.JSONValue) > 0:
		return jsonNumeric(v.JSONValue)
	}
	return decimal.Zero
}

// YesNo normalizes a Yes/No-coded value: "1", 1, true and "yes" are 1,
// everything else is 0.
func (v FieldValue) YesNo() decimal.Decimal {
	switch {
	case v.NumericValue != nil:
		return boolDecimal(v.NumericValue.Equal(one))
	case v.BooleanValue != nil:
		return boolDecimal(*v.BooleanValue)
	case v.StringValue != nil:
		return boolDecimal(isYes(*v.StringValue))
	case len(v.JSONValue) > 0:
		var raw any
		if err := json.Unmarshal(v.JSONValue, &raw); err != nil {
			return decimal.Zero
		}
		switch x := raw.(type) {
		case bool:
			return boolDecimal(x)
		case float64:
			return boolDecimal(x == 1)
		case string:
			return boolDecimal(isYes(x))
		}
	}
	return decimal.Zero
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func boolDecimal(b bool) decimal.Decimal {
	if b {
		return one
	}
	return decimal.Zero
}

func jsonNumeric(raw json.RawMessage) decimal.Decimal {
	var x any
	if err := json.Unmarshal(raw, &x); err != nil {
		return decimal.Zero
	}
	switch v := x.(type) {
	case float64:
		return decimal.NewFromFloat(v)
	case bool:
		return boolDecimal(v)
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero
		}
		return d
	}
	return decimal.Zero
}

// =============================================================================
// FIELD INDEX - O(1) lookup of submitted values
// =============================================================================

// FieldIndex indexes one period's field values by field ID and code.
type FieldIndex struct {
	byID   map[string]FieldValue
	byCode map[string]FieldValue
}

func NewFieldIndex(values []FieldValue) FieldIndex {
	idx := FieldIndex{
		byID:   make(map[string]FieldValue, len(values)),
		byCode: make(map[string]FieldValue, len(values)),
	}
	for _, v := range values {
		idx.byID[v.FieldID] = v
		if v.FieldCode != "" {
			idx.byCode[v.FieldCode] = v
		}
	}
	return idx
}

// Get returns the value for a field ID. Values with no populated slot
// count as missing.
func (idx FieldIndex) Get(fieldID string) (FieldValue, bool) {
	if fieldID == "" {
		return FieldValue{}, false
	}
	v, ok := idx.byID[fieldID]
	return v, ok && v.HasValue()
}

func (idx FieldIndex) GetByCode(code string) (FieldValue, bool) {
	if code == "" {
		return FieldValue{}, false
	}
	v, ok := idx.byCode[code]
	return v, ok && v.HasValue()
}

func (idx FieldIndex) Len() int { return len(idx.byID) }
