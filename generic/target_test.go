package generic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/remuneration-engine/generic"
)

func TestParseTarget_Forms(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		kind     generic.TargetKind
		value    string
		min, max string
	}{
		{"json range", `{"min":3,"max":5}`, generic.TargetRange, "5", "3", "5"},
		{"json range strings", `{"min":"50","max":"100%"}`, generic.TargetRange, "100", "50", "100"},
		{"percent band", "50-100%", generic.TargetRange, "100", "50", "100"},
		{"numeric band", "3-5", generic.TargetRange, "5", "3", "5"},
		{"spaced band", "3 - 5 %", generic.TargetRange, "5", "3", "5"},
		{"percent", "80%", generic.TargetScalar, "80", "", ""},
		{"true", "true", generic.TargetBinary, "1", "", ""},
		{"plain", "12", generic.TargetScalar, "12", "", ""},
		{"decimal", "2.5", generic.TargetScalar, "2.5", "", ""},
		{"quoted band", `"3-5%"`, generic.TargetRange, "5", "3", "5"},
		{"quoted number", `"7"`, generic.TargetScalar, "7", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := generic.ParseTarget(tt.raw, nil)
			assert.Equal(t, tt.kind, spec.Kind)
			assertDecimal(t, tt.value, spec.Value)
			if tt.min == "" {
				assert.Nil(t, spec.Range)
				return
			}
			require.NotNil(t, spec.Range)
			assertDecimal(t, tt.min, spec.Range.Min)
			assertDecimal(t, tt.max, spec.Range.Max)
			assertDecimal(t, tt.min, spec.Threshold())
		})
	}
}

func TestParseTarget_Fallback(t *testing.T) {
	// GIVEN: Targets that parse to nothing usable
	// WHEN: A positive fallback is configured
	// THEN: The fallback is used, otherwise 1

	fallback := dec("6")
	for _, raw := range []string{"", "   ", "0", "abc", "false", "{bad json", `{"foo":1}`, "0%"} {
		assertDecimal(t, "6", generic.ParseTarget(raw, &fallback).Value, raw)
		assertDecimal(t, "1", generic.ParseTarget(raw, nil).Value, raw)
	}

	zero := dec("0")
	assertDecimal(t, "1", generic.ParseTarget("", &zero).Value)
}

func TestParseTarget_FalseIsBinary(t *testing.T) {
	spec := generic.ParseTarget("false", nil)
	assert.Equal(t, generic.TargetBinary, spec.Kind)
	assert.True(t, spec.Value.IsPositive(), "value is never left at zero")
}

func TestParseTarget_ParsedValueWinsOverFallback(t *testing.T) {
	fallback := dec("6")
	assertDecimal(t, "4", generic.ParseTarget("4", &fallback).Value)
}

func TestTargetSpec_WithValue_DropsRange(t *testing.T) {
	spec := generic.ParseTarget("3-5%", nil).WithValue(dec("2"))
	assert.Nil(t, spec.Range)
	assertDecimal(t, "2", spec.Threshold())
}
