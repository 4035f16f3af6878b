package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/warp/remuneration-engine/remuneration"
)

// =============================================================================
// RULES JSON
// =============================================================================

// RulesJSON is the JSON representation of remuneration.Rules.
// Every key is optional; ParseRules overlays present keys onto a base.
//
//	{
//	  "default_population": {"PHC": 25000, "MOBILE": 1500},
//	  "fallback_population": 3000,
//	  "fixed_scale": {"PS001": 5},
//	  "binary_target_counts": {"DV001": {"PHC": 50}},
//	  "binary_target_defaults": {"VM001": 1},
//	  "yes_no_indicators": ["VM001"],
//	  "tb_conditional_indicators": ["CT001", "DC001"],
//	  "tb_gating_field": "total_tb_patients"
//	}
type RulesJSON struct {
	DefaultPopulation       map[string]decimal.Decimal            `json:"default_population,omitempty"`
	FallbackPopulation      *decimal.Decimal                      `json:"fallback_population,omitempty"`
	FixedScale              map[string]decimal.Decimal            `json:"fixed_scale,omitempty"`
	BinaryTargetCounts      map[string]map[string]decimal.Decimal `json:"binary_target_counts,omitempty"`
	BinaryTargetDefaults    map[string]decimal.Decimal            `json:"binary_target_defaults,omitempty"`
	YesNoIndicators         []string                              `json:"yes_no_indicators,omitempty"`
	TBConditionalIndicators []string                              `json:"tb_conditional_indicators,omitempty"`
	TBGatingField           *string                               `json:"tb_gating_field,omitempty"`
}

// ParseRules overlays JSON onto base. Map entries are merged key by key;
// lists and scalars replace the base value when present.
func ParseRules(data []byte, base remuneration.Rules) (remuneration.Rules, error) {
	var rj RulesJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return base, fmt.Errorf("failed to parse rules JSON: %w", err)
	}

	out := copyRules(base)
	mergeDecimals(&out.DefaultPopulation, rj.DefaultPopulation)
	mergeDecimals(&out.FixedScale, rj.FixedScale)
	mergeDecimals(&out.BinaryTargetDefaults, rj.BinaryTargetDefaults)
	for code, byType := range rj.BinaryTargetCounts {
		if out.BinaryTargetCounts == nil {
			out.BinaryTargetCounts = make(map[string]map[string]decimal.Decimal)
		}
		inner := out.BinaryTargetCounts[code]
		mergeDecimals(&inner, byType)
		out.BinaryTargetCounts[code] = inner
	}
	if rj.FallbackPopulation != nil {
		out.FallbackPopulation = *rj.FallbackPopulation
	}
	if rj.YesNoIndicators != nil {
		out.YesNoIndicators = rj.YesNoIndicators
	}
	if rj.TBConditionalIndicators != nil {
		out.TBConditionalIndicators = rj.TBConditionalIndicators
	}
	if rj.TBGatingField != nil {
		out.TBGatingField = *rj.TBGatingField
	}

	if !out.FallbackPopulation.IsPositive() {
		return base, fmt.Errorf("fallback_population must be positive")
	}
	return out, nil
}

// LoadRulesFile reads a rules file and overlays it onto base.
// An empty path returns base unchanged.
func LoadRulesFile(path string, base remuneration.Rules) (remuneration.Rules, error) {
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data, base)
}

// RulesToJSON converts Rules to RulesJSON.
func RulesToJSON(r remuneration.Rules) RulesJSON {
	fallback := r.FallbackPopulation
	gating := r.TBGatingField
	return RulesJSON{
		DefaultPopulation:       r.DefaultPopulation,
		FallbackPopulation:      &fallback,
		FixedScale:              r.FixedScale,
		BinaryTargetCounts:      r.BinaryTargetCounts,
		BinaryTargetDefaults:    r.BinaryTargetDefaults,
		YesNoIndicators:         r.YesNoIndicators,
		TBConditionalIndicators: r.TBConditionalIndicators,
		TBGatingField:           &gating,
	}
}

func copyRules(r remuneration.Rules) remuneration.Rules {
	out := r
	out.DefaultPopulation = copyDecimals(r.DefaultPopulation)
	out.FixedScale = copyDecimals(r.FixedScale)
	out.BinaryTargetDefaults = copyDecimals(r.BinaryTargetDefaults)
	if r.BinaryTargetCounts != nil {
		out.BinaryTargetCounts = make(map[string]map[string]decimal.Decimal, len(r.BinaryTargetCounts))
		for k, v := range r.BinaryTargetCounts {
			out.BinaryTargetCounts[k] = copyDecimals(v)
		}
	}
	out.YesNoIndicators = append([]string(nil), r.YesNoIndicators...)
	out.TBConditionalIndicators = append([]string(nil), r.TBConditionalIndicators...)
	return out
}

func copyDecimals(m map[string]decimal.Decimal) map[string]decimal.Decimal {
	if m == nil {
		return nil
	}
	out := make(map[string]decimal.Decimal, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func mergeDecimals(dst *map[string]decimal.Decimal, src map[string]decimal.Decimal) {
	if len(src) == 0 {
		return
	}
	if *dst == nil {
		*dst = make(map[string]decimal.Decimal, len(src))
	}
	for k, v := range src {
		(*dst)[k] = v
	}
}
