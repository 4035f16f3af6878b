/*
Package factory provides JSON to Go conversion for indicator definitions
and resolver rules.

PURPOSE:
  Indicators and their formula configuration are stored as JSON (the
  formula_config column) and authored as JSON by programme staff. The
  factory turns that JSON into remuneration.Indicator values and back,
  so the rest of the code only ever sees typed configuration.

JSON SCHEMA (indicator):
  {
    "id": "ind-TF001",
    "code": "TF001",
    "name": "Teleconsultations per population",
    "target_type": "PERCENTAGE_RANGE",
    "target_value": "3-5%",
    "formula_config": {
      "formula": "(A/(B/12))*100",
      "targetValue": 4,
      "range": {"min": 3, "max": 5},
      "maxPercentage": 100,
      "facilitySpecificTargets": {"SC_HWC": 1, "PHC": 4}
    },
    "numerator_field_id": "fld-teleconsultations",
    "denominator_field_id": "fld-population",
    "target_field_id": "",
    "applicable_facility_types": ["PHC", "SC_HWC"],
    "remuneration": [
      {"facility_type": "PHC", "base_amount": 1000, "conditional_amount": 250}
    ]
  }

  formula_config keeps the camelCase keys of the stored column.

USAGE:
  f := factory.NewIndicatorFactory()
  ind, amounts, err := f.ParseIndicator(jsonString)

  // Stores decode the formula_config column directly
  cfg, err := factory.ParseFormulaConfig(column)

SEE ALSO:
  - rules.go: Resolver rules JSON
  - generic/target.go: How target_value is interpreted
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/remuneration-engine/generic"
	"github.com/warp/remuneration-engine/remuneration"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// IndicatorJSON is the JSON representation of an indicator.
type IndicatorJSON struct {
	ID                      string             `json:"id"`
	Code                    string             `json:"code"`
	Name                    string             `json:"name"`
	TargetType              string             `json:"target_type"`
	TargetValue             json.RawMessage    `json:"target_value,omitempty"` // string, number, bool or {min,max}
	FormulaConfig           *FormulaConfigJSON `json:"formula_config,omitempty"`
	NumeratorFieldID        string             `json:"numerator_field_id"`
	DenominatorFieldID      string             `json:"denominator_field_id,omitempty"`
	TargetFieldID           string             `json:"target_field_id,omitempty"`
	ApplicableFacilityTypes []string           `json:"applicable_facility_types"`
	Remuneration            []AmountJSON       `json:"remuneration,omitempty"`
}

// FormulaConfigJSON is the stored formula_config column.
type FormulaConfigJSON struct {
	Type                    string                     `json:"type,omitempty"`
	Formula                 string                     `json:"formula,omitempty"`
	TargetValue             *decimal.Decimal           `json:"targetValue,omitempty"`
	Range                   *generic.Range             `json:"range,omitempty"`
	MaxPercentage           *decimal.Decimal           `json:"maxPercentage,omitempty"`
	FacilitySpecificTargets map[string]decimal.Decimal `json:"facilitySpecificTargets,omitempty"`
}

// AmountJSON is the payout for one facility type.
type AmountJSON struct {
	FacilityType      string           `json:"facility_type"`
	BaseAmount        decimal.Decimal  `json:"base_amount"`
	ConditionalAmount *decimal.Decimal `json:"conditional_amount,omitempty"`
}

// =============================================================================
// INDICATOR FACTORY
// =============================================================================

// IndicatorFactory converts JSON indicator definitions to Go structs.
type IndicatorFactory struct{}

func NewIndicatorFactory() *IndicatorFactory {
	return &IndicatorFactory{}
}

// ParseIndicator parses a JSON string into an Indicator and its payouts.
func (f *IndicatorFactory) ParseIndicator(jsonStr string) (*remuneration.Indicator, []remuneration.RemunerationConfig, error) {
	var ij IndicatorJSON
	if err := json.Unmarshal([]byte(jsonStr), &ij); err != nil {
		return nil, nil, fmt.Errorf("failed to parse indicator JSON: %w", err)
	}
	return f.FromJSON(ij)
}

// ParseIndicators parses a JSON array of indicator definitions.
func (f *IndicatorFactory) ParseIndicators(data []byte) ([]remuneration.Indicator, map[string][]remuneration.RemunerationConfig, error) {
	var list []IndicatorJSON
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, nil, fmt.Errorf("failed to parse indicator list JSON: %w", err)
	}
	indicators := make([]remuneration.Indicator, 0, len(list))
	amounts := make(map[string][]remuneration.RemunerationConfig, len(list))
	for _, ij := range list {
		ind, cfgs, err := f.FromJSON(ij)
		if err != nil {
			return nil, nil, err
		}
		indicators = append(indicators, *ind)
		amounts[ind.ID] = cfgs
	}
	return indicators, amounts, nil
}

// FromJSON validates and converts an IndicatorJSON.
func (f *IndicatorFactory) FromJSON(ij IndicatorJSON) (*remuneration.Indicator, []remuneration.RemunerationConfig, error) {
	if ij.ID == "" || ij.Code == "" {
		return nil, nil, fmt.Errorf("indicator requires id and code")
	}
	targetType := generic.TargetType(ij.TargetType)
	if !targetType.Valid() {
		return nil, nil, fmt.Errorf("indicator %s: unknown target_type %q", ij.Code, ij.TargetType)
	}
	if ij.NumeratorFieldID == "" {
		return nil, nil, fmt.Errorf("indicator %s: numerator_field_id is required", ij.Code)
	}

	cfg := generic.FormulaConfig{}
	if ij.FormulaConfig != nil {
		if ij.FormulaConfig.Formula != "" && !generic.IsKnownFormula(ij.FormulaConfig.Formula) {
			return nil, nil, fmt.Errorf("indicator %s: unknown formula %q", ij.Code, ij.FormulaConfig.Formula)
		}
		cfg = ij.FormulaConfig.toConfig()
	}

	ind := &remuneration.Indicator{
		ID:                      ij.ID,
		Code:                    ij.Code,
		Name:                    ij.Name,
		TargetType:              targetType,
		TargetValue:             targetValueString(ij.TargetValue),
		FormulaConfig:           cfg,
		NumeratorFieldID:        ij.NumeratorFieldID,
		DenominatorFieldID:      ij.DenominatorFieldID,
		TargetFieldID:           ij.TargetFieldID,
		ApplicableFacilityTypes: ij.ApplicableFacilityTypes,
	}

	amounts := make([]remuneration.RemunerationConfig, 0, len(ij.Remuneration))
	for _, a := range ij.Remuneration {
		if a.FacilityType == "" {
			return nil, nil, fmt.Errorf("indicator %s: remuneration entry without facility_type", ij.Code)
		}
		if a.BaseAmount.IsNegative() {
			return nil, nil, fmt.Errorf("indicator %s: negative base_amount for %s", ij.Code, a.FacilityType)
		}
		amounts = append(amounts, remuneration.RemunerationConfig{
			FacilityType:      a.FacilityType,
			BaseAmount:        a.BaseAmount,
			ConditionalAmount: a.ConditionalAmount,
		})
	}
	return ind, amounts, nil
}

// ToJSON converts an Indicator and its payouts to IndicatorJSON.
func (f *IndicatorFactory) ToJSON(ind remuneration.Indicator, amounts []remuneration.RemunerationConfig) IndicatorJSON {
	target, _ := json.Marshal(ind.TargetValue)
	ij := IndicatorJSON{
		ID:                      ind.ID,
		Code:                    ind.Code,
		Name:                    ind.Name,
		TargetType:              string(ind.TargetType),
		TargetValue:             target,
		FormulaConfig:           formulaConfigJSON(ind.FormulaConfig),
		NumeratorFieldID:        ind.NumeratorFieldID,
		DenominatorFieldID:      ind.DenominatorFieldID,
		TargetFieldID:           ind.TargetFieldID,
		ApplicableFacilityTypes: ind.ApplicableFacilityTypes,
	}
	for _, a := range amounts {
		ij.Remuneration = append(ij.Remuneration, AmountJSON{
			FacilityType:      a.FacilityType,
			BaseAmount:        a.BaseAmount,
			ConditionalAmount: a.ConditionalAmount,
		})
	}
	return ij
}

// =============================================================================
// FORMULA CONFIG COLUMN
// =============================================================================

// ParseFormulaConfig decodes a stored formula_config column.
// An empty or null column is the zero config.
func ParseFormulaConfig(raw []byte) (generic.FormulaConfig, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return generic.FormulaConfig{}, nil
	}
	var fj FormulaConfigJSON
	if err := json.Unmarshal(raw, &fj); err != nil {
		return generic.FormulaConfig{}, fmt.Errorf("failed to parse formula_config: %w", err)
	}
	return fj.toConfig(), nil
}

// MarshalFormulaConfig encodes a config for the formula_config column.
func MarshalFormulaConfig(cfg generic.FormulaConfig) ([]byte, error) {
	fj := formulaConfigJSON(cfg)
	if fj == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(fj)
}

func (fj FormulaConfigJSON) toConfig() generic.FormulaConfig {
	return generic.FormulaConfig{
		Type:                    generic.TargetType(fj.Type),
		Formula:                 fj.Formula,
		TargetValue:             fj.TargetValue,
		Range:                   fj.Range,
		MaxPercentage:           fj.MaxPercentage,
		FacilitySpecificTargets: fj.FacilitySpecificTargets,
	}
}

func formulaConfigJSON(cfg generic.FormulaConfig) *FormulaConfigJSON {
	fj := &FormulaConfigJSON{
		Type:                    string(cfg.Type),
		Formula:                 cfg.Formula,
		TargetValue:             cfg.TargetValue,
		Range:                   cfg.Range,
		MaxPercentage:           cfg.MaxPercentage,
		FacilitySpecificTargets: cfg.FacilitySpecificTargets,
	}
	if fj.Type == "" && fj.Formula == "" && fj.TargetValue == nil && fj.Range == nil &&
		fj.MaxPercentage == nil && len(fj.FacilitySpecificTargets) == 0 {
		return nil
	}
	return fj
}

// targetValueString keeps the stored polymorphic target as text.
// JSON strings are unquoted; objects, numbers and booleans keep their
// JSON text, which generic.ParseTarget understands.
func targetValueString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
