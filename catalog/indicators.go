package catalog

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/remuneration-engine/generic"
	"github.com/warp/remuneration-engine/remuneration"
)

// =============================================================================
// PRESET INDICATOR CODES
// =============================================================================

const (
	CodeTBContactTracing     = "CT001"
	CodeTBDifferentiatedCare = "DC001"
	CodeElderlyClinic        = "ES001"
	CodeSatisfaction         = "PS001"
	CodeDVDMS                = "DV001"
	CodeVHSNCMeeting         = "VM001"
	CodeTeleconsultation     = "TF001"
)

// Preset is an indicator together with the fields it reads and its
// payout per facility type.
type Preset struct {
	Indicator remuneration.Indicator
	Fields    []remuneration.Field
	Amounts   []remuneration.RemunerationConfig
}

// FieldID returns the ID used for a preset field code.
func FieldID(code string) string { return "fld-" + code }

// IndicatorID returns the ID used for a preset indicator code.
func IndicatorID(code string) string { return "ind-" + code }

func numericField(code, name string) remuneration.Field {
	return remuneration.Field{ID: FieldID(code), Code: code, Name: name, DataType: remuneration.FieldNumeric}
}

func amounts(base int64, types ...string) []remuneration.RemunerationConfig {
	out := make([]remuneration.RemunerationConfig, 0, len(types))
	for _, ft := range types {
		out = append(out, remuneration.RemunerationConfig{FacilityType: ft, BaseAmount: decimal.NewFromInt(base)})
	}
	return out
}

// =============================================================================
// PRESETS
// =============================================================================

// TBGatingField is the field every TB-conditional preset depends on.
func TBGatingField() remuneration.Field {
	return numericField(FieldTotalTBPatients, "Total TB patients")
}

// Presets returns the preset indicators.
func Presets() []Preset {
	all := FacilityTypes()
	conditional := decimal.NewFromInt(250)

	tbAmounts := func() []remuneration.RemunerationConfig {
		cfgs := amounts(500, all...)
		for i := range cfgs {
			c := conditional
			cfgs[i].ConditionalAmount = &c
		}
		return cfgs
	}

	return []Preset{
		{
			Indicator: remuneration.Indicator{
				ID: IndicatorID(CodeTBContactTracing), Code: CodeTBContactTracing,
				Name:                    "TB contacts traced",
				TargetType:              generic.TargetTypePercentageRange,
				TargetValue:             `{"min":80,"max":100}`,
				NumeratorFieldID:        FieldID("tb_contacts_traced"),
				DenominatorFieldID:      FieldID("tb_contacts_total"),
				ApplicableFacilityTypes: all,
			},
			Fields: []remuneration.Field{
				numericField("tb_contacts_traced", "TB contacts traced"),
				numericField("tb_contacts_total", "TB contacts identified"),
				TBGatingField(),
			},
			Amounts: tbAmounts(),
		},
		{
			Indicator: remuneration.Indicator{
				ID: IndicatorID(CodeTBDifferentiatedCare), Code: CodeTBDifferentiatedCare,
				Name:                    "TB patients on differentiated care",
				TargetType:              generic.TargetTypePercentageRange,
				TargetValue:             "60-100%",
				NumeratorFieldID:        FieldID("tb_differentiated_care"),
				DenominatorFieldID:      FieldID(FieldTotalTBPatients),
				ApplicableFacilityTypes: all,
			},
			Fields: []remuneration.Field{
				numericField("tb_differentiated_care", "TB patients on differentiated care"),
				TBGatingField(),
			},
			Amounts: tbAmounts(),
		},
		{
			Indicator: remuneration.Indicator{
				ID: IndicatorID(CodeElderlyClinic), Code: CodeElderlyClinic,
				Name:        "Elderly support clinics held",
				TargetType:  generic.TargetTypeRange,
				TargetValue: "4",
				FormulaConfig: generic.FormulaConfig{
					FacilitySpecificTargets: map[string]decimal.Decimal{
						SCHWC: decimal.NewFromInt(1),
						PHC:   decimal.NewFromInt(4),
						AHWC:  decimal.NewFromInt(4),
						UHWC:  decimal.NewFromInt(4),
						UPHC:  decimal.NewFromInt(4),
					},
				},
				NumeratorFieldID:        FieldID("elderly_clinics"),
				ApplicableFacilityTypes: all,
			},
			Fields:  []remuneration.Field{numericField("elderly_clinics", "Elderly support clinics held")},
			Amounts: amounts(400, all...),
		},
		{
			Indicator: remuneration.Indicator{
				ID: IndicatorID(CodeSatisfaction), Code: CodeSatisfaction,
				Name:                    "Patient satisfaction score",
				TargetType:              generic.TargetTypePercentageRange,
				TargetValue:             "70-100%",
				NumeratorFieldID:        FieldID("satisfaction_score"),
				ApplicableFacilityTypes: all,
			},
			Fields:  []remuneration.Field{numericField("satisfaction_score", "Average satisfaction (out of 5)")},
			Amounts: amounts(300, all...),
		},
		{
			Indicator: remuneration.Indicator{
				ID: IndicatorID(CodeDVDMS), Code: CodeDVDMS,
				Name:                    "Drugs issued through DVDMS",
				TargetType:              generic.TargetTypeBinary,
				TargetValue:             "true",
				NumeratorFieldID:        FieldID("dvdms_issues"),
				ApplicableFacilityTypes: all,
			},
			Fields:  []remuneration.Field{numericField("dvdms_issues", "DVDMS issues")},
			Amounts: amounts(500, all...),
		},
		{
			Indicator: remuneration.Indicator{
				ID: IndicatorID(CodeVHSNCMeeting), Code: CodeVHSNCMeeting,
				Name:                    "Village health committee meeting held",
				TargetType:              generic.TargetTypeBinary,
				TargetValue:             "true",
				NumeratorFieldID:        FieldID("vhsnc_meeting_held"),
				ApplicableFacilityTypes: []string{SCHWC, AHWC},
			},
			Fields: []remuneration.Field{{
				ID: FieldID("vhsnc_meeting_held"), Code: "vhsnc_meeting_held",
				Name: "VHSNC meeting held (1/0)", DataType: remuneration.FieldString,
			}},
			Amounts: amounts(200, SCHWC, AHWC),
		},
		{
			Indicator: remuneration.Indicator{
				ID: IndicatorID(CodeTeleconsultation), Code: CodeTeleconsultation,
				Name:        "Teleconsultations per population",
				TargetType:  generic.TargetTypePercentageRange,
				TargetValue: "3-5%",
				FormulaConfig: generic.FormulaConfig{
					Formula: "(A/(B/12))*100",
				},
				NumeratorFieldID:        FieldID("teleconsultations"),
				DenominatorFieldID:      FieldID("population"),
				ApplicableFacilityTypes: all,
			},
			Fields: []remuneration.Field{
				numericField("teleconsultations", "Teleconsultations"),
				numericField("population", "Catchment population"),
			},
			Amounts: amounts(1000, all...),
		},
	}
}

// Install saves presets into a store. Fields shared between presets are
// saved once.
func Install(ctx context.Context, store remuneration.MasterDataStore, presets []Preset) error {
	seen := make(map[string]bool)
	for _, p := range presets {
		for _, f := range p.Fields {
			if seen[f.ID] {
				continue
			}
			if err := store.SaveField(ctx, f); err != nil {
				return fmt.Errorf("save field %s: %w", f.Code, err)
			}
			seen[f.ID] = true
		}
		if err := store.SaveIndicator(ctx, p.Indicator); err != nil {
			return fmt.Errorf("save indicator %s: %w", p.Indicator.Code, err)
		}
		for _, cfg := range p.Amounts {
			if err := store.SaveRemunerationConfig(ctx, p.Indicator.ID, cfg); err != nil {
				return fmt.Errorf("save remuneration config %s/%s: %w", p.Indicator.Code, cfg.FacilityType, err)
			}
		}
	}
	return nil
}

// Select returns the presets with the given codes, in catalog order.
func Select(codes ...string) []Preset {
	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		want[c] = true
	}
	var out []Preset
	for _, p := range Presets() {
		if want[p.Indicator.Code] {
			out = append(out, p)
		}
	}
	return out
}
