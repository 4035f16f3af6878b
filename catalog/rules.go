/*
Package catalog provides ready-made reference configuration for the
remuneration engine.

PURPOSE:
  Facility type names, the default constant tables the resolver is
  injected with, and a small set of preset indicators covering every
  target type and special case. Deployments override the rules with a
  JSON file (see factory.ParseRules); the presets exist for tests and as
  documentation of how indicators are configured.

FACILITY TYPES:
  PHC     Primary Health Centre              population 25000
  SC_HWC  Sub Centre Health & Wellness       population  3000
  A_HWC   Ayushman Health & Wellness         population  3000
  U_HWC   Urban Health & Wellness            population 10000
  UPHC    Urban Primary Health Centre        population 50000

SPECIAL CASES:
  PS001   Patient satisfaction, always scored out of 5
  DV001   DVDMS issues, binary, expected 20/50/100 by facility type
  VM001   Village health meeting, Yes/No coded, yearly target of 1
  CT001   TB contact tracing, gated on total_tb_patients
  DC001   TB differentiated care, gated on total_tb_patients

SEE ALSO:
  - indicators.go: Preset indicator definitions
  - factory/rules.go: JSON overrides
*/
package catalog

import (
	"github.com/shopspring/decimal"
	"github.com/warp/remuneration-engine/remuneration"
)

// =============================================================================
// FACILITY TYPES
// =============================================================================

const (
	PHC   = "PHC"
	SCHWC = "SC_HWC"
	AHWC  = "A_HWC"
	UHWC  = "U_HWC"
	UPHC  = "UPHC"
)

func FacilityTypes() []string {
	return []string{PHC, SCHWC, AHWC, UHWC, UPHC}
}

// FieldTotalTBPatients is the code of the TB gating field.
const FieldTotalTBPatients = "total_tb_patients"

// =============================================================================
// DEFAULT RULES
// =============================================================================

// DefaultRules returns a fresh copy of the default constant tables.
func DefaultRules() remuneration.Rules {
	d := decimal.NewFromInt
	return remuneration.Rules{
		DefaultPopulation: map[string]decimal.Decimal{
			PHC:   d(25000),
			SCHWC: d(3000),
			AHWC:  d(3000),
			UHWC:  d(10000),
			UPHC:  d(50000),
		},
		FallbackPopulation: d(3000),
		FixedScale: map[string]decimal.Decimal{
			CodeSatisfaction: d(5),
		},
		BinaryTargetCounts: map[string]map[string]decimal.Decimal{
			CodeDVDMS: {
				SCHWC: d(20),
				AHWC:  d(20),
				PHC:   d(50),
				UHWC:  d(50),
				UPHC:  d(100),
			},
		},
		BinaryTargetDefaults: map[string]decimal.Decimal{
			CodeVHSNCMeeting: d(1),
		},
		YesNoIndicators:         []string{CodeVHSNCMeeting},
		TBConditionalIndicators: []string{CodeTBContactTracing, CodeTBDifferentiatedCare},
		TBGatingField:           FieldTotalTBPatients,
	}
}
