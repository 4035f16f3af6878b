// Package remuneration implements facility performance incentives.
// It resolves submitted field values against indicator targets, scores
// them with the generic kernel and persists facility, worker and summary
// records for each (facility, report month).
package remuneration

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/remuneration-engine/generic"
)

// =============================================================================
// MASTER DATA
// =============================================================================

type Facility struct {
	ID               string
	Name             string
	FacilityTypeID   string
	FacilityTypeName string
	DistrictID       string
}

type FieldDataType string

const (
	FieldNumeric FieldDataType = "numeric"
	FieldString  FieldDataType = "string"
	FieldBoolean FieldDataType = "boolean"
	FieldJSON    FieldDataType = "json"
)

// Field is a reportable datum. Field values reference it by ID.
type Field struct {
	ID       string
	Code     string
	Name     string
	DataType FieldDataType
}

// RemunerationConfig is an indicator's payout for one facility type.
type RemunerationConfig struct {
	FacilityType      string
	BaseAmount        decimal.Decimal
	ConditionalAmount *decimal.Decimal
}

// Indicator is a scored performance metric.
type Indicator struct {
	ID            string
	Code          string
	Name          string
	TargetType    generic.TargetType
	TargetValue   string // raw stored form, see generic.ParseTarget
	FormulaConfig generic.FormulaConfig

	NumeratorFieldID   string
	DenominatorFieldID string // optional
	TargetFieldID      string // optional

	ApplicableFacilityTypes []string

	// Remuneration is resolved for the facility type being scored.
	// Nil when the indicator has no config for that type.
	Remuneration *RemunerationConfig
}

// AppliesTo reports whether the indicator is scored for a facility type.
func (i Indicator) AppliesTo(facilityType string) bool {
	for _, ft := range i.ApplicableFacilityTypes {
		if ft == facilityType {
			return true
		}
	}
	return false
}

// =============================================================================
// FIELD VALUES
// =============================================================================

// FieldValue is one raw datum submitted for a report month.
// Exactly one of the value slots is set.
type FieldValue struct {
	ID          string
	FacilityID  string
	ReportMonth generic.ReportMonth
	FieldID     string
	FieldCode   string

	StringValue  *string
	NumericValue *decimal.Decimal
	BooleanValue *bool
	JSONValue    json.RawMessage

	UploadedBy     string
	IsOverride     bool
	OverrideReason string
	CreatedAt      time.Time
}

// HasValue reports whether any value slot is populated.
func (v FieldValue) HasValue() bool {
	return v.slots() > 0
}

// slots counts the populated value slots. A stored value has exactly one.
func (v FieldValue) slots() int {
	n := 0
	if v.StringValue != nil {
		n++
	}
	if v.NumericValue != nil {
		n++
	}
	if v.BooleanValue != nil {
		n++
	}
	if len(v.JSONValue) > 0 && string(v.JSONValue) != "null" {
		n++
	}
	return n
}

// =============================================================================
// WORKERS
// =============================================================================

type WorkerType string

const (
	WorkerHW   WorkerType = "hw"
	WorkerASHA WorkerType = "asha"
)

// Scored reports whether the worker type receives a performance-scaled payout.
func (t WorkerType) Scored() bool {
	return t == WorkerHW || t == WorkerASHA
}

type Worker struct {
	ID              string
	FacilityID      string
	Name            string
	WorkerType      WorkerType
	AllocatedAmount decimal.Decimal
}

// =============================================================================
// DERIVED RECORDS
// =============================================================================

type Status string

const (
	StatusAchieved    Status = "achieved"
	StatusPartial     Status = "partial"
	StatusNotAchieved Status = "not_achieved"
)

// StatusFor buckets a display percentage.
func StatusFor(pct decimal.Decimal) Status {
	switch {
	case pct.GreaterThanOrEqual(generic.Hundred):
		return StatusAchieved
	case pct.GreaterThanOrEqual(generic.Half):
		return StatusPartial
	default:
		return StatusNotAchieved
	}
}

// FacilityRecord is the score for one indicator.
// Keyed by (FacilityID, ReportMonth, IndicatorID).
type FacilityRecord struct {
	ID                 string
	FacilityID         string
	ReportMonth        generic.ReportMonth
	IndicatorID        string
	IndicatorCode      string
	ActualValue        decimal.Decimal
	TargetValue        decimal.Decimal
	AchievedPercentage decimal.Decimal // display percentage
	IncentiveAmount    decimal.Decimal
	MaxRemuneration    decimal.Decimal
	Status             Status
	UpdatedAt          time.Time
}

// WorkerRecord is one worker's payout. Keyed by (WorkerID, ReportMonth).
type WorkerRecord struct {
	ID                    string
	WorkerID              string
	FacilityID            string
	ReportMonth           generic.ReportMonth
	WorkerType            WorkerType
	AllocatedAmount       decimal.Decimal
	PerformancePercentage decimal.Decimal
	CalculatedAmount      decimal.Decimal
	UpdatedAt             time.Time
}

// Calculation is the summary for a facility and month.
// Keyed by (FacilityID, ReportMonth).
type Calculation struct {
	ID                    string
	FacilityID            string
	ReportMonth           generic.ReportMonth
	PerformancePercentage decimal.Decimal
	FacilityRemuneration  decimal.Decimal
	WorkerRemuneration    decimal.Decimal
	GrandTotal            decimal.Decimal
	HWCount               int
	ASHACount             int
	CalculatedAt          time.Time
}

// Period identifies a facility and month, used for stale-period sweeps.
type Period struct {
	FacilityID  string
	ReportMonth generic.ReportMonth
}
