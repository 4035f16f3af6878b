/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain records from the external contract: snake_case names,
  decimals as strings, months as YYYY-MM.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

RECORD IDS:
  Derived records keep the ID of their first insert across recomputes,
  while a freshly computed Result carries newly generated IDs. IDs are
  therefore not part of the contract; records are identified by their
  natural keys (indicator code, worker ID).

VALIDATION:
  Validation is done by the submitter, not in DTOs. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - remuneration/submit.go: Submission validation
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/remuneration-engine/remuneration"
)

// =============================================================================
// SUBMISSION
// =============================================================================

// SubmissionRequest is the body of POST .../submissions/{month}.
type SubmissionRequest struct {
	UploadedBy  string              `json:"uploaded_by"`
	FieldValues []FieldValueRequest `json:"field_values"`
}

// FieldValueRequest carries exactly one of the value slots.
type FieldValueRequest struct {
	FieldID        string           `json:"field_id"`
	StringValue    *string          `json:"string_value,omitempty"`
	NumericValue   *decimal.Decimal `json:"numeric_value,omitempty"`
	BooleanValue   *bool            `json:"boolean_value,omitempty"`
	JSONValue      json.RawMessage  `json:"json_value,omitempty"`
	IsOverride     bool             `json:"is_override,omitempty"`
	OverrideReason string           `json:"override_reason,omitempty"`
}

type FieldValueDTO struct {
	FieldID        string           `json:"field_id"`
	FieldCode      string           `json:"field_code"`
	StringValue    *string          `json:"string_value,omitempty"`
	NumericValue   *decimal.Decimal `json:"numeric_value,omitempty"`
	BooleanValue   *bool            `json:"boolean_value,omitempty"`
	JSONValue      json.RawMessage  `json:"json_value,omitempty"`
	UploadedBy     string           `json:"uploaded_by,omitempty"`
	IsOverride     bool             `json:"is_override"`
	OverrideReason string           `json:"override_reason,omitempty"`
}

type RejectedValueDTO struct {
	FieldID string `json:"field_id"`
	Reason  string `json:"reason"`
}

// SubmissionResponse reports what was saved and how scoring went.
// Remuneration is null when scoring failed after the values were saved.
type SubmissionResponse struct {
	FacilityID        string             `json:"facility_id"`
	ReportMonth       string             `json:"report_month"`
	FieldValues       []FieldValueDTO    `json:"field_values"`
	Rejected          []RejectedValueDTO `json:"rejected"`
	Remuneration      *RecomputeDTO      `json:"remuneration"`
	RemunerationError string             `json:"remuneration_error,omitempty"`
}

// =============================================================================
// REMUNERATION
// =============================================================================

type SummaryDTO struct {
	PerformancePercentage decimal.Decimal `json:"performance_percentage"`
	FacilityRemuneration  decimal.Decimal `json:"facility_remuneration"`
	WorkerRemuneration    decimal.Decimal `json:"worker_remuneration"`
	GrandTotal            decimal.Decimal `json:"grand_total"`
	HWCount               int             `json:"hw_count"`
	ASHACount             int             `json:"asha_count"`
	CalculatedAt          string          `json:"calculated_at,omitempty"`
}

type IndicatorDTO struct {
	IndicatorID        string          `json:"indicator_id"`
	IndicatorCode      string          `json:"indicator_code"`
	ActualValue        decimal.Decimal `json:"actual_value"`
	TargetValue        decimal.Decimal `json:"target_value"`
	AchievedPercentage decimal.Decimal `json:"achieved_percentage"`
	IncentiveAmount    decimal.Decimal `json:"incentive_amount"`
	MaxRemuneration    decimal.Decimal `json:"max_remuneration"`
	Status             string          `json:"status"`
	Excluded           bool            `json:"excluded_from_performance,omitempty"`
	Error              string          `json:"error,omitempty"`
}

type WorkerDTO struct {
	WorkerID              string          `json:"worker_id"`
	WorkerType            string          `json:"worker_type"`
	AllocatedAmount       decimal.Decimal `json:"allocated_amount"`
	PerformancePercentage decimal.Decimal `json:"performance_percentage"`
	CalculatedAmount      decimal.Decimal `json:"calculated_amount"`
	Error                 string          `json:"error,omitempty"`
}

// SkippedIndicatorDTO is an indicator that produced no record.
type SkippedIndicatorDTO struct {
	IndicatorCode string `json:"indicator_code"`
	Reason        string `json:"reason"`
}

// ReportDTO is the latest persisted remuneration for a period.
type ReportDTO struct {
	FacilityID  string         `json:"facility_id"`
	ReportMonth string         `json:"report_month"`
	Summary     SummaryDTO     `json:"summary"`
	Indicators  []IndicatorDTO `json:"indicators"`
	Workers     []WorkerDTO    `json:"workers"`
}

// RecomputeDTO is the outcome of one recompute.
type RecomputeDTO struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	ReportDTO
	Skipped []SkippedIndicatorDTO `json:"skipped"`
}

type PeriodDTO struct {
	FacilityID  string `json:"facility_id"`
	ReportMonth string `json:"report_month"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toSummaryDTO(c remuneration.Calculation) SummaryDTO {
	dto := SummaryDTO{
		PerformancePercentage: c.PerformancePercentage,
		FacilityRemuneration:  c.FacilityRemuneration,
		WorkerRemuneration:    c.WorkerRemuneration,
		GrandTotal:            c.GrandTotal,
		HWCount:               c.HWCount,
		ASHACount:             c.ASHACount,
	}
	if !c.CalculatedAt.IsZero() {
		dto.CalculatedAt = c.CalculatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toIndicatorDTO(r remuneration.FacilityRecord) IndicatorDTO {
	return IndicatorDTO{
		IndicatorID:        r.IndicatorID,
		IndicatorCode:      r.IndicatorCode,
		ActualValue:        r.ActualValue,
		TargetValue:        r.TargetValue,
		AchievedPercentage: r.AchievedPercentage,
		IncentiveAmount:    r.IncentiveAmount,
		MaxRemuneration:    r.MaxRemuneration,
		Status:             string(r.Status),
	}
}

func toWorkerDTO(r remuneration.WorkerRecord) WorkerDTO {
	return WorkerDTO{
		WorkerID:              r.WorkerID,
		WorkerType:            string(r.WorkerType),
		AllocatedAmount:       r.AllocatedAmount,
		PerformancePercentage: r.PerformancePercentage,
		CalculatedAmount:      r.CalculatedAmount,
	}
}

func toReportDTO(rep *remuneration.Report) ReportDTO {
	dto := ReportDTO{
		FacilityID:  rep.Summary.FacilityID,
		ReportMonth: rep.Summary.ReportMonth.String(),
		Summary:     toSummaryDTO(rep.Summary),
		Indicators:  make([]IndicatorDTO, 0, len(rep.Indicators)),
		Workers:     make([]WorkerDTO, 0, len(rep.Workers)),
	}
	for _, r := range rep.Indicators {
		dto.Indicators = append(dto.Indicators, toIndicatorDTO(r))
	}
	for _, r := range rep.Workers {
		dto.Workers = append(dto.Workers, toWorkerDTO(r))
	}
	return dto
}

func toRecomputeDTO(res *remuneration.Result) *RecomputeDTO {
	dto := &RecomputeDTO{
		Success: res.Success,
		Error:   res.Error,
		ReportDTO: ReportDTO{
			FacilityID:  res.FacilityID,
			ReportMonth: res.ReportMonth.String(),
			Summary:     toSummaryDTO(res.Summary),
			Indicators:  []IndicatorDTO{},
			Workers:     []WorkerDTO{},
		},
		Skipped: []SkippedIndicatorDTO{},
	}

	for _, o := range res.Indicators {
		if o.Record == nil {
			reason := "skipped"
			if o.Err != nil {
				reason = o.Err.Error()
			}
			dto.Skipped = append(dto.Skipped, SkippedIndicatorDTO{IndicatorCode: o.IndicatorCode, Reason: reason})
			continue
		}
		ind := toIndicatorDTO(*o.Record)
		ind.Excluded = o.Excluded
		if o.Err != nil {
			ind.Error = o.Err.Error()
		}
		dto.Indicators = append(dto.Indicators, ind)
	}

	for _, o := range res.Workers {
		if o.Record == nil {
			dto.Workers = append(dto.Workers, WorkerDTO{WorkerID: o.WorkerID, Error: errString(o.Err)})
			continue
		}
		w := toWorkerDTO(*o.Record)
		w.Error = errString(o.Err)
		dto.Workers = append(dto.Workers, w)
	}
	return dto
}

func toSubmissionResponse(res *remuneration.SubmissionResult) SubmissionResponse {
	resp := SubmissionResponse{
		FacilityID:        res.FacilityID,
		ReportMonth:       res.ReportMonth.String(),
		FieldValues:       make([]FieldValueDTO, 0, len(res.FieldValues)),
		Rejected:          make([]RejectedValueDTO, 0, len(res.Rejected)),
		RemunerationError: res.RemunerationError,
	}
	for _, v := range res.FieldValues {
		resp.FieldValues = append(resp.FieldValues, FieldValueDTO{
			FieldID:        v.FieldID,
			FieldCode:      v.FieldCode,
			StringValue:    v.StringValue,
			NumericValue:   v.NumericValue,
			BooleanValue:   v.BooleanValue,
			JSONValue:      v.JSONValue,
			UploadedBy:     v.UploadedBy,
			IsOverride:     v.IsOverride,
			OverrideReason: v.OverrideReason,
		})
	}
	for _, r := range res.Rejected {
		resp.Rejected = append(resp.Rejected, RejectedValueDTO{FieldID: r.FieldID, Reason: r.Reason})
	}
	if res.Remuneration != nil {
		resp.Remuneration = toRecomputeDTO(res.Remuneration)
	}
	return resp
}

func (r SubmissionRequest) toSubmission(facilityID, month string) remuneration.Submission {
	sub := remuneration.Submission{
		FacilityID:  facilityID,
		ReportMonth: month,
		UploadedBy:  r.UploadedBy,
		Values:      make([]remuneration.SubmittedValue, 0, len(r.FieldValues)),
	}
	for _, v := range r.FieldValues {
		sub.Values = append(sub.Values, remuneration.SubmittedValue{
			FieldID:        v.FieldID,
			StringValue:    v.StringValue,
			NumericValue:   v.NumericValue,
			BooleanValue:   v.BooleanValue,
			JSONValue:      v.JSONValue,
			IsOverride:     v.IsOverride,
			OverrideReason: v.OverrideReason,
		})
	}
	return sub
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
