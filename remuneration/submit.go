package remuneration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/remuneration-engine/generic"
)

// =============================================================================
// SUBMISSION - Ingestion boundary
// =============================================================================

// Submission is one facility's field data for a report month.
type Submission struct {
	FacilityID  string
	ReportMonth string // YYYY-MM
	UploadedBy  string
	Values      []SubmittedValue
}

type SubmittedValue struct {
	FieldID        string
	StringValue    *string
	NumericValue   *decimal.Decimal
	BooleanValue   *bool
	JSONValue      json.RawMessage
	IsOverride     bool
	OverrideReason string
}

// RejectedValue is a submitted value that was not stored.
type RejectedValue struct {
	FieldID string
	Reason  string
}

// SubmissionResult tells the caller what was saved and how scoring went.
// Field values are saved even when scoring fails; Remuneration is then
// nil and RemunerationError says why.
type SubmissionResult struct {
	FacilityID        string
	ReportMonth       generic.ReportMonth
	FieldValues       []FieldValue
	Rejected          []RejectedValue
	Remuneration      *Result
	RemunerationError string
}

// Submitter replaces a period's field values and triggers a recompute.
type Submitter struct {
	store    TxStore
	engine   *Engine
	now      func() time.Time
	newID    func() string
	replaced []func(context.Context, string, generic.ReportMonth)
}

type SubmitterOption func(*Submitter)

// WithReplacedHook registers fn to run once a submission's values have
// committed, before the recompute starts.
func WithReplacedHook(fn func(ctx context.Context, facilityID string, month generic.ReportMonth)) SubmitterOption {
	return func(s *Submitter) { s.replaced = append(s.replaced, fn) }
}

func NewSubmitter(store TxStore, engine *Engine, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		store:  store,
		engine: engine,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit stores the submission and recomputes remuneration.
//
// The field-value replace commits in its own transaction before scoring
// runs, so a scoring failure never loses submitted data. The replace also
// drops the period's previous summary, so a failed recompute leaves the
// period stale rather than reporting totals for the old values. An error
// is returned only when nothing was saved.
func (s *Submitter) Submit(ctx context.Context, sub Submission) (*SubmissionResult, error) {
	month, err := generic.ParseReportMonth(sub.ReportMonth)
	if err != nil {
		return nil, err
	}
	if len(sub.Values) == 0 {
		return nil, generic.ErrEmptySubmission
	}

	result := &SubmissionResult{FacilityID: sub.FacilityID, ReportMonth: month}

	err = s.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.GetFacility(ctx, sub.FacilityID); err != nil {
			return err
		}

		fields, err := tx.GetFields(ctx, fieldIDs(sub.Values))
		if err != nil {
			return fmt.Errorf("load fields: %w", err)
		}

		values, rejected := s.buildValues(sub, month, fields)
		result.Rejected = rejected
		if len(values) == 0 {
			return fmt.Errorf("%w: all %d values rejected", generic.ErrEmptySubmission, len(rejected))
		}

		if err := tx.ReplaceFieldValues(ctx, sub.FacilityID, month, values); err != nil {
			return fmt.Errorf("replace field values: %w", err)
		}
		result.FieldValues = values
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, fn := range s.replaced {
		fn(ctx, sub.FacilityID, month)
	}

	remuneration, err := s.engine.Recompute(ctx, sub.FacilityID, month)
	if err != nil {
		result.RemunerationError = err.Error()
		return result, nil
	}
	result.Remuneration = remuneration
	return result, nil
}

// buildValues drops unknown fields, empty values and values with more
// than one slot set. A field submitted more than once keeps its last value.
func (s *Submitter) buildValues(sub Submission, month generic.ReportMonth, fields map[string]Field) ([]FieldValue, []RejectedValue) {
	var rejected []RejectedValue
	position := make(map[string]int)
	var values []FieldValue
	now := s.now().UTC()

	for _, sv := range sub.Values {
		field, ok := fields[sv.FieldID]
		if !ok {
			err := &generic.UnknownFieldError{FieldID: sv.FieldID}
			rejected = append(rejected, RejectedValue{FieldID: sv.FieldID, Reason: err.Error()})
			continue
		}

		fv := FieldValue{
			ID:             s.newID(),
			FacilityID:     sub.FacilityID,
			ReportMonth:    month,
			FieldID:        field.ID,
			FieldCode:      field.Code,
			StringValue:    sv.StringValue,
			NumericValue:   sv.NumericValue,
			BooleanValue:   sv.BooleanValue,
			JSONValue:      sv.JSONValue,
			UploadedBy:     sub.UploadedBy,
			IsOverride:     sv.IsOverride,
			OverrideReason: sv.OverrideReason,
			CreatedAt:      now,
		}
		if n := fv.slots(); n != 1 {
			reason := "no value"
			if n > 1 {
				reason = "multiple value slots"
			}
			rejected = append(rejected, RejectedValue{FieldID: sv.FieldID, Reason: reason})
			continue
		}

		if i, dup := position[fv.FieldID]; dup {
			values[i] = fv
			continue
		}
		position[fv.FieldID] = len(values)
		values = append(values, fv)
	}
	return values, rejected
}

func fieldIDs(values []SubmittedValue) []string {
	ids := make([]string, 0, len(values))
	for _, v := range values {
		ids = append(ids, v.FieldID)
	}
	return ids
}

// IsSubmissionRejected reports whether err means nothing was saved
// because of the submission itself rather than the store.
func IsSubmissionRejected(err error) bool {
	return generic.IsClientError(err) || errors.Is(err, generic.ErrFacilityNotFound)
}
