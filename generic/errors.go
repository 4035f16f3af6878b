/*
errors.go - Centralized error types for the remuneration engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The remuneration and store packages wrap these errors with context.

ERROR CATEGORIES:
  1. Not-found errors - Missing facility (fatal for a submission),
     missing calculation (reporting reads)
  2. Configuration errors - Missing remuneration config, unknown field
     (non-fatal, the indicator or value is skipped)
  3. Input errors - Malformed report month, empty submission

  Arithmetic edge cases are NOT errors: zero denominators, unparseable
  targets and unknown formulas resolve to 0 / fallback values by
  construction (see formula.go, target.go).

USAGE:
  if errors.Is(err, generic.ErrFacilityNotFound) {
      // 404
  }

SEE ALSO:
  - remuneration/engine.go: Records per-indicator errors in the outcome fold
  - api/handlers.go: Maps errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrFacilityNotFound is returned when a referenced facility doesn't exist.
	ErrFacilityNotFound = errors.New("facility not found")

	// ErrMissingRemunerationConfig is recorded when an indicator has no
	// remuneration amounts for the facility's type. The indicator is skipped.
	ErrMissingRemunerationConfig = errors.New("missing remuneration config for facility type")

	// ErrUnknownField is returned when a field value references a field
	// that doesn't exist.
	ErrUnknownField = errors.New("unknown field")

	// ErrInvalidReportMonth is returned when a report month is not YYYY-MM.
	ErrInvalidReportMonth = errors.New("invalid report month: expected YYYY-MM")

	// ErrEmptySubmission is returned when a submission has no usable values.
	ErrEmptySubmission = errors.New("submission has no field values")

	// ErrCalculationPanic is recorded when an indicator calculation panics.
	ErrCalculationPanic = errors.New("indicator calculation panicked")

	// ErrNotComputed is returned when no calculation exists for a facility and month.
	ErrNotComputed = errors.New("remuneration not computed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FacilityNotFoundError names the missing facility.
type FacilityNotFoundError struct {
	FacilityID string
}

func (e *FacilityNotFoundError) Error() string {
	return fmt.Sprintf("facility not found: %s", e.FacilityID)
}

func (e *FacilityNotFoundError) Unwrap() error {
	return ErrFacilityNotFound
}

// IndicatorError ties a failure to the indicator being processed.
type IndicatorError struct {
	IndicatorID string
	Code        string
	Stage       string // "resolve", "calculate", "persist"
	Err         error
}

func (e *IndicatorError) Error() string {
	return fmt.Sprintf("indicator %s (%s) %s: %v", e.Code, e.IndicatorID, e.Stage, e.Err)
}

func (e *IndicatorError) Unwrap() error {
	return e.Err
}

// UnknownFieldError names the field that was not found.
type UnknownFieldError struct {
	FieldID string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field: %s", e.FieldID)
}

func (e *UnknownFieldError) Unwrap() error {
	return ErrUnknownField
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidReportMonth) ||
		errors.Is(err, ErrEmptySubmission) ||
		errors.Is(err, ErrUnknownField)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFacilityNotFound) || errors.Is(err, ErrNotComputed)
}
