package remuneration

import (
	"context"
	"errors"
	"fmt"

	"github.com/warp/remuneration-engine/generic"
)

// =============================================================================
// REPORT - Read model for one (facility, month)
// =============================================================================

// Report is the persisted outcome of the latest recompute.
type Report struct {
	Summary    Calculation      `json:"summary"`
	Indicators []FacilityRecord `json:"indicators"`
	Workers    []WorkerRecord   `json:"workers"`
}

// ReportSource loads reports. The plain store and the cache both
// implement it.
type ReportSource interface {
	LoadReport(ctx context.Context, facilityID string, month generic.ReportMonth) (*Report, error)
}

// StoreReports reads reports straight from a ReportStore.
type StoreReports struct {
	Store ReportStore
}

// LoadReport returns generic.ErrNotComputed (wrapped) when the period has
// no summary.
func (s StoreReports) LoadReport(ctx context.Context, facilityID string, month generic.ReportMonth) (*Report, error) {
	calc, err := s.Store.GetCalculation(ctx, facilityID, month)
	if err != nil {
		return nil, err
	}
	indicators, err := s.Store.ListFacilityRecords(ctx, facilityID, month)
	if err != nil {
		return nil, fmt.Errorf("load facility records: %w", err)
	}
	workers, err := s.Store.ListWorkerRecords(ctx, facilityID, month)
	if err != nil {
		return nil, fmt.Errorf("load worker records: %w", err)
	}
	return &Report{Summary: *calc, Indicators: indicators, Workers: workers}, nil
}

// ReportFromResult builds the report a successful recompute persisted.
// Records whose upsert failed are left out.
func ReportFromResult(res *Result) *Report {
	rep := &Report{Summary: res.Summary}
	for _, o := range res.Indicators {
		if o.Record == nil || persistFailed(o.Err) {
			continue
		}
		rep.Indicators = append(rep.Indicators, *o.Record)
	}
	for _, o := range res.Workers {
		if o.Record == nil || o.Err != nil {
			continue
		}
		rep.Workers = append(rep.Workers, *o.Record)
	}
	return rep
}

func persistFailed(err error) bool {
	var ie *generic.IndicatorError
	return errors.As(err, &ie) && ie.Stage == "persist"
}
