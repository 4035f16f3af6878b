package remuneration_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/remuneration-engine/catalog"
	"github.com/warp/remuneration-engine/generic"
	"github.com/warp/remuneration-engine/remuneration"
	"github.com/warp/remuneration-engine/remuneration/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	march2025 = generic.MustParseReportMonth("2025-03")
	fixedNow  = time.Date(2025, time.April, 2, 9, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal { return generic.MustParseDecimal(s) }

func decEqual(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got.String(), msgAndArgs)
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *store.Memory
	diag  *recordingDiagnostics
	eng   *remuneration.Engine
}

func newFixture(t *testing.T, opts ...remuneration.Option) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: store.NewMemory(),
		diag:  &recordingDiagnostics{},
	}
	seq := 0
	opts = append([]remuneration.Option{
		remuneration.WithDiagnostics(f.diag),
		remuneration.WithClock(func() time.Time { return fixedNow }),
		remuneration.WithIDGenerator(func() string {
			seq++
			return "id-" + decimal.NewFromInt(int64(seq)).String()
		}),
	}, opts...)
	f.eng = remuneration.NewEngine(f.store, catalog.DefaultRules(), opts...)
	return f
}

func (f *fixture) facility(id, facilityType string) {
	f.t.Helper()
	require.NoError(f.t, f.store.SaveFacility(f.ctx, remuneration.Facility{
		ID: id, Name: id, FacilityTypeID: "ft-" + facilityType, FacilityTypeName: facilityType, DistrictID: "d-1",
	}))
}

func (f *fixture) presets(codes ...string) {
	f.t.Helper()
	require.NoError(f.t, catalog.Install(f.ctx, f.store, catalog.Select(codes...)))
}

// indicator registers a single-field indicator payable at every facility type.
func (f *fixture) indicator(code string, typ generic.TargetType, target string, max string) {
	f.t.Helper()
	field := remuneration.Field{ID: catalog.FieldID(code), Code: code, DataType: remuneration.FieldNumeric}
	require.NoError(f.t, f.store.SaveField(f.ctx, field))
	require.NoError(f.t, f.store.SaveIndicator(f.ctx, remuneration.Indicator{
		ID: catalog.IndicatorID(code), Code: code, TargetType: typ, TargetValue: target,
		NumeratorFieldID:        field.ID,
		ApplicableFacilityTypes: catalog.FacilityTypes(),
	}))
	for _, ft := range catalog.FacilityTypes() {
		require.NoError(f.t, f.store.SaveRemunerationConfig(f.ctx, catalog.IndicatorID(code), remuneration.RemunerationConfig{
			FacilityType: ft, BaseAmount: dec(max),
		}))
	}
}

func (f *fixture) worker(id, facilityID string, typ remuneration.WorkerType, allocated string) {
	f.t.Helper()
	require.NoError(f.t, f.store.SaveWorker(f.ctx, remuneration.Worker{
		ID: id, FacilityID: facilityID, Name: id, WorkerType: typ, AllocatedAmount: dec(allocated),
	}))
}

// values stores field values directly, bypassing the submitter.
func (f *fixture) values(facilityID string, month generic.ReportMonth, byCode map[string]string) {
	f.t.Helper()
	var values []remuneration.FieldValue
	for code, v := range byCode {
		n := dec(v)
		values = append(values, remuneration.FieldValue{
			ID: "fv-" + code, FacilityID: facilityID, ReportMonth: month,
			FieldID: catalog.FieldID(code), FieldCode: code, NumericValue: &n,
		})
	}
	require.NoError(f.t, f.store.ReplaceFieldValues(f.ctx, facilityID, month, values))
}

func numeric(fieldCode, v string) remuneration.SubmittedValue {
	n := dec(v)
	return remuneration.SubmittedValue{FieldID: catalog.FieldID(fieldCode), NumericValue: &n}
}

func str(fieldCode, v string) remuneration.SubmittedValue {
	return remuneration.SubmittedValue{FieldID: catalog.FieldID(fieldCode), StringValue: &v}
}

func jsonValue(fieldCode, raw string) remuneration.SubmittedValue {
	return remuneration.SubmittedValue{FieldID: catalog.FieldID(fieldCode), JSONValue: json.RawMessage(raw)}
}

// =============================================================================
// RECORDING DIAGNOSTICS
// =============================================================================

type recordingDiagnostics struct {
	mu       sync.Mutex
	scored   []remuneration.IndicatorTrace
	skipped  []string
	failed   []string
	finished []*remuneration.Result
}

func (d *recordingDiagnostics) IndicatorScored(_ context.Context, tr remuneration.IndicatorTrace) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scored = append(d.scored, tr)
}

func (d *recordingDiagnostics) IndicatorSkipped(_ context.Context, _, code string, _ error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.skipped = append(d.skipped, code)
}

func (d *recordingDiagnostics) RecordFailed(_ context.Context, kind, key string, _ error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failed = append(d.failed, kind+":"+key)
}

func (d *recordingDiagnostics) RecomputeFinished(_ context.Context, r *remuneration.Result, _ time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finished = append(d.finished, r)
}
