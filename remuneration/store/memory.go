// Package store provides an in-memory remuneration store for tests and
// local development.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/remuneration-engine/generic"
	"github.com/warp/remuneration-engine/remuneration"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Failure injection points for FailOn.
const (
	OpFacilityRecord = "facility_record" // key: indicator ID
	OpWorkerRecord   = "worker_record"   // key: worker ID
	OpCalculation    = "calculation"     // key: facility ID
	OpFieldValues    = "field_values"    // key: facility ID
	OpIndicators     = "indicators"      // key: facility type
)

type periodKey struct {
	FacilityID string
	Month      generic.ReportMonth
}

type recordKey struct {
	FacilityID  string
	Month       generic.ReportMonth
	IndicatorID string
}

type workerKey struct {
	WorkerID string
	Month    generic.ReportMonth
}

type state struct {
	facilities      map[string]remuneration.Facility
	fields          map[string]remuneration.Field
	indicators      map[string]remuneration.Indicator
	remConfigs      map[string]map[string]remuneration.RemunerationConfig
	workers         map[string]remuneration.Worker
	fieldValues     map[periodKey][]remuneration.FieldValue
	facilityRecords map[recordKey]remuneration.FacilityRecord
	workerRecords   map[workerKey]remuneration.WorkerRecord
	calculations    map[periodKey]remuneration.Calculation
}

func newState() *state {
	return &state{
		facilities:      make(map[string]remuneration.Facility),
		fields:          make(map[string]remuneration.Field),
		indicators:      make(map[string]remuneration.Indicator),
		remConfigs:      make(map[string]map[string]remuneration.RemunerationConfig),
		workers:         make(map[string]remuneration.Worker),
		fieldValues:     make(map[periodKey][]remuneration.FieldValue),
		facilityRecords: make(map[recordKey]remuneration.FacilityRecord),
		workerRecords:   make(map[workerKey]remuneration.WorkerRecord),
		calculations:    make(map[periodKey]remuneration.Calculation),
	}
}

// Memory implements remuneration.TxStore, ReportStore and MasterDataStore.
type Memory struct {
	mu       sync.RWMutex
	data     *state
	failures map[string]error
}

var (
	_ remuneration.TxStore         = (*Memory)(nil)
	_ remuneration.ReportStore     = (*Memory)(nil)
	_ remuneration.MasterDataStore = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{data: newState(), failures: make(map[string]error)}
}

// FailOn makes the given operation fail with err for key.
func (m *Memory) FailOn(op, key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op+":"+key] = err
}

// ClearFailures removes every injected failure.
func (m *Memory) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = make(map[string]error)
}

// view gives the shared read/write logic access to state and failures
// without taking the lock.
func (m *Memory) view() *txView { return &txView{data: m.data, failures: m.failures} }

// =============================================================================
// STORE (locking wrappers)
// =============================================================================

func (m *Memory) GetFacility(ctx context.Context, id string) (*remuneration.Facility, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetFacility(ctx, id)
}

func (m *Memory) ListIndicators(ctx context.Context, facilityType string) ([]remuneration.Indicator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListIndicators(ctx, facilityType)
}

func (m *Memory) ListFieldValues(ctx context.Context, facilityID string, month generic.ReportMonth) ([]remuneration.FieldValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListFieldValues(ctx, facilityID, month)
}

func (m *Memory) ListWorkers(ctx context.Context, facilityID string) ([]remuneration.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListWorkers(ctx, facilityID)
}

func (m *Memory) GetFields(ctx context.Context, ids []string) (map[string]remuneration.Field, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetFields(ctx, ids)
}

func (m *Memory) ReplaceFieldValues(ctx context.Context, facilityID string, month generic.ReportMonth, values []remuneration.FieldValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ReplaceFieldValues(ctx, facilityID, month, values)
}

func (m *Memory) UpsertFacilityRecord(ctx context.Context, rec remuneration.FacilityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UpsertFacilityRecord(ctx, rec)
}

func (m *Memory) UpsertWorkerRecord(ctx context.Context, rec remuneration.WorkerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UpsertWorkerRecord(ctx, rec)
}

func (m *Memory) UpsertCalculation(ctx context.Context, calc remuneration.Calculation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UpsertCalculation(ctx, calc)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(remuneration.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(m.view()); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.facilities {
		c.facilities[k] = v
	}
	for k, v := range s.fields {
		c.fields[k] = v
	}
	for k, v := range s.indicators {
		c.indicators[k] = v
	}
	for k, byType := range s.remConfigs {
		inner := make(map[string]remuneration.RemunerationConfig, len(byType))
		for ft, cfg := range byType {
			inner[ft] = cfg
		}
		c.remConfigs[k] = inner
	}
	for k, v := range s.workers {
		c.workers[k] = v
	}
	for k, v := range s.fieldValues {
		c.fieldValues[k] = append([]remuneration.FieldValue(nil), v...)
	}
	for k, v := range s.facilityRecords {
		c.facilityRecords[k] = v
	}
	for k, v := range s.workerRecords {
		c.workerRecords[k] = v
	}
	for k, v := range s.calculations {
		c.calculations[k] = v
	}
	return c
}

// =============================================================================
// REPORT STORE
// =============================================================================

func (m *Memory) GetCalculation(_ context.Context, facilityID string, month generic.ReportMonth) (*remuneration.Calculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.data.calculations[periodKey{facilityID, month}]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", generic.ErrNotComputed, facilityID, month)
	}
	return &c, nil
}

func (m *Memory) ListFacilityRecords(_ context.Context, facilityID string, month generic.ReportMonth) ([]remuneration.FacilityRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []remuneration.FacilityRecord
	for k, rec := range m.data.facilityRecords {
		if k.FacilityID == facilityID && k.Month == month {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IndicatorCode < out[j].IndicatorCode })
	return out, nil
}

func (m *Memory) ListWorkerRecords(_ context.Context, facilityID string, month generic.ReportMonth) ([]remuneration.WorkerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []remuneration.WorkerRecord
	for k, rec := range m.data.workerRecords {
		if rec.FacilityID == facilityID && k.Month == month {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkerID < out[j].WorkerID })
	return out, nil
}

func (m *Memory) StalePeriods(_ context.Context, limit int) ([]remuneration.Period, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []remuneration.Period
	for k, values := range m.data.fieldValues {
		if len(values) == 0 {
			continue
		}
		if _, ok := m.data.calculations[k]; ok {
			continue
		}
		out = append(out, remuneration.Period{FacilityID: k.FacilityID, ReportMonth: k.Month})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReportMonth != out[j].ReportMonth {
			return out[i].ReportMonth.Before(out[j].ReportMonth)
		}
		return out[i].FacilityID < out[j].FacilityID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// =============================================================================
// MASTER DATA
// =============================================================================

func (m *Memory) SaveFacility(_ context.Context, f remuneration.Facility) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.facilities[f.ID] = f
	return nil
}

func (m *Memory) SaveField(_ context.Context, f remuneration.Field) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.fields[f.ID] = f
	return nil
}

func (m *Memory) SaveIndicator(_ context.Context, ind remuneration.Indicator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ind.Remuneration = nil
	m.data.indicators[ind.ID] = ind
	return nil
}

func (m *Memory) SaveRemunerationConfig(_ context.Context, indicatorID string, cfg remuneration.RemunerationConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data.remConfigs[indicatorID] == nil {
		m.data.remConfigs[indicatorID] = make(map[string]remuneration.RemunerationConfig)
	}
	m.data.remConfigs[indicatorID][cfg.FacilityType] = cfg
	return nil
}

func (m *Memory) SaveWorker(_ context.Context, w remuneration.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.workers[w.ID] = w
	return nil
}

// =============================================================================
// TRANSACTIONAL VIEW - Lock held by caller
// =============================================================================

type txView struct {
	data     *state
	failures map[string]error
}

func (v *txView) fail(op, key string) error {
	if err, ok := v.failures[op+":"+key]; ok {
		return err
	}
	return nil
}

func (v *txView) GetFacility(_ context.Context, id string) (*remuneration.Facility, error) {
	f, ok := v.data.facilities[id]
	if !ok {
		return nil, &generic.FacilityNotFoundError{FacilityID: id}
	}
	return &f, nil
}

func (v *txView) ListIndicators(_ context.Context, facilityType string) ([]remuneration.Indicator, error) {
	if err := v.fail(OpIndicators, facilityType); err != nil {
		return nil, err
	}
	var out []remuneration.Indicator
	for _, ind := range v.data.indicators {
		if !ind.AppliesTo(facilityType) {
			continue
		}
		if cfg, ok := v.data.remConfigs[ind.ID][facilityType]; ok {
			c := cfg
			ind.Remuneration = &c
		}
		out = append(out, ind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (v *txView) ListFieldValues(_ context.Context, facilityID string, month generic.ReportMonth) ([]remuneration.FieldValue, error) {
	if err := v.fail(OpFieldValues, facilityID); err != nil {
		return nil, err
	}
	return append([]remuneration.FieldValue(nil), v.data.fieldValues[periodKey{facilityID, month}]...), nil
}

func (v *txView) ListWorkers(_ context.Context, facilityID string) ([]remuneration.Worker, error) {
	var out []remuneration.Worker
	for _, w := range v.data.workers {
		if w.FacilityID == facilityID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *txView) GetFields(_ context.Context, ids []string) (map[string]remuneration.Field, error) {
	out := make(map[string]remuneration.Field, len(ids))
	for _, id := range ids {
		if f, ok := v.data.fields[id]; ok {
			out[id] = f
		}
	}
	return out, nil
}

func (v *txView) ReplaceFieldValues(_ context.Context, facilityID string, month generic.ReportMonth, values []remuneration.FieldValue) error {
	if err := v.fail(OpFieldValues, facilityID); err != nil {
		return err
	}
	k := periodKey{facilityID, month}
	v.data.fieldValues[k] = append([]remuneration.FieldValue(nil), values...)
	delete(v.data.calculations, k)
	return nil
}

func (v *txView) UpsertFacilityRecord(_ context.Context, rec remuneration.FacilityRecord) error {
	if err := v.fail(OpFacilityRecord, rec.IndicatorID); err != nil {
		return err
	}
	k := recordKey{rec.FacilityID, rec.ReportMonth, rec.IndicatorID}
	if existing, ok := v.data.facilityRecords[k]; ok {
		rec.ID = existing.ID
	}
	v.data.facilityRecords[k] = rec
	return nil
}

func (v *txView) UpsertWorkerRecord(_ context.Context, rec remuneration.WorkerRecord) error {
	if err := v.fail(OpWorkerRecord, rec.WorkerID); err != nil {
		return err
	}
	k := workerKey{rec.WorkerID, rec.ReportMonth}
	if existing, ok := v.data.workerRecords[k]; ok {
		rec.ID = existing.ID
	}
	v.data.workerRecords[k] = rec
	return nil
}

func (v *txView) UpsertCalculation(_ context.Context, calc remuneration.Calculation) error {
	if err := v.fail(OpCalculation, calc.FacilityID); err != nil {
		return err
	}
	k := periodKey{calc.FacilityID, calc.ReportMonth}
	if existing, ok := v.data.calculations[k]; ok {
		calc.ID = existing.ID
	}
	v.data.calculations[k] = calc
	return nil
}
