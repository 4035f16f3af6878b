/*
Package sqlite provides a SQLite-backed implementation of the remuneration
storage interfaces.

PURPOSE:
  Implements remuneration.TxStore, ReportStore and MasterDataStore using
  SQLite. It is the default store for local runs and single-node
  deployments; store/postgres covers production PostgreSQL.

INTERFACES IMPLEMENTED:
  remuneration.TxStore:         Reads and upserts for one unit of work
  remuneration.ReportStore:     Summary, record and stale-period reads
  remuneration.MasterDataStore: Facilities, fields, indicators, workers

UPSERT SEMANTICS:
  Derived records are written with INSERT ... ON CONFLICT DO UPDATE on
  their composite keys, so a recompute overwrites and never duplicates:
  - facility_records (facility_id, report_month, indicator_id)
  - worker_records   (worker_id, report_month)
  - calculations     (facility_id, report_month)
  The row id of the first insert is kept.

KEY TABLES:
  facilities, fields, indicators, remuneration_configs, workers:  master data
  field_values:     Raw submitted data, replaced per submission
  facility_records: One score per indicator and month
  worker_records:   One payout per worker and month
  calculations:     One summary per facility and month

FORMAT:
  Money and percentages are stored as decimal TEXT, report months as
  "YYYY-MM", timestamps as RFC3339Nano. indicators.formula_config holds
  the JSON decoded by factory.ParseFormulaConfig.

CONCURRENCY:
  SQLite allows a single writer. The pool is limited to one connection
  and WithTx is serialized with a mutex.

USAGE:
  store, err := sqlite.New("./data/remuneration.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := remuneration.NewEngine(store, catalog.DefaultRules())

SEE ALSO:
  - remuneration/store.go: Interface definitions
  - remuneration/store/memory.go: In-memory implementation for testing
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/remuneration-engine/factory"
	"github.com/warp/remuneration-engine/generic"
	"github.com/warp/remuneration-engine/remuneration"
)

// Store implements the remuneration storage interfaces using SQLite.
type Store struct {
	*queries
	db *sql.DB
	mu sync.Mutex
}

var (
	_ remuneration.TxStore         = (*Store)(nil)
	_ remuneration.ReportStore     = (*Store)(nil)
	_ remuneration.MasterDataStore = (*Store)(nil)
)

// New opens the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := NewWithDB(db)
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewWithDB wraps an open database without migrating it.
func NewWithDB(db *sql.DB) *Store {
	return &Store{queries: &queries{db: db}, db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the database schema.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const schema = `
	CREATE TABLE IF NOT EXISTS facilities (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		facility_type_id TEXT NOT NULL,
		facility_type_name TEXT NOT NULL,
		district_id TEXT
	);

	CREATE TABLE IF NOT EXISTS fields (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		data_type TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS indicators (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_value TEXT,
		formula_config TEXT NOT NULL DEFAULT '{}',
		numerator_field_id TEXT NOT NULL,
		denominator_field_id TEXT,
		target_field_id TEXT,
		applicable_facility_types TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS remuneration_configs (
		indicator_id TEXT NOT NULL,
		facility_type TEXT NOT NULL,
		base_amount TEXT NOT NULL,
		conditional_amount TEXT,
		PRIMARY KEY (indicator_id, facility_type)
	);

	CREATE TABLE IF NOT EXISTS workers (
		id TEXT PRIMARY KEY,
		facility_id TEXT NOT NULL,
		name TEXT NOT NULL,
		worker_type TEXT NOT NULL,
		allocated_amount TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_workers_facility ON workers(facility_id);

	-- Raw data, replaced wholesale per (facility, month)
	CREATE TABLE IF NOT EXISTS field_values (
		id TEXT PRIMARY KEY,
		facility_id TEXT NOT NULL,
		report_month TEXT NOT NULL,
		field_id TEXT NOT NULL,
		field_code TEXT NOT NULL,
		string_value TEXT,
		numeric_value TEXT,
		boolean_value INTEGER,
		json_value TEXT,
		uploaded_by TEXT,
		is_override INTEGER NOT NULL DEFAULT 0,
		override_reason TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_field_values_period
		ON field_values(facility_id, report_month);

	CREATE TABLE IF NOT EXISTS facility_records (
		id TEXT PRIMARY KEY,
		facility_id TEXT NOT NULL,
		report_month TEXT NOT NULL,
		indicator_id TEXT NOT NULL,
		indicator_code TEXT NOT NULL,
		actual_value TEXT NOT NULL,
		target_value TEXT NOT NULL,
		achieved_percentage TEXT NOT NULL,
		incentive_amount TEXT NOT NULL,
		max_remuneration TEXT NOT NULL,
		status TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (facility_id, report_month, indicator_id)
	);

	CREATE TABLE IF NOT EXISTS worker_records (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		facility_id TEXT NOT NULL,
		report_month TEXT NOT NULL,
		worker_type TEXT NOT NULL,
		allocated_amount TEXT NOT NULL,
		performance_percentage TEXT NOT NULL,
		calculated_amount TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (worker_id, report_month)
	);

	CREATE INDEX IF NOT EXISTS idx_worker_records_period
		ON worker_records(facility_id, report_month);

	CREATE TABLE IF NOT EXISTS calculations (
		id TEXT PRIMARY KEY,
		facility_id TEXT NOT NULL,
		report_month TEXT NOT NULL,
		performance_percentage TEXT NOT NULL,
		facility_remuneration TEXT NOT NULL,
		worker_remuneration TEXT NOT NULL,
		grand_total TEXT NOT NULL,
		hw_count INTEGER NOT NULL,
		asha_count INTEGER NOT NULL,
		calculated_at TEXT NOT NULL,
		UNIQUE (facility_id, report_month)
	);
`

// =============================================================================
// TRANSACTIONAL STORE (remuneration.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(remuneration.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{db: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// ReplaceFieldValues runs the delete and inserts in their own transaction
// when called outside WithTx.
func (s *Store) ReplaceFieldValues(ctx context.Context, facilityID string, month generic.ReportMonth, values []remuneration.FieldValue) error {
	return s.WithTx(ctx, func(tx remuneration.Store) error {
		return tx.ReplaceFieldValues(ctx, facilityID, month, values)
	})
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every statement; Store runs them on the pool, WithTx on
// the transaction.
type queries struct {
	db dbtx
}

// =============================================================================
// STORE (remuneration.Store interface)
// =============================================================================

func (q *queries) GetFacility(ctx context.Context, facilityID string) (*remuneration.Facility, error) {
	var (
		f        remuneration.Facility
		district sql.NullString
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id, name, facility_type_id, facility_type_name, district_id
		FROM facilities WHERE id = ?`, facilityID,
	).Scan(&f.ID, &f.Name, &f.FacilityTypeID, &f.FacilityTypeName, &district)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.FacilityNotFoundError{FacilityID: facilityID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get facility: %w", err)
	}
	f.DistrictID = district.String
	return &f, nil
}

func (q *queries) ListIndicators(ctx context.Context, facilityType string) ([]remuneration.Indicator, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT i.id, i.code, i.name, i.target_type, i.target_value, i.formula_config,
		       i.numerator_field_id, i.denominator_field_id, i.target_field_id,
		       i.applicable_facility_types, rc.base_amount, rc.conditional_amount
		FROM indicators i
		LEFT JOIN remuneration_configs rc
		       ON rc.indicator_id = i.id AND rc.facility_type = ?
		ORDER BY i.code ASC`, facilityType)
	if err != nil {
		return nil, fmt.Errorf("failed to query indicators: %w", err)
	}
	defer rows.Close()

	var out []remuneration.Indicator
	for rows.Next() {
		var (
			ind                          remuneration.Indicator
			targetType                   string
			targetValue, denom, targetID sql.NullString
			formulaConfig, applicable    string
			base, conditional            sql.NullString
		)
		if err := rows.Scan(&ind.ID, &ind.Code, &ind.Name, &targetType, &targetValue, &formulaConfig,
			&ind.NumeratorFieldID, &denom, &targetID, &applicable, &base, &conditional); err != nil {
			return nil, fmt.Errorf("failed to scan indicator: %w", err)
		}
		ind.TargetType = generic.TargetType(targetType)
		ind.TargetValue = targetValue.String
		ind.DenominatorFieldID = denom.String
		ind.TargetFieldID = targetID.String
		if err := json.Unmarshal([]byte(applicable), &ind.ApplicableFacilityTypes); err != nil {
			return nil, fmt.Errorf("indicator %s: bad applicable_facility_types: %w", ind.Code, err)
		}
		if !ind.AppliesTo(facilityType) {
			continue
		}
		if ind.FormulaConfig, err = factory.ParseFormulaConfig([]byte(formulaConfig)); err != nil {
			return nil, fmt.Errorf("indicator %s: %w", ind.Code, err)
		}
		if base.Valid {
			ind.Remuneration = &remuneration.RemunerationConfig{
				FacilityType:      facilityType,
				BaseAmount:        generic.MustParseDecimal(base.String),
				ConditionalAmount: parseNullDecimal(conditional),
			}
		}
		out = append(out, ind)
	}
	return out, rows.Err()
}

func (q *queries) ListFieldValues(ctx context.Context, facilityID string, month generic.ReportMonth) ([]remuneration.FieldValue, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, facility_id, report_month, field_id, field_code,
		       string_value, numeric_value, boolean_value, json_value,
		       uploaded_by, is_override, override_reason, created_at
		FROM field_values
		WHERE facility_id = ? AND report_month = ?
		ORDER BY field_code ASC`, facilityID, month.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query field values: %w", err)
	}
	defer rows.Close()

	var out []remuneration.FieldValue
	for rows.Next() {
		var (
			v                          remuneration.FieldValue
			reportMonth, createdAt     string
			str, num, js               sql.NullString
			boolean                    sql.NullBool
			uploadedBy, overrideReason sql.NullString
		)
		if err := rows.Scan(&v.ID, &v.FacilityID, &reportMonth, &v.FieldID, &v.FieldCode,
			&str, &num, &boolean, &js, &uploadedBy, &v.IsOverride, &overrideReason, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan field value: %w", err)
		}
		v.ReportMonth = generic.MustParseReportMonth(reportMonth)
		if str.Valid {
			s := str.String
			v.StringValue = &s
		}
		v.NumericValue = parseNullDecimal(num)
		if boolean.Valid {
			b := boolean.Bool
			v.BooleanValue = &b
		}
		if js.Valid {
			v.JSONValue = json.RawMessage(js.String)
		}
		v.UploadedBy = uploadedBy.String
		v.OverrideReason = overrideReason.String
		v.CreatedAt = parseTime(createdAt)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (q *queries) ListWorkers(ctx context.Context, facilityID string) ([]remuneration.Worker, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, facility_id, name, worker_type, allocated_amount
		FROM workers WHERE facility_id = ?
		ORDER BY id ASC`, facilityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workers: %w", err)
	}
	defer rows.Close()

	var out []remuneration.Worker
	for rows.Next() {
		var (
			w                     remuneration.Worker
			workerType, allocated string
		)
		if err := rows.Scan(&w.ID, &w.FacilityID, &w.Name, &workerType, &allocated); err != nil {
			return nil, fmt.Errorf("failed to scan worker: %w", err)
		}
		w.WorkerType = remuneration.WorkerType(workerType)
		w.AllocatedAmount = generic.MustParseDecimal(allocated)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (q *queries) GetFields(ctx context.Context, ids []string) (map[string]remuneration.Field, error) {
	out := make(map[string]remuneration.Field, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT id, code, name, data_type FROM fields WHERE id IN (` +
		strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + `)`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fields: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f        remuneration.Field
			dataType string
		)
		if err := rows.Scan(&f.ID, &f.Code, &f.Name, &dataType); err != nil {
			return nil, fmt.Errorf("failed to scan field: %w", err)
		}
		f.DataType = remuneration.FieldDataType(dataType)
		out[f.ID] = f
	}
	return out, rows.Err()
}

func (q *queries) ReplaceFieldValues(ctx context.Context, facilityID string, month generic.ReportMonth, values []remuneration.FieldValue) error {
	if _, err := q.db.ExecContext(ctx,
		`DELETE FROM field_values WHERE facility_id = ? AND report_month = ?`,
		facilityID, month.String(),
	); err != nil {
		return fmt.Errorf("failed to delete field values: %w", err)
	}
	// The old summary no longer describes these values.
	if _, err := q.db.ExecContext(ctx,
		`DELETE FROM calculations WHERE facility_id = ? AND report_month = ?`,
		facilityID, month.String(),
	); err != nil {
		return fmt.Errorf("failed to delete calculation: %w", err)
	}

	for _, v := range values {
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		if v.CreatedAt.IsZero() {
			v.CreatedAt = time.Now().UTC()
		}
		var num, js sql.NullString
		if v.NumericValue != nil {
			num = sql.NullString{String: v.NumericValue.String(), Valid: true}
		}
		if len(v.JSONValue) > 0 {
			js = sql.NullString{String: string(v.JSONValue), Valid: true}
		}
		var boolean sql.NullBool
		if v.BooleanValue != nil {
			boolean = sql.NullBool{Bool: *v.BooleanValue, Valid: true}
		}
		var str sql.NullString
		if v.StringValue != nil {
			str = sql.NullString{String: *v.StringValue, Valid: true}
		}

		_, err := q.db.ExecContext(ctx, `
			INSERT INTO field_values
			(id, facility_id, report_month, field_id, field_code,
			 string_value, numeric_value, boolean_value, json_value,
			 uploaded_by, is_override, override_reason, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			v.ID, facilityID, month.String(), v.FieldID, v.FieldCode,
			str, num, boolean, js,
			nullString(v.UploadedBy), v.IsOverride, nullString(v.OverrideReason),
			v.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("failed to insert field value %s: %w", v.FieldID, err)
		}
	}
	return nil
}

func (q *queries) UpsertFacilityRecord(ctx context.Context, rec remuneration.FacilityRecord) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO facility_records
		(id, facility_id, report_month, indicator_id, indicator_code, actual_value, target_value,
		 achieved_percentage, incentive_amount, max_remuneration, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (facility_id, report_month, indicator_id) DO UPDATE SET
			indicator_code = excluded.indicator_code,
			actual_value = excluded.actual_value,
			target_value = excluded.target_value,
			achieved_percentage = excluded.achieved_percentage,
			incentive_amount = excluded.incentive_amount,
			max_remuneration = excluded.max_remuneration,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		rec.ID, rec.FacilityID, rec.ReportMonth.String(), rec.IndicatorID, rec.IndicatorCode,
		rec.ActualValue.String(), rec.TargetValue.String(), rec.AchievedPercentage.String(),
		rec.IncentiveAmount.String(), rec.MaxRemuneration.String(), string(rec.Status),
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert facility record: %w", err)
	}
	return nil
}

func (q *queries) UpsertWorkerRecord(ctx context.Context, rec remuneration.WorkerRecord) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO worker_records
		(id, worker_id, facility_id, report_month, worker_type, allocated_amount,
		 performance_percentage, calculated_amount, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (worker_id, report_month) DO UPDATE SET
			facility_id = excluded.facility_id,
			worker_type = excluded.worker_type,
			allocated_amount = excluded.allocated_amount,
			performance_percentage = excluded.performance_percentage,
			calculated_amount = excluded.calculated_amount,
			updated_at = excluded.updated_at`,
		rec.ID, rec.WorkerID, rec.FacilityID, rec.ReportMonth.String(), string(rec.WorkerType),
		rec.AllocatedAmount.String(), rec.PerformancePercentage.String(), rec.CalculatedAmount.String(),
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert worker record: %w", err)
	}
	return nil
}

func (q *queries) UpsertCalculation(ctx context.Context, calc remuneration.Calculation) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO calculations
		(id, facility_id, report_month, performance_percentage, facility_remuneration,
		 worker_remuneration, grand_total, hw_count, asha_count, calculated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (facility_id, report_month) DO UPDATE SET
			performance_percentage = excluded.performance_percentage,
			facility_remuneration = excluded.facility_remuneration,
			worker_remuneration = excluded.worker_remuneration,
			grand_total = excluded.grand_total,
			hw_count = excluded.hw_count,
			asha_count = excluded.asha_count,
			calculated_at = excluded.calculated_at`,
		calc.ID, calc.FacilityID, calc.ReportMonth.String(), calc.PerformancePercentage.String(),
		calc.FacilityRemuneration.String(), calc.WorkerRemuneration.String(), calc.GrandTotal.String(),
		calc.HWCount, calc.ASHACount, calc.CalculatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert calculation: %w", err)
	}
	return nil
}

// =============================================================================
// REPORT STORE (remuneration.ReportStore interface)
// =============================================================================

func (q *queries) GetCalculation(ctx context.Context, facilityID string, month generic.ReportMonth) (*remuneration.Calculation, error) {
	var (
		c                                  remuneration.Calculation
		reportMonth, perf, fac, wrk, total string
		calculatedAt                       string
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id, facility_id, report_month, performance_percentage, facility_remuneration,
		       worker_remuneration, grand_total, hw_count, asha_count, calculated_at
		FROM calculations WHERE facility_id = ? AND report_month = ?`,
		facilityID, month.String(),
	).Scan(&c.ID, &c.FacilityID, &reportMonth, &perf, &fac, &wrk, &total, &c.HWCount, &c.ASHACount, &calculatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", generic.ErrNotComputed, facilityID, month)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calculation: %w", err)
	}
	c.ReportMonth = generic.MustParseReportMonth(reportMonth)
	c.PerformancePercentage = generic.MustParseDecimal(perf)
	c.FacilityRemuneration = generic.MustParseDecimal(fac)
	c.WorkerRemuneration = generic.MustParseDecimal(wrk)
	c.GrandTotal = generic.MustParseDecimal(total)
	c.CalculatedAt = parseTime(calculatedAt)
	return &c, nil
}

func (q *queries) ListFacilityRecords(ctx context.Context, facilityID string, month generic.ReportMonth) ([]remuneration.FacilityRecord, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, facility_id, report_month, indicator_id, indicator_code, actual_value, target_value,
		       achieved_percentage, incentive_amount, max_remuneration, status, updated_at
		FROM facility_records
		WHERE facility_id = ? AND report_month = ?
		ORDER BY indicator_code ASC`, facilityID, month.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query facility records: %w", err)
	}
	defer rows.Close()

	var out []remuneration.FacilityRecord
	for rows.Next() {
		var (
			r                                     remuneration.FacilityRecord
			reportMonth, actual, target, achieved string
			incentive, maxRem, status, updatedAt  string
		)
		if err := rows.Scan(&r.ID, &r.FacilityID, &reportMonth, &r.IndicatorID, &r.IndicatorCode,
			&actual, &target, &achieved, &incentive, &maxRem, &status, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan facility record: %w", err)
		}
		r.ReportMonth = generic.MustParseReportMonth(reportMonth)
		r.ActualValue = generic.MustParseDecimal(actual)
		r.TargetValue = generic.MustParseDecimal(target)
		r.AchievedPercentage = generic.MustParseDecimal(achieved)
		r.IncentiveAmount = generic.MustParseDecimal(incentive)
		r.MaxRemuneration = generic.MustParseDecimal(maxRem)
		r.Status = remuneration.Status(status)
		r.UpdatedAt = parseTime(updatedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *queries) ListWorkerRecords(ctx context.Context, facilityID string, month generic.ReportMonth) ([]remuneration.WorkerRecord, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, worker_id, facility_id, report_month, worker_type, allocated_amount,
		       performance_percentage, calculated_amount, updated_at
		FROM worker_records
		WHERE facility_id = ? AND report_month = ?
		ORDER BY worker_id ASC`, facilityID, month.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query worker records: %w", err)
	}
	defer rows.Close()

	var out []remuneration.WorkerRecord
	for rows.Next() {
		var (
			r                                  remuneration.WorkerRecord
			reportMonth, workerType, allocated string
			perf, amount, updatedAt            string
		)
		if err := rows.Scan(&r.ID, &r.WorkerID, &r.FacilityID, &reportMonth, &workerType,
			&allocated, &perf, &amount, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan worker record: %w", err)
		}
		r.ReportMonth = generic.MustParseReportMonth(reportMonth)
		r.WorkerType = remuneration.WorkerType(workerType)
		r.AllocatedAmount = generic.MustParseDecimal(allocated)
		r.PerformancePercentage = generic.MustParseDecimal(perf)
		r.CalculatedAmount = generic.MustParseDecimal(amount)
		r.UpdatedAt = parseTime(updatedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *queries) StalePeriods(ctx context.Context, limit int) ([]remuneration.Period, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT DISTINCT fv.facility_id, fv.report_month
		FROM field_values fv
		LEFT JOIN calculations c
		       ON c.facility_id = fv.facility_id AND c.report_month = fv.report_month
		WHERE c.id IS NULL
		ORDER BY fv.report_month ASC, fv.facility_id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale periods: %w", err)
	}
	defer rows.Close()

	var out []remuneration.Period
	for rows.Next() {
		var p remuneration.Period
		var month string
		if err := rows.Scan(&p.FacilityID, &month); err != nil {
			return nil, fmt.Errorf("failed to scan stale period: %w", err)
		}
		p.ReportMonth = generic.MustParseReportMonth(month)
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// MASTER DATA (remuneration.MasterDataStore interface)
// =============================================================================

func (q *queries) SaveFacility(ctx context.Context, f remuneration.Facility) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO facilities (id, name, facility_type_id, facility_type_name, district_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			facility_type_id = excluded.facility_type_id,
			facility_type_name = excluded.facility_type_name,
			district_id = excluded.district_id`,
		f.ID, f.Name, f.FacilityTypeID, f.FacilityTypeName, nullString(f.DistrictID),
	)
	if err != nil {
		return fmt.Errorf("failed to save facility: %w", err)
	}
	return nil
}

func (q *queries) SaveField(ctx context.Context, f remuneration.Field) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO fields (id, code, name, data_type)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			data_type = excluded.data_type`,
		f.ID, f.Code, f.Name, string(f.DataType),
	)
	if err != nil {
		return fmt.Errorf("failed to save field: %w", err)
	}
	return nil
}

func (q *queries) SaveIndicator(ctx context.Context, ind remuneration.Indicator) error {
	formulaConfig, err := factory.MarshalFormulaConfig(ind.FormulaConfig)
	if err != nil {
		return fmt.Errorf("failed to encode formula_config: %w", err)
	}
	applicable, err := json.Marshal(ind.ApplicableFacilityTypes)
	if err != nil {
		return fmt.Errorf("failed to encode applicable_facility_types: %w", err)
	}
	if ind.ApplicableFacilityTypes == nil {
		applicable = []byte("[]")
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO indicators
		(id, code, name, target_type, target_value, formula_config,
		 numerator_field_id, denominator_field_id, target_field_id, applicable_facility_types)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			target_type = excluded.target_type,
			target_value = excluded.target_value,
			formula_config = excluded.formula_config,
			numerator_field_id = excluded.numerator_field_id,
			denominator_field_id = excluded.denominator_field_id,
			target_field_id = excluded.target_field_id,
			applicable_facility_types = excluded.applicable_facility_types`,
		ind.ID, ind.Code, ind.Name, string(ind.TargetType), nullString(ind.TargetValue), string(formulaConfig),
		ind.NumeratorFieldID, nullString(ind.DenominatorFieldID), nullString(ind.TargetFieldID), string(applicable),
	)
	if err != nil {
		return fmt.Errorf("failed to save indicator: %w", err)
	}
	return nil
}

func (q *queries) SaveRemunerationConfig(ctx context.Context, indicatorID string, cfg remuneration.RemunerationConfig) error {
	var conditional sql.NullString
	if cfg.ConditionalAmount != nil {
		conditional = sql.NullString{String: cfg.ConditionalAmount.String(), Valid: true}
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO remuneration_configs (indicator_id, facility_type, base_amount, conditional_amount)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (indicator_id, facility_type) DO UPDATE SET
			base_amount = excluded.base_amount,
			conditional_amount = excluded.conditional_amount`,
		indicatorID, cfg.FacilityType, cfg.BaseAmount.String(), conditional,
	)
	if err != nil {
		return fmt.Errorf("failed to save remuneration config: %w", err)
	}
	return nil
}

func (q *queries) SaveWorker(ctx context.Context, w remuneration.Worker) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO workers (id, facility_id, name, worker_type, allocated_amount)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			facility_id = excluded.facility_id,
			name = excluded.name,
			worker_type = excluded.worker_type,
			allocated_amount = excluded.allocated_amount`,
		w.ID, w.FacilityID, w.Name, string(w.WorkerType), w.AllocatedAmount.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save worker: %w", err)
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseNullDecimal(s sql.NullString) *decimal.Decimal {
	if !s.Valid {
		return nil
	}
	d := generic.MustParseDecimal(s.String)
	return &d
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
