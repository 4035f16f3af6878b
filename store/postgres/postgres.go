/*
Package postgres provides a PostgreSQL implementation of the remuneration
storage interfaces on top of pgx.

PURPOSE:
  Production store. Same contract as store/sqlite, with PostgreSQL types:
  NUMERIC for money, TIMESTAMPTZ for times, JSONB for formula_config and
  JSON field values, TEXT[] for applicable facility types.

PER-RECORD SAVEPOINTS:
  A failed statement aborts a PostgreSQL transaction. The engine keeps
  going when one facility or worker record fails to persist, so inside
  WithTx each record upsert runs in its own savepoint (pgx nested
  transaction). A failed record is rolled back to its savepoint and the
  enclosing transaction stays usable.

USAGE:
  pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
  store := postgres.New(pool)
  if err := store.Migrate(ctx); err != nil { ... }

SEE ALSO:
  - remuneration/store.go: Interface definitions
  - store/sqlite: SQLite implementation
*/
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/warp/remuneration-engine/factory"
	"github.com/warp/remuneration-engine/generic"
	"github.com/warp/remuneration-engine/remuneration"
)

// NewPool opens and pings a connection pool.
func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Store implements the remuneration storage interfaces using PostgreSQL.
type Store struct {
	*queries
	pool *pgxpool.Pool
}

var (
	_ remuneration.TxStore         = (*Store)(nil)
	_ remuneration.ReportStore     = (*Store)(nil)
	_ remuneration.MasterDataStore = (*Store)(nil)
)

func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: &queries{db: pool}, pool: pool}
}

// Close closes the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the schema. Safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
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
    formula_config JSONB NOT NULL DEFAULT '{}',
    numerator_field_id TEXT NOT NULL,
    denominator_field_id TEXT,
    target_field_id TEXT,
    applicable_facility_types TEXT[] NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS remuneration_configs (
    indicator_id TEXT NOT NULL,
    facility_type TEXT NOT NULL,
    base_amount NUMERIC(14,2) NOT NULL,
    conditional_amount NUMERIC(14,2),
    PRIMARY KEY (indicator_id, facility_type)
);

CREATE TABLE IF NOT EXISTS workers (
    id TEXT PRIMARY KEY,
    facility_id TEXT NOT NULL,
    name TEXT NOT NULL,
    worker_type TEXT NOT NULL,
    allocated_amount NUMERIC(14,2) NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_workers_facility ON workers(facility_id);

CREATE TABLE IF NOT EXISTS field_values (
    id TEXT PRIMARY KEY,
    facility_id TEXT NOT NULL,
    report_month CHAR(7) NOT NULL,
    field_id TEXT NOT NULL,
    field_code TEXT NOT NULL,
    string_value TEXT,
    numeric_value NUMERIC,
    boolean_value BOOLEAN,
    json_value JSONB,
    uploaded_by TEXT,
    is_override BOOLEAN NOT NULL DEFAULT FALSE,
    override_reason TEXT,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_field_values_period ON field_values(facility_id, report_month);

CREATE TABLE IF NOT EXISTS facility_records (
    id TEXT PRIMARY KEY,
    facility_id TEXT NOT NULL,
    report_month CHAR(7) NOT NULL,
    indicator_id TEXT NOT NULL,
    indicator_code TEXT NOT NULL,
    actual_value NUMERIC NOT NULL,
    target_value NUMERIC NOT NULL,
    achieved_percentage NUMERIC(7,2) NOT NULL,
    incentive_amount NUMERIC(14,2) NOT NULL,
    max_remuneration NUMERIC(14,2) NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('achieved', 'partial', 'not_achieved')),
    updated_at TIMESTAMPTZ NOT NULL,
    UNIQUE (facility_id, report_month, indicator_id)
);

CREATE TABLE IF NOT EXISTS worker_records (
    id TEXT PRIMARY KEY,
    worker_id TEXT NOT NULL,
    facility_id TEXT NOT NULL,
    report_month CHAR(7) NOT NULL,
    worker_type TEXT NOT NULL,
    allocated_amount NUMERIC(14,2) NOT NULL,
    performance_percentage NUMERIC(7,2) NOT NULL,
    calculated_amount NUMERIC(14,2) NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    UNIQUE (worker_id, report_month)
);
CREATE INDEX IF NOT EXISTS idx_worker_records_period ON worker_records(facility_id, report_month);

CREATE TABLE IF NOT EXISTS calculations (
    id TEXT PRIMARY KEY,
    facility_id TEXT NOT NULL,
    report_month CHAR(7) NOT NULL,
    performance_percentage NUMERIC(7,2) NOT NULL,
    facility_remuneration NUMERIC(14,2) NOT NULL,
    worker_remuneration NUMERIC(14,2) NOT NULL,
    grand_total NUMERIC(14,2) NOT NULL,
    hw_count INTEGER NOT NULL,
    asha_count INTEGER NOT NULL,
    calculated_at TIMESTAMPTZ NOT NULL,
    UNIQUE (facility_id, report_month)
);
`

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
func (s *Store) WithTx(ctx context.Context, fn func(remuneration.Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&queries{db: tx, tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ReplaceFieldValues runs in its own transaction when called outside WithTx.
func (s *Store) ReplaceFieldValues(ctx context.Context, facilityID string, month generic.ReportMonth, values []remuneration.FieldValue) error {
	return s.WithTx(ctx, func(tx remuneration.Store) error {
		return tx.ReplaceFieldValues(ctx, facilityID, month, values)
	})
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type queries struct {
	db querier
	tx pgx.Tx // set inside WithTx
}

// savepoint runs a single statement so that its failure leaves the
// enclosing transaction usable.
func (q *queries) savepoint(ctx context.Context, sql string, args ...any) error {
	if q.tx == nil {
		_, err := q.db.Exec(ctx, sql, args...)
		return err
	}
	sp, err := q.tx.Begin(ctx)
	if err != nil {
		return err
	}
	if _, err := sp.Exec(ctx, sql, args...); err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return sp.Commit(ctx)
}

// =============================================================================
// STORE
// =============================================================================

func (q *queries) GetFacility(ctx context.Context, facilityID string) (*remuneration.Facility, error) {
	var (
		f        remuneration.Facility
		district *string
	)
	err := q.db.QueryRow(ctx, `
		SELECT id, name, facility_type_id, facility_type_name, district_id
		FROM facilities WHERE id = $1`, facilityID,
	).Scan(&f.ID, &f.Name, &f.FacilityTypeID, &f.FacilityTypeName, &district)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &generic.FacilityNotFoundError{FacilityID: facilityID}
	}
	if err != nil {
		return nil, fmt.Errorf("get facility: %w", err)
	}
	if district != nil {
		f.DistrictID = *district
	}
	return &f, nil
}

func (q *queries) ListIndicators(ctx context.Context, facilityType string) ([]remuneration.Indicator, error) {
	rows, err := q.db.Query(ctx, `
		SELECT i.id, i.code, i.name, i.target_type, i.target_value, i.formula_config::text,
		       i.numerator_field_id, i.denominator_field_id, i.target_field_id,
		       i.applicable_facility_types, rc.base_amount::text, rc.conditional_amount::text
		FROM indicators i
		LEFT JOIN remuneration_configs rc
		       ON rc.indicator_id = i.id AND rc.facility_type = $1
		WHERE $1 = ANY(i.applicable_facility_types)
		ORDER BY i.code ASC`, facilityType)
	if err != nil {
		return nil, fmt.Errorf("query indicators: %w", err)
	}
	defer rows.Close()

	var out []remuneration.Indicator
	for rows.Next() {
		var (
			ind                          remuneration.Indicator
			targetType, formulaConfig    string
			targetValue, denom, targetID *string
			base, conditional            *string
		)
		if err := rows.Scan(&ind.ID, &ind.Code, &ind.Name, &targetType, &targetValue, &formulaConfig,
			&ind.NumeratorFieldID, &denom, &targetID, &ind.ApplicableFacilityTypes, &base, &conditional); err != nil {
			return nil, fmt.Errorf("scan indicator: %w", err)
		}
		ind.TargetType = generic.TargetType(targetType)
		ind.TargetValue = deref(targetValue)
		ind.DenominatorFieldID = deref(denom)
		ind.TargetFieldID = deref(targetID)
		if ind.FormulaConfig, err = factory.ParseFormulaConfig([]byte(formulaConfig)); err != nil {
			return nil, fmt.Errorf("indicator %s: %w", ind.Code, err)
		}
		if base != nil {
			ind.Remuneration = &remuneration.RemunerationConfig{
				FacilityType:      facilityType,
				BaseAmount:        generic.MustParseDecimal(*base),
				ConditionalAmount: parseDecimalPtr(conditional),
			}
		}
		out = append(out, ind)
	}
	return out, rows.Err()
}

func (q *queries) ListFieldValues(ctx context.Context, facilityID string, month generic.ReportMonth) ([]remuneration.FieldValue, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, facility_id, report_month, field_id, field_code,
		       string_value, numeric_value::text, boolean_value, json_value::text,
		       uploaded_by, is_override, override_reason, created_at
		FROM field_values
		WHERE facility_id = $1 AND report_month = $2
		ORDER BY field_code ASC`, facilityID, month.String())
	if err != nil {
		return nil, fmt.Errorf("query field values: %w", err)
	}
	defer rows.Close()

	var out []remuneration.FieldValue
	for rows.Next() {
		var (
			v                          remuneration.FieldValue
			reportMonth                string
			num, js                    *string
			uploadedBy, overrideReason *string
		)
		if err := rows.Scan(&v.ID, &v.FacilityID, &reportMonth, &v.FieldID, &v.FieldCode,
			&v.StringValue, &num, &v.BooleanValue, &js,
			&uploadedBy, &v.IsOverride, &overrideReason, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan field value: %w", err)
		}
		v.ReportMonth = generic.MustParseReportMonth(reportMonth)
		v.NumericValue = parseDecimalPtr(num)
		if js != nil {
			v.JSONValue = []byte(*js)
		}
		v.UploadedBy = deref(uploadedBy)
		v.OverrideReason = deref(overrideReason)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (q *queries) ListWorkers(ctx context.Context, facilityID string) ([]remuneration.Worker, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, facility_id, name, worker_type, allocated_amount::text
		FROM workers WHERE facility_id = $1
		ORDER BY id ASC`, facilityID)
	if err != nil {
		return nil, fmt.Errorf("query workers: %w", err)
	}
	defer rows.Close()

	var out []remuneration.Worker
	for rows.Next() {
		var (
			w                     remuneration.Worker
			workerType, allocated string
		)
		if err := rows.Scan(&w.ID, &w.FacilityID, &w.Name, &workerType, &allocated); err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
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
	rows, err := q.db.Query(ctx, `SELECT id, code, name, data_type FROM fields WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query fields: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f        remuneration.Field
			dataType string
		)
		if err := rows.Scan(&f.ID, &f.Code, &f.Name, &dataType); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		f.DataType = remuneration.FieldDataType(dataType)
		out[f.ID] = f
	}
	return out, rows.Err()
}

func (q *queries) ReplaceFieldValues(ctx context.Context, facilityID string, month generic.ReportMonth, values []remuneration.FieldValue) error {
	if _, err := q.db.Exec(ctx,
		`DELETE FROM field_values WHERE facility_id = $1 AND report_month = $2`,
		facilityID, month.String(),
	); err != nil {
		return fmt.Errorf("delete field values: %w", err)
	}
	// The old summary no longer describes these values.
	if _, err := q.db.Exec(ctx,
		`DELETE FROM calculations WHERE facility_id = $1 AND report_month = $2`,
		facilityID, month.String(),
	); err != nil {
		return fmt.Errorf("delete calculation: %w", err)
	}

	batch := &pgx.Batch{}
	for _, v := range values {
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		var num, js *string
		if v.NumericValue != nil {
			s := v.NumericValue.String()
			num = &s
		}
		if len(v.JSONValue) > 0 {
			s := string(v.JSONValue)
			js = &s
		}
		batch.Queue(`
			INSERT INTO field_values
			(id, facility_id, report_month, field_id, field_code,
			 string_value, numeric_value, boolean_value, json_value,
			 uploaded_by, is_override, override_reason, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9::jsonb, $10, $11, $12, COALESCE($13, now()))`,
			v.ID, facilityID, month.String(), v.FieldID, v.FieldCode,
			v.StringValue, num, v.BooleanValue, js,
			nullable(v.UploadedBy), v.IsOverride, nullable(v.OverrideReason), nullTime(v),
		)
	}
	if batch.Len() == 0 {
		return nil
	}

	results := q.db.SendBatch(ctx, batch)
	for _, v := range values {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("insert field value %s: %w", v.FieldID, err)
		}
	}
	return results.Close()
}

func (q *queries) UpsertFacilityRecord(ctx context.Context, rec remuneration.FacilityRecord) error {
	err := q.savepoint(ctx, `
		INSERT INTO facility_records
		(id, facility_id, report_month, indicator_id, indicator_code, actual_value, target_value,
		 achieved_percentage, incentive_amount, max_remuneration, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10::numeric, $11, $12)
		ON CONFLICT (facility_id, report_month, indicator_id) DO UPDATE SET
			indicator_code = EXCLUDED.indicator_code,
			actual_value = EXCLUDED.actual_value,
			target_value = EXCLUDED.target_value,
			achieved_percentage = EXCLUDED.achieved_percentage,
			incentive_amount = EXCLUDED.incentive_amount,
			max_remuneration = EXCLUDED.max_remuneration,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.FacilityID, rec.ReportMonth.String(), rec.IndicatorID, rec.IndicatorCode,
		rec.ActualValue.String(), rec.TargetValue.String(), rec.AchievedPercentage.String(),
		rec.IncentiveAmount.String(), rec.MaxRemuneration.String(), string(rec.Status), rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert facility record: %w", err)
	}
	return nil
}

func (q *queries) UpsertWorkerRecord(ctx context.Context, rec remuneration.WorkerRecord) error {
	err := q.savepoint(ctx, `
		INSERT INTO worker_records
		(id, worker_id, facility_id, report_month, worker_type, allocated_amount,
		 performance_percentage, calculated_amount, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9)
		ON CONFLICT (worker_id, report_month) DO UPDATE SET
			facility_id = EXCLUDED.facility_id,
			worker_type = EXCLUDED.worker_type,
			allocated_amount = EXCLUDED.allocated_amount,
			performance_percentage = EXCLUDED.performance_percentage,
			calculated_amount = EXCLUDED.calculated_amount,
			updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.WorkerID, rec.FacilityID, rec.ReportMonth.String(), string(rec.WorkerType),
		rec.AllocatedAmount.String(), rec.PerformancePercentage.String(), rec.CalculatedAmount.String(),
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert worker record: %w", err)
	}
	return nil
}

func (q *queries) UpsertCalculation(ctx context.Context, calc remuneration.Calculation) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO calculations
		(id, facility_id, report_month, performance_percentage, facility_remuneration,
		 worker_remuneration, grand_total, hw_count, asha_count, calculated_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10)
		ON CONFLICT (facility_id, report_month) DO UPDATE SET
			performance_percentage = EXCLUDED.performance_percentage,
			facility_remuneration = EXCLUDED.facility_remuneration,
			worker_remuneration = EXCLUDED.worker_remuneration,
			grand_total = EXCLUDED.grand_total,
			hw_count = EXCLUDED.hw_count,
			asha_count = EXCLUDED.asha_count,
			calculated_at = EXCLUDED.calculated_at`,
		calc.ID, calc.FacilityID, calc.ReportMonth.String(), calc.PerformancePercentage.String(),
		calc.FacilityRemuneration.String(), calc.WorkerRemuneration.String(), calc.GrandTotal.String(),
		calc.HWCount, calc.ASHACount, calc.CalculatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert calculation: %w", err)
	}
	return nil
}

// =============================================================================
// REPORT STORE
// =============================================================================

func (q *queries) GetCalculation(ctx context.Context, facilityID string, month generic.ReportMonth) (*remuneration.Calculation, error) {
	var (
		c                                  remuneration.Calculation
		reportMonth, perf, fac, wrk, total string
	)
	err := q.db.QueryRow(ctx, `
		SELECT id, facility_id, report_month, performance_percentage::text, facility_remuneration::text,
		       worker_remuneration::text, grand_total::text, hw_count, asha_count, calculated_at
		FROM calculations WHERE facility_id = $1 AND report_month = $2`,
		facilityID, month.String(),
	).Scan(&c.ID, &c.FacilityID, &reportMonth, &perf, &fac, &wrk, &total, &c.HWCount, &c.ASHACount, &c.CalculatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", generic.ErrNotComputed, facilityID, month)
	}
	if err != nil {
		return nil, fmt.Errorf("get calculation: %w", err)
	}
	c.ReportMonth = generic.MustParseReportMonth(reportMonth)
	c.PerformancePercentage = generic.MustParseDecimal(perf)
	c.FacilityRemuneration = generic.MustParseDecimal(fac)
	c.WorkerRemuneration = generic.MustParseDecimal(wrk)
	c.GrandTotal = generic.MustParseDecimal(total)
	return &c, nil
}

func (q *queries) ListFacilityRecords(ctx context.Context, facilityID string, month generic.ReportMonth) ([]remuneration.FacilityRecord, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, facility_id, report_month, indicator_id, indicator_code, actual_value::text,
		       target_value::text, achieved_percentage::text, incentive_amount::text,
		       max_remuneration::text, status, updated_at
		FROM facility_records
		WHERE facility_id = $1 AND report_month = $2
		ORDER BY indicator_code ASC`, facilityID, month.String())
	if err != nil {
		return nil, fmt.Errorf("query facility records: %w", err)
	}
	defer rows.Close()

	var out []remuneration.FacilityRecord
	for rows.Next() {
		var (
			r                                     remuneration.FacilityRecord
			reportMonth, actual, target, achieved string
			incentive, maxRem, status             string
		)
		if err := rows.Scan(&r.ID, &r.FacilityID, &reportMonth, &r.IndicatorID, &r.IndicatorCode,
			&actual, &target, &achieved, &incentive, &maxRem, &status, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan facility record: %w", err)
		}
		r.ReportMonth = generic.MustParseReportMonth(reportMonth)
		r.ActualValue = generic.MustParseDecimal(actual)
		r.TargetValue = generic.MustParseDecimal(target)
		r.AchievedPercentage = generic.MustParseDecimal(achieved)
		r.IncentiveAmount = generic.MustParseDecimal(incentive)
		r.MaxRemuneration = generic.MustParseDecimal(maxRem)
		r.Status = remuneration.Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *queries) ListWorkerRecords(ctx context.Context, facilityID string, month generic.ReportMonth) ([]remuneration.WorkerRecord, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, worker_id, facility_id, report_month, worker_type, allocated_amount::text,
		       performance_percentage::text, calculated_amount::text, updated_at
		FROM worker_records
		WHERE facility_id = $1 AND report_month = $2
		ORDER BY worker_id ASC`, facilityID, month.String())
	if err != nil {
		return nil, fmt.Errorf("query worker records: %w", err)
	}
	defer rows.Close()

	var out []remuneration.WorkerRecord
	for rows.Next() {
		var (
			r                                  remuneration.WorkerRecord
			reportMonth, workerType, allocated string
			perf, amount                       string
		)
		if err := rows.Scan(&r.ID, &r.WorkerID, &r.FacilityID, &reportMonth, &workerType,
			&allocated, &perf, &amount, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan worker record: %w", err)
		}
		r.ReportMonth = generic.MustParseReportMonth(reportMonth)
		r.WorkerType = remuneration.WorkerType(workerType)
		r.AllocatedAmount = generic.MustParseDecimal(allocated)
		r.PerformancePercentage = generic.MustParseDecimal(perf)
		r.CalculatedAmount = generic.MustParseDecimal(amount)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *queries) StalePeriods(ctx context.Context, limit int) ([]remuneration.Period, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := q.db.Query(ctx, `
		SELECT DISTINCT fv.facility_id, fv.report_month
		FROM field_values fv
		LEFT JOIN calculations c
		       ON c.facility_id = fv.facility_id AND c.report_month = fv.report_month
		WHERE c.id IS NULL
		ORDER BY fv.report_month ASC, fv.facility_id ASC
		LIMIT $1`, lim)
	if err != nil {
		return nil, fmt.Errorf("query stale periods: %w", err)
	}
	defer rows.Close()

	var out []remuneration.Period
	for rows.Next() {
		var (
			p     remuneration.Period
			month string
		)
		if err := rows.Scan(&p.FacilityID, &month); err != nil {
			return nil, fmt.Errorf("scan stale period: %w", err)
		}
		p.ReportMonth = generic.MustParseReportMonth(month)
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// MASTER DATA
// =============================================================================

func (q *queries) SaveFacility(ctx context.Context, f remuneration.Facility) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO facilities (id, name, facility_type_id, facility_type_name, district_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			facility_type_id = EXCLUDED.facility_type_id,
			facility_type_name = EXCLUDED.facility_type_name,
			district_id = EXCLUDED.district_id`,
		f.ID, f.Name, f.FacilityTypeID, f.FacilityTypeName, nullable(f.DistrictID),
	)
	if err != nil {
		return fmt.Errorf("save facility: %w", err)
	}
	return nil
}

func (q *queries) SaveField(ctx context.Context, f remuneration.Field) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO fields (id, code, name, data_type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			data_type = EXCLUDED.data_type`,
		f.ID, f.Code, f.Name, string(f.DataType),
	)
	if err != nil {
		return fmt.Errorf("save field: %w", err)
	}
	return nil
}

func (q *queries) SaveIndicator(ctx context.Context, ind remuneration.Indicator) error {
	formulaConfig, err := factory.MarshalFormulaConfig(ind.FormulaConfig)
	if err != nil {
		return fmt.Errorf("encode formula_config: %w", err)
	}
	applicable := ind.ApplicableFacilityTypes
	if applicable == nil {
		applicable = []string{}
	}

	_, err = q.db.Exec(ctx, `
		INSERT INTO indicators
		(id, code, name, target_type, target_value, formula_config,
		 numerator_field_id, denominator_field_id, target_field_id, applicable_facility_types)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			target_type = EXCLUDED.target_type,
			target_value = EXCLUDED.target_value,
			formula_config = EXCLUDED.formula_config,
			numerator_field_id = EXCLUDED.numerator_field_id,
			denominator_field_id = EXCLUDED.denominator_field_id,
			target_field_id = EXCLUDED.target_field_id,
			applicable_facility_types = EXCLUDED.applicable_facility_types`,
		ind.ID, ind.Code, ind.Name, string(ind.TargetType), nullable(ind.TargetValue), string(formulaConfig),
		ind.NumeratorFieldID, nullable(ind.DenominatorFieldID), nullable(ind.TargetFieldID), applicable,
	)
	if err != nil {
		return fmt.Errorf("save indicator: %w", err)
	}
	return nil
}

func (q *queries) SaveRemunerationConfig(ctx context.Context, indicatorID string, cfg remuneration.RemunerationConfig) error {
	var conditional *string
	if cfg.ConditionalAmount != nil {
		s := cfg.ConditionalAmount.String()
		conditional = &s
	}
	_, err := q.db.Exec(ctx, `
		INSERT INTO remuneration_configs (indicator_id, facility_type, base_amount, conditional_amount)
		VALUES ($1, $2, $3::numeric, $4::numeric)
		ON CONFLICT (indicator_id, facility_type) DO UPDATE SET
			base_amount = EXCLUDED.base_amount,
			conditional_amount = EXCLUDED.conditional_amount`,
		indicatorID, cfg.FacilityType, cfg.BaseAmount.String(), conditional,
	)
	if err != nil {
		return fmt.Errorf("save remuneration config: %w", err)
	}
	return nil
}

func (q *queries) SaveWorker(ctx context.Context, w remuneration.Worker) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO workers (id, facility_id, name, worker_type, allocated_amount)
		VALUES ($1, $2, $3, $4, $5::numeric)
		ON CONFLICT (id) DO UPDATE SET
			facility_id = EXCLUDED.facility_id,
			name = EXCLUDED.name,
			worker_type = EXCLUDED.worker_type,
			allocated_amount = EXCLUDED.allocated_amount`,
		w.ID, w.FacilityID, w.Name, string(w.WorkerType), w.AllocatedAmount.String(),
	)
	if err != nil {
		return fmt.Errorf("save worker: %w", err)
	}
	return nil
}

// Helper functions

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullTime(v remuneration.FieldValue) any {
	if v.CreatedAt.IsZero() {
		return nil
	}
	return v.CreatedAt
}

func parseDecimalPtr(s *string) *decimal.Decimal {
	if s == nil {
		return nil
	}
	d := generic.MustParseDecimal(*s)
	return &d
}
