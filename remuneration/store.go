/*
store.go - Persistence interfaces for the remuneration engine

PURPOSE:
  Defines what the engine needs from a database. The engine only needs
  reads of master data and field values, a full replace of field values,
  and upserts keyed by composite keys. Implementations pick the database.

KEY INTERFACES:
  Store:           Reads and writes used by one recompute or submission
  TxStore:         Store plus atomic execution of a unit of work
  ReportStore:     Reads of derived records for reporting
  MasterDataStore: Writes of reference data (facilities, indicators, ...)

UPSERT CONTRACT:
  Derived records are never inserted twice for the same key:
  - FacilityRecord by (facility, month, indicator)
  - WorkerRecord by (worker, month)
  - Calculation by (facility, month)
  Re-running a recompute overwrites. Concurrent recomputes of the same
  period are last-writer-wins; there is no application-level locking.

REPLACE CONTRACT:
  ReplaceFieldValues deletes every value for (facility, month) and
  inserts the new set. It also deletes the period's Calculation so the
  period reads as stale until a recompute succeeds. Run inside WithTx it
  is all-or-nothing.

IMPLEMENTATIONS:
  - remuneration/store/memory.go: In-memory for tests
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL (pgx)
*/
package remuneration

import (
	"context"

	"github.com/warp/remuneration-engine/generic"
)

// =============================================================================
// STORE - Reads and writes for one unit of work
// =============================================================================

type Store interface {
	// GetFacility returns generic.ErrFacilityNotFound (wrapped) when missing.
	GetFacility(ctx context.Context, facilityID string) (*Facility, error)

	// ListIndicators returns indicators applicable to a facility type, each
	// with Remuneration resolved for that type (nil when unconfigured).
	ListIndicators(ctx context.Context, facilityType string) ([]Indicator, error)

	ListFieldValues(ctx context.Context, facilityID string, month generic.ReportMonth) ([]FieldValue, error)
	ListWorkers(ctx context.Context, facilityID string) ([]Worker, error)

	// GetFields returns the known fields among ids, keyed by ID.
	GetFields(ctx context.Context, ids []string) (map[string]Field, error)

	ReplaceFieldValues(ctx context.Context, facilityID string, month generic.ReportMonth, values []FieldValue) error

	UpsertFacilityRecord(ctx context.Context, rec FacilityRecord) error
	UpsertWorkerRecord(ctx context.Context, rec WorkerRecord) error
	UpsertCalculation(ctx context.Context, calc Calculation) error
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// REPORTING READS
// =============================================================================

type ReportStore interface {
	// GetCalculation returns generic.ErrNotComputed (wrapped) when missing.
	GetCalculation(ctx context.Context, facilityID string, month generic.ReportMonth) (*Calculation, error)
	ListFacilityRecords(ctx context.Context, facilityID string, month generic.ReportMonth) ([]FacilityRecord, error)
	ListWorkerRecords(ctx context.Context, facilityID string, month generic.ReportMonth) ([]WorkerRecord, error)

	// StalePeriods lists periods with field values but no calculation,
	// oldest first, at most limit entries (0 = no limit).
	StalePeriods(ctx context.Context, limit int) ([]Period, error)
}

// =============================================================================
// MASTER DATA
// =============================================================================

type MasterDataStore interface {
	SaveFacility(ctx context.Context, f Facility) error
	SaveField(ctx context.Context, f Field) error

	// SaveIndicator stores the indicator definition. Its Remuneration is
	// ignored; use SaveRemunerationConfig.
	SaveIndicator(ctx context.Context, ind Indicator) error
	SaveRemunerationConfig(ctx context.Context, indicatorID string, cfg RemunerationConfig) error
	SaveWorker(ctx context.Context, w Worker) error
}
