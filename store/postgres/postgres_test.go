package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/warp/remuneration-engine/catalog"
	"github.com/warp/remuneration-engine/generic"
	"github.com/warp/remuneration-engine/remuneration"
	"github.com/warp/remuneration-engine/store/postgres"
)

var march2025 = generic.MustParseReportMonth("2025-03")

func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container test skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("remuneration"),
		tcpostgres.WithUsername("user"),
		tcpostgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, connStr, 4, 1)
	require.NoError(t, err)
	store := postgres.New(pool)
	t.Cleanup(store.Close)

	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx), "migrate is repeatable")
	return store
}

func TestPostgresStore(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveFacility(ctx, remuneration.Facility{
		ID: "fac-1", Name: "Rampur SC", FacilityTypeID: "ft-sc", FacilityTypeName: catalog.SCHWC,
	}))
	require.NoError(t, catalog.Install(ctx, s, catalog.Presets()))
	require.NoError(t, s.SaveWorker(ctx, remuneration.Worker{
		ID: "w-1", FacilityID: "fac-1", Name: "Meena", WorkerType: remuneration.WorkerHW,
		AllocatedAmount: decimal.NewFromInt(1000),
	}))

	t.Run("indicators resolve per facility type", func(t *testing.T) {
		inds, err := s.ListIndicators(ctx, catalog.SCHWC)
		require.NoError(t, err)
		require.Len(t, inds, len(catalog.Presets()))
		for _, ind := range inds {
			require.NotNil(t, ind.Remuneration, ind.Code)
		}

		phc, err := s.ListIndicators(ctx, catalog.PHC)
		require.NoError(t, err)
		assert.Len(t, phc, len(catalog.Presets())-1, "VM001 is sub-centre only")
	})

	t.Run("submit and recompute", func(t *testing.T) {
		eng := remuneration.NewEngine(s, catalog.DefaultRules())
		sub := remuneration.NewSubmitter(s, eng)
		one := decimal.NewFromInt(1)
		yes := "1"

		res, err := sub.Submit(ctx, remuneration.Submission{
			FacilityID: "fac-1", ReportMonth: "2025-03", UploadedBy: "user-1",
			Values: []remuneration.SubmittedValue{
				{FieldID: catalog.FieldID("dvdms_issues"), NumericValue: &one},
				{FieldID: catalog.FieldID("vhsnc_meeting_held"), StringValue: &yes},
				{FieldID: catalog.FieldID("elderly_clinics"), JSONValue: []byte(`2`)},
			},
		})
		require.NoError(t, err)
		require.NotNil(t, res.Remuneration, res.RemunerationError)

		values, err := s.ListFieldValues(ctx, "fac-1", march2025)
		require.NoError(t, err)
		assert.Len(t, values, 3)

		calc, err := s.GetCalculation(ctx, "fac-1", march2025)
		require.NoError(t, err)
		assert.True(t, res.Remuneration.Summary.GrandTotal.Equal(calc.GrandTotal))
		assert.Equal(t, 1, calc.HWCount)

		records, err := s.ListFacilityRecords(ctx, "fac-1", march2025)
		require.NoError(t, err)
		assert.Len(t, records, len(catalog.Presets()))

		stale, err := s.StalePeriods(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, stale)
	})

	t.Run("failed record upsert keeps transaction usable", func(t *testing.T) {
		// GIVEN: A transaction
		// WHEN: One record violates a constraint
		// THEN: Later statements still commit

		now := time.Now().UTC()
		good := remuneration.FacilityRecord{
			ID: "r-good", FacilityID: "fac-2", ReportMonth: march2025, IndicatorID: "ind-A", IndicatorCode: "A",
			Status: remuneration.StatusAchieved, UpdatedAt: now,
		}
		bad := good
		bad.ID, bad.IndicatorID, bad.Status = "r-bad", "ind-B", remuneration.Status("bogus")

		err := s.WithTx(ctx, func(tx remuneration.Store) error {
			assert.Error(t, tx.UpsertFacilityRecord(ctx, bad))
			return tx.UpsertFacilityRecord(ctx, good)
		})
		require.NoError(t, err)

		records, err := s.ListFacilityRecords(ctx, "fac-2", march2025)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "r-good", records[0].ID)
	})

	t.Run("not computed", func(t *testing.T) {
		_, err := s.GetCalculation(ctx, "fac-1", march2025.Next())
		assert.ErrorIs(t, err, generic.ErrNotComputed)

		_, err = s.GetFacility(ctx, "nope")
		assert.True(t, generic.IsNotFound(err))
	})
}
