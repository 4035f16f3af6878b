package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/remuneration-engine/cache"
	"github.com/warp/remuneration-engine/generic"
	"github.com/warp/remuneration-engine/remuneration"
	"go.uber.org/zap"
)

var march2025 = generic.MustParseReportMonth("2025-03")

func setup(t *testing.T) (*miniredis.Miniredis, *cache.SummaryCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, cache.NewSummaryCache(cache.NewRedisKVStore(client), time.Hour, zap.NewNop())
}

func sampleReport() *remuneration.Report {
	return &remuneration.Report{
		Summary: remuneration.Calculation{
			FacilityID:            "fac-1",
			ReportMonth:           march2025,
			PerformancePercentage: decimal.RequireFromString("75.5"),
			FacilityRemuneration:  decimal.NewFromInt(1500),
			GrandTotal:            decimal.RequireFromString("2255"),
			HWCount:               1,
		},
		Indicators: []remuneration.FacilityRecord{{
			FacilityID: "fac-1", ReportMonth: march2025, IndicatorCode: "DVDMS",
			IncentiveAmount: decimal.NewFromInt(1500), Status: remuneration.StatusAchieved,
		}},
	}
}

// countingSource counts loads so tests can tell hits from misses.
type countingSource struct {
	report *remuneration.Report
	err    error
	calls  int
}

func (s *countingSource) LoadReport(context.Context, string, generic.ReportMonth) (*remuneration.Report, error) {
	s.calls++
	return s.report, s.err
}

func TestKey(t *testing.T) {
	assert.Equal(t, "remuneration:report:fac-1:2025-03", cache.Key("fac-1", march2025))
}

func TestRedisKVStore_MissMapsToErrCacheMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	kv := cache.NewRedisKVStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	_, err := kv.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestSummaryCache_PutGet(t *testing.T) {
	// GIVEN: An empty cache
	// WHEN: A report is stored and read back
	// THEN: Decimals and the month survive, and the TTL is set
	mr, c := setup(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "fac-1", march2025)
	require.ErrorIs(t, err, cache.ErrCacheMiss)

	require.NoError(t, c.Put(ctx, sampleReport()))

	got, err := c.Get(ctx, "fac-1", march2025)
	require.NoError(t, err)
	assert.Equal(t, march2025, got.Summary.ReportMonth)
	assert.True(t, got.Summary.GrandTotal.Equal(decimal.RequireFromString("2255")))
	assert.True(t, got.Summary.PerformancePercentage.Equal(decimal.RequireFromString("75.5")))
	require.Len(t, got.Indicators, 1)
	assert.Equal(t, remuneration.StatusAchieved, got.Indicators[0].Status)

	assert.Equal(t, time.Hour, mr.TTL(cache.Key("fac-1", march2025)))

	mr.FastForward(2 * time.Hour)
	_, err = c.Get(ctx, "fac-1", march2025)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestSummaryCache_Invalidate(t *testing.T) {
	mr, c := setup(t)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, sampleReport()))

	require.NoError(t, c.Invalidate(ctx, "fac-1", march2025))

	assert.False(t, mr.Exists(cache.Key("fac-1", march2025)))
}

func TestSummaryCache_InvalidateHook(t *testing.T) {
	// GIVEN: A cached report for the period
	// WHEN: The period's values are replaced
	// THEN: The entry is dropped so reads fall back to the store
	mr, c := setup(t)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, sampleReport()))

	c.InvalidateHook()(ctx, "fac-1", march2025)

	assert.False(t, mr.Exists(cache.Key("fac-1", march2025)))
	src := &countingSource{err: generic.ErrNotComputed}
	_, err := cache.NewReadThrough(c, src).LoadReport(ctx, "fac-1", march2025)
	assert.ErrorIs(t, err, generic.ErrNotComputed)
	assert.Equal(t, 1, src.calls)
}

func TestSummaryCache_InvalidateHook_RedisDown(t *testing.T) {
	mr, c := setup(t)
	mr.Close()

	assert.NotPanics(t, func() {
		c.InvalidateHook()(context.Background(), "fac-1", march2025)
	})
}

func TestSummaryCache_Hook_SkipsFailedRecords(t *testing.T) {
	// GIVEN: A recompute where one facility record and one worker record failed to persist
	// WHEN: The hook runs
	// THEN: Only persisted records are cached
	_, c := setup(t)
	ctx := context.Background()

	ok := &remuneration.FacilityRecord{IndicatorCode: "DVDMS", Status: remuneration.StatusAchieved}
	lost := &remuneration.FacilityRecord{IndicatorCode: "VM001", Status: remuneration.StatusAchieved}
	res := &remuneration.Result{
		Success:     true,
		FacilityID:  "fac-1",
		ReportMonth: march2025,
		Summary:     remuneration.Calculation{FacilityID: "fac-1", ReportMonth: march2025, GrandTotal: decimal.NewFromInt(10)},
		Indicators: []remuneration.IndicatorOutcome{
			{IndicatorCode: "DVDMS", Record: ok},
			{IndicatorCode: "VM001", Record: lost, Err: &generic.IndicatorError{Code: "VM001", Stage: "persist", Err: errors.New("disk full")}},
			{IndicatorCode: "TC001", Skipped: true, Err: errors.New("no config")},
		},
		Workers: []remuneration.WorkerOutcome{
			{WorkerID: "w-1", Record: &remuneration.WorkerRecord{WorkerID: "w-1"}},
			{WorkerID: "w-2", Record: &remuneration.WorkerRecord{WorkerID: "w-2"}, Err: errors.New("disk full")},
		},
	}

	c.Hook()(ctx, res)

	got, err := c.Get(ctx, "fac-1", march2025)
	require.NoError(t, err)
	require.Len(t, got.Indicators, 1)
	assert.Equal(t, "DVDMS", got.Indicators[0].IndicatorCode)
	require.Len(t, got.Workers, 1)
	assert.Equal(t, "w-1", got.Workers[0].WorkerID)
}

func TestReadThrough(t *testing.T) {
	// GIVEN: An empty cache in front of a source
	// WHEN: The same report is loaded twice
	// THEN: The source is hit once
	_, c := setup(t)
	ctx := context.Background()
	src := &countingSource{report: sampleReport()}
	rt := cache.NewReadThrough(c, src)

	first, err := rt.LoadReport(ctx, "fac-1", march2025)
	require.NoError(t, err)
	second, err := rt.LoadReport(ctx, "fac-1", march2025)
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	assert.True(t, first.Summary.GrandTotal.Equal(second.Summary.GrandTotal))
}

func TestReadThrough_SourceErrorNotCached(t *testing.T) {
	_, c := setup(t)
	ctx := context.Background()
	src := &countingSource{err: generic.ErrNotComputed}
	rt := cache.NewReadThrough(c, src)

	_, err := rt.LoadReport(ctx, "fac-1", march2025)
	assert.ErrorIs(t, err, generic.ErrNotComputed)

	_, err = c.Get(ctx, "fac-1", march2025)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestReadThrough_RedisDown(t *testing.T) {
	// GIVEN: Redis has gone away
	// WHEN: A report is loaded
	// THEN: The source still serves it
	mr, c := setup(t)
	mr.Close()
	src := &countingSource{report: sampleReport()}

	rep, err := cache.NewReadThrough(c, src).LoadReport(context.Background(), "fac-1", march2025)

	require.NoError(t, err)
	assert.Equal(t, "fac-1", rep.Summary.FacilityID)
	assert.Equal(t, 1, src.calls)
}
