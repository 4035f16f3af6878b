package remuneration_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/remuneration-engine/catalog"
	"github.com/warp/remuneration-engine/generic"
	"github.com/warp/remuneration-engine/remuneration"
	"github.com/warp/remuneration-engine/remuneration/store"
)

// =============================================================================
// AGGREGATION
// =============================================================================

func TestEngine_Aggregate_CapsEachIndicatorAt100(t *testing.T) {
	// GIVEN: Indicator A at raw 150% and indicator B at raw 40%
	// WHEN: The facility is recomputed
	// THEN: Performance is average(100, 40) = 70, not average(150, 40)

	f := newFixture(t)
	f.facility("fac-1", catalog.PHC)
	f.indicator("A", generic.TargetTypeRange, "10", "100")
	f.indicator("B", generic.TargetTypeRange, "10", "100")
	f.values("fac-1", march2025, map[string]string{"A": "15", "B": "4"})

	res, err := f.eng.Recompute(f.ctx, "fac-1", march2025)
	require.NoError(t, err)
	require.True(t, res.Success)

	decEqual(t, "70", res.Summary.PerformancePercentage)
	decEqual(t, "140", res.Summary.FacilityRemuneration)

	a, ok := res.Indicator("A")
	require.True(t, ok)
	decEqual(t, "100", a.Record.AchievedPercentage)
	assert.Equal(t, remuneration.StatusAchieved, a.Record.Status)

	b, _ := res.Indicator("B")
	decEqual(t, "40", b.Record.AchievedPercentage)
	assert.Equal(t, remuneration.StatusNotAchieved, b.Record.Status)
}

func TestEngine_NoIndicators_ZeroPerformance(t *testing.T) {
	f := newFixture(t)
	f.facility("fac-1", catalog.UPHC)
	f.worker("w-1", "fac-1", remuneration.WorkerHW, "1000")

	res, err := f.eng.Recompute(f.ctx, "fac-1", march2025)
	require.NoError(t, err)

	decEqual(t, "0", res.Summary.PerformancePercentage)
	decEqual(t, "0", res.Summary.GrandTotal)
	require.Len(t, res.Workers, 1)
	decEqual(t, "0", res.Workers[0].Record.CalculatedAmount)
}

// =============================================================================
// TB-CONDITIONAL INDICATORS
// =============================================================================

func TestEngine_TBGatingZero_ExcludesConditionalIndicator(t *testing.T) {
	// GIVEN: CT001 (TB-conditional) plus X and Y
	// WHEN: total_tb_patients = 0
	// THEN: Performance = average(X, Y), CT001 shows 0% and is paid
	//       against its conditional amount

	f := newFixture(t)
	f.facility("fac-1", catalog.PHC)
	f.presets(catalog.CodeTBContactTracing)
	f.indicator("X", generic.TargetTypeRange, "10", "100")
	f.indicator("Y", generic.TargetTypeRange, "10", "100")
	f.values("fac-1", march2025, map[string]string{
		"X": "10", "Y": "4",
		catalog.FieldTotalTBPatients: "0",
		"tb_contacts_traced":         "10",
		"tb_contacts_total":          "10",
	})

	res, err := f.eng.Recompute(f.ctx, "fac-1", march2025)
	require.NoError(t, err)

	decEqual(t, "70", res.Summary.PerformancePercentage)

	ct, ok := res.Indicator(catalog.CodeTBContactTracing)
	require.True(t, ok)
	assert.True(t, ct.Excluded)
	decEqual(t, "0", ct.Record.AchievedPercentage)
	decEqual(t, "250", ct.Record.MaxRemuneration, "conditional amount")
	decEqual(t, "250", ct.Record.IncentiveAmount)

	// 100 (X) + 40 (Y) + 250 (CT001)
	decEqual(t, "390", res.Summary.FacilityRemuneration)
}

func TestEngine_TBGatingMissing_TreatedAsZero(t *testing.T) {
	f := newFixture(t)
	f.facility("fac-1", catalog.PHC)
	f.presets(catalog.CodeTBContactTracing)
	f.indicator("X", generic.TargetTypeRange, "10", "100")
	f.values("fac-1", march2025, map[string]string{"X": "5"})

	res, err := f.eng.Recompute(f.ctx, "fac-1", march2025)
	require.NoError(t, err)

	ct, _ := res.Indicator(catalog.CodeTBContactTracing)
	assert.True(t, ct.Excluded)
	decEqual(t, "50", res.Summary.PerformancePercentage)
}

func TestEngine_TBGatingPositive_IncludesConditionalIndicator(t *testing.T) {
	// GIVEN: CT001 with 3 TB patients and 4 of 10 contacts traced
	// THEN: CT001 is scored normally against its base amount

	f := newFixture(t)
	f.facility("fac-1", catalog.PHC)
	f.presets(catalog.CodeTBContactTracing)
	f.indicator("X", generic.TargetTypeRange, "10", "100")
	f.values("fac-1", march2025, map[string]string{
		"X":                          "10",
		catalog.FieldTotalTBPatients: "3",
		"tb_contacts_traced":         "4",
		"tb_contacts_total":          "10",
	})

	res, err := f.eng.Recompute(f.ctx, "fac-1", march2025)
	require.NoError(t, err)

	ct, _ := res.Indicator(catalog.CodeTBContactTracing)
	assert.False(t, ct.Excluded)
	decEqual(t, "500", ct.Record.MaxRemuneration)
	// 40% against an 80% floor
	decEqual(t, "50", ct.Record.AchievedPercentage)
	decEqual(t, "250", ct.Record.IncentiveAmount)
	decEqual(t, "75", res.Summary.PerformancePercentage)
}

// =============================================================================
// WORKERS
// =============================================================================

func TestEngine_WorkerPayout_ScalesWithPerformance(t *testing.T) {
	// GIVEN: Facility performance of 73.5%
	// WHEN: Workers are paid
	// THEN: hw with 1000 allocated gets 735.00, other roles get no record

	f := newFixture(t)
	f.facility("fac-1", catalog.SCHWC)
	f.indicator("A", generic.TargetTypeRange, "200", "100")
	f.values("fac-1", march2025, map[string]string{"A": "147"})
	f.worker("w-hw", "fac-1", remuneration.WorkerHW, "1000")
	f.worker("w-asha", "fac-1", remuneration.WorkerASHA, "2000")
	f.worker("w-anm", "fac-1", "anm", "5000")
	f.worker("w-other-facility", "fac-2", remuneration.WorkerHW, "1000")

	res, err := f.eng.Recompute(f.ctx, "fac-1", march2025)
	require.NoError(t, err)

	decEqual(t, "73.5", res.Summary.PerformancePercentage)
	require.Len(t, res.Workers, 2)

	records, err := f.store.ListWorkerRecords(f.ctx, "fac-1", march2025)
	require.NoError(t, err)
	require.Len(t, records, 2)

	byID := map[string]remuneration.WorkerRecord{}
	for _, r := range records {
		byID[r.WorkerID] = r
	}
	decEqual(t, "735", byID["w-hw"].CalculatedAmount)
	decEqual(t, "1470", byID["w-asha"].CalculatedAmount)
	decEqual(t, "73.5", byID["w-hw"].PerformancePercentage)

	assert.Equal(t, 1, res.Summary.HWCount)
	assert.Equal(t, 1, res.Summary.ASHACount)
	decEqual(t, "2205", res.Summary.WorkerRemuneration)
	decEqual(t, "2278.5", res.Summary.GrandTotal)
}

func TestWorkerPayout_RoundsToCents(t *testing.T) {
	decEqual(t, "735", remuneration.WorkerPayout(dec("1000"), dec("73.5")))
	decEqual(t, "333.33", remuneration.WorkerPayout(dec("1000"), dec("33.333")))
	decEqual(t, "0", remuneration.WorkerPayout(dec("1000"), decimal.Zero))
}

// =============================================================================
// IDEMPOTENCY
// =============================================================================

func TestEngine_Recompute_IsIdempotent(t *testing.T) {
	// GIVEN: A scored facility
	// WHEN: It is recomputed again with the same field values
	// THEN: Records and totals are identical, nothing accumulates

	f := newFixture(t)
	f.facility("fac-1", catalog.PHC)
	f.presets(catalog.CodeTeleconsultation, catalog.CodeSatisfaction, catalog.CodeDVDMS)
	f.values("fac-1", march2025, map[string]string{
		"teleconsultations": "60", "population": "24000",
		"satisfaction_score": "3", "dvdms_issues": "12",
	})
	f.worker("w-1", "fac-1", remuneration.WorkerHW, "1500")

	first, err := f.eng.Recompute(f.ctx, "fac-1", march2025)
	require.NoError(t, err)
	firstRecords, _ := f.store.ListFacilityRecords(f.ctx, "fac-1", march2025)
	firstWorkers, _ := f.store.ListWorkerRecords(f.ctx, "fac-1", march2025)

	second, err := f.eng.Recompute(f.ctx, "fac-1", march2025)
	require.NoError(t, err)
	secondRecords, _ := f.store.ListFacilityRecords(f.ctx, "fac-1", march2025)
	secondWorkers, _ := f.store.ListWorkerRecords(f.ctx, "fac-1", march2025)

	require.Len(t, secondRecords, 3)
	require.Len(t, secondWorkers, 1)
	assert.Equal(t, summaryOf(first.Summary), summaryOf(second.Summary))
	for i := range firstRecords {
		assert.Equal(t, firstRecords[i].ID, secondRecords[i].ID, "upsert keeps the record identity")
		assert.Equal(t, firstRecords[i].IncentiveAmount.String(), secondRecords[i].IncentiveAmount.String())
		assert.Equal(t, firstRecords[i].AchievedPercentage.String(), secondRecords[i].AchievedPercentage.String())
	}
	assert.Equal(t, firstWorkers[0].CalculatedAmount.String(), secondWorkers[0].CalculatedAmount.String())
}

func summaryOf(c remuneration.Calculation) []string {
	return []string{
		c.PerformancePercentage.String(), c.FacilityRemuneration.String(),
		c.WorkerRemuneration.String(), c.GrandTotal.String(),
	}
}

// =============================================================================
// FAILURE HANDLING
// =============================================================================

func TestEngine_FacilityNotFound_FailsWithoutWrites(t *testing.T) {
	f := newFixture(t)

	res, err := f.eng.Recompute(f.ctx, "missing", march2025)

	require.Error(t, err)
	assert.True(t, generic.IsNotFound(err))
	var nf *generic.FacilityNotFoundError
	assert.ErrorAs(t, err, &nf)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	decEqual(t, "0", res.Summary.GrandTotal)
}

func TestEngine_MissingRemunerationConfig_SkipsIndicator(t *testing.T) {
	// GIVEN: VM001 only has amounts for SC_HWC and A_HWC
	// WHEN: It is forced onto a PHC (applicable but unconfigured)
	// THEN: It is skipped and recorded, the rest is scored

	f := newFixture(t)
	f.facility("fac-1", catalog.PHC)
	preset := catalog.Select(catalog.CodeVHSNCMeeting)
	preset[0].Indicator.ApplicableFacilityTypes = catalog.FacilityTypes()
	require.NoError(t, catalog.Install(f.ctx, f.store, preset))
	f.indicator("A", generic.TargetTypeRange, "10", "100")
	f.values("fac-1", march2025, map[string]string{"A": "5"})

	res, err := f.eng.Recompute(f.ctx, "fac-1", march2025)
	require.NoError(t, err)

	vm, ok := res.Indicator(catalog.CodeVHSNCMeeting)
	require.True(t, ok)
	assert.True(t, vm.Skipped)
	assert.Nil(t, vm.Record)
	assert.ErrorIs(t, vm.Err, generic.ErrMissingRemunerationConfig)
	assert.Contains(t, f.diag.skipped, catalog.CodeVHSNCMeeting)

	decEqual(t, "50", res.Summary.PerformancePercentage, "skipped indicator is not averaged")
	records, _ := f.store.ListFacilityRecords(f.ctx, "fac-1", march2025)
	assert.Len(t, records, 1)
}

func TestEngine_RecordUpsertFailure_ContinuesWithOthers(t *testing.T) {
	// GIVEN: Writing indicator A's record fails
	// WHEN: The facility is recomputed
	// THEN: B is still written, A's failure is in the outcome fold,
	//       and the summary commits

	f := newFixture(t)
	f.facility("fac-1", catalog.PHC)
	f.indicator("A", generic.TargetTypeRange, "10", "100")
	f.indicator("B", generic.TargetTypeRange, "10", "100")
	f.values("fac-1", march2025, map[string]string{"A": "10", "B": "10"})
	f.store.FailOn(store.OpFacilityRecord, catalog.IndicatorID("A"), errors.New("disk full"))

	res, err := f.eng.Recompute(f.ctx, "fac-1", march2025)
	require.NoError(t, err)
	assert.True(t, res.Success)

	a, _ := res.Indicator("A")
	require.Error(t, a.Err)
	var indErr *generic.IndicatorError
	require.ErrorAs(t, a.Err, &indErr)
	assert.Equal(t, "persist", indErr.Stage)
	assert.Len(t, res.Failures(), 1)
	assert.Contains(t, f.diag.failed, "facility_record:A")

	records, _ := f.store.ListFacilityRecords(f.ctx, "fac-1", march2025)
	require.Len(t, records, 1)
	assert.Equal(t, "B", records[0].IndicatorCode)

	calc, err := f.store.GetCalculation(f.ctx, "fac-1", march2025)
	require.NoError(t, err)
	decEqual(t, "200", calc.FacilityRemuneration)
}

func TestEngine_WorkerUpsertFailure_ContinuesWithOthers(t *testing.T) {
	f := newFixture(t)
	f.facility("fac-1", catalog.PHC)
	f.indicator("A", generic.TargetTypeRange, "10", "100")
	f.values("fac-1", march2025, map[string]string{"A": "10"})
	f.worker("w-1", "fac-1", remuneration.WorkerHW, "100")
	f.worker("w-2", "fac-1", remuneration.WorkerASHA, "100")
	f.store.FailOn(store.OpWorkerRecord, "w-1", errors.New("constraint"))

	res, err := f.eng.Recompute(f.ctx, "fac-1", march2025)
	require.NoError(t, err)

	require.Len(t, res.Workers, 2)
	assert.Error(t, res.Workers[0].Err)
	assert.NoError(t, res.Workers[1].Err)
	records, _ := f.store.ListWorkerRecords(f.ctx, "fac-1", march2025)
	require.Len(t, records, 1)
	assert.Equal(t, "w-2", records[0].WorkerID)
}

func TestEngine_SummaryFailure_RollsBackEverything(t *testing.T) {
	// GIVEN: The summary upsert fails
	// WHEN: The facility is recomputed
	// THEN: Success=false with zero totals, and no record survives

	f := newFixture(t)
	f.facility("fac-1", catalog.PHC)
	f.indicator("A", generic.TargetTypeRange, "10", "100")
	f.values("fac-1", march2025, map[string]string{"A": "10"})
	f.worker("w-1", "fac-1", remuneration.WorkerHW, "100")
	f.store.FailOn(store.OpCalculation, "fac-1", errors.New("deadlock"))

	res, err := f.eng.Recompute(f.ctx, "fac-1", march2025)

	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "deadlock")
	decEqual(t, "0", res.Summary.FacilityRemuneration)
	decEqual(t, "0", res.Summary.PerformancePercentage)

	records, _ := f.store.ListFacilityRecords(f.ctx, "fac-1", march2025)
	assert.Empty(t, records)
	workers, _ := f.store.ListWorkerRecords(f.ctx, "fac-1", march2025)
	assert.Empty(t, workers)
	_, err = f.store.GetCalculation(f.ctx, "fac-1", march2025)
	assert.ErrorIs(t, err, generic.ErrNotComputed)
}

func TestEngine_LoadFailure_IsFatal(t *testing.T) {
	f := newFixture(t)
	f.facility("fac-1", catalog.PHC)
	f.store.FailOn(store.OpIndicators, catalog.PHC, errors.New("connection reset"))

	res, err := f.eng.Recompute(f.ctx, "fac-1", march2025)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load indicators")
	assert.False(t, res.Success)
}

func TestEngine_CalculationPanic_ZeroPayoutAndContinue(t *testing.T) {
	// GIVEN: An indicator whose formula panics
	// WHEN: The facility is recomputed
	// THEN: That indicator pays 0, the error is recorded, others are scored

	generic.RegisterFormula("PANIC(A,B)", func(a, b decimal.Decimal) decimal.Decimal {
		panic("formula exploded")
	})

	f := newFixture(t)
	f.facility("fac-1", catalog.PHC)
	f.indicator("A", generic.TargetTypeRange, "10", "100")
	require.NoError(t, f.store.SaveIndicator(f.ctx, remuneration.Indicator{
		ID: "ind-BOOM", Code: "BOOM", TargetType: generic.TargetTypePercentageRange,
		FormulaConfig:           generic.FormulaConfig{Formula: "PANIC(A,B)"},
		NumeratorFieldID:        catalog.FieldID("A"),
		ApplicableFacilityTypes: []string{catalog.PHC},
	}))
	require.NoError(t, f.store.SaveRemunerationConfig(f.ctx, "ind-BOOM", remuneration.RemunerationConfig{
		FacilityType: catalog.PHC, BaseAmount: dec("300"),
	}))
	f.values("fac-1", march2025, map[string]string{"A": "10"})

	var res *remuneration.Result
	var err error
	require.NotPanics(t, func() { res, err = f.eng.Recompute(f.ctx, "fac-1", march2025) })
	require.NoError(t, err)

	boom, _ := res.Indicator("BOOM")
	assert.ErrorIs(t, boom.Err, generic.ErrCalculationPanic)
	require.NotNil(t, boom.Record)
	decEqual(t, "0", boom.Record.IncentiveAmount)
	decEqual(t, "100", res.Summary.FacilityRemuneration)
}

// =============================================================================
// HOOKS AND DIAGNOSTICS
// =============================================================================

func TestEngine_RecomputeHook_RunsAfterCommitOnly(t *testing.T) {
	var seen []*remuneration.Result
	hook := remuneration.WithRecomputeHook(func(_ context.Context, r *remuneration.Result) {
		seen = append(seen, r)
	})

	f := newFixture(t, hook)
	f.facility("fac-1", catalog.PHC)

	_, err := f.eng.Recompute(f.ctx, "fac-1", march2025)
	require.NoError(t, err)
	_, err = f.eng.Recompute(f.ctx, "missing", march2025)
	require.Error(t, err)

	require.Len(t, seen, 1)
	assert.Equal(t, "fac-1", seen[0].FacilityID)
	assert.Len(t, f.diag.finished, 2, "diagnostics see failures too")
}

func TestEngine_Diagnostics_TracesEveryScoredIndicator(t *testing.T) {
	f := newFixture(t)
	f.facility("fac-1", catalog.PHC)
	f.presets(catalog.CodeTeleconsultation)
	f.values("fac-1", march2025, map[string]string{"teleconsultations": "60", "population": "24000"})

	_, err := f.eng.Recompute(f.ctx, "fac-1", march2025)
	require.NoError(t, err)

	require.Len(t, f.diag.scored, 1)
	tr := f.diag.scored[0]
	assert.Equal(t, catalog.CodeTeleconsultation, tr.IndicatorCode)
	// 60 / (24000/12) = 3%, floor of 3-5% reached
	decEqual(t, "3", tr.ActualPercentage)
	decEqual(t, "100", tr.DisplayPercentage)
	assert.Equal(t, "3-5", tr.Target)
}
