/*
scheduler.go - Automated recompute of stale periods

PURPOSE:
  Periodically finds (facility, month) periods that have field values but
  no summary and recomputes them. Covers submissions whose recompute
  failed after the values were saved, and data loaded out of band.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each sweep handles at most BatchSize periods, oldest first
  - A period that fails stays stale and is retried on the next sweep

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - BatchSize:     Periods per sweep (default: 100, 0 = all)
  - Enabled:       Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRecomputeScheduler(store, engine, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Recompute endpoint (manual recompute)
  - remuneration/engine.go: Engine.Recompute
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/remuneration-engine/remuneration"
	"go.uber.org/zap"
)

// RecomputeScheduler sweeps stale periods.
type RecomputeScheduler struct {
	Store         remuneration.ReportStore
	Engine        *remuneration.Engine
	Logger        *zap.Logger
	CheckInterval time.Duration
	BatchSize     int
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Processed int
	Failed    int
}

// NewRecomputeScheduler creates a new scheduler.
func NewRecomputeScheduler(store remuneration.ReportStore, engine *remuneration.Engine, logger *zap.Logger) *RecomputeScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecomputeScheduler{
		Store:         store,
		Engine:        engine,
		Logger:        logger.Named("scheduler"),
		CheckInterval: 1 * time.Hour,
		BatchSize:     100,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (rs *RecomputeScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Logger.Info("Disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run()

	rs.Logger.Info("Started", zap.Duration("check_interval", rs.CheckInterval))
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (rs *RecomputeScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.Logger.Info("Stopped")
	}
}

func (rs *RecomputeScheduler) run() {
	defer rs.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-rs.stop
		cancel()
	}()

	// Run immediately on start
	rs.sweep(ctx)

	for {
		select {
		case <-rs.ticker.C:
			rs.sweep(ctx)
		case <-rs.stop:
			return
		}
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (rs *RecomputeScheduler) RunNow(ctx context.Context) SweepResult {
	return rs.sweep(ctx)
}

// NextRunTime returns when the next scheduled check will occur.
func (rs *RecomputeScheduler) NextRunTime() time.Time {
	return time.Now().Add(rs.CheckInterval)
}

func (rs *RecomputeScheduler) sweep(ctx context.Context) SweepResult {
	var result SweepResult

	periods, err := rs.Store.StalePeriods(ctx, rs.BatchSize)
	if err != nil {
		rs.Logger.Error("Error listing stale periods", zap.Error(err))
		return result
	}

	for _, p := range periods {
		if ctx.Err() != nil {
			break
		}
		if _, err := rs.Engine.Recompute(ctx, p.FacilityID, p.ReportMonth); err != nil {
			rs.Logger.Warn("Recompute failed",
				zap.String("facility_id", p.FacilityID),
				zap.String("report_month", p.ReportMonth.String()),
				zap.Error(err),
			)
			result.Failed++
			continue
		}
		result.Processed++
	}

	if result.Processed > 0 || result.Failed > 0 {
		rs.Logger.Info("Sweep completed",
			zap.Int("processed", result.Processed),
			zap.Int("failed", result.Failed),
		)
	}
	return result
}
