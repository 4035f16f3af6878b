/*
Package telemetry turns engine diagnostics into logs and metrics.

LEVELS:
  IndicatorScored    -> debug (full intermediate trace)
  IndicatorSkipped   -> warn
  RecordFailed       -> error
  RecomputeFinished  -> info, or error when the recompute failed

METRICS (OpenTelemetry, global meter provider unless overridden):
  remuneration.recompute.total          {outcome=success|failure}
  remuneration.recompute.duration       seconds
  remuneration.indicator.skipped        {code}
  remuneration.record.failures          {kind}
*/
package telemetry

import (
	"context"
	"time"

	"github.com/warp/remuneration-engine/remuneration"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const meterName = "github.com/warp/remuneration-engine"

// Diagnostics implements remuneration.Diagnostics on zap and otel.
type Diagnostics struct {
	logger *zap.Logger

	recomputes metric.Int64Counter
	duration   metric.Float64Histogram
	skipped    metric.Int64Counter
	failures   metric.Int64Counter
}

var _ remuneration.Diagnostics = (*Diagnostics)(nil)

type Option func(*options)

type options struct {
	provider metric.MeterProvider
}

// WithMeterProvider overrides the global provider.
func WithMeterProvider(p metric.MeterProvider) Option {
	return func(o *options) { o.provider = p }
}

func New(logger *zap.Logger, opts ...Option) (*Diagnostics, error) {
	o := options{provider: otel.GetMeterProvider()}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := o.provider.Meter(meterName)

	d := &Diagnostics{logger: logger.Named("engine")}
	var err error
	if d.recomputes, err = meter.Int64Counter("remuneration.recompute.total",
		metric.WithDescription("Recomputes by outcome")); err != nil {
		return nil, err
	}
	if d.duration, err = meter.Float64Histogram("remuneration.recompute.duration",
		metric.WithDescription("Recompute wall time"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if d.skipped, err = meter.Int64Counter("remuneration.indicator.skipped",
		metric.WithDescription("Indicators skipped for missing configuration")); err != nil {
		return nil, err
	}
	if d.failures, err = meter.Int64Counter("remuneration.record.failures",
		metric.WithDescription("Per-record persistence or scoring failures")); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Diagnostics) IndicatorScored(ctx context.Context, t remuneration.IndicatorTrace) {
	if ce := d.logger.Check(zap.DebugLevel, "Indicator scored"); ce != nil {
		ce.Write(
			zap.String("facility_id", t.FacilityID),
			zap.String("report_month", t.ReportMonth.String()),
			zap.String("indicator", t.IndicatorCode),
			zap.String("target_type", string(t.TargetType)),
			zap.String("target", t.Target),
			zap.String("actual", t.Actual.String()),
			zap.String("denominator", t.Denominator.String()),
			zap.String("actual_pct", t.ActualPercentage.String()),
			zap.String("display_pct", t.DisplayPercentage.String()),
			zap.String("incentive", t.Incentive.String()),
			zap.String("max_remuneration", t.MaxRemuneration.String()),
			zap.Bool("tb_gated", t.TBGated),
		)
	}
}

func (d *Diagnostics) IndicatorSkipped(ctx context.Context, facilityID, code string, err error) {
	d.logger.Warn("Indicator skipped",
		zap.String("facility_id", facilityID),
		zap.String("indicator", code),
		zap.Error(err),
	)
	d.skipped.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

func (d *Diagnostics) RecordFailed(ctx context.Context, kind, key string, err error) {
	d.logger.Error("Record failed",
		zap.String("kind", kind),
		zap.String("key", key),
		zap.Error(err),
	)
	d.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (d *Diagnostics) RecomputeFinished(ctx context.Context, res *remuneration.Result, elapsed time.Duration) {
	outcome := "success"
	if !res.Success {
		outcome = "failure"
	}
	d.recomputes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	d.duration.Record(ctx, elapsed.Seconds())

	fields := []zap.Field{
		zap.String("facility_id", res.FacilityID),
		zap.String("report_month", res.ReportMonth.String()),
		zap.Duration("elapsed", elapsed),
		zap.Int("indicators", len(res.Indicators)),
		zap.Int("workers", len(res.Workers)),
		zap.Int("failures", len(res.Failures())),
	}
	if !res.Success {
		d.logger.Error("Recompute failed", append(fields, zap.String("error", res.Error))...)
		return
	}
	d.logger.Info("Recompute finished", append(fields,
		zap.String("performance_pct", res.Summary.PerformancePercentage.String()),
		zap.String("grand_total", res.Summary.GrandTotal.String()),
	)...)
}
