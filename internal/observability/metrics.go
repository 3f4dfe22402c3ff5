package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const (
	meterScope         = "github.com/hively/engine/internal/observability"
	defaultServiceName = "hively-engine"
)

// runDurationBoundaries are histogram buckets (seconds) for analysis run durations.
var runDurationBoundaries = []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// AnalysisMetrics records analysis pipeline outcomes. Pass nil at call sites
// when metrics are disabled.
type AnalysisMetrics interface {
	RecordRun(ctx context.Context, mode, outcome string, duration time.Duration)
	RecordOutliersFlagged(ctx context.Context, mode string, count int)
	RecordFloorSplits(ctx context.Context, count int)
}

// MeterProviderShutdown is the subset of the SDK MeterProvider needed for shutdown.
type MeterProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// NewMeterProvider creates a MeterProvider with a Prometheus exporter and
// returns the provider, an HTTP handler for /metrics, and AnalysisMetrics
// backed by the provider's Meter. Caller must call provider.Shutdown on exit.
func NewMeterProvider(serviceName string) (MeterProviderShutdown, http.Handler, AnalysisMetrics, error) {
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)

	reg := prometheus.NewRegistry()

	exporter, err := prometheusexporter.New(
		prometheusexporter.WithRegisterer(reg),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
		sdkmetric.WithView(
			sdkmetric.NewView(
				sdkmetric.Instrument{Name: "analysis_run_duration_seconds"},
				sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: runDurationBoundaries}},
			),
		),
	)

	metrics, err := newMetricsFromMeter(mp.Meter(meterScope))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create metrics instruments: %w", err)
	}

	return mp, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics, nil
}

type analysisMetricsImpl struct {
	runCount        metric.Int64Counter
	runDuration     metric.Float64Histogram
	outliersFlagged metric.Int64Counter
	floorSplits     metric.Int64Counter
}

func newMetricsFromMeter(meter metric.Meter) (*analysisMetricsImpl, error) {
	runCount, err := meter.Int64Counter(
		"analysis_runs_total",
		metric.WithDescription("Total analysis runs by mode and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("analysis_runs_total: %w", err)
	}

	runDuration, err := meter.Float64Histogram(
		"analysis_run_duration_seconds",
		metric.WithDescription("Analysis run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("analysis_run_duration_seconds: %w", err)
	}

	outliersFlagged, err := meter.Int64Counter(
		"analysis_outliers_flagged_total",
		metric.WithDescription("Responses moved to the misc bucket by outlier detection"),
	)
	if err != nil {
		return nil, fmt.Errorf("analysis_outliers_flagged_total: %w", err)
	}

	floorSplits, err := meter.Int64Counter(
		"analysis_floor_splits_total",
		metric.WithDescription("Forced cluster splits performed by floor enforcement"),
	)
	if err != nil {
		return nil, fmt.Errorf("analysis_floor_splits_total: %w", err)
	}

	return &analysisMetricsImpl{
		runCount:        runCount,
		runDuration:     runDuration,
		outliersFlagged: outliersFlagged,
		floorSplits:     floorSplits,
	}, nil
}

func (m *analysisMetricsImpl) RecordRun(ctx context.Context, mode, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	)
	m.runCount.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *analysisMetricsImpl) RecordOutliersFlagged(ctx context.Context, mode string, count int) {
	m.outliersFlagged.Add(ctx, int64(count), metric.WithAttributes(attribute.String("mode", mode)))
}

func (m *analysisMetricsImpl) RecordFloorSplits(ctx context.Context, count int) {
	m.floorSplits.Add(ctx, int64(count))
}
