package telemetry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func setupTestMetrics(t *testing.T) (*metric.ManualReader, *MetricsProvider) {
	t.Helper()
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))

	mp := NewMetricsProvider(MetricsConfig{MeterProvider: provider})
	if mp.Error() != nil {
		t.Fatalf("failed to create metrics provider: %v", mp.Error())
	}
	return reader, mp
}

func sumOf(t *testing.T, reader *metric.ManualReader, name string) (int64, bool) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: expected Sum[int64], got %T", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total, true
		}
	}
	return 0, false
}

func TestMetricsProvider_Counters(t *testing.T) {
	t.Parallel()

	reader, mp := setupTestMetrics(t)
	defer reader.Shutdown(context.Background())
	ctx := context.Background()

	mp.RecordCreated(ctx, "draft")
	mp.RecordTransition(ctx, "draft", "proposed")
	mp.RecordTransition(ctx, "proposed", "experiment")
	mp.RecordRejectedTransition(ctx, "draft", "outcome")
	mp.RecordConflict(ctx, "transition")
	mp.RecordAuditFailure(ctx, "sink_unavailable")

	tests := []struct {
		name string
		want int64
	}{
		{"ideaflow.idea.created", 1},
		{"ideaflow.idea.transitions", 2},
		{"ideaflow.idea.transitions.rejected", 1},
		{"ideaflow.idea.conflicts", 1},
		{"ideaflow.audit.failures", 1},
	}

	for _, tt := range tests {
		got, found := sumOf(t, reader, tt.name)
		if !found {
			t.Errorf("%s metric not found", tt.name)
			continue
		}
		if got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestMetricsProvider_RecordOperation(t *testing.T) {
	t.Parallel()

	reader, mp := setupTestMetrics(t)
	defer reader.Shutdown(context.Background())
	ctx := context.Background()

	mp.RecordOperation(ctx, "transition", "ok", 3*time.Millisecond)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "ideaflow.operation.duration" {
				found = true
				if _, ok := m.Data.(metricdata.Histogram[float64]); !ok {
					t.Errorf("expected Histogram[float64], got %T", m.Data)
				}
			}
		}
	}
	if !found {
		t.Error("ideaflow.operation.duration metric not found")
	}
}

func TestNoopMetricsProvider(t *testing.T) {
	t.Parallel()

	var m Metrics = NoopMetricsProvider{}
	ctx := context.Background()
	m.RecordCreated(ctx, "draft")
	m.RecordTransition(ctx, "a", "b")
	m.RecordRejectedTransition(ctx, "a", "b")
	m.RecordConflict(ctx, "x")
	m.RecordAuditFailure(ctx, "x")
	m.RecordOperation(ctx, "x", "ok", time.Second)
}

func TestNewTracerProvider_Disabled(t *testing.T) {
	t.Parallel()

	tp, err := NewTracerProvider(context.Background(), DefaultTracingConfig(), "test")
	if err != nil {
		t.Fatalf("NewTracerProvider() error = %v", err)
	}
	_, span := tp.Tracer("test").Start(context.Background(), "noop")
	span.End()
	if span.SpanContext().IsValid() {
		t.Error("disabled tracing produced a valid span context")
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNewTracerProvider_Stdout(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cfg := DefaultTracingConfig()
	cfg.Enabled = true
	cfg.Exporter = ExporterStdout
	cfg.Output = &buf

	tp, err := NewTracerProvider(context.Background(), cfg, "1.2.3")
	if err != nil {
		t.Fatalf("NewTracerProvider() error = %v", err)
	}

	_, span := tp.Tracer("test").Start(context.Background(), "idea.transition")
	span.End()

	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !strings.Contains(buf.String(), "idea.transition") {
		t.Errorf("exported spans missing span name: %s", buf.String())
	}
}

func TestNewTracerProvider_UnknownExporter(t *testing.T) {
	t.Parallel()

	cfg := DefaultTracingConfig()
	cfg.Enabled = true
	cfg.Exporter = "zipkin"

	_, err := NewTracerProvider(context.Background(), cfg, "test")
	if !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("NewTracerProvider() error = %v, want ErrUnknownExporter", err)
	}
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	t.Parallel()

	mp, err := NewMeterProvider(context.Background(), DefaultMeterConfig(), "test")
	if err != nil {
		t.Fatalf("NewMeterProvider() error = %v", err)
	}
	metrics := NewMetricsProvider(MetricsConfig{MeterProvider: mp.Provider()})
	if err := metrics.Error(); err != nil {
		t.Fatalf("metrics error = %v", err)
	}
	metrics.RecordCreated(context.Background(), "draft")
	if err := mp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNewMeterProvider_Stdout(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cfg := DefaultMeterConfig()
	cfg.Enabled = true
	cfg.Exporter = ExporterStdout
	cfg.Interval = time.Hour
	cfg.Output = &buf

	mp, err := NewMeterProvider(context.Background(), cfg, "1.2.3")
	if err != nil {
		t.Fatalf("NewMeterProvider() error = %v", err)
	}

	metrics := NewMetricsProvider(MetricsConfig{MeterProvider: mp.Provider()})
	metrics.RecordTransition(context.Background(), "draft", "proposed")

	if err := mp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !strings.Contains(buf.String(), "ideaflow.idea.transitions") {
		t.Errorf("exported metrics missing transition counter: %s", buf.String())
	}
}

func TestNewMeterProvider_UnknownExporter(t *testing.T) {
	t.Parallel()

	cfg := DefaultMeterConfig()
	cfg.Enabled = true
	cfg.Exporter = "statsd"

	_, err := NewMeterProvider(context.Background(), cfg, "test")
	if !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("NewMeterProvider() error = %v, want ErrUnknownExporter", err)
	}
}
