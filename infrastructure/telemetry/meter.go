package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// MeterConfig configures metric export.
type MeterConfig struct {
	// Enabled enables metric export (default: false).
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Exporter specifies the metric exporter type.
	Exporter ExporterType `json:"exporter,omitempty" yaml:"exporter,omitempty"`

	// Endpoint is the OTLP endpoint (e.g., "localhost:4317").
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// Insecure disables TLS for the exporter connection.
	Insecure bool `json:"insecure,omitempty" yaml:"insecure,omitempty"`

	// Interval is the periodic export interval.
	Interval time.Duration `json:"interval,omitempty" yaml:"interval,omitempty"`

	// ServiceName is reported as the service.name resource attribute.
	ServiceName string `json:"service_name,omitempty" yaml:"service_name,omitempty"`

	// Output receives metrics from the stdout exporter. Defaults to stdout.
	Output io.Writer `json:"-" yaml:"-"`
}

// DefaultMeterConfig returns a disabled metrics configuration.
func DefaultMeterConfig() MeterConfig {
	return MeterConfig{
		Exporter:    ExporterNoop,
		Interval:    30 * time.Second,
		ServiceName: "ideaflow",
	}
}

// MeterProvider owns the metrics pipeline.
type MeterProvider struct {
	provider metric.MeterProvider
	shutdown func(context.Context) error
}

// NewMeterProvider builds a meter provider from config. A disabled or noop
// configuration yields a no-op provider. Pending measurements are exported
// on Shutdown.
func NewMeterProvider(ctx context.Context, config MeterConfig, serviceVersion string) (*MeterProvider, error) {
	if !config.Enabled || config.Exporter == ExporterNoop || config.Exporter == "" {
		return &MeterProvider{
			provider: metricnoop.NewMeterProvider(),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	var exporter sdkmetric.Exporter
	switch config.Exporter {
	case ExporterOTLP:
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(config.Endpoint),
		}
		if config.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exp, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp metric exporter: %w", err)
		}
		exporter = exp

	case ExporterStdout:
		out := config.Output
		if out == nil {
			out = os.Stdout
		}
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(out))
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		exporter = exp

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, config.Exporter)
	}

	serviceName := config.ServiceName
	if serviceName == "" {
		serviceName = DefaultMeterConfig().ServiceName
	}
	interval := config.Interval
	if interval <= 0 {
		interval = DefaultMeterConfig().Interval
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		)),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	return &MeterProvider{provider: mp, shutdown: mp.Shutdown}, nil
}

// Provider returns the underlying otel meter provider.
func (p *MeterProvider) Provider() metric.MeterProvider {
	return p.provider
}

// Shutdown exports pending measurements and releases exporter resources.
func (p *MeterProvider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}
