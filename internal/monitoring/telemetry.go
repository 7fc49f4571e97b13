// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package monitoring wires OpenTelemetry metrics for the routing subsystem.
package monitoring

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/lifedeck/aigw"
)

// TelemetryConfig describes the metrics export target. Telemetry is optional
// at the process level; once requested, an incomplete config is fatal.
type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string
	Logger         *slog.Logger
}

func (c TelemetryConfig) validate() error {
	if c.ServiceName == "" {
		return &aigw.ConfigurationError{Setting: "service-name", Reason: "must not be empty"}
	}
	if c.OTLPEndpoint == "" {
		return &aigw.ConfigurationError{Setting: "otlp-endpoint", Reason: "required when telemetry is enabled"}
	}
	return nil
}

// TelemetryManager owns the meter provider and its export pipeline.
type TelemetryManager struct {
	meterProvider *sdkmetric.MeterProvider
	config        TelemetryConfig
}

// NewTelemetryManager builds the OTLP export pipeline and installs the meter
// provider globally.
func NewTelemetryManager(config TelemetryConfig) (*TelemetryManager, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx := context.Background()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(config.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
	otel.SetMeterProvider(meterProvider)

	logger.Info("OTLP metrics enabled", "endpoint", config.OTLPEndpoint)

	return &TelemetryManager{
		meterProvider: meterProvider,
		config:        config,
	}, nil
}

func (tm *TelemetryManager) GetMeter(instrumentationName string) metric.Meter {
	return tm.meterProvider.Meter(instrumentationName)
}

// Shutdown flushes pending metrics and stops the export pipeline.
func (tm *TelemetryManager) Shutdown(ctx context.Context) error {
	return tm.meterProvider.Shutdown(ctx)
}
