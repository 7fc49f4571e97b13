// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/lifedeck/aigw"
)

// GatewayMetrics observes dispatched AI requests. It satisfies the gateway's
// Recorder interface.
type GatewayMetrics struct {
	requestsTotal      metric.Int64Counter
	failuresTotal      metric.Int64Counter
	tokensTotal        metric.Int64Counter
	requestLatency     metric.Float64Histogram
	providerPopularity metric.Int64Counter
}

func NewGatewayMetrics(meter metric.Meter) (*GatewayMetrics, error) {
	requestsTotal, err := meter.Int64Counter(
		"ai_requests_total",
		metric.WithDescription("AI requests dispatched to a backend"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai_requests_total counter: %w", err)
	}

	failuresTotal, err := meter.Int64Counter(
		"ai_request_failures_total",
		metric.WithDescription("AI requests that ended in a backend error"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai_request_failures_total counter: %w", err)
	}

	tokensTotal, err := meter.Int64Counter(
		"ai_tokens_total",
		metric.WithDescription("Token usage reported by backends"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai_tokens_total counter: %w", err)
	}

	requestLatency, err := meter.Float64Histogram(
		"ai_request_duration_seconds",
		metric.WithDescription("Wall time of one backend attempt"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai_request_duration_seconds histogram: %w", err)
	}

	providerPopularity, err := meter.Int64Counter(
		"ai_provider_popularity",
		metric.WithDescription("Request distribution across providers"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai_provider_popularity counter: %w", err)
	}

	return &GatewayMetrics{
		requestsTotal:      requestsTotal,
		failuresTotal:      failuresTotal,
		tokensTotal:        tokensTotal,
		requestLatency:     requestLatency,
		providerPopularity: providerPopularity,
	}, nil
}

// RecordRequest captures one dispatch outcome.
func (m *GatewayMetrics) RecordRequest(ctx context.Context, provider string, duration time.Duration, usage aigw.TokenUsage, err error) {
	attrs := metric.WithAttributes(attribute.String("provider", provider))

	m.requestsTotal.Add(ctx, 1, attrs)
	m.providerPopularity.Add(ctx, 1, attrs)
	m.requestLatency.Record(ctx, duration.Seconds(), attrs)

	if err != nil {
		m.failuresTotal.Add(ctx, 1, attrs)
		return
	}
	if usage.TotalTokens > 0 {
		m.tokensTotal.Add(ctx, int64(usage.PromptTokens), metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", "prompt"),
		))
		m.tokensTotal.Add(ctx, int64(usage.CompletionTokens), metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", "completion"),
		))
	}
}
