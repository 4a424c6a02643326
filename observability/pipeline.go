// Copyright 2026 The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package observability

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/spyglass-obs/spyglass/lib/clock"
)

// tracer uses the global tracer provider; the embedding application
// configures exporters.
var tracer = otel.Tracer("spyglass/observability")

func componentAttribute() attribute.KeyValue {
	return attribute.String("component", "observability")
}

// EventSink is where finished payloads go. *EventBuffer implements it.
type EventSink interface {
	Put(ctx context.Context, eventType string, payload []byte) error
}

// ConsumerRegistry answers whether serializing an event is worth the
// work at all: with nobody registered for the event type, the pipeline
// skips payload construction entirely.
type ConsumerRegistry interface {
	HasConsumers(eventType string) bool
}

// PipelineConfig carries the reporting policy knobs.
type PipelineConfig struct {
	// Active enables reporting. When false every report call is a
	// no-op.
	Active bool

	// ReportAllAPICalls includes app-originated API calls. By default
	// only non-app traffic is reported.
	ReportAllAPICalls bool
}

// Pipeline is the reporting entry point: it turns captured records
// into bounded payloads and stages them in the event buffer. Every
// error on this path is reduced to a log line — reporting is strictly
// best effort and must never disturb the work that triggered it.
type Pipeline struct {
	config   PipelineConfig
	builder  *PayloadBuilder
	sink     EventSink
	registry ConsumerRegistry
	clock    clock.Clock
	logger   *slog.Logger
}

// NewPipeline assembles a Pipeline.
func NewPipeline(config PipelineConfig, builder *PayloadBuilder, sink EventSink, registry ConsumerRegistry, clk clock.Clock, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		config:   config,
		builder:  builder,
		sink:     sink,
		registry: registry,
		clock:    clk,
		logger:   logger,
	}
}

// ReportAPICall serializes and enqueues one finished API call record.
// It returns nothing: ineligible calls are skipped silently and
// failures are logged, never propagated.
func (p *Pipeline) ReportAPICall(ctx context.Context, call *APICall) {
	ctx, span := tracer.Start(ctx, "observability.api_call",
		trace.WithAttributes(componentAttribute()))
	defer span.End()

	if !p.config.Active {
		return
	}
	if call.Request == nil || call.Response == nil {
		p.logger.Debug("api call record incomplete, not reported")
		return
	}
	if !p.config.ReportAllAPICalls && call.App != nil {
		return
	}
	if !p.registry.HasConsumers(EventTypeAPICalls) {
		return
	}

	payload, err := p.builder.APICallPayload(call)
	if err != nil {
		p.logEventSkipped(EventTypeAPICalls, err)
		return
	}
	if err := p.sink.Put(ctx, EventTypeAPICalls, payload); err != nil {
		p.logEventSkipped(EventTypeAPICalls, err)
	}
}

// ReportDeliveryAttempt serializes and enqueues one webhook delivery
// attempt. Attempts at delivering observability events themselves are
// never reported — that would feed the pipeline its own exhaust.
// Failures are logged, never propagated.
func (p *Pipeline) ReportDeliveryAttempt(ctx context.Context, eventType string, attempt *DeliveryAttempt) {
	ctx, span := tracer.Start(ctx, "observability.delivery_attempt",
		trace.WithAttributes(componentAttribute()))
	defer span.End()

	if !p.config.Active {
		return
	}
	if SupportedEventType(eventType) {
		return
	}
	if !p.registry.HasConsumers(EventTypeDeliveryAttempts) {
		return
	}

	payload, err := p.builder.DeliveryAttemptPayload(attempt)
	if err != nil {
		p.logEventSkipped(EventTypeDeliveryAttempts, err)
		return
	}
	if err := p.sink.Put(ctx, EventTypeDeliveryAttempts, payload); err != nil {
		p.logEventSkipped(EventTypeDeliveryAttempts, err)
	}
}

// logEventSkipped records a dropped event. Expected pipeline errors
// (full buffer, broker trouble, oversized envelope) log at info;
// anything else is unexpected and logs at warn.
func (p *Pipeline) logEventSkipped(eventType string, err error) {
	level := slog.LevelWarn
	if isPipelineError(err) {
		level = slog.LevelInfo
	}
	p.logger.Log(context.Background(), level, "observability event skipped",
		"event_type", eventType,
		"error", err,
	)
}

func isPipelineError(err error) bool {
	var fullErr *FullBufferError
	var connectionErr *ConnectionError
	var protocolErr *ProtocolError
	var validationErr *ValidationError
	return errors.As(err, &fullErr) ||
		errors.As(err, &connectionErr) ||
		errors.As(err, &protocolErr) ||
		errors.As(err, &validationErr) ||
		errors.Is(err, ErrAllocation)
}
