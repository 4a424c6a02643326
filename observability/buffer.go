// Copyright 2026 The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package observability

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/spyglass-obs/spyglass/lib/clock"
)

// ExchangeName is the single direct exchange all event queues share.
// Queues and routing keys are namespaced per event type under it, so
// the types never interfere with one another.
const ExchangeName = "observability_exchange"

const queueNamePrefix = "observability_buffer."

func queueName(eventType string) string { return queueNamePrefix + eventType }

func routingKey(eventType string) string { return ExchangeName + "." + eventType }

// ChannelRunner is what the buffer needs from the broker layer: scoped
// channel access with guaranteed release. *Broker implements it.
type ChannelRunner interface {
	WithChannel(ctx context.Context, fn func(BrokerChannel) error) error
	ConnectTimeout() time.Duration
}

// BufferConfig sizes the event buffer. Zero values take the defaults.
type BufferConfig struct {
	// Batch is the number of events one Drain collects at most.
	// Default 10.
	Batch int

	// MaxLength is the capacity per event-type queue. A Put against a
	// queue at or above this depth is rejected. Default 100.
	MaxLength int

	// DrainTimeout bounds each single-event receive during a Drain.
	// Default 10s.
	DrainTimeout time.Duration

	// Encoding is the transport compression for queued payloads.
	Encoding Encoding
}

const (
	defaultBatch        = 10
	defaultMaxLength    = 100
	defaultDrainTimeout = 10 * time.Second
)

// EventBuffer is a capacity-bounded FIFO queue per event type, durable
// in the broker rather than the process. Enqueue past capacity is
// rejected, not blocked. Draining is no-ack: an event handed to a
// Drain call is gone even if the caller crashes before forwarding it.
//
// The capacity check and the enqueue are not one atomic step;
// concurrent producers racing the check can briefly overshoot the
// capacity by the number of racers. The bound holds at rest.
type EventBuffer struct {
	broker       ChannelRunner
	batch        int
	maxLength    int
	drainTimeout time.Duration
	encoding     Encoding
	clock        clock.Clock
}

// NewEventBuffer creates an EventBuffer on top of the given broker.
func NewEventBuffer(broker ChannelRunner, config BufferConfig, clk clock.Clock) *EventBuffer {
	if config.Batch < 1 {
		config.Batch = defaultBatch
	}
	if config.MaxLength < 1 {
		config.MaxLength = defaultMaxLength
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = defaultDrainTimeout
	}
	return &EventBuffer{
		broker:       broker,
		batch:        config.Batch,
		maxLength:    config.MaxLength,
		drainTimeout: config.DrainTimeout,
		encoding:     config.Encoding,
		clock:        clk,
	}
}

// Batch returns the configured drain batch size.
func (b *EventBuffer) Batch() int { return b.batch }

// Put enqueues one serialized payload for the event type. It fails
// with FullBufferError when the queue is at capacity, ValidationError
// for an unsupported event type, and ConnectionError/ProtocolError on
// broker trouble. The whole operation is bounded by the broker's
// connect timeout; there are no retries — the caller decides what a
// dropped event means.
func (b *EventBuffer) Put(ctx context.Context, eventType string, payload []byte) error {
	if !SupportedEventType(eventType) {
		return validationErrorf("unsupported event type: %q", eventType)
	}
	ctx, span := tracer.Start(ctx, "observability.buffer_put",
		trace.WithAttributes(
			attribute.String("component", "observability"),
			attribute.String("event_type", eventType),
		))
	defer span.End()

	body, err := b.encoding.Compress(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, b.broker.ConnectTimeout())
	defer cancel()

	return b.broker.WithChannel(ctx, func(channel BrokerChannel) error {
		depth, err := channel.DeclareQueue(ExchangeName, queueName(eventType), routingKey(eventType))
		if err != nil {
			return classifyBrokerError(err)
		}
		if depth >= b.maxLength {
			return &FullBufferError{EventType: eventType}
		}
		err = channel.Publish(ctx, ExchangeName, routingKey(eventType), amqp.Publishing{
			ContentType:     "application/json",
			ContentEncoding: string(b.encoding),
			DeliveryMode:    amqp.Persistent,
			Timestamp:       b.clock.Now(),
			Body:            body,
		})
		if err != nil {
			return classifyBrokerError(err)
		}
		return nil
	})
}

// Drain collects up to the batch size of events from the event type's
// queue. Each receive waits at most the drain timeout; the first
// timeout ends the drain (an empty queue yields an empty, non-error
// result). Cancellation of ctx ends the drain early with whatever was
// collected. Consumption is no-ack.
func (b *EventBuffer) Drain(ctx context.Context, eventType string) ([][]byte, error) {
	if !SupportedEventType(eventType) {
		return nil, validationErrorf("unsupported event type: %q", eventType)
	}
	events := make([][]byte, 0, b.batch)
	err := b.broker.WithChannel(ctx, func(channel BrokerChannel) error {
		if _, err := channel.DeclareQueue(ExchangeName, queueName(eventType), routingKey(eventType)); err != nil {
			return classifyBrokerError(err)
		}
		deliveries, err := channel.Consume(queueName(eventType), b.batch)
		if err != nil {
			return classifyBrokerError(err)
		}
		for len(events) < b.batch {
			select {
			case delivery, open := <-deliveries:
				if !open {
					return nil
				}
				payload, err := Decompress(delivery.Body, delivery.ContentEncoding)
				if err != nil {
					return err
				}
				events = append(events, payload)
			case <-b.clock.After(b.drainTimeout):
				return nil
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Depth returns the approximate number of undelivered events for the
// event type. A queue that does not exist yet counts as empty.
func (b *EventBuffer) Depth(ctx context.Context, eventType string) (int, error) {
	if !SupportedEventType(eventType) {
		return 0, validationErrorf("unsupported event type: %q", eventType)
	}
	depth := 0
	err := b.broker.WithChannel(ctx, func(channel BrokerChannel) error {
		current, err := channel.InspectQueue(queueName(eventType))
		if err != nil {
			if isQueueNotFound(err) {
				return nil
			}
			return classifyBrokerError(err)
		}
		depth = current
		return nil
	})
	if err != nil {
		return 0, err
	}
	return depth, nil
}

// DepthInBatches returns Depth rounded up to whole drain batches.
func (b *EventBuffer) DepthInBatches(ctx context.Context, eventType string) (int, error) {
	depth, err := b.Depth(ctx, eventType)
	if err != nil {
		return 0, err
	}
	return (depth + b.batch - 1) / b.batch, nil
}
