// Copyright 2026 The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/spyglass-obs/spyglass/lib/clock"
)

// BatchForwarder delivers one drained batch to whoever consumes the
// event type. The delivery package provides the production
// implementation.
type BatchForwarder interface {
	Forward(ctx context.Context, eventType string, payloads [][]byte) error
}

// Dispatcher periodically drains the event buffer and forwards each
// batch. One dispatch round runs one drain-and-forward task per
// pending batch per event type, all concurrently, under a deadline
// equal to the reporting period — work that does not finish within
// the period is abandoned, and the next round picks up whatever is
// still queued.
type Dispatcher struct {
	buffer    *EventBuffer
	forwarder BatchForwarder
	period    time.Duration
	clock     clock.Clock
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher draining buffer every period.
func NewDispatcher(buffer *EventBuffer, forwarder BatchForwarder, period time.Duration, clk clock.Clock, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		buffer:    buffer,
		forwarder: forwarder,
		period:    period,
		clock:     clk,
		logger:    logger,
	}
}

// DispatchOnce runs a single dispatch round. A failed batch is lost —
// its drain is not retried — and does not stop sibling batches; the
// first error is returned after all tasks settle. An empty batch
// performs no forwarding I/O at all.
func (d *Dispatcher) DispatchOnce(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "observability.dispatch",
		trace.WithAttributes(componentAttribute()))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, d.period)
	defer cancel()

	// Plain errgroup, not WithContext: one failed batch must not
	// cancel its siblings.
	var group errgroup.Group
	for _, eventType := range EventTypes() {
		batches, err := d.buffer.DepthInBatches(ctx, eventType)
		if err != nil {
			d.logger.Warn("queue depth check failed",
				"event_type", eventType,
				"error", err,
			)
			continue
		}
		span.SetAttributes(attribute.Int("batches."+eventType, batches))
		eventType := eventType
		for i := 0; i < batches; i++ {
			group.Go(func() error {
				return d.drainAndForward(ctx, eventType)
			})
		}
	}
	return group.Wait()
}

func (d *Dispatcher) drainAndForward(ctx context.Context, eventType string) error {
	events, err := d.buffer.Drain(ctx, eventType)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	return d.forwarder.Forward(ctx, eventType, events)
}

// Run dispatches every period until ctx is cancelled. Round failures
// are logged and do not stop the loop.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := d.clock.NewTicker(d.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.DispatchOnce(ctx); err != nil {
				d.logger.Warn("dispatch round failed", "error", err)
			}
		}
	}
}
