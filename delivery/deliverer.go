// Copyright 2026 The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
)

// Deliverer forwards drained event batches to every registered
// consumer of the batch's event type. It implements the dispatcher's
// BatchForwarder contract: a whole batch is sent in one request, and
// if that fails the items are retried one by one so a single bad
// payload cannot sink its batch-mates.
type Deliverer struct {
	registry Registry
	sender   Sender
	logger   *slog.Logger
}

// NewDeliverer builds a Deliverer.
func NewDeliverer(registry Registry, sender Sender, logger *slog.Logger) *Deliverer {
	return &Deliverer{registry: registry, sender: sender, logger: logger}
}

// Forward sends payloads to each consumer subscribed to eventType.
// Consumers are independent: a failure at one does not stop delivery
// to the others. The first error encountered is returned after all
// consumers have been attempted.
func (d *Deliverer) Forward(ctx context.Context, eventType string, payloads [][]byte) error {
	if len(payloads) == 0 {
		return nil
	}
	consumers := d.registry.ConsumersFor(eventType)
	if len(consumers) == 0 {
		d.logger.Debug("no consumers for drained batch",
			"event_type", eventType, "events", len(payloads))
		return nil
	}

	batch := joinJSONArray(payloads)
	var firstError error
	for _, consumer := range consumers {
		err := d.sender.Send(ctx, consumer, eventType, batch)
		if err == nil {
			continue
		}
		d.logger.Warn("batch delivery failed, retrying items individually",
			"event_type", eventType, "consumer", consumer.ID, "error", err)
		if err := d.forwardIndividually(ctx, consumer, eventType, payloads); err != nil {
			if firstError == nil {
				firstError = err
			}
		}
	}
	return firstError
}

// forwardIndividually sends each payload of a failed batch on its
// own, so that one malformed or oversized item only loses itself.
func (d *Deliverer) forwardIndividually(ctx context.Context, consumer Consumer, eventType string, payloads [][]byte) error {
	var failed int
	var firstError error
	for _, payload := range payloads {
		if err := d.sender.Send(ctx, consumer, eventType, payload); err != nil {
			failed++
			if firstError == nil {
				firstError = err
			}
		}
	}
	if firstError != nil {
		return fmt.Errorf("consumer %q: %d of %d events undelivered: %w",
			consumer.ID, failed, len(payloads), firstError)
	}
	return nil
}

// joinJSONArray assembles serialized events into a JSON array by
// byte concatenation. The payloads are already exact JSON documents;
// re-marshaling them would re-escape their contents.
func joinJSONArray(payloads [][]byte) []byte {
	size := 2
	for _, payload := range payloads {
		size += len(payload) + 1
	}
	var buffer bytes.Buffer
	buffer.Grow(size)
	buffer.WriteByte('[')
	for i, payload := range payloads {
		if i > 0 {
			buffer.WriteByte(',')
		}
		buffer.Write(payload)
	}
	buffer.WriteByte(']')
	return buffer.Bytes()
}
