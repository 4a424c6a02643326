// Copyright 2026 The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

// Spyglass-reporter is the observability dispatch daemon. It drains
// the per-event-type broker queues that the capture pipeline fills
// and forwards the drained batches to every registered consumer.
//
// Data flow:
//
//	buffer queue → drain (batched, no-ack) → deliverer → consumer HTTP endpoint
//
// Every --period (default 20s) the dispatcher measures each queue's
// depth, converts it to a batch count, and drains the batches
// concurrently. Batches are forwarded to consumers as a signed JSON
// array; a failed batch is retried item by item so one bad payload
// only loses itself.
//
// Consumption is deliberately lossy: messages are taken without
// acknowledgement, so events drained during a crash are gone. The
// pipeline trades delivery guarantees for never blocking the
// application it observes.
package main
