// Copyright 2026 The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

// Package observability captures structured records of API calls and
// webhook delivery attempts, serializes them into size-bounded JSON
// payloads, and stages them in per-event-type bounded queues for
// asynchronous batch delivery to external collectors.
//
// The flow: capture scopes (capture.go) accumulate one record per unit
// of work; the Pipeline (pipeline.go) builds a bounded payload
// (payload.go, lib/jsontrunc) and enqueues it in the EventBuffer
// (buffer.go) over pooled broker connections (broker.go); the
// Dispatcher (dispatch.go) periodically drains batches and hands them
// to a BatchForwarder.
//
// Reporting is strictly best effort. Every failure between capture
// and enqueue is reduced to a log line; the request or delivery that
// triggered the event always proceeds as if observability did not
// exist.
package observability
