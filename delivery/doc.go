// Copyright 2026 The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

// Package delivery forwards drained observability batches to
// registered consumers. The transport is selected per consumer by the
// scheme of its target URL through the Sender interface; HTTP(S) is
// built in. A batch goes out as one JSON-array call per consumer, with
// a per-item fallback when the batch call fails.
package delivery
