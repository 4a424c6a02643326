// Copyright 2026 The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package observability

import (
	"errors"
	"fmt"
)

// ErrAllocation signals that a payload's variable-content budget cannot
// cover even the fixed placeholder cost of its sub-records. The API
// call builder degrades to an empty operations list on this error; it
// never escapes APICallPayload.
var ErrAllocation = errors.New("observability: operation placeholder cost exceeds byte budget")

// FullBufferError reports an enqueue rejected because the event type's
// queue is at capacity. The event was dropped, not queued.
type FullBufferError struct {
	EventType string
}

func (e *FullBufferError) Error() string {
	return fmt.Sprintf("observability: buffer for %s is full", e.EventType)
}

// ConnectionError wraps a transport-level broker failure (dial,
// socket, timeout). Callers never see the broker client's own error
// types directly.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("observability: broker connection: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError wraps a broker-level failure distinct from transport
// (channel exceptions, protocol violations).
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("observability: broker protocol: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ValidationError reports input the pipeline cannot process: an
// unsupported event type, or a payload whose fixed envelope alone
// exceeds the byte limit.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "observability: " + e.Reason
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
