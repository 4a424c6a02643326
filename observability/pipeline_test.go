// Copyright 2026 The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package observability

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/spyglass-obs/spyglass/lib/clock"
)

// recordingSink records enqueued payloads, optionally failing.
type recordingSink struct {
	mu       sync.Mutex
	payloads map[string][][]byte
	err      error
}

func (s *recordingSink) Put(_ context.Context, eventType string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.payloads == nil {
		s.payloads = make(map[string][][]byte)
	}
	s.payloads[eventType] = append(s.payloads[eventType], payload)
	return nil
}

func (s *recordingSink) count(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads[eventType])
}

type allConsumers struct{}

func (allConsumers) HasConsumers(string) bool { return true }

type noConsumers struct{}

func (noConsumers) HasConsumers(string) bool { return false }

// recordingHandler captures log records for level assertions.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, record slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, record)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func newTestPipeline(config PipelineConfig, sink EventSink, registry ConsumerRegistry) *Pipeline {
	return NewPipeline(config, NewPayloadBuilder(25000, nil), sink, registry,
		clock.Fake(testRequestedAt), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestReportAPICallEnqueues(t *testing.T) {
	sink := &recordingSink{}
	pipeline := newTestPipeline(PipelineConfig{Active: true}, sink, allConsumers{})

	call := sampleAPICall(sampleOperation("Products"))
	call.App = nil
	pipeline.ReportAPICall(context.Background(), call)

	if sink.count(EventTypeAPICalls) != 1 {
		t.Fatalf("expected 1 enqueued payload, got %d", sink.count(EventTypeAPICalls))
	}
	if !json.Valid(sink.payloads[EventTypeAPICalls][0]) {
		t.Fatalf("enqueued payload is not valid JSON")
	}
}

func TestReportAPICallInactive(t *testing.T) {
	sink := &recordingSink{}
	pipeline := newTestPipeline(PipelineConfig{Active: false}, sink, allConsumers{})
	call := sampleAPICall()
	call.App = nil
	pipeline.ReportAPICall(context.Background(), call)
	if sink.count(EventTypeAPICalls) != 0 {
		t.Fatalf("inactive pipeline enqueued an event")
	}
}

func TestReportAPICallAppTrafficPolicy(t *testing.T) {
	// App-originated calls are only reported when configured.
	sink := &recordingSink{}
	pipeline := newTestPipeline(PipelineConfig{Active: true}, sink, allConsumers{})
	pipeline.ReportAPICall(context.Background(), sampleAPICall())
	if sink.count(EventTypeAPICalls) != 0 {
		t.Fatalf("app call reported without ReportAllAPICalls")
	}

	pipeline = newTestPipeline(PipelineConfig{Active: true, ReportAllAPICalls: true}, sink, allConsumers{})
	pipeline.ReportAPICall(context.Background(), sampleAPICall())
	if sink.count(EventTypeAPICalls) != 1 {
		t.Fatalf("app call not reported with ReportAllAPICalls")
	}
}

func TestReportAPICallNoConsumers(t *testing.T) {
	sink := &recordingSink{}
	pipeline := newTestPipeline(PipelineConfig{Active: true}, sink, noConsumers{})
	call := sampleAPICall()
	call.App = nil
	pipeline.ReportAPICall(context.Background(), call)
	if sink.count(EventTypeAPICalls) != 0 {
		t.Fatalf("event enqueued with no consumers registered")
	}
}

func TestReportAPICallIncompleteRecord(t *testing.T) {
	sink := &recordingSink{}
	pipeline := newTestPipeline(PipelineConfig{Active: true}, sink, allConsumers{})
	pipeline.ReportAPICall(context.Background(), &APICall{})
	if sink.count(EventTypeAPICalls) != 0 {
		t.Fatalf("incomplete record was reported")
	}
}

func TestReportAPICallAbsorbsSinkFailures(t *testing.T) {
	handler := &recordingHandler{}
	sink := &recordingSink{err: &FullBufferError{EventType: EventTypeAPICalls}}
	pipeline := NewPipeline(PipelineConfig{Active: true}, NewPayloadBuilder(25000, nil),
		sink, allConsumers{}, clock.Fake(testRequestedAt), slog.New(handler))

	call := sampleAPICall()
	call.App = nil
	pipeline.ReportAPICall(context.Background(), call)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.records) != 1 {
		t.Fatalf("expected 1 log record, got %d", len(handler.records))
	}
	// A full buffer is an expected condition, not an incident.
	if handler.records[0].Level != slog.LevelInfo {
		t.Errorf("full buffer logged at %v, want info", handler.records[0].Level)
	}
}

func TestReportAPICallLogsUnexpectedErrorsAtWarn(t *testing.T) {
	handler := &recordingHandler{}
	sink := &recordingSink{err: errors.New("disk on fire")}
	pipeline := NewPipeline(PipelineConfig{Active: true}, NewPayloadBuilder(25000, nil),
		sink, allConsumers{}, clock.Fake(testRequestedAt), slog.New(handler))

	call := sampleAPICall()
	call.App = nil
	pipeline.ReportAPICall(context.Background(), call)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.records) != 1 {
		t.Fatalf("expected 1 log record, got %d", len(handler.records))
	}
	if handler.records[0].Level != slog.LevelWarn {
		t.Errorf("unexpected error logged at %v, want warn", handler.records[0].Level)
	}
}

func TestReportDeliveryAttemptEnqueues(t *testing.T) {
	sink := &recordingSink{}
	pipeline := newTestPipeline(PipelineConfig{Active: true}, sink, allConsumers{})
	pipeline.ReportDeliveryAttempt(context.Background(), "order_updated", sampleAttempt())
	if sink.count(EventTypeDeliveryAttempts) != 1 {
		t.Fatalf("expected 1 enqueued attempt, got %d", sink.count(EventTypeDeliveryAttempts))
	}
}

func TestReportDeliveryAttemptSelfSuppression(t *testing.T) {
	// Attempts at delivering observability events themselves must not
	// be reported, or the pipeline would feed on its own output.
	sink := &recordingSink{}
	pipeline := newTestPipeline(PipelineConfig{Active: true}, sink, allConsumers{})
	for _, eventType := range EventTypes() {
		pipeline.ReportDeliveryAttempt(context.Background(), eventType, sampleAttempt())
	}
	if sink.count(EventTypeDeliveryAttempts) != 0 {
		t.Fatalf("self-referential attempt was reported")
	}
}

func TestIsPipelineError(t *testing.T) {
	pipelineErrors := []error{
		&FullBufferError{EventType: EventTypeAPICalls},
		&ConnectionError{Err: errors.New("refused")},
		&ProtocolError{Err: errors.New("channel exception")},
		&ValidationError{Reason: "too big"},
		ErrAllocation,
	}
	for _, err := range pipelineErrors {
		if !isPipelineError(err) {
			t.Errorf("%T not recognized as pipeline error", err)
		}
	}
	if isPipelineError(errors.New("something else")) {
		t.Errorf("arbitrary error classified as pipeline error")
	}
}
