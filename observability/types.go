// Copyright 2026 The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package observability

import (
	"net/http"
	"time"

	"github.com/vektah/gqlparser/v2/ast"
)

// Event types with their own queue and capacity. The buffer validates
// every operation against this set.
const (
	// EventTypeAPICalls carries one record per inbound API request,
	// with its nested GraphQL operations.
	EventTypeAPICalls = "observability_api_calls"

	// EventTypeDeliveryAttempts carries one record per webhook
	// delivery attempt.
	EventTypeDeliveryAttempts = "observability_event_delivery_attempts"
)

// EventTypes returns the supported event types in a fixed order.
func EventTypes() []string {
	return []string{EventTypeAPICalls, EventTypeDeliveryAttempts}
}

// SupportedEventType reports whether eventType names one of the
// pipeline's queues.
func SupportedEventType(eventType string) bool {
	return eventType == EventTypeAPICalls || eventType == EventTypeDeliveryAttempts
}

// App identifies the registered application a request or webhook
// belongs to.
type App struct {
	ID   string
	Name string
}

// ResponseInfo is the slice of an outbound HTTP response the capture
// layer records: servers do not hold an http.Response for their own
// replies, so middleware fills this in from the response writer.
type ResponseInfo struct {
	StatusCode    int
	Headers       http.Header
	ContentLength int
}

// GQLOperation is one GraphQL operation executed within an API call.
// Created when the operation starts and populated by setters as the
// query is parsed, variables are bound, and the result is computed.
type GQLOperation struct {
	// Name is the operation name, empty for anonymous operations.
	Name string

	// Query is the raw document text as received.
	Query string

	// Document is the parsed form of Query, used to extract the
	// operation type. Nil when parsing failed or never ran.
	Document *ast.QueryDocument

	// Variables holds the bound operation variables.
	Variables map[string]any

	// Result is the operation's execution result.
	Result map[string]any
}

// APICall is the record of one inbound request: created at request
// start, populated during processing, serialized at request end, then
// discarded.
type APICall struct {
	Request     *http.Request
	RequestedAt time.Time
	Response    *ResponseInfo

	// App is the authenticated application behind the call, nil for
	// anonymous traffic. App traffic is only reported when
	// ReportAllAPICalls is configured.
	App *App

	// Operations accumulates the GraphQL operations executed during
	// the request, in execution order.
	Operations []*GQLOperation
}

// Webhook identifies the consumer registration behind a delivery.
type Webhook struct {
	ID        string
	Name      string
	TargetURL string
	App       App
}

// EventDelivery is the delivery a webhook attempt belongs to.
type EventDelivery struct {
	ID        string
	Status    string
	EventType string

	// Payload is the serialized body the delivery carries. Nil when
	// the delivery has no payload attached.
	Payload *string

	Webhook *Webhook
}

// DeliveryAttempt records one try at delivering a webhook.
type DeliveryAttempt struct {
	ID        string
	CreatedAt time.Time
	Duration  time.Duration
	Status    string

	// RequestHeaders and ResponseHeaders are passed through to the
	// payload unbounded; only bodies are budget-constrained.
	RequestHeaders  map[string]string
	ResponseHeaders map[string]string

	// Response is the response body received from the target.
	Response string

	// NextRetry is when the delivery will be retried, nil if no retry
	// is scheduled.
	NextRetry *time.Time

	Delivery *EventDelivery
}
