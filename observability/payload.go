// Copyright 2026 The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/spyglass-obs/spyglass/lib/jsontrunc"
)

// PayloadBuilder serializes captured records into JSON payloads whose
// byte length never exceeds the configured limit. The fixed envelope
// (identifiers, headers, metadata) is serialized first and measured;
// the variable-length parts are truncated into whatever budget
// remains.
type PayloadBuilder struct {
	maxBytes  int
	sensitive map[string]struct{}
}

// DefaultSensitiveHeaders are always redacted, in canonical form
// (upper-case, '-' replaced by '_').
var DefaultSensitiveHeaders = []string{"AUTHORIZATION", "AUTHORIZATION_BEARER"}

// NewPayloadBuilder creates a builder producing payloads of at most
// maxBytes serialized bytes. extraSensitive names additional headers
// to redact, matched case- and separator-insensitively.
func NewPayloadBuilder(maxBytes int, extraSensitive []string) *PayloadBuilder {
	sensitive := make(map[string]struct{}, len(DefaultSensitiveHeaders)+len(extraSensitive))
	for _, name := range DefaultSensitiveHeaders {
		sensitive[canonicalHeaderKey(name)] = struct{}{}
	}
	for _, name := range extraSensitive {
		sensitive[canonicalHeaderKey(name)] = struct{}{}
	}
	return &PayloadBuilder{maxBytes: maxBytes, sensitive: sensitive}
}

// redactedValue replaces sensitive header values in payloads.
const redactedValue = "***"

type requestPayload struct {
	ID            string            `json:"id"`
	Method        string            `json:"method"`
	URL           string            `json:"url"`
	Time          float64           `json:"time"`
	Headers       map[string]string `json:"headers"`
	ContentLength int               `json:"contentLength"`
}

type responsePayload struct {
	Headers       map[string]string `json:"headers"`
	StatusCode    int               `json:"statusCode"`
	ReasonPhrase  string            `json:"reasonPhrase"`
	ContentLength int               `json:"contentLength"`
}

type appPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type gqlOperationPayload struct {
	Name          *jsontrunc.TruncText `json:"name"`
	OperationType *string              `json:"operation_type"`
	Query         *jsontrunc.TruncText `json:"query"`
	Result        *jsontrunc.TruncText `json:"result"`
}

type operationsPayload struct {
	Count      int                   `json:"count"`
	Operations []gqlOperationPayload `json:"operations"`
}

type apiCallPayload struct {
	Request       requestPayload    `json:"request"`
	Response      responsePayload   `json:"response"`
	App           *appPayload       `json:"app"`
	GQLOperations operationsPayload `json:"gql_operations"`
}

// gqlOperationPlaceholderSize is the serialized size of an operation
// sub-record in its largest empty form: placeholder texts in every
// slot and the longest operation type. It is the fixed cost reserved
// per operation before any variable content is allocated.
var gqlOperationPlaceholderSize = func() int {
	placeholder := jsontrunc.TruncText{}
	operationType := "subscription"
	data, err := marshalJSON(gqlOperationPayload{
		Name:          &placeholder,
		OperationType: &operationType,
		Query:         &placeholder,
		Result:        &placeholder,
	})
	if err != nil {
		panic("observability: operation placeholder does not serialize: " + err.Error())
	}
	return len(data)
}()

// APICallPayload builds the JSON record for one API call. The
// operations are budgeted into the bytes left after the envelope; if
// even their placeholders do not fit, the payload is emitted with an
// empty operations list rather than failing — for this payload kind
// the envelope is worth keeping on its own. Returns ValidationError
// when the envelope alone exceeds the byte limit.
func (b *PayloadBuilder) APICallPayload(call *APICall) ([]byte, error) {
	if call.Request == nil || call.Response == nil {
		return nil, validationErrorf("api call record is missing its request or response")
	}
	requestedAt := call.RequestedAt
	if requestedAt.IsZero() {
		requestedAt = time.Now()
	}
	payload := apiCallPayload{
		Request: requestPayload{
			ID:            uuid.NewString(),
			Method:        call.Request.Method,
			URL:           requestURL(call.Request),
			Time:          unixSeconds(requestedAt),
			Headers:       b.redactHeaders(call.Request.Header),
			ContentLength: headerContentLength(call.Request.Header),
		},
		Response: responsePayload{
			Headers:       b.redactHeaders(call.Response.Headers),
			StatusCode:    call.Response.StatusCode,
			ReasonPhrase:  http.StatusText(call.Response.StatusCode),
			ContentLength: call.Response.ContentLength,
		},
		GQLOperations: operationsPayload{
			Count:      len(call.Operations),
			Operations: []gqlOperationPayload{},
		},
	}
	if call.App != nil {
		payload.App = &appPayload{ID: call.App.ID, Name: call.App.Name}
	}

	base, err := marshalJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("serializing api call envelope: %w", err)
	}
	remaining := b.maxBytes - len(base)
	if remaining < 0 {
		return nil, validationErrorf("api call envelope of %d bytes cannot fit %d-byte limit", len(base), b.maxBytes)
	}

	operations, err := serializeOperations(call.Operations, remaining)
	switch {
	case errors.Is(err, ErrAllocation):
		// Degrade: keep the envelope (with the true count) and drop
		// the operation bodies.
	case err != nil:
		return nil, err
	default:
		payload.GQLOperations.Operations = operations
	}
	return marshalJSON(payload)
}

// serializeOperations allocates the byte budget across operations
// sequentially: each record gets an equal share of what is left, and
// bytes a record does not use flow to the records after it. Returns
// ErrAllocation when the budget cannot cover the fixed placeholder
// cost of every record (including the array separators between them).
func serializeOperations(operations []*GQLOperation, limit int) ([]gqlOperationPayload, error) {
	if len(operations) > 1 {
		limit -= len(operations) - 1 // array separators
	}
	if limit-len(operations)*gqlOperationPlaceholderSize < 0 {
		return nil, ErrAllocation
	}
	payloads := make([]gqlOperationPayload, 0, len(operations))
	for i, operation := range operations {
		share := limit / (len(operations) - i)
		payload, left, err := serializeOperation(operation, share)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, payload)
		limit -= share - left
	}
	return payloads, nil
}

// serializeOperation fits one operation into limit bytes: the
// placeholder cost comes off the top, then name, query, and result
// split the remainder (a third, half of what is left, and the rest).
// Returns the unused budget so the caller can redistribute it.
func serializeOperation(operation *GQLOperation, limit int) (gqlOperationPayload, int, error) {
	limit -= gqlOperationPlaceholderSize
	if limit < 0 {
		return gqlOperationPayload{}, 0, ErrAllocation
	}
	var payload gqlOperationPayload
	if operation.Name != "" {
		name := jsontrunc.Truncate(operation.Name, limit/3, jsontrunc.ModeASCII)
		limit -= name.ByteSize
		payload.Name = &name
	}
	if operation.Query != "" {
		query := jsontrunc.Truncate(operation.Query, limit/2, jsontrunc.ModeASCII)
		limit -= query.ByteSize
		payload.Query = &query
		payload.OperationType = operationType(operation)
	}
	if operation.Result != nil {
		resultJSON, err := marshalJSON(operation.Result)
		if err != nil {
			return gqlOperationPayload{}, 0, fmt.Errorf("serializing operation result: %w", err)
		}
		result := jsontrunc.Truncate(string(resultJSON), limit, jsontrunc.ModeASCII)
		limit -= result.ByteSize
		payload.Result = &result
	}
	return payload, limit, nil
}

// operationType extracts the operation kind (query, mutation,
// subscription) from the parsed document. An anonymous operation is
// only resolved when the document holds exactly one.
func operationType(operation *GQLOperation) *string {
	document := operation.Document
	if document == nil {
		return nil
	}
	var definition *ast.OperationDefinition
	if operation.Name == "" {
		if len(document.Operations) == 1 {
			definition = document.Operations[0]
		}
	} else {
		for _, candidate := range document.Operations {
			if candidate.Name == operation.Name {
				definition = candidate
				break
			}
		}
	}
	if definition == nil {
		return nil
	}
	kind := string(definition.Operation)
	return &kind
}

type attemptMetaPayload struct {
	ID        string   `json:"id"`
	Time      float64  `json:"time"`
	Duration  float64  `json:"duration"`
	Status    string   `json:"status"`
	NextRetry *float64 `json:"nextRetry"`
}

type attemptRequestPayload struct {
	Headers map[string]string `json:"headers"`
}

type attemptResponsePayload struct {
	Headers       map[string]string   `json:"headers"`
	ContentLength int                 `json:"contentLength"`
	Body          jsontrunc.TruncText `json:"body"`
}

type deliveryBodyPayload struct {
	ContentLength int                 `json:"contentLength"`
	Body          jsontrunc.TruncText `json:"body"`
}

type deliveryPayload struct {
	ID      string              `json:"id"`
	Status  string              `json:"status"`
	Type    string              `json:"type"`
	Payload deliveryBodyPayload `json:"payload"`
}

type webhookPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	TargetURL string `json:"targetUrl"`
}

type attemptPayload struct {
	EventDeliveryAttempt attemptMetaPayload     `json:"eventDeliveryAttempt"`
	Request              attemptRequestPayload  `json:"request"`
	Response             attemptResponsePayload `json:"response"`
	EventDelivery        *deliveryPayload       `json:"eventDelivery"`
	Webhook              *webhookPayload        `json:"webhook"`
	App                  *appPayload            `json:"app"`
}

// DeliveryAttemptPayload builds the JSON record for one webhook
// delivery attempt. The two large bodies — the response received and
// the delivery payload that was sent — split the post-envelope budget
// 50/50, with the second body absorbing whatever the first left
// unused. Unlike APICallPayload there is no degraded form: an
// envelope that cannot fit the limit is a ValidationError surfaced to
// the caller.
func (b *PayloadBuilder) DeliveryAttemptPayload(attempt *DeliveryAttempt) ([]byte, error) {
	payload := attemptPayload{
		EventDeliveryAttempt: attemptMetaPayload{
			ID:       attempt.ID,
			Time:     unixSeconds(attempt.CreatedAt),
			Duration: attempt.Duration.Seconds(),
			Status:   attempt.Status,
		},
		Request:  attemptRequestPayload{Headers: attempt.RequestHeaders},
		Response: attemptResponsePayload{Headers: attempt.ResponseHeaders, ContentLength: len(attempt.Response)},
	}
	if attempt.NextRetry != nil {
		retryAt := unixSeconds(*attempt.NextRetry)
		payload.EventDeliveryAttempt.NextRetry = &retryAt
	}
	delivery := attempt.Delivery
	if delivery != nil {
		payload.EventDelivery = &deliveryPayload{
			ID:     delivery.ID,
			Status: delivery.Status,
			Type:   delivery.EventType,
		}
		if delivery.Payload != nil {
			payload.EventDelivery.Payload.ContentLength = len(*delivery.Payload)
		}
		if webhook := delivery.Webhook; webhook != nil {
			payload.Webhook = &webhookPayload{ID: webhook.ID, Name: webhook.Name, TargetURL: webhook.TargetURL}
			payload.App = &appPayload{ID: webhook.App.ID, Name: webhook.App.Name}
		}
	}

	base, err := marshalJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("serializing delivery attempt envelope: %w", err)
	}
	remaining := b.maxBytes - len(base)
	if remaining < 0 {
		return nil, validationErrorf("delivery attempt envelope of %d bytes cannot fit %d-byte limit", len(base), b.maxBytes)
	}

	responseBody := jsontrunc.Truncate(attempt.Response, remaining/2, jsontrunc.ModeASCII)
	payload.Response.Body = responseBody
	if delivery != nil && delivery.Payload != nil {
		payload.EventDelivery.Payload.Body = jsontrunc.Truncate(
			*delivery.Payload, remaining-responseBody.ByteSize, jsontrunc.ModeASCII)
	}
	return marshalJSON(payload)
}

// redactHeaders flattens an http.Header into the single-valued map the
// payload carries, masking sensitive values.
func (b *PayloadBuilder) redactHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for key, values := range headers {
		if _, sensitive := b.sensitive[canonicalHeaderKey(key)]; sensitive {
			out[key] = redactedValue
			continue
		}
		out[key] = strings.Join(values, ", ")
	}
	return out
}

func canonicalHeaderKey(name string) string {
	return strings.ReplaceAll(strings.ToUpper(name), "-", "_")
}

func requestURL(request *http.Request) string {
	scheme := "http"
	if request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + request.Host + request.URL.RequestURI()
}

func headerContentLength(headers http.Header) int {
	length, err := strconv.Atoi(headers.Get("Content-Length"))
	if err != nil {
		return 0
	}
	return length
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// marshalJSON serializes without HTML escaping: the truncation cost
// model counts '<', '>', and '&' as single bytes, so the encoder must
// emit them raw for the accounting to stay exact. The trailing newline
// json.Encoder appends is stripped.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	out := buf.Bytes()
	return out[:len(out)-1], nil
}
