// Copyright 2026 The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package observability

import (
	"errors"
	"fmt"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestClassifyBrokerError(t *testing.T) {
	cases := []struct {
		name           string
		err            error
		wantConnection bool
	}{
		{"client closed", amqp.ErrClosed, true},
		{"wrapped client closed", fmt.Errorf("publishing: %w", amqp.ErrClosed), true},
		{"dial failure", errors.New("dial tcp: connection refused"), true},
		{"protocol exception", &amqp.Error{Code: amqp.PreconditionFailed, Reason: "inequivalent arg"}, false},
		{"wrapped protocol exception", fmt.Errorf("declaring: %w", &amqp.Error{Code: amqp.AccessRefused}), false},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			classified := classifyBrokerError(testCase.err)
			var connectionErr *ConnectionError
			var protocolErr *ProtocolError
			if testCase.wantConnection {
				if !errors.As(classified, &connectionErr) {
					t.Fatalf("expected ConnectionError, got %T", classified)
				}
			} else {
				if !errors.As(classified, &protocolErr) {
					t.Fatalf("expected ProtocolError, got %T", classified)
				}
			}
			if !errors.Is(classified, testCase.err) {
				t.Errorf("classification lost the original error")
			}
		})
	}
}

func TestIsQueueNotFound(t *testing.T) {
	if !isQueueNotFound(&amqp.Error{Code: amqp.NotFound}) {
		t.Errorf("not-found reply not recognized")
	}
	if isQueueNotFound(&amqp.Error{Code: amqp.AccessRefused}) {
		t.Errorf("unrelated protocol error treated as not-found")
	}
	if isQueueNotFound(errors.New("no queue")) {
		t.Errorf("plain error treated as not-found")
	}
}

func TestQueueNaming(t *testing.T) {
	if got := queueName(EventTypeAPICalls); got != "observability_buffer.observability_api_calls" {
		t.Errorf("queue name: got %q", got)
	}
	if got := routingKey(EventTypeAPICalls); got != "observability_exchange.observability_api_calls" {
		t.Errorf("routing key: got %q", got)
	}
}
