// Copyright 2026 The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"context"
	"fmt"
	"net/url"
)

// Sender sends one serialized body (a single event or a JSON array of
// events) to one consumer. Implementations are selected by the scheme
// of the consumer's target URL.
type Sender interface {
	Send(ctx context.Context, consumer Consumer, eventType string, body []byte) error
}

// SchemeSender routes each send to the Sender registered for the
// target URL's scheme.
type SchemeSender struct {
	senders map[string]Sender
}

// NewSchemeSender builds a SchemeSender with the HTTP and HTTPS
// senders preregistered.
func NewSchemeSender(httpSender *HTTPSender) *SchemeSender {
	return &SchemeSender{
		senders: map[string]Sender{
			"http":  httpSender,
			"https": httpSender,
		},
	}
}

// Register adds or replaces the sender for a URL scheme.
func (s *SchemeSender) Register(scheme string, sender Sender) {
	s.senders[scheme] = sender
}

// Send parses the consumer's target URL and dispatches to the sender
// registered for its scheme.
func (s *SchemeSender) Send(ctx context.Context, consumer Consumer, eventType string, body []byte) error {
	target, err := url.Parse(consumer.TargetURL)
	if err != nil {
		return fmt.Errorf("consumer %q: invalid target URL: %w", consumer.ID, err)
	}
	sender, ok := s.senders[target.Scheme]
	if !ok {
		return fmt.Errorf("consumer %q: unsupported target scheme %q", consumer.ID, target.Scheme)
	}
	return sender.Send(ctx, consumer, eventType, body)
}
