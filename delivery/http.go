// Copyright 2026 The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
)

// Signature and routing headers attached to every forwarded request.
const (
	HeaderEvent     = "X-Spyglass-Event"
	HeaderDomain    = "X-Spyglass-Domain"
	HeaderSignature = "X-Spyglass-Signature"
)

// HTTPSender delivers event bodies over HTTP POST, signing each body
// with the consumer's secret key.
type HTTPSender struct {
	client *http.Client
	domain string
}

// NewHTTPSender builds an HTTPSender. The domain identifies this
// installation to consumers and is sent in the X-Spyglass-Domain
// header. A nil client uses http.DefaultClient.
func NewHTTPSender(client *http.Client, domain string) *HTTPSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSender{client: client, domain: domain}
}

// Send POSTs body to the consumer's target URL. Any status below 300
// counts as delivered; everything else is an error.
func (s *HTTPSender) Send(ctx context.Context, consumer Consumer, eventType string, body []byte) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, consumer.TargetURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("consumer %q: building request: %w", consumer.ID, err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set(HeaderEvent, eventType)
	request.Header.Set(HeaderDomain, s.domain)
	request.Header.Set(HeaderSignature, Signature(consumer.SecretKey, body))

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("consumer %q: %w", consumer.ID, err)
	}
	defer response.Body.Close()
	// Drain so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(response.Body, 4096))

	if response.StatusCode >= 300 {
		return fmt.Errorf("consumer %q: target returned status %d", consumer.ID, response.StatusCode)
	}
	return nil
}

// Signature computes the hex HMAC-SHA256 of body under the consumer's
// secret key. Consumers verify it before trusting the payload.
func Signature(secretKey string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
