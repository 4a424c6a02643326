// Copyright 2026 The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPSenderSignsAndDelivers(t *testing.T) {
	body := []byte(`[{"id":"1"}]`)
	var received struct {
		body      []byte
		event     string
		domain    string
		signature string
		content   string
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.body, _ = io.ReadAll(r.Body)
		received.event = r.Header.Get(HeaderEvent)
		received.domain = r.Header.Get(HeaderDomain)
		received.signature = r.Header.Get(HeaderSignature)
		received.content = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.Client(), "shop.example.com")
	consumer := Consumer{ID: "c1", TargetURL: server.URL, SecretKey: "secret"}
	if err := sender.Send(context.Background(), consumer, "observability_api_calls", body); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if string(received.body) != string(body) {
		t.Fatalf("body mismatch: got %q", received.body)
	}
	if received.event != "observability_api_calls" {
		t.Fatalf("event header: got %q", received.event)
	}
	if received.domain != "shop.example.com" {
		t.Fatalf("domain header: got %q", received.domain)
	}
	if received.content != "application/json" {
		t.Fatalf("content type: got %q", received.content)
	}
	if want := Signature("secret", body); received.signature != want {
		t.Fatalf("signature: got %q, want %q", received.signature, want)
	}
}

func TestHTTPSenderRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.Client(), "shop.example.com")
	consumer := Consumer{ID: "c1", TargetURL: server.URL, SecretKey: "secret"}
	if err := sender.Send(context.Background(), consumer, "observability_api_calls", []byte(`{}`)); err == nil {
		t.Fatalf("expected error for 503 response")
	}
}

func TestSchemeSenderRejectsUnknownScheme(t *testing.T) {
	sender := NewSchemeSender(NewHTTPSender(nil, "shop.example.com"))
	consumer := Consumer{ID: "c1", TargetURL: "ftp://example.com/in"}
	if err := sender.Send(context.Background(), consumer, "observability_api_calls", []byte(`{}`)); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}
