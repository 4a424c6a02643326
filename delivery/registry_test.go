// Copyright 2026 The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"testing"
)

const registryDocument = `{
	// Primary collector, takes everything.
	"consumers": [
		{
			"id": "all",
			"name": "collector",
			"target_url": "https://collector.example.com/events",
			"secret_key": "s1",
			"active": true,
			"event_types": ["any"],
		},
		{
			"id": "api-only",
			"name": "api analytics",
			"target_url": "https://analytics.example.com/in",
			"secret_key": "s2",
			"active": true,
			"event_types": ["observability_api_calls"],
		},
		{
			"id": "retired",
			"name": "old collector",
			"target_url": "https://old.example.com/events",
			"secret_key": "s3",
			"active": false,
			"event_types": ["any"],
		},
	],
}`

func TestParseRegistry(t *testing.T) {
	registry, err := ParseRegistry([]byte(registryDocument))
	if err != nil {
		t.Fatalf("ParseRegistry: %v", err)
	}
	if len(registry.consumers) != 2 {
		t.Fatalf("expected 2 active consumers, got %d", len(registry.consumers))
	}

	apiConsumers := registry.ConsumersFor("observability_api_calls")
	if len(apiConsumers) != 2 {
		t.Fatalf("expected 2 consumers for api calls, got %d", len(apiConsumers))
	}
	attemptConsumers := registry.ConsumersFor("observability_event_delivery_attempts")
	if len(attemptConsumers) != 1 {
		t.Fatalf("expected 1 consumer for delivery attempts, got %d", len(attemptConsumers))
	}
	if attemptConsumers[0].ID != "all" {
		t.Fatalf("expected the any-subscriber, got %q", attemptConsumers[0].ID)
	}

	if !registry.HasConsumers("observability_api_calls") {
		t.Fatalf("expected HasConsumers to be true for api calls")
	}
	if registry.HasConsumers("unrelated_event") {
		t.Fatalf("expected no consumers for an unsubscribed event type")
	}
}

func TestParseRegistryRejectsGarbage(t *testing.T) {
	if _, err := ParseRegistry([]byte(`{"consumers": "not a list"}`)); err == nil {
		t.Fatalf("expected error for malformed registry")
	}
}
