// Copyright 2026 The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/tidwall/jsonc"
)

// EventTypeAny subscribes a consumer to every event type.
const EventTypeAny = "any"

// Consumer is one registered observability consumer: a target to
// forward drained batches to, with the secret used to sign them.
type Consumer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	TargetURL string `json:"target_url"`
	SecretKey string `json:"secret_key"`

	// Active consumers receive events; inactive registrations are
	// kept in the file but ignored.
	Active bool `json:"active"`

	// EventTypes lists the event types this consumer subscribes to.
	// The value "any" matches all of them.
	EventTypes []string `json:"event_types"`
}

// Registry looks up the consumers registered for an event type. The
// pipeline asks HasConsumers before doing any serialization work; the
// deliverer asks ConsumersFor to know where batches go.
type Registry interface {
	ConsumersFor(eventType string) []Consumer
	HasConsumers(eventType string) bool
}

// FileRegistry is a Registry loaded from a JSONC file (JSON extended
// with comments and trailing commas) of the form:
//
//	{
//	  "consumers": [
//	    {
//	      "id": "obs-1",
//	      "name": "main collector",
//	      "target_url": "https://collector.example.com/events",
//	      "secret_key": "...",
//	      "active": true,
//	      "event_types": ["observability_api_calls"]
//	    },
//	  ]
//	}
//
// The file is read once at load time; reload by constructing a new
// registry.
type FileRegistry struct {
	consumers []Consumer
}

// LoadRegistry reads and parses the consumer file at path, keeping
// only active consumers.
func LoadRegistry(path string) (*FileRegistry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading consumer registry: %w", err)
	}
	return ParseRegistry(raw)
}

// ParseRegistry parses a JSONC consumer document.
func ParseRegistry(raw []byte) (*FileRegistry, error) {
	var document struct {
		Consumers []Consumer `json:"consumers"`
	}
	if err := json.Unmarshal(jsonc.ToJSON(raw), &document); err != nil {
		return nil, fmt.Errorf("parsing consumer registry: %w", err)
	}
	registry := &FileRegistry{}
	for _, consumer := range document.Consumers {
		if consumer.Active {
			registry.consumers = append(registry.consumers, consumer)
		}
	}
	return registry, nil
}

// ConsumersFor returns the active consumers subscribed to eventType.
func (r *FileRegistry) ConsumersFor(eventType string) []Consumer {
	var matched []Consumer
	for _, consumer := range r.consumers {
		if slices.Contains(consumer.EventTypes, eventType) ||
			slices.Contains(consumer.EventTypes, EventTypeAny) {
			matched = append(matched, consumer)
		}
	}
	return matched
}

// HasConsumers reports whether any consumer subscribes to eventType.
func (r *FileRegistry) HasConsumers(eventType string) bool {
	return len(r.ConsumersFor(eventType)) > 0
}
