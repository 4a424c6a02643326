// Copyright 2026 The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

// Package jsontrunc truncates strings to a byte budget measured against
// their JSON-escaped form.
//
// A string embedded in a JSON document costs more bytes than its raw
// length: quotes and backslashes double, control characters expand to
// \uXXXX sequences, and under ASCII-safe escaping every non-ASCII
// codepoint becomes a six-byte escape (twelve for codepoints above the
// Basic Multilingual Plane, which encode as a surrogate pair). Truncate
// walks the input left to right accumulating that escaped cost and cuts
// at the last complete codepoint that still fits, so the serialized form
// of the result never exceeds the budget and never splits a multi-byte
// sequence.
//
// TruncText marshals itself with the same escape table used for cost
// accounting, which is what makes the accounting exact: callers that
// embed a TruncText via its MarshalJSON get a serialized form of
// precisely ByteSize bytes of string content. The enclosing document
// must be encoded with HTML escaping disabled (json.Encoder.
// SetEscapeHTML(false)); otherwise the encoder rewrites '<', '>' and
// '&' inside the pre-escaped text and inflates it past the budget.
package jsontrunc
