// Copyright 2026 The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package observability

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodingRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat(`{"request":{"method":"POST","url":"/graphql/"}}`, 50))
	for _, encoding := range []Encoding{EncodingNone, EncodingZlib, EncodingZstd, EncodingLZ4} {
		compressed, err := encoding.Compress(payload)
		if err != nil {
			t.Fatalf("%q Compress: %v", encoding, err)
		}
		if encoding != EncodingNone && len(compressed) >= len(payload) {
			t.Errorf("%q did not shrink a repetitive payload: %d -> %d", encoding, len(payload), len(compressed))
		}
		restored, err := Decompress(compressed, string(encoding))
		if err != nil {
			t.Fatalf("%q Decompress: %v", encoding, err)
		}
		if !bytes.Equal(restored, payload) {
			t.Errorf("%q round trip corrupted payload", encoding)
		}
	}
}

func TestParseEncoding(t *testing.T) {
	for name, want := range map[string]Encoding{
		"":     EncodingNone,
		"none": EncodingNone,
		"zlib": EncodingZlib,
		"zstd": EncodingZstd,
		"lz4":  EncodingLZ4,
	} {
		got, err := ParseEncoding(name)
		if err != nil || got != want {
			t.Errorf("ParseEncoding(%q) = %q, %v; want %q", name, got, err, want)
		}
	}
	if _, err := ParseEncoding("gzip9"); err == nil {
		t.Error("ParseEncoding accepted an unknown name")
	}
}

func TestDecompressRejectsGarbage(t *testing.T) {
	if _, err := Decompress([]byte("not a zlib stream"), "zlib"); err == nil {
		t.Error("zlib Decompress accepted garbage")
	}
}
