// Copyright 2026 The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package observability

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Encoding identifies the compression applied to payloads on the
// broker wire. The value doubles as the AMQP content-encoding header,
// so a consumer can decode a message without out-of-band agreement.
type Encoding string

const (
	// EncodingNone publishes payloads uncompressed.
	EncodingNone Encoding = ""

	// EncodingZlib is the default. JSON payloads are mostly repeated
	// keys and ASCII text, which zlib shrinks well at low CPU cost.
	EncodingZlib Encoding = "zlib"

	// EncodingZstd trades a newer decoder requirement for better
	// ratios on large payloads.
	EncodingZstd Encoding = "zstd"

	// EncodingLZ4 favors throughput over ratio.
	EncodingLZ4 Encoding = "lz4"
)

// ParseEncoding parses an encoding from its configuration or
// content-encoding spelling. "none" and "" both mean uncompressed.
func ParseEncoding(name string) (Encoding, error) {
	switch name {
	case "", "none":
		return EncodingNone, nil
	case "zlib":
		return EncodingZlib, nil
	case "zstd":
		return EncodingZstd, nil
	case "lz4":
		return EncodingLZ4, nil
	default:
		return "", fmt.Errorf("unknown payload encoding: %q", name)
	}
}

// Compress encodes data for the wire.
func (e Encoding) Compress(data []byte) ([]byte, error) {
	switch e {
	case EncodingNone:
		return data, nil

	case EncodingZlib:
		var buf bytes.Buffer
		writer := zlib.NewWriter(&buf)
		if _, err := writer.Write(data); err != nil {
			return nil, fmt.Errorf("zlib compress: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("zlib compress: %w", err)
		}
		return buf.Bytes(), nil

	case EncodingZstd:
		encoder, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd compress: %w", err)
		}
		defer encoder.Close()
		return encoder.EncodeAll(data, nil), nil

	case EncodingLZ4:
		var buf bytes.Buffer
		writer := lz4.NewWriter(&buf)
		if _, err := writer.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("unsupported payload encoding: %q", e)
	}
}

// Decompress decodes data read from the wire. The contentEncoding is
// the message's content-encoding header, which may differ from e when
// configuration changed while messages were queued.
func Decompress(data []byte, contentEncoding string) ([]byte, error) {
	encoding, err := ParseEncoding(contentEncoding)
	if err != nil {
		return nil, err
	}
	switch encoding {
	case EncodingNone:
		return data, nil

	case EncodingZlib:
		reader, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zlib decompress: %w", err)
		}
		defer reader.Close()
		out, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("zlib decompress: %w", err)
		}
		return out, nil

	case EncodingZstd:
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		defer decoder.Close()
		out, err := decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, nil

	case EncodingLZ4:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported payload encoding: %q", encoding)
	}
}
