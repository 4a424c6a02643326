// Copyright 2026 The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package jsontrunc

import (
	"strconv"
	"unicode/utf16"
	"unicode/utf8"
)

// Mode selects the escape rules used to measure and emit text.
type Mode int

const (
	// ModeASCII escapes every non-ASCII codepoint as \uXXXX. Codepoints
	// above the BMP cost twelve bytes (a surrogate pair of escapes).
	// The output is pure 7-bit ASCII.
	ModeASCII Mode = iota

	// ModeUTF8 emits non-ASCII codepoints as raw UTF-8 and escapes only
	// quotes, backslashes, and control characters.
	ModeUTF8
)

// TruncText is a string truncated to a JSON byte budget. ByteSize is
// the exact number of bytes Text occupies once escaped under the mode
// that produced it, and is always at or below the limit passed to
// Truncate. Truncated reports whether any input was dropped.
//
// TruncText serializes as {"text": ..., "truncated": ...} with the
// text escaped by the same table used for cost accounting. Values are
// immutable once constructed; the zero value is an empty, untruncated
// text in ModeASCII and serves as the placeholder in size accounting.
type TruncText struct {
	Text      string
	Truncated bool
	ByteSize  int
	mode      Mode
}

// Truncate cuts s to fit within limit bytes of JSON-escaped output
// under the given mode. Negative limits are treated as zero. The cut
// lands on a codepoint boundary: a multi-byte UTF-8 sequence or a
// surrogate pair is dropped entirely rather than split. Truncate is
// pure and never fails; byte-identical inputs produce byte-identical
// results.
func Truncate(s string, limit int, mode Mode) TruncText {
	if limit < 0 {
		limit = 0
	}
	size := 0
	for i, r := range s {
		cost := escapedLen(r, mode)
		if size+cost > limit {
			return TruncText{Text: s[:i], Truncated: true, ByteSize: size, mode: mode}
		}
		size += cost
	}
	return TruncText{Text: s, ByteSize: size, mode: mode}
}

// EscapedLen returns the byte length of s once JSON-escaped under the
// given mode, without truncating.
func EscapedLen(s string, mode Mode) int {
	size := 0
	for _, r := range s {
		size += escapedLen(r, mode)
	}
	return size
}

// MarshalJSON emits {"text": ..., "truncated": ...}. The text portion
// is escaped with the mode used at construction, so its serialized
// length is exactly ByteSize bytes (plus the surrounding quotes, which
// the placeholder accounting already covers).
func (t TruncText) MarshalJSON() ([]byte, error) {
	out := make([]byte, 0, len(`{"text":"","truncated":false}`)+t.ByteSize)
	out = append(out, `{"text":`...)
	out = AppendQuoted(out, t.Text, t.mode)
	out = append(out, `,"truncated":`...)
	out = strconv.AppendBool(out, t.Truncated)
	return append(out, '}'), nil
}

// AppendQuoted appends s to dst as a quoted, escaped JSON string under
// the given mode. The appended content between the quotes is exactly
// EscapedLen(s, mode) bytes. Invalid UTF-8 sequences are emitted as
// the replacement character, matching how they were measured.
func AppendQuoted(dst []byte, s string, mode Mode) []byte {
	dst = append(dst, '"')
	for _, r := range s {
		dst = appendRune(dst, r, mode)
	}
	return append(dst, '"')
}

// escapedLen is the cost table: two bytes for the short escapes, six
// for \uXXXX control escapes, one for printable ASCII, and for
// non-ASCII either the \uXXXX form (ModeASCII) or the raw UTF-8 length
// (ModeUTF8).
func escapedLen(r rune, mode Mode) int {
	switch r {
	case '"', '\\', '\b', '\f', '\n', '\r', '\t':
		return 2
	}
	if r < 0x20 {
		return 6
	}
	if r < utf8.RuneSelf {
		return 1
	}
	if mode == ModeASCII {
		if r > 0xFFFF {
			return 12
		}
		return 6
	}
	return utf8.RuneLen(r)
}

const hexDigits = "0123456789abcdef"

func appendRune(dst []byte, r rune, mode Mode) []byte {
	switch r {
	case '"':
		return append(dst, '\\', '"')
	case '\\':
		return append(dst, '\\', '\\')
	case '\b':
		return append(dst, '\\', 'b')
	case '\f':
		return append(dst, '\\', 'f')
	case '\n':
		return append(dst, '\\', 'n')
	case '\r':
		return append(dst, '\\', 'r')
	case '\t':
		return append(dst, '\\', 't')
	}
	if r < 0x20 {
		return appendUnicodeEscape(dst, r)
	}
	if r < utf8.RuneSelf {
		return append(dst, byte(r))
	}
	if mode == ModeASCII {
		if r > 0xFFFF {
			high, low := utf16.EncodeRune(r)
			return appendUnicodeEscape(appendUnicodeEscape(dst, high), low)
		}
		return appendUnicodeEscape(dst, r)
	}
	return utf8.AppendRune(dst, r)
}

func appendUnicodeEscape(dst []byte, r rune) []byte {
	return append(dst, '\\', 'u',
		hexDigits[r>>12&0xf], hexDigits[r>>8&0xf],
		hexDigits[r>>4&0xf], hexDigits[r&0xf])
}
