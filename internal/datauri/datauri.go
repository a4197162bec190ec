// Package datauri converts between base64 data URIs and raw media blobs.
package datauri

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	scheme = "data:"
	marker = "base64,"

	// DefaultMIMEType is assumed when a data URI names no media type.
	DefaultMIMEType = "application/octet-stream"

	// chunkSize is a multiple of 4 so every chunk is a whole base64 quantum.
	chunkSize = 256 * 1024
)

// ErrNotInline is returned when a value is not a base64 data URI.
var ErrNotInline = errors.New("value is not an inline data URI")

// IsInlineEncoded reports whether value carries the data URI scheme and a
// base64 payload marker. Every "does this field need migration" check uses it.
func IsInlineEncoded(value string) bool {
	return strings.HasPrefix(value, scheme) && strings.Contains(value, marker)
}

// Parse splits a data URI into its MIME type and base64 payload.
func Parse(value string) (mimeType, payload string, err error) {
	if !IsInlineEncoded(value) {
		return "", "", ErrNotInline
	}
	header, payload, _ := strings.Cut(value[len(scheme):], marker)

	// header is "<mime>[;param=value]*;" with the trailing ';' before base64.
	header = strings.TrimSuffix(header, ";")
	mimeType, _, _ = strings.Cut(header, ";")
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}
	return mimeType, payload, nil
}

// Decode returns the MIME type and binary payload of a data URI. The payload is
// decoded in fixed-size chunks into a buffer sized up front, so peak memory
// stays near the size of the result.
func Decode(value string) (mimeType string, data []byte, err error) {
	mimeType, payload, err := Parse(value)
	if err != nil {
		return "", nil, err
	}
	payload = strings.TrimSpace(payload)

	enc := base64.StdEncoding
	if len(payload)%4 != 0 {
		enc = base64.RawStdEncoding
		payload = strings.TrimRight(payload, "=")
	}

	data = make([]byte, enc.DecodedLen(len(payload)))
	n := 0
	for start := 0; start < len(payload); start += chunkSize {
		end := min(start+chunkSize, len(payload))
		w, err := enc.Decode(data[n:], []byte(payload[start:end]))
		if err != nil {
			return "", nil, fmt.Errorf("decode base64 at offset %d: %w", start, err)
		}
		n += w
	}
	return mimeType, data[:n], nil
}

// Encode builds a base64 data URI for data.
func Encode(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}
	var b strings.Builder
	b.Grow(len(scheme) + len(mimeType) + 1 + len(marker) + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString(scheme)
	b.WriteString(mimeType)
	b.WriteByte(';')
	b.WriteString(marker)
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}
