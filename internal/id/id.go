package id

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// MediaKind is the type tag that prefixes a media identifier.
type MediaKind string

// Media kinds.
const (
	MediaImage MediaKind = "img"
	MediaAudio MediaKind = "audio"
)

// suffixAlphabet omits '_' and '-' so media ids split cleanly on '_'.
const suffixAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const suffixLength = 8

// Generate creates a prefixed unique ID using NanoID
// Format: prefix-nanoid (e.g., "deck-V1StGXR8_Z5jdHi6B-myT")
//
// NanoIDs are URL-friendly, compact (21 characters vs UUID's 36),
// and use a larger alphabet for better entropy per character.
//
// Returns an error if the system has insufficient entropy for secure random generation.
func Generate(prefix string) (string, error) {
	// Use default NanoID (21 characters, URL-safe alphabet)
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
// Use this only when you're certain the system entropy is available,
// or when failure should crash the program (e.g., during initialization).
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// NewMediaID creates a media identifier of the form kind_unixMillis_suffix,
// e.g. "img_1718000000000_a8Fk2LmQ". Identifiers sort by creation time within a
// kind and the random suffix keeps ids minted in the same millisecond distinct.
func NewMediaID(kind MediaKind, now time.Time) (string, error) {
	suffix, err := gonanoid.Generate(suffixAlphabet, suffixLength)
	if err != nil {
		return "", fmt.Errorf("generate media id suffix: %w", err)
	}
	return string(kind) + "_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + suffix, nil
}

// ParseMediaID splits a media identifier into its kind and creation time.
func ParseMediaID(mediaID string) (MediaKind, time.Time, bool) {
	parts := strings.Split(mediaID, "_")
	if len(parts) != 3 || parts[2] == "" {
		return "", time.Time{}, false
	}
	kind := MediaKind(parts[0])
	if kind != MediaImage && kind != MediaAudio {
		return "", time.Time{}, false
	}
	ms, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", time.Time{}, false
	}
	return kind, time.UnixMilli(ms), true
}
