package store

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrQuotaExceeded is returned when a serialized collection is larger than
	// the configured per-document quota.
	ErrQuotaExceeded = errors.New("record store quota exceeded")

	// ErrClosed is returned by backends after Close.
	ErrClosed = errors.New("record store is closed")
)

// QuotaError reports which collection hit the quota and by how much.
type QuotaError struct {
	Collection string
	Size       int
	Quota      int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("collection %s is %d bytes, quota is %d", e.Collection, e.Size, e.Quota)
}

// Unwrap lets errors.Is match ErrQuotaExceeded.
func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }
