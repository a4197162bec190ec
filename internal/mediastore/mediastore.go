// Package mediastore is the asynchronous blob store for image and audio
// payloads, keyed by media identifier inside one of two partitions.
package mediastore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/flashdeck/flashdeck/internal/domain"
)

// Partition is a logical key-value table of the media store.
type Partition string

// Partitions.
const (
	Images Partition = "imagesStore"
	Audio  Partition = "audioStore"
)

// Partitions lists every partition.
var Partitions = []Partition{Images, Audio}

// Valid reports whether p names a known partition.
func (p Partition) Valid() bool {
	return p == Images || p == Audio
}

// PartitionFor maps a media kind to its partition.
func PartitionFor(kind domain.MediaKind) Partition {
	if kind == domain.KindAudio {
		return Audio
	}
	return Images
}

// ErrNotFound is returned by backends when no blob exists under an id.
var ErrNotFound = errors.New("media blob not found")

// Blob is a raw media payload. Blobs returned by a Store are shared with its
// cache and must not be modified.
type Blob struct {
	Data     []byte
	MIMEType string
}

// Size returns the payload length in bytes.
func (b *Blob) Size() int {
	return len(b.Data)
}

// Backend is a durable blob store.
type Backend interface {
	// Put inserts or replaces the blob stored under id.
	Put(ctx context.Context, p Partition, id string, blob Blob) error
	// Get returns the blob stored under id, or ErrNotFound.
	Get(ctx context.Context, p Partition, id string) (*Blob, error)
	// Delete removes the blob stored under id. Deleting a missing blob succeeds.
	Delete(ctx context.Context, p Partition, id string) error
	Exists(ctx context.Context, p Partition, id string) (bool, error)
	// List returns every id stored in p.
	List(ctx context.Context, p Partition) ([]string, error)
	Close() error
}

// checkKey validates a partition and id before they reach a backend.
func checkKey(p Partition, id string) error {
	if !p.Valid() {
		return fmt.Errorf("unknown partition %q", p)
	}
	if id == "" {
		return errors.New("media id cannot be empty")
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("invalid media id %q", id)
	}
	return nil
}
