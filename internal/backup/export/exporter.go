// Package export writes profile backup archives.
package export

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"time"

	"github.com/flashdeck/flashdeck/internal/backup/stream"
	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/mediastore"
	"github.com/flashdeck/flashdeck/internal/store"
)

// FormatVersion is the backup format version.
const FormatVersion = "1.0"

// Archive layout.
const (
	ManifestPath   = "manifest.json"
	MediaIndexPath = "media/index.jsonl"
)

// EntityPath returns the archive path of a collection's JSONL file.
func EntityPath(collection string) string {
	return "entities/" + collection + ".jsonl"
}

// MediaPath returns the archive path of a blob's payload.
func MediaPath(p mediastore.Partition, id string) string {
	return path.Join("media", string(p), id)
}

// Options configures backup creation.
type Options struct {
	IncludeMedia bool
	// IncludeStudy exports study sessions. They carry review history only.
	IncludeStudy bool
	OutputPath   string
}

// Result contains the outcome of a backup operation.
type Result struct {
	Path     string
	Size     int64
	Counts   EntityCounts
	Duration time.Duration
	Checksum string
}

// Manifest describes backup contents and metadata.
type Manifest struct {
	Version          string       `json:"version"`
	CreatedAt        time.Time    `json:"created_at"`
	FlashDeckVersion string       `json:"flashdeck_version"`
	Counts           EntityCounts `json:"counts"`
	IncludesMedia    bool         `json:"includes_media"`
	IncludesStudy    bool         `json:"includes_study"`
}

// EntityCounts tracks record counts for validation and progress reporting.
type EntityCounts struct {
	Users         int `json:"users"`
	Decks         int `json:"decks"`
	Themes        int `json:"themes"`
	Flashcards    int `json:"flashcards"`
	StudySessions int `json:"study_sessions"`
	ShareCodes    int `json:"share_codes"`
	Media         int `json:"media,omitempty"`
}

// Ptr returns the counter for a collection, or nil for an unknown name.
func (c *EntityCounts) Ptr(collection string) *int {
	switch collection {
	case domain.CollectionUsers:
		return &c.Users
	case domain.CollectionDecks:
		return &c.Decks
	case domain.CollectionThemes:
		return &c.Themes
	case domain.CollectionFlashcards:
		return &c.Flashcards
	case domain.CollectionStudySessions:
		return &c.StudySessions
	case domain.CollectionShareCodes:
		return &c.ShareCodes
	}
	return nil
}

// Entry is one record line of an entity file.
type Entry struct {
	ID     string          `json:"id"`
	Record json.RawMessage `json:"record"`
}

// MediaEntry is one line of the media index.
type MediaEntry struct {
	Partition mediastore.Partition `json:"partition"`
	ID        string               `json:"id"`
	MIMEType  string               `json:"mime"`
	Size      int                  `json:"size"`
}

// Exporter creates backup archives.
type Exporter struct {
	records *store.Store
	media   *mediastore.Store
	version string
}

// New creates an Exporter. media may be nil when blobs are never exported.
func New(records *store.Store, media *mediastore.Store, version string) *Exporter {
	return &Exporter{records: records, media: media, version: version}
}

// Export creates a backup archive.
func (e *Exporter) Export(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()

	// Write to temp file, rename on success
	tmpPath := opts.OutputPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("create backup file: %w", err)
	}
	defer os.Remove(tmpPath)
	defer f.Close()

	hash := sha256.New()
	zw := zip.NewWriter(io.MultiWriter(f, hash))

	manifest := &Manifest{
		Version:          FormatVersion,
		CreatedAt:        time.Now().UTC(),
		FlashDeckVersion: e.version,
		IncludesMedia:    opts.IncludeMedia && e.media != nil,
		IncludesStudy:    opts.IncludeStudy,
	}
	counts := &manifest.Counts

	for _, name := range domain.Collections {
		if name == domain.CollectionStudySessions && !opts.IncludeStudy {
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		n, err := exportCollection(ctx, e.records, zw, name)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", name, err)
		}
		*counts.Ptr(name) = n
	}

	if manifest.IncludesMedia {
		n, err := e.exportMedia(ctx, zw)
		if err != nil {
			return nil, fmt.Errorf("export media: %w", err)
		}
		counts.Media = n
	}

	// Manifest goes last so it carries the final counts
	if err := writeManifest(zw, manifest); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close file: %w", err)
	}

	if err := os.Rename(tmpPath, opts.OutputPath); err != nil {
		return nil, fmt.Errorf("rename backup: %w", err)
	}

	info, err := os.Stat(opts.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("stat backup: %w", err)
	}

	return &Result{
		Path:     opts.OutputPath,
		Size:     info.Size(),
		Counts:   *counts,
		Duration: time.Since(start),
		Checksum: hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

func exportCollection(ctx context.Context, records *store.Store, zw *zip.Writer, name string) (int, error) {
	w, err := stream.NewWriter(zw, EntityPath(name))
	if err != nil {
		return 0, err
	}

	docs := records.Get(ctx, name)
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		if err := w.Write(Entry{ID: id, Record: docs[id]}); err != nil {
			return w.Count(), err
		}
	}
	return w.Count(), nil
}

func (e *Exporter) exportMedia(ctx context.Context, zw *zip.Writer) (int, error) {
	var entries []MediaEntry

	for _, p := range mediastore.Partitions {
		ids, ok := e.media.List(ctx, p)
		if !ok {
			return 0, fmt.Errorf("list %s", p)
		}
		slices.Sort(ids)

		for _, id := range ids {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			blob := e.media.Retrieve(ctx, p, id)
			if blob == nil {
				// Removed since listing
				continue
			}

			// Payloads are already compressed formats, so store them as-is.
			w, err := zw.CreateHeader(&zip.FileHeader{Name: MediaPath(p, id), Method: zip.Store})
			if err != nil {
				return 0, err
			}
			if _, err := w.Write(blob.Data); err != nil {
				return 0, err
			}
			entries = append(entries, MediaEntry{Partition: p, ID: id, MIMEType: blob.MIMEType, Size: blob.Size()})
		}
	}

	idx, err := stream.NewWriter(zw, MediaIndexPath)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		if err := idx.Write(entry); err != nil {
			return 0, err
		}
	}
	return idx.Count(), nil
}

func writeManifest(zw *zip.Writer, m *Manifest) error {
	w, err := zw.Create(ManifestPath)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}
