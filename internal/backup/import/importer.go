package backupimport

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/flashdeck/flashdeck/internal/backup/export"
	"github.com/flashdeck/flashdeck/internal/backup/stream"
	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/mediastore"
	"github.com/flashdeck/flashdeck/internal/store"
)

// mediaResultKey is the Imported/Skipped key for blobs.
const mediaResultKey = "media"

// Importer restores from backup archives.
type Importer struct {
	records *store.Store
	media   *mediastore.Store
	logger  *slog.Logger
}

// New creates an Importer. media may be nil, in which case blobs are skipped.
func New(records *store.Store, media *mediastore.Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{records: records, media: media, logger: logger}
}

// ReadManifest opens path and decodes its manifest.
func ReadManifest(path string) (*export.Manifest, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open backup: %w", err)
	}
	defer zr.Close()
	return readManifest(&zr.Reader)
}

// Import restores from a backup file.
func (i *Importer) Import(ctx context.Context, path string, opts RestoreOptions) (*RestoreResult, error) {
	start := time.Now()

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open backup: %w", err)
	}
	defer zr.Close()

	manifest, err := readManifest(&zr.Reader)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(manifest.Version); err != nil {
		return nil, err
	}

	result := &RestoreResult{
		Imported: make(map[string]int),
		Skipped:  make(map[string]int),
	}

	// Blobs go first so restored records never point at missing media
	if manifest.IncludesMedia && opts.Mode != RestoreModeStudyOnly && i.media != nil {
		if err := i.importMedia(ctx, &zr.Reader, opts, result); err != nil {
			return nil, err
		}
	}

	if err := i.importRecords(ctx, &zr.Reader, manifest, opts, result); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	return result, nil
}

func readManifest(zr *zip.Reader) (*export.Manifest, error) {
	rc, err := stream.OpenFile(zr, export.ManifestPath)
	if err != nil {
		return nil, ErrInvalidManifest
	}
	defer rc.Close()

	var manifest export.Manifest
	if err := json.NewDecoder(rc).Decode(&manifest); err != nil {
		return nil, ErrInvalidManifest
	}
	return &manifest, nil
}

func checkVersion(version string) error {
	// TODO: migrate 1.x archives once a second format version exists.
	if version != export.FormatVersion {
		return fmt.Errorf("%w: got %s, want %s", ErrVersionMismatch, version, export.FormatVersion)
	}
	return nil
}

// collectionsFor lists the collections a restore touches.
func collectionsFor(mode RestoreMode) []string {
	if mode == RestoreModeStudyOnly {
		return []string{domain.CollectionStudySessions}
	}
	return domain.Collections
}

// readCollection loads every entry of a collection's entity file. A missing
// file reads as an empty collection.
func readCollection(zr *zip.Reader, name string) (map[string]json.RawMessage, []RestoreError, bool) {
	rc, err := stream.OpenFile(zr, export.EntityPath(name))
	if err != nil {
		return nil, nil, false
	}

	records := make(map[string]json.RawMessage)
	var errs []RestoreError
	for entry, err := range stream.NewReader[export.Entry](rc).All() {
		switch {
		case err != nil:
			errs = append(errs, RestoreError{EntityType: name, Error: err.Error()})
		case entry.ID == "" || !json.Valid(entry.Record):
			errs = append(errs, RestoreError{EntityType: name, EntityID: entry.ID, Error: "malformed record"})
		default:
			records[entry.ID] = entry.Record
		}
	}
	return records, errs, true
}

func (i *Importer) importRecords(ctx context.Context, zr *zip.Reader, manifest *export.Manifest, opts RestoreOptions, result *RestoreResult) error {
	incoming := make(map[string]map[string]json.RawMessage)
	for _, name := range collectionsFor(opts.Mode) {
		records, errs, ok := readCollection(zr, name)
		result.Errors = append(result.Errors, errs...)
		if !ok {
			// Study sessions are optional; anything else missing reads as empty
			if name == domain.CollectionStudySessions && !manifest.IncludesStudy {
				continue
			}
			records = make(map[string]json.RawMessage)
		}
		incoming[name] = records
	}

	return i.records.Update(ctx, func(tx *store.Tx) error {
		for _, name := range collectionsFor(opts.Mode) {
			records, ok := incoming[name]
			if !ok {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			var merged map[string]json.RawMessage
			var imported, skipped int
			if opts.Mode == RestoreModeFull {
				merged, imported = records, len(records)
			} else {
				merged, imported, skipped = mergeCollection(store.Load[json.RawMessage](tx, name), records, opts.MergeStrategy)
			}

			result.Imported[name] = imported
			result.Skipped[name] = skipped
			i.logger.Info("imported records",
				"collection", name,
				"imported", imported,
				"skipped", skipped,
				"dry_run", opts.DryRun)

			if opts.DryRun {
				continue
			}
			if err := store.Stage(tx, name, merged); err != nil {
				return err
			}
		}
		return nil
	})
}

// mergeCollection folds backup records into local ones and reports how many
// backup records were taken and how many were dropped.
func mergeCollection(local, backup map[string]json.RawMessage, strategy MergeStrategy) (map[string]json.RawMessage, int, int) {
	var imported, skipped int
	for id, rec := range backup {
		current, exists := local[id]
		if exists && !preferBackup(current, rec, strategy) {
			skipped++
			continue
		}
		local[id] = rec
		imported++
	}
	return local, imported, skipped
}

func preferBackup(local, backup json.RawMessage, strategy MergeStrategy) bool {
	switch strategy {
	case MergeKeepBackup:
		return true
	case MergeNewest:
		return recordTime(backup).After(recordTime(local))
	default:
		return false
	}
}

// recordTime returns a record's last edit time, falling back to its creation
// time. Records with neither read as the zero time.
func recordTime(raw json.RawMessage) time.Time {
	var ts struct {
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}
	if err := json.Unmarshal(raw, &ts); err != nil {
		return time.Time{}
	}
	if !ts.UpdatedAt.IsZero() {
		return ts.UpdatedAt
	}
	return ts.CreatedAt
}

func (i *Importer) importMedia(ctx context.Context, zr *zip.Reader, opts RestoreOptions, result *RestoreResult) error {
	rc, err := stream.OpenFile(zr, export.MediaIndexPath)
	if err != nil {
		result.Errors = append(result.Errors, RestoreError{EntityType: mediaResultKey, Error: "missing media index"})
		return nil
	}

	for entry, err := range stream.NewReader[export.MediaEntry](rc).All() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			result.Errors = append(result.Errors, RestoreError{EntityType: mediaResultKey, Error: err.Error()})
			continue
		}
		if !entry.Partition.Valid() || entry.ID == "" {
			result.Errors = append(result.Errors, RestoreError{EntityType: mediaResultKey, EntityID: entry.ID, Error: "invalid media entry"})
			continue
		}

		if opts.Mode == RestoreModeMerge && i.media.Exists(ctx, entry.Partition, entry.ID) {
			result.Skipped[mediaResultKey]++
			continue
		}
		if opts.DryRun {
			result.Imported[mediaResultKey]++
			continue
		}

		data, err := readBlob(zr, export.MediaPath(entry.Partition, entry.ID))
		if err != nil {
			result.Errors = append(result.Errors, RestoreError{EntityType: mediaResultKey, EntityID: entry.ID, Error: err.Error()})
			continue
		}
		if !i.media.Store(ctx, entry.Partition, entry.ID, mediastore.Blob{Data: data, MIMEType: entry.MIMEType}) {
			result.Errors = append(result.Errors, RestoreError{EntityType: mediaResultKey, EntityID: entry.ID, Error: "store blob failed"})
			continue
		}
		result.Imported[mediaResultKey]++
	}

	i.logger.Info("imported media",
		"imported", result.Imported[mediaResultKey],
		"skipped", result.Skipped[mediaResultKey])
	return nil
}

func readBlob(zr *zip.Reader, path string) ([]byte, error) {
	rc, err := stream.OpenFile(zr, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
