package backup

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/flashdeck/flashdeck/internal/backup/export"
	backupimport "github.com/flashdeck/flashdeck/internal/backup/import"
	"github.com/flashdeck/flashdeck/internal/backup/stream"
	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/mediastore"
	"github.com/flashdeck/flashdeck/internal/store"
)

// RestoreService restores from backups.
type RestoreService struct {
	logger   *slog.Logger
	importer *backupimport.Importer
}

// NewRestoreService creates a RestoreService. media may be nil.
func NewRestoreService(records *store.Store, media *mediastore.Store, logger *slog.Logger) *RestoreService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RestoreService{
		logger:   logger,
		importer: backupimport.New(records, media, logger),
	}
}

// Restore restores from a backup file.
func (s *RestoreService) Restore(ctx context.Context, path string, opts RestoreOptions) (*RestoreResult, error) {
	if !opts.Mode.Valid() {
		return nil, fmt.Errorf("unknown restore mode %q", opts.Mode)
	}
	if !opts.MergeStrategy.Valid() {
		return nil, fmt.Errorf("unknown merge strategy %q", opts.MergeStrategy)
	}
	if opts.MergeStrategy == "" {
		opts.MergeStrategy = MergeKeepLocal
	}

	s.logger.Info("starting restore",
		"path", path,
		"mode", opts.Mode,
		"merge_strategy", opts.MergeStrategy,
		"dry_run", opts.DryRun)

	importResult, err := s.importer.Import(ctx, path, backupimport.RestoreOptions{
		Mode:          opts.Mode,
		MergeStrategy: opts.MergeStrategy,
		DryRun:        opts.DryRun,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("restore complete",
		"imported", importResult.Imported,
		"skipped", importResult.Skipped,
		"errors", len(importResult.Errors),
		"duration", importResult.Duration)

	return &RestoreResult{
		Imported: importResult.Imported,
		Skipped:  importResult.Skipped,
		Errors:   importResult.Errors,
		Duration: importResult.Duration,
	}, nil
}

// Validate checks a backup without importing.
func (s *RestoreService) Validate(_ context.Context, path string) (*ValidationResult, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return &ValidationResult{
			Valid:  false,
			Errors: []string{fmt.Sprintf("failed to open backup: %v", err)},
		}, nil
	}
	defer zr.Close()

	result := &ValidationResult{Valid: true}

	rc, err := stream.OpenFile(&zr.Reader, export.ManifestPath)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, "missing "+export.ManifestPath)
		return result, nil
	}

	var manifest Manifest
	err = json.NewDecoder(rc).Decode(&manifest)
	rc.Close()
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("invalid manifest: %v", err))
		return result, nil
	}

	result.Manifest = &manifest
	result.ExpectedCounts = manifest.Counts

	if manifest.Version != FormatVersion {
		result.Valid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("unsupported version %s (want %s)", manifest.Version, FormatVersion))
	}

	required := []string{
		domain.CollectionUsers,
		domain.CollectionDecks,
		domain.CollectionFlashcards,
	}
	for _, name := range required {
		if _, err := stream.OpenFile(&zr.Reader, export.EntityPath(name)); err != nil {
			result.Warnings = append(result.Warnings, "missing file: "+export.EntityPath(name))
		}
	}
	if manifest.IncludesMedia {
		if _, err := stream.OpenFile(&zr.Reader, export.MediaIndexPath); err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, "missing file: "+export.MediaIndexPath)
		}
	}

	return result, nil
}
