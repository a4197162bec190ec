package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/flashdeck/flashdeck/internal/backup/export"
	backupimport "github.com/flashdeck/flashdeck/internal/backup/import"
	"github.com/flashdeck/flashdeck/internal/mediastore"
	"github.com/flashdeck/flashdeck/internal/store"
)

// fileSuffix marks backup archives in the backup directory.
const fileSuffix = ".flashdeck.zip"

// BackupService manages backup creation and listing.
type BackupService struct {
	backupDir string
	logger    *slog.Logger
	exporter  *export.Exporter
	now       func() time.Time
}

// NewBackupService creates a BackupService. media may be nil.
func NewBackupService(records *store.Store, media *mediastore.Store, backupDir, version string, logger *slog.Logger) *BackupService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackupService{
		backupDir: backupDir,
		logger:    logger,
		exporter:  export.New(records, media, version),
		now:       time.Now,
	}
}

// Dir returns the directory backups are written to.
func (s *BackupService) Dir() string {
	return s.backupDir
}

// Create creates a new backup.
func (s *BackupService) Create(ctx context.Context, opts BackupOptions) (*BackupResult, error) {
	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	outputPath := opts.OutputPath
	if outputPath == "" {
		timestamp := s.now().Format("2006-01-02-150405.000")
		outputPath = filepath.Join(s.backupDir, "backup-"+timestamp+fileSuffix)
	}

	s.logger.Info("creating backup",
		"output", outputPath,
		"include_media", opts.IncludeMedia,
		"include_study", opts.IncludeStudy)

	result, err := s.exporter.Export(ctx, export.Options{
		IncludeMedia: opts.IncludeMedia,
		IncludeStudy: opts.IncludeStudy,
		OutputPath:   outputPath,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("backup complete",
		"path", result.Path,
		"size", result.Size,
		"duration", result.Duration,
		"checksum", result.Checksum)

	return &BackupResult{
		ID:       backupID(filepath.Base(result.Path)),
		Path:     result.Path,
		Size:     result.Size,
		Counts:   result.Counts,
		Duration: result.Duration,
		Checksum: result.Checksum,
	}, nil
}

func backupID(name string) string {
	return strings.TrimSuffix(name, fileSuffix)
}

// List returns all available backups, newest first.
func (s *BackupService) List(_ context.Context) ([]BackupInfo, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileSuffix) {
			continue
		}

		info, err := s.describe(backupID(entry.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable backup", "file", entry.Name(), "error", err)
			continue
		}
		backups = append(backups, *info)
	}

	slices.SortFunc(backups, func(a, b BackupInfo) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return backups, nil
}

// Get returns a backup by ID.
func (s *BackupService) Get(_ context.Context, id string) (*BackupInfo, error) {
	return s.describe(id)
}

// describe stats a backup and reads its manifest. CreatedAt comes from the
// manifest, falling back to the file's modification time.
func (s *BackupService) describe(id string) (*BackupInfo, error) {
	path, err := s.GetPath(id)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBackupNotFound
		}
		return nil, err
	}

	info := &BackupInfo{
		ID:        id,
		Path:      path,
		Size:      stat.Size(),
		CreatedAt: stat.ModTime(),
	}
	if manifest, err := backupimport.ReadManifest(path); err == nil {
		info.CreatedAt = manifest.CreatedAt
		info.Counts = manifest.Counts
	}
	return info, nil
}

// Delete removes a backup.
func (s *BackupService) Delete(_ context.Context, id string) error {
	path, err := s.GetPath(id)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrBackupNotFound
		}
		return err
	}
	return nil
}

// Prune deletes all but the newest keep backups and returns how many it removed.
func (s *BackupService) Prune(ctx context.Context, keep int) (int, error) {
	backups, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}

	var removed int
	for _, b := range backups[min(keep, len(backups)):] {
		if err := s.Delete(ctx, b.ID); err != nil {
			return removed, fmt.Errorf("delete backup %s: %w", b.ID, err)
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("pruned backups", "removed", removed, "kept", len(backups)-removed)
	}
	return removed, nil
}

// GetPath returns the file path for a backup ID.
func (s *BackupService) GetPath(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", ErrInvalidBackupID
	}
	return filepath.Join(s.backupDir, id+fileSuffix), nil
}
