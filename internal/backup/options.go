package backup

import (
	"time"

	backupimport "github.com/flashdeck/flashdeck/internal/backup/import"
)

// BackupOptions configures backup creation.
type BackupOptions struct {
	IncludeMedia bool   // Include image and audio blobs
	IncludeStudy bool   // Include study sessions
	OutputPath   string // Where to write the backup file
}

// DefaultBackupOptions returns sensible defaults.
func DefaultBackupOptions() BackupOptions {
	return BackupOptions{
		IncludeMedia: true,
		IncludeStudy: true,
	}
}

// RestoreOptions configures restoration.
type RestoreOptions struct {
	Mode          RestoreMode
	MergeStrategy MergeStrategy
	DryRun        bool // Validate without writing
}

// RestoreMode determines how to handle existing data.
type RestoreMode = backupimport.RestoreMode

// Restore modes.
const (
	RestoreModeFull      = backupimport.RestoreModeFull
	RestoreModeMerge     = backupimport.RestoreModeMerge
	RestoreModeStudyOnly = backupimport.RestoreModeStudyOnly
)

// MergeStrategy determines conflict resolution in merge mode.
type MergeStrategy = backupimport.MergeStrategy

// Merge strategies.
const (
	MergeKeepLocal  = backupimport.MergeKeepLocal
	MergeKeepBackup = backupimport.MergeKeepBackup
	MergeNewest     = backupimport.MergeNewest
)

// BackupResult contains the outcome of a backup operation.
type BackupResult struct {
	ID       string        `json:"id"`
	Path     string        `json:"path"`
	Size     int64         `json:"size"`
	Counts   EntityCounts  `json:"counts"`
	Duration time.Duration `json:"duration"`
	Checksum string        `json:"checksum"`
}

// BackupInfo describes an existing backup.
type BackupInfo struct {
	ID        string       `json:"id"`
	Path      string       `json:"path"`
	Size      int64        `json:"size"`
	CreatedAt time.Time    `json:"created_at"`
	Counts    EntityCounts `json:"counts"`
}

// RestoreResult contains the outcome of a restore operation.
type RestoreResult struct {
	Imported map[string]int `json:"imported"`
	Skipped  map[string]int `json:"skipped"`
	Errors   []RestoreError `json:"errors,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// RestoreError describes a non-fatal error during restore.
type RestoreError = backupimport.RestoreError

// ValidationResult describes backup validity.
type ValidationResult struct {
	Valid          bool         `json:"valid"`
	Manifest       *Manifest    `json:"manifest,omitempty"`
	ExpectedCounts EntityCounts `json:"expected_counts"`
	Errors         []string     `json:"errors,omitempty"`
	Warnings       []string     `json:"warnings,omitempty"`
}
