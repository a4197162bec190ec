// Package backupimport restores profile backup archives.
package backupimport

import (
	"errors"
	"time"
)

// RestoreMode defines how restore handles existing data.
type RestoreMode string

const (
	// RestoreModeFull replaces every collection with the backup's contents.
	RestoreModeFull RestoreMode = "full"
	// RestoreModeMerge adds new records and resolves conflicts with a strategy.
	RestoreModeMerge RestoreMode = "merge"
	// RestoreModeStudyOnly merges study sessions and nothing else.
	RestoreModeStudyOnly RestoreMode = "study_only"
)

// Valid returns true if the restore mode is recognized.
func (m RestoreMode) Valid() bool {
	switch m {
	case RestoreModeFull, RestoreModeMerge, RestoreModeStudyOnly:
		return true
	default:
		return false
	}
}

// MergeStrategy defines conflict resolution for merge mode.
type MergeStrategy string

const (
	// MergeKeepLocal keeps local version on conflict.
	MergeKeepLocal MergeStrategy = "keep_local"
	// MergeKeepBackup keeps backup version on conflict.
	MergeKeepBackup MergeStrategy = "keep_backup"
	// MergeNewest keeps whichever version is newer.
	MergeNewest MergeStrategy = "newest"
)

// Valid returns true if the merge strategy is recognized.
func (s MergeStrategy) Valid() bool {
	switch s {
	case MergeKeepLocal, MergeKeepBackup, MergeNewest:
		return true
	case "": // Not needed for full restores
		return true
	default:
		return false
	}
}

// RestoreOptions configures restore behavior.
type RestoreOptions struct {
	Mode          RestoreMode
	MergeStrategy MergeStrategy
	DryRun        bool
}

// RestoreResult reports what was restored.
type RestoreResult struct {
	Imported map[string]int
	Skipped  map[string]int
	Errors   []RestoreError
	Duration time.Duration
}

// RestoreError represents a non-fatal restore error.
type RestoreError struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id,omitempty"`
	Error      string `json:"error"`
}

// Errors.
var (
	ErrInvalidManifest = errors.New("invalid or missing manifest")
	ErrVersionMismatch = errors.New("backup version not supported")
)
