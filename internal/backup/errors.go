// Package backup creates, lists and restores full profile backups.
package backup

import (
	"errors"

	backupimport "github.com/flashdeck/flashdeck/internal/backup/import"
)

var (
	// ErrInvalidManifest indicates the manifest is missing or malformed.
	ErrInvalidManifest = backupimport.ErrInvalidManifest

	// ErrVersionMismatch indicates the backup version is not supported.
	ErrVersionMismatch = backupimport.ErrVersionMismatch

	// ErrBackupNotFound indicates the requested backup does not exist.
	ErrBackupNotFound = errors.New("backup not found")

	// ErrInvalidBackupID indicates an id that cannot name a backup file.
	ErrInvalidBackupID = errors.New("invalid backup id")
)
