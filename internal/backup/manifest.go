package backup

import "github.com/flashdeck/flashdeck/internal/backup/export"

// FormatVersion is the backup format version. Increment major on breaking changes.
const FormatVersion = export.FormatVersion

// Manifest describes backup contents and metadata.
type Manifest = export.Manifest

// EntityCounts tracks record counts for validation and progress reporting.
type EntityCounts = export.EntityCounts
