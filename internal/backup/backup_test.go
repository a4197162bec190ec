package backup_test

import (
	"archive/zip"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashdeck/flashdeck/internal/backup"
	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/mediastore"
	"github.com/flashdeck/flashdeck/internal/store"
)

type profile struct {
	records *store.Store
	media   *mediastore.Store
}

func newProfile(t *testing.T) profile {
	t.Helper()

	files, err := mediastore.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	media, err := mediastore.New(files)
	require.NoError(t, err)

	records := store.New(store.NewMemoryBackend())
	t.Cleanup(func() {
		_ = records.Close()
		_ = media.Close()
	})
	return profile{records: records, media: media}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pngBytes starts with the PNG signature so file backends detect image/png.
var pngBytes = []byte("\x89PNG\r\n\x1a\nfake")

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedProfile(t *testing.T, p profile) {
	t.Helper()
	ctx := context.Background()

	require.True(t, p.records.Set(ctx, domain.CollectionUsers, map[string]domain.User{
		"u1": {ID: "u1", Username: "ana", Email: "ana@example.com", PasswordHash: "$argon2id$test", CreatedAt: epoch},
	}))
	require.True(t, p.records.Set(ctx, domain.CollectionDecks, map[string]domain.Deck{
		"d1": {
			Timestamps:   domain.Timestamps{CreatedAt: epoch, UpdatedAt: epoch},
			ID:           "d1",
			Title:        "Spanish verbs",
			CoverImageID: "img1",
			Tags:         []string{"spanish"},
			AuthorID:     "u1",
		},
	}))
	require.True(t, p.records.Set(ctx, domain.CollectionStudySessions, map[string]domain.StudySession{
		"s1": {ID: "s1", DeckID: "d1", UserID: "u1", StartTime: epoch, CardsReviewed: 4, CorrectAnswers: 3, IncorrectAnswers: 1},
	}))
	require.True(t, p.media.Store(ctx, mediastore.Images, "img1", mediastore.Blob{Data: pngBytes, MIMEType: "image/png"}))
	require.True(t, p.media.Store(ctx, mediastore.Audio, "aud1", mediastore.Blob{Data: []byte("ID3 fake"), MIMEType: "audio/mpeg"}))
}

func decks(t *testing.T, s *store.Store) map[string]domain.Deck {
	t.Helper()
	out := make(map[string]domain.Deck)
	for id, raw := range s.Get(context.Background(), domain.CollectionDecks) {
		var d domain.Deck
		require.NoError(t, json.Unmarshal(raw, &d))
		out[id] = d
	}
	return out
}

func TestBackup_CreateAndList(t *testing.T) {
	ctx := context.Background()
	src := newProfile(t)
	seedProfile(t, src)

	svc := backup.NewBackupService(src.records, src.media, t.TempDir(), "test", quietLogger())

	result, err := svc.Create(ctx, backup.DefaultBackupOptions())
	require.NoError(t, err)
	assert.NotEmpty(t, result.Checksum)
	assert.Positive(t, result.Size)
	assert.Equal(t, 1, result.Counts.Users)
	assert.Equal(t, 1, result.Counts.Decks)
	assert.Equal(t, 1, result.Counts.StudySessions)
	assert.Equal(t, 2, result.Counts.Media)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, result.ID, list[0].ID)
	assert.Equal(t, 1, list[0].Counts.Decks)

	info, err := svc.Get(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Path, info.Path)

	// Nothing is left behind from the atomic write
	_, err = os.Stat(result.Path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestBackup_ArchiveLayout(t *testing.T) {
	src := newProfile(t)
	seedProfile(t, src)

	svc := backup.NewBackupService(src.records, src.media, t.TempDir(), "test", quietLogger())
	result, err := svc.Create(context.Background(), backup.BackupOptions{IncludeMedia: true})
	require.NoError(t, err)

	zr, err := zip.OpenReader(result.Path)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "manifest.json")
	assert.Contains(t, names, "entities/decks.jsonl")
	assert.Contains(t, names, "media/imagesStore/img1")
	assert.Contains(t, names, "media/audioStore/aud1")
	assert.NotContains(t, names, "entities/studySessions.jsonl")
}

func TestBackup_GetAndDelete(t *testing.T) {
	ctx := context.Background()
	src := newProfile(t)
	svc := backup.NewBackupService(src.records, nil, t.TempDir(), "test", quietLogger())

	_, err := svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, backup.ErrBackupNotFound)

	_, err = svc.Get(ctx, "../escape")
	assert.ErrorIs(t, err, backup.ErrInvalidBackupID)

	result, err := svc.Create(ctx, backup.BackupOptions{})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, result.ID))
	assert.ErrorIs(t, svc.Delete(ctx, result.ID), backup.ErrBackupNotFound)
}

func TestBackup_Prune(t *testing.T) {
	ctx := context.Background()
	src := newProfile(t)
	dir := t.TempDir()
	svc := backup.NewBackupService(src.records, nil, dir, "test", quietLogger())

	for i := range 3 {
		_, err := svc.Create(ctx, backup.BackupOptions{
			OutputPath: filepath.Join(dir, "backup-"+string(rune('a'+i))+".flashdeck.zip"),
		})
		require.NoError(t, err)
	}

	removed, err := svc.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRestore_FullIntoFreshProfile(t *testing.T) {
	ctx := context.Background()
	src := newProfile(t)
	seedProfile(t, src)

	created, err := backup.NewBackupService(src.records, src.media, t.TempDir(), "test", quietLogger()).
		Create(ctx, backup.DefaultBackupOptions())
	require.NoError(t, err)

	dst := newProfile(t)
	// Stale data the full restore must replace
	require.True(t, dst.records.Set(ctx, domain.CollectionDecks, map[string]domain.Deck{
		"old": {ID: "old", Title: "Old"},
	}))

	restore := backup.NewRestoreService(dst.records, dst.media, quietLogger())
	result, err := restore.Restore(ctx, created.Path, backup.RestoreOptions{Mode: backup.RestoreModeFull})
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, result.Imported[domain.CollectionDecks])
	assert.Equal(t, 2, result.Imported["media"])

	got := decks(t, dst.records)
	require.Len(t, got, 1)
	assert.Equal(t, "Spanish verbs", got["d1"].Title)
	assert.Equal(t, []string{"spanish"}, got["d1"].Tags)
	assert.Len(t, dst.records.Get(ctx, domain.CollectionStudySessions), 1)

	blob := dst.media.Retrieve(ctx, mediastore.Images, "img1")
	require.NotNil(t, blob)
	assert.Equal(t, "image/png", blob.MIMEType)
	assert.Equal(t, pngBytes, blob.Data)
}

func TestRestore_DryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	src := newProfile(t)
	seedProfile(t, src)

	created, err := backup.NewBackupService(src.records, src.media, t.TempDir(), "test", quietLogger()).
		Create(ctx, backup.DefaultBackupOptions())
	require.NoError(t, err)

	dst := newProfile(t)
	result, err := backup.NewRestoreService(dst.records, dst.media, quietLogger()).
		Restore(ctx, created.Path, backup.RestoreOptions{Mode: backup.RestoreModeFull, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported[domain.CollectionDecks])

	assert.Empty(t, dst.records.Get(ctx, domain.CollectionDecks))
	assert.False(t, dst.media.Exists(ctx, mediastore.Images, "img1"))
}

func TestRestore_StudyOnly(t *testing.T) {
	ctx := context.Background()
	src := newProfile(t)
	seedProfile(t, src)

	created, err := backup.NewBackupService(src.records, src.media, t.TempDir(), "test", quietLogger()).
		Create(ctx, backup.DefaultBackupOptions())
	require.NoError(t, err)

	dst := newProfile(t)
	result, err := backup.NewRestoreService(dst.records, dst.media, quietLogger()).
		Restore(ctx, created.Path, backup.RestoreOptions{Mode: backup.RestoreModeStudyOnly})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported[domain.CollectionStudySessions])

	assert.Len(t, dst.records.Get(ctx, domain.CollectionStudySessions), 1)
	assert.Empty(t, dst.records.Get(ctx, domain.CollectionDecks))
	assert.False(t, dst.media.Exists(ctx, mediastore.Images, "img1"))
}

func TestRestore_RejectsBadOptions(t *testing.T) {
	dst := newProfile(t)
	restore := backup.NewRestoreService(dst.records, dst.media, quietLogger())

	_, err := restore.Restore(context.Background(), "unused.zip", backup.RestoreOptions{Mode: "events_only"})
	assert.Error(t, err)

	_, err = restore.Restore(context.Background(), "unused.zip", backup.RestoreOptions{Mode: backup.RestoreModeMerge, MergeStrategy: "oldest"})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	src := newProfile(t)
	seedProfile(t, src)

	created, err := backup.NewBackupService(src.records, src.media, t.TempDir(), "test", quietLogger()).
		Create(ctx, backup.DefaultBackupOptions())
	require.NoError(t, err)

	restore := backup.NewRestoreService(src.records, src.media, quietLogger())

	result, err := restore.Validate(ctx, created.Path)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Warnings)
	require.NotNil(t, result.Manifest)
	assert.Equal(t, "test", result.Manifest.FlashDeckVersion)
	assert.Equal(t, 1, result.ExpectedCounts.Decks)

	bogus := filepath.Join(t.TempDir(), "bogus.zip")
	require.NoError(t, os.WriteFile(bogus, []byte("not a zip"), 0o644))
	result, err = restore.Validate(ctx, bogus)
	require.NoError(t, err)
	assert.False(t, result.Valid)

	_, err = restore.Restore(ctx, bogus, backup.RestoreOptions{Mode: backup.RestoreModeFull})
	assert.Error(t, err)
}

func TestValidate_MissingManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, zip.NewWriter(f).Close())
	require.NoError(t, f.Close())

	dst := newProfile(t)
	restore := backup.NewRestoreService(dst.records, dst.media, quietLogger())

	result, err := restore.Validate(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, result.Valid)

	_, err = restore.Restore(context.Background(), path, backup.RestoreOptions{Mode: backup.RestoreModeFull})
	assert.ErrorIs(t, err, backup.ErrInvalidManifest)
}
