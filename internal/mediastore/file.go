package mediastore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
)

const (
	blobExt = ".blob"
	mimeExt = ".mime"
)

// FileBackend stores each blob as a file under {basePath}/{partition}/{id}.blob.
// The MIME type is kept in a {id}.mime sidecar and sniffed from the content
// only when no sidecar exists.
// Thread-safe for concurrent operations.
type FileBackend struct {
	basePath string
	mu       sync.RWMutex // Protects file operations
}

// NewFileBackend creates the partition directories under basePath.
func NewFileBackend(basePath string) (*FileBackend, error) {
	if basePath == "" {
		return nil, errors.New("base path cannot be empty")
	}

	for _, p := range Partitions {
		dir := filepath.Join(basePath, string(p))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", p, err)
		}
	}

	return &FileBackend{basePath: basePath}, nil
}

// Put implements Backend. The file is written to a temp name and renamed so
// readers never see a partial blob.
func (f *FileBackend) Put(ctx context.Context, p Partition, id string, blob Blob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKey(p, id); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// The sidecar goes first so a visible blob never pairs with a stale type.
	if blob.MIMEType != "" {
		if err := writeFileAtomic(f.mimePath(p, id), []byte(blob.MIMEType)); err != nil {
			return fmt.Errorf("failed to write mime file: %w", err)
		}
	} else if err := os.Remove(f.mimePath(p, id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove mime file: %w", err)
	}

	if err := writeFileAtomic(f.Path(p, id), blob.Data); err != nil {
		return fmt.Errorf("failed to write blob file: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file next to path and renames it into
// place, so readers never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Get implements Backend.
func (f *FileBackend) Get(ctx context.Context, p Partition, id string) (*Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkKey(p, id); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(f.Path(p, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read blob file: %w", err)
	}

	mime, err := os.ReadFile(f.mimePath(p, id))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read mime file: %w", err)
	}
	if len(mime) == 0 {
		return &Blob{Data: data, MIMEType: mimetype.Detect(data).String()}, nil
	}
	return &Blob{Data: data, MIMEType: string(mime)}, nil
}

// Delete implements Backend.
func (f *FileBackend) Delete(ctx context.Context, p Partition, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKey(p, id); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.Path(p, id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob file: %w", err)
	}
	if err := os.Remove(f.mimePath(p, id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete mime file: %w", err)
	}
	return nil
}

// Exists implements Backend.
func (f *FileBackend) Exists(ctx context.Context, p Partition, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := checkKey(p, id); err != nil {
		return false, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	_, err := os.Stat(f.Path(p, id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat blob file: %w", err)
	}
	return true, nil
}

// List implements Backend.
func (f *FileBackend) List(ctx context.Context, p Partition) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !p.Valid() {
		return nil, fmt.Errorf("unknown partition %q", p)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(f.basePath, string(p)))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", p, err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), blobExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), blobExt))
	}
	slices.Sort(ids)
	return ids, nil
}

// Close implements Backend.
func (f *FileBackend) Close() error {
	return nil
}

// Path returns the full filesystem path of a blob.
func (f *FileBackend) Path(p Partition, id string) string {
	return filepath.Join(f.basePath, string(p), id+blobExt)
}

func (f *FileBackend) mimePath(p Partition, id string) string {
	return filepath.Join(f.basePath, string(p), id+mimeExt)
}
