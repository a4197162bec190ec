package stream

import (
	"archive/zip"
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"iter"
)

// ErrFileNotFound indicates a file was not found in the backup archive.
var ErrFileNotFound = errors.New("file not found in backup")

// maxLineSize bounds a single JSONL line. Records carry inline media, so lines
// can be far longer than bufio's default.
const maxLineSize = 64 << 20

// OpenFile finds and opens a file from a zip archive.
func OpenFile(zr *zip.Reader, path string) (io.ReadCloser, error) {
	for _, f := range zr.File {
		if f.Name == path {
			return f.Open()
		}
	}
	return nil, ErrFileNotFound
}

// Reader streams entities from a JSONL file in a zip archive.
type Reader[T any] struct {
	rc      io.ReadCloser
	scanner *bufio.Scanner
}

// NewReader creates a streaming reader for type T.
func NewReader[T any](rc io.ReadCloser) *Reader[T] {
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader[T]{
		rc:      rc,
		scanner: scanner,
	}
}

// All returns an iterator over all entities in the file.
func (r *Reader[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer r.rc.Close()

		for r.scanner.Scan() {
			line := r.scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var entity T
			if err := json.Unmarshal(line, &entity); err != nil {
				var zero T
				if !yield(zero, err) {
					return
				}
				continue // Try next line on parse error
			}
			if !yield(entity, nil) {
				return
			}
		}

		if err := r.scanner.Err(); err != nil {
			var zero T
			yield(zero, err)
		}
	}
}
