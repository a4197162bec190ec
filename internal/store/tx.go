package store

import (
	"context"
	"encoding/json"

	"github.com/flashdeck/flashdeck/internal/errors"
)

// Tx is a set of collection writes that commit together.
type Tx struct {
	ctx    context.Context
	store  *Store
	staged map[string][]byte
}

// Context returns the context the transaction was started with.
func (tx *Tx) Context() context.Context {
	return tx.ctx
}

// Load decodes a collection as seen by tx, including changes staged earlier in
// the same transaction. Corrupt or unreadable documents load as empty.
func Load[T any](tx *Tx, name string) map[string]T {
	data, ok := tx.staged[name]
	if !ok {
		var err error
		data, ok, err = tx.store.backend.Read(tx.ctx, name)
		if err != nil {
			tx.store.logger.Error("failed to read collection", "collection", name, "error", err)
			return make(map[string]T)
		}
	}
	if !ok {
		return make(map[string]T)
	}

	var records map[string]T
	if err := json.Unmarshal(data, &records); err != nil {
		tx.store.logger.Error("failed to deserialize collection", "collection", name, "error", err)
		return make(map[string]T)
	}
	if records == nil {
		records = make(map[string]T)
	}
	return records
}

// Stage replaces a collection within tx. Nothing is written until commit.
func Stage[T any](tx *Tx, name string, records map[string]T) error {
	if records == nil {
		records = make(map[string]T)
	}
	data, err := json.Marshal(records)
	if err != nil {
		return errors.Wrapf(err, errors.CodeInternal, "serialize collection %s", name)
	}
	tx.staged[name] = data
	return nil
}

func (tx *Tx) commit() error {
	if len(tx.staged) == 0 {
		return nil
	}

	s := tx.store
	if s.quota > 0 {
		for name, data := range tx.staged {
			if len(data) > s.quota {
				qerr := &QuotaError{Collection: name, Size: len(data), Quota: s.quota}
				s.logger.Warn("collection write rejected", "collection", name, "error", qerr)
				return errors.Wrap(qerr, errors.CodeStorageFailure, "storage is full")
			}
		}
	}

	if err := s.backend.Write(tx.ctx, tx.staged); err != nil {
		names := make([]string, 0, len(tx.staged))
		for name := range tx.staged {
			names = append(names, name)
		}
		s.logger.Error("failed to write collections", "collections", names, "error", err)
		return errors.Wrap(err, errors.CodeStorageFailure, "failed to save records")
	}
	return nil
}
