package mediabridge

import (
	"context"
	"maps"
	"slices"

	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/store"
)

// Stats summarizes the media state of one collection.
type Stats struct {
	Records int `json:"records"`
	// InlineOnly counts records with at least one slot still waiting for migration.
	InlineOnly int `json:"inlineOnly"`
	// Referenced counts slots holding a media reference.
	Referenced int `json:"referenced"`
	// Dual counts referenced slots that still carry an inline copy.
	Dual int `json:"dual"`
	// Dangling counts references whose blob is missing.
	Dangling int `json:"dangling"`
}

func (s *Stats) add(o Stats) {
	s.Records += o.Records
	s.InlineOnly += o.InlineOnly
	s.Referenced += o.Referenced
	s.Dual += o.Dual
	s.Dangling += o.Dangling
}

// Target is one media-owning collection the Migrator maintains.
type Target interface {
	Name() string
	// Pending returns the ids of records with inline-only media, in id order.
	Pending(ctx context.Context) []string
	Reconcile(ctx context.Context, id string, mode Mode) (int, error)
	// CleanupInline blanks inline copies whose reference is confirmed present.
	CleanupInline(ctx context.Context) (int, error)
	Refs(ctx context.Context) []domain.MediaRef
	Stats(ctx context.Context) Stats
}

type target[T any, P Owner[T]] struct {
	bridge *Bridge
	coll   *store.Collection[T]
}

// NewTarget adapts a typed collection to a Target.
func NewTarget[T any, P Owner[T]](b *Bridge, coll *store.Collection[T]) Target {
	return &target[T, P]{bridge: b, coll: coll}
}

func (t *target[T, P]) Name() string {
	return t.coll.Name()
}

func (t *target[T, P]) Pending(ctx context.Context) []string {
	records := t.coll.All(ctx)
	var ids []string
	for _, id := range slices.Sorted(maps.Keys(records)) {
		record := records[id]
		if slices.ContainsFunc(P(&record).MediaSlots(), domain.MediaSlot.NeedsMigration) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (t *target[T, P]) Reconcile(ctx context.Context, id string, mode Mode) (int, error) {
	return Reconcile[T, P](ctx, t.bridge, t.coll, id, mode)
}

type slotKey struct {
	id   string
	slot string
}

func (t *target[T, P]) CleanupInline(ctx context.Context) (int, error) {
	// Confirm blobs outside the record store lock.
	confirmed := make(map[slotKey]domain.MediaSlot)
	records := t.coll.All(ctx)
	for id, record := range records {
		for _, slot := range P(&record).MediaSlots() {
			if !slot.HasBoth() {
				continue
			}
			if t.bridge.Exists(ctx, domain.MediaRef{Kind: slot.Kind, ID: *slot.Ref}) {
				confirmed[slotKey{id, slot.Name}] = slot
			}
		}
	}
	if len(confirmed) == 0 {
		return 0, nil
	}

	cleaned := 0
	err := t.coll.Store().Update(ctx, func(tx *store.Tx) error {
		cleaned = 0
		current := store.Load[T](tx, t.coll.Name())
		for id, record := range current {
			changed := false
			for _, slot := range P(&record).MediaSlots() {
				seen, ok := confirmed[slotKey{id, slot.Name}]
				if !ok || *slot.Ref != *seen.Ref || *slot.Inline != *seen.Inline {
					continue
				}
				*slot.Inline = ""
				changed = true
				cleaned++
			}
			if changed {
				current[id] = record
			}
		}
		return store.Stage(tx, t.coll.Name(), current)
	})
	if err != nil {
		return 0, err
	}
	return cleaned, nil
}

func (t *target[T, P]) Refs(ctx context.Context) []domain.MediaRef {
	var refs []domain.MediaRef
	for _, record := range t.coll.All(ctx) {
		refs = append(refs, domain.MediaRefs(P(&record))...)
	}
	return refs
}

func (t *target[T, P]) Stats(ctx context.Context) Stats {
	var s Stats
	for _, record := range t.coll.All(ctx) {
		s.Records++
		pending := false
		for _, slot := range P(&record).MediaSlots() {
			if slot.NeedsMigration() {
				pending = true
			}
			if *slot.Ref == "" {
				continue
			}
			s.Referenced++
			if slot.HasBoth() {
				s.Dual++
			}
			if !t.bridge.Exists(ctx, domain.MediaRef{Kind: slot.Kind, ID: *slot.Ref}) {
				s.Dangling++
			}
		}
		if pending {
			s.InlineOnly++
		}
	}
	return s
}
