package mediabridge

import (
	"context"

	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/errors"
	"github.com/flashdeck/flashdeck/internal/store"
)

// Owner constrains record types whose pointer owns media slots.
type Owner[T any] interface {
	*T
	domain.MediaOwner
}

// Mode selects what happens to the inline copy once a reference is attached.
type Mode int

const (
	// StripInline clears the inline copy as the reference is attached.
	StripInline Mode = iota
	// KeepInline leaves the inline copy for a later cleanup pass.
	KeepInline
)

var errNothingToAttach = errors.New("nothing to attach")

// attachment is one slot change waiting to be written back to its record.
// inline and oldRef are the values the change was computed from.
type attachment struct {
	slot     string
	kind     domain.MediaKind
	inline   string
	oldRef   string
	newRef   string
	blurHash string
}

func (a attachment) created() (domain.MediaRef, bool) {
	return domain.MediaRef{Kind: a.kind, ID: a.newRef}, a.newRef != ""
}

// Reconcile migrates the inline media of one stored record and writes the
// new references back. The write back is a compare-and-set per slot: a slot
// edited while its blob was being stored keeps the edit, and the blob made
// for the stale value is deleted. It returns the number of references attached.
func Reconcile[T any, P Owner[T]](ctx context.Context, b *Bridge, coll *store.Collection[T], id string, mode Mode) (int, error) {
	snapshot, ok := coll.Get(ctx, id)
	if !ok {
		return 0, nil
	}

	pending := b.plan(ctx, P(snapshot), mode)
	if len(pending) == 0 {
		return 0, nil
	}

	attached := 0
	var orphans []domain.MediaRef
	_, err := coll.Update(ctx, id, func(record *T) error {
		changed := false
		for _, a := range pending {
			slot, ok := domain.Slot(P(record), a.slot)
			if !ok || *slot.Inline != a.inline || *slot.Ref != a.oldRef {
				if ref, ok := a.created(); ok {
					orphans = append(orphans, ref)
				}
				continue
			}
			if a.newRef != "" {
				*slot.Ref = a.newRef
				if slot.BlurHash != nil && a.blurHash != "" {
					*slot.BlurHash = a.blurHash
				}
				attached++
			}
			if mode == StripInline {
				*slot.Inline = ""
			}
			changed = true
		}
		if !changed {
			return errNothingToAttach
		}
		return nil
	})

	switch {
	case err == nil, errors.Is(err, errNothingToAttach):
	default:
		// The record is gone or the write failed; nothing references the new blobs.
		attached = 0
		orphans = orphans[:0]
		for _, a := range pending {
			if ref, ok := a.created(); ok {
				orphans = append(orphans, ref)
			}
		}
	}

	if len(orphans) > 0 {
		b.logger.Debug("discarding media for superseded values",
			"collection", coll.Name(),
			"id", id,
			"count", len(orphans),
		)
		b.Remove(ctx, orphans...)
	}

	if err != nil && !errors.Is(err, errNothingToAttach) && !errors.Is(err, errors.ErrNotFound) {
		return 0, errors.Wrapf(err, errors.CodeMigrationFailure, "attach media to %s %s", coll.Name(), id)
	}
	return attached, nil
}

// plan computes the slot changes for owner. Inline-only slots and slots whose
// referenced blob is missing are migrated now; slots whose blob is present
// only get their inline copy stripped in StripInline mode.
func (b *Bridge) plan(ctx context.Context, owner domain.MediaOwner, mode Mode) []attachment {
	var pending []attachment
	for _, slot := range owner.MediaSlots() {
		inline, ref := *slot.Inline, *slot.Ref
		if !IsInlineEncoded(inline) {
			continue
		}

		a := attachment{slot: slot.Name, kind: slot.Kind, inline: inline, oldRef: ref}
		if ref != "" && b.Exists(ctx, domain.MediaRef{Kind: slot.Kind, ID: ref}) {
			if mode == StripInline {
				pending = append(pending, a)
			}
			continue
		}

		m, ok := b.migrate(ctx, slot.Kind, inline)
		if !ok {
			continue
		}
		a.newRef = m.ref
		if slot.BlurHash != nil && slot.Kind == domain.KindImage {
			if hash, err := ComputeBlurHash(m.blob.Data); err == nil {
				a.blurHash = hash
			} else {
				b.logger.Debug("skipping blurhash", "slot", slot.Name, "error", err)
			}
		}
		pending = append(pending, a)
	}
	return pending
}
