// Package mediabridge converts between inline data-URI media embedded in
// records and blobs referenced by media id in the media store.
package mediabridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/flashdeck/flashdeck/internal/datauri"
	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/id"
	"github.com/flashdeck/flashdeck/internal/logger"
	"github.com/flashdeck/flashdeck/internal/mediastore"
)

// Bridge migrates inline media into the media store and hydrates references
// back into inline form for display. Failures are logged and leave the inline
// value authoritative; no method returns an error.
type Bridge struct {
	media  *mediastore.Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// WithClock overrides the time source used for media ids.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

// New creates a Bridge over media.
func New(media *mediastore.Store, opts ...Option) *Bridge {
	b := &Bridge{media: media, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logger.OrDiscard(b.logger)
	return b
}

// Media returns the underlying media store.
func (b *Bridge) Media() *mediastore.Store {
	return b.media
}

// IsInlineEncoded reports whether value is inline media that needs migration.
func IsInlineEncoded(value string) bool {
	return datauri.IsInlineEncoded(value)
}

func idKind(kind domain.MediaKind) id.MediaKind {
	if kind == domain.KindAudio {
		return id.MediaAudio
	}
	return id.MediaImage
}

// migrated is the outcome of storing one inline value.
type migrated struct {
	ref  string
	blob mediastore.Blob
}

func (b *Bridge) migrate(ctx context.Context, kind domain.MediaKind, inline string) (migrated, bool) {
	if !datauri.IsInlineEncoded(inline) {
		return migrated{}, false
	}

	mimeType, data, err := datauri.Decode(inline)
	if err != nil {
		b.logger.Warn("media migration failed: undecodable payload", "kind", kind, "error", err)
		return migrated{}, false
	}

	mediaID, err := id.NewMediaID(idKind(kind), b.now())
	if err != nil {
		b.logger.Error("media migration failed: id generation", "kind", kind, "error", err)
		return migrated{}, false
	}

	blob := mediastore.Blob{Data: data, MIMEType: mimeType}
	if !b.media.Store(ctx, mediastore.PartitionFor(kind), mediaID, blob) {
		b.logger.Warn("media migration failed: store rejected blob", "kind", kind, "media_id", mediaID)
		return migrated{}, false
	}
	return migrated{ref: mediaID, blob: blob}, true
}

// MigrateField stores an inline value as a new blob and returns its media id.
// It returns ok=false when value is not inline media or the migration failed.
func (b *Bridge) MigrateField(ctx context.Context, kind domain.MediaKind, value string) (mediaID string, ok bool) {
	m, ok := b.migrate(ctx, kind, value)
	return m.ref, ok
}

// HydrateField returns the inline form of a referenced blob.
func (b *Bridge) HydrateField(ctx context.Context, kind domain.MediaKind, ref string) (string, bool) {
	if ref == "" {
		return "", false
	}
	blob := b.media.Retrieve(ctx, mediastore.PartitionFor(kind), ref)
	if blob == nil {
		return "", false
	}
	mimeType := blob.MIMEType
	if mimeType == "" {
		mimeType = mimetype.Detect(blob.Data).String()
	}
	return datauri.Encode(mimeType, blob.Data), true
}

// Hydrate fills the inline value of every referenced slot of owner, which
// should be a copy owned by the caller. Slots whose blob is missing keep
// whatever inline value they already had.
func (b *Bridge) Hydrate(ctx context.Context, owner domain.MediaOwner) {
	for _, slot := range owner.MediaSlots() {
		if inline, ok := b.HydrateField(ctx, slot.Kind, *slot.Ref); ok {
			*slot.Inline = inline
		}
	}
}

// HydrateSide returns a copy of side with referenced media inlined.
func (b *Bridge) HydrateSide(ctx context.Context, side domain.Side) domain.Side {
	card := domain.Flashcard{Front: side}
	for _, slot := range card.MediaSlots()[:2] {
		if inline, ok := b.HydrateField(ctx, slot.Kind, *slot.Ref); ok {
			*slot.Inline = inline
		}
	}
	return card.Front
}

// ReconcileSide returns a copy of side whose inline-only media has been
// migrated and whose dangling references have been re-migrated from the
// inline copy. The inline values are kept for display.
func (b *Bridge) ReconcileSide(ctx context.Context, side domain.Side) (domain.Side, bool) {
	card := domain.Flashcard{Front: side}
	changed := false
	for _, slot := range card.MediaSlots()[:2] {
		if ref, ok := b.reconcileSlot(ctx, slot); ok {
			*slot.Ref = ref
			changed = true
		}
	}
	return card.Front, changed
}

// reconcileSlot returns a new reference for slot when it needs one: inline
// media without a reference, or a reference whose blob is gone while the
// inline copy is still present.
func (b *Bridge) reconcileSlot(ctx context.Context, slot domain.MediaSlot) (string, bool) {
	if !datauri.IsInlineEncoded(*slot.Inline) {
		return "", false
	}
	if *slot.Ref != "" && b.media.Exists(ctx, mediastore.PartitionFor(slot.Kind), *slot.Ref) {
		return "", false
	}
	m, ok := b.migrate(ctx, slot.Kind, *slot.Inline)
	return m.ref, ok
}

// Prefetch warms the media cache for every reference held by owner without
// blocking.
func (b *Bridge) Prefetch(owner domain.MediaOwner) {
	for _, ref := range domain.MediaRefs(owner) {
		b.media.Prefetch(mediastore.PartitionFor(ref.Kind), ref.ID)
	}
}

// Remove deletes the blobs behind refs. It reports whether every removal succeeded.
func (b *Bridge) Remove(ctx context.Context, refs ...domain.MediaRef) bool {
	ok := true
	for _, ref := range refs {
		if ref.ID == "" {
			continue
		}
		if !b.media.Remove(ctx, mediastore.PartitionFor(ref.Kind), ref.ID) {
			ok = false
		}
	}
	return ok
}

// Exists reports whether the blob behind ref is present.
func (b *Bridge) Exists(ctx context.Context, ref domain.MediaRef) bool {
	return b.media.Exists(ctx, mediastore.PartitionFor(ref.Kind), ref.ID)
}
