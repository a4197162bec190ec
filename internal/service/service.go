// Package service provides the CRUD and sharing operations of a flashcard
// profile. Services write records synchronously and hand media work to a
// per-record write queue, so an operation returns before its media is stored.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/flashdeck/flashdeck/internal/auth"
	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/errors"
	"github.com/flashdeck/flashdeck/internal/logger"
	"github.com/flashdeck/flashdeck/internal/mediabridge"
	"github.com/flashdeck/flashdeck/internal/store"
	"github.com/flashdeck/flashdeck/internal/validation"
	"github.com/flashdeck/flashdeck/internal/writequeue"
)

// DefaultShareExpiryDays is used when a share code is created without an expiry.
const DefaultShareExpiryDays = 7

// Records bundles the typed collections of one profile.
type Records struct {
	Store         *store.Store
	Users         *store.Collection[domain.User]
	Decks         *store.Collection[domain.Deck]
	Themes        *store.Collection[domain.Theme]
	Flashcards    *store.Collection[domain.Flashcard]
	StudySessions *store.Collection[domain.StudySession]
	ShareCodes    *store.Collection[domain.ShareCode]
}

// NewRecords creates the collections over s.
func NewRecords(s *store.Store) *Records {
	return &Records{
		Store:         s,
		Users:         store.NewCollection(s, domain.CollectionUsers, func(u *domain.User) string { return u.ID }),
		Decks:         store.NewCollection(s, domain.CollectionDecks, func(d *domain.Deck) string { return d.ID }),
		Themes:        store.NewCollection(s, domain.CollectionThemes, func(t *domain.Theme) string { return t.ID }),
		Flashcards:    store.NewCollection(s, domain.CollectionFlashcards, func(f *domain.Flashcard) string { return f.ID }),
		StudySessions: store.NewCollection(s, domain.CollectionStudySessions, func(ss *domain.StudySession) string { return ss.ID }),
		ShareCodes:    store.NewCollection(s, domain.CollectionShareCodes, func(c *domain.ShareCode) string { return c.Code }),
	}
}

// MediaTargets returns the media-owning collections for batch maintenance.
func (r *Records) MediaTargets(b *mediabridge.Bridge) []mediabridge.Target {
	return []mediabridge.Target{
		mediabridge.NewTarget[domain.Flashcard](b, r.Flashcards),
		mediabridge.NewTarget[domain.Deck](b, r.Decks),
		mediabridge.NewTarget[domain.Theme](b, r.Themes),
		mediabridge.NewTarget[domain.User](b, r.Users),
	}
}

// Media schedules the deferred media work of the services. Every task for a
// record runs on that record's write-queue lane, one at a time and in order.
type Media struct {
	bridge *mediabridge.Bridge
	queue  *writequeue.Queue
	logger *slog.Logger
}

// NewMedia creates a Media scheduler.
func NewMedia(bridge *mediabridge.Bridge, queue *writequeue.Queue, l *slog.Logger) *Media {
	return &Media{bridge: bridge, queue: queue, logger: logger.OrDiscard(l)}
}

// Bridge returns the media bridge.
func (m *Media) Bridge() *mediabridge.Bridge {
	return m.bridge
}

// Settle waits until every scheduled media task has finished.
func (m *Media) Settle(ctx context.Context) error {
	return m.queue.Settle(ctx)
}

// SettleRecord waits until the media tasks of one record have finished.
func (m *Media) SettleRecord(ctx context.Context, collection, id string) error {
	return m.queue.SettleKey(ctx, mediabridge.QueueKey(collection, id))
}

func (m *Media) enqueue(collection, id string, task writequeue.Task) {
	if err := m.queue.Enqueue(mediabridge.QueueKey(collection, id), task); err != nil {
		m.logger.Warn("media task dropped", "collection", collection, "id", id, "error", err)
	}
}

// release deletes blobs a record no longer references.
func (m *Media) release(collection, id string, refs []domain.MediaRef) {
	if len(refs) == 0 {
		return
	}
	m.enqueue(collection, id, func(ctx context.Context) error {
		if !m.bridge.Remove(ctx, refs...) {
			return errors.StorageFailuref("remove %d blobs released by %s %s", len(refs), collection, id)
		}
		return nil
	})
}

// reconcile migrates the inline media of a stored record and attaches the
// references once the blobs are stored. Records without inline media are skipped.
func reconcile[T any, P mediabridge.Owner[T]](m *Media, coll *store.Collection[T], id string, record P) {
	if !hasInlineMedia(record) {
		return
	}
	m.enqueue(coll.Name(), id, func(ctx context.Context) error {
		_, err := mediabridge.Reconcile[T, P](ctx, m.bridge, coll, id, mediabridge.StripInline)
		return err
	})
}

// prefetch warms the media cache for a record about to be rendered.
func (m *Media) prefetch(owner domain.MediaOwner) {
	m.bridge.Prefetch(owner)
}

func hasInlineMedia(owner domain.MediaOwner) bool {
	for _, slot := range owner.MediaSlots() {
		if mediabridge.IsInlineEncoded(*slot.Inline) {
			return true
		}
	}
	return false
}

// releasedRefs returns the references held by before that after dropped.
func releasedRefs(before, after domain.MediaOwner) []domain.MediaRef {
	kept := make(map[string]struct{})
	for _, ref := range domain.MediaRefs(after) {
		kept[ref.ID] = struct{}{}
	}
	var released []domain.MediaRef
	for _, ref := range domain.MediaRefs(before) {
		if _, ok := kept[ref.ID]; !ok {
			released = append(released, ref)
		}
	}
	return released
}

// errNeedsDisplay aborts an update that kept a reference next to an unfamiliar
// inline value, so the referenced blobs can be read outside the store lock.
var errNeedsDisplay = errors.New("referenced media needed to classify update")

// updateRecord applies fn to a stored record in one atomic read-modify-write.
// A slot given a new inline value loses its old reference even when the
// incoming record still carries it. Blobs the edit stopped referencing are
// deleted, then any new inline media is migrated, both on the record's queue
// lane in that order.
func updateRecord[T any, P mediabridge.Owner[T]](ctx context.Context, m *Media, coll *store.Collection[T], id string, fn func(*store.Tx, P) error) (*T, error) {
	var (
		displays map[string]string
		pending  []domain.MediaRef
		released []domain.MediaRef
	)
	for {
		updated, err := coll.UpdateTx(ctx, id, func(tx *store.Tx, record *T) error {
			before := *record
			if err := fn(tx, P(record)); err != nil {
				return err
			}
			if displays == nil {
				if pending = ambiguousRefs(P(&before), P(record)); len(pending) > 0 {
					return errNeedsDisplay
				}
			}
			dropReplacedRefs(P(&before), P(record), displays)
			released = releasedRefs(P(&before), P(record))
			return nil
		})
		if errors.Is(err, errNeedsDisplay) {
			displays = m.displays(ctx, pending)
			continue
		}
		if err != nil {
			return nil, err
		}
		m.release(coll.Name(), id, released)
		reconcile[T, P](m, coll, id, P(updated))
		return updated, nil
	}
}

// ambiguousRefs returns the stored references that after keeps next to an
// inline value the stored record does not hold.
func ambiguousRefs(before, after domain.MediaOwner) []domain.MediaRef {
	var refs []domain.MediaRef
	for _, slot := range after.MediaSlots() {
		if stored, ok := domain.Slot(before, slot.Name); ok && domain.AmbiguousRef(stored, slot) {
			refs = append(refs, domain.MediaRef{Kind: stored.Kind, ID: *stored.Ref})
		}
	}
	return refs
}

// dropReplacedRefs clears the reference of every slot the edit gave a new
// inline value. displays maps a reference to the value it hydrates to.
func dropReplacedRefs(before, after domain.MediaOwner, displays map[string]string) {
	for _, slot := range after.MediaSlots() {
		stored, ok := domain.Slot(before, slot.Name)
		if !ok || *slot.Ref == "" {
			continue
		}
		if domain.CompareSlot(stored, slot, displays[*stored.Ref]) != domain.SlotReplaced {
			continue
		}
		*slot.Ref = ""
		if slot.BlurHash != nil {
			*slot.BlurHash = ""
		}
	}
}

// displays hydrates refs. A blob that cannot be read is left out, which makes
// any inline value next to it count as new.
func (m *Media) displays(ctx context.Context, refs []domain.MediaRef) map[string]string {
	out := make(map[string]string, len(refs))
	for _, ref := range refs {
		if value, ok := m.bridge.HydrateField(ctx, ref.Kind, ref.ID); ok {
			out[ref.ID] = value
		}
	}
	return out
}

// config holds the settings shared by every service.
type config struct {
	logger          *slog.Logger
	now             func() time.Time
	validator       *validation.Validator
	hasher          *auth.Hasher
	shareExpiryDays int
	index           DeckIndex
	loginLimiter    LoginLimiter
}

// LoginLimiter throttles login attempts per account.
type LoginLimiter interface {
	Allow(key string) bool
}

// Option configures a service.
type Option func(*config)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithHasher overrides the password hasher.
func WithHasher(h *auth.Hasher) Option {
	return func(c *config) { c.hasher = h }
}

// WithShareExpiryDays sets the expiry used when a share code is created without one.
func WithShareExpiryDays(days int) Option {
	return func(c *config) { c.shareExpiryDays = days }
}

// WithLoginLimiter throttles logins per email address.
func WithLoginLimiter(l LoginLimiter) Option {
	return func(c *config) { c.loginLimiter = l }
}

// WithIndex sets the deck search index.
func WithIndex(index DeckIndex) Option {
	return func(c *config) { c.index = index }
}

func newConfig(opts []Option) config {
	c := config{
		now:             time.Now,
		validator:       validation.New(),
		hasher:          auth.NewHasher(auth.DefaultParams),
		shareExpiryDays: DefaultShareExpiryDays,
	}
	for _, opt := range opts {
		opt(&c)
	}
	c.logger = logger.OrDiscard(c.logger)
	return c
}

func requireSession(sess *domain.Session) error {
	if sess == nil || sess.UserID == "" {
		return errors.Unauthorized("no active session")
	}
	return nil
}
