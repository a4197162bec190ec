package mediabridge

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/errors"
	"github.com/flashdeck/flashdeck/internal/id"
	"github.com/flashdeck/flashdeck/internal/logger"
	"github.com/flashdeck/flashdeck/internal/mediastore"
	"github.com/flashdeck/flashdeck/internal/writequeue"
)

// DefaultGCGrace protects blobs stored this recently from garbage collection,
// since their record may not have been patched yet.
const DefaultGCGrace = 10 * time.Minute

// Report is the result of a scan, keyed by collection.
type Report struct {
	Collections map[string]Stats `json:"collections"`
	Total       Stats            `json:"total"`
}

// Migrator runs the batch media maintenance operations across collections.
type Migrator struct {
	bridge  *Bridge
	queue   *writequeue.Queue
	targets []Target
	logger  *slog.Logger
	grace   time.Duration
	now     func() time.Time
}

// MigratorOption configures a Migrator.
type MigratorOption func(*Migrator)

// WithMigratorLogger sets the logger.
func WithMigratorLogger(l *slog.Logger) MigratorOption {
	return func(m *Migrator) { m.logger = l }
}

// WithGCGrace overrides DefaultGCGrace.
func WithGCGrace(d time.Duration) MigratorOption {
	return func(m *Migrator) { m.grace = d }
}

// WithMigratorClock overrides the time source used for the GC grace window.
func WithMigratorClock(now func() time.Time) MigratorOption {
	return func(m *Migrator) { m.now = now }
}

// NewMigrator creates a Migrator. Record writes go through queue so they are
// serialized with the per-record tasks of the CRUD services.
func NewMigrator(b *Bridge, queue *writequeue.Queue, targets []Target, opts ...MigratorOption) *Migrator {
	m := &Migrator{
		bridge:  b,
		queue:   queue,
		targets: targets,
		grace:   DefaultGCGrace,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logger.OrDiscard(m.logger)
	return m
}

// QueueKey is the write-queue key for one record.
func QueueKey(collection, id string) string {
	return collection + "/" + id
}

// Scan reports the media state of every collection. It changes nothing.
func (m *Migrator) Scan(ctx context.Context) Report {
	r := Report{Collections: make(map[string]Stats, len(m.targets))}
	for _, t := range m.targets {
		s := t.Stats(ctx)
		r.Collections[t.Name()] = s
		r.Total.add(s)
	}
	return r
}

// MigrateAll moves every inline-only media value into the media store and
// attaches the references, keeping the inline copies. It returns the number
// of records that gained at least one reference. Running it again on an
// unchanged profile migrates nothing.
func (m *Migrator) MigrateAll(ctx context.Context) (int, error) {
	var migrated atomic.Int64
	for _, t := range m.targets {
		pending := t.Pending(ctx)
		m.logger.Info("migrating inline media", "collection", t.Name(), "records", len(pending))
		for _, recordID := range pending {
			err := m.queue.Enqueue(QueueKey(t.Name(), recordID), func(ctx context.Context) error {
				n, err := t.Reconcile(ctx, recordID, KeepInline)
				if n > 0 {
					migrated.Add(1)
				}
				return err
			})
			if err != nil {
				return int(migrated.Load()), err
			}
		}
	}
	if err := m.queue.Settle(ctx); err != nil {
		return int(migrated.Load()), err
	}
	return int(migrated.Load()), nil
}

// CleanupInline blanks the inline copy of every slot whose reference is
// confirmed present in the media store. It returns the number of slots blanked.
func (m *Migrator) CleanupInline(ctx context.Context) (int, error) {
	if err := m.queue.Settle(ctx); err != nil {
		return 0, err
	}
	total := 0
	for _, t := range m.targets {
		n, err := t.CleanupInline(ctx)
		if err != nil {
			return total, err
		}
		m.logger.Info("cleaned inline media", "collection", t.Name(), "slots", n)
		total += n
	}
	return total, nil
}

// CollectGarbage deletes blobs no record references. Blobs whose id says they
// were created within the grace window are kept. It returns the number deleted.
func (m *Migrator) CollectGarbage(ctx context.Context) (int, error) {
	if err := m.queue.Settle(ctx); err != nil {
		return 0, err
	}

	referenced := make(map[domain.MediaRef]struct{})
	for _, t := range m.targets {
		for _, ref := range t.Refs(ctx) {
			referenced[ref] = struct{}{}
		}
	}

	cutoff := m.now().Add(-m.grace)
	var deleted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range []domain.MediaKind{domain.KindImage, domain.KindAudio} {
		g.Go(func() error {
			ids, ok := m.bridge.Media().List(gctx, mediastore.PartitionFor(kind))
			if !ok {
				return errors.MigrationFailuref("list %s blobs", kind)
			}
			for _, mediaID := range ids {
				if _, ok := referenced[domain.MediaRef{Kind: kind, ID: mediaID}]; ok {
					continue
				}
				if _, created, ok := id.ParseMediaID(mediaID); ok && created.After(cutoff) {
					continue
				}
				if m.bridge.Remove(gctx, domain.MediaRef{Kind: kind, ID: mediaID}) {
					deleted.Add(1)
				}
			}
			return nil
		})
	}
	err := g.Wait()
	m.logger.Info("media garbage collected", "deleted", deleted.Load())
	return int(deleted.Load()), err
}
