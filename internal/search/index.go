package search

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/flashdeck/flashdeck/internal/domain"
)

// SearchIndex wraps a Bleve index of deck documents.
//
// All public methods are safe for concurrent use. The mutex guards the index
// handle while Rebuild swaps it.
type SearchIndex struct {
	index  bleve.Index
	path   string
	logger *slog.Logger
	mu     sync.RWMutex
}

// Options configures the search index.
type Options struct {
	DataPath string       // Directory for index storage
	Logger   *slog.Logger // Uses a stderr text logger if nil
}

// mappingVersion is incremented whenever the index mapping changes.
// A mismatch with the version file triggers a rebuild on open.
const mappingVersion = "1"

// NewSearchIndex opens the index under opts.DataPath, creating it if needed.
// A corrupted index or one built with an older mapping is removed and
// recreated empty; callers repopulate it with IndexDecks.
func NewSearchIndex(opts Options) (*SearchIndex, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	indexPath := filepath.Join(opts.DataPath, "decks.bleve")
	versionPath := filepath.Join(opts.DataPath, "decks.version")

	var index bleve.Index
	var err error
	needsRebuild := false

	indexExists := false
	if _, statErr := os.Stat(indexPath); statErr == nil {
		indexExists = true
	}

	if indexExists {
		existingVersion, readErr := os.ReadFile(versionPath)
		if readErr != nil {
			logger.Info("search index has no version file, will rebuild with current mapping",
				"new_version", mappingVersion,
			)
			needsRebuild = true
		} else if string(existingVersion) != mappingVersion {
			logger.Info("search index mapping version changed, will rebuild",
				"old_version", string(existingVersion),
				"new_version", mappingVersion,
			)
			needsRebuild = true
		}
	}

	if !needsRebuild && indexExists {
		index, err = bleve.Open(indexPath)
		if err != nil {
			logger.Warn("failed to open existing index, will recreate",
				"path", indexPath,
				"error", err,
			)
			needsRebuild = true
		}
	}

	if needsRebuild {
		if removeErr := os.RemoveAll(indexPath); removeErr != nil {
			return nil, fmt.Errorf("remove old index: %w", removeErr)
		}
		index = nil
	}

	if index == nil {
		if mkErr := os.MkdirAll(opts.DataPath, 0o755); mkErr != nil {
			return nil, fmt.Errorf("create index directory: %w", mkErr)
		}
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		if writeErr := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); writeErr != nil {
			logger.Warn("failed to write search version file", "error", writeErr)
		}
		logger.Info("created new search index", "path", indexPath, "mapping_version", mappingVersion)
	} else {
		logger.Info("opened existing search index", "path", indexPath)
	}

	return &SearchIndex{
		index:  index,
		path:   indexPath,
		logger: logger,
	}, nil
}

// Close closes the index and releases resources.
func (s *SearchIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// IndexDeck indexes or replaces a single deck.
func (s *SearchIndex) IndexDeck(deck *domain.Deck) error {
	return s.IndexDocument(DeckToDocument(deck))
}

// DeleteDeck removes a deck from the index. Unknown ids are not an error.
func (s *SearchIndex) DeleteDeck(deckID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Delete(deckID)
}

// IndexDocument indexes a single document.
func (s *SearchIndex) IndexDocument(doc *DeckDocument) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Index(doc.ID, doc.ToMap())
}

// IndexDecks indexes decks in batches of 500.
func (s *SearchIndex) IndexDecks(decks []domain.Deck) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const batchSize = 500

	for i := 0; i < len(decks); i += batchSize {
		end := min(i+batchSize, len(decks))

		batch := s.index.NewBatch()
		for j := i; j < end; j++ {
			doc := DeckToDocument(&decks[j])
			if err := batch.Index(doc.ID, doc.ToMap()); err != nil {
				return fmt.Errorf("batch index %s: %w", doc.ID, err)
			}
		}

		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

// DocumentCount returns the total number of indexed decks.
func (s *SearchIndex) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// Rebuild drops the existing index and creates an empty one.
//
// This takes the exclusive lock and blocks every other operation until the new
// index exists.
func (s *SearchIndex) Rebuild() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}

	if err := os.RemoveAll(s.path); err != nil {
		return fmt.Errorf("remove index: %w", err)
	}

	index, err := bleve.New(s.path, buildIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	s.index = index
	s.logger.Info("rebuilt search index", "path", s.path)

	return nil
}
