package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/flashdeck/flashdeck/internal/config"
	"github.com/flashdeck/flashdeck/internal/logger"
	"github.com/flashdeck/flashdeck/internal/search"
	"github.com/flashdeck/flashdeck/internal/service"
)

// SearchIndexHandle wraps the search index with shutdown capability.
type SearchIndexHandle struct {
	*search.SearchIndex
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideSearchIndex provides the Bleve deck index.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	index, err := search.NewSearchIndex(search.Options{
		DataPath: cfg.SearchPath(),
		Logger:   log.Logger,
	})
	if err != nil {
		return nil, err
	}

	docCount, _ := index.DocumentCount()
	log.Debug("Search index initialized", "documents", docCount)

	return &SearchIndexHandle{SearchIndex: index}, nil
}

// deckIndex returns the search index, or nil when search is disabled.
func deckIndex(i do.Injector) service.DeckIndex {
	cfg := do.MustInvoke[*config.Config](i)
	if !cfg.Search.Enabled {
		return nil
	}
	return do.MustInvoke[*SearchIndexHandle](i).SearchIndex
}

// ReindexDecksIfNeeded fills an empty index from the record store. A fresh or
// rebuilt index is empty while decks may already exist.
func ReindexDecksIfNeeded(i do.Injector) {
	cfg := do.MustInvoke[*config.Config](i)
	if !cfg.Search.Enabled {
		return
	}
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	records := do.MustInvoke[*service.Records](i)
	log := do.MustInvoke[*logger.Logger](i)

	docCount, _ := indexHandle.DocumentCount()
	if docCount > 0 {
		return
	}

	decks := records.Decks.Filter(context.Background(), nil)
	if len(decks) == 0 {
		return
	}

	log.Info("Search index is empty but decks exist, reindexing", "deck_count", len(decks))
	if err := indexHandle.IndexDecks(decks); err != nil {
		log.Error("Initial search reindex failed", "error", err)
	}
}
