// Package search provides full-text search over deck metadata using Bleve.
// It supports fuzzy title matching, tag filtering and tag facets.
package search

import (
	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/util"
)

// DeckDocument is the indexed form of a deck. Media fields are never indexed.
type DeckDocument struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"` // Tag keys, see util.TagKey
	AuthorID    string   `json:"author_id"`
	AuthorName  string   `json:"author_name,omitempty"`
	IsPublic    bool     `json:"is_public"`
	IsPublished bool     `json:"is_published"`
	IsShared    bool     `json:"is_shared"`

	// Unix milliseconds for sorting by recency.
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// DeckToDocument converts a deck into its search document.
func DeckToDocument(d *domain.Deck) *DeckDocument {
	return &DeckDocument{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Tags:        tagKeys(d.Tags),
		AuthorID:    d.AuthorID,
		AuthorName:  d.AuthorName,
		IsPublic:    d.IsPublic,
		IsPublished: d.IsPublished,
		IsShared:    d.IsShared,
		CreatedAt:   d.CreatedAt.UnixMilli(),
		UpdatedAt:   d.UpdatedAt.UnixMilli(),
	}
}

// ToMap converts the document to a map keyed by the mapping's field names.
// Bleve reflects on struct field names, not json tags, so documents are
// always indexed through this map.
func (d *DeckDocument) ToMap() map[string]any {
	m := map[string]any{
		"id":           d.ID,
		"title":        d.Title,
		"author_id":    d.AuthorID,
		"is_public":    d.IsPublic,
		"is_published": d.IsPublished,
		"is_shared":    d.IsShared,
		"created_at":   float64(d.CreatedAt),
		"updated_at":   float64(d.UpdatedAt),
	}
	if d.Description != "" {
		m["description"] = d.Description
	}
	if len(d.Tags) > 0 {
		m["tags"] = d.Tags
	}
	if d.AuthorName != "" {
		m["author_name"] = d.AuthorName
	}
	return m
}

func tagKeys(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for _, t := range tags {
		if k := util.TagKey(t); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
