package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/flashdeck/flashdeck/internal/util"
)

// SearchParams configures a deck search.
type SearchParams struct {
	Query string

	// Filters
	Tags       []string // Decks must carry every tag
	AuthorID   string
	PublicOnly bool // Only public or published decks

	// Pagination
	Limit  int
	Offset int

	// "relevance", "title", "recent"
	SortBy        string
	IncludeFacets bool
}

// DefaultSearchParams returns sensible defaults.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		Limit:  20,
		SortBy: "relevance",
	}
}

// SearchResult holds the hits of one search.
type SearchResult struct {
	Query  string       `json:"query"`
	Total  uint64       `json:"total"`
	TookMs int64        `json:"took_ms"`
	Hits   []SearchHit  `json:"hits"`
	Tags   []FacetCount `json:"tags,omitempty"`
}

// SearchHit is a single matching deck.
type SearchHit struct {
	ID         string   `json:"id"`
	Score      float64  `json:"score"`
	Title      string   `json:"title"`
	AuthorName string   `json:"author_name,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// FacetCount is a facet value and its count.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Search executes a search query.
func (s *SearchIndex) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if params.Limit <= 0 {
		params.Limit = DefaultSearchParams().Limit
	}

	searchRequest := bleve.NewSearchRequestOptions(buildSearchQuery(params), params.Limit, params.Offset, false)
	addSorting(searchRequest, params)
	if params.IncludeFacets {
		searchRequest.AddFacet("tags", bleve.NewFacetRequest("tags", 20))
	}
	searchRequest.Fields = []string{"title", "author_name", "tags"}

	searchResult, err := s.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &SearchResult{
		Query:  params.Query,
		Total:  searchResult.Total,
		TookMs: searchResult.Took.Milliseconds(),
		Hits:   make([]SearchHit, 0, len(searchResult.Hits)),
	}

	for _, hit := range searchResult.Hits {
		searchHit := SearchHit{
			ID:    hit.ID,
			Score: hit.Score,
		}
		if t, ok := hit.Fields["title"].(string); ok {
			searchHit.Title = t
		}
		if a, ok := hit.Fields["author_name"].(string); ok {
			searchHit.AuthorName = a
		}
		searchHit.Tags = storedStrings(hit.Fields["tags"])
		result.Hits = append(result.Hits, searchHit)
	}

	if facet, ok := searchResult.Facets["tags"]; ok && facet.Terms != nil {
		for _, term := range facet.Terms.Terms() {
			result.Tags = append(result.Tags, FacetCount{Value: term.Term, Count: term.Count})
		}
	}

	return result, nil
}

// SearchDecks returns the ids of decks matching q, best match first.
func (s *SearchIndex) SearchDecks(ctx context.Context, q string, limit int) ([]string, error) {
	params := DefaultSearchParams()
	params.Query = q
	if limit > 0 {
		params.Limit = limit
	}

	result, err := s.Search(ctx, params)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(result.Hits))
	for i, hit := range result.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// buildSearchQuery constructs the Bleve query from params.
func buildSearchQuery(params SearchParams) query.Query {
	var queries []query.Query

	if text := strings.TrimSpace(params.Query); text != "" {
		textQueries := []query.Query{}

		titleMatch := bleve.NewMatchQuery(text)
		titleMatch.SetField("title")
		titleMatch.SetBoost(3.0)
		textQueries = append(textQueries, titleMatch)

		descMatch := bleve.NewMatchQuery(text)
		descMatch.SetField("description")
		textQueries = append(textQueries, descMatch)

		authorMatch := bleve.NewMatchQuery(text)
		authorMatch.SetField("author_name")
		authorMatch.SetBoost(0.5)
		textQueries = append(textQueries, authorMatch)

		tagTerm := bleve.NewTermQuery(util.TagKey(text))
		tagTerm.SetField("tags")
		tagTerm.SetBoost(2.0)
		textQueries = append(textQueries, tagTerm)

		// Typo tolerance on single words only; fuzzy queries are not analyzed.
		if !strings.ContainsAny(text, " \t") {
			fuzzyQuery := bleve.NewFuzzyQuery(strings.ToLower(text))
			fuzzyQuery.SetFuzziness(1)
			fuzzyQuery.SetField("title")
			fuzzyQuery.SetBoost(0.8)
			textQueries = append(textQueries, fuzzyQuery)

			if len(text) >= 2 {
				prefixQuery := bleve.NewPrefixQuery(strings.ToLower(text))
				prefixQuery.SetField("title")
				prefixQuery.SetBoost(0.5)
				textQueries = append(textQueries, prefixQuery)
			}
		}

		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	for _, tag := range params.Tags {
		tq := bleve.NewTermQuery(util.TagKey(tag))
		tq.SetField("tags")
		queries = append(queries, tq)
	}

	if params.AuthorID != "" {
		aq := bleve.NewTermQuery(params.AuthorID)
		aq.SetField("author_id")
		queries = append(queries, aq)
	}

	if params.PublicOnly {
		public := bleve.NewBoolFieldQuery(true)
		public.SetField("is_public")
		published := bleve.NewBoolFieldQuery(true)
		published.SetField("is_published")
		queries = append(queries, bleve.NewDisjunctionQuery(public, published))
	}

	if len(queries) == 0 {
		return bleve.NewMatchAllQuery()
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewConjunctionQuery(queries...)
}

// addSorting configures sort order.
func addSorting(req *bleve.SearchRequest, params SearchParams) {
	switch params.SortBy {
	case "title":
		req.SortBy([]string{"title", "-_score"})
	case "recent":
		req.SortBy([]string{"-updated_at"})
	default:
		req.SortBy([]string{"-_score"})
	}
}

// storedStrings reads a stored field that holds one or many values.
func storedStrings(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
