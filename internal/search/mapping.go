package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve index mapping for deck documents.
//
// Title and description use English stemming. Tags are keywords so compound
// tags like "jlpt-n5" stay intact for filtering and faceting.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	// --- Text fields ---

	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = en.AnalyzerName
	titleFieldMapping.Store = true
	titleFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("title", titleFieldMapping)

	// Searchable but not stored.
	descFieldMapping := bleve.NewTextFieldMapping()
	descFieldMapping.Analyzer = en.AnalyzerName
	descFieldMapping.Store = false
	docMapping.AddFieldMappingsAt("description", descFieldMapping)

	// Names are not stemmed.
	authorFieldMapping := bleve.NewTextFieldMapping()
	authorFieldMapping.Analyzer = simple.Name
	authorFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("author_name", authorFieldMapping)

	// --- Keyword fields ---

	idFieldMapping := bleve.NewTextFieldMapping()
	idFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("id", idFieldMapping)

	authorIDFieldMapping := bleve.NewTextFieldMapping()
	authorIDFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("author_id", authorIDFieldMapping)

	tagsFieldMapping := bleve.NewTextFieldMapping()
	tagsFieldMapping.Analyzer = keyword.Name
	tagsFieldMapping.Store = true
	tagsFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("tags", tagsFieldMapping)

	// --- Flags ---

	for _, field := range []string{"is_public", "is_published", "is_shared"} {
		docMapping.AddFieldMappingsAt(field, bleve.NewBooleanFieldMapping())
	}

	// --- Numeric fields ---

	createdAtFieldMapping := bleve.NewNumericFieldMapping()
	createdAtFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("created_at", createdAtFieldMapping)

	updatedAtFieldMapping := bleve.NewNumericFieldMapping()
	updatedAtFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("updated_at", updatedAtFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}
