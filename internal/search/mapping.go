package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve index mapping for letter documents.
//
// Names use the standard analyzer so prefixes and typos match the name as
// written. Messages use English stemming. Member is an exact keyword.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	nameFieldMapping := bleve.NewTextFieldMapping()
	nameFieldMapping.Analyzer = standard.Name
	nameFieldMapping.Store = true
	nameFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("name", nameFieldMapping)

	messageFieldMapping := bleve.NewTextFieldMapping()
	messageFieldMapping.Analyzer = en.AnalyzerName
	messageFieldMapping.Store = false
	messageFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("message", messageFieldMapping)

	songFieldMapping := bleve.NewTextFieldMapping()
	songFieldMapping.Analyzer = standard.Name
	songFieldMapping.Store = false
	docMapping.AddFieldMappingsAt("song", songFieldMapping)

	countryFieldMapping := bleve.NewTextFieldMapping()
	countryFieldMapping.Analyzer = standard.Name
	countryFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("country", countryFieldMapping)

	// Exact match only
	memberFieldMapping := bleve.NewKeywordFieldMapping()
	memberFieldMapping.Analyzer = keyword.Name
	memberFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("member", memberFieldMapping)

	idFieldMapping := bleve.NewKeywordFieldMapping()
	idFieldMapping.Store = true
	idFieldMapping.Index = false
	docMapping.AddFieldMappingsAt("id", idFieldMapping)

	timestampFieldMapping := bleve.NewNumericFieldMapping()
	timestampFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("timestamp", timestampFieldMapping)

	likesFieldMapping := bleve.NewNumericFieldMapping()
	likesFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("likes", likesFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}
