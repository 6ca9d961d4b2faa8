// Package document owns the canonical field set: names, storage
// classes, facet configuration, the schema version stamp, and the
// builder that turns an extracted file into an indexable document.
package document

import (
	"github.com/blevesearch/bleve/v2"
	keyword "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/mcplucene/mcplucene/internal/analysis"
)

// SchemaVersion is bumped whenever the indexed field shape changes. A
// committed index carrying a different value requires a full reindex.
const SchemaVersion = 5

// Field names. file_path doubles as the document id.
const (
	FieldFilePath      = "file_path"
	FieldContentHash   = "content_hash"
	FieldFileName      = "file_name"
	FieldFileExtension = "file_extension"
	FieldFileType      = "file_type"
	FieldFileSize      = "file_size"
	FieldCreatedDate   = "created_date"
	FieldModifiedDate  = "modified_date"
	FieldIndexedDate   = "indexed_date"
	FieldTitle         = "title"
	FieldAuthor        = "author"
	FieldCreator       = "creator"
	FieldSubject       = "subject"
	FieldKeywords      = "keywords"
	FieldLanguage      = "language"

	FieldContent           = "content"
	FieldContentReversed   = "content_reversed"
	FieldContentTranslitDE = "content_translit_de"
)

// FacetSuffix marks the exact-match shadow of a faceted field.
const FacetSuffix = "_facet"

// ScoreField is the pseudo sort field for relevance order.
const ScoreField = "_score"

// LemmaField names the lemma shadow for a language.
func LemmaField(lang string) string {
	return "content_lemma_" + lang
}

// FacetField names the exact-match shadow backing facet counts for dim.
func FacetField(dim string) string {
	return dim + FacetSuffix
}

// StorageClass describes how a field is indexed.
type StorageClass string

const (
	ClassText    StorageClass = "analyzed_text"
	ClassKeyword StorageClass = "exact_string"
	ClassNumeric StorageClass = "numeric_point"
	ClassFacet   StorageClass = "facet"
)

// FieldInfo backs the listIndexedFields surface.
type FieldInfo struct {
	Name     string       `json:"name"`
	Class    StorageClass `json:"class"`
	Analyzer string       `json:"analyzer,omitempty"`
	Stored   bool         `json:"stored"`
	Faceted  bool         `json:"faceted"`
}

// FacetDimension describes one drillable dimension.
type FacetDimension struct {
	Name        string
	Field       string
	MultiValued bool
}

// FacetDimensions lists every drillable dimension in stable order. The
// query planner consumes this so planning and indexing agree.
func FacetDimensions() []FacetDimension {
	return []FacetDimension{
		{Name: FieldAuthor, Field: FacetField(FieldAuthor), MultiValued: true},
		{Name: FieldCreator, Field: FacetField(FieldCreator), MultiValued: true},
		{Name: FieldSubject, Field: FacetField(FieldSubject), MultiValued: true},
		{Name: FieldLanguage, Field: FacetField(FieldLanguage), MultiValued: false},
		{Name: FieldFileExtension, Field: FacetField(FieldFileExtension), MultiValued: false},
		{Name: FieldFileType, Field: FacetField(FieldFileType), MultiValued: false},
	}
}

// FacetDimensionByName resolves a dimension, ok=false for non-faceted
// fields.
func FacetDimensionByName(name string) (FacetDimension, bool) {
	for _, d := range FacetDimensions() {
		if d.Name == name {
			return d, true
		}
	}
	return FacetDimension{}, false
}

// NumericFields are range-queryable point fields.
func NumericFields() map[string]bool {
	return map[string]bool{
		FieldFileSize:     true,
		FieldCreatedDate:  true,
		FieldModifiedDate: true,
		FieldIndexedDate:  true,
	}
}

// DateFields are the numeric fields holding epoch milliseconds.
func DateFields() []string {
	return []string{FieldCreatedDate, FieldModifiedDate, FieldIndexedDate}
}

// KeywordFields are exact-string filterable fields.
func KeywordFields() map[string]bool {
	return map[string]bool{
		FieldFilePath:    true,
		FieldContentHash: true,
	}
}

// SortableFields maps the tool-surface sort names to index fields.
func SortableFields() map[string]bool {
	return map[string]bool{
		ScoreField:        true,
		FieldModifiedDate: true,
		FieldCreatedDate:  true,
		FieldFileSize:     true,
	}
}

// ListFields reports the full schema for the listIndexedFields tool.
func ListFields(languages []string) []FieldInfo {
	faceted := map[string]bool{}
	for _, d := range FacetDimensions() {
		faceted[d.Name] = true
	}

	infos := []FieldInfo{
		{Name: FieldFilePath, Class: ClassKeyword, Analyzer: keyword.Name, Stored: true},
		{Name: FieldContentHash, Class: ClassKeyword, Analyzer: keyword.Name, Stored: true},
		{Name: FieldFileName, Class: ClassText, Analyzer: analysis.AnalyzerUnicode, Stored: true},
		{Name: FieldFileExtension, Class: ClassText, Analyzer: analysis.AnalyzerUnicode, Stored: true, Faceted: true},
		{Name: FieldFileType, Class: ClassText, Analyzer: analysis.AnalyzerUnicode, Stored: true, Faceted: true},
		{Name: FieldFileSize, Class: ClassNumeric, Stored: true},
		{Name: FieldCreatedDate, Class: ClassNumeric, Stored: true},
		{Name: FieldModifiedDate, Class: ClassNumeric, Stored: true},
		{Name: FieldIndexedDate, Class: ClassNumeric, Stored: true},
		{Name: FieldTitle, Class: ClassText, Analyzer: analysis.AnalyzerUnicode, Stored: true},
		{Name: FieldAuthor, Class: ClassText, Analyzer: analysis.AnalyzerUnicode, Stored: true, Faceted: true},
		{Name: FieldCreator, Class: ClassText, Analyzer: analysis.AnalyzerUnicode, Stored: true, Faceted: true},
		{Name: FieldSubject, Class: ClassText, Analyzer: analysis.AnalyzerUnicode, Stored: true, Faceted: true},
		{Name: FieldKeywords, Class: ClassText, Analyzer: analysis.AnalyzerUnicode, Stored: true},
		{Name: FieldLanguage, Class: ClassText, Analyzer: analysis.AnalyzerUnicode, Stored: true, Faceted: true},
		{Name: FieldContent, Class: ClassText, Analyzer: analysis.AnalyzerUnicode, Stored: true},
		{Name: FieldContentReversed, Class: ClassText, Analyzer: analysis.AnalyzerReversed, Stored: false},
		{Name: FieldContentTranslitDE, Class: ClassText, Analyzer: analysis.AnalyzerTranslitDE, Stored: false},
	}
	for _, lang := range languages {
		infos = append(infos, FieldInfo{
			Name:     LemmaField(lang),
			Class:    ClassText,
			Analyzer: analysis.LemmaIndexAnalyzer(lang),
			Stored:   false,
		})
	}
	for _, d := range FacetDimensions() {
		infos = append(infos, FieldInfo{Name: d.Field, Class: ClassFacet, Analyzer: keyword.Name, Stored: false, Faceted: true})
	}
	return infos
}

// BuildIndexMapping assembles the bleve mapping for the schema.
// analysis.Setup must have run so the lemma analyzers resolve.
func BuildIndexMapping(languages []string) (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	if err := analysis.AddToMapping(im, languages); err != nil {
		return nil, err
	}
	im.DefaultAnalyzer = analysis.AnalyzerUnicode

	dm := bleve.NewDocumentStaticMapping()

	text := func(analyzer string, store bool) *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = analyzer
		fm.Store = store
		fm.IncludeInAll = false
		return fm
	}
	exact := func(store bool) *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = keyword.Name
		fm.Store = store
		fm.IncludeInAll = false
		return fm
	}
	numeric := func() *mapping.FieldMapping {
		fm := bleve.NewNumericFieldMapping()
		fm.Store = true
		fm.IncludeInAll = false
		return fm
	}

	// Content family. The primary view stores the source text and keeps
	// term vectors so the highlighter can map matches to surface spans.
	content := text(analysis.AnalyzerUnicode, true)
	content.IncludeTermVectors = true
	dm.AddFieldMappingsAt(FieldContent, content)

	reversed := text(analysis.AnalyzerReversed, false)
	reversed.IncludeTermVectors = true
	dm.AddFieldMappingsAt(FieldContentReversed, reversed)

	dm.AddFieldMappingsAt(FieldContentTranslitDE, text(analysis.AnalyzerTranslitDE, false))
	for _, lang := range languages {
		dm.AddFieldMappingsAt(LemmaField(lang), text(analysis.LemmaIndexAnalyzer(lang), false))
	}

	// Identity and file facts.
	dm.AddFieldMappingsAt(FieldFilePath, exact(true))
	dm.AddFieldMappingsAt(FieldContentHash, exact(true))
	dm.AddFieldMappingsAt(FieldFileName, text(analysis.AnalyzerUnicode, true))
	dm.AddFieldMappingsAt(FieldFileExtension, text(analysis.AnalyzerUnicode, true))
	dm.AddFieldMappingsAt(FieldFileType, text(analysis.AnalyzerUnicode, true))
	dm.AddFieldMappingsAt(FieldFileSize, numeric())
	dm.AddFieldMappingsAt(FieldCreatedDate, numeric())
	dm.AddFieldMappingsAt(FieldModifiedDate, numeric())
	dm.AddFieldMappingsAt(FieldIndexedDate, numeric())

	// Metadata.
	dm.AddFieldMappingsAt(FieldTitle, text(analysis.AnalyzerUnicode, true))
	dm.AddFieldMappingsAt(FieldAuthor, text(analysis.AnalyzerUnicode, true))
	dm.AddFieldMappingsAt(FieldCreator, text(analysis.AnalyzerUnicode, true))
	dm.AddFieldMappingsAt(FieldSubject, text(analysis.AnalyzerUnicode, true))
	dm.AddFieldMappingsAt(FieldKeywords, text(analysis.AnalyzerUnicode, true))
	dm.AddFieldMappingsAt(FieldLanguage, text(analysis.AnalyzerUnicode, true))

	// Facet shadows: exact values, never stored.
	for _, d := range FacetDimensions() {
		dm.AddFieldMappingsAt(d.Field, exact(false))
	}

	im.DefaultMapping = dm
	return im, nil
}
