package document

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"
)

// Source is one extracted file, ready to become a document.
type Source struct {
	Path     string
	Size     int64
	Created  time.Time
	Modified time.Time
	MIME     string

	Title    string
	Authors  []string
	Creators []string
	Subjects []string
	Keywords string
	Language string

	Text string
}

// ContentHash computes the upsert identity of raw text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Build produces the document id and field map for indexing. Every
// content view is populated from the same source text; facet shadows are
// only attached for non-empty values; indexed_date is stamped with now.
func Build(src Source, now time.Time) (string, map[string]interface{}) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(src.Path)), ".")

	fields := map[string]interface{}{
		FieldFilePath:     src.Path,
		FieldContentHash:  ContentHash(src.Text),
		FieldFileName:     filepath.Base(src.Path),
		FieldFileSize:     float64(src.Size),
		FieldCreatedDate:  float64(src.Created.UnixMilli()),
		FieldModifiedDate: float64(src.Modified.UnixMilli()),
		FieldIndexedDate:  float64(now.UnixMilli()),

		FieldContent:           src.Text,
		FieldContentReversed:   src.Text,
		FieldContentTranslitDE: src.Text,
	}
	fields[LemmaField("de")] = src.Text
	fields[LemmaField("en")] = src.Text

	setString := func(field, value string) {
		if value != "" {
			fields[field] = value
		}
	}
	setStrings := func(field string, values []string) {
		kept := make([]string, 0, len(values))
		for _, v := range values {
			if strings.TrimSpace(v) != "" {
				kept = append(kept, v)
			}
		}
		if len(kept) > 0 {
			fields[field] = kept
		}
	}

	setString(FieldFileExtension, ext)
	setString(FieldFileType, src.MIME)
	setString(FieldTitle, src.Title)
	setString(FieldKeywords, src.Keywords)
	setString(FieldLanguage, src.Language)
	setStrings(FieldAuthor, src.Authors)
	setStrings(FieldCreator, src.Creators)
	setStrings(FieldSubject, src.Subjects)

	// Facet shadows mirror their source field; empty values were never
	// set above, so absent sources produce no facet value.
	for _, d := range FacetDimensions() {
		if v, ok := fields[d.Name]; ok {
			fields[d.Field] = v
		}
	}

	return src.Path, fields
}
