package index

import (
	"time"

	"github.com/blevesearch/bleve/v2"

	"github.com/mcplucene/mcplucene/internal/document"
)

// LanguageDistribution is an immutable snapshot of how documents spread
// across languages, recomputed on every scheduled refresh. The query
// planner scales per-language lemma boosts from it.
type LanguageDistribution struct {
	TotalDocs  uint64
	ByLanguage map[string]uint64
	ComputedAt time.Time
}

func emptyDistribution() *LanguageDistribution {
	return &LanguageDistribution{ByLanguage: map[string]uint64{}, ComputedAt: time.Now()}
}

// Share returns docs_in_language / total_docs, zero on an empty index.
func (d *LanguageDistribution) Share(lang string) float64 {
	if d == nil || d.TotalDocs == 0 {
		return 0
	}
	return float64(d.ByLanguage[lang]) / float64(d.TotalDocs)
}

// computeDistribution runs a facet-only query over the language
// dimension.
func computeDistribution(idx bleve.Index) (*LanguageDistribution, error) {
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), 0, 0, false)
	req.AddFacet(document.FieldLanguage, bleve.NewFacetRequest(document.FacetField(document.FieldLanguage), 50))

	res, err := idx.Search(req)
	if err != nil {
		return nil, err
	}

	dist := &LanguageDistribution{
		TotalDocs:  res.Total,
		ByLanguage: map[string]uint64{},
		ComputedAt: time.Now(),
	}
	if facet, ok := res.Facets[document.FieldLanguage]; ok && facet.Terms != nil {
		for _, term := range facet.Terms.Terms() {
			dist.ByLanguage[term.Term] = uint64(term.Count)
		}
	}
	return dist, nil
}
