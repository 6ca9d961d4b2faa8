package query

import (
	"context"
	"fmt"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/mcplucene/mcplucene/internal/document"
)

// ProfileRequest asks for query analysis instead of results.
type ProfileRequest struct {
	Query                  string
	Filters                []Filter
	AnalyzeFilterImpact    bool
	AnalyzeDocumentScoring bool
	AnalyzeFacetCost       bool
	MaxDocExplanations     int
}

// FilterAnalysis describes one classified filter.
type FilterAnalysis struct {
	Filter       Filter      `json:"filter"`
	Class        FilterClass `json:"class"`
	MatchingDocs uint64      `json:"matchingDocs,omitempty"`
}

// FacetCost estimates per-dimension faceting cost.
type FacetCost struct {
	Dimension   string `json:"dimension"`
	Cardinality int    `json:"cardinality"`
	MultiValued bool   `json:"multiValued"`
}

// DocExplanation carries one scoring explanation.
type DocExplanation struct {
	FilePath    string  `json:"filePath"`
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

// ProfileResult is the profileQuery payload.
type ProfileResult struct {
	Query           string             `json:"query"`
	RewrittenQuery  string             `json:"rewrittenQuery"`
	MatchAll        bool               `json:"matchAll"`
	LeafTerms       []string           `json:"leafTerms,omitempty"`
	FieldBoosts     map[string]float64 `json:"fieldBoosts,omitempty"`
	LanguageShares  map[string]float64 `json:"languageShares,omitempty"`
	TotalHits       uint64             `json:"totalHits"`
	Filters         []FilterAnalysis   `json:"filters,omitempty"`
	FacetCosts      []FacetCost        `json:"facetCosts,omitempty"`
	DocExplanations []DocExplanation   `json:"docExplanations,omitempty"`
	ProfileTimeMs   int64              `json:"profileTimeMs"`
}

// Profile builds the same plan Search would and reports what it looks
// like before and after rewriting, plus optional cost probes.
func (p *Planner) Profile(ctx context.Context, req ProfileRequest) (*ProfileResult, error) {
	started := time.Now()

	pl, err := p.buildPlan(Request{Query: req.Query, Filters: req.Filters})
	if err != nil {
		return nil, err
	}

	out := &ProfileResult{
		Query:          req.Query,
		RewrittenQuery: describeQuery(pl.base),
		MatchAll:       pl.matchAll,
		LeafTerms:      pl.leafTerms,
		FieldBoosts:    pl.boosts,
	}

	dist := p.svc.LanguageDistribution()
	out.LanguageShares = map[string]float64{}
	for _, lang := range p.cfg.Analysis.LemmaLanguages {
		out.LanguageShares[lang] = round2(dist.Share(lang))
	}

	countReq := bleve.NewSearchRequestOptions(p.drillDownQuery(pl), 0, 0, false)
	countRes, err := p.svc.Search(ctx, countReq)
	if err != nil {
		return nil, err
	}
	out.TotalHits = countRes.Total

	if req.AnalyzeFilterImpact {
		if err := p.analyzeFilters(ctx, req.Filters, pl, out); err != nil {
			return nil, err
		}
	}
	if req.AnalyzeFacetCost {
		if err := p.analyzeFacetCost(ctx, out); err != nil {
			return nil, err
		}
	}
	if req.AnalyzeDocumentScoring {
		limit := req.MaxDocExplanations
		if limit <= 0 {
			limit = 3
		}
		if limit > 10 {
			limit = 10
		}
		if err := p.analyzeScoring(ctx, pl, limit, out); err != nil {
			return nil, err
		}
	}

	out.ProfileTimeMs = time.Since(started).Milliseconds()
	return out, nil
}

// analyzeFilters reports the class of each filter and how many documents
// each one matches in isolation.
func (p *Planner) analyzeFilters(ctx context.Context, filters []Filter, pl *plan, out *ProfileResult) error {
	for i, f := range filters {
		fa := FilterAnalysis{Filter: f}
		if i < len(pl.drills.classes) {
			fa.Class = pl.drills.classes[i]
		}

		single, err := Classify([]Filter{f})
		if err == nil {
			q := p.drillDownQuery(&plan{base: bleve.NewMatchAllQuery(), drills: single})
			if len(single.negatives) > 0 {
				bq := query.NewBooleanQuery([]query.Query{bleve.NewMatchAllQuery()}, nil, single.negatives)
				q = bq
			} else if len(single.ranges)+len(single.terms) > 0 {
				parts := append([]query.Query{}, single.ranges...)
				parts = append(parts, single.terms...)
				q = query.NewConjunctionQuery(parts)
			}
			req := bleve.NewSearchRequestOptions(q, 0, 0, false)
			if res, serr := p.svc.Search(ctx, req); serr == nil {
				fa.MatchingDocs = res.Total
			}
		}
		out.Filters = append(out.Filters, fa)
	}
	return nil
}

// analyzeFacetCost probes each dimension's cardinality over the whole
// index.
func (p *Planner) analyzeFacetCost(ctx context.Context, out *ProfileResult) error {
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), 0, 0, false)
	for _, dim := range document.FacetDimensions() {
		req.AddFacet(dim.Name, bleve.NewFacetRequest(dim.Field, 1000))
	}
	res, err := p.svc.Search(ctx, req)
	if err != nil {
		return err
	}
	for _, dim := range document.FacetDimensions() {
		cost := FacetCost{Dimension: dim.Name, MultiValued: dim.MultiValued}
		if facet, ok := res.Facets[dim.Name]; ok && facet.Terms != nil {
			cost.Cardinality = len(facet.Terms.Terms())
		}
		out.FacetCosts = append(out.FacetCosts, cost)
	}
	return nil
}

// analyzeScoring runs the query with explanations for the top hits.
func (p *Planner) analyzeScoring(ctx context.Context, pl *plan, limit int, out *ProfileResult) error {
	req := bleve.NewSearchRequestOptions(p.drillDownQuery(pl), limit, 0, true)
	res, err := p.svc.Search(ctx, req)
	if err != nil {
		return err
	}
	for _, hit := range res.Hits {
		de := DocExplanation{FilePath: hit.ID, Score: round2(hit.Score)}
		if hit.Expl != nil {
			de.Explanation = flattenExplanation(hit.Expl, 0)
		}
		out.DocExplanations = append(out.DocExplanations, de)
	}
	return nil
}

// flattenExplanation renders the top two levels of a scoring tree.
func flattenExplanation(expl *search.Explanation, depth int) string {
	s := fmt.Sprintf("%.4f %s", expl.Value, expl.Message)
	if depth >= 2 {
		return s
	}
	for _, child := range expl.Children {
		s += "; " + flattenExplanation(child, depth+1)
	}
	return s
}

// describeQuery renders a query tree as a compact string for the
// profile surface.
func describeQuery(q query.Query) string {
	switch t := q.(type) {
	case *query.BooleanQuery:
		return fmt.Sprintf("bool(must=%s should=%s mustNot=%s)",
			describeQuery(t.Must), describeQuery(t.Should), describeQuery(t.MustNot))
	case *query.ConjunctionQuery:
		s := "and("
		for i, c := range t.Conjuncts {
			if i > 0 {
				s += " "
			}
			s += describeQuery(c)
		}
		return s + ")"
	case *query.DisjunctionQuery:
		s := "or("
		for i, c := range t.Disjuncts {
			if i > 0 {
				s += " "
			}
			s += describeQuery(c)
		}
		return s + ")"
	case *query.MatchQuery:
		return fmt.Sprintf("match(%s:%q)", t.Field(), t.Match)
	case *query.MatchPhraseQuery:
		return fmt.Sprintf("phrase(%s:%q)", t.Field(), t.MatchPhrase)
	case *query.WildcardQuery:
		return fmt.Sprintf("wildcard(%s:%q)", t.Field(), t.Wildcard)
	case *query.TermQuery:
		return fmt.Sprintf("term(%s:%q)", t.Field(), t.Term)
	case *query.NumericRangeQuery:
		return fmt.Sprintf("range(%s)", t.Field())
	case *query.MatchAllQuery:
		return "matchAll"
	case nil:
		return "-"
	default:
		return fmt.Sprintf("%T", q)
	}
}
