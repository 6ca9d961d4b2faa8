package query

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/mcplucene/mcplucene/internal/analysis"
	"github.com/mcplucene/mcplucene/internal/config"
	"github.com/mcplucene/mcplucene/internal/document"
	mcperrors "github.com/mcplucene/mcplucene/internal/errors"
	"github.com/mcplucene/mcplucene/internal/highlight"
	"github.com/mcplucene/mcplucene/internal/index"
)

// contentBoost weights the unstemmed content clause of the expansion.
const contentBoost = 2.0

// translitBoost weights the German transliteration shadow. Low on
// purpose: the digraph mapping has documented false positives
// (blue → blü → blu).
const translitBoost = 0.2

// facetSize bounds per-dimension facet value counts in responses.
const facetSize = 10

// Planner turns tool requests into executed searches.
type Planner struct {
	svc *index.Service
	cfg *config.Config
	log *zap.Logger
}

// NewPlanner wires the planner to the index service.
func NewPlanner(svc *index.Service, cfg *config.Config, log *zap.Logger) *Planner {
	return &Planner{svc: svc, cfg: cfg, log: log}
}

// Request is a search invocation from the tool surface.
type Request struct {
	Query     string
	Filters   []Filter
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// FacetCount is one facet value with its document count.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// DocumentHit is one search result row. Content never rides along; the
// passages are the only text returned.
type DocumentHit struct {
	FilePath      string              `json:"filePath"`
	Score         float64             `json:"score"`
	FileName      string              `json:"fileName,omitempty"`
	Title         string              `json:"title,omitempty"`
	Authors       []string            `json:"authors,omitempty"`
	Language      string              `json:"language,omitempty"`
	FileExtension string              `json:"fileExtension,omitempty"`
	FileType      string              `json:"fileType,omitempty"`
	FileSize      int64               `json:"fileSize"`
	CreatedDate   int64               `json:"createdDate"`
	ModifiedDate  int64               `json:"modifiedDate"`
	IndexedDate   int64               `json:"indexedDate"`
	Passages      []highlight.Passage `json:"passages,omitempty"`
}

// Result is the search response payload.
type Result struct {
	Documents       []DocumentHit           `json:"documents"`
	TotalHits       uint64                  `json:"totalHits"`
	Page            int                     `json:"page"`
	PageSize        int                     `json:"pageSize"`
	TotalPages      int                     `json:"totalPages"`
	HasNextPage     bool                    `json:"hasNextPage"`
	HasPreviousPage bool                    `json:"hasPreviousPage"`
	Facets          map[string][]FacetCount `json:"facets"`
	ActiveFilters   []Filter                `json:"activeFilters"`
	SearchTimeMs    int64                   `json:"searchTimeMs"`
}

// plan is everything derived from a request before execution.
type plan struct {
	specs      []termSpec
	matchAll   bool
	base       query.Query // main + range/term filters + must-nots
	drills     *classified
	leafTerms  []string
	boosts     map[string]float64
	sortOrders []string
}

// Search validates, plans, and executes one request.
func (p *Planner) Search(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = p.cfg.Search.DefaultPageSize
	}
	if pageSize > p.cfg.Search.MaxPageSize {
		pageSize = p.cfg.Search.MaxPageSize
	}
	page := req.Page
	if page < 0 {
		page = 0
	}

	pl, err := p.buildPlan(req)
	if err != nil {
		return nil, err
	}

	from := page * pageSize
	sreq := bleve.NewSearchRequestOptions(p.drillDownQuery(pl), pageSize, from, false)
	sreq.Fields = []string{"*"}
	sreq.IncludeLocations = true
	sreq.SortBy(pl.sortOrders)
	for _, dim := range document.FacetDimensions() {
		sreq.AddFacet(dim.Name, bleve.NewFacetRequest(dim.Field, facetSize))
	}

	res, err := p.svc.Search(ctx, sreq)
	if err != nil {
		return nil, fmt.Errorf("search execution: %w", err)
	}

	facets := p.collectFacets(res)
	if len(pl.drills.drillOrder) > 0 {
		if err := p.sidewaysCounts(ctx, pl, facets); err != nil {
			return nil, err
		}
	}

	docs := make([]DocumentHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		docs = append(docs, p.buildHit(hit, pl))
	}

	total := res.Total
	totalPages := 0
	if pageSize > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(pageSize)))
	}

	return &Result{
		Documents:       docs,
		TotalHits:       total,
		Page:            page,
		PageSize:        pageSize,
		TotalPages:      totalPages,
		HasNextPage:     from+pageSize < int(total),
		HasPreviousPage: page > 0,
		Facets:          facets,
		ActiveFilters:   req.Filters,
		SearchTimeMs:    time.Since(started).Milliseconds(),
	}, nil
}

// buildPlan validates filters and constructs the boolean tree shared by
// search and profile.
func (p *Planner) buildPlan(req Request) (*plan, error) {
	drills, err := Classify(req.Filters)
	if err != nil {
		return nil, err
	}

	sortOrders, err := p.sortOrders(req.SortBy, req.SortOrder)
	if err != nil {
		return nil, err
	}

	pl := &plan{drills: drills, sortOrders: sortOrders, boosts: map[string]float64{}}

	var main query.Query
	if isMatchAll(req.Query) {
		pl.matchAll = true
		main = bleve.NewMatchAllQuery()
	} else {
		specs, err := parseQueryString(req.Query)
		if err != nil {
			return nil, err
		}
		pl.specs = specs
		pl.leafTerms = LeafTerms(specs)

		content, err := p.contentQuery(specs)
		if err != nil {
			return nil, err
		}
		main = p.expandStemmed(content, specs, drills, pl.boosts)
	}

	final := query.NewBooleanQuery([]query.Query{main}, nil, nil)
	for _, q := range drills.ranges {
		final.AddMust(q)
	}
	for _, q := range drills.terms {
		final.AddMust(q)
	}
	for _, q := range drills.negatives {
		final.AddMustNot(q)
	}
	pl.base = final
	return pl, nil
}

func isMatchAll(q string) bool {
	trimmed := strings.TrimSpace(q)
	return trimmed == "" || trimmed == "*"
}

// contentQuery builds the unstemmed content query: the highlight query.
// Wildcard and prefix terms are normalized the way the index analyzer
// would have, and leading wildcards are rewritten onto the reversed
// field.
func (p *Planner) contentQuery(specs []termSpec) (query.Query, error) {
	return p.fieldQuery(specs, document.FieldContent, "", true)
}

// fieldQuery parses the specs against one field. analyzer overrides the
// field's analyzer for term and phrase clauses (lemma re-parsing);
// rewriteLeading enables the content_reversed rewrite, which only the
// content family supports.
func (p *Planner) fieldQuery(specs []termSpec, field, analyzer string, rewriteLeading bool) (query.Query, error) {
	var must, should, mustNot []query.Query
	for _, spec := range specs {
		var q query.Query
		switch spec.kind {
		case kindPhrase:
			mq := query.NewMatchPhraseQuery(spec.text)
			mq.SetField(field)
			if analyzer != "" {
				mq.Analyzer = analyzer
			}
			q = mq
		case kindWildcard:
			q = p.wildcardQuery(spec.text, field, rewriteLeading)
		default:
			mq := query.NewMatchQuery(spec.text)
			mq.SetField(field)
			if analyzer != "" {
				mq.Analyzer = analyzer
			}
			q = mq
		}
		switch spec.occur {
		case occurMust:
			must = append(must, q)
		case occurMustNot:
			mustNot = append(mustNot, q)
		default:
			should = append(should, q)
		}
	}

	if len(must) == 0 && len(mustNot) == 0 {
		dq := query.NewDisjunctionQuery(should)
		dq.SetMin(1)
		return dq, nil
	}
	bq := query.NewBooleanQuery(must, should, mustNot)
	return bq, nil
}

// wildcardQuery applies the wildcard normalization rules: lowercase and
// fold the term text (parsers never analyze wildcard terms), and rewrite
// leading wildcards as trailing wildcards over the reversed field.
func (p *Planner) wildcardQuery(token, field string, rewriteLeading bool) query.Query {
	leading, trailing, core := wildcardShape(token)
	normalized := normalizeWildcard(token)
	normCore := normalizeWildcard(core)

	if !rewriteLeading || !leading {
		wq := query.NewWildcardQuery(normalized)
		wq.SetField(field)
		return wq
	}

	reversed := query.NewWildcardQuery(analysis.ReverseString(normCore) + "*")
	reversed.SetField(document.FieldContentReversed)

	if !trailing {
		// Leading-only: the reversed field alone answers it.
		return reversed
	}

	// Both ends open: either the original pattern on content or the
	// reversed prefix scan.
	original := query.NewWildcardQuery(normalized)
	original.SetField(field)
	return query.NewDisjunctionQuery([]query.Query{original, reversed})
}

// expandStemmed builds the SHOULD union: the content query boosted x2
// plus one lemma-field re-parse per language, boosted by the cached
// language distribution. A single language eq filter narrows the
// expansion to that language at boost 1.0.
func (p *Planner) expandStemmed(content query.Query, specs []termSpec, drills *classified, boosts map[string]float64) query.Query {
	boosted, _ := content.(query.BoostableQuery)
	if boosted != nil {
		boosted.SetBoost(contentBoost)
	}
	parts := []query.Query{content}
	boosts[document.FieldContent] = contentBoost

	if translitQ, err := p.fieldQuery(specs, document.FieldContentTranslitDE, "", false); err == nil {
		if bq, ok := translitQ.(query.BoostableQuery); ok {
			bq.SetBoost(translitBoost)
		}
		boosts[document.FieldContentTranslitDE] = translitBoost
		parts = append(parts, translitQ)
	}

	languages := p.cfg.Analysis.LemmaLanguages
	pinned := ""
	if len(drills.languageEq) == 1 {
		for _, lang := range languages {
			if lang == drills.languageEq[0] {
				pinned = lang
			}
		}
	}

	dist := p.svc.LanguageDistribution()
	for _, lang := range languages {
		if pinned != "" && lang != pinned {
			continue
		}
		lemmaQ, err := p.fieldQuery(specs, document.LemmaField(lang), analysis.LemmaQueryAnalyzer(lang), false)
		if err != nil {
			continue
		}
		boost := 0.3 + 0.7*dist.Share(lang)
		if pinned != "" {
			boost = 1.0
		}
		if bq, ok := lemmaQ.(query.BoostableQuery); ok {
			bq.SetBoost(boost)
		}
		boosts[document.LemmaField(lang)] = boost
		parts = append(parts, lemmaQ)
	}

	union := query.NewDisjunctionQuery(parts)
	union.SetMin(1)
	return union
}

// drillDownQuery conjoins the base query with every positive-facet
// dimension; values within a dimension OR together.
func (p *Planner) drillDownQuery(pl *plan) query.Query {
	if len(pl.drills.drillOrder) == 0 {
		return pl.base
	}
	parts := []query.Query{pl.base}
	for _, dim := range pl.drills.drillOrder {
		parts = append(parts, p.dimQuery(dim, pl.drills.drills[dim]))
	}
	return query.NewConjunctionQuery(parts)
}

func (p *Planner) dimQuery(dim string, values []string) query.Query {
	d, _ := document.FacetDimensionByName(dim)
	return termSetQueryOn(d.Field, values)
}

// sidewaysCounts recomputes each drilled dimension's facet counts with
// that dimension's own drill removed, so sibling values keep their
// un-drilled counts.
func (p *Planner) sidewaysCounts(ctx context.Context, pl *plan, facets map[string][]FacetCount) error {
	for _, dim := range pl.drills.drillOrder {
		parts := []query.Query{pl.base}
		for _, other := range pl.drills.drillOrder {
			if other == dim {
				continue
			}
			parts = append(parts, p.dimQuery(other, pl.drills.drills[other]))
		}
		var q query.Query = pl.base
		if len(parts) > 1 {
			q = query.NewConjunctionQuery(parts)
		}

		sreq := bleve.NewSearchRequestOptions(q, 0, 0, false)
		d, _ := document.FacetDimensionByName(dim)
		sreq.AddFacet(dim, bleve.NewFacetRequest(d.Field, facetSize))
		res, err := p.svc.Search(ctx, sreq)
		if err != nil {
			return fmt.Errorf("sideways facet for %s: %w", dim, err)
		}
		for name, counts := range p.collectFacets(res) {
			facets[name] = counts
		}
	}
	return nil
}

func (p *Planner) collectFacets(res *bleve.SearchResult) map[string][]FacetCount {
	out := map[string][]FacetCount{}
	for name, facet := range res.Facets {
		counts := []FacetCount{}
		if facet.Terms != nil {
			for _, term := range facet.Terms.Terms() {
				counts = append(counts, FacetCount{Value: term.Term, Count: term.Count})
			}
		}
		out[name] = counts
	}
	return out
}

// sortOrders maps the tool-surface sort to bleve sort strings. Metadata
// sorts always tie-break by score.
func (p *Planner) sortOrders(sortBy, sortOrder string) ([]string, error) {
	if sortBy == "" {
		sortBy = document.ScoreField
	}
	if !document.SortableFields()[sortBy] {
		return nil, mcperrors.NewFilterError("unsupported sort field %q", sortBy)
	}
	desc := true
	switch sortOrder {
	case "", "desc":
	case "asc":
		desc = false
	default:
		return nil, mcperrors.NewFilterError("unsupported sort order %q", sortOrder)
	}

	prefix := ""
	if desc {
		prefix = "-"
	}
	if sortBy == document.ScoreField {
		return []string{prefix + document.ScoreField}, nil
	}
	return []string{prefix + sortBy, "-" + document.ScoreField}, nil
}

// buildHit assembles one result row and its passages.
func (p *Planner) buildHit(hit *search.DocumentMatch, pl *plan) DocumentHit {
	doc := DocumentHit{
		FilePath:      hit.ID,
		Score:         round2(hit.Score),
		FileName:      fieldString(hit.Fields, document.FieldFileName),
		Title:         fieldString(hit.Fields, document.FieldTitle),
		Authors:       fieldStrings(hit.Fields, document.FieldAuthor),
		Language:      fieldString(hit.Fields, document.FieldLanguage),
		FileExtension: fieldString(hit.Fields, document.FieldFileExtension),
		FileType:      fieldString(hit.Fields, document.FieldFileType),
		FileSize:      fieldInt(hit.Fields, document.FieldFileSize),
		CreatedDate:   fieldInt(hit.Fields, document.FieldCreatedDate),
		ModifiedDate:  fieldInt(hit.Fields, document.FieldModifiedDate),
		IndexedDate:   fieldInt(hit.Fields, document.FieldIndexedDate),
	}

	content := fieldString(hit.Fields, document.FieldContent)
	if content == "" {
		return doc
	}
	doc.Passages = highlight.Extract(highlight.Input{
		Content:         content,
		Locations:       contentLocations(hit),
		QueryTerms:      pl.leafTerms,
		MaxPassages:     p.cfg.Search.MaxPassages,
		MaxPassageChars: p.cfg.Search.MaxPassageCharLength,
		ContentCap:      p.cfg.Search.HighlightContentCap,
	})
	return doc
}

// contentLocations merges term locations from the content family only,
// so highlight tags wrap surface terms the user actually searched for;
// lemma-field matches contribute no tags.
func contentLocations(hit *search.DocumentMatch) map[string][]*search.Location {
	merged := map[string][]*search.Location{}
	for _, field := range []string{document.FieldContent, document.FieldContentReversed} {
		for term, locs := range hit.Locations[field] {
			merged[term] = append(merged[term], locs...)
		}
	}
	return merged
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func fieldString(fields map[string]interface{}, name string) string {
	switch v := fields[name].(type) {
	case string:
		return v
	case []interface{}:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

func fieldStrings(fields map[string]interface{}, name string) []string {
	switch v := fields[name].(type) {
	case string:
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func fieldInt(fields map[string]interface{}, name string) int64 {
	if v, ok := fields[name].(float64); ok {
		return int64(v)
	}
	return 0
}
