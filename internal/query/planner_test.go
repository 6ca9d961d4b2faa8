package query

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcplucene/mcplucene/internal/analysis"
	"github.com/mcplucene/mcplucene/internal/config"
	"github.com/mcplucene/mcplucene/internal/document"
	mcperrors "github.com/mcplucene/mcplucene/internal/errors"
	"github.com/mcplucene/mcplucene/internal/index"
	"github.com/mcplucene/mcplucene/internal/logging"
)

type fixture struct {
	planner *Planner
	svc     *index.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Index.Path = filepath.Join(t.TempDir(), "index")
	require.NoError(t, analysis.Setup(cfg.Analysis.LemmaLanguages, cfg.Analysis.LemmaCacheSize))

	svc, err := index.Open(cfg, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	f := &fixture{planner: NewPlanner(svc, cfg, logging.Nop()), svc: svc}
	f.seed(t)
	return f
}

// seed loads the canonical three-document corpus plus one extra pdf.
func (f *fixture) seed(t *testing.T) {
	t.Helper()
	base := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	docs := []document.Source{
		{Path: "/a.pdf", Size: 100, Created: base, Modified: base.Add(time.Hour), MIME: "application/pdf",
			Language: "en", Text: "The signed contract is attached."},
		{Path: "/b.pdf", Size: 200, Created: base, Modified: base.Add(48 * time.Hour), MIME: "application/pdf",
			Language: "de", Text: "Der Arbeitsvertrag wurde unterschrieben."},
		{Path: "/c.txt", Size: 300, Created: base, Modified: base.Add(2 * time.Hour), MIME: "text/plain",
			Language: "en", Text: "running shoes review"},
	}
	for _, src := range docs {
		id, fields := document.Build(src, time.Now())
		require.NoError(t, f.svc.Upsert(id, fields))
	}
	f.svc.RefreshDerived()
}

func (f *fixture) search(t *testing.T, req Request) *Result {
	t.Helper()
	res, err := f.planner.Search(context.Background(), req)
	require.NoError(t, err)
	return res
}

func paths(res *Result) []string {
	out := make([]string, len(res.Documents))
	for i, d := range res.Documents {
		out[i] = d.FilePath
	}
	return out
}

func TestSearchTermHitsContentOnly(t *testing.T) {
	f := newFixture(t)
	res := f.search(t, Request{Query: "contract"})
	require.Equal(t, []string{"/a.pdf"}, paths(res))
	require.Equal(t, uint64(1), res.TotalHits)
	require.NotEmpty(t, res.Documents[0].Passages)
	require.Contains(t, res.Documents[0].Passages[0].Text, "<em>contract</em>")
}

func TestLeadingWildcardMatchesViaReversedField(t *testing.T) {
	f := newFixture(t)
	res := f.search(t, Request{Query: "*vertrag"})
	require.Equal(t, []string{"/b.pdf"}, paths(res))
	require.Contains(t, res.Documents[0].Passages[0].Text, "<em>Arbeitsvertrag</em>")
}

func TestDoubleWildcardMatchesBothSides(t *testing.T) {
	f := newFixture(t)
	res := f.search(t, Request{Query: "*vertrag*"})
	require.Equal(t, []string{"/b.pdf"}, paths(res))
}

func TestTrailingWildcard(t *testing.T) {
	f := newFixture(t)
	res := f.search(t, Request{Query: "contr*"})
	require.Equal(t, []string{"/a.pdf"}, paths(res))
}

func TestLemmaExpansionFindsInflectedForm(t *testing.T) {
	f := newFixture(t)
	// "run" only matches /c.txt through the English lemma field.
	res := f.search(t, Request{Query: "run"})
	require.Contains(t, paths(res), "/c.txt")

	// The lemma-only hit gets a fallback passage without tags.
	for _, d := range res.Documents {
		if d.FilePath == "/c.txt" {
			require.NotEmpty(t, d.Passages)
			require.Equal(t, "running shoes review", d.Passages[0].Text)
		}
	}
}

func TestGermanLemmaExpansion(t *testing.T) {
	f := newFixture(t)
	// unterschreiben matches the indexed lemma of "unterschrieben".
	res := f.search(t, Request{Query: "unterschreiben"})
	require.Contains(t, paths(res), "/b.pdf")
}

func TestLanguageFilterPinsExpansionAndFilters(t *testing.T) {
	f := newFixture(t)
	res := f.search(t, Request{
		Query:   "contract",
		Filters: []Filter{{Field: "language", Operator: OpEq, Value: "de"}},
	})
	require.Zero(t, res.TotalHits)

	for _, d := range f.search(t, Request{
		Query:   "*",
		Filters: []Filter{{Field: "language", Operator: OpEq, Value: "en"}},
	}).Documents {
		require.Equal(t, "en", d.Language)
	}
}

func TestMatchAllWithFacetFilter(t *testing.T) {
	f := newFixture(t)
	res := f.search(t, Request{
		Query:   "",
		Filters: []Filter{{Field: "file_extension", Operator: OpIn, Values: []interface{}{"pdf"}}},
	})
	require.Equal(t, uint64(2), res.TotalHits)
}

func TestSortByModifiedDateDesc(t *testing.T) {
	f := newFixture(t)
	res := f.search(t, Request{
		Query:     "*",
		Filters:   []Filter{{Field: "file_extension", Operator: OpIn, Values: []interface{}{"pdf"}}},
		SortBy:    "modified_date",
		SortOrder: "desc",
	})
	require.Equal(t, []string{"/b.pdf", "/a.pdf"}, paths(res))

	// Consecutive documents have non-increasing modified_date.
	for i := 1; i < len(res.Documents); i++ {
		require.GreaterOrEqual(t, res.Documents[i-1].ModifiedDate, res.Documents[i].ModifiedDate)
	}
}

func TestSortAscending(t *testing.T) {
	f := newFixture(t)
	res := f.search(t, Request{Query: "*", SortBy: "file_size", SortOrder: "asc"})
	require.Equal(t, []string{"/a.pdf", "/b.pdf", "/c.txt"}, paths(res))
}

func TestSortValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.planner.Search(context.Background(), Request{Query: "*", SortBy: "file_name"})
	require.ErrorIs(t, err, mcperrors.ErrFilter)

	_, err = f.planner.Search(context.Background(), Request{Query: "*", SortOrder: "sideways"})
	require.ErrorIs(t, err, mcperrors.ErrFilter)
}

func TestPagination(t *testing.T) {
	f := newFixture(t)
	res := f.search(t, Request{Query: "*", PageSize: 2, Page: 0, SortBy: "file_size", SortOrder: "asc"})
	require.Len(t, res.Documents, 2)
	require.Equal(t, 2, res.TotalPages)
	require.True(t, res.HasNextPage)
	require.False(t, res.HasPreviousPage)

	res = f.search(t, Request{Query: "*", PageSize: 2, Page: 1, SortBy: "file_size", SortOrder: "asc"})
	require.Len(t, res.Documents, 1)
	require.False(t, res.HasNextPage)
	require.True(t, res.HasPreviousPage)
	require.Equal(t, []string{"/c.txt"}, paths(res))
}

func TestPageSizeHardCap(t *testing.T) {
	f := newFixture(t)
	res := f.search(t, Request{Query: "*", PageSize: 5000})
	require.Equal(t, 100, res.PageSize)
}

func TestRangeFilterOpenBounds(t *testing.T) {
	f := newFixture(t)

	// from-only behaves as [from, +inf)
	res := f.search(t, Request{Query: "*", Filters: []Filter{
		{Field: "file_size", Operator: OpRange, From: float64(200)},
	}})
	require.ElementsMatch(t, []string{"/b.pdf", "/c.txt"}, paths(res))

	// to-only behaves as (-inf, to]
	res = f.search(t, Request{Query: "*", Filters: []Filter{
		{Field: "file_size", Operator: OpRange, To: float64(200)},
	}})
	require.ElementsMatch(t, []string{"/a.pdf", "/b.pdf"}, paths(res))
}

func TestDateRangeFilterISO(t *testing.T) {
	f := newFixture(t)
	res := f.search(t, Request{Query: "*", Filters: []Filter{
		{Field: "modified_date", Operator: OpRange, From: "2023-06-02"},
	}})
	require.Equal(t, []string{"/b.pdf"}, paths(res))
}

func TestNegativeFilter(t *testing.T) {
	f := newFixture(t)
	res := f.search(t, Request{Query: "*", Filters: []Filter{
		{Field: "language", Operator: OpNot, Value: "de"},
	}})
	require.ElementsMatch(t, []string{"/a.pdf", "/c.txt"}, paths(res))
}

func TestFacetCountsBoundedByTotal(t *testing.T) {
	f := newFixture(t)
	res := f.search(t, Request{Query: "*"})

	for dim, counts := range res.Facets {
		sum := 0
		for _, c := range counts {
			sum += c.Count
		}
		require.LessOrEqualf(t, sum, int(res.TotalHits), "facet %s overcounts", dim)
	}
	require.ElementsMatch(t, []FacetCount{{Value: "en", Count: 2}, {Value: "de", Count: 1}}, res.Facets["language"])
}

func TestDrillSidewaysKeepsSiblingCounts(t *testing.T) {
	f := newFixture(t)
	res := f.search(t, Request{
		Query:   "*",
		Filters: []Filter{{Field: "language", Operator: OpEq, Value: "de"}},
	})
	require.Equal(t, uint64(1), res.TotalHits)

	// The drilled dimension still reports its sibling values over the
	// un-drilled population.
	require.ElementsMatch(t, []FacetCount{{Value: "en", Count: 2}, {Value: "de", Count: 1}}, res.Facets["language"])

	// Other dimensions reflect the drilled result set.
	require.ElementsMatch(t, []FacetCount{{Value: "pdf", Count: 1}}, res.Facets["file_extension"])
}

func TestStemmedBoostUsesDistribution(t *testing.T) {
	f := newFixture(t)
	pl, err := f.planner.buildPlan(Request{Query: "contract"})
	require.NoError(t, err)

	require.Equal(t, contentBoost, pl.boosts[document.FieldContent])
	require.Equal(t, translitBoost, pl.boosts[document.FieldContentTranslitDE])
	// 2 of 3 documents are English: 0.3 + 0.7*(2/3)
	require.InDelta(t, 0.3+0.7*2.0/3.0, pl.boosts[document.LemmaField("en")], 0.001)
	require.InDelta(t, 0.3+0.7*1.0/3.0, pl.boosts[document.LemmaField("de")], 0.001)
}

func TestSingleLanguageFilterPinsBoost(t *testing.T) {
	f := newFixture(t)
	pl, err := f.planner.buildPlan(Request{
		Query:   "vertrag",
		Filters: []Filter{{Field: "language", Operator: OpEq, Value: "de"}},
	})
	require.NoError(t, err)
	require.Equal(t, 1.0, pl.boosts[document.LemmaField("de")])
	require.NotContains(t, pl.boosts, document.LemmaField("en"))
}

func TestProfileQueryAnalysis(t *testing.T) {
	f := newFixture(t)
	res, err := f.planner.Profile(context.Background(), ProfileRequest{
		Query:                  "contract",
		Filters:                []Filter{{Field: "file_extension", Operator: OpEq, Value: "pdf"}},
		AnalyzeFilterImpact:    true,
		AnalyzeFacetCost:       true,
		AnalyzeDocumentScoring: true,
		MaxDocExplanations:     2,
	})
	require.NoError(t, err)

	require.Contains(t, res.RewrittenQuery, "match(content:")
	require.Equal(t, uint64(1), res.TotalHits)
	require.Len(t, res.Filters, 1)
	require.Equal(t, ClassPositiveFacet, res.Filters[0].Class)
	require.Equal(t, uint64(2), res.Filters[0].MatchingDocs)
	require.NotEmpty(t, res.FacetCosts)
	require.NotEmpty(t, res.DocExplanations)
}

func TestSearchRecordsTimings(t *testing.T) {
	f := newFixture(t)
	before := f.svc.Timings().Metrics().Count
	f.search(t, Request{Query: "contract"})
	require.Greater(t, f.svc.Timings().Metrics().Count, before)
}
