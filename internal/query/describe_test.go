package query

import (
	"testing"

	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/stretchr/testify/require"
)

func TestDescribeQueryShapes(t *testing.T) {
	mq := query.NewMatchQuery("contract")
	mq.SetField("content")

	wq := query.NewWildcardQuery("gartrev*")
	wq.SetField("content_reversed")

	tq := query.NewTermQuery("/a.pdf")
	tq.SetField("file_path")

	dq := query.NewDisjunctionQuery([]query.Query{mq, wq})
	bq := query.NewBooleanQuery([]query.Query{dq}, nil, []query.Query{tq})

	got := describeQuery(bq)
	require.Contains(t, got, `match(content:"contract")`)
	require.Contains(t, got, `wildcard(content_reversed:"gartrev*")`)
	require.Contains(t, got, `term(file_path:"/a.pdf")`)
	require.Contains(t, got, "bool(")
	require.Contains(t, got, "or(")
}

func TestDescribeQueryNilBranches(t *testing.T) {
	bq := query.NewBooleanQuery([]query.Query{query.NewMatchAllQuery()}, nil, nil)
	got := describeQuery(bq)
	require.Contains(t, got, "matchAll")
	require.Contains(t, got, "-")
}

// The planner's rewritten tree for a leading wildcard names the reversed
// field with the reversed core.
func TestDescribeLeadingWildcardRewrite(t *testing.T) {
	f := newFixture(t)
	pl, err := f.planner.buildPlan(Request{Query: "*vertrag"})
	require.NoError(t, err)

	described := describeQuery(pl.base)
	require.Contains(t, described, `wildcard(content_reversed:"gartrev*")`)
}

// A double wildcard keeps both the original pattern on content and the
// reversed prefix scan.
func TestDescribeDoubleWildcardRewrite(t *testing.T) {
	f := newFixture(t)
	pl, err := f.planner.buildPlan(Request{Query: "*vertrag*"})
	require.NoError(t, err)

	described := describeQuery(pl.base)
	require.Contains(t, described, `wildcard(content:"*vertrag*")`)
	require.Contains(t, described, `wildcard(content_reversed:"gartrev*")`)
}
