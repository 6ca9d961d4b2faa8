package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	mcperrors "github.com/mcplucene/mcplucene/internal/errors"
)

func TestClassifyBuckets(t *testing.T) {
	c, err := Classify([]Filter{
		{Field: "language", Operator: OpEq, Value: "de"},
		{Field: "file_extension", Operator: OpIn, Values: []interface{}{"pdf", "txt"}},
		{Field: "author", Operator: OpNot, Value: "Smith"},
		{Field: "modified_date", Operator: OpRange, From: "2023-01-01", To: "2024-01-01"},
		{Field: "file_path", Operator: OpEq, Value: "/a.txt"},
		{Field: "file_size", Operator: OpEq, Value: float64(100)},
	})
	require.NoError(t, err)

	require.Equal(t, []FilterClass{
		ClassPositiveFacet, ClassPositiveFacet, ClassNegative,
		ClassRange, ClassStringTerm, ClassLongPointEq,
	}, c.classes)

	require.Equal(t, []string{"language", "file_extension"}, c.drillOrder)
	require.Equal(t, []string{"de"}, c.drills["language"])
	require.Equal(t, []string{"pdf", "txt"}, c.drills["file_extension"])
	require.Len(t, c.negatives, 1)
	require.Len(t, c.ranges, 1)
	require.Len(t, c.terms, 2)
	require.Equal(t, []string{"de"}, c.languageEq)
}

func TestClassifySameDimensionMergesToOr(t *testing.T) {
	c, err := Classify([]Filter{
		{Field: "file_extension", Operator: OpEq, Value: "pdf"},
		{Field: "file_extension", Operator: OpEq, Value: "txt"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"file_extension"}, c.drillOrder)
	require.Equal(t, []string{"pdf", "txt"}, c.drills["file_extension"])
}

func TestClassifyRejections(t *testing.T) {
	cases := []struct {
		name   string
		filter Filter
	}{
		{"blank field", Filter{Operator: OpEq, Value: "x"}},
		{"unknown field", Filter{Field: "nonsense", Operator: OpEq, Value: "x"}},
		{"analyzed-only field", Filter{Field: "content", Operator: OpEq, Value: "x"}},
		{"range on facet", Filter{Field: "language", Operator: OpRange, From: "a"}},
		{"range without bounds", Filter{Field: "file_size", Operator: OpRange}},
		{"eq without value", Filter{Field: "language", Operator: OpEq}},
		{"in without values", Filter{Field: "language", Operator: OpIn}},
		{"bad operator", Filter{Field: "language", Operator: "between", Value: "x"}},
		{"unparseable date", Filter{Field: "modified_date", Operator: OpRange, From: "not-a-date"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Classify([]Filter{tc.filter})
			require.ErrorIs(t, err, mcperrors.ErrFilter)
		})
	}
}

func TestUnknownFieldSuggestion(t *testing.T) {
	_, err := Classify([]Filter{{Field: "lanquage", Operator: OpEq, Value: "de"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), `"language"`)
}

func TestParseISODateShapes(t *testing.T) {
	cases := map[string]time.Time{
		"2023-06-15":                time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC),
		"2023-06-15T10:30:00":       time.Date(2023, 6, 15, 10, 30, 0, 0, time.UTC),
		"2023-06-15T10:30:00Z":      time.Date(2023, 6, 15, 10, 30, 0, 0, time.UTC),
		"2023-06-15T10:30:00+02:00": time.Date(2023, 6, 15, 8, 30, 0, 0, time.UTC),
		"2023-06-15T10:30:00.500Z":  time.Date(2023, 6, 15, 10, 30, 0, 500000000, time.UTC),
	}
	for input, want := range cases {
		got, err := parseISODate(input)
		require.NoError(t, err, "input %q", input)
		require.Equal(t, want.UnixMilli(), got, "input %q", input)
	}

	_, err := parseISODate("15.06.2023")
	require.Error(t, err)
}

func TestLanguageEqOnlyForSingleEq(t *testing.T) {
	// in-operator language filters do not pin the lemma expansion.
	c, err := Classify([]Filter{
		{Field: "language", Operator: OpIn, Values: []interface{}{"de", "en"}},
	})
	require.NoError(t, err)
	require.Empty(t, c.languageEq)
}

func TestParseQueryString(t *testing.T) {
	specs, err := parseQueryString(`+signed "employment contract" -draft vertr*g`)
	require.NoError(t, err)
	require.Len(t, specs, 4)

	require.Equal(t, kindTerm, specs[0].kind)
	require.Equal(t, occurMust, specs[0].occur)
	require.Equal(t, kindPhrase, specs[1].kind)
	require.Equal(t, "employment contract", specs[1].text)
	require.Equal(t, occurMustNot, specs[2].occur)
	require.Equal(t, kindWildcard, specs[3].kind)
}

func TestParseQueryStringErrors(t *testing.T) {
	for _, q := range []string{`"open phrase`, `+ lonely`, `**`, `""`} {
		_, err := parseQueryString(q)
		require.ErrorIsf(t, err, mcperrors.ErrParse, "query %q", q)
	}
}

func TestLeafTerms(t *testing.T) {
	specs, err := parseQueryString(`Contract "Running Shoes" *vertrag* -excluded x`)
	require.NoError(t, err)

	terms := LeafTerms(specs)
	require.Equal(t, []string{"contract", "running", "shoes", "vertrag"}, terms)
}

func TestWildcardShape(t *testing.T) {
	leading, trailing, core := wildcardShape("*vertrag")
	require.True(t, leading)
	require.False(t, trailing)
	require.Equal(t, "vertrag", core)

	leading, trailing, core = wildcardShape("*vertrag*")
	require.True(t, leading)
	require.True(t, trailing)
	require.Equal(t, "vertrag", core)

	leading, trailing, _ = wildcardShape("vertrag*")
	require.False(t, leading)
	require.True(t, trailing)
}

func TestNormalizeWildcardFoldsCase(t *testing.T) {
	require.Equal(t, "grusse*", normalizeWildcard("Grüße*"))
}
