// Package query plans and executes searches: filter validation and
// classification, wildcard rewriting, stemmed OR-expansion, faceting
// with drill-sideways semantics, sorting, and pagination.
package query

import (
	"fmt"
	"strconv"
	"time"

	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/hbollon/go-edlib"

	"github.com/mcplucene/mcplucene/internal/document"
	mcperrors "github.com/mcplucene/mcplucene/internal/errors"
)

// Operator is the filter comparison kind. Empty means eq.
type Operator string

const (
	OpEq    Operator = "eq"
	OpIn    Operator = "in"
	OpNot   Operator = "not"
	OpNotIn Operator = "not_in"
	OpRange Operator = "range"
)

// Filter is one structured filter from the tool surface.
type Filter struct {
	Field    string        `json:"field"`
	Operator Operator      `json:"operator,omitempty"`
	Value    interface{}   `json:"value,omitempty"`
	Values   []interface{} `json:"values,omitempty"`
	From     interface{}   `json:"from,omitempty"`
	To       interface{}   `json:"to,omitempty"`
}

// FilterClass names the planning bucket a filter lands in.
type FilterClass string

const (
	ClassPositiveFacet FilterClass = "positive_facet"
	ClassNegative      FilterClass = "negative"
	ClassRange         FilterClass = "range"
	ClassStringTerm    FilterClass = "string_term"
	ClassLongPointEq   FilterClass = "long_point_eq"
)

// classified is the planner's view of a validated filter list.
type classified struct {
	// drills maps dimension name to its OR-ed values; different
	// dimensions combine by AND, same dimension by OR (drill-sideways).
	drills map[string][]string
	// drillOrder keeps dimension iteration stable.
	drillOrder []string

	negatives []query.Query
	ranges    []query.Query
	terms     []query.Query

	// classes records the class per input filter, for profileQuery.
	classes []FilterClass

	// languageEq collects values of language eq clauses; exactly one
	// switches the lemma expansion to that language at boost 1.0.
	languageEq []string
}

// filterableFields lists every field a filter may touch, for the
// unknown-field suggestion.
func filterableFields() []string {
	fields := []string{
		document.FieldFilePath, document.FieldContentHash,
		document.FieldFileSize, document.FieldCreatedDate,
		document.FieldModifiedDate, document.FieldIndexedDate,
	}
	for _, d := range document.FacetDimensions() {
		fields = append(fields, d.Name)
	}
	return fields
}

// suggestField proposes the closest known filterable field.
func suggestField(field string) string {
	match, err := edlib.FuzzySearch(field, filterableFields(), edlib.JaroWinkler)
	if err != nil || match == "" {
		return ""
	}
	return match
}

func unknownFieldError(field string) error {
	if suggestion := suggestField(field); suggestion != "" {
		return mcperrors.NewFilterError("unknown filter field %q (did you mean %q?)", field, suggestion)
	}
	return mcperrors.NewFilterError("unknown filter field %q", field)
}

// Classify validates every filter and sorts it into its planning class.
// Any violation aborts with a FilterError; no partial search runs.
func Classify(filters []Filter) (*classified, error) {
	c := &classified{drills: map[string][]string{}}
	numeric := document.NumericFields()
	keywords := document.KeywordFields()
	dates := map[string]bool{}
	for _, f := range document.DateFields() {
		dates[f] = true
	}

	for i, f := range filters {
		if f.Field == "" {
			return nil, mcperrors.NewFilterError("filter %d: field must not be blank", i)
		}
		op := f.Operator
		if op == "" {
			op = OpEq
		}

		_, faceted := document.FacetDimensionByName(f.Field)
		isNumeric := numeric[f.Field]
		isKeyword := keywords[f.Field]
		if !faceted && !isNumeric && !isKeyword {
			return nil, unknownFieldError(f.Field)
		}

		switch op {
		case OpRange:
			if !isNumeric {
				return nil, mcperrors.NewFilterError("range filter requires a numeric or date field, got %q", f.Field)
			}
			if f.From == nil && f.To == nil {
				return nil, mcperrors.NewFilterError("range filter on %q needs from and/or to", f.Field)
			}
			q, err := rangeQuery(f.Field, f.From, f.To, dates[f.Field])
			if err != nil {
				return nil, err
			}
			c.ranges = append(c.ranges, q)
			c.classes = append(c.classes, ClassRange)

		case OpEq, OpIn:
			values, err := operandValues(f, op)
			if err != nil {
				return nil, err
			}
			switch {
			case faceted:
				if c.drills[f.Field] == nil {
					c.drillOrder = append(c.drillOrder, f.Field)
				}
				c.drills[f.Field] = append(c.drills[f.Field], values...)
				c.classes = append(c.classes, ClassPositiveFacet)
				if f.Field == document.FieldLanguage && op == OpEq {
					c.languageEq = append(c.languageEq, values[0])
				}
			case isKeyword:
				c.terms = append(c.terms, termSetQuery(f.Field, values))
				c.classes = append(c.classes, ClassStringTerm)
			default: // numeric
				q, err := numericSetQuery(f.Field, f, op, dates[f.Field])
				if err != nil {
					return nil, err
				}
				c.terms = append(c.terms, q)
				c.classes = append(c.classes, ClassLongPointEq)
			}

		case OpNot, OpNotIn:
			values, err := operandValues(f, op)
			if err != nil {
				return nil, err
			}
			var q query.Query
			switch {
			case faceted:
				dim, _ := document.FacetDimensionByName(f.Field)
				q = termSetQueryOn(dim.Field, values)
			case isKeyword:
				q = termSetQuery(f.Field, values)
			default:
				nq, err := numericSetQuery(f.Field, f, f.Operator, dates[f.Field])
				if err != nil {
					return nil, err
				}
				q = nq
			}
			c.negatives = append(c.negatives, q)
			c.classes = append(c.classes, ClassNegative)

		default:
			return nil, mcperrors.NewFilterError("unknown operator %q on field %q", f.Operator, f.Field)
		}
	}
	return c, nil
}

// operandValues enforces operand presence per operator and coerces
// everything to strings.
func operandValues(f Filter, op Operator) ([]string, error) {
	switch op {
	case OpEq, OpNot:
		if f.Value == nil {
			return nil, mcperrors.NewFilterError("%s filter on %q needs value", op, f.Field)
		}
		return []string{stringValue(f.Value)}, nil
	case OpIn, OpNotIn:
		if len(f.Values) == 0 {
			return nil, mcperrors.NewFilterError("%s filter on %q needs values", op, f.Field)
		}
		out := make([]string, len(f.Values))
		for i, v := range f.Values {
			out[i] = stringValue(v)
		}
		return out, nil
	}
	return nil, mcperrors.NewFilterError("unknown operator %q", op)
}

func stringValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// termSetQuery builds term-or-set on a keyword field.
func termSetQuery(field string, values []string) query.Query {
	return termSetQueryOn(field, values)
}

func termSetQueryOn(field string, values []string) query.Query {
	if len(values) == 1 {
		tq := query.NewTermQuery(values[0])
		tq.SetField(field)
		return tq
	}
	parts := make([]query.Query, len(values))
	for i, v := range values {
		tq := query.NewTermQuery(v)
		tq.SetField(field)
		parts[i] = tq
	}
	return query.NewDisjunctionQuery(parts)
}

// numericSetQuery builds exact-or-set matching on a numeric field via
// degenerate inclusive ranges.
func numericSetQuery(field string, f Filter, op Operator, isDate bool) (query.Query, error) {
	var raw []interface{}
	switch op {
	case OpEq, OpNot:
		if f.Value == nil {
			return nil, mcperrors.NewFilterError("%s filter on %q needs value", op, f.Field)
		}
		raw = []interface{}{f.Value}
	default:
		if len(f.Values) == 0 {
			return nil, mcperrors.NewFilterError("%s filter on %q needs values", op, f.Field)
		}
		raw = f.Values
	}

	parts := make([]query.Query, 0, len(raw))
	for _, v := range raw {
		n, err := numericValue(field, v, isDate)
		if err != nil {
			return nil, err
		}
		inclusive := true
		q := query.NewNumericRangeInclusiveQuery(&n, &n, &inclusive, &inclusive)
		q.SetField(field)
		parts = append(parts, q)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return query.NewDisjunctionQuery(parts), nil
}

// rangeQuery builds a point-range clause. A missing bound leaves that
// side open: from-only behaves as [from, +inf), to-only as (-inf, to].
func rangeQuery(field string, from, to interface{}, isDate bool) (query.Query, error) {
	var min, max *float64
	if from != nil {
		v, err := numericValue(field, from, isDate)
		if err != nil {
			return nil, err
		}
		min = &v
	}
	if to != nil {
		v, err := numericValue(field, to, isDate)
		if err != nil {
			return nil, err
		}
		max = &v
	}
	inclusive := true
	q := query.NewNumericRangeInclusiveQuery(min, max, &inclusive, &inclusive)
	q.SetField(field)
	return q, nil
}

// numericValue coerces a filter operand. Date fields additionally accept
// ISO-8601 strings: plain dates, local date-times assumed UTC, and zoned
// instants.
func numericValue(field string, v interface{}, isDate bool) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		if isDate {
			if ms, err := parseISODate(t); err == nil {
				return float64(ms), nil
			}
		}
		if n, err := strconv.ParseFloat(t, 64); err == nil {
			return n, nil
		}
		return 0, mcperrors.NewFilterError("cannot parse %q as a value for field %q", t, field)
	default:
		return 0, mcperrors.NewFilterError("unsupported value type %T for field %q", v, field)
	}
}

// parseISODate accepts the three ISO-8601 shapes the tool surface
// documents and returns epoch milliseconds.
func parseISODate(s string) (int64, error) {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), nil
		}
	}
	// Local date-times are assumed UTC.
	for _, layout := range []string{
		"2006-01-02T15:04:05.999",
		"2006-01-02T15:04:05",
		"2006-01-02",
	} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unparseable date %q", s)
}
