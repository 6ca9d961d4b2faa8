package query

import (
	"strings"

	"github.com/mcplucene/mcplucene/internal/analysis"
	mcperrors "github.com/mcplucene/mcplucene/internal/errors"
)

// occur is the boolean role of one parsed token.
type occur int

const (
	occurShould occur = iota
	occurMust
	occurMustNot
)

// termKind classifies one parsed token.
type termKind int

const (
	kindTerm termKind = iota
	kindPhrase
	kindWildcard
)

// termSpec is one token of the user query string. The planner turns a
// spec into field-specific bleve queries; keeping the raw text around
// lets the lemma expansion re-parse the same tokens per language.
type termSpec struct {
	kind  termKind
	text  string
	occur occur
}

// parseQueryString splits the raw query into specs: quoted phrases,
// wildcard terms (containing * or ?), and plain terms, each optionally
// prefixed with + (must) or - (must not).
func parseQueryString(raw string) ([]termSpec, error) {
	var specs []termSpec
	rest := strings.TrimSpace(raw)
	for rest != "" {
		oc := occurShould
		switch rest[0] {
		case '+':
			oc = occurMust
			rest = rest[1:]
		case '-':
			oc = occurMustNot
			rest = rest[1:]
		}
		if rest == "" || rest[0] == ' ' {
			return nil, mcperrors.NewParseError("dangling +/- operator in query")
		}

		if rest[0] == '"' {
			end := strings.IndexByte(rest[1:], '"')
			if end < 0 {
				return nil, mcperrors.NewParseError("unbalanced quote in query")
			}
			phrase := rest[1 : 1+end]
			rest = strings.TrimSpace(rest[end+2:])
			if strings.TrimSpace(phrase) == "" {
				return nil, mcperrors.NewParseError("empty phrase in query")
			}
			specs = append(specs, termSpec{kind: kindPhrase, text: phrase, occur: oc})
			continue
		}

		token := rest
		if idx := strings.IndexByte(rest, ' '); idx >= 0 {
			token = rest[:idx]
			rest = strings.TrimSpace(rest[idx+1:])
		} else {
			rest = ""
		}

		if strings.ContainsAny(token, "*?") {
			core := strings.Trim(token, "*?")
			if core == "" {
				return nil, mcperrors.NewParseError("wildcard-only term " + token + " in query")
			}
			specs = append(specs, termSpec{kind: kindWildcard, text: token, occur: oc})
			continue
		}
		specs = append(specs, termSpec{kind: kindTerm, text: token, occur: oc})
	}
	if len(specs) == 0 {
		return nil, mcperrors.NewParseError("query contained no searchable terms")
	}
	return specs, nil
}

// LeafTerms extracts the normalized leaf terms of the parsed query, for
// passage matched-term fallback and coverage. Wildcard markers and
// boolean operators are stripped; tokens shorter than two characters are
// dropped; the result is deduplicated case-insensitively.
func LeafTerms(specs []termSpec) []string {
	seen := map[string]bool{}
	var out []string
	add := func(tok string) {
		norm := strings.ToLower(analysis.FoldTerm(tok))
		if len(norm) < 2 || seen[norm] {
			return
		}
		seen[norm] = true
		out = append(out, norm)
	}
	for _, spec := range specs {
		if spec.occur == occurMustNot {
			continue
		}
		switch spec.kind {
		case kindPhrase:
			for _, tok := range strings.Fields(spec.text) {
				add(tok)
			}
		case kindWildcard:
			add(strings.Trim(spec.text, "*?"))
		default:
			add(spec.text)
		}
	}
	return out
}

// wildcardShape reports whether the token has leading and/or trailing
// wildcards, plus its core text.
func wildcardShape(token string) (leading, trailing bool, core string) {
	leading = strings.HasPrefix(token, "*") || strings.HasPrefix(token, "?")
	trailing = strings.HasSuffix(token, "*") || strings.HasSuffix(token, "?")
	core = strings.Trim(token, "*?")
	return leading, trailing, core
}

// normalizeWildcard lowercases and folds wildcard text the way the field
// analyzer would have at index time; parsers never run analyzers over
// wildcard terms, so the planner does it here.
func normalizeWildcard(token string) string {
	return strings.ToLower(analysis.FoldTerm(token))
}
