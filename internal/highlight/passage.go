// Package highlight builds scored passages from term locations. The
// locations come from term vectors, so ICU-folded indexed tokens still
// point at the original surface spans; the tags therefore always wrap
// surface text the user searched for.
package highlight

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2/search"

	"github.com/mcplucene/mcplucene/internal/analysis"
)

const (
	openTag  = "<em>"
	closeTag = "</em>"
	ellipsis = "…"
)

// Passage is one highlighted excerpt.
type Passage struct {
	Text         string   `json:"text"`
	Score        float64  `json:"score"`
	MatchedTerms []string `json:"matchedTerms,omitempty"`
	TermCoverage float64  `json:"termCoverage"`
	Position     float64  `json:"position"`
}

// Input bundles everything passage extraction needs for one hit.
type Input struct {
	Content string
	// Locations maps indexed terms to their surface locations, merged
	// over the content family only.
	Locations map[string][]*search.Location
	// QueryTerms are the normalized query leaf terms, for coverage and
	// the matched-term fallback scan.
	QueryTerms []string

	MaxPassages     int
	MaxPassageChars int
	// ContentCap bounds how much content is inspected.
	ContentCap int
}

// span is one match inside the content.
type span struct {
	start, end int
}

// candidate is a sentence with its matches, before formatting.
type candidate struct {
	start, end int
	spans      []span
	score      float64
}

// Extract builds up to MaxPassages passages. When no location falls
// inside the inspected content (hits found solely via stemmed fields), a
// single fallback passage is taken from the document start.
func Extract(in Input) []Passage {
	if in.Content == "" || in.MaxPassages <= 0 {
		return nil
	}
	content := capContent(in.Content, in.ContentCap)

	spans := collectSpans(content, in.Locations)
	if len(spans) == 0 {
		return []Passage{fallbackPassage(content, in)}
	}

	candidates := buildCandidates(content, spans)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > in.MaxPassages {
		candidates = candidates[:in.MaxPassages]
	}

	maxRaw := candidates[0].score
	out := make([]Passage, 0, len(candidates))
	for _, c := range candidates {
		text := tagSpans(content[c.start:c.end], c.spans, c.start)
		text = cleanWhitespace(text)
		text = centerWindow(text, in.MaxPassageChars)

		matched := matchedTerms(text)
		if len(matched) == 0 {
			matched = scanForTerms(text, in.QueryTerms)
		}

		out = append(out, Passage{
			Text:         text,
			Score:        round2(c.score / maxRaw),
			MatchedTerms: matched,
			TermCoverage: coverage(matched, in.QueryTerms),
			Position:     round2(float64(c.start) / float64(len(content))),
		})
	}
	return out
}

// fallbackPassage takes the document head without any tags.
func fallbackPassage(content string, in Input) Passage {
	text := centerWindow(cleanWhitespace(content), in.MaxPassageChars)
	matched := scanForTerms(text, in.QueryTerms)
	return Passage{
		Text:         text,
		Score:        1.0,
		MatchedTerms: matched,
		TermCoverage: coverage(matched, in.QueryTerms),
		Position:     0,
	}
}

// capContent cuts content at cap bytes, backing up to a rune boundary.
func capContent(content string, cap int) string {
	if cap <= 0 || len(content) <= cap {
		return content
	}
	cut := cap
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}

// collectSpans flattens and sorts the term locations that fall inside
// the inspected content, merging duplicates (the same surface span can
// be reported by both content and content_reversed).
func collectSpans(content string, locations map[string][]*search.Location) []span {
	var spans []span
	for _, locs := range locations {
		for _, loc := range locs {
			start, end := int(loc.Start), int(loc.End)
			if start < 0 || end <= start || end > len(content) {
				continue
			}
			spans = append(spans, span{start: start, end: end})
		}
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end < spans[j].end
	})
	// Drop duplicates and overlaps; the span with the leftmost start wins,
	// and on equal starts the shorter one.
	deduped := spans[:0]
	lastEnd := -1
	for _, s := range spans {
		if s.start < lastEnd {
			continue
		}
		deduped = append(deduped, s)
		lastEnd = s.end
	}
	return deduped
}

// buildCandidates segments content into sentence-ish units and scores
// every unit containing at least one match: match count plus a bonus per
// distinct surface form.
func buildCandidates(content string, spans []span) []candidate {
	bounds := sentenceBounds(content)
	var out []candidate
	si := 0
	for _, b := range bounds {
		var inUnit []span
		for si < len(spans) && spans[si].start < b.end {
			if spans[si].start >= b.start {
				inUnit = append(inUnit, spans[si])
			}
			si++
		}
		if len(inUnit) == 0 {
			continue
		}
		distinct := map[string]bool{}
		for _, s := range inUnit {
			distinct[strings.ToLower(content[s.start:s.end])] = true
		}
		out = append(out, candidate{
			start: b.start,
			end:   b.end,
			spans: inUnit,
			score: float64(len(inUnit)) + 0.5*float64(len(distinct)),
		})
	}
	return out
}

// sentenceBounds splits content after sentence punctuation or newlines,
// merging fragments shorter than a handful of words into the next unit.
func sentenceBounds(content string) []span {
	const minUnit = 30
	var bounds []span
	start := 0
	for i := 0; i < len(content); i++ {
		c := content[i]
		if c != '.' && c != '!' && c != '?' && c != '\n' {
			continue
		}
		end := i + 1
		if end-start >= minUnit {
			bounds = append(bounds, span{start: start, end: end})
			start = end
		}
	}
	if start < len(content) {
		bounds = append(bounds, span{start: start, end: len(content)})
	}
	return bounds
}

// tagSpans wraps each span with em tags. Spans are absolute; base is the
// passage's offset into the content.
func tagSpans(text string, spans []span, base int) string {
	var b strings.Builder
	prev := 0
	for _, s := range spans {
		start, end := s.start-base, s.end-base
		if start < prev || end > len(text) {
			continue
		}
		b.WriteString(text[prev:start])
		b.WriteString(openTag)
		b.WriteString(text[start:end])
		b.WriteString(closeTag)
		prev = end
	}
	b.WriteString(text[prev:])
	return b.String()
}

// cleanWhitespace converts newlines to spaces and collapses runs.
func cleanWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// centerWindow truncates text to maxLen via a window centred on the
// highlighted region: locate the first opening and last closing tag,
// centre the window on that span, redistribute budget when one side hits
// a boundary, trim the edges to word boundaries, and mark cuts with an
// ellipsis.
func centerWindow(text string, maxLen int) string {
	if maxLen <= 0 || len(text) <= maxLen {
		return text
	}

	first := strings.Index(text, openTag)
	last := strings.LastIndex(text, closeTag)
	var hlStart, hlEnd int
	if first >= 0 && last >= 0 {
		hlStart = first
		hlEnd = last + len(closeTag)
	} else {
		hlStart, hlEnd = 0, 0
	}

	if hlEnd-hlStart >= maxLen {
		// The highlighted region alone exceeds the budget; keep its head.
		return trimToWordEnd(text[hlStart:hlStart+maxLen]) + ellipsis
	}

	budget := maxLen - (hlEnd - hlStart)
	left := hlStart - budget/2
	right := hlEnd + (budget - budget/2)
	if left < 0 {
		right += -left
		left = 0
	}
	if right > len(text) {
		left -= right - len(text)
		right = len(text)
		if left < 0 {
			left = 0
		}
	}

	window := text[left:right]
	prefix, suffix := "", ""
	if left > 0 {
		window = trimToWordStart(window)
		prefix = ellipsis
	}
	if right < len(text) {
		window = trimToWordEnd(window)
		suffix = ellipsis
	}
	return prefix + window + suffix
}

// trimToWordStart drops a leading partial word.
func trimToWordStart(s string) string {
	if idx := strings.IndexByte(s, ' '); idx >= 0 && idx < len(s)-1 {
		return s[idx+1:]
	}
	return s
}

// trimToWordEnd drops a trailing partial word.
func trimToWordEnd(s string) string {
	if idx := strings.LastIndexByte(s, ' '); idx > 0 {
		return s[:idx]
	}
	return s
}

// matchedTerms pulls the text between em tags, deduplicated
// case-insensitively, in first-seen order.
func matchedTerms(text string) []string {
	var out []string
	seen := map[string]bool{}
	rest := text
	for {
		open := strings.Index(rest, openTag)
		if open < 0 {
			return out
		}
		rest = rest[open+len(openTag):]
		closeIdx := strings.Index(rest, closeTag)
		if closeIdx < 0 {
			return out
		}
		term := rest[:closeIdx]
		rest = rest[closeIdx+len(closeTag):]
		key := strings.ToLower(term)
		if !seen[key] {
			seen[key] = true
			out = append(out, term)
		}
	}
}

// scanForTerms finds query terms appearing in the cleaned passage after
// folding, used when no tags are present (stemmed-field hits).
func scanForTerms(text string, queryTerms []string) []string {
	folded := strings.ToLower(analysis.FoldTerm(text))
	var out []string
	for _, term := range queryTerms {
		if len(term) < 2 {
			continue
		}
		if strings.Contains(folded, term) {
			out = append(out, term)
		}
	}
	return out
}

// coverage is |unique matched ∩ query| / |query|, 1.0 when both empty.
func coverage(matched, queryTerms []string) float64 {
	if len(queryTerms) == 0 {
		return 1.0
	}
	querySet := map[string]bool{}
	for _, q := range queryTerms {
		querySet[q] = true
	}
	hit := map[string]bool{}
	for _, m := range matched {
		norm := strings.ToLower(analysis.FoldTerm(m))
		if querySet[norm] {
			hit[norm] = true
		}
	}
	return round2(float64(len(hit)) / float64(len(querySet)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
