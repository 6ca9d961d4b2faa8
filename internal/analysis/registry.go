package analysis

import (
	"fmt"

	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Analyzer names as referenced by field mappings and the query planner.
const (
	AnalyzerUnicode    = "uninorm"
	AnalyzerReversed   = "uninorm_reversed"
	AnalyzerTranslitDE = "translit_de"
)

// LemmaIndexAnalyzer names the index-time lemma analyzer for lang.
func LemmaIndexAnalyzer(lang string) string {
	return "lemma_" + lang + "_index"
}

// LemmaQueryAnalyzer names the query-time lemma analyzer for lang.
func LemmaQueryAnalyzer(lang string) string {
	return "lemma_" + lang + "_query"
}

func lemmaFilterName(lang string, mode Mode) string {
	return "mcpl_lemma_" + lang + "_" + string(mode)
}

// Setup creates and registers the per-language lemmatizers. Index and
// query mode get independent caches of the same capacity. Safe to call
// again; existing instances are replaced.
func Setup(languages []string, cacheCapacity int) error {
	for _, lang := range languages {
		for _, mode := range []Mode{ModeIndex, ModeQuery} {
			lm, err := NewLemmatizer(lang, mode, cacheCapacity)
			if err != nil {
				return err
			}
			RegisterLemmatizer(lm)
		}
	}
	return nil
}

// AddToMapping declares every custom filter and analyzer on the index
// mapping. Setup must have run first so the lemma filters can resolve
// their instances.
func AddToMapping(im *mapping.IndexMappingImpl, languages []string) error {
	if err := im.AddCustomCharFilter(TranslitCharType, map[string]interface{}{
		"type": TranslitCharType,
	}); err != nil {
		return fmt.Errorf("register char filter: %w", err)
	}

	for _, name := range []string{FoldFilterType, ReverseFilterType, CompoundSplitType} {
		if err := im.AddCustomTokenFilter(name, map[string]interface{}{"type": name}); err != nil {
			return fmt.Errorf("register token filter %s: %w", name, err)
		}
	}

	if err := im.AddCustomAnalyzer(AnalyzerUnicode, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []interface{}{
			lowercase.Name,
			FoldFilterType,
		},
	}); err != nil {
		return fmt.Errorf("register analyzer %s: %w", AnalyzerUnicode, err)
	}

	if err := im.AddCustomAnalyzer(AnalyzerReversed, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []interface{}{
			lowercase.Name,
			FoldFilterType,
			ReverseFilterType,
		},
	}); err != nil {
		return fmt.Errorf("register analyzer %s: %w", AnalyzerReversed, err)
	}

	if err := im.AddCustomAnalyzer(AnalyzerTranslitDE, map[string]interface{}{
		"type":         custom.Name,
		"char_filters": []interface{}{TranslitCharType},
		"tokenizer":    unicode.Name,
		"token_filters": []interface{}{
			lowercase.Name,
			FoldFilterType,
		},
	}); err != nil {
		return fmt.Errorf("register analyzer %s: %w", AnalyzerTranslitDE, err)
	}

	for _, lang := range languages {
		for _, mode := range []Mode{ModeIndex, ModeQuery} {
			filterName := lemmaFilterName(lang, mode)
			if err := im.AddCustomTokenFilter(filterName, map[string]interface{}{
				"type": LemmaFilterType,
				"lang": lang,
				"mode": string(mode),
			}); err != nil {
				return fmt.Errorf("register lemma filter %s: %w", filterName, err)
			}

			analyzerName := LemmaIndexAnalyzer(lang)
			if mode == ModeQuery {
				analyzerName = LemmaQueryAnalyzer(lang)
			}
			if err := im.AddCustomAnalyzer(analyzerName, map[string]interface{}{
				"type":      custom.Name,
				"tokenizer": unicode.Name,
				"token_filters": []interface{}{
					filterName,
					CompoundSplitType,
					lowercase.Name,
					FoldFilterType,
				},
			}); err != nil {
				return fmt.Errorf("register analyzer %s: %w", analyzerName, err)
			}
		}
	}
	return nil
}

// FoldTerm applies the same normalization the unicode analyzer applies
// to tokens, for callers that compare query terms against passage text.
func FoldTerm(term string) string {
	return foldString(term)
}
