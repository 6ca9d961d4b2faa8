// Package analysis provides the token producers for every indexed
// content view: unicode normalization, token reversal, German digraph
// transliteration, and dictionary lemmatization with per-language
// caches. All filters are registered with the bleve registry so the
// index mapping can assemble them by name.
package analysis

import (
	"bytes"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/registry"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Registered type names. Instances are declared per index mapping; the
// types below are global to the process.
const (
	FoldFilterType    = "mcpl_fold"
	ReverseFilterType = "mcpl_reverse"
	TranslitCharType  = "mcpl_translit_de"
	CompoundSplitType = "mcpl_compound_split"
	LemmaFilterType   = "mcpl_lemma"
)

// foldSpecials handles characters that unicode decomposition alone does
// not reduce to their searchable ASCII-adjacent forms.
var foldSpecials = strings.NewReplacer(
	"ß", "ss",
	"ẞ", "ss",
	"æ", "ae",
	"Æ", "ae",
	"œ", "oe",
	"Œ", "oe",
	"ø", "o",
	"Ø", "o",
	"đ", "d",
	"Đ", "d",
	"ł", "l",
	"Ł", "l",
)

// foldTransform strips combining marks after canonical decomposition and
// recomposes with compatibility mappings (ligatures, width variants).
func foldTransform() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFKC)
}

// foldString folds one term: special-case table, then the transform
// chain. Falls back to the replaced input when the transform errors.
func foldString(term string) string {
	replaced := foldSpecials.Replace(term)
	folded, _, err := transform.String(foldTransform(), replaced)
	if err != nil {
		return replaced
	}
	return folded
}

// FoldFilter folds each token: compatibility normalization, diacritic
// removal, and the special-case table above. Offsets are untouched so
// term vectors keep pointing at the original surface spans.
type FoldFilter struct{}

func NewFoldFilter() *FoldFilter { return &FoldFilter{} }

func (f *FoldFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	for _, token := range input {
		token.Term = []byte(foldString(string(token.Term)))
	}
	return input
}

// ReverseFilter reverses each token character-wise. Combined with a
// trailing-wildcard query this turns a leading wildcard into a prefix
// scan on the reversed field.
type ReverseFilter struct{}

func NewReverseFilter() *ReverseFilter { return &ReverseFilter{} }

func (f *ReverseFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	for _, token := range input {
		token.Term = []byte(ReverseString(string(token.Term)))
	}
	return input
}

// ReverseString reverses s rune-wise. Shared with the query planner's
// leading-wildcard rewrite so both sides agree byte-for-byte.
func ReverseString(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

// germanDigraphs maps the ASCII digraph spellings back to umlauts before
// tokenization. blue → blü → blu is a documented false positive; the
// transliterated view is only ever queried as a low-boost shadow.
var germanDigraphs = strings.NewReplacer(
	"ae", "ä",
	"oe", "ö",
	"ue", "ü",
	"Ae", "Ä",
	"Oe", "Ö",
	"Ue", "Ü",
	"AE", "Ä",
	"OE", "Ö",
	"UE", "Ü",
)

// TranslitCharFilter rewrites German digraphs on the raw input, ahead of
// tokenization, so offsets produced by the tokenizer refer to the
// rewritten text consistently.
type TranslitCharFilter struct{}

func NewTranslitCharFilter() *TranslitCharFilter { return &TranslitCharFilter{} }

func (f *TranslitCharFilter) Filter(input []byte) []byte {
	if !bytes.ContainsAny(input, "aeouAEOU") {
		return input
	}
	return []byte(germanDigraphs.Replace(string(input)))
}

// CompoundSplitFilter splits tokens containing '+' into sequential
// tokens that share the source token's offsets. The lemmatizer emits
// such tokens for German contractions (im → in+dem).
type CompoundSplitFilter struct{}

func NewCompoundSplitFilter() *CompoundSplitFilter { return &CompoundSplitFilter{} }

func (f *CompoundSplitFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	needSplit := false
	for _, token := range input {
		if bytes.ContainsRune(token.Term, '+') {
			needSplit = true
			break
		}
	}
	if !needSplit {
		return input
	}

	output := make(analysis.TokenStream, 0, len(input)+2)
	delta := 0
	for _, token := range input {
		token.Position += delta
		if !bytes.ContainsRune(token.Term, '+') {
			output = append(output, token)
			continue
		}
		parts := bytes.Split(token.Term, []byte("+"))
		pos := token.Position
		for _, part := range parts {
			if len(part) == 0 {
				continue
			}
			output = append(output, &analysis.Token{
				Term:     part,
				Start:    token.Start,
				End:      token.End,
				Position: pos,
				Type:     token.Type,
			})
			pos++
		}
		delta += pos - token.Position - 1
	}
	return output
}

func foldFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return NewFoldFilter(), nil
}

func reverseFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return NewReverseFilter(), nil
}

func compoundSplitConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return NewCompoundSplitFilter(), nil
}

func translitCharConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.CharFilter, error) {
	return NewTranslitCharFilter(), nil
}

func init() {
	registry.RegisterTokenFilter(FoldFilterType, foldFilterConstructor)
	registry.RegisterTokenFilter(ReverseFilterType, reverseFilterConstructor)
	registry.RegisterTokenFilter(CompoundSplitType, compoundSplitConstructor)
	registry.RegisterTokenFilter(LemmaFilterType, lemmaFilterConstructor)
	registry.RegisterCharFilter(TranslitCharType, translitCharConstructor)
}
