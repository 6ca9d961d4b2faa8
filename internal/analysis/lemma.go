package analysis

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/snowballstem"
	"github.com/blevesearch/snowballstem/german"
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/surgebase/porter2"
)

// Mode separates index-time and query-time lemmatization. The two never
// share a cache: index mode tags tokens with sentence context, query
// mode treats the input as a single sentence, and the same token can
// receive different tags in each.
type Mode string

const (
	ModeIndex Mode = "index"
	ModeQuery Mode = "query"
)

// Lightweight POS tags. The tagger only needs to distinguish "preserve
// case" (proper nouns) from everything else, plus a verb hint for the
// dictionaries.
const (
	tagProperNoun = "NNP"
	tagVerb       = "VB"
	tagNoun       = "NN"
)

// sentenceWindow bounds the token run treated as one sentence at index
// time. Whole-sentence lemmatization keeps tagging context; unbounded
// runs would keep huge documents pinned while the model lock is held.
const sentenceWindow = 64

// CacheStats is a snapshot of one lemma cache.
type CacheStats struct {
	Language  string `json:"language"`
	Mode      string `json:"mode"`
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// Lemmatizer resolves tokens to their dictionary lemma with a stemmer
// fallback, fronted by a bounded LRU keyed by (token, tag).
type Lemmatizer struct {
	lang string
	mode Mode

	cache     *lru.Cache[uint64, string]
	capacity  int
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64

	// modelMu serializes wholesale lemmatization; the underlying model
	// state is not safe for concurrent use. Cache hits never take it.
	modelMu sync.Mutex

	exceptions   map[string]string
	contractions map[string]string
}

// NewLemmatizer builds a lemmatizer for lang ("en" or "de") in the given
// mode with a cache bounded at capacity entries.
func NewLemmatizer(lang string, mode Mode, capacity int) (*Lemmatizer, error) {
	lm := &Lemmatizer{lang: lang, mode: mode, capacity: capacity}
	cache, err := lru.NewWithEvict[uint64, string](capacity, func(uint64, string) {
		lm.evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	lm.cache = cache

	switch lang {
	case "en":
		lm.exceptions = englishExceptions
	case "de":
		lm.exceptions = germanExceptions
		lm.contractions = germanContractions
	default:
		return nil, fmt.Errorf("unsupported lemma language %q", lang)
	}
	return lm, nil
}

// Stats snapshots cache counters.
func (lm *Lemmatizer) Stats() CacheStats {
	return CacheStats{
		Language:  lm.lang,
		Mode:      string(lm.mode),
		Size:      lm.cache.Len(),
		Capacity:  lm.capacity,
		Hits:      lm.hits.Load(),
		Misses:    lm.misses.Load(),
		Evictions: lm.evictions.Load(),
	}
}

func cacheKey(token, tag string) uint64 {
	h := xxhash.New()
	h.WriteString(token)
	h.Write([]byte{0x1f})
	h.WriteString(tag)
	return h.Sum64()
}

// normalizeForTag applies the case rule: proper-noun tags preserve case,
// every other tag lowercases the token before lookup.
func normalizeForTag(token, tag string) string {
	if tag == tagProperNoun {
		return token
	}
	return strings.ToLower(token)
}

// tagSentence assigns lightweight POS tags over one sentence. The first
// token is never tagged proper-noun on capitalization alone; mid-
// sentence capitalized tokens are.
func tagSentence(tokens []string) []string {
	tags := make([]string, len(tokens))
	for i, tok := range tokens {
		switch {
		case i > 0 && startsUpper(tok):
			tags[i] = tagProperNoun
		case looksVerbal(tok):
			tags[i] = tagVerb
		default:
			tags[i] = tagNoun
		}
	}
	return tags
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

func looksVerbal(s string) bool {
	l := strings.ToLower(s)
	return strings.HasSuffix(l, "ing") || strings.HasSuffix(l, "ed") ||
		strings.HasSuffix(l, "en") || strings.HasSuffix(l, "te") ||
		strings.HasSuffix(l, "st")
}

// LemmatizeSentence resolves a sentence worth of tokens. If every
// (token, tag) pair is cached the model lock is never taken; a single
// miss lemmatizes the whole sentence so tagging context is preserved,
// then populates the cache for all of its tokens.
func (lm *Lemmatizer) LemmatizeSentence(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}
	tags := tagSentence(tokens)

	keys := make([]uint64, len(tokens))
	out := make([]string, len(tokens))
	allHit := true
	for i, tok := range tokens {
		norm := normalizeForTag(tok, tags[i])
		keys[i] = cacheKey(norm, tags[i])
		if v, ok := lm.cache.Get(keys[i]); ok {
			out[i] = v
		} else {
			allHit = false
		}
	}
	if allHit {
		lm.hits.Add(uint64(len(tokens)))
		return out
	}
	lm.misses.Add(uint64(len(tokens)))

	lm.modelMu.Lock()
	defer lm.modelMu.Unlock()
	for i, tok := range tokens {
		norm := normalizeForTag(tok, tags[i])
		out[i] = lm.resolve(norm, tags[i])
		lm.cache.Add(keys[i], out[i])
	}
	return out
}

// resolve is the uncached path: contraction table, exception dictionary,
// then the language stemmer. The dictionary's base form is stemmed too,
// so irregular surface forms land on the same term as a regularly
// inflected query for the base (wurde → werden → werd ← werden).
// Caller holds modelMu.
func (lm *Lemmatizer) resolve(token, tag string) string {
	lower := strings.ToLower(token)
	if lm.contractions != nil {
		if expanded, ok := lm.contractions[lower]; ok {
			return expanded
		}
	}
	base, hasException := lm.exceptions[lower]
	if !hasException {
		if tag == tagProperNoun {
			return token
		}
		base = lower
	}
	return lm.stem(base)
}

func (lm *Lemmatizer) stem(s string) string {
	switch lm.lang {
	case "en":
		return porter2.Stem(s)
	case "de":
		env := snowballstem.NewEnv(s)
		german.Stem(env)
		return env.Current()
	}
	return s
}

// lemmaFilter adapts a Lemmatizer to the bleve token filter contract.
// Offsets and positions pass through unchanged; the compound splitter
// downstream handles '+' expansions.
type lemmaFilter struct {
	lm *Lemmatizer
}

func (f *lemmaFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	window := len(input)
	if f.lm.mode == ModeIndex && window > sentenceWindow {
		window = sentenceWindow
	}
	for start := 0; start < len(input); start += window {
		end := start + window
		if end > len(input) {
			end = len(input)
		}
		tokens := make([]string, end-start)
		for i := start; i < end; i++ {
			tokens[i-start] = string(input[i].Term)
		}
		lemmas := f.lm.LemmatizeSentence(tokens)
		for i := start; i < end; i++ {
			input[i].Term = []byte(lemmas[i-start])
		}
		if f.lm.mode == ModeQuery {
			break
		}
	}
	return input
}

// Lemmatizer instances are shared between the analyzer registry and the
// stats surface, so they live in a process-level registry keyed by
// (lang, mode). The bleve constructor below resolves from it.
var (
	lemmaRegMu sync.RWMutex
	lemmaReg   = map[string]*Lemmatizer{}
)

func lemmaRegKey(lang string, mode Mode) string {
	return lang + ":" + string(mode)
}

// RegisterLemmatizer makes lm resolvable by the analyzer configs.
func RegisterLemmatizer(lm *Lemmatizer) {
	lemmaRegMu.Lock()
	defer lemmaRegMu.Unlock()
	lemmaReg[lemmaRegKey(lm.lang, lm.mode)] = lm
}

// LookupLemmatizer returns a registered lemmatizer or nil.
func LookupLemmatizer(lang string, mode Mode) *Lemmatizer {
	lemmaRegMu.RLock()
	defer lemmaRegMu.RUnlock()
	return lemmaReg[lemmaRegKey(lang, mode)]
}

// AllCacheStats snapshots every registered lemma cache, for the index
// stats surface.
func AllCacheStats() []CacheStats {
	lemmaRegMu.RLock()
	defer lemmaRegMu.RUnlock()
	out := make([]CacheStats, 0, len(lemmaReg))
	for _, lm := range lemmaReg {
		out = append(out, lm.Stats())
	}
	return out
}

func lemmaFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	lang, _ := config["lang"].(string)
	modeStr, _ := config["mode"].(string)
	lm := LookupLemmatizer(lang, Mode(modeStr))
	if lm == nil {
		return nil, fmt.Errorf("no lemmatizer registered for lang=%q mode=%q", lang, modeStr)
	}
	return &lemmaFilter{lm: lm}, nil
}
