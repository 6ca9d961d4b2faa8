package analysis

import (
	"testing"

	"github.com/blevesearch/bleve/v2"
)

func BenchmarkFoldFilter(b *testing.B) {
	f := NewFoldFilter()
	for i := 0; i < b.N; i++ {
		f.Filter(tokens("Grüße", "straße", "naïve", "ordinary", "words"))
	}
}

func BenchmarkLemmatizerCacheHit(b *testing.B) {
	lm, err := NewLemmatizer("en", ModeQuery, 1024)
	if err != nil {
		b.Fatal(err)
	}
	sentence := []string{"running", "shoes", "were", "reviewed"}
	lm.LemmatizeSentence(sentence) // warm the cache
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		lm.LemmatizeSentence(sentence)
	}
}

func BenchmarkLemmatizerCacheMiss(b *testing.B) {
	lm, err := NewLemmatizer("de", ModeIndex, 2)
	if err != nil {
		b.Fatal(err)
	}
	sentences := [][]string{
		{"wurde", "unterschrieben"},
		{"ging", "gestern"},
		{"verträge", "gelesen"},
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		lm.LemmatizeSentence(sentences[i%len(sentences)])
	}
}

func BenchmarkUnicodeAnalyzer(b *testing.B) {
	if err := Setup([]string{"de", "en"}, 1024); err != nil {
		b.Fatal(err)
	}
	im := bleve.NewIndexMapping()
	if err := AddToMapping(im, []string{"de", "en"}); err != nil {
		b.Fatal(err)
	}
	analyzer := im.AnalyzerNamed(AnalyzerUnicode)
	input := []byte("Der Arbeitsvertrag wurde gestern von beiden Parteien unterschrieben und ist gültig.")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		analyzer.Analyze(input)
	}
}
