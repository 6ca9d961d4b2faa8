// Package extract converts files into document sources: binary→text
// conversion per format, metadata extraction, language detection, and
// the content hash input.
package extract

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"github.com/lu4p/cat"
	"github.com/pemistahl/lingua-go"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/mcplucene/mcplucene/internal/document"
)

// langSampleSize bounds how much text feeds language detection.
const langSampleSize = 2048

// titleMaxLen bounds titles derived from content.
const titleMaxLen = 120

// Extractor turns files into document.Source records. Safe for
// concurrent use; the language detector is immutable after construction.
type Extractor struct {
	detector lingua.LanguageDetector
	log      *zap.Logger
}

// New builds an extractor detecting the lemma-supported languages.
func New(log *zap.Logger) *Extractor {
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(lingua.English, lingua.German).
		Build()
	return &Extractor{detector: detector, log: log}
}

// Extract reads and converts one file. Per-file failures are returned to
// the caller, which counts them and moves on; nothing here aborts a
// crawl.
func (e *Extractor) Extract(path string, info os.FileInfo) (document.Source, error) {
	src := document.Source{
		Path: path,
		Size: info.Size(),
		// File creation time is not portable; the modification time
		// stands in for both.
		Created:  info.ModTime(),
		Modified: info.ModTime(),
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	var err error
	switch ext {
	case "pdf":
		src.Text, err = extractPDF(path)
		src.MIME = "application/pdf"
	case "docx", "odt", "rtf":
		src.Text, err = extractOffice(path)
	case "xlsx":
		src.Text, err = e.extractXLSX(path, &src)
		src.MIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "html", "htm":
		src.Text, src.Title, err = extractHTML(path)
		src.MIME = "text/html"
	default:
		src.Text, err = extractPlainText(path)
	}
	if err != nil {
		return document.Source{}, fmt.Errorf("extract %s: %w", path, err)
	}

	if src.MIME == "" {
		src.MIME = detectMIME(path)
	}
	if src.Title == "" {
		src.Title = firstLineTitle(src.Text)
	}
	src.Language = e.detectLanguage(src.Text)
	return src, nil
}

// detectMIME sniffs the file content, falling back to a generic type.
func detectMIME(path string) string {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}
	return mtype.String()
}

// detectLanguage returns the ISO-639-1 code of the detected language, or
// "" when detection is not confident.
func (e *Extractor) detectLanguage(text string) string {
	sample := text
	if len(sample) > langSampleSize {
		cut := langSampleSize
		for cut > 0 && !utf8.RuneStart(sample[cut]) {
			cut--
		}
		sample = sample[:cut]
	}
	if strings.TrimSpace(sample) == "" {
		return ""
	}
	lang, ok := e.detector.DetectLanguageOf(sample)
	if !ok {
		return ""
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}

func extractPlainText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("file is not valid UTF-8 text")
	}
	return string(data), nil
}

func extractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(plain)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func extractOffice(path string) (string, error) {
	return cat.File(path)
}

// extractXLSX joins all cell values row-wise and lifts the workbook
// properties into the document metadata.
func (e *Extractor) extractXLSX(path string, src *document.Source) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if props, perr := f.GetDocProps(); perr == nil && props != nil {
		if props.Title != "" {
			src.Title = props.Title
		}
		if props.Creator != "" {
			src.Creators = append(src.Creators, props.Creator)
		}
		if props.Subject != "" {
			src.Subjects = append(src.Subjects, props.Subject)
		}
		src.Keywords = props.Keywords
	}

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, rerr := f.GetRows(sheet)
		if rerr != nil {
			e.log.Debug("skipping unreadable sheet", zap.String("path", path), zap.String("sheet", sheet), zap.Error(rerr))
			continue
		}
		for _, row := range rows {
			for i, cell := range row {
				if i > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(cell)
			}
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

// extractHTML collects the visible text and the document title, skipping
// script and style subtrees.
func extractHTML(path string) (text, title string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return "", "", err
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "title":
				if n.FirstChild != nil && title == "" {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
		case html.TextNode:
			trimmed := strings.TrimSpace(n.Data)
			if trimmed != "" {
				b.WriteString(trimmed)
				b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String(), title, nil
}

// firstLineTitle derives a title from the first non-empty line.
func firstLineTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if len(trimmed) > titleMaxLen {
			cut := titleMaxLen
			for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
				cut--
			}
			trimmed = trimmed[:cut]
		}
		return trimmed
	}
	return ""
}
