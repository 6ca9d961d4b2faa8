package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcplucene/mcplucene/internal/logging"
)

func writeFile(t *testing.T, name, content string) (string, os.FileInfo) {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)
	return path, info
}

func TestExtractPlainText(t *testing.T) {
	e := New(logging.Nop())
	path, info := writeFile(t, "note.txt", "The signed contract is attached.\nSecond line.")

	src, err := e.Extract(path, info)
	require.NoError(t, err)
	require.Equal(t, path, src.Path)
	require.Contains(t, src.Text, "signed contract")
	require.Equal(t, "The signed contract is attached.", src.Title)
	require.Equal(t, info.Size(), src.Size)
	require.Equal(t, info.ModTime(), src.Modified)
}

func TestExtractDetectsGerman(t *testing.T) {
	e := New(logging.Nop())
	path, info := writeFile(t, "vertrag.txt",
		"Der Arbeitsvertrag wurde gestern von beiden Parteien unterschrieben und ist ab sofort gültig.")

	src, err := e.Extract(path, info)
	require.NoError(t, err)
	require.Equal(t, "de", src.Language)
}

func TestExtractDetectsEnglish(t *testing.T) {
	e := New(logging.Nop())
	path, info := writeFile(t, "memo.txt",
		"This agreement was signed yesterday by both parties and is effective immediately.")

	src, err := e.Extract(path, info)
	require.NoError(t, err)
	require.Equal(t, "en", src.Language)
}

func TestExtractHTML(t *testing.T) {
	e := New(logging.Nop())
	path, info := writeFile(t, "page.html", `<!doctype html>
<html><head><title>Quarterly Report</title><style>body{}</style>
<script>ignored()</script></head>
<body><h1>Results</h1><p>Revenue grew by ten percent.</p></body></html>`)

	src, err := e.Extract(path, info)
	require.NoError(t, err)
	require.Equal(t, "Quarterly Report", src.Title)
	require.Contains(t, src.Text, "Revenue grew")
	require.NotContains(t, src.Text, "ignored()")
	require.NotContains(t, src.Text, "body{}")
	require.Equal(t, "text/html", src.MIME)
}

func TestExtractRejectsBinaryAsText(t *testing.T) {
	e := New(logging.Nop())
	path := filepath.Join(t.TempDir(), "blob.bin")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xfe, 0x00, 0x81}, 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)

	_, err = e.Extract(path, info)
	require.Error(t, err)
}

func TestExtractMissingFile(t *testing.T) {
	e := New(logging.Nop())
	path, info := writeFile(t, "gone.txt", "x")
	require.NoError(t, os.Remove(path))

	_, err := e.Extract(path, info)
	require.Error(t, err)
}

func TestFirstLineTitleTruncates(t *testing.T) {
	long := strings.Repeat("word ", 60)
	title := firstLineTitle("\n\n" + long)
	if len(title) > titleMaxLen {
		t.Errorf("title length %d exceeds %d", len(title), titleMaxLen)
	}
	if !strings.HasPrefix(title, "word") {
		t.Errorf("unexpected title %q", title)
	}
}

func TestDetectLanguageEmptyText(t *testing.T) {
	e := New(logging.Nop())
	if got := e.detectLanguage("   "); got != "" {
		t.Errorf("blank text should not detect a language, got %q", got)
	}
}
