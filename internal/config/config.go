package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// EnvCrawlerDirectories supersedes the persisted crawl roots when set.
// Comma-separated absolute paths. While present, the add/remove tools
// are refused so the environment stays authoritative.
const EnvCrawlerDirectories = "LUCENE_CRAWLER_DIRECTORIES"

// Config is the full runtime configuration: index location, crawler
// tuning, analyzer tuning, and the persisted crawl roots.
type Config struct {
	Index    Index
	Crawler  Crawler
	Analysis Analysis
	Search   Search

	// Runtime holds the persisted portion (crawl roots, last-crawl
	// state) loaded from ~/.mcplucene/config.yaml.
	Runtime *RuntimeConfig
}

type Index struct {
	// Path of the on-disk index directory.
	Path string

	// NRTRefreshIntervalMs is the base searcher refresh interval.
	NRTRefreshIntervalMs int

	// SlowNRTRefreshIntervalMs is used while a bulk crawl is in flight.
	SlowNRTRefreshIntervalMs int

	// BulkIndexThreshold switches refresh to the slow interval once more
	// than this many files are pending.
	BulkIndexThreshold int
}

type Crawler struct {
	Include []string
	Exclude []string

	ThreadPoolSize int
	QueueCapacity  int

	BatchSize      int
	BatchTimeoutMs int

	MaxFileSize int64

	FollowSymlinks  bool
	WatchMode       bool
	WatchDebounceMs int

	ProgressNotificationFiles      int
	ProgressNotificationIntervalMs int
}

type Analysis struct {
	// LemmaCacheSize bounds each per-language lemmatizer cache.
	LemmaCacheSize int

	// Languages with lemma shadow fields. Order is stable and drives
	// field naming (content_lemma_<lang>).
	LemmaLanguages []string
}

type Search struct {
	DefaultPageSize      int
	MaxPageSize          int
	MaxPassages          int
	MaxPassageCharLength int

	// HighlightContentCap bounds how much stored content the passage
	// builder inspects per document.
	HighlightContentCap int
}

// Default returns the built-in configuration. The index lives under
// ~/.mcplucene/index unless overridden.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	return &Config{
		Index: Index{
			Path:                     filepath.Join(home, ".mcplucene", "index"),
			NRTRefreshIntervalMs:     1000,
			SlowNRTRefreshIntervalMs: 5000,
			BulkIndexThreshold:       1000,
		},
		Crawler: Crawler{
			Include: []string{
				"**/*.txt", "**/*.md", "**/*.pdf", "**/*.html", "**/*.htm",
				"**/*.docx", "**/*.odt", "**/*.rtf", "**/*.xlsx", "**/*.csv",
			},
			Exclude: []string{
				"**/.*/**", "**/node_modules/**", "**/~$*",
			},
			ThreadPoolSize:                 workers,
			QueueCapacity:                  2048,
			BatchSize:                      100,
			BatchTimeoutMs:                 5000,
			MaxFileSize:                    64 << 20,
			FollowSymlinks:                 false,
			WatchMode:                      false,
			WatchDebounceMs:                500,
			ProgressNotificationFiles:      100,
			ProgressNotificationIntervalMs: 5000,
		},
		Analysis: Analysis{
			LemmaCacheSize: 10000,
			LemmaLanguages: []string{"de", "en"},
		},
		Search: Search{
			DefaultPageSize:      10,
			MaxPageSize:          100,
			MaxPassages:          3,
			MaxPassageCharLength: 200,
			HighlightContentCap:  10000,
		},
	}
}

// Validate checks tuning values are sane before anything starts.
func (c *Config) Validate() error {
	if c.Index.Path == "" {
		return fmt.Errorf("index path must not be empty")
	}
	if c.Index.NRTRefreshIntervalMs <= 0 {
		return fmt.Errorf("NRTRefreshIntervalMs must be positive, got %d", c.Index.NRTRefreshIntervalMs)
	}
	if c.Index.SlowNRTRefreshIntervalMs < c.Index.NRTRefreshIntervalMs {
		return fmt.Errorf("SlowNRTRefreshIntervalMs (%d) must be >= NRTRefreshIntervalMs (%d)",
			c.Index.SlowNRTRefreshIntervalMs, c.Index.NRTRefreshIntervalMs)
	}
	if c.Crawler.ThreadPoolSize <= 0 {
		return fmt.Errorf("ThreadPoolSize must be positive, got %d", c.Crawler.ThreadPoolSize)
	}
	if c.Crawler.BatchSize <= 0 || c.Crawler.BatchSize > 10000 {
		return fmt.Errorf("BatchSize must be in (0,10000], got %d", c.Crawler.BatchSize)
	}
	if c.Crawler.QueueCapacity <= 0 {
		return fmt.Errorf("QueueCapacity must be positive, got %d", c.Crawler.QueueCapacity)
	}
	if len(c.Crawler.Include) == 0 {
		return fmt.Errorf("at least one include pattern is required")
	}
	if c.Analysis.LemmaCacheSize <= 0 {
		return fmt.Errorf("LemmaCacheSize must be positive, got %d", c.Analysis.LemmaCacheSize)
	}
	for _, lang := range c.Analysis.LemmaLanguages {
		if lang != "de" && lang != "en" {
			return fmt.Errorf("unsupported lemma language %q", lang)
		}
	}
	if c.Search.MaxPageSize <= 0 || c.Search.MaxPageSize > 100 {
		return fmt.Errorf("MaxPageSize must be in (0,100], got %d", c.Search.MaxPageSize)
	}
	return nil
}

// EnvRoots returns the environment-supplied crawl roots, or nil when the
// override is absent. Blank entries are dropped.
func EnvRoots() []string {
	raw, ok := os.LookupEnv(EnvCrawlerDirectories)
	if !ok {
		return nil
	}
	parts := strings.Split(raw, ",")
	roots := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			roots = append(roots, trimmed)
		}
	}
	return roots
}

// RootsLocked reports whether the environment override is active, in
// which case the add/remove directory tools are refused.
func RootsLocked() bool {
	_, ok := os.LookupEnv(EnvCrawlerDirectories)
	return ok
}

// CrawlRoots resolves the effective crawl roots: environment override
// first, persisted runtime config otherwise.
func (c *Config) CrawlRoots() []string {
	if env := EnvRoots(); env != nil {
		return env
	}
	if c.Runtime == nil {
		return nil
	}
	return c.Runtime.Roots()
}
