package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsBadTuning(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty index path", func(c *Config) { c.Index.Path = "" }},
		{"zero refresh", func(c *Config) { c.Index.NRTRefreshIntervalMs = 0 }},
		{"slow below base", func(c *Config) { c.Index.SlowNRTRefreshIntervalMs = c.Index.NRTRefreshIntervalMs - 1 }},
		{"zero workers", func(c *Config) { c.Crawler.ThreadPoolSize = 0 }},
		{"huge batch", func(c *Config) { c.Crawler.BatchSize = 20000 }},
		{"no includes", func(c *Config) { c.Crawler.Include = nil }},
		{"bad language", func(c *Config) { c.Analysis.LemmaLanguages = []string{"fr"} }},
		{"page size above cap", func(c *Config) { c.Search.MaxPageSize = 500 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestEnvRootsOverride(t *testing.T) {
	t.Setenv(EnvCrawlerDirectories, "/data/docs, /data/archive,")

	roots := EnvRoots()
	require.Equal(t, []string{"/data/docs", "/data/archive"}, roots)
	require.True(t, RootsLocked())

	cfg := Default()
	cfg.Runtime = &RuntimeConfig{}
	require.Equal(t, roots, cfg.CrawlRoots())
}

func TestRuntimeAddRemoveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	rc, err := LoadRuntime(path)
	require.NoError(t, err)

	docs := filepath.Join(dir, "docs")
	require.NoError(t, os.Mkdir(docs, 0o755))

	before := rc.Roots()
	require.NoError(t, rc.AddRoot(docs))
	require.Equal(t, []string{docs}, rc.Roots())

	// Adding twice is a no-op.
	require.NoError(t, rc.AddRoot(docs))
	require.Len(t, rc.Roots(), 1)

	require.NoError(t, rc.RemoveRoot(docs))
	require.Equal(t, before, rc.Roots())

	// The file round-trips through YAML.
	require.NoError(t, rc.AddRoot(docs))
	reloaded, err := LoadRuntime(path)
	require.NoError(t, err)
	require.Equal(t, []string{docs}, reloaded.Roots())
}

func TestRuntimeRejectsRelativeAndMissing(t *testing.T) {
	rc := &RuntimeConfig{}
	if err := rc.AddRoot("relative/path"); err == nil {
		t.Error("expected error for relative path")
	}
	if err := rc.AddRoot(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
	if err := rc.RemoveRoot("/never/added"); err == nil {
		t.Error("expected error removing unknown root")
	}
}

func TestRecordCrawlPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	rc, err := LoadRuntime(path)
	require.NoError(t, err)

	state := LastCrawl{CompletionTimeMs: 1700000000000, DocumentCount: 42, Mode: "incremental"}
	require.NoError(t, rc.RecordCrawl(state))

	reloaded, err := LoadRuntime(path)
	require.NoError(t, err)
	require.Equal(t, state, reloaded.LastCrawlState())
}
