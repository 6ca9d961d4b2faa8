package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// RuntimeConfig is the persisted slice of configuration: the crawl roots
// managed through the directory tools plus the last-crawl bookkeeping.
// It lives at ~/.mcplucene/config.yaml and is rewritten atomically on
// every mutation.
type RuntimeConfig struct {
	mu   sync.Mutex
	path string
	doc  runtimeDoc
}

type runtimeDoc struct {
	CrawlDirectories []string  `yaml:"crawl_directories"`
	LastCrawl        LastCrawl `yaml:"last_crawl"`
}

// LastCrawl records the outcome of the most recent completed crawl.
type LastCrawl struct {
	CompletionTimeMs int64  `yaml:"last_completion_time_ms"`
	DocumentCount    uint64 `yaml:"last_document_count"`
	Mode             string `yaml:"last_crawl_mode"`
}

// DefaultRuntimePath returns ~/.mcplucene/config.yaml.
func DefaultRuntimePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mcplucene", "config.yaml"), nil
}

// LoadRuntime reads the runtime config, creating an empty one when the
// file does not exist yet.
func LoadRuntime(path string) (*RuntimeConfig, error) {
	rc := &RuntimeConfig{path: path}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return rc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read runtime config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &rc.doc); err != nil {
		return nil, fmt.Errorf("parse runtime config %s: %w", path, err)
	}
	return rc, nil
}

// Roots returns a copy of the configured crawl roots.
func (rc *RuntimeConfig) Roots() []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]string, len(rc.doc.CrawlDirectories))
	copy(out, rc.doc.CrawlDirectories)
	return out
}

// AddRoot adds an absolute directory path. Adding an existing root is a
// no-op so add/remove pairs round-trip cleanly.
func (rc *RuntimeConfig) AddRoot(path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("crawl directory must be absolute: %s", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("crawl directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("crawl directory is not a directory: %s", path)
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	for _, existing := range rc.doc.CrawlDirectories {
		if existing == path {
			return nil
		}
	}
	rc.doc.CrawlDirectories = append(rc.doc.CrawlDirectories, path)
	sort.Strings(rc.doc.CrawlDirectories)
	return rc.saveLocked()
}

// RemoveRoot removes a previously added directory.
func (rc *RuntimeConfig) RemoveRoot(path string) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	kept := rc.doc.CrawlDirectories[:0]
	found := false
	for _, existing := range rc.doc.CrawlDirectories {
		if existing == path {
			found = true
			continue
		}
		kept = append(kept, existing)
	}
	if !found {
		return fmt.Errorf("crawl directory not configured: %s", path)
	}
	rc.doc.CrawlDirectories = kept
	return rc.saveLocked()
}

// LastCrawlState returns the persisted last-crawl record.
func (rc *RuntimeConfig) LastCrawlState() LastCrawl {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.doc.LastCrawl
}

// RecordCrawl persists the outcome of a completed crawl.
func (rc *RuntimeConfig) RecordCrawl(state LastCrawl) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.doc.LastCrawl = state
	return rc.saveLocked()
}

// saveLocked writes the YAML file via a temp-file rename. Caller holds mu.
func (rc *RuntimeConfig) saveLocked() error {
	if rc.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(rc.path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(&rc.doc)
	if err != nil {
		return err
	}
	tmp := rc.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, rc.path)
}
