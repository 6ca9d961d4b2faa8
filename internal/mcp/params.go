package mcp

import "github.com/mcplucene/mcplucene/internal/query"

// SearchParams is the search tool request.
type SearchParams struct {
	Query     string         `json:"query,omitempty"`
	Filters   []query.Filter `json:"filters,omitempty"`
	Page      int            `json:"page,omitempty"`
	PageSize  int            `json:"pageSize,omitempty"`
	SortBy    string         `json:"sortBy,omitempty"`
	SortOrder string         `json:"sortOrder,omitempty"`
}

// ProfileParams is the profileQuery tool request.
type ProfileParams struct {
	Query                  string         `json:"query,omitempty"`
	Filters                []query.Filter `json:"filters,omitempty"`
	AnalyzeFilterImpact    bool           `json:"analyzeFilterImpact,omitempty"`
	AnalyzeDocumentScoring bool           `json:"analyzeDocumentScoring,omitempty"`
	AnalyzeFacetCost       bool           `json:"analyzeFacetCost,omitempty"`
	MaxDocExplanations     int            `json:"maxDocExplanations,omitempty"`
}

// DocumentDetailsParams identifies a document by path.
type DocumentDetailsParams struct {
	FilePath string `json:"filePath"`
}

// StartCrawlParams controls crawl mode.
type StartCrawlParams struct {
	FullReindex bool `json:"fullReindex,omitempty"`
}

// DirectoryParams names one crawl root.
type DirectoryParams struct {
	Path     string `json:"path"`
	CrawlNow bool   `json:"crawlNow,omitempty"`
}

// OptimizeParams controls segment merging.
type OptimizeParams struct {
	MaxSegments int `json:"maxSegments,omitempty"`
}

// PurgeParams controls index purging.
type PurgeParams struct {
	Confirm   bool `json:"confirm,omitempty"`
	FullPurge bool `json:"fullPurge,omitempty"`
}

// UnlockParams confirms lock removal.
type UnlockParams struct {
	Confirm bool `json:"confirm,omitempty"`
}
