// Package mcp exposes the search engine as MCP tools over stdio. The
// transport owns stdout; all logging goes through the file-backed zap
// logger.
package mcp

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/mcplucene/mcplucene/internal/config"
	"github.com/mcplucene/mcplucene/internal/crawler"
	"github.com/mcplucene/mcplucene/internal/extract"
	"github.com/mcplucene/mcplucene/internal/index"
	"github.com/mcplucene/mcplucene/internal/query"
	"github.com/mcplucene/mcplucene/internal/stats"
	"github.com/mcplucene/mcplucene/internal/version"
)

// Server wires the tool surface to the core components. It borrows the
// index service and crawler; ownership stays with the caller.
type Server struct {
	cfg     *config.Config
	log     *zap.Logger
	svc     *index.Service
	crawler *crawler.Crawler
	planner *query.Planner

	server *mcp.Server
}

// NewServer assembles the tool surface over an opened index service.
func NewServer(cfg *config.Config, svc *index.Service, log *zap.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		log:     log,
		svc:     svc,
		crawler: crawler.New(cfg, svc, extract.New(log), log),
		planner: query.NewPlanner(svc, cfg, log),
	}
	s.crawler.SetNotifier(func(snap stats.CrawlSnapshot) {
		s.log.Info("crawl progress",
			zap.Int64("found", snap.FilesFound),
			zap.Int64("processed", snap.FilesProcessed),
			zap.Int64("indexed", snap.FilesIndexed),
			zap.Int64("failed", snap.FilesFailed),
			zap.String("current", snap.CurrentlyProcessing))
	})

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "mcplucene",
		Version: version.Version,
	}, nil)
	s.registerTools()
	return s
}

// Crawler exposes the crawler for the CLI's one-shot mode.
func (s *Server) Crawler() *crawler.Crawler {
	return s.crawler
}

// Run serves the stdio transport until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close stops the crawler; the index service is closed by its owner.
func (s *Server) Close() {
	s.crawler.Stop()
}

func strProp(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: desc}
}

func intProp(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "integer", Description: desc}
}

func boolProp(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "boolean", Description: desc}
}

func filtersProp() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "array",
		Description: "Structured filters: {field, operator (eq|in|not|not_in|range), value, values, from, to}",
		Items: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"field":    strProp("Field to filter on"),
				"operator": strProp("eq (default), in, not, not_in, range"),
				"value":    {Description: "Single operand for eq/not"},
				"values":   {Type: "array", Description: "Operand list for in/not_in"},
				"from":     {Description: "Range lower bound (number or ISO-8601 date)"},
				"to":       {Description: "Range upper bound (number or ISO-8601 date)"},
			},
			Required: []string{"field"},
		},
	}
}

func emptySchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object"}
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "search",
		Description: "Full-text search over the indexed documents with facets, filters, and highlighted passages. Supports wildcards including leading wildcards (*vertrag) and language-aware stemming.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query":     strProp("Query string; blank or * matches everything"),
				"filters":   filtersProp(),
				"page":      intProp("Zero-based page number"),
				"pageSize":  intProp("Results per page (default 10, max 100)"),
				"sortBy":    strProp("_score (default), modified_date, created_date, file_size"),
				"sortOrder": strProp("asc or desc"),
			},
		},
	}, s.handleSearch)

	s.server.AddTool(&mcp.Tool{
		Name:        "profileQuery",
		Description: "Explain how a query would execute: rewritten query tree, filter classification, per-language boosts, facet cost estimates, and optional scoring explanations.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query":                  strProp("Query string to analyze"),
				"filters":                filtersProp(),
				"analyzeFilterImpact":    boolProp("Report per-filter matching document counts"),
				"analyzeDocumentScoring": boolProp("Include scoring explanations for top hits"),
				"analyzeFacetCost":       boolProp("Probe facet dimension cardinalities"),
				"maxDocExplanations":     intProp("Cap scoring explanations (default 3, max 10)"),
			},
		},
	}, s.handleProfileQuery)

	s.server.AddTool(&mcp.Tool{
		Name:        "getIndexStats",
		Description: "Index statistics: document count, schema and software versions, date field bounds, lemmatizer cache metrics, and query runtime percentiles.",
		InputSchema: emptySchema(),
	}, s.handleGetIndexStats)

	s.server.AddTool(&mcp.Tool{
		Name:        "listIndexedFields",
		Description: "List every indexed field with its storage class, analyzer, and facet flag.",
		InputSchema: emptySchema(),
	}, s.handleListIndexedFields)

	s.server.AddTool(&mcp.Tool{
		Name:        "getDocumentDetails",
		Description: "Fetch all stored fields of one document by absolute file path, including its content (truncated at 500000 characters).",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"filePath": strProp("Absolute path of the indexed file"),
			},
			Required: []string{"filePath"},
		},
	}, s.handleGetDocumentDetails)

	s.server.AddTool(&mcp.Tool{
		Name:        "startCrawl",
		Description: "Start crawling the configured directories. fullReindex re-extracts every file; documents whose content hash is unchanged are not rewritten.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"fullReindex": boolProp("Re-extract every file regardless of timestamps; files with an unchanged content hash are not rewritten"),
			},
		},
	}, s.handleStartCrawl)

	s.server.AddTool(&mcp.Tool{
		Name:        "pauseCrawler",
		Description: "Pause the running crawl at the next safe point.",
		InputSchema: emptySchema(),
	}, s.handlePauseCrawler)

	s.server.AddTool(&mcp.Tool{
		Name:        "resumeCrawler",
		Description: "Resume a paused crawl.",
		InputSchema: emptySchema(),
	}, s.handleResumeCrawler)

	s.server.AddTool(&mcp.Tool{
		Name:        "getCrawlerStatus",
		Description: "Current crawler state (Idle, Crawling, Paused, Watching).",
		InputSchema: emptySchema(),
	}, s.handleGetCrawlerStatus)

	s.server.AddTool(&mcp.Tool{
		Name:        "getCrawlerStats",
		Description: "Crawl statistics: files found/processed/indexed/failed, bytes, per-directory breakdown, last crawl record.",
		InputSchema: emptySchema(),
	}, s.handleGetCrawlerStats)

	s.server.AddTool(&mcp.Tool{
		Name:        "listCrawlableDirectories",
		Description: "List the configured crawl directories and whether the environment override locks them.",
		InputSchema: emptySchema(),
	}, s.handleListDirectories)

	s.server.AddTool(&mcp.Tool{
		Name:        "addCrawlableDirectory",
		Description: "Add an absolute directory path to the crawl configuration. Refused while LUCENE_CRAWLER_DIRECTORIES is set.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path":     strProp("Absolute directory path"),
				"crawlNow": boolProp("Start an incremental crawl immediately"),
			},
			Required: []string{"path"},
		},
	}, s.handleAddDirectory)

	s.server.AddTool(&mcp.Tool{
		Name:        "removeCrawlableDirectory",
		Description: "Remove a directory from the crawl configuration. Refused while LUCENE_CRAWLER_DIRECTORIES is set.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path": strProp("Absolute directory path"),
			},
			Required: []string{"path"},
		},
	}, s.handleRemoveDirectory)

	s.server.AddTool(&mcp.Tool{
		Name:        "optimizeIndex",
		Description: "Force-merge the index down to maxSegments segments. Rejected while a crawl is running.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"maxSegments": intProp("Target segment count (default 1)"),
			},
		},
	}, s.handleOptimizeIndex)

	s.server.AddTool(&mcp.Tool{
		Name:        "purgeIndex",
		Description: "Delete every document. fullPurge additionally wipes the index files and reopens. Requires confirm=true.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"confirm":   boolProp("Must be true; destructive operation"),
				"fullPurge": boolProp("Wipe the index directory instead of a logical delete"),
			},
		},
	}, s.handlePurgeIndex)

	s.server.AddTool(&mcp.Tool{
		Name:        "unlockIndex",
		Description: "Remove the writer lock file left behind by a crashed process. Requires confirm=true; misuse can corrupt the index.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"confirm": boolProp("Must be true; recovery operation"),
			},
		},
	}, s.handleUnlockIndex)

	s.server.AddTool(&mcp.Tool{
		Name:        "getIndexAdminStatus",
		Description: "Poll the admin operation state machine: state, operation id, progress, message, last result.",
		InputSchema: emptySchema(),
	}, s.handleGetAdminStatus)
}
