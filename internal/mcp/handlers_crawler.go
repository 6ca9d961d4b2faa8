package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcplucene/mcplucene/internal/config"
)

func (s *Server) handleStartCrawl(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params StartCrawlParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("startCrawl", fmt.Errorf("invalid parameters: %w", err))
	}

	full := params.FullReindex
	// A schema mismatch at startup forces the first crawl to run as a
	// full reindex.
	if s.svc.SchemaUpgradeRequired() {
		full = true
	}
	if err := s.crawler.Start(full); err != nil {
		return createErrorResponse("startCrawl", err)
	}
	return createSuccessResponse(map[string]interface{}{
		"state":       s.crawler.State(),
		"fullReindex": full,
	})
}

func (s *Server) handlePauseCrawler(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.crawler.Pause(); err != nil {
		return createErrorResponse("pauseCrawler", err)
	}
	return createSuccessResponse(map[string]interface{}{"state": s.crawler.State()})
}

func (s *Server) handleResumeCrawler(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.crawler.Resume(); err != nil {
		return createErrorResponse("resumeCrawler", err)
	}
	return createSuccessResponse(map[string]interface{}{"state": s.crawler.State()})
}

func (s *Server) handleGetCrawlerStatus(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return createSuccessResponse(map[string]interface{}{
		"state": s.crawler.State(),
	})
}

func (s *Server) handleGetCrawlerStats(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload := map[string]interface{}{
		"stats": s.crawler.Stats(),
	}
	if rc := s.cfg.Runtime; rc != nil {
		payload["lastCrawl"] = rc.LastCrawlState()
	}
	return createSuccessResponse(payload)
}

func (s *Server) handleListDirectories(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return createSuccessResponse(map[string]interface{}{
		"directories":       s.cfg.CrawlRoots(),
		"environmentLocked": config.RootsLocked(),
	})
}

func (s *Server) handleAddDirectory(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params DirectoryParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("addCrawlableDirectory", fmt.Errorf("invalid parameters: %w", err))
	}
	if config.RootsLocked() {
		return createErrorResponse("addCrawlableDirectory",
			fmt.Errorf("crawl directories are fixed by %s", config.EnvCrawlerDirectories))
	}
	if s.cfg.Runtime == nil {
		return createErrorResponse("addCrawlableDirectory", fmt.Errorf("runtime configuration unavailable"))
	}
	if err := s.cfg.Runtime.AddRoot(params.Path); err != nil {
		return createErrorResponse("addCrawlableDirectory", err)
	}

	payload := map[string]interface{}{"directories": s.cfg.CrawlRoots()}
	if params.CrawlNow {
		if err := s.crawler.Start(false); err != nil {
			payload["crawlStartError"] = err.Error()
		} else {
			payload["state"] = s.crawler.State()
		}
	}
	return createSuccessResponse(payload)
}

func (s *Server) handleRemoveDirectory(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params DirectoryParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("removeCrawlableDirectory", fmt.Errorf("invalid parameters: %w", err))
	}
	if config.RootsLocked() {
		return createErrorResponse("removeCrawlableDirectory",
			fmt.Errorf("crawl directories are fixed by %s", config.EnvCrawlerDirectories))
	}
	if s.cfg.Runtime == nil {
		return createErrorResponse("removeCrawlableDirectory", fmt.Errorf("runtime configuration unavailable"))
	}
	if err := s.cfg.Runtime.RemoveRoot(params.Path); err != nil {
		return createErrorResponse("removeCrawlableDirectory", err)
	}
	return createSuccessResponse(map[string]interface{}{"directories": s.cfg.CrawlRoots()})
}
