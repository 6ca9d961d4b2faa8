package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcplucene/mcplucene/internal/analysis"
	"github.com/mcplucene/mcplucene/internal/document"
	mcperrors "github.com/mcplucene/mcplucene/internal/errors"
	"github.com/mcplucene/mcplucene/internal/query"
)

// detailsContentCap truncates getDocumentDetails content.
const detailsContentCap = 500000

func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params SearchParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("search", fmt.Errorf("invalid parameters: %w", err))
	}

	result, err := s.planner.Search(ctx, query.Request{
		Query:     params.Query,
		Filters:   params.Filters,
		Page:      params.Page,
		PageSize:  params.PageSize,
		SortBy:    params.SortBy,
		SortOrder: params.SortOrder,
	})
	if err != nil {
		return createErrorResponse("search", err)
	}

	return createSuccessResponse(map[string]interface{}{
		"documents":       result.Documents,
		"totalHits":       result.TotalHits,
		"page":            result.Page,
		"pageSize":        result.PageSize,
		"totalPages":      result.TotalPages,
		"hasNextPage":     result.HasNextPage,
		"hasPreviousPage": result.HasPreviousPage,
		"facets":          result.Facets,
		"activeFilters":   result.ActiveFilters,
		"searchTimeMs":    result.SearchTimeMs,
	})
}

func (s *Server) handleProfileQuery(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params ProfileParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("profileQuery", fmt.Errorf("invalid parameters: %w", err))
	}

	result, err := s.planner.Profile(ctx, query.ProfileRequest{
		Query:                  params.Query,
		Filters:                params.Filters,
		AnalyzeFilterImpact:    params.AnalyzeFilterImpact,
		AnalyzeDocumentScoring: params.AnalyzeDocumentScoring,
		AnalyzeFacetCost:       params.AnalyzeFacetCost,
		MaxDocExplanations:     params.MaxDocExplanations,
	})
	if err != nil {
		return createErrorResponse("profileQuery", err)
	}

	return createSuccessResponse(map[string]interface{}{"analysis": result})
}

func (s *Server) handleGetIndexStats(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	count, err := s.svc.DocCount()
	if err != nil {
		return createErrorResponse("getIndexStats", err)
	}
	schemaVersion, softwareVersion, err := s.svc.Meta()
	if err != nil {
		return createErrorResponse("getIndexStats", err)
	}

	dateHints := map[string]map[string]int64{}
	for _, field := range document.DateFields() {
		min, max, ok, err := s.svc.DateFieldBounds(field)
		if err != nil {
			return createErrorResponse("getIndexStats", err)
		}
		if ok {
			dateHints[field] = map[string]int64{"minDate": min, "maxDate": max}
		}
	}

	return createSuccessResponse(map[string]interface{}{
		"documentCount":          count,
		"indexPath":              s.svc.Path(),
		"schemaVersion":          schemaVersion,
		"softwareVersion":        softwareVersion,
		"buildTimestamp":         s.svc.OpenedAt().UnixMilli(),
		"schemaUpgradeRequired":  s.svc.SchemaUpgradeRequired(),
		"dateFieldHints":         dateHints,
		"lemmatizerCacheMetrics": analysis.AllCacheStats(),
		"queryRuntimeMetrics":    s.svc.Timings().Metrics(),
	})
}

func (s *Server) handleListIndexedFields(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return createSuccessResponse(map[string]interface{}{
		"fields": document.ListFields(s.cfg.Analysis.LemmaLanguages),
	})
}

func (s *Server) handleGetDocumentDetails(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params DocumentDetailsParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("getDocumentDetails", fmt.Errorf("invalid parameters: %w", err))
	}
	if params.FilePath == "" {
		return createErrorResponse("getDocumentDetails", fmt.Errorf("filePath is required"))
	}

	fields, found, err := s.svc.Document(params.FilePath)
	if err != nil {
		return createErrorResponse("getDocumentDetails", err)
	}
	if !found {
		return createErrorResponse("getDocumentDetails", mcperrors.NewNotFound(params.FilePath))
	}

	truncated := false
	if content, ok := fields[document.FieldContent].(string); ok && len(content) > detailsContentCap {
		cut := detailsContentCap
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		fields[document.FieldContent] = content[:cut]
		truncated = true
	}

	return createSuccessResponse(map[string]interface{}{
		"document":         fields,
		"contentTruncated": truncated,
	})
}
