package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) handleOptimizeIndex(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params OptimizeParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("optimizeIndex", fmt.Errorf("invalid parameters: %w", err))
	}

	opID, err := s.svc.Optimize(params.MaxSegments)
	if err != nil {
		return createErrorResponse("optimizeIndex", err)
	}
	return createSuccessResponse(map[string]interface{}{
		"operationId": opID,
		"status":      s.svc.AdminStatus(),
	})
}

func (s *Server) handlePurgeIndex(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params PurgeParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("purgeIndex", fmt.Errorf("invalid parameters: %w", err))
	}

	opID, err := s.svc.Purge(params.Confirm, params.FullPurge)
	if err != nil {
		return createErrorResponse("purgeIndex", err)
	}
	return createSuccessResponse(map[string]interface{}{
		"operationId": opID,
		"fullPurge":   params.FullPurge,
		"status":      s.svc.AdminStatus(),
	})
}

func (s *Server) handleUnlockIndex(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params UnlockParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("unlockIndex", fmt.Errorf("invalid parameters: %w", err))
	}

	removed, err := s.svc.Unlock(params.Confirm)
	if err != nil {
		return createErrorResponse("unlockIndex", err)
	}
	return createSuccessResponse(map[string]interface{}{
		"lockFileRemoved": removed,
	})
}

func (s *Server) handleGetAdminStatus(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return createSuccessResponse(map[string]interface{}{
		"status": s.svc.AdminStatus(),
	})
}
