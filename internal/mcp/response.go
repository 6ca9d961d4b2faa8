package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	mcperrors "github.com/mcplucene/mcplucene/internal/errors"
)

// createJSONResponse marshals a payload into a standard tool result.
// Every success payload carries success=true via the wrapping helpers.
func createJSONResponse(data interface{}) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %v", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(content)},
		},
	}, nil
}

// createSuccessResponse merges payload fields with success=true.
func createSuccessResponse(payload map[string]interface{}) (*mcp.CallToolResult, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["success"] = true
	return createJSONResponse(payload)
}

// createErrorResponse reports a failure inside the result object with
// IsError set, per the MCP SDK specification, so the client model can
// see the error and self-correct. Errors never propagate as protocol
// failures.
func createErrorResponse(operation string, err error) (*mcp.CallToolResult, error) {
	response, marshalErr := createJSONResponse(map[string]interface{}{
		"success":   false,
		"error":     err.Error(),
		"errorKind": string(mcperrors.KindOf(err)),
		"operation": operation,
	})
	if marshalErr != nil {
		return nil, marshalErr
	}
	response.IsError = true
	return response, nil
}
