package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jrhatch/mnemo/pkg/memory"
)

func (m *MCPServer) handleStoreMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	content, _ := args["content"].(string)
	if content == "" {
		return mcp.NewToolResultError("content is required"), nil
	}

	role, _ := args["role"].(string)
	if role == "" {
		role = string(memory.RoleUser)
	}
	conversationID, _ := args["conversation_id"].(string)

	result, err := m.facade.StoreMessage(ctx, conversationID, memory.Role(role), content)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("store error: %v", err)), nil
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (m *MCPServer) handleSearchMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	query, _ := args["query"].(string)
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	limit := 0
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	matches, err := m.facade.SearchAllConversations(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search error: %v", err)), nil
	}

	out, _ := json.MarshalIndent(matches, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (m *MCPServer) handleGetContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	query, _ := args["query"].(string)
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	conversationID, _ := args["conversation_id"].(string)
	if conversationID == "" {
		return mcp.NewToolResultError("conversation_id is required"), nil
	}

	recent := 10
	if v, ok := args["recent"].(float64); ok && v > 0 {
		recent = int(v)
	}
	relevant := 8
	if v, ok := args["relevant"].(float64); ok && v > 0 {
		relevant = int(v)
	}

	composed, err := m.facade.Compose(ctx, query, conversationID, recent, relevant)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("context error: %v", err)), nil
	}

	out, _ := json.MarshalIndent(composed, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (m *MCPServer) handleConversationHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	conversationID, _ := args["conversation_id"].(string)
	if conversationID == "" {
		return mcp.NewToolResultError("conversation_id is required"), nil
	}

	messages, err := m.facade.ConversationHistory(ctx, conversationID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("history error: %v", err)), nil
	}

	out, _ := json.MarshalIndent(messages, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (m *MCPServer) handleMemoryStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := m.facade.Statistics(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stats error: %v", err)), nil
	}

	out, _ := json.MarshalIndent(stats, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (m *MCPServer) handleAddUserFact(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	fact, _ := args["fact"].(string)
	if fact == "" {
		return mcp.NewToolResultError("fact is required"), nil
	}

	if err := m.facade.AddUserFact(ctx, fact); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("add fact error: %v", err)), nil
	}

	return mcp.NewToolResultText("fact recorded"), nil
}

func (m *MCPServer) handleUserProfile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prof, err := m.facade.Profile(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("profile error: %v", err)), nil
	}

	out, _ := json.MarshalIndent(prof, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
