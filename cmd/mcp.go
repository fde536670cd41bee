package cmd

import (
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/jrhatch/mnemo/pkg/memory"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server over stdio",
	Long: `Expose the memory layer as Model Context Protocol tools so agents
can store messages, search past conversations, compose context, and
record user facts.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().Duration("sweep-interval", time.Hour, "Background enforcement interval")
}

// MCPServer bridges MCP tool calls to the memory facade.
type MCPServer struct {
	facade *memory.Facade
	logger *slog.Logger
}

func runMCP(cmd *cobra.Command, args []string) error {
	sweepInterval, _ := cmd.Flags().GetDuration("sweep-interval")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	sweeper := memory.NewSweeper(a.tiers, a.store, sweepInterval, a.logger)
	if err := sweeper.RunOnce(cmd.Context()); err != nil {
		a.logger.Warn("startup enforcement failed", "err", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	m := &MCPServer{facade: a.facade, logger: a.logger}

	s := server.NewMCPServer("mnemo", "1.0.0")

	s.AddTool(mcp.NewTool("store_message",
		mcp.WithDescription("Store a conversation message in persistent memory"),
		mcp.WithString("content", mcp.Required(), mcp.Description("Message text")),
		mcp.WithString("role", mcp.Description("Message role: user or assistant (default user)")),
		mcp.WithString("conversation_id", mcp.Description("Conversation ID; empty starts a new conversation")),
	), m.handleStoreMessage)

	s.AddTool(mcp.NewTool("search_memory",
		mcp.WithDescription("Search all stored conversations by semantic similarity"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Query text")),
		mcp.WithNumber("limit", mcp.Description("Maximum results")),
	), m.handleSearchMemory)

	s.AddTool(mcp.NewTool("get_context",
		mcp.WithDescription("Compose recent plus semantically relevant messages for a conversation"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Query text")),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation ID")),
		mcp.WithNumber("recent", mcp.Description("Recency window size (default 10)")),
		mcp.WithNumber("relevant", mcp.Description("Relevance budget (default 8)")),
	), m.handleGetContext)

	s.AddTool(mcp.NewTool("conversation_history",
		mcp.WithDescription("Fetch one conversation's messages in order"),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation ID")),
	), m.handleConversationHistory)

	s.AddTool(mcp.NewTool("memory_stats",
		mcp.WithDescription("Show message counts, fact count, and storage size"),
	), m.handleMemoryStats)

	s.AddTool(mcp.NewTool("add_user_fact",
		mcp.WithDescription("Record a persistent fact about the user; facts are never evicted"),
		mcp.WithString("fact", mcp.Required(), mcp.Description("The fact to remember")),
	), m.handleAddUserFact)

	s.AddTool(mcp.NewTool("user_profile",
		mcp.WithDescription("Fetch the stored user profile and facts"),
	), m.handleUserProfile)

	a.logger.Info("mcp server on stdio")
	return server.ServeStdio(s)
}
