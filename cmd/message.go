package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jrhatch/mnemo/pkg/memory"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Store a message in conversation memory",
	RunE:  runStore,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show one conversation's messages in order",
	RunE:  runHistory,
}

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List conversations, most recently active first",
	RunE:  runConversations,
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search all conversations by semantic similarity",
	RunE:  runSearch,
}

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Compose a bounded context of recent plus relevant messages",
	RunE:  runContext,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(statsCmd)

	storeCmd.Flags().String("conversation", "", "Conversation ID (empty starts a new conversation)")
	storeCmd.Flags().String("role", "user", "Message role: user or assistant")
	storeCmd.Flags().String("content", "", "Message text")

	historyCmd.Flags().String("conversation", "", "Conversation ID")

	searchCmd.Flags().String("query", "", "Query text")
	searchCmd.Flags().Int("limit", 0, "Maximum results (0 = configured default)")

	contextCmd.Flags().String("conversation", "", "Conversation ID")
	contextCmd.Flags().String("query", "", "Query text")
	contextCmd.Flags().Int("recent", 10, "Recency window size")
	contextCmd.Flags().Int("relevant", 8, "Relevance budget")
}

func printJSON(v interface{}) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}

func runStore(cmd *cobra.Command, args []string) error {
	content, _ := cmd.Flags().GetString("content")
	if content == "" {
		return fmt.Errorf("--content is required")
	}
	conversationID, _ := cmd.Flags().GetString("conversation")
	role, _ := cmd.Flags().GetString("role")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.facade.StoreMessage(context.Background(), conversationID, memory.Role(role), content)
	if err != nil {
		return err
	}

	printJSON(result)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	conversationID, _ := cmd.Flags().GetString("conversation")
	if conversationID == "" {
		return fmt.Errorf("--conversation is required")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	messages, err := a.facade.ConversationHistory(context.Background(), conversationID)
	if err != nil {
		return err
	}

	printJSON(messages)
	return nil
}

func runConversations(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	summaries, err := a.facade.Summaries(context.Background())
	if err != nil {
		return err
	}

	printJSON(summaries)
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	query, _ := cmd.Flags().GetString("query")
	if query == "" {
		return fmt.Errorf("--query is required")
	}
	limit, _ := cmd.Flags().GetInt("limit")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	matches, err := a.facade.SearchAllConversations(context.Background(), query, limit)
	if err != nil {
		return err
	}

	printJSON(matches)
	return nil
}

func runContext(cmd *cobra.Command, args []string) error {
	query, _ := cmd.Flags().GetString("query")
	if query == "" {
		return fmt.Errorf("--query is required")
	}
	conversationID, _ := cmd.Flags().GetString("conversation")
	if conversationID == "" {
		return fmt.Errorf("--conversation is required")
	}
	recent, _ := cmd.Flags().GetInt("recent")
	relevant, _ := cmd.Flags().GetInt("relevant")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	composed, err := a.facade.Compose(context.Background(), query, conversationID, recent, relevant)
	if err != nil {
		return err
	}

	printJSON(composed)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.facade.Statistics(context.Background())
	if err != nil {
		return err
	}

	printJSON(stats)
	return nil
}
