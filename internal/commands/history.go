package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gigline/glc/internal/client"
)

var (
	historyJSON  bool
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history <conversation-id>",
	Short: "Show a conversation's message history",
	Long: `Show a conversation's message history, oldest first.

The page size defaults to the config's history_limit (or the server
default). Use --limit to override for one call.

Examples:
  glc history p_8fa2
  glc history p_8fa2 --limit 20 --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigRequired()
		if err != nil {
			return err
		}
		api, err := newAPIClientRequired(cfg)
		if err != nil {
			return err
		}

		limit := historyLimit
		if limit == 0 && cfg.HistoryLimit > 0 {
			limit = cfg.HistoryLimit
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), apiTimeout)
		defer cancel()

		resp, err := api.History(ctx, args[0], &client.HistoryRequest{Limit: limit})
		if err != nil {
			return err
		}

		identity, _ := resolveIdentity(cfg)
		fmt.Print(formatHistoryOutput(resp, identity, historyJSON))
		return nil
	},
}

func init() {
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output in JSON format")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "Maximum messages to fetch (default: config history_limit)")
}

// formatHistoryOutput renders a history page. selfIdentity marks the
// caller's own messages as "you"; pass "" to always show raw sender IDs.
func formatHistoryOutput(resp *client.HistoryResponse, selfIdentity string, asJSON bool) string {
	if asJSON {
		return marshalJSONOrFallback(resp)
	}

	if len(resp.Messages) == 0 {
		return "No messages in conversation\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Conversation history (%d messages):\n\n", len(resp.Messages)))
	for _, m := range resp.Messages {
		sb.WriteString(formatMessageLine(m, selfIdentity))
	}
	if resp.HasMore {
		sb.WriteString("\nOlder messages exist; raise --limit to fetch more.\n")
	}
	return sb.String()
}

// formatMessageLine renders one message as "[clock] sender: body\n".
func formatMessageLine(m client.Message, selfIdentity string) string {
	sender := m.SenderID
	if selfIdentity != "" && sender == selfIdentity {
		sender = "you"
	}
	if clock := formatClock(m.Timestamp); clock != "" {
		return fmt.Sprintf("[%s] %s: %s\n", clock, sender, m.Body)
	}
	return fmt.Sprintf("%s: %s\n", sender, m.Body)
}
