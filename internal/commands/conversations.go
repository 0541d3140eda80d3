package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gigline/glc/internal/client"
)

var conversationsJSON bool

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"ls"},
	Short:   "List conversations you can chat on",
	Long: `List the conversations the configured identity is permitted to chat on.

Eligibility is server-authoritative: a conversation appears here once the
hire for its project is accepted, and stays until the server withdraws it.

Examples:
  glc conversations
  glc conversations --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigRequired()
		if err != nil {
			return err
		}

		api, err := newAPIClientRequired(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), apiTimeout)
		defer cancel()

		resp, err := api.Eligible(ctx)
		if err != nil {
			return err
		}

		fmt.Print(formatConversationsOutput(resp, conversationsJSON))
		return nil
	},
}

func init() {
	conversationsCmd.Flags().BoolVar(&conversationsJSON, "json", false, "Output in JSON format")
}

func formatConversationsOutput(resp *client.EligibleResponse, asJSON bool) string {
	if asJSON {
		return marshalJSONOrFallback(resp)
	}

	if len(resp.Conversations) == 0 {
		return "No conversations. Chats unlock when a hire is accepted.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Conversations (%d):\n\n", len(resp.Conversations)))
	for _, conv := range resp.Conversations {
		sb.WriteString(fmt.Sprintf("  %s  %s", conv.ConversationID, conversationLabel(conv)))
		if conv.Title != "" && conv.PartnerID != "" {
			sb.WriteString(fmt.Sprintf(" (with %s)", conv.PartnerID))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nOpen one with 'glc history <id>' or follow live with 'glc watch <id>'.\n")
	return sb.String()
}
