package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gigline/glc/internal/client"
)

var sendJSON bool

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <message>",
	Short: "Send a message",
	Long: `Send a message in a conversation.

The conversation must be in your eligibility list; the receiver is the
conversation's partner. Delivery is server-acknowledged: the command
fails loudly when the server rejects the send, so the message can be
retried rather than silently lost.

Examples:
  glc send p_8fa2 "The first draft is up for review."`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(args[1]) == "" {
			return fmt.Errorf("message cannot be empty")
		}

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

		conv, err := lookupConversation(ctx, api, args[0])
		if err != nil {
			return err
		}

		resp, err := api.SendMessage(ctx, conv.ConversationID, &client.SendMessageRequest{
			ReceiverID: conv.PartnerID,
			Body:       args[1],
			ClientRef:  uuid.NewString(),
		})
		if err != nil {
			return fmt.Errorf("sending message: %w", err)
		}

		fmt.Print(formatSendOutput(conv, resp, sendJSON))
		return nil
	},
}

func init() {
	sendCmd.Flags().BoolVar(&sendJSON, "json", false, "Output in JSON format")
}

// lookupConversation resolves a conversation ID against the eligibility
// snapshot, so sends to withdrawn or mistyped conversations fail with a
// useful message instead of an opaque server error.
func lookupConversation(ctx context.Context, api *client.Client, conversationID string) (client.Conversation, error) {
	resp, err := api.Eligible(ctx)
	if err != nil {
		return client.Conversation{}, fmt.Errorf("checking eligibility: %w", err)
	}
	for _, conv := range resp.Conversations {
		if conv.ConversationID == conversationID {
			return conv, nil
		}
	}
	return client.Conversation{}, fmt.Errorf("conversation %s not found - run 'glc conversations' to list yours", conversationID)
}

func formatSendOutput(conv client.Conversation, resp *client.SendMessageResponse, asJSON bool) string {
	if asJSON {
		return marshalJSONOrFallback(resp)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Message sent to %s\n", conversationLabel(conv)))
	if resp.MessageID != "" {
		sb.WriteString(fmt.Sprintf("  id: %s\n", resp.MessageID))
	}
	if !resp.Delivered {
		sb.WriteString("  Note: not yet delivered; the partner will see it on reconnect.\n")
	}
	return sb.String()
}
