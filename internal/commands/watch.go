package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gigline/glc/internal/chat"
	"github.com/gigline/glc/internal/client"
	"github.com/gigline/glc/internal/config"
	"github.com/gigline/glc/internal/state"
)

// stateFileName stores the live stream's resume position next to the
// config file. Like .gigline it never belongs in version control.
const stateFileName = ".gigline.state"

var watchCmd = &cobra.Command{
	Use:   "watch [conversation-id]",
	Short: "Follow conversations live",
	Long: `Follow conversations live until interrupted.

Without an argument, glc joins every eligible conversation's room and
prints incoming messages as they arrive, prefixed with the conversation.
With a conversation ID, that conversation is opened: its recent history
prints first and only its messages follow.

The stream position is persisted, so a restart resumes where the last
watch left off instead of replaying. Reconnects after network drops are
automatic, with backoff.

Examples:
  glc watch
  glc watch p_8fa2`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigRequired()
		if err != nil {
			return err
		}
		api, err := newAPIClientRequired(cfg)
		if err != nil {
			return err
		}
		identity, err := resolveIdentity(cfg)
		if err != nil {
			return err
		}

		target := ""
		if len(args) == 1 {
			target = args[0]
		}
		return runWatch(cmd.Context(), cfg, api, identity, target)
	},
}

func runWatch(parent context.Context, cfg *config.Config, api *client.Client, identity, target string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := chat.NewManagerWithResume(api, resumeStore())
	defer manager.Release()

	conn := manager.Acquire(identity)
	launcher := chat.NewLauncher(api, conn)
	defer launcher.Unmount()
	if cfg.HistoryLimit > 0 {
		launcher.SetHistoryLimit(cfg.HistoryLimit)
	}

	mountCtx, cancel := context.WithTimeout(ctx, apiTimeout)
	convs := launcher.Mount(mountCtx)
	cancel()
	if len(convs) == 0 {
		fmt.Println("No conversations to watch. Chats unlock when a hire is accepted.")
		return nil
	}

	printer := newMessagePrinter(identity, target)

	if target != "" {
		if _, ok := launcher.Conversation(target); !ok {
			return fmt.Errorf("conversation %s not found - run 'glc conversations' to list yours", target)
		}
		openCtx, cancel := context.WithTimeout(ctx, apiTimeout)
		history := launcher.OpenConversation(openCtx, target)
		cancel()
		for _, m := range history {
			printer.print(m)
		}
		fmt.Fprintf(os.Stderr, "[glc] watching %s%s (Ctrl-C to stop)\n", target, lastActivityNote(history))
	} else {
		fmt.Fprintf(os.Stderr, "[glc] watching %d conversation(s) (Ctrl-C to stop)\n", len(convs))
	}

	token := conn.Subscribe(printer.print)
	defer conn.Unsubscribe(token)

	<-ctx.Done()
	fmt.Fprint(os.Stderr, formatUnreadSummary(launcher.Unread(), launcher.TotalUnread()))
	fmt.Fprintln(os.Stderr, "[glc] stopped")
	return nil
}

// lastActivityNote renders " (last message X ago)" for the watch header,
// or "" when the history carries no usable timestamp.
func lastActivityNote(history []client.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		ts := history[i].Timestamp
		if _, ok := parseTimeBestEffort(ts); ok {
			return fmt.Sprintf(" (last message %s)", formatTimeAgo(ts))
		}
	}
	return ""
}

// formatUnreadSummary renders the unread counters accrued while watching,
// one line per conversation, sorted for stable output. Empty when nothing
// went unread.
func formatUnreadSummary(counts map[string]int, total int) string {
	if total == 0 {
		return ""
	}

	ids := make([]string, 0, len(counts))
	for id, n := range counts {
		if n > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[glc] %d unread in %d conversation(s):\n", total, len(ids)))
	for _, id := range ids {
		sb.WriteString(fmt.Sprintf("  %s: %d\n", id, counts[id]))
	}
	return sb.String()
}

// resumeStore returns the persistent stream-position store, or nil when
// no workspace root can be resolved (watch still works, without resume).
func resumeStore() chat.ResumeStore {
	root, err := config.WorkspaceRoot()
	if err != nil {
		return nil
	}
	return state.NewFileStore(filepath.Join(root, stateFileName))
}

// messagePrinter renders live messages to stdout. It dedups by persisted
// message ID so the opened conversation's history and its live echo never
// print the same message twice.
type messagePrinter struct {
	self   string
	target string

	mu   sync.Mutex
	seen map[string]bool
}

func newMessagePrinter(self, target string) *messagePrinter {
	return &messagePrinter{
		self:   self,
		target: target,
		seen:   make(map[string]bool),
	}
}

// shouldPrint decides whether a message makes it to the terminal, and
// records it as seen when it does.
func (p *messagePrinter) shouldPrint(m client.Message) bool {
	if p.target != "" && string(m.ConversationID) != p.target {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if m.ID != "" {
		if p.seen[m.ID] {
			return false
		}
		p.seen[m.ID] = true
	}
	return true
}

func (p *messagePrinter) print(m client.Message) {
	if !p.shouldPrint(m) {
		return
	}

	line := formatMessageLine(m, p.self)
	if p.target == "" {
		fmt.Printf("[%s] %s", m.ConversationID, line)
		return
	}
	fmt.Print(line)
}
