package chat

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/gigline/glc/internal/client"
)

// Launcher ties the chat core together the way the conversation-list UI
// does: one eligibility fetch per mount, a room join per eligible
// conversation, an unread tracker for the whole mount, and at most one
// open conversation at a time.
//
// Per-conversation client state:
//
//	EligibleNotJoined --(join room)--> Joined
//	Joined --(open)--> Active
//	Active --(close)--> Joined
//
// Joining is monotonic for the life of the mount; nothing transitions
// back to EligibleNotJoined.
type Launcher struct {
	api      *client.Client
	conn     *Conn
	resolver *Resolver
	focus    *Focus
	tracker  *Tracker
	store    *Store

	mu            sync.Mutex
	conversations []client.Conversation
	activeID      string
	mounted       bool
}

// NewLauncher builds a launcher over the given API client and live
// connection. conn may come from Manager.Acquire; a nil conn (not logged
// in) yields a launcher whose operations are all no-ops.
func NewLauncher(api *client.Client, conn *Conn) *Launcher {
	focus := NewFocus()
	return &Launcher{
		api:      api,
		conn:     conn,
		resolver: NewResolver(api),
		focus:    focus,
		tracker:  NewTracker(conn, focus),
		store:    NewStore(api, conn, focus),
	}
}

// SetHistoryLimit overrides the history page size used when opening a
// conversation.
func (l *Launcher) SetHistoryLimit(limit int) {
	l.store.SetHistoryLimit(limit)
}

// Mount fetches the eligibility snapshot once, joins every returned
// conversation's room, and starts unread tracking. Join failures are
// fail-soft: the conversation stays listed but its live events will not
// arrive until a later rejoin.
func (l *Launcher) Mount(ctx context.Context) []client.Conversation {
	convs := l.resolver.ListEligible(ctx)

	if l.conn != nil {
		for _, conv := range convs {
			if err := l.conn.Join(ctx, conv.ConversationID); err != nil {
				fmt.Fprintf(os.Stderr, "chat: %v\n", err)
			}
		}
		l.tracker.Start()
	}

	l.mu.Lock()
	l.conversations = convs
	l.mounted = true
	l.mu.Unlock()

	return convs
}

// Conversations returns the eligibility snapshot taken at mount.
func (l *Launcher) Conversations() []client.Conversation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]client.Conversation(nil), l.conversations...)
}

// Conversation looks up a mounted conversation by ID.
func (l *Launcher) Conversation(conversationID string) (client.Conversation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, conv := range l.conversations {
		if conv.ConversationID == conversationID {
			return conv, true
		}
	}
	return client.Conversation{}, false
}

// OpenConversation makes a conversation active: the store subscribes and
// hydrates (setting focus atomically with the subscription), then the
// unread counter is cleared. Events arriving mid-open are already
// suppressed by the focus, so the clear cannot lose a beat.
func (l *Launcher) OpenConversation(ctx context.Context, conversationID string) []client.Message {
	if conversationID == "" {
		return nil
	}

	l.mu.Lock()
	l.activeID = conversationID
	l.mu.Unlock()

	msgs := l.store.Open(ctx, conversationID)
	l.tracker.Clear(conversationID)
	return msgs
}

// CloseConversation closes the active conversation and clears the focus,
// so its subsequent events resume incrementing the unread counter. Room
// membership persists.
func (l *Launcher) CloseConversation() {
	l.mu.Lock()
	l.activeID = ""
	l.mu.Unlock()

	l.store.Close()
}

// ActiveConversation returns the ID of the open conversation, if any.
func (l *Launcher) ActiveConversation() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.activeID
}

// Send posts a message to the active conversation's partner. Returns an
// error the caller can surface; an empty body or no active conversation
// is a silent no-op.
func (l *Launcher) Send(ctx context.Context, body string) error {
	l.mu.Lock()
	activeID := l.activeID
	l.mu.Unlock()
	if activeID == "" {
		return nil
	}

	conv, ok := l.Conversation(activeID)
	if !ok {
		return fmt.Errorf("conversation %s is not in the eligibility snapshot", activeID)
	}
	return l.store.Send(ctx, activeID, conv.PartnerID, body)
}

// Log returns a snapshot of the active conversation's message log.
func (l *Launcher) Log() []client.Message {
	return l.store.Log()
}

// Unread returns a snapshot of the per-conversation unread counters.
func (l *Launcher) Unread() map[string]int {
	return l.tracker.Counts()
}

// TotalUnread returns the derived total across all conversations.
func (l *Launcher) TotalUnread() int {
	return l.tracker.Total()
}

// Unmount tears everything down: the open conversation, the unread
// subscription, and the focus. After Unmount no handler owned by this
// launcher can fire. The connection itself is left to its Manager.
func (l *Launcher) Unmount() {
	l.CloseConversation()
	l.tracker.Stop()

	l.mu.Lock()
	l.conversations = nil
	l.mounted = false
	l.mu.Unlock()
}
