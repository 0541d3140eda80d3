package chat

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/gigline/glc/internal/client"
)

// Store maintains the in-memory message log for the currently open
// conversation. The log is hydrated from a history fetch and appended to
// by live events; messages carrying a persisted ID already present in the
// log are never inserted twice. That guards against the sender's own echo
// and against replays after a stream resume.
type Store struct {
	api   *client.Client
	conn  *Conn
	focus *Focus
	limit int

	mu             sync.Mutex
	conversationID string
	log            []client.Message
	seen           map[string]bool // persisted IDs present in log
	subToken       int
	open           bool
}

// NewStore creates a conversation store. conn may be nil for callers that
// only send (no live log). focus may be nil when no unread tracking is
// attached.
func NewStore(api *client.Client, conn *Conn, focus *Focus) *Store {
	return &Store{
		api:   api,
		conn:  conn,
		focus: focus,
		limit: client.DefaultHistoryLimit,
	}
}

// SetHistoryLimit overrides the history page size used by Open.
func (s *Store) SetHistoryLimit(limit int) {
	if limit > 0 {
		s.limit = limit
	}
}

// Open marks the conversation as focused, subscribes to its live events,
// and hydrates the log from history. It returns a snapshot of the log.
//
// Live events keep flowing while the history fetch is in flight; a live
// message that lands first survives the merge, deduped against the
// history slice by persisted ID. History fetch failures are fail-soft:
// the log starts empty and fills from live events only.
func (s *Store) Open(ctx context.Context, conversationID string) []client.Message {
	if conversationID == "" {
		return nil
	}

	s.mu.Lock()
	s.conversationID = conversationID
	s.log = nil
	s.seen = make(map[string]bool)
	s.open = true
	s.mu.Unlock()

	// Focus changes atomically with the subscription so the tracker never
	// counts the open conversation as unread.
	if s.focus != nil {
		s.focus.Set(conversationID)
	}
	if s.conn != nil {
		s.mu.Lock()
		if s.subToken == 0 {
			s.subToken = s.conn.Subscribe(s.onMessage)
		}
		s.mu.Unlock()
	}

	history := s.fetchHistory(ctx, conversationID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open || s.conversationID != conversationID {
		// Closed or reopened elsewhere while the fetch was in flight.
		return nil
	}

	// History first, then any live arrivals that raced the fetch.
	merged := make([]client.Message, 0, len(history)+len(s.log))
	seen := make(map[string]bool, len(history)+len(s.log))
	for _, m := range history {
		if m.ID != "" {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
		}
		merged = append(merged, m)
	}
	for _, m := range s.log {
		if m.ID != "" {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
		}
		merged = append(merged, m)
	}
	s.log = merged
	s.seen = seen

	return append([]client.Message(nil), s.log...)
}

func (s *Store) fetchHistory(ctx context.Context, conversationID string) []client.Message {
	if s.api == nil || !s.api.Authenticated() {
		return nil
	}
	resp, err := s.api.History(ctx, conversationID, &client.HistoryRequest{Limit: s.limit})
	if err != nil {
		fmt.Fprintf(os.Stderr, "chat: history fetch failed for %s: %v\n", conversationID, err)
		return nil
	}
	return resp.Messages
}

// onMessage appends live events for the open conversation. Events for
// other conversations are ignored here; they are the tracker's concern.
func (s *Store) onMessage(msg client.Message) {
	id := string(msg.ConversationID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open || id != s.conversationID {
		return
	}
	if msg.ID != "" && s.seen[msg.ID] {
		return
	}
	s.log = append(s.log, msg)
	if msg.ID != "" {
		s.seen[msg.ID] = true
	}
}

// Send posts a message to a conversation. A whitespace-only body is a
// silent no-op, mirroring the at-least-one-character rule the UI enforces.
// The local log is not appended here; the sent copy arrives via the live
// echo and the dedup invariant absorbs any duplicate. Send failures are
// returned so the caller can surface them.
func (s *Store) Send(ctx context.Context, conversationID, receiverID, body string) error {
	if strings.TrimSpace(body) == "" {
		return nil
	}
	if s.api == nil || !s.api.Authenticated() {
		return nil
	}

	_, err := s.api.SendMessage(ctx, conversationID, &client.SendMessageRequest{
		ReceiverID: receiverID,
		Body:       body,
		ClientRef:  uuid.NewString(),
	})
	return err
}

// Log returns a snapshot of the open conversation's message log.
func (s *Store) Log() []client.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]client.Message(nil), s.log...)
}

// Close ends the live subscription and discards the log. Room membership
// on the connection is untouched so unread tracking keeps working while
// the conversation is not open. Idempotent.
func (s *Store) Close() {
	s.mu.Lock()
	token := s.subToken
	s.subToken = 0
	s.open = false
	s.conversationID = ""
	s.log = nil
	s.seen = nil
	s.mu.Unlock()

	if token != 0 && s.conn != nil {
		s.conn.Unsubscribe(token)
	}
	if s.focus != nil {
		s.focus.Clear()
	}
}
