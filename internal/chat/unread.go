package chat

import (
	"sync"

	"github.com/gigline/glc/internal/client"
)

// Tracker maintains per-conversation unread counters from the live event
// stream. It runs at the launcher's scope, independent of whether any
// single conversation is open: a message for the focused conversation
// leaves its counter untouched, everything else increments by one.
//
// Counters live for the process only; nothing is persisted.
type Tracker struct {
	conn  *Conn
	focus *Focus

	mu       sync.Mutex
	counts   map[string]int
	subToken int
}

// NewTracker creates an unread tracker reading the open-conversation
// pointer from focus.
func NewTracker(conn *Conn, focus *Focus) *Tracker {
	return &Tracker{
		conn:   conn,
		focus:  focus,
		counts: make(map[string]int),
	}
}

// Start subscribes the tracker to the live stream. Idempotent.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subToken != 0 || t.conn == nil {
		return
	}
	t.subToken = t.conn.Subscribe(t.onMessage)
}

// Stop unsubscribes the tracker so no stale handler can keep counting
// after the launcher is gone. Idempotent.
func (t *Tracker) Stop() {
	t.mu.Lock()
	token := t.subToken
	t.subToken = 0
	t.mu.Unlock()

	if token != 0 && t.conn != nil {
		t.conn.Unsubscribe(token)
	}
}

// onMessage increments the counter for the message's conversation unless
// that conversation is the focused one. The conversation ID has already
// been normalized at decode time, so bare and nested payload shapes count
// against the same conversation.
func (t *Tracker) onMessage(msg client.Message) {
	id := string(msg.ConversationID)
	if id == "" {
		return
	}
	if t.focus != nil && t.focus.Get() == id {
		return
	}

	t.mu.Lock()
	t.counts[id]++
	t.mu.Unlock()
}

// Clear removes a conversation's counter. Called as a side effect of
// opening that conversation.
func (t *Tracker) Clear(conversationID string) {
	t.mu.Lock()
	delete(t.counts, conversationID)
	t.mu.Unlock()
}

// Count returns the unread counter for one conversation (0 when absent).
func (t *Tracker) Count(conversationID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[conversationID]
}

// Counts returns a snapshot of all non-zero counters.
func (t *Tracker) Counts() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.counts))
	for id, n := range t.counts {
		out[id] = n
	}
	return out
}

// Total returns the sum across all counters. Derived, never stored.
func (t *Tracker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, n := range t.counts {
		total += n
	}
	return total
}
