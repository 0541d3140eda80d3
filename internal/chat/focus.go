package chat

import "sync"

// Focus is the single owned "currently open conversation" value shared by
// the Store and the Tracker. Passing it explicitly keeps the unread logic
// auditable: nothing reads ambient global state to decide whether a
// message counts as unread.
type Focus struct {
	mu sync.Mutex
	id string
}

// NewFocus creates an unset focus.
func NewFocus() *Focus {
	return &Focus{}
}

// Set marks a conversation as the open one.
func (f *Focus) Set(conversationID string) {
	f.mu.Lock()
	f.id = conversationID
	f.mu.Unlock()
}

// Clear unsets the focus; subsequent events count as unread again.
func (f *Focus) Clear() {
	f.mu.Lock()
	f.id = ""
	f.mu.Unlock()
}

// Get returns the open conversation's ID, or "" when none is open.
func (f *Focus) Get() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}
