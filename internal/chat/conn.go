// Package chat implements the realtime conversation core: the connection
// manager, eligibility resolver, conversation store, unread tracker, and
// the launcher that orchestrates them.
//
// All live events arrive on one SSE stream per identity and are fanned out
// to subscribers from a single dispatch goroutine; subscribers filter by
// conversation ID before touching conversation-scoped state.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gigline/glc/internal/client"
)

// Reconnect backoff bounds for the live channel.
const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// ConnState is the live channel's connection state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Handler receives decoded live messages. Handlers run on the connection's
// dispatch goroutine; they must not block.
type Handler func(msg client.Message)

// ResumeStore persists the last delivered event ID per identity so a
// reconnect resumes the stream instead of replaying it.
type ResumeStore interface {
	LastEventID(identity string) string
	SetLastEventID(identity, eventID string)
}

// Manager owns the live connection. At most one connection exists per
// process; it is keyed by identity so an account switch drops the stale
// connection instead of reusing its auth.
type Manager struct {
	api    *client.Client
	sse    *client.SSE
	resume ResumeStore

	mu       sync.Mutex
	identity string
	conn     *Conn
}

// NewManager creates a connection manager over the given API client.
func NewManager(api *client.Client) *Manager {
	return &Manager{api: api, sse: client.NewSSE()}
}

// NewManagerWithResume creates a connection manager that persists and
// restores the stream position through the given store.
func NewManagerWithResume(api *client.Client, resume ResumeStore) *Manager {
	return &Manager{api: api, sse: client.NewSSE(), resume: resume}
}

// Acquire returns the live connection for identity, creating it on first
// use. Repeated calls with the same identity return the same connection.
// An empty identity models "not logged in": Acquire returns nil and
// performs no network action.
func (m *Manager) Acquire(identity string) *Conn {
	if identity == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		if m.identity == identity {
			return m.conn
		}
		// Identity changed: the cached connection carries stale auth.
		m.conn.stop()
		m.conn = nil
	}

	conn := newConn(identity, m.api, m.sse, m.resume)
	conn.start()
	m.conn = conn
	m.identity = identity
	return conn
}

// Release closes and clears the cached connection. Calling it when none
// exists is a no-op.
func (m *Manager) Release() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.identity = ""
	m.mu.Unlock()

	if conn != nil {
		conn.stop()
	}
}

// Conn is the live channel for one identity. It owns the SSE stream and a
// single dispatch goroutine, and tracks joined rooms so they can be
// re-joined after a reconnect (room membership is not guaranteed to
// survive one).
type Conn struct {
	identity string
	api      *client.Client
	sse      *client.SSE
	resume   ResumeStore

	mu          sync.Mutex
	state       ConnState
	subs        map[int]Handler
	nextSub     int
	rooms       map[string]bool
	lastEventID string

	cancel context.CancelFunc
	done   chan struct{}
}

func newConn(identity string, api *client.Client, sse *client.SSE, resume ResumeStore) *Conn {
	c := &Conn{
		identity: identity,
		api:      api,
		sse:      sse,
		resume:   resume,
		subs:     make(map[int]Handler),
		rooms:    make(map[string]bool),
	}
	if resume != nil {
		c.lastEventID = resume.LastEventID(identity)
	}
	return c
}

// Identity returns the identity the connection authenticates as.
func (c *Conn) Identity() string {
	return c.identity
}

// State returns the current connection state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers a handler for live messages and returns a token for
// Unsubscribe. Every subscriber sees every message; filtering by
// conversation is the subscriber's job.
func (c *Conn) Subscribe(h Handler) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	c.subs[c.nextSub] = h
	return c.nextSub
}

// Unsubscribe removes a handler. Unknown tokens are ignored, so tearing
// down twice is safe.
func (c *Conn) Unsubscribe(token int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, token)
}

// Join subscribes the connection to a conversation's room. Joining is
// monotonic and idempotent: an already-joined room is not re-requested.
// Without a join, the transport silently drops that conversation's events.
func (c *Conn) Join(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return fmt.Errorf("conversation id is required")
	}

	c.mu.Lock()
	if c.rooms[conversationID] {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if _, err := c.api.JoinRoom(ctx, &client.JoinRoomRequest{ConversationID: conversationID}); err != nil {
		return fmt.Errorf("joining room %s: %w", conversationID, err)
	}

	c.mu.Lock()
	c.rooms[conversationID] = true
	c.mu.Unlock()
	return nil
}

// Rooms returns the conversations whose rooms have been joined.
func (c *Conn) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	return out
}

func (c *Conn) start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx)
}

// stop tears the connection down and waits for the dispatch goroutine to
// exit, so no handler fires after stop returns. Idempotent.
func (c *Conn) stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

// run is the connection loop: Disconnected -> Connecting -> Connected,
// with bounded exponential backoff between attempts. Connect failures are
// not surfaced to callers; an unconnected handle simply delivers nothing.
func (c *Conn) run(ctx context.Context) {
	defer close(c.done)
	defer c.setState(StateDisconnected)

	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		c.setState(StateConnecting)
		events, err := c.api.Stream(ctx, c.sse, &client.StreamOptions{LastEventID: c.getLastEventID()})
		if err != nil {
			c.setState(StateDisconnected)
			if ctx.Err() == nil {
				fmt.Fprintf(os.Stderr, "chat: stream connect failed (retrying in %s): %v\n", backoff, err)
			}
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		c.setState(StateConnected)
		backoff = initialBackoff

		// Room membership may not have survived the reconnect.
		c.rejoinRooms(ctx)

		for ev := range events {
			c.handleEvent(ev)
		}

		c.setState(StateDisconnected)
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

func (c *Conn) rejoinRooms(ctx context.Context) {
	for _, id := range c.Rooms() {
		if _, err := c.api.JoinRoom(ctx, &client.JoinRoomRequest{ConversationID: id}); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "chat: rejoining room %s failed: %v\n", id, err)
		}
	}
}

// handleEvent decodes a live event and fans it out to subscribers. Only
// "message" events carry chat payloads; everything else (keepalives,
// presence) is dropped here.
func (c *Conn) handleEvent(ev client.SSEEvent) {
	if ev.Type != "message" {
		return
	}

	var msg client.Message
	if err := json.Unmarshal([]byte(ev.Data), &msg); err != nil {
		fmt.Fprintf(os.Stderr, "chat: dropping malformed event: %v\n", err)
		return
	}

	if ev.ID != "" {
		c.mu.Lock()
		c.lastEventID = ev.ID
		c.mu.Unlock()
		if c.resume != nil {
			c.resume.SetLastEventID(c.identity, ev.ID)
		}
	}

	for _, h := range c.handlers() {
		h(msg)
	}
}

func (c *Conn) handlers() []Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Handler, 0, len(c.subs))
	for _, h := range c.subs {
		out = append(out, h)
	}
	return out
}

func (c *Conn) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Conn) getLastEventID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastEventID
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// sleepCtx sleeps for d, returning false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
