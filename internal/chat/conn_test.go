package chat

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gigline/glc/internal/client"
)

// chatServer is a minimal GigLine backend for connection tests: it serves
// a long-lived SSE stream and counts room joins.
type chatServer struct {
	*httptest.Server

	joins    atomic.Int64
	requests atomic.Int64

	mu          sync.Mutex
	lastEventID string
}

func newChatServer(t *testing.T, streamBody string) *chatServer {
	t.Helper()
	s := &chatServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		switch r.URL.Path {
		case "/v1/chat/stream":
			s.mu.Lock()
			s.lastEventID = r.Header.Get("Last-Event-ID")
			s.mu.Unlock()

			w.Header().Set("Content-Type", "text/event-stream")
			flusher := w.(http.Flusher)
			if streamBody != "" {
				fmt.Fprint(w, streamBody)
			}
			flusher.Flush()
			// Hold the stream open until the client goes away
			<-r.Context().Done()
		case "/v1/chat/rooms/join":
			s.joins.Add(1)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"conversation_id":"p1","joined":true}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *chatServer) seenLastEventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEventID
}

func TestAcquireIdempotent(t *testing.T) {
	server := newChatServer(t, "")
	m := NewManager(client.NewWithToken(server.URL, "tok-1"))
	defer m.Release()

	first := m.Acquire("u1")
	if first == nil {
		t.Fatal("Acquire() returned nil for a valid identity")
	}
	second := m.Acquire("u1")
	if first != second {
		t.Error("Acquire() with the same identity should return the same connection")
	}
}

func TestAcquireWithoutIdentity(t *testing.T) {
	server := newChatServer(t, "")
	m := NewManager(client.NewWithToken(server.URL, "tok-1"))
	defer m.Release()

	if conn := m.Acquire(""); conn != nil {
		t.Error("Acquire(\"\") should return nil")
	}

	// Give any stray goroutine a moment, then verify nothing hit the server
	time.Sleep(50 * time.Millisecond)
	if n := server.requests.Load(); n != 0 {
		t.Errorf("Acquire(\"\") performed %d network requests, want 0", n)
	}
}

func TestAcquireIdentityChange(t *testing.T) {
	server := newChatServer(t, "")
	m := NewManager(client.NewWithToken(server.URL, "tok-1"))
	defer m.Release()

	first := m.Acquire("u1")
	second := m.Acquire("u2")
	if first == second {
		t.Error("Acquire() with a new identity should not reuse the stale connection")
	}
	if second.Identity() != "u2" {
		t.Errorf("Identity() = %q, want %q", second.Identity(), "u2")
	}
}

func TestReleaseIdempotent(t *testing.T) {
	server := newChatServer(t, "")
	m := NewManager(client.NewWithToken(server.URL, "tok-1"))

	m.Release() // nothing acquired yet: no-op

	m.Acquire("u1")
	m.Release()
	m.Release() // second release: no-op
}

func TestJoinIdempotent(t *testing.T) {
	server := newChatServer(t, "")
	conn := newConn("u1", client.NewWithToken(server.URL, "tok-1"), client.NewSSE(), nil)

	ctx := context.Background()
	if err := conn.Join(ctx, "p1"); err != nil {
		t.Fatalf("Join() error: %v", err)
	}
	if err := conn.Join(ctx, "p1"); err != nil {
		t.Fatalf("Join() error: %v", err)
	}

	if n := server.joins.Load(); n != 1 {
		t.Errorf("Join() issued %d room-join requests for one room, want 1", n)
	}
	if rooms := conn.Rooms(); len(rooms) != 1 || rooms[0] != "p1" {
		t.Errorf("Rooms() = %v, want [p1]", rooms)
	}
}

func TestJoinRequiresConversationID(t *testing.T) {
	server := newChatServer(t, "")
	conn := newConn("u1", client.NewWithToken(server.URL, "tok-1"), client.NewSSE(), nil)

	if err := conn.Join(context.Background(), ""); err == nil {
		t.Error("Join(\"\") should fail")
	}
	if n := server.joins.Load(); n != 0 {
		t.Errorf("Join(\"\") issued %d requests, want 0", n)
	}
}

func TestDispatchFansOutToSubscribers(t *testing.T) {
	conn := newConn("u1", nil, nil, nil)

	var mu sync.Mutex
	var got []client.Message
	token := conn.Subscribe(func(msg client.Message) {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
	})

	conn.handleEvent(client.SSEEvent{
		Type: "message",
		Data: `{"id":"m1","conversation_id":"p7","sender_id":"u9","body":"hi"}`,
	})
	conn.handleEvent(client.SSEEvent{
		Type: "message",
		Data: `{"id":"m2","conversation_id":{"_id":"p7"},"sender_id":"u9","body":"again"}`,
	})
	// Non-message events carry no chat payload
	conn.handleEvent(client.SSEEvent{Type: "presence", Data: `{}`})
	// Malformed payloads are dropped, not dispatched
	conn.handleEvent(client.SSEEvent{Type: "message", Data: `{broken`})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("Expected 2 dispatched messages, got %d", len(got))
	}
	// Both payload shapes resolve to the same logical conversation
	if string(got[0].ConversationID) != "p7" || string(got[1].ConversationID) != "p7" {
		t.Errorf("Conversation ids = %q, %q; want both 'p7'", got[0].ConversationID, got[1].ConversationID)
	}

	conn.Unsubscribe(token)
	conn.handleEvent(client.SSEEvent{
		Type: "message",
		Data: `{"id":"m3","conversation_id":"p7","body":"late"}`,
	})
	if len(got) != 2 {
		t.Error("Unsubscribed handler should not receive further events")
	}
}

func TestReconnectResumesAndRejoins(t *testing.T) {
	// First stream delivers one event then ends; the reconnect must carry
	// Last-Event-ID and re-issue the room join.
	var streams atomic.Int64
	s := &chatServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/chat/stream":
			n := streams.Add(1)
			s.mu.Lock()
			s.lastEventID = r.Header.Get("Last-Event-ID")
			s.mu.Unlock()

			w.Header().Set("Content-Type", "text/event-stream")
			flusher := w.(http.Flusher)
			if n == 1 {
				fmt.Fprint(w, "id: ev-9\nevent: message\ndata: {\"id\":\"m1\",\"conversation_id\":\"p1\",\"body\":\"hi\"}\n\n")
				flusher.Flush()
				return // stream drops
			}
			flusher.Flush()
			<-r.Context().Done()
		case "/v1/chat/rooms/join":
			s.joins.Add(1)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"conversation_id":"p1","joined":true}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer s.Close()

	m := NewManager(client.NewWithToken(s.URL, "tok-1"))
	defer m.Release()

	conn := m.Acquire("u1")
	if err := conn.Join(context.Background(), "p1"); err != nil {
		t.Fatalf("Join() error: %v", err)
	}

	// Wait out the first stream plus one backoff interval
	deadline := time.Now().Add(5 * time.Second)
	for streams.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if streams.Load() < 2 {
		t.Fatal("Connection did not reconnect after the stream dropped")
	}

	// Reconnect resumed from the delivered event
	if got := s.seenLastEventID(); got != "ev-9" {
		t.Errorf("Reconnect Last-Event-ID = %q, want %q", got, "ev-9")
	}

	// Room was joined again after the reconnect (initial join + rejoin)
	deadline = time.Now().Add(2 * time.Second)
	for s.joins.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if n := s.joins.Load(); n < 2 {
		t.Errorf("Expected a room rejoin after reconnect, got %d joins", n)
	}
}
