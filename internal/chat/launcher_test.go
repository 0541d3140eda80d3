package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gigline/glc/internal/client"
)

// launcherServer is a GigLine backend stub covering the whole launcher
// flow: eligibility, room joins, history, and sends.
type launcherServer struct {
	*httptest.Server

	mu     sync.Mutex
	joined []string
	sent   []client.SendMessageRequest
}

func newLauncherServer(t *testing.T, conversations []client.Conversation, history map[string][]client.Message) *launcherServer {
	t.Helper()
	s := &launcherServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/chat/eligible":
			json.NewEncoder(w).Encode(client.EligibleResponse{
				Conversations: conversations,
				Count:         len(conversations),
			})
		case r.Method == http.MethodPost && r.URL.Path == "/v1/chat/rooms/join":
			var req client.JoinRoomRequest
			json.NewDecoder(r.Body).Decode(&req)
			s.mu.Lock()
			s.joined = append(s.joined, req.ConversationID)
			s.mu.Unlock()
			fmt.Fprintf(w, `{"conversation_id":%q,"joined":true}`, req.ConversationID)
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/messages"):
			parts := strings.Split(r.URL.Path, "/")
			convID := parts[len(parts)-2]
			json.NewEncoder(w).Encode(client.HistoryResponse{
				ConversationID: convID,
				Messages:       history[convID],
			})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/messages"):
			var req client.SendMessageRequest
			json.NewDecoder(r.Body).Decode(&req)
			s.mu.Lock()
			s.sent = append(s.sent, req)
			s.mu.Unlock()
			fmt.Fprint(w, `{"message_id":"m-new","delivered":true}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *launcherServer) joinedRooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.joined...)
}

func (s *launcherServer) sentMessages() []client.SendMessageRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]client.SendMessageRequest(nil), s.sent...)
}

func twoConversations() []client.Conversation {
	return []client.Conversation{
		{ConversationID: "p1", Title: "Logo design", PartnerID: "u9"},
		{ConversationID: "p2", Title: "Site build", PartnerID: "u3"},
	}
}

// Full flow: mount, open, receive a live message, send a reply.
func TestLauncherOpenReceiveSend(t *testing.T) {
	server := newLauncherServer(t, twoConversations(), map[string][]client.Message{
		"p1": {{ID: "m1", ConversationID: "p1", SenderID: "u9", Body: "hello"}},
	})
	api := client.NewWithToken(server.URL, "tok-1")
	conn := newConn("u1", api, nil, nil)

	l := NewLauncher(api, conn)
	defer l.Unmount()

	convs := l.Mount(context.Background())
	if len(convs) != 2 {
		t.Fatalf("Mount() = %d conversations, want 2", len(convs))
	}
	if rooms := server.joinedRooms(); len(rooms) != 2 {
		t.Fatalf("Mount() joined %v, want both rooms", rooms)
	}

	msgs := l.OpenConversation(context.Background(), "p1")
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Fatalf("OpenConversation() = %v, want the history message m1", msgs)
	}
	if got := l.ActiveConversation(); got != "p1" {
		t.Errorf("ActiveConversation() = %q, want p1", got)
	}

	// Live message for the open conversation lands in the log, never in
	// the unread counters.
	deliver(conn, "m2", "p1")
	log := l.Log()
	if len(log) != 2 || log[1].ID != "m2" {
		t.Fatalf("Log() = %v, want [m1 m2]", log)
	}
	if got := l.TotalUnread(); got != 0 {
		t.Errorf("TotalUnread() = %d while p1 is open, want 0", got)
	}

	if err := l.Send(context.Background(), "thanks!"); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	sent := server.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("Expected 1 send, got %d", len(sent))
	}
	if sent[0].ReceiverID != "u9" || sent[0].Body != "thanks!" {
		t.Errorf("Send posted %+v, want receiver u9 body 'thanks!'", sent[0])
	}
	if sent[0].ClientRef == "" {
		t.Error("Send posted an empty client_ref")
	}
}

// Unread accrual while nothing is open, then opening resets the counter
// and replaces it with the message log.
func TestLauncherUnreadAccrualAndReset(t *testing.T) {
	server := newLauncherServer(t, twoConversations(), map[string][]client.Message{
		"p2": {
			{ID: "m1", ConversationID: "p2", SenderID: "u3", Body: "one"},
			{ID: "m2", ConversationID: "p2", SenderID: "u3", Body: "two"},
		},
	})
	api := client.NewWithToken(server.URL, "tok-1")
	conn := newConn("u1", api, nil, nil)

	l := NewLauncher(api, conn)
	defer l.Unmount()
	l.Mount(context.Background())

	deliver(conn, "m1", "p2")
	deliver(conn, "m2", "p2")
	deliver(conn, "m3", "p1")

	if got := l.Unread()["p2"]; got != 2 {
		t.Fatalf("Unread()[p2] = %d, want 2", got)
	}
	if got := l.TotalUnread(); got != 3 {
		t.Fatalf("TotalUnread() = %d, want 3", got)
	}

	msgs := l.OpenConversation(context.Background(), "p2")
	if len(msgs) != 2 {
		t.Fatalf("OpenConversation() = %v, want the 2 history messages", msgs)
	}
	if got := l.Unread()["p2"]; got != 0 {
		t.Errorf("Unread()[p2] = %d after opening, want 0", got)
	}
	if got := l.TotalUnread(); got != 1 {
		t.Errorf("TotalUnread() = %d after opening p2, want 1 (p1 untouched)", got)
	}
}

// Closing the active conversation resumes unread counting for it.
func TestLauncherCloseResumesCounting(t *testing.T) {
	server := newLauncherServer(t, twoConversations(), nil)
	api := client.NewWithToken(server.URL, "tok-1")
	conn := newConn("u1", api, nil, nil)

	l := NewLauncher(api, conn)
	defer l.Unmount()
	l.Mount(context.Background())

	l.OpenConversation(context.Background(), "p1")
	deliver(conn, "m1", "p1")
	if got := l.Unread()["p1"]; got != 0 {
		t.Fatalf("Unread()[p1] = %d while open, want 0", got)
	}

	l.CloseConversation()
	if got := l.ActiveConversation(); got != "" {
		t.Errorf("ActiveConversation() = %q after close, want empty", got)
	}

	deliver(conn, "m2", "p1")
	if got := l.Unread()["p1"]; got != 1 {
		t.Errorf("Unread()[p1] = %d after close, want 1", got)
	}
	if log := l.Log(); len(log) != 0 {
		t.Errorf("Log() = %v after close, want empty", log)
	}
}

func TestLauncherSendWithoutActiveConversation(t *testing.T) {
	server := newLauncherServer(t, twoConversations(), nil)
	api := client.NewWithToken(server.URL, "tok-1")
	conn := newConn("u1", api, nil, nil)

	l := NewLauncher(api, conn)
	defer l.Unmount()
	l.Mount(context.Background())

	if err := l.Send(context.Background(), "dropped"); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if sent := server.sentMessages(); len(sent) != 0 {
		t.Errorf("Send without an active conversation posted %v, want nothing", sent)
	}
}

// A launcher over a nil connection (not logged in) degrades to no-ops.
func TestLauncherWithoutConnection(t *testing.T) {
	l := NewLauncher(client.New("http://unused.invalid"), nil)
	defer l.Unmount()

	if convs := l.Mount(context.Background()); len(convs) != 0 {
		t.Errorf("Mount() = %v, want empty for an unauthenticated client", convs)
	}
	if msgs := l.OpenConversation(context.Background(), "p1"); len(msgs) != 0 {
		t.Errorf("OpenConversation() = %v, want empty", msgs)
	}
	if err := l.Send(context.Background(), "hello"); err == nil {
		t.Error("Send() to an unmounted conversation should fail")
	}
}

func TestLauncherUnmountStopsTracking(t *testing.T) {
	server := newLauncherServer(t, twoConversations(), nil)
	api := client.NewWithToken(server.URL, "tok-1")
	conn := newConn("u1", api, nil, nil)

	l := NewLauncher(api, conn)
	l.Mount(context.Background())
	l.Unmount()

	deliver(conn, "m1", "p1")
	if got := l.TotalUnread(); got != 0 {
		t.Errorf("TotalUnread() = %d after Unmount, want 0", got)
	}
	if convs := l.Conversations(); len(convs) != 0 {
		t.Errorf("Conversations() = %v after Unmount, want empty", convs)
	}
}
