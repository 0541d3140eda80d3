// Package client implements the GigLine HTTP and SSE clients.
//
// The client handles all communication with the GigLine chat backend:
// - GET  /v1/chat/eligible - Conversations the caller may chat on
// - GET  /v1/chat/conversations/{id}/messages - Conversation history
// - POST /v1/chat/conversations/{id}/messages - Send a message
// - POST /v1/chat/rooms/join - Join a conversation's live-event room
// - GET  /v1/chat/stream - SSE live channel (one per identity)
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"time"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 10 * time.Second

// DefaultHistoryLimit is the history page size used when the caller does
// not choose one.
const DefaultHistoryLimit = 100

// maxResponseSize limits response body reads to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Client is the GigLine HTTP client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string // bearer token for Authorization header
}

// New creates a new unauthenticated GigLine client.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// NewWithToken creates a new GigLine client with bearer authentication.
// When a token is set, all requests include an Authorization: Bearer header.
func NewWithToken(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		token: token,
	}
}

// Authenticated reports whether the client carries a bearer token.
// Unauthenticated clients degrade: the server rejects their calls and the
// chat layer converts that to empty results.
func (c *Client) Authenticated() bool {
	return c.token != ""
}

// ConversationID is a conversation identifier as it appears in event
// payloads. The backend emits it either as a bare string or nested inside
// an object ({"_id": "..."}); both shapes decode to the same value.
type ConversationID string

// UnmarshalJSON accepts both the bare-string and the nested-object shape.
func (c *ConversationID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = ConversationID(s)
		return nil
	}
	var nested struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &nested); err != nil {
		return fmt.Errorf("decoding conversation id: %w", err)
	}
	*c = ConversationID(nested.ID)
	return nil
}

// Conversation is a project chat the caller is permitted to take part in.
// Conversations are created server-side when a hire is accepted; the
// client only ever lists them.
type Conversation struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title,omitempty"`
	PartnerID      string `json:"partner_id"`
}

// EligibleResponse is the response from GET /v1/chat/eligible.
type EligibleResponse struct {
	Conversations []Conversation `json:"conversations"`
	Count         int            `json:"count"`
}

// Eligible lists the conversations the authenticated caller may chat on.
func (c *Client) Eligible(ctx context.Context) (*EligibleResponse, error) {
	var resp EligibleResponse
	if err := c.get(ctx, "/v1/chat/eligible", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Message represents a chat message on the wire and in conversation logs.
// ID is the persisted identifier; it is empty for sends the server has not
// acknowledged yet.
type Message struct {
	ID             string         `json:"id,omitempty"`
	ConversationID ConversationID `json:"conversation_id"`
	SenderID       string         `json:"sender_id"`
	ReceiverID     string         `json:"receiver_id"`
	Body           string         `json:"body"`
	Timestamp      string         `json:"timestamp"`
	ClientRef      string         `json:"client_ref,omitempty"`
}

// HistoryRequest is the request parameters for
// GET /v1/chat/conversations/{id}/messages.
type HistoryRequest struct {
	Limit int
	Since string
}

// HistoryResponse is the response from GET /v1/chat/conversations/{id}/messages.
// Messages are server-sorted ascending by time.
type HistoryResponse struct {
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
	HasMore        bool      `json:"has_more"`
}

// History fetches message history for a conversation.
func (c *Client) History(ctx context.Context, conversationID string, req *HistoryRequest) (*HistoryResponse, error) {
	var resp HistoryResponse
	path := fmt.Sprintf("/v1/chat/conversations/%s/messages", url.PathEscape(conversationID))
	if err := c.get(ctx, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendMessageRequest is the request body for
// POST /v1/chat/conversations/{id}/messages.
// ClientRef is a caller-generated reference echoed back on the live event
// so the sender can correlate its own echo.
type SendMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Body       string `json:"body"`
	ClientRef  string `json:"client_ref,omitempty"`
}

// SendMessageResponse is the response from POST /v1/chat/conversations/{id}/messages.
type SendMessageResponse struct {
	MessageID string `json:"message_id"`
	Delivered bool   `json:"delivered"`
	CreatedAt string `json:"created_at,omitempty"`
}

// SendMessage posts a message to a conversation. The sent copy is not
// returned inline; it arrives on the live channel as an echo.
func (c *Client) SendMessage(ctx context.Context, conversationID string, req *SendMessageRequest) (*SendMessageResponse, error) {
	var resp SendMessageResponse
	path := fmt.Sprintf("/v1/chat/conversations/%s/messages", url.PathEscape(conversationID))
	if err := c.post(ctx, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JoinRoomRequest is the request body for POST /v1/chat/rooms/join.
type JoinRoomRequest struct {
	ConversationID string `json:"conversation_id"`
}

// JoinRoomResponse is the response from POST /v1/chat/rooms/join.
type JoinRoomResponse struct {
	ConversationID string `json:"conversation_id"`
	Joined         bool   `json:"joined"`
}

// JoinRoom subscribes the caller's live channel to a conversation's room.
// The call is idempotent server-side; joining twice is a no-op. Without a
// join, live events for the conversation are silently dropped by the
// transport.
func (c *Client) JoinRoom(ctx context.Context, req *JoinRoomRequest) (*JoinRoomResponse, error) {
	var resp JoinRoomResponse
	if err := c.post(ctx, "/v1/chat/rooms/join", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StreamOptions controls establishment of the SSE live channel.
type StreamOptions struct {
	// LastEventID resumes the stream after the given event instead of
	// starting fresh. Empty means a fresh stream.
	LastEventID string
}

// Stream opens the live event stream for the authenticated identity.
// The returned channel closes when the connection ends or ctx is cancelled.
func (c *Client) Stream(ctx context.Context, sse *SSE, opts *StreamOptions) (<-chan SSEEvent, error) {
	headers := map[string]string{}
	if c.token != "" {
		headers["Authorization"] = "Bearer " + c.token
	}
	if opts != nil && opts.LastEventID != "" {
		headers["Last-Event-ID"] = opts.LastEventID
	}
	return sse.Connect(ctx, c.baseURL+"/v1/chat/stream", headers)
}

// Error represents an error response from the GigLine server.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("GigLine error (status %d): %s", e.StatusCode, e.Body)
}

// post sends a POST request and decodes the JSON response.
func (c *Client) post(ctx context.Context, path string, reqBody, respBody any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return c.do(req, respBody)
}

// get sends a GET request with query parameters and decodes the JSON response.
func (c *Client) get(ctx context.Context, path string, params any, respBody any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	if params != nil {
		// Avoid panics when params is a typed-nil pointer stored in an interface.
		v := reflect.ValueOf(params)
		if v.Kind() == reflect.Ptr && v.IsNil() {
			params = nil
		}
	}
	if params != nil {
		q := req.URL.Query()
		switch p := params.(type) {
		case *HistoryRequest:
			if p.Limit > 0 {
				q.Set("limit", fmt.Sprintf("%d", p.Limit))
			}
			if p.Since != "" {
				q.Set("since", p.Since)
			}
		}
		req.URL.RawQuery = q.Encode()
	}

	return c.do(req, respBody)
}

// do executes the request, enforces the response size cap, and decodes the
// JSON response into respBody.
func (c *Client) do(req *http.Request, respBody any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Read maxResponseSize+1 to detect oversized responses while still
	// accepting responses exactly at the limit.
	respBodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if int64(len(respBodyBytes)) > maxResponseSize {
		return fmt.Errorf("response exceeds maximum size of %d bytes", maxResponseSize)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{
			StatusCode: resp.StatusCode,
			Body:       string(respBodyBytes),
		}
	}

	if err := json.Unmarshal(respBodyBytes, respBody); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}
