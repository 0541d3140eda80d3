package chat

import (
	"context"
	"fmt"
	"os"

	"github.com/gigline/glc/internal/client"
)

// Resolver fetches the set of conversations the current identity is
// permitted to chat on. Eligibility is server-authoritative: a
// conversation unlocks only after a hire is accepted upstream.
type Resolver struct {
	api *client.Client
}

// NewResolver creates an eligibility resolver over the given API client.
func NewResolver(api *client.Client) *Resolver {
	return &Resolver{api: api}
}

// ListEligible returns the current eligibility snapshot. Failures are
// fail-soft: a network or auth error yields an empty slice so the caller
// degrades to "no chats" instead of crashing. The caller must Join every
// returned conversation's room before its live events will be delivered.
func (r *Resolver) ListEligible(ctx context.Context) []client.Conversation {
	if r.api == nil || !r.api.Authenticated() {
		return nil
	}

	resp, err := r.api.Eligible(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chat: eligibility fetch failed: %v\n", err)
		return nil
	}
	return resp.Conversations
}
