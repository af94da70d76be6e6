package ai

import (
	"context"
	"errors"
	"fmt"
)

// Request is one structured-output call: a system prompt plus a user prompt
// embedding a serialized batch of conversations.
type Request struct {
	SystemPrompt string
	UserPrompt   string
}

// CategorizeItem is the raw per-conversation verdict returned by the
// categorization call. Optional fields are pointers so that missing values
// can be told apart from zero values during reconciliation.
type CategorizeItem struct {
	EmailID   string   `json:"email_id"`
	Category  string   `json:"category"`
	Priority  *float64 `json:"priority"`
	Summary   *string  `json:"summary"`
	Reasoning *string  `json:"reasoning"`
}

// DraftItem is the raw per-conversation reply decision.
type DraftItem struct {
	ThreadID       string  `json:"thread_id"`
	AwaitingReply  bool    `json:"awaiting_reply"`
	SuggestedReply *string `json:"suggested_reply"`
}

// Reasoner is the external reasoning service, one method per request shape.
type Reasoner interface {
	Categorize(ctx context.Context, req Request) ([]CategorizeItem, error)
	Draft(ctx context.Context, req Request) ([]DraftItem, error)
}

// ErrRateLimited matches any APIError caused by upstream throttling.
var ErrRateLimited = errors.New("reasoning service rate limited")

// APIError wraps a failed reasoning-service call.
type APIError struct {
	Provider    string
	Op          string
	RateLimited bool
	Err         error
}

func (e *APIError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("%s %s: rate limit exceeded: %v", e.Provider, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrRateLimited) match throttling failures.
func (e *APIError) Is(target error) bool {
	return target == ErrRateLimited && e.RateLimited
}
