package models

import (
	"sort"
	"time"
)

// Message is a single fetched email. Values are treated as immutable once built.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Subject        string    `json:"subject"`
	Sender         string    `json:"sender"`         // full From header, e.g. "Jane Doe <jane@acme.io>"
	SenderAddress  string    `json:"sender_address"` // bare address extracted from Sender
	Recipient      string    `json:"recipient"`
	Date           time.Time `json:"date"`
	Snippet        string    `json:"snippet"`
	Body           string    `json:"body,omitempty"`
	Labels         []string  `json:"labels,omitempty"`
	Link           string    `json:"link"`
}

// Text returns the plain body, or the snippet when the body is empty.
func (m Message) Text() string {
	if m.Body != "" {
		return m.Body
	}
	return m.Snippet
}

// Conversation is an ordered sequence of messages sharing a conversation id.
type Conversation struct {
	ID           string    `json:"id"`
	Subject      string    `json:"subject"`
	Messages     []Message `json:"messages"`
	Participants []string  `json:"participants"`
	MessageCount int       `json:"message_count"`
	LatestDate   time.Time `json:"latest_date"`
	Link         string    `json:"link"`
}

// NewConversation sorts messages ascending by date and derives the
// participant list, message count, and latest timestamp from them.
// The input slice is not modified.
func NewConversation(id string, messages []Message) Conversation {
	sorted := make([]Message, len(messages))
	copy(sorted, messages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	seen := make(map[string]struct{}, len(sorted))
	participants := make([]string, 0, len(sorted))
	for _, msg := range sorted {
		if _, ok := seen[msg.Sender]; ok {
			continue
		}
		seen[msg.Sender] = struct{}{}
		participants = append(participants, msg.Sender)
	}

	conv := Conversation{
		ID:           id,
		Messages:     sorted,
		Participants: participants,
		MessageCount: len(sorted),
		Link:         ConversationLink(id),
	}
	if len(sorted) > 0 {
		conv.Subject = sorted[0].Subject
		conv.LatestDate = sorted[len(sorted)-1].Date
	}
	return conv
}

// FirstSender returns the bare address of the conversation's first message.
func (c Conversation) FirstSender() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[0].SenderAddress
}

// IsThread reports whether the conversation holds more than one message.
func (c Conversation) IsThread() bool {
	return c.MessageCount > 1
}

const gmailInboxURL = "https://mail.google.com/mail/u/0/#inbox/"

// MessageLink is the Gmail web link for a single message.
func MessageLink(id string) string {
	return gmailInboxURL + id
}

// ConversationLink is the Gmail web link for a thread.
func ConversationLink(id string) string {
	return gmailInboxURL + id
}

// CategorizedConversation pairs a conversation with its classification.
// Updates produce a new value via WithClassification.
type CategorizedConversation struct {
	Conversation   Conversation   `json:"conversation"`
	Classification Classification `json:"classification"`
}

// WithClassification returns a copy carrying c.
func (cc CategorizedConversation) WithClassification(c Classification) CategorizedConversation {
	return CategorizedConversation{Conversation: cc.Conversation, Classification: c}
}

// DigestGroup is a display cluster of categorized conversations.
type DigestGroup struct {
	Key             string                    `json:"key"`
	Label           string                    `json:"label"`
	Conversations   []CategorizedConversation `json:"conversations"`
	HighestPriority int                       `json:"highest_priority"`
}

// Digest is the final report structure delivered at the end of a run.
type Digest struct {
	GeneratedAt        time.Time                 `json:"generated_at"`
	TotalConversations int                       `json:"total_conversations"`
	TotalMessages      int                       `json:"total_messages"`
	Groups             []DigestGroup             `json:"groups"`
	ActionImmediately  []CategorizedConversation `json:"action_immediately"`
	ActionEventually   []CategorizedConversation `json:"action_eventually"`
	SummaryOnly        []CategorizedConversation `json:"summary_only"`
}

// ByCategory returns the bucket for category.
func (d Digest) ByCategory(category Category) []CategorizedConversation {
	switch category {
	case CategoryActionImmediately:
		return d.ActionImmediately
	case CategoryActionEventually:
		return d.ActionEventually
	default:
		return d.SummaryOnly
	}
}

// IsEmpty reports whether the digest holds no conversations.
func (d Digest) IsEmpty() bool {
	return d.TotalConversations == 0
}

// Run status values reported in RunResult.
const (
	RunStatusSuccess = "success"
	RunStatusError   = "error"
)

// RunResult is returned to whatever triggered a pipeline run.
type RunResult struct {
	RunID                  string         `json:"run_id"`
	Status                 string         `json:"status"`
	ConversationsProcessed int            `json:"conversations_processed"`
	MessagesProcessed      int            `json:"messages_processed"`
	EmailsByCategory       map[string]int `json:"emails_by_category"`
	SlackSent              bool           `json:"slack_sent"`
	ReportLocation         string         `json:"report_location,omitempty"`
	FailedState            string         `json:"failed_state,omitempty"`
	Errors                 []string       `json:"errors"`
	StartedAt              time.Time      `json:"started_at"`
	FinishedAt             time.Time      `json:"finished_at"`
}
