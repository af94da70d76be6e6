package models

// Category is the urgency bucket assigned to a conversation.
type Category string

const (
	CategorySummaryOnly       Category = "Summary Only"
	CategoryActionEventually  Category = "Action Eventually"
	CategoryActionImmediately Category = "Action Immediately"
)

// Categories lists every category from most to least urgent.
var Categories = []Category{
	CategoryActionImmediately,
	CategoryActionEventually,
	CategorySummaryOnly,
}

// ParseCategory maps a label to a Category. ok is false for unknown labels.
func ParseCategory(label string) (Category, bool) {
	switch Category(label) {
	case CategorySummaryOnly, CategoryActionEventually, CategoryActionImmediately:
		return Category(label), true
	}
	return CategorySummaryOnly, false
}

// Severity orders categories: 0 for Summary Only up to 2 for Action Immediately.
func (c Category) Severity() int {
	switch c {
	case CategoryActionImmediately:
		return 2
	case CategoryActionEventually:
		return 1
	default:
		return 0
	}
}

// Actionable reports whether the category sits above Summary Only.
func (c Category) Actionable() bool {
	return c.Severity() > 0
}

const (
	MinPriority     = 1
	MaxPriority     = 10
	DefaultPriority = 5

	MaxSummaryLen   = 500
	MaxReasoningLen = 300
)

// ClampPriority forces p into [MinPriority, MaxPriority].
func ClampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

// Classification is the reasoning service's verdict on one conversation.
type Classification struct {
	Category       Category `json:"category"`
	Priority       int      `json:"priority"`
	Summary        string   `json:"summary"`
	Reasoning      string   `json:"reasoning"`
	AwaitingReply  bool     `json:"awaiting_reply"`
	SuggestedReply *string  `json:"suggested_reply"`
}

// NewClassification builds a normalized classification: priority clamped,
// summary and reasoning truncated to their limits.
func NewClassification(category Category, priority int, summary, reasoning string) Classification {
	return Classification{
		Category:  category,
		Priority:  ClampPriority(priority),
		Summary:   Truncate(summary, MaxSummaryLen),
		Reasoning: Truncate(reasoning, MaxReasoningLen),
	}
}

// WithDraft returns a copy carrying the reply decision. The reply is dropped
// unless awaiting is true.
func (c Classification) WithDraft(awaiting bool, reply *string) Classification {
	c.AwaitingReply = awaiting
	c.SuggestedReply = nil
	if awaiting && reply != nil {
		r := *reply
		c.SuggestedReply = &r
	}
	return c
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
