package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/rs/zerolog"

	"github.com/maildigest/internal/ai"
	"github.com/maildigest/internal/batch"
	"github.com/maildigest/pkg/models"
)

const (
	defaultSummary   = "No summary provided"
	defaultReasoning = "No reasoning provided"

	failedSummary      = "[Categorization failed - please review manually]"
	omittedSummary     = "[Not categorized - please review manually]"
	omittedReasoning   = "Not returned by the classification service for this batch"
	failureReasonLimit = 200
)

// Options configures a Classifier.
type Options struct {
	Batch      batch.Config
	Limiter    batch.Limiter // optional
	UserEmail  string        // mailbox owner, used by the draft pass
	Guidelines string        // appended to the categorization system prompt
}

// BatchError records a batch whose external call failed after all retries.
type BatchError struct {
	Op    string
	Batch int // 1-based
	Size  int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s batch %d (%d conversations) failed: %v", e.Op, e.Batch, e.Size, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Classifier turns conversations into categorized conversations in two
// passes against an ai.Reasoner.
type Classifier struct {
	reasoner     ai.Reasoner
	opts         Options
	systemPrompt string
	logger       zerolog.Logger
}

// New creates a Classifier. Unless opts.Batch says otherwise, rate-limited
// reasoning calls back off on the throttle policy.
func New(reasoner ai.Reasoner, opts Options, logger zerolog.Logger) *Classifier {
	if opts.Batch.Throttled == nil {
		opts.Batch.Throttled = isRateLimited
	}
	return &Classifier{
		reasoner:     reasoner,
		opts:         opts,
		systemPrompt: BuildSystemPrompt(opts.Guidelines),
		logger:       logger.With().Str("component", "classifier").Logger(),
	}
}

func isRateLimited(err error) bool {
	return errors.Is(err, ai.ErrRateLimited)
}

// LoadGuidelines reads the optional guidelines file. A missing file is not an
// error; it yields no guidelines.
func LoadGuidelines(path string, logger zerolog.Logger) (string, error) {
	if path == "" {
		return "", nil
	}
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn().Str("path", path).Msg("Guidelines file not found, using defaults only")
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read guidelines %s: %w", path, err)
	}
	logger.Info().Str("path", path).Msg("Loaded categorization guidelines")
	return string(content), nil
}

// CategorizeAll classifies every conversation. The output always holds
// exactly one entry per input conversation, in input order. Batches whose
// call failed get a placeholder classification and are reported in the
// returned errors.
func (c *Classifier) CategorizeAll(ctx context.Context, convs []models.Conversation) ([]models.CategorizedConversation, []error) {
	if len(convs) == 0 {
		return nil, nil
	}

	proc := batch.NewProcessor[models.Conversation, ai.CategorizeItem]("categorize", c.opts.Batch, c.opts.Limiter, c.logger)
	results := proc.Process(ctx, convs, func(ctx context.Context, b []models.Conversation) ([]ai.CategorizeItem, error) {
		return c.reasoner.Categorize(ctx, ai.Request{
			SystemPrompt: c.systemPrompt,
			UserPrompt:   BuildCategorizationPrompt(b),
		})
	})

	out := make([]models.CategorizedConversation, 0, len(convs))
	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, &BatchError{Op: "categorize", Batch: res.Index + 1, Size: len(res.Items), Err: res.Err})
			for _, conv := range res.Items {
				out = append(out, models.CategorizedConversation{
					Conversation:   conv,
					Classification: failurePlaceholder(res.Err),
				})
			}
			continue
		}
		out = append(out, c.reconcileCategorizations(res.Items, res.Output)...)
	}
	return out, errs
}

func (c *Classifier) reconcileCategorizations(convs []models.Conversation, items []ai.CategorizeItem) []models.CategorizedConversation {
	index := make(map[string]int, len(convs))
	for i, conv := range convs {
		index[conv.ID] = i
	}

	verdicts := make([]*models.Classification, len(convs))
	for _, item := range items {
		i, ok := index[item.EmailID]
		if !ok {
			c.logger.Warn().Str("email_id", item.EmailID).Msg("Classification service returned unknown id, dropping")
			continue
		}
		if verdicts[i] != nil {
			c.logger.Warn().Str("email_id", item.EmailID).Msg("Duplicate classification for id, keeping the first")
			continue
		}
		cls := c.normalize(item)
		verdicts[i] = &cls
	}

	out := make([]models.CategorizedConversation, len(convs))
	for i, conv := range convs {
		cls := verdicts[i]
		if cls == nil {
			c.logger.Warn().Str("email_id", conv.ID).Msg("Classification service omitted id, assigning placeholder")
			p := omittedPlaceholder()
			cls = &p
		}
		out[i] = models.CategorizedConversation{Conversation: conv, Classification: *cls}
	}
	return out
}

func (c *Classifier) normalize(item ai.CategorizeItem) models.Classification {
	category, ok := models.ParseCategory(item.Category)
	if !ok {
		c.logger.Warn().
			Str("email_id", item.EmailID).
			Str("category", item.Category).
			Msg("Invalid category, defaulting to Summary Only")
	}

	priority := models.DefaultPriority
	if item.Priority != nil && !math.IsNaN(*item.Priority) {
		priority = clampFloat(*item.Priority)
	}

	summary := defaultSummary
	if item.Summary != nil {
		summary = *item.Summary
	}
	reasoning := defaultReasoning
	if item.Reasoning != nil {
		reasoning = *item.Reasoning
	}

	return models.NewClassification(category, priority, summary, reasoning)
}

func clampFloat(p float64) int {
	switch {
	case p <= models.MinPriority:
		return models.MinPriority
	case p >= models.MaxPriority:
		return models.MaxPriority
	}
	return models.ClampPriority(int(math.Round(p)))
}

func failurePlaceholder(err error) models.Classification {
	return models.NewClassification(
		models.CategorySummaryOnly,
		models.DefaultPriority,
		failedSummary,
		"AI categorization error: "+models.Truncate(err.Error(), failureReasonLimit),
	)
}

func omittedPlaceholder() models.Classification {
	return models.NewClassification(models.CategorySummaryOnly, models.DefaultPriority, omittedSummary, omittedReasoning)
}

// DraftReplies asks, for every actionable conversation, whether the owner
// owes a reply and drafts one if so. Summary Only conversations pass through
// untouched. The result is the actionable set (input order) followed by the
// Summary Only set (input order). Failed batches pass through unchanged and
// are reported in the returned errors.
func (c *Classifier) DraftReplies(ctx context.Context, cats []models.CategorizedConversation) ([]models.CategorizedConversation, []error) {
	var actionable, summaryOnly []models.CategorizedConversation
	for _, cc := range cats {
		if cc.Classification.Category.Actionable() {
			actionable = append(actionable, cc)
		} else {
			summaryOnly = append(summaryOnly, cc)
		}
	}

	if len(actionable) == 0 {
		c.logger.Info().Msg("No actionable conversations to draft replies for")
		return cats, nil
	}

	userEmail := c.opts.UserEmail
	if userEmail == "" {
		c.logger.Warn().Msg("Mailbox owner address not set; reply detection cannot tell which messages are yours")
		userEmail = "unknown"
	}
	systemPrompt := BuildDraftSystemPrompt(userEmail)

	c.logger.Info().Int("actionable", len(actionable)).Msg("Drafting replies")

	proc := batch.NewProcessor[models.CategorizedConversation, ai.DraftItem]("draft", c.opts.Batch, c.opts.Limiter, c.logger)
	results := proc.Process(ctx, actionable, func(ctx context.Context, b []models.CategorizedConversation) ([]ai.DraftItem, error) {
		convs := make([]models.Conversation, len(b))
		for i, cc := range b {
			convs[i] = cc.Conversation
		}
		return c.reasoner.Draft(ctx, ai.Request{
			SystemPrompt: systemPrompt,
			UserPrompt:   BuildDraftPrompt(convs, userEmail),
		})
	})

	drafted := make([]models.CategorizedConversation, 0, len(cats))
	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, &BatchError{Op: "draft", Batch: res.Index + 1, Size: len(res.Items), Err: res.Err})
			drafted = append(drafted, res.Items...)
			continue
		}
		drafted = append(drafted, c.reconcileDrafts(res.Items, res.Output)...)
	}
	return append(drafted, summaryOnly...), errs
}

func (c *Classifier) reconcileDrafts(group []models.CategorizedConversation, items []ai.DraftItem) []models.CategorizedConversation {
	index := make(map[string]int, len(group))
	for i, cc := range group {
		index[cc.Conversation.ID] = i
	}

	out := make([]models.CategorizedConversation, len(group))
	applied := make([]bool, len(group))
	for _, item := range items {
		i, ok := index[item.ThreadID]
		if !ok {
			c.logger.Warn().Str("thread_id", item.ThreadID).Msg("Draft response referenced unknown id, dropping")
			continue
		}
		if applied[i] {
			continue
		}
		cc := group[i]
		out[i] = cc.WithClassification(cc.Classification.WithDraft(item.AwaitingReply, item.SuggestedReply))
		applied[i] = true
	}

	for i, cc := range group {
		if !applied[i] {
			c.logger.Warn().Str("thread_id", cc.Conversation.ID).Msg("Conversation not in draft response, keeping as-is")
			out[i] = cc
		}
	}
	return out
}
