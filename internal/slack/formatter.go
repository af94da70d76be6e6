// Package slack formats digests and failure alerts as Block Kit messages and
// delivers them as a direct message.
package slack

import (
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/maildigest/pkg/models"
)

const (
	sectionTextLimit = 3000
	alertMessageMax  = 500
	alertTraceMax    = 500
)

// Payload is one logical Slack message. Text is the notification fallback.
type Payload struct {
	Text   string
	Blocks []slack.Block
}

// FormatterOptions tunes the digest layout.
type FormatterOptions struct {
	MaxPerCategory     int
	IncludeReplyDrafts bool
}

// Failure describes a failed run for the alert payload.
type Failure struct {
	State     string
	ErrorType string
	Message   string
	Stack     string
	RunID     string
	Time      time.Time
}

// Formatter builds Block Kit payloads.
type Formatter struct {
	opts FormatterOptions
}

// NewFormatter creates a Formatter. A non-positive MaxPerCategory means 15.
func NewFormatter(opts FormatterOptions) *Formatter {
	if opts.MaxPerCategory <= 0 {
		opts.MaxPerCategory = 15
	}
	return &Formatter{opts: opts}
}

// FormatDigest builds the success payload for d.
func (f *Formatter) FormatDigest(d models.Digest) Payload {
	generated := d.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC")
	blocks := []slack.Block{
		slack.NewHeaderBlock(plain("Email Digest")),
		slack.NewContextBlock("", mrkdwn(fmt.Sprintf("*%d conversations processed* (%d messages) | Generated %s",
			d.TotalConversations, d.TotalMessages, generated))),
		slack.NewDividerBlock(),
	}

	for _, c := range []models.Category{models.CategoryActionImmediately, models.CategoryActionEventually} {
		cats := d.ByCategory(c)
		if len(cats) == 0 {
			continue
		}
		blocks = append(blocks, sectionHeader(c, len(cats)))
		showReply := f.opts.IncludeReplyDrafts && c == models.CategoryActionImmediately
		for _, cc := range f.capped(cats) {
			blocks = append(blocks, conversationBlocks(cc, showReply)...)
		}
		blocks = append(blocks, slack.NewDividerBlock())
	}

	if len(d.SummaryOnly) > 0 {
		blocks = append(blocks, sectionHeader(models.CategorySummaryOnly, len(d.SummaryOnly)))
		lines := make([]string, 0, len(d.SummaryOnly))
		for _, cc := range f.capped(d.SummaryOnly) {
			lines = append(lines, fmt.Sprintf("- <%s|%s> (P%d) - %s",
				cc.Conversation.Link,
				truncate(cc.Conversation.Subject, 60),
				cc.Classification.Priority,
				truncate(cc.Classification.Summary, 80)))
		}
		blocks = append(blocks, section(strings.Join(lines, "\n")))
	}

	return Payload{
		Text:   fmt.Sprintf("Email Digest: %d conversations processed", d.TotalConversations),
		Blocks: blocks,
	}
}

// FormatFailure builds the alert payload for a failed run.
func (f *Formatter) FormatFailure(fail Failure) Payload {
	runID := fail.RunID
	if runID == "" {
		runID = "N/A"
	}
	trace := fail.Stack
	if r := []rune(trace); len(r) > alertTraceMax {
		trace = string(r[len(r)-alertTraceMax:])
	}

	fields := []*slack.TextBlockObject{
		mrkdwn(fmt.Sprintf("*Failed State:*\n`%s`", fail.State)),
		mrkdwn(fmt.Sprintf("*Error Type:*\n`%s`", fail.ErrorType)),
		mrkdwn(fmt.Sprintf("*Time:*\n%s", fail.Time.UTC().Format("2006-01-02 15:04:05 UTC"))),
		mrkdwn(fmt.Sprintf("*Run ID:*\n`%s`", runID)),
	}

	return Payload{
		Text: fmt.Sprintf("Mail digest pipeline failed in %s: %s", fail.State, models.Truncate(fail.Message, 200)),
		Blocks: []slack.Block{
			slack.NewHeaderBlock(plain(":rotating_light: Mail Digest - Pipeline Failed")),
			slack.NewDividerBlock(),
			slack.NewSectionBlock(nil, fields, nil),
			section(fmt.Sprintf("*Error Message:*\n```%s```", models.Truncate(fail.Message, alertMessageMax))),
			section(fmt.Sprintf("*Trace (last %d chars):*\n```%s```", alertTraceMax, trace)),
		},
	}
}

func (f *Formatter) capped(cats []models.CategorizedConversation) []models.CategorizedConversation {
	if len(cats) > f.opts.MaxPerCategory {
		return cats[:f.opts.MaxPerCategory]
	}
	return cats
}

func conversationBlocks(cc models.CategorizedConversation, showReply bool) []slack.Block {
	conv := cc.Conversation
	cls := cc.Classification

	from := strings.Join(conv.Participants, ", ")
	if conv.IsThread() {
		from = fmt.Sprintf("%s (%d messages)", from, conv.MessageCount)
	}
	text := fmt.Sprintf("%s *<%s|%s>*\nFrom: %s | Priority: %d/10\n%s",
		PriorityIndicator(cls.Priority),
		conv.Link,
		truncate(conv.Subject, 80),
		from,
		cls.Priority,
		cls.Summary)

	blocks := []slack.Block{section(text)}
	if showReply && cls.SuggestedReply != nil && *cls.SuggestedReply != "" {
		blocks = append(blocks, slack.NewContextBlock("",
			mrkdwn(fmt.Sprintf("*Suggested reply:* _%s_", truncate(*cls.SuggestedReply, 200)))))
	}
	return blocks
}

// PriorityIndicator maps a priority to a colored circle emoji.
func PriorityIndicator(priority int) string {
	switch {
	case priority >= 8:
		return ":red_circle:"
	case priority >= 5:
		return ":large_orange_circle:"
	default:
		return ":white_circle:"
	}
}

func sectionHeader(c models.Category, count int) slack.Block {
	return section(fmt.Sprintf("*%s* (%d conversations)", c, count))
}

func section(text string) *slack.SectionBlock {
	return slack.NewSectionBlock(mrkdwn(models.Truncate(text, sectionTextLimit)), nil, nil)
}

func mrkdwn(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

func plain(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, text, true, false)
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
