// Package report renders the digest as Markdown and persists it.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/maildigest/pkg/models"
)

const DefaultOutputPath = "/tmp/email_digest.md"

// Render formats d as a Markdown document.
func Render(d models.Digest) string {
	var b strings.Builder

	b.WriteString("# Email Digest Report\n")
	fmt.Fprintf(&b, "**Generated:** %s\n", d.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC"))
	fmt.Fprintf(&b, "**Total Conversations:** %d\n", d.TotalConversations)
	fmt.Fprintf(&b, "**Total Messages:** %d\n", d.TotalMessages)
	b.WriteString("\n---\n\n")

	b.WriteString("## Summary\n")
	for _, c := range models.Categories {
		fmt.Fprintf(&b, "- %s: %d\n", c, len(d.ByCategory(c)))
	}

	for _, c := range models.Categories {
		cats := d.ByCategory(c)
		if len(cats) == 0 {
			continue
		}
		b.WriteString("\n---\n\n")
		fmt.Fprintf(&b, "## %s\n", c)
		for _, cc := range cats {
			b.WriteString("\n")
			writeConversation(&b, cc)
		}
	}
	return b.String()
}

func writeConversation(b *strings.Builder, cc models.CategorizedConversation) {
	conv := cc.Conversation
	cls := cc.Classification

	fmt.Fprintf(b, "### [%s](%s)\n", conv.Subject, conv.Link)
	if conv.IsThread() {
		fmt.Fprintf(b, "- **Participants:** %s (%d messages)\n", strings.Join(conv.Participants, ", "), conv.MessageCount)
	} else if len(conv.Messages) > 0 {
		fmt.Fprintf(b, "- **From:** %s\n", conv.Messages[0].Sender)
	}
	fmt.Fprintf(b, "- **Date:** %s\n", conv.LatestDate.UTC().Format("2006-01-02 15:04"))
	fmt.Fprintf(b, "- **Priority:** %d/10\n", cls.Priority)
	fmt.Fprintf(b, "- **Summary:** %s\n", cls.Summary)
	fmt.Fprintf(b, "- **Reasoning:** %s\n", cls.Reasoning)

	if !cls.Category.Actionable() {
		return
	}
	if cls.AwaitingReply {
		b.WriteString("- **Reply:** Awaiting reply\n")
	} else {
		b.WriteString("- **Reply:** No reply needed\n")
	}
	if cls.SuggestedReply != nil && *cls.SuggestedReply != "" {
		b.WriteString("- **Suggested Reply:**\n")
		for _, line := range strings.Split(strings.TrimRight(*cls.SuggestedReply, "\n"), "\n") {
			fmt.Fprintf(b, "  > %s\n", line)
		}
	}
}

// Writer persists rendered reports to a file.
type Writer struct {
	path   string
	logger zerolog.Logger
}

// NewWriter creates a Writer for path.
func NewWriter(path string, logger zerolog.Logger) *Writer {
	if path == "" {
		path = DefaultOutputPath
	}
	return &Writer{path: path, logger: logger.With().Str("component", "report").Logger()}
}

// Write renders d and writes it to the configured path, returning that path.
func (w *Writer) Write(ctx context.Context, d models.Digest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create report directory: %w", err)
		}
	}
	if err := os.WriteFile(w.path, []byte(Render(d)), 0o644); err != nil {
		return "", fmt.Errorf("write report %s: %w", w.path, err)
	}
	w.logger.Info().Str("path", w.path).Int("conversations", d.TotalConversations).Msg("Report written")
	return w.path, nil
}
