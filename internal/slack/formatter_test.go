package slack

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maildigest/pkg/models"
)

var generated = time.Date(2026, 5, 4, 14, 5, 0, 0, time.UTC)

func cc(id string, category models.Category, priority int, reply *string) models.CategorizedConversation {
	conv := models.NewConversation(id, []models.Message{{
		ID: id, ConversationID: id, Subject: "Subject " + id, Sender: "Jane <jane@acme.io>", Date: generated,
	}})
	cls := models.NewClassification(category, priority, "summary "+id, "r")
	if reply != nil {
		cls = cls.WithDraft(true, reply)
	}
	return models.CategorizedConversation{Conversation: conv, Classification: cls}
}

// texts flattens every text object in blocks, via the JSON Slack receives.
func texts(t *testing.T, blocks []slack.Block) []string {
	t.Helper()
	raw, err := json.Marshal(blocks)
	require.NoError(t, err)

	var decoded []struct {
		Type     string                  `json:"type"`
		Text     *struct{ Text string }  `json:"text"`
		Fields   []struct{ Text string } `json:"fields"`
		Elements []struct{ Text string } `json:"elements"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	var out []string
	for _, b := range decoded {
		if b.Text != nil {
			out = append(out, b.Text.Text)
		}
		for _, f := range b.Fields {
			out = append(out, f.Text)
		}
		for _, e := range b.Elements {
			out = append(out, e.Text)
		}
	}
	return out
}

func TestFormatDigest(t *testing.T) {
	reply := "Sure, see you then."
	d := models.Digest{
		GeneratedAt:        generated,
		TotalConversations: 3,
		TotalMessages:      3,
		ActionImmediately:  []models.CategorizedConversation{cc("a", models.CategoryActionImmediately, 9, &reply)},
		ActionEventually:   []models.CategorizedConversation{cc("b", models.CategoryActionEventually, 5, nil)},
		SummaryOnly:        []models.CategorizedConversation{cc("c", models.CategorySummaryOnly, 2, nil)},
	}

	p := NewFormatter(FormatterOptions{MaxPerCategory: 10, IncludeReplyDrafts: true}).FormatDigest(d)
	all := strings.Join(texts(t, p.Blocks), "\n")

	assert.Equal(t, slack.MBTHeader, p.Blocks[0].BlockType())
	assert.Contains(t, all, "Email Digest")
	assert.Contains(t, all, "*3 conversations processed* (3 messages) | Generated 2026-05-04 14:05 UTC")
	assert.Contains(t, all, "*Action Immediately* (1 conversations)")
	assert.Contains(t, all, ":red_circle: *<https://mail.google.com/mail/u/0/#inbox/a|Subject a>*\nFrom: Jane <jane@acme.io> | Priority: 9/10\nsummary a")
	assert.Contains(t, all, "*Suggested reply:* _Sure, see you then._")
	assert.Contains(t, all, ":large_orange_circle:")
	assert.Contains(t, all, "- <https://mail.google.com/mail/u/0/#inbox/c|Subject c> (P2) - summary c")
	assert.NotEmpty(t, p.Text)
}

func TestFormatDigest_RepliesDisabledAndCapped(t *testing.T) {
	reply := "draft"
	var urgent []models.CategorizedConversation
	for i := 0; i < 5; i++ {
		urgent = append(urgent, cc(fmt.Sprintf("u%d", i), models.CategoryActionImmediately, 8, &reply))
	}
	d := models.Digest{GeneratedAt: generated, TotalConversations: 5, TotalMessages: 5, ActionImmediately: urgent}

	p := NewFormatter(FormatterOptions{MaxPerCategory: 2}).FormatDigest(d)
	all := strings.Join(texts(t, p.Blocks), "\n")

	assert.Contains(t, all, "*Action Immediately* (5 conversations)")
	assert.Equal(t, 2, strings.Count(all, ":red_circle:"))
	assert.NotContains(t, all, "Suggested reply")
}

func TestFormatFailure(t *testing.T) {
	p := NewFormatter(FormatterOptions{}).FormatFailure(Failure{
		State:     "GATHER",
		ErrorType: "gmail.AuthError",
		Message:   strings.Repeat("m", 900),
		Stack:     strings.Repeat("a", 100) + strings.Repeat("z", 500),
		Time:      generated,
	})
	got := texts(t, p.Blocks)
	all := strings.Join(got, "\n")

	assert.Contains(t, all, ":rotating_light:")
	assert.Contains(t, got, "*Failed State:*\n`GATHER`")
	assert.Contains(t, got, "*Error Type:*\n`gmail.AuthError`")
	assert.Contains(t, got, "*Time:*\n2026-05-04 14:05:00 UTC")
	assert.Contains(t, got, "*Run ID:*\n`N/A`")
	assert.Contains(t, all, "```"+strings.Repeat("m", 500)+"```")
	assert.NotContains(t, all, strings.Repeat("m", 501))
	assert.Contains(t, all, "```"+strings.Repeat("z", 500)+"```")
	assert.NotContains(t, all, "a```")
}

func TestPriorityIndicator(t *testing.T) {
	assert.Equal(t, ":red_circle:", PriorityIndicator(10))
	assert.Equal(t, ":red_circle:", PriorityIndicator(8))
	assert.Equal(t, ":large_orange_circle:", PriorityIndicator(7))
	assert.Equal(t, ":large_orange_circle:", PriorityIndicator(5))
	assert.Equal(t, ":white_circle:", PriorityIndicator(4))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ééé...", truncate("éééééééé", 6))
}
