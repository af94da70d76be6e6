package report

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maildigest/pkg/models"
)

var generated = time.Date(2026, 5, 4, 14, 5, 0, 0, time.UTC)

func message(id, conv, sender string, at time.Time) models.Message {
	return models.Message{ID: id, ConversationID: conv, Subject: "Budget review", Sender: sender, SenderAddress: sender, Date: at}
}

func sampleDigest() models.Digest {
	reply := "Thanks, Tuesday works.\nBest, Me"
	thread := models.NewConversation("t1", []models.Message{
		message("m1", "t1", "Alice <alice@acme.io>", generated.Add(-2*time.Hour)),
		message("m2", "t1", "Bob <bob@acme.io>", generated.Add(-time.Hour)),
	})
	single := models.NewConversation("t2", []models.Message{message("m3", "t2", "news@list.io", generated)})
	eventually := models.NewConversation("t3", []models.Message{message("m4", "t3", "carol@x.io", generated)})

	urgent := models.NewClassification(models.CategoryActionImmediately, 9, "Needs sign-off", "Deadline today").WithDraft(true, &reply)
	later := models.NewClassification(models.CategoryActionEventually, 4, "Question", "No rush")
	return models.Digest{
		GeneratedAt:        generated,
		TotalConversations: 3,
		TotalMessages:      4,
		ActionImmediately:  []models.CategorizedConversation{{Conversation: thread, Classification: urgent}},
		ActionEventually:   []models.CategorizedConversation{{Conversation: eventually, Classification: later}},
		SummaryOnly: []models.CategorizedConversation{{
			Conversation:   single,
			Classification: models.NewClassification(models.CategorySummaryOnly, 2, "Weekly news", "Newsletter"),
		}},
	}
}

func TestRender(t *testing.T) {
	out := Render(sampleDigest())

	for _, want := range []string{
		"# Email Digest Report\n**Generated:** 2026-05-04 14:05 UTC\n",
		"**Total Conversations:** 3\n",
		"**Total Messages:** 4\n",
		"## Summary\n- Action Immediately: 1\n- Action Eventually: 1\n- Summary Only: 1\n",
		"## Action Immediately\n\n### [Budget review](https://mail.google.com/mail/u/0/#inbox/t1)\n",
		"- **Participants:** Alice <alice@acme.io>, Bob <bob@acme.io> (2 messages)\n",
		"- **Date:** 2026-05-04 13:05\n",
		"- **Priority:** 9/10\n",
		"- **Reply:** Awaiting reply\n- **Suggested Reply:**\n  > Thanks, Tuesday works.\n  > Best, Me\n",
		"- **Reply:** No reply needed\n",
		"- **From:** news@list.io\n",
	} {
		assert.Contains(t, out, want)
	}

	assert.Less(t, strings.Index(out, "## Action Immediately"), strings.Index(out, "## Action Eventually"))
	assert.Less(t, strings.Index(out, "## Action Eventually"), strings.Index(out, "## Summary Only"))

	summaryOnly := out[strings.Index(out, "## Summary Only"):]
	assert.NotContains(t, summaryOnly, "**Reply:**")
}

func TestRender_EmptyDigestSkipsSections(t *testing.T) {
	out := Render(models.Digest{GeneratedAt: generated})
	assert.Contains(t, out, "- Action Immediately: 0")
	assert.NotContains(t, out, "## Action Immediately")
	assert.NotContains(t, out, "## Summary Only")
}

func TestWriter_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "digest.md")
	w := NewWriter(path, zerolog.Nop())

	loc, err := w.Write(context.Background(), sampleDigest())
	require.NoError(t, err)
	assert.Equal(t, path, loc)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Render(sampleDigest()), string(content))
}

func TestWriter_WriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := NewWriter(filepath.Join(blocker, "digest.md"), zerolog.Nop()).Write(context.Background(), sampleDigest())
	assert.Error(t, err)
}

func TestNewWriter_DefaultPath(t *testing.T) {
	assert.Equal(t, DefaultOutputPath, NewWriter("", zerolog.Nop()).path)
}
