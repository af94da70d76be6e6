package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maildigest/internal/ai"
	"github.com/maildigest/internal/batch"
	"github.com/maildigest/internal/classifier"
	"github.com/maildigest/internal/config"
	"github.com/maildigest/internal/gmail"
	"github.com/maildigest/internal/slack"
	"github.com/maildigest/pkg/models"
)

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type fakeMail struct {
	msgs []models.Message
	err  error
}

func (f fakeMail) FetchUnlabeled(context.Context) ([]models.Message, error) {
	return f.msgs, f.err
}

type recordingNotifier struct {
	mu       sync.Mutex
	payloads []slack.Payload
	err      error
}

func (n *recordingNotifier) Send(_ context.Context, p slack.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.payloads = append(n.payloads, p)
	return nil
}

type fakeWriter struct {
	written int
	err     error
}

func (w *fakeWriter) Write(_ context.Context, d models.Digest) (string, error) {
	if w.err != nil {
		return "", w.err
	}
	w.written++
	return "/tmp/test_digest.md", nil
}

type fakeMailer struct{ err error }

func (m fakeMailer) Mail(context.Context, models.Digest) error { return m.err }

// scriptedReasoner classifies every conversation it is asked about.
type scriptedReasoner struct {
	categorize func(ids []string) ([]ai.CategorizeItem, error)
}

func (s scriptedReasoner) Categorize(_ context.Context, req ai.Request) ([]ai.CategorizeItem, error) {
	return s.categorize(promptIDs(req.UserPrompt))
}

func (s scriptedReasoner) Draft(_ context.Context, req ai.Request) ([]ai.DraftItem, error) {
	var items []ai.DraftItem
	for _, id := range promptIDs(req.UserPrompt) {
		reply := "On it."
		items = append(items, ai.DraftItem{ThreadID: id, AwaitingReply: true, SuggestedReply: &reply})
	}
	return items, nil
}

func promptIDs(prompt string) []string {
	var ids []string
	for _, part := range strings.Split(prompt, ` id="`)[1:] {
		ids = append(ids, part[:strings.Index(part, `"`)])
	}
	return ids
}

func answerAll(category string, priority float64) func([]string) ([]ai.CategorizeItem, error) {
	return func(ids []string) ([]ai.CategorizeItem, error) {
		items := make([]ai.CategorizeItem, 0, len(ids))
		for _, id := range ids {
			p, s, r := priority, "summary "+id, "because"
			items = append(items, ai.CategorizeItem{EmailID: id, Category: category, Priority: &p, Summary: &s, Reasoning: &r})
		}
		return items, nil
	}
}

func messages(n int) []models.Message {
	out := make([]models.Message, n)
	for i := range out {
		id := fmt.Sprintf("m%d", i+1)
		out[i] = models.Message{
			ID:             id,
			ConversationID: fmt.Sprintf("t%d", i+1),
			Subject:        "Subject " + id,
			Sender:         fmt.Sprintf("Sender %d <s%d@acme.io>", i, i),
			SenderAddress:  fmt.Sprintf("s%d@acme.io", i),
			Date:           now.Add(-time.Duration(i) * time.Minute),
			Body:           "body",
		}
	}
	return out
}

type harness struct {
	notifier *recordingNotifier
	writer   *fakeWriter
	deps     Deps
}

func newHarness(mail MailSource, reasoner ai.Reasoner) *harness {
	h := &harness{notifier: &recordingNotifier{}, writer: &fakeWriter{}}
	h.deps = Deps{
		Mail: mail,
		Classifier: classifier.New(reasoner, classifier.Options{
			Batch:     batch.Config{BatchSize: 2, MaxRetries: 0, RetryDelay: time.Millisecond},
			UserEmail: "me@example.com",
		}, zerolog.Nop()),
		Reports:   h.writer,
		Notifier:  h.notifier,
		Formatter: slack.NewFormatter(slack.FormatterOptions{MaxPerCategory: 15, IncludeReplyDrafts: true}),
		Slack:     config.SlackConfig{Enabled: true, BotToken: "xoxb", UserID: "U1"},
		Clock:     func() time.Time { return now },
		Logger:    zerolog.Nop(),
	}
	return h
}

func (h *harness) run() (*RunContext, models.RunResult) {
	rc := New(h.deps).Execute(context.Background())
	return rc, rc.Result()
}

func TestRun_ZeroMessages(t *testing.T) {
	h := newHarness(fakeMail{}, scriptedReasoner{categorize: func([]string) ([]ai.CategorizeItem, error) {
		t.Fatal("no reasoning call expected")
		return nil, nil
	}})

	rc, res := h.run()

	assert.Equal(t, models.RunStatusSuccess, res.Status)
	assert.Equal(t, 0, res.ConversationsProcessed)
	assert.NotNil(t, res.EmailsByCategory)
	assert.Empty(t, res.EmailsByCategory)
	assert.False(t, res.SlackSent)
	assert.Empty(t, res.ReportLocation)
	assert.Empty(t, res.Errors)
	assert.Empty(t, h.notifier.payloads, "empty digest is not delivered")
	assert.Equal(t, Sequence(), rc.Visited)
	require.NotNil(t, rc.Digest)
	assert.Equal(t, 0, rc.Digest.TotalConversations)
}

func TestRun_Success(t *testing.T) {
	msgs := messages(3)
	msgs = append(msgs, models.Message{
		ID: "m4", ConversationID: "t1", Subject: "Re: Subject m1", Sender: "Me <me@example.com>",
		SenderAddress: "me@example.com", Date: now.Add(time.Minute), Body: "reply",
	})
	h := newHarness(fakeMail{msgs: msgs}, scriptedReasoner{categorize: answerAll("Action Immediately", 9)})
	h.deps.Mailer = fakeMailer{}

	rc, res := h.run()

	assert.Equal(t, models.RunStatusSuccess, res.Status)
	assert.Equal(t, 3, res.ConversationsProcessed)
	assert.Equal(t, 4, res.MessagesProcessed)
	assert.Equal(t, map[string]int{"Action Immediately": 3, "Action Eventually": 0, "Summary Only": 0}, res.EmailsByCategory)
	assert.True(t, res.SlackSent)
	assert.Equal(t, "/tmp/test_digest.md", res.ReportLocation)
	assert.Empty(t, res.Errors)
	assert.Len(t, h.notifier.payloads, 1)
	assert.Equal(t, 1, h.writer.written)

	for _, cc := range rc.Categorized {
		assert.True(t, cc.Classification.AwaitingReply)
		require.NotNil(t, cc.Classification.SuggestedReply)
	}
	assert.NotEmpty(t, rc.Groups)
	assert.Equal(t, rc.RunID, res.RunID)
}

func TestRun_BatchFailureDegrades(t *testing.T) {
	reasoner := scriptedReasoner{categorize: func(ids []string) ([]ai.CategorizeItem, error) {
		if ids[0] == "t1" {
			return nil, errors.New("connection reset by peer")
		}
		return answerAll("Action Eventually", 6)(ids)
	}}
	h := newHarness(fakeMail{msgs: messages(3)}, reasoner)

	rc, res := h.run()

	assert.Equal(t, models.RunStatusSuccess, res.Status)
	assert.Equal(t, 3, res.ConversationsProcessed)
	require.Len(t, res.Errors, 1)
	assert.True(t, strings.HasPrefix(res.Errors[0], "[CATEGORIZE] "))
	assert.Contains(t, res.Errors[0], "connection reset by peer")

	placeholders := 0
	for _, cc := range rc.Categorized {
		if strings.Contains(cc.Classification.Reasoning, "connection reset by peer") {
			placeholders++
			assert.Equal(t, models.CategorySummaryOnly, cc.Classification.Category)
			assert.Equal(t, 5, cc.Classification.Priority)
		}
	}
	assert.Equal(t, 2, placeholders)
	assert.True(t, res.SlackSent)
}

func TestRun_UnknownIDDropped(t *testing.T) {
	reasoner := scriptedReasoner{categorize: func(ids []string) ([]ai.CategorizeItem, error) {
		items, _ := answerAll("Action Eventually", 4)(ids)
		p := 10.0
		return append(items, ai.CategorizeItem{EmailID: "intruder", Category: "Action Immediately", Priority: &p}), nil
	}}
	h := newHarness(fakeMail{msgs: messages(2)}, reasoner)

	rc, res := h.run()

	assert.Equal(t, models.RunStatusSuccess, res.Status)
	require.Len(t, rc.Categorized, 2)
	for _, cc := range rc.Categorized {
		assert.NotEqual(t, "intruder", cc.Conversation.ID)
		assert.Equal(t, models.CategoryActionEventually, cc.Classification.Category)
	}
}

func TestRun_GatherAuthError(t *testing.T) {
	authErr := &gmail.AuthError{Err: errors.New("invalid_grant")}
	h := newHarness(fakeMail{err: authErr}, scriptedReasoner{})

	rc, res := h.run()

	assert.Equal(t, models.RunStatusError, res.Status)
	assert.Equal(t, "GATHER", res.FailedState)
	assert.Equal(t, []State{StateInit, StateGather, StateReport}, rc.Visited)
	require.NotNil(t, rc.Failure)
	assert.Equal(t, "gmail.AuthError", rc.Failure.ErrorType)
	assert.ErrorIs(t, rc.Failure, authErr)
	assert.Contains(t, rc.Failure.Stack, "*gmail.AuthError: gmail auth failed: invalid_grant")
	assert.NotContains(t, rc.Failure.Stack, "runtime/debug", "ordinary errors carry their chain, not the runner's stack")

	require.Len(t, res.Errors, 1)
	assert.Equal(t, "[GATHER] gmail.AuthError: fetch unlabeled messages: gmail auth failed: invalid_grant", res.Errors[0])

	require.Len(t, h.notifier.payloads, 1)
	alert := h.notifier.payloads[0]
	assert.Contains(t, alert.Text, "GATHER")
	assert.True(t, res.SlackSent)
}

func TestRun_InitValidationError(t *testing.T) {
	h := newHarness(fakeMail{}, scriptedReasoner{})
	h.deps.Slack.BotToken = ""

	rc, res := h.run()

	assert.Equal(t, "INIT", res.FailedState)
	assert.Equal(t, "config.ValidationError", rc.Failure.ErrorType)
	assert.Equal(t, []State{StateInit, StateReport}, rc.Visited)
}

type panickingClassifier struct{}

func (panickingClassifier) CategorizeAll(context.Context, []models.Conversation) ([]models.CategorizedConversation, []error) {
	var m map[string]int
	m["boom"] = 1
	return nil, nil
}

func (panickingClassifier) DraftReplies(_ context.Context, c []models.CategorizedConversation) ([]models.CategorizedConversation, []error) {
	return c, nil
}

func TestRun_PanicIsRecovered(t *testing.T) {
	h := newHarness(fakeMail{msgs: messages(1)}, scriptedReasoner{})
	h.deps.Classifier = panickingClassifier{}

	var rc *RunContext
	require.NotPanics(t, func() { rc, _ = h.run() })

	assert.False(t, rc.Success)
	assert.Equal(t, StateCategorize, rc.Failure.State)
	assert.Equal(t, "pipeline.PanicError", rc.Failure.ErrorType)
	assert.Contains(t, rc.Failure.Err.Error(), "assignment to entry in nil map")
	assert.Contains(t, rc.Failure.Stack, "CategorizeAll")
	assert.Equal(t, StateReport, rc.Visited[len(rc.Visited)-1])
}

type shortClassifier struct{}

func (shortClassifier) CategorizeAll(context.Context, []models.Conversation) ([]models.CategorizedConversation, []error) {
	return nil, nil
}

func (shortClassifier) DraftReplies(_ context.Context, c []models.CategorizedConversation) ([]models.CategorizedConversation, []error) {
	return c, nil
}

func TestRun_ClassifierLosingConversationsFails(t *testing.T) {
	h := newHarness(fakeMail{msgs: messages(2)}, scriptedReasoner{})
	h.deps.Classifier = shortClassifier{}

	_, res := h.run()
	assert.Equal(t, "CATEGORIZE", res.FailedState)
}

func TestRun_ReportFailuresDegrade(t *testing.T) {
	h := newHarness(fakeMail{msgs: messages(1)}, scriptedReasoner{categorize: answerAll("Summary Only", 2)})
	h.writer.err = errors.New("disk full")
	h.deps.Mailer = fakeMailer{err: errors.New("sendgrid 401")}

	_, res := h.run()

	assert.Equal(t, models.RunStatusSuccess, res.Status)
	assert.Empty(t, res.ReportLocation)
	assert.Equal(t, []string{
		"[GENERATE_REPORT] report generation failed: disk full",
		"[GENERATE_REPORT] report e-mail failed: sendgrid 401",
	}, res.Errors)
	assert.True(t, res.SlackSent)
}

func TestRun_SlackFailureOnSuccessIsSwallowed(t *testing.T) {
	h := newHarness(fakeMail{msgs: messages(1)}, scriptedReasoner{categorize: answerAll("Summary Only", 2)})
	h.notifier.err = &slack.DeliveryError{Method: "chat.postMessage", Err: errors.New("invalid_auth")}

	_, res := h.run()

	assert.Equal(t, models.RunStatusSuccess, res.Status)
	assert.False(t, res.SlackSent)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "[REPORT] slack delivery failed")
}

func TestRun_FailureAlertDeliveryFailure(t *testing.T) {
	h := newHarness(fakeMail{err: errors.New("503")}, scriptedReasoner{})
	h.notifier.err = errors.New("slack down")

	_, res := h.run()

	assert.Equal(t, models.RunStatusError, res.Status)
	assert.False(t, res.SlackSent)
	assert.Len(t, res.Errors, 1, "alert delivery failure is only logged")
}

func TestRun_DeliveryDisabled(t *testing.T) {
	h := newHarness(fakeMail{msgs: messages(2)}, scriptedReasoner{categorize: answerAll("Action Eventually", 5)})
	h.deps.Slack = config.SlackConfig{Enabled: false}

	_, res := h.run()

	assert.Equal(t, models.RunStatusSuccess, res.Status)
	assert.False(t, res.SlackSent)
	assert.Empty(t, h.notifier.payloads)
}

func TestRun_IndependentRuns(t *testing.T) {
	h := newHarness(fakeMail{msgs: messages(2)}, scriptedReasoner{categorize: answerAll("Action Eventually", 5)})
	runner := New(h.deps)

	first := runner.Execute(context.Background())
	second := runner.Execute(context.Background())

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Len(t, second.Categorized, 2)
	assert.Equal(t, first.Result().EmailsByCategory, second.Result().EmailsByCategory)
}
