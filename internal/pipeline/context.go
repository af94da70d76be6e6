package pipeline

import (
	"fmt"
	"time"

	"github.com/maildigest/internal/digest"
	"github.com/maildigest/pkg/models"
)

// RunContext accumulates everything one run produces. It is created fresh
// for every run and never shared between runs.
type RunContext struct {
	RunID     string
	StartedAt time.Time

	Messages      []models.Message
	Conversations []models.Conversation
	Categorized   []models.CategorizedConversation
	Groups        []models.DigestGroup
	Digest        *models.Digest

	ReportLocation string
	SlackSent      bool

	Success bool
	Failure *StageFailure
	Errors  []string

	// Visited lists every state entered, in order.
	Visited    []State
	FinishedAt time.Time
}

func newRunContext(runID string, now time.Time) *RunContext {
	return &RunContext{
		RunID:     runID,
		StartedAt: now,
		Success:   true,
		Errors:    []string{},
	}
}

func (rc *RunContext) addError(state State, format string, args ...any) {
	rc.Errors = append(rc.Errors, fmt.Sprintf("[%s] ", state)+fmt.Sprintf(format, args...))
}

func (rc *RunContext) addErrors(state State, errs []error) {
	for _, err := range errs {
		rc.addError(state, "%v", err)
	}
}

func (rc *RunContext) fail(f *StageFailure) {
	rc.Success = false
	rc.Failure = f
	rc.Errors = append(rc.Errors, f.Error())
}

// Result summarizes the run for its caller.
func (rc *RunContext) Result() models.RunResult {
	status := models.RunStatusSuccess
	failedState := ""
	if !rc.Success {
		status = models.RunStatusError
		if rc.Failure != nil {
			failedState = rc.Failure.State.String()
		}
	}

	d := rc.Digest
	if d == nil {
		built := digest.Build(rc.Categorized, rc.Groups, rc.StartedAt)
		d = &built
	}

	errs := make([]string, len(rc.Errors))
	copy(errs, rc.Errors)

	return models.RunResult{
		RunID:                  rc.RunID,
		Status:                 status,
		ConversationsProcessed: d.TotalConversations,
		MessagesProcessed:      d.TotalMessages,
		EmailsByCategory:       digest.CountByCategory(*d),
		SlackSent:              rc.SlackSent,
		ReportLocation:         rc.ReportLocation,
		FailedState:            failedState,
		Errors:                 errs,
		StartedAt:              rc.StartedAt,
		FinishedAt:             rc.FinishedAt,
	}
}
