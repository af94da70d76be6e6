// Package pipeline sequences a triage run through a fixed state machine.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/maildigest/internal/config"
	"github.com/maildigest/internal/digest"
	"github.com/maildigest/internal/gmail"
	"github.com/maildigest/internal/grouper"
	"github.com/maildigest/internal/logging"
	"github.com/maildigest/internal/slack"
	"github.com/maildigest/pkg/models"
)

const traceLimit = 500

// MailSource fetches the messages a run works on.
type MailSource interface {
	FetchUnlabeled(ctx context.Context) ([]models.Message, error)
}

// Classifier categorizes conversations and drafts replies.
type Classifier interface {
	CategorizeAll(ctx context.Context, convs []models.Conversation) ([]models.CategorizedConversation, []error)
	DraftReplies(ctx context.Context, cats []models.CategorizedConversation) ([]models.CategorizedConversation, []error)
}

// ReportWriter persists the digest and returns where it went.
type ReportWriter interface {
	Write(ctx context.Context, d models.Digest) (string, error)
}

// ReportMailer sends a copy of the digest.
type ReportMailer interface {
	Mail(ctx context.Context, d models.Digest) error
}

// Notifier delivers a chat payload.
type Notifier interface {
	Send(ctx context.Context, p slack.Payload) error
}

// Formatter builds chat payloads.
type Formatter interface {
	FormatDigest(d models.Digest) slack.Payload
	FormatFailure(f slack.Failure) slack.Payload
}

// Deps are the collaborators of a Runner. Mailer is optional; Notifier and
// Formatter are only used when Slack delivery is enabled.
type Deps struct {
	Mail       MailSource
	Classifier Classifier
	Reports    ReportWriter
	Mailer     ReportMailer
	Notifier   Notifier
	Formatter  Formatter
	Slack      config.SlackConfig
	Clock      func() time.Time
	Logger     zerolog.Logger
}

type handler func(ctx context.Context, rc *RunContext, log *logging.RunLogger) error

// Runner executes pipeline runs. It holds no per-run state, so one Runner
// may serve many runs.
type Runner struct {
	deps     Deps
	handlers map[State]handler
}

// New creates a Runner.
func New(deps Deps) *Runner {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	r := &Runner{deps: deps}
	r.handlers = map[State]handler{
		StateInit:           r.init,
		StateGather:         r.gather,
		StateCategorize:     r.categorize,
		StateDraftReplies:   r.draftReplies,
		StateGroup:          r.group,
		StateGenerateReport: r.generateReport,
		StateReport:         r.report,
	}
	return r
}

// Run executes one pipeline run and summarizes it. It never panics.
func (r *Runner) Run(ctx context.Context) models.RunResult {
	return r.Execute(ctx).Result()
}

// Execute walks the transition table from INIT to REPORT and returns the
// run's context. A failing state jumps straight to REPORT, which always runs.
func (r *Runner) Execute(ctx context.Context) *RunContext {
	rc := newRunContext(uuid.NewString(), r.deps.Clock().UTC())
	log := logging.NewRunLogger(r.deps.Logger, rc.RunID)

	prev := "START"
	state := StateInit
	for {
		log.Transition(prev, state.String())
		rc.Visited = append(rc.Visited, state)

		if state.Terminal() {
			r.runTerminal(ctx, state, rc, log)
			break
		}

		start := time.Now()
		err := r.invoke(ctx, state, rc, log)
		elapsed := time.Since(start)

		if err != nil {
			failure := newStageFailure(state, err)
			rc.fail(failure)
			log.StageFailed(state.String(), failure.ErrorType, err, elapsed)
		} else {
			log.StageCompleted(state.String(), elapsed)
		}

		next, _ := Next(state, err != nil)
		prev, state = state.String(), next
	}

	rc.FinishedAt = r.deps.Clock().UTC()
	status := models.RunStatusSuccess
	if !rc.Success {
		status = models.RunStatusError
	}
	log.Finish(status)
	return rc
}

// invoke runs a handler, turning a panic into a *PanicError.
func (r *Runner) invoke(ctx context.Context, state State, rc *RunContext, log *logging.RunLogger) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: string(debug.Stack())}
		}
	}()
	return r.handlers[state](ctx, rc, log)
}

// runTerminal runs the terminal handler. Nothing escapes from it.
func (r *Runner) runTerminal(ctx context.Context, state State, rc *RunContext, log *logging.RunLogger) {
	if err := r.invoke(ctx, state, rc, log); err != nil {
		log.Critical().Err(err).Msgf("State %s failed", state)
	}
}

func newStageFailure(state State, err error) *StageFailure {
	stack := ErrorTrace(err)
	if p, ok := err.(*PanicError); ok {
		stack = p.Stack
	}
	return &StageFailure{
		State:     state,
		Err:       err,
		ErrorType: ErrorTypeName(err),
		Stack:     stack,
	}
}

func (r *Runner) init(_ context.Context, _ *RunContext, log *logging.RunLogger) error {
	if err := r.deps.Slack.Validate(); err != nil {
		return err
	}
	l := log.Logger()
	l.Info().Bool("slack_enabled", r.deps.Slack.Enabled).Msg("Pipeline initialized")
	return nil
}

func (r *Runner) gather(ctx context.Context, rc *RunContext, log *logging.RunLogger) error {
	l := log.Logger()
	msgs, err := r.deps.Mail.FetchUnlabeled(ctx)
	if err != nil {
		return fmt.Errorf("fetch unlabeled messages: %w", err)
	}
	rc.Messages = msgs
	l.Info().Int("messages", len(msgs)).Msg("Gathered messages")

	if len(msgs) == 0 {
		l.Info().Msg("No unlabeled messages found, pipeline will report an empty digest")
		return nil
	}

	rc.Conversations = gmail.Consolidate(msgs)
	l.Info().
		Int("messages", len(msgs)).
		Int("conversations", len(rc.Conversations)).
		Msg("Consolidated messages into conversations")
	return nil
}

func (r *Runner) categorize(ctx context.Context, rc *RunContext, log *logging.RunLogger) error {
	l := log.Logger()
	if len(rc.Conversations) == 0 {
		l.Info().Msg("No conversations to categorize, skipping")
		return nil
	}

	cats, errs := r.deps.Classifier.CategorizeAll(ctx, rc.Conversations)
	if len(cats) != len(rc.Conversations) {
		return fmt.Errorf("classifier returned %d results for %d conversations", len(cats), len(rc.Conversations))
	}
	rc.Categorized = cats
	rc.addErrors(StateCategorize, errs)

	l.Info().Int("categorized", len(cats)).Int("failed_batches", len(errs)).Msg("Categorized conversations")
	return nil
}

func (r *Runner) draftReplies(ctx context.Context, rc *RunContext, log *logging.RunLogger) error {
	l := log.Logger()
	if len(rc.Categorized) == 0 {
		l.Info().Msg("No categorized conversations to draft replies for, skipping")
		return nil
	}

	drafted, errs := r.deps.Classifier.DraftReplies(ctx, rc.Categorized)
	if len(drafted) != len(rc.Categorized) {
		return fmt.Errorf("draft pass returned %d results for %d conversations", len(drafted), len(rc.Categorized))
	}
	rc.Categorized = drafted
	rc.addErrors(StateDraftReplies, errs)

	awaiting := 0
	for _, cc := range drafted {
		if cc.Classification.AwaitingReply {
			awaiting++
		}
	}
	l.Info().Int("awaiting_reply", awaiting).Int("failed_batches", len(errs)).Msg("Draft phase complete")
	return nil
}

func (r *Runner) group(_ context.Context, rc *RunContext, log *logging.RunLogger) error {
	l := log.Logger()
	if len(rc.Categorized) == 0 {
		l.Info().Msg("No categorized conversations to group, skipping")
		return nil
	}
	rc.Groups = grouper.Group(rc.Categorized)
	l.Info().Int("groups", len(rc.Groups)).Msg("Created display groups")
	return nil
}

// generateReport builds the digest and persists it. Persistence failures are
// recorded as errors; they never fail the state.
func (r *Runner) generateReport(ctx context.Context, rc *RunContext, log *logging.RunLogger) error {
	l := log.Logger()
	d := digest.Build(rc.Categorized, rc.Groups, r.deps.Clock())
	rc.Digest = &d

	if d.IsEmpty() {
		l.Info().Msg("Empty digest, no report written")
		return nil
	}

	if r.deps.Reports != nil {
		loc, err := r.deps.Reports.Write(ctx, d)
		if err != nil {
			l.Error().Err(err).Msg("Report generation failed")
			rc.addError(StateGenerateReport, "report generation failed: %v", err)
		} else {
			rc.ReportLocation = loc
			l.Info().Str("location", loc).Msg("Report generated")
		}
	}

	if r.deps.Mailer != nil {
		if err := r.deps.Mailer.Mail(ctx, d); err != nil {
			l.Error().Err(err).Msg("Report e-mail failed")
			rc.addError(StateGenerateReport, "report e-mail failed: %v", err)
		}
	}
	return nil
}

// report delivers the digest or the failure alert. Delivery problems are
// logged, never returned.
func (r *Runner) report(ctx context.Context, rc *RunContext, log *logging.RunLogger) error {
	l := log.Logger()
	if !r.deps.Slack.Enabled {
		l.Info().Msg("Slack notifications disabled, skipping")
		return nil
	}
	if r.deps.Notifier == nil || r.deps.Formatter == nil {
		l.Warn().Msg("Slack enabled but no notifier configured, skipping")
		return nil
	}

	if rc.Success {
		r.sendDigest(ctx, rc, l)
	} else {
		r.sendFailure(ctx, rc, log)
	}
	return nil
}

func (r *Runner) sendDigest(ctx context.Context, rc *RunContext, l zerolog.Logger) {
	if rc.Digest == nil || rc.Digest.IsEmpty() {
		l.Info().Msg("Empty digest, skipping Slack notification")
		return
	}

	if err := r.deps.Notifier.Send(ctx, r.deps.Formatter.FormatDigest(*rc.Digest)); err != nil {
		l.Error().Err(err).Msg("Failed to send digest to Slack")
		rc.addError(StateReport, "slack delivery failed: %v", err)
		return
	}
	rc.SlackSent = true
	l.Info().Msg("Digest sent to Slack")
}

func (r *Runner) sendFailure(ctx context.Context, rc *RunContext, log *logging.RunLogger) {
	f := rc.Failure
	if f == nil {
		return
	}

	payload := r.deps.Formatter.FormatFailure(slack.Failure{
		State:     f.State.String(),
		ErrorType: f.ErrorType,
		Message:   f.Err.Error(),
		Stack:     lastRunes(f.Stack, traceLimit),
		RunID:     rc.RunID,
		Time:      r.deps.Clock(),
	})
	if err := r.deps.Notifier.Send(ctx, payload); err != nil {
		log.Critical().
			Err(err).
			Str("failed_state", f.State.String()).
			Str("original_error", f.Err.Error()).
			Msg("Failed to deliver failure alert to Slack")
		return
	}
	rc.SlackSent = true
	l := log.Logger()
	l.Info().Msg("Failure alert sent to Slack")
}

func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
