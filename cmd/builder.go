package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/maildigest/internal/ai/langchain"
	"github.com/maildigest/internal/api"
	"github.com/maildigest/internal/batch"
	"github.com/maildigest/internal/classifier"
	"github.com/maildigest/internal/config"
	"github.com/maildigest/internal/gmail"
	"github.com/maildigest/internal/logging"
	"github.com/maildigest/internal/pipeline"
	"github.com/maildigest/internal/ratelimit"
	"github.com/maildigest/internal/report"
	"github.com/maildigest/internal/slack"
)

// newRunner builds the runner used by run and serve. Tests replace it.
var newRunner = func(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (api.Runner, error) {
	return buildRunner(ctx, cfg, logger)
}

// buildRunner wires every collaborator named in cfg into a pipeline Runner.
func buildRunner(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*pipeline.Runner, error) {
	provider, ok := langchain.ParseProvider(cfg.AI.Provider)
	if !ok {
		return nil, fmt.Errorf("unsupported reasoning provider %q", cfg.AI.Provider)
	}

	reasoner, err := langchain.New(ctx, langchain.Config{
		Provider:       provider,
		APIKey:         cfg.AI.APIKey,
		BaseURL:        cfg.AI.BaseURL,
		Model:          cfg.AI.Model,
		MaxTokens:      cfg.AI.MaxTokens,
		Temperature:    cfg.AI.Temperature,
		RequestTimeout: cfg.AI.RequestTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create reasoning client: %w", err)
	}

	guidelines, err := classifier.LoadGuidelines(cfg.AI.GuidelinesPath, logger)
	if err != nil {
		return nil, err
	}

	var limiter batch.Limiter
	if l := ratelimit.New(cfg.AI.RateLimitRequests, cfg.AI.RateLimitWindow); l != nil {
		limiter = l
	}

	cls := classifier.New(reasoner, classifier.Options{
		Batch: batch.Config{
			BatchSize:  cfg.AI.BatchSize,
			MaxRetries: cfg.AI.MaxRetries,
			RetryDelay: cfg.AI.RetryDelay,
		},
		Limiter:    limiter,
		UserEmail:  cfg.Gmail.UserEmail,
		Guidelines: guidelines,
	}, logger)

	mail := gmail.New(gmail.Options{
		ClientID:      cfg.Gmail.ClientID,
		ClientSecret:  cfg.Gmail.ClientSecret,
		RefreshToken:  cfg.Gmail.RefreshToken,
		Query:         cfg.Gmail.Query,
		PageSize:      cfg.Gmail.MaxResultsPerPage,
		MaxTotal:      cfg.Gmail.MaxTotalEmails,
		BodyCharLimit: cfg.Gmail.BodyCharLimit,
	}, logger)

	deps := pipeline.Deps{
		Mail:       mail,
		Classifier: cls,
		Reports:    report.NewWriter(cfg.Report.OutputPath, logger),
		Formatter: slack.NewFormatter(slack.FormatterOptions{
			MaxPerCategory:     cfg.Slack.MaxEmailsPerCategory,
			IncludeReplyDrafts: cfg.Slack.IncludeReplyDrafts,
		}),
		Slack:  cfg.Slack,
		Logger: logger,
	}

	mailerOpts := report.MailerOptions{
		APIKey: cfg.Report.SendgridAPIKey,
		From:   cfg.Report.EmailFrom,
		To:     cfg.Report.EmailTo,
	}
	if mailerOpts.Enabled() {
		deps.Mailer = report.NewMailer(mailerOpts, logger)
	}

	if cfg.Slack.Enabled {
		deps.Notifier = slack.NewNotifier(slack.Options{
			BotToken: cfg.Slack.BotToken,
			UserID:   cfg.Slack.UserID,
			APIURL:   cfg.Slack.APIURL,
		}, logger)
	}

	return pipeline.New(deps), nil
}

func setupLogging(c *cli.Context, cfg *config.Config) zerolog.Logger {
	level := cfg.Logging.Level
	if c.Bool("verbose") {
		level = "debug"
	}
	return logging.Setup(level, cfg.Logging.Format, c.App.ErrWriter)
}
