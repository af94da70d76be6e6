package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/maildigest/pkg/models"
)

// MailerOptions configures a Mailer.
type MailerOptions struct {
	APIKey string
	From   string
	To     string
}

// Enabled reports whether both a recipient and an API key are set.
func (o MailerOptions) Enabled() bool {
	return o.APIKey != "" && o.To != ""
}

type sendFunc func(ctx context.Context, msg *mail.SGMailV3) (*rest.Response, error)

// Mailer e-mails a copy of the report through SendGrid.
type Mailer struct {
	opts   MailerOptions
	send   sendFunc
	logger zerolog.Logger
}

// NewMailer creates a Mailer.
func NewMailer(opts MailerOptions, logger zerolog.Logger) *Mailer {
	client := sendgrid.NewSendClient(opts.APIKey)
	return &Mailer{
		opts:   opts,
		send:   client.SendWithContext,
		logger: logger.With().Str("component", "report_mailer").Logger(),
	}
}

// Mail sends the rendered digest as a plain-text e-mail.
func (m *Mailer) Mail(ctx context.Context, d models.Digest) error {
	if !m.opts.Enabled() {
		return errors.New("report mailer not configured")
	}
	from := m.opts.From
	if from == "" {
		from = m.opts.To
	}

	subject := fmt.Sprintf("Email Digest - %s (%d conversations)", d.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC"), d.TotalConversations)
	body := Render(d)
	msg := mail.NewSingleEmailPlainText(mail.NewEmail("Mail Digest", from), subject, mail.NewEmail("", m.opts.To), body)

	resp, err := m.send(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to send report email: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("SendGrid API error: status %d, body: %s", resp.StatusCode, resp.Body)
	}

	m.logger.Info().Str("to", m.opts.To).Msg("Report e-mailed")
	return nil
}
