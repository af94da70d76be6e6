package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/maildigest/pkg/models"
)

const (
	user = "me"

	DefaultQuery         = "has:nouserlabels newer_than:2h"
	DefaultPageSize      = 100
	DefaultMaxTotal      = 500
	DefaultBodyCharLimit = 5000
)

// Options configures a Client.
type Options struct {
	ClientID      string
	ClientSecret  string
	RefreshToken  string
	Query         string
	PageSize      int
	MaxTotal      int
	BodyCharLimit int
	Endpoint      string // optional API base URL override
}

func (o Options) withDefaults() Options {
	if o.Query == "" {
		o.Query = DefaultQuery
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.MaxTotal <= 0 {
		o.MaxTotal = DefaultMaxTotal
	}
	if o.BodyCharLimit <= 0 {
		o.BodyCharLimit = DefaultBodyCharLimit
	}
	return o
}

// api is the subset of the Gmail API the client uses.
type api interface {
	list(ctx context.Context, query string, maxResults int64, pageToken string) (*gmailapi.ListMessagesResponse, error)
	get(ctx context.Context, id string) (*gmailapi.Message, error)
}

type serviceAPI struct {
	srv *gmailapi.Service
}

func (s serviceAPI) list(ctx context.Context, query string, maxResults int64, pageToken string) (*gmailapi.ListMessagesResponse, error) {
	call := s.srv.Users.Messages.List(user).Q(query).MaxResults(maxResults).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	return call.Do()
}

func (s serviceAPI) get(ctx context.Context, id string) (*gmailapi.Message, error) {
	return s.srv.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
}

// Client fetches recent unlabeled messages from a Gmail mailbox.
type Client struct {
	opts    Options
	connect func(ctx context.Context) (api, error)
	logger  zerolog.Logger
}

// New creates a Client. No network call is made until FetchUnlabeled.
func New(opts Options, logger zerolog.Logger) *Client {
	c := &Client{
		opts:   opts.withDefaults(),
		logger: logger.With().Str("component", "gmail").Logger(),
	}
	c.connect = c.connectService
	return c
}

func newWithAPI(opts Options, a api, logger zerolog.Logger) *Client {
	return &Client{
		opts:    opts.withDefaults(),
		connect: func(context.Context) (api, error) { return a, nil },
		logger:  logger,
	}
}

// connectService exchanges the refresh token for an access token and builds
// a Gmail service on top of it. A fresh token is obtained on every run.
func (c *Client) connectService(ctx context.Context) (api, error) {
	cfg := &oauth2.Config{
		ClientID:     c.opts.ClientID,
		ClientSecret: c.opts.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmailapi.GmailReadonlyScope},
	}
	ts := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: c.opts.RefreshToken})
	if _, err := ts.Token(); err != nil {
		return nil, &AuthError{Err: err}
	}

	clientOpts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if c.opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(c.opts.Endpoint))
	}
	srv, err := gmailapi.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return serviceAPI{srv: srv}, nil
}

// FetchUnlabeled lists messages matching the configured query, page by page
// up to the configured cap, and fetches each one in full. Messages that fail
// to fetch individually are logged and skipped.
func (c *Client) FetchUnlabeled(ctx context.Context) ([]models.Message, error) {
	svc, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	var messages []models.Message
	pageToken := ""
	for len(messages) < c.opts.MaxTotal {
		maxResults := min(c.opts.PageSize, c.opts.MaxTotal-len(messages))
		resp, err := svc.list(ctx, c.opts.Query, int64(maxResults), pageToken)
		if err != nil {
			return nil, &FetchError{Op: "list messages", Err: err}
		}
		if len(resp.Messages) == 0 {
			break
		}

		for _, stub := range resp.Messages {
			full, err := svc.get(ctx, stub.Id)
			if err != nil {
				c.logger.Warn().Err(err).Str("message_id", stub.Id).Msg("Failed to fetch message, skipping")
				continue
			}
			messages = append(messages, c.toMessage(full))
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	c.logger.Info().Int("count", len(messages)).Str("query", c.opts.Query).Msg("Fetched unlabeled messages")
	return messages, nil
}

func (c *Client) toMessage(msg *gmailapi.Message) models.Message {
	headers := map[string]string{}
	var body string
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			headers[strings.ToLower(h.Name)] = h.Value
		}
		body = extractBody(msg.Payload, "text/plain")
	}

	subject := headerOr(headers, "subject", "(No Subject)")
	from := headerOr(headers, "from", "Unknown")

	return models.Message{
		ID:             msg.Id,
		ConversationID: msg.ThreadId,
		Subject:        subject,
		Sender:         from,
		SenderAddress:  extractAddress(headers["from"]),
		Recipient:      headers["to"],
		Date:           parseDate(headers["date"]),
		Snippet:        msg.Snippet,
		Body:           models.Truncate(body, c.opts.BodyCharLimit),
		Labels:         msg.LabelIds,
		Link:           models.MessageLink(msg.Id),
	}
}

func headerOr(headers map[string]string, name, fallback string) string {
	if v, ok := headers[name]; ok && v != "" {
		return v
	}
	return fallback
}

// extractAddress returns the bare address of a From header.
func extractAddress(from string) string {
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Address
	}
	start := strings.Index(from, "<")
	end := strings.LastIndex(from, ">")
	if start >= 0 && end > start {
		return strings.TrimSpace(from[start+1 : end])
	}
	return strings.TrimSpace(from)
}

// parseDate parses an RFC 5322 date header; anything unparseable is now.
func parseDate(value string) time.Time {
	if t, err := mail.ParseDate(value); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}

// extractBody finds the first part of the given MIME type, depth first.
func extractBody(part *gmailapi.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		if text, ok := decodeBase64URL(part.Body.Data); ok {
			return text
		}
	}
	for _, child := range part.Parts {
		if text := extractBody(child, mimeType); text != "" {
			return text
		}
	}
	return ""
}

func decodeBase64URL(data string) (string, bool) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return strings.ToValidUTF8(string(b), "\uFFFD"), true
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return strings.ToValidUTF8(string(b), "\uFFFD"), true
	}
	return "", false
}
