package slack

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

const (
	maxBlocksPerMessage = 50
	chunkSize           = 48
)

// DeliveryError reports a failed Slack Web API call.
type DeliveryError struct {
	Method string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("slack %s failed: %v", e.Method, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Options configures a Notifier.
type Options struct {
	BotToken string
	UserID   string
	APIURL   string // optional, must end with "/"
}

// Notifier sends payloads as direct messages to one user.
type Notifier struct {
	client *slack.Client
	userID string
	logger zerolog.Logger

	mu        sync.Mutex
	channelID string
}

// NewNotifier creates a Notifier.
func NewNotifier(opts Options, logger zerolog.Logger) *Notifier {
	var clientOpts []slack.Option
	if opts.APIURL != "" {
		clientOpts = append(clientOpts, slack.OptionAPIURL(opts.APIURL))
	}
	return &Notifier{
		client: slack.New(opts.BotToken, clientOpts...),
		userID: opts.UserID,
		logger: logger.With().Str("component", "slack").Logger(),
	}
}

// Send delivers p, split into several messages when it exceeds the
// per-message block limit.
func (n *Notifier) Send(ctx context.Context, p Payload) error {
	channelID, err := n.dmChannel(ctx)
	if err != nil {
		return err
	}

	chunks := Split(p.Blocks)
	for i, blocks := range chunks {
		_, ts, err := n.client.PostMessageContext(ctx, channelID,
			slack.MsgOptionBlocks(blocks...),
			slack.MsgOptionText(p.Text, false),
			slack.MsgOptionDisableLinkUnfurl(),
			slack.MsgOptionDisableMediaUnfurl(),
		)
		if err != nil {
			return &DeliveryError{Method: "chat.postMessage", Err: err}
		}
		n.logger.Info().
			Str("channel", channelID).
			Str("ts", ts).
			Int("chunk", i+1).
			Int("chunks", len(chunks)).
			Int("blocks", len(blocks)).
			Msg("Slack message sent")
	}
	return nil
}

func (n *Notifier) dmChannel(ctx context.Context) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.channelID != "" {
		return n.channelID, nil
	}

	ch, _, _, err := n.client.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users:    []string{n.userID},
		ReturnIM: true,
	})
	if err != nil {
		return "", &DeliveryError{Method: "conversations.open", Err: fmt.Errorf("open DM with user %s: %w", n.userID, err)}
	}
	n.channelID = ch.ID
	n.logger.Info().Str("channel", ch.ID).Msg("Opened DM channel")
	return n.channelID, nil
}

// Split breaks blocks into messages. Up to 50 blocks fit in one message;
// beyond that, chunks of 48 are used and every chunk after the first is
// prefixed with a continuation marker.
func Split(blocks []slack.Block) [][]slack.Block {
	if len(blocks) <= maxBlocksPerMessage {
		return [][]slack.Block{blocks}
	}

	total := (len(blocks) + chunkSize - 1) / chunkSize
	chunks := make([][]slack.Block, 0, total)
	for start := 0; start < len(blocks); start += chunkSize {
		end := min(start+chunkSize, len(blocks))
		chunk := make([]slack.Block, 0, end-start+1)
		if idx := len(chunks); idx > 0 {
			chunk = append(chunk, slack.NewContextBlock("",
				mrkdwn(fmt.Sprintf("_...continued (%d/%d)_", idx+1, total))))
		}
		chunks = append(chunks, append(chunk, blocks[start:end]...))
	}
	return chunks
}
