// Package alert delivers escalation notifications to the Slack alert
// channel.
package alert

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/slack-go/slack"
)

// Notifier is what the escalation terminal depends on; tests swap in a fake.
type Notifier interface {
	SendAlert(ctx context.Context, text, threadRef, deepLink string) bool
	SendFallback(ctx context.Context, text string) bool
}

// slackAPI is the slice of slack.Client the notifier uses.
type slackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

type SlackNotifier struct {
	api       slackAPI
	channelID string
}

func NewSlackNotifier(botToken, channelID string) *SlackNotifier {
	return &SlackNotifier{api: slack.New(botToken), channelID: channelID}
}

// backoffLadder is the retry schedule for rate-limit and server errors.
var backoffLadder = []time.Duration{1 * time.Second, 3 * time.Second, 8 * time.Second}

// SendAlert posts an escalation alert with a deep link button. Retries up to
// three times on rate-limit or server-error responses; other errors fail
// immediately. Returns whether delivery succeeded.
func (n *SlackNotifier) SendAlert(ctx context.Context, text, threadRef, deepLink string) bool {
	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf(":rotating_light: *Escalation*\n%s\nThread: `%s`", text, threadRef), false, false),
			nil, nil,
		),
	}
	if deepLink != "" {
		button := slack.NewButtonBlockElement("open_thread", threadRef,
			slack.NewTextBlockObject(slack.PlainTextType, "Open thread", false, false))
		button.URL = deepLink
		blocks = append(blocks, slack.NewActionBlock("escalation_actions", button))
	}
	return n.post(ctx, slack.MsgOptionBlocks(blocks...), slack.MsgOptionText(text, false))
}

// SendFallback posts a bare-text alert with no formatting; used when the
// structured alert itself failed.
func (n *SlackNotifier) SendFallback(ctx context.Context, text string) bool {
	return n.post(ctx, slack.MsgOptionText(text, false))
}

func (n *SlackNotifier) post(ctx context.Context, options ...slack.MsgOption) bool {
	var err error
	for attempt := 0; ; attempt++ {
		_, _, err = n.api.PostMessageContext(ctx, n.channelID, options...)
		if err == nil {
			return true
		}
		if attempt >= len(backoffLadder) || !retryable(err) {
			log.Printf("alert post failed channel=%s attempt=%d err=%v", n.channelID, attempt+1, err)
			return false
		}
		log.Printf("alert post retrying channel=%s attempt=%d wait=%s err=%v", n.channelID, attempt+1, backoffLadder[attempt], err)
		select {
		case <-time.After(backoffLadder[attempt]):
		case <-ctx.Done():
			return false
		}
	}
}

// retryable reports whether the Slack error is a rate limit or server error.
func retryable(err error) bool {
	if _, ok := err.(*slack.RateLimitedError); ok {
		return true
	}
	if serr, ok := err.(slack.StatusCodeError); ok {
		return serr.Code == http.StatusTooManyRequests || serr.Code >= 500
	}
	return false
}
