package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/slack-go/slack"
)

type fakeSlack struct {
	errs  []error
	calls int
}

func (f *fakeSlack) PostMessageContext(_ context.Context, _ string, _ ...slack.MsgOption) (string, string, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		return "", "", f.errs[f.calls-1]
	}
	return "C1", "123.456", nil
}

func fastLadder(t *testing.T) {
	t.Helper()
	old := backoffLadder
	backoffLadder = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	t.Cleanup(func() { backoffLadder = old })
}

func TestSendAlertSucceeds(t *testing.T) {
	fake := &fakeSlack{}
	n := &SlackNotifier{api: fake, channelID: "C1"}

	if !n.SendAlert(context.Background(), "order issue", "thread-1", "https://mail.example/t1") {
		t.Fatal("expected success")
	}
	if fake.calls != 1 {
		t.Errorf("calls = %d", fake.calls)
	}
}

func TestSendAlertRetriesOnRateLimit(t *testing.T) {
	fastLadder(t)
	fake := &fakeSlack{errs: []error{
		&slack.RateLimitedError{RetryAfter: time.Millisecond},
		slack.StatusCodeError{Code: 503},
	}}
	n := &SlackNotifier{api: fake, channelID: "C1"}

	if !n.SendAlert(context.Background(), "x", "t", "") {
		t.Fatal("expected success after retries")
	}
	if fake.calls != 3 {
		t.Errorf("calls = %d, want 3", fake.calls)
	}
}

func TestSendAlertGivesUpAfterLadder(t *testing.T) {
	fastLadder(t)
	fake := &fakeSlack{errs: []error{
		slack.StatusCodeError{Code: 500},
		slack.StatusCodeError{Code: 500},
		slack.StatusCodeError{Code: 500},
		slack.StatusCodeError{Code: 500},
	}}
	n := &SlackNotifier{api: fake, channelID: "C1"}

	if n.SendAlert(context.Background(), "x", "t", "") {
		t.Fatal("expected failure after exhausting retries")
	}
	if fake.calls != 4 {
		t.Errorf("calls = %d, want 4 (initial + 3 retries)", fake.calls)
	}
}

func TestSendAlertNonRetryableFailsFast(t *testing.T) {
	fastLadder(t)
	fake := &fakeSlack{errs: []error{errors.New("invalid_auth")}}
	n := &SlackNotifier{api: fake, channelID: "C1"}

	if n.SendAlert(context.Background(), "x", "t", "") {
		t.Fatal("expected immediate failure")
	}
	if fake.calls != 1 {
		t.Errorf("calls = %d, want 1", fake.calls)
	}
}

func TestSendFallback(t *testing.T) {
	fake := &fakeSlack{}
	n := &SlackNotifier{api: fake, channelID: "C1"}

	if !n.SendFallback(context.Background(), "raw error detail") {
		t.Fatal("expected success")
	}
}
