package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"inboxagent/internal/domain"
)

type fakeCompleter struct {
	response string
	err      error
	calls    int
	lastUser string
}

func (f *fakeCompleter) Complete(_ context.Context, _, userPrompt string) (string, error) {
	f.calls++
	f.lastUser = userPrompt
	return f.response, f.err
}

func testItem() *domain.InboundItem {
	return &domain.InboundItem{
		ThreadID: "t1",
		Subject:  "Where is my order?",
		Messages: []domain.Message{
			{ID: "m1@host", From: "customer@example.com", Date: time.Now(), Body: "Order #1001 has not arrived."},
		},
	}
}

func TestClassifyParsesFencedJSON(t *testing.T) {
	fake := &fakeCompleter{response: "```json\n{\"category\":\"order_status\",\"action\":\"commerce_lookup\",\"order_number\":\"1001\",\"confidence\":0.92,\"kb_files\":[\"shipping.md\"]}\n```"}
	c := NewClassifier(fake, "system")

	got := c.Classify(context.Background(), testItem(), "")
	if got == nil {
		t.Fatal("expected a result")
	}
	if got.Action != domain.RouteCommerceLookup {
		t.Errorf("action = %s", got.Action)
	}
	if got.OrderNumber != "1001" {
		t.Errorf("order number = %q", got.OrderNumber)
	}
	if len(got.KBFiles) != 1 || got.KBFiles[0] != "shipping.md" {
		t.Errorf("kb files = %v", got.KBFiles)
	}
}

func TestClassifyInvalidActionIsNil(t *testing.T) {
	fake := &fakeCompleter{response: `{"category":"spam","action":"delete_forever"}`}
	c := NewClassifier(fake, "system")

	if got := c.Classify(context.Background(), testItem(), ""); got != nil {
		t.Fatalf("expected nil for invalid action, got %+v", got)
	}
}

func TestClassifyMalformedOutputIsNil(t *testing.T) {
	for _, response := range []string{"", "not json at all", "{\"action\": \"auto_reply\""} {
		fake := &fakeCompleter{response: response}
		c := NewClassifier(fake, "system")
		if got := c.Classify(context.Background(), testItem(), ""); got != nil {
			t.Errorf("expected nil for %q, got %+v", response, got)
		}
	}
}

func TestClassifyCallErrorIsNil(t *testing.T) {
	fake := &fakeCompleter{err: errors.New("rate limited")}
	c := NewClassifier(fake, "system")

	if got := c.Classify(context.Background(), testItem(), ""); got != nil {
		t.Fatalf("expected nil on call error, got %+v", got)
	}
}

func TestClassifySafeDefaults(t *testing.T) {
	fake := &fakeCompleter{response: `{"action":"suppress","confidence":7}`}
	c := NewClassifier(fake, "system")

	got := c.Classify(context.Background(), testItem(), "")
	if got == nil {
		t.Fatal("expected a result")
	}
	if got.Category != "other" {
		t.Errorf("missing category should default to other, got %q", got.Category)
	}
	if got.Confidence != 0 {
		t.Errorf("out-of-range confidence should default to 0, got %f", got.Confidence)
	}
	if got.KBFiles != nil {
		t.Errorf("missing arrays should be empty, got %v", got.KBFiles)
	}
}

func TestClassifyIncludesMemoryInPrompt(t *testing.T) {
	fake := &fakeCompleter{response: `{"action":"suppress"}`}
	c := NewClassifier(fake, "system")

	c.Classify(context.Background(), testItem(), "thread=t0 action=escalated")
	if fake.calls != 1 {
		t.Fatalf("expected one call, got %d", fake.calls)
	}
	if want := "thread=t0 action=escalated"; !strings.Contains(fake.lastUser, want) {
		t.Errorf("prompt missing memory %q", want)
	}
}

func TestParseStringListShapes(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{`["a.md","b.md"]`, 2},
		{`"a.md, b.md"`, 2},
		{`"a.md"`, 1},
		{`null`, 0},
		{`42`, 0},
	}
	for _, tc := range cases {
		got := parseStringList([]byte(tc.raw))
		if len(got) != tc.want {
			t.Errorf("parseStringList(%s) len = %d, want %d", tc.raw, len(got), tc.want)
		}
	}
}
