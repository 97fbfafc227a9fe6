package llm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"inboxagent/internal/domain"
)

// ReplyResult is either one plain-text reply body or an explicit escalation
// signal; never both.
type ReplyResult struct {
	Body     string
	Escalate bool
}

// escalationPhrases are the markers the model is instructed to emit when it
// declines to answer. Matching is case-insensitive on the stripped body.
var escalationPhrases = []string{
	"[escalate]",
	"escalate to human",
	"i cannot answer this",
	"requires human review",
}

// Replier generates customer-facing reply bodies.
type Replier struct {
	completer    Completer
	systemPrompt string
}

func NewReplier(completer Completer, systemPrompt string) *Replier {
	return &Replier{completer: completer, systemPrompt: systemPrompt}
}

// Generate asks for one reply body. Any call failure, an explicit escalation
// phrase, or an empty body after stripping yields Escalate=true; no error
// escapes to normal flow.
func (r *Replier) Generate(ctx context.Context, item *domain.InboundItem, cls *domain.ClassificationResult, kbContext string, order *domain.OrderContext) ReplyResult {
	userPrompt := buildReplyPrompt(item, cls, kbContext, order)

	responseText, err := r.completer.Complete(ctx, r.systemPrompt, userPrompt)
	if err != nil {
		log.Printf("reply call failed thread=%s err=%v", item.ThreadID, err)
		return ReplyResult{Escalate: true}
	}

	body := stripMeta(responseText)
	if body == "" {
		return ReplyResult{Escalate: true}
	}
	lower := strings.ToLower(body)
	for _, phrase := range escalationPhrases {
		if strings.Contains(lower, phrase) {
			return ReplyResult{Escalate: true}
		}
	}
	return ReplyResult{Body: body}
}

func buildReplyPrompt(item *domain.InboundItem, cls *domain.ClassificationResult, kbContext string, order *domain.OrderContext) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Subject: %s\nCategory: %s\nSentiment: %s\n\n", item.Subject, cls.Category, cls.Sentiment)
	for _, msg := range item.Messages {
		fmt.Fprintf(&buf, "From: %s\n%s\n---\n", msg.From, strings.TrimSpace(msg.Body))
	}
	if kbContext != "" {
		buf.WriteString("\nKnowledge base:\n" + kbContext + "\n")
	}
	if order != nil {
		fmt.Fprintf(&buf, "\nOrder context:\nOrder %s, status %s, fulfillment %s\n",
			order.OrderNumber, order.Status, order.FulfillmentStatus)
		if order.TrackingNumber != "" {
			fmt.Fprintf(&buf, "Tracking: %s %s\n", order.TrackingNumber, order.TrackingURL)
		}
		if order.Summary != "" {
			buf.WriteString(order.Summary + "\n")
		}
	}
	buf.WriteString("\nWrite one plain-text reply to the last message, or output [ESCALATE] if a human must handle it.")
	return buf.String()
}

// stripMeta removes thinking sections and code fences from the model output,
// leaving only the reply body.
func stripMeta(text string) string {
	// Drop <thinking>...</thinking> blocks wherever they appear.
	for {
		start := strings.Index(text, "<thinking>")
		if start < 0 {
			break
		}
		end := strings.Index(text[start:], "</thinking>")
		if end < 0 {
			text = text[:start]
			break
		}
		text = text[:start] + text[start+end+len("</thinking>"):]
	}
	return stripFence(text)
}
