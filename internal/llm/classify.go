package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"inboxagent/internal/domain"
)

// classifiedWire is the permissive shape the model is asked for. Everything
// is coerced with safe defaults; only action is load-bearing.
type classifiedWire struct {
	Category         string          `json:"category"`
	Action           string          `json:"action"`
	KBFiles          json.RawMessage `json:"kb_files"`
	OrderNumber      string          `json:"order_number"`
	CustomerEmail    string          `json:"customer_email"`
	Confidence       float64         `json:"confidence"`
	Sentiment        string          `json:"sentiment"`
	Reason           string          `json:"reason"`
	Flags            json.RawMessage `json:"flags"`
	EscalationReason string          `json:"escalation_reason"`
}

// Classifier turns a thread transcript plus a short memory of recent
// outcomes into a routing decision.
type Classifier struct {
	completer    Completer
	systemPrompt string
}

func NewClassifier(completer Completer, systemPrompt string) *Classifier {
	return &Classifier{completer: completer, systemPrompt: systemPrompt}
}

// Classify returns the parsed decision, or nil when the call fails, the
// output is malformed, or the action is outside the closed enum. The caller
// routes nil exactly like an explicit escalate; no error escapes to normal
// flow.
func (c *Classifier) Classify(ctx context.Context, item *domain.InboundItem, memory string) *domain.ClassificationResult {
	userPrompt := buildClassifyPrompt(item, memory)

	responseText, err := c.completer.Complete(ctx, c.systemPrompt, userPrompt)
	if err != nil {
		log.Printf("classify call failed thread=%s err=%v", item.ThreadID, err)
		return nil
	}

	result, err := parseClassification(responseText)
	if err != nil {
		log.Printf("classify parse failed thread=%s err=%v", item.ThreadID, err)
		return nil
	}
	return result
}

func buildClassifyPrompt(item *domain.InboundItem, memory string) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Subject: %s\n\n", item.Subject)
	for _, msg := range item.Messages {
		fmt.Fprintf(&buf, "From: %s (%s)\n%s\n---\n", msg.From, msg.Date.Format("2006-01-02 15:04"), strings.TrimSpace(msg.Body))
	}
	if strings.TrimSpace(memory) != "" {
		buf.WriteString("\nRecent outcomes (today):\n" + memory + "\n")
	}
	buf.WriteString("\nClassify the LAST message in this thread.")
	return buf.String()
}

// stripFence removes a single surrounding markdown code fence, if present.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func parseClassification(responseText string) (*domain.ClassificationResult, error) {
	responseText = stripFence(responseText)

	// The model occasionally pads the object with prose; take the outermost
	// braces.
	start := strings.IndexByte(responseText, '{')
	end := strings.LastIndexByte(responseText, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response: %q", truncate(responseText, 200))
	}

	var wire classifiedWire
	if err := json.Unmarshal([]byte(responseText[start:end+1]), &wire); err != nil {
		return nil, fmt.Errorf("parsing classification: %w", err)
	}

	action := domain.RouteAction(strings.TrimSpace(strings.ToLower(wire.Action)))
	if !action.Valid() {
		return nil, fmt.Errorf("invalid action %q", wire.Action)
	}

	category := strings.TrimSpace(wire.Category)
	if category == "" {
		category = "other"
	}
	confidence := wire.Confidence
	if confidence < 0 || confidence > 1 {
		confidence = 0
	}

	return &domain.ClassificationResult{
		Category:         category,
		Action:           action,
		KBFiles:          parseStringList(wire.KBFiles),
		OrderNumber:      strings.TrimSpace(wire.OrderNumber),
		CustomerEmail:    strings.TrimSpace(wire.CustomerEmail),
		Confidence:       confidence,
		Sentiment:        strings.TrimSpace(wire.Sentiment),
		Reason:           strings.TrimSpace(wire.Reason),
		Flags:            parseStringList(wire.Flags),
		EscalationReason: strings.TrimSpace(wire.EscalationReason),
	}, nil
}

// parseStringList accepts ["a","b"], "a", "a,b", null, or garbage; garbage
// coerces to empty.
func parseStringList(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var asSlice []string
	if err := json.Unmarshal(raw, &asSlice); err == nil {
		var out []string
		for _, s := range asSlice {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		var out []string
		for _, s := range strings.Split(asString, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
