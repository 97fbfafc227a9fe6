// Package escalate is the single terminal for every human-handoff path.
// Escalation is defined as "always terminates the item": each step is
// best-effort and the entry point never returns an error.
package escalate

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"inboxagent/internal/alert"
	"inboxagent/internal/domain"
	"inboxagent/internal/inbox"
)

// Scenario tags the two escalation variants.
type Scenario int

const (
	// ScenarioSystem: something in the agent itself failed.
	ScenarioSystem Scenario = iota
	// ScenarioCustomer: the model or routing decided a human must answer.
	ScenarioCustomer
)

// Request describes one escalation.
type Request struct {
	Scenario    Scenario
	Reason      string // short reason shown in alerts and the ledger
	ErrorDetail string // system scenario: raw error text
	Remediation string // system scenario: suggested operator action

	// Classification is attached for customer escalations; may be nil.
	Classification *domain.ClassificationResult
}

func SystemEscalation(errorDetail, remediation string) Request {
	return Request{
		Scenario:    ScenarioSystem,
		Reason:      "system error",
		ErrorDetail: errorDetail,
		Remediation: remediation,
	}
}

func CustomerEscalation(cls *domain.ClassificationResult, reason string) Request {
	if reason == "" {
		reason = "needs human review"
	}
	return Request{Scenario: ScenarioCustomer, Reason: reason, Classification: cls}
}

// Terminal owns the per-tenant label cache explicitly, so multiple tenants
// can coexist in one process (and one test).
type Terminal struct {
	provider    inbox.Provider
	notifier    alert.Notifier
	labelName   string
	deepLinkFmt string

	mu       sync.Mutex
	labelIDs map[string]string
}

func NewTerminal(provider inbox.Provider, notifier alert.Notifier, labelName, deepLinkFmt string) *Terminal {
	return &Terminal{
		provider:    provider,
		notifier:    notifier,
		labelName:   labelName,
		deepLinkFmt: deepLinkFmt,
		labelIDs:    make(map[string]string),
	}
}

// Escalate runs the four handoff steps. Failure of one step is logged and
// the rest still run; the caller always gets control back normally.
func (t *Terminal) Escalate(ctx context.Context, tenantID string, item *domain.InboundItem, req Request) {
	log.Printf("escalating tenant=%s thread=%s scenario=%d reason=%q", tenantID, item.ThreadID, req.Scenario, req.Reason)

	labelID := t.ensureLabel(ctx, tenantID)

	if err := t.provider.CreateDraft(ctx, item, t.draftBody(req)); err != nil {
		log.Printf("escalation draft failed thread=%s err=%v", item.ThreadID, err)
	}

	if err := t.provider.MarkHandled(ctx, item.ThreadID, labelID); err != nil {
		log.Printf("escalation mark failed thread=%s err=%v", item.ThreadID, err)
	}

	deepLink := ""
	if t.deepLinkFmt != "" {
		deepLink = fmt.Sprintf(t.deepLinkFmt, item.ThreadID)
	}
	if !t.notifier.SendAlert(ctx, t.alertText(req, item), item.ThreadID, deepLink) {
		detail := req.ErrorDetail
		if detail == "" {
			detail = req.Reason
		}
		if !t.notifier.SendFallback(ctx, fmt.Sprintf("escalation alert failed tenant=%s thread=%s detail=%s", tenantID, item.ThreadID, detail)) {
			log.Printf("escalation fallback alert failed thread=%s", item.ThreadID)
		}
	}
}

// ensureLabel resolves the "needs human review" label id for the tenant,
// creating it on first use and caching it for the process lifetime. An empty
// return means labeling is skipped for this escalation (starring still
// happens).
func (t *Terminal) ensureLabel(ctx context.Context, tenantID string) string {
	t.mu.Lock()
	if id, ok := t.labelIDs[tenantID]; ok {
		t.mu.Unlock()
		return id
	}
	t.mu.Unlock()

	id, err := t.provider.EnsureLabel(ctx, t.labelName)
	if err != nil {
		log.Printf("escalation label lookup failed tenant=%s err=%v", tenantID, err)
		return ""
	}

	t.mu.Lock()
	t.labelIDs[tenantID] = id
	t.mu.Unlock()
	return id
}

func (t *Terminal) draftBody(req Request) string {
	var buf strings.Builder
	buf.WriteString("[Draft for human review, not sent]\n\n")
	switch req.Scenario {
	case ScenarioSystem:
		fmt.Fprintf(&buf, "The agent hit an error handling this thread.\n\nError: %s\n", req.ErrorDetail)
		if req.Remediation != "" {
			fmt.Fprintf(&buf, "Remediation: %s\n", req.Remediation)
		}
	case ScenarioCustomer:
		fmt.Fprintf(&buf, "Reason: %s\n", req.Reason)
		if cls := req.Classification; cls != nil {
			fmt.Fprintf(&buf, "Category: %s\nSentiment: %s\n", cls.Category, cls.Sentiment)
			if cls.Reason != "" {
				fmt.Fprintf(&buf, "Classifier notes: %s\n", cls.Reason)
			}
			if len(cls.Flags) > 0 {
				fmt.Fprintf(&buf, "Flags: %s\n", strings.Join(cls.Flags, ", "))
			}
		}
	}
	return buf.String()
}

func (t *Terminal) alertText(req Request, item *domain.InboundItem) string {
	subject := item.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	if req.Scenario == ScenarioSystem {
		return fmt.Sprintf("system escalation: %s | %s (%s)", req.Reason, subject, req.ErrorDetail)
	}
	return fmt.Sprintf("%s | %s", req.Reason, subject)
}
