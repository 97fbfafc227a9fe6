// Package agent holds the routing state machine and the tick orchestrator.
package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"inboxagent/internal/commerce"
	"inboxagent/internal/domain"
	"inboxagent/internal/escalate"
	"inboxagent/internal/inbox"
	"inboxagent/internal/llm"
)

// The switchboard's collaborators, narrowed so tests can fake them.

type Classifier interface {
	Classify(ctx context.Context, item *domain.InboundItem, memory string) *domain.ClassificationResult
}

type ReplyGenerator interface {
	Generate(ctx context.Context, item *domain.InboundItem, cls *domain.ClassificationResult, kbContext string, order *domain.OrderContext) llm.ReplyResult
}

type OrderLooker interface {
	LookupOrder(ctx context.Context, orderNumber, email string) (commerce.LookupResult, error)
}

type Escalator interface {
	Escalate(ctx context.Context, tenantID string, item *domain.InboundItem, req escalate.Request)
}

type Knowledge interface {
	KnowledgeContext(names []string) string
}

// Switchboard dispatches one classified thread to its terminal action.
type Switchboard struct {
	provider  inbox.Provider
	replier   ReplyGenerator
	commerce  OrderLooker
	terminal  Escalator
	knowledge Knowledge
}

func NewSwitchboard(provider inbox.Provider, replier ReplyGenerator, commerceClient OrderLooker, terminal Escalator, knowledge Knowledge) *Switchboard {
	return &Switchboard{
		provider:  provider,
		replier:   replier,
		commerce:  commerceClient,
		terminal:  terminal,
		knowledge: knowledge,
	}
}

// Route executes the terminal action for one thread and returns the outcome
// to record in the ledger. A nil classification routes like an explicit
// escalate. Route itself never returns an error: every failure path ends in
// the escalation terminal.
func (s *Switchboard) Route(ctx context.Context, tenantID string, item *domain.InboundItem, cls *domain.ClassificationResult) domain.SwitchboardOutcome {
	if cls == nil {
		return s.escalateCustomer(ctx, tenantID, item, nil, "classification unavailable")
	}

	switch cls.Action {
	case domain.RouteSuppress:
		// Quietly mark, no alert, no reply.
		if err := s.provider.MarkHandled(ctx, item.ThreadID, ""); err != nil {
			log.Printf("suppress mark failed thread=%s err=%v", item.ThreadID, err)
		}
		return domain.SwitchboardOutcome{Action: domain.OutcomeSuppressed}

	case domain.RouteEscalate:
		return s.escalateCustomer(ctx, tenantID, item, cls, cls.EscalationReason)

	case domain.RouteCommerceLookup:
		return s.routeCommerce(ctx, tenantID, item, cls)

	case domain.RouteAutoReply:
		return s.reply(ctx, tenantID, item, cls, nil, domain.OutcomeAutoReply)

	default:
		// Unreachable for validated classifications; treated like null.
		return s.escalateCustomer(ctx, tenantID, item, cls, fmt.Sprintf("unknown action %q", cls.Action))
	}
}

func (s *Switchboard) routeCommerce(ctx context.Context, tenantID string, item *domain.InboundItem, cls *domain.ClassificationResult) domain.SwitchboardOutcome {
	if s.commerce == nil {
		s.terminal.Escalate(ctx, tenantID, item, escalate.SystemEscalation(
			"store credentials not configured",
			"set store_url and store_token in config.yaml",
		))
		return domain.SwitchboardOutcome{Action: domain.OutcomeEscalated, Reason: "store not configured"}
	}

	res, err := s.commerce.LookupOrder(ctx, cls.OrderNumber, cls.CustomerEmail)
	if err != nil {
		log.Printf("order lookup failed thread=%s err=%v", item.ThreadID, err)
		return s.escalateCustomer(ctx, tenantID, item, cls, "order lookup failed")
	}
	if !res.Success || res.EscalationNeeded {
		reason := res.Reason
		if reason == "" {
			reason = "order lookup unsuccessful"
		}
		return s.escalateCustomer(ctx, tenantID, item, cls, reason)
	}
	if res.Order == nil {
		// Multiple matches; a human must pick. The reply pipeline is never
		// invoked on this path. The lookup's own reason and flags carry the
		// match count into the draft and the ledger.
		reason := res.Reason
		if reason == "" {
			reason = "order needs disambiguation"
		}
		cls.Flags = append(cls.Flags, res.Flags...)
		return s.escalateCustomer(ctx, tenantID, item, cls, reason)
	}

	return s.reply(ctx, tenantID, item, cls, res.Order, domain.OutcomeCommerceLookup)
}

// reply runs the generate-or-escalate half shared by auto_reply and
// commerce_lookup.
func (s *Switchboard) reply(ctx context.Context, tenantID string, item *domain.InboundItem, cls *domain.ClassificationResult, order *domain.OrderContext, success domain.Outcome) domain.SwitchboardOutcome {
	kbContext := s.knowledge.KnowledgeContext(cls.KBFiles)

	result := s.replier.Generate(ctx, item, cls, kbContext, order)
	if result.Escalate || strings.TrimSpace(result.Body) == "" {
		return s.escalateCustomer(ctx, tenantID, item, cls, "model declined to answer")
	}

	if err := s.provider.SendReply(ctx, item, result.Body); err != nil {
		// The message still counts as processed: retrying a failed send in
		// the same tick risks duplicate replies on transient provider
		// errors.
		log.Printf("send failed thread=%s err=%v", item.ThreadID, err)
		s.terminal.Escalate(ctx, tenantID, item, escalate.SystemEscalation(err.Error(), "reply generated but not delivered; send manually from the draft"))
		return domain.SwitchboardOutcome{Action: domain.OutcomeEscalated, Reason: "send failed"}
	}

	if err := s.provider.MarkHandled(ctx, item.ThreadID, ""); err != nil {
		log.Printf("replied mark failed thread=%s err=%v", item.ThreadID, err)
	}
	return domain.SwitchboardOutcome{Action: success}
}

func (s *Switchboard) escalateCustomer(ctx context.Context, tenantID string, item *domain.InboundItem, cls *domain.ClassificationResult, reason string) domain.SwitchboardOutcome {
	if reason == "" {
		reason = "needs human review"
	}
	s.terminal.Escalate(ctx, tenantID, item, escalate.CustomerEscalation(cls, reason))
	return domain.SwitchboardOutcome{Action: domain.OutcomeEscalated, Reason: reason}
}
