package domain

import "time"

// RouteAction is the action requested by the classifier for one thread.
type RouteAction string

const (
	RouteSuppress       RouteAction = "suppress"
	RouteEscalate       RouteAction = "escalate"
	RouteCommerceLookup RouteAction = "commerce_lookup"
	RouteAutoReply      RouteAction = "auto_reply"
)

// Valid reports whether a is one of the four routable actions. Anything
// else coming back from the model is treated as no classification at all.
func (a RouteAction) Valid() bool {
	switch a {
	case RouteSuppress, RouteEscalate, RouteCommerceLookup, RouteAutoReply:
		return true
	}
	return false
}

// Outcome is the terminal action recorded in the ledger. It is coarser than
// RouteAction: every failure path collapses into OutcomeEscalated.
type Outcome string

const (
	OutcomeSuppressed     Outcome = "suppressed"
	OutcomeEscalated      Outcome = "escalated"
	OutcomeCommerceLookup Outcome = "commerce_lookup"
	OutcomeAutoReply      Outcome = "auto_reply"
)

type Message struct {
	ID   string
	From string
	Date time.Time
	Body string
}

// InboundItem is one conversation thread as seen at a point in time.
// Messages are ordered by arrival; the last one is the message subject to
// routing on a given tick.
type InboundItem struct {
	ThreadID string
	Subject  string
	Messages []Message
}

// LastMessage returns the newest message in the thread, or nil for an empty
// thread.
func (it *InboundItem) LastMessage() *Message {
	if len(it.Messages) == 0 {
		return nil
	}
	return &it.Messages[len(it.Messages)-1]
}

// ClassificationResult is the structured routing decision for one thread,
// produced fresh per tick. A nil result means the classifier failed or the
// model emitted something unusable; callers route nil exactly like
// RouteEscalate.
type ClassificationResult struct {
	Category         string
	Action           RouteAction
	KBFiles          []string
	OrderNumber      string
	CustomerEmail    string
	Confidence       float64
	Sentiment        string
	Reason           string
	Flags            []string
	EscalationReason string
}

// SwitchboardOutcome is what the switchboard hands back to the orchestrator
// for ledger recording.
type SwitchboardOutcome struct {
	Action Outcome
	Reason string // escalation reason, empty unless Action == OutcomeEscalated
}

// OrderContext is the structured commerce lookup result attached to the
// reply prompt for commerce_lookup routes.
type OrderContext struct {
	OrderNumber       string
	Status            string
	FulfillmentStatus string
	TrackingNumber    string
	TrackingURL       string
	CreatedAt         string
	Summary           string
}
