// Package inbox defines the mailbox collaborator contract and its Gmail
// implementation. Every method is a fallible remote call; retry policy lives
// with the callers.
package inbox

import (
	"context"

	"inboxagent/internal/domain"
)

type Provider interface {
	// ListRecent returns thread ids updated within the last sinceDays days,
	// capped at maxCount.
	ListRecent(ctx context.Context, sinceDays, maxCount int) ([]string, error)

	// GetThread returns the full thread with messages in arrival order.
	GetThread(ctx context.Context, threadID string) (*domain.InboundItem, error)

	// SelfAddress returns the agent's own mailbox address.
	SelfAddress(ctx context.Context) (string, error)

	// SendReply sends a threaded reply to the given message.
	SendReply(ctx context.Context, item *domain.InboundItem, body string) error

	// CreateDraft creates a threaded draft visible to a human reviewer; the
	// draft is never sent automatically.
	CreateDraft(ctx context.Context, item *domain.InboundItem, body string) error

	// EnsureLabel returns the id of the named label, creating it if missing.
	EnsureLabel(ctx context.Context, name string) (string, error)

	// MarkHandled stars and labels the thread without touching its unread
	// state. An empty labelID stars only.
	MarkHandled(ctx context.Context, threadID, labelID string) error
}
