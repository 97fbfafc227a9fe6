package agent

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"inboxagent/internal/domain"
	"inboxagent/internal/escalate"
	"inboxagent/internal/inbox"
	"inboxagent/internal/ledger"
)

// correlationMarker tags test traffic embedded in a message body. A self-
// authored message carrying it is processed anyway, with the marker stripped
// before classification and its value kept for the ledger.
var correlationMarker = regexp.MustCompile(`\[corr:([A-Za-z0-9-]+)\]`)

const memoryTailChars = 4000

type MemoryLog interface {
	AppendMemory(line string)
	RecentMemory(maxChars int) string
}

// Router is the switchboard contract the orchestrator drives.
type Router interface {
	Route(ctx context.Context, tenantID string, item *domain.InboundItem, cls *domain.ClassificationResult) domain.SwitchboardOutcome
}

// TickResult tracks separate counters for each skip reason.
type TickResult struct {
	RunID            string
	Listed           int
	Processed        int
	SkippedNoID      int
	SkippedSelf      int
	SkippedProcessed int
	FetchErrors      int
}

// OK reports whether the tick fully processed at least one item.
func (r TickResult) OK() bool { return r.Processed > 0 }

// Orchestrator runs one polling cycle at a time. It is the single writer of
// both the ledger and the last-success timestamp.
type Orchestrator struct {
	TenantID    string
	RecencyDays int
	MaxItems    int
	TickTimeout time.Duration

	Provider    inbox.Provider
	Classifier  Classifier
	Switchboard Router
	Terminal    Escalator
	Memory      MemoryLog
	DB          *sql.DB

	mu          sync.RWMutex
	lastSuccess time.Time
}

// LastSuccess returns the completion time of the most recent clean tick;
// zero until the first one. Safe to call concurrently with tick execution.
func (o *Orchestrator) LastSuccess() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastSuccess
}

func (o *Orchestrator) setLastSuccess(t time.Time) {
	o.mu.Lock()
	o.lastSuccess = t
	o.mu.Unlock()
}

// RunTick executes one polling cycle under the tick deadline. The returned
// error marks the whole tick as failed (listing failure or deadline); per-
// item failures never surface here; they terminate the item via the
// escalation terminal instead.
func (o *Orchestrator) RunTick(ctx context.Context) (TickResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.TickTimeout)
	defer cancel()

	result := TickResult{RunID: uuid.NewString()[:8]}
	started := time.Now()
	log.Printf("tick start run=%s tenant=%s", result.RunID, o.TenantID)

	threadIDs, err := o.Provider.ListRecent(ctx, o.RecencyDays, o.MaxItems)
	if err != nil {
		return result, fmt.Errorf("listing inbox: %w", err)
	}
	result.Listed = len(threadIDs)

	// Resolved once per tick for self-authorship filtering.
	self, err := o.Provider.SelfAddress(ctx)
	if err != nil {
		return result, fmt.Errorf("resolving self address: %w", err)
	}

	for _, threadID := range threadIDs {
		if ctx.Err() != nil {
			return result, fmt.Errorf("tick deadline exceeded after %d items: %w", result.Processed, ctx.Err())
		}

		item, err := o.Provider.GetThread(ctx, threadID)
		if err != nil {
			// The item stays eligible for the next tick.
			log.Printf("tick run=%s thread fetch failed thread=%s err=%v", result.RunID, threadID, err)
			result.FetchErrors++
			continue
		}

		last := item.LastMessage()
		if last == nil || last.ID == "" {
			result.SkippedNoID++
			continue
		}

		correlationID := extractCorrelation(last.Body)
		if strings.EqualFold(last.From, self) && correlationID == "" {
			result.SkippedSelf++
			continue
		}
		if correlationID != "" {
			last.Body = stripCorrelation(last.Body)
		}

		if ledger.HasProcessed(o.DB, o.TenantID, last.ID) {
			result.SkippedProcessed++
			continue
		}

		outcome, done := o.processItem(ctx, item)
		if !done || ctx.Err() != nil {
			// The tick deadline, not the item, failed the attempt. Nothing is
			// recorded so the item stays eligible for the next tick.
			return result, fmt.Errorf("tick deadline exceeded after %d items: %w", result.Processed, ctx.Err())
		}

		rec := ledger.ProcessedRecord{
			TenantID:      o.TenantID,
			MessageID:     last.ID,
			ThreadID:      item.ThreadID,
			Action:        outcome.Action,
			Reason:        outcome.Reason,
			CorrelationID: correlationID,
		}
		if err := ledger.MarkProcessed(o.DB, rec); err != nil {
			log.Printf("tick run=%s ledger write failed thread=%s err=%v", result.RunID, item.ThreadID, err)
		}

		line := fmt.Sprintf("run=%s tenant=%s thread=%s msg=%s action=%s", result.RunID, o.TenantID, item.ThreadID, ledger.NormalizeMessageID(last.ID), outcome.Action)
		if outcome.Reason != "" {
			line += fmt.Sprintf(" reason=%q", outcome.Reason)
		}
		o.Memory.AppendMemory(line)

		result.Processed++
	}

	if ctx.Err() != nil {
		return result, fmt.Errorf("tick deadline exceeded: %w", ctx.Err())
	}

	o.setLastSuccess(time.Now())
	log.Printf("tick done run=%s listed=%d processed=%d skipped_self=%d skipped_processed=%d skipped_no_id=%d fetch_errors=%d elapsed=%s",
		result.RunID, result.Listed, result.Processed, result.SkippedSelf, result.SkippedProcessed, result.SkippedNoID, result.FetchErrors, time.Since(started).Round(time.Millisecond))
	return result, nil
}

// processItem classifies and routes one thread. Panics and stray errors are
// converted into a system escalation so the item is still terminally
// handled; nothing propagates to the tick level. done is false when the tick
// deadline expired mid-item: the item was neither routed nor terminally
// handled, and the caller must not record it.
func (o *Orchestrator) processItem(ctx context.Context, item *domain.InboundItem) (outcome domain.SwitchboardOutcome, done bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("item processing panic thread=%s panic=%v", item.ThreadID, r)
			if ctx.Err() != nil {
				return
			}
			o.Terminal.Escalate(ctx, o.TenantID, item, escalate.SystemEscalation(
				fmt.Sprintf("panic: %v", r),
				"inspect agent logs for the stack trace",
			))
			outcome = domain.SwitchboardOutcome{Action: domain.OutcomeEscalated, Reason: "internal error"}
			done = true
		}
	}()

	cls := o.Classifier.Classify(ctx, item, o.Memory.RecentMemory(memoryTailChars))
	if ctx.Err() != nil {
		// The tick deadline cut the call short; the model did not fail it.
		// Routing now would escalate with a dead context and record a
		// terminal outcome for an item that was never actually handled.
		return domain.SwitchboardOutcome{}, false
	}
	return o.Switchboard.Route(ctx, o.TenantID, item, cls), true
}

func extractCorrelation(body string) string {
	m := correlationMarker.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return m[1]
}

func stripCorrelation(body string) string {
	return strings.TrimSpace(correlationMarker.ReplaceAllString(body, ""))
}
