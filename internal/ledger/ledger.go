// Package ledger persists the per-tenant record of terminally processed
// inbound messages. It is the only state shared across ticks and restarts.
package ledger

import (
	"database/sql"
	"log"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"inboxagent/internal/domain"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS processed_messages (
		tenant_id      TEXT NOT NULL,
		message_id     TEXT NOT NULL,
		thread_id      TEXT NOT NULL DEFAULT '',
		action         TEXT NOT NULL,
		reason         TEXT DEFAULT '',
		correlation_id TEXT DEFAULT '',
		processed_at   DATETIME NOT NULL,
		PRIMARY KEY (tenant_id, message_id)
	);
	CREATE INDEX IF NOT EXISTS idx_processed_thread ON processed_messages(tenant_id, thread_id);
	CREATE INDEX IF NOT EXISTS idx_processed_at ON processed_messages(processed_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return db, nil
}

// ProcessedRecord is one ledger row: the last terminal outcome for a message.
type ProcessedRecord struct {
	TenantID      string
	MessageID     string
	ThreadID      string
	Action        domain.Outcome
	Reason        string
	CorrelationID string
	ProcessedAt   time.Time
}

// NormalizeMessageID collapses the two textual forms a message identifier
// arrives in ("<id@host>" and "id@host") so both key the same row.
func NormalizeMessageID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return strings.ToLower(strings.TrimSpace(id))
}

// HasProcessed reports whether a terminal outcome is already recorded for the
// message. It never returns an error: a storage failure is logged and treated
// as "not processed", which is retry-safe because every terminal action is
// recorded through an idempotent upsert.
func HasProcessed(db *sql.DB, tenantID, messageID string) bool {
	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM processed_messages WHERE tenant_id = ? AND message_id = ?`,
		tenantID, NormalizeMessageID(messageID),
	).Scan(&count)
	if err != nil {
		log.Printf("ledger read error tenant=%s msg=%s err=%v", tenantID, messageID, err)
		return false
	}
	return count > 0
}

// MarkProcessed records the terminal outcome for a message. The write is an
// upsert keyed on (tenant, normalized message id): re-processing the same
// message after a crash updates the row in place instead of duplicating it.
func MarkProcessed(db *sql.DB, rec ProcessedRecord) error {
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now().UTC()
	}
	_, err := db.Exec(
		`INSERT INTO processed_messages (tenant_id, message_id, thread_id, action, reason, correlation_id, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tenant_id, message_id) DO UPDATE SET
		   thread_id = excluded.thread_id,
		   action = excluded.action,
		   reason = excluded.reason,
		   correlation_id = excluded.correlation_id,
		   processed_at = excluded.processed_at`,
		rec.TenantID, NormalizeMessageID(rec.MessageID), rec.ThreadID,
		string(rec.Action), rec.Reason, rec.CorrelationID, rec.ProcessedAt,
	)
	return err
}

// GetRecord returns the ledger row for a message, if any.
func GetRecord(db *sql.DB, tenantID, messageID string) (ProcessedRecord, error) {
	var rec ProcessedRecord
	var action string
	err := db.QueryRow(
		`SELECT tenant_id, message_id, thread_id, action, reason, correlation_id, processed_at
		 FROM processed_messages WHERE tenant_id = ? AND message_id = ?`,
		tenantID, NormalizeMessageID(messageID),
	).Scan(&rec.TenantID, &rec.MessageID, &rec.ThreadID, &action,
		&rec.Reason, &rec.CorrelationID, &rec.ProcessedAt)
	rec.Action = domain.Outcome(action)
	return rec, err
}

// GetRecentRecords lists rows processed at or after the cutoff, newest first.
func GetRecentRecords(db *sql.DB, tenantID string, since time.Time, limit int) ([]ProcessedRecord, error) {
	rows, err := db.Query(
		`SELECT tenant_id, message_id, thread_id, action, reason, correlation_id, processed_at
		 FROM processed_messages
		 WHERE tenant_id = ? AND processed_at >= ?
		 ORDER BY processed_at DESC
		 LIMIT ?`,
		tenantID, since, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProcessedRecord
	for rows.Next() {
		var rec ProcessedRecord
		var action string
		if err := rows.Scan(&rec.TenantID, &rec.MessageID, &rec.ThreadID, &action,
			&rec.Reason, &rec.CorrelationID, &rec.ProcessedAt); err != nil {
			return nil, err
		}
		rec.Action = domain.Outcome(action)
		out = append(out, rec)
	}
	return out, rows.Err()
}
