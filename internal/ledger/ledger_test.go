package ledger

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"inboxagent/internal/domain"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "inboxagent-test.db")
	db, err := InitDB(dbPath)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNormalizeMessageID(t *testing.T) {
	cases := map[string]string{
		"<CAF+abc@mail.example.com>": "caf+abc@mail.example.com",
		"CAF+abc@mail.example.com":   "caf+abc@mail.example.com",
		"  <id@host>  ":              "id@host",
		"id@host":                    "id@host",
	}
	for in, want := range cases {
		if got := NormalizeMessageID(in); got != want {
			t.Errorf("NormalizeMessageID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMarkProcessedUpsert(t *testing.T) {
	db := newTestDB(t)

	first := ProcessedRecord{
		TenantID:  "acme",
		MessageID: "<m1@host>",
		ThreadID:  "t1",
		Action:    domain.OutcomeAutoReply,
	}
	if err := MarkProcessed(db, first); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	second := first
	second.Action = domain.OutcomeEscalated
	second.Reason = "send failed"
	if err := MarkProcessed(db, second); err != nil {
		t.Fatalf("second MarkProcessed failed: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM processed_messages`).Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one row after double write, got %d", count)
	}

	rec, err := GetRecord(db, "acme", "m1@host")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if rec.Action != domain.OutcomeEscalated {
		t.Errorf("expected second write to win, action=%s", rec.Action)
	}
	if rec.Reason != "send failed" {
		t.Errorf("expected reason from second write, got %q", rec.Reason)
	}
}

func TestHasProcessedAgreesAcrossIDForms(t *testing.T) {
	db := newTestDB(t)

	if err := MarkProcessed(db, ProcessedRecord{
		TenantID:  "acme",
		MessageID: "<m2@host>",
		ThreadID:  "t2",
		Action:    domain.OutcomeSuppressed,
	}); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	if !HasProcessed(db, "acme", "<m2@host>") {
		t.Error("bracketed form not found")
	}
	if !HasProcessed(db, "acme", "m2@host") {
		t.Error("bare form not found")
	}
	if HasProcessed(db, "other-tenant", "m2@host") {
		t.Error("record leaked across tenants")
	}
}

func TestHasProcessedFailsOpenOnStorageError(t *testing.T) {
	db := newTestDB(t)
	db.Close()

	if HasProcessed(db, "acme", "m@host") {
		t.Error("expected false on closed database")
	}
}

func TestGetRecentRecords(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC()

	for i, id := range []string{"a@h", "b@h", "c@h"} {
		err := MarkProcessed(db, ProcessedRecord{
			TenantID:    "acme",
			MessageID:   id,
			ThreadID:    "t",
			Action:      domain.OutcomeSuppressed,
			ProcessedAt: now.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("MarkProcessed failed: %v", err)
		}
	}

	recs, err := GetRecentRecords(db, "acme", now.Add(30*time.Second), 10)
	if err != nil {
		t.Fatalf("GetRecentRecords failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 recent records, got %d", len(recs))
	}
	if recs[0].MessageID != "c@h" {
		t.Errorf("expected newest first, got %s", recs[0].MessageID)
	}
}
