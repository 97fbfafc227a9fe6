package brain

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestBrain(t *testing.T) *Brain {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "kb"), 0755); err != nil {
		t.Fatalf("mkdir kb failed: %v", err)
	}
	b, err := New(dir, t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return b
}

func TestSafeKBName(t *testing.T) {
	unsafe := []string{"", "../secrets.md", "/etc/passwd", "a/../../b", "\\windows"}
	for _, name := range unsafe {
		if safeKBName(name) {
			t.Errorf("expected %q to be rejected", name)
		}
	}
	safe := []string{"shipping.md", "returns/policy.md"}
	for _, name := range safe {
		if !safeKBName(name) {
			t.Errorf("expected %q to be accepted", name)
		}
	}
}

func TestKnowledgeContextSkipsBadFiles(t *testing.T) {
	b := newTestBrain(t)
	if err := os.WriteFile(filepath.Join(b.Dir, "kb", "shipping.md"), []byte("Ships in 2 days."), 0644); err != nil {
		t.Fatalf("write kb file failed: %v", err)
	}

	got := b.KnowledgeContext([]string{"shipping.md", "../evil.md", "missing.md"})
	if !strings.Contains(got, "Ships in 2 days.") {
		t.Errorf("expected readable file content, got %q", got)
	}
	if strings.Contains(got, "evil") || strings.Contains(got, "missing") {
		t.Errorf("unexpected content for skipped files: %q", got)
	}
}

func TestAppendAndRecentMemory(t *testing.T) {
	b := newTestBrain(t)

	b.AppendMemory("tenant=acme thread=t1 action=auto_reply")
	b.AppendMemory("tenant=acme thread=t2 action=escalated reason=send_failed")

	mem := b.RecentMemory(4096)
	if !strings.Contains(mem, "thread=t1") || !strings.Contains(mem, "thread=t2") {
		t.Fatalf("expected both lines in memory, got %q", mem)
	}

	// A tight cap keeps only whole trailing lines.
	tail := b.RecentMemory(len("tenant=acme thread=t2 action=escalated reason=send_failed") + 10)
	if strings.Contains(tail, "thread=t1") {
		t.Errorf("expected capped memory to drop oldest line, got %q", tail)
	}
	if !strings.Contains(tail, "thread=t2") {
		t.Errorf("expected capped memory to keep newest line, got %q", tail)
	}
}

func TestPromptMissingIsError(t *testing.T) {
	b := newTestBrain(t)
	if _, err := b.Prompt("nope.md"); err == nil {
		t.Error("expected error for missing prompt")
	}
}
