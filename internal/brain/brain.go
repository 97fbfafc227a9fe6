// Package brain loads the read-only prompt/knowledge-base assets and keeps
// the per-day human-readable memory log.
package brain

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const maxKBFileChars = 12000

type Brain struct {
	Dir     string
	DataDir string
}

func New(dir, dataDir string) (*Brain, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("brain dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("brain dir %s is not a directory", dir)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("data dir %s: %w", dataDir, err)
	}
	return &Brain{Dir: dir, DataDir: dataDir}, nil
}

// Prompt reads a required prompt file from the brain dir.
func (b *Brain) Prompt(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(b.Dir, name))
	if err != nil {
		return "", fmt.Errorf("reading prompt %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// safeKBName rejects anything that could escape the knowledge-base root.
func safeKBName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, "/") || strings.HasPrefix(name, "\\") {
		return false
	}
	cleaned := filepath.Clean(name)
	return cleaned == name && !filepath.IsAbs(cleaned)
}

// KnowledgeContext assembles the knowledge-base text for the given file
// hints. Unsafe names and unreadable files are skipped with a warning, never
// fatal; an empty result is a valid context.
func (b *Brain) KnowledgeContext(names []string) string {
	root := filepath.Join(b.Dir, "kb")
	var buf strings.Builder
	for _, name := range names {
		if !safeKBName(name) {
			log.Printf("kb skipped unsafe name=%q", name)
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			log.Printf("kb skipped name=%s err=%v", name, err)
			continue
		}
		text := strings.TrimSpace(string(data))
		if len(text) > maxKBFileChars {
			text = text[:maxKBFileChars] + "\n...(truncated)"
		}
		fmt.Fprintf(&buf, "--- %s ---\n%s\n\n", name, text)
	}
	return strings.TrimSpace(buf.String())
}

func (b *Brain) memoryLogPath(day time.Time) string {
	return filepath.Join(b.DataDir, "memory-"+day.Format("2006-01-02")+".log")
}

// AppendMemory writes one audit line to today's memory log. Append-only; a
// write failure is logged, not returned, so the audit trail can never fail an
// item that was already terminally handled.
func (b *Brain) AppendMemory(line string) {
	now := time.Now().UTC()
	path := b.memoryLogPath(now)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("memory log open error path=%s err=%v", path, err)
		return
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s %s\n", now.Format(time.RFC3339), line); err != nil {
		log.Printf("memory log write error path=%s err=%v", path, err)
	}
}

// RecentMemory returns the tail of today's memory log, capped at maxChars,
// for use as the classifier's short-term memory of recent outcomes. Missing
// log means no memory yet.
func (b *Brain) RecentMemory(maxChars int) string {
	data, err := os.ReadFile(b.memoryLogPath(time.Now().UTC()))
	if err != nil {
		return ""
	}
	text := strings.TrimSpace(string(data))
	if len(text) > maxChars {
		text = text[len(text)-maxChars:]
		// Drop the likely-partial first line.
		if idx := strings.IndexByte(text, '\n'); idx >= 0 {
			text = text[idx+1:]
		}
	}
	return text
}
