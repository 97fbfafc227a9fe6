package inbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"inboxagent/internal/domain"
)

// GmailProvider implements Provider on top of the Gmail API.
type GmailProvider struct {
	svc *gmail.Service
}

// NewGmailProvider builds a provider from an OAuth client-credentials file
// and a previously obtained token file.
func NewGmailProvider(ctx context.Context, credentialsPath, tokenPath string) (*GmailProvider, error) {
	creds, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("reading gmail credentials: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(creds, gmail.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing gmail credentials: %w", err)
	}

	tokenData, err := os.ReadFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("reading gmail token: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(tokenData, &token); err != nil {
		return nil, fmt.Errorf("parsing gmail token: %w", err)
	}

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(oauthCfg.Client(ctx, &token)))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}
	return &GmailProvider{svc: svc}, nil
}

func (p *GmailProvider) ListRecent(ctx context.Context, sinceDays, maxCount int) ([]string, error) {
	query := fmt.Sprintf("in:inbox newer_than:%dd", sinceDays)
	resp, err := p.svc.Users.Threads.List("me").
		Q(query).MaxResults(int64(maxCount)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	ids := make([]string, 0, len(resp.Threads))
	for _, th := range resp.Threads {
		ids = append(ids, th.Id)
	}
	return ids, nil
}

func (p *GmailProvider) GetThread(ctx context.Context, threadID string) (*domain.InboundItem, error) {
	th, err := p.svc.Users.Threads.Get("me", threadID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("getting thread %s: %w", threadID, err)
	}

	item := &domain.InboundItem{ThreadID: threadID}
	for _, msg := range th.Messages {
		if msg.Payload == nil {
			continue
		}
		m := domain.Message{
			ID:   header(msg.Payload.Headers, "Message-ID"),
			From: parseAddress(header(msg.Payload.Headers, "From")),
			Date: time.UnixMilli(msg.InternalDate),
			Body: extractBody(msg.Payload),
		}
		if m.ID == "" {
			m.ID = msg.Id
		}
		if item.Subject == "" {
			item.Subject = header(msg.Payload.Headers, "Subject")
		}
		item.Messages = append(item.Messages, m)
	}
	sort.SliceStable(item.Messages, func(i, j int) bool {
		return item.Messages[i].Date.Before(item.Messages[j].Date)
	})
	return item, nil
}

func (p *GmailProvider) SelfAddress(ctx context.Context) (string, error) {
	profile, err := p.svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("getting profile: %w", err)
	}
	return strings.ToLower(profile.EmailAddress), nil
}

func (p *GmailProvider) SendReply(ctx context.Context, item *domain.InboundItem, body string) error {
	raw, err := p.threadedMessage(ctx, item, body)
	if err != nil {
		return err
	}
	_, err = p.svc.Users.Messages.Send("me", &gmail.Message{
		Raw:      raw,
		ThreadId: item.ThreadID,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sending reply on thread %s: %w", item.ThreadID, err)
	}
	return nil
}

func (p *GmailProvider) CreateDraft(ctx context.Context, item *domain.InboundItem, body string) error {
	raw, err := p.threadedMessage(ctx, item, body)
	if err != nil {
		return err
	}
	_, err = p.svc.Users.Drafts.Create("me", &gmail.Draft{
		Message: &gmail.Message{Raw: raw, ThreadId: item.ThreadID},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("creating draft on thread %s: %w", item.ThreadID, err)
	}
	return nil
}

func (p *GmailProvider) EnsureLabel(ctx context.Context, name string) (string, error) {
	resp, err := p.svc.Users.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("listing labels: %w", err)
	}
	for _, label := range resp.Labels {
		if strings.EqualFold(label.Name, name) {
			return label.Id, nil
		}
	}
	created, err := p.svc.Users.Labels.Create("me", &gmail.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("creating label %s: %w", name, err)
	}
	return created.Id, nil
}

func (p *GmailProvider) MarkHandled(ctx context.Context, threadID, labelID string) error {
	// Star + label only; the unread state is left alone so the thread still
	// shows as needing attention in a human's mailbox view.
	add := []string{"STARRED"}
	if labelID != "" {
		add = append(add, labelID)
	}
	_, err := p.svc.Users.Threads.Modify("me", threadID, &gmail.ModifyThreadRequest{
		AddLabelIds: add,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("marking thread %s: %w", threadID, err)
	}
	return nil
}

// threadedMessage builds the raw RFC 2822 reply keyed into the thread via
// In-Reply-To/References on the last message.
func (p *GmailProvider) threadedMessage(ctx context.Context, item *domain.InboundItem, body string) (string, error) {
	last := item.LastMessage()
	if last == nil {
		return "", fmt.Errorf("thread %s has no messages", item.ThreadID)
	}
	self, err := p.SelfAddress(ctx)
	if err != nil {
		return "", err
	}

	subject := item.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}
	ref := last.ID
	if !strings.HasPrefix(ref, "<") {
		ref = "<" + ref + ">"
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", self)
	fmt.Fprintf(&msg, "To: %s\r\n", last.From)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "In-Reply-To: %s\r\n", ref)
	fmt.Fprintf(&msg, "References: %s\r\n", ref)
	msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	return base64.URLEncoding.EncodeToString([]byte(msg.String())), nil
}

func header(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return strings.TrimSpace(h.Value)
		}
	}
	return ""
}

// parseAddress reduces "Display Name <a@b>" to "a@b".
func parseAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	if start := strings.LastIndexByte(raw, '<'); start >= 0 {
		if end := strings.IndexByte(raw[start:], '>'); end > 0 {
			return strings.ToLower(raw[start+1 : start+end])
		}
	}
	return strings.ToLower(raw)
}

// extractBody prefers the first text/plain part anywhere in the MIME tree,
// falling back to any part carrying data.
func extractBody(part *gmail.MessagePart) string {
	if body := findPart(part, "text/plain"); body != "" {
		return body
	}
	return findPart(part, "")
}

func findPart(part *gmail.MessagePart, mimeType string) string {
	if part.Body != nil && part.Body.Data != "" && (mimeType == "" || part.MimeType == mimeType) {
		return decodeBody(part.Body.Data)
	}
	for _, child := range part.Parts {
		if body := findPart(child, mimeType); body != "" {
			return body
		}
	}
	return ""
}

func decodeBody(data string) string {
	decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(decoded)
}
