package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/meridian-hq/meridian/internal/core"
	"github.com/meridian-hq/meridian/internal/transport"
)

// DraftRequest describes a new standalone draft.
type DraftRequest struct {
	To      []core.EmailAddress
	CC      []core.EmailAddress
	BCC     []core.EmailAddress
	Subject string

	// BodyHTML wins over BodyText when both are set.
	BodyText string
	BodyHTML string
}

// ReplyDraftRequest describes a reply draft attached to an existing
// thread. Without ReplyAll a ReferenceMessageID (the RFC 5322
// Message-ID header of the message being answered) is required so the
// reply targets a specific message.
type ReplyDraftRequest struct {
	ThreadID           string
	BodyText           string
	BodyHTML           string
	ReplyAll           bool
	ReferenceMessageID string
}

// CreateDraft creates a new draft and returns its id.
func (w *Writer) CreateDraft(ctx context.Context, req DraftRequest) (string, error) {
	raw := buildRawMessage(rawMessageParams{
		to:       req.To,
		cc:       req.CC,
		bcc:      req.BCC,
		subject:  req.Subject,
		bodyText: req.BodyText,
		bodyHTML: req.BodyHTML,
	})

	draft, err := w.createDraft(ctx, &gmailapi.Draft{
		Message: &gmailapi.Message{Raw: raw},
	})
	if err != nil {
		return "", fmt.Errorf("create draft: %w", err)
	}
	w.log.Info("created draft %s", draft.Id)
	return draft.Id, nil
}

// CreateReplyDraft creates a draft reply on an existing thread. With
// ReplyAll the original To/Cc recipients are carried over, minus the
// account itself; otherwise only the original sender is addressed.
func (w *Writer) CreateReplyDraft(ctx context.Context, req ReplyDraftRequest) (string, error) {
	if req.ThreadID == "" {
		return "", fmt.Errorf("reply draft: %w: thread id", core.ErrMissingRequired)
	}
	if !req.ReplyAll && req.ReferenceMessageID == "" {
		return "", fmt.Errorf("reply draft: %w: reference message id required unless replying to all", core.ErrInvalidInput)
	}

	target, err := w.replyTarget(ctx, req.ThreadID, req.ReferenceMessageID)
	if err != nil {
		return "", err
	}

	self := w.profileEmail(ctx)
	to, cc := replyRecipients(w.norm.Message(target), req.ReplyAll, self)

	messageID := rawHeader(target, "Message-Id")
	references := rawHeader(target, "References")
	if references != "" && messageID != "" {
		references += " " + messageID
	} else {
		references = messageID
	}

	raw := buildRawMessage(rawMessageParams{
		to:         to,
		cc:         cc,
		subject:    replySubject(rawHeader(target, "Subject")),
		inReplyTo:  messageID,
		references: references,
		bodyText:   req.BodyText,
		bodyHTML:   req.BodyHTML,
	})

	draft, err := w.createDraft(ctx, &gmailapi.Draft{
		Message: &gmailapi.Message{Raw: raw, ThreadId: req.ThreadID},
	})
	if err != nil {
		return "", fmt.Errorf("create reply draft: %w", err)
	}
	w.log.Info("created reply draft %s on thread %s", draft.Id, req.ThreadID)
	return draft.Id, nil
}

// SendDraft sends an existing draft and returns the id of the sent
// message.
func (w *Writer) SendDraft(ctx context.Context, draftID string) (string, error) {
	if draftID == "" {
		return "", fmt.Errorf("send draft: %w: draft id", core.ErrMissingRequired)
	}
	var sent *gmailapi.Message
	err := w.exec.Do(ctx, func() error {
		var opErr error
		sent, opErr = w.api.SendDraft(ctx, draftID)
		return opErr
	})
	if err != nil {
		if transport.StatusCode(err) == http.StatusNotFound {
			return "", fmt.Errorf("draft %s: %w", draftID, core.ErrDraftNotFound)
		}
		return "", fmt.Errorf("send draft %s: %w", draftID, err)
	}
	w.log.Info("sent draft %s as message %s", draftID, sent.Id)
	return sent.Id, nil
}

func (w *Writer) createDraft(ctx context.Context, draft *gmailapi.Draft) (*gmailapi.Draft, error) {
	var created *gmailapi.Draft
	err := w.exec.Do(ctx, func() error {
		var opErr error
		created, opErr = w.api.CreateDraft(ctx, draft)
		return opErr
	})
	return created, err
}

// replyTarget finds the message a reply refers to: the one carrying the
// given Message-ID header, or the thread's latest message.
func (w *Writer) replyTarget(ctx context.Context, threadID, referenceMessageID string) (*gmailapi.Message, error) {
	var thread *gmailapi.Thread
	err := w.exec.Do(ctx, func() error {
		var opErr error
		thread, opErr = w.api.GetThread(ctx, threadID, formatMetadata)
		return opErr
	})
	if err != nil {
		if transport.StatusCode(err) == http.StatusNotFound {
			return nil, fmt.Errorf("thread %s: %w", threadID, core.ErrThreadNotFound)
		}
		return nil, fmt.Errorf("get thread %s: %w", threadID, err)
	}
	if len(thread.Messages) == 0 {
		return nil, fmt.Errorf("thread %s: %w: no messages", threadID, core.ErrThreadNotFound)
	}
	if referenceMessageID != "" {
		for _, m := range thread.Messages {
			if rawHeader(m, "Message-Id") == referenceMessageID {
				return m, nil
			}
		}
	}
	return thread.Messages[len(thread.Messages)-1], nil
}

// profileEmail returns the account's own address, or "" when the
// profile cannot be read. Recipient filtering then keeps everyone.
func (w *Writer) profileEmail(ctx context.Context) string {
	var profile *gmailapi.Profile
	err := w.exec.Do(ctx, func() error {
		var opErr error
		profile, opErr = w.api.GetProfile(ctx)
		return opErr
	})
	if err != nil {
		w.log.Debug("cannot read profile for reply filtering: %v", err)
		return ""
	}
	return profile.EmailAddress
}

// replyRecipients computes To/Cc for a reply from the original message.
// The account's own address is dropped and the original sender always
// leads the To list on a reply-all.
func replyRecipients(original core.Message, replyAll bool, self string) (to, cc []core.EmailAddress) {
	notSelf := func(a core.EmailAddress) bool {
		return self == "" || !strings.EqualFold(a.Email, self)
	}

	sender := original.From
	if !replyAll {
		if sender.Email != "" && notSelf(sender) {
			to = []core.EmailAddress{sender}
		}
		return to, nil
	}

	for _, a := range original.To {
		if notSelf(a) {
			to = append(to, a)
		}
	}
	for _, a := range original.Cc {
		if notSelf(a) {
			cc = append(cc, a)
		}
	}
	if sender.Email != "" && notSelf(sender) {
		for _, a := range to {
			if strings.EqualFold(a.Email, sender.Email) {
				return to, cc
			}
		}
		to = append([]core.EmailAddress{sender}, to...)
	}
	return to, cc
}

func replySubject(original string) string {
	if original == "" || strings.HasPrefix(strings.ToLower(original), "re:") {
		return original
	}
	return "Re: " + original
}

type rawMessageParams struct {
	to, cc, bcc []core.EmailAddress
	subject     string
	inReplyTo   string
	references  string
	bodyText    string
	bodyHTML    string
}

// buildRawMessage renders an RFC 822 message and encodes it the way the
// provider expects raw drafts: base64url over the full text.
func buildRawMessage(p rawMessageParams) string {
	var b strings.Builder

	if len(p.to) > 0 {
		fmt.Fprintf(&b, "To: %s\r\n", formatAddressList(p.to))
	}
	if len(p.cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\r\n", formatAddressList(p.cc))
	}
	if len(p.bcc) > 0 {
		fmt.Fprintf(&b, "Bcc: %s\r\n", formatAddressList(p.bcc))
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", p.subject)
	if p.inReplyTo != "" {
		fmt.Fprintf(&b, "In-Reply-To: %s\r\n", p.inReplyTo)
	}
	if p.references != "" {
		fmt.Fprintf(&b, "References: %s\r\n", p.references)
	}

	body := p.bodyText
	contentType := "text/plain"
	if p.bodyHTML != "" {
		body = p.bodyHTML
		contentType = "text/html"
	}
	fmt.Fprintf(&b, "Content-Type: %s; charset=UTF-8\r\n", contentType)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("\r\n")
	b.WriteString(body)

	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}

func formatAddressList(addrs []core.EmailAddress) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Name != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.Name, a.Email))
		} else {
			parts = append(parts, a.Email)
		}
	}
	return strings.Join(parts, ", ")
}

// rawHeader reads one header from a raw message's payload.
func rawHeader(m *gmailapi.Message, name string) string {
	if m == nil || m.Payload == nil {
		return ""
	}
	for _, h := range m.Payload.Headers {
		if h != nil && strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
