package normalize

import (
	"encoding/base64"
	"net/mail"
	"sort"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/meridian-hq/meridian/internal/core"
)

// Thread converts a users.threads.get payload into the canonical
// conversation, messages sorted oldest to newest. Works for both "full" and
// "metadata" formats; metadata payloads simply yield empty bodies.
func (n *Normalizer) Thread(raw *gmail.Thread) core.Thread {
	messages := make([]core.Message, 0, len(raw.Messages))
	for _, m := range raw.Messages {
		if m == nil {
			continue
		}
		messages = append(messages, n.Message(m))
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].InternalTS.Before(messages[j].InternalTS)
	})

	// Subject: last non-empty subject across the thread.
	var subject string
	for _, m := range messages {
		if m.Subject != "" {
			subject = m.Subject
		}
	}

	lastUpdated := n.clock.Now()
	if len(messages) > 0 {
		lastUpdated = messages[len(messages)-1].InternalTS
	}

	return core.Thread{
		ID:          raw.Id,
		Subject:     subject,
		LastUpdated: lastUpdated,
		Labels:      labelUnion(messages),
		Messages:    messages,
	}
}

// ThreadSummary derives the list-view row from a full thread.
func ThreadSummary(t core.Thread) core.ThreadSummary {
	var (
		ids     []string
		snippet string
		unread  bool
	)
	seen := make(map[string]bool)
	var participants []core.EmailAddress

	for _, m := range t.Messages {
		ids = append(ids, m.ID)
		if m.Snippet != "" {
			snippet = m.Snippet // latest message wins
		}
		for _, lab := range m.Labels {
			if lab == "UNREAD" {
				unread = true
			}
		}
		for _, addr := range gatherAddresses(m) {
			key := strings.ToLower(addr.Email)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			participants = append(participants, addr)
		}
	}

	return core.ThreadSummary{
		ID:           t.ID,
		Subject:      t.Subject,
		LastUpdated:  t.LastUpdated,
		MessageIDs:   ids,
		Participants: participants,
		Snippet:      snippet,
		Labels:       t.Labels,
		Unread:       unread,
	}
}

// Message converts a single Gmail message payload.
func (n *Normalizer) Message(raw *gmail.Message) core.Message {
	var headers []*gmail.MessagePartHeader
	if raw.Payload != nil {
		headers = raw.Payload.Headers
	}

	from := n.parseAddresses(header(headers, "From"))
	var fromAddr core.EmailAddress
	if len(from) > 0 {
		fromAddr = from[0]
	}

	ts := n.internalTS(raw.InternalDate)
	if ts.IsZero() {
		ts = n.parseDateHeader(header(headers, "Date"))
	}
	if ts.IsZero() {
		ts = n.clock.Now()
	}

	text, html, attachments := n.walkParts(raw.Payload)

	return core.Message{
		ID:             raw.Id,
		ThreadID:       raw.ThreadId,
		Subject:        header(headers, "Subject"),
		From:           fromAddr,
		To:             n.parseAddresses(header(headers, "To")),
		Cc:             n.parseAddresses(header(headers, "Cc")),
		Bcc:            n.parseAddresses(header(headers, "Bcc")),
		Snippet:        raw.Snippet,
		BodyText:       text,
		BodyHTML:       html,
		InternalTS:     ts,
		Labels:         raw.LabelIds,
		HasAttachments: len(attachments) > 0,
		Attachments:    attachments,
	}
}

// walkParts collects the first text/plain body, the first text/html body,
// and attachment metadata from a MIME part tree.
func (n *Normalizer) walkParts(payload *gmail.MessagePart) (text, html string, atts []core.AttachmentMeta) {
	if payload == nil {
		return "", "", nil
	}

	var walk func(part *gmail.MessagePart)
	walk = func(part *gmail.MessagePart) {
		for _, p := range part.Parts {
			walk(p)
		}

		body := part.Body
		if body == nil {
			return
		}
		if body.AttachmentId != "" {
			atts = append(atts, core.AttachmentMeta{
				ID:        body.AttachmentId,
				Filename:  part.Filename,
				MimeType:  part.MimeType,
				SizeBytes: body.Size,
				ContentID: header(part.Headers, "Content-Id"),
			})
			return
		}
		if body.Data == "" {
			return
		}
		decoded, err := base64.URLEncoding.DecodeString(body.Data)
		if err != nil {
			decoded, err = base64.RawURLEncoding.DecodeString(body.Data)
		}
		if err != nil {
			n.log.WithField("mime", part.MimeType).Debug("undecodable body part")
			return
		}
		switch part.MimeType {
		case "text/plain":
			if text == "" {
				text = string(decoded)
			}
		case "text/html":
			if html == "" {
				html = string(decoded)
			}
		}
	}
	walk(payload)

	return text, html, atts
}

func (n *Normalizer) parseAddresses(value string) []core.EmailAddress {
	if value == "" {
		return nil
	}
	list, err := mail.ParseAddressList(value)
	if err != nil {
		// Lenient fallback: a single unparseable mailbox still carries the
		// raw address text.
		n.log.WithField("value", value).Debug("address list parse failed")
		if addr := strings.TrimSpace(value); addr != "" {
			return []core.EmailAddress{{Email: addr}}
		}
		return nil
	}
	out := make([]core.EmailAddress, 0, len(list))
	for _, a := range list {
		out = append(out, core.EmailAddress{Email: a.Address, Name: a.Name})
	}
	return out
}

func (n *Normalizer) parseDateHeader(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := mail.ParseDate(s)
	if err != nil {
		n.log.WithField("date", s).Debug("rfc2822 date parse failed")
		return time.Time{}
	}
	return t
}

func (n *Normalizer) internalTS(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// gatherAddresses lists a message's correspondents: sender first, then
// recipients.
func gatherAddresses(m core.Message) []core.EmailAddress {
	out := make([]core.EmailAddress, 0, 1+len(m.To)+len(m.Cc))
	if m.From.Email != "" {
		out = append(out, m.From)
	}
	out = append(out, m.To...)
	out = append(out, m.Cc...)
	return out
}

func header(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if h != nil && strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func labelUnion(messages []core.Message) []string {
	set := make(map[string]bool)
	for _, m := range messages {
		for _, lab := range m.Labels {
			set[lab] = true
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for lab := range set {
		out = append(out, lab)
	}
	sort.Strings(out)
	return out
}
