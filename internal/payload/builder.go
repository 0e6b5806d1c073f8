package payload

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/mail"
	"strings"

	"github.com/shineum/sendwire/internal/email"
)

const replyToHeader = "Reply-To"

// reservedHeaders are carried by dedicated message fields and never sent in
// the headers map. Keys are lower case.
var reservedHeaders = map[string]struct{}{
	"received":     {},
	"from":         {},
	"to":           {},
	"cc":           {},
	"bcc":          {},
	"subject":      {},
	"content-type": {},
}

// Build converts a message into a single-send payload.
// Empty fields are omitted. It returns a structural error if the message
// carries more than one category or template id.
func Build(msg *email.Message) (*Payload, error) {
	return build(msg, false)
}

// build assembles the payload. For a batch base, Reply-To goes to the
// reply_to field instead of the headers map.
func build(msg *email.Message, base bool) (*Payload, error) {
	if msg == nil {
		return nil, errors.New("nil message")
	}

	p := &Payload{
		To:      wireAddresses(recipients(msg)),
		Cc:      wireAddresses(msg.Cc),
		Bcc:     wireAddresses(msg.Bcc),
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
	}

	if sender := resolveSender(msg); sender != nil {
		from := wireAddress(*sender)
		p.From = &from
	}

	if len(msg.Attachments) > 0 {
		p.Attachments = make([]Attachment, 0, len(msg.Attachments))
		for _, att := range msg.Attachments {
			p.Attachments = append(p.Attachments, EncodeAttachment(att))
		}
	}

	if len(msg.ReplyTo) > 0 {
		if base {
			replyTo := wireAddress(msg.ReplyTo[0])
			p.ReplyTo = &replyTo
		} else {
			p.setHeader(replyToHeader, formatAddressList(msg.ReplyTo))
		}
	}

	if err := p.classifyHeaders(msg.Headers, len(msg.ReplyTo) > 0); err != nil {
		return nil, err
	}

	return p, nil
}

// classifyHeaders dispatches every header entry to its payload field, in
// insertion order. A generic Reply-To header, matched case-insensitively, is
// dropped when the message has ReplyTo addresses and is otherwise sent under
// the canonical "Reply-To" key.
func (p *Payload) classifyHeaders(headers []email.Header, hasReplyTo bool) error {
	var hasCategory, hasTemplateID bool

	for _, h := range headers {
		name := h.HeaderName()
		if _, ok := reservedHeaders[strings.ToLower(name)]; ok {
			slog.Debug("skipping reserved header", "header", name)
			continue
		}

		switch h := h.(type) {
		case email.GenericHeader:
			name := h.Name
			if strings.EqualFold(name, replyToHeader) {
				if hasReplyTo {
					slog.Debug("skipping Reply-To header, message has ReplyTo addresses")
					continue
				}
				name = replyToHeader
			}
			p.setHeader(name, mime.QEncoding.Encode("utf-8", h.Value))
		case email.CustomVariable:
			if p.CustomVariables == nil {
				p.CustomVariables = make(map[string]string)
			}
			p.CustomVariables[trimPrefixFold(h.Name, email.CustomVariablePrefix)] = h.Value
		case email.TemplateVariable:
			if p.TemplateVariables == nil {
				p.TemplateVariables = make(map[string]any)
			}
			p.TemplateVariables[trimPrefixFold(h.Name, email.TemplateVariablePrefix)] = h.Value
		case email.Category:
			if hasCategory {
				return ErrTooManyCategories
			}
			hasCategory = true
			p.Category = h.Value
		case email.TemplateID:
			if hasTemplateID {
				return ErrTooManyTemplateIDs
			}
			hasTemplateID = true
			p.TemplateUUID = h.Value
		default:
			return fmt.Errorf("%w: %T", ErrUnknownHeader, h)
		}
	}

	return nil
}

func (p *Payload) setHeader(name, value string) {
	if p.Headers == nil {
		p.Headers = make(map[string]string)
	}
	p.Headers[name] = value
}

// resolveSender picks the envelope sender, then Sender, then Return-Path,
// then the first From address.
func resolveSender(msg *email.Message) *email.Address {
	switch {
	case msg.Envelope != nil && msg.Envelope.Sender != nil:
		return msg.Envelope.Sender
	case msg.Sender != nil:
		return msg.Sender
	case msg.ReturnPath != nil:
		return msg.ReturnPath
	case len(msg.From) > 0:
		return &msg.From[0]
	}
	return nil
}

// recipients returns the addresses for the "to" field: the envelope
// recipients (or To, Cc and Bcc when there is no envelope override), minus
// anything listed in Cc or Bcc, which are sent under their own keys.
func recipients(msg *email.Message) []email.Address {
	var all []email.Address
	if msg.Envelope != nil && len(msg.Envelope.Recipients) > 0 {
		all = msg.Envelope.Recipients
	} else {
		all = make([]email.Address, 0, len(msg.To)+len(msg.Cc)+len(msg.Bcc))
		all = append(all, msg.To...)
		all = append(all, msg.Cc...)
		all = append(all, msg.Bcc...)
	}

	seen := make(map[string]struct{}, len(msg.Cc)+len(msg.Bcc))
	for _, a := range msg.Cc {
		seen[a.Email] = struct{}{}
	}
	for _, a := range msg.Bcc {
		seen[a.Email] = struct{}{}
	}

	var out []email.Address
	for _, a := range all {
		if _, ok := seen[a.Email]; ok {
			continue
		}
		seen[a.Email] = struct{}{}
		out = append(out, a)
	}
	return out
}

func wireAddress(a email.Address) Address {
	return Address{Email: a.Email, Name: a.Name}
}

func wireAddresses(list []email.Address) []Address {
	if len(list) == 0 {
		return nil
	}
	out := make([]Address, 0, len(list))
	for _, a := range list {
		out = append(out, wireAddress(a))
	}
	return out
}

// formatAddressList renders addresses as an RFC 5322 header value, encoding
// display names the same way mail headers do.
func formatAddressList(list []email.Address) string {
	parts := make([]string, 0, len(list))
	for _, a := range list {
		parts = append(parts, (&mail.Address{Name: a.Name, Address: a.Email}).String())
	}
	return strings.Join(parts, ", ")
}

func trimPrefixFold(s, prefix string) string {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):]
	}
	return s
}
