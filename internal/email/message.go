// Package email defines the outgoing message model that is serialized into
// sending API payloads.
package email

import (
	"github.com/google/uuid"
)

// Address is an email address with an optional display name.
// Two addresses are the same recipient iff their Email fields match exactly.
type Address struct {
	Email string
	Name  string
}

// Disposition tells the receiving client how to present an attachment.
type Disposition string

const (
	DispositionAttachment Disposition = "attachment"
	DispositionInline     Disposition = "inline"
)

// Attachment represents a file attached to or embedded in an email message.
type Attachment struct {
	Filename    string
	ContentType string
	Disposition Disposition
	// ContentID is the cid: reference used by the HTML body. Only meaningful
	// for inline attachments.
	ContentID string
	Content   []byte
}

// Envelope carries SMTP-level overrides of the sender and recipients.
type Envelope struct {
	Sender     *Address
	Recipients []Address
}

// Message represents an outgoing email with all its components.
// A Message must not be mutated while it is being serialized.
type Message struct {
	From       []Address
	Sender     *Address
	ReturnPath *Address
	ReplyTo    []Address
	To         []Address
	Cc         []Address
	Bcc        []Address

	Subject string
	Text    string
	HTML    string

	Attachments []Attachment

	// Headers holds generic MIME headers and metadata extensions in
	// insertion order. Appending to it directly bypasses the singleton
	// rules enforced by SetCategory and SetTemplateID.
	Headers []Header

	Envelope *Envelope
}

// AddHeader appends a generic header.
func (m *Message) AddHeader(name, value string) {
	m.Headers = append(m.Headers, GenericHeader{Name: name, Value: value})
}

// SetCategory replaces any category on the message with value.
func (m *Message) SetCategory(value string) {
	m.removeHeaders(func(h Header) bool {
		_, ok := h.(Category)
		return ok
	})
	m.Headers = append(m.Headers, Category{Value: value})
}

// SetTemplateID replaces any template reference on the message with id.
func (m *Message) SetTemplateID(id string) {
	m.removeHeaders(func(h Header) bool {
		_, ok := h.(TemplateID)
		return ok
	})
	m.Headers = append(m.Headers, TemplateID{Value: id})
}

// SetTemplateUUID is SetTemplateID for a parsed template UUID.
func (m *Message) SetTemplateUUID(id uuid.UUID) {
	m.SetTemplateID(id.String())
}

// AddCustomVariable appends a custom variable. A later variable with the
// same name wins in the payload.
func (m *Message) AddCustomVariable(name, value string) {
	m.Headers = append(m.Headers, CustomVariable{Name: name, Value: value})
}

// AddTemplateVariable appends a template variable. value may be any JSON
// serializable value, including maps and slices.
func (m *Message) AddTemplateVariable(name string, value any) {
	m.Headers = append(m.Headers, TemplateVariable{Name: name, Value: value})
}

// Attach adds a regular attachment.
func (m *Message) Attach(filename, contentType string, content []byte) {
	m.Attachments = append(m.Attachments, Attachment{
		Filename:    filename,
		ContentType: contentType,
		Disposition: DispositionAttachment,
		Content:     content,
	})
}

// Embed adds an inline attachment referenced from the HTML body as
// cid:<filename>.
func (m *Message) Embed(filename, contentType string, content []byte) {
	m.Attachments = append(m.Attachments, Attachment{
		Filename:    filename,
		ContentType: contentType,
		Disposition: DispositionInline,
		ContentID:   filename,
		Content:     content,
	})
}

// Category returns the message category, if one is set.
func (m *Message) Category() (string, bool) {
	for _, h := range m.Headers {
		if c, ok := h.(Category); ok {
			return c.Value, true
		}
	}
	return "", false
}

func (m *Message) removeHeaders(match func(Header) bool) {
	kept := make([]Header, 0, len(m.Headers))
	for _, h := range m.Headers {
		if !match(h) {
			kept = append(kept, h)
		}
	}
	m.Headers = kept
}
