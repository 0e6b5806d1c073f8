// Package payload converts email messages into the JSON request bodies of
// the sending API: single sends and batch sends.
package payload

// Payload is the request body of a single send, and the shape of every
// entry of a batch.
type Payload struct {
	From    *Address  `json:"from,omitempty"`
	To      []Address `json:"to,omitempty"`
	Cc      []Address `json:"cc,omitempty"`
	Bcc     []Address `json:"bcc,omitempty"`
	ReplyTo *Address  `json:"reply_to,omitempty"`

	Subject string `json:"subject,omitempty"`
	Text    string `json:"text,omitempty"`
	HTML    string `json:"html,omitempty"`

	Attachments []Attachment `json:"attachments,omitempty"`

	Headers           map[string]string `json:"headers,omitempty"`
	CustomVariables   map[string]string `json:"custom_variables,omitempty"`
	Category          string            `json:"category,omitempty"`
	TemplateUUID      string            `json:"template_uuid,omitempty"`
	TemplateVariables map[string]any    `json:"template_variables,omitempty"`
}

// Address is the wire form of an email address.
type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Attachment is the wire form of an attachment. Content is base64 without
// line breaks.
type Attachment struct {
	Content     string `json:"content"`
	Type        string `json:"type"`
	Filename    string `json:"filename"`
	Disposition string `json:"disposition"`
	ContentID   string `json:"content_id,omitempty"`
}

// Batch is the request body of a batch send. Requests are positionally
// aligned with the per-message results the API returns.
type Batch struct {
	Base     *Payload  `json:"base,omitempty"`
	Requests []Payload `json:"requests"`
}
