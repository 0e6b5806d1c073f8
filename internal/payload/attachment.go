package payload

import (
	"encoding/base64"

	"github.com/shineum/sendwire/internal/email"
)

// EncodeAttachment converts an attachment into its wire form.
// An empty disposition is sent as "attachment". The content id is only sent
// for inline attachments and is forwarded unchecked.
func EncodeAttachment(att email.Attachment) Attachment {
	disposition := att.Disposition
	if disposition == "" {
		disposition = email.DispositionAttachment
	}

	out := Attachment{
		// StdEncoding never wraps lines, unlike MIME body encoders.
		Content:     base64.StdEncoding.EncodeToString(att.Content),
		Type:        att.ContentType,
		Filename:    att.Filename,
		Disposition: string(disposition),
	}
	if disposition == email.DispositionInline {
		out.ContentID = att.ContentID
	}
	return out
}
