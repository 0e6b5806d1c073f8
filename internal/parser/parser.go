// Package parser turns raw RFC 5322 messages into email.Message values,
// including MIME multipart bodies, attachments and metadata extension headers.
package parser

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"sort"
	"strings"

	"github.com/shineum/sendwire/internal/email"
)

// fieldHeaders are consumed into dedicated message fields or describe the
// raw MIME structure, so they are not kept as generic headers. Keys are
// lower case.
var fieldHeaders = map[string]struct{}{
	"from":                      {},
	"sender":                    {},
	"return-path":               {},
	"reply-to":                  {},
	"to":                        {},
	"cc":                        {},
	"bcc":                       {},
	"subject":                   {},
	"content-type":              {},
	"content-transfer-encoding": {},
	"mime-version":              {},
}

var wordDecoder = new(mime.WordDecoder)

// Parse parses a raw RFC 5322 email message into a Message.
// It handles plain text messages, multipart messages with text/html bodies,
// attachments and inline parts. Unrecognized MIME parts are logged as warnings.
func Parse(raw []byte) (*email.Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	result := &email.Message{
		From:       addressList(msg.Header, "From"),
		Sender:     singleAddress(msg.Header, "Sender"),
		ReturnPath: singleAddress(msg.Header, "Return-Path"),
		ReplyTo:    addressList(msg.Header, "Reply-To"),
		To:         addressList(msg.Header, "To"),
		Cc:         addressList(msg.Header, "Cc"),
		Bcc:        addressList(msg.Header, "Bcc"),
		Subject:    decodeHeader(msg.Header.Get("Subject")),
	}

	// Map iteration order is random; sort for a deterministic header order.
	keys := make([]string, 0, len(msg.Header))
	for key := range msg.Header {
		if _, ok := fieldHeaders[strings.ToLower(key)]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		for _, value := range msg.Header[key] {
			result.Headers = append(result.Headers, classifyHeader(key, value))
		}
	}

	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// If content type is unparseable, treat as plain text
		slog.Warn("failed to parse content type, treating as plain text",
			"content_type", contentType,
			"error", err,
		)
		body, readErr := io.ReadAll(msg.Body)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read message body: %w", readErr)
		}
		result.Text = string(body)
		return result, nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("multipart message missing boundary")
		}
		if err := parseMultipart(msg.Body, boundary, result); err != nil {
			return nil, fmt.Errorf("failed to parse multipart message: %w", err)
		}
		return result, nil
	}

	data, err := io.ReadAll(msg.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}
	body, err := decodeTransfer(msg.Header.Get("Content-Transfer-Encoding"), data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode message body: %w", err)
	}

	switch mediaType {
	case "text/plain":
		result.Text = string(body)
	case "text/html":
		result.HTML = string(body)
	default:
		slog.Warn("unrecognized top-level content type",
			"content_type", mediaType,
		)
		result.Text = string(body)
	}

	return result, nil
}

// classifyHeader maps a raw header onto its typed variant. Extension keys
// are lower-cased because the MIME reader canonicalizes header case.
func classifyHeader(key, value string) email.Header {
	lower := strings.ToLower(key)

	switch {
	case lower == strings.ToLower(email.CategoryHeader):
		return email.Category{Value: decodeHeader(value)}
	case lower == strings.ToLower(email.TemplateIDHeader):
		return email.TemplateID{Value: strings.TrimSpace(value)}
	case strings.HasPrefix(lower, strings.ToLower(email.CustomVariablePrefix)):
		return email.CustomVariable{
			Name:  lower[len(email.CustomVariablePrefix):],
			Value: decodeHeader(value),
		}
	case strings.HasPrefix(lower, strings.ToLower(email.TemplateVariablePrefix)):
		return email.TemplateVariable{
			Name:  lower[len(email.TemplateVariablePrefix):],
			Value: templateValue(decodeHeader(value)),
		}
	}

	return email.GenericHeader{Name: key, Value: decodeHeader(value)}
}

// templateValue decodes JSON header values so numbers, booleans and objects
// keep their type. Anything else stays a string.
func templateValue(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if !json.Valid([]byte(trimmed)) {
		return raw
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return raw
	}
	return v
}

// parseMultipart processes a multipart MIME message body, extracting text/plain,
// text/html parts, attachments and inline parts.
func parseMultipart(body io.Reader, boundary string, result *email.Message) error {
	reader := multipart.NewReader(body, boundary)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read next part: %w", err)
		}

		partContentType := part.Header.Get("Content-Type")
		if partContentType == "" {
			partContentType = "text/plain"
		}

		mediaType, params, err := mime.ParseMediaType(partContentType)
		if err != nil {
			slog.Warn("failed to parse part content type, skipping",
				"content_type", partContentType,
				"error", err,
			)
			continue
		}

		// Check for nested multipart
		if strings.HasPrefix(mediaType, "multipart/") {
			nestedBoundary := params["boundary"]
			if nestedBoundary == "" {
				slog.Warn("nested multipart missing boundary, skipping")
				continue
			}
			if err := parseMultipart(part, nestedBoundary, result); err != nil {
				slog.Warn("failed to parse nested multipart",
					"error", err,
				)
			}
			continue
		}

		content, err := readPartContent(part)
		if err != nil {
			slog.Warn("failed to read part content",
				"content_type", mediaType,
				"error", err,
			)
			continue
		}

		contentDisposition := strings.ToLower(part.Header.Get("Content-Disposition"))
		contentID := strings.Trim(part.Header.Get("Content-Id"), "<> ")

		switch {
		case strings.HasPrefix(contentDisposition, "attachment"):
			result.Attachments = append(result.Attachments, email.Attachment{
				Filename:    extractFilename(part, params),
				ContentType: mediaType,
				Disposition: email.DispositionAttachment,
				Content:     content,
			})
			continue
		case contentID != "" || (strings.HasPrefix(contentDisposition, "inline") && part.FileName() != ""):
			filename := extractFilename(part, params)
			if contentID == "" {
				contentID = filename
			}
			result.Attachments = append(result.Attachments, email.Attachment{
				Filename:    filename,
				ContentType: mediaType,
				Disposition: email.DispositionInline,
				ContentID:   contentID,
				Content:     content,
			})
			continue
		}

		switch mediaType {
		case "text/plain":
			if result.Text == "" {
				result.Text = string(content)
			}
		case "text/html":
			if result.HTML == "" {
				result.HTML = string(content)
			}
		default:
			// Check if it has a filename even without attachment disposition
			if filename := namedPart(part, params); filename != "" {
				result.Attachments = append(result.Attachments, email.Attachment{
					Filename:    filename,
					ContentType: mediaType,
					Disposition: email.DispositionAttachment,
					Content:     content,
				})
			} else {
				slog.Warn("unrecognized MIME part, skipping",
					"content_type", mediaType,
					"disposition", contentDisposition,
				)
			}
		}
	}

	return nil
}

// readPartContent reads the full content of a MIME part, handling
// Content-Transfer-Encoding. The multipart reader already strips
// quoted-printable, so only base64 is left in practice.
func readPartContent(part *multipart.Part) ([]byte, error) {
	raw, err := io.ReadAll(part)
	if err != nil {
		return nil, err
	}
	return decodeTransfer(part.Header.Get("Content-Transfer-Encoding"), raw)
}

// decodeTransfer undoes a Content-Transfer-Encoding. "7bit", "8bit",
// "binary" and empty encodings are returned as is.
func decodeTransfer(encoding string, raw []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		cleaned := strings.NewReplacer("\r", "", "\n", "").Replace(string(raw))
		decoded, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			// Try with RawStdEncoding for unpadded base64
			decoded, err = base64.RawStdEncoding.DecodeString(cleaned)
			if err != nil {
				return nil, fmt.Errorf("failed to decode base64 content: %w", err)
			}
		}
		return decoded, nil
	case "quoted-printable":
		decoded, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(raw)))
		if err != nil {
			return nil, fmt.Errorf("failed to decode quoted-printable content: %w", err)
		}
		return decoded, nil
	default:
		return raw, nil
	}
}

// namedPart returns the part's filename from Content-Disposition or the
// Content-Type "name" parameter, or empty if it has neither.
func namedPart(part *multipart.Part, params map[string]string) string {
	if fn := part.FileName(); fn != "" {
		return fn
	}
	return params["name"]
}

// extractFilename is namedPart with a fallback generated from the media type,
// since the sending API requires a filename on every attachment.
func extractFilename(part *multipart.Part, params map[string]string) string {
	if fn := namedPart(part, params); fn != "" {
		return fn
	}
	if mediaType, _, err := mime.ParseMediaType(part.Header.Get("Content-Type")); err == nil {
		parts := strings.SplitN(mediaType, "/", 2)
		if len(parts) == 2 {
			return "attachment." + parts[1]
		}
	}
	return "attachment"
}

// addressList parses an address header. Display names are decoded from
// RFC 2047 encoded words.
func addressList(h mail.Header, key string) []email.Address {
	raw := h.Get(key)
	if raw == "" {
		return nil
	}

	addresses, err := h.AddressList(key)
	if err != nil {
		// Fall back to simple comma split if RFC 5322 parsing fails
		parts := strings.Split(raw, ",")
		result := make([]email.Address, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				result = append(result, email.Address{Email: trimmed})
			}
		}
		return result
	}

	result := make([]email.Address, 0, len(addresses))
	for _, addr := range addresses {
		result = append(result, email.Address{Email: addr.Address, Name: addr.Name})
	}
	return result
}

// singleAddress parses a single-address header such as Sender or
// Return-Path. A null return path ("<>") yields nil.
func singleAddress(h mail.Header, key string) *email.Address {
	raw := strings.TrimSpace(h.Get(key))
	if raw == "" || raw == "<>" {
		return nil
	}

	addr, err := mail.ParseAddress(raw)
	if err != nil {
		slog.Warn("failed to parse address header",
			"header", key,
			"error", err,
		)
		return nil
	}
	return &email.Address{Email: addr.Address, Name: addr.Name}
}

func decodeHeader(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}
