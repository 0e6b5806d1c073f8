// Package stdout implements a dry-run Provider that writes sending API
// payloads to standard output instead of sending them.
package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/shineum/sendwire/internal/email"
	"github.com/shineum/sendwire/internal/payload"
)

// Provider writes one JSON document per message.
type Provider struct {
	// mu serializes writes from concurrent SMTP sessions.
	mu     sync.Mutex
	writer io.Writer
	indent bool
}

// New creates a new stdout Provider that writes to os.Stdout.
func New(indent bool) *Provider {
	return &Provider{writer: os.Stdout, indent: indent}
}

// NewWithWriter creates a new Provider that writes to the given writer.
func NewWithWriter(w io.Writer, indent bool) *Provider {
	return &Provider{writer: w, indent: indent}
}

// Send builds the single-send payload for msg and writes it.
// Structural payload errors are returned unchanged.
func (p *Provider) Send(_ context.Context, msg *email.Message) error {
	body, err := payload.Build(msg)
	if err != nil {
		return err
	}

	if err := p.write(body); err != nil {
		return err
	}

	slog.Info("payload written",
		"provider", p.Name(),
		"recipients", len(body.To)+len(body.Cc)+len(body.Bcc),
		"attachments", len(msg.Attachments),
		"attachment_size", formatSize(attachmentSize(msg)),
	)
	return nil
}

// WriteBatch writes a batch payload.
func (p *Provider) WriteBatch(batch *payload.Batch) error {
	if err := p.write(batch); err != nil {
		return err
	}

	slog.Info("batch payload written",
		"provider", p.Name(),
		"requests", len(batch.Requests),
		"has_base", batch.Base != nil,
	)
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}

func (p *Provider) write(v any) error {
	var (
		data []byte
		err  error
	)
	if p.indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	return nil
}

func attachmentSize(msg *email.Message) int {
	total := 0
	for _, att := range msg.Attachments {
		total += len(att.Content)
	}
	return total
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
