package smtp

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	gosmtp "github.com/emersion/go-smtp"

	"github.com/shineum/sendwire/internal/email"
	"github.com/shineum/sendwire/internal/parser"
	"github.com/shineum/sendwire/internal/payload"
	"github.com/shineum/sendwire/internal/provider"
)

var (
	errAuthRequired = &gosmtp.SMTPError{
		Code:         530,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 0},
		Message:      "Authentication required",
	}
	errAuthFailed = &gosmtp.SMTPError{
		Code:         535,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 8},
		Message:      "Authentication credentials invalid",
	}
	errAuthDisabled = &gosmtp.SMTPError{
		Code:         502,
		EnhancedCode: gosmtp.EnhancedCode{5, 5, 1},
		Message:      "Authentication not enabled",
	}
	errMessageTooLarge = &gosmtp.SMTPError{
		Code:         552,
		EnhancedCode: gosmtp.EnhancedCode{5, 3, 4},
		Message:      "Message exceeds maximum size",
	}
	errParseFailed = &gosmtp.SMTPError{
		Code:         550,
		EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
		Message:      "Failed to parse message",
	}
)

// Backend creates a Session per SMTP connection.
type Backend struct {
	ctx            context.Context
	provider       provider.Provider
	auth           *Authenticator
	maxMessageSize int64
}

// NewBackend creates a Backend that hands parsed messages to prov.
func NewBackend(prov provider.Provider, auth *Authenticator, maxMessageSize int64) *Backend {
	return &Backend{
		ctx:            context.Background(),
		provider:       prov,
		auth:           auth,
		maxMessageSize: maxMessageSize,
	}
}

// NewSession implements gosmtp.Backend.
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	remote := ""
	if conn := c.Conn(); conn != nil {
		remote = conn.RemoteAddr().String()
	}
	slog.Debug("new SMTP connection", "remote_addr", remote)
	return b.newSession(remote), nil
}

func (b *Backend) newSession(remote string) *Session {
	return &Session{backend: b, remote: remote}
}

// Session holds the state of one SMTP transaction. The envelope sender and
// recipients become the message envelope and take precedence over headers.
type Session struct {
	backend       *Backend
	remote        string
	authenticated bool
	from          *email.Address
	rcpts         []email.Address
}

// AuthPlain implements the PLAIN mechanism.
func (s *Session) AuthPlain(username, password string) error {
	auth := s.backend.auth
	if !auth.Enabled() {
		return errAuthDisabled
	}
	if err := auth.Verify(username, password); err != nil {
		slog.Warn("SMTP authentication failed",
			"remote_addr", s.remote,
			"username", username,
		)
		return errAuthFailed
	}
	s.authenticated = true
	return nil
}

// Mail records the envelope sender. An empty reverse path leaves it unset.
func (s *Session) Mail(from string, _ *gosmtp.MailOptions) error {
	if s.backend.auth.Enabled() && !s.authenticated {
		return errAuthRequired
	}
	s.from = nil
	if from != "" {
		s.from = &email.Address{Email: from}
	}
	return nil
}

// Rcpt adds an envelope recipient.
func (s *Session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	if s.backend.auth.Enabled() && !s.authenticated {
		return errAuthRequired
	}
	s.rcpts = append(s.rcpts, email.Address{Email: to})
	return nil
}

// Data reads the message, parses it and hands it to the provider.
func (s *Session) Data(r io.Reader) error {
	raw, err := s.readData(r)
	if err != nil {
		return err
	}

	msg, err := parser.Parse(raw)
	if err != nil {
		slog.Error("failed to parse message",
			"remote_addr", s.remote,
			"error", err,
		)
		return errParseFailed
	}

	msg.Envelope = &email.Envelope{
		Sender:     s.from,
		Recipients: append([]email.Address(nil), s.rcpts...),
	}

	if err := s.backend.provider.Send(s.backend.ctx, msg); err != nil {
		slog.Error("failed to deliver message",
			"provider", s.backend.provider.Name(),
			"remote_addr", s.remote,
			"error", err,
		)
		return deliveryError(err)
	}

	slog.Info("message accepted",
		"provider", s.backend.provider.Name(),
		"recipients", len(s.rcpts),
		"size", len(raw),
	)
	return nil
}

func (s *Session) readData(r io.Reader) ([]byte, error) {
	limit := s.backend.maxMessageSize
	if limit <= 0 {
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read message data: %w", err)
		}
		return raw, nil
	}

	raw, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read message data: %w", err)
	}
	if int64(len(raw)) > limit {
		slog.Warn("message exceeds maximum size",
			"remote_addr", s.remote,
			"max_message_size", limit,
		)
		return nil, errMessageTooLarge
	}
	return raw, nil
}

// deliveryError maps a provider failure to a reply. Messages that can never
// form a valid payload are rejected permanently; anything else is transient.
func deliveryError(err error) error {
	if payload.IsStructural(err) {
		return &gosmtp.SMTPError{
			Code:         554,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      err.Error(),
		}
	}
	return &gosmtp.SMTPError{
		Code:         451,
		EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
		Message:      "Delivery failed, try again later",
	}
}

// Reset discards the current transaction. Authentication survives.
func (s *Session) Reset() {
	s.from = nil
	s.rcpts = nil
}

// Logout implements gosmtp.Session.
func (s *Session) Logout() error {
	return nil
}
