package smtp

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"time"

	gosmtp "github.com/emersion/go-smtp"

	"github.com/shineum/sendwire/internal/provider"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 60 * time.Second
)

// ServerConfig holds the configuration for an SMTP server.
type ServerConfig struct {
	// ListenAddr is the address to listen on (e.g., ":2525").
	ListenAddr string

	// Domain is the server hostname used in the greeting and EHLO responses.
	Domain string

	// Provider receives every accepted message.
	Provider provider.Provider

	// AuthUsername and AuthPassword configure SMTP AUTH.
	// If either is empty, authentication is not required.
	AuthUsername string
	AuthPassword string

	// TLSConfig enables STARTTLS. If nil, STARTTLS is not advertised.
	TLSConfig *tls.Config

	// AllowInsecureAuth accepts AUTH before STARTTLS. Without TLS and
	// without this opt-out, AUTH is not offered at all.
	AllowInsecureAuth bool

	// MaxMessageSize caps the DATA payload in bytes. Zero means no limit.
	MaxMessageSize int64

	// MaxRecipients caps RCPT commands per transaction. Zero means no limit.
	MaxRecipients int
}

// Server accepts SMTP connections and hands each message to a Provider.
type Server struct {
	config  ServerConfig
	backend *Backend
	server  *gosmtp.Server
}

// New creates a new SMTP Server with the given configuration.
func New(cfg ServerConfig) *Server {
	if cfg.Domain == "" {
		cfg.Domain = "localhost"
	}

	be := NewBackend(cfg.Provider, NewAuthenticator(cfg.AuthUsername, cfg.AuthPassword), cfg.MaxMessageSize)

	srv := gosmtp.NewServer(be)
	srv.Addr = cfg.ListenAddr
	srv.Domain = cfg.Domain
	srv.ReadTimeout = readTimeout
	srv.WriteTimeout = writeTimeout
	srv.MaxRecipients = cfg.MaxRecipients
	srv.TLSConfig = cfg.TLSConfig
	srv.AllowInsecureAuth = cfg.AllowInsecureAuth

	return &Server{
		config:  cfg,
		backend: be,
		server:  srv,
	}
}

// ListenAndServe listens on the configured address and serves until the
// context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until the context is cancelled. A
// cancelled context is a clean shutdown and returns nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.backend.ctx = ctx

	slog.Info("SMTP server listening",
		"addr", ln.Addr().String(),
		"provider", s.config.Provider.Name(),
		"auth_enabled", s.backend.auth.Enabled(),
		"tls_enabled", s.config.TLSConfig != nil,
		"allow_insecure_auth", s.config.AllowInsecureAuth,
		"max_message_size", s.config.MaxMessageSize,
	)

	go func() {
		<-ctx.Done()
		slog.Info("shutting down SMTP server")
		if err := s.server.Close(); err != nil {
			slog.Warn("failed to close SMTP server", "error", err)
		}
	}()

	err := s.server.Serve(ln)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
