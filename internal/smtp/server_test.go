package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	netsmtp "net/smtp"
	"net/textproto"
	"testing"
	"time"

	smtptls "github.com/shineum/sendwire/internal/tls"
)

// startServer serves cfg on a loopback port and stops it when the test ends.
func startServer(t *testing.T, cfg ServerConfig) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	srv := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve: got %v, want nil after cancel", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not stop after context cancel")
		}
	})

	return ln.Addr().String()
}

func replyCode(t *testing.T, err error) int {
	t.Helper()
	var tpErr *textproto.Error
	if !errors.As(err, &tpErr) {
		t.Fatalf("error: got %v (%T), want *textproto.Error", err, err)
	}
	return tpErr.Code
}

func sendData(t *testing.T, c *netsmtp.Client, body string) {
	t.Helper()
	w, err := c.Data()
	if err != nil {
		t.Fatalf("DATA: %v", err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		t.Fatalf("write body: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("end DATA: %v", err)
	}
}

func TestServer_EndToEnd(t *testing.T) {
	t.Parallel()

	prov := &mockProvider{}
	addr := startServer(t, ServerConfig{Provider: prov})

	err := netsmtp.SendMail(addr, nil, "bounce@example.com",
		[]string{"rcpt@example.com"}, []byte(simpleMessage))
	if err != nil {
		t.Fatalf("SendMail: %v", err)
	}

	sent := prov.sent()
	if len(sent) != 1 {
		t.Fatalf("sent count: got %d, want 1", len(sent))
	}
	if sent[0].Subject != "Hello" {
		t.Errorf("Subject: got %q, want %q", sent[0].Subject, "Hello")
	}
	env := sent[0].Envelope
	if len(env.Recipients) != 1 || env.Recipients[0].Email != "rcpt@example.com" {
		t.Errorf("Envelope.Recipients: got %+v", env.Recipients)
	}
}

func TestServer_StartTLSBeforeAuth(t *testing.T) {
	t.Parallel()

	cert, err := smtptls.SelfSigned("localhost")
	if err != nil {
		t.Fatalf("failed to generate certificate: %v", err)
	}

	prov := &mockProvider{}
	addr := startServer(t, ServerConfig{
		Provider:     prov,
		TLSConfig:    &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12},
		AuthUsername: "user",
		AuthPassword: "pass",
	})

	c, err := netsmtp.Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); !ok {
		t.Fatal("STARTTLS is not advertised")
	}
	if ok, _ := c.Extension("AUTH"); ok {
		t.Error("AUTH is advertised on a cleartext connection")
	}

	if err := c.StartTLS(&tls.Config{InsecureSkipVerify: true}); err != nil {
		t.Fatalf("STARTTLS: %v", err)
	}
	if ok, _ := c.Extension("AUTH"); !ok {
		t.Fatal("AUTH is not advertised after STARTTLS")
	}

	host, _, _ := net.SplitHostPort(addr)
	if err := c.Auth(netsmtp.PlainAuth("", "user", "pass", host)); err != nil {
		t.Fatalf("AUTH: %v", err)
	}
	if err := c.Mail("sender@example.com"); err != nil {
		t.Fatalf("MAIL: %v", err)
	}
	if err := c.Rcpt("rcpt@example.com"); err != nil {
		t.Fatalf("RCPT: %v", err)
	}
	sendData(t, c, simpleMessage)
	if err := c.Quit(); err != nil {
		t.Errorf("QUIT: %v", err)
	}

	if len(prov.sent()) != 1 {
		t.Errorf("sent count: got %d, want 1", len(prov.sent()))
	}
}

func TestServer_NoCleartextAuthByDefault(t *testing.T) {
	t.Parallel()

	addr := startServer(t, ServerConfig{
		Provider:     &mockProvider{},
		AuthUsername: "user",
		AuthPassword: "pass",
	})

	c, err := netsmtp.Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("AUTH"); ok {
		t.Error("AUTH is advertised without TLS or the insecure opt-out")
	}
	if code := replyCode(t, c.Mail("sender@example.com")); code != 530 {
		t.Errorf("MAIL without AUTH: got %d, want 530", code)
	}
}

func TestServer_AllowInsecureAuth(t *testing.T) {
	t.Parallel()

	addr := startServer(t, ServerConfig{
		Provider:          &mockProvider{},
		AllowInsecureAuth: true,
		AuthUsername:      "user",
		AuthPassword:      "pass",
	})

	c, err := netsmtp.Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("AUTH"); !ok {
		t.Fatal("AUTH is not advertised with the insecure opt-out")
	}
	// PlainAuth permits cleartext only towards a loopback host.
	host, _, _ := net.SplitHostPort(addr)
	if err := c.Auth(netsmtp.PlainAuth("", "user", "pass", host)); err != nil {
		t.Fatalf("AUTH: %v", err)
	}
	if err := c.Mail("sender@example.com"); err != nil {
		t.Errorf("MAIL after AUTH: %v", err)
	}
}

func TestServer_MaxRecipients(t *testing.T) {
	t.Parallel()

	prov := &mockProvider{}
	addr := startServer(t, ServerConfig{Provider: prov, MaxRecipients: 2})

	c, err := netsmtp.Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if err := c.Mail("sender@example.com"); err != nil {
		t.Fatalf("MAIL: %v", err)
	}
	for _, rcpt := range []string{"one@example.com", "two@example.com"} {
		if err := c.Rcpt(rcpt); err != nil {
			t.Fatalf("RCPT %s: %v", rcpt, err)
		}
	}
	if code := replyCode(t, c.Rcpt("three@example.com")); code != 452 {
		t.Errorf("RCPT over the limit: got %d, want 452", code)
	}

	sendData(t, c, simpleMessage)
	if err := c.Quit(); err != nil {
		t.Errorf("QUIT: %v", err)
	}

	sent := prov.sent()
	if len(sent) != 1 {
		t.Fatalf("sent count: got %d, want 1", len(sent))
	}
	if got := len(sent[0].Envelope.Recipients); got != 2 {
		t.Errorf("Envelope.Recipients: got %d, want 2", got)
	}
}
