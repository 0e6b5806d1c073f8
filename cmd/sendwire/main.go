// Package main is the entry point for sendwire. By default it runs the SMTP
// ingress; with -convert it turns .eml files into sending API payloads.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shineum/sendwire/internal/config"
	"github.com/shineum/sendwire/internal/email"
	"github.com/shineum/sendwire/internal/parser"
	"github.com/shineum/sendwire/internal/payload"
	"github.com/shineum/sendwire/internal/provider/stdout"
	"github.com/shineum/sendwire/internal/smtp"
	smtptls "github.com/shineum/sendwire/internal/tls"
)

func main() {
	configPath := flag.String("config", "", "path to YAML or TOML configuration file (optional)")
	convert := flag.Bool("convert", false, "convert the .eml files given as arguments and exit")
	batch := flag.Bool("batch", false, "with -convert, emit a single batch payload")
	basePath := flag.String("base", "", "with -convert -batch, .eml file used as the batch base")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Logging.Level)

	out := stdout.New(cfg.Output.Indent)

	if *convert {
		if err := runConvert(out, flag.Args(), *batch, *basePath); err != nil {
			slog.Error("conversion failed", "error", err)
			os.Exit(1)
		}
		return
	}

	tlsConfig, err := smtptls.LoadOrGenerate(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.SMTP.Domain)
	if err != nil {
		slog.Error("failed to setup TLS", "error", err)
		os.Exit(1)
	}

	tlsMode := "self-signed"
	if cfg.TLS.CertFile != "" {
		tlsMode = "file"
	}

	server := smtp.New(smtp.ServerConfig{
		ListenAddr:        cfg.SMTP.Listen,
		Domain:            cfg.SMTP.Domain,
		Provider:          out,
		TLSConfig:         tlsConfig,
		AllowInsecureAuth: cfg.SMTP.AllowInsecureAuth,
		AuthUsername:      cfg.SMTP.Username,
		AuthPassword:      cfg.SMTP.Password,
		MaxMessageSize:    cfg.SMTP.MaxMessageSize,
		MaxRecipients:     cfg.SMTP.MaxRecipients,
	})

	slog.Info("starting sendwire",
		"listen", cfg.SMTP.Listen,
		"domain", cfg.SMTP.Domain,
		"auth_enabled", cfg.AuthEnabled(),
		"tls_mode", tlsMode,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		slog.Info("received signal, initiating shutdown", "signal", sig)
		cancel()
	}()

	if err := server.ListenAndServe(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("sendwire stopped")
}

// runConvert parses each file and writes its payload. In batch mode all files
// become requests of one batch, optionally sharing the base message.
func runConvert(out *stdout.Provider, paths []string, batch bool, basePath string) error {
	if len(paths) == 0 && !batch {
		return fmt.Errorf("no input files")
	}

	messages := make([]*email.Message, 0, len(paths))
	for _, path := range paths {
		msg, err := parseFile(path)
		if err != nil {
			return err
		}
		messages = append(messages, msg)
	}

	if !batch {
		if basePath != "" {
			return fmt.Errorf("-base requires -batch")
		}
		for i, msg := range messages {
			if err := out.Send(context.Background(), msg); err != nil {
				return fmt.Errorf("failed to convert %s: %w", paths[i], err)
			}
		}
		return nil
	}

	var base *email.Message
	if basePath != "" {
		msg, err := parseFile(basePath)
		if err != nil {
			return err
		}
		base = msg
	}

	b, err := payload.BuildBatch(messages, base)
	if err != nil {
		return fmt.Errorf("failed to build batch: %w", err)
	}
	return out.WriteBatch(b)
}

func parseFile(path string) (*email.Message, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	msg, err := parser.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return msg, nil
}

// loadConfig loads configuration from the specified path (file + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output on stderr,
// keeping stdout free for payloads.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
