package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shineum/sendwire/internal/payload"
	"github.com/shineum/sendwire/internal/provider/stdout"
)

func writeEML(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestRunConvert_Single(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeEML(t, dir, "a.eml", "From: sender@example.com\r\nTo: to@example.com\r\nSubject: Hi\r\n\r\nBody")

	var buf bytes.Buffer
	if err := runConvert(stdout.NewWithWriter(&buf, false), []string{path}, false, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"from":{"email":"sender@example.com"},"to":[{"email":"to@example.com"}],"subject":"Hi","text":"Body"}` + "\n"
	if buf.String() != want {
		t.Errorf("output:\n got %s\nwant %s", buf.String(), want)
	}
}

func TestRunConvert_Batch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := writeEML(t, dir, "a.eml", "To: a@example.com\r\n\r\n")
	b := writeEML(t, dir, "b.eml", "To: b@example.com\r\n\r\n")
	base := writeEML(t, dir, "base.eml", "From: sender@example.com\r\nSubject: Shared\r\n\r\n")

	var buf bytes.Buffer
	if err := runConvert(stdout.NewWithWriter(&buf, false), []string{a, b}, true, base); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"base":{"from":{"email":"sender@example.com"},"subject":"Shared"},"requests":[{"to":[{"email":"a@example.com"}]},{"to":[{"email":"b@example.com"}]}]}` + "\n"
	if buf.String() != want {
		t.Errorf("output:\n got %s\nwant %s", buf.String(), want)
	}
}

func TestRunConvert_BaseWithRecipients(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := writeEML(t, dir, "a.eml", "To: a@example.com\r\n\r\n")
	base := writeEML(t, dir, "base.eml", "To: everyone@example.com\r\n\r\n")

	var buf bytes.Buffer
	err := runConvert(stdout.NewWithWriter(&buf, false), []string{a}, true, base)
	if !errors.Is(err, payload.ErrBaseHasRecipients) {
		t.Fatalf("error: got %v, want %v", err, payload.ErrBaseHasRecipients)
	}
	if buf.Len() != 0 {
		t.Errorf("nothing should be written on error, got %q", buf.String())
	}
}

func TestRunConvert_Errors(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	out := stdout.NewWithWriter(&buf, false)

	if err := runConvert(out, nil, false, ""); err == nil {
		t.Error("expected error for no input files, got nil")
	}
	if err := runConvert(out, []string{"/nonexistent/a.eml"}, false, ""); err == nil || !strings.Contains(err.Error(), "/nonexistent/a.eml") {
		t.Errorf("missing file error: got %v", err)
	}

	path := writeEML(t, t.TempDir(), "a.eml", "To: a@example.com\r\n\r\n")
	if err := runConvert(out, []string{path}, false, path); err == nil {
		t.Error("expected error for -base without -batch, got nil")
	}
}
