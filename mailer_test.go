package main

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

type captureProvider struct {
	lastMsg Message
}

func (c *captureProvider) Name() string { return "capture" }

func (c *captureProvider) Send(msg Message) (SendResult, error) {
	c.lastMsg = msg
	return SendResult{ProviderMessageID: "capture-1"}, nil
}

func TestMailerAppliesDefaultFrom(t *testing.T) {
	provider := &captureProvider{}
	mailer := NewMailer(provider, "PKH Dinas Sosial <noreply@pkh.example.id>")

	result, err := mailer.Send(Message{
		To:      []string{"operator@example.com"},
		Subject: "Export selesai",
		HTML:    "<p>hi</p>",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.ProviderMessageID != "capture-1" {
		t.Fatalf("unexpected message id %q", result.ProviderMessageID)
	}
	if provider.lastMsg.From != "PKH Dinas Sosial <noreply@pkh.example.id>" {
		t.Fatalf("expected default from to be applied, got %q", provider.lastMsg.From)
	}

	if _, err := mailer.Send(Message{From: "custom@pkh.example.id", To: []string{"x@example.com"}}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if provider.lastMsg.From != "custom@pkh.example.id" {
		t.Fatalf("explicit from must win, got %q", provider.lastMsg.From)
	}
}

func TestLogProviderSend(t *testing.T) {
	provider := NewLogProvider(slog.New(slog.NewTextHandler(io.Discard, nil)))

	result, err := provider.Send(Message{
		From:    "noreply@pkh.example.id",
		To:      []string{"operator@example.com"},
		Subject: "Export selesai",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.HasPrefix(result.ProviderMessageID, "log-") {
		t.Fatalf("expected fake log message id, got %q", result.ProviderMessageID)
	}
	if provider.Name() != "log" {
		t.Fatalf("unexpected provider name %q", provider.Name())
	}
}
