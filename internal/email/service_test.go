package email

import (
	"context"
	"errors"
	"testing"

	"github.com/plugbot/plugbot/internal/config"
)

type fakeAdapter struct {
	name    ProviderName
	require string
	sent    []OutboundEmail
	config  map[string]any
}

func (f *fakeAdapter) Type() ProviderName { return f.name }

func (f *fakeAdapter) NormalizeConfig(raw map[string]any) (map[string]any, error) {
	if v, _ := raw[f.require].(string); v == "" {
		return nil, errors.New(f.require + " is required")
	}
	return raw, nil
}

func (f *fakeAdapter) Send(_ context.Context, config map[string]any, msg OutboundEmail) (string, error) {
	f.config = config
	f.sent = append(f.sent, msg)
	return "id-1", nil
}

func TestMailerMapsSMTPToGeneric(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{name: "generic", require: "smtp_host"}
	registry := NewRegistry()
	registry.Register(adapter)

	mailer := NewMailer(nil, registry, config.MailConfig{Provider: "smtp", SMTPHost: "smtp.example.com", SMTPPort: 2525, From: "bot@example.com"})
	if mailer.Provider() != "generic" {
		t.Fatalf("expected generic provider, got %s", mailer.Provider())
	}
	err := mailer.Send(context.Background(), OutboundEmail{To: []string{"a@example.com"}, Subject: "s", Body: "b"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(adapter.sent) != 1 || adapter.sent[0].To[0] != "a@example.com" {
		t.Fatalf("unexpected sent messages: %+v", adapter.sent)
	}
	if adapter.config["smtp_port"] != float64(2525) || adapter.config["from"] != "bot@example.com" {
		t.Fatalf("unexpected provider config: %+v", adapter.config)
	}
}

func TestMailerReportsMissingConfig(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.Register(&fakeAdapter{name: "mailgun", require: "domain"})

	mailer := NewMailer(nil, registry, config.MailConfig{Provider: "mailgun"})
	err := mailer.Send(context.Background(), OutboundEmail{To: []string{"a@example.com"}})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}

	unknown := NewMailer(nil, registry, config.MailConfig{Provider: "ses"})
	if err := unknown.Send(context.Background(), OutboundEmail{To: []string{"a@example.com"}}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured for unknown provider, got %v", err)
	}
}
