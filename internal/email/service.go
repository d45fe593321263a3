package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/plugbot/plugbot/internal/config"
)

// ErrNotConfigured is returned when no mail provider is configured.
var ErrNotConfigured = errors.New("email: provider not configured")

// Mailer sends mail through the provider selected in configuration.
type Mailer struct {
	registry *Registry
	provider ProviderName
	config   map[string]any
	logger   *slog.Logger
}

func NewMailer(log *slog.Logger, registry *Registry, cfg config.MailConfig) *Mailer {
	if log == nil {
		log = slog.Default()
	}
	provider := ProviderName(strings.ToLower(strings.TrimSpace(cfg.Provider)))
	if provider == "smtp" {
		provider = "generic"
	}
	return &Mailer{
		registry: registry,
		provider: provider,
		config:   providerConfig(provider, cfg),
		logger:   log.With(slog.String("service", "email")),
	}
}

func providerConfig(provider ProviderName, cfg config.MailConfig) map[string]any {
	switch provider {
	case "mailgun":
		return map[string]any{
			"domain":  cfg.MailgunDomain,
			"api_key": cfg.MailgunAPIKey,
			"region":  cfg.MailgunRegion,
			"from":    cfg.From,
		}
	default:
		return map[string]any{
			"smtp_host":     cfg.SMTPHost,
			"smtp_port":     float64(cfg.SMTPPort),
			"smtp_security": cfg.SMTPSecurity,
			"username":      cfg.SMTPUsername,
			"password":      cfg.SMTPPassword,
			"from":          cfg.From,
		}
	}
}

// Provider reports the configured provider name.
func (m *Mailer) Provider() ProviderName { return m.provider }

// Send delivers msg. The provider config is validated on every call so a
// misconfigured deployment surfaces ErrNotConfigured instead of a dial error.
func (m *Mailer) Send(ctx context.Context, msg OutboundEmail) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("email: no recipients")
	}
	adapter, err := m.registry.Get(m.provider)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	cfg, err := adapter.NormalizeConfig(cloneConfig(m.config))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	sender, err := m.registry.GetSender(m.provider)
	if err != nil {
		return err
	}
	id, err := sender.Send(ctx, cfg, msg)
	if err != nil {
		m.logger.Error("send email failed", slog.String("provider", string(m.provider)), slog.Any("error", err))
		return err
	}
	m.logger.Info("email sent", slog.String("provider", string(m.provider)), slog.String("message_id", id))
	return nil
}

func cloneConfig(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
