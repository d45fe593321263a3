package generic

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	mail "github.com/wneessen/go-mail"

	"github.com/plugbot/plugbot/internal/email"
)

const ProviderName email.ProviderName = "generic"

type Adapter struct {
	logger *slog.Logger
}

func New(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{logger: log.With(slog.String("adapter", "generic"))}
}

func (a *Adapter) Type() email.ProviderName { return ProviderName }

func (a *Adapter) NormalizeConfig(raw map[string]any) (map[string]any, error) {
	if v, _ := raw["smtp_host"].(string); strings.TrimSpace(v) == "" {
		return nil, fmt.Errorf("smtp_host is required")
	}
	if from, _ := raw["from"].(string); strings.TrimSpace(from) == "" {
		username, _ := raw["username"].(string)
		if strings.TrimSpace(username) == "" {
			return nil, fmt.Errorf("from or username is required")
		}
		raw["from"] = username
	}
	if intVal(raw["smtp_port"], 0) <= 0 {
		raw["smtp_port"] = float64(587)
	}
	if v, _ := raw["smtp_security"].(string); v == "" {
		raw["smtp_security"] = "starttls"
	}
	return raw, nil
}

func (a *Adapter) Send(ctx context.Context, config map[string]any, msg email.OutboundEmail) (string, error) {
	host, _ := config["smtp_host"].(string)
	port := intVal(config["smtp_port"], 587)
	username, _ := config["username"].(string)
	password, _ := config["password"].(string)
	from, _ := config["from"].(string)
	smtpSecurity, _ := config["smtp_security"].(string)

	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return "", fmt.Errorf("set from: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return "", fmt.Errorf("set to: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	m.SetMessageID()

	opts := []mail.Option{mail.WithPort(port)}
	if username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(username),
			mail.WithPassword(password),
		)
	}
	switch smtpSecurity {
	case "tls":
		opts = append(opts, mail.WithSSLPort(false), mail.WithTLSPolicy(mail.TLSMandatory))
	case "starttls":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return "", fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}

	return m.GetMessageID(), nil
}

func intVal(v any, fallback int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return fallback
	}
}
