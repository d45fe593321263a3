package mailgun

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	mg "github.com/mailgun/mailgun-go/v5"

	"github.com/plugbot/plugbot/internal/email"
)

const ProviderName email.ProviderName = "mailgun"

type Adapter struct {
	logger *slog.Logger
}

func New(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{logger: log.With(slog.String("adapter", "mailgun"))}
}

func (a *Adapter) Type() email.ProviderName { return ProviderName }

func (a *Adapter) NormalizeConfig(raw map[string]any) (map[string]any, error) {
	for _, key := range []string{"domain", "api_key"} {
		if v, _ := raw[key].(string); strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("%s is required", key)
		}
	}
	if v, _ := raw["region"].(string); v == "" {
		raw["region"] = "us"
	}
	if v, _ := raw["from"].(string); strings.TrimSpace(v) == "" {
		domain, _ := raw["domain"].(string)
		raw["from"] = fmt.Sprintf("noreply@%s", domain)
	}
	return raw, nil
}

func newClient(config map[string]any) *mg.Client {
	apiKey, _ := config["api_key"].(string)
	client := mg.NewMailgun(apiKey)
	region, _ := config["region"].(string)
	if region == "eu" {
		client.SetAPIBase(mg.APIBaseEU)
	}
	return client
}

func (a *Adapter) Send(ctx context.Context, config map[string]any, msg email.OutboundEmail) (string, error) {
	client := newClient(config)
	domain, _ := config["domain"].(string)
	from, _ := config["from"].(string)

	m := mg.NewMessage(domain, from, msg.Subject, msg.Body, msg.To...)
	if msg.HTML != "" {
		m.SetHTML(msg.HTML)
	}

	resp, err := client.Send(ctx, m)
	if err != nil {
		return "", fmt.Errorf("mailgun send: %w", err)
	}
	return resp.ID, nil
}
