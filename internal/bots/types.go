package bots

import (
	"strings"
	"time"

	"github.com/plugbot/plugbot/internal/secrets"
)

const (
	ResponseModeStreaming = "streaming"
	ResponseModeBlocking  = "blocking"
)

const (
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
	HealthUnknown   = "unknown"
)

const (
	DifyTypeChat     = "chat"
	DifyTypeAgent    = "agent"
	DifyTypeChatflow = "chatflow"
	DifyTypeWorkflow = "workflow"
)

// Bot is a configured bridge with credentials already decrypted.
type Bot struct {
	ID                       string    `json:"id"`
	Name                     string    `json:"name"`
	Description              string    `json:"description"`
	DifyEndpoint             string    `json:"dify_endpoint"`
	DifyAPIKey               string    `json:"dify_api_key,omitempty"`
	DifyType                 string    `json:"dify_type"`
	TelegramBotToken         string    `json:"telegram_bot_token,omitempty"`
	TelegramBotUsername      string    `json:"telegram_bot_username,omitempty"`
	TelegramMarkdownEnabled  bool      `json:"telegram_markdown_enabled"`
	DiscordBotToken          string    `json:"discord_bot_token,omitempty"`
	DiscordMarkdownEnabled   bool      `json:"discord_markdown_enabled"`
	ResponseMode             string    `json:"response_mode"`
	MaxTokens                int       `json:"max_tokens"`
	Temperature              float64   `json:"temperature"`
	AutoGenerateTitle        bool      `json:"auto_generate_title"`
	EnableFileUpload         bool      `json:"enable_file_upload"`
	IsActive                 bool      `json:"is_active"`
	AuthRequired             bool      `json:"auth_required"`
	AllowedEmailDomains      []string  `json:"allowed_email_domains"`
	AuthEmailSubjectTemplate string    `json:"auth_email_subject_template,omitempty"`
	AuthEmailBodyTemplate    string    `json:"auth_email_body_template,omitempty"`
	AuthEmailHTMLTemplate    string    `json:"auth_email_html_template,omitempty"`
	IsTelegramConnected      bool      `json:"is_telegram_connected"`
	IsDiscordConnected       bool      `json:"is_discord_connected"`
	HealthStatus             string    `json:"health_status"`
	LastHealthCheck          time.Time `json:"last_health_check,omitempty"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

func (b Bot) HasTelegram() bool { return strings.TrimSpace(b.TelegramBotToken) != "" }
func (b Bot) HasDiscord() bool  { return strings.TrimSpace(b.DiscordBotToken) != "" }

func (b Bot) Streaming() bool { return b.ResponseMode != ResponseModeBlocking }

// Redacted returns a copy safe to expose over the management API.
func (b Bot) Redacted() Bot {
	b.DifyAPIKey = secrets.Mask(b.DifyAPIKey)
	b.TelegramBotToken = secrets.Mask(b.TelegramBotToken)
	b.DiscordBotToken = secrets.Mask(b.DiscordBotToken)
	return b
}

// CreateBotRequest is the payload for creating a bot.
type CreateBotRequest struct {
	Name                     string   `json:"name" validate:"required,max=255"`
	Description              string   `json:"description"`
	DifyEndpoint             string   `json:"dify_endpoint" validate:"required,http_url"`
	DifyAPIKey               string   `json:"dify_api_key" validate:"required"`
	DifyType                 string   `json:"dify_type" validate:"omitempty,oneof=chat agent chatflow workflow"`
	TelegramBotToken         string   `json:"telegram_bot_token"`
	TelegramBotUsername      string   `json:"telegram_bot_username"`
	TelegramMarkdownEnabled  bool     `json:"telegram_markdown_enabled"`
	DiscordBotToken          string   `json:"discord_bot_token"`
	DiscordMarkdownEnabled   bool     `json:"discord_markdown_enabled"`
	ResponseMode             string   `json:"response_mode" validate:"omitempty,oneof=streaming blocking"`
	MaxTokens                int      `json:"max_tokens" validate:"omitempty,min=100,max=10000"`
	Temperature              *float64 `json:"temperature" validate:"omitempty,min=0,max=10"`
	AutoGenerateTitle        *bool    `json:"auto_generate_title"`
	EnableFileUpload         *bool    `json:"enable_file_upload"`
	IsActive                 *bool    `json:"is_active"`
	AuthRequired             bool     `json:"auth_required"`
	AllowedEmailDomains      []string `json:"allowed_email_domains" validate:"dive,fqdn"`
	AuthEmailSubjectTemplate string   `json:"auth_email_subject_template"`
	AuthEmailBodyTemplate    string   `json:"auth_email_body_template"`
	AuthEmailHTMLTemplate    string   `json:"auth_email_html_template"`
}

// UpdateBotRequest is a partial update. Nil fields are left untouched and blank
// secrets keep the stored value; use the Remove flags to drop a transport.
// A nil AllowedEmailDomains is untouched, an empty one clears the list.
type UpdateBotRequest struct {
	Name                     *string   `json:"name" validate:"omitempty,max=255"`
	Description              *string   `json:"description"`
	DifyEndpoint             *string   `json:"dify_endpoint" validate:"omitempty,http_url"`
	DifyAPIKey               *string   `json:"dify_api_key"`
	DifyType                 *string   `json:"dify_type" validate:"omitempty,oneof=chat agent chatflow workflow"`
	TelegramBotToken         *string   `json:"telegram_bot_token"`
	TelegramBotUsername      *string   `json:"telegram_bot_username"`
	TelegramMarkdownEnabled  *bool     `json:"telegram_markdown_enabled"`
	RemoveTelegram           bool      `json:"remove_telegram"`
	DiscordBotToken          *string   `json:"discord_bot_token"`
	DiscordMarkdownEnabled   *bool     `json:"discord_markdown_enabled"`
	RemoveDiscord            bool      `json:"remove_discord"`
	ResponseMode             *string   `json:"response_mode" validate:"omitempty,oneof=streaming blocking"`
	MaxTokens                *int      `json:"max_tokens" validate:"omitempty,min=100,max=10000"`
	Temperature              *float64  `json:"temperature" validate:"omitempty,min=0,max=10"`
	AutoGenerateTitle        *bool     `json:"auto_generate_title"`
	EnableFileUpload         *bool     `json:"enable_file_upload"`
	IsActive                 *bool     `json:"is_active"`
	AuthRequired             *bool     `json:"auth_required"`
	AllowedEmailDomains      []string  `json:"allowed_email_domains" validate:"omitempty,dive,fqdn"`
	AuthEmailSubjectTemplate *string   `json:"auth_email_subject_template"`
	AuthEmailBodyTemplate    *string   `json:"auth_email_body_template"`
	AuthEmailHTMLTemplate    *string   `json:"auth_email_html_template"`
}

// UpdateResult reports the updated bot and whether running units must be restarted.
type UpdateResult struct {
	Bot                Bot
	CredentialsChanged bool
}

// HealthUpdate is persisted on every lifecycle transition and health sweep.
// Nil connectivity flags keep the stored value.
type HealthUpdate struct {
	Status            string
	CheckedAt         time.Time
	TelegramConnected *bool
	DiscordConnected  *bool
}
