package bots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"

	"github.com/plugbot/plugbot/internal/db"
	"github.com/plugbot/plugbot/internal/db/sqlc"
	"github.com/plugbot/plugbot/internal/secrets"
)

const (
	defaultMaxTokens   = 2000
	defaultTemperature = 0.7
)

var (
	ErrBotNotFound  = errors.New("bot not found")
	ErrBotNameTaken = errors.New("bot with this name already exists")
	ErrInvalidBot   = errors.New("invalid bot")
)

// Service provides bot CRUD, credential encryption and health persistence.
type Service struct {
	queries  *sqlc.Queries
	box      *secrets.Box
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService creates a new bot service.
func NewService(log *slog.Logger, queries *sqlc.Queries, box *secrets.Box) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		queries:  queries,
		box:      box,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   log.With(slog.String("service", "bots")),
	}
}

// Create validates the request, seals its secrets and inserts the bot.
func (s *Service) Create(ctx context.Context, req CreateBotRequest) (Bot, error) {
	if s.queries == nil {
		return Bot{}, fmt.Errorf("bot queries not configured")
	}
	req.Name = strings.TrimSpace(req.Name)
	req.DifyEndpoint = normalizeEndpoint(req.DifyEndpoint)
	req.AllowedEmailDomains = normalizeDomains(req.AllowedEmailDomains)
	if err := s.validate.Struct(req); err != nil {
		return Bot{}, fmt.Errorf("%w: %v", ErrInvalidBot, err)
	}

	difyKey, err := s.seal(req.DifyAPIKey)
	if err != nil {
		return Bot{}, err
	}
	telegramToken, err := s.seal(strings.TrimSpace(req.TelegramBotToken))
	if err != nil {
		return Bot{}, err
	}
	discordToken, err := s.seal(strings.TrimSpace(req.DiscordBotToken))
	if err != nil {
		return Bot{}, err
	}

	row, err := s.queries.CreateBot(ctx, sqlc.CreateBotParams{
		ID:                       db.NewUUID(),
		Name:                     req.Name,
		Description:              strings.TrimSpace(req.Description),
		DifyEndpoint:             req.DifyEndpoint,
		DifyApiKey:               difyKey,
		DifyType:                 firstNonEmpty(req.DifyType, DifyTypeChat),
		TelegramBotToken:         db.Text(telegramToken),
		TelegramBotUsername:      db.Text(strings.TrimPrefix(strings.TrimSpace(req.TelegramBotUsername), "@")),
		TelegramMarkdownEnabled:  req.TelegramMarkdownEnabled,
		DiscordBotToken:          db.Text(discordToken),
		DiscordMarkdownEnabled:   req.DiscordMarkdownEnabled,
		ResponseMode:             firstNonEmpty(req.ResponseMode, ResponseModeStreaming),
		MaxTokens:                int32(intOr(req.MaxTokens, defaultMaxTokens)),
		Temperature:              floatOr(req.Temperature, defaultTemperature),
		AutoGenerateTitle:        boolOr(req.AutoGenerateTitle, true),
		EnableFileUpload:         boolOr(req.EnableFileUpload, true),
		IsActive:                 boolOr(req.IsActive, true),
		AuthRequired:             req.AuthRequired,
		AllowedEmailDomains:      strings.Join(req.AllowedEmailDomains, ","),
		AuthEmailSubjectTemplate: db.Text(req.AuthEmailSubjectTemplate),
		AuthEmailBodyTemplate:    db.Text(req.AuthEmailBodyTemplate),
		AuthEmailHtmlTemplate:    db.Text(req.AuthEmailHTMLTemplate),
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Bot{}, ErrBotNameTaken
		}
		return Bot{}, fmt.Errorf("create bot: %w", err)
	}
	s.logger.Info("bot created", slog.String("bot_id", db.UUIDString(row.ID)), slog.String("name", row.Name))
	return s.toBot(row)
}

// Get returns a bot by id with decrypted credentials.
func (s *Service) Get(ctx context.Context, botID string) (Bot, error) {
	row, err := s.getRow(ctx, botID)
	if err != nil {
		return Bot{}, err
	}
	return s.toBot(row)
}

// List returns all bots, newest first.
func (s *Service) List(ctx context.Context) ([]Bot, error) {
	if s.queries == nil {
		return nil, fmt.Errorf("bot queries not configured")
	}
	rows, err := s.queries.ListBots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	return s.toBots(rows)
}

// ListActive returns bots flagged is_active.
func (s *Service) ListActive(ctx context.Context) ([]Bot, error) {
	if s.queries == nil {
		return nil, fmt.Errorf("bot queries not configured")
	}
	rows, err := s.queries.ListActiveBots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active bots: %w", err)
	}
	return s.toBots(rows)
}

// Update applies a partial update. Blank secrets keep the stored ciphertext.
func (s *Service) Update(ctx context.Context, botID string, req UpdateBotRequest) (UpdateResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return UpdateResult{}, fmt.Errorf("%w: %v", ErrInvalidBot, err)
	}
	current, err := s.getRow(ctx, botID)
	if err != nil {
		return UpdateResult{}, err
	}
	params := paramsFromRow(current)
	changed := false

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return UpdateResult{}, fmt.Errorf("%w: name cannot be empty", ErrInvalidBot)
		}
		params.Name = name
	}
	if req.Description != nil {
		params.Description = strings.TrimSpace(*req.Description)
	}
	if req.DifyEndpoint != nil {
		if endpoint := normalizeEndpoint(*req.DifyEndpoint); endpoint != "" && endpoint != params.DifyEndpoint {
			params.DifyEndpoint = endpoint
			changed = true
		}
	}
	if sealed, ok, err := s.sealIfSet(req.DifyAPIKey); err != nil {
		return UpdateResult{}, err
	} else if ok {
		params.DifyApiKey = sealed
		changed = true
	}
	if req.DifyType != nil && *req.DifyType != "" {
		params.DifyType = *req.DifyType
	}

	if req.RemoveTelegram {
		changed = changed || params.TelegramBotToken.Valid
		params.TelegramBotToken = db.Text("")
		params.TelegramBotUsername = db.Text("")
	} else if sealed, ok, err := s.sealIfSet(req.TelegramBotToken); err != nil {
		return UpdateResult{}, err
	} else if ok {
		params.TelegramBotToken = db.Text(sealed)
		changed = true
	}
	if req.TelegramBotUsername != nil {
		params.TelegramBotUsername = db.Text(strings.TrimPrefix(strings.TrimSpace(*req.TelegramBotUsername), "@"))
	}
	if req.TelegramMarkdownEnabled != nil {
		params.TelegramMarkdownEnabled = *req.TelegramMarkdownEnabled
	}

	if req.RemoveDiscord {
		changed = changed || params.DiscordBotToken.Valid
		params.DiscordBotToken = db.Text("")
	} else if sealed, ok, err := s.sealIfSet(req.DiscordBotToken); err != nil {
		return UpdateResult{}, err
	} else if ok {
		params.DiscordBotToken = db.Text(sealed)
		changed = true
	}
	if req.DiscordMarkdownEnabled != nil {
		params.DiscordMarkdownEnabled = *req.DiscordMarkdownEnabled
	}

	if req.ResponseMode != nil && *req.ResponseMode != "" {
		params.ResponseMode = *req.ResponseMode
	}
	if req.MaxTokens != nil {
		params.MaxTokens = int32(*req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = *req.Temperature
	}
	if req.AutoGenerateTitle != nil {
		params.AutoGenerateTitle = *req.AutoGenerateTitle
	}
	if req.EnableFileUpload != nil {
		params.EnableFileUpload = *req.EnableFileUpload
	}
	if req.IsActive != nil {
		params.IsActive = *req.IsActive
	}
	if req.AuthRequired != nil {
		params.AuthRequired = *req.AuthRequired
	}
	if req.AllowedEmailDomains != nil {
		params.AllowedEmailDomains = strings.Join(normalizeDomains(req.AllowedEmailDomains), ",")
	}
	if req.AuthEmailSubjectTemplate != nil {
		params.AuthEmailSubjectTemplate = db.Text(*req.AuthEmailSubjectTemplate)
	}
	if req.AuthEmailBodyTemplate != nil {
		params.AuthEmailBodyTemplate = db.Text(*req.AuthEmailBodyTemplate)
	}
	if req.AuthEmailHTMLTemplate != nil {
		params.AuthEmailHtmlTemplate = db.Text(*req.AuthEmailHTMLTemplate)
	}

	row, err := s.queries.UpdateBot(ctx, params)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UpdateResult{}, ErrBotNotFound
		}
		if db.IsUniqueViolation(err) {
			return UpdateResult{}, ErrBotNameTaken
		}
		return UpdateResult{}, fmt.Errorf("update bot: %w", err)
	}
	bot, err := s.toBot(row)
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Bot: bot, CredentialsChanged: changed}, nil
}

// Delete removes a bot; conversations, messages and codes cascade.
func (s *Service) Delete(ctx context.Context, botID string) error {
	id, err := db.ParseUUID(botID)
	if err != nil {
		return ErrBotNotFound
	}
	if _, err := s.getRow(ctx, botID); err != nil {
		return err
	}
	if err := s.queries.DeleteBot(ctx, id); err != nil {
		return fmt.Errorf("delete bot: %w", err)
	}
	s.logger.Info("bot deleted", slog.String("bot_id", botID))
	return nil
}

// UpdateHealth persists connectivity and health fields.
func (s *Service) UpdateHealth(ctx context.Context, botID string, update HealthUpdate) error {
	if s.queries == nil {
		return fmt.Errorf("bot queries not configured")
	}
	id, err := db.ParseUUID(botID)
	if err != nil {
		return ErrBotNotFound
	}
	checkedAt := update.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = time.Now().UTC()
	}
	status := firstNonEmpty(update.Status, HealthUnknown)
	if err := s.queries.UpdateBotHealth(ctx, sqlc.UpdateBotHealthParams{
		ID:                id,
		HealthStatus:      status,
		LastHealthCheck:   db.Timestamptz(checkedAt),
		TelegramConnected: db.Bool(update.TelegramConnected),
		DiscordConnected:  db.Bool(update.DiscordConnected),
	}); err != nil {
		return fmt.Errorf("update bot health: %w", err)
	}
	return nil
}

func (s *Service) getRow(ctx context.Context, botID string) (sqlc.Bot, error) {
	if s.queries == nil {
		return sqlc.Bot{}, fmt.Errorf("bot queries not configured")
	}
	id, err := db.ParseUUID(botID)
	if err != nil {
		return sqlc.Bot{}, ErrBotNotFound
	}
	row, err := s.queries.GetBotByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sqlc.Bot{}, ErrBotNotFound
		}
		return sqlc.Bot{}, fmt.Errorf("get bot: %w", err)
	}
	return row, nil
}

func (s *Service) seal(value string) (string, error) {
	if value == "" || s.box == nil {
		return value, nil
	}
	sealed, err := s.box.Seal(value)
	if err != nil {
		return "", fmt.Errorf("seal credential: %w", err)
	}
	return sealed, nil
}

func (s *Service) sealIfSet(value *string) (string, bool, error) {
	if value == nil {
		return "", false, nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return "", false, nil
	}
	sealed, err := s.seal(trimmed)
	if err != nil {
		return "", false, err
	}
	return sealed, true, nil
}

func (s *Service) open(value string) (string, error) {
	if value == "" || s.box == nil {
		return value, nil
	}
	return s.box.Open(value)
}

func (s *Service) toBots(rows []sqlc.Bot) ([]Bot, error) {
	items := make([]Bot, 0, len(rows))
	for _, row := range rows {
		bot, err := s.toBot(row)
		if err != nil {
			s.logger.Warn("skip bot with unreadable credentials", slog.String("bot_id", db.UUIDString(row.ID)), slog.Any("error", err))
			continue
		}
		items = append(items, bot)
	}
	return items, nil
}

func (s *Service) toBot(row sqlc.Bot) (Bot, error) {
	difyKey, err := s.open(row.DifyApiKey)
	if err != nil {
		return Bot{}, err
	}
	telegramToken, err := s.open(db.TextValue(row.TelegramBotToken))
	if err != nil {
		return Bot{}, err
	}
	discordToken, err := s.open(db.TextValue(row.DiscordBotToken))
	if err != nil {
		return Bot{}, err
	}
	return Bot{
		ID:                       db.UUIDString(row.ID),
		Name:                     row.Name,
		Description:              row.Description,
		DifyEndpoint:             row.DifyEndpoint,
		DifyAPIKey:               difyKey,
		DifyType:                 row.DifyType,
		TelegramBotToken:         telegramToken,
		TelegramBotUsername:      db.TextValue(row.TelegramBotUsername),
		TelegramMarkdownEnabled:  row.TelegramMarkdownEnabled,
		DiscordBotToken:          discordToken,
		DiscordMarkdownEnabled:   row.DiscordMarkdownEnabled,
		ResponseMode:             row.ResponseMode,
		MaxTokens:                int(row.MaxTokens),
		Temperature:              row.Temperature,
		AutoGenerateTitle:        row.AutoGenerateTitle,
		EnableFileUpload:         row.EnableFileUpload,
		IsActive:                 row.IsActive,
		AuthRequired:             row.AuthRequired,
		AllowedEmailDomains:      splitDomains(row.AllowedEmailDomains),
		AuthEmailSubjectTemplate: db.TextValue(row.AuthEmailSubjectTemplate),
		AuthEmailBodyTemplate:    db.TextValue(row.AuthEmailBodyTemplate),
		AuthEmailHTMLTemplate:    db.TextValue(row.AuthEmailHtmlTemplate),
		IsTelegramConnected:      row.IsTelegramConnected,
		IsDiscordConnected:       row.IsDiscordConnected,
		HealthStatus:             row.HealthStatus,
		LastHealthCheck:          db.TimeValue(row.LastHealthCheck),
		CreatedAt:                db.TimeValue(row.CreatedAt),
		UpdatedAt:                db.TimeValue(row.UpdatedAt),
	}, nil
}

func paramsFromRow(row sqlc.Bot) sqlc.UpdateBotParams {
	return sqlc.UpdateBotParams{
		ID:                       row.ID,
		Name:                     row.Name,
		Description:              row.Description,
		DifyEndpoint:             row.DifyEndpoint,
		DifyApiKey:               row.DifyApiKey,
		DifyType:                 row.DifyType,
		TelegramBotToken:         row.TelegramBotToken,
		TelegramBotUsername:      row.TelegramBotUsername,
		TelegramMarkdownEnabled:  row.TelegramMarkdownEnabled,
		DiscordBotToken:          row.DiscordBotToken,
		DiscordMarkdownEnabled:   row.DiscordMarkdownEnabled,
		ResponseMode:             row.ResponseMode,
		MaxTokens:                row.MaxTokens,
		Temperature:              row.Temperature,
		AutoGenerateTitle:        row.AutoGenerateTitle,
		EnableFileUpload:         row.EnableFileUpload,
		IsActive:                 row.IsActive,
		AuthRequired:             row.AuthRequired,
		AllowedEmailDomains:      row.AllowedEmailDomains,
		AuthEmailSubjectTemplate: row.AuthEmailSubjectTemplate,
		AuthEmailBodyTemplate:    row.AuthEmailBodyTemplate,
		AuthEmailHtmlTemplate:    row.AuthEmailHtmlTemplate,
	}
}

func normalizeEndpoint(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

func normalizeDomains(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		domain := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(item), "@"))
		if domain == "" {
			continue
		}
		if _, ok := seen[domain]; ok {
			continue
		}
		seen[domain] = struct{}{}
		out = append(out, domain)
	}
	return out
}

func splitDomains(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	return normalizeDomains(strings.Split(raw, ","))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func intOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func floatOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
