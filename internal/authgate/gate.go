// Package authgate implements the per-user email one-time-code flow that
// guards bots with auth_required set.
package authgate

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/plugbot/plugbot/internal/bots"
	"github.com/plugbot/plugbot/internal/db"
	"github.com/plugbot/plugbot/internal/db/sqlc"
	"github.com/plugbot/plugbot/internal/email"
	"github.com/plugbot/plugbot/internal/i18n"
	"github.com/plugbot/plugbot/internal/session"
	"github.com/plugbot/plugbot/internal/telemetry"
)

const (
	CodeTTL    = 5 * time.Minute
	PendingTTL = 300 * time.Second
)

var (
	codePattern  = regexp.MustCompile(`^\d{6}$`)
	emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
)

// ErrMailNotConfigured is returned by Check when a code cannot be mailed
// because no mail provider is available. The user has already been told.
var ErrMailNotConfigured = email.ErrNotConfigured

// CodeStore persists one-time codes. *sqlc.Queries satisfies it.
type CodeStore interface {
	CreateAuthCode(ctx context.Context, arg sqlc.CreateAuthCodeParams) (sqlc.AuthCode, error)
	FindValidAuthCode(ctx context.Context, arg sqlc.FindValidAuthCodeParams) (sqlc.AuthCode, error)
	MarkAuthCodeUsed(ctx context.Context, arg sqlc.MarkAuthCodeUsedParams) (int64, error)
}

// Mailer delivers the code email.
type Mailer interface {
	Send(ctx context.Context, msg email.OutboundEmail) error
}

// Reply sends a text back to the user who triggered the check.
type Reply func(ctx context.Context, text string) error

// Request is a single inbound text from an end user.
type Request struct {
	UserID string
	Lang   string
	Text   string
}

type pendingState struct {
	Email    string    `json:"email"`
	IssuedAt time.Time `json:"issued_at"`
}

type authState struct {
	Email string `json:"email"`
}

type Gate struct {
	store   session.Store
	codes   CodeStore
	mailer  Mailer
	catalog *i18n.Catalog
	logger  *slog.Logger
	now     func() time.Time
	random  io.Reader
}

func NewGate(log *slog.Logger, store session.Store, codes CodeStore, mailer Mailer, catalog *i18n.Catalog) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{
		store:   store,
		codes:   codes,
		mailer:  mailer,
		catalog: catalog,
		logger:  log.With(slog.String("component", "authgate")),
		now:     time.Now,
		random:  rand.Reader,
	}
}

// expiredCodeDeleter is implemented by *sqlc.Queries.
type expiredCodeDeleter interface {
	DeleteExpiredAuthCodes(ctx context.Context, expiresAt pgtype.Timestamptz) (int64, error)
}

// PruneExpired deletes one-time codes that can no longer be redeemed.
func (g *Gate) PruneExpired(ctx context.Context) (int64, error) {
	deleter, ok := g.codes.(expiredCodeDeleter)
	if !ok {
		return 0, nil
	}
	n, err := deleter.DeleteExpiredAuthCodes(ctx, db.Timestamptz(g.now().UTC()))
	if err != nil {
		return 0, fmt.Errorf("prune expired codes: %w", err)
	}
	if n > 0 {
		g.logger.Debug("expired codes pruned", slog.Int64("count", n))
	}
	return n, nil
}

// Check decides whether req may reach the conversation. When it returns
// false the gate has already replied to the user.
func (g *Gate) Check(ctx context.Context, bot bots.Bot, req Request, reply Reply) (bool, error) {
	if !bot.AuthRequired {
		telemetry.RecordAuth("not_required")
		return true, nil
	}
	ok, err := g.IsAuthenticated(ctx, bot.ID, req.UserID)
	if err != nil {
		return false, fmt.Errorf("read auth state: %w", err)
	}
	if ok {
		telemetry.RecordAuth("authenticated")
		return true, nil
	}

	text := strings.TrimSpace(req.Text)
	switch {
	case codePattern.MatchString(text):
		return false, g.verifyCode(ctx, bot, req, text, reply)
	case emailPattern.MatchString(text):
		return false, g.issueCode(ctx, bot, req, text, reply)
	default:
		telemetry.RecordAuth("prompted")
		return false, reply(ctx, g.prompt(bot, req.Lang))
	}
}

// IsAuthenticated reports whether the user holds an authenticated session.
func (g *Gate) IsAuthenticated(ctx context.Context, botID, userID string) (bool, error) {
	_, ok, err := g.store.Get(ctx, session.AuthKey(botID, userID))
	return ok, err
}

// Logout drops both the authenticated and the pending state.
func (g *Gate) Logout(ctx context.Context, botID, userID string) error {
	return g.store.Delete(ctx, session.AuthKey(botID, userID), session.PendingKey(botID, userID))
}

func (g *Gate) verifyCode(ctx context.Context, bot bots.Bot, req Request, code string, reply Reply) error {
	botID, err := db.ParseUUID(bot.ID)
	if err != nil {
		return err
	}
	pending, err := g.pending(ctx, bot.ID, req.UserID)
	if err != nil {
		return err
	}
	now := g.now()
	row, err := g.codes.FindValidAuthCode(ctx, sqlc.FindValidAuthCodeParams{
		BotID: botID,
		Code:  code,
		Now:   db.Timestamptz(now),
		Email: db.Text(pending.Email),
	})
	if errors.Is(err, pgx.ErrNoRows) {
		telemetry.RecordAuth("invalid_code")
		return reply(ctx, g.catalog.T(req.Lang, "auth.invalid_code", nil))
	}
	if err != nil {
		return fmt.Errorf("find auth code: %w", err)
	}
	n, err := g.codes.MarkAuthCodeUsed(ctx, sqlc.MarkAuthCodeUsedParams{ID: row.ID, UsedAt: db.Timestamptz(now)})
	if err != nil {
		return fmt.Errorf("mark auth code used: %w", err)
	}
	if n == 0 {
		// Consumed concurrently.
		telemetry.RecordAuth("invalid_code")
		return reply(ctx, g.catalog.T(req.Lang, "auth.invalid_code", nil))
	}
	state, _ := json.Marshal(authState{Email: row.Email})
	if err := g.store.Set(ctx, session.AuthKey(bot.ID, req.UserID), string(state), 0); err != nil {
		return fmt.Errorf("store auth state: %w", err)
	}
	if err := g.store.Delete(ctx, session.PendingKey(bot.ID, req.UserID)); err != nil {
		g.logger.Warn("clear pending state failed", slog.String("bot_id", bot.ID), slog.Any("error", err))
	}
	telemetry.RecordAuth("verified")
	g.logger.Info("user authenticated", slog.String("bot_id", bot.ID), slog.String("user_id", req.UserID))
	return reply(ctx, g.catalog.T(req.Lang, "auth.success", nil))
}

func (g *Gate) issueCode(ctx context.Context, bot bots.Bot, req Request, address string, reply Reply) error {
	address = strings.ToLower(address)
	if !EmailAllowed(address, bot.AllowedEmailDomains) {
		telemetry.RecordAuth("domain_rejected")
		return reply(ctx, g.catalog.T(req.Lang, "auth.email_not_allowed", map[string]string{
			"domains": strings.Join(bot.AllowedEmailDomains, ", "),
		}))
	}
	botID, err := db.ParseUUID(bot.ID)
	if err != nil {
		return err
	}
	code, err := GenerateCode(g.random)
	if err != nil {
		return err
	}
	now := g.now()
	if _, err := g.codes.CreateAuthCode(ctx, sqlc.CreateAuthCodeParams{
		ID:        db.NewUUID(),
		BotID:     botID,
		Email:     address,
		Code:      code,
		ExpiresAt: db.Timestamptz(now.Add(CodeTTL)),
	}); err != nil {
		return fmt.Errorf("create auth code: %w", err)
	}
	state, _ := json.Marshal(pendingState{Email: address, IssuedAt: now.UTC()})
	if err := g.store.Set(ctx, session.PendingKey(bot.ID, req.UserID), string(state), PendingTTL); err != nil {
		return fmt.Errorf("store pending state: %w", err)
	}

	subject, body, html := ComposeEmail(g.catalog, bot, req.Lang, code)
	var sendErr error
	if g.mailer == nil {
		sendErr = ErrMailNotConfigured
	} else {
		sendErr = g.mailer.Send(ctx, email.OutboundEmail{To: []string{address}, Subject: subject, Body: body, HTML: html})
	}
	if sendErr != nil {
		telemetry.RecordAuth("mail_failed")
		g.logger.Error("send auth code failed", slog.String("bot_id", bot.ID), slog.Any("error", sendErr))
		if err := reply(ctx, g.catalog.T(req.Lang, "auth.email_failed", nil)); err != nil {
			return err
		}
		if errors.Is(sendErr, ErrMailNotConfigured) {
			return ErrMailNotConfigured
		}
		return nil
	}
	telemetry.RecordAuth("code_sent")
	return reply(ctx, g.catalog.T(req.Lang, "auth.code_sent", nil))
}

func (g *Gate) pending(ctx context.Context, botID, userID string) (pendingState, error) {
	raw, ok, err := g.store.Get(ctx, session.PendingKey(botID, userID))
	if err != nil || !ok {
		return pendingState{}, err
	}
	var state pendingState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		g.logger.Warn("discarding malformed pending state", slog.String("bot_id", botID), slog.Any("error", err))
		return pendingState{}, nil
	}
	return state, nil
}

func (g *Gate) prompt(bot bots.Bot, lang string) string {
	hint := ""
	if len(bot.AllowedEmailDomains) > 0 {
		hint = g.catalog.T(lang, "auth.domains_hint", map[string]string{"domains": strings.Join(bot.AllowedEmailDomains, ", ")})
	}
	return g.catalog.T(lang, "auth.required", map[string]string{"domains_hint": hint})
}

// EmailAllowed reports whether address belongs to one of domains. An empty
// list allows every domain.
func EmailAllowed(address string, domains []string) bool {
	if len(domains) == 0 {
		return true
	}
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(address[at+1:])
	for _, d := range domains {
		if strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "@")) == domain {
			return true
		}
	}
	return false
}

// GenerateCode returns a uniformly random 6-digit code read from r.
func GenerateCode(r io.Reader) (string, error) {
	n, err := rand.Int(r, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
