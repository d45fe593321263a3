package db_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/plugbot/plugbot/internal/bots"
	"github.com/plugbot/plugbot/internal/conversation"
	"github.com/plugbot/plugbot/internal/db"
	"github.com/plugbot/plugbot/internal/db/sqlc"
	"github.com/plugbot/plugbot/internal/secrets"
)

func startPostgres(t *testing.T) *sqlc.Queries {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("plugbot"),
		tcpostgres.WithUsername("plugbot"),
		tcpostgres.WithPassword("plugbot"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	if err := db.MigrateURL(nil, "pgx5://"+strings.TrimPrefix(dsn, "postgres://")); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return sqlc.New(pool)
}

func TestStoreAgainstPostgres(t *testing.T) {
	queries := startPostgres(t)
	ctx := context.Background()

	box, err := secrets.New("integration-master-key")
	if err != nil {
		t.Fatalf("secrets: %v", err)
	}
	botService := bots.NewService(nil, queries, box)

	bot, err := botService.Create(ctx, bots.CreateBotRequest{
		Name:             "support",
		DifyEndpoint:     "https://api.dify.ai/v1",
		DifyAPIKey:       "app-key",
		TelegramBotToken: "123:abc",
	})
	if err != nil {
		t.Fatalf("create bot: %v", err)
	}
	if _, err := botService.Create(ctx, bots.CreateBotRequest{
		Name:         "support",
		DifyEndpoint: "https://api.dify.ai/v1",
		DifyAPIKey:   "other",
	}); !errors.Is(err, bots.ErrBotNameTaken) {
		t.Fatalf("expected ErrBotNameTaken, got %v", err)
	}

	t.Run("blank secret keeps stored token", func(t *testing.T) {
		blank := ""
		if _, err := botService.Update(ctx, bot.ID, bots.UpdateBotRequest{TelegramBotToken: &blank}); err != nil {
			t.Fatalf("update: %v", err)
		}
		got, err := botService.Get(ctx, bot.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.TelegramBotToken != "123:abc" || got.DifyAPIKey != "app-key" {
			t.Fatalf("secrets not preserved: %+v", got)
		}
	})

	t.Run("one active conversation per chat", func(t *testing.T) {
		tracker := conversation.NewTracker(nil, queries)
		ref := conversation.ChatRef{BotID: bot.ID, Transport: "telegram", ChatKey: "42"}
		meta := conversation.Meta{UserID: "7", DifyUserID: "telegram_7"}

		first, err := tracker.GetOrCreateActive(ctx, ref, meta)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		again, err := tracker.GetOrCreateActive(ctx, ref, meta)
		if err != nil || again.ID != first.ID {
			t.Fatalf("expected same conversation, got %v (%v)", again.ID, err)
		}
		if _, err := tracker.DeactivateActive(ctx, ref); err != nil {
			t.Fatalf("deactivate: %v", err)
		}
		second, err := tracker.GetOrCreateActive(ctx, ref, meta)
		if err != nil || second.ID == first.ID {
			t.Fatalf("expected a fresh conversation, got %v (%v)", second.ID, err)
		}
		history, err := tracker.History(ctx, ref)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		active := 0
		for _, c := range history {
			if c.IsActive {
				active++
			}
		}
		if len(history) != 2 || active != 1 {
			t.Fatalf("expected 2 conversations with 1 active, got %d/%d", len(history), active)
		}
	})

	t.Run("codes are single use and expire", func(t *testing.T) {
		botID, err := db.ParseUUID(bot.ID)
		if err != nil {
			t.Fatalf("parse id: %v", err)
		}
		now := time.Now().UTC()
		if _, err := queries.CreateAuthCode(ctx, sqlc.CreateAuthCodeParams{
			ID: db.NewUUID(), BotID: botID, Email: "a@example.com", Code: "123456", ExpiresAt: db.Timestamptz(now.Add(10 * time.Minute)),
		}); err != nil {
			t.Fatalf("create code: %v", err)
		}
		if _, err := queries.CreateAuthCode(ctx, sqlc.CreateAuthCodeParams{
			ID: db.NewUUID(), BotID: botID, Email: "a@example.com", Code: "654321", ExpiresAt: db.Timestamptz(now.Add(-time.Minute)),
		}); err != nil {
			t.Fatalf("create expired code: %v", err)
		}

		find := func(code string) (sqlc.AuthCode, error) {
			return queries.FindValidAuthCode(ctx, sqlc.FindValidAuthCodeParams{
				BotID: botID, Code: code, Now: db.Timestamptz(time.Now().UTC()), Email: db.Text("a@example.com"),
			})
		}
		if _, err := find("654321"); !errors.Is(err, pgx.ErrNoRows) {
			t.Fatalf("expired code must not be found, got %v", err)
		}
		row, err := find("123456")
		if err != nil {
			t.Fatalf("find code: %v", err)
		}
		used, err := queries.MarkAuthCodeUsed(ctx, sqlc.MarkAuthCodeUsedParams{ID: row.ID, UsedAt: db.Timestamptz(time.Now().UTC())})
		if err != nil || used != 1 {
			t.Fatalf("mark used: %d, %v", used, err)
		}
		again, err := queries.MarkAuthCodeUsed(ctx, sqlc.MarkAuthCodeUsedParams{ID: row.ID, UsedAt: db.Timestamptz(time.Now().UTC())})
		if err != nil || again != 0 {
			t.Fatalf("second use must affect no rows: %d, %v", again, err)
		}
		if _, err := find("123456"); !errors.Is(err, pgx.ErrNoRows) {
			t.Fatalf("used code must not be found, got %v", err)
		}
	})
}
