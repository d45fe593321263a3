package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/plugbot/plugbot/internal/authgate"
	"github.com/plugbot/plugbot/internal/bots"
	"github.com/plugbot/plugbot/internal/channel"
	"github.com/plugbot/plugbot/internal/channel/adapters/discord"
	"github.com/plugbot/plugbot/internal/channel/adapters/telegram"
	"github.com/plugbot/plugbot/internal/channel/inbound"
	"github.com/plugbot/plugbot/internal/config"
	"github.com/plugbot/plugbot/internal/conversation"
	"github.com/plugbot/plugbot/internal/db"
	dbsqlc "github.com/plugbot/plugbot/internal/db/sqlc"
	"github.com/plugbot/plugbot/internal/dify"
	emailpkg "github.com/plugbot/plugbot/internal/email"
	emailgeneric "github.com/plugbot/plugbot/internal/email/adapters/generic"
	emailmailgun "github.com/plugbot/plugbot/internal/email/adapters/mailgun"
	"github.com/plugbot/plugbot/internal/handlers"
	"github.com/plugbot/plugbot/internal/healthcheck"
	channelchecker "github.com/plugbot/plugbot/internal/healthcheck/checkers/channel"
	difychecker "github.com/plugbot/plugbot/internal/healthcheck/checkers/dify"
	"github.com/plugbot/plugbot/internal/i18n"
	"github.com/plugbot/plugbot/internal/logger"
	"github.com/plugbot/plugbot/internal/media"
	"github.com/plugbot/plugbot/internal/message"
	"github.com/plugbot/plugbot/internal/relay"
	"github.com/plugbot/plugbot/internal/secrets"
	"github.com/plugbot/plugbot/internal/server"
	"github.com/plugbot/plugbot/internal/session"
	"github.com/plugbot/plugbot/internal/telemetry"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideDBQueries,
			provideSecretsBox,
			provideSessionStore,
			provideCatalog,
			bots.NewService,
			provideConversationTracker,
			provideMessageService,
			provideEmailRegistry,
			provideMailer,
			provideAuthGate,
			provideDifyFactory,
			relay.NewDifyUpstream,
			provideRelay,
			provideMediaFetcher,
			provideInboundProcessor,
			provideChannelRegistry,
			provideChannelManager,
			provideChannelLifecycle,
			provideHealthRunner,
			provideHealthSweeper,
			provideServerHandler(providePingHandler),
			provideServerHandler(handlers.NewAuthHandler),
			provideServerHandler(provideBotsHandler),
			provideServerHandler(provideConversationsHandler),
			provideServerHandler(provideMetricsHandler),
			provideServer,
		),
		fx.Invoke(
			startTelemetry,
			startChannelManager,
			startHealthSweeper,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

// provideDBConn brings the schema up to date before opening the pool.
func provideDBConn(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(log, cfg.Postgres); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			conn.Close()
			return nil
		},
	})
	return conn, nil
}

func provideDBQueries(conn *pgxpool.Pool) *dbsqlc.Queries {
	return dbsqlc.New(conn)
}

func provideSecretsBox(cfg config.Config) (*secrets.Box, error) {
	box, err := secrets.New(cfg.Secrets.Key)
	if err != nil {
		return nil, fmt.Errorf("init secrets: %w", err)
	}
	return box, nil
}

// provideSessionStore uses Redis when configured, otherwise an in-process store.
func provideSessionStore(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (session.Store, error) {
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		log.Warn("redis not configured, auth sessions are kept in memory")
		return session.NewMemoryStore(), nil
	}
	store, err := session.NewRedisStore(context.Background(), log, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error { return store.Close() },
	})
	return store, nil
}

func provideCatalog(cfg config.Config) (*i18n.Catalog, error) {
	return i18n.Load(cfg.I18n.DefaultLanguage)
}

func provideConversationTracker(log *slog.Logger, queries *dbsqlc.Queries) *conversation.Tracker {
	return conversation.NewTracker(log, queries)
}

func provideMessageService(log *slog.Logger, queries *dbsqlc.Queries) *message.DBService {
	return message.NewService(log, queries)
}

func provideEmailRegistry(log *slog.Logger) *emailpkg.Registry {
	reg := emailpkg.NewRegistry()
	reg.Register(emailgeneric.New(log))
	reg.Register(emailmailgun.New(log))
	return reg
}

func provideMailer(log *slog.Logger, registry *emailpkg.Registry, cfg config.Config) *emailpkg.Mailer {
	return emailpkg.NewMailer(log, registry, cfg.Mail)
}

func provideAuthGate(log *slog.Logger, store session.Store, queries *dbsqlc.Queries, mailer *emailpkg.Mailer, catalog *i18n.Catalog) *authgate.Gate {
	return authgate.NewGate(log, store, queries, mailer, catalog)
}

func provideDifyFactory(log *slog.Logger, cfg config.Config) *dify.Factory {
	return dify.NewFactory(log, cfg.Dify)
}

func provideRelay(log *slog.Logger, messages *message.DBService, tracker *conversation.Tracker, upstream *relay.DifyUpstream, catalog *i18n.Catalog, cfg config.Config) *relay.Relay {
	return relay.New(log, messages, tracker, upstream, catalog, cfg.Relay)
}

func provideMediaFetcher(log *slog.Logger, cfg config.Config) *media.Fetcher {
	return media.NewFetcher(log, nil, cfg.Relay.MaxFileBytes)
}

func provideInboundProcessor(
	log *slog.Logger,
	botService *bots.Service,
	gate *authgate.Gate,
	tracker *conversation.Tracker,
	relayer *relay.Relay,
	upstream *relay.DifyUpstream,
	fetcher *media.Fetcher,
	store session.Store,
	catalog *i18n.Catalog,
) *inbound.Processor {
	return inbound.NewProcessor(log, botService, gate, tracker, relayer, upstream, fetcher, store, catalog)
}

func provideChannelRegistry() *channel.Registry {
	registry := channel.NewRegistry()
	registry.MustRegister(channel.TransportTelegram, telegram.Factory)
	registry.MustRegister(channel.TransportDiscord, discord.Factory)
	return registry
}

func provideChannelManager(log *slog.Logger, registry *channel.Registry, botService *bots.Service, processor *inbound.Processor, cfg config.Config) *channel.Manager {
	return channel.NewManager(log, registry, botService, processor, cfg.Channel)
}

func provideChannelLifecycle(log *slog.Logger, botService *bots.Service, manager *channel.Manager) *channel.Lifecycle {
	return channel.NewLifecycle(log, botService, manager)
}

func provideHealthRunner(log *slog.Logger, manager *channel.Manager, upstream *relay.DifyUpstream) *healthcheck.Runner {
	return healthcheck.NewRunner(
		difychecker.NewChecker(log, upstream),
		channelchecker.NewChecker(log, manager),
	)
}

func provideHealthSweeper(log *slog.Logger, botService *bots.Service, runner *healthcheck.Runner, manager *channel.Manager, gate *authgate.Gate, cfg config.Config) *healthcheck.Sweeper {
	sweeper := healthcheck.NewSweeper(log, botService, runner, manager, cfg.Health)
	sweeper.SetCodePruner(gate)
	return sweeper
}

func providePingHandler(log *slog.Logger) *handlers.PingHandler {
	return handlers.NewPingHandler(log, version)
}

func provideBotsHandler(log *slog.Logger, botService *bots.Service, lifecycle *channel.Lifecycle, manager *channel.Manager, runner *healthcheck.Runner, upstream *relay.DifyUpstream) *handlers.BotsHandler {
	h := handlers.NewBotsHandler(log, botService, lifecycle, manager, runner)
	h.SetDifyProbe(upstream)
	return h
}

func provideConversationsHandler(log *slog.Logger, botService *bots.Service, tracker *conversation.Tracker, messages *message.DBService) *handlers.ConversationsHandler {
	return handlers.NewConversationsHandler(log, botService, tracker, messages)
}

func provideMetricsHandler(cfg config.Config) *handlers.MetricsHandler {
	return handlers.NewMetricsHandler(cfg.Telemetry.MetricsEnabled)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) (*server.Server, error) {
	if strings.TrimSpace(params.Config.Auth.JWTSecret) == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Auth.JWTSecret, params.ServerHandlers...), nil
}

func startTelemetry(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) {
	var shutdown func(context.Context) error
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			telemetry.Init()
			fn, err := telemetry.InitTracing(ctx, log, cfg.Telemetry, version)
			if err != nil {
				return err
			}
			shutdown = fn
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if shutdown == nil {
				return nil
			}
			return shutdown(ctx)
		},
	})
}

func startChannelManager(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, lifecycle *channel.Lifecycle, manager *channel.Manager) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if !cfg.Channel.AutoStart {
				log.Info("auto start disabled")
				return nil
			}
			// Platforms can be slow to answer; do not hold up startup.
			go func() {
				if err := lifecycle.StartActive(context.Background()); err != nil {
					log.Error("start active bots failed", slog.Any("error", err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return manager.StopAll(ctx)
		},
	})
}

func startHealthSweeper(lc fx.Lifecycle, sweeper *healthcheck.Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { return sweeper.Start() },
		OnStop:  func(ctx context.Context) error { return sweeper.Stop(ctx) },
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting %s\n", versionString())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
