package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/plugbot/plugbot/internal/bots"
	"github.com/plugbot/plugbot/internal/channel"
	"github.com/plugbot/plugbot/internal/healthcheck"
)

// BotService is the read and create side of bot storage.
type BotService interface {
	List(ctx context.Context) ([]bots.Bot, error)
	Get(ctx context.Context, botID string) (bots.Bot, error)
	Create(ctx context.Context, req bots.CreateBotRequest) (bots.Bot, error)
}

// BotLifecycle couples bot mutations with the running units.
type BotLifecycle interface {
	UpdateBot(ctx context.Context, botID string, req bots.UpdateBotRequest) (bots.Bot, error)
	DeleteBot(ctx context.Context, botID string) error
	StartBot(ctx context.Context, botID string) (channel.UnitStatus, error)
	StopBot(ctx context.Context, botID string) (channel.UnitStatus, error)
	RestartBot(ctx context.Context, botID string) (channel.UnitStatus, error)
}

// UnitStatusReader reports which transports of a bot are running.
type UnitStatusReader interface {
	Status(botID string) channel.UnitStatus
}

// CheckLister runs the live health checks of a bot.
type CheckLister interface {
	ListChecks(ctx context.Context, bot bots.Bot) []healthcheck.CheckResult
}

// DifyProbe checks that a Dify app answers with the given credentials.
type DifyProbe interface {
	Health(ctx context.Context, bot bots.Bot) error
}

// BotsHandler serves bot CRUD and lifecycle routes.
type BotsHandler struct {
	service   BotService
	lifecycle BotLifecycle
	units     UnitStatusReader
	checks    CheckLister
	probe     DifyProbe
	logger    *slog.Logger
}

type BotListResponse struct {
	Items []bots.Bot `json:"items"`
}

type ChecksResponse struct {
	BotID  string                    `json:"bot_id"`
	Status string                    `json:"status"`
	Items  []healthcheck.CheckResult `json:"items"`
}

func NewBotsHandler(log *slog.Logger, service BotService, lifecycle BotLifecycle, units UnitStatusReader, checks CheckLister) *BotsHandler {
	return &BotsHandler{
		service:   service,
		lifecycle: lifecycle,
		units:     units,
		checks:    checks,
		logger:    log.With(slog.String("handler", "bots")),
	}
}

// SetDifyProbe makes Create reject bots whose Dify app cannot be reached.
func (h *BotsHandler) SetDifyProbe(p DifyProbe) {
	h.probe = p
}

func (h *BotsHandler) Register(e *echo.Echo) {
	g := e.Group("/api/bots")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/start", h.Start)
	g.POST("/:id/stop", h.Stop)
	g.POST("/:id/restart", h.Restart)
	g.GET("/:id/status", h.Status)
	g.GET("/:id/checks", h.Checks)
}

func (h *BotsHandler) List(c echo.Context) error {
	items, err := h.service.List(c.Request().Context())
	if err != nil {
		return botError(err)
	}
	out := make([]bots.Bot, 0, len(items))
	for _, b := range items {
		out = append(out, b.Redacted())
	}
	return c.JSON(http.StatusOK, BotListResponse{Items: out})
}

func (h *BotsHandler) Create(c echo.Context) error {
	var req bots.CreateBotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	endpoint, key := strings.TrimSpace(req.DifyEndpoint), strings.TrimSpace(req.DifyAPIKey)
	if h.probe != nil && endpoint != "" && key != "" {
		if err := h.probe.Health(ctx, bots.Bot{DifyEndpoint: endpoint, DifyAPIKey: key}); err != nil {
			h.logger.Warn("dify probe failed", slog.String("endpoint", endpoint), slog.Any("error", err))
			return echo.NewHTTPError(http.StatusBadRequest, "cannot connect to Dify: "+err.Error())
		}
	}
	bot, err := h.service.Create(ctx, req)
	if err != nil {
		return botError(err)
	}
	return c.JSON(http.StatusCreated, bot.Redacted())
}

func (h *BotsHandler) Get(c echo.Context) error {
	botID, err := botIDParam(c)
	if err != nil {
		return err
	}
	bot, err := h.service.Get(c.Request().Context(), botID)
	if err != nil {
		return botError(err)
	}
	return c.JSON(http.StatusOK, bot.Redacted())
}

func (h *BotsHandler) Update(c echo.Context) error {
	botID, err := botIDParam(c)
	if err != nil {
		return err
	}
	var req bots.UpdateBotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	bot, err := h.lifecycle.UpdateBot(c.Request().Context(), botID, req)
	if err != nil {
		return botError(err)
	}
	return c.JSON(http.StatusOK, bot.Redacted())
}

func (h *BotsHandler) Delete(c echo.Context) error {
	botID, err := botIDParam(c)
	if err != nil {
		return err
	}
	if err := h.lifecycle.DeleteBot(c.Request().Context(), botID); err != nil {
		return botError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *BotsHandler) Start(c echo.Context) error {
	return h.transition(c, "start", h.lifecycle.StartBot)
}

func (h *BotsHandler) Stop(c echo.Context) error {
	return h.transition(c, "stop", h.lifecycle.StopBot)
}

func (h *BotsHandler) Restart(c echo.Context) error {
	return h.transition(c, "restart", h.lifecycle.RestartBot)
}

func (h *BotsHandler) transition(c echo.Context, action string, fn func(context.Context, string) (channel.UnitStatus, error)) error {
	botID, err := botIDParam(c)
	if err != nil {
		return err
	}
	status, err := fn(c.Request().Context(), botID)
	if err != nil {
		h.logger.Warn("bot "+action+" failed", slog.String("bot_id", botID), slog.Any("error", err))
		return botError(err)
	}
	return c.JSON(http.StatusOK, status)
}

func (h *BotsHandler) Status(c echo.Context) error {
	botID, err := botIDParam(c)
	if err != nil {
		return err
	}
	if _, err := h.service.Get(c.Request().Context(), botID); err != nil {
		return botError(err)
	}
	return c.JSON(http.StatusOK, h.units.Status(botID))
}

func (h *BotsHandler) Checks(c echo.Context) error {
	botID, err := botIDParam(c)
	if err != nil {
		return err
	}
	bot, err := h.service.Get(c.Request().Context(), botID)
	if err != nil {
		return botError(err)
	}
	var items []healthcheck.CheckResult
	if h.checks != nil {
		items = h.checks.ListChecks(c.Request().Context(), bot)
	}
	if items == nil {
		items = []healthcheck.CheckResult{}
	}
	return c.JSON(http.StatusOK, ChecksResponse{BotID: botID, Status: healthcheck.Overall(items), Items: items})
}

func botIDParam(c echo.Context) (string, error) {
	botID := strings.TrimSpace(c.Param("id"))
	if botID == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "bot id is required")
	}
	return botID, nil
}

// botError maps domain errors to HTTP errors.
func botError(err error) error {
	switch {
	case errors.Is(err, bots.ErrBotNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, bots.ErrBotNameTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, bots.ErrInvalidBot), errors.Is(err, channel.ErrNoTransport):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, channel.ErrInitializeFailed):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
