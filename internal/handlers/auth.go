package handlers

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/plugbot/plugbot/internal/auth"
	"github.com/plugbot/plugbot/internal/config"
)

// AuthHandler issues admin tokens for the management API.
type AuthHandler struct {
	admin     config.AdminConfig
	secret    string
	expiresIn time.Duration
	logger    *slog.Logger
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func NewAuthHandler(log *slog.Logger, cfg config.Config) *AuthHandler {
	return &AuthHandler{
		admin:     cfg.Admin,
		secret:    cfg.Auth.JWTSecret,
		expiresIn: cfg.Auth.ExpiresIn(),
		logger:    log.With(slog.String("handler", "auth")),
	}
}

func (h *AuthHandler) Register(e *echo.Echo) {
	e.POST("/api/auth/login", h.Login)
	e.POST("/api/auth/refresh", h.Refresh)
}

// Login checks the configured admin credentials and returns a bearer token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username and password are required")
	}
	if !h.checkCredentials(username, req.Password) {
		h.logger.Warn("admin login rejected", slog.String("username", username), slog.String("remote_ip", c.RealIP()))
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
	}
	token, expiresAt, err := auth.GenerateToken(username, h.secret, h.expiresIn)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, TokenResponse{AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt})
}

// Refresh exchanges a valid token for a fresh one with the same lifetime.
func (h *AuthHandler) Refresh(c echo.Context) error {
	token, expiresAt, err := auth.RefreshTokenFromContext(c, h.secret, h.expiresIn)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TokenResponse{AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt})
}

func (h *AuthHandler) checkCredentials(username, password string) bool {
	expectedUser := strings.TrimSpace(h.admin.Username)
	if expectedUser == "" || subtle.ConstantTimeCompare([]byte(username), []byte(expectedUser)) != 1 {
		return false
	}
	if hash := strings.TrimSpace(h.admin.PasswordHash); hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	}
	if h.admin.Password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(h.admin.Password)) == 1
}
