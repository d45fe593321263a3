package handlers

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler exposes the Prometheus registry when enabled.
type MetricsHandler struct {
	enabled bool
}

func NewMetricsHandler(enabled bool) *MetricsHandler {
	return &MetricsHandler{enabled: enabled}
}

func (h *MetricsHandler) Register(e *echo.Echo) {
	if !h.enabled {
		return
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
