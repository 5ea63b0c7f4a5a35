package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mount-proxy/internal/config"
	"mount-proxy/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance: the health
// endpoints, the metrics endpoint when enabled, and every mount.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, proxy *ProxyHandler, health *HealthHandler, m *metrics.Metrics) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	for _, mount := range cfg.Mounts {
		if mount.Path == "" {
			e.Any("/*", proxy.Handle)
			continue
		}
		e.Any(mount.Path, proxy.Handle)
		e.Any(mount.Path+"/*", proxy.Handle)
	}
}
