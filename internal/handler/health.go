// Package handler contains the HTTP handlers and route wiring of the proxy.
package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"mount-proxy/internal/config"
	"mount-proxy/internal/mapping"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	mapper  *mapping.Mapper
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, mapper *mapping.Mapper, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, mapper: mapper, version: v}
}

type mountStatus struct {
	Path           string `json:"path"`
	Target         string `json:"target"`
	RewriteContent bool   `json:"rewrite_content"`
}

type statusResponse struct {
	Status      string        `json:"status"`
	Version     string        `json:"version"`
	ExternalURL string        `json:"external_url"`
	InternalURL string        `json:"internal_url"`
	Mounts      []mountStatus `json:"mounts"`
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns proxy status information: the configured mounts and the
// root URL of this server as the client and as the server itself address it.
func (h *HealthHandler) Status(c echo.Context) error {
	req := mapping.FromHTTP(c.Request(), h.cfg.Server.Identity())

	resp := statusResponse{
		Status:      "ok",
		Version:     string(h.version),
		ExternalURL: h.mapper.Externalize(req, "/"),
		InternalURL: h.mapper.Internalize(req, "/"),
		Mounts:      make([]mountStatus, 0, len(h.cfg.Mounts)),
	}
	for _, m := range h.cfg.Mounts {
		path := m.Path
		if path == "" {
			path = "/"
		}
		resp.Mounts = append(resp.Mounts, mountStatus{
			Path:           path,
			Target:         m.Target,
			RewriteContent: m.RewriteContent,
		})
	}
	return c.JSON(http.StatusOK, resp)
}
