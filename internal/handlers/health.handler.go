package handlers

import (
	"context"

	"github.com/fasthttp/router"
	xhttp "github.com/nimasrn/vendzz-dispatch/pkg/http"
)

type HealthService interface {
	Check(ctx context.Context) (map[string]string, bool)
}

type HealthHandler struct {
	svc HealthService
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

func NewHealthHandler(svc HealthService) *HealthHandler {
	return &HealthHandler{svc: svc}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	checks, ok := h.svc.Check(ctx)
	if !ok {
		writeJSON(ctx, xhttp.StatusServiceUnavailable, healthResponse{Status: "degraded", Checks: checks})
		return
	}
	writeJSON(ctx, xhttp.StatusOK, healthResponse{Status: "ok", Checks: checks})
}
