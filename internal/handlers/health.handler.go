package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/nimasrn/bank-reconciler/internal/services"
	xhttp "github.com/nimasrn/bank-reconciler/pkg/http"
)

type HealthService interface {
	Check(ctx context.Context) services.HealthReport
}
type HealthHandler struct {
	svc HealthService
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

func NewHealthHandler(svc HealthService) *HealthHandler {
	return &HealthHandler{
		svc: svc,
	}
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	report := h.svc.Check(ctx)
	status := xhttp.StatusOK
	if report.Status != "healthy" {
		status = xhttp.StatusServiceUnavailable
	}
	writeJSON(ctx, status, report)
}
