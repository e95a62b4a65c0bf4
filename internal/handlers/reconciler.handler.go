package handlers

import (
	"time"

	"github.com/fasthttp/router"
	"github.com/nimasrn/bank-reconciler/internal/reconcile"
	xhttp "github.com/nimasrn/bank-reconciler/pkg/http"
)

type ReconcilerControl interface {
	Start()
	Stop()
	UpdateConfig(u reconcile.ConfigUpdate) (reconcile.WorkerConfig, error)
	Status() reconcile.Status
}

type ReconcilerHandler struct {
	worker ReconcilerControl
}

func RegisterReconcilerRoutes(e *router.Group, h *ReconcilerHandler) {
	e.POST("/reconciler/start", h.Start)
	e.POST("/reconciler/stop", h.Stop)
	e.PUT("/reconciler/config", h.UpdateConfig)
	e.GET("/reconciler/status", h.Status)
}

func NewReconcilerHandler(worker ReconcilerControl) *ReconcilerHandler {
	return &ReconcilerHandler{worker: worker}
}

// updateConfigRequest takes the interval either as a duration string
// ("30s", "5m") or as whole seconds.
type updateConfigRequest struct {
	Interval        *string `json:"interval"`
	IntervalSeconds *int64  `json:"interval_seconds"`
	Enabled         *bool   `json:"enabled"`
}

func (h *ReconcilerHandler) Start(ctx *xhttp.RequestCtx) {
	h.worker.Start()
	st := h.worker.Status()
	if st.State != reconcile.StateRunning {
		writeError(ctx, xhttp.StatusConflict, "reconciliation worker is disabled")
		return
	}
	writeJSON(ctx, xhttp.StatusOK, st)
}

func (h *ReconcilerHandler) Stop(ctx *xhttp.RequestCtx) {
	h.worker.Stop()
	writeJSON(ctx, xhttp.StatusOK, h.worker.Status())
}

func (h *ReconcilerHandler) UpdateConfig(ctx *xhttp.RequestCtx) {
	var req updateConfigRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	var u reconcile.ConfigUpdate
	switch {
	case req.Interval != nil:
		d, err := time.ParseDuration(*req.Interval)
		if err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "invalid interval: "+*req.Interval)
			return
		}
		u.Interval = &d
	case req.IntervalSeconds != nil:
		d := time.Duration(*req.IntervalSeconds) * time.Second
		u.Interval = &d
	}
	u.Enabled = req.Enabled

	if _, err := h.worker.UpdateConfig(u); err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, h.worker.Status())
}

func (h *ReconcilerHandler) Status(ctx *xhttp.RequestCtx) {
	writeJSON(ctx, xhttp.StatusOK, h.worker.Status())
}
