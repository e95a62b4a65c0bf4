package handlers

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/nimasrn/bank-reconciler/internal/model"
	"github.com/nimasrn/bank-reconciler/internal/reconcile"
	xhttp "github.com/nimasrn/bank-reconciler/pkg/http"
	"github.com/nimasrn/bank-reconciler/pkg/logger"
)

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

// writeServiceError maps domain errors to status codes. Anything unknown is
// logged and reported as a 500 without its message.
func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(ctx, xhttp.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrAlreadyMatched):
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrOrderNotPending),
		errors.Is(err, model.ErrInvalidState),
		errors.Is(err, reconcile.ErrRunInProgress),
		errors.Is(err, reconcile.ErrLockHeld):
		writeError(ctx, xhttp.StatusConflict, err.Error())
	case errors.Is(err, model.ErrUpstreamFetch):
		writeError(ctx, xhttp.StatusBadGateway, err.Error())
	default:
		logger.Error("request failed", "path", string(ctx.Path()), "error", err)
		writeError(ctx, xhttp.StatusInternalServerError, xhttp.StatusText(xhttp.StatusInternalServerError))
	}
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func pathParam(ctx *xhttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}

func queryInt(ctx *xhttp.RequestCtx, key string) (int, bool, error) {
	v := query(ctx, key)
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	return n, true, err
}

func parseTime(s string) (time.Time, error) {
	// Accept RFC3339 or YYYY-MM-DD
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
