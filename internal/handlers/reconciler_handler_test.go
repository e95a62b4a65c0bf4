package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nimasrn/bank-reconciler/internal/reconcile"
	"github.com/nimasrn/bank-reconciler/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopRunner struct{}

func (noopRunner) RunAll(context.Context) (*reconcile.Summary, error) {
	return &reconcile.Summary{}, nil
}

func newWorker(t *testing.T, enabled bool) *reconcile.Worker {
	t.Helper()
	w := reconcile.NewWorker(noopRunner{}, reconcile.WorkerConfig{Interval: time.Hour, Enabled: enabled}, nil)
	t.Cleanup(w.Stop)
	return w
}

func decodeStatus(t *testing.T, body []byte) reconcile.Status {
	t.Helper()
	var st reconcile.Status
	require.NoError(t, json.Unmarshal(body, &st))
	return st
}

func TestReconcilerHandler_StartStop(t *testing.T) {
	h := NewReconcilerHandler(newWorker(t, true))

	ctx := setupTestContext("POST", "/reconciler/start", nil)
	h.Start(ctx)
	assert.Equal(t, 200, ctx.Response.StatusCode())
	assert.Equal(t, reconcile.StateRunning, decodeStatus(t, ctx.Response.Body()).State)

	ctx = setupTestContext("POST", "/reconciler/stop", nil)
	h.Stop(ctx)
	assert.Equal(t, 200, ctx.Response.StatusCode())
	assert.Equal(t, reconcile.StateStopped, decodeStatus(t, ctx.Response.Body()).State)
}

func TestReconcilerHandler_StartDisabled(t *testing.T) {
	h := NewReconcilerHandler(newWorker(t, false))

	ctx := setupTestContext("POST", "/reconciler/start", nil)
	h.Start(ctx)
	assert.Equal(t, 409, ctx.Response.StatusCode())
}

func TestReconcilerHandler_UpdateConfig(t *testing.T) {
	w := newWorker(t, true)
	h := NewReconcilerHandler(w)

	ctx := setupTestContext("PUT", "/reconciler/config", []byte(`{"interval":"30s"}`))
	h.UpdateConfig(ctx)
	assert.Equal(t, 200, ctx.Response.StatusCode())
	assert.Equal(t, 30*time.Second, w.Config().Interval)

	ctx = setupTestContext("PUT", "/reconciler/config", []byte(`{"interval_seconds":90,"enabled":false}`))
	h.UpdateConfig(ctx)
	assert.Equal(t, 200, ctx.Response.StatusCode())
	st := decodeStatus(t, ctx.Response.Body())
	assert.Equal(t, float64(90), st.IntervalSeconds)
	assert.False(t, st.Enabled)

	for _, body := range []string{`{"interval":"soon"}`, `{"interval_seconds":0}`, `{"interval":"-1m"}`, `not json`} {
		ctx = setupTestContext("PUT", "/reconciler/config", []byte(body))
		h.UpdateConfig(ctx)
		assert.Equal(t, 400, ctx.Response.StatusCode(), body)
	}
	assert.Equal(t, 90*time.Second, w.Config().Interval)
}

func TestReconcilerHandler_Status(t *testing.T) {
	w := newWorker(t, true)
	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	h := NewReconcilerHandler(w)
	ctx := setupTestContext("GET", "/reconciler/status", nil)
	h.Status(ctx)
	assert.Equal(t, 200, ctx.Response.StatusCode())

	st := decodeStatus(t, ctx.Response.Body())
	assert.Equal(t, reconcile.StateStopped, st.State)
	assert.Equal(t, int64(1), st.Runs)
	assert.NotNil(t, st.LastProcessedAt)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler_GetHealth(t *testing.T) {
	up := services.NewHealthService(time.Second).Register("postgres", pingFunc(func(context.Context) error { return nil }))
	ctx := setupTestContext("GET", "/health", nil)
	NewHealthHandler(up).GetHealth(ctx)
	assert.Equal(t, 200, ctx.Response.StatusCode())

	down := services.NewHealthService(time.Second).Register("redis", pingFunc(func(context.Context) error { return errors.New("dial tcp: refused") }))
	ctx = setupTestContext("GET", "/health", nil)
	NewHealthHandler(down).GetHealth(ctx)
	assert.Equal(t, 503, ctx.Response.StatusCode())

	var report services.HealthReport
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &report))
	assert.Equal(t, "unhealthy", report.Status)
}
