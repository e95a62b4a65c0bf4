package helpers

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/bank-reconciler/internal/app"
	"github.com/nimasrn/bank-reconciler/internal/config"
	"github.com/nimasrn/bank-reconciler/internal/handlers"
	"github.com/nimasrn/bank-reconciler/internal/repository"
	xhttp "github.com/nimasrn/bank-reconciler/pkg/http"
	"github.com/nimasrn/bank-reconciler/pkg/redis"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

// Env is a fully wired reconciler over sqlite and miniredis, with the http
// routes mounted.
type Env struct {
	App     *app.App
	Redis   *miniredis.Miniredis
	Handler xhttp.RequestHandler
}

func TestConfig() *config.Config {
	return &config.Config{
		AppEnv:                  "test",
		ReconcileEnabled:        true,
		ReconcileInterval:       time.Hour,
		ReconcilePaymentMethods: "bank_transfer,atm",
		EventsStream:            "events:payment",
		BankTimeout:             time.Second,
		BankPollIntervalSeconds: 60,
	}
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr := miniredis.RunT(t)
	adapter, err := redis.NewRedisAdapter(t.Name()+"-"+mr.Addr(), "test:", &redis.Options{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)
	return mr, adapter
}

func SetupEnv(t *testing.T, c *config.Config) *Env {
	t.Helper()
	if c == nil {
		c = TestConfig()
	}
	mr, adapter := SetupTestRedis(t)

	a, err := app.New(c, repository.OpenTestDB(t), adapter)
	require.NoError(t, err)
	t.Cleanup(a.Worker.Stop)

	s := xhttp.CreateServer()
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.RequestIDMiddleware)
	g := s.Router.Group("/api/v1")
	handlers.RegisterTransactionRoutes(g, handlers.NewTransactionHandler(a.TransactionService, a.IngestService, a.ReconciliationService))
	handlers.RegisterReconcilerRoutes(g, handlers.NewReconcilerHandler(a.Worker))
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(a.HealthService))

	return &Env{App: a, Redis: mr, Handler: s.Handler()}
}

// Do sends a request through the full middleware chain and returns the
// status code and body.
func (e *Env) Do(method, uri string, body []byte) (int, []byte) {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	if body != nil {
		req.SetBody(body)
	}
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	e.Handler(ctx)
	return ctx.Response.StatusCode(), append([]byte(nil), ctx.Response.Body()...)
}

// DoJSON is Do with v marshalled as the body and the response decoded into out.
func (e *Env) DoJSON(t *testing.T, method, uri string, v any, out any) int {
	t.Helper()
	var body []byte
	if v != nil {
		var err error
		body, err = json.Marshal(v)
		require.NoError(t, err)
	}
	status, resp := e.Do(method, uri, body)
	if out != nil {
		require.NoError(t, json.Unmarshal(resp, out), string(resp))
	}
	return status
}
