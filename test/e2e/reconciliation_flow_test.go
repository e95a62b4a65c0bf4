package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/nimasrn/bank-reconciler/internal/model"
	"github.com/nimasrn/bank-reconciler/internal/reconcile"
	"github.com/nimasrn/bank-reconciler/internal/services"
	"github.com/nimasrn/bank-reconciler/test/fixtures"
	"github.com/nimasrn/bank-reconciler/test/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getOrder(t *testing.T, env *helpers.Env, id string) *model.Order {
	t.Helper()
	o, err := env.App.Orders.GetByID(context.Background(), id)
	require.NoError(t, err)
	return o
}

func getTxn(t *testing.T, env *helpers.Env, id string) *model.BankTransaction {
	t.Helper()
	var txn model.BankTransaction
	status := env.DoJSON(t, http.MethodGet, "/api/v1/transactions/"+id, nil, &txn)
	require.Equal(t, http.StatusOK, status)
	return &txn
}

func autoMatch(t *testing.T, env *helpers.Env) reconcile.Summary {
	t.Helper()
	var summary reconcile.Summary
	status := env.DoJSON(t, http.MethodPost, "/api/v1/transactions/auto-match", nil, &summary)
	require.Equal(t, http.StatusOK, status)
	return summary
}

func TestE2E_ReferenceMatch(t *testing.T) {
	env := helpers.SetupEnv(t, nil)
	fixtures.CreateOrders(t, env.App.Orders, fixtures.PendingOrder("o1", 500000, "DH123"))
	fixtures.CreateTransactions(t, env.App.Transactions, fixtures.IncomingTransaction("FT1", 500000, "CK DH123 thank you"))

	summary := autoMatch(t, env)
	assert.Equal(t, 1, summary.MatchedCount)

	txn := getTxn(t, env, "FT1")
	assert.Equal(t, model.TransactionStatusCompleted, txn.Status)
	require.NotNil(t, txn.OrderID)
	assert.Equal(t, "o1", *txn.OrderID)

	o := getOrder(t, env, "o1")
	assert.Equal(t, model.PaymentStatusWaitingConfirm, o.PaymentStatus)
	require.NotNil(t, o.BankTransactionID)
	assert.Equal(t, "FT1", *o.BankTransactionID)

	evts, err := env.App.Publisher.Read(context.Background(), "-", "+")
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "o1", evts[0].Metadata["order_id"])

	// second run is a no-op
	summary = autoMatch(t, env)
	assert.Equal(t, 0, summary.MatchedCount)
	evts, err = env.App.Publisher.Read(context.Background(), "-", "+")
	require.NoError(t, err)
	assert.Len(t, evts, 1)
}

func TestE2E_WrongReferenceMatchesOtherOrder(t *testing.T) {
	env := helpers.SetupEnv(t, nil)
	fixtures.CreateOrders(t, env.App.Orders,
		fixtures.PendingOrder("o1", 500000, "DH123"),
		fixtures.PendingOrder("o2", 500000, "DH999"),
	)
	fixtures.CreateTransactions(t, env.App.Transactions, fixtures.IncomingTransaction("FT1", 500000, "CK DH999"))

	summary := autoMatch(t, env)
	assert.Equal(t, 1, summary.MatchedCount)

	assert.Equal(t, model.PaymentStatusPending, getOrder(t, env, "o1").PaymentStatus)
	assert.Equal(t, model.PaymentStatusWaitingConfirm, getOrder(t, env, "o2").PaymentStatus)
	require.NotNil(t, getTxn(t, env, "FT1").OrderID)
	assert.Equal(t, "o2", *getTxn(t, env, "FT1").OrderID)
}

func TestE2E_LookupBeforeArrival(t *testing.T) {
	env := helpers.SetupEnv(t, nil)
	fixtures.CreateOrders(t, env.App.Orders, fixtures.PendingOrder("o1", 500000, "DH123"))

	var res services.CheckResult
	status := env.DoJSON(t, http.MethodGet, "/api/v1/transactions/check?order_ref=DH123&amount=500000", nil, &res)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, res.Found)
	assert.False(t, res.Matched)

	assert.Equal(t, model.PaymentStatusPending, getOrder(t, env, "o1").PaymentStatus)
}

func TestE2E_LookupRacesWorker(t *testing.T) {
	env := helpers.SetupEnv(t, nil)
	fixtures.CreateOrders(t, env.App.Orders, fixtures.PendingOrder("o1", 500000, "DH123"))
	fixtures.CreateTransactions(t, env.App.Transactions, fixtures.IncomingTransaction("FT1", 500000, "CK DH123"))

	var (
		wg      sync.WaitGroup
		check   services.CheckResult
		summary reconcile.Summary
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, body := env.Do(http.MethodGet, "/api/v1/transactions/check?order_ref=DH123&amount=500000", nil)
		_ = json.Unmarshal(body, &check)
	}()
	go func() {
		defer wg.Done()
		_, body := env.Do(http.MethodPost, "/api/v1/transactions/auto-match", nil)
		_ = json.Unmarshal(body, &summary)
	}()
	wg.Wait()

	commits := summary.MatchedCount
	if check.Committed {
		commits++
	}
	assert.Equal(t, 1, commits)
	assert.True(t, check.Found)
	assert.True(t, check.Matched)

	evts, err := env.App.Publisher.Read(context.Background(), "-", "+")
	require.NoError(t, err)
	assert.Len(t, evts, 1)
}

func TestE2E_IngestFromBank(t *testing.T) {
	bank := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok","transactions":[
			{"transactionID":"FT1","amount":"500,000","description":"CK DH123","transactionDate":"2024-03-01T10:00:00Z","type":"IN"},
			{"transactionID":"FT2","amount":"20000","description":"fee","transactionDate":"2024-03-01T11:00:00Z","type":"OUT"}
		]}`)
	}))
	defer bank.Close()

	c := helpers.TestConfig()
	c.BankEndpoints = "VCB=" + bank.URL
	env := helpers.SetupEnv(t, c)
	fixtures.CreateOrders(t, env.App.Orders, fixtures.PendingOrder("o1", 500000, "DH123"))

	req := map[string]string{"bank_code": "VCB", "account_number": "001", "token": "secret"}
	var res model.IngestResult
	status := env.DoJSON(t, http.MethodPost, "/api/v1/transactions/ingest", req, &res)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, res.TotalFetched)
	assert.Equal(t, 2, res.NewTransactions)
	assert.Equal(t, 1, res.MatchedCount)

	status = env.DoJSON(t, http.MethodPost, "/api/v1/transactions/ingest", req, &res)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, res.NewTransactions)
	assert.Equal(t, 0, res.MatchedCount)

	var page model.TransactionPage
	status = env.DoJSON(t, http.MethodGet, "/api/v1/transactions?direction=out", nil, &page)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "FT2", page.Items[0].ID)

	req["token"] = "wrong"
	status, _ = env.Do(http.MethodPost, "/api/v1/transactions/ingest", mustJSON(t, req))
	assert.Equal(t, http.StatusBadGateway, status)
}

func TestE2E_ManualMatchAndHealth(t *testing.T) {
	env := helpers.SetupEnv(t, nil)
	fixtures.CreateOrders(t, env.App.Orders, fixtures.PendingOrder("o1", 450000, "DH777"))
	fixtures.CreateTransactions(t, env.App.Transactions, fixtures.IncomingTransaction("FT1", 450000, "chuyen tien"))

	body := map[string]string{"transaction_id": "FT1", "order_id": "o1"}
	status := env.DoJSON(t, http.MethodPost, "/api/v1/transactions/manual-match", body, nil)
	assert.Equal(t, http.StatusOK, status)

	status = env.DoJSON(t, http.MethodPost, "/api/v1/transactions/manual-match", body, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	var report services.HealthReport
	status = env.DoJSON(t, http.MethodGet, "/api/v1/health", nil, &report)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", report.Status)

	env.Redis.Close()
	status, _ = env.Do(http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
