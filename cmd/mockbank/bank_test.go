package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nimasrn/bank-reconciler/internal/bankapi"
	"github.com/nimasrn/bank-reconciler/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMockBank_ServesHistoryToBankClient(t *testing.T) {
	bank := NewMockBank("secret", 0)
	bank.Seed("001", 3)
	srv := httptest.NewServer(SetupRouter(NewHandler(bank)))
	defer srv.Close()

	body, _ := json.Marshal(TransferRequest{Amount: 500000, Description: "CK DH123"})
	resp, err := http.Post(srv.URL+"/api/v1/accounts/001/transactions", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	client, err := bankapi.NewClient(&bankapi.Config{Banks: []bankapi.BankConfig{{Code: "MOCK", URL: srv.URL}}})
	require.NoError(t, err)

	raw, err := client.FetchTransactionHistory(context.Background(), "MOCK", "001", "secret")
	require.NoError(t, err)
	require.Len(t, raw, 4)

	for _, r := range raw {
		_, _, err := services.ParseAmount(r.Amount, 0)
		assert.NoError(t, err)
		_, err = services.ParseTransactionDate(r.TransactionDate)
		assert.NoError(t, err)
	}

	_, err = client.FetchTransactionHistory(context.Background(), "MOCK", "001", "wrong")
	assert.ErrorIs(t, err, bankapi.ErrRejected)
}

func TestMockBank_Outage(t *testing.T) {
	router := SetupRouter(NewHandler(NewMockBank("", 1)))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/001/transactions", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/api/v1/config", bytes.NewReader([]byte(`{"fail_rate":0}`)))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/accounts/001/transactions", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","transactions":[]}`, w.Body.String())
}

func TestMockBank_RejectsBadTransfer(t *testing.T) {
	router := SetupRouter(NewHandler(NewMockBank("", 0)))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts/001/transactions", bytes.NewReader([]byte(`{"amount":-5}`)))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
