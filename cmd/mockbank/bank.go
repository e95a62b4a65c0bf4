package main

import (
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Transaction is the wire shape the reconciler's bank client reads.
type Transaction struct {
	TransactionID   string `json:"transactionID"`
	Amount          string `json:"amount"`
	Description     string `json:"description"`
	TransactionDate string `json:"transactionDate"`
	Type            string `json:"type"`
}

type HistoryResponse struct {
	Status       string        `json:"status"`
	Transactions []Transaction `json:"transactions"`
}

// TransferRequest injects an incoming or outgoing movement on an account.
type TransferRequest struct {
	Amount      int64  `json:"amount" binding:"required"`
	Description string `json:"description"`
	Type        string `json:"type"` // "IN" or "OUT", default IN
}

// MockBank simulates a bank's account history api
type MockBank struct {
	mu       sync.RWMutex
	accounts map[string][]Transaction
	failRate float64
	token    string
	bankID   string
	rng      *rand.Rand
}

func NewMockBank(token string, failRate float64) *MockBank {
	return &MockBank{
		accounts: make(map[string][]Transaction),
		failRate: failRate,
		token:    token,
		bankID:   "MOCK_BANK_" + uuid.New().String()[:8],
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Seed adds n synthetic incoming transfers quoting DH-prefixed references.
func (b *MockBank) Seed(account string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := time.Now().UTC().Add(-time.Duration(n) * time.Minute)
	for i := 0; i < n; i++ {
		amount := (b.rng.Int63n(50) + 1) * 10000
		b.accounts[account] = append(b.accounts[account], Transaction{
			TransactionID:   "FT" + strings.ToUpper(uuid.New().String()[:10]),
			Amount:          fmt.Sprintf("%d", amount),
			Description:     fmt.Sprintf("CK DH%06d", b.rng.Intn(1_000_000)),
			TransactionDate: start.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			Type:            "IN",
		})
	}
}

func (b *MockBank) add(account string, req TransferRequest) Transaction {
	typ := strings.ToUpper(req.Type)
	if typ == "" {
		typ = "IN"
	}
	t := Transaction{
		TransactionID:   "FT" + strings.ToUpper(uuid.New().String()[:10]),
		Amount:          fmt.Sprintf("%d", req.Amount),
		Description:     req.Description,
		TransactionDate: time.Now().UTC().Format(time.RFC3339),
		Type:            typ,
	}
	b.mu.Lock()
	b.accounts[account] = append(b.accounts[account], t)
	b.mu.Unlock()
	return t
}

func (b *MockBank) history(account string) []Transaction {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Transaction, len(b.accounts[account]))
	copy(out, b.accounts[account])
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionDate > out[j].TransactionDate })
	return out
}

func (b *MockBank) shouldFail() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rng.Float64() < b.failRate
}

// Handler struct holds the mock bank and routes
type Handler struct {
	bank *MockBank
}

func NewHandler(bank *MockBank) *Handler {
	return &Handler{bank: bank}
}

func (h *Handler) authorized(c *gin.Context) bool {
	if h.bank.token == "" {
		return true
	}
	return c.GetHeader("Authorization") == "Bearer "+h.bank.token
}

// GetTransactions returns the account history, newest first
func (h *Handler) GetTransactions(c *gin.Context) {
	account := c.Param("account")
	if !h.authorized(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "invalid token"})
		return
	}
	if h.bank.shouldFail() {
		log.Warn().Str("account", account).Msg("Simulated bank outage")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "message": "core banking unavailable"})
		return
	}

	txns := h.bank.history(account)
	log.Info().Str("account", account).Int("count", len(txns)).Msg("Served transaction history")
	c.JSON(http.StatusOK, HistoryResponse{Status: "ok", Transactions: txns})
}

// CreateTransfer records a new movement on the account
func (h *Handler) CreateTransfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}
	if req.Amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		return
	}

	t := h.bank.add(c.Param("account"), req)
	log.Info().
		Str("account", c.Param("account")).
		Str("transaction_id", t.TransactionID).
		Str("amount", t.Amount).
		Msg("Transfer recorded")
	c.JSON(http.StatusCreated, t)
}

// UpdateConfig allows changing the simulated failure rate at runtime
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		FailRate *float64 `json:"fail_rate"`
	}
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if config.FailRate != nil && *config.FailRate >= 0 && *config.FailRate <= 1.0 {
		h.bank.mu.Lock()
		h.bank.failRate = *config.FailRate
		h.bank.mu.Unlock()
		log.Info().Float64("rate", *config.FailRate).Msg("Updated fail rate")
	}

	h.bank.mu.RLock()
	rate := h.bank.failRate
	h.bank.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{"fail_rate": rate})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"bank_id":   h.bank.bankID,
		"timestamp": time.Now(),
	})
}

// SetupRouter configures all routes
func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request processed")
	})

	v1 := router.Group("/api/v1")
	{
		v1.GET("/accounts/:account/transactions", handler.GetTransactions)
		v1.POST("/accounts/:account/transactions", handler.CreateTransfer)
		v1.GET("/health", handler.HealthCheck)
		v1.PUT("/config", handler.UpdateConfig)
	}
	router.GET("/health", handler.HealthCheck)

	return router
}
