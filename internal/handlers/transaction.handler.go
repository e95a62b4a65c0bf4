package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fasthttp/router"
	"github.com/nimasrn/bank-reconciler/internal/model"
	"github.com/nimasrn/bank-reconciler/internal/reconcile"
	"github.com/nimasrn/bank-reconciler/internal/services"
	xhttp "github.com/nimasrn/bank-reconciler/pkg/http"
)

type TransactionService interface {
	List(ctx context.Context, f model.TransactionFilter) (*model.TransactionPage, error)
	Get(ctx context.Context, id string) (*model.BankTransaction, error)
	UpdateStatus(ctx context.Context, id string, status string, note *string) (*model.BankTransaction, error)
	Delete(ctx context.Context, id string) error
	ExportCSV(ctx context.Context, f model.TransactionFilter) (string, error)
}

type IngestService interface {
	IngestAndMatch(ctx context.Context, bankCode, account, token string) (*model.IngestResult, error)
	ImportStatement(ctx context.Context, bankCode, account string, r io.Reader) (*model.IngestResult, error)
}

type ReconciliationService interface {
	CheckByReference(ctx context.Context, ref string, amount *int64) (*services.CheckResult, error)
	ManualMatch(ctx context.Context, transactionID, orderID string) (*services.ManualMatchResult, error)
	RunAutoMatch(ctx context.Context) (*reconcile.Summary, error)
}

type TransactionHandler struct {
	txns   TransactionService
	ingest IngestService
	recon  ReconciliationService
}

func RegisterTransactionRoutes(e *router.Group, h *TransactionHandler) {
	e.GET("/transactions", h.ListTransactions)
	e.GET("/transactions/check", h.CheckByReference)
	e.GET("/transactions/export", h.ExportTransactions)
	e.POST("/transactions/ingest", h.IngestAndMatch)
	e.POST("/transactions/import", h.ImportStatement)
	e.POST("/transactions/auto-match", h.RunAutoMatch)
	e.POST("/transactions/manual-match", h.ManualMatch)
	e.GET("/transactions/{id}", h.GetTransaction)
	e.PUT("/transactions/{id}/status", h.UpdateStatus)
	e.DELETE("/transactions/{id}", h.DeleteTransaction)
}

func NewTransactionHandler(txns TransactionService, ingest IngestService, recon ReconciliationService) *TransactionHandler {
	return &TransactionHandler{
		txns:   txns,
		ingest: ingest,
		recon:  recon,
	}
}

type ingestRequest struct {
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	Token         string `json:"token"`
}

type manualMatchRequest struct {
	TransactionID string `json:"transaction_id"`
	OrderID       string `json:"order_id"`
}

type updateStatusRequest struct {
	Status string  `json:"status"`
	Note   *string `json:"note"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *TransactionHandler) ListTransactions(ctx *xhttp.RequestCtx) {
	f, err := parseFilter(ctx)
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}

	page, err := h.txns.List(ctx, f)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, page)
}

func (h *TransactionHandler) ExportTransactions(ctx *xhttp.RequestCtx) {
	f, err := parseFilter(ctx)
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}

	out, err := h.txns.ExportCSV(ctx, f)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.Response.Header.Set("Content-Type", "text/csv; charset=utf-8")
	ctx.Response.Header.Set("Content-Disposition", `attachment; filename="transactions.csv"`)
	ctx.Response.SetStatusCode(xhttp.StatusOK)
	ctx.Response.SetBodyString(out)
}

func (h *TransactionHandler) GetTransaction(ctx *xhttp.RequestCtx) {
	txn, err := h.txns.Get(ctx, pathParam(ctx, "id"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, txn)
}

func (h *TransactionHandler) IngestAndMatch(ctx *xhttp.RequestCtx) {
	var req ingestRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	res, err := h.ingest.IngestAndMatch(ctx, req.BankCode, req.AccountNumber, req.Token)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, res)
}

// ImportStatement takes the raw CSV as the body; bank_code and
// account_number come from the query string.
func (h *TransactionHandler) ImportStatement(ctx *xhttp.RequestCtx) {
	body := ctx.PostBody()
	if len(body) == 0 {
		writeError(ctx, xhttp.StatusBadRequest, "statement body is empty")
		return
	}

	res, err := h.ingest.ImportStatement(ctx, query(ctx, "bank_code"), query(ctx, "account_number"), bytes.NewReader(body))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, res)
}

func (h *TransactionHandler) RunAutoMatch(ctx *xhttp.RequestCtx) {
	summary, err := h.recon.RunAutoMatch(ctx)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, summary)
}

func (h *TransactionHandler) ManualMatch(ctx *xhttp.RequestCtx) {
	var req manualMatchRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	res, err := h.recon.ManualMatch(ctx, req.TransactionID, req.OrderID)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, res)
}

func (h *TransactionHandler) CheckByReference(ctx *xhttp.RequestCtx) {
	ref := query(ctx, "order_ref")
	var amount *int64
	if v := query(ctx, "amount"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "invalid amount: "+v)
			return
		}
		amount = &n
	}

	res, err := h.recon.CheckByReference(ctx, ref, amount)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, res)
}

func (h *TransactionHandler) UpdateStatus(ctx *xhttp.RequestCtx) {
	var req updateStatusRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	txn, err := h.txns.UpdateStatus(ctx, pathParam(ctx, "id"), req.Status, req.Note)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, txn)
}

func (h *TransactionHandler) DeleteTransaction(ctx *xhttp.RequestCtx) {
	if err := h.txns.Delete(ctx, pathParam(ctx, "id")); err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, map[string]bool{"deleted": true})
}

func parseFilter(ctx *xhttp.RequestCtx) (model.TransactionFilter, error) {
	var f model.TransactionFilter

	if v := query(ctx, "account_number"); v != "" {
		f.AccountNumber = &v
	}
	if v := query(ctx, "bank_code"); v != "" {
		f.BankCode = &v
	}
	if v := query(ctx, "status"); v != "" {
		s := model.TransactionStatus(strings.ToLower(v))
		f.Status = &s
	}
	if v := query(ctx, "direction"); v != "" {
		d := model.Direction(strings.ToLower(v))
		if d != model.DirectionIn && d != model.DirectionOut {
			return f, fmt.Errorf("invalid direction %q", v)
		}
		f.Direction = &d
	}
	if v := query(ctx, "from"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return f, fmt.Errorf("invalid from %q", v)
		}
		f.From = &t
	}
	if v := query(ctx, "to"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return f, fmt.Errorf("invalid to %q", v)
		}
		// a bare date includes the whole day
		if len(v) == len("2006-01-02") {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		f.To = &t
	}

	var err error
	if f.Page, _, err = queryInt(ctx, "page"); err != nil {
		return f, fmt.Errorf("invalid page %q", query(ctx, "page"))
	}
	if f.PageSize, _, err = queryInt(ctx, "page_size"); err != nil {
		return f, fmt.Errorf("invalid page_size %q", query(ctx, "page_size"))
	}

	switch v := model.SortField(query(ctx, "sort")); v {
	case "", model.SortByTransactionDate, model.SortByAmount:
		f.SortBy = v
	default:
		return f, fmt.Errorf("invalid sort %q", v)
	}
	f.Asc = strings.EqualFold(query(ctx, "order"), "asc")
	return f, nil
}
