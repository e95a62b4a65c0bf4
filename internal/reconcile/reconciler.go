package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/bank-reconciler/internal/matching"
	"github.com/nimasrn/bank-reconciler/internal/model"
	"github.com/nimasrn/bank-reconciler/pkg/logger"
)

type TransactionSource interface {
	ListUnmatchedIncoming(ctx context.Context, ids []string) ([]*model.BankTransaction, error)
}

type CandidateSource interface {
	ListCandidatesByAmount(ctx context.Context, amount int64, methods []string) ([]*model.Order, error)
}

type Outcome string

const (
	OutcomeMatched Outcome = "matched"
	OutcomeNoMatch Outcome = "no_match"
	OutcomeSkipped Outcome = "skipped"
	OutcomeError   Outcome = "error"
)

type ItemResult struct {
	TransactionID string  `json:"transaction_id"`
	OrderID       string  `json:"order_id,omitempty"`
	Amount        int64   `json:"amount"`
	Outcome       Outcome `json:"outcome"`
	Reason        string  `json:"reason,omitempty"`
	Ambiguous     bool    `json:"ambiguous,omitempty"`
	Error         string  `json:"error,omitempty"`
}

type Summary struct {
	MatchedCount   int          `json:"matched_count"`
	ErrorCount     int          `json:"error_count"`
	SkippedCount   int          `json:"skipped_count"`
	TotalProcessed int          `json:"total_processed"`
	Results        []ItemResult `json:"results"`
	StartedAt      time.Time    `json:"started_at"`
	Duration       string       `json:"duration"`
}

func (s *Summary) add(r ItemResult) {
	s.TotalProcessed++
	switch r.Outcome {
	case OutcomeMatched:
		s.MatchedCount++
	case OutcomeSkipped:
		s.SkippedCount++
	case OutcomeError:
		s.ErrorCount++
	}
	s.Results = append(s.Results, r)
}

// Reconciler runs one amount-first matching pass over unmatched incoming
// transactions. Matches found by a pass move orders to waiting_confirm.
type Reconciler struct {
	txns      TransactionSource
	orders    CandidateSource
	engine    *matching.Engine
	committer *Committer
}

func NewReconciler(txns TransactionSource, orders CandidateSource, engine *matching.Engine, committer *Committer) *Reconciler {
	return &Reconciler{
		txns:      txns,
		orders:    orders,
		engine:    engine,
		committer: committer,
	}
}

// RunAll processes every pending incoming transaction, newest first.
func (r *Reconciler) RunAll(ctx context.Context) (*Summary, error) {
	return r.run(ctx, nil)
}

// RunFor processes only the given transactions. An empty list is a no-op.
func (r *Reconciler) RunFor(ctx context.Context, ids []string) (*Summary, error) {
	if len(ids) == 0 {
		return &Summary{StartedAt: time.Now().UTC(), Results: []ItemResult{}, Duration: "0s"}, nil
	}
	return r.run(ctx, ids)
}

func (r *Reconciler) run(ctx context.Context, ids []string) (*Summary, error) {
	started := time.Now()
	summary := &Summary{StartedAt: started.UTC(), Results: []ItemResult{}}

	txns, err := r.txns.ListUnmatchedIncoming(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load unmatched transactions: %w", err)
	}

	for _, txn := range txns {
		if err := ctx.Err(); err != nil {
			break
		}
		summary.add(r.processOne(ctx, txn))
	}

	summary.Duration = time.Since(started).String()
	logger.Info("reconciliation pass finished",
		"total", summary.TotalProcessed,
		"matched", summary.MatchedCount,
		"skipped", summary.SkippedCount,
		"errors", summary.ErrorCount,
		"duration", summary.Duration)
	return summary, nil
}

func (r *Reconciler) processOne(ctx context.Context, txn *model.BankTransaction) ItemResult {
	item := ItemResult{TransactionID: txn.ID, Amount: txn.Amount}

	candidates, err := r.orders.ListCandidatesByAmount(ctx, txn.Amount, r.engine.PaymentMethods())
	if err != nil {
		logger.Error("failed to load candidates", "transaction_id", txn.ID, "amount", txn.Amount, "error", err)
		item.Outcome, item.Error = OutcomeError, err.Error()
		return item
	}

	res := r.engine.MatchByAmount(txn, candidates)
	item.Reason = string(res.Reason)
	item.Ambiguous = res.Ambiguous
	if !res.Matched {
		item.Outcome = OutcomeNoMatch
		return item
	}
	item.OrderID = res.Order.ID

	_, err = r.committer.Commit(ctx, txn, res.Order, model.PaymentStatusWaitingConfirm, PathWorker)
	switch {
	case err == nil:
		item.Outcome = OutcomeMatched
	case errors.Is(err, model.ErrAlreadyMatched), errors.Is(err, model.ErrOrderNotPending):
		logger.Info("match lost to a concurrent writer", "transaction_id", txn.ID, "order_id", res.Order.ID, "error", err)
		item.Outcome, item.Error = OutcomeSkipped, err.Error()
	default:
		logger.Error("failed to commit match", "transaction_id", txn.ID, "order_id", res.Order.ID, "error", err)
		item.Outcome, item.Error = OutcomeError, err.Error()
	}
	return item
}
