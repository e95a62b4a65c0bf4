package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nimasrn/bank-reconciler/internal/matching"
	"github.com/nimasrn/bank-reconciler/internal/model"
	"github.com/nimasrn/bank-reconciler/internal/reconcile"
	"github.com/nimasrn/bank-reconciler/pkg/logger"
)

type LookupTransactionRepository interface {
	GetByID(ctx context.Context, id string) (*model.BankTransaction, error)
	FindLatestByReference(ctx context.Context, ref string, amount *int64) (*model.BankTransaction, error)
}

type LookupOrderRepository interface {
	GetByID(ctx context.Context, id string) (*model.Order, error)
	GetByTransferContent(ctx context.Context, ref string) (*model.Order, error)
}

type MatchCommitter interface {
	Commit(ctx context.Context, txn *model.BankTransaction, order *model.Order, status model.PaymentStatus, path reconcile.Path) (*reconcile.Match, error)
}

type AutoMatcher interface {
	RunOnce(ctx context.Context) (*reconcile.Summary, error)
}

type CheckResult struct {
	Found bool `json:"found"`
	// Matched reports the transaction state after the call.
	Matched bool `json:"matched"`
	// Committed is true only for the call that performed the match.
	Committed   bool                   `json:"committed"`
	Reason      string                 `json:"reason,omitempty"`
	Transaction *model.BankTransaction `json:"transaction,omitempty"`
}

type ManualMatchResult struct {
	TransactionID string `json:"transaction_id"`
	OrderID       string `json:"order_id"`
	Amount        int64  `json:"amount"`
}

type ReconciliationService struct {
	txns      LookupTransactionRepository
	orders    LookupOrderRepository
	engine    *matching.Engine
	committer MatchCommitter
	auto      AutoMatcher
}

func NewReconciliationService(txns LookupTransactionRepository, orders LookupOrderRepository, engine *matching.Engine, committer MatchCommitter, auto AutoMatcher) *ReconciliationService {
	return &ReconciliationService{
		txns:      txns,
		orders:    orders,
		engine:    engine,
		committer: committer,
		auto:      auto,
	}
}

// CheckByReference is called while a customer waits on the payment page. It
// looks for a transfer quoting ref and, when the referenced order is still
// open, settles it as paid.
func (s *ReconciliationService) CheckByReference(ctx context.Context, ref string, amount *int64) (*CheckResult, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: order reference is required", model.ErrValidation)
	}
	if amount != nil && *amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", model.ErrValidation)
	}

	txn, err := s.txns.FindLatestByReference(ctx, ref, amount)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return &CheckResult{}, nil
		}
		return nil, err
	}
	if txn.Matched() {
		return &CheckResult{Found: true, Matched: true, Transaction: txn}, nil
	}

	order, err := s.orders.GetByTransferContent(ctx, ref)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	res := s.engine.MatchByReference(txn, ref, amount, order)
	if !res.Matched {
		return &CheckResult{Found: true, Reason: string(res.Reason), Transaction: txn}, nil
	}

	_, err = s.committer.Commit(ctx, txn, res.Order, model.PaymentStatusPaid, reconcile.PathLookup)
	if err != nil {
		if !errors.Is(err, model.ErrAlreadyMatched) && !errors.Is(err, model.ErrOrderNotPending) {
			return nil, err
		}
		current, gerr := s.txns.GetByID(ctx, txn.ID)
		if gerr != nil {
			return nil, gerr
		}
		logger.Info("lookup lost match to a concurrent writer", "transaction_id", txn.ID, "reference", ref, "error", err)
		return &CheckResult{Found: true, Matched: current.Matched(), Transaction: current}, nil
	}

	current, err := s.txns.GetByID(ctx, txn.ID)
	if err != nil {
		return nil, err
	}
	return &CheckResult{Found: true, Matched: true, Committed: true, Reason: string(res.Reason), Transaction: current}, nil
}

// ManualMatch lets an operator assign a transaction to an order directly.
func (s *ReconciliationService) ManualMatch(ctx context.Context, transactionID, orderID string) (*ManualMatchResult, error) {
	transactionID, orderID = strings.TrimSpace(transactionID), strings.TrimSpace(orderID)
	if transactionID == "" || orderID == "" {
		return nil, fmt.Errorf("%w: transaction id and order id are required", model.ErrValidation)
	}

	txn, err := s.txns.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if txn.Matched() {
		return nil, fmt.Errorf("%w: transaction %s", model.ErrAlreadyMatched, txn.ID)
	}
	if !txn.Matchable() {
		return nil, fmt.Errorf("%w: transaction %s is %s/%s", model.ErrInvalidState, txn.ID, txn.Status, txn.Direction)
	}
	if !order.AwaitingPayment() {
		return nil, fmt.Errorf("%w: order %s is %s", model.ErrOrderNotPending, order.ID, order.PaymentStatus)
	}
	if txn.Amount != order.TotalAmount {
		logger.Warn("manual match with differing amounts",
			"transaction_id", txn.ID,
			"order_id", order.ID,
			"transaction_amount", txn.Amount,
			"order_total", order.TotalAmount)
	}

	if _, err := s.committer.Commit(ctx, txn, order, model.PaymentStatusPaid, reconcile.PathManual); err != nil {
		return nil, err
	}
	return &ManualMatchResult{TransactionID: txn.ID, OrderID: order.ID, Amount: txn.Amount}, nil
}

// RunAutoMatch runs a worker pass now. It fails with
// reconcile.ErrRunInProgress when a pass is already running.
func (s *ReconciliationService) RunAutoMatch(ctx context.Context) (*reconcile.Summary, error) {
	return s.auto.RunOnce(ctx)
}
