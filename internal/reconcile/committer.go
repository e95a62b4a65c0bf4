package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/bank-reconciler/internal/events"
	"github.com/nimasrn/bank-reconciler/internal/model"
	"github.com/nimasrn/bank-reconciler/pkg/logger"
	"github.com/nimasrn/bank-reconciler/pkg/prom"
)

// Path names the flow that produced a match.
type Path string

const (
	PathWorker Path = "worker"
	PathLookup Path = "lookup"
	PathManual Path = "manual"
)

type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type TransactionClaimer interface {
	ClaimForOrder(ctx context.Context, id, orderID, userID string, at time.Time) error
}

type OrderPayments interface {
	MarkPaymentReceived(ctx context.Context, id, transactionID string, status model.PaymentStatus, at time.Time) error
}

type EventPublisher interface {
	PaymentMatched(ctx context.Context, e events.PaymentMatched) error
}

type Match struct {
	TransactionID string              `json:"transaction_id"`
	OrderID       string              `json:"order_id"`
	UserID        string              `json:"user_id"`
	Amount        int64               `json:"amount"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
	MatchedAt     time.Time           `json:"matched_at"`
}

// Committer writes a match decision. The transaction claim and the order
// transition are applied in one database transaction; either both land or
// neither does.
type Committer struct {
	db     Transactor
	txns   TransactionClaimer
	orders OrderPayments
	events EventPublisher
	now    func() time.Time
}

// NewCommitter builds a committer. publisher may be nil.
func NewCommitter(db Transactor, txns TransactionClaimer, orders OrderPayments, publisher EventPublisher) *Committer {
	return &Committer{
		db:     db,
		txns:   txns,
		orders: orders,
		events: publisher,
		now:    time.Now,
	}
}

func (c *Committer) Commit(ctx context.Context, txn *model.BankTransaction, order *model.Order, status model.PaymentStatus, path Path) (*Match, error) {
	at := c.now().UTC()

	err := c.db.WithinTransaction(ctx, func(ctx context.Context) error {
		// the order row is taken first so two transactions racing for one
		// order fail on its status check rather than on the order_id index
		if err := c.orders.MarkPaymentReceived(ctx, order.ID, txn.ID, status, at); err != nil {
			return err
		}
		return c.txns.ClaimForOrder(ctx, txn.ID, order.ID, order.UserID, at)
	})
	if err != nil {
		if errors.Is(err, model.ErrAlreadyMatched) || errors.Is(err, model.ErrOrderNotPending) {
			prom.IncMatchConflict(string(path))
		}
		return nil, err
	}

	m := &Match{
		TransactionID: txn.ID,
		OrderID:       order.ID,
		UserID:        order.UserID,
		Amount:        txn.Amount,
		PaymentStatus: status,
		MatchedAt:     at,
	}
	prom.IncMatch(string(path))
	logger.Info("payment matched",
		"transaction_id", m.TransactionID,
		"order_id", m.OrderID,
		"amount", m.Amount,
		"payment_status", m.PaymentStatus,
		"path", path)

	c.publish(ctx, m, path)
	return m, nil
}

func (c *Committer) publish(ctx context.Context, m *Match, path Path) {
	if c.events == nil {
		return
	}
	err := c.events.PaymentMatched(ctx, events.PaymentMatched{
		TransactionID: m.TransactionID,
		OrderID:       m.OrderID,
		UserID:        m.UserID,
		Amount:        m.Amount,
		PaymentStatus: string(m.PaymentStatus),
		Path:          string(path),
		MatchedAt:     m.MatchedAt,
	})
	if err != nil {
		logger.Warn("failed to publish payment event", "transaction_id", m.TransactionID, "order_id", m.OrderID, "error", err)
	}
}
