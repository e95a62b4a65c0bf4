package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/bank-reconciler/internal/events"
	"github.com/nimasrn/bank-reconciler/internal/matching"
	"github.com/nimasrn/bank-reconciler/internal/model"
	"github.com/nimasrn/bank-reconciler/internal/repository"
	"github.com/nimasrn/bank-reconciler/pkg/redis"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	txns      *repository.BankTransactionRepository
	orders    *repository.OrderRepository
	committer *Committer
	publisher *events.Publisher
	recon     *Reconciler
	mr        *miniredis.Miniredis
	adapter   redis.RedisAdapter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := repository.OpenTestDB(t)
	mr := miniredis.RunT(t)
	adapter, err := redis.NewRedisAdapter(t.Name()+"-"+mr.Addr(), "test:", &redis.Options{Addrs: []string{mr.Addr()}})
	require.NoError(t, err)
	publisher, err := events.NewPublisher(adapter, events.Config{Stream: "payments"})
	require.NoError(t, err)

	f := &fixture{
		txns:      repository.NewBankTransactionRepository(db),
		orders:    repository.NewOrderRepository(db),
		publisher: publisher,
		mr:        mr,
		adapter:   adapter,
	}
	f.committer = NewCommitter(db, f.txns, f.orders, publisher)
	engine := matching.NewEngine(matching.Config{
		PaymentMethods: []string{model.PaymentMethodBankTransfer, model.PaymentMethodATM},
	})
	f.recon = NewReconciler(f.txns, f.orders, engine, f.committer)
	return f
}

func (f *fixture) addOrder(t *testing.T, id string, amount int64, ref string, createdAt time.Time) *model.Order {
	t.Helper()
	o, err := f.orders.Create(context.Background(), &model.Order{
		ID:              id,
		UserID:          "user-" + id,
		Code:            "ORD-" + id,
		TotalAmount:     amount,
		TransferContent: ref,
		PaymentMethod:   model.PaymentMethodBankTransfer,
		PaymentStatus:   model.PaymentStatusPending,
		CreatedAt:       createdAt,
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) addTxn(t *testing.T, id string, amount int64, desc string, at time.Time) *model.BankTransaction {
	t.Helper()
	txn := &model.BankTransaction{
		ID:              id,
		BankCode:        "VCB",
		AccountNumber:   "0011001234567",
		Amount:          amount,
		Direction:       model.DirectionIn,
		Description:     desc,
		TransactionDate: at,
		Status:          model.TransactionStatusPending,
	}
	inserted, err := f.txns.Insert(context.Background(), txn)
	require.NoError(t, err)
	require.True(t, inserted)
	return txn
}
