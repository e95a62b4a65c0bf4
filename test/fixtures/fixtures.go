package fixtures

import (
	"context"
	"testing"
	"time"

	"github.com/nimasrn/bank-reconciler/internal/model"
	"github.com/nimasrn/bank-reconciler/internal/repository"
	"github.com/stretchr/testify/require"
)

var BaseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func PendingOrder(id string, amount int64, ref string) *model.Order {
	return &model.Order{
		ID:              id,
		UserID:          "user-" + id,
		Code:            "ORD-" + id,
		TotalAmount:     amount,
		TransferContent: ref,
		PaymentMethod:   model.PaymentMethodBankTransfer,
		PaymentStatus:   model.PaymentStatusPending,
		CreatedAt:       BaseTime,
	}
}

func IncomingTransaction(id string, amount int64, desc string) *model.BankTransaction {
	return &model.BankTransaction{
		ID:              id,
		BankCode:        "VCB",
		AccountNumber:   "0011001234567",
		Amount:          amount,
		Direction:       model.DirectionIn,
		Description:     desc,
		TransactionDate: BaseTime.Add(time.Hour),
		Status:          model.TransactionStatusPending,
	}
}

func CreateOrders(t *testing.T, repo *repository.OrderRepository, orders ...*model.Order) {
	t.Helper()
	for _, o := range orders {
		_, err := repo.Create(context.Background(), o)
		require.NoError(t, err)
	}
}

func CreateTransactions(t *testing.T, repo *repository.BankTransactionRepository, txns ...*model.BankTransaction) {
	t.Helper()
	for _, txn := range txns {
		_, err := repo.Insert(context.Background(), txn)
		require.NoError(t, err)
	}
}
