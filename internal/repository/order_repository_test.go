package repository

import (
	"context"
	"testing"
	"time"

	"github.com/nimasrn/bank-reconciler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(id string, amount int64, ref string, createdAt time.Time) *model.Order {
	return &model.Order{
		ID:              id,
		UserID:          "user-" + id,
		Code:            "ORD-" + id,
		TotalAmount:     amount,
		TransferContent: ref,
		PaymentMethod:   model.PaymentMethodBankTransfer,
		PaymentStatus:   model.PaymentStatusPending,
		CreatedAt:       createdAt,
	}
}

func TestOrderRepository_GetByTransferContent(t *testing.T) {
	repo := NewOrderRepository(setupTestDB(t).DB)
	ctx := context.Background()

	_, err := repo.Create(ctx, newOrder("1", 500000, "DH123", baseTime))
	require.NoError(t, err)
	// orders without a reference do not collide on the unique index
	_, err = repo.Create(ctx, newOrder("2", 500000, "", baseTime))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newOrder("3", 500000, "", baseTime))
	require.NoError(t, err)

	got, err := repo.GetByTransferContent(ctx, "DH123")
	require.NoError(t, err)
	assert.Equal(t, "1", got.ID)

	_, err = repo.GetByTransferContent(ctx, "DH999")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = repo.Create(ctx, newOrder("4", 1, "DH123", baseTime))
	assert.Error(t, err)
}

func TestOrderRepository_ListCandidatesByAmount(t *testing.T) {
	repo := NewOrderRepository(setupTestDB(t).DB)
	ctx := context.Background()

	cod := newOrder("cod", 500000, "DH1", baseTime)
	cod.PaymentMethod = model.PaymentMethodCOD
	paid := newOrder("paid", 500000, "DH2", baseTime)
	paid.PaymentStatus = model.PaymentStatusPaid
	atm := newOrder("atm", 500000, "DH3", baseTime.Add(time.Minute))
	atm.PaymentMethod = model.PaymentMethodATM

	for _, o := range []*model.Order{
		newOrder("late", 500000, "DH4", baseTime.Add(time.Hour)),
		newOrder("early", 500000, "DH5", baseTime),
		newOrder("other-amount", 400000, "DH6", baseTime),
		cod, paid, atm,
	} {
		_, err := repo.Create(ctx, o)
		require.NoError(t, err)
	}

	got, err := repo.ListCandidatesByAmount(ctx, 500000, []string{model.PaymentMethodBankTransfer, model.PaymentMethodATM})
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, o := range got {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"early", "atm", "late"}, ids)

	got, err = repo.ListCandidatesByAmount(ctx, 500000, nil)
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestOrderRepository_MarkPaymentReceived(t *testing.T) {
	repo := NewOrderRepository(setupTestDB(t).DB)
	ctx := context.Background()

	_, err := repo.Create(ctx, newOrder("1", 500000, "DH123", baseTime))
	require.NoError(t, err)

	at := baseTime.Add(time.Hour)
	require.NoError(t, repo.MarkPaymentReceived(ctx, "1", "FT001", model.PaymentStatusWaitingConfirm, at))

	got, err := repo.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusWaitingConfirm, got.PaymentStatus)
	require.NotNil(t, got.BankTransactionID)
	assert.Equal(t, "FT001", *got.BankTransactionID)
	require.NotNil(t, got.PaymentDate)
	assert.True(t, got.PaymentDate.Equal(at))

	err = repo.MarkPaymentReceived(ctx, "1", "FT002", model.PaymentStatusPaid, at)
	assert.ErrorIs(t, err, model.ErrOrderNotPending)

	err = repo.MarkPaymentReceived(ctx, "missing", "FT003", model.PaymentStatusPaid, at)
	assert.ErrorIs(t, err, model.ErrNotFound)

	err = repo.MarkPaymentReceived(ctx, "1", "FT004", model.PaymentStatusCancelled, at)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}
