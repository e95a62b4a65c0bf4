package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nimasrn/bank-reconciler/internal/bankapi"
	"github.com/nimasrn/bank-reconciler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBankClient struct {
	mock.Mock
}

func (m *MockBankClient) FetchTransactionHistory(ctx context.Context, bankCode, account, token string) ([]model.RawTransaction, error) {
	args := m.Called(ctx, bankCode, account, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RawTransaction), args.Error(1)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		exponent int32
		want     int64
		negative bool
		wantErr  bool
	}{
		{name: "whole", in: "500000", want: 500000},
		{name: "thousand separators", in: "1,250,000", want: 1250000},
		{name: "trailing zero decimals", in: "500000.00", want: 500000},
		{name: "negative", in: "-20000", want: 20000, negative: true},
		{name: "two digit exponent", in: "12.50", exponent: 2, want: 1250},
		{name: "fraction below unit", in: "12.5", wantErr: true},
		{name: "zero", in: "0", wantErr: true},
		{name: "empty", in: " ", wantErr: true},
		{name: "garbage", in: "12abc", wantErr: true},
		{name: "too large", in: "99999999999999999999", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, negative, err := ParseAmount(tt.in, tt.exponent)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.negative, negative)
		})
	}
}

func TestParseTransactionDate(t *testing.T) {
	want := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	for _, in := range []string{
		"2024-03-01T10:30:00Z",
		"2024-03-01T17:30:00+07:00",
		"2024-03-01T10:30:00",
		"2024-03-01 10:30:00",
		"01/03/2024 10:30:00",
	} {
		got, err := ParseTransactionDate(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), in)
		assert.Equal(t, time.UTC, got.Location(), in)
	}

	got, err := ParseTransactionDate("01/03/2024")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseTransactionDate("yesterday")
	assert.Error(t, err)
}

func TestParseDirection(t *testing.T) {
	d, err := parseDirection("credit", false)
	require.NoError(t, err)
	assert.Equal(t, model.DirectionIn, d)

	d, err = parseDirection("", true)
	require.NoError(t, err)
	assert.Equal(t, model.DirectionOut, d)

	d, err = parseDirection("DR", false)
	require.NoError(t, err)
	assert.Equal(t, model.DirectionOut, d)

	_, err = parseDirection("refund", false)
	assert.Error(t, err)
}

func newIngest(t *testing.T, client BankClient) (*IngestService, *stack) {
	t.Helper()
	s := newStack(t)
	return NewIngestService(client, s.txns, s.recon, IngestConfig{}), s
}

func TestProcessTransactions(t *testing.T) {
	svc, s := newIngest(t, new(MockBankClient))
	ctx := context.Background()

	raw := []model.RawTransaction{
		{TransactionID: "FT001", Amount: "500000", Description: " CK DH123 ", TransactionDate: "2024-03-01T10:00:00Z", Type: "IN"},
		{TransactionID: "FT002", Amount: "-20000", Description: "fee", TransactionDate: "2024-03-01T11:00:00Z"},
		{TransactionID: "", Amount: "100", TransactionDate: "2024-03-01T11:00:00Z"},
		{TransactionID: "FT003", Amount: "abc", TransactionDate: "2024-03-01T11:00:00Z"},
	}

	res, err := svc.ProcessTransactions(ctx, raw, "001", "VCB")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	require.Len(t, res.New, 2)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 3, res.Errors[0].Row)
	assert.Equal(t, "FT003", res.Errors[1].TransactionID)

	stored, err := s.txns.GetByID(ctx, "FT001")
	require.NoError(t, err)
	assert.Equal(t, "CK DH123", stored.Description)
	assert.Equal(t, "001", stored.AccountNumber)
	assert.Equal(t, model.TransactionStatusPending, stored.Status)

	fee, err := s.txns.GetByID(ctx, "FT002")
	require.NoError(t, err)
	assert.Equal(t, model.DirectionOut, fee.Direction)
	assert.Equal(t, int64(20000), fee.Amount)

	again, err := svc.ProcessTransactions(ctx, raw[:2], "001", "VCB")
	require.NoError(t, err)
	assert.Equal(t, 2, again.Processed)
	assert.Empty(t, again.New)
}

func TestProcessTransactions_CancelledContext(t *testing.T) {
	svc, _ := newIngest(t, new(MockBankClient))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.ProcessTransactions(ctx, []model.RawTransaction{{TransactionID: "FT1", Amount: "1", TransactionDate: "2024-03-01"}}, "001", "VCB")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIngestAndMatch(t *testing.T) {
	client := new(MockBankClient)
	svc, s := newIngest(t, client)
	ctx := context.Background()
	s.order(t, "1", 500000, "DH123")

	client.On("FetchTransactionHistory", ctx, "VCB", "001", "token").Return([]model.RawTransaction{
		{TransactionID: "FT001", Amount: "500000", Description: "CK DH123", TransactionDate: "2024-03-01T10:00:00Z"},
		{TransactionID: "FT002", Amount: "-500000", Description: "CK DH123 refund", TransactionDate: "2024-03-01T11:00:00Z"},
	}, nil)

	res, err := svc.IngestAndMatch(ctx, " VCB", "001 ", "token")
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalFetched)
	assert.Equal(t, 2, res.NewTransactions)
	assert.Equal(t, 1, res.MatchedCount)
	assert.Empty(t, res.Errors)

	o, err := s.orders.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusWaitingConfirm, o.PaymentStatus)

	again, err := svc.IngestAndMatch(ctx, "VCB", "001", "token")
	require.NoError(t, err)
	assert.Equal(t, 0, again.NewTransactions)
	assert.Equal(t, 0, again.MatchedCount)
	client.AssertExpectations(t)
}

func TestIngestAndMatch_Errors(t *testing.T) {
	client := new(MockBankClient)
	svc, _ := newIngest(t, client)
	ctx := context.Background()

	_, err := svc.IngestAndMatch(ctx, "", "001", "")
	assert.ErrorIs(t, err, model.ErrValidation)

	client.On("FetchTransactionHistory", ctx, "XYZ", "001", "").
		Return(nil, errors.Join(model.ErrValidation, bankapi.ErrUnknownBank))
	_, err = svc.IngestAndMatch(ctx, "XYZ", "001", "")
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.NotErrorIs(t, err, model.ErrUpstreamFetch)

	client.On("FetchTransactionHistory", ctx, "VCB", "001", "").Return(nil, bankapi.ErrCircuitOpen)
	_, err = svc.IngestAndMatch(ctx, "VCB", "001", "")
	assert.ErrorIs(t, err, model.ErrUpstreamFetch)
	assert.ErrorIs(t, err, bankapi.ErrCircuitOpen)
}

func TestImportStatement(t *testing.T) {
	svc, s := newIngest(t, new(MockBankClient))
	ctx := context.Background()
	s.order(t, "1", 750000, "DH900")

	csv := strings.Join([]string{
		"transaction_id,transaction_date,description,amount,direction",
		"ST001,2024-03-02 08:15:00,CK DH900,\"750,000\",credit",
		"ST002,2024-03-02 09:00:00,cash withdrawal,200000,debit",
		"ST003,not a date,broken,1000,credit",
	}, "\n")

	res, err := svc.ImportStatement(ctx, "ACB", "002", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalFetched)
	assert.Equal(t, 2, res.NewTransactions)
	assert.Equal(t, 1, res.MatchedCount)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "ST003", res.Errors[0].TransactionID)

	txn, err := s.txns.GetByID(ctx, "ST001")
	require.NoError(t, err)
	assert.Equal(t, "ACB", txn.BankCode)
	assert.True(t, txn.Matched())
}

func TestImportStatement_Validation(t *testing.T) {
	svc, _ := newIngest(t, new(MockBankClient))

	_, err := svc.ImportStatement(context.Background(), "ACB", " ", strings.NewReader(""))
	assert.ErrorIs(t, err, model.ErrValidation)
}
