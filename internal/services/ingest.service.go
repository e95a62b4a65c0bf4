package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/nimasrn/bank-reconciler/internal/model"
	"github.com/nimasrn/bank-reconciler/internal/reconcile"
	"github.com/nimasrn/bank-reconciler/pkg/logger"
	"github.com/nimasrn/bank-reconciler/pkg/prom"
	"github.com/shopspring/decimal"
)

type BankClient interface {
	FetchTransactionHistory(ctx context.Context, bankCode, account, token string) ([]model.RawTransaction, error)
}

type TransactionWriter interface {
	Insert(ctx context.Context, txn *model.BankTransaction) (bool, error)
}

type MatchRunner interface {
	RunFor(ctx context.Context, ids []string) (*reconcile.Summary, error)
}

type IngestConfig struct {
	// CurrencyExponent is the number of minor unit digits, 0 for VND, 2 for USD.
	CurrencyExponent int32
}

type IngestService struct {
	client   BankClient
	txns     TransactionWriter
	matcher  MatchRunner
	exponent int32
}

func NewIngestService(client BankClient, txns TransactionWriter, matcher MatchRunner, config IngestConfig) *IngestService {
	return &IngestService{
		client:   client,
		txns:     txns,
		matcher:  matcher,
		exponent: config.CurrencyExponent,
	}
}

// IngestAndMatch pulls the account history from the bank, stores new rows and
// runs a matching pass over the incoming ones.
func (s *IngestService) IngestAndMatch(ctx context.Context, bankCode, account, token string) (*model.IngestResult, error) {
	bankCode, account = strings.TrimSpace(bankCode), strings.TrimSpace(account)
	if bankCode == "" || account == "" {
		return nil, fmt.Errorf("%w: bank code and account number are required", model.ErrValidation)
	}

	raw, err := s.client.FetchTransactionHistory(ctx, bankCode, account, token)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", model.ErrUpstreamFetch, err)
	}

	return s.storeAndMatch(ctx, raw, account, bankCode)
}

type statementRow struct {
	TransactionID   string `csv:"transaction_id"`
	TransactionDate string `csv:"transaction_date"`
	Description     string `csv:"description"`
	Amount          string `csv:"amount"`
	Direction       string `csv:"direction"`
}

// ImportStatement loads a CSV bank statement with a header row of
// transaction_id, transaction_date, description, amount, direction.
func (s *IngestService) ImportStatement(ctx context.Context, bankCode, account string, r io.Reader) (*model.IngestResult, error) {
	bankCode, account = strings.TrimSpace(bankCode), strings.TrimSpace(account)
	if bankCode == "" || account == "" {
		return nil, fmt.Errorf("%w: bank code and account number are required", model.ErrValidation)
	}

	var rows []*statementRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("%w: invalid statement: %v", model.ErrValidation, err)
	}

	raw := make([]model.RawTransaction, 0, len(rows))
	for _, row := range rows {
		raw = append(raw, model.RawTransaction{
			TransactionID:   row.TransactionID,
			Amount:          row.Amount,
			Description:     row.Description,
			TransactionDate: row.TransactionDate,
			Type:            row.Direction,
		})
	}
	return s.storeAndMatch(ctx, raw, account, bankCode)
}

func (s *IngestService) storeAndMatch(ctx context.Context, raw []model.RawTransaction, account, bankCode string) (*model.IngestResult, error) {
	processed, err := s.ProcessTransactions(ctx, raw, account, bankCode)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(processed.New))
	for _, t := range processed.New {
		if t.Direction == model.DirectionIn {
			ids = append(ids, t.ID)
		}
	}

	result := &model.IngestResult{
		TotalFetched:    len(raw),
		NewTransactions: len(processed.New),
		Errors:          processed.Errors,
	}
	if len(ids) == 0 {
		return result, nil
	}

	summary, err := s.matcher.RunFor(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("match new transactions: %w", err)
	}
	result.MatchedCount = summary.MatchedCount
	return result, nil
}

// ProcessTransactions normalizes raw rows and stores them. Rows already known
// by id are counted as processed but not returned as new. Bad rows are
// reported in Errors and do not stop the batch.
func (s *IngestService) ProcessTransactions(ctx context.Context, raw []model.RawTransaction, account, bankCode string) (*model.ProcessResult, error) {
	result := &model.ProcessResult{
		New:    make([]*model.BankTransaction, 0),
		Errors: make([]model.RowError, 0),
	}
	duplicates := 0

	for i, r := range raw {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		txn, err := s.normalize(r, account, bankCode)
		if err != nil {
			result.Errors = append(result.Errors, model.RowError{TransactionID: r.TransactionID, Row: i + 1, Error: err.Error()})
			continue
		}

		inserted, err := s.txns.Insert(ctx, txn)
		if err != nil {
			logger.Error("failed to store bank transaction", "transaction_id", txn.ID, "error", err)
			result.Errors = append(result.Errors, model.RowError{TransactionID: txn.ID, Row: i + 1, Error: err.Error()})
			continue
		}

		result.Processed++
		if inserted {
			result.New = append(result.New, txn)
		} else {
			duplicates++
		}
	}

	prom.AddIngestedRows("new", len(result.New))
	prom.AddIngestedRows("duplicate", duplicates)
	prom.AddIngestedRows("error", len(result.Errors))
	logger.Info("bank transactions processed",
		"bank", bankCode,
		"account", account,
		"rows", len(raw),
		"new", len(result.New),
		"duplicates", duplicates,
		"errors", len(result.Errors))
	return result, nil
}

func (s *IngestService) normalize(r model.RawTransaction, account, bankCode string) (*model.BankTransaction, error) {
	id := strings.TrimSpace(r.TransactionID)
	if id == "" {
		return nil, errors.New("transaction id is required")
	}

	amount, negative, err := ParseAmount(r.Amount, s.exponent)
	if err != nil {
		return nil, err
	}

	direction, err := parseDirection(r.Type, negative)
	if err != nil {
		return nil, err
	}

	at, err := ParseTransactionDate(r.TransactionDate)
	if err != nil {
		return nil, err
	}

	return &model.BankTransaction{
		ID:              id,
		BankCode:        bankCode,
		AccountNumber:   account,
		Amount:          amount,
		Direction:       direction,
		Description:     strings.TrimSpace(r.Description),
		TransactionDate: at,
		Status:          model.TransactionStatusPending,
	}, nil
}

var maxAmount = decimal.NewFromInt(math.MaxInt64)

// ParseAmount converts a decimal major unit amount into positive minor units.
// The value must be exact at the given exponent.
func ParseAmount(s string, exponent int32) (amount int64, negative bool, err error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false, errors.New("amount is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false, fmt.Errorf("invalid amount %q", s)
	}

	minor := d.Shift(exponent)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, false, fmt.Errorf("amount %s has more than %d decimal places", s, exponent)
	}
	if minor.IsZero() {
		return 0, false, errors.New("amount must not be zero")
	}
	negative = minor.IsNegative()
	minor = minor.Abs()
	if minor.GreaterThan(maxAmount) {
		return 0, false, fmt.Errorf("amount %s is out of range", s)
	}
	return minor.IntPart(), negative, nil
}

func parseDirection(t string, negative bool) (model.Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(t)) {
	case "OUT", "DEBIT", "DR":
		return model.DirectionOut, nil
	case "", "IN", "CREDIT", "CR":
		if negative {
			return model.DirectionOut, nil
		}
		return model.DirectionIn, nil
	}
	return "", fmt.Errorf("unknown transaction type %q", t)
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// ParseTransactionDate accepts the formats banks commonly emit. Values
// without a zone are read as UTC.
func ParseTransactionDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("transaction date is required")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid transaction date %q", s)
}
