package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/nimasrn/bank-reconciler/internal/model"
)

type TransactionRepository interface {
	GetByID(ctx context.Context, id string) (*model.BankTransaction, error)
	List(ctx context.Context, f model.TransactionFilter) (*model.TransactionPage, error)
	UpdateStatus(ctx context.Context, id string, status model.TransactionStatus, note *string) (*model.BankTransaction, error)
	Delete(ctx context.Context, id string) error
}

type TransactionService struct {
	repo TransactionRepository
}

func NewTransactionService(repo TransactionRepository) *TransactionService {
	return &TransactionService{repo: repo}
}

func (s *TransactionService) List(ctx context.Context, f model.TransactionFilter) (*model.TransactionPage, error) {
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return nil, fmt.Errorf("%w: from is after to", model.ErrValidation)
	}
	if f.Status != nil && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrValidation, *f.Status)
	}
	return s.repo.List(ctx, f)
}

func (s *TransactionService) Get(ctx context.Context, id string) (*model.BankTransaction, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: transaction id is required", model.ErrValidation)
	}
	return s.repo.GetByID(ctx, id)
}

// UpdateStatus is the operator path for pending and cancelled rows. Matching
// is the only way to complete a transaction.
func (s *TransactionService) UpdateStatus(ctx context.Context, id string, status string, note *string) (*model.BankTransaction, error) {
	next := model.TransactionStatus(strings.ToLower(strings.TrimSpace(status)))
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrValidation, status)
	}
	if note != nil {
		trimmed := strings.TrimSpace(*note)
		note = &trimmed
	}
	return s.repo.UpdateStatus(ctx, id, next, note)
}

func (s *TransactionService) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: transaction id is required", model.ErrValidation)
	}
	return s.repo.Delete(ctx, id)
}

type exportRow struct {
	ID              string `csv:"transaction_id"`
	BankCode        string `csv:"bank_code"`
	AccountNumber   string `csv:"account_number"`
	TransactionDate string `csv:"transaction_date"`
	Direction       string `csv:"direction"`
	Amount          int64  `csv:"amount"`
	Description     string `csv:"description"`
	Status          string `csv:"status"`
	OrderID         string `csv:"order_id"`
	MatchedAt       string `csv:"matched_at"`
}

// ExportCSV renders every transaction matching f, ignoring its paging.
func (s *TransactionService) ExportCSV(ctx context.Context, f model.TransactionFilter) (string, error) {
	f.Page = 1
	f.PageSize = model.MaxPageSize

	rows := make([]*exportRow, 0)
	for {
		page, err := s.List(ctx, f)
		if err != nil {
			return "", err
		}
		for _, t := range page.Items {
			rows = append(rows, toExportRow(t))
		}
		if f.Page >= page.TotalPages {
			break
		}
		f.Page++
	}

	out, err := gocsv.MarshalString(&rows)
	if err != nil {
		return "", fmt.Errorf("marshal csv: %w", err)
	}
	return out, nil
}

func toExportRow(t *model.BankTransaction) *exportRow {
	r := &exportRow{
		ID:              t.ID,
		BankCode:        t.BankCode,
		AccountNumber:   t.AccountNumber,
		TransactionDate: t.TransactionDate.UTC().Format(time.RFC3339),
		Direction:       string(t.Direction),
		Amount:          t.Amount,
		Description:     t.Description,
		Status:          string(t.Status),
	}
	if t.OrderID != nil {
		r.OrderID = *t.OrderID
	}
	if t.MatchedAt != nil {
		r.MatchedAt = t.MatchedAt.UTC().Format(time.RFC3339)
	}
	return r
}
