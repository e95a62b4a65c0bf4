package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nimasrn/bank-reconciler/internal/model"
	"github.com/nimasrn/bank-reconciler/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BankTransactionRepository struct {
	*pg.DB
}

func NewBankTransactionRepository(db *pg.DB) *BankTransactionRepository {
	return &BankTransactionRepository{
		db,
	}
}

// Insert stores txn unless a row with the same id exists. The returned flag
// is true only when this call created the row.
func (r *BankTransactionRepository) Insert(ctx context.Context, txn *model.BankTransaction) (bool, error) {
	entity := toBankTransactionEntity(txn)

	result := r.Write(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(entity)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	*txn = *toBankTransactionModel(entity)
	return true, nil
}

func (r *BankTransactionRepository) GetByID(ctx context.Context, id string) (*model.BankTransaction, error) {
	var entity BankTransactionEntity
	err := r.Read(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: transaction %s", model.ErrNotFound, id)
		}
		return nil, err
	}
	return toBankTransactionModel(&entity), nil
}

// ListUnmatchedIncoming returns pending incoming transactions, newest first.
// When ids is not empty only those rows are considered.
func (r *BankTransactionRepository) ListUnmatchedIncoming(ctx context.Context, ids []string) ([]*model.BankTransaction, error) {
	var entities []*BankTransactionEntity

	q := r.Read(ctx).
		Where("status = ? AND direction = ?", model.TransactionStatusPending, model.DirectionIn)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	err := q.Order("transaction_date DESC").Order("id DESC").Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toBankTransactionModels(entities), nil
}

// FindLatestByReference returns the most recent incoming transaction whose
// description contains ref, ignoring case. Cancelled rows are never returned.
func (r *BankTransactionRepository) FindLatestByReference(ctx context.Context, ref string, amount *int64) (*model.BankTransaction, error) {
	var entity BankTransactionEntity

	q := r.Read(ctx).
		Where("direction = ?", model.DirectionIn).
		Where("status IN ?", []string{string(model.TransactionStatusPending), string(model.TransactionStatusCompleted)}).
		Where(`LOWER(description) LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(ref))+"%")
	if amount != nil {
		q = q.Where("amount = ?", *amount)
	}

	err := q.Order("transaction_date DESC").Order("id DESC").First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no transaction references %q", model.ErrNotFound, ref)
		}
		return nil, err
	}
	return toBankTransactionModel(&entity), nil
}

func (r *BankTransactionRepository) List(ctx context.Context, f model.TransactionFilter) (*model.TransactionPage, error) {
	f.Normalize()

	q := r.Read(ctx).Model(&BankTransactionEntity{})
	if f.AccountNumber != nil {
		q = q.Where("account_number = ?", *f.AccountNumber)
	}
	if f.BankCode != nil {
		q = q.Where("bank_code = ?", *f.BankCode)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.Direction != nil {
		q = q.Where("direction = ?", *f.Direction)
	}
	if f.From != nil {
		q = q.Where("transaction_date >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("transaction_date <= ?", f.To.UTC())
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}

	var entities []*BankTransactionEntity
	err := q.Order(clause.OrderByColumn{Column: clause.Column{Name: string(f.SortBy)}, Desc: !f.Asc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: !f.Asc}).
		Limit(f.PageSize).
		Offset((f.Page - 1) * f.PageSize).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}

	pages := int((total + int64(f.PageSize) - 1) / int64(f.PageSize))
	items := toBankTransactionModels(entities)
	if items == nil {
		items = []*model.BankTransaction{}
	}
	return &model.TransactionPage{
		Items:      items,
		Total:      total,
		Page:       f.Page,
		PageSize:   f.PageSize,
		TotalPages: pages,
	}, nil
}

// ClaimForOrder moves a pending incoming transaction to completed and links
// it to the order in a single conditional update. Exactly one concurrent
// caller can win the claim; the others get ErrAlreadyMatched.
func (r *BankTransactionRepository) ClaimForOrder(ctx context.Context, id, orderID, userID string, at time.Time) error {
	result := r.Write(ctx).
		Model(&BankTransactionEntity{}).
		Where("id = ? AND status = ? AND direction = ?", id, model.TransactionStatusPending, model.DirectionIn).
		Updates(map[string]any{
			"status":     model.TransactionStatusCompleted,
			"order_id":   orderID,
			"user_id":    userID,
			"matched_at": at.UTC(),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}
	return r.claimFailureReason(ctx, id)
}

func (r *BankTransactionRepository) claimFailureReason(ctx context.Context, id string) error {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Matched() {
		return fmt.Errorf("%w: transaction %s", model.ErrAlreadyMatched, id)
	}
	return fmt.Errorf("%w: transaction %s is %s/%s", model.ErrInvalidState, id, current.Status, current.Direction)
}

// UpdateStatus applies an operator status change. The update is conditional
// on the status observed when validating, so a concurrent match wins.
func (r *BankTransactionRepository) UpdateStatus(ctx context.Context, id string, status model.TransactionStatus, note *string) (*model.BankTransaction, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := current.CanTransitionTo(status); err != nil {
		return nil, err
	}

	updates := map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if note != nil {
		updates["note"] = *note
	}

	result := r.Write(ctx).
		Model(&BankTransactionEntity{}).
		Where("id = ? AND status = ?", id, current.Status).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, r.claimFailureReason(ctx, id)
	}
	return r.GetByID(ctx, id)
}

// Delete removes an unmatched transaction. Matched rows are part of an
// order's payment record and are kept.
func (r *BankTransactionRepository) Delete(ctx context.Context, id string) error {
	result := r.Write(ctx).
		Where("id = ? AND status <> ?", id, model.TransactionStatusCompleted).
		Delete(&BankTransactionEntity{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Matched() {
		return fmt.Errorf("%w: cannot delete matched transaction %s", model.ErrAlreadyMatched, id)
	}
	return fmt.Errorf("delete transaction %s: no rows affected", id)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
