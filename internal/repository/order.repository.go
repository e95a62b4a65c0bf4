package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/bank-reconciler/internal/model"
	"github.com/nimasrn/bank-reconciler/pkg/pg"
	"gorm.io/gorm"
)

type OrderRepository struct {
	*pg.DB
}

func NewOrderRepository(db *pg.DB) *OrderRepository {
	return &OrderRepository{
		db,
	}
}

func (r *OrderRepository) Create(ctx context.Context, order *model.Order) (*model.Order, error) {
	entity := toOrderEntity(order)

	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toOrderModel(entity), nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*model.Order, error) {
	var entity OrderEntity
	err := r.Read(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %s", model.ErrNotFound, id)
		}
		return nil, err
	}
	return toOrderModel(&entity), nil
}

// GetByTransferContent resolves an order through its unique reference code.
func (r *OrderRepository) GetByTransferContent(ctx context.Context, ref string) (*model.Order, error) {
	var entity OrderEntity
	err := r.Read(ctx).Where("transfer_content = ?", ref).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order with reference %q", model.ErrNotFound, ref)
		}
		return nil, err
	}
	return toOrderModel(&entity), nil
}

// ListCandidatesByAmount returns orders awaiting a bank payment of exactly
// amount, oldest first. An empty methods list does not filter on method.
func (r *OrderRepository) ListCandidatesByAmount(ctx context.Context, amount int64, methods []string) ([]*model.Order, error) {
	var entities []*OrderEntity

	q := r.Read(ctx).
		Where("total_amount = ? AND payment_status = ? AND bank_transaction_id IS NULL", amount, model.PaymentStatusPending)
	if len(methods) > 0 {
		q = q.Where("payment_method IN ?", methods)
	}

	err := q.Order("created_at ASC").Order("id ASC").Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toOrderModels(entities), nil
}

// MarkPaymentReceived links the order to its bank transaction and moves it
// out of pending. It only succeeds while the order is still pending and
// unlinked.
func (r *OrderRepository) MarkPaymentReceived(ctx context.Context, id, transactionID string, status model.PaymentStatus, at time.Time) error {
	if status != model.PaymentStatusWaitingConfirm && status != model.PaymentStatusPaid {
		return fmt.Errorf("%w: order cannot move to %s through a payment", model.ErrInvalidState, status)
	}

	result := r.Write(ctx).
		Model(&OrderEntity{}).
		Where("id = ? AND payment_status = ? AND bank_transaction_id IS NULL", id, model.PaymentStatusPending).
		Updates(map[string]any{
			"payment_status":      status,
			"bank_transaction_id": transactionID,
			"payment_date":        at.UTC(),
			"updated_at":          time.Now().UTC(),
		})
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
	return fmt.Errorf("%w: order %s is %s", model.ErrOrderNotPending, id, current.PaymentStatus)
}
