package repository

import (
	"time"

	"github.com/nimasrn/bank-reconciler/internal/model"
)

// OrderEntity maps the payment columns of the shop's orders table.
type OrderEntity struct {
	ID                string     `gorm:"primaryKey;column:id;size:64"`
	UserID            string     `gorm:"column:user_id;not null;size:64;index"`
	Code              string     `gorm:"column:code;not null;size:64"`
	TotalAmount       int64      `gorm:"column:total_amount;not null;index:idx_orders_candidates,priority:2"`
	TransferContent   *string    `gorm:"column:transfer_content;size:64;uniqueIndex"`
	PaymentMethod     string     `gorm:"column:payment_method;not null;size:32"`
	PaymentStatus     string     `gorm:"column:payment_status;not null;size:32;default:pending;index:idx_orders_candidates,priority:1"`
	BankTransactionID *string    `gorm:"column:bank_transaction_id;size:128;index"`
	PaymentDate       *time.Time `gorm:"column:payment_date"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (OrderEntity) TableName() string {
	return "orders"
}

func toOrderEntity(m *model.Order) *OrderEntity {
	if m == nil {
		return nil
	}
	status := m.PaymentStatus
	if status == "" {
		status = model.PaymentStatusPending
	}
	return &OrderEntity{
		ID:                m.ID,
		UserID:            m.UserID,
		Code:              m.Code,
		TotalAmount:       m.TotalAmount,
		TransferContent:   nullableString(m.TransferContent),
		PaymentMethod:     m.PaymentMethod,
		PaymentStatus:     string(status),
		BankTransactionID: m.BankTransactionID,
		PaymentDate:       m.PaymentDate,
		CreatedAt:         m.CreatedAt,
	}
}

func toOrderModel(e *OrderEntity) *model.Order {
	if e == nil {
		return nil
	}
	return &model.Order{
		ID:                e.ID,
		UserID:            e.UserID,
		Code:              e.Code,
		TotalAmount:       e.TotalAmount,
		TransferContent:   derefString(e.TransferContent),
		PaymentMethod:     e.PaymentMethod,
		PaymentStatus:     model.PaymentStatus(e.PaymentStatus),
		BankTransactionID: e.BankTransactionID,
		PaymentDate:       e.PaymentDate,
		CreatedAt:         e.CreatedAt,
	}
}

func toOrderModels(entities []*OrderEntity) []*model.Order {
	if entities == nil {
		return nil
	}
	models := make([]*model.Order, len(entities))
	for i, e := range entities {
		models[i] = toOrderModel(e)
	}
	return models
}

// transfer_content is unique when present, so orders without a reference
// are stored as NULL rather than ''.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
