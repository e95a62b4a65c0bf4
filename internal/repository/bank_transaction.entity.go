package repository

import (
	"time"

	"github.com/nimasrn/bank-reconciler/internal/model"
)

type BankTransactionEntity struct {
	ID              string     `gorm:"primaryKey;column:id;size:128"`
	BankCode        string     `gorm:"column:bank_code;not null;size:32"`
	AccountNumber   string     `gorm:"column:account_number;not null;size:64;index:idx_bank_transactions_account"`
	Amount          int64      `gorm:"column:amount;not null;index:idx_bank_transactions_matching,priority:3"`
	Direction       string     `gorm:"column:direction;not null;size:8;index:idx_bank_transactions_matching,priority:2"`
	Description     string     `gorm:"column:description;not null;default:''"`
	TransactionDate time.Time  `gorm:"column:transaction_date;not null;index"`
	Status          string     `gorm:"column:status;not null;size:16;default:pending;index:idx_bank_transactions_matching,priority:1"`
	OrderID         *string    `gorm:"column:order_id;size:64;uniqueIndex"`
	UserID          *string    `gorm:"column:user_id;size:64"`
	MatchedAt       *time.Time `gorm:"column:matched_at"`
	Note            string     `gorm:"column:note;not null;default:''"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (BankTransactionEntity) TableName() string {
	return "bank_transactions"
}

func toBankTransactionEntity(m *model.BankTransaction) *BankTransactionEntity {
	if m == nil {
		return nil
	}
	status := m.Status
	if status == "" {
		status = model.TransactionStatusPending
	}
	return &BankTransactionEntity{
		ID:              m.ID,
		BankCode:        m.BankCode,
		AccountNumber:   m.AccountNumber,
		Amount:          m.Amount,
		Direction:       string(m.Direction),
		Description:     m.Description,
		TransactionDate: m.TransactionDate.UTC(),
		Status:          string(status),
		OrderID:         m.OrderID,
		UserID:          m.UserID,
		MatchedAt:       m.MatchedAt,
		Note:            m.Note,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func toBankTransactionModel(e *BankTransactionEntity) *model.BankTransaction {
	if e == nil {
		return nil
	}
	return &model.BankTransaction{
		ID:              e.ID,
		BankCode:        e.BankCode,
		AccountNumber:   e.AccountNumber,
		Amount:          e.Amount,
		Direction:       model.Direction(e.Direction),
		Description:     e.Description,
		TransactionDate: e.TransactionDate,
		Status:          model.TransactionStatus(e.Status),
		OrderID:         e.OrderID,
		UserID:          e.UserID,
		MatchedAt:       e.MatchedAt,
		Note:            e.Note,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

func toBankTransactionModels(entities []*BankTransactionEntity) []*model.BankTransaction {
	if entities == nil {
		return nil
	}
	models := make([]*model.BankTransaction, len(entities))
	for i, e := range entities {
		models[i] = toBankTransactionModel(e)
	}
	return models
}
