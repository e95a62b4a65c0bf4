package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusCancelled:
		return true
	}
	return false
}

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// BankTransaction is a movement observed on one of the shop's bank accounts.
// ID is the bank assigned transaction id and doubles as the idempotency key.
type BankTransaction struct {
	ID              string            `json:"id"`
	BankCode        string            `json:"bank_code"`
	AccountNumber   string            `json:"account_number"`
	Amount          int64             `json:"amount"`
	Direction       Direction         `json:"direction"`
	Description     string            `json:"description"`
	TransactionDate time.Time         `json:"transaction_date"`
	Status          TransactionStatus `json:"status"`
	OrderID         *string           `json:"order_id,omitempty"`
	UserID          *string           `json:"user_id,omitempty"`
	MatchedAt       *time.Time        `json:"matched_at,omitempty"`
	Note            string            `json:"note,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Matched reports whether the transaction has been assigned to an order.
// Completed is the only state that carries an order reference.
func (t *BankTransaction) Matched() bool {
	return t.Status == TransactionStatusCompleted
}

// Matchable reports whether the transaction may still be paired with an order.
func (t *BankTransaction) Matchable() bool {
	return t.Direction == DirectionIn && t.Status == TransactionStatusPending
}

// CanTransitionTo checks an operator status change. Completed is only
// reachable through matching and is terminal.
func (t *BankTransaction) CanTransitionTo(next TransactionStatus) error {
	if !next.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, next)
	}
	if t.Matched() {
		return fmt.Errorf("%w: transaction %s", ErrAlreadyMatched, t.ID)
	}
	if next == TransactionStatusCompleted {
		return fmt.Errorf("%w: completed is set by matching only", ErrInvalidState)
	}
	return nil
}

// MarshalJSON adds the derived matched_order flag.
func (t BankTransaction) MarshalJSON() ([]byte, error) {
	type plain BankTransaction
	return json.Marshal(struct {
		plain
		MatchedOrder bool `json:"matched_order"`
	}{plain(t), t.Matched()})
}

type SortField string

const (
	SortByTransactionDate SortField = "transaction_date"
	SortByAmount          SortField = "amount"
)

// TransactionFilter controls List queries.
type TransactionFilter struct {
	AccountNumber *string
	BankCode      *string
	Status        *TransactionStatus
	Direction     *Direction
	From          *time.Time
	To            *time.Time
	Page          int // 1 based
	PageSize      int // default 20, max 100
	SortBy        SortField
	Asc           bool
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

func (f *TransactionFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	if f.SortBy != SortByAmount {
		f.SortBy = SortByTransactionDate
	}
}

type TransactionPage struct {
	Items      []*BankTransaction `json:"items"`
	Total      int64              `json:"total"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
	TotalPages int                `json:"total_pages"`
}
