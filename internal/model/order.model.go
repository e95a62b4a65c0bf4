package model

import "time"

type PaymentStatus string

const (
	PaymentStatusPending        PaymentStatus = "pending"
	PaymentStatusWaitingConfirm PaymentStatus = "waiting_confirm"
	PaymentStatusPaid           PaymentStatus = "paid"
	PaymentStatusFailed         PaymentStatus = "failed"
	PaymentStatusCancelled      PaymentStatus = "cancelled"
)

const (
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodATM          = "atm"
	PaymentMethodCOD          = "cod"
	PaymentMethodCard         = "card"
)

// Order is the payment projection of a shop order. Only the fields the
// reconciler reads or writes are mapped.
type Order struct {
	ID                string        `json:"id"`
	UserID            string        `json:"user_id"`
	Code              string        `json:"code"`
	TotalAmount       int64         `json:"total_amount"`
	TransferContent   string        `json:"transfer_content"`
	PaymentMethod     string        `json:"payment_method"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	BankTransactionID *string       `json:"bank_transaction_id,omitempty"`
	PaymentDate       *time.Time    `json:"payment_date,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// AwaitingPayment is true until reconciliation or an operator moved the
// order out of pending.
func (o *Order) AwaitingPayment() bool {
	return o.PaymentStatus == PaymentStatusPending && o.BankTransactionID == nil
}

// IsCandidate reports whether the order can receive a bank transfer match
// under the given set of payment methods. An empty set accepts any method.
func (o *Order) IsCandidate(methods []string) bool {
	if !o.AwaitingPayment() {
		return false
	}
	if len(methods) == 0 {
		return true
	}
	for _, m := range methods {
		if o.PaymentMethod == m {
			return true
		}
	}
	return false
}
