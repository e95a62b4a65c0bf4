// Package matching decides which pending order a bank transaction pays for.
// It performs no I/O; callers load the inputs and commit the result.
package matching

import (
	"strings"

	"github.com/nimasrn/bank-reconciler/internal/model"
	"github.com/nimasrn/bank-reconciler/pkg/logger"
)

type Reason string

const (
	ReasonReference       Reason = "reference"
	ReasonSoleCandidate   Reason = "sole_candidate"
	ReasonReferenceInDesc Reason = "reference_in_description"
	ReasonNoReference     Reason = "candidate_without_reference"

	ReasonNotMatchable     Reason = "transaction_not_matchable"
	ReasonOrderUnavailable Reason = "order_not_candidate"
	ReasonReferenceDiffers Reason = "reference_mismatch"
	ReasonAmountDiffers    Reason = "amount_mismatch"
	ReasonNoCandidates     Reason = "no_candidates"
	ReasonNoConfirmation   Reason = "no_confirmed_candidate"
)

type Result struct {
	Matched bool
	Order   *model.Order
	Reason  Reason
	// Passing is how many candidates satisfied the rule. More than one means
	// the pick relied on scan order.
	Passing   int
	Ambiguous bool
}

func noMatch(reason Reason) Result {
	return Result{Reason: reason}
}

type Config struct {
	// StrictReference requires every amount match, including a sole
	// candidate, to carry its reference in the transaction description.
	StrictReference bool
	// PaymentMethods restricts candidates to these methods. Empty accepts all.
	PaymentMethods []string
}

type Engine struct {
	config Config
}

func NewEngine(config Config) *Engine {
	return &Engine{config: config}
}

func (e *Engine) PaymentMethods() []string {
	return e.config.PaymentMethods
}

// MatchByReference checks an order resolved through its reference code
// against a transaction. When amount is given both the order total and the
// transaction amount must equal it.
func (e *Engine) MatchByReference(txn *model.BankTransaction, ref string, amount *int64, order *model.Order) Result {
	if txn == nil || !txn.Matchable() {
		return noMatch(ReasonNotMatchable)
	}
	if order == nil || !order.IsCandidate(e.config.PaymentMethods) {
		return noMatch(ReasonOrderUnavailable)
	}
	if ref == "" || order.TransferContent != ref {
		return noMatch(ReasonReferenceDiffers)
	}
	if amount != nil && (order.TotalAmount != *amount || txn.Amount != *amount) {
		return noMatch(ReasonAmountDiffers)
	}
	return Result{Matched: true, Order: order, Reason: ReasonReference, Passing: 1}
}

// MatchByAmount picks among candidates with the transaction's amount.
// Candidates must be in scan order; the first passing one wins.
func (e *Engine) MatchByAmount(txn *model.BankTransaction, candidates []*model.Order) Result {
	if txn == nil || !txn.Matchable() {
		return noMatch(ReasonNotMatchable)
	}

	eligible := make([]*model.Order, 0, len(candidates))
	for _, o := range candidates {
		if o != nil && o.TotalAmount == txn.Amount && o.IsCandidate(e.config.PaymentMethods) {
			eligible = append(eligible, o)
		}
	}
	if len(eligible) == 0 {
		return noMatch(ReasonNoCandidates)
	}

	if len(eligible) == 1 && !e.config.StrictReference {
		return Result{Matched: true, Order: eligible[0], Reason: ReasonSoleCandidate, Passing: 1}
	}

	var (
		picked *model.Order
		reason Reason
		count  int
	)
	for _, o := range eligible {
		r, ok := e.confirms(txn, o)
		if !ok {
			continue
		}
		count++
		if picked == nil {
			picked, reason = o, r
		}
	}
	if picked == nil {
		return noMatch(ReasonNoConfirmation)
	}

	res := Result{Matched: true, Order: picked, Reason: reason, Passing: count, Ambiguous: count > 1}
	if res.Ambiguous {
		logger.Warn("ambiguous amount match, picked first candidate in scan order",
			"transaction_id", txn.ID,
			"amount", txn.Amount,
			"order_id", picked.ID,
			"passing", count)
	}
	return res
}

func (e *Engine) confirms(txn *model.BankTransaction, o *model.Order) (Reason, bool) {
	if o.TransferContent == "" {
		if e.config.StrictReference {
			return "", false
		}
		return ReasonNoReference, true
	}
	if strings.Contains(txn.Description, o.TransferContent) {
		return ReasonReferenceInDesc, true
	}
	return "", false
}
