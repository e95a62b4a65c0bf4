package model

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyMatched  = errors.New("transaction already matched")
	ErrValidation      = errors.New("validation failed")
	ErrOrderNotPending = errors.New("order is not awaiting payment")
	ErrInvalidState    = errors.New("invalid state transition")
	ErrUpstreamFetch   = errors.New("bank api fetch failed")
)
