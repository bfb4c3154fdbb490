package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrLockHeld          = errors.New("lock already held")
	ErrInvalidAddress    = errors.New("invalid wallet address")
	ErrInvalidBet        = errors.New("invalid bet parameters")
	ErrUnsupportedSymbol = errors.New("unsupported token symbol")
	ErrChainDisabled     = errors.New("chain access disabled")
	ErrNotResolved       = errors.New("not resolved")
)
