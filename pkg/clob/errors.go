package clob

import "fmt"

// Code is a stable numeric error identifier. Callers (UIs, indexers, RPC
// clients) match on codes, not messages, so the numbering never changes.
type Code uint32

const (
	CodeInvalidOrderAmount Code = 6000 + iota
	CodeInvalidOrderPrice
	CodeCalculationFailure
	CodeInsufficientFunds
	CodeOrderNotFound
	CodeOrderbookFull
	CodeInvalidOrderSide
	CodeNotOrderOwner
	CodeTooManyUsers
	CodeUserNotFound
	CodeInsufficientBalance
)

// Error is a typed ledger error. All instances are the package-level
// sentinels below; compare with errors.Is.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("%s (code %d)", e.Msg, e.Code) }

var (
	ErrInvalidOrderAmount  = &Error{CodeInvalidOrderAmount, "order amount must be greater than zero"}
	ErrInvalidOrderPrice   = &Error{CodeInvalidOrderPrice, "order price must be greater than zero"}
	ErrCalculationFailure  = &Error{CodeCalculationFailure, "calculation overflow or underflow"}
	ErrInsufficientFunds   = &Error{CodeInsufficientFunds, "insufficient funds for the order"}
	ErrOrderNotFound       = &Error{CodeOrderNotFound, "order not found"}
	ErrOrderbookFull       = &Error{CodeOrderbookFull, "orderbook is full"}
	ErrInvalidOrderSide    = &Error{CodeInvalidOrderSide, "invalid order side"}
	ErrNotOrderOwner       = &Error{CodeNotOrderOwner, "not order owner"}
	ErrTooManyUsers        = &Error{CodeTooManyUsers, "too many users with balances"}
	ErrUserNotFound        = &Error{CodeUserNotFound, "user not found"}
	ErrInsufficientBalance = &Error{CodeInsufficientBalance, "insufficient balance"}
)
