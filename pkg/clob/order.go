package clob

import "github.com/ethereum/go-ethereum/common"

type Side uint8

const (
	Buy  Side = 0
	Sell Side = 1
)

func (s Side) Valid() bool { return s == Buy || s == Sell }

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Order is a resting limit order. Price is in minor quote units per base
// unit, amounts are in minor base units.
type Order struct {
	ID              uint64         `json:"id"`
	Owner           common.Address `json:"owner"`
	Side            Side           `json:"side"`
	Price           uint64         `json:"price"`
	OriginalAmount  uint64         `json:"originalAmount"`
	RemainingAmount uint64         `json:"remainingAmount"`
	CreatedAt       int64          `json:"createdAt"` // Unix milliseconds
}

// UserBalance holds an owner's free (unescrowed) funds. Credited by fills
// and deposits, drained by withdrawals; never re-escrowed automatically.
type UserBalance struct {
	Owner       common.Address `json:"owner"`
	BaseAmount  uint64         `json:"baseAmount"`
	QuoteAmount uint64         `json:"quoteAmount"`
}

// Fill records one pairing settled by MatchOrder. Price is the resting
// order's price.
type Fill struct {
	TakerOrderID uint64         `json:"takerOrderId"`
	MakerOrderID uint64         `json:"makerOrderId"`
	Taker        common.Address `json:"taker"`
	Maker        common.Address `json:"maker"`
	Price        uint64         `json:"price"`
	Amount       uint64         `json:"amount"`
}
