package clob

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// CreateOrder validates and inserts a new resting order, escrowing funds
// from the owner's holding account into the matching vault. No crossing
// happens here; matching is a separate, explicitly invoked step so
// submission cost stays flat regardless of book depth.
//
// The operation is atomic: either the order rests with its escrow in the
// vault, or nothing changed.
func (l *Ledger) CreateOrder(bank Bank, owner common.Address, side Side, price, amount uint64, now int64) (uint64, error) {
	if !side.Valid() {
		return 0, ErrInvalidOrderSide
	}
	if amount == 0 {
		return 0, ErrInvalidOrderAmount
	}
	if price == 0 {
		return 0, ErrInvalidOrderPrice
	}

	book := l.side(side)
	if len(*book) >= MaxOrders {
		return 0, ErrOrderbookFull
	}

	// Buy escrows price*amount quote units, sell escrows amount base units.
	var escrow uint64
	var asset, vault common.Address
	if side == Buy {
		var err error
		if escrow, err = mulU64(price, amount); err != nil {
			return 0, err
		}
		asset, vault = l.QuoteAsset, l.QuoteVault
	} else {
		escrow = amount
		asset, vault = l.BaseAsset, l.BaseVault
	}

	if err := bank.Transfer(owner, vault, asset, escrow); err != nil {
		return 0, err
	}

	id := l.nextOrderID()
	*book = append(*book, Order{
		ID:              id,
		Owner:           owner,
		Side:            side,
		Price:           price,
		OriginalAmount:  amount,
		RemainingAmount: amount,
		CreatedAt:       now,
	})
	return id, nil
}

// MatchOrder executes the order identified by id against the opposite book
// side in price-time priority. Only the order's owner may trigger it.
//
// Settlement convention: every fill settles at the resting counter-order's
// price. The matched order trades at the book's existing price, so price
// improvement goes to the side being matched; for a matched buy order the
// quote escrowed above the resting price is returned to the buyer's free
// balance, keeping the vault exactly equal to open escrow plus free funds.
//
// Fills move funds between vault bookkeeping entries only: the buyer's free
// base and the seller's free quote balances are credited, and withdrawal is
// a separate step. If no eligible counter-order exists the call succeeds
// without touching the book.
//
// The match runs on a scratch copy and is committed only when every fill
// settles cleanly, so an arithmetic or capacity failure mid-loop leaves no
// partial fills behind.
func (l *Ledger) MatchOrder(caller common.Address, orderID uint64) ([]Fill, error) {
	order, _, _ := l.findOrder(orderID)
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Owner != caller {
		return nil, ErrNotOrderOwner
	}

	work := l.Clone()
	fills, err := work.matchInto(orderID)
	if err != nil {
		return nil, err
	}
	*l = *work
	return fills, nil
}

// matchInto runs the fill loop, mutating the receiver freely. The receiver
// is always a scratch clone.
func (l *Ledger) matchInto(orderID uint64) ([]Fill, error) {
	order, side, idx := l.findOrder(orderID)
	if order == nil {
		return nil, ErrOrderNotFound
	}

	// Detach the order so the counter-side scan never pairs it with itself.
	taken := *order
	book := l.side(side)
	*book = append((*book)[:idx], (*book)[idx+1:]...)

	counter := l.side(opposite(side))
	sortByPriority(*counter, opposite(side))

	var fills []Fill
	i := 0
	for i < len(*counter) && taken.RemainingAmount > 0 {
		resting := &(*counter)[i]
		if !crosses(side, taken.Price, resting.Price) {
			break
		}

		fill := minU64(taken.RemainingAmount, resting.RemainingAmount)
		quote, err := mulU64(fill, resting.Price)
		if err != nil {
			return nil, err
		}

		taken.RemainingAmount -= fill
		resting.RemainingAmount -= fill

		if side == Buy {
			// Buyer receives base; seller receives quote at the resting
			// price; the buyer's escrow surplus above that price unwinds
			// into free quote.
			refund, err := refundFor(taken.Price, resting.Price, fill)
			if err != nil {
				return nil, err
			}
			if err := l.creditBalance(taken.Owner, fill, refund); err != nil {
				return nil, err
			}
			if err := l.creditBalance(resting.Owner, 0, quote); err != nil {
				return nil, err
			}
		} else {
			// Seller receives quote at the resting bid's price; the resting
			// bid escrowed exactly that, so nothing unwinds.
			if err := l.creditBalance(taken.Owner, 0, quote); err != nil {
				return nil, err
			}
			if err := l.creditBalance(resting.Owner, fill, 0); err != nil {
				return nil, err
			}
		}

		fills = append(fills, Fill{
			TakerOrderID: taken.ID,
			MakerOrderID: resting.ID,
			Taker:        taken.Owner,
			Maker:        resting.Owner,
			Price:        resting.Price,
			Amount:       fill,
		})

		if resting.RemainingAmount == 0 {
			*counter = append((*counter)[:i], (*counter)[i+1:]...)
			continue
		}
		i++
	}

	if taken.RemainingAmount > 0 {
		if len(*book) >= MaxOrders {
			return nil, ErrOrderbookFull
		}
		*book = append(*book, taken)
	}
	return fills, nil
}

func opposite(s Side) Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// crosses reports whether an order at price p may fill against a resting
// counter-order at price q.
func crosses(side Side, p, q uint64) bool {
	if side == Buy {
		return q <= p
	}
	return q >= p
}

// refundFor computes the quote escrow unwound when a buy at orderPrice
// fills fill units at the cheaper restingPrice.
func refundFor(orderPrice, restingPrice, fill uint64) (uint64, error) {
	diff, err := subU64(orderPrice, restingPrice)
	if err != nil {
		return 0, err
	}
	return mulU64(diff, fill)
}

// sortByPriority orders a counter side best-price-first, insertion order
// (ascending id) breaking price ties. CreatedAt timestamps can coincide
// within a millisecond; ids are strictly increasing so they are the exact
// time tie-break.
func sortByPriority(orders []Order, side Side) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].Price != orders[j].Price {
			if side == Buy {
				return orders[i].Price > orders[j].Price // highest bid first
			}
			return orders[i].Price < orders[j].Price // lowest ask first
		}
		return orders[i].ID < orders[j].ID
	})
}
