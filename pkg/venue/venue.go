// Package venue hosts ledgers at an execution venue and serializes the
// operations that mutate them. Exactly one venue is authoritative for a
// ledger at any time; the delegation lifecycle state carried by the ledger
// decides which.
package venue

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/pairbook/pairbook/pkg/clob"
	"github.com/pairbook/pairbook/pkg/events"
	"github.com/pairbook/pairbook/pkg/util"
)

// Kind identifies the two execution venues.
type Kind string

const (
	// Base is the durable venue: authoritative while a ledger is local.
	Base Kind = "base"
	// Ephemeral is the fast venue: authoritative while a ledger is remote.
	Ephemeral Kind = "ephemeral"
)

var (
	ErrLedgerExists   = fmt.Errorf("ledger already exists for this pair")
	ErrLedgerNotFound = fmt.Errorf("ledger not found")
	ErrNotWritable    = fmt.Errorf("venue is not authoritative for this ledger")
)

// Saver persists ledgers after committed mutations. The base venue saves to
// durable storage; the ephemeral venue runs without one.
type Saver interface {
	SaveLedger(l *clob.Ledger) error
}

// Venue is a registry of ledgers plus the authority gate in front of every
// mutating operation. Mutations on one ledger are serialized; reads are
// unrestricted and may observe state that is stale relative to the
// authoritative venue during a handoff.
type Venue struct {
	kind  Kind
	bank  clob.Bank
	clock util.Clock
	log   *zap.SugaredLogger
	pub   events.Publisher

	mu      sync.RWMutex
	ledgers map[clob.ID]*clob.Ledger
	locks   map[clob.ID]*sync.Mutex

	store Saver
}

func New(kind Kind, bank clob.Bank, clock util.Clock, logger *zap.SugaredLogger) *Venue {
	return &Venue{
		kind:    kind,
		bank:    bank,
		clock:   clock,
		log:     logger,
		pub:     events.Nop{},
		ledgers: make(map[clob.ID]*clob.Ledger),
		locks:   make(map[clob.ID]*sync.Mutex),
	}
}

// SetStore attaches durable persistence for committed mutations.
func (v *Venue) SetStore(s Saver) { v.store = s }

// SetPublisher attaches an event publisher.
func (v *Venue) SetPublisher(p events.Publisher) { v.pub = p }

func (v *Venue) Kind() Kind      { return v.kind }
func (v *Venue) Bank() clob.Bank { return v.bank }

// Initialize creates the ledger for an asset pair and returns a copy of it.
// Recreating an existing pair fails; creation is not idempotent. A persist
// failure unregisters the ledger so the pair can be retried.
func (v *Venue) Initialize(base, quote common.Address, baseDecimals, quoteDecimals uint8, authority common.Address) (*clob.Ledger, error) {
	l := clob.NewLedger(base, quote, baseDecimals, quoteDecimals, authority)
	id := l.ID()

	v.mu.Lock()
	if _, exists := v.ledgers[id]; exists {
		v.mu.Unlock()
		return nil, fmt.Errorf("%w: %s/%s", ErrLedgerExists, base.Hex(), quote.Hex())
	}
	v.ledgers[id] = l
	v.locks[id] = &sync.Mutex{}
	v.mu.Unlock()

	if err := v.persist(l); err != nil {
		v.mu.Lock()
		delete(v.ledgers, id)
		delete(v.locks, id)
		v.mu.Unlock()
		return nil, err
	}

	v.log.Infow("ledger_initialized",
		"venue", v.kind, "ledger", id.Hex(),
		"base_asset", base.Hex(), "quote_asset", quote.Hex())
	return l.Clone(), nil
}

// Install places a ledger into the registry, replacing any existing copy.
// Delegation mirroring and reconciliation replay use it.
func (v *Venue) Install(l *clob.Ledger) {
	id := l.ID()
	v.mu.Lock()
	v.ledgers[id] = l
	if _, ok := v.locks[id]; !ok {
		v.locks[id] = &sync.Mutex{}
	}
	v.mu.Unlock()
}

// Remove drops a ledger from the registry.
func (v *Venue) Remove(id clob.ID) {
	v.mu.Lock()
	delete(v.ledgers, id)
	v.mu.Unlock()
}

// Ledger returns a deep copy of the registered ledger, or false. The copy is
// taken under the ledger's lock, so a reader never observes an in-flight
// mutation; it may be stale the moment it is returned.
func (v *Venue) Ledger(id clob.ID) (*clob.Ledger, bool) {
	v.mu.RLock()
	l, ok := v.ledgers[id]
	lk := v.locks[id]
	v.mu.RUnlock()
	if !ok {
		return nil, false
	}

	lk.Lock()
	defer lk.Unlock()
	return l.Clone(), true
}

// List returns a snapshot copy of every registered ledger.
func (v *Venue) List() []*clob.Ledger {
	v.mu.RLock()
	ids := make([]clob.ID, 0, len(v.ledgers))
	for id := range v.ledgers {
		ids = append(ids, id)
	}
	v.mu.RUnlock()

	out := make([]*clob.Ledger, 0, len(ids))
	for _, id := range ids {
		if l, ok := v.Ledger(id); ok {
			out = append(out, l)
		}
	}
	return out
}

func (v *Venue) lock(id clob.ID) (*clob.Ledger, *sync.Mutex, error) {
	v.mu.RLock()
	l, ok := v.ledgers[id]
	lk := v.locks[id]
	v.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrLedgerNotFound, id.Hex())
	}
	lk.Lock()
	return l, lk, nil
}

// writable reports whether this venue currently holds write authority over
// the ledger. During a handoff neither venue accepts mutations.
func (v *Venue) writable(l *clob.Ledger) error {
	authoritative := (v.kind == Base && l.Status == clob.StatusLocal) ||
		(v.kind == Ephemeral && l.Status == clob.StatusRemote)
	if !authoritative {
		return fmt.Errorf("%w: venue=%s status=%s", ErrNotWritable, v.kind, l.Status)
	}
	return nil
}

// persist writes the ledger's committed state. Mutating operations commit in
// memory first and cannot be rolled back once bank funds have moved, so a
// persist error surfaces to the caller while memory stays ahead of disk.
// Saves are whole-state; the next successful persist re-syncs. Transition is
// the exception: no funds move, so it restores the prior status instead.
func (v *Venue) persist(l *clob.Ledger) error {
	if v.store == nil {
		return nil
	}
	if err := v.store.SaveLedger(l); err != nil {
		return fmt.Errorf("persist ledger: %w", err)
	}
	return nil
}

// CreateOrder escrows funds and appends a resting order, returning the
// assigned id.
func (v *Venue) CreateOrder(id clob.ID, owner common.Address, side clob.Side, price, amount uint64) (uint64, error) {
	l, lk, err := v.lock(id)
	if err != nil {
		return 0, err
	}
	defer lk.Unlock()

	if err := v.writable(l); err != nil {
		return 0, err
	}

	orderID, err := l.CreateOrder(v.bank, owner, side, price, amount, v.clock.Now().UnixMilli())
	if err != nil {
		return 0, err
	}
	if err := v.persist(l); err != nil {
		return 0, err
	}

	v.log.Infow("order_created",
		"venue", v.kind, "ledger", id.Hex(), "order_id", orderID,
		"owner", owner.Hex(), "side", side.String(), "price", price, "amount", amount)
	_ = v.pub.Publish(events.TopicOrders, map[string]any{
		"ledger": id.Hex(), "orderId": orderID, "owner": owner.Hex(),
		"side": side.String(), "price": price, "amount": amount,
	})
	return orderID, nil
}

// MatchOrder executes price-time-priority fills for the given order.
func (v *Venue) MatchOrder(id clob.ID, caller common.Address, orderID uint64) ([]clob.Fill, error) {
	l, lk, err := v.lock(id)
	if err != nil {
		return nil, err
	}
	defer lk.Unlock()

	if err := v.writable(l); err != nil {
		return nil, err
	}

	fills, err := l.MatchOrder(caller, orderID)
	if err != nil {
		return nil, err
	}
	if err := v.persist(l); err != nil {
		return nil, err
	}

	v.log.Infow("order_matched",
		"venue", v.kind, "ledger", id.Hex(), "order_id", orderID, "fills", len(fills))
	for _, f := range fills {
		_ = v.pub.Publish(events.TopicFills, f)
	}
	return fills, nil
}

// DepositBalance moves funds into the vaults and credits the free balance.
func (v *Venue) DepositBalance(id clob.ID, owner common.Address, quoteAmount, baseAmount uint64) error {
	l, lk, err := v.lock(id)
	if err != nil {
		return err
	}
	defer lk.Unlock()

	if err := v.writable(l); err != nil {
		return err
	}

	if err := l.DepositBalance(v.bank, owner, quoteAmount, baseAmount); err != nil {
		return err
	}
	if err := v.persist(l); err != nil {
		return err
	}

	v.log.Infow("balance_deposited",
		"venue", v.kind, "ledger", id.Hex(), "owner", owner.Hex(),
		"quote", quoteAmount, "base", baseAmount)
	_ = v.pub.Publish(events.TopicBalances, map[string]any{
		"ledger": id.Hex(), "owner": owner.Hex(), "op": "deposit",
		"quote": quoteAmount, "base": baseAmount,
	})
	return nil
}

// WithdrawFunds drains free balances back to the owner's holding accounts.
func (v *Venue) WithdrawFunds(id clob.ID, owner common.Address, baseAmount, quoteAmount uint64) error {
	l, lk, err := v.lock(id)
	if err != nil {
		return err
	}
	defer lk.Unlock()

	if err := v.writable(l); err != nil {
		return err
	}

	if err := l.WithdrawFunds(v.bank, owner, baseAmount, quoteAmount); err != nil {
		return err
	}
	if err := v.persist(l); err != nil {
		return err
	}

	v.log.Infow("funds_withdrawn",
		"venue", v.kind, "ledger", id.Hex(), "owner", owner.Hex(),
		"base", baseAmount, "quote", quoteAmount)
	_ = v.pub.Publish(events.TopicBalances, map[string]any{
		"ledger": id.Hex(), "owner": owner.Hex(), "op": "withdraw",
		"base": baseAmount, "quote": quoteAmount,
	})
	return nil
}

// Transition moves a ledger's lifecycle state, enforcing the transition
// table. Only the delegation manager calls this.
func (v *Venue) Transition(id clob.ID, to clob.Status) error {
	l, lk, err := v.lock(id)
	if err != nil {
		return err
	}
	defer lk.Unlock()

	if !clob.CanTransition(l.Status, to) {
		return fmt.Errorf("illegal lifecycle transition %s -> %s", l.Status, to)
	}
	from := l.Status
	l.Status = to
	if err := v.persist(l); err != nil {
		l.Status = from
		return err
	}
	v.log.Infow("lifecycle_transition", "venue", v.kind, "ledger", id.Hex(),
		"from", from.String(), "to", to.String())
	return nil
}

// Replace swaps in a reconciled ledger state under the ledger lock.
func (v *Venue) Replace(id clob.ID, next *clob.Ledger) error {
	l, lk, err := v.lock(id)
	if err != nil {
		return err
	}
	defer lk.Unlock()

	*l = *next
	return v.persist(l)
}
