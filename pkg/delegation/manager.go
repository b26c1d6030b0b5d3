// Package delegation relocates a ledger's write authority between the base
// and ephemeral venues and reconciles the final state on the way back.
//
// The handoff is a two-phase protocol: delegate mirrors the ledger into the
// ephemeral venue and freezes the base copy; undelegate freezes the
// ephemeral copy and asks the arbiter to finalize; the arbiter replays the
// final snapshot into the base ledger. Until that replay lands the ledger is
// observably stuck in undelegating/reconciling; operators watch the
// persisted lifecycle state for stalls.
package delegation

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/pairbook/pairbook/pkg/assets"
	"github.com/pairbook/pairbook/pkg/clob"
	"github.com/pairbook/pairbook/pkg/events"
	"github.com/pairbook/pairbook/pkg/util"
	"github.com/pairbook/pairbook/pkg/venue"
)

var (
	ErrNoHandoff      = fmt.Errorf("no delegation record for ledger")
	ErrNotAuthority   = fmt.Errorf("caller is not the ledger authority")
	ErrWrongLifecycle = fmt.Errorf("operation not valid in current lifecycle state")
)

// RecordStore persists delegation records.
type RecordStore interface {
	SaveRecord(r *Record) error
}

// Manager drives the delegation lifecycle. It owns both venues' lifecycle
// transitions; venues themselves only enforce the authority gate.
type Manager struct {
	mu sync.Mutex

	base *venue.Venue
	eph  *venue.Venue

	// Concrete banks: mirroring and reconciliation force vault holdings to
	// snapshot amounts, which the narrow transfer capability cannot express.
	baseBank *assets.MemoryBank
	ephBank  *assets.MemoryBank

	records map[clob.ID]*Record

	clock util.Clock
	log   *zap.SugaredLogger
	pub   events.Publisher
	store RecordStore

	arbiter *Arbiter
}

func NewManager(base, eph *venue.Venue, baseBank, ephBank *assets.MemoryBank, clock util.Clock, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		base:     base,
		eph:      eph,
		baseBank: baseBank,
		ephBank:  ephBank,
		records:  make(map[clob.ID]*Record),
		clock:    clock,
		log:      logger,
		pub:      events.Nop{},
	}
}

// SetStore attaches durable persistence for delegation records.
func (m *Manager) SetStore(s RecordStore) { m.store = s }

// SetPublisher attaches an event publisher.
func (m *Manager) SetPublisher(p events.Publisher) { m.pub = p }

// SetArbiter attaches the handoff arbiter that finalizes undelegations.
func (m *Manager) SetArbiter(a *Arbiter) { m.arbiter = a }

// Restore reloads a persisted record, e.g. at node startup.
func (m *Manager) Restore(r *Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.LedgerID] = r
}

// Record returns the delegation record for a ledger, if any.
func (m *Manager) Record(id clob.ID) (*Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	return r, ok
}

func (m *Manager) persist(r *Record) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.SaveRecord(r); err != nil {
		return fmt.Errorf("persist delegation record: %w", err)
	}
	return nil
}

// Delegate hands write authority for the pair's ledger to the ephemeral
// venue. Callable only while the ledger is local; the base copy stops
// accepting mutations the moment the transition lands, so the snapshot that
// is mirrored across is final.
func (m *Manager) Delegate(base, quote common.Address) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seed := clob.PairSeed(base, quote)
	id := clob.DeriveID(seed)

	l, ok := m.base.Ledger(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", venue.ErrLedgerNotFound, id.Hex())
	}
	if l.Status != clob.StatusLocal {
		return nil, fmt.Errorf("%w: delegate requires local, ledger is %s", ErrWrongLifecycle, l.Status)
	}

	// Freeze the base copy, then snapshot it. Venue reads are copies, so the
	// mirror has to be taken after the transition lands or a mutation could
	// slip in between and be lost.
	if err := m.base.Transition(id, clob.StatusDelegating); err != nil {
		return nil, err
	}
	mirror, ok := m.base.Ledger(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", venue.ErrLedgerNotFound, id.Hex())
	}
	mirror.Status = clob.StatusRemote

	// Mirror the vault holdings so the ephemeral venue starts with the
	// exact escrow the book is entitled to.
	m.ephBank.SetBalance(mirror.BaseVault, mirror.BaseAsset, m.baseBank.BalanceOf(mirror.BaseVault, mirror.BaseAsset))
	m.ephBank.SetBalance(mirror.QuoteVault, mirror.QuoteAsset, m.baseBank.BalanceOf(mirror.QuoteVault, mirror.QuoteAsset))

	m.eph.Install(mirror)
	if err := m.base.Transition(id, clob.StatusRemote); err != nil {
		return nil, err
	}

	r := newRecord(seed, m.clock.Now().UnixMilli())
	m.records[id] = r
	if err := m.persist(r); err != nil {
		return nil, err
	}

	m.log.Infow("ledger_delegated", "ledger", id.Hex(), "handoff", r.HandoffID)
	_ = m.pub.Publish(events.TopicDelegations, map[string]any{
		"ledger": id.Hex(), "handoff": r.HandoffID, "phase": "delegated",
	})
	return r, nil
}

// Undelegate initiates the handoff back. Callable only while the ledger is
// remote; it freezes the ephemeral copy and submits the commit to the
// arbiter. The final, reconciled state arrives asynchronously through
// ProcessUndelegation; this call does not wait for it.
func (m *Manager) Undelegate(base, quote common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seed := clob.PairSeed(base, quote)
	id := clob.DeriveID(seed)

	r, ok := m.records[id]
	if !ok || r.Applied {
		return fmt.Errorf("%w: %s", ErrNoHandoff, id.Hex())
	}

	l, ok := m.eph.Ledger(id)
	if !ok {
		return fmt.Errorf("%w: %s", venue.ErrLedgerNotFound, id.Hex())
	}
	if l.Status != clob.StatusRemote {
		return fmt.Errorf("%w: undelegate requires remote, ledger is %s", ErrWrongLifecycle, l.Status)
	}

	// Freeze both copies; neither venue accepts mutations from here on.
	if err := m.eph.Transition(id, clob.StatusUndelegating); err != nil {
		return err
	}
	if err := m.base.Transition(id, clob.StatusUndelegating); err != nil {
		return err
	}

	r.UndelegatedAt = m.clock.Now().UnixMilli()
	if err := m.persist(r); err != nil {
		return err
	}

	m.log.Infow("ledger_undelegating", "ledger", id.Hex(), "handoff", r.HandoffID)
	_ = m.pub.Publish(events.TopicDelegations, map[string]any{
		"ledger": id.Hex(), "handoff": r.HandoffID, "phase": "undelegating",
	})

	if m.arbiter != nil {
		m.arbiter.Submit([][]byte{seed})
	}
	return nil
}

// ProcessUndelegation is invoked by the handoff arbiter once the transfer is
// finalized. For each account seed it replays the ephemeral venue's final
// snapshot into the base ledger and restores write authority to the base
// venue. Replaying an already-reconciled handoff is a no-op.
func (m *Manager) ProcessUndelegation(accountSeeds [][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, seed := range accountSeeds {
		id := clob.DeriveID(seed)
		r, ok := m.records[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoHandoff, id.Hex())
		}
		if r.Applied {
			continue
		}
		if err := m.reconcile(id, r); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) reconcile(id clob.ID, r *Record) error {
	// Venue reads are copies, and the ephemeral ledger is frozen in
	// undelegating, so this is the final state.
	snapshot, ok := m.eph.Ledger(id)
	if !ok {
		return fmt.Errorf("%w: ephemeral copy missing for %s", venue.ErrLedgerNotFound, id.Hex())
	}

	if err := m.base.Transition(id, clob.StatusReconciling); err != nil {
		return err
	}

	snapshot.Status = clob.StatusLocal

	// Reconcile the base vault holdings to the ephemeral amounts before the
	// ledger state lands, so the escrow invariant holds the moment the
	// ledger is writable again.
	m.baseBank.SetBalance(snapshot.BaseVault, snapshot.BaseAsset,
		m.ephBank.BalanceOf(snapshot.BaseVault, snapshot.BaseAsset))
	m.baseBank.SetBalance(snapshot.QuoteVault, snapshot.QuoteAsset,
		m.ephBank.BalanceOf(snapshot.QuoteVault, snapshot.QuoteAsset))

	if err := m.base.Replace(id, snapshot); err != nil {
		return err
	}
	m.eph.Remove(id)

	r.Applied = true
	r.ReconciledAt = m.clock.Now().UnixMilli()
	if err := m.persist(r); err != nil {
		return err
	}

	m.log.Infow("ledger_reconciled", "ledger", id.Hex(), "handoff", r.HandoffID)
	_ = m.pub.Publish(events.TopicDelegations, map[string]any{
		"ledger": id.Hex(), "handoff": r.HandoffID, "phase": "reconciled",
	})
	return nil
}

// ForceStatus overrides a ledger's lifecycle state on the base venue. The
// escape hatch for wedged handoffs; only the ledger authority may use it.
func (m *Manager) ForceStatus(caller common.Address, base, quote common.Address, status clob.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := clob.DeriveID(clob.PairSeed(base, quote))
	l, ok := m.base.Ledger(id)
	if !ok {
		return fmt.Errorf("%w: %s", venue.ErrLedgerNotFound, id.Hex())
	}
	if l.Authority != caller {
		return ErrNotAuthority
	}

	l.Status = status
	m.log.Warnw("lifecycle_forced", "ledger", id.Hex(), "status", status.String(), "by", caller.Hex())
	return m.base.Replace(id, l)
}
