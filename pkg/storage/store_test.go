package storage

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/pairbook/pairbook/pkg/clob"
	"github.com/pairbook/pairbook/pkg/delegation"
)

var (
	baseAsset  = common.HexToAddress("0xaa")
	quoteAsset = common.HexToAddress("0xbb")
	admin      = common.HexToAddress("0xad")
	alice      = common.HexToAddress("0xa1")
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "ledgers.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLedgerRoundTrip(t *testing.T) {
	s := newTestStore(t)

	l := clob.NewLedger(baseAsset, quoteAsset, 6, 6, admin)
	l.Status = clob.StatusRemote
	l.OrderCounter = 7
	l.Asks = append(l.Asks, clob.Order{
		ID: 3, Owner: alice, Side: clob.Sell, Price: 2,
		OriginalAmount: 10, RemainingAmount: 4, CreatedAt: 1700000000000,
	})
	l.Balances[alice] = &clob.UserBalance{BaseAmount: 5, QuoteAmount: 20}

	if err := s.SaveLedger(l); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.LoadLedger(l.ID())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil {
		t.Fatalf("ledger not found after save")
	}
	if got.ID() != l.ID() {
		t.Fatalf("id mismatch: %s vs %s", got.ID().Hex(), l.ID().Hex())
	}
	if got.Status != clob.StatusRemote || got.OrderCounter != 7 {
		t.Fatalf("status/counter = %s/%d", got.Status, got.OrderCounter)
	}
	if len(got.Asks) != 1 || got.Asks[0].RemainingAmount != 4 {
		t.Fatalf("asks = %+v", got.Asks)
	}
	if b := got.Balances[alice]; b == nil || b.BaseAmount != 5 || b.QuoteAmount != 20 {
		t.Fatalf("balance = %+v", got.Balances[alice])
	}
}

func TestLoadMissingLedger(t *testing.T) {
	s := newTestStore(t)
	got, err := s.LoadLedger(clob.DeriveID(clob.PairSeed(baseAsset, quoteAsset)))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing ledger, got %+v", got)
	}
}

func TestLoadAllLedgers(t *testing.T) {
	s := newTestStore(t)

	a := clob.NewLedger(baseAsset, quoteAsset, 6, 6, admin)
	b := clob.NewLedger(quoteAsset, baseAsset, 6, 6, admin)
	for _, l := range []*clob.Ledger{a, b} {
		if err := s.SaveLedger(l); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	all, err := s.LoadAllLedgers()
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("loaded %d ledgers, want 2", len(all))
	}
	for _, l := range all {
		if l.Balances == nil {
			t.Fatalf("loaded ledger has nil balances map")
		}
	}
}

func TestRecordRoundTrip(t *testing.T) {
	s := newTestStore(t)

	seed := clob.PairSeed(baseAsset, quoteAsset)
	r := &delegation.Record{
		HandoffID:     "c7a1d2c8-9f7e-4a40-9a0e-2f6c1b3d4e5f",
		LedgerID:      clob.DeriveID(seed),
		PairSeed:      hexutil.Bytes(seed),
		DelegatedAt:   1700000000000,
		UndelegatedAt: 1700000060000,
		Applied:       true,
	}
	if err := s.SaveRecord(r); err != nil {
		t.Fatalf("save record: %v", err)
	}

	records, err := s.LoadAllRecords()
	if err != nil {
		t.Fatalf("load records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("loaded %d records, want 1", len(records))
	}
	got := records[0]
	if got.HandoffID != r.HandoffID || got.LedgerID != r.LedgerID || !got.Applied {
		t.Fatalf("record = %+v", got)
	}
	if got.UndelegatedAt != r.UndelegatedAt {
		t.Fatalf("undelegatedAt = %d, want %d", got.UndelegatedAt, r.UndelegatedAt)
	}
}

// Record keys must not collide with ledger keys for the same id.
func TestKeyPrefixesDisjoint(t *testing.T) {
	s := newTestStore(t)

	l := clob.NewLedger(baseAsset, quoteAsset, 6, 6, admin)
	if err := s.SaveLedger(l); err != nil {
		t.Fatalf("save ledger: %v", err)
	}
	r := &delegation.Record{
		HandoffID: "d3b9f1a0-1234-4cde-8f00-aabbccddeeff",
		LedgerID:  l.ID(),
		PairSeed:  hexutil.Bytes(clob.PairSeed(baseAsset, quoteAsset)),
	}
	if err := s.SaveRecord(r); err != nil {
		t.Fatalf("save record: %v", err)
	}

	ledgers, err := s.LoadAllLedgers()
	if err != nil {
		t.Fatalf("load ledgers: %v", err)
	}
	records, err := s.LoadAllRecords()
	if err != nil {
		t.Fatalf("load records: %v", err)
	}
	if len(ledgers) != 1 || len(records) != 1 {
		t.Fatalf("ledgers=%d records=%d, want 1/1", len(ledgers), len(records))
	}
}
