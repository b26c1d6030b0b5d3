// Package storage persists ledgers and delegation records in Pebble so the
// base venue survives restarts with pending handoffs observable.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/pairbook/pairbook/pkg/clob"
	"github.com/pairbook/pairbook/pkg/delegation"
)

type Store struct {
	db *pebble.DB
}

// NewStore opens a Pebble database at the given path.
func NewStore(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                 pebble.NewCache(64 << 20),
		MemTableSize:          32 << 20,
		L0CompactionThreshold: 2,
		MaxOpenFiles:          1000,
		BytesPerSync:          512 << 10,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveLedger persists a ledger. Writes are synced: a committed ledger
// operation must not be lost to a crash.
func (s *Store) SaveLedger(l *clob.Ledger) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	if err := s.db.Set(ledgerKey(l.ID()), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	return nil
}

// LoadLedger loads a ledger by id. Returns nil if it doesn't exist.
func (s *Store) LoadLedger(id clob.ID) (*clob.Ledger, error) {
	data, closer, err := s.db.Get(ledgerKey(id))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}
	defer closer.Close()

	var l clob.Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger: %w", err)
	}
	if l.Balances == nil {
		l.Balances = make(map[common.Address]*clob.UserBalance)
	}
	return &l, nil
}

// LoadAllLedgers loads every persisted ledger.
func (s *Store) LoadAllLedgers() ([]*clob.Ledger, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: ledgerPrefix,
		UpperBound: keyUpperBound(ledgerPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate ledgers: %w", err)
	}
	defer iter.Close()

	var ledgers []*clob.Ledger
	for iter.First(); iter.Valid(); iter.Next() {
		var l clob.Ledger
		if err := json.Unmarshal(iter.Value(), &l); err != nil {
			continue // Skip invalid entries
		}
		if l.Balances == nil {
			l.Balances = make(map[common.Address]*clob.UserBalance)
		}
		ledgers = append(ledgers, &l)
	}
	return ledgers, nil
}

// SaveRecord persists a delegation record.
func (s *Store) SaveRecord(r *delegation.Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := s.db.Set(recordKey(r.LedgerID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// LoadAllRecords loads every persisted delegation record.
func (s *Store) LoadAllRecords() ([]*delegation.Record, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: recordPrefix,
		UpperBound: keyUpperBound(recordPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	defer iter.Close()

	var records []*delegation.Record
	for iter.First(); iter.Valid(); iter.Next() {
		var r delegation.Record
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			continue // Skip invalid entries
		}
		records = append(records, &r)
	}
	return records, nil
}
