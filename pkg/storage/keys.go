package storage

import "github.com/pairbook/pairbook/pkg/clob"

// Key layout:
//   l:<ledger id>  -> clob.Ledger (JSON)
//   d:<ledger id>  -> delegation.Record (JSON)

var (
	ledgerPrefix = []byte("l:")
	recordPrefix = []byte("d:")
)

func ledgerKey(id clob.ID) []byte {
	return append(append([]byte{}, ledgerPrefix...), id.Bytes()...)
}

func recordKey(id clob.ID) []byte {
	return append(append([]byte{}, recordPrefix...), id.Bytes()...)
}

// keyUpperBound returns the smallest key greater than every key with the
// given prefix.
func keyUpperBound(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff
}
