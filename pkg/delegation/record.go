package delegation

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"

	"github.com/pairbook/pairbook/pkg/clob"
)

// Record pairs a ledger with one delegation handoff. It is persisted so any
// collaborator can observe a pending handoff and detect stalls.
type Record struct {
	HandoffID string        `json:"handoffId"`
	LedgerID  clob.ID       `json:"ledgerId"`
	PairSeed  hexutil.Bytes `json:"pairSeed"`

	// Unix milliseconds; zero until the step happened.
	DelegatedAt   int64 `json:"delegatedAt"`
	UndelegatedAt int64 `json:"undelegatedAt"`
	ReconciledAt  int64 `json:"reconciledAt"`

	// Applied marks the handoff reconciled; replaying it again is a no-op.
	Applied bool `json:"applied"`
}

func newRecord(seed []byte, now int64) *Record {
	return &Record{
		HandoffID:   uuid.NewString(),
		LedgerID:    clob.DeriveID(seed),
		PairSeed:    hexutil.Bytes(seed),
		DelegatedAt: now,
	}
}
