package delegation

import (
	"context"

	"go.uber.org/zap"
)

// Arbiter is the handoff authority that finalizes undelegations. It drains
// commit requests and drives ProcessUndelegation; if it stops, pending
// handoffs stay observably stuck in undelegating until an operator reacts.
type Arbiter struct {
	mgr     *Manager
	log     *zap.SugaredLogger
	commits chan [][]byte
}

func NewArbiter(mgr *Manager, logger *zap.SugaredLogger) *Arbiter {
	a := &Arbiter{
		mgr:     mgr,
		log:     logger,
		commits: make(chan [][]byte, 16),
	}
	mgr.SetArbiter(a)
	return a
}

// Submit queues account seeds for finalization. Non-blocking; a full queue
// drops the request and relies on operator escalation.
func (a *Arbiter) Submit(accountSeeds [][]byte) {
	select {
	case a.commits <- accountSeeds:
	default:
		a.log.Warnw("arbiter_queue_full", "seeds", len(accountSeeds))
	}
}

// Run processes commits until ctx is cancelled.
func (a *Arbiter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case seeds := <-a.commits:
			if err := a.mgr.ProcessUndelegation(seeds); err != nil {
				a.log.Errorw("undelegation_failed", "err", err)
			}
		}
	}
}
