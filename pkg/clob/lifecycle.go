package clob

// Status is the delegation lifecycle state of a ledger. It is the single
// source of truth for which venue may accept mutating operations and is
// persisted alongside the ledger so any collaborator can observe a pending
// handoff.
type Status uint8

const (
	// StatusLocal: the base venue is authoritative.
	StatusLocal Status = iota
	// StatusDelegating: handoff to the ephemeral venue initiated.
	StatusDelegating
	// StatusRemote: the ephemeral venue is authoritative.
	StatusRemote
	// StatusUndelegating: handoff back initiated, awaiting the arbiter.
	StatusUndelegating
	// StatusReconciling: final snapshot being replayed into the base ledger.
	StatusReconciling
)

func (s Status) String() string {
	switch s {
	case StatusLocal:
		return "local"
	case StatusDelegating:
		return "delegating"
	case StatusRemote:
		return "remote"
	case StatusUndelegating:
		return "undelegating"
	case StatusReconciling:
		return "reconciling"
	default:
		return "unknown"
	}
}

var statusTransitions = map[Status][]Status{
	StatusLocal:        {StatusDelegating},
	StatusDelegating:   {StatusRemote},
	StatusRemote:       {StatusUndelegating},
	StatusUndelegating: {StatusReconciling},
	StatusReconciling:  {StatusLocal},
}

// CanTransition reports whether from → to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
