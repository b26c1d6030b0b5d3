// Package events publishes ledger activity for downstream consumers
// (indexers, UIs). Publishing is best-effort and never blocks or fails a
// ledger operation.
package events

// Topics.
const (
	TopicOrders      = "pairbook.orders"
	TopicFills       = "pairbook.fills"
	TopicBalances    = "pairbook.balances"
	TopicDelegations = "pairbook.delegations"
)

type Publisher interface {
	Publish(topic string, event any) error
	Close() error
}

// Nop discards all events. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(string, any) error { return nil }
func (Nop) Close() error              { return nil }
