// Package replica implements the shared room state: a small set of named
// slots replicated between every peer in a room over GossipSub. Scalar slots
// converge by last-writer-wins, list slots are grow-only with idempotent
// appends, and the player roster rides on a presence topic. Delivery is
// at-least-once and unordered; readers must tolerate duplicates and stale
// snapshots.
package replica

import "github.com/ethwar/arena/pkg/types"

// Well-known slot names shared by every peer in a room.
const (
	// SlotStakingHistory is the grow-only list of stake records.
	SlotStakingHistory = "stakingHistory"

	// SlotTotalStaked is the advisory running total of the pool. The
	// record list is authoritative; this scalar is a display hint.
	SlotTotalStaked = "totalStakedAmount"

	// SlotGameEnded is the host-signed end-of-game marker naming the winner.
	SlotGameEnded = "gameEnded"

	// SlotRedeemedBy is the best-effort marker naming who claimed the pool.
	SlotRedeemedBy = "redeemedBy"
)

// EventKind classifies a replica change notification.
type EventKind int

const (
	// SlotChanged fires when a scalar slot accepted a new value.
	SlotChanged EventKind = iota

	// ListAppended fires when a list slot accepted a new item.
	ListAppended

	// RosterChanged fires when a peer joined, left, or updated its state.
	RosterChanged
)

// Event is a change notification delivered on the Watch channel. Slot is
// empty for roster events.
type Event struct {
	Kind EventKind
	Slot string
}

// Store is the replicated room state as seen by one peer. Implementations
// must be safe for concurrent use.
type Store interface {
	// Get returns the current value of a scalar slot.
	Get(slot string) ([]byte, bool)

	// Set writes a scalar slot. Concurrent writers converge by
	// last-writer-wins on (timestamp, writer ID).
	Set(slot string, value []byte) error

	// Append adds an item to a grow-only list slot. Appending an item
	// already present is a no-op.
	Append(slot string, item []byte) error

	// List returns a snapshot of a list slot in local arrival order.
	List(slot string) [][]byte

	// Players returns a snapshot of the current room roster.
	Players() []types.PlayerState

	// PublishState announces this peer's player state to the room.
	PublishState(st types.PlayerState) error

	// AmIHost reports whether this peer created the room.
	AmIHost() bool

	// Watch returns a channel of change notifications. Events may be
	// dropped under load; treat them as wake-ups, not a change log.
	Watch() <-chan Event

	// Close leaves the room and releases resources.
	Close() error
}
