package replica

import (
	"sync"
	"time"

	"github.com/ethwar/arena/pkg/types"
)

// scalar is a last-writer-wins register. Ties on the timestamp break by the
// lexicographically larger writer ID so every peer resolves them the same way.
type scalar struct {
	value  []byte
	millis int64
	writer string
}

// supersededBy reports whether an incoming write wins over the current one.
func (s scalar) supersededBy(millis int64, writer string) bool {
	if millis != s.millis {
		return millis > s.millis
	}
	return writer > s.writer
}

// Memory is an in-process Store for a single peer. Tests drive convergence
// by feeding remote writes through ApplyRemoteSet and ApplyRemoteAppend in
// whatever order the network might deliver them.
type Memory struct {
	mu      sync.Mutex
	id      string
	host    bool
	scalars map[string]scalar
	lists   map[string][][]byte
	seen    map[string]map[string]bool
	roster  map[string]types.PlayerState
	watch   chan Event

	now func() int64
}

// NewMemory creates an empty in-process store identified by id.
func NewMemory(id string, host bool) *Memory {
	return &Memory{
		id:      id,
		host:    host,
		scalars: make(map[string]scalar),
		lists:   make(map[string][][]byte),
		seen:    make(map[string]map[string]bool),
		roster:  make(map[string]types.PlayerState),
		watch:   make(chan Event, 64),
		now:     func() int64 { return time.Now().UnixMilli() },
	}
}

// SetClock overrides the timestamp source. Test hook.
func (m *Memory) SetClock(now func() int64) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func (m *Memory) Get(slot string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scalars[slot]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(s.value))
	copy(out, s.value)
	return out, true
}

func (m *Memory) Set(slot string, value []byte) error {
	m.mu.Lock()
	millis := m.now()
	m.applySetLocked(slot, value, millis, m.id)
	m.mu.Unlock()
	return nil
}

// ApplyRemoteSet merges a write from another peer.
func (m *Memory) ApplyRemoteSet(slot string, value []byte, millis int64, writer string) {
	m.mu.Lock()
	m.applySetLocked(slot, value, millis, writer)
	m.mu.Unlock()
}

func (m *Memory) applySetLocked(slot string, value []byte, millis int64, writer string) {
	cur, ok := m.scalars[slot]
	if ok && !cur.supersededBy(millis, writer) {
		return
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.scalars[slot] = scalar{value: v, millis: millis, writer: writer}
	m.notifyLocked(Event{Kind: SlotChanged, Slot: slot})
}

func (m *Memory) Append(slot string, item []byte) error {
	m.mu.Lock()
	m.applyAppendLocked(slot, item)
	m.mu.Unlock()
	return nil
}

// ApplyRemoteAppend merges a list item from another peer.
func (m *Memory) ApplyRemoteAppend(slot string, item []byte) {
	m.mu.Lock()
	m.applyAppendLocked(slot, item)
	m.mu.Unlock()
}

func (m *Memory) applyAppendLocked(slot string, item []byte) {
	key := string(item)
	if m.seen[slot] == nil {
		m.seen[slot] = make(map[string]bool)
	}
	if m.seen[slot][key] {
		return
	}
	m.seen[slot][key] = true

	v := make([]byte, len(item))
	copy(v, item)
	m.lists[slot] = append(m.lists[slot], v)
	m.notifyLocked(Event{Kind: ListAppended, Slot: slot})
}

func (m *Memory) List(slot string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.lists[slot]
	out := make([][]byte, len(items))
	for i, it := range items {
		out[i] = make([]byte, len(it))
		copy(out[i], it)
	}
	return out
}

func (m *Memory) Players() []types.PlayerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.PlayerState, 0, len(m.roster))
	for _, st := range m.roster {
		out = append(out, st)
	}
	return out
}

func (m *Memory) PublishState(st types.PlayerState) error {
	m.mu.Lock()
	if st.PeerID == "" {
		st.PeerID = m.id
	}
	m.roster[st.PeerID] = st
	m.notifyLocked(Event{Kind: RosterChanged})
	m.mu.Unlock()
	return nil
}

// ApplyRemoteState merges another peer's player state into the roster.
func (m *Memory) ApplyRemoteState(st types.PlayerState) {
	m.mu.Lock()
	m.roster[st.PeerID] = st
	m.notifyLocked(Event{Kind: RosterChanged})
	m.mu.Unlock()
}

// DropPeer removes a peer from the roster, as presence expiry would.
func (m *Memory) DropPeer(peerID string) {
	m.mu.Lock()
	delete(m.roster, peerID)
	m.notifyLocked(Event{Kind: RosterChanged})
	m.mu.Unlock()
}

func (m *Memory) AmIHost() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.host
}

// SetHost flips this peer's host capability. Test hook for host handover.
func (m *Memory) SetHost(host bool) {
	m.mu.Lock()
	m.host = host
	m.mu.Unlock()
}

func (m *Memory) Watch() <-chan Event {
	return m.watch
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) notifyLocked(ev Event) {
	select {
	case m.watch <- ev:
	default:
	}
}
