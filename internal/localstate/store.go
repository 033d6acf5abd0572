// Package localstate persists the player's private session state: the
// one-shot "has staked" flag and the cached profile. Both survive a process
// restart so a reload does not lose identity mid-session, and both are wiped
// by the "go home" reset. This state is exclusively local — it is never
// replicated to other peers.
package localstate

import (
	"encoding/json"
	"fmt"

	"github.com/ethwar/arena/internal/storage"
	"github.com/ethwar/arena/pkg/types"
)

// Storage keys. The store is expected to sit behind a PrefixDB, so keys are
// short and flat.
var (
	keyHasStaked = []byte("hasStaked")
	keyProfile   = []byte("playerProfile")
	keyRoom      = []byte("roomCode")
)

// Store reads and writes local session state.
type Store struct {
	db storage.DB
}

// New creates a Store over the given database.
func New(db storage.DB) *Store {
	return &Store{db: db}
}

// HasStaked reports whether this player already staked in the current
// session. Errors reading the flag are treated as "not staked": the ledger
// check in the stake flow is the authoritative backstop.
func (s *Store) HasStaked() bool {
	ok, err := s.db.Has(keyHasStaked)
	if err != nil {
		return false
	}
	return ok
}

// SetStaked durably marks this player as having staked.
func (s *Store) SetStaked() error {
	if err := s.db.Put(keyHasStaked, []byte{1}); err != nil {
		return fmt.Errorf("persist staked flag: %w", err)
	}
	return nil
}

// ClearStaked removes the staked flag.
func (s *Store) ClearStaked() error {
	if err := s.db.Delete(keyHasStaked); err != nil {
		return fmt.Errorf("clear staked flag: %w", err)
	}
	return nil
}

// Profile returns the cached player profile, or (nil, nil) when none is stored.
func (s *Store) Profile() (*types.PlayerProfile, error) {
	ok, err := s.db.Has(keyProfile)
	if err != nil || !ok {
		return nil, err
	}
	raw, err := s.db.Get(keyProfile)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	var p types.PlayerProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

// SaveProfile caches the player profile.
func (s *Store) SaveProfile(p *types.PlayerProfile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := s.db.Put(keyProfile, raw); err != nil {
		return fmt.Errorf("persist profile: %w", err)
	}
	return nil
}

// RoomCode returns the last room this player joined, or "" when none.
func (s *Store) RoomCode() string {
	raw, err := s.db.Get(keyRoom)
	if err != nil {
		return ""
	}
	return string(raw)
}

// SaveRoomCode remembers the room joined with the stake, so a restarted peer
// can rejoin the same session.
func (s *Store) SaveRoomCode(code string) error {
	if err := s.db.Put(keyRoom, []byte(code)); err != nil {
		return fmt.Errorf("persist room code: %w", err)
	}
	return nil
}

// Reset wipes all local session state. This is the "go home" action: the
// player can stake again afterwards (the shared ledger still remembers past
// stakes for the old session's room).
func (s *Store) Reset() error {
	for _, key := range [][]byte{keyHasStaked, keyProfile, keyRoom} {
		if err := s.db.Delete(key); err != nil {
			return fmt.Errorf("reset local state: %w", err)
		}
	}
	return nil
}
