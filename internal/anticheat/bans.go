package anticheat

import (
	"sort"
	"sync"
	"time"
)

// Ban is a persisted enforcement decision.
type Ban struct {
	PlayerID string    `json:"playerId"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// BanStore persists bans. Implementations must be safe for concurrent use;
// one store is shared by every session.
type BanStore interface {
	Ban(playerID, reason string, at time.Time) error
	IsBanned(playerID string) bool
	List() []Ban
}

// MemoryBanStore keeps bans in process memory.
type MemoryBanStore struct {
	mu   sync.RWMutex
	bans map[string]Ban
}

// NewMemoryBanStore creates an empty store.
func NewMemoryBanStore() *MemoryBanStore {
	return &MemoryBanStore{bans: make(map[string]Ban)}
}

// Ban records a ban. Re-banning keeps the original entry.
func (s *MemoryBanStore) Ban(playerID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bans[playerID]; !ok {
		s.bans[playerID] = Ban{PlayerID: playerID, Reason: reason, At: at}
	}
	return nil
}

// IsBanned reports whether playerID has been banned.
func (s *MemoryBanStore) IsBanned(playerID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.bans[playerID]
	return ok
}

// List returns every ban, oldest first.
func (s *MemoryBanStore) List() []Ban {
	s.mu.RLock()
	out := make([]Ban, 0, len(s.bans))
	for _, b := range s.bans {
		out = append(out, b)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	return out
}

// Unban lifts a ban.
func (s *MemoryBanStore) Unban(playerID string) {
	s.mu.Lock()
	delete(s.bans, playerID)
	s.mu.Unlock()
}
