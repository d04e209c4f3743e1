package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Store maps player identities to sessions and maintains the derived
// connectionId -> playerId reverse index used to resolve inbound traffic in
// O(1). A single mutex guards both maps so that every operation executes
// atomically with respect to the shared state; none of the operations touch
// the network while holding the lock.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*PlayerSession
	byConn   map[string]string // derived index, never authoritative
	nextID   uint64
	clock    func() time.Time
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*PlayerSession),
		byConn:   make(map[string]string),
		clock:    time.Now,
	}
}

// NewStoreWithClock is used by tests that need to control time.
func NewStoreWithClock(clock func() time.Time) *Store {
	s := NewStore()
	s.clock = clock
	return s
}

// ResolveOrCreate binds a player identity to the given connection and
// returns it along with whether this was a reconnection of an existing
// identity.
//
// If the connection already resolved an identity (duplicate register without
// an intervening disconnect) the existing binding is returned unchanged. If
// requestedPlayerID names a live or idle session, that session is rebound to
// this connection. Otherwise a fresh identity is allocated. When two
// connections race to claim the same requested id the later call wins the
// CurrentConnectionID slot; both resolve to the same session, so no player
// state is lost.
func (s *Store) ResolveOrCreate(connectionID, requestedPlayerID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()

	// Idempotent per connection: a second register on the same connection
	// must not mint a second identity. A rebind race can leave this entry
	// pointing at a session the sweeper has since evicted; such an entry
	// is stale, not a binding.
	if playerID, ok := s.byConn[connectionID]; ok {
		if sess, live := s.sessions[playerID]; live {
			sess.LastUsed = now
			return playerID, sess.SessionCount > 1
		}
		delete(s.byConn, connectionID)
	}

	if requestedPlayerID != "" {
		if sess, ok := s.sessions[requestedPlayerID]; ok {
			// Reconnection: rebind, never recreate. The previous
			// connection's reverse-index entry (if any) is presumed
			// gone; if it still exists the old connection keeps
			// resolving to this same session.
			sess.CurrentConnectionID = connectionID
			sess.LastUsed = now
			sess.SessionCount++
			s.byConn[connectionID] = requestedPlayerID
			return requestedPlayerID, true
		}
		// The requested identity expired or was never issued; the
		// client silently gets a fresh one.
		log.Debug().Str("requested_player_id", requestedPlayerID).
			Str("connection_id", connectionID).
			Msg("Requested player identity not found, allocating a new one")
	}

	s.nextID++
	playerID := fmt.Sprintf("player_%d", s.nextID)
	s.sessions[playerID] = &PlayerSession{
		PlayerID:            playerID,
		CurrentConnectionID: connectionID,
		CreatedAt:           now,
		LastUsed:            now,
		SessionCount:        1,
	}
	s.byConn[connectionID] = playerID
	return playerID, false
}

// SessionFor resolves the player identity bound to a connection via the
// reverse index. The second return is false when the connection never
// completed an identity request.
func (s *Store) SessionFor(connectionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	playerID, ok := s.byConn[connectionID]
	return playerID, ok
}

// ConnectionFor returns the connection currently carrying the player, if
// the session exists and is bound.
func (s *Store) ConnectionFor(playerID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[playerID]
	if !ok || sess.Idle() {
		return "", false
	}
	return sess.CurrentConnectionID, true
}

// StateOf reports whether a player identity is bound to a live connection,
// idle awaiting reconnection, or unknown.
func (s *Store) StateOf(playerID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[playerID]
	if !ok {
		return StateUnknown
	}
	if sess.Idle() {
		return StateIdle
	}
	return StateBound
}

// RecordActivity refreshes the session's expiry clock. Activity on an
// identity that was concurrently evicted is dropped, not resurrected.
func (s *Store) RecordActivity(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[playerID]; ok {
		sess.LastUsed = s.clock()
	}
}

// MarkDisconnected clears the session's connection binding but retains the
// record so the player can reclaim it by reconnecting. Returns the affected
// player identity, if any.
func (s *Store) MarkDisconnected(connectionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	playerID, ok := s.byConn[connectionID]
	if !ok {
		return "", false
	}
	delete(s.byConn, connectionID)

	sess, live := s.sessions[playerID]
	if !live {
		// The session behind this stale entry was already evicted.
		return "", false
	}
	// Only clear the binding if this connection still owns it; a racing
	// reconnect may already have claimed the session.
	if sess.CurrentConnectionID == connectionID {
		sess.CurrentConnectionID = ""
		sess.LastUsed = s.clock()
	}
	return playerID, true
}

// EvictIdleSince deletes every idle session whose last activity is older
// than the threshold and returns the evicted player ids. A session with a
// live connection is never evicted, whatever its age.
func (s *Store) EvictIdleSince(threshold time.Duration, now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for playerID, sess := range s.sessions {
		if !sess.Idle() {
			continue
		}
		if now.Sub(sess.LastUsed) > threshold {
			delete(s.sessions, playerID)
			evicted = append(evicted, playerID)
		}
	}
	if len(evicted) > 0 {
		// Rebinds leave the superseded connection's reverse-index entry
		// behind; purge anything now pointing at a deleted session so the
		// old connection resolves to nothing rather than a dead identity.
		for connectionID, playerID := range s.byConn {
			if _, live := s.sessions[playerID]; !live {
				delete(s.byConn, connectionID)
			}
		}
	}
	return evicted
}

// Len returns the number of sessions, bound and idle.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
