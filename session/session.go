// Package session owns the durable player identities and their binding to
// ephemeral transport connections. A player keeps the same PlayerSession
// across any number of reconnects until the sweeper expires it.
package session

import "time"

// PlayerSession is the binding between a stable player identity and the
// transport connection currently carrying it. CurrentConnectionID is empty
// while the player is between connections ("idle"); an idle session stays
// eligible for reconnection until it is evicted.
type PlayerSession struct {
	PlayerID            string
	CurrentConnectionID string
	CreatedAt           time.Time
	LastUsed            time.Time
	SessionCount        int // number of connections that have carried this identity
}

// Idle reports whether the session has no connection bound.
func (s *PlayerSession) Idle() bool {
	return s.CurrentConnectionID == ""
}

// State is the outcome of a player lookup. The three cases are distinct:
// a bound session has a live connection, an idle one is awaiting
// reconnection, and an unknown id has no session at all (never issued, or
// already evicted).
type State int

const (
	StateUnknown State = iota
	StateIdle
	StateBound
)

func (s State) String() string {
	switch s {
	case StateBound:
		return "bound"
	case StateIdle:
		return "idle"
	default:
		return "unknown"
	}
}
