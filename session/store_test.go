package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock for deterministic expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestResolveOrCreate_UniqueIdentities(t *testing.T) {
	store := NewStore()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		playerID, isReconnection := store.ResolveOrCreate(fmt.Sprintf("conn-%d", i), "")
		assert.False(t, isReconnection)
		assert.False(t, seen[playerID], "identity %s issued twice", playerID)
		seen[playerID] = true
	}
	assert.Equal(t, 100, store.Len())
}

func TestResolveOrCreate_IdempotentPerConnection(t *testing.T) {
	store := NewStore()

	first, firstRecon := store.ResolveOrCreate("conn-1", "")
	second, secondRecon := store.ResolveOrCreate("conn-1", "")

	assert.Equal(t, first, second)
	assert.Equal(t, firstRecon, secondRecon)
	assert.Equal(t, 1, store.Len())
}

func TestResolveOrCreate_ReconnectionReconciliation(t *testing.T) {
	store := NewStore()

	playerID, isReconnection := store.ResolveOrCreate("conn-1", "")
	require.False(t, isReconnection)

	gone, ok := store.MarkDisconnected("conn-1")
	require.True(t, ok)
	require.Equal(t, playerID, gone)
	assert.Equal(t, StateIdle, store.StateOf(playerID))

	reclaimed, isReconnection := store.ResolveOrCreate("conn-2", playerID)
	assert.Equal(t, playerID, reclaimed)
	assert.True(t, isReconnection)

	resolved, ok := store.SessionFor("conn-2")
	require.True(t, ok)
	assert.Equal(t, playerID, resolved)

	_, ok = store.SessionFor("conn-1")
	assert.False(t, ok, "old connection should no longer resolve")
	assert.Equal(t, StateBound, store.StateOf(playerID))
}

func TestResolveOrCreate_UnknownRequestedIdentity(t *testing.T) {
	store := NewStore()

	// Requesting an identity that was never issued (or already expired)
	// silently yields a fresh one.
	playerID, isReconnection := store.ResolveOrCreate("conn-1", "player_99")
	assert.False(t, isReconnection)
	assert.NotEqual(t, "player_99", playerID)
}

func TestResolveOrCreate_LastWriteWinsOnRacingClaims(t *testing.T) {
	store := NewStore()

	playerID, _ := store.ResolveOrCreate("conn-1", "")
	store.MarkDisconnected("conn-1")

	// Two connections from a flaky client claim the same identity in
	// quick succession; the later claim owns the connection slot but both
	// resolve to the same session.
	reclaimedA, reconA := store.ResolveOrCreate("conn-2", playerID)
	reclaimedB, reconB := store.ResolveOrCreate("conn-3", playerID)

	assert.Equal(t, playerID, reclaimedA)
	assert.Equal(t, playerID, reclaimedB)
	assert.True(t, reconA)
	assert.True(t, reconB)
	assert.Equal(t, 1, store.Len())

	current, ok := store.ConnectionFor(playerID)
	require.True(t, ok)
	assert.Equal(t, "conn-3", current)

	// The earlier connection still resolves to the same player, so its
	// traffic is not lost.
	resolved, ok := store.SessionFor("conn-2")
	require.True(t, ok)
	assert.Equal(t, playerID, resolved)
}

func TestMarkDisconnected_UnknownConnectionIsNoop(t *testing.T) {
	store := NewStore()
	_, ok := store.MarkDisconnected("never-seen")
	assert.False(t, ok)
}

func TestMarkDisconnected_DoesNotClearRacingRebind(t *testing.T) {
	store := NewStore()

	playerID, _ := store.ResolveOrCreate("conn-1", "")
	// conn-2 reclaims the identity before conn-1's disconnect arrives.
	store.ResolveOrCreate("conn-2", playerID)
	store.MarkDisconnected("conn-1")

	current, ok := store.ConnectionFor(playerID)
	require.True(t, ok)
	assert.Equal(t, "conn-2", current)
}

func TestRecordActivity_StaleIdentityIsDropped(t *testing.T) {
	store := NewStore()
	// Must not panic or resurrect anything.
	store.RecordActivity("player_404")
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, StateUnknown, store.StateOf("player_404"))
}

func TestEvictIdleSince(t *testing.T) {
	clock := newFakeClock()
	store := NewStoreWithClock(clock.Now)

	idlePlayer, _ := store.ResolveOrCreate("conn-1", "")
	boundPlayer, _ := store.ResolveOrCreate("conn-2", "")
	store.MarkDisconnected("conn-1")

	clock.Advance(15 * time.Minute)

	evicted := store.EvictIdleSince(10*time.Minute, clock.Now())
	assert.Equal(t, []string{idlePlayer}, evicted)

	// The bound session is never evicted regardless of age.
	assert.Equal(t, StateUnknown, store.StateOf(idlePlayer))
	assert.Equal(t, StateBound, store.StateOf(boundPlayer))
	assert.Equal(t, 1, store.Len())
}

func TestEvictIdleSince_FreshIdleSessionSurvives(t *testing.T) {
	clock := newFakeClock()
	store := NewStoreWithClock(clock.Now)

	playerID, _ := store.ResolveOrCreate("conn-1", "")
	store.MarkDisconnected("conn-1")

	clock.Advance(5 * time.Minute)

	evicted := store.EvictIdleSince(10*time.Minute, clock.Now())
	assert.Empty(t, evicted)
	assert.Equal(t, StateIdle, store.StateOf(playerID))
}

func TestEvictIdleSince_ActivityDefersEviction(t *testing.T) {
	clock := newFakeClock()
	store := NewStoreWithClock(clock.Now)

	playerID, _ := store.ResolveOrCreate("conn-1", "")
	clock.Advance(8 * time.Minute)
	store.RecordActivity(playerID)
	store.MarkDisconnected("conn-1")

	clock.Advance(8 * time.Minute)

	// Last activity was 8 minutes ago, under the 10 minute threshold.
	evicted := store.EvictIdleSince(10*time.Minute, clock.Now())
	assert.Empty(t, evicted)
}

func TestEvictedIdentityIsNotReclaimable(t *testing.T) {
	clock := newFakeClock()
	store := NewStoreWithClock(clock.Now)

	playerID, _ := store.ResolveOrCreate("conn-1", "")
	store.MarkDisconnected("conn-1")
	clock.Advance(time.Hour)
	store.EvictIdleSince(10*time.Minute, clock.Now())

	// Reconnecting after expiry yields a new identity, indistinguishable
	// from a first-time connection.
	fresh, isReconnection := store.ResolveOrCreate("conn-2", playerID)
	assert.False(t, isReconnection)
	assert.NotEqual(t, playerID, fresh)
}

func TestEviction_PurgesSupersededConnectionEntries(t *testing.T) {
	clock := newFakeClock()
	store := NewStoreWithClock(clock.Now)

	// conn-1 registers, conn-2 reclaims the identity (conn-1's reverse
	// index entry is deliberately left behind), conn-2 disconnects, the
	// idle session expires.
	playerID, _ := store.ResolveOrCreate("conn-1", "")
	store.ResolveOrCreate("conn-2", playerID)
	store.MarkDisconnected("conn-2")
	clock.Advance(time.Hour)
	evicted := store.EvictIdleSince(10*time.Minute, clock.Now())
	require.Equal(t, []string{playerID}, evicted)

	// The superseded connection must now resolve to nothing anywhere.
	_, ok := store.SessionFor("conn-1")
	assert.False(t, ok, "superseded connection must not resolve to a dead identity")

	gone, ok := store.MarkDisconnected("conn-1")
	assert.False(t, ok)
	assert.Empty(t, gone)

	// Re-registering on it mints a fresh identity instead of resurrecting
	// the evicted one.
	fresh, isReconnection := store.ResolveOrCreate("conn-1", "")
	assert.False(t, isReconnection)
	assert.NotEqual(t, playerID, fresh)
}

func TestStore_ConcurrentResolveAndDisconnect(t *testing.T) {
	store := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			connID := fmt.Sprintf("conn-%d", n)
			playerID, _ := store.ResolveOrCreate(connID, "")
			store.RecordActivity(playerID)
			store.MarkDisconnected(connID)
		}(i)
	}
	wg.Wait()

	// Every session survives as idle; nothing was lost or duplicated.
	assert.Equal(t, 50, store.Len())
	evicted := store.EvictIdleSince(0, time.Now().Add(time.Minute))
	assert.Len(t, evicted, 50)
}
