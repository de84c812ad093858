package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nightvote/resistance-backend/internal/engine"
)

func TestGameStoreRoundTrip(t *testing.T) {
	s := NewGameStore()
	st := engine.CreateGame("g1", engine.Player{ID: "host"}, time.Now())
	s.Save(st)

	got, ok := s.Get("g1")
	require.True(t, ok)
	require.Equal(t, "g1", got.ID)
	require.Len(t, s.List(), 1)

	s.Delete("g1")
	_, ok = s.Get("g1")
	require.False(t, ok)
}

func TestSessionStoreDeleteGame(t *testing.T) {
	s := NewSessionStore()
	s.Put(SessionRecord{Token: "t1", GameID: "g1", PlayerID: "p1"})
	s.Put(SessionRecord{Token: "t2", GameID: "g1", PlayerID: "p2"})
	s.Put(SessionRecord{Token: "t3", GameID: "g2", PlayerID: "p3"})

	s.DeleteGame("g1")

	_, ok := s.Get("t1")
	require.False(t, ok)
	_, ok = s.Get("t2")
	require.False(t, ok)
	rec, ok := s.Get("t3")
	require.True(t, ok)
	require.Equal(t, "g2", rec.GameID)
}

func TestActionCacheLookupAndExpiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := NewActionCache(2 * time.Minute)
	c.Store("tok", "a1", "submit-vote", "fp", now)

	rec, ok := c.Lookup("tok", "a1", now.Add(time.Minute))
	require.True(t, ok)
	require.Equal(t, "fp", rec.Fingerprint)

	// Past the TTL the entry reads as absent even before eviction.
	_, ok = c.Lookup("tok", "a1", now.Add(3*time.Minute))
	require.False(t, ok)

	require.Equal(t, 1, c.EvictExpired(now.Add(3*time.Minute)))
	require.Equal(t, 0, c.EvictExpired(now.Add(3*time.Minute)))
}

func TestActionCacheScopedBySession(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := NewActionCache(2 * time.Minute)
	c.Store("tok-a", "a1", "submit-vote", "fp", now)

	_, ok := c.Lookup("tok-b", "a1", now)
	require.False(t, ok)
}

func TestFingerprintNormalization(t *testing.T) {
	a := Fingerprint("propose-team", "p1", "p2")
	b := Fingerprint("propose-team", "p1", "p2")
	require.Equal(t, a, b)

	require.NotEqual(t, a, Fingerprint("propose-team", "p1", "p3"))
	require.NotEqual(t, a, Fingerprint("submit-vote", "p1", "p2"))
	// Kind and payload must not be confusable.
	require.NotEqual(t, Fingerprint("ab", "c"), Fingerprint("a", "bc"))
}
