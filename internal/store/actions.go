package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrConflictingRetry is returned when a reused action id arrives with
// a different payload than the recorded first attempt.
var ErrConflictingRetry = errors.New("action id reused with different payload")

type actionKey struct {
	Token    string
	ActionID string
}

// ActionRecord remembers the first successful apply of an action id.
type ActionRecord struct {
	Kind        string
	Fingerprint string
	StoredAt    time.Time
}

// ActionCache deduplicates retried commands by caller-supplied action
// id. Entries expire after a fixed TTL regardless of game lifetime.
type ActionCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[actionKey]ActionRecord
}

func NewActionCache(ttl time.Duration) *ActionCache {
	return &ActionCache{ttl: ttl, entries: make(map[actionKey]ActionRecord)}
}

// Lookup returns the live record for (token, actionID), treating
// expired entries as absent.
func (c *ActionCache) Lookup(token, actionID string, now time.Time) (ActionRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.entries[actionKey{token, actionID}]
	if !ok || now.Sub(rec.StoredAt) > c.ttl {
		return ActionRecord{}, false
	}
	return rec, true
}

// Store records a successful apply.
func (c *ActionCache) Store(token, actionID, kind, fingerprint string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[actionKey{token, actionID}] = ActionRecord{
		Kind:        kind,
		Fingerprint: fingerprint,
		StoredAt:    now,
	}
}

// EvictExpired drops entries past the TTL and reports how many went.
func (c *ActionCache) EvictExpired(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, rec := range c.entries {
		if now.Sub(rec.StoredAt) > c.ttl {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Fingerprint hashes a command kind plus its normalized payload parts.
// Callers must normalize order-insensitive parts (e.g. sort team ids)
// before handing them in.
func Fingerprint(kind string, parts ...string) string {
	h := sha256.Sum256([]byte(kind + "\x00" + strings.Join(parts, "\x00")))
	return hex.EncodeToString(h[:])
}
