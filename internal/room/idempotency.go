package room

import (
	"sort"

	"github.com/nightvote/resistance-backend/internal/store"
)

// fingerprint normalizes a command payload before hashing: the team is
// a set, so its order must not change the fingerprint.
func fingerprint(msg Command) string {
	team := append([]string(nil), msg.Team...)
	sort.Strings(team)
	parts := append(team, string(msg.Vote), string(msg.Action))
	return store.Fingerprint(msg.Kind, parts...)
}
