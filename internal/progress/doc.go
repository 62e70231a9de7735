// Package progress defines the player progress domain: the persisted
// PlayerProgress row, the MatchReport decoded from a post-match update, the
// Delta it applies, and the Store/Session contracts that persistence
// backends implement. This package must not import database drivers.
package progress
