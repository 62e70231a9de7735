package progress

import (
	"context"
	"errors"
	"time"
)

// DefaultPlayerID is used whenever a request does not name a player.
const DefaultPlayerID = "guest"

// ErrNotFound signals that no row exists for the requested player.
var ErrNotFound = errors.New("player progress not found")

// PlayerProgress models one row of the game_progress table.
type PlayerProgress struct {
	// PlayerID is the unique key of the row.
	PlayerID string `db:"player_id" json:"player_id"`
	// TotalKills and TotalDeaths accumulate reported match stats.
	TotalKills  int64 `db:"total_kills" json:"total_kills"`
	TotalDeaths int64 `db:"total_deaths" json:"total_deaths"`
	// Wins and Losses count reported match outcomes.
	Wins   int64 `db:"wins" json:"wins"`
	Losses int64 `db:"losses" json:"losses"`
	// Experience grows by ExperiencePerKill for every reported kill.
	Experience int64 `db:"experience" json:"experience"`
	// UpdatedAt is nil when the store has never stamped the row.
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at"`
}

// Apply returns a copy of p with d added. Stores do the same arithmetic in
// SQL; this is used by in-process fakes and for event payloads.
func (p PlayerProgress) Apply(d Delta, at time.Time) PlayerProgress {
	p.TotalKills += d.Kills
	p.TotalDeaths += d.Deaths
	p.Wins += d.Wins
	p.Losses += d.Losses
	p.Experience += d.Experience
	p.UpdatedAt = &at
	return p
}

// Store hands out one Session per invocation. Implementations never pool
// connections across sessions.
type Store interface {
	// Open acquires a fresh connection to the backing database.
	Open(ctx context.Context) (Session, error)
	// Ping checks that the database is reachable.
	Ping(ctx context.Context) error
}

// Session is a single store connection scoped to one invocation. Callers
// must Close it on every path.
type Session interface {
	// Find loads the row for playerID or returns ErrNotFound.
	Find(ctx context.Context, playerID string) (PlayerProgress, error)
	// Create inserts a default row for playerID and returns it. If a row
	// already exists (for example from a concurrent first visit) that row
	// is returned unchanged.
	Create(ctx context.Context, playerID string) (PlayerProgress, error)
	// ApplyDelta atomically adds d to the row for playerID, stamps
	// updated_at and returns the updated row, or ErrNotFound when no row
	// matches. It never creates a row.
	ApplyDelta(ctx context.Context, playerID string, d Delta) (PlayerProgress, error)
	// Close releases the connection.
	Close(ctx context.Context) error
}
