package progress

import (
	"context"
	"time"
)

// EventTypeUpdated marks an event emitted after a match report was applied.
const EventTypeUpdated = "progress.updated"

// Event describes an applied match report for downstream consumers.
type Event struct {
	Type       string         `json:"type"`
	PlayerID   string         `json:"player_id"`
	Report     MatchReport    `json:"report"`
	Delta      Delta          `json:"delta"`
	Progress   PlayerProgress `json:"progress"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Publisher pushes events to Pub/Sub (or similar) and returns a message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) (string, error)
}
