package handler

import (
	"time"

	"github.com/JakeFAU/game-progress/internal/progress"
)

// Request is one function invocation.
type Request struct {
	Method          string            `json:"httpMethod"`
	QueryParameters map[string]string `json:"queryStringParameters,omitempty"`
	Body            string            `json:"body,omitempty"`
}

// Response is the function's reply.
type Response struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// progressBody is the wire form of a PlayerProgress row.
type progressBody struct {
	PlayerID    string  `json:"player_id"`
	TotalKills  int64   `json:"total_kills"`
	TotalDeaths int64   `json:"total_deaths"`
	Wins        int64   `json:"wins"`
	Losses      int64   `json:"losses"`
	Experience  int64   `json:"experience"`
	UpdatedAt   *string `json:"updated_at"`
}

type errorBody struct {
	Error string `json:"error"`
}

func toProgressBody(p progress.PlayerProgress) progressBody {
	return progressBody{
		PlayerID:    p.PlayerID,
		TotalKills:  p.TotalKills,
		TotalDeaths: p.TotalDeaths,
		Wins:        p.Wins,
		Losses:      p.Losses,
		Experience:  p.Experience,
		UpdatedAt:   formatTimestamp(p.UpdatedAt),
	}
}

// formatTimestamp renders t as ISO-8601 (RFC 3339), or nil for a NULL column.
func formatTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}
