package progress

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ExperiencePerKill is the experience awarded for each reported kill.
const ExperiencePerKill = 10

// ErrInvalidReport is returned when a match report body cannot be decoded.
var ErrInvalidReport = errors.New("invalid match report")

// MatchReport is a post-match stat update with defaults applied.
type MatchReport struct {
	PlayerID string `json:"player_id"`
	Kills    int64  `json:"kills"`
	Deaths   int64  `json:"deaths"`
	Won      bool   `json:"won"`
}

// Delta is the set of increments a MatchReport applies to a row.
type Delta struct {
	Kills      int64 `json:"kills"`
	Deaths     int64 `json:"deaths"`
	Wins       int64 `json:"wins"`
	Losses     int64 `json:"losses"`
	Experience int64 `json:"experience"`
}

// Delta converts the report into row increments. Exactly one of Wins and
// Losses is 1. Negative kills or deaths pass through unchanged.
func (r MatchReport) Delta() Delta {
	d := Delta{
		Kills:      r.Kills,
		Deaths:     r.Deaths,
		Experience: r.Kills * ExperiencePerKill,
	}
	if r.Won {
		d.Wins = 1
	} else {
		d.Losses = 1
	}
	return d
}

type matchReportBody struct {
	PlayerID *string `json:"player_id"`
	Kills    *int64  `json:"kills"`
	Deaths   *int64  `json:"deaths"`
	Won      *bool   `json:"won"`
}

// DecodeMatchReport parses a JSON body into a MatchReport. Missing fields,
// JSON nulls and an empty body take their defaults; anything that is not a
// JSON object of the expected field types yields ErrInvalidReport.
func DecodeMatchReport(body string) (MatchReport, error) {
	report := MatchReport{PlayerID: DefaultPlayerID}
	if strings.TrimSpace(body) == "" {
		return report, nil
	}
	var raw matchReportBody
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	if err := dec.Decode(&raw); err != nil {
		return MatchReport{}, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	if dec.More() {
		return MatchReport{}, fmt.Errorf("%w: trailing data after object", ErrInvalidReport)
	}
	report.PlayerID = PlayerIDOrDefault(valueOrDefault(raw.PlayerID, ""))
	report.Kills = valueOrDefault(raw.Kills, 0)
	report.Deaths = valueOrDefault(raw.Deaths, 0)
	report.Won = valueOrDefault(raw.Won, false)
	return report, nil
}

// PlayerIDOrDefault maps an empty identifier to DefaultPlayerID.
func PlayerIDOrDefault(id string) string {
	if id == "" {
		return DefaultPlayerID
	}
	return id
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}
