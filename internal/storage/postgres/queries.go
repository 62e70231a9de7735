package postgres

import "fmt"

const progressColumns = "player_id, total_kills, total_deaths, wins, losses, experience, updated_at"

type queries struct {
	find   string
	insert string
	update string
}

func newQueries(table string) queries {
	return queries{
		find: fmt.Sprintf(`
SELECT %s
FROM %s
WHERE player_id = $1`, progressColumns, table),
		insert: fmt.Sprintf(`
INSERT INTO %s (player_id)
VALUES ($1)
ON CONFLICT (player_id) DO NOTHING
RETURNING %s`, table, progressColumns),
		update: fmt.Sprintf(`
UPDATE %s
SET total_kills = total_kills + $1,
	total_deaths = total_deaths + $2,
	wins = wins + $3,
	losses = losses + $4,
	experience = experience + $5,
	updated_at = CURRENT_TIMESTAMP
WHERE player_id = $6
RETURNING %s`, table, progressColumns),
	}
}
