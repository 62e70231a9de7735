// Package sqlite provides a SQLite-backed progress store for local
// development. It mirrors the Postgres store: one connection per session,
// writes inside a transaction, and the table must already exist.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/game-progress/internal/progress"
)

const (
	driverName   = "sqlite"
	defaultTable = "game_progress"
)

// busyTimeoutMillis is how long a connection waits on a locked database
// before reporting SQLITE_BUSY.
const busyTimeoutMillis = 5000

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// timeLayouts lists the formats updated_at may come back in: RFC 3339 as
// written by this store, and SQLite's CURRENT_TIMESTAMP format.
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05"}

// Config controls the database file (or DSN) and table name.
type Config struct {
	DSN   string
	Table string
	// Now stamps updated_at; defaults to time.Now in UTC.
	Now func() time.Time
}

// Store implements progress.Store on top of SQLite.
type Store struct {
	dsn   string
	table string
	now   func() time.Time
}

// NewStore validates cfg and returns a Store. No connection is opened here.
func NewStore(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{dsn: withLocking(cfg.DSN), table: table, now: now}, nil
}

// withLocking makes concurrent sessions queue on the database lock: every
// connection waits up to busyTimeoutMillis, and transactions take the write
// lock at BEGIN. Settings already present in dsn are kept.
func withLocking(dsn string) string {
	var params []string
	if !strings.Contains(dsn, "busy_timeout") {
		params = append(params, fmt.Sprintf("_pragma=busy_timeout(%d)", busyTimeoutMillis))
	}
	if !strings.Contains(dsn, "_txlock") {
		params = append(params, "_txlock=immediate")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// Open opens a dedicated database handle limited to one connection.
func (s *Store) Open(ctx context.Context) (progress.Session, error) {
	db, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	return &session{db: db, table: s.table, now: s.now}, nil
}

// Ping opens a handle, pings it, and closes it again.
func (s *Store) Ping(ctx context.Context) error {
	db, err := s.connect(ctx)
	if err != nil {
		return err
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

func (s *Store) connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.Open(driverName, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		if cerr := db.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// row mirrors the table; updated_at is scanned as text and parsed so both
// CURRENT_TIMESTAMP defaults and RFC 3339 values are accepted.
type row struct {
	PlayerID    string         `db:"player_id"`
	TotalKills  int64          `db:"total_kills"`
	TotalDeaths int64          `db:"total_deaths"`
	Wins        int64          `db:"wins"`
	Losses      int64          `db:"losses"`
	Experience  int64          `db:"experience"`
	UpdatedAt   sql.NullString `db:"updated_at"`
}

func (r row) toProgress() (progress.PlayerProgress, error) {
	p := progress.PlayerProgress{
		PlayerID:    r.PlayerID,
		TotalKills:  r.TotalKills,
		TotalDeaths: r.TotalDeaths,
		Wins:        r.Wins,
		Losses:      r.Losses,
		Experience:  r.Experience,
	}
	if !r.UpdatedAt.Valid || r.UpdatedAt.String == "" {
		return p, nil
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, r.UpdatedAt.String); err == nil {
			ts = ts.UTC()
			p.UpdatedAt = &ts
			return p, nil
		}
	}
	return progress.PlayerProgress{}, fmt.Errorf("parse updated_at %q", r.UpdatedAt.String)
}

const columns = "player_id, total_kills, total_deaths, wins, losses, experience, updated_at"

type session struct {
	db    *sqlx.DB
	table string
	now   func() time.Time
}

func (s *session) Find(ctx context.Context, playerID string) (progress.PlayerProgress, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE player_id = ?`, columns, s.table)
	var r row
	if err := s.db.GetContext(ctx, &r, query, playerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return progress.PlayerProgress{}, progress.ErrNotFound
		}
		return progress.PlayerProgress{}, fmt.Errorf("select progress: %w", err)
	}
	return r.toProgress()
}

func (s *session) Create(ctx context.Context, playerID string) (progress.PlayerProgress, error) {
	query := fmt.Sprintf(`INSERT INTO %s (player_id) VALUES (?)
ON CONFLICT (player_id) DO NOTHING
RETURNING %s`, s.table, columns)
	var r row
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, &r, query, playerID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return s.Find(ctx, playerID)
	}
	if err != nil {
		return progress.PlayerProgress{}, fmt.Errorf("insert progress: %w", err)
	}
	return r.toProgress()
}

func (s *session) ApplyDelta(ctx context.Context, playerID string, d progress.Delta) (progress.PlayerProgress, error) {
	query := fmt.Sprintf(`UPDATE %s
SET total_kills = total_kills + ?,
	total_deaths = total_deaths + ?,
	wins = wins + ?,
	losses = losses + ?,
	experience = experience + ?,
	updated_at = ?
WHERE player_id = ?
RETURNING %s`, s.table, columns)
	var r row
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, &r, query,
			d.Kills,
			d.Deaths,
			d.Wins,
			d.Losses,
			d.Experience,
			s.now().UTC().Format(time.RFC3339Nano),
			playerID,
		)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return progress.PlayerProgress{}, progress.ErrNotFound
	}
	if err != nil {
		return progress.PlayerProgress{}, fmt.Errorf("update progress: %w", err)
	}
	return r.toProgress()
}

func (s *session) Close(_ context.Context) error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

func (s *session) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
