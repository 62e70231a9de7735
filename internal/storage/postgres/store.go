// Package postgres provides the Postgres-backed progress store. Every
// Session owns exactly one pgx connection; nothing is pooled.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/game-progress/internal/progress"
)

const defaultTable = "game_progress"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls where the store connects and which table it uses.
type Config struct {
	DSN   string
	Table string
}

// Conn is the subset of *pgx.Conn the store relies on.
type Conn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// DialFunc opens a new connection for one session.
type DialFunc func(ctx context.Context, dsn string) (Conn, error)

// Store implements progress.Store on top of Postgres.
type Store struct {
	dsn     string
	dial    DialFunc
	queries queries
}

// NewStore creates a Postgres-backed Store. The DSN is parsed up front so a
// malformed connection string fails at startup rather than per request.
func NewStore(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	if _, err := pgx.ParseConfig(cfg.DSN); err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	return NewStoreWithDialer(cfg, dialPgx)
}

// NewStoreWithDialer constructs a store with a custom dialer (primarily for testing).
func NewStoreWithDialer(cfg Config, dial DialFunc) (*Store, error) {
	if dial == nil {
		return nil, fmt.Errorf("dialer is required")
	}
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{
		dsn:     cfg.DSN,
		dial:    dial,
		queries: newQueries(table),
	}, nil
}

func dialPgx(ctx context.Context, dsn string) (Conn, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by callers
	}
	return conn, nil
}

// Open connects to Postgres and returns a session bound to that connection.
func (s *Store) Open(ctx context.Context) (progress.Session, error) {
	conn, err := s.dial(ctx, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &session{conn: conn, queries: s.queries}, nil
}

// Ping opens a short-lived connection and pings the server.
func (s *Store) Ping(ctx context.Context) error {
	conn, err := s.dial(ctx, s.dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	pingErr := conn.Ping(ctx)
	closeErr := conn.Close(ctx)
	if pingErr != nil {
		return fmt.Errorf("ping postgres: %w", pingErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close postgres connection: %w", closeErr)
	}
	return nil
}

type session struct {
	conn    Conn
	queries queries
}

func (s *session) Find(ctx context.Context, playerID string) (progress.PlayerProgress, error) {
	var row progress.PlayerProgress
	if err := scanProgress(s.conn.QueryRow(ctx, s.queries.find, playerID), &row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return progress.PlayerProgress{}, progress.ErrNotFound
		}
		return progress.PlayerProgress{}, fmt.Errorf("select progress: %w", err)
	}
	return row, nil
}

func (s *session) Create(ctx context.Context, playerID string) (progress.PlayerProgress, error) {
	var row progress.PlayerProgress
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		return scanProgress(tx.QueryRow(ctx, s.queries.insert, playerID), &row)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		// ON CONFLICT DO NOTHING returned nothing: a concurrent first visit won.
		return s.Find(ctx, playerID)
	}
	if err != nil {
		return progress.PlayerProgress{}, fmt.Errorf("insert progress: %w", err)
	}
	return row, nil
}

func (s *session) ApplyDelta(ctx context.Context, playerID string, d progress.Delta) (progress.PlayerProgress, error) {
	var row progress.PlayerProgress
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		return scanProgress(tx.QueryRow(
			ctx,
			s.queries.update,
			d.Kills,
			d.Deaths,
			d.Wins,
			d.Losses,
			d.Experience,
			playerID,
		), &row)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return progress.PlayerProgress{}, progress.ErrNotFound
	}
	if err != nil {
		return progress.PlayerProgress{}, fmt.Errorf("update progress: %w", err)
	}
	return row, nil
}

func (s *session) Close(ctx context.Context) error {
	if err := s.conn.Close(ctx); err != nil {
		return fmt.Errorf("close postgres connection: %w", err)
	}
	return nil
}

// inTx runs fn in a transaction, committing on success and rolling back
// when fn fails.
func (s *session) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func scanProgress(row pgx.Row, p *progress.PlayerProgress) error {
	return row.Scan( //nolint:wrapcheck // wrapped by callers
		&p.PlayerID,
		&p.TotalKills,
		&p.TotalDeaths,
		&p.Wins,
		&p.Losses,
		&p.Experience,
		&p.UpdatedAt,
	)
}
