package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"matchfund/internal/core"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteRepository is the Store backed by an embedded SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

var _ Store = (*SQLiteRepository)(nil)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const dateLayout = "2006-01-02"

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := sqliteDSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection serializes writers; every multi-step mutation is a transaction.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return NewSQLiteRepositoryFromDB(db), nil
}

// NewSQLiteRepositoryFromDB wraps an already migrated database handle.
func NewSQLiteRepositoryFromDB(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func sqliteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return core.NewStorageError("ping", r.db.PingContext(ctx))
}

const matchColumns = `id, name, match_date, is_active, carry_over_cents, total_collected_cents,
	total_expenses_cents, final_balance_cents, created_at, ended_at, created_by_email, created_by_name`

func (r *SQLiteRepository) CreateMatch(ctx context.Context, m core.Match, settle SettleFunc) ([]core.Match, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, core.NewStorageError("begin create match", err)
	}
	defer tx.Rollback()

	active, err := queryMatches(ctx, tx, `SELECT `+matchColumns+` FROM matches WHERE is_active = 1`)
	if err != nil {
		return nil, err
	}

	closed := make([]core.Match, 0, len(active))
	for _, prev := range active {
		ended, err := closeMatch(ctx, tx, prev, m.CreatedAt, settle)
		if err != nil {
			return nil, err
		}
		closed = append(closed, ended)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO matches (`+matchColumns+`)
		VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		m.ID, m.Name, m.Date.Format(dateLayout), m.CarryOver.Cents, m.TotalCollected.Cents,
		m.TotalExpenses.Cents, m.FinalBalance.Cents, formatTime(m.CreatedAt), m.CreatedByEmail, m.CreatedByName)
	if err != nil {
		return nil, core.NewStorageError("insert match", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, core.NewStorageError("commit create match", err)
	}

	slog.InfoContext(ctx, "Match saved to SQLite",
		"id", m.ID,
		"name", m.Name,
		"carry_over_cents", m.CarryOver.Cents,
		"closed_matches", len(closed))

	return closed, nil
}

func (r *SQLiteRepository) GetMatch(ctx context.Context, id string) (core.Match, error) {
	return getMatch(ctx, r.db, id)
}

func (r *SQLiteRepository) GetActiveMatch(ctx context.Context) (core.Match, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches
		WHERE is_active = 1 ORDER BY created_at DESC LIMIT 1`)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Match{}, fmt.Errorf("active match: %w", core.ErrNotFound)
	}
	if err != nil {
		return core.Match{}, core.NewStorageError("get active match", err)
	}
	return m, nil
}

func (r *SQLiteRepository) ListMatches(ctx context.Context) ([]core.Match, error) {
	return queryMatches(ctx, r.db, `SELECT `+matchColumns+` FROM matches
		ORDER BY match_date DESC, created_at DESC`)
}

func (r *SQLiteRepository) EndMatch(ctx context.Context, id string, endedAt time.Time, settle SettleFunc) (core.Match, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Match{}, core.NewStorageError("begin end match", err)
	}
	defer tx.Rollback()

	m, err := getMatch(ctx, tx, id)
	if err != nil {
		return core.Match{}, err
	}
	if m.Ended() {
		return core.Match{}, fmt.Errorf("match %s: %w", id, core.ErrMatchEnded)
	}

	ended, err := closeMatch(ctx, tx, m, endedAt, settle)
	if err != nil {
		return core.Match{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.Match{}, core.NewStorageError("commit end match", err)
	}

	slog.InfoContext(ctx, "Match ended in SQLite",
		"id", ended.ID,
		"total_collected_cents", ended.TotalCollected.Cents,
		"total_expenses_cents", ended.TotalExpenses.Cents,
		"final_balance_cents", ended.FinalBalance.Cents)

	return ended, nil
}

func (r *SQLiteRepository) LastEndedMatch(ctx context.Context) (core.Match, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches
		WHERE is_active = 0 AND ended_at IS NOT NULL ORDER BY ended_at DESC LIMIT 1`)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Match{}, fmt.Errorf("last ended match: %w", core.ErrNotFound)
	}
	if err != nil {
		return core.Match{}, core.NewStorageError("get last ended match", err)
	}
	return m, nil
}

// closeMatch freezes the settled totals of m, marks it inactive and enqueues
// its export. It must run inside a transaction.
func closeMatch(ctx context.Context, q queryer, m core.Match, endedAt time.Time, settle SettleFunc) (core.Match, error) {
	participants, err := listParticipants(ctx, q, m.ID)
	if err != nil {
		return core.Match{}, err
	}
	expenses, err := listExpenses(ctx, q, m.ID)
	if err != nil {
		return core.Match{}, err
	}
	totals := settle(m, participants, expenses)

	_, err = q.ExecContext(ctx, `UPDATE matches
		SET is_active = 0, ended_at = ?, total_collected_cents = ?, total_expenses_cents = ?, final_balance_cents = ?
		WHERE id = ?`,
		formatTime(endedAt), totals.TotalCollected.Cents, totals.TotalExpenses.Cents, totals.FinalBalance.Cents, m.ID)
	if err != nil {
		return core.Match{}, core.NewStorageError("close match", err)
	}

	if err := enqueueExport(ctx, q, m.ID, endedAt); err != nil {
		return core.Match{}, err
	}

	at := endedAt.UTC()
	m.Active = false
	m.EndedAt = &at
	m.TotalCollected = totals.TotalCollected
	m.TotalExpenses = totals.TotalExpenses
	m.FinalBalance = totals.FinalBalance
	return m, nil
}

func getMatch(ctx context.Context, q queryer, id string) (core.Match, error) {
	row := q.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = ?`, id)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Match{}, fmt.Errorf("match %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Match{}, core.NewStorageError("get match", err)
	}
	return m, nil
}

// requireActiveMatch fails with ErrNotFound or ErrMatchEnded.
func requireActiveMatch(ctx context.Context, q queryer, id string) error {
	m, err := getMatch(ctx, q, id)
	if err != nil {
		return err
	}
	if m.Ended() {
		return fmt.Errorf("match %s: %w", id, core.ErrMatchEnded)
	}
	return nil
}

func queryMatches(ctx context.Context, q queryer, query string, args ...any) ([]core.Match, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.NewStorageError("query matches", err)
	}
	defer rows.Close()

	matches := []core.Match{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, core.NewStorageError("scan match", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("iterate matches", err)
	}
	return matches, nil
}

func scanMatch(s scanner) (core.Match, error) {
	var (
		m         core.Match
		matchDate string
		active    int64
		createdAt string
		endedAt   sql.NullString
	)
	err := s.Scan(&m.ID, &m.Name, &matchDate, &active, &m.CarryOver.Cents, &m.TotalCollected.Cents,
		&m.TotalExpenses.Cents, &m.FinalBalance.Cents, &createdAt, &endedAt, &m.CreatedByEmail, &m.CreatedByName)
	if err != nil {
		return core.Match{}, err
	}
	m.Active = active == 1
	if m.Date, err = parseDate(matchDate); err != nil {
		return core.Match{}, err
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Match{}, err
	}
	if m.EndedAt, err = parseNullTime(endedAt); err != nil {
		return core.Match{}, err
	}
	return m, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseDate(s string) (core.Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return core.Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return core.Date{Time: t}, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
