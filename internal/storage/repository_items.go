package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"matchfund/internal/core"
)

const participantColumns = `id, match_id, name, amount_cents, paid, date_added, payment_date, last_updated`

const expenseColumns = `id, match_id, category, description, amount_cents, expense_date, date_added`

func (r *SQLiteRepository) InsertParticipant(ctx context.Context, p core.Participant) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewStorageError("begin insert participant", err)
	}
	defer tx.Rollback()

	if err := requireActiveMatch(ctx, tx, p.MatchID); err != nil {
		return err
	}

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM participants WHERE match_id = ? AND name_key = ?`,
		p.MatchID, core.NameKey(p.Name)).Scan(&exists)
	if err != nil {
		return core.NewStorageError("check participant name", err)
	}
	if exists > 0 {
		return fmt.Errorf("participant %q: %w", p.Name, core.ErrDuplicateParticipant)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO participants
		(id, match_id, name, name_key, amount_cents, paid, date_added, payment_date, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.MatchID, p.Name, core.NameKey(p.Name), p.Amount.Cents, boolToInt(p.Paid),
		formatTime(p.DateAdded), formatNullTime(p.PaymentDate), formatTime(p.LastUpdated))
	if isUniqueViolation(err) {
		return fmt.Errorf("participant %q: %w", p.Name, core.ErrDuplicateParticipant)
	}
	if err != nil {
		return core.NewStorageError("insert participant", err)
	}

	if err := tx.Commit(); err != nil {
		return core.NewStorageError("commit insert participant", err)
	}

	slog.InfoContext(ctx, "Participant saved to SQLite",
		"id", p.ID,
		"match_id", p.MatchID,
		"amount_cents", p.Amount.Cents)
	return nil
}

func (r *SQLiteRepository) GetParticipant(ctx context.Context, id string) (core.Participant, error) {
	return getParticipant(ctx, r.db, id)
}

func (r *SQLiteRepository) ListParticipants(ctx context.Context, matchID string) ([]core.Participant, error) {
	return listParticipants(ctx, r.db, matchID)
}

func (r *SQLiteRepository) SetParticipantPaid(ctx context.Context, id string, paid bool, at time.Time) (core.Participant, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Participant{}, core.NewStorageError("begin update participant", err)
	}
	defer tx.Rollback()

	p, err := getParticipant(ctx, tx, id)
	if err != nil {
		return core.Participant{}, err
	}
	if err := requireActiveMatch(ctx, tx, p.MatchID); err != nil {
		return core.Participant{}, err
	}

	at = at.UTC()
	switch {
	case paid && !p.Paid:
		p.PaymentDate = &at
	case !paid:
		p.PaymentDate = nil
	}
	p.Paid = paid
	p.LastUpdated = at

	_, err = tx.ExecContext(ctx, `UPDATE participants SET paid = ?, payment_date = ?, last_updated = ? WHERE id = ?`,
		boolToInt(p.Paid), formatNullTime(p.PaymentDate), formatTime(p.LastUpdated), p.ID)
	if err != nil {
		return core.Participant{}, core.NewStorageError("update participant", err)
	}

	if err := tx.Commit(); err != nil {
		return core.Participant{}, core.NewStorageError("commit update participant", err)
	}
	return p, nil
}

func (r *SQLiteRepository) DeleteParticipant(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewStorageError("begin delete participant", err)
	}
	defer tx.Rollback()

	p, err := getParticipant(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := requireActiveMatch(ctx, tx, p.MatchID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM participants WHERE id = ?`, id)
	if err != nil {
		return core.NewStorageError("delete participant", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("participant %s: %w", id, core.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return core.NewStorageError("commit delete participant", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkAllParticipants(ctx context.Context, matchID string, paid bool, at time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, core.NewStorageError("begin mark participants", err)
	}
	defer tx.Rollback()

	if err := requireActiveMatch(ctx, tx, matchID); err != nil {
		return 0, err
	}

	ts := formatTime(at)
	var res sql.Result
	if paid {
		res, err = tx.ExecContext(ctx, `UPDATE participants
			SET paid = 1, payment_date = ?, last_updated = ?
			WHERE match_id = ?`, ts, ts, matchID)
	} else {
		res, err = tx.ExecContext(ctx, `UPDATE participants
			SET paid = 0, payment_date = NULL, last_updated = ?
			WHERE match_id = ?`, ts, matchID)
	}
	if err != nil {
		return 0, core.NewStorageError("mark participants", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, core.NewStorageError("mark participants", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, core.NewStorageError("commit mark participants", err)
	}
	return n, nil
}

func (r *SQLiteRepository) InsertExpense(ctx context.Context, e core.Expense) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewStorageError("begin insert expense", err)
	}
	defer tx.Rollback()

	if err := requireActiveMatch(ctx, tx, e.MatchID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.MatchID, e.Category, e.Description, e.Amount.Cents,
		e.ExpenseDate.Format(dateLayout), formatTime(e.DateAdded))
	if err != nil {
		return core.NewStorageError("insert expense", err)
	}

	if err := tx.Commit(); err != nil {
		return core.NewStorageError("commit insert expense", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"match_id", e.MatchID,
		"category", e.Category,
		"amount_cents", e.Amount.Cents)
	return nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, matchID string) ([]core.Expense, error) {
	return listExpenses(ctx, r.db, matchID)
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewStorageError("begin delete expense", err)
	}
	defer tx.Rollback()

	e, err := getExpense(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := requireActiveMatch(ctx, tx, e.MatchID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return core.NewStorageError("delete expense", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return core.NewStorageError("commit delete expense", err)
	}
	return nil
}

func getParticipant(ctx context.Context, q queryer, id string) (core.Participant, error) {
	row := q.QueryRowContext(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = ?`, id)
	p, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Participant{}, fmt.Errorf("participant %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Participant{}, core.NewStorageError("get participant", err)
	}
	return p, nil
}

func listParticipants(ctx context.Context, q queryer, matchID string) ([]core.Participant, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+participantColumns+` FROM participants
		WHERE match_id = ? ORDER BY date_added ASC, rowid ASC`, matchID)
	if err != nil {
		return nil, core.NewStorageError("list participants", err)
	}
	defer rows.Close()

	participants := []core.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, core.NewStorageError("scan participant", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("iterate participants", err)
	}
	return participants, nil
}

func scanParticipant(s scanner) (core.Participant, error) {
	var (
		p           core.Participant
		paid        int64
		dateAdded   string
		paymentDate sql.NullString
		lastUpdated string
	)
	err := s.Scan(&p.ID, &p.MatchID, &p.Name, &p.Amount.Cents, &paid, &dateAdded, &paymentDate, &lastUpdated)
	if err != nil {
		return core.Participant{}, err
	}
	p.Paid = paid == 1
	if p.DateAdded, err = parseTime(dateAdded); err != nil {
		return core.Participant{}, err
	}
	if p.PaymentDate, err = parseNullTime(paymentDate); err != nil {
		return core.Participant{}, err
	}
	if p.LastUpdated, err = parseTime(lastUpdated); err != nil {
		return core.Participant{}, err
	}
	return p, nil
}

func getExpense(ctx context.Context, q queryer, id string) (core.Expense, error) {
	row := q.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, core.NewStorageError("get expense", err)
	}
	return e, nil
}

func listExpenses(ctx context.Context, q queryer, matchID string) ([]core.Expense, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+expenseColumns+` FROM expenses
		WHERE match_id = ? ORDER BY expense_date DESC, date_added DESC, rowid DESC`, matchID)
	if err != nil {
		return nil, core.NewStorageError("list expenses", err)
	}
	defer rows.Close()

	expenses := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, core.NewStorageError("scan expense", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("iterate expenses", err)
	}
	return expenses, nil
}

func scanExpense(s scanner) (core.Expense, error) {
	var (
		e           core.Expense
		expenseDate string
		dateAdded   string
	)
	err := s.Scan(&e.ID, &e.MatchID, &e.Category, &e.Description, &e.Amount.Cents, &expenseDate, &dateAdded)
	if err != nil {
		return core.Expense{}, err
	}
	if e.ExpenseDate, err = parseDate(expenseDate); err != nil {
		return core.Expense{}, err
	}
	if e.DateAdded, err = parseTime(dateAdded); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}
