package repo

import (
	"context"
	"database/sql"
	"strings"

	"shiftledger/internal/domain"
)

const completionColumns = `id,task_id,resident_id,staff_id,completed_at,occurred_on,notes,skipped,skip_reason,removed`

func (r Repo) InsertCompletion(ctx context.Context, tx *sql.Tx, c domain.CompletionEvent) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO completions(`+completionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.TaskID, c.ResidentID, c.StaffID, c.CompletedAt, c.OccurredOn,
		nullable(c.Notes), c.Skipped, nullable(c.SkipReason), c.Removed)
	return err
}

func scanCompletion(scan func(dest ...any) error) (domain.CompletionEvent, error) {
	var c domain.CompletionEvent
	var notes, skipReason sql.NullString
	err := scan(&c.ID, &c.TaskID, &c.ResidentID, &c.StaffID, &c.CompletedAt, &c.OccurredOn,
		&notes, &c.Skipped, &skipReason, &c.Removed)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if notes.Valid {
		c.Notes = notes.String
	}
	if skipReason.Valid {
		c.SkipReason = skipReason.String
	}
	return c, nil
}

func (r Repo) GetCompletion(ctx context.Context, id string) (domain.CompletionEvent, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+completionColumns+` FROM completions WHERE id=?`, id)
	return scanCompletion(row.Scan)
}

func (r Repo) GetCompletionTx(ctx context.Context, tx *sql.Tx, id string) (domain.CompletionEvent, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+completionColumns+` FROM completions WHERE id=?`, id)
	return scanCompletion(row.Scan)
}

func (r Repo) UpdateCompletion(ctx context.Context, tx *sql.Tx, c domain.CompletionEvent) error {
	res, err := tx.ExecContext(ctx, `UPDATE completions SET notes=?, skipped=?, skip_reason=? WHERE id=?`,
		nullable(c.Notes), c.Skipped, nullable(c.SkipReason), c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCompletionRemoved soft-removes a completion and reports whether a
// live row was actually flipped.
func (r Repo) MarkCompletionRemoved(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE completions SET removed=1 WHERE id=? AND removed=0`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

type CompletionFilters struct {
	ResidentID     string
	Day            string
	TaskID         string
	IncludeRemoved bool
}

func (r Repo) ListCompletions(ctx context.Context, f CompletionFilters) ([]domain.CompletionEvent, error) {
	var clauses []string
	var args []any
	if f.ResidentID != "" {
		clauses = append(clauses, "resident_id=?")
		args = append(args, f.ResidentID)
	}
	if f.Day != "" {
		clauses = append(clauses, "occurred_on=?")
		args = append(args, f.Day)
	}
	if f.TaskID != "" {
		clauses = append(clauses, "task_id=?")
		args = append(args, f.TaskID)
	}
	if !f.IncludeRemoved {
		clauses = append(clauses, "removed=0")
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + completionColumns + ` FROM completions ` + where + ` ORDER BY completed_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CompletionEvent
	for rows.Next() {
		c, err := scanCompletion(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
