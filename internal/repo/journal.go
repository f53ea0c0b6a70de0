package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"shiftledger/internal/domain"
)

const journalColumns = `id,resident_id,staff_id,shift,content,is_handover,priority,tags_json,audio_url,created_at,updated_at,entry_on`

func (r Repo) InsertEntry(ctx context.Context, tx *sql.Tx, e domain.JournalEntry) error {
	tags, err := json.Marshal(nonNilTags(e.Tags))
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO journal_entries(`+journalColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, nullableStringPtr(e.ResidentID), e.StaffID, e.Shift, e.Content, e.IsHandover,
		string(e.Priority), string(tags), nullableStringPtr(e.AudioURL), e.CreatedAt, e.UpdatedAt, e.EntryOn)
	return err
}

func (r Repo) UpdateEntry(ctx context.Context, tx *sql.Tx, e domain.JournalEntry) error {
	tags, err := json.Marshal(nonNilTags(e.Tags))
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE journal_entries SET content=?, is_handover=?, priority=?, tags_json=?, audio_url=?, updated_at=? WHERE id=?`,
		e.Content, e.IsHandover, string(e.Priority), string(tags), nullableStringPtr(e.AudioURL), e.UpdatedAt, e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteEntry reports whether a row was deleted; missing ids are not an
// error so callers can stay idempotent.
func (r Repo) DeleteEntry(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM journal_entries WHERE id=?`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func scanEntry(scan func(dest ...any) error) (domain.JournalEntry, error) {
	var e domain.JournalEntry
	var residentID, audioURL, tagsJSON sql.NullString
	var priority string
	err := scan(&e.ID, &residentID, &e.StaffID, &e.Shift, &e.Content, &e.IsHandover,
		&priority, &tagsJSON, &audioURL, &e.CreatedAt, &e.UpdatedAt, &e.EntryOn)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	e.Priority = domain.Priority(priority)
	if residentID.Valid {
		e.ResidentID = &residentID.String
	}
	if audioURL.Valid {
		e.AudioURL = &audioURL.String
	}
	e.Tags = []string{}
	if tagsJSON.Valid && tagsJSON.String != "" {
		_ = json.Unmarshal([]byte(tagsJSON.String), &e.Tags)
	}
	return e, nil
}

func (r Repo) GetEntry(ctx context.Context, id string) (domain.JournalEntry, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+journalColumns+` FROM journal_entries WHERE id=?`, id)
	return scanEntry(row.Scan)
}

func (r Repo) GetEntryTx(ctx context.Context, tx *sql.Tx, id string) (domain.JournalEntry, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+journalColumns+` FROM journal_entries WHERE id=?`, id)
	return scanEntry(row.Scan)
}

type EntryFilters struct {
	ResidentID   string
	Shift        string
	Day          string
	HandoverOnly bool
	Limit        int
}

// ListEntries filters on each supplied criterion and returns entries
// newest-first.
func (r Repo) ListEntries(ctx context.Context, f EntryFilters) ([]domain.JournalEntry, error) {
	var clauses []string
	var args []any
	if f.ResidentID != "" {
		clauses = append(clauses, "resident_id=?")
		args = append(args, f.ResidentID)
	}
	if f.Shift != "" {
		clauses = append(clauses, "shift=?")
		args = append(args, f.Shift)
	}
	if f.Day != "" {
		clauses = append(clauses, "entry_on=?")
		args = append(args, f.Day)
	}
	if f.HandoverOnly {
		clauses = append(clauses, "is_handover=1")
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + journalColumns + ` FROM journal_entries ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
