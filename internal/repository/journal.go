package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/docflow/internal/entity"
)

// EditJournal stores pending edits per session until the server confirms them.
type EditJournal interface {
	Record(ctx context.Context, edit entity.PendingEdit) error
	Confirm(ctx context.Context, sessionID, fileKey, field string, cutoff time.Time) error
	Discard(ctx context.Context, sessionID, fileKey string) error
	Pending(ctx context.Context, sessionID string) ([]entity.PendingEdit, error)
	Purge(ctx context.Context, sessionID string) (int64, error)
}

type editJournal struct {
	db     *DB
	logger *slog.Logger
	now    func() time.Time
}

func NewEditJournal(db *DB, logger *slog.Logger) EditJournal {
	if logger == nil {
		logger = slog.Default()
	}
	return &editJournal{db: db, logger: logger, now: time.Now}
}

func (j *editJournal) Record(ctx context.Context, edit entity.PendingEdit) error {
	value, err := json.Marshal(edit.Value)
	if err != nil {
		return fmt.Errorf("encode edit value: %w", err)
	}
	at := edit.RecordedAt
	if at.IsZero() {
		at = j.now()
	}
	_, err = j.db.SQL.ExecContext(ctx, j.db.rebind(
		`INSERT INTO pending_edits (session_id, file_key, field, value, recorded_at) VALUES (?, ?, ?, ?, ?)`),
		edit.SessionID, edit.FileKey, edit.Field, string(value), at.UnixNano())
	if err != nil {
		j.logger.Error("failed to record pending edit", "session_id", edit.SessionID, "file_key", edit.FileKey, "field", edit.Field, "error", err)
		return err
	}
	return nil
}

// Confirm closes the open entries for the cell recorded at or before cutoff.
// Entries recorded later hold a newer value and stay open.
func (j *editJournal) Confirm(ctx context.Context, sessionID, fileKey, field string, cutoff time.Time) error {
	_, err := j.db.SQL.ExecContext(ctx, j.db.rebind(
		`UPDATE pending_edits SET confirmed_at = ? WHERE session_id = ? AND file_key = ? AND field = ? AND recorded_at <= ? AND confirmed_at IS NULL`),
		j.now().UnixNano(), sessionID, fileKey, field, cutoff.UnixNano())
	if err != nil {
		j.logger.Error("failed to confirm pending edit", "session_id", sessionID, "file_key", fileKey, "field", field, "error", err)
		return err
	}
	return nil
}

// Discard closes every open entry for a row.
func (j *editJournal) Discard(ctx context.Context, sessionID, fileKey string) error {
	_, err := j.db.SQL.ExecContext(ctx, j.db.rebind(
		`UPDATE pending_edits SET confirmed_at = ? WHERE session_id = ? AND file_key = ? AND confirmed_at IS NULL`),
		j.now().UnixNano(), sessionID, fileKey)
	if err != nil {
		j.logger.Error("failed to discard pending edits", "session_id", sessionID, "file_key", fileKey, "error", err)
		return err
	}
	return nil
}

// Pending returns the newest open value per cell, oldest cell first.
func (j *editJournal) Pending(ctx context.Context, sessionID string) ([]entity.PendingEdit, error) {
	rows, err := j.db.SQL.QueryContext(ctx, j.db.rebind(
		`SELECT file_key, field, value, recorded_at FROM pending_edits WHERE session_id = ? AND confirmed_at IS NULL ORDER BY id`),
		sessionID)
	if err != nil {
		j.logger.Error("failed to list pending edits", "session_id", sessionID, "error", err)
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	index := map[string]int{}
	var out []entity.PendingEdit
	for rows.Next() {
		var (
			e     entity.PendingEdit
			raw   string
			nanos int64
		)
		if err := rows.Scan(&e.FileKey, &e.Field, &raw, &nanos); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &e.Value); err != nil {
			return nil, fmt.Errorf("decode edit value for %s/%s: %w", e.FileKey, e.Field, err)
		}
		e.SessionID = sessionID
		e.RecordedAt = time.Unix(0, nanos).UTC()

		key := e.FileKey + "\x00" + e.Field
		if i, ok := index[key]; ok {
			out[i] = e
			continue
		}
		index[key] = len(out)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Purge deletes every entry of a session.
func (j *editJournal) Purge(ctx context.Context, sessionID string) (int64, error) {
	res, err := j.db.SQL.ExecContext(ctx, j.db.rebind(`DELETE FROM pending_edits WHERE session_id = ?`), sessionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
