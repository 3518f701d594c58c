package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/roach88/rollcall/internal/engine"
	"github.com/roach88/rollcall/internal/roster"
)

// SessionSummary is a session with its journal row counts.
type SessionSummary struct {
	Session
	Draws  int `json:"draws"`
	Resets int `json:"resets"`
}

// Sessions lists every session, newest first.
// Returns an empty slice (not nil) if the journal is empty.
func (s *Store) Sessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.started_at, s.policy, s.seed, s.roster_size, s.roster_hash,
		       (SELECT COUNT(*) FROM draws d WHERE d.session_id = s.id),
		       (SELECT COUNT(*) FROM resets r WHERE r.session_id = s.id)
		FROM sessions s
		ORDER BY s.started_at DESC, s.id COLLATE BINARY DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := []SessionSummary{}
	for rows.Next() {
		var sum SessionSummary
		if err := scanSession(rows, &sum.Session, &sum.Draws, &sum.Resets); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// LatestSession returns the most recently started session.
// Returns ErrSessionNotFound if the journal is empty.
func (s *Store) LatestSession(ctx context.Context) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, policy, seed, roster_size, roster_hash
		FROM sessions
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT 1
	`)
	var sess Session
	if err := scanSession(row, &sess); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, fmt.Errorf("latest session: %w", ErrSessionNotFound)
		}
		return Session{}, err
	}
	return sess, nil
}

// ReadSession returns a session and its roster in insertion order.
// Returns ErrSessionNotFound for an unknown ID.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, []roster.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, policy, seed, roster_size, roster_hash
		FROM sessions
		WHERE id = ?
	`, id)
	var sess Session
	if err := scanSession(row, &sess); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
		}
		return Session{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, name, avatar_ref, rarity
		FROM roster_entries
		WHERE session_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return Session{}, nil, fmt.Errorf("query roster: %w", err)
	}
	defer rows.Close()

	records := []roster.Record{}
	for rows.Next() {
		var rec roster.Record
		var rarity string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.AvatarRef, &rarity); err != nil {
			return Session{}, nil, fmt.Errorf("scan roster entry: %w", err)
		}
		rec.Rarity = roster.Rarity(rarity)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return Session{}, nil, fmt.Errorf("iterate roster: %w", err)
	}
	return sess, records, nil
}

// ReadDraws returns up to limit draw records of a session, most recent
// first. A non-positive limit returns all of them.
func (s *Store) ReadDraws(ctx context.Context, sessionID string, limit int) ([]engine.DrawRecord, error) {
	query := `
		SELECT id, seq, entity_id, entity_name, rarity, policy, remaining, drawn_at
		FROM draws
		WHERE session_id = ?
		ORDER BY seq DESC, id COLLATE BINARY ASC
	`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryDraws(ctx, query, args...)
}

// readDrawsAscending returns a session's draws in seq order.
func (s *Store) readDrawsAscending(ctx context.Context, sessionID string) ([]engine.DrawRecord, error) {
	return s.queryDraws(ctx, `
		SELECT id, seq, entity_id, entity_name, rarity, policy, remaining, drawn_at
		FROM draws
		WHERE session_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, sessionID)
}

func (s *Store) queryDraws(ctx context.Context, query string, args ...any) ([]engine.DrawRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query draws: %w", err)
	}
	defer rows.Close()

	out := []engine.DrawRecord{}
	for rows.Next() {
		var (
			rec            engine.DrawRecord
			rarity, policy string
			drawnAt        string
		)
		if err := rows.Scan(&rec.ID, &rec.Seq, &rec.EntityID, &rec.EntityName, &rarity, &policy, &rec.RemainingCountAfter, &drawnAt); err != nil {
			return nil, fmt.Errorf("scan draw: %w", err)
		}
		rec.Rarity = roster.Rarity(rarity)
		rec.Policy = engine.PolicyKind(policy)
		if rec.Timestamp, err = parseTime(drawnAt); err != nil {
			return nil, fmt.Errorf("draw %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate draws: %w", err)
	}
	return out, nil
}

// readResets returns a session's resets in seq order.
func (s *Store) readResets(ctx context.Context, sessionID string) ([]engine.ResetComplete, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, total
		FROM resets
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query resets: %w", err)
	}
	defer rows.Close()

	var out []engine.ResetComplete
	for rows.Next() {
		var r engine.ResetComplete
		if err := rows.Scan(&r.Seq, &r.TotalCount); err != nil {
			return nil, fmt.Errorf("scan reset: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resets: %w", err)
	}
	return out, nil
}

// readRosterEdits returns a session's roster edits in seq order.
func (s *Store) readRosterEdits(ctx context.Context, sessionID string) ([]RosterEdit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, op, entity_id, name, avatar_ref, rarity, edited_at
		FROM roster_edits
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query roster edits: %w", err)
	}
	defer rows.Close()

	var out []RosterEdit
	for rows.Next() {
		var (
			edit           RosterEdit
			op, rarity, at string
		)
		if err := rows.Scan(&edit.Seq, &op, &edit.Record.ID, &edit.Record.Name, &edit.Record.AvatarRef, &rarity, &at); err != nil {
			return nil, fmt.Errorf("scan roster edit: %w", err)
		}
		edit.Op = engine.EditOp(op)
		edit.Record.Rarity = roster.Rarity(rarity)
		if edit.At, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("roster edit seq=%d: %w", edit.Seq, err)
		}
		out = append(out, edit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster edits: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanSession scans the session columns followed by any extra columns.
func scanSession(sc scanner, sess *Session, extra ...any) error {
	var (
		startedAt string
		seed      sql.NullString
	)
	dest := append([]any{&sess.ID, &startedAt, &sess.Policy, &seed, &sess.RosterSize, &sess.RosterHash}, extra...)
	if err := sc.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("scan session: %w", err)
	}

	t, err := parseTime(startedAt)
	if err != nil {
		return fmt.Errorf("session %s: %w", sess.ID, err)
	}
	sess.StartedAt = t

	if seed.Valid {
		v, err := strconv.ParseUint(seed.String, 10, 64)
		if err != nil {
			return fmt.Errorf("session %s: seed %q: %w", sess.ID, seed.String, err)
		}
		sess.Seed = &v
	}
	return nil
}
