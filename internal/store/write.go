package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/roach88/rollcall/internal/engine"
	"github.com/roach88/rollcall/internal/roster"
)

// Session describes one journaled engine run.
type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"startedAt"`

	// Policy is the policy active at session start, in Policy.String form.
	Policy string `json:"policy"`

	// Seed is the selection seed, or nil for an unseeded run.
	Seed *uint64 `json:"seed,omitempty"`

	RosterSize int `json:"rosterSize"`

	// RosterHash is roster.Fingerprint of the journaled roster.
	RosterHash string `json:"rosterHash,omitempty"`
}

// RosterEdit is a journaled Add or Remove. Record is the added entity, or
// the removed one as it was at removal.
type RosterEdit struct {
	Seq    int64         `json:"seq"`
	Op     engine.EditOp `json:"op"`
	Record roster.Record `json:"record"`
	At     time.Time     `json:"at"`
}

// BeginSession records a new session together with its roster.
// RosterSize and RosterHash are taken from records.
func (s *Store) BeginSession(ctx context.Context, sess Session, records []roster.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	hash, err := roster.Fingerprint(records)
	if err != nil {
		return fmt.Errorf("begin session %s: %w", sess.ID, err)
	}

	var seed sql.NullString
	if sess.Seed != nil {
		seed = sql.NullString{String: strconv.FormatUint(*sess.Seed, 10), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at, policy, seed, roster_size, roster_hash)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sess.ID, formatTime(sess.StartedAt), sess.Policy, seed, len(records), hash)
	if err != nil {
		return fmt.Errorf("begin session %s: %w", sess.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO roster_entries (session_id, position, entity_id, name, avatar_ref, rarity)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("begin session: prepare roster insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		if _, err := stmt.ExecContext(ctx, sess.ID, i, rec.ID, rec.Name, rec.AvatarRef, string(rec.Rarity)); err != nil {
			return fmt.Errorf("begin session: roster entry %d: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("begin session: commit: %w", err)
	}
	return nil
}

// WriteDraw appends a draw record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) WriteDraw(ctx context.Context, sessionID string, rec engine.DrawRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO draws
		(id, session_id, seq, entity_id, entity_name, rarity, policy, remaining, drawn_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		sessionID,
		rec.Seq,
		rec.EntityID,
		rec.EntityName,
		string(rec.Rarity),
		string(rec.Policy),
		rec.RemainingCountAfter,
		formatTime(rec.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("write draw %s: %w", rec.ID, err)
	}
	return nil
}

// WriteReset appends a reset marker.
// Uses ON CONFLICT DO NOTHING for idempotency on (session_id, seq).
func (s *Store) WriteReset(ctx context.Context, sessionID string, n engine.ResetComplete, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resets (session_id, seq, total, reset_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, sessionID, n.Seq, n.TotalCount, formatTime(at))
	if err != nil {
		return fmt.Errorf("write reset seq=%d: %w", n.Seq, err)
	}
	return nil
}

// WriteRosterEdit appends a roster edit.
// Uses ON CONFLICT DO NOTHING for idempotency on (session_id, seq).
func (s *Store) WriteRosterEdit(ctx context.Context, sessionID string, edit RosterEdit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roster_edits
		(session_id, seq, op, entity_id, name, avatar_ref, rarity, edited_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		sessionID,
		edit.Seq,
		string(edit.Op),
		edit.Record.ID,
		edit.Record.Name,
		edit.Record.AvatarRef,
		string(edit.Record.Rarity),
		formatTime(edit.At),
	)
	if err != nil {
		return fmt.Errorf("write roster edit seq=%d: %w", edit.Seq, err)
	}
	return nil
}

// Journal is an engine.Observer that persists draws, resets and roster
// edits for one session.
//
// Notifications carry no context, so writes use a background context.
// Write failures are logged and retained; Err reports them.
type Journal struct {
	store     *Store
	sessionID string
	now       func() time.Time
	logger    *slog.Logger

	mu   sync.Mutex
	errs []error
}

// JournalOption configures a Journal.
type JournalOption func(*Journal)

// WithJournalClock sets the time source for reset and edit timestamps.
func WithJournalClock(now func() time.Time) JournalOption {
	return func(j *Journal) {
		j.now = now
	}
}

// WithJournalLogger sets the logger. Default: slog.Default().
func WithJournalLogger(l *slog.Logger) JournalOption {
	return func(j *Journal) {
		j.logger = l
	}
}

// Journal returns an observer that appends to sessionID.
func (s *Store) Journal(sessionID string, opts ...JournalOption) *Journal {
	j := &Journal{
		store:     s,
		sessionID: sessionID,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

var _ engine.Observer = (*Journal)(nil)

func (j *Journal) DrawStarted(engine.DrawStart) {}

func (j *Journal) DrawCompleted(n engine.DrawComplete) {
	if err := j.store.WriteDraw(context.Background(), j.sessionID, n.Record); err != nil {
		j.record(err, "seq", n.Record.Seq, "entity", n.Record.EntityID)
	}
}

// DrawFailed is not journaled: a failed draw leaves no trace in the pool.
func (j *Journal) DrawFailed(n engine.DrawError) {
	j.logger.Debug("draw failure not journaled", "session", j.sessionID, "code", n.Code)
}

func (j *Journal) ResetCompleted(n engine.ResetComplete) {
	if err := j.store.WriteReset(context.Background(), j.sessionID, n, j.now()); err != nil {
		j.record(err, "seq", n.Seq)
	}
}

func (j *Journal) RosterChanged(n engine.RosterChange) {
	edit := RosterEdit{Seq: n.Seq, Op: n.Op, Record: n.Entity.Record(), At: j.now()}
	if err := j.store.WriteRosterEdit(context.Background(), j.sessionID, edit); err != nil {
		j.record(err, "seq", n.Seq, "op", n.Op, "entity", n.Entity.ID)
	}
}

func (j *Journal) record(err error, attrs ...any) {
	j.logger.Error("journal write failed",
		append([]any{"session", j.sessionID, "error", err}, attrs...)...)

	j.mu.Lock()
	defer j.mu.Unlock()
	j.errs = append(j.errs, err)
}

// Err returns every write failure so far, joined, or nil.
func (j *Journal) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return errors.Join(j.errs...)
}
