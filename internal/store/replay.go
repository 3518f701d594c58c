package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/roach88/rollcall/internal/engine"
	"github.com/roach88/rollcall/internal/roster"
)

// Repeat is an entity journaled twice within one cycle.
type Repeat struct {
	Cycle    int   `json:"cycle"`
	EntityID int   `json:"entityId"`
	FirstSeq int64 `json:"firstSeq"`
	Seq      int64 `json:"seq"`
}

// ReplayResult is a session rebuilt from its journal.
type ReplayResult struct {
	Session Session `json:"session"`

	// Pool holds the roster with the current cycle's draws applied. Its
	// clock returns journaled timestamps during replay and wall time after.
	Pool *roster.Pool `json:"-"`

	// History is the current cycle's draws in seq order.
	History []engine.DrawRecord `json:"history"`

	LastSeq int64 `json:"lastSeq"`
	Cycles  int   `json:"cycles"`
	Draws   int   `json:"draws"`

	// Repeats lists draws that broke the no-repeat guarantee.
	Repeats []Repeat `json:"repeats"`

	// Unknown lists draws of entities absent from the roster at their seq.
	Unknown []engine.DrawRecord `json:"unknown"`

	// Edits counts journaled roster edits; BadEdits lists those that could
	// not be re-applied.
	Edits    int          `json:"edits"`
	BadEdits []RosterEdit `json:"badEdits"`

	// RosterAltered is set when the journaled roster no longer matches the
	// fingerprint taken when the session began.
	RosterAltered bool `json:"rosterAltered"`
}

// OK reports whether the journal is consistent.
func (r ReplayResult) OK() bool {
	return len(r.Repeats) == 0 && len(r.Unknown) == 0 && len(r.BadEdits) == 0 && !r.RosterAltered
}

// replayClock feeds journaled timestamps to the pool while replaying.
type replayClock struct {
	mu      sync.Mutex
	pending time.Time
}

func (c *replayClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending.IsZero() {
		return time.Now()
	}
	return c.pending
}

func (c *replayClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = t
}

// Replay rebuilds a session by re-importing its roster and re-applying
// draws, resets and roster edits in seq order.
//
// Replay never fails on journal inconsistencies; they are reported in the
// result. opts are applied to the rebuilt pool (e.g. roster.WithRarities);
// its clock is always the replay clock.
func (s *Store) Replay(ctx context.Context, sessionID string, opts ...roster.Option) (ReplayResult, error) {
	sess, records, err := s.ReadSession(ctx, sessionID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}
	draws, err := s.readDrawsAscending(ctx, sessionID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}
	resets, err := s.readResets(ctx, sessionID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}
	edits, err := s.readRosterEdits(ctx, sessionID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}

	clock := &replayClock{}
	pool := roster.NewPool(append(slices.Clip(opts), roster.WithClock(clock.Now))...)
	if err := pool.Import(records); err != nil {
		return ReplayResult{}, fmt.Errorf("replay: journaled roster: %w", err)
	}

	res := ReplayResult{
		Session:  sess,
		Pool:     pool,
		History:  []engine.DrawRecord{},
		Cycles:   1,
		Draws:    len(draws),
		Repeats:  []Repeat{},
		Unknown:  []engine.DrawRecord{},
		Edits:    len(edits),
		BadEdits: []RosterEdit{},
	}
	if sess.RosterHash != "" {
		hash, err := roster.Fingerprint(records)
		if err != nil {
			return ReplayResult{}, fmt.Errorf("replay: %w", err)
		}
		res.RosterAltered = hash != sess.RosterHash
	}
	detector := engine.NewRepeatDetector()
	cycle := 0

	// Draws, resets and edits share one seq space; apply them in seq order.
	const none = math.MaxInt64
	i, j, k := 0, 0, 0
	for {
		drawSeq, resetSeq, editSeq := int64(none), int64(none), int64(none)
		if i < len(draws) {
			drawSeq = draws[i].Seq
		}
		if j < len(resets) {
			resetSeq = resets[j].Seq
		}
		if k < len(edits) {
			editSeq = edits[k].Seq
		}

		switch {
		case drawSeq == none && resetSeq == none && editSeq == none:
			clock.set(time.Time{})
			return res, nil

		case resetSeq <= drawSeq && resetSeq <= editSeq:
			pool.ResetAll()
			res.History = res.History[:0]
			res.LastSeq = max(res.LastSeq, resetSeq)
			detector.Clear(cycle)
			cycle++
			res.Cycles++
			j++

		case editSeq <= drawSeq:
			edit := edits[k]
			k++
			res.LastSeq = max(res.LastSeq, edit.Seq)
			if !applyEdit(pool, edit) {
				res.BadEdits = append(res.BadEdits, edit)
			}

		default:
			rec := draws[i]
			i++
			res.LastSeq = max(res.LastSeq, rec.Seq)

			if !detector.Record(cycle, rec.EntityID, rec.Seq) {
				first, _ := detector.Seen(cycle, rec.EntityID)
				res.Repeats = append(res.Repeats, Repeat{Cycle: cycle, EntityID: rec.EntityID, FirstSeq: first, Seq: rec.Seq})
				continue
			}

			clock.set(rec.Timestamp)
			if _, err := pool.MarkDrawn(rec.EntityID); err != nil {
				if errors.Is(err, roster.ErrNotFound) {
					res.Unknown = append(res.Unknown, rec)
					continue
				}
				return ReplayResult{}, fmt.Errorf("replay seq=%d: %w", rec.Seq, err)
			}
			res.History = append(res.History, rec)
		}
	}
}

// applyEdit re-applies a journaled edit. It reports false for an edit the
// rebuilt pool cannot accept: a duplicate add, or a removal of an entity
// that is not there.
func applyEdit(pool *roster.Pool, edit RosterEdit) bool {
	switch edit.Op {
	case engine.EditAdd:
		_, err := pool.Add(edit.Record)
		return err == nil
	case engine.EditRemove:
		return pool.Remove(edit.Record.ID)
	default:
		return false
	}
}
