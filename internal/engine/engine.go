package engine

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/rollcall/internal/random"
	"github.com/roach88/rollcall/internal/roster"
)

// Gap runs between selection and commit. It receives the selected entity and
// returns an error to abort the draw, normally ctx.Err().
type Gap func(ctx context.Context, selected roster.Entity) error

// Delay returns a Gap that waits d or until ctx is done.
func Delay(d time.Duration) Gap {
	return func(ctx context.Context, _ roster.Entity) error {
		if d <= 0 {
			return ctx.Err()
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
}

// Engine allocates draws from a roster.Pool.
//
// Thread-safety model:
//   - Draw(): safe from any goroutine; overlapping calls fail with ErrBusy
//   - Reset(), SetPolicy(), queries: safe from any goroutine, including
//     while a draw waits in its Gap
//
// INVARIANTS:
//   - history holds exactly the commits of the current cycle, in commit order
//   - every history entity is drawn in the pool, and vice versa, unless the
//     pool was mutated directly
type Engine struct {
	pool   *roster.Pool
	clock  *Clock
	ids    DrawIDGenerator
	rng    random.Source
	gap    Gap
	logger *slog.Logger

	busy   atomic.Bool
	policy atomic.Pointer[Policy]

	// mu serializes commit+append against reset+clear.
	mu      sync.Mutex
	history []DrawRecord

	observers observers
}

// Option configures an Engine.
type Option func(*Engine)

// WithRandom sets the selection random source.
func WithRandom(src random.Source) Option {
	return func(e *Engine) {
		e.rng = src
	}
}

// WithGap installs a presentation gap between selection and commit.
func WithGap(g Gap) Option {
	return func(e *Engine) {
		e.gap = g
	}
}

// WithDelay is WithGap(Delay(d)). A non-positive d disables the gap.
func WithDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.gap = Delay(d)
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithIDGenerator sets the draw record ID generator. Default: UUIDv7.
func WithIDGenerator(g DrawIDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithClock sets the logical clock. Used to resume a journaled session.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithPolicy sets the initial policy. Default: uniform.
func WithPolicy(p Policy) Option {
	return func(e *Engine) {
		e.policy.Store(&p)
	}
}

// WithHistory seeds the current cycle's history, oldest first. Used to
// resume a journaled session; the records must match the pool's drawn set.
func WithHistory(records []DrawRecord) Option {
	return func(e *Engine) {
		e.history = slices.Clone(records)
	}
}

// New creates an engine over pool.
func New(pool *roster.Pool, opts ...Option) *Engine {
	e := &Engine{
		pool:   pool,
		clock:  NewClock(),
		ids:    UUIDv7Generator{},
		rng:    random.Default(),
		logger: slog.Default(),
	}
	p := DefaultPolicy()
	e.policy.Store(&p)

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Pool returns the underlying pool.
func (e *Engine) Pool() *roster.Pool {
	return e.pool
}

// Subscribe registers an observer and returns its unsubscribe function.
func (e *Engine) Subscribe(o Observer) func() {
	return e.observers.add(o)
}

// Busy reports whether a draw is in flight.
func (e *Engine) Busy() bool {
	return e.busy.Load()
}

// Policy returns the active policy.
func (e *Engine) Policy() Policy {
	return *e.policy.Load()
}

// SetPolicy validates and activates a policy. A draw already past selection
// keeps the policy it selected with.
func (e *Engine) SetPolicy(kind PolicyKind, weights Weights) error {
	p, err := NewPolicy(kind, weights, e.pool.Rarities())
	if err != nil {
		return err
	}
	e.policy.Store(&p)
	e.logger.Debug("policy changed", "policy", p.String())
	return nil
}

// Draw performs one draw.
//
// Errors are *DrawFailure values wrapping ErrBusy, ErrExhaustedPool,
// ErrCommitConflict or a cancellation cause. Every failure except ErrBusy is
// also delivered to observers as DrawError.
func (e *Engine) Draw(ctx context.Context) (DrawComplete, error) {
	if !e.busy.CompareAndSwap(false, true) {
		e.logger.Debug("draw rejected", "code", FailureBusy)
		return DrawComplete{}, newBusyFailure()
	}
	defer e.busy.Store(false)

	// A panic still owes observers a DrawFailed, unless the draw already
	// committed and only a notification panicked.
	var (
		selected  roster.Entity
		committed bool
	)
	defer func() {
		if v := recover(); v != nil {
			if !committed {
				e.fail(newPanicFailure(selected.ID, v))
			}
			panic(v)
		}
	}()

	snapshot, generation := e.pool.AvailableSnapshot()
	if len(snapshot) == 0 {
		return DrawComplete{}, e.fail(newExhaustedFailure())
	}

	e.observers.each(func(o Observer) {
		o.DrawStarted(DrawStart{AvailableCount: len(snapshot)})
	})

	policy := e.Policy()
	selected, _ = policy.Select(snapshot, e.rng)
	e.logger.Debug("entity selected",
		"entity", selected.ID,
		"policy", policy.Kind,
		"available", len(snapshot),
	)

	if err := e.wait(ctx, selected); err != nil {
		return DrawComplete{}, e.fail(newCancelledFailure(selected.ID, err))
	}

	rec, entity, err := e.commit(selected.ID, generation, policy.Kind)
	if err != nil {
		return DrawComplete{}, e.fail(newConflictFailure(selected.ID, err))
	}
	committed = true

	result := DrawComplete{Entity: entity, RemainingCount: rec.RemainingCountAfter, Record: rec}
	e.logger.Debug("draw committed", "seq", rec.Seq, "entity", entity.ID, "remaining", rec.RemainingCountAfter)
	e.observers.each(func(o Observer) {
		o.DrawCompleted(result)
	})
	return result, nil
}

// commit marks the selection drawn and appends its record.
func (e *Engine) commit(id int, generation uint64, kind PolicyKind) (DrawRecord, roster.Entity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entity, remaining, err := e.pool.CommitDraw(id, generation)
	if err != nil {
		return DrawRecord{}, roster.Entity{}, err
	}
	rec := DrawRecord{
		Seq:                 e.clock.Next(),
		ID:                  e.ids.Generate(),
		EntityID:            entity.ID,
		EntityName:          entity.Name,
		Rarity:              entity.Rarity,
		Timestamp:           entity.DrawnAt,
		Policy:              kind,
		RemainingCountAfter: remaining,
	}
	e.history = append(e.history, rec)
	return rec, entity, nil
}

func (e *Engine) wait(ctx context.Context, selected roster.Entity) error {
	if e.gap != nil {
		if err := e.gap(ctx, selected); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (e *Engine) fail(f *DrawFailure) *DrawFailure {
	e.logger.Debug("draw failed", "code", f.Code, "entity", f.EntityID, "error", f.Err)
	e.observers.each(func(o Observer) {
		o.DrawFailed(DrawError{Code: f.Code, Reason: f})
	})
	return f
}

// Reset returns every entity to undrawn and clears history.
// Allowed while a draw is in flight; that draw then fails at commit.
func (e *Engine) Reset() ResetComplete {
	e.mu.Lock()
	e.pool.ResetAll()
	e.history = nil
	n := ResetComplete{TotalCount: e.pool.Len(), Seq: e.clock.Next()}
	e.mu.Unlock()

	e.logger.Debug("pool reset", "seq", n.Seq, "total", n.TotalCount)
	e.notifyReset(n)
	return n
}

// Import replaces the roster and clears history. Observers see a
// ResetComplete. On error nothing changes and nothing is notified.
func (e *Engine) Import(records []roster.Record) error {
	e.mu.Lock()
	if err := e.pool.Import(records); err != nil {
		e.mu.Unlock()
		return err
	}
	e.history = nil
	n := ResetComplete{TotalCount: e.pool.Len(), Seq: e.clock.Next()}
	e.mu.Unlock()

	e.logger.Debug("roster imported", "seq", n.Seq, "total", n.TotalCount)
	e.notifyReset(n)
	return nil
}

// Export returns the roster in interchange shape.
func (e *Engine) Export() []roster.Record {
	return e.pool.Export()
}

func (e *Engine) notifyReset(n ResetComplete) {
	e.observers.each(func(o Observer) {
		o.ResetCompleted(n)
	})
}

// Add appends an entity to the roster and notifies RosterChange. A zero ID
// is replaced by the next unused ID. Adding never invalidates a draw in
// flight.
func (e *Engine) Add(rec roster.Record) (roster.Entity, error) {
	e.mu.Lock()
	ent, err := e.pool.Add(rec)
	if err != nil {
		e.mu.Unlock()
		return roster.Entity{}, err
	}
	n := RosterChange{
		Op:             EditAdd,
		Entity:         ent,
		Seq:            e.clock.Next(),
		TotalCount:     e.pool.Len(),
		AvailableCount: e.pool.AvailableCount(),
	}
	e.mu.Unlock()

	e.logger.Debug("entity added", "seq", n.Seq, "entity", ent.ID)
	e.notifyRoster(n)
	return ent, nil
}

// Remove deletes an entity and notifies RosterChange. Returns false, with
// no notification, if id is absent. A draw in flight fails at commit.
func (e *Engine) Remove(id int) bool {
	e.mu.Lock()
	ent, ok := e.pool.FindByID(id)
	if !ok || !e.pool.Remove(id) {
		e.mu.Unlock()
		return false
	}
	n := RosterChange{
		Op:             EditRemove,
		Entity:         ent,
		Seq:            e.clock.Next(),
		TotalCount:     e.pool.Len(),
		AvailableCount: e.pool.AvailableCount(),
	}
	e.mu.Unlock()

	e.logger.Debug("entity removed", "seq", n.Seq, "entity", id)
	e.notifyRoster(n)
	return true
}

func (e *Engine) notifyRoster(n RosterChange) {
	e.observers.each(func(o Observer) {
		o.RosterChanged(n)
	})
}

// History returns up to limit records, most recent first.
// A non-positive limit returns all of them.
func (e *Engine) History(limit int) []DrawRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]DrawRecord, n)
	for i := range out {
		out[i] = e.history[len(e.history)-1-i]
	}
	return out
}

// Statistics summarizes the current cycle.
func (e *Engine) Statistics() Statistics {
	e.mu.Lock()
	history := make([]DrawRecord, len(e.history))
	copy(history, e.history)
	all := e.pool.ListAll()
	e.mu.Unlock()

	return computeStatistics(history, all, e.pool.Rarities())
}
