package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rollcall/internal/random"
	"github.com/roach88/rollcall/internal/roster"
	"github.com/roach88/rollcall/internal/testutil"
)

type testEngine struct {
	*Engine
	rec   *Recorder
	clock *testutil.StepClock
}

func setupEngine(t *testing.T, ids []int, opts ...Option) *testEngine {
	t.Helper()

	clock := testutil.NewStepClock(2 * time.Second)
	pool := roster.NewPool(roster.WithClock(clock.Now))
	records := make([]roster.Record, len(ids))
	for i, id := range ids {
		records[i] = roster.Record{ID: id, Rarity: roster.Ordinary}
	}
	require.NoError(t, pool.Import(records))

	base := []Option{
		WithRandom(random.New(7)),
		WithIDGenerator(testutil.NewSequentialIDGenerator("")),
	}
	e := New(pool, append(base, opts...)...)
	rec := NewRecorder()
	e.Subscribe(rec)
	return &testEngine{Engine: e, rec: rec, clock: clock}
}

// blockingGap parks a draw between selection and commit until released.
type blockingGap struct {
	entered chan roster.Entity
	release chan struct{}
}

func newBlockingGap() *blockingGap {
	return &blockingGap{
		entered: make(chan roster.Entity, 1),
		release: make(chan struct{}),
	}
}

func (g *blockingGap) Gap(ctx context.Context, selected roster.Entity) error {
	g.entered <- selected
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func drawAsync(e *Engine) <-chan error {
	done := make(chan error, 1)
	go func() {
		_, err := e.Draw(context.Background())
		done <- err
	}()
	return done
}

func TestEngine_New(t *testing.T) {
	e := New(roster.NewPool())

	assert.Equal(t, Uniform, e.Policy().Kind)
	assert.False(t, e.Busy())
	assert.Empty(t, e.History(0))
	assert.Equal(t, int64(0), e.clock.Current())
}

func TestEngine_DrawSuccess(t *testing.T) {
	e := setupEngine(t, []int{1, 2, 3})

	res, err := e.Draw(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Entity.IsDrawn)
	assert.Equal(t, testutil.Epoch, res.Entity.DrawnAt)
	assert.Equal(t, 2, res.RemainingCount)
	assert.Equal(t, DrawRecord{
		Seq:                 1,
		ID:                  "draw-0001",
		EntityID:            res.Entity.ID,
		EntityName:          res.Entity.Name,
		Rarity:              roster.Ordinary,
		Timestamp:           testutil.Epoch,
		Policy:              Uniform,
		RemainingCountAfter: 2,
	}, res.Record)

	stored, ok := e.Pool().FindByID(res.Entity.ID)
	require.True(t, ok)
	assert.True(t, stored.IsDrawn)
	assert.False(t, e.Busy())
	assert.Equal(t, []NotificationKind{KindDrawStart, KindDrawComplete}, e.rec.Kinds())
	assert.Equal(t, 3, e.rec.Notifications()[0].DrawStart.AvailableCount)
}

func TestEngine_NoRepeatUntilExhausted(t *testing.T) {
	ids := []int{4, 8, 15, 16, 23, 42}
	e := setupEngine(t, ids)

	seen := map[int]bool{}
	for range ids {
		res, err := e.Draw(context.Background())
		require.NoError(t, err)
		assert.False(t, seen[res.Entity.ID], "entity %d drawn twice", res.Entity.ID)
		seen[res.Entity.ID] = true
	}
	assert.Len(t, seen, len(ids))

	_, err := e.Draw(context.Background())
	require.ErrorIs(t, err, ErrExhaustedPool)
	assert.Equal(t, FailureExhausted, FailureCodeOf(err))
	assert.Len(t, e.History(0), len(ids))
	assert.False(t, e.Busy())

	last := e.rec.Notifications()[len(e.rec.Notifications())-1]
	require.Equal(t, KindDrawError, last.Kind)
	assert.Equal(t, FailureExhausted, last.DrawError.Code)
}

func TestEngine_EmptyRoster(t *testing.T) {
	e := setupEngine(t, nil)

	_, err := e.Draw(context.Background())
	require.ErrorIs(t, err, ErrExhaustedPool)
	assert.Equal(t, []NotificationKind{KindDrawError}, e.rec.Kinds())
}

func TestEngine_SequentialOrder(t *testing.T) {
	e := setupEngine(t, []int{5, 3, 8, 1})
	require.NoError(t, e.SetPolicy(Sequential, nil))

	var order []int
	for range 4 {
		res, err := e.Draw(context.Background())
		require.NoError(t, err)
		order = append(order, res.Entity.ID)
		assert.Equal(t, Sequential, res.Record.Policy)
	}
	assert.Equal(t, []int{1, 3, 5, 8}, order)
}

func TestEngine_ResetIdempotent(t *testing.T) {
	e := setupEngine(t, []int{1, 2, 3})
	for range 2 {
		_, err := e.Draw(context.Background())
		require.NoError(t, err)
	}

	first := e.Reset()
	after := e.Pool().ListAll()
	second := e.Reset()

	assert.Equal(t, after, e.Pool().ListAll())
	assert.Equal(t, 3, first.TotalCount)
	assert.Equal(t, 3, second.TotalCount)
	assert.Greater(t, second.Seq, first.Seq)
	assert.Empty(t, e.History(0))
	assert.Equal(t, 3, e.Pool().AvailableCount())
	for _, ent := range after {
		assert.False(t, ent.IsDrawn)
		assert.True(t, ent.DrawnAt.IsZero())
	}
}

func TestEngine_SeqContinuesAcrossReset(t *testing.T) {
	e := setupEngine(t, []int{1, 2})

	res, err := e.Draw(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Record.Seq)

	reset := e.Reset()
	assert.Equal(t, int64(2), reset.Seq)

	res, err = e.Draw(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Record.Seq)
}

func TestEngine_BusyGuard(t *testing.T) {
	gap := newBlockingGap()
	e := setupEngine(t, []int{1, 2, 3}, WithGap(gap.Gap))

	first := drawAsync(e.Engine)
	<-gap.entered
	assert.True(t, e.Busy())

	_, err := e.Draw(context.Background())
	require.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, FailureBusy, FailureCodeOf(err))

	close(gap.release)
	require.NoError(t, <-first)
	assert.False(t, e.Busy())
	assert.Len(t, e.History(0), 1)

	// ErrBusy belongs to the caller; the in-flight draw owns the notifications.
	assert.Equal(t, []NotificationKind{KindDrawStart, KindDrawComplete}, e.rec.Kinds())
}

func TestEngine_ConcurrentDrawsNeverRepeat(t *testing.T) {
	ids := make([]int, 50)
	for i := range ids {
		ids[i] = i + 1
	}
	e := setupEngine(t, ids)

	var mu sync.Mutex
	drawn := map[int]int{}
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				res, err := e.Draw(context.Background())
				if errors.Is(err, ErrExhaustedPool) {
					return
				}
				if err != nil {
					continue
				}
				mu.Lock()
				drawn[res.Entity.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, drawn, len(ids))
	for id, n := range drawn {
		assert.Equal(t, 1, n, "entity %d", id)
	}
}

func TestEngine_ResetDuringGapRejectsCommit(t *testing.T) {
	gap := newBlockingGap()
	e := setupEngine(t, []int{1, 2, 3}, WithGap(gap.Gap))

	done := drawAsync(e.Engine)
	selected := <-gap.entered

	e.Reset()
	close(gap.release)

	err := <-done
	require.ErrorIs(t, err, ErrCommitConflict)
	assert.ErrorIs(t, err, roster.ErrStaleGeneration)

	var df *DrawFailure
	require.ErrorAs(t, err, &df)
	assert.Equal(t, selected.ID, df.EntityID)

	assert.Empty(t, e.History(0))
	assert.Equal(t, 3, e.Pool().AvailableCount())
	assert.False(t, e.Busy())
	assert.Equal(t,
		[]NotificationKind{KindDrawStart, KindResetComplete, KindDrawError},
		e.rec.Kinds())
}

func TestEngine_RemovedDuringGapRejectsCommit(t *testing.T) {
	gap := newBlockingGap()
	e := setupEngine(t, []int{1}, WithGap(gap.Gap))

	done := drawAsync(e.Engine)
	selected := <-gap.entered
	require.True(t, e.Pool().Remove(selected.ID))
	close(gap.release)

	err := <-done
	require.ErrorIs(t, err, ErrCommitConflict)
	assert.ErrorIs(t, err, roster.ErrNotFound)
	assert.Empty(t, e.History(0))
}

func TestEngine_ReAddedDuringGapRejectsCommit(t *testing.T) {
	gap := newBlockingGap()
	e := setupEngine(t, []int{1}, WithGap(gap.Gap))

	done := drawAsync(e.Engine)
	selected := <-gap.entered
	require.True(t, e.Remove(selected.ID))
	_, err := e.Add(roster.Record{ID: selected.ID, Name: "Someone else", Rarity: roster.Rare})
	require.NoError(t, err)
	close(gap.release)

	err = <-done
	require.ErrorIs(t, err, ErrCommitConflict)
	assert.ErrorIs(t, err, roster.ErrStaleGeneration)

	ent, ok := e.Pool().FindByID(selected.ID)
	require.True(t, ok)
	assert.False(t, ent.IsDrawn, "the newcomer was never selected")
	assert.Empty(t, e.History(0))
}

func TestEngine_AddAndRemoveNotify(t *testing.T) {
	e := setupEngine(t, []int{1, 2})

	_, err := e.Draw(context.Background())
	require.NoError(t, err)

	added, err := e.Add(roster.Record{Name: "Hedy", Rarity: roster.Rare})
	require.NoError(t, err)
	assert.Equal(t, 3, added.ID)
	require.True(t, e.Remove(1))
	assert.False(t, e.Remove(1), "second removal is a miss")

	_, err = e.Add(roster.Record{ID: 2, Name: "Duplicate"})
	require.ErrorIs(t, err, roster.ErrValidation)

	var changes []RosterChange
	for _, n := range e.rec.Notifications() {
		if n.Kind == KindRosterChange {
			changes = append(changes, *n.RosterChange)
		}
	}
	require.Len(t, changes, 2, "failed edits are not notified")

	assert.Equal(t, EditAdd, changes[0].Op)
	assert.Equal(t, "Hedy", changes[0].Entity.Name)
	assert.Equal(t, int64(2), changes[0].Seq, "edits share the draw clock")
	assert.Equal(t, 3, changes[0].TotalCount)

	assert.Equal(t, EditRemove, changes[1].Op)
	assert.Equal(t, 1, changes[1].Entity.ID)
	assert.Equal(t, int64(3), changes[1].Seq)
	assert.Equal(t, 2, changes[1].TotalCount)
	assert.Equal(t, e.Pool().AvailableCount(), changes[1].AvailableCount)
}

func TestEngine_CancelledContext(t *testing.T) {
	e := setupEngine(t, []int{1, 2}, WithDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Draw(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, FailureCancelled, FailureCodeOf(err))
	assert.Equal(t, 2, e.Pool().AvailableCount())
	assert.False(t, e.Busy())
	assert.Equal(t, []NotificationKind{KindDrawStart, KindDrawError}, e.rec.Kinds())
}

func TestEngine_DelayCompletes(t *testing.T) {
	e := setupEngine(t, []int{1}, WithDelay(time.Millisecond))

	_, err := e.Draw(context.Background())
	require.NoError(t, err)
}

func TestEngine_PanicInGapReturnsToIdle(t *testing.T) {
	e := setupEngine(t, []int{1}, WithGap(func(context.Context, roster.Entity) error {
		panic("presentation crashed")
	}))

	assert.PanicsWithValue(t, "presentation crashed", func() { _, _ = e.Draw(context.Background()) })
	assert.False(t, e.Busy())
	assert.Equal(t, 1, e.Pool().AvailableCount())

	notes := e.rec.Notifications()
	require.Len(t, notes, 2)
	assert.Equal(t, KindDrawError, notes[1].Kind)
	assert.Equal(t, FailurePanic, notes[1].DrawError.Code)
	assert.Contains(t, notes[1].DrawError.Reason.Error(), "presentation crashed")

	e.gap = nil
	_, err := e.Draw(context.Background())
	assert.NoError(t, err)
}

// panicOnComplete panics when a draw completes.
type panicOnComplete struct{ *Recorder }

func (panicOnComplete) DrawCompleted(DrawComplete) { panic("observer crashed") }

func TestEngine_PanicAfterCommitIsNotAFailure(t *testing.T) {
	e := setupEngine(t, []int{1})
	e.Subscribe(panicOnComplete{NewRecorder()})

	assert.Panics(t, func() { _, _ = e.Draw(context.Background()) })
	assert.False(t, e.Busy())
	assert.Len(t, e.History(0), 1, "the draw committed")
	assert.Equal(t, []NotificationKind{KindDrawStart, KindDrawComplete}, e.rec.Kinds())
}

func TestEngine_SetPolicy(t *testing.T) {
	e := setupEngine(t, []int{1})

	require.NoError(t, e.SetPolicy(Weighted, Weights{roster.Rare: 2}))
	assert.Equal(t, Weighted, e.Policy().Kind)
	assert.Equal(t, 2.0, e.Policy().Weights()[roster.Rare])

	err := e.SetPolicy("shuffle", nil)
	require.ErrorIs(t, err, ErrInvalidPolicy)
	err = e.SetPolicy(Weighted, Weights{roster.Ordinary: -0.5})
	require.ErrorIs(t, err, ErrInvalidPolicy)

	assert.Equal(t, Weighted, e.Policy().Kind, "failed SetPolicy must not change the active policy")
	assert.Equal(t, 2.0, e.Policy().Weights()[roster.Rare])
}

func TestEngine_SetPolicyDuringGapKeepsSelectionPolicy(t *testing.T) {
	gap := newBlockingGap()
	e := setupEngine(t, []int{1, 2}, WithGap(gap.Gap))

	done := drawAsync(e.Engine)
	<-gap.entered
	require.NoError(t, e.SetPolicy(Sequential, nil))
	close(gap.release)
	require.NoError(t, <-done)

	assert.Equal(t, Uniform, e.History(1)[0].Policy)
	assert.Equal(t, Sequential, e.Policy().Kind)
}

func TestEngine_History(t *testing.T) {
	e := setupEngine(t, []int{1, 2, 3}, WithPolicy(Policy{Kind: Sequential}))
	for range 3 {
		_, err := e.Draw(context.Background())
		require.NoError(t, err)
	}

	all := e.History(0)
	require.Len(t, all, 3)
	assert.Equal(t, []int{3, 2, 1}, []int{all[0].EntityID, all[1].EntityID, all[2].EntityID})
	assert.Equal(t, []int{0, 1, 2}, []int{all[0].RemainingCountAfter, all[1].RemainingCountAfter, all[2].RemainingCountAfter})

	top := e.History(2)
	require.Len(t, top, 2)
	assert.Equal(t, all[:2], top)

	assert.Len(t, e.History(-1), 3)
	assert.Len(t, e.History(10), 3)

	top[0].EntityID = 99
	assert.Equal(t, 3, e.History(1)[0].EntityID, "history must be returned by copy")
}

func TestEngine_Statistics(t *testing.T) {
	clock := testutil.NewStepClock(3 * time.Second)
	pool := roster.NewPool(roster.WithClock(clock.Now))
	require.NoError(t, pool.Import([]roster.Record{
		{ID: 1, Rarity: roster.Ordinary},
		{ID: 2, Rarity: roster.Rare},
		{ID: 3, Rarity: roster.SuperRare},
		{ID: 4, Rarity: roster.Ordinary},
	}))
	e := New(pool, WithPolicy(Policy{Kind: Sequential}), WithIDGenerator(testutil.NewSequentialIDGenerator("")))

	stats := e.Statistics()
	assert.Equal(t, 0, stats.TotalDraws)
	assert.Equal(t, 0.0, stats.MeanIntervalSeconds)
	assert.Equal(t, 4, stats.AvailableCount)

	for range 3 {
		_, err := e.Draw(context.Background())
		require.NoError(t, err)
	}

	stats = e.Statistics()
	assert.Equal(t, 3, stats.TotalDraws)
	assert.Equal(t, 4, stats.TotalCount)
	assert.Equal(t, 3, stats.DrawnCount)
	assert.Equal(t, 1, stats.AvailableCount)
	assert.Equal(t, map[roster.Rarity]int{
		roster.Ordinary:  1,
		roster.Rare:      1,
		roster.SuperRare: 1,
	}, stats.DrawnByRarity)
	assert.Equal(t, map[roster.Rarity]int{
		roster.Ordinary:  2,
		roster.Rare:      1,
		roster.SuperRare: 1,
	}, stats.RosterByRarity)
	assert.InDelta(t, 3.0, stats.MeanIntervalSeconds, 1e-9)
}

func TestEngine_ImportNotifiesReset(t *testing.T) {
	e := setupEngine(t, []int{1, 2})
	_, err := e.Draw(context.Background())
	require.NoError(t, err)

	require.NoError(t, e.Import([]roster.Record{{Name: "Ada"}, {Name: "Grace"}, {Name: "Edsger"}}))
	assert.Empty(t, e.History(0))
	assert.Equal(t, 3, e.Pool().AvailableCount())

	last := e.rec.Notifications()[len(e.rec.Notifications())-1]
	require.Equal(t, KindResetComplete, last.Kind)
	assert.Equal(t, 3, last.ResetComplete.TotalCount)

	e.rec.Clear()
	err = e.Import([]roster.Record{{ID: 1}, {ID: 1}})
	require.ErrorIs(t, err, roster.ErrValidation)
	assert.Empty(t, e.rec.Kinds())
	assert.Equal(t, 3, e.Pool().Len())
}

func TestEngine_ExportImportRoundTrip(t *testing.T) {
	e := setupEngine(t, []int{3, 1, 2})
	_, err := e.Draw(context.Background())
	require.NoError(t, err)

	exported := e.Export()

	other := New(roster.NewPool())
	require.NoError(t, other.Import(exported))
	assert.Equal(t, exported, other.Export())
	assert.Equal(t, 3, other.Pool().AvailableCount())
}

func TestEngine_Unsubscribe(t *testing.T) {
	e := setupEngine(t, []int{1, 2})
	extra := NewRecorder()
	unsubscribe := e.Subscribe(extra)

	_, err := e.Draw(context.Background())
	require.NoError(t, err)
	unsubscribe()
	unsubscribe()
	_, err = e.Draw(context.Background())
	require.NoError(t, err)

	assert.Len(t, extra.Kinds(), 2)
	assert.Len(t, e.rec.Kinds(), 4)
}

func TestEngine_ResumedClock(t *testing.T) {
	e := setupEngine(t, []int{1}, WithClock(NewClockAt(41)))

	res, err := e.Draw(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.Record.Seq)
}
