package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/rollcall/internal/engine"
	"github.com/roach88/rollcall/internal/random"
	"github.com/roach88/rollcall/internal/roster"
	"github.com/roach88/rollcall/internal/testutil"
)

// Harness executes one scenario against a real engine.
type Harness struct {
	engine   *engine.Engine
	pool     *roster.Pool
	recorder *engine.Recorder
	result   *Result
}

// Run executes a scenario and returns the result.
//
// Every run is deterministic: the pool clock starts at testutil.Epoch and
// advances one second per draw, draw IDs are draw-0001, draw-0002, ... and
// selection follows the scenario's random script or seed.
//
// Step failures are part of the trace, not errors. Run only fails when the
// scenario cannot be set up (e.g. an invalid roster).
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context for the draws.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}

	for i, step := range scenario.Steps {
		h.execute(ctx, i, step)
		h.collect(i)
	}

	r := h.result
	r.History = h.engine.History(0)
	r.Available = h.pool.AvailableCount()
	r.Statistics = h.engine.Statistics()

	for _, msg := range EvaluateAssertions(r, scenario.Assertions) {
		r.AddError(msg)
	}
	return r, nil
}

func newHarness(scenario *Scenario) (*Harness, error) {
	clock := testutil.NewStepClock(time.Second)
	rosterSrc, drawSrc := random.Split(scenario.Seed)
	pool := roster.NewPool(
		roster.WithClock(clock.Now),
		roster.WithRandom(rosterSrc),
		roster.WithRarities(scenario.Rarities...),
	)

	switch {
	case scenario.RosterFile != "":
		records, err := roster.LoadFile(scenario.RosterFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load roster: %w", err)
		}
		if err := pool.Import(records); err != nil {
			return nil, fmt.Errorf("failed to import roster: %w", err)
		}
	case scenario.Count > 0:
		if err := pool.Initialize(scenario.Count); err != nil {
			return nil, fmt.Errorf("failed to generate roster: %w", err)
		}
	default:
		if err := pool.Import(scenario.Roster); err != nil {
			return nil, fmt.Errorf("failed to import roster: %w", err)
		}
	}

	src := drawSrc
	if len(scenario.Random) > 0 {
		src = testutil.NewSequenceSource(scenario.Random...)
	}

	opts := []engine.Option{
		engine.WithRandom(src),
		engine.WithIDGenerator(testutil.NewSequentialIDGenerator("draw")),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), // Suppress logs in tests
	}
	if scenario.Policy != nil {
		p, err := buildPolicy(scenario.Policy, pool.Rarities())
		if err != nil {
			return nil, fmt.Errorf("invalid initial policy: %w", err)
		}
		opts = append(opts, engine.WithPolicy(p))
	}

	eng := engine.New(pool, opts...)
	rec := engine.NewRecorder()
	eng.Subscribe(rec)

	return &Harness{
		engine:   eng,
		pool:     pool,
		recorder: rec,
		result:   NewResult(),
	}, nil
}

func buildPolicy(step *PolicyStep, allowed []roster.Rarity) (engine.Policy, error) {
	kind, err := engine.ParsePolicyKind(step.Kind)
	if err != nil {
		return engine.Policy{}, err
	}
	return engine.NewPolicy(kind, engine.Weights(step.Weights), allowed)
}

// execute runs one step. Engine notifications are picked up by collect;
// rejected steps, which notify nothing, trace themselves.
func (h *Harness) execute(ctx context.Context, i int, step Step) {
	switch step.kind() {
	case "draw":
		for range step.Draw {
			// Failures arrive as DrawError notifications.
			_, _ = h.engine.Draw(ctx)
		}

	case "reset":
		h.engine.Reset()

	case "policy":
		kind, err := engine.ParsePolicyKind(step.Policy.Kind)
		if err == nil {
			err = h.engine.SetPolicy(kind, engine.Weights(step.Policy.Weights))
		}
		if err != nil {
			h.result.addEvent(TraceEvent{Step: i, Type: EventPolicyError, Code: CodeInvalidPolicy})
			return
		}
		h.result.addEvent(TraceEvent{Step: i, Type: EventPolicy, Policy: h.engine.Policy().String()})

	case "add":
		if _, err := h.engine.Add(*step.Add); err != nil {
			h.result.addEvent(TraceEvent{Step: i, Type: EventAddError, Code: CodeValidation})
		}

	case "remove":
		if !h.engine.Remove(step.Remove) {
			h.result.addEvent(TraceEvent{Step: i, Type: EventRemoveError, Code: CodeNotFound, EntityID: step.Remove})
		}
	}
}

// collect converts the notifications of step i into trace events.
func (h *Harness) collect(i int) {
	for _, n := range h.recorder.Notifications() {
		switch n.Kind {
		case engine.KindDrawStart:
			h.result.addEvent(TraceEvent{
				Step:      i,
				Type:      EventDrawStart,
				Available: intPtr(n.DrawStart.AvailableCount),
			})

		case engine.KindDrawComplete:
			rec := n.DrawComplete.Record
			h.result.Draws = append(h.result.Draws, rec)
			h.result.addEvent(TraceEvent{
				Step:       i,
				Type:       EventDrawComplete,
				Seq:        rec.Seq,
				EntityID:   rec.EntityID,
				EntityName: rec.EntityName,
				Rarity:     string(rec.Rarity),
				Policy:     string(rec.Policy),
				Remaining:  intPtr(rec.RemainingCountAfter),
				At:         rec.Timestamp.UTC().Format(time.RFC3339),
			})

		case engine.KindDrawError:
			ev := TraceEvent{Step: i, Type: EventDrawError, Code: string(n.DrawError.Code)}
			var df *engine.DrawFailure
			if errors.As(n.DrawError.Reason, &df) {
				ev.EntityID = df.EntityID
			}
			h.result.addEvent(ev)

		case engine.KindRosterChange:
			typ := EventAdd
			if n.RosterChange.Op == engine.EditRemove {
				typ = EventRemove
			}
			ent := n.RosterChange.Entity
			h.result.addEvent(TraceEvent{
				Step:       i,
				Type:       typ,
				Seq:        n.RosterChange.Seq,
				EntityID:   ent.ID,
				EntityName: ent.Name,
				Rarity:     string(ent.Rarity),
				Available:  intPtr(n.RosterChange.AvailableCount),
			})

		case engine.KindResetComplete:
			h.result.addEvent(TraceEvent{
				Step:  i,
				Type:  EventResetComplete,
				Seq:   n.ResetComplete.Seq,
				Total: intPtr(n.ResetComplete.TotalCount),
			})
		}
	}
	h.recorder.Clear()
}
