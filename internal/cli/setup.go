package cli

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rollcall/internal/engine"
	"github.com/roach88/rollcall/internal/random"
	"github.com/roach88/rollcall/internal/roster"
	"github.com/roach88/rollcall/internal/store"
)

// DrawOptions holds the engine flags shared by draw and session.
type DrawOptions struct {
	*RootOptions
	Policy   string
	Weights  string
	Seed     uint64
	Database string
	Delay    time.Duration
	Resume   string // session ID, or "latest"
	Rarities []string
}

// addDrawFlags registers the engine flags with environment defaults.
func addDrawFlags(cmd *cobra.Command, opts *DrawOptions) {
	cfg := opts.Config
	var seed uint64
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}

	f := cmd.Flags()
	f.StringVar(&opts.Policy, "policy", cmp.Or(cfg.Policy, string(engine.Uniform)), "selection policy (uniform|weighted|sequential)")
	f.StringVar(&opts.Weights, "weights", cfg.Weights, "rarity weights for the weighted policy, e.g. ordinary=1,rare=0.5")
	f.Uint64Var(&opts.Seed, "seed", seed, "seed for reproducible draws")
	f.StringVar(&opts.Database, "db", cfg.Database, "journal the session to this SQLite database")
	f.DurationVar(&opts.Delay, "delay", cfg.DrawDelay, "presentation gap between selection and commit")
	f.StringVar(&opts.Resume, "resume", "", `resume a journaled session by ID ("latest" for the most recent)`)
	f.StringSliceVar(&opts.Rarities, "rarities", nil, "extra rarity categories accepted in the roster")
}

// drawSession is an engine ready to draw, optionally journaled.
type drawSession struct {
	engine    *engine.Engine
	store     *store.Store
	journal   *store.Journal
	sessionID string
	seed      *uint64
	logger    *slog.Logger
}

// Close closes the journal store. Journal write failures were already
// logged one by one; Close only summarises them.
func (s *drawSession) Close() error {
	if s.store == nil {
		return nil
	}
	if err := s.journal.Err(); err != nil {
		s.logger.Warn("some draws were not journaled", "session", s.sessionID, "error", err)
	}
	return s.store.Close()
}

// openDrawSession builds the engine for draw and session. With --resume
// the pool is rebuilt from the journal; otherwise args[0] is the roster
// file and, with --db, a new session is begun.
func openDrawSession(ctx context.Context, cmd *cobra.Command, opts *DrawOptions, args []string, logger *slog.Logger) (_ *drawSession, err error) {
	kind, err := engine.ParsePolicyKind(opts.Policy)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --policy", err)
	}
	weights, err := engine.ParseWeights(opts.Weights)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --weights", err)
	}
	rarities := make([]roster.Rarity, len(opts.Rarities))
	for i, r := range opts.Rarities {
		rarities[i] = roster.Rarity(r)
	}

	ds := &drawSession{logger: logger}
	defer func() {
		if err != nil && ds.store != nil {
			_ = ds.store.Close()
		}
	}()

	if cmd.Flags().Changed("seed") || opts.Config.Seed != nil {
		seed := opts.Seed
		ds.seed = &seed
	} else if opts.Database != "" && opts.Resume == "" {
		// Journaled sessions are always reproducible.
		seed, err := random.NewSeed()
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to seed session", err)
		}
		ds.seed = &seed
	}

	engOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithDelay(opts.Delay),
	}

	var pool *roster.Pool
	switch {
	case opts.Resume != "":
		if opts.Database == "" {
			return nil, NewExitError(ExitCommandError, "--resume requires --db")
		}
		if len(args) > 0 {
			return nil, NewExitError(ExitCommandError, "--resume takes the roster from the journal; drop the roster argument")
		}
		if ds.store, err = store.Open(opts.Database); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}

		ds.sessionID = opts.Resume
		if ds.sessionID == "latest" {
			sess, err := ds.store.LatestSession(ctx)
			if err != nil {
				return nil, WrapExitError(ExitCommandError, "no session to resume", err)
			}
			ds.sessionID = sess.ID
		}

		res, err := ds.store.Replay(ctx, ds.sessionID, roster.WithRarities(rarities...))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay session %s", ds.sessionID), err)
		}
		if !res.OK() {
			logger.Warn("journal is inconsistent", "session", ds.sessionID, "repeats", len(res.Repeats), "unknown", len(res.Unknown))
		}
		logger.Info("session resumed", "session", ds.sessionID, "draws", len(res.History), "available", res.Pool.AvailableCount())

		// A resumed session keeps its journaled seed and policy unless the
		// command line overrides them.
		if ds.seed == nil && res.Session.Seed != nil {
			seed := *res.Session.Seed
			ds.seed = &seed
		}
		if !cmd.Flags().Changed("policy") && !cmd.Flags().Changed("weights") {
			if kind, weights, err = engine.ParsePolicy(res.Session.Policy); err != nil {
				return nil, WrapExitError(ExitCommandError, fmt.Sprintf("session %s has an unreadable policy", ds.sessionID), err)
			}
		}

		pool = res.Pool
		engOpts = append(engOpts,
			engine.WithClock(engine.NewClockAt(res.LastSeq)),
			engine.WithHistory(res.History),
		)

	default:
		if len(args) != 1 {
			return nil, NewExitError(ExitCommandError, "a roster file is required")
		}
		records, err := roster.LoadFile(args[0])
		if err != nil {
			return nil, rosterError(err)
		}
		rosterSrc, _ := sources(ds.seed)
		pool = roster.NewPool(roster.WithRandom(rosterSrc), roster.WithRarities(rarities...))
		if err := pool.Import(records); err != nil {
			return nil, rosterError(err)
		}
	}

	_, drawSrc := sources(ds.seed)
	eng := engine.New(pool, append(engOpts, engine.WithRandom(drawSrc))...)
	if err := eng.SetPolicy(kind, weights); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid policy", err)
	}

	if opts.Database != "" && opts.Resume == "" {
		if ds.store, err = store.Open(opts.Database); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		ds.sessionID = engine.UUIDv7Generator{}.Generate()
		sess := store.Session{
			ID:        ds.sessionID,
			StartedAt: time.Now().UTC(),
			Policy:    eng.Policy().String(),
			Seed:      ds.seed,
		}
		if err := ds.store.BeginSession(ctx, sess, pool.Export()); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to begin session", err)
		}
		logger.Info("session started", "session", ds.sessionID, "students", pool.Len())
	}

	if ds.store != nil {
		ds.journal = ds.store.Journal(ds.sessionID, store.WithJournalLogger(logger))
		eng.Subscribe(ds.journal)
	}

	ds.engine = eng
	return ds, nil
}

// sources returns the roster and draw randomness, split from seed when one
// is set.
func sources(seed *uint64) (rosterSrc, drawSrc random.Source) {
	if seed == nil {
		return random.Default(), random.Default()
	}
	return random.Split(*seed)
}

// rosterError maps a roster load failure to an exit error. Validation
// problems are failures of the input; anything else is a command error.
func rosterError(err error) error {
	if errors.Is(err, roster.ErrValidation) {
		return WrapExitError(ExitFailure, "invalid roster", err)
	}
	return WrapExitError(ExitCommandError, "failed to load roster", err)
}

// commandContext returns the command's context, or Background when run
// outside Execute (tests).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
