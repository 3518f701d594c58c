package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rollcall/internal/engine"
	"github.com/roach88/rollcall/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Session  string
	Limit    int
	List     bool
}

// HistoryOutput is the history command result for one session.
type HistoryOutput struct {
	Session store.Session       `json:"session"`
	Draws   []engine.DrawRecord `json:"draws"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled draws",
		Long: `Show the draws journaled for a session, most recent first.

Without --session the most recent session is shown. --list shows every
session instead.

Examples:
  rollcall history --db rollcall.db
  rollcall history --db rollcall.db --limit 5
  rollcall history --db rollcall.db --list --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", rootOpts.Config.Database, "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session ID (default most recent)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show at most this many draws (0 for all)")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list sessions instead of draws")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	if opts.Database == "" {
		return NewExitError(ExitCommandError, "--db is required")
	}
	ctx := commandContext(cmd)
	f := formatter(opts.RootOptions, cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.List {
		sums, err := st.Sessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
		return f.Emit(sums, func(w io.Writer) { printSessions(w, sums) })
	}

	sess, err := resolveSession(cmd, st, opts.Session)
	if err != nil {
		return err
	}
	draws, err := st.ReadDraws(ctx, sess.ID, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read draws", err)
	}

	out := HistoryOutput{Session: sess, Draws: draws}
	return f.Emit(out, func(w io.Writer) {
		fmt.Fprintf(w, "Session %s (started %s, %s)\n", sess.ID, sess.StartedAt.Local().Format(time.DateTime), sess.Policy)
		if len(draws) == 0 {
			fmt.Fprintln(w, "No draws journaled.")
		}
		for _, rec := range draws {
			fmt.Fprintf(w, "%s  ", rec.Timestamp.Local().Format(time.TimeOnly))
			printDraw(w, rec)
		}
	})
}

// resolveSession loads the named session, or the latest one.
func resolveSession(cmd *cobra.Command, st *store.Store, id string) (store.Session, error) {
	ctx := commandContext(cmd)
	if id == "" || id == "latest" {
		sess, err := st.LatestSession(ctx)
		if errors.Is(err, store.ErrSessionNotFound) {
			return store.Session{}, NewExitError(ExitCommandError, "no sessions journaled")
		}
		if err != nil {
			return store.Session{}, WrapExitError(ExitCommandError, "failed to read sessions", err)
		}
		return sess, nil
	}

	sess, _, err := st.ReadSession(ctx, id)
	if errors.Is(err, store.ErrSessionNotFound) {
		return store.Session{}, NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", id))
	}
	if err != nil {
		return store.Session{}, WrapExitError(ExitCommandError, "failed to read session", err)
	}
	return sess, nil
}

func printSessions(w io.Writer, sums []store.SessionSummary) {
	if len(sums) == 0 {
		fmt.Fprintln(w, "No sessions journaled.")
		return
	}
	for _, s := range sums {
		seed := "-"
		if s.Seed != nil {
			seed = fmt.Sprint(*s.Seed)
		}
		fmt.Fprintf(w, "%s  %s  %3d students  %3d draws  %2d resets  seed %s  %s\n",
			s.ID, s.StartedAt.Local().Format(time.DateTime), s.RosterSize, s.Draws, s.Resets, seed, s.Policy)
	}
}
