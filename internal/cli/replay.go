package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rollcall/internal/roster"
	"github.com/roach88/rollcall/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Session  string // optional - latest session by default
	Rarities []string
}

// ReplayOutput is the replay command result.
type ReplayOutput struct {
	store.ReplayResult
	Available  int  `json:"available"`
	Consistent bool `json:"consistent"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a journal and verify the no-repeat guarantee",
		Long: `Rebuild a session from its journal and check it.

The stored roster is re-imported and every draw and reset is re-applied
in sequence order. A student drawn twice within one cycle, a draw of a
student missing from the roster, or a roster edited after the session
began is reported.

Exit codes:
  0 - Journal is consistent
  1 - Repeats, unknown students or an altered roster found
  2 - Command error (database not found, unknown session, etc.)

Examples:
  rollcall replay --db rollcall.db
  rollcall replay --db rollcall.db --session 0192...
  rollcall replay --db rollcall.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", rootOpts.Config.Database, "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session ID (default most recent)")
	cmd.Flags().StringSliceVar(&opts.Rarities, "rarities", nil, "extra rarity categories used by the roster")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	if opts.Database == "" {
		return NewExitError(ExitCommandError, "--db is required")
	}
	ctx := commandContext(cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	sess, err := resolveSession(cmd, st, opts.Session)
	if err != nil {
		return err
	}

	rarities := make([]roster.Rarity, len(opts.Rarities))
	for i, r := range opts.Rarities {
		rarities[i] = roster.Rarity(r)
	}
	res, err := st.Replay(ctx, sess.ID, roster.WithRarities(rarities...))
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay session %s", sess.ID), err)
	}

	out := ReplayOutput{
		ReplayResult: res,
		Available:    res.Pool.AvailableCount(),
		Consistent:   res.OK(),
	}

	f := formatter(opts.RootOptions, cmd)
	f.SessionID = sess.ID
	if f.JSON() {
		return outputReplayJSON(f, out)
	}
	return outputReplayText(cmd, out, opts.Verbose)
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(f *OutputFormatter, out ReplayOutput) error {
	var err error
	if out.Consistent {
		err = f.Success(out)
	} else {
		err = f.Fail("E_INCONSISTENT", "journal failed verification", out, nil)
	}
	if err != nil {
		return err
	}

	if !out.Consistent {
		return NewExitError(ExitFailure, "journal is inconsistent")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, out ReplayOutput, verbose bool) error {
	w := cmd.OutOrStdout()

	status := "✓"
	if !out.Consistent {
		status = "✗"
	}

	fmt.Fprintf(w, "%s Session %s\n", status, out.Session.ID)
	fmt.Fprintf(w, "  Draws:     %d over %d cycle(s)\n", out.Draws, out.Cycles)
	if out.Edits > 0 {
		fmt.Fprintf(w, "  Edits:     %d\n", out.Edits)
	}
	fmt.Fprintf(w, "  Last seq:  %d\n", out.LastSeq)
	fmt.Fprintf(w, "  Current:   %d drawn, %d available\n", len(out.History), out.Available)

	if verbose {
		for _, rec := range out.History {
			fmt.Fprint(w, "    ")
			printDraw(w, rec)
		}
	}

	for _, r := range out.Repeats {
		fmt.Fprintf(w, "  repeat: student %d drawn at seq %d and seq %d (cycle %d)\n", r.EntityID, r.FirstSeq, r.Seq, r.Cycle)
	}
	if out.RosterAltered {
		fmt.Fprintln(w, "  roster: journaled roster does not match its fingerprint")
	}
	for _, e := range out.BadEdits {
		fmt.Fprintf(w, "  edit: seq %d could not %s student %d (%s)\n", e.Seq, e.Op, e.Record.ID, e.Record.Name)
	}
	for _, rec := range out.Unknown {
		fmt.Fprintf(w, "  unknown: seq %d drew student %d (%s) not in the roster\n", rec.Seq, rec.EntityID, rec.EntityName)
	}

	if !out.Consistent {
		return NewExitError(ExitFailure, "journal is inconsistent")
	}
	return nil
}
