package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/rollcall/internal/engine"
)

// DrawCmdOptions holds flags for the draw command.
type DrawCmdOptions struct {
	DrawOptions
	Count int
	All   bool
}

// DrawOutput is the draw command result.
type DrawOutput struct {
	SessionID string              `json:"session_id,omitempty"`
	Seed      *uint64             `json:"seed,omitempty"`
	Policy    string              `json:"policy"`
	Draws     []engine.DrawRecord `json:"draws"`
	Remaining int                 `json:"remaining"`
}

// NewDrawCommand creates the draw command.
func NewDrawCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DrawCmdOptions{DrawOptions: DrawOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "draw [roster]",
		Short: "Draw students from a roster",
		Long: `Draw one or more students without repeats.

The roster is a .json, .yaml or .cue file. With --db every draw is
journaled; --resume continues a journaled session where it stopped,
skipping everyone already drawn in the current cycle.

Exit codes:
  0 - All requested draws succeeded
  1 - The pool ran out or a draw was interrupted
  2 - Command error (invalid flags, unreadable roster, etc.)

Examples:
  rollcall draw class.yaml
  rollcall draw class.yaml -n 3 --policy weighted --weights rare=2
  rollcall draw class.yaml --all --policy sequential
  rollcall draw class.yaml --db rollcall.db --seed 42
  rollcall draw --db rollcall.db --resume latest -n 2`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDraw(opts, cmd, args)
		},
	}

	addDrawFlags(cmd, &opts.DrawOptions)
	cmd.Flags().IntVarP(&opts.Count, "count", "n", 1, "number of students to draw")
	cmd.Flags().BoolVar(&opts.All, "all", false, "draw until the pool is empty")
	cmd.MarkFlagsMutuallyExclusive("count", "all")

	return cmd
}

func runDraw(opts *DrawCmdOptions, cmd *cobra.Command, args []string) error {
	if !opts.All && opts.Count < 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--count must be positive, got %d", opts.Count))
	}

	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ds, err := openDrawSession(ctx, cmd, &opts.DrawOptions, args, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := ds.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	eng := ds.engine
	n := opts.Count
	if opts.All {
		n = eng.Pool().AvailableCount()
	}

	f := formatter(opts.RootOptions, cmd)
	f.SessionID = ds.sessionID
	w := f.Writer
	text := !f.JSON()
	out := DrawOutput{
		SessionID: ds.sessionID,
		Seed:      ds.seed,
		Policy:    eng.Policy().String(),
		Draws:     []engine.DrawRecord{},
	}

	var failure error
	for range n {
		res, err := eng.Draw(ctx)
		if err != nil {
			failure = err
			break
		}
		out.Draws = append(out.Draws, res.Record)
		if text {
			printDraw(w, res.Record)
		}
	}
	out.Remaining = eng.Pool().AvailableCount()

	if text {
		if len(out.Draws) == 0 && failure == nil {
			fmt.Fprintln(w, "Nobody left to draw.")
		}
		fmt.Fprintf(w, "%d drawn, %d remaining\n", len(out.Draws), out.Remaining)
		if ds.sessionID != "" {
			fmt.Fprintf(w, "Session: %s\n", ds.sessionID)
		}
	}

	if failure != nil {
		return drawFailure(f, out, failure)
	}

	if !text {
		return f.Success(out)
	}
	return nil
}

// drawFailure reports a failed draw with the draws made before it and
// returns its exit error.
func drawFailure(f *OutputFormatter, out DrawOutput, failure error) error {
	code, msg := "E_DRAW_FAILED", failure.Error()
	switch engine.FailureCodeOf(failure) {
	case engine.FailureExhausted:
		code, msg = "E_EXHAUSTED", fmt.Sprintf("pool exhausted after %d draw(s)", len(out.Draws))
	case engine.FailureCancelled:
		code, msg = "E_CANCELLED", "draw interrupted"
	}

	if err := f.Fail(code, msg, out, nil); err != nil {
		return err
	}
	return WrapExitError(ExitFailure, msg, failure)
}

// printDraw writes one draw as a text line.
func printDraw(w io.Writer, rec engine.DrawRecord) {
	fmt.Fprintf(w, "#%-4d %-24s %-10s %d left\n", rec.Seq, rec.EntityName, rec.Rarity, rec.RemainingCountAfter)
}
