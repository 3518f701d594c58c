package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/rollcall/internal/engine"
	"github.com/roach88/rollcall/internal/roster"
)

// NewSessionCommand creates the session command.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DrawOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "session [roster]",
		Short: "Run an interactive draw session",
		Long: `Run a line-oriented draw session on stdin.

Commands:
  draw [n]              draw n students (default 1)
  reset                 make everyone drawable again
  policy <kind> [w]     switch policy, e.g. "policy weighted rare=2"
  history [n]           show the last n draws (default all)
  stats                 show session statistics
  list                  show the roster with drawn marks
  export [json|yaml]    print the roster
  add <name> [rarity]   add a student
  remove <id>           remove a student
  help                  show this list
  quit                  end the session

With --format json every engine notification and command result is
written as one JSON object per line.

Examples:
  rollcall session class.yaml --delay 2s
  rollcall session class.yaml --db rollcall.db
  rollcall session --db rollcall.db --resume latest`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(opts, cmd, args)
		},
	}

	addDrawFlags(cmd, opts)

	return cmd
}

func runSession(opts *DrawOptions, cmd *cobra.Command, args []string) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ds, err := openDrawSession(ctx, cmd, opts, args, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := ds.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	f := formatter(opts.RootOptions, cmd)
	f.SessionID = ds.sessionID
	f.Lines = true
	r := &repl{engine: ds.engine, f: f, w: f.Writer}
	unsubscribe := ds.engine.Subscribe(r)
	defer unsubscribe()

	if !f.JSON() {
		fmt.Fprintf(r.w, "%d students, %d available, policy %s. Type help for commands.\n",
			ds.engine.Pool().Len(), ds.engine.Pool().AvailableCount(), ds.engine.Policy())
		if ds.sessionID != "" {
			fmt.Fprintf(r.w, "Session: %s\n", ds.sessionID)
		}
	}

	return r.run(ctx, cmd.InOrStdin())
}

// errQuit ends the read loop.
var errQuit = errors.New("quit")

// repl executes session commands. It observes the engine to report draw
// outcomes and roster edits, standing in for a presentation layer.
type repl struct {
	engine *engine.Engine
	f      *OutputFormatter
	w      io.Writer
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	r.prompt()
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			err := r.exec(ctx, strings.Fields(line))
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				r.fail(err)
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		r.prompt()
	}
	return scanner.Err()
}

func (r *repl) prompt() {
	if !r.f.JSON() {
		fmt.Fprint(r.w, "> ")
	}
}

func (r *repl) exec(ctx context.Context, fields []string) error {
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "draw":
		n, err := optionalCount(args, 1)
		if err != nil {
			return err
		}
		for range n {
			// Outcomes are reported through the observer methods.
			if _, err := r.engine.Draw(ctx); err != nil {
				break
			}
		}
		return nil

	case "reset":
		r.engine.Reset()
		return nil

	case "policy":
		if len(args) == 0 {
			return r.result(r.engine.Policy().String(), func(w io.Writer) {
				fmt.Fprintf(w, "policy %s\n", r.engine.Policy())
			})
		}
		kind, err := engine.ParsePolicyKind(args[0])
		if err != nil {
			return err
		}
		weights, err := engine.ParseWeights(strings.Join(args[1:], ","))
		if err != nil {
			return err
		}
		if err := r.engine.SetPolicy(kind, weights); err != nil {
			return err
		}
		return r.result(r.engine.Policy().String(), func(w io.Writer) {
			fmt.Fprintf(w, "policy %s\n", r.engine.Policy())
		})

	case "history":
		n, err := optionalCount(args, 0)
		if err != nil {
			return err
		}
		history := r.engine.History(n)
		return r.result(history, func(w io.Writer) {
			if len(history) == 0 {
				fmt.Fprintln(w, "No draws in this cycle.")
			}
			for _, rec := range history {
				printDraw(w, rec)
			}
		})

	case "stats":
		stats := r.engine.Statistics()
		return r.result(stats, func(w io.Writer) { printStatistics(w, stats) })

	case "list":
		all := r.engine.Pool().ListAll()
		return r.result(all, func(w io.Writer) {
			for _, e := range all {
				mark := " "
				if e.IsDrawn {
					mark = "✓"
				}
				fmt.Fprintf(w, "%s %4d  %-24s %s\n", mark, e.ID, e.Name, e.Rarity)
			}
		})

	case "export":
		format := roster.FormatYAML
		if len(args) > 0 {
			f, err := roster.ParseFormat(args[0])
			if err != nil {
				return err
			}
			format = f
		}
		return roster.Encode(r.w, r.engine.Export(), format)

	case "add":
		if len(args) == 0 {
			return errors.New("usage: add <name> [rarity]")
		}
		rec := roster.Record{Name: strings.Join(args, " ")}
		if len(args) > 1 && isRarity(r.engine.Pool().Rarities(), args[len(args)-1]) {
			rec.Name = strings.Join(args[:len(args)-1], " ")
			rec.Rarity = roster.Rarity(args[len(args)-1])
		}
		// Reported through RosterChanged.
		_, err := r.engine.Add(rec)
		return err

	case "remove":
		if len(args) != 1 {
			return errors.New("usage: remove <id>")
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}
		if !r.engine.Remove(id) {
			return fmt.Errorf("no student with id %d: %w", id, roster.ErrNotFound)
		}
		return nil

	case "help", "?":
		fmt.Fprintln(r.w, "draw [n] | reset | policy <kind> [weights] | history [n] | stats | list | export [json|yaml] | add <name> [rarity] | remove <id> | quit")
		return nil

	case "quit", "exit":
		return errQuit

	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

// result writes a command result as a JSON line or as text.
func (r *repl) result(data any, text func(io.Writer)) error {
	return r.f.Emit(data, text)
}

func (r *repl) fail(err error) {
	if r.f.JSON() {
		_ = r.f.Error("E_COMMAND", err.Error(), nil)
		return
	}
	fmt.Fprintf(r.w, "error: %v\n", err)
}

func (r *repl) notify(n engine.Notification) bool {
	if !r.f.JSON() {
		return false
	}
	_ = r.f.Encode(n)
	return true
}

func (r *repl) DrawStarted(n engine.DrawStart) {
	if r.notify(engine.Notification{Kind: engine.KindDrawStart, DrawStart: &n}) {
		return
	}
	fmt.Fprintf(r.w, "drawing from %d...\n", n.AvailableCount)
}

func (r *repl) DrawCompleted(n engine.DrawComplete) {
	if r.notify(engine.Notification{Kind: engine.KindDrawComplete, DrawComplete: &n}) {
		return
	}
	printDraw(r.w, n.Record)
}

func (r *repl) DrawFailed(n engine.DrawError) {
	if r.notify(engine.Notification{Kind: engine.KindDrawError, DrawError: &n}) {
		return
	}
	switch n.Code {
	case engine.FailureExhausted:
		fmt.Fprintln(r.w, "Everyone has been drawn. Type reset to start over.")
	default:
		fmt.Fprintf(r.w, "draw failed [%s]: %v\n", n.Code, n.Reason)
	}
}

func (r *repl) ResetCompleted(n engine.ResetComplete) {
	if r.notify(engine.Notification{Kind: engine.KindResetComplete, ResetComplete: &n}) {
		return
	}
	fmt.Fprintf(r.w, "reset: %d students available\n", n.TotalCount)
}

func (r *repl) RosterChanged(n engine.RosterChange) {
	if r.notify(engine.Notification{Kind: engine.KindRosterChange, RosterChange: &n}) {
		return
	}
	switch n.Op {
	case engine.EditAdd:
		fmt.Fprintf(r.w, "added %s\n", n.Entity)
	case engine.EditRemove:
		fmt.Fprintf(r.w, "removed %d\n", n.Entity.ID)
	}
}

// optionalCount parses an optional positive count argument.
func optionalCount(args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid count %q", args[0])
	}
	return n, nil
}

func isRarity(allowed []roster.Rarity, s string) bool {
	return slices.Contains(allowed, roster.Rarity(s))
}

// sortedRarities orders the default categories first, then the rest by name.
func sortedRarities(m map[roster.Rarity]int) []roster.Rarity {
	keys := slices.Collect(maps.Keys(m))
	slices.SortFunc(keys, func(a, b roster.Rarity) int {
		ia, ib := slices.Index(roster.DefaultRarities, a), slices.Index(roster.DefaultRarities, b)
		switch {
		case ia >= 0 && ib >= 0:
			return ia - ib
		case ia >= 0:
			return -1
		case ib >= 0:
			return 1
		}
		return strings.Compare(string(a), string(b))
	})
	return keys
}

// printStatistics writes statistics in a fixed category order.
func printStatistics(w io.Writer, s engine.Statistics) {
	fmt.Fprintf(w, "Draws this cycle: %d\n", s.TotalDraws)
	fmt.Fprintf(w, "Drawn:            %d / %d\n", s.DrawnCount, s.TotalCount)
	fmt.Fprintf(w, "Available:        %d\n", s.AvailableCount)
	if s.MeanIntervalSeconds > 0 {
		fmt.Fprintf(w, "Mean interval:    %.1fs\n", s.MeanIntervalSeconds)
	}
	for _, r := range sortedRarities(s.RosterByRarity) {
		fmt.Fprintf(w, "  %-12s %d / %d drawn\n", r, s.DrawnByRarity[r], s.RosterByRarity[r])
	}
}
