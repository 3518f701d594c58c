package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/rollcall/internal/roster"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Rarities []string
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                    `json:"valid"`
	Path     string                  `json:"path"`
	Students int                     `json:"students"`
	ByRarity map[roster.Rarity]int   `json:"by_rarity,omitempty"`
	Error    *roster.ValidationError `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <roster>",
		Short: "Validate a roster file",
		Long: `Decode and validate a roster without drawing.

Checks that IDs are unique and non-negative and that every rarity is
known. CUE rosters are also unified with the roster schema.

Exit codes:
  0 - Roster is valid
  1 - Roster is invalid
  2 - Command error (unreadable file, unknown extension, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Rarities, "rarities", nil, "extra rarity categories to accept")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	f := formatter(opts.RootOptions, cmd)

	f.VerboseLog("Loading roster %s", path)
	records, err := roster.LoadFile(path)
	if err == nil {
		rarities := make([]roster.Rarity, len(opts.Rarities))
		for i, r := range opts.Rarities {
			rarities[i] = roster.Rarity(r)
		}
		pool := roster.NewPool(roster.WithRarities(rarities...))
		if err = pool.Import(records); err == nil {
			return outputValidateSuccess(f, path, pool)
		}
	}

	var verr *roster.ValidationError
	if !errors.As(err, &verr) {
		_ = f.Error("E_LOAD", err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load roster", err)
	}
	return outputValidationError(f, path, verr)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(f *OutputFormatter, path string, pool *roster.Pool) error {
	byRarity := make(map[roster.Rarity]int)
	for _, e := range pool.ListAll() {
		byRarity[e.Rarity]++
	}

	result := ValidationResult{Valid: true, Path: path, Students: pool.Len(), ByRarity: byRarity}
	return f.Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %s: %d student(s)\n", path, result.Students)
		for _, r := range sortedRarities(byRarity) {
			fmt.Fprintf(w, "  %-12s %d\n", r, byRarity[r])
		}
	})
}

// outputValidationError outputs a roster validation failure.
func outputValidationError(f *OutputFormatter, path string, verr *roster.ValidationError) error {
	data := ValidationResult{Valid: false, Path: path, Error: verr}
	err := f.Fail("E_INVALID_ROSTER", verr.Error(), data, func(w io.Writer) {
		fmt.Fprintln(w, "✗ Validation failed")
		if verr.Field != "" {
			fmt.Fprintf(w, "  %s: %s\n", verr.Field, verr.Message)
		} else {
			fmt.Fprintf(w, "  %s\n", verr.Message)
		}
	})
	if err != nil {
		return err
	}

	// Validation failures = exit code 1
	return WrapExitError(ExitFailure, "validation failed", verr)
}
