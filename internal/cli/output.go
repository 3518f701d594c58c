package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Process exit statuses. main passes GetExitCode(err) to os.Exit.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the input was bad or the pool ran out: exhausted pool, invalid roster, failed scenario, inconsistent journal
	ExitCommandError = 2 // the invocation was bad: flags, paths, unreadable database
)

// ExitError pairs an error with the exit status it should produce.
type ExitError struct {
	Code    int
	Message string
	Err     error // cause, may be nil
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return WrapExitError(code, message, nil)
}

// WrapExitError attaches an exit status and a message to err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the status carried by the first ExitError in err's
// chain. Any other error is a failure.
func GetExitCode(err error) int {
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as text or as CLIResponse JSON.
//
// Every JSON document a command prints goes through it, so the envelope and
// the session stamp stay uniform. Diagnostics go to ErrWriter and never mix
// with JSON on Writer.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; defaults to Writer
	Verbose   bool

	// SessionID is stamped on every response once a journal session is open.
	SessionID string

	// Lines writes one compact JSON document per line instead of indented
	// documents. Interactive sessions use it.
	Lines bool
}

// CLIResponse is the JSON envelope of every command result.
type CLIResponse struct {
	Status    string    `json:"status"`               // "ok" or "error"
	Data      any       `json:"data,omitempty"`       // result, also reported alongside an error
	Error     *CLIError `json:"error,omitempty"`      // error details
	SessionID string    `json:"session_id,omitempty"` // journal session, when one is open
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E_EXHAUSTED", "E_INVALID_ROSTER", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// JSON reports whether results are written as JSON.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// Encode writes v as one JSON document in the formatter's layout.
func (f *OutputFormatter) Encode(v any) error {
	enc := json.NewEncoder(f.Writer)
	if !f.Lines {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// Success writes an ok response, or data itself in text mode.
func (f *OutputFormatter) Success(data any) error {
	if f.JSON() {
		return f.Encode(CLIResponse{Status: "ok", Data: data, SessionID: f.SessionID})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Emit writes an ok response in JSON mode, or calls text otherwise.
func (f *OutputFormatter) Emit(data any, text func(w io.Writer)) error {
	if f.JSON() {
		return f.Success(data)
	}
	text(f.Writer)
	return nil
}

// Error writes an error response. Details are printed in text mode only
// when verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.JSON() {
		return f.Encode(CLIResponse{
			Status:    "error",
			Error:     &CLIError{Code: code, Message: message, Details: details},
			SessionID: f.SessionID,
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports an error together with the partial result the command still
// produced, such as the draws made before the pool ran out. In text mode
// text renders that result; it may be nil.
func (f *OutputFormatter) Fail(code, message string, data any, text func(w io.Writer)) error {
	if f.JSON() {
		return f.Encode(CLIResponse{
			Status:    "error",
			Data:      data,
			Error:     &CLIError{Code: code, Message: message},
			SessionID: f.SessionID,
		})
	}
	if text != nil {
		text(f.Writer)
		return nil
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	return nil
}

// VerboseLog writes a diagnostic line when verbose. It goes to ErrWriter
// if set, so JSON on Writer stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
