package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/rollcall/internal/engine"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		switch ev.Type {
		case EventDrawComplete:
			fmt.Fprintf(&buf, "  [step %d] #%d drew %d %s (%s)\n", ev.Step, ev.Seq, ev.EntityID, ev.EntityName, ev.Rarity)
		case EventResetComplete:
			fmt.Fprintf(&buf, "  [step %d] #%d reset\n", ev.Step, ev.Seq)
		case EventDrawStart:
			// Implied by the draw outcome that follows.
		default:
			if ev.Code != "" {
				fmt.Fprintf(&buf, "  [step %d] %s %s\n", ev.Step, ev.Type, ev.Code)
			} else {
				fmt.Fprintf(&buf, "  [step %d] %s\n", ev.Step, ev.Type)
			}
		}
	}

	return buf.String()
}

// assertDrawOrder checks the entity IDs of all successful draws, across
// cycles, in order.
func assertDrawOrder(result *Result, assertion Assertion) error {
	got := result.DrawnIDs()
	if slices.Equal(got, assertion.IDs) {
		return nil
	}
	return &AssertionError{
		Type:     AssertDrawOrder,
		Expected: fmt.Sprintf("%v", assertion.IDs),
		Actual:   fmt.Sprintf("%v", got),
		Trace:    result.Trace,
	}
}

func assertHistoryCount(result *Result, assertion Assertion) error {
	if len(result.History) == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertHistoryCount,
		Expected: fmt.Sprintf("%d records", assertion.Count),
		Actual:   fmt.Sprintf("%d records", len(result.History)),
		Trace:    result.Trace,
	}
}

func assertAvailableCount(result *Result, assertion Assertion) error {
	if result.Available == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertAvailableCount,
		Expected: fmt.Sprintf("%d available", assertion.Count),
		Actual:   fmt.Sprintf("%d available", result.Available),
		Trace:    result.Trace,
	}
}

// assertError checks that the given step produced a failure with the code.
func assertError(result *Result, assertion Assertion) error {
	var codes []string
	for _, ev := range result.Trace {
		if ev.Step != assertion.Step || ev.Code == "" {
			continue
		}
		if ev.Code == assertion.Code {
			return nil
		}
		codes = append(codes, ev.Code)
	}

	actual := "no failure"
	if len(codes) > 0 {
		actual = strings.Join(codes, ", ")
	}
	return &AssertionError{
		Type:     AssertError,
		Expected: fmt.Sprintf("step %d fails with %s", assertion.Step, assertion.Code),
		Actual:   actual,
		Trace:    result.Trace,
	}
}

// assertUniqueDraws checks that no entity was drawn twice within a cycle.
// A reset starts a new cycle.
func assertUniqueDraws(result *Result) error {
	det := engine.NewRepeatDetector()
	cycle := 0
	for _, ev := range result.Trace {
		switch ev.Type {
		case EventResetComplete:
			cycle++
		case EventDrawComplete:
			if !det.Record(cycle, ev.EntityID, ev.Seq) {
				first, _ := det.Seen(cycle, ev.EntityID)
				return &AssertionError{
					Type:     AssertUniqueDraws,
					Expected: fmt.Sprintf("entity %d drawn once in cycle %d", ev.EntityID, cycle),
					Actual:   fmt.Sprintf("drawn at seq %d and seq %d", first, ev.Seq),
					Trace:    result.Trace,
				}
			}
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertDrawOrder:
			err = assertDrawOrder(result, assertion)
		case AssertHistoryCount:
			err = assertHistoryCount(result, assertion)
		case AssertAvailableCount:
			err = assertAvailableCount(result, assertion)
		case AssertError:
			err = assertError(result, assertion)
		case AssertUniqueDraws:
			err = assertUniqueDraws(result)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
