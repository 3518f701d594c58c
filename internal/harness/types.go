package harness

import "github.com/roach88/rollcall/internal/engine"

// Trace event types.
const (
	EventDrawStart     = "draw-start"
	EventDrawComplete  = "draw-complete"
	EventDrawError     = "draw-error"
	EventResetComplete = "reset-complete"
	EventPolicy        = "policy"
	EventPolicyError   = "policy-error"
	EventAdd           = "add"
	EventAddError      = "add-error"
	EventRemove        = "remove"
	EventRemoveError   = "remove-error"
)

// Failure codes for non-draw steps. Draw failures use engine.FailureCode.
const (
	CodeInvalidPolicy = "INVALID_POLICY"
	CodeValidation    = "VALIDATION"
	CodeNotFound      = "NOT_FOUND"
)

// TraceEvent is one observable outcome of a scenario step.
type TraceEvent struct {
	Step       int    `json:"step"`
	Type       string `json:"type"`
	Seq        int64  `json:"seq,omitempty"`
	EntityID   int    `json:"entity_id,omitempty"`
	EntityName string `json:"entity_name,omitempty"`
	Rarity     string `json:"rarity,omitempty"`
	Policy     string `json:"policy,omitempty"`
	Available  *int   `json:"available,omitempty"`
	Remaining  *int   `json:"remaining,omitempty"`
	Total      *int   `json:"total,omitempty"`
	Code       string `json:"code,omitempty"`
	At         string `json:"at,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions hold.
	Pass bool `json:"pass"`

	// Trace contains every step outcome in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Draws holds every committed draw across all cycles, in order.
	Draws []engine.DrawRecord `json:"draws"`

	// History is the engine history at the end of the run, most recent first.
	History []engine.DrawRecord `json:"history"`

	// Available is the final available count.
	Available int `json:"available"`

	// Statistics is the final engine statistics.
	Statistics engine.Statistics `json:"statistics"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Draws:   []engine.DrawRecord{},
		History: []engine.DrawRecord{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addEvent(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}

// DrawnIDs returns the entity IDs of Draws in order.
func (r *Result) DrawnIDs() []int {
	ids := make([]int, len(r.Draws))
	for i, d := range r.Draws {
		ids[i] = d.EntityID
	}
	return ids
}

func intPtr(v int) *int {
	return &v
}
