package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rollcall/internal/engine"
	"github.com/roach88/rollcall/internal/roster"
)

// Scenario defines a draw scenario: a roster, a deterministic random
// script, a sequence of steps and assertions over the result.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Roster is an inline roster. Exactly one of Roster, RosterFile and
	// Count must be set.
	Roster []roster.Record `yaml:"roster,omitempty"`

	// RosterFile is a roster file (json, yaml or cue), relative to the
	// scenario file.
	RosterFile string `yaml:"roster_file,omitempty"`

	// Count generates a synthetic roster of this size.
	Count int `yaml:"count,omitempty"`

	// Rarities extends the accepted rarity set.
	Rarities []roster.Rarity `yaml:"rarities,omitempty"`

	// Random is the scripted selection sequence, cycled. When empty,
	// selection uses a PCG source seeded with Seed.
	Random []float64 `yaml:"random,omitempty"`

	// Seed seeds rarity generation, and selection when Random is empty.
	Seed uint64 `yaml:"seed,omitempty"`

	// Policy is the initial policy. Defaults to uniform.
	Policy *PolicyStep `yaml:"policy,omitempty"`

	// Steps run in order. A failing step is recorded in the trace and the
	// run continues.
	Steps []Step `yaml:"steps"`

	// Assertions validate the run.
	Assertions []Assertion `yaml:"assertions"`
}

// PolicyStep selects a policy.
type PolicyStep struct {
	Kind    string                    `yaml:"kind"`
	Weights map[roster.Rarity]float64 `yaml:"weights,omitempty"`
}

// Step is one scenario action. Exactly one field must be set.
type Step struct {
	// Draw performs this many draws.
	Draw int `yaml:"draw,omitempty"`

	// Reset resets the pool.
	Reset bool `yaml:"reset,omitempty"`

	// Policy switches the active policy.
	Policy *PolicyStep `yaml:"policy,omitempty"`

	// Add adds an entity.
	Add *roster.Record `yaml:"add,omitempty"`

	// Remove removes the entity with this ID.
	Remove int `yaml:"remove,omitempty"`
}

// kind names the single action set on the step, or "" if none or several.
func (s Step) kind() string {
	var kinds []string
	if s.Draw != 0 {
		kinds = append(kinds, "draw")
	}
	if s.Reset {
		kinds = append(kinds, "reset")
	}
	if s.Policy != nil {
		kinds = append(kinds, "policy")
	}
	if s.Add != nil {
		kinds = append(kinds, "add")
	}
	if s.Remove != 0 {
		kinds = append(kinds, "remove")
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Assertion validates the outcome of a run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "draw_order": successful draws, across cycles, equal IDs
	// - "history_count": final history length equals Count
	// - "available_count": final available count equals Count
	// - "error": step Step failed with Code
	// - "unique_draws": no entity was drawn twice within a cycle
	Type string `yaml:"type"`

	// IDs is the expected draw order (draw_order).
	IDs []int `yaml:"ids,omitempty"`

	// Count is the expected count (history_count, available_count).
	Count int `yaml:"count,omitempty"`

	// Step is the zero-based step index (error).
	Step int `yaml:"step,omitempty"`

	// Code is the expected failure code (error).
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertDrawOrder      = "draw_order"
	AssertHistoryCount   = "history_count"
	AssertAvailableCount = "available_count"
	AssertError          = "error"
	AssertUniqueDraws    = "unique_draws"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
//
// A relative RosterFile is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.RosterFile != "" && !filepath.IsAbs(scenario.RosterFile) {
		scenario.RosterFile = filepath.Join(filepath.Dir(path), scenario.RosterFile)
	}
	if scenario.RosterFile != "" {
		if _, err := os.Stat(scenario.RosterFile); err != nil {
			return nil, fmt.Errorf("invalid scenario: roster file not found: %s", scenario.RosterFile)
		}
	}

	return scenario, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	sources := 0
	if s.Roster != nil {
		sources++
	}
	if s.RosterFile != "" {
		sources++
	}
	if s.Count != 0 {
		sources++
	}
	if sources != 1 {
		return fmt.Errorf("exactly one of roster, roster_file or count is required")
	}
	if s.Count < 0 {
		return fmt.Errorf("count must be non-negative")
	}

	for i, u := range s.Random {
		if u < 0 || u >= 1 {
			return fmt.Errorf("random[%d]: %v is outside [0,1)", i, u)
		}
	}

	if s.Policy != nil {
		if _, err := engine.ParsePolicyKind(s.Policy.Kind); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.kind() == "" {
			return fmt.Errorf("steps[%d]: exactly one of draw, reset, policy, add, remove is required", i)
		}
		if step.Draw < 0 {
			return fmt.Errorf("steps[%d]: draw must be positive", i)
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, len(s.Steps)); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, steps int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertDrawOrder:
		if a.IDs == nil {
			return fmt.Errorf("assertions[%d]: ids list is required for draw_order", index)
		}
	case AssertHistoryCount, AssertAvailableCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertError:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for error", index)
		}
		if a.Step < 0 || a.Step >= steps {
			return fmt.Errorf("assertions[%d]: step %d out of range [0,%d)", index, a.Step, steps)
		}
	case AssertUniqueDraws:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
