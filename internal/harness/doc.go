// Package harness runs scripted draw scenarios against the engine.
//
// A scenario fixes the roster, the random sequence that drives selection
// and a list of steps, then asserts over the outcome. The trace of every
// run is compared against a golden file, so a change in selection order,
// timestamps or failure codes shows up as a diff.
//
// # Scenario Format
//
//	name: weighted_switch
//	description: "Switching to weighted mid-session keeps the no-repeat guarantee"
//	roster:
//	  - {id: 1, name: Ada, rarity: ordinary}
//	  - {id: 2, name: Grace, rarity: rare}
//	random: [0.1, 0.9]
//	steps:
//	  - draw: 1
//	  - policy: {kind: weighted, weights: {rare: 50}}
//	  - draw: 2
//	assertions:
//	  - type: draw_order
//	    ids: [1, 2]
//	  - type: error
//	    step: 2
//	    code: EXHAUSTED_POOL
//
// Exactly one of roster, roster_file and count supplies the roster. A step
// sets exactly one of draw, reset, policy, add and remove. Failing steps
// are traced and the run continues.
//
// # Assertion Types
//
//   - draw_order: successful draws, across cycles, have these entity IDs
//   - history_count: final history length
//   - available_count: final available count
//   - error: a step failed with the given code
//   - unique_draws: no entity was drawn twice between resets
//
// # Deterministic Testing
//
// The pool clock starts at testutil.Epoch and ticks one second per
// timestamp. Draw IDs come from testutil.SequentialIDGenerator. Selection
// reads the scenario's random list in a cycle, or a PCG source seeded
// with seed when the list is empty.
package harness
