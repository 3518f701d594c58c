// Package engine implements the draw allocation engine.
//
// The engine turns "draw one" requests into a single policy-consistent
// selection from a roster.Pool, guards against overlapping draws, keeps the
// draw history for the current cycle and notifies observers of every
// lifecycle transition.
//
// ARCHITECTURE:
//
// State Machine:
// Each engine is either Idle or Drawing. Draw flips an atomic busy flag
// before doing anything else and a deferred store clears it, so every exit
// path (success, error, panic in a policy or observer) returns to Idle.
// A Draw issued while another is in flight fails with ErrBusy.
//
// Draw Flow:
//  1. Snapshot the available entities and the pool generation
//  2. Notify DrawStarted with the available count
//  3. Apply the active policy to the snapshot
//  4. Wait out the presentation Gap (optional, cancellable via ctx)
//  5. Commit through Pool.CommitDraw, which re-validates the generation and
//     the entity's undrawn status under the pool lock
//  6. Append the DrawRecord and notify DrawCompleted
//
// Failures at any step notify DrawFailed and leave the pool untouched.
// There is no partially committed state.
//
// Reset During a Draw:
// Reset is allowed at any time. It advances the pool generation, so a draw
// parked in its Gap fails at commit with ErrCommitConflict rather than
// resurrecting a drawn entity into the fresh cycle.
//
// Ownership:
// The pool is the only writer of entity fields; the engine never mutates an
// entity directly. The engine exclusively owns the history and the active
// policy. Policies are immutable values swapped atomically, so a draw never
// observes a half-updated policy.
//
// Notifications are delivered synchronously on the caller's goroutine.
// Observers must defer slow work themselves.
package engine
