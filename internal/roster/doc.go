// Package roster owns the pool of drawable entities and their drawn state.
//
// The Pool is the single writer for every entity field. Callers only ever see
// copies: ListAll, ListAvailable, FindByID and friends return values, so no
// reference held outside the pool can break its invariants.
//
// # Invariants
//
//   - Entity IDs are unique and positive for the lifetime of a roster load.
//   - An entity is either undrawn (zero DrawnAt) or drawn with DrawnAt set.
//   - DrawnAt never decreases across the draws of one cycle.
//   - |drawn| + |available| == |all| after every operation.
//
// # Generations
//
// Every ResetAll, Initialize, Import and Remove advances the pool
// generation. A caller that selected an entity under one generation commits
// it with CommitDraw, which rejects the commit if the generation moved in
// between. This is how a draw that straddles a reset is detected as stale,
// and how an entity removed and added back under the same ID is told apart
// from the one that was selected. Add leaves the generation alone.
//
// # Import / export
//
// Record is the plain interchange shape (id, name, avatarRef, rarity).
// Export deliberately omits drawn state: an exported roster is always a
// fresh, resettable roster. The codec in codec.go reads JSON, YAML and CUE
// roster files and writes JSON and YAML.
package roster
