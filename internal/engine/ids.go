package engine

import "github.com/google/uuid"

// DrawIDGenerator assigns stable identifiers to draw records.
// UUIDv7Generator is the production implementation.
type DrawIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 draw IDs.
//
// UUIDv7 embeds a timestamp in the most significant bits, so journal rows
// sort by creation time even across sessions.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
