package roster

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/rollcall/internal/random"
)

// Pool is the source of truth for roster membership and drawn status.
//
// Thread-safety: all methods are safe for concurrent use. Mutations are
// serialized by an internal lock; reads return copies.
type Pool struct {
	mu sync.RWMutex

	entities  []Entity    // insertion order
	index     map[int]int // id -> position in entities
	available int

	generation  uint64
	lastDrawnAt time.Time // DrawnAt of the latest draw in this cycle

	rng      random.Source
	now      func() time.Time
	rarities []Rarity
}

// Option configures a Pool.
type Option func(*Pool)

// WithRandom sets the source used for synthetic rarity assignment.
func WithRandom(src random.Source) Option {
	return func(p *Pool) {
		p.rng = src
	}
}

// WithClock sets the time source used to stamp DrawnAt.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		p.now = now
	}
}

// WithRarities extends the accepted category set beyond DefaultRarities.
// Synthetic generation still only produces the default categories.
func WithRarities(extra ...Rarity) Option {
	return func(p *Pool) {
		for _, r := range extra {
			if r != "" && !slices.Contains(p.rarities, r) {
				p.rarities = append(p.rarities, r)
			}
		}
	}
}

// NewPool creates an empty pool.
func NewPool(opts ...Option) *Pool {
	p := &Pool{
		index:    make(map[int]int),
		rng:      random.Default(),
		now:      time.Now,
		rarities: slices.Clone(DefaultRarities),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Initialize replaces the roster with count synthetic entities numbered
// 1..count, with rarities drawn from the 1%/9%/90% distribution.
func (p *Pool) Initialize(count int) error {
	if count < 0 {
		return validationErrorf("count", "must be non-negative, got %d", count)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	entities := make([]Entity, count)
	for i := range entities {
		id := i + 1
		entities[i] = Entity{
			ID:        id,
			Name:      defaultName(id),
			AvatarRef: defaultAvatar(id),
			Rarity:    RarityFor(p.rng.Float64()),
		}
	}
	p.replaceLocked(entities)
	return nil
}

// Import replaces the roster with the given records.
//
// IDs must be unique and non-negative; a zero ID is replaced by the next
// unused ID. Empty names and avatar refs are defaulted, an empty rarity is
// generated. Any violation returns a *ValidationError and leaves the roster
// unchanged.
func (p *Pool) Import(records []Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[int]int, len(records))
	maxID := 0
	for i, rec := range records {
		if rec.ID < 0 {
			return validationErrorf(fmt.Sprintf("records[%d].id", i), "must be positive, got %d", rec.ID)
		}
		if rec.ID == 0 {
			continue
		}
		if prev, dup := seen[rec.ID]; dup {
			return validationErrorf(fmt.Sprintf("records[%d].id", i), "duplicate id %d (first at records[%d])", rec.ID, prev)
		}
		seen[rec.ID] = i
		maxID = max(maxID, rec.ID)
	}

	entities := make([]Entity, 0, len(records))
	for i, rec := range records {
		if rec.ID == 0 {
			maxID++
			rec.ID = maxID
		}
		e, err := p.entityFromRecord(rec)
		if err != nil {
			err.Field = fmt.Sprintf("records[%d].%s", i, err.Field)
			return err
		}
		entities = append(entities, e)
	}

	p.replaceLocked(entities)
	return nil
}

// Export returns the roster in interchange shape. Drawn state is excluded.
func (p *Pool) Export() []Record {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Record, len(p.entities))
	for i, e := range p.entities {
		out[i] = e.Record()
	}
	return out
}

// ListAll returns a copy of the full roster in insertion order.
func (p *Pool) ListAll() []Entity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.entities)
}

// ListAvailable returns the undrawn entities in insertion order.
func (p *Pool) ListAvailable() []Entity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.filterLocked(false)
}

// ListDrawn returns the drawn entities in insertion order.
func (p *Pool) ListDrawn() []Entity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.filterLocked(true)
}

// AvailableSnapshot returns the undrawn entities together with the
// generation they were read under. Pass the generation to CommitDraw.
func (p *Pool) AvailableSnapshot() ([]Entity, uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.filterLocked(false), p.generation
}

// FindByID returns the entity with the given ID. A missing ID is a normal
// outcome reported through the boolean.
func (p *Pool) FindByID(id int) (Entity, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	pos, ok := p.index[id]
	if !ok {
		return Entity{}, false
	}
	return p.entities[pos], true
}

// Len returns the roster size.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entities)
}

// AvailableCount returns the number of undrawn entities.
func (p *Pool) AvailableCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.available
}

// Rarities returns the accepted category set.
func (p *Pool) Rarities() []Rarity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.rarities)
}

// MarkDrawn transitions one entity from undrawn to drawn and stamps DrawnAt.
// Unknown IDs fail with ErrNotFound; double marking fails with
// ErrAlreadyDrawn.
func (p *Pool) MarkDrawn(id int) (Entity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.markLocked(id)
}

// CommitDraw is MarkDrawn guarded by a generation check: it fails with
// ErrStaleGeneration if the generation moved since the snapshot the
// selection was made from. It also returns the available count after the
// mutation.
func (p *Pool) CommitDraw(id int, generation uint64) (Entity, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// An absent entity reports ErrNotFound; a present one under a newer
	// generation may be a reset entity or a removed one added back.
	if _, ok := p.index[id]; ok && generation != p.generation {
		return Entity{}, p.available, fmt.Errorf("commit %d: %w", id, ErrStaleGeneration)
	}
	e, err := p.markLocked(id)
	if err != nil {
		return Entity{}, p.available, err
	}
	return e, p.available, nil
}

// ResetAll clears drawn state on every entity and starts a new generation.
// Idempotent with respect to entity state.
func (p *Pool) ResetAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.entities {
		p.entities[i].IsDrawn = false
		p.entities[i].DrawnAt = time.Time{}
	}
	p.available = len(p.entities)
	p.lastDrawnAt = time.Time{}
	p.generation++
}

// Add appends a new undrawn entity. A zero ID is replaced by the next unused
// ID. Returns the stored entity.
func (p *Pool) Add(rec Record) (Entity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case rec.ID < 0:
		return Entity{}, validationErrorf("id", "must be positive, got %d", rec.ID)
	case rec.ID == 0:
		rec.ID = p.nextIDLocked()
	default:
		if _, exists := p.index[rec.ID]; exists {
			return Entity{}, validationErrorf("id", "duplicate id %d", rec.ID)
		}
	}

	e, verr := p.entityFromRecord(rec)
	if verr != nil {
		return Entity{}, verr
	}

	p.index[e.ID] = len(p.entities)
	p.entities = append(p.entities, e)
	p.available++
	return e, nil
}

// Remove deletes the entity with the given ID and advances the generation.
// Returns false if absent.
func (p *Pool) Remove(id int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.index[id]
	if !ok {
		return false
	}
	if !p.entities[pos].IsDrawn {
		p.available--
	}
	p.entities = slices.Delete(p.entities, pos, pos+1)
	p.reindexLocked()
	p.generation++
	return true
}

func (p *Pool) markLocked(id int) (Entity, error) {
	pos, ok := p.index[id]
	if !ok {
		return Entity{}, fmt.Errorf("mark drawn %d: %w", id, ErrNotFound)
	}
	e := &p.entities[pos]
	if e.IsDrawn {
		return Entity{}, fmt.Errorf("mark drawn %d: %w", id, ErrAlreadyDrawn)
	}

	now := p.now()
	if now.Before(p.lastDrawnAt) {
		now = p.lastDrawnAt
	}
	e.IsDrawn = true
	e.DrawnAt = now
	p.lastDrawnAt = now
	p.available--
	return *e, nil
}

// entityFromRecord validates and defaults a record whose ID is already set.
func (p *Pool) entityFromRecord(rec Record) (Entity, *ValidationError) {
	name := norm.NFC.String(strings.TrimSpace(rec.Name))
	if name == "" {
		name = defaultName(rec.ID)
	}

	avatar := strings.TrimSpace(rec.AvatarRef)
	if avatar == "" {
		avatar = defaultAvatar(rec.ID)
	}

	rarity := rec.Rarity
	switch {
	case rarity == "":
		rarity = RarityFor(p.rng.Float64())
	case !slices.Contains(p.rarities, rarity):
		return Entity{}, validationErrorf("rarity", "unknown rarity %q (allowed: %v)", rarity, p.rarities)
	}

	return Entity{
		ID:        rec.ID,
		Name:      name,
		AvatarRef: avatar,
		Rarity:    rarity,
	}, nil
}

func (p *Pool) replaceLocked(entities []Entity) {
	p.entities = entities
	p.available = len(entities)
	p.lastDrawnAt = time.Time{}
	p.generation++
	p.reindexLocked()
}

func (p *Pool) reindexLocked() {
	p.index = make(map[int]int, len(p.entities))
	for i, e := range p.entities {
		p.index[e.ID] = i
	}
}

func (p *Pool) nextIDLocked() int {
	next := 1
	for _, e := range p.entities {
		next = max(next, e.ID+1)
	}
	return next
}

func (p *Pool) filterLocked(drawn bool) []Entity {
	out := make([]Entity, 0, len(p.entities))
	for _, e := range p.entities {
		if e.IsDrawn == drawn {
			out = append(out, e)
		}
	}
	return out
}
