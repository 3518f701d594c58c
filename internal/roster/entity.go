package roster

import (
	"fmt"
	"time"
)

// Rarity is a closed category label used to drive weighting.
type Rarity string

const (
	Ordinary  Rarity = "ordinary"
	Rare      Rarity = "rare"
	SuperRare Rarity = "super-rare"
)

// DefaultRarities is the conventional category set, most common first.
var DefaultRarities = []Rarity{Ordinary, Rare, SuperRare}

// Rarity thresholds for synthetic generation. The resulting 1%/9%/90% split
// is relied on by expected-value tests; do not tune.
const (
	superRareThreshold = 0.01
	rareThreshold      = 0.10
)

// RarityFor maps a uniform value u in [0, 1) to a rarity.
func RarityFor(u float64) Rarity {
	switch {
	case u < superRareThreshold:
		return SuperRare
	case u < rareThreshold:
		return Rare
	default:
		return Ordinary
	}
}

// Entity is one drawable roster member.
type Entity struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	AvatarRef string    `json:"avatarRef"`
	Rarity    Rarity    `json:"rarity"`
	IsDrawn   bool      `json:"isDrawn"`
	DrawnAt   time.Time `json:"drawnAt,omitzero"`
}

// Record returns the entity in interchange shape, dropping drawn state.
func (e Entity) Record() Record {
	return Record{
		ID:        e.ID,
		Name:      e.Name,
		AvatarRef: e.AvatarRef,
		Rarity:    e.Rarity,
	}
}

// String renders the entity for logs and text output.
func (e Entity) String() string {
	return fmt.Sprintf("#%d %s (%s)", e.ID, e.Name, e.Rarity)
}

// Record is the import/export shape of an entity.
// A zero ID asks the pool to assign the next unused ID; empty fields are
// defaulted on import.
type Record struct {
	ID        int    `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	AvatarRef string `json:"avatarRef,omitempty" yaml:"avatarRef,omitempty"`
	Rarity    Rarity `json:"rarity,omitempty" yaml:"rarity,omitempty"`
}

// defaultName is the synthetic display label for an entity.
func defaultName(id int) string {
	return fmt.Sprintf("Student %d", id)
}

// defaultAvatar is the synthetic avatar reference for an entity.
func defaultAvatar(id int) string {
	return fmt.Sprintf("avatars/student-%d.svg", id)
}
