package engine

import (
	"time"

	"github.com/roach88/rollcall/internal/roster"
)

// DrawRecord is the immutable audit entry for one completed draw.
type DrawRecord struct {
	// Seq orders records and resets within an engine lifetime.
	Seq int64 `json:"seq"`

	// ID is a globally unique identifier for journaling.
	ID string `json:"id"`

	EntityID   int           `json:"entityId"`
	EntityName string        `json:"entityName"`
	Rarity     roster.Rarity `json:"rarity"`

	// Timestamp equals the entity's DrawnAt.
	Timestamp time.Time `json:"timestamp"`

	Policy              PolicyKind `json:"policyUsed"`
	RemainingCountAfter int        `json:"remainingCountAfter"`
}

// Statistics summarizes the current cycle.
type Statistics struct {
	TotalDraws     int `json:"totalDraws"`
	TotalCount     int `json:"totalCount"`
	DrawnCount     int `json:"drawnCount"`
	AvailableCount int `json:"availableCount"`

	// DrawnByRarity counts drawn entities per category.
	DrawnByRarity map[roster.Rarity]int `json:"drawnByRarity"`

	// RosterByRarity counts the whole roster per category.
	RosterByRarity map[roster.Rarity]int `json:"rosterByRarity"`

	// MeanIntervalSeconds is the mean gap between consecutive draws;
	// 0 with fewer than two records.
	MeanIntervalSeconds float64 `json:"meanIntervalSeconds"`
}

// computeStatistics derives statistics from chronological history and a
// roster snapshot.
func computeStatistics(history []DrawRecord, all []roster.Entity, rarities []roster.Rarity) Statistics {
	stats := Statistics{
		TotalDraws:     len(history),
		TotalCount:     len(all),
		DrawnByRarity:  make(map[roster.Rarity]int, len(rarities)),
		RosterByRarity: make(map[roster.Rarity]int, len(rarities)),
	}
	for _, r := range rarities {
		stats.DrawnByRarity[r] = 0
		stats.RosterByRarity[r] = 0
	}

	for _, e := range all {
		stats.RosterByRarity[e.Rarity]++
		if e.IsDrawn {
			stats.DrawnCount++
			stats.DrawnByRarity[e.Rarity]++
		}
	}
	stats.AvailableCount = stats.TotalCount - stats.DrawnCount

	if n := len(history); n >= 2 {
		span := history[n-1].Timestamp.Sub(history[0].Timestamp)
		stats.MeanIntervalSeconds = span.Seconds() / float64(n-1)
	}
	return stats
}
