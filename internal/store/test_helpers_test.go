package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/rollcall/internal/engine"
	"github.com/roach88/rollcall/internal/roster"
	"github.com/roach88/rollcall/internal/testutil"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRoster() []roster.Record {
	return []roster.Record{
		{ID: 1, Name: "Ada Lovelace", AvatarRef: "avatars/ada.png", Rarity: roster.Ordinary},
		{ID: 2, Name: "Grace Hopper", AvatarRef: "avatars/grace.png", Rarity: roster.SuperRare},
		{ID: 3, Name: "Alan Turing", AvatarRef: "avatars/alan.png", Rarity: roster.Rare},
	}
}

func beginTestSession(t *testing.T, s *Store, id string) Session {
	t.Helper()
	seed := uint64(42)
	sess := Session{
		ID:        id,
		StartedAt: testutil.Epoch,
		Policy:    "uniform",
		Seed:      &seed,
	}
	if err := s.BeginSession(t.Context(), sess, testRoster()); err != nil {
		t.Fatalf("BeginSession() failed: %v", err)
	}
	sess.RosterSize = len(testRoster())
	hash, err := roster.Fingerprint(testRoster())
	if err != nil {
		t.Fatalf("Fingerprint() failed: %v", err)
	}
	sess.RosterHash = hash
	return sess
}

func testDraw(id string, seq int64, entityID int, remaining int) engine.DrawRecord {
	return engine.DrawRecord{
		Seq:                 seq,
		ID:                  id,
		EntityID:            entityID,
		EntityName:          "Student",
		Rarity:              roster.Ordinary,
		Timestamp:           testutil.Epoch.Add(time.Duration(seq) * time.Second),
		Policy:              engine.Uniform,
		RemainingCountAfter: remaining,
	}
}

// journaledEngine wires an engine over the test roster to a journal.
func journaledEngine(t *testing.T, s *Store, sessionID string, opts ...engine.Option) (*engine.Engine, *Journal) {
	t.Helper()
	clock := testutil.NewStepClock(time.Second)
	pool := roster.NewPool(roster.WithClock(clock.Now))
	if err := pool.Import(testRoster()); err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
	base := []engine.Option{engine.WithIDGenerator(testutil.NewSequentialIDGenerator(sessionID))}
	e := engine.New(pool, append(base, opts...)...)
	j := s.Journal(sessionID, WithJournalClock(clock.Now))
	e.Subscribe(j)
	return e, j
}
