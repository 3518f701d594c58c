package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rollcall/internal/store"
)

// journalDraws runs a journaled sequential draw and returns its session ID.
func journalDraws(t *testing.T, db string, n string) string {
	t.Helper()
	out, err := execute(t, NewDrawCommand(testOptions("json")), writeClassroom(t), "--db", db, "--policy", "sequential", "--seed", "5", "-n", n)
	require.NoError(t, err)
	return decodeResponse[DrawOutput](t, out).SessionID
}

func TestHistoryLatestSession(t *testing.T) {
	db := filepath.Join(t.TempDir(), "rollcall.db")
	id := journalDraws(t, db, "3")

	out, err := execute(t, NewHistoryCommand(testOptions("json")), "--db", db)
	require.NoError(t, err)

	resp := decodeResponse[HistoryOutput](t, out)
	assert.Equal(t, id, resp.Data.Session.ID)
	assert.Equal(t, "sequential", resp.Data.Session.Policy)
	require.NotNil(t, resp.Data.Session.Seed)
	assert.Equal(t, uint64(5), *resp.Data.Session.Seed)
	assert.Equal(t, []int{3, 2, 1}, drawnIDs(resp.Data.Draws), "most recent first")
}

func TestHistoryLimit(t *testing.T) {
	db := filepath.Join(t.TempDir(), "rollcall.db")
	id := journalDraws(t, db, "3")

	out, err := execute(t, NewHistoryCommand(testOptions("text")), "--db", db, "--session", id, "--limit", "1")
	require.NoError(t, err)

	assert.Contains(t, out, "Session "+id)
	assert.Contains(t, out, "Alan")
	assert.NotContains(t, out, "Grace")
}

func TestHistoryListSessions(t *testing.T) {
	db := filepath.Join(t.TempDir(), "rollcall.db")
	first := journalDraws(t, db, "1")
	second := journalDraws(t, db, "2")

	out, err := execute(t, NewHistoryCommand(testOptions("json")), "--db", db, "--list")
	require.NoError(t, err)

	resp := decodeResponse[[]store.SessionSummary](t, out)
	require.Len(t, resp.Data, 2)
	ids := []string{resp.Data[0].ID, resp.Data[1].ID}
	assert.ElementsMatch(t, []string{first, second}, ids)
	for _, s := range resp.Data {
		assert.Equal(t, 3, s.RosterSize)
	}
}

func TestHistoryErrors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "rollcall.db")

	t.Run("db required", func(t *testing.T) {
		_, err := execute(t, NewHistoryCommand(testOptions("text")))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("empty journal", func(t *testing.T) {
		_, err := execute(t, NewHistoryCommand(testOptions("text")), "--db", db)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no sessions journaled")
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := execute(t, NewHistoryCommand(testOptions("text")), "--db", db, "--session", "nope")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "session not found: nope")
	})
}
