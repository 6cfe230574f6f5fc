package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webnerd/internal/lattice"
	"webnerd/internal/webtypes"
)

func testLattice(t *testing.T) *lattice.Lattice {
	t.Helper()
	l := lattice.New(t.TempDir(), "find the nearest store")
	_, err := l.CreateNewTask("task", []webtypes.PlanStep{
		{Description: "open locator", Kind: webtypes.StepAction},
		{Description: "report hours", Kind: webtypes.StepObservation},
	})
	require.NoError(t, err)
	require.NoError(t, l.MarkStepCompleted("opened"))
	return l
}

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "episodes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestSaveAndListEpisodes(t *testing.T) {
	a := openTestArchive(t)
	l := testLattice(t)

	require.NoError(t, a.SaveEpisode(context.Background(), l, "completed"))

	episodes, err := a.ListEpisodes(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, episodes, 1)

	ep := episodes[0]
	assert.Equal(t, l.SessionID, ep.SessionID)
	assert.Equal(t, "completed", ep.Status)
	assert.Equal(t, 1, ep.Steps)
	assert.NotZero(t, ep.Events, "event count missing")
}

func TestSaveEpisodeIdempotent(t *testing.T) {
	a := openTestArchive(t)
	l := testLattice(t)

	require.NoError(t, a.SaveEpisode(context.Background(), l, "paused"))
	require.NoError(t, a.SaveEpisode(context.Background(), l, "completed"))

	episodes, err := a.ListEpisodes(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, episodes, 1, "re-archive duplicated the episode")
	assert.Equal(t, "completed", episodes[0].Status, "status not updated")
}

func TestLoadEpisodeRoundTrip(t *testing.T) {
	a := openTestArchive(t)
	l := testLattice(t)

	require.NoError(t, a.SaveEpisode(context.Background(), l, "completed"))

	loaded, err := a.LoadEpisode(context.Background(), l.SessionID)
	require.NoError(t, err)
	assert.Equal(t, l.SessionID, loaded.SessionID)
	assert.Equal(t, l.Goal, loaded.Goal)
	assert.Len(t, loaded.EventLog, len(l.EventLog))

	task, ok := loaded.GetActiveTask()
	require.True(t, ok, "active task lost")
	assert.Equal(t, 1, task.CurrentStep)
}

func TestLoadEpisodeMissing(t *testing.T) {
	a := openTestArchive(t)
	_, err := a.LoadEpisode(context.Background(), "nope")
	require.Error(t, err, "missing episode should error")
}
