package rooms

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyFor(t *testing.T) {
	require.Equal(t, "match7", KeyFor("7"))
	require.Equal(t, "matchfinal", KeyFor("final"))
}

func TestGetOrCreate(t *testing.T) {
	s := NewStore()

	state, created := s.GetOrCreate("match7")
	require.True(t, created)
	require.Empty(t, state)

	state, created = s.GetOrCreate("match7")
	require.False(t, created)
	require.Empty(t, state)
	require.Equal(t, 1, s.Len())
}

func TestMergeRetainsUnrelatedFields(t *testing.T) {
	s := NewStore()
	s.GetOrCreate("match7")

	s.Merge("match7", State{"remainingTime": Number(10)})
	s.Merge("match7", State{"isPlaying": Bool(true)})

	state, ok := s.Snapshot("match7")
	require.True(t, ok)
	require.Equal(t, State{
		"remainingTime": Number(10),
		"isPlaying":     Bool(true),
	}, state)
}

func TestMergeOverwritesSameNamedFields(t *testing.T) {
	s := NewStore()
	s.GetOrCreate("match7")

	s.Merge("match7", State{"remainingTime": Number(60)})
	s.Merge("match7", State{"remainingTime": Number(55)})

	state, _ := s.Snapshot("match7")
	require.Equal(t, Number(55), state["remainingTime"])
}

func TestMergeIntoAbsentRoomCreatesIt(t *testing.T) {
	s := NewStore()

	s.Merge("match9", State{"maxTime": Number(60)})

	state, ok := s.Snapshot("match9")
	require.True(t, ok)
	require.Equal(t, Number(60), state["maxTime"])
}

func TestAdminLastWriterWins(t *testing.T) {
	s := NewStore()
	s.GetOrCreate("match7")

	s.SetAdmin("match7", "session-a")
	s.SetAdmin("match7", "session-b")

	require.Equal(t, "session-b", s.Admin("match7"))
}

func TestSetAdminOnAbsentRoomIsNoop(t *testing.T) {
	s := NewStore()
	s.SetAdmin("match7", "session-a")
	require.Equal(t, "", s.Admin("match7"))
	require.Equal(t, 0, s.Len())
}

func TestClearAdminIfMatches(t *testing.T) {
	s := NewStore()
	s.GetOrCreate("match7")
	s.SetAdmin("match7", "session-a")

	require.False(t, s.ClearAdminIfMatches("match7", "session-b"))
	require.Equal(t, "session-a", s.Admin("match7"))

	require.True(t, s.ClearAdminIfMatches("match7", "session-a"))
	require.Equal(t, "", s.Admin("match7"))

	// Cleared, not reassigned, and not clearable twice.
	require.False(t, s.ClearAdminIfMatches("match7", "session-a"))
}

func TestRemoveIfEmpty(t *testing.T) {
	s := NewStore()
	s.GetOrCreate("match7")

	removed := s.RemoveIfEmpty("match7", func(string) bool { return true })
	require.False(t, removed)
	require.Equal(t, 1, s.Len())

	removed = s.RemoveIfEmpty("match7", func(string) bool { return false })
	require.True(t, removed)
	require.Equal(t, 0, s.Len())

	require.False(t, s.RemoveIfEmpty("match7", func(string) bool { return false }))
}

func TestSnapshotIncludesAdmin(t *testing.T) {
	s := NewStore()
	s.GetOrCreate("match7")
	s.Merge("match7", State{"remainingTime": Number(60)})
	s.SetAdmin("match7", "session-a")

	state, ok := s.Snapshot("match7")
	require.True(t, ok)
	require.Equal(t, String("session-a"), state["admin"])

	s.ClearAdminIfMatches("match7", "session-a")
	state, _ = s.Snapshot("match7")
	_, present := state["admin"]
	require.False(t, present)
}

func TestSnapshotIsIsolatedCopy(t *testing.T) {
	s := NewStore()
	s.GetOrCreate("match7")
	s.Merge("match7", State{"remainingTime": Number(60)})

	state, _ := s.Snapshot("match7")
	state["remainingTime"] = Number(1)
	state["injected"] = Bool(true)

	fresh, _ := s.Snapshot("match7")
	require.Equal(t, Number(60), fresh["remainingTime"])
	_, present := fresh["injected"]
	require.False(t, present)
}

func TestKeys(t *testing.T) {
	s := NewStore()
	s.GetOrCreate("match1")
	s.GetOrCreate("match2")
	require.ElementsMatch(t, []string{"match1", "match2"}, s.Keys())
}
