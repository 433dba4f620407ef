package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/metad/internal/fault"
)

func TestQuery_Empty(t *testing.T) {
	s := createTestStore(t)

	paths, err := s.Query(bg, "project", "Alpha")
	require.NoError(t, err)
	assert.NotNil(t, paths, "should return empty slice, not nil")
	assert.Empty(t, paths)
}

func TestQuery_DeterministicOrdering(t *testing.T) {
	s := createTestStore(t)

	for _, p := range []string{"/z.txt", "/B.txt", "/a.txt"} {
		require.NoError(t, s.AddTag(bg, p, "project", "Alpha"))
	}

	paths, err := s.Query(bg, "project", "Alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"/B.txt", "/a.txt", "/z.txt"}, paths, "binary collation")
}

func TestSelectPaths_Parameterized(t *testing.T) {
	s := createTestStore(t)
	require.NoError(t, s.AddTag(bg, "/a", "type", "pdf"))
	require.NoError(t, s.AddTag(bg, "/b", "type", "txt"))

	paths, err := s.SelectPaths(bg, `SELECT path FROM files WHERE path <> ? ORDER BY path`, "/a")
	require.NoError(t, err)
	assert.Equal(t, []string{"/b"}, paths)
}

func TestFile_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.File(bg, "/missing")
	assert.True(t, fault.Is(err, fault.NotFound))
}

func TestTags_UnknownPath(t *testing.T) {
	s := createTestStore(t)

	tags, err := s.Tags(bg, "/missing")
	require.NoError(t, err)
	assert.NotNil(t, tags)
	assert.Empty(t, tags)
}

func TestEvents_LimitKeepsMostRecent(t *testing.T) {
	s := createTestStore(t)

	for _, p := range []string{"/1", "/2", "/3", "/4"} {
		require.NoError(t, s.RecordEvent(bg, "CREATE", p, ""))
	}

	events, err := s.Events(bg, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "/3", events[0].Path)
	assert.Equal(t, "/4", events[1].Path)

	all, err := s.Events(bg, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestRecordEvent_DoesNotCreateFile(t *testing.T) {
	s := createTestStore(t)

	require.NoError(t, s.RecordEvent(bg, "NOTE", "/f", "hello"))

	st, err := s.Stats(bg)
	require.NoError(t, err)
	assert.Equal(t, Stats{Events: 1}, st)
}

func TestStats_Counts(t *testing.T) {
	s := createTestStore(t)

	require.NoError(t, s.AddTag(bg, "/a", "k", "v"))
	require.NoError(t, s.AddTag(bg, "/b", "k", "v"))
	require.NoError(t, s.AddEmbedding(bg, "/a", "clip", []byte{1}))
	require.NoError(t, s.RecordEvent(bg, "CREATE", "/a", ""))

	st, err := s.Stats(bg)
	require.NoError(t, err)
	assert.Equal(t, Stats{Files: 2, Tags: 2, Embeddings: 1, Events: 1}, st)
}
