package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xscraper/pkg/timeline"
)

func newTestManager(t *testing.T, key string) *Manager {
	t.Helper()
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	mgr, err := NewManager(key)
	require.NoError(t, err)
	return mgr
}

func TestSaveAndLoad(t *testing.T) {
	mgr := newTestManager(t, "someuser")

	session := &Session{
		AccountKey: "someuser",
		Cursor:     "cursor-abc",
		Entries: []timeline.Entry{
			{TweetID: 1, URL: "a.jpg", Type: "photo"},
			{TweetID: 2, URL: "b.mp4", Type: "video"},
		},
		AccountInfo:  timeline.AccountInfo{Name: "someuser", Nick: "Some User"},
		MediaType:    "all",
		TimelineKind: "media",
		BatchSize:    100,
	}
	require.NoError(t, mgr.Save(session))

	loaded, err := mgr.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, "someuser", loaded.AccountKey)
	assert.Equal(t, "cursor-abc", loaded.Cursor)
	assert.Len(t, loaded.Entries, 2)
	assert.Equal(t, timeline.TweetID(1), loaded.Entries[0].TweetID)
	assert.Equal(t, "Some User", loaded.AccountInfo.Nick)
	assert.False(t, loaded.Completed)
	assert.False(t, loaded.UpdatedAt.IsZero())
}

func TestLoadMissingReturnsNil(t *testing.T) {
	mgr := newTestManager(t, "ghost")

	loaded, err := mgr.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestClear(t *testing.T) {
	mgr := newTestManager(t, "someuser")

	require.NoError(t, mgr.Save(&Session{AccountKey: "someuser", Cursor: "c1"}))
	require.NoError(t, mgr.SaveCursor("c1"))
	require.True(t, mgr.Exists())

	require.NoError(t, mgr.Clear())
	assert.False(t, mgr.Exists())

	cursor, err := mgr.LoadCursor()
	require.NoError(t, err)
	assert.Empty(t, cursor)

	// Clearing twice is fine.
	assert.NoError(t, mgr.Clear())
}

func TestCursorSlot(t *testing.T) {
	mgr := newTestManager(t, "someuser")

	cursor, err := mgr.LoadCursor()
	require.NoError(t, err)
	assert.Empty(t, cursor)

	require.NoError(t, mgr.SaveCursor("tok-123"))
	cursor, err = mgr.LoadCursor()
	require.NoError(t, err)
	assert.Equal(t, "tok-123", cursor)

	// Overwrites are last-writer-wins.
	require.NoError(t, mgr.SaveCursor("tok-456"))
	cursor, err = mgr.LoadCursor()
	require.NoError(t, err)
	assert.Equal(t, "tok-456", cursor)
}

func TestSaveOverwrites(t *testing.T) {
	mgr := newTestManager(t, "someuser")

	require.NoError(t, mgr.Save(&Session{AccountKey: "someuser", Cursor: "c1"}))
	require.NoError(t, mgr.Save(&Session{AccountKey: "someuser", Cursor: "c2", Completed: true}))

	loaded, err := mgr.Load()
	require.NoError(t, err)
	assert.Equal(t, "c2", loaded.Cursor)
	assert.True(t, loaded.Completed)
}

func TestResumable(t *testing.T) {
	assert.False(t, (*Session)(nil).Resumable())
	assert.False(t, (&Session{Completed: true, Cursor: "c"}).Resumable())
	assert.False(t, (&Session{}).Resumable())
	assert.True(t, (&Session{Cursor: "c"}).Resumable())
}

func TestSanitizedAccountKeys(t *testing.T) {
	mgr := newTestManager(t, "x.com/someone?weird")

	require.NoError(t, mgr.Save(&Session{AccountKey: "x.com/someone?weird", Cursor: "c"}))
	loaded, err := mgr.Load()
	require.NoError(t, err)
	assert.Equal(t, "x.com/someone?weird", loaded.AccountKey)
}
