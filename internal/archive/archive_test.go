package archive

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xscraper/pkg/timeline"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSnapshot(key string, n int, cursor string, completed bool) timeline.Snapshot {
	entries := make([]timeline.Entry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, timeline.Entry{
			URL:     "https://pbs.twimg.com/" + key + "/pic.jpg",
			TweetID: timeline.TweetID(i + 1),
			Type:    "photo",
		})
	}
	return timeline.Snapshot{
		AccountKey:  key,
		DisplayName: key,
		NiceName:    "The " + key,
		AvatarURL:   "https://img/" + key + ".jpg",
		TotalCount:  n,
		Entries:     entries,
		MediaType:   "all",
		Cursor:      cursor,
		Completed:   completed,
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	snap := sampleSnapshot("nasa", 3, "CUR|abc", false)
	require.NoError(t, s.Save(ctx, snap))

	loaded, err := s.Load(ctx, "nasa")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, snap.DisplayName, loaded.DisplayName)
	assert.Equal(t, snap.NiceName, loaded.NiceName)
	assert.Equal(t, snap.AvatarURL, loaded.AvatarURL)
	assert.Equal(t, snap.Cursor, loaded.Cursor)
	assert.Equal(t, snap.Entries, loaded.Entries)
	assert.False(t, loaded.Completed)
}

func TestLoadMissingAccount(t *testing.T) {
	s := openTestStore(t)
	loaded, err := s.Load(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSaveUpsertsPerAccount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleSnapshot("nasa", 2, "c1", false)))
	require.NoError(t, s.Save(ctx, sampleSnapshot("nasa", 5, "c2", true)))

	loaded, err := s.Load(ctx, "nasa")
	require.NoError(t, err)
	assert.Len(t, loaded.Entries, 5)
	assert.Equal(t, "c2", loaded.Cursor)
	assert.True(t, loaded.Completed)

	keys, err := s.Accounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"nasa"}, keys)
}

func TestLastCursor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// No snapshot yet.
	cursor, err := s.LastCursor(ctx, "nasa")
	require.NoError(t, err)
	assert.Empty(t, cursor)

	require.NoError(t, s.Save(ctx, sampleSnapshot("nasa", 2, "CUR|resume", false)))
	cursor, err = s.LastCursor(ctx, "nasa")
	require.NoError(t, err)
	assert.Equal(t, "CUR|resume", cursor)

	// A completed fetch has nothing to resume.
	require.NoError(t, s.Save(ctx, sampleSnapshot("nasa", 2, "CUR|final", true)))
	cursor, err = s.LastCursor(ctx, "nasa")
	require.NoError(t, err)
	assert.Empty(t, cursor)
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleSnapshot("nasa", 1, "", true)))
	require.NoError(t, s.Delete(ctx, "nasa"))

	loaded, err := s.Load(ctx, "nasa")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestEmptySnapshotBlob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, timeline.Snapshot{AccountKey: "empty"}))
	loaded, err := s.Load(ctx, "empty")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Empty(t, loaded.Entries)
}
