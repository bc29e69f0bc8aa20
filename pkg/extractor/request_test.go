package extractor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanUsername(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare handle", "NASA", "NASA"},
		{"at prefix", "@NASA", "NASA"},
		{"whitespace", "  NASA  ", "NASA"},
		{"full url", "https://x.com/NASA", "NASA"},
		{"url with path", "https://x.com/NASA/media", "NASA"},
		{"twitter domain", "https://twitter.com/NASA", "NASA"},
		{"scheme-less url", "x.com/NASA", "NASA"},
		{"reserved path untouched", "https://x.com/i/bookmarks", "https://x.com/i/bookmarks"},
		{"search path untouched", "https://x.com/search?q=foo", "https://x.com/search?q=foo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanUsername(tt.input))
		})
	}
}

func TestTimelineURL(t *testing.T) {
	assert.Equal(t, "https://x.com/NASA/media", timelineURL("NASA", "media"))
	assert.Equal(t, "https://x.com/NASA/tweets", timelineURL("@NASA", "tweets"))
	assert.Equal(t, "https://x.com/NASA/likes", timelineURL("NASA", "likes"))
	assert.Equal(t, "https://x.com/i/bookmarks", timelineURL("anything", "bookmarks"))
	assert.Equal(t, "https://x.com/i/bookmarks", timelineURL(TargetBookmarks, ""))
	// Unknown kinds fall back to the timeline endpoint, which has the
	// most reliable cursor behaviour.
	assert.Equal(t, "https://x.com/NASA/timeline", timelineURL("NASA", "unknown"))
}

func TestSearchURL(t *testing.T) {
	u := searchURL("NASA", "2024-01-01", "2024-06-30", "image", false)
	assert.Contains(t, u, "https://x.com/search?q=")
	assert.Contains(t, u, "from%3ANASA")
	assert.Contains(t, u, "since%3A2024-01-01")
	assert.Contains(t, u, "until%3A2024-06-30")
	assert.Contains(t, u, "filter%3Aimages")
	assert.Contains(t, u, "-filter%3Aretweets")

	textURL := searchURL("NASA", "", "", "text", true)
	assert.Contains(t, textURL, "-filter%3Amedia")
	assert.NotContains(t, textURL, "-filter%3Aretweets")

	pasted := searchURL("x.com/search?q=from%3ANASA", "", "", "all", true)
	assert.Equal(t, "https://x.com/search?q=from%3ANASA", pasted)
}

func TestBuildArgsTimeline(t *testing.T) {
	args := buildArgs(Request{
		Target:       "NASA",
		AuthToken:    "tok123",
		TimelineKind: "media",
		BatchSize:    200,
		MediaType:    "video",
		Cursor:       "CUR|abc",
	})

	assert.Equal(t, "https://x.com/NASA/media", args[0])
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "--auth-token tok123")
	assert.Contains(t, joined, "--json --metadata")
	assert.Contains(t, joined, "--limit 200")
	assert.Contains(t, joined, "--type video")
	assert.Contains(t, joined, "--cursor CUR|abc")
	// Retweet flag is meaningless on the media endpoint.
	assert.NotContains(t, joined, "--retweets")
}

func TestBuildArgsGuestMode(t *testing.T) {
	args := buildArgs(Request{Target: "NASA", TimelineKind: "media"})
	assert.Contains(t, args, "--guest")
	assert.NotContains(t, strings.Join(args, " "), "--auth-token")
}

func TestBuildArgsTextOnly(t *testing.T) {
	args := buildArgs(Request{Target: "NASA", MediaType: "text"})
	joined := strings.Join(args, " ")

	assert.Equal(t, "https://x.com/NASA/tweets", args[0])
	assert.Contains(t, joined, "--text-tweets")
	assert.Contains(t, joined, "--retweets skip")
	assert.NotContains(t, joined, "--type")
}

func TestBuildArgsRetweetsPickTweetsEndpoint(t *testing.T) {
	args := buildArgs(Request{Target: "NASA", IncludeRetweets: true})
	assert.Equal(t, "https://x.com/NASA/tweets", args[0])
	assert.Contains(t, strings.Join(args, " "), "--retweets include")
}

func TestBuildArgsZeroBatchSizeOmitsLimit(t *testing.T) {
	args := buildArgs(Request{Target: "NASA", TimelineKind: "media"})
	assert.NotContains(t, strings.Join(args, " "), "--limit")
}

func TestBuildArgsDateRange(t *testing.T) {
	args := buildArgs(Request{
		Target:    "NASA",
		AuthToken: "tok",
		StartDate: "2024-01-01",
		EndDate:   "2024-02-01",
		MediaType: "all",
		BatchSize: 100,
	})
	joined := strings.Join(args, " ")

	assert.Contains(t, args[0], "x.com/search?q=")
	assert.Contains(t, joined, "--retweets skip")
	// Search mode fetches the whole range in one call.
	assert.NotContains(t, joined, "--limit")
	assert.NotContains(t, joined, "--type")
}
