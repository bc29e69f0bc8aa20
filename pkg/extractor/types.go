package extractor

import (
	"strings"

	"xscraper/pkg/timeline"
)

// Request carries everything one extractor invocation needs. Cursor is
// an opaque continuation token from a previous Result, passed back
// verbatim.
type Request struct {
	Target          string // username, or the "bookmarks"/"likes" sentinels
	AuthToken       string // empty means guest mode
	TimelineKind    string // media, timeline, tweets, with_replies, likes, bookmarks
	BatchSize       int    // 0 = everything in one call
	MediaType       string // all, image, video, gif, text
	IncludeRetweets bool
	Cursor          string
	// Date-range search mode; both empty for timeline fetches.
	StartDate string
	EndDate   string
}

// userInfo is the extractor's author/user record.
type userInfo struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Nick            string `json:"nick"`
	Date            string `json:"date"`
	Verified        bool   `json:"verified"`
	Protected       bool   `json:"protected"`
	ProfileImage    string `json:"profile_image"`
	FollowersCount  int    `json:"followers_count"`
	FriendsCount    int    `json:"friends_count"`
	MediaCount      int    `json:"media_count"`
	StatusesCount   int    `json:"statuses_count"`
	FavouritesCount int    `json:"favourites_count"`
}

// mediaItem is one media attachment in the extractor's JSON output.
type mediaItem struct {
	URL           string           `json:"url"`
	TweetID       timeline.TweetID `json:"tweet_id"`
	RetweetID     timeline.TweetID `json:"retweet_id"`
	Date          string           `json:"date"`
	Extension     string           `json:"extension"`
	Width         int              `json:"width"`
	Height        int              `json:"height"`
	Type          string           `json:"type"`
	Author        userInfo         `json:"author"`
	User          userInfo         `json:"user"`
	Content       string           `json:"content"`
	FavoriteCount int              `json:"favorite_count"`
	RetweetCount  int              `json:"retweet_count"`
	ReplyCount    int              `json:"reply_count"`
	BookmarkCount int              `json:"bookmark_count"`
	ViewCount     int              `json:"view_count"`
	Source        string           `json:"source"`
}

// tweetMetadata is a text-tweet record in the extractor's JSON output.
type tweetMetadata struct {
	TweetID       timeline.TweetID `json:"tweet_id"`
	RetweetID     timeline.TweetID `json:"retweet_id,omitempty"`
	Date          string           `json:"date"`
	Author        userInfo         `json:"author"`
	Content       string           `json:"content"`
	FavoriteCount int              `json:"favorite_count"`
	RetweetCount  int              `json:"retweet_count"`
	ReplyCount    int              `json:"reply_count,omitempty"`
	BookmarkCount int              `json:"bookmark_count,omitempty"`
	ViewCount     int              `json:"view_count,omitempty"`
}

// rawResponse is the extractor's top-level JSON document.
type rawResponse struct {
	Media     []mediaItem     `json:"media"`
	Metadata  []tweetMetadata `json:"metadata"`
	Cursor    string          `json:"cursor,omitempty"`
	Total     int             `json:"total,omitempty"`
	Completed bool            `json:"completed,omitempty"`
}

// Result is one batch from the extractor in the orchestrator's terms.
type Result struct {
	Entries     []timeline.Entry
	AccountInfo timeline.AccountInfo
	Cursor      string
	Completed   bool
}

// HasMore reports whether another batch can be requested.
func (r *Result) HasMore() bool {
	return r.Cursor != "" && !r.Completed
}

func mediaEntry(m mediaItem) timeline.Entry {
	// Author is the tweet author; User can be the fetching account for
	// likes and bookmarks, so Author wins when present.
	authorUsername := m.Author.Name
	if authorUsername == "" {
		authorUsername = m.User.Name
	}

	entry := timeline.Entry{
		URL:            m.URL,
		TweetID:        m.TweetID,
		Date:           m.Date,
		Extension:      m.Extension,
		Width:          m.Width,
		Height:         m.Height,
		IsRetweet:      m.RetweetID != 0,
		Content:        m.Content,
		ViewCount:      m.ViewCount,
		BookmarkCount:  m.BookmarkCount,
		FavoriteCount:  m.FavoriteCount,
		RetweetCount:   m.RetweetCount,
		ReplyCount:     m.ReplyCount,
		Source:         m.Source,
		Verified:       m.Author.Verified,
		AuthorUsername: authorUsername,
	}

	if m.Type != "" {
		entry.Type = m.Type
	} else {
		switch strings.ToLower(m.Extension) {
		case "mp4", "webm":
			entry.Type = "video"
		case "gif":
			entry.Type = "gif"
		default:
			entry.Type = "photo"
		}
	}

	return entry
}

func textEntry(meta tweetMetadata) timeline.Entry {
	return timeline.Entry{
		TweetID:        meta.TweetID,
		Date:           meta.Date,
		Type:           "text",
		IsRetweet:      meta.RetweetID != 0,
		Extension:      "txt",
		Content:        meta.Content,
		ViewCount:      meta.ViewCount,
		BookmarkCount:  meta.BookmarkCount,
		FavoriteCount:  meta.FavoriteCount,
		RetweetCount:   meta.RetweetCount,
		ReplyCount:     meta.ReplyCount,
		AuthorUsername: meta.Author.Name,
	}
}

func accountInfoFrom(u userInfo) timeline.AccountInfo {
	return timeline.AccountInfo{
		Name:           u.Name,
		Nick:           u.Nick,
		Date:           u.Date,
		FollowersCount: u.FollowersCount,
		FriendsCount:   u.FriendsCount,
		ProfileImage:   u.ProfileImage,
		StatusesCount:  u.StatusesCount,
	}
}
