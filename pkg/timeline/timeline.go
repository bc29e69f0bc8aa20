package timeline

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// TweetID is an int64 tweet identifier that marshals as a JSON string.
// JavaScript consumers of exported snapshots lose precision above 2^53,
// so the string form is the wire format while the extractor may still
// emit plain numbers.
type TweetID int64

// MarshalJSON renders the ID as a quoted decimal string.
func (t TweetID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + strconv.FormatInt(int64(t), 10) + `"`), nil
}

// UnmarshalJSON accepts both a JSON number and a quoted decimal string.
func (t *TweetID) UnmarshalJSON(data []byte) error {
	var num int64
	if err := json.Unmarshal(data, &num); err == nil {
		*t = TweetID(num)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		parsed, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid tweet id string: %q", str)
		}
		*t = TweetID(parsed)
		return nil
	}
	return fmt.Errorf("tweet id must be a number or a string")
}

// Entry is a single timeline item: one media file or one text tweet.
// A single tweet id can appear in several entries when the tweet
// carries multiple media attachments, each with its own URL.
type Entry struct {
	URL            string  `json:"url"`
	Date           string  `json:"date"`
	TweetID        TweetID `json:"tweet_id"`
	Type           string  `json:"type"` // photo, video, gif, text
	IsRetweet      bool    `json:"is_retweet"`
	Extension      string  `json:"extension"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Content        string  `json:"content,omitempty"`
	ViewCount      int     `json:"view_count,omitempty"`
	BookmarkCount  int     `json:"bookmark_count,omitempty"`
	FavoriteCount  int     `json:"favorite_count,omitempty"`
	RetweetCount   int     `json:"retweet_count,omitempty"`
	ReplyCount     int     `json:"reply_count,omitempty"`
	Source         string  `json:"source,omitempty"`
	Verified       bool    `json:"verified,omitempty"`
	AuthorUsername string  `json:"author_username,omitempty"`
}

// AccountInfo is a descriptive record for the fetched account. The
// first populated value seen for each run is kept; later batches never
// overwrite it.
type AccountInfo struct {
	Name           string `json:"name"`
	Nick           string `json:"nick"`
	Date           string `json:"date"`
	FollowersCount int    `json:"followers_count"`
	FriendsCount   int    `json:"friends_count"`
	ProfileImage   string `json:"profile_image"`
	StatusesCount  int    `json:"statuses_count"`
}

// IsZero reports whether no descriptive data has been captured yet.
func (a AccountInfo) IsZero() bool {
	return a.Name == "" && a.Nick == "" && a.ProfileImage == ""
}

// identity is the dedup key for an entry. Text entries carry no URL,
// so their type tag stands in for it; a tweet with two media URLs
// yields two distinct identities.
type identity struct {
	id  TweetID
	url string
}

func identityOf(e Entry) identity {
	if e.Type == "text" || e.URL == "" {
		return identity{id: e.TweetID, url: "text"}
	}
	return identity{id: e.TweetID, url: e.URL}
}

// Merge appends the entries of incoming that are not already present
// in existing, preserving the relative order of both sequences, and
// returns the merged sequence together with the number of newly added
// entries. Merging the same batch twice is a no-op.
func Merge(existing, incoming []Entry) ([]Entry, int) {
	seen := make(map[identity]struct{}, len(existing))
	for _, e := range existing {
		seen[identityOf(e)] = struct{}{}
	}

	merged := make([]Entry, len(existing), len(existing)+len(incoming))
	copy(merged, existing)
	added := 0
	for _, e := range incoming {
		key := identityOf(e)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, e)
		added++
	}
	return merged, added
}
