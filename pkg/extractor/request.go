package extractor

import (
	"fmt"
	"net/url"
	"strings"
)

// Sentinel targets that map to the signed-in account's own collections
// rather than a username.
const (
	TargetBookmarks = "bookmarks"
	TargetLikes     = "likes"
)

var reservedPathSegments = map[string]struct{}{
	"i": {}, "search": {}, "home": {}, "explore": {},
	"settings": {}, "messages": {}, "notifications": {},
}

// CleanUsername extracts the bare handle from the forms users paste:
// @handle, handle, x.com/handle, https://twitter.com/handle/media.
// Reserved paths like /i/bookmarks come back unchanged.
func CleanUsername(username string) string {
	username = strings.TrimSpace(username)
	username = strings.TrimPrefix(username, "@")

	if !strings.Contains(username, "x.com/") && !strings.Contains(username, "twitter.com/") {
		return username
	}

	parsed := username
	if !strings.HasPrefix(parsed, "http://") && !strings.HasPrefix(parsed, "https://") {
		parsed = "https://" + strings.TrimPrefix(parsed, "//")
	}
	u, err := url.Parse(parsed)
	if err != nil {
		return username
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return username
	}
	if _, reserved := reservedPathSegments[strings.ToLower(segments[0])]; reserved {
		return username
	}
	return segments[0]
}

func ensureURLScheme(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	return "https://" + strings.TrimPrefix(raw, "//")
}

// timelineURL picks the endpoint for a timeline kind. Bookmarks and
// likes-as-target ignore the username entirely.
func timelineURL(target, kind string) string {
	if kind == "bookmarks" || target == TargetBookmarks {
		return "https://x.com/i/bookmarks"
	}

	handle := CleanUsername(target)
	base := "https://x.com/" + handle
	switch kind {
	case "media":
		return base + "/media"
	case "timeline":
		return base + "/timeline"
	case "tweets":
		return base + "/tweets"
	case "with_replies":
		return base + "/with_replies"
	case "likes":
		return base + "/likes"
	default:
		return base + "/timeline"
	}
}

// searchURL assembles an x.com live-search URL for date range queries.
// A pasted search URL is passed through with its scheme normalised.
func searchURL(target, startDate, endDate, mediaType string, includeRetweets bool) string {
	trimmed := strings.TrimSpace(target)
	if strings.Contains(strings.ToLower(trimmed), "search?q=") {
		return ensureURLScheme(trimmed)
	}

	handle := CleanUsername(trimmed)
	var parts []string
	if handle != "" {
		parts = append(parts, "from:"+handle)
	}
	if startDate != "" {
		parts = append(parts, "since:"+startDate)
	}
	if endDate != "" {
		parts = append(parts, "until:"+endDate)
	}

	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "image", "images", "photo", "photos":
		parts = append(parts, "filter:images")
	case "video", "videos", "gif", "gifs":
		parts = append(parts, "filter:videos")
	case "text":
		parts = append(parts, "-filter:media")
	default:
		parts = append(parts, "filter:media")
	}

	if !includeRetweets {
		parts = append(parts, "-filter:retweets")
	}

	query := url.QueryEscape(strings.Join(parts, " "))
	return fmt.Sprintf("https://x.com/search?q=%s&src=typed_query&f=live", query)
}

// effectiveKind resolves an empty timeline kind. Text-only and
// retweet-including fetches need the /tweets endpoint; plain media
// fetches get the faster /media endpoint.
func effectiveKind(req Request) string {
	if req.TimelineKind != "" {
		return req.TimelineKind
	}
	if req.MediaType == "text" || req.IncludeRetweets {
		return "tweets"
	}
	return "media"
}

// buildArgs translates a Request into the extractor's command line.
// The first argument is always the target URL.
func buildArgs(req Request) []string {
	isSearch := req.StartDate != "" || req.EndDate != ""
	kind := effectiveKind(req)

	var target string
	if isSearch {
		target = searchURL(req.Target, req.StartDate, req.EndDate, req.MediaType, req.IncludeRetweets)
	} else {
		target = timelineURL(req.Target, kind)
	}

	args := []string{target}

	if req.AuthToken != "" {
		args = append(args, "--auth-token", req.AuthToken)
	} else {
		args = append(args, "--guest")
	}

	args = append(args, "--json", "--metadata")

	if !isSearch && req.BatchSize > 0 {
		args = append(args, "--limit", fmt.Sprintf("%d", req.BatchSize))
	}

	// The /media endpoint never returns retweets, so the flag only
	// matters on endpoints that can.
	if isSearch || kind == "tweets" || kind == "timeline" {
		if req.IncludeRetweets {
			args = append(args, "--retweets", "include")
		} else {
			args = append(args, "--retweets", "skip")
		}
	}

	isTextOnly := req.MediaType == "text"
	if isTextOnly {
		args = append(args, "--text-tweets")
	}

	if !isSearch && !isTextOnly && req.MediaType != "" && req.MediaType != "all" {
		switch req.MediaType {
		case "image":
			args = append(args, "--type", "photo")
		case "video":
			args = append(args, "--type", "video")
		case "gif":
			args = append(args, "--type", "animated_gif")
		}
	}

	if req.Cursor != "" {
		args = append(args, "--cursor", req.Cursor)
	}

	return args
}
