package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"xscraper/pkg/extractor"
	"xscraper/pkg/fetcher"
	"xscraper/pkg/ui"
)

var (
	// fetch command flags
	fetchAuthToken    string
	fetchProfile      string
	fetchExtractorBin string
	fetchBatchSize    int
	fetchTimeout      time.Duration
	fetchMediaType    string
	fetchKind         string
	fetchRetweets     bool
	fetchLikes        bool
	fetchBookmarks    bool
	fetchTextTweets   bool
	fetchCursor       string
	fetchResume       bool
	fetchForceRestart bool
	fetchSince        string
	fetchUntil        string
	fetchRPM          int
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch [username]",
	Short: "Fetch media from an X account timeline",
	Long: `Fetch media posts from an X account's timeline in batches.

Progress is checkpointed after every batch. If the fetch is
interrupted by Ctrl-C, a timeout or a failure, running the same
command again resumes from the last checkpoint instead of starting
over.

Without a stored credential the fetch runs in guest mode, which can
only see public timelines. Use 'xscraper auth login' to store an auth
token.`,
	Example: `  # Fetch all media from a public account
  xscraper fetch somename

  # Fetch videos only, 100 per batch
  xscraper fetch somename --media-type video --batch-size 100

  # Fetch your likes or bookmarks (requires a stored token)
  xscraper fetch --likes
  xscraper fetch --bookmarks

  # Restart from scratch, discarding the checkpoint
  xscraper fetch somename --force-restart

  # Resume from an explicit cursor
  xscraper fetch somename --cursor DAABCgABGgAA...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&fetchAuthToken, "auth-token", "", "X auth token (overrides stored credentials)")
	fetchCmd.Flags().StringVarP(&fetchProfile, "profile", "p", "", "use a specific stored credential profile")
	fetchCmd.Flags().StringVar(&fetchExtractorBin, "extractor-bin", "", "path to the extractor binary")
	fetchCmd.Flags().IntVar(&fetchBatchSize, "batch-size", 0, "items per batch (0 uses the configured default)")
	fetchCmd.Flags().DurationVar(&fetchTimeout, "timeout", 0, "wall-clock budget for the whole fetch")
	fetchCmd.Flags().StringVar(&fetchMediaType, "media-type", "", "media type filter: all, image, video, gif, text")
	fetchCmd.Flags().StringVar(&fetchKind, "timeline-kind", "", "timeline to fetch: media, tweets, timeline, with_replies")
	fetchCmd.Flags().BoolVar(&fetchRetweets, "retweets", false, "include retweets")
	fetchCmd.Flags().BoolVar(&fetchLikes, "likes", false, "fetch your liked tweets")
	fetchCmd.Flags().BoolVar(&fetchBookmarks, "bookmarks", false, "fetch your bookmarks")
	fetchCmd.Flags().BoolVar(&fetchTextTweets, "text", false, "fetch text tweets instead of media")
	fetchCmd.Flags().StringVar(&fetchCursor, "cursor", "", "resume from an explicit pagination cursor")
	fetchCmd.Flags().BoolVar(&fetchResume, "resume", true, "resume from the last checkpoint when one exists")
	fetchCmd.Flags().BoolVar(&fetchForceRestart, "force-restart", false, "discard any existing checkpoint and start over")
	fetchCmd.Flags().StringVar(&fetchSince, "since", "", "search mode start date (YYYY-MM-DD)")
	fetchCmd.Flags().StringVar(&fetchUntil, "until", "", "search mode end date (YYYY-MM-DD)")
	fetchCmd.Flags().IntVar(&fetchRPM, "requests-per-minute", 0, "extractor invocation rate limit")
}

func runFetch(cmd *cobra.Command, args []string) error {
	accountKey, kind, err := fetchTarget(args)
	if err != nil {
		return err
	}

	flags := make(map[string]interface{})
	if fetchBatchSize > 0 {
		flags["batch-size"] = fetchBatchSize
	}
	if fetchTimeout > 0 {
		flags["timeout"] = fetchTimeout
	}
	if fetchTextTweets && fetchMediaType == "" {
		fetchMediaType = "text"
	}
	if fetchMediaType != "" {
		flags["media-type"] = fetchMediaType
	}
	if kind != "" {
		flags["timeline-kind"] = kind
	}
	if cmd.Flags().Changed("retweets") {
		flags["retweets"] = fetchRetweets
	}
	if fetchRPM > 0 {
		flags["requests-per-minute"] = fetchRPM
	}

	a, err := newApp(flags, fetchExtractorBin, fetchAuthToken, fetchProfile)
	if err != nil {
		return err
	}
	defer a.close()

	if (fetchLikes || fetchBookmarks) && a.cfg.Auth.Token == "" {
		return fmt.Errorf("%s requires a stored auth token, run 'xscraper auth login' first",
			accountKey)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cancel := fetcher.NewCancelToken()
	go func() {
		<-ctx.Done()
		cancel.Cancel()
	}()

	params := fetcher.Params{
		AccountKey:      accountKey,
		AuthToken:       a.cfg.Auth.Token,
		TimelineKind:    a.cfg.Fetch.TimelineKind,
		MediaType:       a.cfg.Fetch.MediaType,
		IncludeRetweets: a.cfg.Fetch.IncludeRetweets,
		BatchSize:       a.cfg.Fetch.BatchSize,
		Timeout:         a.cfg.Fetch.Timeout,
		MaxEmptyBatches: a.cfg.Fetch.MaxEmptyBatches,
		ForceRestart:    fetchForceRestart || !fetchResume,
		ResumeCursor:    fetchCursor,
		StartDate:       fetchSince,
		EndDate:         fetchUntil,
	}

	display := ui.NewProgress(os.Stdout, quiet)
	res, err := a.runner.Run(context.Background(), params, display.Handler(), cancel)
	display.Summary(res, err)

	if err != nil || (res != nil && res.Status != fetcher.StatusCompleted) {
		a.close()
		os.Exit(1)
	}
	return nil
}

// fetchTarget resolves the positional argument and the likes/bookmarks
// flags into an account key and timeline kind.
func fetchTarget(args []string) (accountKey, kind string, err error) {
	switch {
	case fetchLikes && fetchBookmarks:
		return "", "", fmt.Errorf("--likes and --bookmarks are mutually exclusive")
	case fetchLikes:
		return extractor.TargetLikes, "likes", nil
	case fetchBookmarks:
		return extractor.TargetBookmarks, "bookmarks", nil
	}

	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", "", fmt.Errorf("a username is required unless --likes or --bookmarks is set")
	}
	username := extractor.CleanUsername(args[0])
	if username == "" {
		return "", "", fmt.Errorf("invalid username %q", args[0])
	}
	return username, fetchKind, nil
}
