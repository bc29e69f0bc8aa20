package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"xscraper/pkg/batch"
	"xscraper/pkg/fetcher"
	"xscraper/pkg/logger"
	"xscraper/pkg/ui"
	"xscraper/pkg/ui/tui"
)

var (
	// batch command flags
	batchAuthToken    string
	batchProfile      string
	batchExtractorBin string
	batchMediaType    string
	batchTimeout      time.Duration
	batchPlain        bool
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <accounts-file>",
	Short: "Fetch media from many accounts sequentially",
	Long: `Fetch media from every account listed in a file, one account at a
time. The file holds one username per line; blank lines and lines
starting with # are skipped.

An interactive dashboard shows per-account progress. Select a row
with the arrow keys, press s to stop a running fetch, r to retry a
finished one, q to stop everything and quit. Accounts stopped or
failed partway keep their checkpoints and can be resumed later.`,
	Example: `  # Fetch all accounts listed in accounts.txt
  xscraper batch accounts.txt

  # Plain output without the dashboard
  xscraper batch accounts.txt --plain

  # Cap each account at ten minutes
  xscraper batch accounts.txt --account-timeout 10m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVar(&batchAuthToken, "auth-token", "", "X auth token (overrides stored credentials)")
	batchCmd.Flags().StringVarP(&batchProfile, "profile", "p", "", "use a specific stored credential profile")
	batchCmd.Flags().StringVar(&batchExtractorBin, "extractor-bin", "", "path to the extractor binary")
	batchCmd.Flags().StringVar(&batchMediaType, "media-type", "", "media type filter: all, image, video, gif, text")
	batchCmd.Flags().DurationVar(&batchTimeout, "account-timeout", 0, "wall-clock budget per account (e.g. 5m)")
	batchCmd.Flags().BoolVar(&batchPlain, "plain", false, "disable the interactive dashboard")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening accounts file: %w", err)
	}
	accounts, err := batch.ReadAccounts(file)
	file.Close()
	if err != nil {
		return fmt.Errorf("reading accounts file: %w", err)
	}
	if len(accounts) == 0 {
		return fmt.Errorf("no accounts listed in %s", args[0])
	}

	flags := make(map[string]interface{})
	if batchMediaType != "" {
		flags["media-type"] = batchMediaType
	}
	if batchTimeout > 0 {
		flags["account-timeout"] = batchTimeout
	}

	a, err := newApp(flags, batchExtractorBin, batchAuthToken, batchProfile)
	if err != nil {
		return err
	}
	defer a.close()

	cfg := batch.Config{
		AccountTimeout: a.cfg.Batch.AccountTimeout,
		TickInterval:   a.cfg.Batch.TickInterval,
		Defaults: fetcher.Params{
			AuthToken:       a.cfg.Auth.Token,
			TimelineKind:    a.cfg.Fetch.TimelineKind,
			MediaType:       a.cfg.Fetch.MediaType,
			IncludeRetweets: a.cfg.Fetch.IncludeRetweets,
			BatchSize:       a.cfg.Fetch.BatchSize,
			MaxEmptyBatches: a.cfg.Fetch.MaxEmptyBatches,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if batchPlain {
		sched := batch.NewScheduler(a.runner, a.archive, nil, logger.GetLogger(), cfg)
		sched.Add(accounts...)
		if err := sched.Run(ctx); err != nil {
			return err
		}
		printTaskSummary(sched.Tasks())
		return nil
	}
	return runBatchDashboard(ctx, a, cfg, accounts)
}

// runBatchDashboard runs the scheduler under the interactive view. The
// scheduler runs in its own goroutine; the dashboard owns the terminal
// until the user quits. The controls close over sched, which is
// assigned before anything can press a key.
func runBatchDashboard(ctx context.Context, a *app, cfg batch.Config, accounts []string) error {
	var sched *batch.Scheduler
	dash := tui.New(tui.Controls{
		StopAll: func() { sched.StopAll() },
		StopOne: func(accountKey string) { sched.StopOne(accountKey) },
		Retry: func(accountKey string) {
			go sched.Retry(ctx, accountKey)
		},
	})

	cfg.OnUpdate = dash.Update
	sched = batch.NewScheduler(a.runner, a.archive, nil, logger.GetLogger(), cfg)
	sched.Add(accounts...)

	done := make(chan error, 1)
	go func() {
		done <- sched.Run(ctx)
		dash.Update(sched.Tasks())
		dash.Done()
	}()

	if err := dash.Run(); err != nil {
		sched.StopAll()
		<-done
		return err
	}
	err := <-done
	printTaskSummary(sched.Tasks())
	return err
}

func printTaskSummary(tasks []batch.AccountTask) {
	for _, t := range tasks {
		line := fmt.Sprintf("%-24s %-11s %6d items  %3d batches",
			t.AccountKey, t.Status, t.MediaCount, t.Batches)
		if t.Elapsed > 0 {
			line += "  " + ui.FormatDuration(t.Elapsed)
		}
		if t.Err != "" {
			line += "  " + t.Err
		}
		fmt.Println(line)
	}
}
