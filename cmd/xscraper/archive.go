package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"xscraper/internal/archive"
	"xscraper/pkg/config"
)

// archiveCmd represents the archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect the local snapshot archive",
	Long: `Inspect snapshots saved by previous fetches.

Every fetch saves its merged timeline to a local database after each
batch, so partial results from interrupted fetches are browsable too.`,
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived accounts",
	RunE:  runArchiveList,
}

var archiveShowCmd = &cobra.Command{
	Use:   "show <account>",
	Short: "Show an archived account's snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runArchiveShow,
}

var archiveRmCmd = &cobra.Command{
	Use:   "rm <account>",
	Short: "Delete an account's snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runArchiveRm,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.AddCommand(archiveListCmd)
	archiveCmd.AddCommand(archiveShowCmd)
	archiveCmd.AddCommand(archiveRmCmd)
}

func openArchive() (*archive.Store, error) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return nil, err
	}
	path := cfg.Archive.Path
	if path == "" {
		if path, err = archive.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return archive.Open(path)
}

func runArchiveList(cmd *cobra.Command, args []string) error {
	store, err := openArchive()
	if err != nil {
		return err
	}
	defer store.Close()

	accounts, err := store.Accounts(context.Background())
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		fmt.Println("Archive is empty.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tITEMS\tTYPE\tSTATE")
	for _, key := range accounts {
		snap, err := store.Load(context.Background(), key)
		if err != nil || snap == nil {
			continue
		}
		state := "partial"
		if snap.Completed {
			state = "complete"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", key, snap.TotalCount, snap.MediaType, state)
	}
	return w.Flush()
}

func runArchiveShow(cmd *cobra.Command, args []string) error {
	store, err := openArchive()
	if err != nil {
		return err
	}
	defer store.Close()

	snap, err := store.Load(context.Background(), args[0])
	if err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("no snapshot for %q", args[0])
	}

	fmt.Printf("Account:  %s (%s)\n", snap.AccountKey, snap.NiceName)
	fmt.Printf("Items:    %d\n", snap.TotalCount)
	fmt.Printf("Type:     %s\n", snap.MediaType)
	if snap.Completed {
		fmt.Println("State:    complete")
	} else {
		fmt.Println("State:    partial, resumable")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nID\tTYPE\tDATE\tURL")
	for _, e := range snap.Entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.TweetID, e.Type, e.Date, e.URL)
	}
	return w.Flush()
}

func runArchiveRm(cmd *cobra.Command, args []string) error {
	store, err := openArchive()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted snapshot for %q\n", args[0])
	return nil
}
