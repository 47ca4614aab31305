package main

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/webmirror/internal/config"
	"github.com/nao1215/webmirror/internal/database"
	"github.com/spf13/cobra"
)

// NewRunsCmd creates the runs command listing archived mirror runs.
func NewRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List mirror runs stored in the local archive",
		Long: `Runs lists mirror runs that were persisted with --save-db,
newest first. Use --seed to print the full report of the most
recent run for that seed URL as JSON, or --id to inspect one
stored run and the files it wrote.`,
		Args: cobra.NoArgs,
		RunE: runRunsCmd,
	}

	cmd.Flags().String("seed", "", "Show the last stored report for this seed URL")
	cmd.Flags().Int64("id", 0, "Show the stored run with this ID, files included")
	cmd.Flags().String("db-dir", "", "Database directory (default: XDG data directory)")

	return cmd
}

// runRunsCmd executes the runs command.
func runRunsCmd(cmd *cobra.Command, _ []string) error {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	seed, err := cmd.Flags().GetString("seed")
	if err != nil {
		return err
	}

	runID, err := cmd.Flags().GetInt64("id")
	if err != nil {
		return err
	}

	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	mdb, err := database.Open(dbDir, opts)
	if err != nil {
		return fmt.Errorf("failed to open run archive (did you mirror with --save-db?): %w", err)
	}
	defer mdb.Close() //nolint:errcheck // read-only session, close errors are not actionable

	switch {
	case runID > 0:
		return printRunByID(cmd, mdb, runID)
	case seed != "":
		return printLastRun(cmd, mdb, seed)
	default:
		return printRunList(cmd, mdb)
	}
}

// printRunByID prints one stored run as JSON followed by the files it
// wrote, in insertion order.
func printRunByID(cmd *cobra.Command, mdb *database.MirrorDB, runID int64) error {
	rep, err := mdb.GetRunByID(cmd.Context(), runID)
	if err != nil {
		return err
	}
	if rep == nil {
		return fmt.Errorf("no stored run with id %d", runID)
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))

	pages, err := mdb.PagesForRun(cmd.Context(), runID)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "\n%-6s %-10s %-50s %s\n", "DEPTH", "SIZE", "LOCAL PATH", "URL")
	for _, page := range pages {
		fmt.Fprintf(w, "%-6d %-10s %-50s %s\n",
			page.Depth,
			humanize.Bytes(uint64(max(page.Bytes, 0))), //nolint:gosec // clamped non-negative
			page.LocalPath,
			page.URL,
		)
	}
	fmt.Fprintf(w, "\n%d file(s) written.\n", len(pages))

	return nil
}

// printLastRun prints the most recent stored report for a seed as JSON.
func printLastRun(cmd *cobra.Command, mdb *database.MirrorDB, seed string) error {
	rep, err := mdb.LastRunFor(cmd.Context(), seed)
	if err != nil {
		return err
	}
	if rep == nil {
		return fmt.Errorf("no stored run for %s", seed)
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))

	return nil
}

// printRunList prints a table of stored runs, newest first.
func printRunList(cmd *cobra.Command, mdb *database.MirrorDB) error {
	runs, err := mdb.ListRuns(cmd.Context())
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No stored runs.")
		return nil
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-5s %-20s %-10s %-12s %-7s %s\n",
		"ID", "WHEN", "FILES", "SIZE", "ERRORS", "SEED")
	for _, run := range runs {
		when := run.Timestamp.Local().Format("2006-01-02 15:04")
		if run.Timestamp.IsZero() {
			when = "unknown"
		}
		fmt.Fprintf(w, "%-5d %-20s %-10d %-12s %-7d %s\n",
			run.ID,
			when,
			run.FilesProcessed,
			humanize.Bytes(uint64(max(run.BytesDownloaded, 0))), //nolint:gosec // clamped non-negative
			run.ErrorCount,
			run.SeedURL,
		)
	}
	fmt.Fprintf(w, "\n%d run(s). Use 'webmirror runs --id <id>' or '--seed <url>' for details.\n", len(runs))

	return nil
}
