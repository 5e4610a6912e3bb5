package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/pepfetch/internal/config"
	"github.com/nao1215/pepfetch/internal/database"
)

// defaultHistoryLimit is the number of runs listed by default.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show previous fetch runs",
		Long: `History lists previous runs recorded in the history database, newest
first. Given a run ID, it shows the outcome of every PEP in that run.

Examples:
  # List the last 20 runs
  pepfetch history

  # Show every run
  pepfetch history -n 0

  # Show the outcomes of run 12
  pepfetch history 12`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of runs to list (0 lists all)")
	cmd.Flags().String("db-dir", "",
		"Directory of the history database (default: XDG data directory)")
	cmd.Flags().Bool("failed", false,
		"With a run ID, show only failed PEPs")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false})
	if err != nil {
		return fmt.Errorf("no history found: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if len(args) == 1 {
		runID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid run ID %q", args[0])
		}
		failedOnly, err := cmd.Flags().GetBool("failed")
		if err != nil {
			return err
		}
		return showRun(ctx, cmd.OutOrStdout(), db, runID, failedOnly)
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	return listRuns(ctx, cmd.OutOrStdout(), db, limit)
}

// listRuns prints one line per run.
func listRuns(ctx context.Context, w io.Writer, db *database.HistoryDB, limit int) error {
	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tNETWORK\tTOTAL\tWRITTEN\tSKIPPED\tFAILED\tSTATE")
	for _, run := range runs {
		state := "finished"
		if !run.Finished() {
			state = "incomplete"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			run.ID, run.StartedAt.Local().Format("2006-01-02 15:04:05"), run.Network,
			run.Total, run.Written, run.Skipped, run.Failed, state)
	}
	return tw.Flush()
}

// showRun prints the outcomes of one run.
func showRun(ctx context.Context, w io.Writer, db *database.HistoryDB, runID int64, failedOnly bool) error {
	run, err := db.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	outcomes, err := db.Outcomes(ctx, runID)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Run #%d\n", run.ID)
	fmt.Fprintf(w, "  Index:   %s\n", run.IndexURL)
	fmt.Fprintf(w, "  Output:  %s\n", run.OutputDir)
	fmt.Fprintf(w, "  Network: %s\n", run.Network)
	fmt.Fprintf(w, "  Started: %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	if run.Finished() {
		fmt.Fprintf(w, "  Elapsed: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	} else {
		fmt.Fprintln(w, "  Elapsed: (did not finish)")
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PEP\tSTATUS\tBYTES\tDETAIL")
	for _, o := range outcomes {
		if failedOnly && !o.Status.IsFailure() {
			continue
		}
		detail := o.Path
		if o.Status.IsFailure() {
			detail = o.Err
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", o.Number, o.Status, o.Bytes, detail)
	}
	return tw.Flush()
}
