/*
Copyright © 2025 The Rboard Authors
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbatonnet/Rboard/internal/report"
	"github.com/jbatonnet/Rboard/internal/ui"
)

var historyLimit int

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history [category/name]",
	Short: "Show recent report generations",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = app.Close() }()

		var ref string
		if len(args) > 0 {
			ref = args[0]
		}
		return writeHistory(cmd.Context(), cmd.OutOrStdout(), app, ref, historyLimit)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of generations to show")
}

// errJournalDisabled is returned when the journal is turned off in the configuration.
var errJournalDisabled = errors.New("the generation journal is disabled (journal.enabled)")

func writeHistory(ctx context.Context, w io.Writer, app *App, ref string, limit int) error {
	if app.Journal == nil {
		return errJournalDisabled
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var key *report.Key
	if ref != "" {
		k, err := parseReportRef(ref)
		if err != nil {
			return err
		}
		key = &k
	}

	entries, err := app.Journal.Recent(ctx, key, limit)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}

	if isJSON() {
		return printJSON(w, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No generations recorded.")
		return nil
	}

	plain := isPlain(w)
	table := &ui.Table{Headers: []string{"STARTED", "REPORT", "STATUS", "DURATION", "FORCED", "ERROR"}, Plain: plain, MaxWidth: 60}
	for _, e := range entries {
		forced := ""
		if e.Forced {
			forced = "yes"
		}
		table.Rows = append(table.Rows, []string{
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			e.Key.String(),
			ui.Render(ui.StatusStyle(e.Status), e.Status, plain),
			e.Duration().Round(time.Millisecond).String(),
			forced,
			e.Error,
		})
	}
	fmt.Fprint(w, table.Render())
	return nil
}
