/*
Copyright © 2025 The Rboard Authors
*/
package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jbatonnet/Rboard/internal/ui"
)

// pruneCmd represents the prune command
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove archived renders past their retention horizon",
	Long: `Remove, for every report, the archived renders older than its delete
interval. Archive containers left empty are deleted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = app.Close() }()
		return runPrune(cmd.OutOrStdout(), app)
	},
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}

type pruneItem struct {
	Report            string `json:"report"`
	EntriesRemoved    int    `json:"entriesRemoved"`
	ContainersDeleted int    `json:"containersDeleted"`
	Error             string `json:"error,omitempty"`
}

func runPrune(w io.Writer, app *App) error {
	var (
		items []pruneItem
		errs  []error
	)
	for _, doc := range app.Registry.Current().Documents() {
		res, err := app.Coordinator.Prune(doc)
		item := pruneItem{Report: doc.Key().String(), EntriesRemoved: res.EntriesRemoved, ContainersDeleted: res.ContainersDeleted}
		if err != nil {
			item.Error = err.Error()
			errs = append(errs, fmt.Errorf("prune %s: %w", doc.Key(), err))
		}
		items = append(items, item)
	}

	if isJSON() {
		if err := printJSON(w, items); err != nil {
			return err
		}
		return errors.Join(errs...)
	}

	plain := isPlain(w)
	table := &ui.Table{Headers: []string{"REPORT", "REMOVED", "CONTAINERS", "ERROR"}, Plain: plain}
	for _, it := range items {
		table.Rows = append(table.Rows, []string{
			it.Report,
			strconv.Itoa(it.EntriesRemoved),
			strconv.Itoa(it.ContainersDeleted),
			ui.Render(ui.StyleError, it.Error, plain || it.Error == ""),
		})
	}
	fmt.Fprint(w, table.Render())
	return errors.Join(errs...)
}
