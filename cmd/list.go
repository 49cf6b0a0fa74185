/*
Copyright © 2025 The Rboard Authors
*/
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jbatonnet/Rboard/internal/report"
	"github.com/jbatonnet/Rboard/internal/ui"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the configured reports",
	Long: `List every configured report with its intervals and the time of its
last render. Reports that failed to load are listed after the table.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = app.Close() }()
		return writeReportList(cmd.OutOrStdout(), app)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

type reportListItem struct {
	Category     string `json:"category"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	Kind         string `json:"kind"`
	Refresh      string `json:"refresh,omitempty"`
	Archive      string `json:"archive,omitempty"`
	Delete       string `json:"delete,omitempty"`
	URL          string `json:"url,omitempty"`
	LastRendered string `json:"lastRendered,omitempty"`
}

func writeReportList(w io.Writer, app *App) error {
	snap := app.Registry.Current()

	var items []reportListItem
	for _, cat := range snap.Categories() {
		for _, rep := range cat.Reports {
			info := rep.Meta()
			item := reportListItem{Category: cat.Name, Name: info.Name, Slug: info.Slug}
			switch rep := rep.(type) {
			case *report.Document:
				item.Kind = "document"
				item.Refresh = rep.RefreshInterval.String()
				item.Archive = rep.ArchiveInterval.String()
				item.Delete = rep.DeleteInterval.String()
				if path, ok := app.Coordinator.LastGenerated(rep); ok {
					if fi, err := app.fs.Stat(path); err == nil {
						item.LastRendered = fi.ModTime().Format("2006-01-02 15:04")
					}
				}
			case *report.Link:
				item.Kind = "link"
				item.URL = rep.URL
			}
			items = append(items, item)
		}
	}

	if isJSON() {
		return printJSON(w, items)
	}

	plain := isPlain(w)
	if len(items) == 0 {
		fmt.Fprintln(w, "No reports configured.")
	} else {
		table := &ui.Table{
			Headers: []string{"CATEGORY", "REPORT", "KIND", "REFRESH", "ARCHIVE", "DELETE", "LAST RENDER"},
			Plain:   plain,
		}
		for _, it := range items {
			last := it.LastRendered
			if it.Kind == "link" {
				last = it.URL
			} else if last == "" {
				last = "never"
			}
			table.Rows = append(table.Rows, []string{it.Category, it.Slug, it.Kind, it.Refresh, it.Archive, it.Delete, last})
		}
		fmt.Fprint(w, table.Render())
	}

	for _, err := range snap.Errors() {
		fmt.Fprintln(w, ui.Render(ui.StyleWarning, "! "+err.Error(), plain))
	}
	return nil
}
