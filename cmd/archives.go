/*
Copyright © 2025 The Rboard Authors
*/
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jbatonnet/Rboard/internal/archive"
	"github.com/jbatonnet/Rboard/internal/timebucket"
	"github.com/jbatonnet/Rboard/internal/ui"
)

var (
	archivesAll    bool
	archivesOutput string
)

// archivesCmd represents the archives command
var archivesCmd = &cobra.Command{
	Use:   "archives <category>/<name>",
	Short: "List the archived renders of a report",
	Long: `List the archive buckets of a report within its retention horizon,
newest first. Without --all only the buckets that hold a render are listed.

Examples:
  rboard archives sales/weekly-sales
  rboard archives sales/weekly-sales --all
  rboard archives show sales/weekly-sales 2024-03-13 -o report.html`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = app.Close() }()
		return writeArchiveList(cmd.OutOrStdout(), app, args[0], archivesAll)
	},
}

var archivesShowCmd = &cobra.Command{
	Use:   "show <category>/<name> <bucket>",
	Short: "Print an archived render",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = app.Close() }()

		w := cmd.OutOrStdout()
		if archivesOutput != "" {
			f, err := os.Create(archivesOutput)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer func() { _ = f.Close() }()
			w = f
		}
		return writeArchive(w, app, args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(archivesCmd)
	archivesCmd.AddCommand(archivesShowCmd)
	archivesCmd.Flags().BoolVarP(&archivesAll, "all", "a", false, "list every bucket, archived or not")
	archivesShowCmd.Flags().StringVarP(&archivesOutput, "output", "o", "", "write to a file instead of stdout")
}

type archiveListItem struct {
	Bucket   string `json:"bucket"`
	Archived bool   `json:"archived"`
}

func writeArchiveList(w io.Writer, app *App, ref string, all bool) error {
	doc, err := findDocument(app.Registry.Current(), ref)
	if err != nil {
		return err
	}

	var items []archiveListItem
	for bucket := range app.Coordinator.ListArchiveBuckets(doc, !all) {
		item := archiveListItem{Bucket: timebucket.FormatBucket(bucket), Archived: true}
		if all {
			ok, err := app.Archives.HasEntry(archive.ContainerName(bucket), archive.EntryName(doc.Stem(), bucket))
			item.Archived = err == nil && ok
		}
		items = append(items, item)
	}

	if isJSON() {
		return printJSON(w, items)
	}
	if len(items) == 0 {
		fmt.Fprintf(w, "No archives for %s.\n", doc.Key())
		return nil
	}

	plain := isPlain(w)
	table := &ui.Table{Headers: []string{"BUCKET", "ARCHIVED"}, Plain: plain}
	for _, it := range items {
		mark := ui.Render(ui.StyleSubtle, "no", plain)
		if it.Archived {
			mark = ui.Render(ui.StyleSuccess, "yes", plain)
		}
		table.Rows = append(table.Rows, []string{it.Bucket, mark})
	}
	fmt.Fprint(w, table.Render())
	return nil
}

func writeArchive(w io.Writer, app *App, ref, bucketName string) error {
	doc, err := findDocument(app.Registry.Current(), ref)
	if err != nil {
		return err
	}
	bucket, err := timebucket.ParseBucket(bucketName, app.Coordinator.Location())
	if err != nil {
		return fmt.Errorf("invalid bucket %q: %w", bucketName, err)
	}

	content, ok, err := app.Coordinator.ReadArchivedArtifact(doc, bucket)
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}
	if !ok {
		return fmt.Errorf("no archive of %s for %s", doc.Key(), bucketName)
	}
	_, err = w.Write(content)
	return err
}
