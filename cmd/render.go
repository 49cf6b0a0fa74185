/*
Copyright © 2025 The Rboard Authors
*/
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jbatonnet/Rboard/internal/ui"
)

var (
	renderForce       bool
	renderSkipInstall bool
)

// renderCmd represents the render command
var renderCmd = &cobra.Command{
	Use:   "render <category>/<name>",
	Short: "Render a report now",
	Long: `Render a report the way the server does on access: the previous render
is archived when it belongs to an earlier bucket, and a render younger than
the refresh interval is kept unless --force is given.

Examples:
  rboard render sales/weekly-sales
  rboard render "sales/Weekly Sales" --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = app.Close() }()

		if !renderSkipInstall {
			if err := app.Prepare(cmd.Context()); err != nil {
				return fmt.Errorf("install R packages: %w", err)
			}
		}
		return runRender(cmd.Context(), cmd.OutOrStdout(), app, args[0], renderForce)
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().BoolVarP(&renderForce, "force", "f", false, "render even if the current render is fresh")
	renderCmd.Flags().BoolVar(&renderSkipInstall, "skip-install", false, "do not install missing R packages first")
}

func runRender(ctx context.Context, w io.Writer, app *App, ref string, force bool) error {
	doc, err := findDocument(app.Registry.Current(), ref)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	path, err := app.Coordinator.Access(ctx, doc, force)
	if err != nil {
		return fmt.Errorf("render %s: %w", doc.Key(), err)
	}

	if isJSON() {
		return printJSON(w, map[string]string{"report": doc.Key().String(), "path": path})
	}
	fmt.Fprintf(w, "%s %s\n", ui.Render(ui.StyleSuccess, "✓", isPlain(w)), path)
	return nil
}
