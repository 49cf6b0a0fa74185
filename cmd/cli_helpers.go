package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/viper"

	"github.com/jbatonnet/Rboard/internal/report"
	"github.com/jbatonnet/Rboard/internal/ui"
)

func isJSON() bool {
	return viper.GetBool("json")
}

func printJSON(w io.Writer, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}

// isPlain reports whether output to w should be left unstyled.
func isPlain(w io.Writer) bool {
	return !ui.IsTerminal(w)
}

// parseReportRef splits a "<category>/<name>" reference. The name may be
// either the report name or its slug.
func parseReportRef(ref string) (report.Key, error) {
	category, name, ok := strings.Cut(ref, "/")
	if !ok || category == "" || name == "" {
		return report.Key{}, fmt.Errorf("invalid report %q, expected <category>/<name>", ref)
	}
	return report.Key{Category: strings.ToLower(category), Slug: report.Slugify(name)}, nil
}

// findDocument resolves a reference to a renderable report.
func findDocument(snap *report.Snapshot, ref string) (*report.Document, error) {
	key, err := parseReportRef(ref)
	if err != nil {
		return nil, err
	}
	rep, ok := snap.Find(key.Category, key.Slug)
	if !ok {
		return nil, fmt.Errorf("report %s not found", key)
	}
	doc, ok := rep.(*report.Document)
	if !ok {
		return nil, fmt.Errorf("report %s is a link", key)
	}
	return doc, nil
}
