package ui

import (
	"bytes"
	"strings"
	"testing"
)

func TestTable_RenderPlain(t *testing.T) {
	table := &Table{
		Headers: []string{"CATEGORY", "REPORT", "REFRESH"},
		Rows: [][]string{
			{"Sales", "weekly-sales", "1h0m0s"},
			{"Ops", "stock", "30m0s"},
		},
		Plain: true,
	}

	out := table.Render()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), out)
	}
	if lines[0] != " CATEGORY  REPORT        REFRESH" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[2] != " Sales     weekly-sales  1h0m0s" {
		t.Errorf("row = %q", lines[2])
	}
}

func TestTable_MaxWidthTruncates(t *testing.T) {
	table := &Table{
		Headers:  []string{"NAME"},
		Rows:     [][]string{{"a-very-long-report-name"}},
		MaxWidth: 8,
		Plain:    true,
	}
	if !strings.Contains(table.Render(), "a-very-…") {
		t.Errorf("expected truncated cell, got %q", table.Render())
	}
}

func TestTable_Empty(t *testing.T) {
	if (&Table{}).Render() != "" {
		t.Error("table without headers renders nothing")
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("a buffer is not a terminal")
	}
}
