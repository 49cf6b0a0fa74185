package render

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jbatonnet/Rboard/internal/report"
	"github.com/jbatonnet/Rboard/types"
)

// fakeRun records invocations and captures the intermediate source seen
// while a render runs.
type fakeRun struct {
	mu     sync.Mutex
	calls  [][]string
	dirs   []string
	seen   string
	fs     afero.Fs
	code   func(args []string) int
	stderr string
}

func (f *fakeRun) run(ctx context.Context, dir, name string, args ...string) (int, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.dirs = append(f.dirs, dir)
	if f.fs != nil {
		if data, err := afero.ReadFile(f.fs, "/reports/sales/Weekly_Sales.g.Rmd"); err == nil {
			f.seen = string(data)
		}
	}
	code := 0
	if f.code != nil {
		code = f.code(args)
	}
	return code, f.stderr, nil
}

const source = `---
title: "Ignored"
orientation: rows
---
library(dplyr)
plot(1)
`

func newTestRScript(t *testing.T, f *fakeRun) (*RScript, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/opt/R/bin/Rscript", []byte{}, 0o755))
	require.NoError(t, afero.WriteFile(fs, "/opt/pandoc/bin/pandoc", []byte{}, 0o755))
	require.NoError(t, afero.WriteFile(fs, "/reports/sales/Weekly Sales.Rmd", []byte(source), 0o644))
	t.Setenv("PATH", "/opt/houdini/bin:/opt/R/bin:/opt/pandoc/bin")
	f.fs = fs
	return New(types.RConfig{}, WithFs(fs), withRunner(f.run)), fs
}

func testDoc() *report.Document {
	return &report.Document{
		Info:        report.Info{Category: "Sales", Name: "Weekly Sales", Slug: "weekly-sales"},
		SourcePath:  "/reports/sales/Weekly Sales.Rmd",
		Orientation: "rows",
	}
}

func TestRScript_Render(t *testing.T) {
	f := &fakeRun{}
	r, fs := newTestRScript(t, f)

	err := r.Render(context.Background(), testDoc(), "/reports/sales/Weekly_Sales.g.html")
	require.NoError(t, err)

	require.Len(t, f.calls, 1)
	call := f.calls[0]
	assert.Equal(t, "/opt/R/bin/Rscript", call[0])
	assert.Equal(t, "/reports/sales", f.dirs[0])
	assert.Equal(t, []string{
		"-e", "Sys.setenv(RSTUDIO_PANDOC = '/opt/pandoc/bin')",
		"-e", "rmarkdown::render('/reports/sales/Weekly_Sales.g.Rmd', output_file = '/reports/sales/Weekly_Sales.g.html', quiet = TRUE)",
	}, call[1:])

	exists, err := afero.Exists(fs, "/reports/sales/Weekly_Sales.g.Rmd")
	require.NoError(t, err)
	assert.False(t, exists, "intermediate source is removed")

	parts := strings.SplitN(f.seen, "---\n", 3)
	require.Len(t, parts, 3)
	var header struct {
		Title  string `yaml:"title"`
		Output map[string]struct {
			SelfContained bool   `yaml:"self_contained"`
			LibDir        string `yaml:"lib_dir"`
			CSS           string `yaml:"css"`
			Orientation   string `yaml:"orientation"`
		} `yaml:"output"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(parts[1]), &header))
	assert.Equal(t, "Weekly Sales", header.Title)
	opts := header.Output["flexdashboard::flex_dashboard"]
	assert.False(t, opts.SelfContained)
	assert.Equal(t, "libraries", opts.LibDir)
	assert.Equal(t, "/libraries/flex-custom.css", opts.CSS)
	assert.Equal(t, "rows", opts.Orientation)
	assert.Equal(t, "library(dplyr)\nplot(1)\n", parts[2])
}

func TestRScript_RenderFailure(t *testing.T) {
	f := &fakeRun{code: func([]string) int { return 1 }, stderr: "Error in library(dplyr): there is no package"}
	r, fs := newTestRScript(t, f)

	err := r.Render(context.Background(), testDoc(), "/tmp/out.html")

	var renderErr *RenderError
	require.True(t, errors.As(err, &renderErr))
	assert.Equal(t, 1, renderErr.ExitCode)
	assert.Contains(t, renderErr.Error(), "no package")

	exists, _ := afero.Exists(fs, "/reports/sales/Weekly_Sales.g.Rmd")
	assert.False(t, exists)
}

func TestRScript_ExecutableNotFound(t *testing.T) {
	f := &fakeRun{}
	r, _ := newTestRScript(t, f)
	t.Setenv("PATH", "/nowhere")

	err := r.Render(context.Background(), testDoc(), "/tmp/out.html")
	assert.ErrorIs(t, err, ErrExecutableNotFound)
	assert.Empty(t, f.calls)
}

func TestRScript_LookPathSkipsHoudini(t *testing.T) {
	f := &fakeRun{}
	r, fs := newTestRScript(t, f)
	require.NoError(t, afero.WriteFile(fs, "/opt/houdini/bin/Rscript", []byte{}, 0o755))

	path, err := r.RScriptPath()
	require.NoError(t, err)
	assert.Equal(t, "/opt/R/bin/Rscript", path)

	r.SetConfig(types.RConfig{RScriptExecutable: "/opt/houdini/bin/Rscript"})
	path, err = r.RScriptPath()
	require.NoError(t, err)
	assert.Equal(t, "/opt/houdini/bin/Rscript", path, "an explicit path is used as is")
}

func TestRScript_InstallPackages(t *testing.T) {
	installed := map[string]bool{"rmarkdown": true, "dplyr": true}
	f := &fakeRun{}
	f.code = func(args []string) int {
		expr := args[len(args)-1]
		if strings.Contains(expr, "install.packages(") {
			return 0
		}
		for pkg, ok := range installed {
			if ok && strings.Contains(expr, "'"+pkg+"'") {
				return 0
			}
		}
		return 255
	}
	r, _ := newTestRScript(t, f)
	r.SetConfig(types.RConfig{Packages: []string{"dplyr", "plotly"}})

	require.NoError(t, r.Prepare(context.Background(), []string{"plotly", "tidyr"}))

	var installs []string
	for _, c := range f.calls {
		if strings.Contains(c[len(c)-1], "install.packages(") {
			installs = append(installs, c[len(c)-1])
		}
	}
	require.Len(t, installs, 3)
	assert.Contains(t, installs[0], "'flexdashboard'")
	assert.Contains(t, installs[1], "'plotly'")
	assert.Contains(t, installs[2], "'tidyr'")
}

func TestRScript_RejectsInvalidPackageName(t *testing.T) {
	r, _ := newTestRScript(t, &fakeRun{})
	_, err := r.IsPackageInstalled(context.Background(), "x'); system('rm")
	assert.Error(t, err)
}

func TestRQuote(t *testing.T) {
	assert.Equal(t, `'C:\\Reports\\it\'s.Rmd'`, rQuote(`C:\Reports\it's.Rmd`))
}
