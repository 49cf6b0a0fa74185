package render

import (
	"context"
	"fmt"
	"regexp"
)

// basePackages are needed by every render.
var basePackages = []string{"rmarkdown", "flexdashboard"}

var packageName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9._]*$`)

const cranMirror = "http://cran.rstudio.com/"

// IsPackageInstalled reports whether the R package pkg is installed.
func (r *RScript) IsPackageInstalled(ctx context.Context, pkg string) (bool, error) {
	if !packageName.MatchString(pkg) {
		return false, fmt.Errorf("invalid package name %q", pkg)
	}
	rscript, err := r.RScriptPath()
	if err != nil {
		return false, err
	}
	expr := fmt.Sprintf("if (!('%s' %%in%% rownames(installed.packages()))) quit(save = 'no', status = -1)", pkg)

	r.renderMu.Lock()
	defer r.renderMu.Unlock()

	code, stderr, err := r.run(ctx, "", rscript, "-e", expr)
	if err != nil {
		return false, fmt.Errorf("run %s: %w", rscript, err)
	}
	switch code {
	case 0:
		return true, nil
	case -1, 255:
		return false, nil
	default:
		return false, fmt.Errorf("check package %s: exit code %d: %s", pkg, code, stderr)
	}
}

// InstallPackages installs every package of pkgs that is missing, in order.
func (r *RScript) InstallPackages(ctx context.Context, pkgs ...string) error {
	if len(pkgs) == 0 {
		return nil
	}
	rscript, err := r.RScriptPath()
	if err != nil {
		return err
	}

	r.installMu.Lock()
	defer r.installMu.Unlock()

	for _, pkg := range pkgs {
		installed, err := r.IsPackageInstalled(ctx, pkg)
		if err != nil {
			return err
		}
		if installed {
			continue
		}

		r.logger.Info("installing package", "package", pkg)
		expr := fmt.Sprintf("if (!('%s' %%in%% rownames(installed.packages()))) install.packages('%s', repos = '%s')", pkg, pkg, cranMirror)
		code, stderr, err := r.run(ctx, "", rscript, "-e", expr)
		if err != nil {
			return fmt.Errorf("run %s: %w", rscript, err)
		}
		if code != 0 {
			return fmt.Errorf("install package %s: exit code %d: %s", pkg, code, stderr)
		}
		r.logger.Info("installed package", "package", pkg)
	}
	return nil
}

// Prepare installs the packages every render needs, the configured packages
// and libs.
func (r *RScript) Prepare(ctx context.Context, libs []string) error {
	seen := map[string]bool{}
	var pkgs []string
	for _, group := range [][]string{basePackages, r.config().Packages, libs} {
		for _, pkg := range group {
			if !seen[pkg] {
				seen[pkg] = true
				pkgs = append(pkgs, pkg)
			}
		}
	}
	return r.InstallPackages(ctx, pkgs...)
}
