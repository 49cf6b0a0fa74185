package config

import (
	"os"
	"path/filepath"
)

// GetGlobalConfigDir returns the per-user configuration directory (~/.rboard).
// It's a variable to allow overriding in tests.
var GetGlobalConfigDir = func() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".rboard"), nil
}

// GetDataDir returns where the journal and crash logs are kept.
// Resolution order (first match wins):
// 1. explicit path
// 2. XDG_DATA_HOME/rboard (if XDG_DATA_HOME is set)
// 3. ~/.rboard
// 4. ./.rboard
func GetDataDir(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "rboard")
	}
	dir, err := GetGlobalConfigDir()
	if err != nil {
		return ".rboard"
	}
	return dir
}

// ResolveDir returns dir, joined to base when it is relative.
func ResolveDir(base, dir string) string {
	if filepath.IsAbs(dir) || base == "" {
		return dir
	}
	return filepath.Join(base, dir)
}
