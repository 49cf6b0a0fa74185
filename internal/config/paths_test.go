package config

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestGetDataDir(t *testing.T) {
	orig := GetGlobalConfigDir
	defer func() { GetGlobalConfigDir = orig }()
	GetGlobalConfigDir = func() (string, error) { return "/home/test/.rboard", nil }

	if got := GetDataDir("/var/lib/rboard"); got != "/var/lib/rboard" {
		t.Errorf("explicit path ignored, got %q", got)
	}

	t.Setenv("XDG_DATA_HOME", "/xdg")
	if got := GetDataDir(""); got != filepath.Join("/xdg", "rboard") {
		t.Errorf("XDG_DATA_HOME ignored, got %q", got)
	}

	t.Setenv("XDG_DATA_HOME", "")
	if got := GetDataDir(""); got != "/home/test/.rboard" {
		t.Errorf("expected global dir, got %q", got)
	}

	GetGlobalConfigDir = func() (string, error) { return "", errors.New("no home") }
	if got := GetDataDir(""); got != ".rboard" {
		t.Errorf("expected local fallback, got %q", got)
	}
}

func TestResolveDir(t *testing.T) {
	if got := ResolveDir("/srv/reports", "Archives"); got != filepath.Join("/srv/reports", "Archives") {
		t.Errorf("got %q", got)
	}
	if got := ResolveDir("/srv/reports", "/data/archives"); got != "/data/archives" {
		t.Errorf("got %q", got)
	}
}
