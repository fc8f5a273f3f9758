package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/docsync/internal/integration/git"
	"github.com/dshills/docsync/internal/locator"
)

func writeConfig(t *testing.T, extra string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	content := `
[folders]
documents = "` + filepath.Join(dir, "docs") + `"
templates = "` + filepath.Join(dir, "templates") + `"
modules = "` + filepath.Join(dir, "modules") + `"

[cache]
path = "` + filepath.Join(dir, "cache", "locators.db") + `"
` + extra
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path, dir
}

func TestNew(t *testing.T) {
	path, dir := writeConfig(t, "[logging]\nformat = \"json\"\nlevel = \"debug\"\n")
	var logs bytes.Buffer

	app, err := New(context.Background(), Options{ConfigPath: path, LogOutput: &logs, SkipBackendCheck: true})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer app.Shutdown()

	if app.Config().Path() != path {
		t.Errorf("Config().Path() = %q", app.Config().Path())
	}
	if app.Registry() == nil || app.Paths() == nil || app.Engine() == nil {
		t.Fatal("component missing")
	}
	if _, err := os.Stat(filepath.Join(dir, "cache", "locators.db")); err != nil {
		t.Errorf("cache database not created: %v", err)
	}
	if !bytes.Contains(logs.Bytes(), []byte(`"configuration loaded"`)) {
		t.Errorf("logs = %s", logs.String())
	}

	l, err := locator.Parse("tao://example.com/proj")
	if err != nil {
		t.Fatal(err)
	}
	paths, err := app.Paths().Paths(context.Background(), l)
	if err != nil || len(paths) != 0 {
		t.Errorf("Paths() = %v, %v", paths, err)
	}

	if err := app.Shutdown(); err != nil {
		t.Errorf("Shutdown() = %v", err)
	}
	if err := app.Shutdown(); err != nil {
		t.Errorf("second Shutdown() = %v", err)
	}
}

func TestNewOverrides(t *testing.T) {
	path, _ := writeConfig(t, "")

	app, err := New(context.Background(), Options{
		ConfigPath:       path,
		SkipBackendCheck: true,
		Overrides:        map[string]any{"logging.level": "error", "cache.path": ""},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer app.Shutdown()

	if got := app.Config().Logging().Level; got != "error" {
		t.Errorf("Level = %q", got)
	}
	if app.Logger().GetLevel().String() != "error" {
		t.Errorf("logger level = %v", app.Logger().GetLevel())
	}
}

func TestNewInvalidConfig(t *testing.T) {
	path, _ := writeConfig(t, "[repository]\nconflictPolicy = \"mine\"\n")

	_, err := New(context.Background(), Options{ConfigPath: path, SkipBackendCheck: true})
	var ie *InitError
	if !errors.As(err, &ie) || ie.Component != "config" {
		t.Fatalf("error = %v, want config InitError", err)
	}
}

func TestNewMissingBackend(t *testing.T) {
	path, _ := writeConfig(t, "[git]\nexecutable = \"/nonexistent/git\"\n")

	_, err := New(context.Background(), Options{ConfigPath: path, LogOutput: &bytes.Buffer{}})
	var ie *InitError
	if !errors.As(err, &ie) || ie.Component != "backend" {
		t.Fatalf("error = %v, want backend InitError", err)
	}
	if !errors.Is(err, git.ErrBackendUnavailable) {
		t.Errorf("error = %v, want ErrBackendUnavailable", err)
	}
}

func TestOpenNotRepository(t *testing.T) {
	path, _ := writeConfig(t, "")
	app, err := New(context.Background(), Options{ConfigPath: path, SkipBackendCheck: true})
	if err != nil {
		t.Fatal(err)
	}
	defer app.Shutdown()

	_, err = app.Open(context.Background(), t.TempDir())
	if !errors.Is(err, git.ErrNotRepository) {
		t.Errorf("Open() = %v, want ErrNotRepository", err)
	}
	if n := app.Registry().Len(); n != 0 {
		t.Errorf("registry holds %d entries after a failed Open", n)
	}
}
