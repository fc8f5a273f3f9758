package loader

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"testing"
	"time"
)

type memFS map[string]string

func (m memFS) ReadFile(path string) ([]byte, error) {
	data, ok := m[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return []byte(data), nil
}

func (m memFS) Stat(path string) (fs.FileInfo, error) {
	if _, ok := m[path]; !ok {
		return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
	}
	return memInfo(path), nil
}

type memInfo string

func (i memInfo) Name() string       { return string(i) }
func (i memInfo) Size() int64        { return 0 }
func (i memInfo) Mode() fs.FileMode  { return 0o644 }
func (i memInfo) ModTime() time.Time { return time.Time{} }
func (i memInfo) IsDir() bool        { return false }
func (i memInfo) Sys() any           { return nil }

func TestTOMLLoader_Load(t *testing.T) {
	fsys := memFS{"/etc/docsync.toml": `
[git]
executable = "/usr/local/bin/git"

[folders]
documents = "/home/u/Documents"

[cache]
cleanupOnFailure = ["module", "template"]
`}

	config, err := NewTOMLLoaderWithFS(fsys, "/etc/docsync.toml").Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	git, ok := config["git"].(map[string]any)
	if !ok || git["executable"] != "/usr/local/bin/git" {
		t.Errorf("git.executable = %v", config["git"])
	}
	cache := config["cache"].(map[string]any)
	list, ok := cache["cleanupOnFailure"].([]any)
	if !ok || len(list) != 2 || list[1] != "template" {
		t.Errorf("cache.cleanupOnFailure = %#v", cache["cleanupOnFailure"])
	}
}

func TestTOMLLoader_Missing(t *testing.T) {
	config, err := NewTOMLLoaderWithFS(memFS{}, "/nope.toml").Load()
	if err != nil || config != nil {
		t.Errorf("Load() = %v, %v; want nil, nil", config, err)
	}

	config, err = NewTOMLLoader("").Load()
	if err != nil || config != nil {
		t.Errorf("empty path: Load() = %v, %v; want nil, nil", config, err)
	}
}

func TestTOMLLoader_ParseError(t *testing.T) {
	fsys := memFS{"/bad.toml": "[git]\nexecutable = = 1\n"}

	_, err := NewTOMLLoaderWithFS(fsys, "/bad.toml").Load()
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
	if perr.Path != "/bad.toml" {
		t.Errorf("Path = %q", perr.Path)
	}
	if perr.Line != 2 {
		t.Errorf("Line = %d, want 2", perr.Line)
	}
	if !strings.Contains(perr.Error(), "line 2") {
		t.Errorf("Error() = %q", perr.Error())
	}
}

func TestTOMLLoader_LoadFromReader(t *testing.T) {
	config, err := NewTOMLLoader("").LoadFromReader(strings.NewReader("[logging]\nlevel = \"debug\"\n"))
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}
	if config["logging"].(map[string]any)["level"] != "debug" {
		t.Errorf("logging = %v", config["logging"])
	}
}

func TestEnvLoader_Load(t *testing.T) {
	l := NewEnvLoader(DefaultEnvPrefix)
	l.environ = func() []string {
		return []string{
			"HOME=/home/u",
			"DOCSYNC_LOG_LEVEL=debug",
			"DOCSYNC_GIT=/opt/git",
			"DOCSYNC_REPOSITORY_POLL_INTERVAL=5s",
			"DOCSYNC_PROCESS_MAX_OUTPUT=4096",
			"DOCSYNC_CACHE_CLEANUP_ON_FAILURE=[\"module\"]",
			"DOCSYNC_GIT_AUTHOR_NAME=",
		}
	}

	config, err := l.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tests := []struct {
		path string
		want any
	}{
		{"logging.level", "debug"},
		{"git.executable", "/opt/git"},
		{"repository.pollInterval", "5s"},
		{"process.maxOutput", int64(4096)},
		{"git.authorName", ""},
	}
	for _, tt := range tests {
		got, ok := getByPath(config, tt.path)
		if !ok || got != tt.want {
			t.Errorf("%s = %#v, want %#v", tt.path, got, tt.want)
		}
	}

	list, _ := getByPath(config, "cache.cleanupOnFailure")
	if items, ok := list.([]any); !ok || len(items) != 1 || items[0] != "module" {
		t.Errorf("cache.cleanupOnFailure = %#v", list)
	}
	if _, ok := config["home"]; ok {
		t.Error("unprefixed variable was loaded")
	}
}

func TestEnvLoader_Empty(t *testing.T) {
	l := NewEnvLoader(DefaultEnvPrefix)
	l.environ = func() []string { return []string{"PATH=/bin"} }

	config, err := l.Load()
	if err != nil || config != nil {
		t.Errorf("Load() = %v, %v; want nil, nil", config, err)
	}
}

func TestEnvLoader_AddMapping(t *testing.T) {
	l := NewEnvLoaderWithMapping("APP_", nil)
	l.AddMapping("APP_DOCS", "folders.documents")
	l.environ = func() []string { return []string{"APP_DOCS=/docs"} }

	config, _ := l.Load()
	if got, _ := getByPath(config, "folders.documents"); got != "/docs" {
		t.Errorf("folders.documents = %v", got)
	}
}

func TestEnvLoader_envToPath(t *testing.T) {
	l := NewEnvLoader(DefaultEnvPrefix)

	tests := []struct {
		env  string
		want string
	}{
		{"DOCSYNC_GIT_MIN_VERSION", "git.minVersion"},
		{"DOCSYNC_LOCATOR_DEFAULT_HOST", "locator.defaultHost"},
		{"DOCSYNC_FOLDERS_DOCUMENTS", "folders.documents"},
		{"DOCSYNC_SIMPLE", "simple"},
		{"DOCSYNC_", ""},
	}
	for _, tt := range tests {
		if got := l.envToPath(tt.env); got != tt.want {
			t.Errorf("envToPath(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"Off", false},
		{"1", int64(1)},
		{"2.20.0", "2.20.0"},
		{"2s", "2s"},
		{"{bad", "{bad"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := parseValue(tt.in); got != tt.want {
			t.Errorf("parseValue(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestDeepMerge(t *testing.T) {
	dst := map[string]any{
		"git":     map[string]any{"executable": "git", "minVersion": "2.20.0"},
		"logging": map[string]any{"level": "info"},
	}
	src := map[string]any{
		"git":   map[string]any{"executable": "/opt/git"},
		"cache": map[string]any{"path": "/tmp/c.db"},
	}

	merged := DeepMerge(dst, src)

	git := merged["git"].(map[string]any)
	if git["executable"] != "/opt/git" || git["minVersion"] != "2.20.0" {
		t.Errorf("git = %v", git)
	}
	if merged["logging"].(map[string]any)["level"] != "info" {
		t.Errorf("logging = %v", merged["logging"])
	}

	// The merged copy of a new section does not alias src.
	merged["cache"].(map[string]any)["path"] = "changed"
	if src["cache"].(map[string]any)["path"] != "/tmp/c.db" {
		t.Error("DeepMerge aliased a source map")
	}
}

func TestClone(t *testing.T) {
	src := map[string]any{
		"cache": map[string]any{"cleanupOnFailure": []any{"module"}},
		"list":  []string{"a"},
	}
	dst := Clone(src)

	dst["cache"].(map[string]any)["cleanupOnFailure"].([]any)[0] = "document"
	dst["list"].([]string)[0] = "b"

	if src["cache"].(map[string]any)["cleanupOnFailure"].([]any)[0] != "module" {
		t.Error("Clone shares nested slices")
	}
	if src["list"].([]string)[0] != "a" {
		t.Error("Clone shares string slices")
	}
	if Clone(nil) != nil {
		t.Error("Clone(nil) != nil")
	}
}

func TestOSFS(t *testing.T) {
	path := t.TempDir() + "/c.toml"
	if err := os.WriteFile(path, []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	config, err := NewTOMLLoader(path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config["x"] != int64(1) {
		t.Errorf("x = %#v", config["x"])
	}
}

func getByPath(data map[string]any, path string) (any, bool) {
	current := any(data)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
