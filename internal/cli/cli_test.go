package cli

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t      *testing.T
	dir    string
	config string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := t.TempDir()
	config := filepath.Join(dir, "config.toml")
	content := `
[git]
authorName = "Test User"
authorEmail = "test@example.com"

[repository]
pollInterval = "0s"

[locator.schemes]
tao = "file"

[folders]
documents = "` + filepath.Join(dir, "docs") + `"
templates = "` + filepath.Join(dir, "templates") + `"
modules = "` + filepath.Join(dir, "modules") + `"

[cache]
path = "` + filepath.Join(dir, "locators.db") + `"
`
	require.NoError(t, os.WriteFile(config, []byte(content), 0o644))
	return &harness{t: t, dir: dir, config: config}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out, logs bytes.Buffer
	root := NewRootCmd(BuildInfo{Version: "test", Commit: "abc", Date: "today"}, &logs)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", h.config, "--no-color"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "docsync %s: %s", strings.Join(args, " "), out)
	return out
}

func TestRepositoryCommands(t *testing.T) {
	h := newHarness(t)
	repo := filepath.Join(h.dir, "work")

	out := h.mustRun("init", repo)
	assert.Contains(t, out, "initialized")

	_, err := h.run("init", repo)
	assert.Error(t, err, "init twice")

	out = h.mustRun("status", repo)
	assert.Contains(t, out, "clean")

	require.NoError(t, os.WriteFile(filepath.Join(repo, "a.doc"), []byte("hello\n"), 0o644))
	out = h.mustRun("status", repo)
	assert.Contains(t, out, "untracked")
	assert.Contains(t, out, "a.doc")

	out = h.mustRun("commit", repo, "-a", "-m", "Add a")
	assert.Contains(t, out, "Add a")

	out = h.mustRun("commit", repo, "-a")
	assert.Contains(t, out, "nothing to commit")

	out = h.mustRun("history", repo)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Initial commit")
	assert.Contains(t, lines[1], "Add a")
	assert.Contains(t, lines[1], "Test User")

	out = h.mustRun("history", repo, "-n", "1")
	assert.NotContains(t, out, "Initial commit")

	h.mustRun("checkout", repo, "HEAD~1")
	out = h.mustRun("status", repo)
	assert.Contains(t, out, "detached")

	out = h.mustRun("branches", repo)
	assert.NotEmpty(t, out)
}

func TestStatusNotRepository(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("status", t.TempDir())
	assert.ErrorContains(t, err, "not a git repository")
}

func TestGet(t *testing.T) {
	h := newHarness(t)
	source := filepath.Join(h.dir, "src", "proj")
	h.mustRun("init", source)
	require.NoError(t, os.WriteFile(filepath.Join(source, "main.doc"), []byte("x\n"), 0o644))
	h.mustRun("commit", source, "-a", "-m", "Add main")

	// The source was initialized on the default branch; pin it.
	branch := strings.TrimSpace(gitOutput(t, source, "rev-parse", "--abbrev-ref", "HEAD"))
	locator := "tao://" + filepath.ToSlash(source) + "?d=main.doc&r=" + branch

	out := h.mustRun("get", locator)
	assert.Contains(t, out, "cloned")
	want := filepath.Join(h.dir, "docs", "proj", "main.doc")
	assert.Contains(t, out, want)
	assert.FileExists(t, want)

	out = h.mustRun("get", "-q", locator)
	assert.Equal(t, want+"\n", out, "second get reuses the cached working copy")

	out = h.mustRun("get", "-q", source)
	assert.Equal(t, source+"\n", out, "local paths resolve to themselves")

	out = h.mustRun("refresh")
	assert.Contains(t, out, "document")
	assert.Contains(t, out, "ok")
}

func TestVersion(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun("version")
	assert.Contains(t, out, "docsync test (commit: abc, built: today)")
	assert.Contains(t, out, "git: ")
}

func gitOutput(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	require.NoError(t, err)
	return string(out)
}
