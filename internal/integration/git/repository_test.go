package git

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValid(t *testing.T) {
	dir, cleanup := testRepo(t)
	defer cleanup()
	gitCmd(t, dir, "commit", "--allow-empty", "-m", "init")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry(testConfig())
	defer reg.Close()
	ctx := context.Background()

	tests := []struct {
		path string
		want bool
	}{
		{dir, true},
		{filepath.Join(dir, "sub"), false},
		{filepath.Join(dir, "missing"), false},
		{t.TempDir(), false},
	}

	for _, tt := range tests {
		h, err := reg.Acquire(tt.path)
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		if got := h.Valid(ctx); got != tt.want {
			t.Errorf("Valid(%s) = %v, want %v", tt.path, got, tt.want)
		}
		h.Release()
	}
}

func TestInitialize(t *testing.T) {
	h, cleanup := initRepo(t)
	defer cleanup()
	ctx := context.Background()

	if !h.Valid(ctx) {
		t.Fatal("expected initialized repository to be valid")
	}

	history, err := h.History(ctx, "", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected the initial commit, got %d commits", len(history))
	}
	if history[0].Author != "Test User" {
		t.Errorf("expected configured author, got %q", history[0].Author)
	}

	if h.State() != Clean {
		t.Errorf("expected clean state, got %v", h.State())
	}
}

func TestStatusAndIsClean(t *testing.T) {
	h, cleanup := initRepo(t)
	defer cleanup()
	ctx := context.Background()

	clean, err := h.IsClean(ctx)
	if err != nil {
		t.Fatalf("is clean: %v", err)
	}
	if !clean {
		t.Error("expected fresh repository to be clean")
	}

	createFile(t, h.Path(), "tracked.txt", "one")
	gitCmd(t, h.Path(), "add", "tracked.txt")
	createFile(t, h.Path(), "new file.txt", "two")

	status, err := h.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Branch == "" || status.Head == "" {
		t.Errorf("expected branch and head, got %+v", status)
	}
	if len(status.Staged) != 1 || status.Staged[0].Path != "tracked.txt" || status.Staged[0].Status != StatusAdded {
		t.Errorf("unexpected staged entries %+v", status.Staged)
	}
	if len(status.Untracked) != 1 || status.Untracked[0] != "new file.txt" {
		t.Errorf("unexpected untracked entries %+v", status.Untracked)
	}

	clean, _ = h.IsClean(ctx)
	if clean {
		t.Error("expected dirty working copy")
	}
}

func TestParseStatus(t *testing.T) {
	output := strings.Join([]string{
		"# branch.oid (initial)",
		"# branch.head (detached)",
		"1 .M N... 100644 100644 100644 aaaa bbbb docs/a file.txt",
		"2 R. N... 100644 100644 100644 aaaa bbbb R100 new.txt\told.txt",
		"u UU N... 100644 100644 100644 100644 aaaa bbbb cccc both.txt",
		"? loose.txt",
	}, "\n")

	status, err := parseStatus(output)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if !status.IsDetached() || status.Head != "" {
		t.Errorf("expected detached unborn head, got %+v", status)
	}
	if len(status.Unstaged) != 1 || status.Unstaged[0].Path != "docs/a file.txt" || status.Unstaged[0].Status != StatusModified {
		t.Errorf("unexpected unstaged %+v", status.Unstaged)
	}
	if len(status.Staged) != 1 || status.Staged[0].OldPath != "old.txt" || status.Staged[0].Status != StatusRenamed {
		t.Errorf("unexpected staged %+v", status.Staged)
	}
	if !status.HasConflicts() || status.Conflicts[0] != "both.txt" {
		t.Errorf("unexpected conflicts %+v", status.Conflicts)
	}
	if len(status.Untracked) != 1 || status.Untracked[0] != "loose.txt" {
		t.Errorf("unexpected untracked %+v", status.Untracked)
	}
}

func TestRevisionAndDescribe(t *testing.T) {
	h, cleanup := initRepo(t)
	defer cleanup()
	ctx := context.Background()

	rev, err := h.Revision(ctx, "")
	if err != nil {
		t.Fatalf("revision: %v", err)
	}
	if len(rev) != 40 {
		t.Errorf("expected full commit id, got %q", rev)
	}

	desc, err := h.Describe(ctx)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if !strings.HasPrefix(rev, desc) {
		t.Errorf("expected abbreviated id, got %q", desc)
	}

	gitCmd(t, h.Path(), "tag", "v1")
	cached, _ := h.Describe(ctx)
	if cached != desc {
		t.Errorf("expected cached description, got %q", cached)
	}

	if err := h.Checkout(ctx, "v1"); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	fresh, _ := h.Describe(ctx)
	if fresh != "v1" {
		t.Errorf("expected checkout to refresh the description, got %q", fresh)
	}
}

func TestDiagnosticOnFailure(t *testing.T) {
	h, cleanup := initRepo(t)
	defer cleanup()

	err := h.Checkout(context.Background(), "no-such-branch")
	if err == nil {
		t.Fatal("expected checkout of unknown branch to fail")
	}
	if !errors.Is(err, ErrCommandFailed) {
		t.Errorf("expected ErrCommandFailed, got %v", err)
	}
	if !strings.Contains(h.Diagnostic(), "no-such-branch") {
		t.Errorf("expected git output in diagnostic, got %q", h.Diagnostic())
	}
}

func TestOperationsAfterReleaseAreAborted(t *testing.T) {
	h, cleanup := initRepo(t)
	defer cleanup()

	h.Release()

	_, err := h.Branch(context.Background())
	if !errors.Is(err, ErrAborted) {
		t.Errorf("expected ErrAborted after release, got %v", err)
	}
}

func TestContextCancelAbortsCommand(t *testing.T) {
	h, cleanup := initRepo(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := h.Branch(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if h.Queue().Len() != 0 {
		t.Error("cancelled command left in queue")
	}
}
