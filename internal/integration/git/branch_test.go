package git

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestBranchOperations(t *testing.T) {
	h, cleanup := initRepo(t)
	defer cleanup()
	ctx := context.Background()

	current, err := h.Branch(ctx)
	if err != nil {
		t.Fatalf("branch: %v", err)
	}
	if current == "" {
		t.Fatal("expected a current branch")
	}

	if err := h.AddBranch(ctx, "feature", ""); err != nil {
		t.Fatalf("add branch: %v", err)
	}
	// Creating it again is not an error.
	if err := h.AddBranch(ctx, "feature", ""); err != nil {
		t.Fatalf("add existing branch: %v", err)
	}

	branches, err := h.Branches(ctx, false)
	if err != nil {
		t.Fatalf("branches: %v", err)
	}
	if len(branches) != 2 {
		t.Fatalf("expected 2 branches, got %+v", branches)
	}
	for _, b := range branches {
		if b.IsHead != (b.Name == current) {
			t.Errorf("unexpected head flag on %+v", b)
		}
		if b.Hash == "" || b.IsRemote {
			t.Errorf("unexpected branch %+v", b)
		}
	}

	if err := h.RenBranch(ctx, "feature", "renamed"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if ok, _ := h.hasBranch(ctx, "renamed"); !ok {
		t.Error("expected renamed branch")
	}

	if err := h.Checkout(ctx, "renamed"); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if got, _ := h.Branch(ctx); got != "renamed" {
		t.Errorf("expected renamed checked out, got %q", got)
	}

	if err := h.Checkout(ctx, current); err != nil {
		t.Fatal(err)
	}
	if err := h.DelBranch(ctx, "renamed", false); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := h.hasBranch(ctx, "renamed"); ok {
		t.Error("expected branch deleted")
	}
}

func TestBranchDetached(t *testing.T) {
	h, cleanup := initRepo(t)
	defer cleanup()
	ctx := context.Background()

	rev, _ := h.Revision(ctx, "")
	if err := h.Checkout(ctx, rev); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	name, err := h.Branch(ctx)
	if err != nil {
		t.Fatalf("branch on detached head: %v", err)
	}
	if name != "" {
		t.Errorf("expected empty branch when detached, got %q", name)
	}
}

func TestSetTask(t *testing.T) {
	h, cleanup := initRepo(t)
	defer cleanup()
	ctx := context.Background()

	base, _ := h.Branch(ctx)
	createFile(t, h.Path(), "draft.txt", "unsaved")

	if err := h.SetTask(ctx, "chapter-1"); err != nil {
		t.Fatalf("set task: %v", err)
	}
	if got, _ := h.Branch(ctx); got != "chapter-1" {
		t.Errorf("expected chapter-1, got %q", got)
	}
	if clean, _ := h.IsClean(ctx); !clean {
		t.Error("expected pending work committed before switching")
	}

	// The pending work was committed on the original branch.
	history, _ := h.History(ctx, base, 0)
	if len(history) != 2 {
		t.Errorf("expected auto-commit on %s, got %d commits", base, len(history))
	}

	// Switching back to an existing task reuses the branch.
	if err := h.SetTask(ctx, base); err != nil {
		t.Fatalf("set task back: %v", err)
	}
	if got, _ := h.Branch(ctx); got != base {
		t.Errorf("expected %s, got %q", base, got)
	}
}

// divergedRepo leaves the current branch and "side" both changing f.txt.
func divergedRepo(t *testing.T) (*Handle, func()) {
	t.Helper()
	h, cleanup := initRepo(t)
	ctx := context.Background()

	createFile(t, h.Path(), "f.txt", "base\n")
	if _, err := h.Commit(ctx, "base", true); err != nil {
		cleanup()
		t.Fatal(err)
	}
	base, _ := h.Branch(ctx)

	if err := h.SetTask(ctx, "side"); err != nil {
		cleanup()
		t.Fatal(err)
	}
	createFile(t, h.Path(), "f.txt", "side\n")
	if _, err := h.Commit(ctx, "side", true); err != nil {
		cleanup()
		t.Fatal(err)
	}

	if err := h.Checkout(ctx, base); err != nil {
		cleanup()
		t.Fatal(err)
	}
	createFile(t, h.Path(), "f.txt", "main\n")
	if _, err := h.Commit(ctx, "main", true); err != nil {
		cleanup()
		t.Fatal(err)
	}
	return h, cleanup
}

func TestMergePreferTheirs(t *testing.T) {
	h, cleanup := divergedRepo(t)
	defer cleanup()

	if err := h.Merge(context.Background(), "side", PreferTheirs); err != nil {
		t.Fatalf("merge: %v (%s)", err, h.Diagnostic())
	}

	data, _ := os.ReadFile(filepath.Join(h.Path(), "f.txt"))
	if string(data) != "side\n" {
		t.Errorf("expected their content, got %q", data)
	}
}

func TestMergeManualConflict(t *testing.T) {
	h, cleanup := divergedRepo(t)
	defer cleanup()
	ctx := context.Background()

	err := h.Merge(ctx, "side", Manual)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if h.State() != NotClean {
		t.Error("expected conflicted working copy to be not clean")
	}

	status, err := h.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !status.HasConflicts() || status.Conflicts[0] != "f.txt" {
		t.Errorf("expected f.txt in conflict, got %+v", status.Conflicts)
	}
}
