package git

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteReadDocument(t *testing.T) {
	h, cleanup := initRepo(t)
	defer cleanup()
	ctx := context.Background()

	doc := Document{
		"title":    "Design notes",
		"sections": []any{"intro", "body"},
		"meta":     map[string]any{"rev": 3},
	}
	if err := h.Write(ctx, "notes/design.yaml", doc); err != nil {
		t.Fatalf("write: %v", err)
	}
	if h.State() != NotClean {
		t.Error("expected write to mark the repository dirty")
	}

	got, err := h.Read(ctx, "notes/design.yaml")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got["title"] != "Design notes" {
		t.Errorf("title = %v", got["title"])
	}
	if sections, ok := got["sections"].([]any); !ok || len(sections) != 2 {
		t.Errorf("sections = %v", got["sections"])
	}

	if err := h.Write(ctx, "notes/design.yaml", Document{"title": "Rewritten"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = h.Read(ctx, "notes/design.yaml")
	if got["title"] != "Rewritten" || got["sections"] != nil {
		t.Errorf("expected replaced document, got %v", got)
	}

	entries, _ := os.ReadDir(filepath.Join(h.Path(), "notes"))
	if len(entries) != 1 {
		t.Errorf("expected no temporary or backup files, got %d entries", len(entries))
	}
}

func TestReadMissingDocument(t *testing.T) {
	h, cleanup := initRepo(t)
	defer cleanup()

	doc, err := h.Read(context.Background(), "absent.yaml")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
	if doc != nil {
		t.Errorf("expected nil document, got %v", doc)
	}
}

func TestReadEmptyDocument(t *testing.T) {
	h, cleanup := initRepo(t)
	defer cleanup()

	createFile(t, h.Path(), "empty.yaml", "")
	doc, err := h.Read(context.Background(), "empty.yaml")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if doc == nil || len(doc) != 0 {
		t.Errorf("expected empty document, got %v", doc)
	}
}

func TestReadRecoversInterruptedWrite(t *testing.T) {
	h, cleanup := initRepo(t)
	defer cleanup()
	ctx := context.Background()

	// Interrupted after the old file moved aside.
	createFile(t, h.Path(), "a.yaml.bak", "title: old\n")
	doc, err := h.Read(ctx, "a.yaml")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if doc["title"] != "old" {
		t.Errorf("expected restored backup, got %v", doc)
	}
	if _, err := os.Stat(filepath.Join(h.Path(), "a.yaml.bak")); !os.IsNotExist(err) {
		t.Error("expected backup consumed")
	}

	// Interrupted after the new file took its place.
	createFile(t, h.Path(), "b.yaml", "title: new\n")
	createFile(t, h.Path(), "b.yaml.bak", "title: old\n")
	doc, err = h.Read(ctx, "b.yaml")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if doc["title"] != "new" {
		t.Errorf("expected new content, got %v", doc)
	}
	if _, err := os.Stat(filepath.Join(h.Path(), "b.yaml.bak")); !os.IsNotExist(err) {
		t.Error("expected stale backup removed")
	}
}

func TestResolveDocument(t *testing.T) {
	h, cleanup := initRepo(t)
	defer cleanup()

	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(h.Path(), "escape")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := os.Mkdir(filepath.Join(h.Path(), "inside"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(h.Path(), "inside"), filepath.Join(h.Path(), "alias")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		ok   bool
	}{
		{"doc.yaml", true},
		{"a/b/c.yaml", true},
		{"a/../doc.yaml", true},
		{"alias/doc.yaml", true},
		{"", false},
		{".", false},
		{"../doc.yaml", false},
		{"a/../../doc.yaml", false},
		{"/etc/passwd", false},
		{".git/config", false},
		{"a/../.git/HEAD", false},
		{"escape/doc.yaml", false},
	}

	for _, tt := range tests {
		path, err := h.resolveDocument(tt.name)
		if tt.ok {
			if err != nil {
				t.Errorf("resolveDocument(%q) error = %v", tt.name, err)
				continue
			}
			root := canonicalize(h.Path())
			if !strings.HasPrefix(path, root+string(filepath.Separator)) {
				t.Errorf("resolveDocument(%q) = %s, outside %s", tt.name, path, root)
			}
			continue
		}
		if !errors.Is(err, ErrPathEscapesRoot) {
			t.Errorf("resolveDocument(%q) = %s, %v; want ErrPathEscapesRoot", tt.name, path, err)
		}
	}

	if err := h.Write(context.Background(), "escape/x.yaml", Document{"a": 1}); !errors.Is(err, ErrPathEscapesRoot) {
		t.Errorf("expected write through symlink to be rejected, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(outside, "x.yaml")); !os.IsNotExist(err) {
		t.Error("write escaped the working copy")
	}
}
