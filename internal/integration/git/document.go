package git

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a parsed document tree.
type Document = map[string]any

// Codec renders document trees to text and parses them back.
type Codec interface {
	Render(doc Document) ([]byte, error)
	Parse(data []byte) (Document, error)
}

// YAMLCodec stores documents as YAML.
type YAMLCodec struct{}

// Render implements Codec.
func (YAMLCodec) Render(doc Document) ([]byte, error) {
	return yaml.Marshal(doc)
}

// Parse implements Codec. An empty file parses to an empty document.
func (YAMLCodec) Parse(data []byte) (Document, error) {
	doc := Document{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

const backupSuffix = ".bak"

// Write renders doc and atomically replaces the file name inside the
// working copy. The new content goes to a temporary sibling first; the old
// file is moved aside to a backup, the temporary file takes its place and
// the backup is removed. At any point either the old or the new content is
// on disk.
func (r *Repository) Write(ctx context.Context, name string, doc Document) error {
	target, err := r.resolveDocument(name)
	if err != nil {
		return err
	}

	data, err := r.cfg.Codec.Render(doc)
	if err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}

	if err := r.queue.WaitForCompletion(ctx); err != nil {
		return err
	}

	if err := recoverBackup(target); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	backup := target + backupSuffix
	hadOriginal := false
	if _, err := os.Stat(target); err == nil {
		if err := os.Rename(target, backup); err != nil {
			return fmt.Errorf("back up %s: %w", name, err)
		}
		hadOriginal = true
	}

	if err := os.Rename(tmpName, target); err != nil {
		if hadOriginal {
			_ = os.Rename(backup, target)
		}
		return fmt.Errorf("replace %s: %w", name, err)
	}
	committed = true

	if hadOriginal {
		if err := os.Remove(backup); err != nil {
			r.log.Warn().Err(err).Str("file", backup).Msg("remove document backup")
		}
	}

	r.markDirty()
	return nil
}

// Read parses the file name inside the working copy. It returns a nil
// document and fs.ErrNotExist when the file is absent.
func (r *Repository) Read(ctx context.Context, name string) (Document, error) {
	target, err := r.resolveDocument(name)
	if err != nil {
		return nil, err
	}

	if err := r.queue.WaitForCompletion(ctx); err != nil {
		return nil, err
	}

	if err := recoverBackup(target); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	doc, err := r.cfg.Codec.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return doc, nil
}

// recoverBackup finishes a write interrupted between its two renames.
// A backup without the target is the only surviving content and is put
// back; a backup next to the target is stale.
func recoverBackup(target string) error {
	backup := target + backupSuffix
	if _, err := os.Stat(backup); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	if _, err := os.Stat(target); errors.Is(err, fs.ErrNotExist) {
		if err := os.Rename(backup, target); err != nil {
			return fmt.Errorf("restore %s: %w", target, err)
		}
		return nil
	}
	return os.Remove(backup)
}

// resolveDocument maps a relative name to a path inside the working copy.
// Names that are absolute, point into .git, or escape the root through
// ".." or symlinks are rejected.
func (r *Repository) resolveDocument(name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("%w: %q", ErrPathEscapesRoot, name)
	}

	root := canonicalize(r.path)
	target := canonicalize(filepath.Join(root, name))

	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrPathEscapesRoot, name)
	}
	first := strings.Split(rel, string(filepath.Separator))[0]
	if rel == "." || first == ".." || first == ".git" {
		return "", fmt.Errorf("%w: %q", ErrPathEscapesRoot, name)
	}
	return target, nil
}

// canonicalize resolves symlinks in the longest existing prefix of path.
func canonicalize(path string) string {
	path = filepath.Clean(path)
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	var rest []string
	cur := path
	for {
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return path
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}
