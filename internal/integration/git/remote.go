package git

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dshills/docsync/internal/integration/process"
)

// DefaultRemote is the remote name git gives the clone source.
const DefaultRemote = "origin"

// Remote represents a git remote.
type Remote struct {
	// Name is the remote name (e.g., "origin").
	Name string

	// FetchURL is the URL used for fetching.
	FetchURL string

	// PushURL is the URL used for pushing.
	PushURL string
}

// Remotes returns all configured remotes sorted by name.
func (r *Repository) Remotes(ctx context.Context) ([]Remote, error) {
	lines, err := r.gitLines(ctx, "remote", "-v")
	if err != nil {
		return nil, fmt.Errorf("list remotes: %w", err)
	}

	// Parse output: name\turl (fetch|push)
	remotes := make(map[string]*Remote)
	for _, line := range lines {
		parts := strings.Fields(line)
		if len(parts) < 3 {
			continue
		}

		name := parts[0]
		url := parts[1]
		kind := strings.Trim(parts[2], "()")

		remote, ok := remotes[name]
		if !ok {
			remote = &Remote{Name: name}
			remotes[name] = remote
		}

		switch kind {
		case "fetch":
			remote.FetchURL = url
		case "push":
			remote.PushURL = url
		}
	}

	result := make([]Remote, 0, len(remotes))
	for _, remote := range remotes {
		result = append(result, *remote)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// RemoteFetchURL returns the fetch URL of a remote.
func (r *Repository) RemoteFetchURL(ctx context.Context, name string) (string, error) {
	out, err := r.git(ctx, "remote", "get-url", name)
	if err != nil {
		return "", fmt.Errorf("fetch url of %s: %w", name, err)
	}
	return strings.TrimSpace(out), nil
}

// RemotePushURL returns the push URL of a remote.
func (r *Repository) RemotePushURL(ctx context.Context, name string) (string, error) {
	out, err := r.git(ctx, "remote", "get-url", "--push", name)
	if err != nil {
		return "", fmt.Errorf("push url of %s: %w", name, err)
	}
	return strings.TrimSpace(out), nil
}

// AddRemote adds a remote. An existing remote of that name is not an error.
func (r *Repository) AddRemote(ctx context.Context, name, url string) error {
	if _, err := r.gitTolerant(ctx, []string{"already exists"}, "remote", "add", name, url); err != nil {
		return fmt.Errorf("add remote %s: %w", name, err)
	}
	return nil
}

// SetRemote changes the URL of a remote.
func (r *Repository) SetRemote(ctx context.Context, name, url string) error {
	if _, err := r.git(ctx, "remote", "set-url", name, url); err != nil {
		return fmt.Errorf("set remote %s: %w", name, err)
	}
	return nil
}

// DelRemote removes a remote.
func (r *Repository) DelRemote(ctx context.Context, name string) error {
	if _, err := r.git(ctx, "remote", "remove", name); err != nil {
		return fmt.Errorf("remove remote %s: %w", name, err)
	}
	return nil
}

// RenRemote renames a remote.
func (r *Repository) RenRemote(ctx context.Context, oldName, newName string) error {
	if _, err := r.git(ctx, "remote", "rename", oldName, newName); err != nil {
		return fmt.Errorf("rename remote %s to %s: %w", oldName, newName, err)
	}
	return nil
}

// Pull fetches from the configured pull source and merges it using the
// configured conflict policy. Without a pull source it does nothing.
func (r *Repository) Pull(ctx context.Context) error {
	source := r.cfg.PullSource
	if source == "" {
		return nil
	}

	defer r.invalidateDescribe()

	args := append([]string{"pull", "--no-edit", "--no-rebase"}, r.cfg.ConflictPolicy.args()...)
	args = append(args, source)

	res, err := r.run(ctx, r.newProcess(r.path, args...))
	if err != nil {
		if strings.Contains(res.Stdout, "CONFLICT") {
			r.markDirty()
			return fmt.Errorf("pull %s: %w", source, ErrConflict)
		}
		return fmt.Errorf("pull %s: %w", source, err)
	}
	return nil
}

// Push pushes the current branch to url, which may be a remote name.
// An empty url pushes to the configured upstream.
func (r *Repository) Push(ctx context.Context, url string) error {
	args := []string{"push"}
	if url != "" {
		args = append(args, url, Tip)
	}

	if _, err := r.git(ctx, args...); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	return nil
}

// Fetch downloads objects and refs from remote, DefaultRemote when empty.
func (r *Repository) Fetch(ctx context.Context, remote string) error {
	_, err := r.run(ctx, r.AsyncFetch(remote))
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	return nil
}

// AsyncClone returns an idle process cloning url into dest. The caller
// registers its handlers and dispatches it on this repository's queue.
// A shallow clone only downloads the tip of every branch.
func (r *Repository) AsyncClone(url, dest string, shallow bool) *process.Process {
	if abs, err := filepath.Abs(dest); err == nil {
		dest = abs
	}

	args := []string{"clone", "--progress"}
	if shallow {
		args = append(args, "--depth", "1", "--no-single-branch")
	}
	args = append(args, url, dest)

	// The destination may not exist yet, so the command runs from the
	// process working directory.
	return r.newProcess("", args...)
}

// AsyncFetch returns an idle process fetching from remote, DefaultRemote
// when empty.
func (r *Repository) AsyncFetch(remote string) *process.Process {
	if remote == "" {
		remote = DefaultRemote
	}
	return r.newProcess(r.path, "fetch", "--progress", "--prune", remote)
}
