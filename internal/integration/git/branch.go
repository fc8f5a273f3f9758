package git

import (
	"context"
	"fmt"
	"strings"
)

// Branch represents a git branch.
type Branch struct {
	// Name is the branch name (e.g., "main", "feature/foo").
	Name string

	// FullName is the full reference name (e.g., "refs/heads/main").
	FullName string

	// Hash is the commit hash this branch points to.
	Hash string

	// Upstream is the upstream branch (e.g., "origin/main").
	Upstream string

	// IsHead indicates if this is the current branch.
	IsHead bool

	// IsRemote indicates if this is a remote tracking branch.
	IsRemote bool
}

// Branch returns the current branch name, or "" when HEAD is detached.
func (r *Repository) Branch(ctx context.Context) (string, error) {
	output, err := r.gitTolerant(ctx, []string{"not a symbolic ref"}, "symbolic-ref", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	return strings.TrimSpace(output), nil
}

// Branches returns the local branches, and remote tracking branches too
// when includeRemote is set.
func (r *Repository) Branches(ctx context.Context, includeRemote bool) ([]Branch, error) {
	format := "%(refname)%00%(objectname)%00%(upstream:short)%00%(HEAD)"

	args := []string{"for-each-ref", "--format=" + format, "refs/heads"}
	if includeRemote {
		args = append(args, "refs/remotes")
	}

	lines, err := r.gitLines(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}

	var branches []Branch
	for _, line := range lines {
		parts := strings.Split(line, "\x00")
		if len(parts) < 4 {
			continue
		}

		branch := Branch{
			FullName: parts[0],
			Hash:     parts[1],
			Upstream: parts[2],
			IsHead:   parts[3] == "*",
		}

		if strings.HasPrefix(branch.FullName, "refs/heads/") {
			branch.Name = strings.TrimPrefix(branch.FullName, "refs/heads/")
		} else if strings.HasPrefix(branch.FullName, "refs/remotes/") {
			branch.Name = strings.TrimPrefix(branch.FullName, "refs/remotes/")
			branch.IsRemote = true
			// origin/HEAD is a symbolic alias, not a branch.
			if strings.HasSuffix(branch.Name, "/HEAD") {
				continue
			}
		}

		branches = append(branches, branch)
	}

	return branches, nil
}

// hasBranch reports whether a local branch exists.
func (r *Repository) hasBranch(ctx context.Context, name string) (bool, error) {
	branches, err := r.Branches(ctx, false)
	if err != nil {
		return false, err
	}
	for _, b := range branches {
		if b.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// AddBranch creates a branch at startPoint, or at HEAD when startPoint is
// empty. An existing branch of that name is not an error.
func (r *Repository) AddBranch(ctx context.Context, name, startPoint string) error {
	args := []string{"branch", name}
	if startPoint != "" {
		args = append(args, startPoint)
	}

	if _, err := r.gitTolerant(ctx, []string{"already exists"}, args...); err != nil {
		return fmt.Errorf("create branch %s: %w", name, err)
	}
	return nil
}

// DelBranch deletes a branch. Set force to delete unmerged branches.
func (r *Repository) DelBranch(ctx context.Context, name string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}

	if _, err := r.git(ctx, "branch", flag, name); err != nil {
		return fmt.Errorf("delete branch %s: %w", name, err)
	}
	return nil
}

// RenBranch renames a branch.
func (r *Repository) RenBranch(ctx context.Context, oldName, newName string) error {
	if _, err := r.git(ctx, "branch", "-m", oldName, newName); err != nil {
		return fmt.Errorf("rename branch %s to %s: %w", oldName, newName, err)
	}
	return nil
}

// Checkout switches the working copy to name, which may be a branch, a
// commit id or a remote tracking ref.
func (r *Repository) Checkout(ctx context.Context, name string) error {
	defer r.invalidateDescribe()

	if _, err := r.git(ctx, "checkout", "-q", name); err != nil {
		return fmt.Errorf("checkout %s: %w", name, err)
	}
	return nil
}

// Merge merges branch into the current branch.
func (r *Repository) Merge(ctx context.Context, branch string, mode MergeMode) error {
	defer r.invalidateDescribe()

	args := append([]string{"merge", "--no-edit"}, mode.args()...)
	args = append(args, branch)

	res, err := r.run(ctx, r.newProcess(r.path, args...))
	if err != nil {
		if strings.Contains(res.Stdout, "CONFLICT") {
			r.markDirty()
			return fmt.Errorf("merge %s: %w", branch, ErrConflict)
		}
		return fmt.Errorf("merge %s: %w", branch, err)
	}
	return nil
}

// SetTask gives the current work its own line of history: uncommitted
// changes are committed, then the branch name is checked out, created from
// HEAD if absent.
func (r *Repository) SetTask(ctx context.Context, name string) error {
	clean, err := r.IsClean(ctx)
	if err != nil {
		return err
	}
	if !clean {
		if _, err := r.Commit(ctx, "", true); err != nil {
			return fmt.Errorf("set task %s: %w", name, err)
		}
	}

	exists, err := r.hasBranch(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return r.Checkout(ctx, name)
	}

	defer r.invalidateDescribe()
	if _, err := r.git(ctx, "checkout", "-q", "-b", name); err != nil {
		return fmt.Errorf("set task %s: %w", name, err)
	}
	return nil
}
