package git

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/docsync/internal/integration/process"
)

// Tip names the current tip of the checked out branch.
const Tip = "HEAD"

// Cleanliness is the working copy state tracked between commits.
type Cleanliness int

const (
	// Clean means nothing was changed since the last commit.
	Clean Cleanliness = iota
	// NotClean means a mutating call happened since the last commit.
	NotClean
)

// String returns the state name.
func (c Cleanliness) String() string {
	if c == NotClean {
		return "not-clean"
	}
	return "clean"
}

// MergeMode selects how conflicting hunks are resolved.
type MergeMode int

const (
	// Manual leaves conflicts in the working copy.
	Manual MergeMode = iota
	// PreferOurs resolves conflicts with the current branch's side.
	PreferOurs
	// PreferTheirs resolves conflicts with the merged branch's side.
	PreferTheirs
)

// String returns the configuration name of the mode.
func (m MergeMode) String() string {
	switch m {
	case PreferOurs:
		return "ours"
	case PreferTheirs:
		return "theirs"
	default:
		return "manual"
	}
}

// ParseMergeMode parses "manual", "ours" or "theirs".
func ParseMergeMode(s string) (MergeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "manual":
		return Manual, nil
	case "ours":
		return PreferOurs, nil
	case "theirs":
		return PreferTheirs, nil
	default:
		return Manual, fmt.Errorf("unknown merge mode %q", s)
	}
}

// args returns the strategy flags for git merge and pull.
func (m MergeMode) args() []string {
	switch m {
	case PreferOurs:
		return []string{"-X", "ours"}
	case PreferTheirs:
		return []string{"-X", "theirs"}
	default:
		return nil
	}
}

// StatusCode represents the status of a file in the working tree.
type StatusCode int

const (
	// StatusUnmodified indicates the file is unchanged.
	StatusUnmodified StatusCode = iota
	// StatusModified indicates the file has been modified.
	StatusModified
	// StatusAdded indicates the file is newly added.
	StatusAdded
	// StatusDeleted indicates the file has been deleted.
	StatusDeleted
	// StatusRenamed indicates the file has been renamed.
	StatusRenamed
	// StatusCopied indicates the file has been copied.
	StatusCopied
	// StatusUntracked indicates the file is not tracked by git.
	StatusUntracked
	// StatusConflict indicates a merge conflict.
	StatusConflict
)

// String returns the string representation of a StatusCode.
func (s StatusCode) String() string {
	switch s {
	case StatusUnmodified:
		return "unmodified"
	case StatusModified:
		return "modified"
	case StatusAdded:
		return "added"
	case StatusDeleted:
		return "deleted"
	case StatusRenamed:
		return "renamed"
	case StatusCopied:
		return "copied"
	case StatusUntracked:
		return "untracked"
	case StatusConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// FileStatus represents the status of a single file.
type FileStatus struct {
	// Path is the file path relative to repository root.
	Path string

	// OldPath is the original path for renamed files.
	OldPath string

	// Status indicates the type of change.
	Status StatusCode

	// Staged indicates whether this change is staged.
	Staged bool
}

// Status represents the working tree status.
type Status struct {
	// Branch is the current branch name, empty when detached.
	Branch string

	// Head is the current commit id, empty before the first commit.
	Head string

	Staged    []FileStatus
	Unstaged  []FileStatus
	Untracked []string
	Conflicts []string
}

// HasChanges returns true if there are any changes (staged, unstaged, untracked, or conflicts).
func (s *Status) HasChanges() bool {
	return len(s.Staged) > 0 || len(s.Unstaged) > 0 || len(s.Untracked) > 0 || len(s.Conflicts) > 0
}

// HasConflicts returns true if there are merge conflicts.
func (s *Status) HasConflicts() bool {
	return len(s.Conflicts) > 0
}

// IsDetached reports a detached HEAD.
func (s *Status) IsDetached() bool {
	return s.Branch == ""
}

// Commit is one entry of a branch history. It is never modified after being returned.
type Commit struct {
	// ID is the full commit id, or Tip.
	ID string

	// ShortID is the abbreviated commit id.
	ShortID string

	Message     string
	Author      string
	AuthorEmail string
	Time        time.Time
}

// IsTip reports whether the commit stands for the current tip.
func (c Commit) IsTip() bool {
	return c.ID == Tip
}

// Config configures the repositories created by a Registry.
type Config struct {
	// Executable is the git binary. Defaults to "git".
	Executable string

	// Launcher builds the subprocesses. Defaults to process.PlainLauncher.
	Launcher process.Launcher

	// MaxOutput bounds the output retained per stream.
	MaxOutput int

	// AuthorName and AuthorEmail are passed as -c user.name/user.email when set.
	AuthorName  string
	AuthorEmail string

	// PullSource is the remote Pull integrates from. Empty disables Pull.
	PullSource string

	// ConflictPolicy is the merge mode used by Pull.
	ConflictPolicy MergeMode

	// PollInterval is how often the branch watcher polls HEAD.
	// Zero disables the watcher.
	PollInterval time.Duration

	// Codec renders and parses documents. Defaults to YAMLCodec.
	Codec Codec

	// Logger defaults to a disabled logger.
	Logger *zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.Executable == "" {
		c.Executable = "git"
	}
	if c.Launcher == nil {
		c.Launcher = process.PlainLauncher{}
	}
	if c.MaxOutput == 0 {
		c.MaxOutput = process.DefaultMaxOutput
	}
	if c.Codec == nil {
		c.Codec = YAMLCodec{}
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
	return c
}
