package git

import (
	"errors"

	"github.com/dshills/docsync/internal/integration/process"
)

// Error types for git operations.
var (
	// ErrNotRepository indicates the path is not a git repository.
	ErrNotRepository = errors.New("not a git repository")

	// ErrRegistryClosed indicates the registry has been closed.
	ErrRegistryClosed = errors.New("registry closed")

	// ErrConflict indicates a merge left conflicts in the working copy.
	ErrConflict = errors.New("merge conflict")

	// ErrPathEscapesRoot indicates a document name resolving outside the working copy.
	ErrPathEscapesRoot = errors.New("path escapes working copy")

	// ErrBackendUnavailable indicates the git executable could not be run.
	ErrBackendUnavailable = errors.New("git backend unavailable")

	// ErrBackendTooOld indicates the git executable is older than required.
	ErrBackendTooOld = errors.New("git backend too old")

	// ErrNoCommitID indicates commit output did not carry a commit id.
	ErrNoCommitID = errors.New("commit id not found in output")

	// ErrCommandFailed is returned, wrapped, for every failed git invocation.
	ErrCommandFailed = process.ErrCommandFailed

	// ErrAborted is returned when a queued command was aborted.
	ErrAborted = process.ErrAborted
)
