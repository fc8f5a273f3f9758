package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// historyFormat separates fields with US and records with RS.
// Fields: Hash, ShortHash, AuthorName, AuthorEmail, AuthorTime, Subject
const historyFormat = "%H%x1f%h%x1f%an%x1f%ae%x1f%at%x1f%s%x1e"

// commitLine matches the summary git prints after a commit, e.g.
// "[main 1a2b3c4] message" or "[main (root-commit) 1a2b3c4] message".
var commitLine = regexp.MustCompile(`^\[(.+?)(?: \(root-commit\))? ([0-9a-f]{4,})\] (.*)$`)

// nothingToCommit lists git's "no-op" failures.
var nothingToCommit = []string{"nothing to commit", "nothing added to commit"}

// AppendWhatsNew adds lines describing uncommitted changes. They are folded
// into the pending commit message by the next Change.
func (r *Repository) AppendWhatsNew(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.whatsNew = appendUnique(r.whatsNew, splitLines(text)...)
}

// SetTaskDescription sets the text prefixed to generated commit messages.
func (r *Repository) SetTaskDescription(text string) {
	r.mu.Lock()
	r.taskDesc = strings.TrimSpace(text)
	r.mu.Unlock()
}

// PendingMessage returns the commit message Commit would generate.
func (r *Repository) PendingMessage() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pendingMessageLocked()
}

func (r *Repository) pendingMessageLocked() string {
	body := strings.Join(r.pending, "\n")
	switch {
	case r.taskDesc == "":
		return body
	case body == "":
		return r.taskDesc
	default:
		return r.taskDesc + "\n\n" + body
	}
}

// Add stages a new file.
func (r *Repository) Add(ctx context.Context, path string) error {
	if _, err := r.git(ctx, "add", "--", path); err != nil {
		return fmt.Errorf("add %s: %w", path, err)
	}
	r.markDirty()
	return nil
}

// Change stages a modified file and moves the pending "what's new" lines
// into the commit message buffer.
func (r *Repository) Change(ctx context.Context, path string) error {
	if _, err := r.git(ctx, "add", "--", path); err != nil {
		return fmt.Errorf("change %s: %w", path, err)
	}

	r.mu.Lock()
	r.pending = appendUnique(r.pending, r.whatsNew...)
	r.whatsNew = nil
	r.state = NotClean
	r.mu.Unlock()
	return nil
}

// Remove stages the deletion of a file or directory.
func (r *Repository) Remove(ctx context.Context, path string) error {
	if _, err := r.git(ctx, "rm", "-r", "-f", "-q", "--ignore-unmatch", "--", path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	r.markDirty()
	return nil
}

// Rename stages a move. If the file was already moved on disk the move is
// recorded as is.
func (r *Repository) Rename(ctx context.Context, from, to string) error {
	var err error
	if _, statErr := os.Lstat(filepath.Join(r.path, from)); statErr == nil {
		_, err = r.git(ctx, "mv", "--", from, to)
	} else {
		_, err = r.git(ctx, "add", "-A", "--", from, to)
	}
	if err != nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, err)
	}
	r.markDirty()
	return nil
}

// Commit records the staged changes. An empty message uses the pending
// message buffer. With all set, every modified or untracked file is staged
// first. Having nothing to commit is not an error; the returned commit is nil
// in that case.
func (r *Repository) Commit(ctx context.Context, message string, all bool) (*Commit, error) {
	if message == "" {
		message = r.PendingMessage()
	}
	if message == "" {
		message = "Update"
	}

	if all {
		if _, err := r.git(ctx, "add", "-A"); err != nil {
			return nil, fmt.Errorf("stage all: %w", err)
		}
	}

	output, err := r.gitTolerant(ctx, nothingToCommit, "commit", "-m", message)
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	commit, ok := parseCommitSummary(output)
	if !ok {
		if containsAny(output, nothingToCommit) {
			if strings.Contains(output, "working tree clean") {
				r.mu.Lock()
				r.state = Clean
				r.mu.Unlock()
			}
			return nil, nil
		}

		// Quiet configurations suppress the summary line.
		id, revErr := r.Revision(ctx, Tip)
		if revErr != nil {
			return nil, fmt.Errorf("commit: %w", ErrNoCommitID)
		}
		commit = &Commit{ID: id, ShortID: shortID(id), Message: firstLine(message)}
	}
	commit.Time = time.Now()

	r.mu.Lock()
	r.pending = nil
	r.whatsNew = nil
	r.state = Clean
	r.describe = ""
	r.mu.Unlock()

	r.log.Debug().Str("id", commit.ShortID).Str("message", commit.Message).Msg("commit created")
	r.events.Emit(Event{Kind: EventCommitSuccess, CommitID: commit.ShortID, Message: commit.Message})
	return commit, nil
}

// Revert records the inverse of a historical commit. Uncommitted work is
// committed first so it cannot be lost.
func (r *Repository) Revert(ctx context.Context, id string) error {
	if _, err := r.Commit(ctx, "", true); err != nil {
		return fmt.Errorf("revert %s: %w", id, err)
	}

	defer r.invalidateDescribe()
	if _, err := r.git(ctx, "revert", "--no-edit", id); err != nil {
		return fmt.Errorf("revert %s: %w", id, err)
	}
	return nil
}

// CherryPick re-applies a historical commit on the current branch.
// Uncommitted work is committed first so it cannot be lost.
func (r *Repository) CherryPick(ctx context.Context, id string) error {
	if _, err := r.Commit(ctx, "", true); err != nil {
		return fmt.Errorf("cherry-pick %s: %w", id, err)
	}

	defer r.invalidateDescribe()
	res, err := r.run(ctx, r.newProcess(r.path, "cherry-pick", id))
	if err != nil {
		if strings.Contains(res.Stdout+res.Stderr, "CONFLICT") {
			r.markDirty()
			return fmt.Errorf("cherry-pick %s: %w", id, ErrConflict)
		}
		return fmt.Errorf("cherry-pick %s: %w", id, err)
	}
	return nil
}

// Reset hard-resets the working copy to id, or to the current tip when id
// is empty. Uncommitted changes and the pending message are discarded.
func (r *Repository) Reset(ctx context.Context, id string) error {
	if id == "" {
		id = Tip
	}

	defer r.invalidateDescribe()
	if _, err := r.git(ctx, "reset", "-q", "--hard", id); err != nil {
		return fmt.Errorf("reset %s: %w", id, err)
	}

	r.mu.Lock()
	r.state = Clean
	r.pending = nil
	r.whatsNew = nil
	r.mu.Unlock()
	return nil
}

// History returns the last max commits of branch, oldest first. An empty
// branch means the current one; max <= 0 returns the whole history.
func (r *Repository) History(ctx context.Context, branch string, max int) ([]Commit, error) {
	args := []string{"log", "--format=" + historyFormat}
	if max > 0 {
		args = append(args, "-n", strconv.Itoa(max))
	}
	if branch == "" {
		branch = Tip
	}
	args = append(args, branch, "--")

	output, err := r.git(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", branch, err)
	}

	commits := parseHistory(output)

	// git log lists newest first.
	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}
	return commits, nil
}

func parseHistory(output string) []Commit {
	var commits []Commit
	for _, record := range strings.Split(output, "\x1e") {
		record = strings.Trim(record, "\n")
		if record == "" {
			continue
		}
		fields := strings.SplitN(record, "\x1f", 6)
		if len(fields) < 6 {
			continue
		}
		secs, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			continue
		}
		commits = append(commits, Commit{
			ID:          fields[0],
			ShortID:     fields[1],
			Author:      fields[2],
			AuthorEmail: fields[3],
			Time:        time.Unix(secs, 0),
			Message:     fields[5],
		})
	}
	return commits
}

// parseCommitSummary extracts the id and subject from git commit output.
func parseCommitSummary(output string) (*Commit, bool) {
	for _, line := range strings.Split(output, "\n") {
		m := commitLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		return &Commit{ID: m[2], ShortID: m[2], Message: m[3]}, true
	}
	return nil, false
}

func shortID(id string) string {
	if len(id) > 7 {
		return id[:7]
	}
	return id
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// appendUnique appends the lines not already present.
func appendUnique(dst []string, lines ...string) []string {
	seen := make(map[string]bool, len(dst))
	for _, l := range dst {
		seen[l] = true
	}
	for _, l := range lines {
		if !seen[l] {
			seen[l] = true
			dst = append(dst, l)
		}
	}
	return dst
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
