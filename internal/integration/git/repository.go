package git

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dshills/docsync/internal/integration/process"
)

// Repository is a working copy driven through the git executable.
//
// Every command goes through the repository's process queue. Synchronous
// methods first wait for the queue to drain, then dispatch their command and
// block until it exits; the Async methods return a process the caller wires
// up and dispatches itself.
type Repository struct {
	path   string
	cfg    Config
	log    zerolog.Logger
	queue  *process.Queue
	events *Events

	mu       sync.Mutex
	state    Cleanliness
	whatsNew []string
	pending  []string
	taskDesc string
	diag     string
	describe string

	// knownHead is the HEAD state after the engine's last command.
	knownHead string

	// watchMu is read-held while commands run so the branch watcher does
	// not report HEAD moves made by the engine.
	watchMu sync.RWMutex
}

func newRepository(path string, cfg Config) *Repository {
	log := cfg.Logger.With().Str("repo", path).Logger()
	return &Repository{
		path:   path,
		cfg:    cfg,
		log:    log,
		queue:  process.NewQueue(process.WithQueueLogger(log)),
		events: NewEvents(),
	}
}

// Path returns the working copy root.
func (r *Repository) Path() string {
	return r.path
}

// Queue returns the process queue serializing this working copy.
func (r *Repository) Queue() *process.Queue {
	return r.queue
}

// Subscribe registers fn for commitSuccess and branchChanged events.
// The returned function removes the subscription.
func (r *Repository) Subscribe(fn Listener) (unsubscribe func()) {
	return r.events.Subscribe(fn)
}

// State returns the cleanliness state.
func (r *Repository) State() Cleanliness {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Diagnostic returns the raw output of the last failed command.
func (r *Repository) Diagnostic() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.diag
}

func (r *Repository) setDiagnostic(s string) {
	r.mu.Lock()
	r.diag = s
	r.mu.Unlock()
}

func (r *Repository) markDirty() {
	r.mu.Lock()
	r.state = NotClean
	r.mu.Unlock()
}

func (r *Repository) invalidateDescribe() {
	r.mu.Lock()
	r.describe = ""
	r.mu.Unlock()
}

// command builds a git invocation in the working copy.
func (r *Repository) command(dir string, args ...string) process.Command {
	var full []string
	if r.cfg.AuthorName != "" {
		full = append(full, "-c", "user.name="+r.cfg.AuthorName)
	}
	if r.cfg.AuthorEmail != "" {
		full = append(full, "-c", "user.email="+r.cfg.AuthorEmail)
	}
	full = append(full, args...)
	return process.Command{Name: r.cfg.Executable, Args: full, Dir: dir}
}

// newProcess creates an idle process running git with args in the working copy.
func (r *Repository) newProcess(dir string, args ...string) *process.Process {
	name := "git"
	if len(args) > 0 {
		name += " " + args[0]
	}
	return process.New(r.command(dir, args...),
		process.WithLauncher(r.cfg.Launcher),
		process.WithMaxOutput(r.cfg.MaxOutput),
		process.WithLogger(r.log),
		process.WithName(name),
	)
}

// run drains the queue, dispatches p and waits for it. Output containing
// one of the tolerate substrings turns a failure into success.
func (r *Repository) run(ctx context.Context, p *process.Process, tolerate ...string) (process.Result, error) {
	r.watchMu.RLock()
	defer func() {
		r.syncHead()
		r.watchMu.RUnlock()
	}()

	if err := r.queue.WaitForCompletion(ctx); err != nil {
		return process.Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return process.Result{}, err
	}

	r.queue.Dispatch(p, "")

	select {
	case <-p.Done():
	case <-ctx.Done():
		r.queue.Abort(p)
		<-p.Done()
		return p.Wait(), ctx.Err()
	}

	res := p.Wait()
	if res.Err == nil {
		return res, nil
	}

	text := res.Stdout + "\n" + res.Stderr
	for _, s := range tolerate {
		if strings.Contains(text, s) {
			r.log.Debug().Str("cmd", p.Command().String()).Str("matched", s).Msg("git failure treated as success")
			return res, nil
		}
	}

	diag := strings.TrimSpace(res.Stderr)
	if diag == "" {
		diag = strings.TrimSpace(res.Stdout)
	}
	if diag == "" {
		diag = process.Diagnostic(res.Err)
	}
	r.setDiagnostic(diag)
	r.log.Debug().Err(res.Err).Str("cmd", p.Command().String()).Str("stderr", diag).Msg("git command failed")
	return res, res.Err
}

// git runs a git command synchronously in the working copy.
func (r *Repository) git(ctx context.Context, args ...string) (string, error) {
	res, err := r.run(ctx, r.newProcess(r.path, args...))
	return res.Stdout, err
}

// gitTolerant is git with failure substrings downgraded to success.
func (r *Repository) gitTolerant(ctx context.Context, tolerate []string, args ...string) (string, error) {
	res, err := r.run(ctx, r.newProcess(r.path, args...), tolerate...)
	return res.Stdout, err
}

// gitLines executes a git command and returns output lines.
func (r *Repository) gitLines(ctx context.Context, args ...string) ([]string, error) {
	output, err := r.git(ctx, args...)
	if err != nil {
		return nil, err
	}

	if output == "" {
		return nil, nil
	}

	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// Valid reports whether the path is the root of a git working copy.
func (r *Repository) Valid(ctx context.Context) bool {
	if info, err := os.Stat(r.path); err != nil || !info.IsDir() {
		return false
	}

	out, err := r.git(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return false
	}
	return samePath(strings.TrimSpace(out), r.path)
}

// Initialize creates a working copy at the path with an initial empty
// commit, so that history and branch queries have something to work on.
func (r *Repository) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(r.path, 0o755); err != nil {
		return fmt.Errorf("create working copy: %w", err)
	}

	if _, err := r.git(ctx, "init"); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	if _, err := r.git(ctx, "commit", "--allow-empty", "-m", "Initial commit"); err != nil {
		return fmt.Errorf("initial commit: %w", err)
	}

	r.mu.Lock()
	r.state = Clean
	r.describe = ""
	r.mu.Unlock()
	return nil
}

// Status returns the working tree status.
func (r *Repository) Status(ctx context.Context) (*Status, error) {
	output, err := r.git(ctx, "status", "--porcelain=v2", "--branch", "--untracked-files=all")
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	return parseStatus(output)
}

// IsClean reports whether git sees no modified, added or untracked files.
func (r *Repository) IsClean(ctx context.Context) (bool, error) {
	status, err := r.Status(ctx)
	if err != nil {
		return false, err
	}
	return !status.HasChanges(), nil
}

// Revision resolves ref to a full commit id.
func (r *Repository) Revision(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		ref = Tip
	}
	out, err := r.git(ctx, "rev-parse", "--verify", ref+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", ref, err)
	}
	return strings.TrimSpace(out), nil
}

// Describe returns a human-readable name of the current revision.
// The result is cached until the checked out revision changes.
func (r *Repository) Describe(ctx context.Context) (string, error) {
	r.mu.Lock()
	cached := r.describe
	r.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	out, err := r.git(ctx, "describe", "--always", "--tags")
	if err != nil {
		return "", fmt.Errorf("describe: %w", err)
	}
	desc := strings.TrimSpace(out)

	r.mu.Lock()
	r.describe = desc
	r.mu.Unlock()
	return desc, nil
}

// close aborts everything queued and rejects further commands.
func (r *Repository) close() {
	r.queue.Close()
	r.events.clear()
}

// parseStatus parses porcelain v2 output with branch headers.
func parseStatus(output string) (*Status, error) {
	status := &Status{}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		switch line[0] {
		case '#':
			switch {
			case strings.HasPrefix(line, "# branch.oid "):
				if oid := strings.TrimPrefix(line, "# branch.oid "); oid != "(initial)" {
					status.Head = oid
				}
			case strings.HasPrefix(line, "# branch.head "):
				if head := strings.TrimPrefix(line, "# branch.head "); head != "(detached)" {
					status.Branch = head
				}
			}
		case '1':
			if fs := parseOrdinaryEntry(line); fs != nil {
				if fs.Staged {
					status.Staged = append(status.Staged, *fs)
				} else {
					status.Unstaged = append(status.Unstaged, *fs)
				}
			}
		case '2':
			if fs := parseRenamedEntry(line); fs != nil {
				if fs.Staged {
					status.Staged = append(status.Staged, *fs)
				} else {
					status.Unstaged = append(status.Unstaged, *fs)
				}
			}
		case 'u':
			if path := parseUnmergedEntry(line); path != "" {
				status.Conflicts = append(status.Conflicts, path)
			}
		case '?':
			if len(line) > 2 {
				status.Untracked = append(status.Untracked, line[2:])
			}
		}
	}

	return status, scanner.Err()
}

// parseOrdinaryEntry parses a porcelain v2 ordinary entry.
// Format: 1 <XY> <sub> <mH> <mI> <mW> <hH> <hI> <path>
func parseOrdinaryEntry(line string) *FileStatus {
	fields := strings.SplitN(line, " ", 9)
	if len(fields) < 9 {
		return nil
	}

	xy := fields[1]
	path := fields[8]

	// Index changes take precedence over worktree changes.
	if xy[0] != '.' {
		return &FileStatus{Path: path, Status: charToStatus(xy[0]), Staged: true}
	}
	if xy[1] != '.' {
		return &FileStatus{Path: path, Status: charToStatus(xy[1])}
	}
	return nil
}

// parseRenamedEntry parses a porcelain v2 renamed/copied entry.
// Format: 2 <XY> <sub> <mH> <mI> <mW> <hH> <hI> <X><score> <path><tab><origPath>
func parseRenamedEntry(line string) *FileStatus {
	tabIdx := strings.LastIndex(line, "\t")
	if tabIdx == -1 {
		return nil
	}

	fields := strings.SplitN(line[:tabIdx], " ", 10)
	if len(fields) < 10 {
		return nil
	}

	status := StatusRenamed
	if fields[8][0] == 'C' {
		status = StatusCopied
	}

	return &FileStatus{
		Path:    fields[9],
		OldPath: line[tabIdx+1:],
		Status:  status,
		Staged:  fields[1][0] != '.' || fields[1][1] == '.',
	}
}

// parseUnmergedEntry parses a porcelain v2 unmerged entry.
// Format: u <XY> <sub> <m1> <m2> <m3> <mW> <h1> <h2> <h3> <path>
func parseUnmergedEntry(line string) string {
	fields := strings.SplitN(line, " ", 11)
	if len(fields) < 11 {
		return ""
	}
	return fields[10]
}

// charToStatus converts a porcelain status character to StatusCode.
func charToStatus(c byte) StatusCode {
	switch c {
	case 'M', 'T':
		return StatusModified
	case 'A':
		return StatusAdded
	case 'D':
		return StatusDeleted
	case 'R':
		return StatusRenamed
	case 'C':
		return StatusCopied
	case 'U':
		return StatusConflict
	default:
		return StatusUnmodified
	}
}

// samePath compares two paths after resolving symlinks.
func samePath(a, b string) bool {
	ra, err := filepath.EvalSymlinks(a)
	if err != nil {
		ra = filepath.Clean(a)
	}
	rb, err := filepath.EvalSymlinks(b)
	if err != nil {
		rb = filepath.Clean(b)
	}
	return ra == rb
}
