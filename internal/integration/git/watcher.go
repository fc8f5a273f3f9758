package git

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// headState is what HEAD points at on disk.
type headState struct {
	// Branch is the short branch name, empty when detached.
	Branch string

	// Hash is the commit HEAD resolves to, empty before the first commit.
	Hash string
}

func (h headState) key() string {
	return h.Branch + "@" + h.Hash
}

// readHead reads HEAD and the branch pointer it refers to without running git.
func (r *Repository) readHead() (headState, error) {
	content, err := os.ReadFile(filepath.Join(r.path, ".git", "HEAD"))
	if err != nil {
		return headState{}, fmt.Errorf("read HEAD: %w", err)
	}
	content = bytes.TrimSpace(content)

	if !bytes.HasPrefix(content, []byte("ref: ")) {
		return headState{Hash: string(content)}, nil
	}

	refName := string(content[5:])
	head := headState{Branch: strings.TrimPrefix(refName, "refs/heads/")}
	// A missing ref means an unborn branch.
	head.Hash, _ = r.resolveRef(refName)
	return head, nil
}

// resolveRef resolves a reference to its commit hash.
func (r *Repository) resolveRef(refName string) (string, error) {
	refPath := filepath.Join(r.path, ".git", filepath.FromSlash(refName))
	content, err := os.ReadFile(refPath)
	if err == nil {
		return strings.TrimSpace(string(content)), nil
	}

	packedRefs, err := os.ReadFile(filepath.Join(r.path, ".git", "packed-refs"))
	if err != nil {
		return "", fmt.Errorf("resolve ref %s: %w", refName, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(packedRefs))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "^") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) >= 2 && parts[1] == refName {
			return parts[0], nil
		}
	}

	return "", fmt.Errorf("ref not found: %s", refName)
}

// syncHead records HEAD as moved by the engine itself.
func (r *Repository) syncHead() {
	head, err := r.readHead()
	if err != nil {
		return
	}
	r.mu.Lock()
	r.knownHead = head.key()
	r.mu.Unlock()
}

// BranchWatcher raises branchChanged when HEAD or the branch it points at
// moves without going through the repository.
//
// It polls at a fixed interval. Where fsnotify is available, changes under
// .git wake it up early.
type BranchWatcher struct {
	repo     *Repository
	interval time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup

	fsw     *fsnotify.Watcher
	watched map[string]bool
}

// NewBranchWatcher creates a watcher for repo.
func NewBranchWatcher(repo *Repository, interval time.Duration) *BranchWatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	return &BranchWatcher{
		repo:     repo,
		interval: interval,
		log:      repo.log,
		watched:  make(map[string]bool),
	}
}

// Start starts the watcher. Starting a running watcher does nothing.
func (w *BranchWatcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.done = make(chan struct{})

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Debug().Err(err).Msg("fsnotify unavailable, polling only")
	}
	w.fsw = fsw
	w.watched = make(map[string]bool)

	w.wg.Add(1)
	go w.watchLoop(w.done, fsw)
}

// Stop stops the watcher and waits for its goroutine to exit.
func (w *BranchWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.done)
	fsw := w.fsw
	w.fsw = nil
	w.mu.Unlock()

	w.wg.Wait()
	if fsw != nil {
		_ = fsw.Close()
	}
}

func (w *BranchWatcher) watchLoop(done <-chan struct{}, fsw *fsnotify.Watcher) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if fsw != nil {
		events = fsw.Events
		errs = fsw.Errors
	}

	w.check()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			w.check()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.check()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.log.Debug().Err(err).Msg("branch watcher error")
		}
	}
}

// addWatches registers the git directories once they exist. A working
// copy may be cloned or initialized after the watcher started.
func (w *BranchWatcher) addWatches() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return
	}

	gitDir := filepath.Join(w.repo.path, ".git")
	for _, dir := range []string{gitDir, filepath.Join(gitDir, "refs", "heads")} {
		if w.watched[dir] {
			continue
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		if err := w.fsw.Add(dir); err != nil {
			w.log.Debug().Err(err).Str("dir", dir).Msg("watch git dir")
			continue
		}
		w.watched[dir] = true
	}
}

// check compares HEAD with the last state the repository saw.
func (w *BranchWatcher) check() {
	w.addWatches()

	head, changed := w.detect()
	if !changed {
		return
	}

	w.log.Debug().Str("branch", head.Branch).Str("hash", head.Hash).Msg("branch changed outside engine")
	w.repo.events.Emit(Event{Kind: EventBranchChanged, Branch: head.Branch})
}

func (w *BranchWatcher) detect() (headState, bool) {
	r := w.repo
	// Commands in flight move HEAD on purpose.
	if !r.watchMu.TryLock() {
		return headState{}, false
	}
	defer r.watchMu.Unlock()
	if r.queue.Len() > 0 {
		return headState{}, false
	}

	head, err := r.readHead()
	if err != nil {
		return headState{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	known := r.knownHead
	r.knownHead = head.key()
	if known == "" || known == head.key() {
		return head, false
	}
	r.describe = ""
	return head, true
}
