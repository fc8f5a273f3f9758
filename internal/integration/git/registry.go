package git

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// Registry hands out shared repositories keyed by working copy path.
//
// Acquire returns a reference-counted handle; every caller asking for the
// same path shares one Repository and therefore one process queue. The
// repository is shut down and forgotten when its last handle is released.
type Registry struct {
	mu     sync.Mutex
	repos  map[string]*entry
	closed atomic.Bool
	cfg    Config
}

type entry struct {
	repo    *Repository
	watcher *BranchWatcher
	refs    int
}

// NewRegistry creates a registry whose repositories use cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		repos: make(map[string]*entry),
		cfg:   cfg.withDefaults(),
	}
}

// Config returns the effective repository configuration.
func (g *Registry) Config() Config {
	return g.cfg
}

// Acquire returns a handle on the repository at path. The path does not
// need to be a working copy yet; see Repository.Initialize and AsyncClone.
func (g *Registry) Acquire(path string) (*Handle, error) {
	if g.closed.Load() {
		return nil, ErrRegistryClosed
	}

	key, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed.Load() {
		return nil, ErrRegistryClosed
	}

	e, ok := g.repos[key]
	if !ok {
		e = &entry{repo: newRepository(key, g.cfg)}
		if g.cfg.PollInterval > 0 {
			e.watcher = NewBranchWatcher(e.repo, g.cfg.PollInterval)
			e.watcher.Start()
		}
		g.repos[key] = e
	}
	e.refs++

	return &Handle{Repository: e.repo, registry: g, key: key}, nil
}

// Len returns the number of live repositories.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.repos)
}

// Close shuts down every repository: watchers stop and queued commands
// are aborted. Outstanding handles become unusable.
func (g *Registry) Close() error {
	if g.closed.Swap(true) {
		return nil
	}

	g.mu.Lock()
	repos := g.repos
	g.repos = make(map[string]*entry)
	g.mu.Unlock()

	for _, e := range repos {
		e.shutdown()
	}
	return nil
}

func (g *Registry) release(key string) {
	g.mu.Lock()
	e, ok := g.repos[key]
	if !ok {
		g.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		g.mu.Unlock()
		return
	}
	delete(g.repos, key)
	g.mu.Unlock()

	e.shutdown()
}

func (e *entry) shutdown() {
	if e.watcher != nil {
		e.watcher.Stop()
	}
	e.repo.close()
}

// Handle is one reference to a shared Repository.
type Handle struct {
	*Repository

	registry *Registry
	key      string
	released atomic.Bool
}

// Release drops the reference. Releasing twice does nothing.
func (h *Handle) Release() {
	if h.released.Swap(true) {
		return
	}
	h.registry.release(h.key)
}
