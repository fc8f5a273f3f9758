// Package resolver realizes document locators as local working copies.
//
// Engine.Get parses a locator and, unless it is local, clones or fetches
// the project through the git package, checks out the requested revision
// and reports the outcome as events:
//
//	req, err := engine.Get(ctx, "tao://example.com/proj?d=main.doc", func(ev git.Event) {
//	    if ev.Kind == git.EventDocReady {
//	        open(ev.Path)
//	    }
//	})
//	if err != nil {
//	    return err
//	}
//	err = req.Wait(ctx)
package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dshills/docsync/internal/integration/git"
	"github.com/dshills/docsync/internal/locator"
	"github.com/dshills/docsync/internal/locator/cache"
)

var (
	// ErrNoDestination is returned when no folder is configured for a
	// locator's partition.
	ErrNoDestination = errors.New("no destination folder")

	// ErrLocalMissing is returned when a local locator names no existing path.
	ErrLocalMissing = errors.New("local path does not exist")
)

// DestinationChooser picks the working copy to fetch into when a document
// locator maps to several. Returning "" clones a new copy instead.
type DestinationChooser interface {
	Choose(ctx context.Context, l *locator.Locator, candidates []string) (string, error)
}

// ChooserFunc adapts a function to DestinationChooser.
type ChooserFunc func(ctx context.Context, l *locator.Locator, candidates []string) (string, error)

// Choose implements DestinationChooser.
func (f ChooserFunc) Choose(ctx context.Context, l *locator.Locator, candidates []string) (string, error) {
	return f(ctx, l, candidates)
}

// Config configures an Engine.
type Config struct {
	// Folders is the parent folder new clones go to, per partition.
	Folders map[locator.Partition]string

	// Locator controls locator normalization. It must match the cache.
	Locator locator.Options

	// CleanupOnFailure lists the partitions whose failed clones are deleted.
	// Nil means only modules.
	CleanupOnFailure map[locator.Partition]bool

	// Shallow lists the partitions cloned with only the tip of each branch.
	Shallow map[locator.Partition]bool

	// Chooser resolves ambiguous document destinations. Without one the
	// first candidate is used.
	Chooser DestinationChooser

	Logger *zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.Locator.Schemes == nil {
		c.Locator.Schemes = locator.DefaultSchemes()
	}
	if c.CleanupOnFailure == nil {
		c.CleanupOnFailure = map[locator.Partition]bool{locator.Module: true}
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
	return c
}

// Engine resolves locators. It is safe for concurrent use. Requests for
// the same project run one after another, so a second request fetches into
// the copy the first one cloned.
type Engine struct {
	cfg      Config
	registry *git.Registry
	paths    *cache.PathCache
	log      zerolog.Logger
	events   *git.Events

	mu       sync.Mutex
	inflight map[string]chan struct{}
}

// New creates an engine using registry for repositories and paths as the
// locator cache.
func New(registry *git.Registry, paths *cache.PathCache, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:      cfg,
		registry: registry,
		paths:    paths,
		log:      cfg.Logger.With().Str("component", "resolver").Logger(),
		events:   git.NewEvents(),
		inflight: make(map[string]chan struct{}),
	}
}

// Subscribe registers fn for the events of every request.
func (e *Engine) Subscribe(fn git.Listener) (unsubscribe func()) {
	return e.events.Subscribe(fn)
}

// NewRequest parses raw into an idle request. Subscribe to it, then Start it.
func (e *Engine) NewRequest(raw string) (*Request, error) {
	l, err := locator.Parse(raw)
	if err != nil {
		return nil, err
	}
	return newRequest(e, l, uuid.NewString()), nil
}

// Get parses raw, subscribes listeners and starts resolving in the
// background. Only parse errors are returned; everything else is reported
// through events and Request.Wait.
func (e *Engine) Get(ctx context.Context, raw string, listeners ...git.Listener) (*Request, error) {
	req, err := e.NewRequest(raw)
	if err != nil {
		return nil, err
	}
	for _, fn := range listeners {
		req.Subscribe(fn)
	}
	req.Start(ctx)
	return req, nil
}

// destination picks the working copy for l. fresh is set when a new clone
// has to be made at the returned path.
func (e *Engine) destination(ctx context.Context, l *locator.Locator) (path string, fresh bool, err error) {
	candidates, err := e.paths.Paths(ctx, l)
	if err != nil {
		e.log.Warn().Err(err).Str("locator", l.Raw).Msg("read locator cache")
		candidates = nil
	}

	switch {
	case len(candidates) == 1:
		return candidates[0], false, nil
	case len(candidates) > 1 && l.Partition == locator.Document && e.cfg.Chooser != nil:
		chosen, err := e.cfg.Chooser.Choose(ctx, l, candidates)
		if err != nil {
			return "", false, err
		}
		if chosen != "" {
			return chosen, false, nil
		}
	case len(candidates) > 1:
		e.log.Warn().Str("locator", l.Raw).Strs("paths", candidates).Msg("ambiguous locator cache, using first path")
		return candidates[0], false, nil
	}

	folder := e.cfg.Folders[l.Partition]
	if folder == "" {
		return "", false, fmt.Errorf("%w for %s", ErrNoDestination, l.Partition)
	}
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", false, err
	}
	dest, err := claimPath(filepath.Join(folder, l.ProjectName()))
	if err != nil {
		return "", false, err
	}
	return dest, true, nil
}

// claim waits until no other request works on the project behind key and
// takes it over. The returned function hands it back.
func (e *Engine) claim(ctx context.Context, key string) (release func(), err error) {
	for {
		e.mu.Lock()
		busy, ok := e.inflight[key]
		if !ok {
			done := make(chan struct{})
			e.inflight[key] = done
			e.mu.Unlock()
			return func() {
				e.mu.Lock()
				delete(e.inflight, key)
				e.mu.Unlock()
				close(done)
			}, nil
		}
		e.mu.Unlock()

		select {
		case <-busy:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// claimPath creates an empty directory at base, or at base-2, base-3, ...
// when taken, and returns it. The clone goes into that directory.
func claimPath(base string) (string, error) {
	candidate := base
	for i := 2; ; i++ {
		err := os.Mkdir(candidate, 0o755)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", err
		}
		candidate = base + "-" + strconv.Itoa(i)
	}
}

// RemoteLister adapts a registry to cache.RemoteLister, letting the
// locator cache recognize projects cloned by other means.
func RemoteLister(registry *git.Registry) cache.RemoteLister {
	return cache.RemoteListerFunc(func(ctx context.Context, dir string) ([]string, error) {
		h, err := registry.Acquire(dir)
		if err != nil {
			return nil, err
		}
		defer h.Release()

		if !h.Valid(ctx) {
			return nil, nil
		}
		remotes, err := h.Remotes(ctx)
		if err != nil {
			return nil, err
		}
		urls := make([]string, 0, len(remotes))
		for _, r := range remotes {
			if r.FetchURL != "" {
				urls = append(urls, r.FetchURL)
			}
		}
		return urls, nil
	})
}
