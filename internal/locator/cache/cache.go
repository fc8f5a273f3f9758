package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dshills/docsync/internal/locator"
)

// RemoteLister reports the fetch URLs of the working copy at dir. It
// returns nil for a directory that is not a working copy.
type RemoteLister interface {
	FetchURLs(ctx context.Context, dir string) ([]string, error)
}

// RemoteListerFunc adapts a function to RemoteLister.
type RemoteListerFunc func(ctx context.Context, dir string) ([]string, error)

// FetchURLs implements RemoteLister.
func (f RemoteListerFunc) FetchURLs(ctx context.Context, dir string) ([]string, error) {
	return f(ctx, dir)
}

// Option configures a PathCache.
type Option func(*PathCache)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *PathCache) { c.log = log }
}

// WithLocatorOptions sets the normalization used to derive keys from
// remote URLs found while scanning.
func WithLocatorOptions(opts locator.Options) Option {
	return func(c *PathCache) { c.opts = opts }
}

// WithScan makes Refresh look for working copies directly under folder and
// map their remotes in partition p.
func WithScan(p locator.Partition, folder string, lister RemoteLister) Option {
	return func(c *PathCache) {
		c.folders[p] = folder
		c.lister = lister
	}
}

type refreshState struct {
	once sync.Once
	err  error
}

// PathCache is the partitioned locator to path mapping. Entries whose
// directory no longer exists are pruned when read.
type PathCache struct {
	store   Store
	opts    locator.Options
	folders map[locator.Partition]string
	lister  RemoteLister
	log     zerolog.Logger

	mu        sync.Mutex
	refreshed map[locator.Partition]*refreshState
}

// New creates a cache over store.
func New(store Store, opts ...Option) *PathCache {
	c := &PathCache{
		store:     store,
		opts:      locator.DefaultOptions(),
		folders:   make(map[locator.Partition]string),
		log:       zerolog.Nop(),
		refreshed: make(map[locator.Partition]*refreshState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Paths returns the existing working copies recorded for l, refreshing the
// partition first if this cache has not done so yet.
func (c *PathCache) Paths(ctx context.Context, l *locator.Locator) ([]string, error) {
	if err := c.Refresh(ctx, l.Partition); err != nil {
		c.log.Warn().Err(err).Stringer("partition", l.Partition).Msg("refresh locator cache")
	}
	return c.prune(ctx, l.Partition, l.CacheKey(c.opts))
}

// Record adds path to the working copies of l.
func (c *PathCache) Record(ctx context.Context, l *locator.Locator, path string) error {
	key := l.CacheKey(c.opts)
	paths, err := c.store.Get(ctx, l.Partition, key)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if samePath(p, path) {
			return nil
		}
	}
	return c.store.Put(ctx, l.Partition, key, append(paths, path))
}

// Forget removes path from the working copies of l.
func (c *PathCache) Forget(ctx context.Context, l *locator.Locator, path string) error {
	key := l.CacheKey(c.opts)
	paths, err := c.store.Get(ctx, l.Partition, key)
	if err != nil {
		return err
	}
	kept := paths[:0]
	for _, p := range paths {
		if !samePath(p, path) {
			kept = append(kept, p)
		}
	}
	return c.store.Put(ctx, l.Partition, key, kept)
}

// Refresh prunes and deduplicates every entry of partition p and maps the
// remotes of working copies found in the scan folder. It runs once per
// partition for the lifetime of the cache; later calls return the first
// result.
func (c *PathCache) Refresh(ctx context.Context, p locator.Partition) error {
	c.mu.Lock()
	state, ok := c.refreshed[p]
	if !ok {
		state = &refreshState{}
		c.refreshed[p] = state
	}
	c.mu.Unlock()

	state.once.Do(func() {
		state.err = c.refresh(ctx, p)
	})
	return state.err
}

func (c *PathCache) refresh(ctx context.Context, p locator.Partition) error {
	keys, err := c.store.Keys(ctx, p)
	if err != nil {
		return err
	}

	known := make(map[string]bool, len(keys))
	for _, key := range keys {
		paths, err := c.prune(ctx, p, key)
		if err != nil {
			return err
		}
		if len(paths) > 0 {
			known[key] = true
		}
	}

	folder := c.folders[p]
	if folder == "" || c.lister == nil {
		return nil
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scan %s: %w", folder, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(folder, entry.Name())
		urls, err := c.lister.FetchURLs(ctx, dir)
		if err != nil {
			c.log.Debug().Err(err).Str("dir", dir).Msg("list remotes")
			continue
		}
		for _, u := range urls {
			l, err := locator.Parse(u)
			if err != nil || l.IsLocal() {
				continue
			}
			key := l.CacheKey(c.opts)
			if known[key] {
				continue
			}
			if err := c.store.Put(ctx, p, key, []string{dir}); err != nil {
				return err
			}
			known[key] = true
			c.log.Info().Str("url", u).Str("dir", dir).Stringer("partition", p).Msg("found working copy")
		}
	}
	return nil
}

// prune drops missing and duplicate paths of key and writes the result
// back when anything changed.
func (c *PathCache) prune(ctx context.Context, p locator.Partition, key string) ([]string, error) {
	paths, err := c.store.Get(ctx, p, key)
	if err != nil {
		return nil, err
	}

	var kept []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			continue
		}
		dup := false
		for _, k := range kept {
			if samePath(k, path) {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, path)
		}
	}

	if len(kept) != len(paths) {
		c.log.Debug().Str("key", key).Int("dropped", len(paths)-len(kept)).Msg("pruned locator cache")
		if err := c.store.Put(ctx, p, key, kept); err != nil {
			return nil, err
		}
	}
	return kept, nil
}

func samePath(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}
