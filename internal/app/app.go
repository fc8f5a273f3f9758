// Package app wires the docsync components together: configuration,
// logging, the git backend, the repository registry, the locator cache and
// the resolver engine.
package app

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dshills/docsync/internal/config"
	"github.com/dshills/docsync/internal/integration/git"
	"github.com/dshills/docsync/internal/integration/process"
	"github.com/dshills/docsync/internal/locator/cache"
	"github.com/dshills/docsync/internal/resolver"
)

// Options configures an Application.
type Options struct {
	// ConfigPath overrides the configuration file. Empty uses the default.
	ConfigPath string

	// Overrides are applied to the configuration after loading, keyed by
	// setting path.
	Overrides map[string]any

	// LogOutput receives log lines. Defaults to stderr.
	LogOutput io.Writer

	// SkipBackendCheck skips the git version probe.
	SkipBackendCheck bool

	// Chooser resolves ambiguous document destinations.
	Chooser resolver.DestinationChooser
}

// Application owns the long-lived components.
type Application struct {
	mu       sync.Mutex
	opts     Options
	config   *config.Config
	log      zerolog.Logger
	launcher process.Launcher
	backend  git.Version
	registry *git.Registry
	store    cache.Store
	paths    *cache.PathCache
	engine   *resolver.Engine
	closed   bool
}

// New initializes every component. On failure the components already
// started are shut down again.
func New(ctx context.Context, opts Options) (*Application, error) {
	app := &Application{opts: opts, log: zerolog.Nop()}
	if err := newBootstrapper(app, opts).bootstrap(ctx); err != nil {
		return nil, err
	}
	return app, nil
}

// Config returns the loaded configuration.
func (app *Application) Config() *config.Config { return app.config }

// Logger returns the application logger.
func (app *Application) Logger() zerolog.Logger { return app.log }

// Backend returns the probed git version. It is zero when the probe was
// skipped.
func (app *Application) Backend() git.Version { return app.backend }

// Registry returns the repository registry.
func (app *Application) Registry() *git.Registry { return app.registry }

// Paths returns the locator cache.
func (app *Application) Paths() *cache.PathCache { return app.paths }

// Engine returns the resolver engine.
func (app *Application) Engine() *resolver.Engine { return app.engine }

// Open acquires the repository at path. The caller releases the handle.
func (app *Application) Open(ctx context.Context, path string) (*git.Handle, error) {
	h, err := app.registry.Acquire(path)
	if err != nil {
		return nil, err
	}
	if !h.Valid(ctx) {
		h.Release()
		return nil, &RepoError{Path: path, Err: git.ErrNotRepository}
	}
	return h, nil
}

// Shutdown stops the watchers, aborts queued commands and closes the
// cache. It is safe to call more than once.
func (app *Application) Shutdown() error {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.closed {
		return nil
	}
	app.closed = true

	var errs []error
	if app.registry != nil {
		errs = append(errs, app.registry.Close())
	}
	if app.store != nil {
		errs = append(errs, app.store.Close())
	}
	app.log.Debug().Msg("shutdown complete")
	return errors.Join(errs...)
}
