package app

import (
	"context"
	"errors"

	"github.com/dshills/docsync/internal/config"
	"github.com/dshills/docsync/internal/integration/git"
	"github.com/dshills/docsync/internal/integration/process"
	"github.com/dshills/docsync/internal/locator/cache"
	"github.com/dshills/docsync/internal/logging"
	"github.com/dshills/docsync/internal/resolver"
)

// bootstrapper initializes components in dependency order and undoes the
// finished steps when a later one fails.
type bootstrapper struct {
	app       *Application
	opts      Options
	initOrder []string
}

func newBootstrapper(app *Application, opts Options) *bootstrapper {
	return &bootstrapper{app: app, opts: opts, initOrder: make([]string, 0, 6)}
}

func (b *bootstrapper) bootstrap(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"config", b.initConfig},
		{"logging", b.initLogging},
		{"backend", b.initBackend},
		{"registry", b.initRegistry},
		{"cache", b.initCache},
		{"resolver", b.initResolver},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			b.cleanup()
			return &InitError{Component: step.name, Err: err}
		}
		b.initOrder = append(b.initOrder, step.name)
	}
	return nil
}

func (b *bootstrapper) initConfig(ctx context.Context) error {
	var opts []config.Option
	if b.opts.ConfigPath != "" {
		opts = append(opts, config.WithFile(b.opts.ConfigPath))
	}
	cfg := config.New(opts...)
	if err := cfg.Load(ctx); err != nil {
		return err
	}
	for path, value := range b.opts.Overrides {
		if err := cfg.Set(path, value); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	b.app.config = cfg
	return nil
}

func (b *bootstrapper) initLogging(context.Context) error {
	lc := b.app.config.Logging()
	log, err := logging.New(logging.Config{Level: lc.Level, Format: lc.Format, Output: b.opts.LogOutput})
	if err != nil {
		return err
	}
	b.app.log = log
	log.Debug().Str("config", b.app.config.Path()).Msg("configuration loaded")
	return nil
}

func (b *bootstrapper) initBackend(ctx context.Context) error {
	gc := b.app.config.Git()
	b.app.launcher = process.DefaultLauncher(process.LauncherOptions{
		AskPass:  gc.AskPass,
		ExecPath: gc.ExecPath,
	})
	if b.opts.SkipBackendCheck {
		return nil
	}

	v, err := git.CheckBackend(ctx, b.app.launcher, gc.Executable, gc.MinVersion)
	if err != nil {
		b.app.log.Error().Err(err).Str("executable", gc.Executable).Msg("git backend check failed")
		return err
	}
	b.app.backend = v
	b.app.log.Debug().Stringer("version", v).Msg("git backend")
	return nil
}

func (b *bootstrapper) initRegistry(context.Context) error {
	cfg := b.app.config
	gc := cfg.Git()
	rc := cfg.Repository()

	policy, err := git.ParseMergeMode(rc.ConflictPolicy)
	if err != nil {
		return err
	}

	log := logging.Component(b.app.log, "git")
	b.app.registry = git.NewRegistry(git.Config{
		Executable:     gc.Executable,
		Launcher:       b.app.launcher,
		MaxOutput:      cfg.Process().MaxOutput,
		AuthorName:     gc.AuthorName,
		AuthorEmail:    gc.AuthorEmail,
		PullSource:     rc.PullSource,
		ConflictPolicy: policy,
		PollInterval:   rc.PollInterval,
		Logger:         &log,
	})
	return nil
}

func (b *bootstrapper) initCache(context.Context) error {
	cc := b.app.config.Cache()

	var store cache.Store
	if cc.Path == "" {
		store = cache.NewMemStore()
	} else {
		s, err := cache.OpenSQLite(cc.Path)
		if err != nil {
			return err
		}
		store = s
	}
	b.app.store = store

	opts := []cache.Option{
		cache.WithLogger(logging.Component(b.app.log, "cache")),
		cache.WithLocatorOptions(b.app.config.Locator().Options()),
	}
	lister := resolver.RemoteLister(b.app.registry)
	for p, folder := range b.app.config.Folders().ByPartition() {
		opts = append(opts, cache.WithScan(p, folder, lister))
	}
	b.app.paths = cache.New(store, opts...)
	return nil
}

func (b *bootstrapper) initResolver(context.Context) error {
	cfg := b.app.config

	cleanup, err := config.PartitionSet(cfg.Cache().CleanupOnFailure)
	if err != nil {
		return err
	}
	shallow, err := config.PartitionSet(cfg.Folders().Shallow)
	if err != nil {
		return err
	}

	log := b.app.log
	b.app.engine = resolver.New(b.app.registry, b.app.paths, resolver.Config{
		Folders:          cfg.Folders().ByPartition(),
		Locator:          cfg.Locator().Options(),
		CleanupOnFailure: cleanup,
		Shallow:          shallow,
		Chooser:          b.opts.Chooser,
		Logger:           &log,
	})
	return nil
}

// cleanup shuts down the initialized components in reverse order.
func (b *bootstrapper) cleanup() {
	var errs []error
	for i := len(b.initOrder) - 1; i >= 0; i-- {
		switch b.initOrder[i] {
		case "registry":
			errs = append(errs, b.app.registry.Close())
			b.app.registry = nil
		case "cache":
			errs = append(errs, b.app.store.Close())
			b.app.store = nil
		}
	}
	if err := errors.Join(errs...); err != nil {
		b.app.log.Warn().Err(err).Msg("cleanup after failed start")
	}
}
