package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dshills/docsync/internal/integration/git"
	"github.com/dshills/docsync/internal/integration/process"
	"github.com/dshills/docsync/internal/locator"
)

// State is the progress of a request.
type State int

const (
	StateIdle State = iota
	StateLocal
	StateCloning
	StateFetching
	StateCheckout
	StateReady
	StateFailed
)

var stateNames = [...]string{"idle", "local", "cloning", "fetching", "checkout", "ready", "failed"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Done reports whether s is terminal.
func (s State) Done() bool {
	return s == StateLocal || s == StateReady || s == StateFailed
}

// ErrAborted is returned by Wait for an aborted request.
var ErrAborted = errors.New("request aborted")

// Request is one resolution of a locator.
type Request struct {
	// ID correlates the request with the process it dispatches.
	ID      string
	Locator *locator.Locator

	engine *Engine
	events *git.Events
	log    zerolog.Logger

	mu      sync.Mutex
	state   State
	path    string
	err     error
	cancel  context.CancelFunc
	aborted bool
	started bool
	done    chan struct{}
}

func newRequest(e *Engine, l *locator.Locator, id string) *Request {
	return &Request{
		ID:      id,
		Locator: l,
		engine:  e,
		events:  git.NewEvents(),
		log:     e.log.With().Str("request", id).Str("locator", l.Raw).Logger(),
		done:    make(chan struct{}),
	}
}

// Subscribe registers fn for the events of this request.
func (r *Request) Subscribe(fn git.Listener) (unsubscribe func()) {
	return r.events.Subscribe(fn)
}

// State returns the current state.
func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Path returns the project working copy, once known.
func (r *Request) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// DocumentPath returns the path of the requested document, once known.
func (r *Request) DocumentPath() string {
	path := r.Path()
	if path == "" {
		return ""
	}
	return r.Locator.DocumentPath(path)
}

// Err returns the failure of a failed request.
func (r *Request) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done is closed when the request reaches a terminal state.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the request finishes and returns its failure.
func (r *Request) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Abort cancels the request. A clone or fetch in flight is killed.
func (r *Request) Abort() {
	r.mu.Lock()
	r.aborted = true
	cancel := r.cancel
	started := r.started
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if !started {
		r.finish(StateFailed, ErrAborted)
	}
}

// Start begins resolving in the background. Starting twice does nothing.
func (r *Request) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started || r.aborted {
		r.mu.Unlock()
		return
	}
	r.started = true
	ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	go r.run(ctx)
}

func (r *Request) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Request) setPath(path string) {
	r.mu.Lock()
	r.path = path
	r.mu.Unlock()
}

func (r *Request) emit(ev git.Event) {
	r.events.Emit(ev)
	r.engine.events.Emit(ev)
}

// finish records the terminal state once and releases waiters.
func (r *Request) finish(s State, err error) {
	r.mu.Lock()
	if r.state.Done() {
		r.mu.Unlock()
		return
	}
	if r.aborted && err != nil && !errors.Is(err, ErrAborted) {
		err = fmt.Errorf("%w: %v", ErrAborted, err)
	}
	r.state = s
	r.err = err
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err != nil {
		r.log.Debug().Err(err).Msg("get failed")
		r.emit(git.Event{Kind: git.EventGetFailed, Path: r.Path(), Text: err.Error()})
	}
	close(r.done)
}

func (r *Request) run(ctx context.Context) {
	l := r.Locator

	if l.IsLocal() {
		path := l.LocalPath()
		if _, err := os.Stat(path); err != nil {
			r.finish(StateFailed, fmt.Errorf("%w: %s", ErrLocalMissing, path))
			return
		}
		r.setPath(path)
		r.emit(git.Event{Kind: git.EventDocReady, Path: l.DocumentPath(path)})
		r.finish(StateLocal, nil)
		return
	}

	release, err := r.engine.claim(ctx, l.CacheKey(r.engine.cfg.Locator))
	if err != nil {
		r.finish(StateFailed, err)
		return
	}
	defer release()

	dest, fresh, err := r.engine.destination(ctx, l)
	if err != nil {
		r.finish(StateFailed, err)
		return
	}
	r.setPath(dest)

	h, err := r.engine.registry.Acquire(dest)
	if err != nil {
		r.finish(StateFailed, err)
		return
	}
	defer h.Release()

	if err := r.sync(ctx, h, dest, fresh); err != nil {
		if fresh && r.engine.cfg.CleanupOnFailure[l.Partition] {
			r.cleanup(dest)
		}
		r.finish(StateFailed, err)
		return
	}
	r.finish(StateReady, nil)
}

// sync clones or fetches into dest, checks out the revision, records the
// mapping and raises the outcome events.
func (r *Request) sync(ctx context.Context, h *git.Handle, dest string, fresh bool) error {
	l := r.Locator
	uri := l.RepoURI(r.engine.cfg.Locator)

	var (
		p      *process.Process
		remote = git.DefaultRemote
		before string
	)
	if fresh {
		r.setState(StateCloning)
		r.log.Info().Str("url", uri).Str("dest", dest).Msg("cloning")
		p = h.AsyncClone(uri, dest, r.engine.cfg.Shallow[l.Partition])
	} else {
		r.setState(StateFetching)
		remote = r.remoteFor(ctx, h, uri)
		before, _ = h.Revision(ctx, git.Tip)
		r.log.Info().Str("remote", remote).Str("dest", dest).Msg("fetching")
		p = h.AsyncFetch(remote)
	}

	git.ReportProgress(p, git.NewPhaseEstimator(), func(pct int, line string) {
		r.emit(git.Event{Kind: git.EventProgressMessage, Path: dest, Text: line, Percent: pct})
	})

	if err := r.dispatch(ctx, h, p); err != nil {
		return err
	}

	r.setState(StateCheckout)
	if err := h.Checkout(ctx, checkoutTarget(l.Revision, remote, fresh)); err != nil {
		return err
	}

	if err := r.engine.paths.Record(ctx, l, dest); err != nil {
		r.log.Warn().Err(err).Msg("record locator cache")
	}

	kind := git.EventCloned
	if !fresh {
		kind = git.EventUpToDate
		if after, _ := h.Revision(ctx, git.Tip); after != before {
			kind = git.EventUpdated
		}
	}
	r.emit(git.Event{Kind: kind, Path: dest})
	r.emit(git.Event{Kind: git.EventDocReady, Path: l.DocumentPath(dest)})
	return nil
}

// dispatch queues p on the repository and waits for it. Cancelling ctx
// aborts p.
func (r *Request) dispatch(ctx context.Context, h *git.Handle, p *process.Process) error {
	h.Queue().Dispatch(p, r.ID)

	select {
	case <-p.Done():
	case <-ctx.Done():
		h.Queue().Abort(p)
		<-p.Done()
		return ctx.Err()
	}

	return p.Wait().Err
}

// remoteFor names the remote of h that fetches from uri. It falls back to
// DefaultRemote.
func (r *Request) remoteFor(ctx context.Context, h *git.Handle, uri string) string {
	remotes, err := h.Remotes(ctx)
	if err != nil {
		return git.DefaultRemote
	}
	for _, rem := range remotes {
		if rem.FetchURL == uri {
			return rem.Name
		}
	}
	return git.DefaultRemote
}

// checkoutTarget maps a requested revision to what gets checked out. A
// branch name after a fetch resolves to the remote tracking ref, which
// leaves the local branches untouched.
func checkoutTarget(rev, remote string, fresh bool) string {
	if locator.IsCommitID(rev) || fresh {
		return rev
	}
	return "remotes/" + remote + "/" + rev
}

func (r *Request) cleanup(dest string) {
	if err := os.RemoveAll(dest); err != nil {
		r.log.Warn().Err(err).Str("dest", dest).Msg("remove failed clone")
		return
	}
	r.log.Info().Str("dest", dest).Msg("removed failed clone")
}
