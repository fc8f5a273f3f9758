package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State represents the state of a process.
type State int

const (
	// StateCreated indicates the process has been created but not started.
	StateCreated State = iota
	// StateRunning indicates the process is currently running.
	StateRunning
	// StateExited indicates the process has exited normally or with an error.
	StateExited
	// StateKilled indicates the process was killed by a signal.
	StateKilled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Stream identifies an output stream.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

// String returns the stream name.
func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Result is the normalized outcome of a finished process.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int

	// Err is nil on success. Start failures, non-zero exits and abnormal
	// termination all surface as a *CommandError.
	Err error
}

// OK reports whether the command succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Process is one invocation of an external command.
//
// A Process is created idle; Start runs it in the background and Run runs it
// to completion. Output is captured into bounded buffers and can be observed
// incrementally through OnOutput.
type Process struct {
	// ID correlates asynchronous completion with the request that issued it.
	ID string

	// Name is a human-readable label used in logs.
	Name string

	// Started is the time the process was started.
	Started time.Time

	command  Command
	launcher Launcher
	log      zerolog.Logger

	stdout *OutputBuffer
	stderr *OutputBuffer

	state    atomic.Int32
	exitCode atomic.Int32
	aborted  atomic.Bool

	// done is closed once every completion handler has run.
	done chan struct{}

	mu     sync.RWMutex
	cmd    *exec.Cmd
	result Result

	handlersMu sync.Mutex
	onFinished []func(*Process)
	onOutput   []func(*Process, Stream, string)

	// finish is the owner's completion hook. It runs before the user handlers.
	finish func(*Process)

	completeOnce sync.Once
}

// Option configures a Process.
type Option func(*Process)

// WithLauncher sets the launcher used to build the command.
func WithLauncher(l Launcher) Option {
	return func(p *Process) {
		if l != nil {
			p.launcher = l
		}
	}
}

// WithMaxOutput limits the bytes retained per stream.
func WithMaxOutput(limit int) Option {
	return func(p *Process) {
		p.stdout = NewOutputBuffer(limit)
		p.stderr = NewOutputBuffer(limit)
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Process) {
		p.log = log
	}
}

// WithID sets the correlation identifier instead of a generated one.
func WithID(id string) Option {
	return func(p *Process) {
		if id != "" {
			p.ID = id
		}
	}
}

// WithName sets the label used in logs.
func WithName(name string) Option {
	return func(p *Process) {
		p.Name = name
	}
}

// New creates an idle process for the given command.
func New(c Command, opts ...Option) *Process {
	p := &Process{
		ID:       uuid.NewString(),
		Name:     c.Name,
		command:  c,
		launcher: PlainLauncher{},
		log:      zerolog.Nop(),
		stdout:   NewOutputBuffer(DefaultMaxOutput),
		stderr:   NewOutputBuffer(DefaultMaxOutput),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.state.Store(int32(StateCreated))
	p.exitCode.Store(-1)
	return p
}

// Command returns the command this process runs.
func (p *Process) Command() Command {
	return p.command
}

// State returns the current process state.
func (p *Process) State() State {
	return State(p.state.Load())
}

// ExitCode returns the process exit code, or -1 if it has not exited.
func (p *Process) ExitCode() int {
	return int(p.exitCode.Load())
}

// IsRunning returns true if the process is currently running.
func (p *Process) IsRunning() bool {
	return p.State() == StateRunning
}

// HasExited returns true if the process has exited (normally or killed).
func (p *Process) HasExited() bool {
	state := p.State()
	return state == StateExited || state == StateKilled
}

// Aborted reports whether the process was aborted by its owner.
func (p *Process) Aborted() bool {
	return p.aborted.Load()
}

// Done returns a channel that is closed when the process has finished and
// all completion handlers have run.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Stdout returns the retained standard output so far.
func (p *Process) Stdout() string {
	return p.stdout.String()
}

// Stderr returns the retained standard error so far.
func (p *Process) Stderr() string {
	return p.stderr.String()
}

// OnFinished registers a completion handler. Handlers run in registration
// order after the process exits, fails to start, or is aborted.
//
// For a queued process they run after the queue has dequeued it and started
// its successor, so Queue.Head inside a handler no longer returns p.
func (p *Process) OnFinished(fn func(*Process)) {
	p.handlersMu.Lock()
	p.onFinished = append(p.onFinished, fn)
	p.handlersMu.Unlock()
}

// OnOutput registers a handler receiving output one line at a time.
// Carriage returns terminate lines too, so progress updates are delivered
// as they are printed.
func (p *Process) OnOutput(fn func(p *Process, s Stream, line string)) {
	p.handlersMu.Lock()
	p.onOutput = append(p.onOutput, fn)
	p.handlersMu.Unlock()
}

// Start launches the process in the background.
func (p *Process) Start(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return ErrProcessAlreadyStarted
	}

	cmd := p.launcher.Prepare(ctx, p.command)
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}
	stdout := &streamWriter{p: p, stream: Stdout, buf: p.stdout}
	cmd.Stdout = stdout
	if p.command.CombineOutput {
		cmd.Stderr = stdout
	} else {
		cmd.Stderr = &streamWriter{p: p, stream: Stderr, buf: p.stderr}
	}

	if err := cmd.Start(); err != nil {
		return p.startFailed(fmt.Errorf("start process: %w", err))
	}

	p.mu.Lock()
	p.cmd = cmd
	p.mu.Unlock()
	p.Started = time.Now()

	p.log.Debug().Str("id", p.ID).Str("cmd", p.command.String()).Str("dir", p.command.Dir).Msg("process started")

	// Abort may have raced with the start.
	if p.Aborted() {
		_ = cmd.Process.Kill()
	}

	go p.waitLoop(cmd)
	return nil
}

// Run starts the process and waits for it. Cancelling ctx kills the process.
func (p *Process) Run(ctx context.Context) (Result, error) {
	if err := p.Start(ctx); err != nil {
		res := p.Wait()
		return res, err
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		_ = p.Kill()
		return p.Wait(), ctx.Err()
	}

	res := p.Wait()
	return res, res.Err
}

// Wait blocks until the process has finished and returns its result.
// It drains any remaining buffered output before returning.
func (p *Process) Wait() Result {
	<-p.done
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.result
}

// Kill sends SIGKILL to the process.
func (p *Process) Kill() error {
	return p.Signal(syscall.SIGKILL)
}

// Signal sends a signal to the process.
func (p *Process) Signal(sig syscall.Signal) error {
	if !p.IsRunning() {
		return fmt.Errorf("process not running: %w", ErrProcessNotStarted)
	}

	p.mu.RLock()
	cmd := p.cmd
	p.mu.RUnlock()
	if cmd == nil || cmd.Process == nil {
		return ErrProcessNotStarted
	}
	return cmd.Process.Signal(sig)
}

// abort marks the process aborted and stops it. A process that was never
// started finishes immediately; a running one is killed.
func (p *Process) abort() {
	p.aborted.Store(true)
	if p.state.CompareAndSwap(int32(StateCreated), int32(StateExited)) {
		p.setResult(Result{ExitCode: -1, Err: p.abortError()})
		p.complete()
		return
	}
	_ = p.Kill()
}

func (p *Process) abortError() error {
	return fmt.Errorf("%w: %s", ErrAborted, p.command.String())
}

// Runtime returns the duration the process has been running.
func (p *Process) Runtime() time.Duration {
	if p.Started.IsZero() {
		return 0
	}
	return time.Since(p.Started)
}

func (p *Process) startFailed(err error) error {
	p.state.Store(int32(StateExited))
	p.setResult(Result{
		ExitCode: -1,
		Err: &CommandError{
			Args:     append([]string{p.command.Name}, p.command.Args...),
			ExitCode: -1,
			Err:      err,
		},
	})
	p.log.Debug().Err(err).Str("cmd", p.command.String()).Msg("process failed to start")
	p.complete()
	return err
}

// waitLoop reaps the process and runs completion. Output still held open
// by orphaned children is cut off after the command's WaitDelay.
func (p *Process) waitLoop(cmd *exec.Cmd) {
	err := cmd.Wait()
	if errors.Is(err, exec.ErrWaitDelay) {
		p.log.Debug().Str("id", p.ID).Msg("output left open by child processes")
		err = nil
	}
	for _, w := range []io.Writer{cmd.Stdout, cmd.Stderr} {
		if sw, ok := w.(*streamWriter); ok {
			sw.flush()
		}
	}

	exitCode := 0
	state := StateExited
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				state = StateKilled
			}
		} else {
			exitCode = -1
		}
	}

	res := Result{
		Stdout:   p.stdout.String(),
		Stderr:   p.stderr.String(),
		ExitCode: exitCode,
	}
	switch {
	case p.Aborted():
		res.Err = p.abortError()
	case err != nil:
		res.Err = &CommandError{
			Args:     append([]string{p.command.Name}, p.command.Args...),
			ExitCode: exitCode,
			Stderr:   res.Stderr,
			Err:      err,
		}
	}

	p.exitCode.Store(int32(exitCode))
	p.setResult(res)
	p.state.Store(int32(state))

	p.log.Debug().Str("id", p.ID).Str("cmd", p.command.String()).Int("exit", exitCode).
		Dur("runtime", p.Runtime()).Msg("process exited")

	p.complete()
}

// streamWriter captures one output stream and delivers it line by line.
// exec.Cmd writes to it from a single goroutine.
type streamWriter struct {
	p      *Process
	stream Stream
	buf    *OutputBuffer
	lines  lineSplitter
	once   sync.Once
}

func (w *streamWriter) Write(b []byte) (int, error) {
	_, _ = w.buf.Write(b)
	for _, line := range w.lines.feed(b) {
		w.p.emitOutput(w.stream, line)
	}
	return len(b), nil
}

// flush delivers a trailing partial line. With combined output both
// streams share a writer, so it runs once.
func (w *streamWriter) flush() {
	w.once.Do(func() {
		if rest := w.lines.flush(); rest != "" {
			w.p.emitOutput(w.stream, rest)
		}
	})
}

func (p *Process) emitOutput(s Stream, line string) {
	p.handlersMu.Lock()
	handlers := append([]func(*Process, Stream, string){}, p.onOutput...)
	p.handlersMu.Unlock()

	for _, fn := range handlers {
		fn(p, s, line)
	}
}

func (p *Process) setResult(res Result) {
	p.mu.Lock()
	p.result = res
	p.mu.Unlock()
}

// complete runs the owner hook, then the user handlers, then releases Wait.
func (p *Process) complete() {
	p.completeOnce.Do(func() {
		if p.finish != nil {
			p.finish(p)
		}

		p.handlersMu.Lock()
		handlers := append([]func(*Process){}, p.onFinished...)
		p.handlersMu.Unlock()

		for _, fn := range handlers {
			func() {
				defer func() {
					if r := recover(); r != nil {
						p.log.Error().Interface("panic", r).Str("id", p.ID).Msg("completion handler panicked")
					}
				}()
				fn(p)
			}()
		}
		close(p.done)
	})
}

// lineSplitter cuts a byte stream into lines terminated by \n or \r.
type lineSplitter struct {
	pending strings.Builder
}

func (l *lineSplitter) feed(b []byte) []string {
	var out []string
	for _, c := range b {
		if c == '\n' || c == '\r' {
			if l.pending.Len() > 0 {
				out = append(out, l.pending.String())
				l.pending.Reset()
			}
			continue
		}
		l.pending.WriteByte(c)
	}
	return out
}

func (l *lineSplitter) flush() string {
	s := l.pending.String()
	l.pending.Reset()
	return s
}
