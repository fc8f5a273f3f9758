package process

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the process package.
var (
	// ErrProcessNotStarted is returned when operations require a started process.
	ErrProcessNotStarted = errors.New("process not started")

	// ErrProcessAlreadyStarted is returned when trying to start a process twice.
	ErrProcessAlreadyStarted = errors.New("process already started")

	// ErrCommandFailed is matched by every command failure: start errors,
	// non-zero exits and abnormal termination.
	ErrCommandFailed = errors.New("command failed")

	// ErrAborted is returned for processes removed from a queue by Abort.
	ErrAborted = errors.New("process aborted")

	// ErrQueueClosed is returned when dispatching to a closed queue.
	ErrQueueClosed = errors.New("process queue closed")
)

// CommandError describes a failed command together with its diagnostics.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := strings.Join(e.Args, " ")
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Unwrap lets errors.Is match both ErrCommandFailed and the underlying error.
func (e *CommandError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCommandFailed}
	}
	return []error{ErrCommandFailed, e.Err}
}

// Diagnostic returns the stderr text carried by err, if any.
func Diagnostic(err error) string {
	var cerr *CommandError
	if errors.As(err, &cerr) {
		if cerr.Stderr != "" {
			return cerr.Stderr
		}
		if cerr.Err != nil {
			return cerr.Err.Error()
		}
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func formatHead(p *Process) string {
	if p == nil {
		return "<none>"
	}
	return fmt.Sprintf("%s (%s)", p.ID, p.command.String())
}
