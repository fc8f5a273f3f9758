package process

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// DefaultWaitDelay bounds how long a finished or killed command may keep
// its output open through child processes such as ssh.
const DefaultWaitDelay = 500 * time.Millisecond

// Command describes a single invocation of an external program.
type Command struct {
	// Name is the executable, resolved through PATH if not absolute.
	Name string

	// Args are the arguments passed to the executable.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env holds extra KEY=VALUE pairs appended to the launcher environment.
	Env []string

	// CombineOutput routes stderr into the stdout buffer.
	CombineOutput bool
}

// String returns the command line for diagnostics.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Launcher builds the exec.Cmd for a Command.
//
// A launcher is selected once at startup and shared by every process, so
// platform and authentication specifics stay out of the runner.
type Launcher interface {
	Prepare(ctx context.Context, c Command) *exec.Cmd
}

// PlainLauncher runs commands with the parent environment plus Env.
type PlainLauncher struct {
	Env []string
}

// Prepare implements Launcher.
func (l PlainLauncher) Prepare(ctx context.Context, c Command) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = mergeEnv(os.Environ(), l.Env, c.Env)
	cmd.WaitDelay = DefaultWaitDelay
	return cmd
}

// AskPassLauncher injects the variables git and ssh consult for
// non-interactive authentication.
type AskPassLauncher struct {
	// AskPass is the helper program answering credential prompts.
	AskPass string

	// ExecPath overrides the backend's helper directory (GIT_EXEC_PATH).
	ExecPath string

	// Env holds additional variables.
	Env []string
}

// Prepare implements Launcher.
func (l AskPassLauncher) Prepare(ctx context.Context, c Command) *exec.Cmd {
	extra := []string{"GIT_TERMINAL_PROMPT=0"}
	if l.AskPass != "" {
		extra = append(extra,
			"GIT_ASKPASS="+l.AskPass,
			"SSH_ASKPASS="+l.AskPass,
			"SSH_ASKPASS_REQUIRE=force",
		)
	}
	if l.ExecPath != "" {
		extra = append(extra, "GIT_EXEC_PATH="+l.ExecPath)
	}
	extra = append(extra, l.Env...)

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = mergeEnv(os.Environ(), extra, c.Env)
	cmd.WaitDelay = DefaultWaitDelay
	return cmd
}

// LauncherOptions selects and configures the default launcher.
type LauncherOptions struct {
	AskPass  string
	ExecPath string
	Env      []string
}

// DefaultLauncher picks the launcher for the running platform.
//
// On Windows the backend's exec path is prepended to PATH because the
// bundled tool ships its helpers outside the system search path.
func DefaultLauncher(opts LauncherOptions) Launcher {
	env := append([]string(nil), opts.Env...)
	if runtime.GOOS == "windows" && opts.ExecPath != "" {
		env = append(env, "PATH="+opts.ExecPath+string(filepath.ListSeparator)+os.Getenv("PATH"))
	}

	if opts.AskPass != "" || opts.ExecPath != "" {
		return AskPassLauncher{AskPass: opts.AskPass, ExecPath: opts.ExecPath, Env: env}
	}
	return PlainLauncher{Env: append(env, "GIT_TERMINAL_PROMPT=0")}
}

// mergeEnv overlays KEY=VALUE lists, later entries winning.
func mergeEnv(base []string, overlays ...[]string) []string {
	index := make(map[string]int, len(base))
	out := make([]string, 0, len(base))
	add := func(kv string) {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		if pos, ok := index[key]; ok {
			out[pos] = kv
			return
		}
		index[key] = len(out)
		out = append(out, kv)
	}

	for _, kv := range base {
		add(kv)
	}
	for _, overlay := range overlays {
		for _, kv := range overlay {
			add(kv)
		}
	}
	return out
}
