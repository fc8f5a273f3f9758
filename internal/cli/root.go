// Package cli implements the docsync command tree.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dshills/docsync/internal/app"
)

// BuildInfo identifies the binary.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("docsync %s (commit: %s, built: %s)", b.Version, b.Commit, b.Date)
}

// env carries the flags shared by every command and the application they
// start.
type env struct {
	configPath string
	logLevel   string
	verbose    bool
	noColor    bool
	fresh      bool
	logOutput  io.Writer

	app *app.Application
}

// start builds the application once per invocation. Callers defer stop.
func (e *env) start(ctx context.Context, skipBackendCheck bool) (*app.Application, error) {
	if e.app != nil {
		return e.app, nil
	}

	overrides := map[string]any{}
	switch {
	case e.verbose:
		overrides["logging.level"] = "debug"
	case e.logLevel != "":
		overrides["logging.level"] = e.logLevel
	}

	a, err := app.New(ctx, app.Options{
		ConfigPath:       e.configPath,
		Overrides:        overrides,
		LogOutput:        e.logOutput,
		SkipBackendCheck: skipBackendCheck,
		Chooser:          e.chooser(),
	})
	if err != nil {
		return nil, err
	}
	e.app = a
	return a, nil
}

func (e *env) stop() error {
	if e.app == nil {
		return nil
	}
	err := e.app.Shutdown()
	e.app = nil
	return err
}

// NewRootCmd returns the docsync command tree. Log output goes to logs.
func NewRootCmd(info BuildInfo, logs io.Writer) *cobra.Command {
	e := &env{logOutput: logs}

	root := &cobra.Command{
		Use:     "docsync",
		Short:   "Fetch and version documents kept in git projects",
		Version: info.String(),
		Long: `docsync resolves document locators such as
tao://example.com/project?d=chapter.doc&r=v2 to local working copies,
cloning or fetching the project as needed, and records document changes
as commits.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if e.noColor {
				color.NoColor = true
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&e.configPath, "config", "c", "", "configuration file")
	flags.StringVar(&e.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVarP(&e.verbose, "verbose", "v", false, "debug logging")
	flags.BoolVar(&e.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		getCmd(e),
		initCmd(e),
		statusCmd(e),
		commitCmd(e),
		historyCmd(e),
		branchesCmd(e),
		checkoutCmd(e),
		refreshCmd(e),
		versionCmd(e, info),
	)
	return root
}
