package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dshills/docsync/internal/integration/git"
	"github.com/dshills/docsync/internal/locator"
	"github.com/dshills/docsync/internal/resolver"
)

// chooser picks the first known working copy, or none with --fresh.
func (e *env) chooser() resolver.DestinationChooser {
	return resolver.ChooserFunc(func(_ context.Context, _ *locator.Locator, candidates []string) (string, error) {
		if e.fresh || len(candidates) == 0 {
			return "", nil
		}
		return candidates[0], nil
	})
}

func getCmd(e *env) *cobra.Command {
	var (
		timeout time.Duration
		quiet   bool
	)

	cmd := &cobra.Command{
		Use:   "get LOCATOR",
		Short: "Resolve a document locator to a local path",
		Long: `Resolve a document locator, cloning or fetching its project as needed,
and print the path of the document.

Locator parameters:
  d=PATH   document inside the project
  r=REV    branch, tag or commit (default master)
  t        template project
  m        module project`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			a, err := e.start(ctx, false)
			if err != nil {
				return err
			}
			defer e.stop()

			out := cmd.OutOrStdout()
			progress := cmd.ErrOrStderr()
			var docPath string

			req, err := a.Engine().Get(ctx, args[0], func(ev git.Event) {
				switch ev.Kind {
				case git.EventDocReady:
					docPath = ev.Path
				default:
					if !quiet {
						printEvent(progress, ev)
					}
				}
			})
			if err != nil {
				return err
			}

			if err := req.Wait(ctx); err != nil {
				req.Abort()
				<-req.Done()
				return err
			}
			fmt.Fprintln(out, docPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&e.fresh, "fresh", false, "clone a new working copy even if one is known")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "abort after this long")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the document path")
	return cmd
}

func printEvent(w io.Writer, ev git.Event) {
	switch ev.Kind {
	case git.EventProgressMessage:
		if ev.Percent >= 0 {
			fmt.Fprintf(w, "%s %s\n", color.New(color.FgCyan).Sprintf("%3d%%", ev.Percent), ev.Text)
		} else {
			fmt.Fprintf(w, "     %s\n", ev.Text)
		}
	case git.EventCloned:
		fmt.Fprintf(w, "%s %s\n", color.New(color.FgGreen).Sprint("cloned"), ev.Path)
	case git.EventUpdated:
		fmt.Fprintf(w, "%s %s\n", color.New(color.FgGreen).Sprint("updated"), ev.Path)
	case git.EventUpToDate:
		fmt.Fprintf(w, "%s %s\n", color.New(color.FgBlue).Sprint("up to date"), ev.Path)
	case git.EventGetFailed:
		fmt.Fprintf(w, "%s %s\n", color.New(color.FgRed).Sprint("failed"), ev.Text)
	}
}
