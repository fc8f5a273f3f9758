package cli

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dshills/docsync/internal/integration/git"
)

// pathArg returns the working copy named by args[i], defaulting to ".".
func pathArg(args []string, i int) (string, error) {
	path := "."
	if len(args) > i {
		path = args[i]
	}
	return filepath.Abs(path)
}

func initCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "init [PATH]",
		Short: "Create a working copy with an initial commit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := pathArg(args, 0)
			if err != nil {
				return err
			}
			a, err := e.start(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.stop()

			h, err := a.Registry().Acquire(path)
			if err != nil {
				return err
			}
			defer h.Release()

			if h.Valid(cmd.Context()) {
				return fmt.Errorf("%s is already a working copy", path)
			}
			if err := h.Initialize(cmd.Context()); err != nil {
				return fmt.Errorf("%w: %s", err, h.Diagnostic())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", path)
			return nil
		},
	}
}

func statusCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status [PATH]",
		Short: "Show branch and changed files of a working copy",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := pathArg(args, 0)
			if err != nil {
				return err
			}
			a, err := e.start(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.stop()

			h, err := a.Open(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer h.Release()

			st, err := h.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			branch := st.Branch
			if st.IsDetached() {
				branch = color.New(color.FgYellow).Sprintf("(detached at %s)", shortHash(st.Head))
			}
			fmt.Fprintf(out, "On branch %s\n", branch)
			if !st.HasChanges() {
				fmt.Fprintln(out, color.New(color.FgGreen).Sprint("clean"))
				return nil
			}

			for _, f := range st.Staged {
				fmt.Fprintf(out, "  %s %s\n", color.New(color.FgGreen).Sprintf("%-10s", f.Status), f.Path)
			}
			for _, f := range st.Unstaged {
				fmt.Fprintf(out, "  %s %s\n", color.New(color.FgRed).Sprintf("%-10s", f.Status), f.Path)
			}
			for _, p := range st.Untracked {
				fmt.Fprintf(out, "  %s %s\n", color.New(color.FgRed).Sprintf("%-10s", "untracked"), p)
			}
			for _, p := range st.Conflicts {
				fmt.Fprintf(out, "  %s %s\n", color.New(color.FgHiMagenta).Sprintf("%-10s", "conflict"), p)
			}
			return nil
		},
	}
}

func commitCmd(e *env) *cobra.Command {
	var (
		message string
		all     bool
	)

	cmd := &cobra.Command{
		Use:   "commit [PATH]",
		Short: "Record the changes of a working copy",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := pathArg(args, 0)
			if err != nil {
				return err
			}
			a, err := e.start(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.stop()

			h, err := a.Open(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer h.Release()

			c, err := h.Commit(cmd.Context(), message, all)
			if err != nil {
				return fmt.Errorf("%w: %s", err, h.Diagnostic())
			}
			if c == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to commit")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.New(color.FgYellow).Sprint(c.ShortID), c.Message)
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "stage every change first")
	return cmd
}

func historyCmd(e *env) *cobra.Command {
	var (
		branch string
		max    int
	)

	cmd := &cobra.Command{
		Use:   "history [PATH]",
		Short: "List the commits of a branch, oldest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := pathArg(args, 0)
			if err != nil {
				return err
			}
			a, err := e.start(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.stop()

			h, err := a.Open(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer h.Release()

			commits, err := h.History(cmd.Context(), branch, max)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range commits {
				fmt.Fprintf(out, "%s %s %s %s\n",
					color.New(color.FgYellow).Sprint(c.ShortID),
					c.Time.Format("2006-01-02"),
					color.New(color.FgCyan).Sprint(c.Author),
					c.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&branch, "branch", "b", "", "branch to list (default current)")
	cmd.Flags().IntVarP(&max, "max", "n", 0, "list only the last N commits")
	return cmd
}

func branchesCmd(e *env) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "branches [PATH]",
		Short: "List branches",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := pathArg(args, 0)
			if err != nil {
				return err
			}
			a, err := e.start(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.stop()

			h, err := a.Open(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer h.Release()

			branches, err := h.Branches(cmd.Context(), remote)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, b := range branches {
				fmt.Fprintln(out, formatBranch(b))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&remote, "remote", "r", false, "include remote tracking branches")
	return cmd
}

func formatBranch(b git.Branch) string {
	marker := "  "
	name := b.Name
	switch {
	case b.IsHead:
		marker = "* "
		name = color.New(color.FgGreen).Sprint(b.Name)
	case b.IsRemote:
		name = color.New(color.FgRed).Sprint(b.Name)
	}
	line := marker + name + " " + shortHash(b.Hash)
	if b.Upstream != "" {
		line += " [" + b.Upstream + "]"
	}
	return line
}

func checkoutCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "checkout [PATH] REV",
		Short: "Switch a working copy to a branch or commit",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rev := args[len(args)-1]
			path, err := pathArg(args[:len(args)-1], 0)
			if err != nil {
				return err
			}
			a, err := e.start(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.stop()

			h, err := a.Open(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer h.Release()

			if err := h.Checkout(cmd.Context(), rev); err != nil {
				return fmt.Errorf("%w: %s", err, h.Diagnostic())
			}
			desc, err := h.Describe(cmd.Context())
			if err != nil {
				desc = rev
			}
			fmt.Fprintf(cmd.OutOrStdout(), "at %s\n", desc)
			return nil
		},
	}
}

func shortHash(id string) string {
	if len(id) > 7 {
		return id[:7]
	}
	return id
}
