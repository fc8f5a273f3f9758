package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func versionCmd(e *env, info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the docsync and git versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, info)

			a, err := e.start(cmd.Context(), false)
			if err != nil {
				fmt.Fprintf(out, "git: %s\n", color.New(color.FgRed).Sprint(err.Error()))
				return nil
			}
			defer e.stop()
			fmt.Fprintf(out, "git: %s (minimum %s)\n", a.Backend(), a.Config().Git().MinVersion)
			return nil
		},
	}
}
