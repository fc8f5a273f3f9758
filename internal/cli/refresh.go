package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dshills/docsync/internal/locator"
)

func refreshCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Prune the locator cache and scan the clone folders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.start(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.stop()

			out := cmd.OutOrStdout()
			folders := a.Config().Folders().ByPartition()
			for _, p := range locator.Partitions {
				status := color.New(color.FgGreen).Sprint("ok")
				if err := a.Paths().Refresh(cmd.Context(), p); err != nil {
					status = color.New(color.FgRed).Sprint(err.Error())
				}
				fmt.Fprintf(out, "%-9s %s %s\n", p, folders[p], status)
			}
			return nil
		},
	}
}
