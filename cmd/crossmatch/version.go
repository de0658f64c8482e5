package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbukum/crossmatch/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			info := version.Get()
			fmt.Fprintln(cmd.OutOrStdout(), "crossmatch", info.String())
			if info.GoVersion != "" {
				fmt.Fprintln(cmd.OutOrStdout(), "go", info.GoVersion)
			}
		},
	}
}
