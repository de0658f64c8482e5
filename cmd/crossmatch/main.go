// Command crossmatch runs the Walmart to Amazon crossmatch routines.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	envFile    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "crossmatch:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags globalFlags
	root := &cobra.Command{
		Use:           "crossmatch",
		Short:         "Match Walmart items to Amazon listings and keep their pricing fresh",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "config file (default: config.yml in the usual places)")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", "", "dotenv file loaded before the environment")

	root.AddCommand(
		newRunCmd(&flags),
		newRoutinesCmd(&flags),
		newThrottleCmd(&flags),
		newVersionCmd(),
	)
	return root
}
