package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kbukum/crossmatch/bootstrap"
	"github.com/kbukum/crossmatch/throttle"
)

func newThrottleCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "throttle",
		Short: "Print the effective throttle table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			app, err := bootstrap.NewApp(cfg)
			if err != nil {
				return err
			}
			return app.RunTask(cmd.Context(), func(context.Context) error {
				return printThrottle(cmd.OutOrStdout(), cfg.Scheduler.Limits())
			})
		},
	}
}

func printThrottle(out io.Writer, t throttle.Table) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OP\tCAPACITY\tREFILL/TICK\tMAX BATCH\tMIN BATCH")
	for _, op := range t.Ops() {
		l := t[op]
		fmt.Fprintf(w, "%s\t%d\t%g\t%d\t%d\n", op, l.Capacity, l.RefillRate, l.MaxBatch, l.MinBatch)
	}
	return w.Flush()
}
