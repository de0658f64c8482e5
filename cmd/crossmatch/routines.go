package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbukum/crossmatch/bootstrap"
	"github.com/kbukum/crossmatch/routine"
)

func newRoutinesCmd(flags *globalFlags) *cobra.Command {
	var pipelines []string
	cmd := &cobra.Command{
		Use:   "routines",
		Short: "List the routines and their stage levels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if len(pipelines) > 0 {
				cfg.Pipelines = pipelines
			}
			app, err := bootstrap.NewApp(cfg)
			if err != nil {
				return err
			}
			return app.RunTask(cmd.Context(), func(context.Context) error {
				return listRoutines(cmd.OutOrStdout(), routine.NewCatalog(cfg.Pipelines...))
			})
		},
	}
	cmd.Flags().StringSliceVar(&pipelines, "pipelines", nil, "directories holding routine YAML files")
	return cmd
}

// listRoutines prints one line per routine, its levels joined by arrows:
//
//	ogaster    wm -> gmpfId -> gcpfAsin,glolfAsin -> gmfe
func listRoutines(out io.Writer, c *routine.Catalog) error {
	names, err := c.List()
	if err != nil {
		return err
	}
	for _, name := range names {
		levels, err := c.Levels(name)
		if err != nil {
			fmt.Fprintf(out, "%-10s invalid: %v\n", name, err)
			continue
		}
		parts := make([]string, len(levels))
		for i, l := range levels {
			parts[i] = strings.Join(l, ",")
		}
		fmt.Fprintf(out, "%-10s %s\n", name, strings.Join(parts, " -> "))
	}
	return nil
}
