package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mdtcore/internal/modelio"
	"mdtcore/internal/solver"
	"mdtcore/pkg/domain"
)

func (a *app) checkCmd() *cobra.Command {
	var years int
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the stored model for islanded operation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			model, err := a.newModel()
			if err != nil {
				return err
			}
			loaded, err := modelio.ReadModel(ctx, store, model)
			if err != nil {
				a.printLog(loaded)
				return err
			}
			info, diag := solver.RunIslanded(ctx, model, solver.Options{
				Years:  years,
				Logger: a.svcLogger,
			})
			a.printLog(diag)

			fmt.Fprintf(a.stdout, "model %s, %d years, %d microgrids, total capacity %g\n",
				info.Model, info.SimulationYears, len(info.Microgrids), info.TotalCapacity)
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MICROGRID\tBUSSES\tGENERATORS\tCAPACITY\tBATTERIES\tLOADS")
			for _, mg := range info.Microgrids {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%g\t%d\t%d\n", mg.Name, mg.Busses, mg.GeneratorCount(),
					mg.Capacity, mg.Batteries, mg.LoadSections)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if err := a.printMetrics(); err != nil {
				return err
			}
			if !info.Runnable {
				return fmt.Errorf("model %s is not runnable: %d errors", info.Model, diag.Count(domain.CategoryError))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&years, "years", 0, "override the simulation years")
	return cmd
}
