package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mdtcore/internal/core"
	"mdtcore/internal/modelio"
)

func (a *app) catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage load tiers and specifications",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Add a catalog to the stored model, creating the model when absent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			switch {
			case err == nil:
				a.printLog(loaded)
			case isNotFound(err):
				a.logger.Info("no stored model, starting empty", zap.String("model", model.Name()))
			default:
				a.printLog(loaded)
				return err
			}

			svc := a.newService(model)
			diag, err := svc.Apply(ctx, "catalog.seed", func(tx *core.Transaction) error {
				return seedFrom(ctx, tx, args[0])
			})
			a.printLog(diag)
			if err != nil {
				return err
			}
			saved, err := modelio.WriteModel(ctx, store, model)
			a.printLog(saved)
			if err != nil {
				return err
			}
			return a.printMetrics()
		},
	})
	return cmd
}
