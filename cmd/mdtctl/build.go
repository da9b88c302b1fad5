package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mdtcore/internal/catalog"
	"mdtcore/internal/core"
	"mdtcore/internal/modelio"
	"mdtcore/internal/script"
	"mdtcore/pkg/domain"
)

func (a *app) buildCmd() *cobra.Command {
	var (
		out    string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "build <script.hcl>",
		Short: "Build a model from a script and save a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := script.ParseFile(args[0])
			if err != nil {
				return err
			}
			model, err := a.newModel()
			if err != nil {
				return err
			}
			svc := a.newService(model)

			var built script.Result
			diag, err := svc.Apply(ctx, "build", func(tx *core.Transaction) error {
				if path := a.cfg.Catalog.SeedPath; path != "" {
					if err := seedFrom(ctx, tx, path); err != nil {
						return err
					}
				}
				built, err = s.Run(ctx, tx)
				return err
			})
			a.printLog(diag)
			if err != nil {
				return err
			}
			a.logger.Info("model built",
				zap.String("model", model.Name()),
				zap.Int("entities", len(built.Entities)),
				zap.Int("diagnostics", diag.Len()))

			if out != "" {
				saved, err := modelio.WriteFile(out, model)
				a.printLog(saved)
				if err != nil {
					return err
				}
			}
			if dryRun {
				return a.printMetrics()
			}
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			saved, err := modelio.WriteModel(ctx, store, model)
			a.printLog(saved)
			if err != nil {
				return err
			}
			return a.printMetrics()
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "also write the snapshot as JSON to this file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "build and report without saving to the store")
	return cmd
}

func seedFrom(ctx context.Context, tx *core.Transaction, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	_, err = catalog.Seed(ctx, tx, f)
	return err
}

// isNotFound reports whether err means the model has no stored snapshot.
func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
