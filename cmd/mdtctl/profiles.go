package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mdtcore/internal/blob"
	"mdtcore/internal/profiles"
	"mdtcore/pkg/domain"
)

func (a *app) profilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Inspect the stored-configuration library",
	}
	var category string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the profiles in the blob store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			lib, err := a.loadLibrary(ctx)
			if err != nil {
				return err
			}
			categories := profiles.Categories
			if category != "" {
				categories = []string{category}
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tNAME\tTIER\tPOINTS\tPERIOD\tINTERVAL")
			for _, c := range categories {
				for _, p := range lib.Profiles(c) {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%g %s\t%g %s\n", p.Category, p.Label, p.Tier, len(p.Data),
						p.Timing.Period, p.Timing.PeriodUnits, p.Timing.Interval, p.Timing.IntervalUnits)
				}
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&category, "category", "", "only list this category")
	cmd.AddCommand(list, a.profilesAddCmd())
	return cmd
}

func (a *app) profilesAddCmd() *cobra.Command {
	var (
		p             domain.Profile
		periodUnits   string
		intervalUnits string
	)
	cmd := &cobra.Command{
		Use:   "add <category> <name>",
		Short: "Create a stored configuration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if p.Timing.PeriodUnits, err = domain.ParseTimeUnit(periodUnits); err != nil {
				return err
			}
			if p.Timing.IntervalUnits, err = domain.ParseTimeUnit(intervalUnits); err != nil {
				return err
			}
			ctx := cmd.Context()
			lib, err := a.loadLibrary(ctx)
			if err != nil {
				return err
			}
			var saved domain.Profile
			if args[0] == domain.ProfileThermal {
				saved, err = lib.MakeThermal(ctx, args[1], p)
			} else {
				saved, err = lib.Make(ctx, args[0], args[1], p)
			}
			if err != nil {
				return err
			}
			a.logger.Info("stored configuration created", zap.String("category", saved.Category),
				zap.String("name", saved.Label), zap.String("id", saved.ID))
			fmt.Fprintf(a.stdout, "saved %s (%d points)\n", profiles.Key(saved.Category, saved.Label), len(saved.Data))
			return nil
		},
	}
	f := cmd.Flags()
	f.Float64SliceVar(&p.Data, "data", nil, "comma separated data values")
	f.StringVar(&p.Tier, "tier", "", "load tier the data belongs to")
	f.StringVar(&p.Notes, "notes", "", "notes stored with the profile")
	f.StringVar(&p.ID, "guid", "", "identifier to assign instead of a random one")
	f.Float64Var(&p.Timing.Period, "period", 1, "period length")
	f.StringVar(&periodUnits, "period-units", string(domain.Years), "period units")
	f.Float64Var(&p.Timing.Interval, "interval", 1, "interval length")
	f.StringVar(&intervalUnits, "interval-units", string(domain.Hours), "interval units")
	return cmd
}

func (a *app) loadLibrary(ctx context.Context) (*profiles.Library, error) {
	store, err := blob.Open(ctx, a.cfg.BlobConfig())
	if err != nil {
		return nil, err
	}
	lib := profiles.New(store, profiles.WithConcurrency(a.cfg.Profiles.Concurrency))
	diag, err := lib.Load(ctx)
	a.printLog(diag)
	if err != nil {
		return nil, err
	}
	return lib, nil
}
