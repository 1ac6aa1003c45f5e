package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"goa.design/clue/log"

	"github.com/meur/compendium/internal/seed"
)

func newSeedCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load item types, items and races from a YAML file",
		Long: `Load item types, items and races from a YAML file. Records are keyed by
slug, so seeding again updates them in place. Run "import all" afterwards to
make the changes searchable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			f, err := seed.Load(file)
			if err != nil {
				return fmt.Errorf("load %s: %w", file, err)
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			sum, err := seed.Apply(ctx, store, f)
			if err != nil {
				return err
			}
			log.Info(ctx, log.KV{K: "msg", V: "seeding complete"}, log.KV{K: "file", V: file})
			fmt.Fprintf(cmd.OutOrStdout(), "%d item types, %d items, %d races\n", sum.ItemTypes, sum.Items, sum.Races)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "seeds/compendium.yaml", "Seed file")
	return cmd
}
