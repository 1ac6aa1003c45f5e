package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/meur/compendium/internal/api"
	"github.com/meur/compendium/internal/search"
)

const allEntities = "all"

// openAdmin opens the indexes for a one-shot admin command. Cached search
// pages of a running server are invalidated through Redis when it is
// configured.
func (a *app) openAdmin(ctx context.Context) (*search.Engine, func() error, error) {
	var inv search.Invalidator
	closeCache := func() error { return nil }
	if a.cfg.Redis.Addr != "" {
		c, closeFn, err := a.openCache(ctx)
		if err != nil {
			return nil, nil, err
		}
		inv, closeCache = c, closeFn
	}

	engine, closeIndexes, err := a.openIndexes(ctx, inv)
	if err != nil {
		closeCache()
		return nil, nil, err
	}
	return engine, func() error { return errors.Join(closeIndexes(), closeCache()) }, nil
}

func newConfigureIndexesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "configure-indexes",
		Short: "Create or update the search indexes",
		Long: `Create every missing search index and rebuild the ones whose settings changed.
Running it again without changes leaves the indexes and their documents alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			engine, closeFn, err := a.openAdmin(ctx)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, closeFn()) }()

			results, err := engine.Configure(ctx)
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r.Index, r.Action)
			}
			return nil
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	var chunkSize int
	cmd := &cobra.Command{
		Use:       "import <items|races|all>",
		Short:     "Reindex every record of an entity type",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{search.Items.Name, search.Races.Name, allEntities},
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			entity := strings.ToLower(args[0])

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			engine, closeFn, err := a.openAdmin(ctx)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, closeFn()) }()

			if chunkSize <= 0 {
				chunkSize = a.cfg.Search.ImportChunkSize
			}
			importer := api.NewImporter(store, engine, chunkSize)

			var reports []search.Report
			if entity == allEntities {
				reports, err = importer.ImportAll(ctx)
			} else {
				var r search.Report
				r, err = importer.Import(ctx, entity)
				reports = append(reports, r)
			}
			if err != nil {
				return err
			}
			for _, r := range reports {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d documents\t%d chunks\t%s\n",
					r.Index, r.Indexed, r.Chunks, r.Duration.Round(time.Millisecond))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Records per batch (default search.import_chunk_size)")
	return cmd
}

func newFlushCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "flush <items|races>",
		Short: "Remove every document from an index, keeping its settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			engine, closeFn, err := a.openAdmin(ctx)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, closeFn()) }()

			entity := strings.ToLower(args[0])
			if err := engine.Flush(ctx, entity); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tflushed\n", engine.IndexName(entity))
			return nil
		},
	}
}
