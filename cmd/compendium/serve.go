package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"goa.design/clue/log"

	"github.com/meur/compendium/internal/api"
	"github.com/meur/compendium/internal/jobs"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API. The server holds the index directory lock while it runs,
so index administration goes through the /api/v1/admin endpoints.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default :8080)")
	a.bind("http.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func (a *app) serve(ctx context.Context) (err error) {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	c, closeCache, err := a.openCache(ctx)
	if err != nil {
		return err
	}
	defer closeCache()

	engine, closeIndexes, err := a.openIndexes(ctx, c)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, closeIndexes()) }()

	// Admin jobs outlive the request that queued them but not the server
	jobsCtx, stopJobs := context.WithCancel(context.WithoutCancel(ctx))
	registry := jobs.NewRegistry(jobsCtx, jobs.DefaultHistory)
	defer func() {
		stopJobs()
		<-registry.Done()
	}()

	handler := api.New(store, engine,
		api.WithConfig(*a.cfg),
		api.WithCache(c),
		api.WithJobs(registry),
	)

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           log.HTTP(ctx)(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Print(ctx, log.KV{K: "msg", V: "compendium API listening"}, log.KV{K: "addr", V: a.cfg.HTTP.Addr},
			log.KV{K: "db", V: a.cfg.DB.Path}, log.KV{K: "index_dir", V: a.cfg.Search.IndexDir})
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Print(ctx, log.KV{K: "msg", V: "shutting down"}, log.KV{K: "timeout", V: a.cfg.HTTP.ShutdownTimeout.String()})
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Print(ctx, log.KV{K: "msg", V: "exited"})
	return nil
}
