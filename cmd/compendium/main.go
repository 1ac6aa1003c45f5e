package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"goa.design/clue/log"

	"github.com/meur/compendium/internal/cache"
	"github.com/meur/compendium/internal/config"
	"github.com/meur/compendium/internal/search"
	"github.com/meur/compendium/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app carries the settings shared by every command
type app struct {
	v   *viper.Viper
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "compendium",
		Short: "Items and races API with full-text search",
		Long: `Compendium serves the items and races of the rules compendium over HTTP.
List endpoints search a bleve index when a q or filter parameter is given
and read the SQLite store directly otherwise.

Examples:
  # Load the bundled records, build the indexes and serve
  compendium seed
  compendium configure-indexes
  compendium import all
  compendium serve --addr :8080`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "Config file (default ./compendium.yaml or $HOME/.compendium/compendium.yaml)")
	flags.String("db", "", "SQLite database path")
	flags.String("index-dir", "", "Directory holding the search indexes")
	flags.Bool("debug", false, "Enable debug logs")
	flags.String("log-format", "", "Log format: terminal|json")
	a.bind("db.path", flags.Lookup("db"))
	a.bind("search.index_dir", flags.Lookup("index-dir"))
	a.bind("debug", flags.Lookup("debug"))
	a.bind("log_format", flags.Lookup("log-format"))

	root.AddCommand(
		newServeCmd(a),
		newConfigureIndexesCmd(a),
		newImportCmd(a),
		newFlushCmd(a),
		newSeedCmd(a),
	)
	return root
}

func (a *app) bind(key string, flag *pflag.Flag) {
	if err := a.v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

// load reads the configuration and sets up the logger of the command context
func (a *app) load(cmd *cobra.Command, _ []string) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		a.v.SetConfigFile(path)
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	format := log.FormatTerminal
	if cfg.LogFormat == "json" {
		format = log.FormatJSON
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = log.Context(ctx, log.WithFormat(format), log.WithOutput(cmd.ErrOrStderr()))
	if cfg.Debug {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}
	cmd.SetContext(ctx)
	return nil
}

func (a *app) openStore() (*storage.Store, error) {
	store, err := storage.New(a.cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", a.cfg.DB.Path, err)
	}
	return store, nil
}

// openCache connects to Redis when an address is configured and falls back to
// an in-process cache otherwise. The returned function closes the connection.
func (a *app) openCache(ctx context.Context) (cache.Cache, func() error, error) {
	if a.cfg.Redis.Addr == "" {
		log.Print(ctx, log.KV{K: "msg", V: "using in-process search cache"})
		return cache.NewMemory(a.cfg.Cache.Size, a.cfg.Redis.TTL), func() error { return nil }, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("connect to redis %s: %w", a.cfg.Redis.Addr, err)
	}
	log.Print(ctx, log.KV{K: "msg", V: "using redis search cache"}, log.KV{K: "addr", V: a.cfg.Redis.Addr})
	return cache.NewRedis(rdb, "compendium:", a.cfg.Redis.TTL), rdb.Close, nil
}

// openIndexes locks the index directory and opens the existing indexes. The
// returned function closes them and releases the lock.
func (a *app) openIndexes(ctx context.Context, inv search.Invalidator) (*search.Engine, func() error, error) {
	unlock, err := search.Lock(a.cfg.Search.IndexDir)
	if err != nil {
		if errors.Is(err, search.ErrLocked) {
			return nil, nil, fmt.Errorf("%w (is the server running? use the admin endpoints instead)", err)
		}
		return nil, nil, err
	}

	engine := search.NewEngine(search.Options{
		Dir:         a.cfg.Search.IndexDir,
		Prefix:      a.cfg.Search.Prefix,
		Invalidator: inv,
	})
	if err := engine.Open(ctx); err != nil {
		engine.Close()
		unlock()
		return nil, nil, err
	}

	closeFn := func() error {
		return errors.Join(engine.Close(), unlock())
	}
	return engine, closeFn, nil
}
