// Package config loads compendium settings from defaults, an optional
// compendium.yaml and COMPENDIUM_* environment variables, in increasing order
// of precedence. Command-line flags bound by the cobra commands win over all
// of them.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "COMPENDIUM"

type HTTP struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DB struct {
	Path string `mapstructure:"path"`
}

type Search struct {
	// IndexDir holds the bleve indexes. Empty keeps them in memory.
	IndexDir        string `mapstructure:"index_dir"`
	Prefix          string `mapstructure:"prefix"`
	MinQueryLength  int    `mapstructure:"min_query_length"`
	MaxQueryLength  int    `mapstructure:"max_query_length"`
	ImportChunkSize int    `mapstructure:"import_chunk_size"`
}

type API struct {
	DefaultPerPage int `mapstructure:"default_per_page"`
	MaxPerPage     int `mapstructure:"max_per_page"`
	// RateLimit is requests per second per client IP, 0 disables limiting
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type CORS struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Cache bounds the in-process result cache used when Redis is not configured
type Cache struct {
	// Size is the maximum number of cached pages
	Size int `mapstructure:"size"`
}

// Redis configures the result cache. An empty Addr selects the in-process
// cache. TTL applies to both.
type Redis struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type Config struct {
	HTTP      HTTP   `mapstructure:"http"`
	DB        DB     `mapstructure:"db"`
	Search    Search `mapstructure:"search"`
	API       API    `mapstructure:"api"`
	CORS      CORS   `mapstructure:"cors"`
	Cache     Cache  `mapstructure:"cache"`
	Redis     Redis  `mapstructure:"redis"`
	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"log_format"`
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		HTTP: HTTP{Addr: ":8080", ShutdownTimeout: 30 * time.Second},
		DB:   DB{Path: "./compendium.db"},
		Search: Search{
			IndexDir:        "./data/indexes",
			MinQueryLength:  2,
			MaxQueryLength:  255,
			ImportChunkSize: 500,
		},
		API: API{
			DefaultPerPage: 15,
			MaxPerPage:     100,
			RateLimit:      20,
			RateBurst:      40,
		},
		CORS: CORS{AllowedOrigins: []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}},
		Cache:     Cache{Size: 1000},
		Redis:     Redis{TTL: 5 * time.Minute},
		LogFormat: "terminal",
	}
}

// New returns a viper instance with defaults, environment binding and the
// config file search path set up
func New() *viper.Viper {
	v := viper.New()

	d := Default()
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)
	v.SetDefault("db.path", d.DB.Path)
	v.SetDefault("search.index_dir", d.Search.IndexDir)
	v.SetDefault("search.prefix", d.Search.Prefix)
	v.SetDefault("search.min_query_length", d.Search.MinQueryLength)
	v.SetDefault("search.max_query_length", d.Search.MaxQueryLength)
	v.SetDefault("search.import_chunk_size", d.Search.ImportChunkSize)
	v.SetDefault("api.default_per_page", d.API.DefaultPerPage)
	v.SetDefault("api.max_per_page", d.API.MaxPerPage)
	v.SetDefault("api.rate_limit", d.API.RateLimit)
	v.SetDefault("api.rate_burst", d.API.RateBurst)
	v.SetDefault("cors.allowed_origins", d.CORS.AllowedOrigins)
	v.SetDefault("cache.size", d.Cache.Size)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.ttl", d.Redis.TTL)
	v.SetDefault("debug", d.Debug)
	v.SetDefault("log_format", d.LogFormat)

	// COMPENDIUM_SEARCH_INDEX_DIR -> search.index_dir
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("compendium")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.compendium")
	return v
}

// Load reads the config file, if any, and decodes the merged settings. A
// missing file is only an error when it was set explicitly.
func Load(v *viper.Viper) (*Config, error) {
	explicit := v.ConfigFileUsed() != ""
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings for values the server cannot work with
func (c *Config) Validate() error {
	var errs []error
	if c.Search.MinQueryLength < 1 {
		errs = append(errs, fmt.Errorf("search.min_query_length must be at least 1, got %d", c.Search.MinQueryLength))
	}
	if c.Search.MaxQueryLength < c.Search.MinQueryLength {
		errs = append(errs, fmt.Errorf("search.max_query_length (%d) is below search.min_query_length (%d)",
			c.Search.MaxQueryLength, c.Search.MinQueryLength))
	}
	if c.Search.ImportChunkSize < 1 {
		errs = append(errs, fmt.Errorf("search.import_chunk_size must be positive, got %d", c.Search.ImportChunkSize))
	}
	if c.API.DefaultPerPage < 1 {
		errs = append(errs, fmt.Errorf("api.default_per_page must be positive, got %d", c.API.DefaultPerPage))
	}
	if c.API.MaxPerPage < c.API.DefaultPerPage {
		errs = append(errs, fmt.Errorf("api.max_per_page (%d) is below api.default_per_page (%d)",
			c.API.MaxPerPage, c.API.DefaultPerPage))
	}
	if c.Cache.Size < 1 {
		errs = append(errs, fmt.Errorf("cache.size must be positive, got %d", c.Cache.Size))
	}
	if c.API.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("api.rate_limit must not be negative"))
	}
	switch c.LogFormat {
	case "json", "terminal":
	default:
		errs = append(errs, fmt.Errorf("log_format must be json or terminal, got %q", c.LogFormat))
	}
	if c.DB.Path == "" {
		errs = append(errs, errors.New("db.path is required"))
	}
	return errors.Join(errs...)
}
