package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/autobrr/go-fragindex/internal/cache"
	"github.com/autobrr/go-fragindex/internal/cli"
	"github.com/autobrr/go-fragindex/internal/config"
	"github.com/autobrr/go-fragindex/internal/fragindex"
	"github.com/autobrr/go-fragindex/internal/observability"
	"github.com/autobrr/go-fragindex/internal/server"
	"github.com/autobrr/go-fragindex/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve fragment indexes over HTTP",
	Long: `Start the fragindex HTTP API.

The server provides:
- GET /v1/index, /v1/seek and /v1/sidx for files under the media root
- DELETE /v1/index to drop a cached index
- a health check endpoint
- OpenAPI documentation at /docs`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Config file path")
	serveCmd.Flags().String("host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().Int("port", 8089, "Port to listen on")
	serveCmd.Flags().String("media-root", ".", "Directory requests are confined to")
	serveCmd.Flags().Bool("store", false, "Persist indexes in SQLite")
	serveCmd.Flags().String("dsn", "fragindex.db", "SQLite database path for the index store")
	serveCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	serveCmd.Flags().String("log-format", "console", "Log format (console, json, text)")
}

// mustBindPFlag binds a viper key to a cobra flag and panics if binding fails.
func mustBindPFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q to key %q: %v", flag.Name, key, err))
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viper.New()
	flags := cmd.Flags()
	mustBindPFlag(v, "server.host", flags.Lookup("host"))
	mustBindPFlag(v, "server.port", flags.Lookup("port"))
	mustBindPFlag(v, "server.media_root", flags.Lookup("media-root"))
	mustBindPFlag(v, "store.enabled", flags.Lookup("store"))
	mustBindPFlag(v, "store.dsn", flags.Lookup("dsn"))
	mustBindPFlag(v, "logging.level", flags.Lookup("log-level"))
	mustBindPFlag(v, "logging.format", flags.Lookup("log-format"))

	configPath, _ := flags.GetString("config")
	cfg, err := config.LoadWithViper(v, configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging)
	builder := fragindex.NewBuilder(fragindex.OptionsFromConfig(cfg.Scan), logger)

	var persister cache.Persister
	if cfg.Store.Enabled {
		st, err := store.Open(cfg.Store.DSN)
		if err != nil {
			return err
		}
		defer func() {
			if err := st.Close(); err != nil {
				observability.WithError(logger, err).Warn("closing index store")
			}
		}()
		persister = st
		logger.Info("index store enabled", slog.String("dsn", cfg.Store.DSN))
	}

	indexCache, err := cache.New(builder, cfg.Cache.Size, persister, logger)
	if err != nil {
		return err
	}

	srv := server.NewServer(cfg.Server, logger, cli.AppVersion())
	if err := srv.Mount(indexCache); err != nil {
		return fmt.Errorf("mounting routes: %w", err)
	}
	logger.Info("serving fragment indexes",
		slog.String("media_root", cfg.Server.MediaRoot),
		slog.Int("cache_size", cfg.Cache.Size),
	)
	return srv.ListenAndServe(cmd.Context())
}
