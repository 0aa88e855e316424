package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/kartikbazzad/bunbase/bunlog/internal/config"
	"github.com/kartikbazzad/bunbase/bunlog/internal/logger"
	"github.com/kartikbazzad/bunbase/bunlog/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		configFile string
		flags      config.Server
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP ingest and query service",
		Long: `Serves POST /v1/logs, POST /v1/query, GET /v1/logs, GET /metrics and
GET /healthz. Settings come from --config (or .env), then BUNLOG_*
environment variables such as BUNLOG_STORE_KIND, then flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServer(configFile, serveOverrides(cmd, flags))
			if err != nil {
				return err
			}

			log := logger.Get()
			if !cmd.Flags().Changed("log-level") && !cmd.Flags().Changed("log-format") {
				log = logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
			}
			gin.SetMode(gin.ReleaseMode)

			srv, err := server.Open(cfg, log)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&configFile, "config", "c", "", "Config file (YAML, JSON, TOML or .env)")
	fl.StringVar(&flags.HTTP.Addr, "addr", "", "Listen address")
	fl.Float64Var(&flags.HTTP.Rate, "rate", 0, "Ingest limit per client in entries per second, 0 for none")
	fl.IntVar(&flags.HTTP.Burst, "burst", 0, "Ingest burst per client")
	fl.StringVar(&flags.Store.Kind, "store", "", "Store kind: memory, file or sqlite")
	fl.StringVar(&flags.Store.Path, "path", "", "Store path for file and sqlite stores")
	fl.IntVar(&flags.Batch.Size, "batch-size", 0, "Entries per store write")
	fl.DurationVar(&flags.Batch.Interval, "batch-interval", 0, "Longest time an entry waits before it is written")
	fl.IntVar(&flags.Cache.Size, "cache-size", 0, "Decoded query cache entries, 0 to disable")
	return cmd
}

// serveOverrides copies the flags that were set onto the loaded config.
func serveOverrides(cmd *cobra.Command, flags config.Server) func(*config.Server) {
	return func(cfg *config.Server) {
		changed := cmd.Flags().Changed
		if changed("addr") {
			cfg.HTTP.Addr = flags.HTTP.Addr
		}
		if changed("rate") {
			cfg.HTTP.Rate = flags.HTTP.Rate
		}
		if changed("burst") {
			cfg.HTTP.Burst = flags.HTTP.Burst
		}
		if changed("store") {
			cfg.Store.Kind = flags.Store.Kind
		}
		if changed("path") {
			cfg.Store.Path = flags.Store.Path
		}
		if changed("batch-size") {
			cfg.Batch.Size = flags.Batch.Size
		}
		if changed("batch-interval") {
			cfg.Batch.Interval = flags.Batch.Interval
		}
		if changed("cache-size") {
			cfg.Cache.Size = flags.Cache.Size
		}
	}
}
