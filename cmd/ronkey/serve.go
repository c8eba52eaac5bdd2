package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/codefionn/ronkey/internal/config"
	"github.com/codefionn/ronkey/internal/logger"
	"github.com/codefionn/ronkey/internal/pprof"
	"github.com/codefionn/ronkey/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	serveAddr  string
	serveWatch bool
	profiling  pprof.Config
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the evaluation server",
	Long:  "Start the HTTP server. GET /eval upgrades to a WebSocket REPL session.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config, e.g. 127.0.0.1:8000)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "Reload the log level when the config file changes")
	serveCmd.Flags().StringVar(&profiling.HTTPAddr, "pprof-addr", "", "Serve runtime profiles on this address")
	serveCmd.Flags().StringVar(&profiling.CPUProfile, "cpu-profile", "", "Write a CPU profile to this file until shutdown")
}

func runServe(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = config.GetConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Global().Close()

	if profiling.Enabled() {
		profiler := pprof.NewHandler(profiling, nil)
		if err := profiler.Start(); err != nil {
			return err
		}
		defer func() {
			if err := profiler.Stop(); err != nil {
				logger.Warn("%v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	srv := server.NewServer(cfg)
	g.Go(func() error {
		return srv.Run(ctx)
	})

	if serveWatch {
		if _, err := os.Stat(filepath.Dir(path)); err == nil {
			g.Go(func() error {
				err := config.Watch(ctx, path, func(next *config.Config) {
					// Only the log level is reloadable; everything else
					// needs a restart.
					if logLevel == "" {
						level := logger.ParseLevel(next.LogLevel)
						logger.Global().SetLevel(level)
						logger.Info("Log level set to %s", level)
					}
				})
				if err != nil {
					logger.Warn("Config watcher stopped: %v", err)
				}
				return nil
			})
		} else {
			logger.Debug("Not watching %s: %v", path, err)
		}
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
