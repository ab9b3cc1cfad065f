package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"peerscan/internal/config"
	"peerscan/internal/core/bootstrap"
	"peerscan/internal/discovery"
	"peerscan/internal/handler"
	"peerscan/internal/logging"
	"peerscan/internal/repository"
	"peerscan/internal/repository/sqlite"
	"peerscan/internal/scheduler"
	"peerscan/internal/watcher"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "", "Config file path (default: search $PEERSCAN_CONFIG, ./peerscan.yaml, XDG, /etc)")
	writeConfig := flag.String("write-config", "", "Write the effective config to this path and exit")
	watch := flag.Bool("watch", true, "Reload the config file when it changes")
	flag.Parse()

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "peerscan: %v\n", err)
		os.Exit(1)
	}

	if *writeConfig != "" {
		if err := cfg.Save(*writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "peerscan: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config written to %s\n", *writeConfig)
		return
	}

	log := logging.New(cfg.Log, cfg.Service.Name)
	if err := run(cfg, path, *watch, log); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func run(cfg *config.Config, path string, watch bool, log zerolog.Logger) error {
	log.Info().Msg("Starting peerscan server...")
	if path != "" {
		log.Info().Msgf("Config loaded from %s", path)
	} else {
		log.Info().Msg("No config file found, using defaults")
	}
	log.Info().Msg(cfg.Summary())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	local, err := bootstrap.ResolveLocalIdentity(ctx, cfg.Service.Name, log)
	if err != nil {
		return fmt.Errorf("resolve local identity: %w", err)
	}

	live := config.NewLive(cfg, path)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := discovery.NewMetrics(reg)

	// Scan-run history
	var runs repository.RunRepository = repository.Nop{}
	opts := []discovery.Option{
		discovery.WithLogger(log),
		discovery.WithMetrics(metrics),
	}
	if cfg.Database.Path != "" {
		repo, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open run history: %w", err)
		}
		defer repo.Close()
		repo.WithLogger(log).WithRetention(cfg.Database.Keep)
		log.Info().Msgf("Database opened: %s", cfg.Database.Path)

		runs = repo
		opts = append(opts, discovery.WithRunObserver(repo))
	}

	// Stage-one backend
	if cfg.Prober == config.ProberNmap {
		if discovery.NmapAvailable(ctx) {
			opts = append(opts, discovery.WithProber(discovery.NmapProber(log)))
			log.Info().Msg("Using nmap for reachability probes")
		} else {
			log.Warn().Msg("nmap not found in PATH, falling back to TCP connect probes")
		}
	}

	disc, err := discovery.New(local, opts...)
	if err != nil {
		return err
	}

	// Periodic rescan
	if interval := cfg.Rescan.Interval.Duration(); interval > 0 {
		rescanner := scheduler.NewRescanner(disc, live, interval, log)
		rescanner.Start(ctx)
		defer rescanner.Stop()
		log.Info().Msgf("Rescanning every %s", interval)
	}

	// Config hot reload
	if watch && path != "" {
		w := watcher.New(path, func() {
			next, err := live.Reload()
			if err != nil {
				log.Warn().Err(err).Msg("Config reload rejected, keeping previous config")
				return
			}
			log.Info().Msgf("Config reloaded: %d candidates", next.Discovery.Candidates())
		}).WithLogger(log)

		go func() {
			if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Msg("Config watcher stopped")
			}
		}()
	}

	// HTTP server
	h := handler.New(disc, live, runs, log)
	router := handler.NewRouter(h, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:  cfg.Server.IdleTimeout.Duration(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("Server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Server stopped")
	return nil
}
