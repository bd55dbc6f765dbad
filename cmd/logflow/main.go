package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gosight/logflow/internal/analytics"
	"github.com/gosight/logflow/internal/config"
	"github.com/gosight/logflow/internal/dashboard"
	"github.com/gosight/logflow/internal/enricher"
	"github.com/gosight/logflow/internal/event"
	"github.com/gosight/logflow/internal/export"
	"github.com/gosight/logflow/internal/insights"
	"github.com/gosight/logflow/internal/metrics"
	"github.com/gosight/logflow/internal/report"
	"github.com/gosight/logflow/internal/server"
	"github.com/gosight/logflow/internal/storage"
	"github.com/gosight/logflow/internal/tracker"
)

var version = "dev"

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := rootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:           "logflow",
		Short:         "User interaction tracker with live analytics",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML, default $CONFIG_PATH or config/logflow.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	load := func() (*config.Config, error) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return nil, err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		setLogLevel(cfg.Log.Level)
		return cfg, nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the tracking and analytics HTTP API",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				return serve(cmd.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Print the dashboard summary of the persisted data as JSON",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				snap, err := loadSnapshot(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(analytics.Summarize(snap, time.Now(), cfg.Dashboard.Location()))
			},
		},
		&cobra.Command{
			Use:   "insights",
			Short: "Detect friction patterns in the persisted events and print them as JSON",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				snap, err := loadSnapshot(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				found := insights.NewDetector(cfg.Insights).Detect(snap.Events, time.Now().UnixMilli())
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"insights": found, "counts": insights.Count(found)})
			},
		},
		reportCmd(load),
		&cobra.Command{
			Use:   "clear",
			Short: "Erase all persisted events and sessions",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				store, err := openStore(cfg)
				if err != nil {
					return err
				}
				defer store.Close()
				if err := store.Clear(cmd.Context()); err != nil {
					return err
				}
				log.Info().Str("driver", cfg.Storage.Driver).Msg("Persisted data cleared")
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "logflow %s\n", version)
			},
		},
	)
	return cmd
}

func reportCmd(load func() (*config.Config, error)) *cobra.Command {
	var timeRange string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a report over the persisted data and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if timeRange == "" {
				timeRange = cfg.Report.TimeRange
			}
			snap, err := loadSnapshot(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			gen, err := report.New(cfg.Report)
			if err != nil {
				return err
			}
			res, err := report.Generate(cmd.Context(), gen, report.NewRequest(snap, timeRange), cfg.Report.Timeout)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(res.Body, '\n'))
			return err
		},
	}
	cmd.Flags().StringVar(&timeRange, "time-range", "", "Label of the analysed period")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	explicit := path != ""
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		explicit = path != ""
	}
	if path == "" {
		path = "config/logflow.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			log.Warn().Str("path", path).Msg("Config file not found, using defaults")
			return config.Default(), nil
		}
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func openStore(cfg *config.Config) (*storage.Store, error) {
	backend, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return storage.NewStore(backend), nil
}

func loadSnapshot(ctx context.Context, cfg *config.Config) (event.Snapshot, error) {
	store, err := openStore(cfg)
	if err != nil {
		return event.Snapshot{}, err
	}
	defer store.Close()

	events, sessions, err := store.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Some persisted data could not be read")
	}
	return event.Snapshot{Events: events, Sessions: sessions}, nil
}

func buildSinks(cfg config.ExportConfig) (export.Multi, error) {
	var sinks export.Multi
	if len(cfg.Kafka.Brokers) > 0 {
		sinks = append(sinks, export.NewKafkaSink(cfg.Kafka))
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka export enabled")
	}
	if cfg.NATS.URL != "" {
		sink, err := export.NewNATSSink(cfg.NATS)
		if err != nil {
			sinks.Close()
			return nil, err
		}
		sinks = append(sinks, sink)
		log.Info().Str("url", cfg.NATS.URL).Str("subject_prefix", cfg.NATS.SubjectPrefix).Msg("NATS export enabled")
	}
	return sinks, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	log.Info().Str("version", version).Msg("Starting LogFlow...")

	// Initialize dependencies
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info().Str("driver", cfg.Storage.Driver).Msg("Storage initialized")

	m := metrics.New()
	tr := tracker.New(ctx, tracker.NewPage(cfg.Tracker.InitialPath), store,
		tracker.WithPolicy(tracker.ParsePolicy(cfg.Tracker.SessionPolicy)),
		tracker.WithMetrics(m),
	)

	watcher := dashboard.NewWatcher(tr, cfg.Dashboard, m)

	gen, err := report.New(cfg.Report)
	if err != nil {
		return err
	}
	log.Info().Str("kind", cfg.Report.Kind).Msg("Report generator initialized")

	eventEnricher := enricher.NewEnricher(cfg.GeoIP.DatabasePath)
	defer eventEnricher.Close()
	log.Info().Msg("Enricher initialized")

	limiter, err := server.NewLimiter(cfg.Server.RateLimit, cfg.Storage.Redis)
	if err != nil {
		return err
	}

	sinks, err := buildSinks(cfg.Export)
	if err != nil {
		return err
	}
	defer sinks.Close()

	srv := server.New(server.Options{
		Tracker:       tr,
		Dashboard:     watcher,
		Generator:     gen,
		Enricher:      eventEnricher,
		Insights:      insights.NewDetector(cfg.Insights),
		Metrics:       m,
		Limiter:       limiter,
		ReportTimeout: cfg.Report.Timeout,
		TimeRange:     cfg.Report.TimeRange,
		Location:      cfg.Dashboard.Location(),
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		watcher.Run(gctx)
		return nil
	})

	if len(sinks) > 0 {
		fwd := export.NewForwarder(tr, sinks, m)
		g.Go(func() error {
			fwd.Run(gctx)
			return nil
		})
	}

	if cfg.Report.Schedule != "" {
		scheduler, err := report.NewScheduler(cfg.Report, gen, tr)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	g.Go(func() error {
		log.Info().Int("port", cfg.Server.HTTPPort).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve HTTP: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		tr.Close(shutdownCtx)
		return err
	})

	err = g.Wait()
	log.Info().Msg("LogFlow stopped")
	return err
}
