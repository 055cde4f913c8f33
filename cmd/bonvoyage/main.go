package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"googlemaps.github.io/maps"

	"bonvoyage/internal/archive"
	"bonvoyage/internal/broker"
	"bonvoyage/internal/config"
	"bonvoyage/internal/dispatch"
	"bonvoyage/internal/handler"
	"bonvoyage/internal/hub"
	"bonvoyage/internal/metrics"
	"bonvoyage/internal/middleware"
	"bonvoyage/internal/provider"
	"bonvoyage/internal/queue"
	"bonvoyage/internal/refdata"
	"bonvoyage/internal/resolver"
	"bonvoyage/internal/store"
	"bonvoyage/internal/worker"
	"bonvoyage/pkg/fetch"
	"bonvoyage/pkg/ors"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting bonvoyage",
		"log_level", cfg.LogLevel.String(),
		"role", cfg.Role,
		"providers", cfg.Providers,
		"redis_enabled", cfg.RedisEnabled,
		"nats", cfg.NATSURL != "",
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("bonvoyage stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := metrics.NewCollector()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}
	data, err := refdata.Load(ctx, fetch.New(logger), refdata.Sources{
		Emissions: cfg.EmissionsSource,
		Regions:   cfg.RegionsSource,
		Ferries:   cfg.FerriesSource,
	}, loc, logger)
	if err != nil {
		return fmt.Errorf("load reference data: %w", err)
	}

	st, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	q, err := openQueue(ctx, cfg, collector, logger)
	if err != nil {
		return err
	}
	defer q.Close()

	road := resolver.NewRoad(ors.New(cfg.ORSBaseURL, cfg.ORSAPIKey), data.Emissions, ors.Costs{
		FuelPricePerLitre: cfg.FuelPricePerLitre,
		LitresPerKm:       cfg.FuelLitresPerKm,
		TollPerKm:         cfg.TollPerKm,
	})

	var sources []resolver.Source
	if cfg.GoogleMapsAPIKey != "" {
		mapsClient, err := maps.NewClient(maps.WithAPIKey(cfg.GoogleMapsAPIKey))
		if err != nil {
			return fmt.Errorf("maps client: %w", err)
		}
		sources = append(sources, resolver.NewTransit(mapsClient, data.Regions, data.Emissions, logger))
	} else {
		logger.Warn("GOOGLE_MAPS_API_KEY not set, urban gaps use road routing only")
	}
	sources = append(sources, road)
	gaps := resolver.New(logger, sources...)

	registry, err := provider.NewRegistry(
		provider.NewCar(road.AvoidFerries()),
		provider.NewFerry(data, cfg.FerryPortRadiusKm),
	).Select(cfg.Providers)
	if err != nil {
		return fmt.Errorf("providers: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.RunsWorkers() {
		var arch broker.Archive
		if cfg.DatabaseURL != "" {
			pg, err := archive.Open(ctx, cfg.DatabaseURL, logger)
			if err != nil {
				return err
			}
			defer pg.Close()
			arch = pg
		}

		publisher := broker.NewPublisher(st, arch, q, collector, logger)
		stitcher := broker.NewStitcher(st, gaps, publisher, cfg.GapConcurrency, collector, logger)

		providerWorker := worker.NewProviderWorker(registry, st, q, cfg.ProviderTimeout, collector, logger)
		if err := providerWorker.Start(gctx, q); err != nil {
			return err
		}
		joinWorker := worker.NewJoinWorker(st, stitcher, cfg.JoinPollInterval, cfg.AggregateTimeout, collector, logger)
		if err := joinWorker.Start(gctx, q); err != nil {
			return err
		}
	}

	var srv *http.Server
	if cfg.ServesAPI() {
		wsHub := hub.NewHub(collector, logger)
		unsubscribe, err := wsHub.Attach(q)
		if err != nil {
			return fmt.Errorf("subscribe to events: %w", err)
		}
		defer unsubscribe()

		limiter := middleware.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst, cfg.RateLimitWhitelist, logger)
		results := broker.NewResults(st, cfg.ResultTimeout)
		dispatcher := dispatch.New(st, q, dispatch.Options{
			Providers:   registry.Names(),
			JoinTimeout: cfg.JoinTimeout,
			Metrics:     collector,
		}, logger)

		srv = &http.Server{
			Addr: cfg.HTTPAddr,
			Handler: handler.NewMux(handler.Routes{
				HTTP:    handler.NewHTTPHandler(dispatcher, results, logger),
				WS:      handler.NewWSHandler(wsHub, results, logger),
				Health:  handler.NewHealthHandler(st),
				Metrics: collector.Handler(),
				Limit:   limiter.Middleware,
			}, logger),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}

		g.Go(func() error {
			wsHub.Run(gctx)
			return nil
		})
		g.Go(func() error {
			limiter.Run(gctx)
			return nil
		})
		g.Go(func() error {
			logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case <-sigChan:
			logger.Info("shutdown signal received")
		case <-gctx.Done():
		}
		cancel()

		if srv == nil {
			return nil
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func openStore(cfg *config.Config, logger *slog.Logger) (store.Store, func(), error) {
	if !cfg.RedisEnabled {
		logger.Info("using in-memory result store")
		return store.NewMemoryStore(), func() {}, nil
	}
	rs, err := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ResultTTL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return rs, func() {
		if err := rs.Close(); err != nil {
			logger.Warn("redis close failed", "error", err)
		}
	}, nil
}

func openQueue(ctx context.Context, cfg *config.Config, m queue.Metrics, logger *slog.Logger) (queue.Queue, error) {
	if cfg.NATSURL == "" {
		logger.Info("using in-process task queue")
		return queue.NewLocal(cfg.NATSMaxDeliver, time.Second, m, logger), nil
	}
	host, _ := os.Hostname()
	nq, err := queue.NewNATS(ctx, queue.NATSConfig{
		URL:         cfg.NATSURL,
		ClientName:  "bonvoyage-" + cfg.Role + "-" + host,
		StreamName:  cfg.NATSStreamName,
		MaxDeliver:  cfg.NATSMaxDeliver,
		AckWait:     cfg.NATSAckWait,
		MaxAge:      cfg.ResultTTL,
		Concurrency: 16,
	}, m, logger)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nq, nil
}
