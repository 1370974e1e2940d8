package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gilby125/tripfinder/api"
	"github.com/gilby125/tripfinder/config"
	"github.com/gilby125/tripfinder/db"
	"github.com/gilby125/tripfinder/fares"
	"github.com/gilby125/tripfinder/graph"
	"github.com/gilby125/tripfinder/pkg/buildinfo"
	"github.com/gilby125/tripfinder/pkg/cache"
	"github.com/gilby125/tripfinder/pkg/health"
	"github.com/gilby125/tripfinder/pkg/logger"
	"github.com/gilby125/tripfinder/pkg/notify"
	"github.com/gilby125/tripfinder/pkg/worker_registry"
	"github.com/gilby125/tripfinder/queue"
	"github.com/gilby125/tripfinder/trips"
	"github.com/gilby125/tripfinder/worker"
	"github.com/gin-gonic/gin"
	"golang.org/x/text/currency"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal(err, "Failed to load configuration")
	}
	logger.Init(logger.Config{Level: cfg.LoggingConfig.Level, Format: cfg.LoggingConfig.Format})
	if err := cfg.Validate(); err != nil {
		logger.Fatal(err, "Invalid configuration")
	}
	logger.Info("Starting tripfinder", "build", buildinfo.String(), "environment", cfg.Environment)

	ctx := context.Background()
	checker := health.NewHealthChecker(buildinfo.Version, 5*time.Second)

	// Route graph
	var store graph.Store
	switch cfg.GraphConfig.Backend {
	case "memory":
		logger.Warn("Using the in-memory route graph, contents are lost on restart")
		store = graph.NewMemoryStore()
	default:
		neo4jDB, err := db.NewNeo4jDB(ctx, cfg.Neo4jConfig)
		if err != nil {
			logger.Fatal(err, "Failed to connect to Neo4j")
		}
		defer neo4jDB.Close(context.Background())
		if cfg.InitSchema {
			if err := neo4jDB.InitSchema(ctx); err != nil {
				logger.Fatal(err, "Failed to initialize Neo4j schema")
			}
		}
		checker.AddChecker(&health.PingChecker{Name: "neo4j", Target: neo4jDB, Critical: true})
		store = neo4jDB
	}
	checker.AddChecker(&health.GraphChecker{Graph: store, Name: "route_graph"})

	// Search history
	var history *db.PostgresDB
	if cfg.PostgresConfig.Enabled {
		history, err = db.NewPostgresDB(ctx, cfg.PostgresConfig)
		if err != nil {
			logger.Fatal(err, "Failed to connect to PostgreSQL")
		}
		defer history.Close()
		if cfg.InitSchema {
			if err := history.Migrate(ctx); err != nil {
				logger.Fatal(err, "Failed to migrate PostgreSQL schema")
			}
		}
		checker.AddChecker(&health.PingChecker{Name: "postgres", Target: history})
	}

	// Redis: queue, cache, leader lock, worker registry
	redisQueue, err := queue.NewRedisQueue(cfg.RedisConfig)
	if err != nil {
		logger.Fatal(err, "Failed to connect to Redis")
	}
	defer redisQueue.Close()
	redisClient := redisQueue.GetClient()
	cacheManager := cache.NewCacheManager(cache.NewRedisCache(redisClient, "tripfinder"))
	registry := worker_registry.New(redisClient, cfg.RedisConfig.QueueStreamPrefix)
	checker.AddChecker(&health.PingChecker{
		Name:     "redis",
		Target:   health.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
		Critical: true,
	})
	checker.AddChecker(&health.QueueChecker{Queue: redisQueue, Queues: worker.Queues, Name: "queue"})

	// Fare source
	unit, err := currency.ParseISO(strings.ToUpper(cfg.FareConfig.Currency))
	if err != nil {
		logger.Fatal(err, "Invalid fare currency", "currency", cfg.FareConfig.Currency)
	}
	fareClient := fares.NewClient(fares.Options{
		BaseURL:           cfg.FareConfig.BaseURL,
		Currency:          unit,
		RequestsPerSecond: cfg.FareConfig.RequestsPerSecond,
		Burst:             cfg.FareConfig.Burst,
		Timeout:           cfg.FareConfig.Timeout,
		MaxRetries:        cfg.FareConfig.MaxRetries,
		BrowserCookies:    cfg.FareConfig.BrowserCookies,
		Rates:             fares.NewFrankfurterRates(cfg.FareConfig.RatesURL, cacheManager, cfg.FareConfig.RatesTTL),
	})
	if err := fareClient.PrimeSession(ctx); err != nil {
		logger.Warn("Fare session priming failed, continuing without cookies", "error", err)
	}

	assembler := trips.NewAssembler(fareClient, nil, trips.AssemblerOptions{
		Concurrency:      cfg.SearchConfig.Concurrency,
		FailurePolicy:    cfg.SearchConfig.FailurePolicy,
		CandidateTimeout: cfg.SearchConfig.CandidateTimeout,
	})
	serviceOpts := trips.ServiceOptions{Timeout: cfg.SearchConfig.Timeout, Cache: cacheManager}
	if history != nil {
		serviceOpts.History = history
	}
	service := trips.NewService(store, assembler, serviceOpts)

	// Graph maintenance workers
	var workerManager *worker.Manager
	if cfg.WorkerEnabled {
		refresher := worker.NewRefresher(store, fareClient, worker.RefresherOptions{
			DefaultBases: cfg.RefreshConfig.BaseAirports,
			Cache:        cacheManager,
			Notifier: notify.NewNTFYClient(notify.NTFYConfig{
				ServerURL: cfg.NTFYConfig.ServerURL,
				Topic:     cfg.NTFYConfig.Topic,
				Username:  cfg.NTFYConfig.Username,
				Password:  cfg.NTFYConfig.Password,
				Enabled:   cfg.NTFYConfig.Enabled,
			}),
		})
		var scheduler *worker.Scheduler
		if cfg.RefreshConfig.Enabled {
			scheduler = worker.NewScheduler(redisQueue, cfg.RefreshConfig.Cron, nil)
		}
		workerManager = worker.NewManager(redisQueue, refresher, cfg.WorkerConfig, scheduler, nil)
		if scheduler != nil {
			workerManager.WithLeader(worker.NewLeaderElector(
				redisClient,
				cfg.WorkerConfig.SchedulerLockKey,
				cfg.WorkerConfig.SchedulerLockTTL,
				cfg.WorkerConfig.SchedulerLockRenew,
				workerManager.OnBecomeLeader,
				workerManager.OnLoseLeader,
			))
		}
		workerManager.WithRegistry(registry, "", buildinfo.Version)
		workerManager.Start()
		defer workerManager.Stop()
	}

	if !cfg.APIEnabled {
		logger.Info("API disabled, running workers only")
		waitForSignal()
		return
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	deps := api.Deps{
		Trips:   service,
		Queue:   redisQueue,
		Workers: registry,
		Health:  checker,
		Cache:   cacheManager,
		Config:  cfg,
	}
	if history != nil {
		deps.History = history
	}
	api.RegisterRoutes(router, deps)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.HTTPBindAddr, cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err, "Failed to start server")
		}
	}()

	waitForSignal()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "Server forced to shutdown")
	}
	logger.Info("Server exited")
}

func waitForSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}
