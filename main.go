package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/storyland-ai/storyland/internal/activities"
	"github.com/storyland-ai/storyland/internal/auth"
	"github.com/storyland-ai/storyland/internal/circuitbreaker"
	"github.com/storyland-ai/storyland/internal/config"
	"github.com/storyland-ai/storyland/internal/health"
	"github.com/storyland-ai/storyland/internal/httpapi"
	"github.com/storyland-ai/storyland/internal/llm"
	"github.com/storyland-ai/storyland/internal/session"
	"github.com/storyland-ai/storyland/internal/state"
	"github.com/storyland-ai/storyland/internal/streaming"
	temporallog "github.com/storyland-ai/storyland/internal/temporal"
	"github.com/storyland-ai/storyland/internal/tools"
	"github.com/storyland-ai/storyland/internal/tracing"
	"github.com/storyland-ai/storyland/internal/workflows"
)

func main() {
	ctx := context.Background()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfgPath := os.Getenv("STORYLAND_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	shutdownTracing, err := tracing.Initialize(cfg.Tracing.Enabled, cfg.Tracing.Endpoint, logger)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdownTracing(ctx)

	// Bring up health and metrics early so probes respond while the
	// Temporal connection is still being established.
	hm := health.NewManager(logger)
	adminMux := http.NewServeMux()
	hm.RegisterRoutes(adminMux)
	adminMux.Handle("/metrics", promhttp.Handler())
	go func() {
		addr := ":" + strconv.Itoa(cfg.Server.MetricsPort)
		logger.Info("Admin HTTP server listening", zap.String("address", addr))
		srv := &http.Server{
			Addr:         addr,
			Handler:      adminMux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Admin HTTP server failed", zap.Error(err))
		}
	}()

	// Durable preference and result store.
	db, err := sqlx.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()
	backend := state.NewSQLBackend(db, logger)
	if err := backend.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	hm.Register(health.NewDatabaseChecker(db, logger))

	// Redis backs the hot state cache and session records.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	defer rdb.Close()
	wrapper := circuitbreaker.NewRedisWrapper(rdb, logger)
	hm.Register(health.NewRedisChecker(wrapper, logger))

	store := state.NewStore(rdb, backend, logger)
	sessions := session.NewManagerWithClient(wrapper, logger)
	hub := streaming.NewHub(cfg.Streaming.ReplayCapacity)

	retryPolicy := cfg.Retry.Policy()
	llmClient := llm.NewOpenAIClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Retry:       retryPolicy,
	}, logger)
	books := tools.NewBooksClient(cfg.Tools.GoogleBooksAPIKey, retryPolicy, logger)
	search := tools.NewSearchClient(cfg.Tools.SerperAPIKey, retryPolicy, logger)
	geocode := tools.NewGeocodeClient(cfg.Tools.GeocodeUserAgent, retryPolicy, logger)

	tc := dialTemporal(cfg.Temporal.HostPort, cfg.Temporal.Namespace, logger)
	defer tc.Close()
	hm.Register(health.NewTemporalChecker(tc, logger))

	wk := worker.New(tc, cfg.Temporal.TaskQueue, worker.Options{})
	wk.RegisterWorkflow(workflows.ItineraryWorkflow)
	wk.RegisterActivity(activities.NewGatherActivities(books, search, geocode, logger))
	wk.RegisterActivity(activities.NewStructureActivities(llmClient, logger))
	wk.RegisterActivity(activities.NewRegionActivities(logger))
	wk.RegisterActivity(activities.NewStateActivities(store, logger))
	wk.RegisterActivity(activities.NewEventActivities(hub, logger))
	go func() {
		logger.Info("Temporal worker started", zap.String("queue", cfg.Temporal.TaskQueue))
		if err := wk.Run(worker.InterruptCh()); err != nil {
			logger.Error("Temporal worker exited with error", zap.Error(err))
		}
	}()

	// Public API.
	jwt := auth.NewJWTManager(cfg.Server.AuthSecret, 0)
	handler := httpapi.NewItineraryHandler(tc, sessions, hub, cfg.Temporal.TaskQueue, executionDefaults(cfg), logger)
	apiMux := http.NewServeMux()
	handler.RegisterRoutes(apiMux)
	apiServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      jwt.HTTPMiddleware(apiMux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info("API server listening", zap.String("address", apiServer.Addr))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server failed", zap.Error(err))
		}
	}()

	// Hot reload: new runs pick up changed workflow defaults; everything
	// else requires a restart.
	if cfgPath != "" {
		watcher, err := config.NewWatcher(cfgPath, cfg, logger)
		if err != nil {
			logger.Warn("Config watcher init failed", zap.Error(err))
		} else {
			watcher.OnChange(func(c *config.Config) {
				handler.UpdateDefaults(executionDefaults(c))
			})
			go watcher.Start(ctx)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown failed", zap.Error(err))
	}
	wk.Stop()
}

func executionDefaults(cfg *config.Config) workflows.ExecutionConfig {
	return workflows.ExecutionConfig{
		WorkflowTimeout: cfg.Workflow.WorkflowTimeout(),
		PhaseTimeout:    cfg.Workflow.PhaseTimeout(),
		JoinPolicy:      cfg.Workflow.JoinPolicy,
		AutoSelectAll:   cfg.Workflow.AutoSelectAll,
	}
}

// dialTemporal blocks until the frontend is reachable. The service is
// useless without it, so there is no point starting degraded.
func dialTemporal(hostPort, namespace string, logger *zap.Logger) client.Client {
	for i := 1; i <= 60; i++ {
		c, err := net.DialTimeout("tcp", hostPort, 2*time.Second)
		if err == nil {
			_ = c.Close()
			break
		}
		logger.Warn("Waiting for Temporal TCP endpoint",
			zap.String("host", hostPort), zap.Int("attempt", i))
		time.Sleep(time.Second)
	}

	for attempt := 1; ; attempt++ {
		tc, err := client.Dial(client.Options{
			HostPort:  hostPort,
			Namespace: namespace,
			Logger:    temporallog.NewZapAdapter(logger),
		})
		if err == nil {
			return tc
		}
		delay := time.Duration(attempt) * time.Second
		if delay > 15*time.Second {
			delay = 15 * time.Second
		}
		logger.Warn("Temporal not ready, retrying",
			zap.Int("attempt", attempt),
			zap.String("host", hostPort),
			zap.Duration("sleep", delay),
			zap.Error(err))
		time.Sleep(delay)
	}
}
