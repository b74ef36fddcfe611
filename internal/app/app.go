package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ShodmonX/trading-signals-bot/api"
	"github.com/ShodmonX/trading-signals-bot/internal/config"
	"github.com/ShodmonX/trading-signals-bot/internal/engine"
	"github.com/ShodmonX/trading-signals-bot/internal/infrastructure"
	"github.com/ShodmonX/trading-signals-bot/internal/marketdata"
	"github.com/ShodmonX/trading-signals-bot/internal/model"
	"github.com/ShodmonX/trading-signals-bot/internal/push"
	"github.com/ShodmonX/trading-signals-bot/internal/storage"
	"github.com/ShodmonX/trading-signals-bot/internal/strategy"
)

const jobQueueSize = 16

// App defines the application structure and its dependencies
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	DB         *pgxpool.Pool
	NC         *nats.Conn
	JS         nats.JetStreamContext
	Repo       *storage.Repository
	Source     engine.CandleSource
	Pool       *engine.WorkerPool
	Gateway    *push.Gateway
	HTTPServer *http.Server
}

// NewApp creates a new application instance
func NewApp() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	infrastructure.Init()
	logger := infrastructure.Logger

	return &App{
		Config: &cfg,
		Logger: logger,
	}, nil
}

// Init initializes all application components
func (a *App) Init(ctx context.Context) error {
	// 1. Database
	dbPool, err := pgxpool.Connect(ctx, a.Config.DB_DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DB = dbPool
	a.Repo = storage.NewRepository(dbPool, a.Logger)

	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	// 2. NATS
	nc, js, err := infrastructure.InitNATS(a.Config.NatsURL, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	a.NC = nc
	a.JS = js

	// 3. Services
	client := marketdata.NewBinanceClient(a.Config.BinanceBaseURL, a.Logger)
	cache := marketdata.NewMonthCache(a.Config.CacheDir)
	a.Source = marketdata.NewCachedSource(client, cache, a.Logger)

	a.Pool = engine.NewWorkerPool(a.Config.Workers, jobQueueSize, a.Logger)
	a.Gateway = push.NewGateway(js, a.Logger)

	return nil
}

// Run starts the worker pool and the HTTP server
func (a *App) Run(ctx context.Context) error {
	a.Pool.Start(ctx)

	a.HTTPServer = &http.Server{
		Addr:    ":" + a.Config.Port,
		Handler: a.setupRouter(),
	}

	go func() {
		a.Logger.Info("starting http server", zap.String("port", a.Config.Port))
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	return a.waitForShutdown()
}

// waitForShutdown handles graceful shutdown signals
func (a *App) waitForShutdown() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	a.Logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.NC.Close()
	a.DB.Close()

	return nil
}

// initDatabase runs the database initialization script
func (a *App) initDatabase(ctx context.Context) error {
	sqlFile := "scripts/init.sql"
	content, err := os.ReadFile(sqlFile)
	if err != nil {
		return fmt.Errorf("failed to read init script: %w", err)
	}

	_, err = a.DB.Exec(ctx, string(content))
	if err != nil {
		return fmt.Errorf("failed to execute init script: %w", err)
	}

	a.Logger.Info("database initialized successfully")
	return nil
}

// startBacktest builds a run from the request parameters and enqueues it.
func (a *App) startBacktest(params model.BacktestParams) (string, bool) {
	loadCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	configs, err := a.Repo.LoadActiveStrategyConfigs(loadCtx)
	if err != nil || len(configs) == 0 {
		if err != nil {
			a.Logger.Warn("falling back to default strategy set", zap.Error(err))
		}
		configs = strategy.DefaultConfigs()
	}
	strategies, perfWeights := strategy.FromConfigs(configs)

	aggCfg := strategy.DefaultAggregatorConfig()
	aggCfg.Threshold = a.Config.SignalThreshold
	aggCfg.StopMultiplier = a.Config.StopMultiplier

	bt := engine.NewBacktester(params, a.Source, strategies, perfWeights, aggCfg, a.Logger)
	sessionID := bt.SessionID()

	job := engine.Job{
		SessionID: sessionID,
		Run: func(ctx context.Context) {
			a.runBacktest(ctx, bt, params, sessionID)
		},
	}
	if !a.Pool.Submit(job) {
		return "", false
	}
	return sessionID, true
}

// runBacktest executes one queued run end to end: progress events out over
// NATS while it walks, then persistence and the final result event.
func (a *App) runBacktest(ctx context.Context, bt *engine.Backtester, params model.BacktestParams, sessionID string) {
	progressSubject := infrastructure.SubjectProgressPrefix + sessionID

	summary := bt.Run(ctx, func(current, total int, message string) {
		event, err := json.Marshal(gin.H{
			"session_id": sessionID,
			"current":    current,
			"total":      total,
			"message":    message,
		})
		if err != nil {
			return
		}
		if _, err := a.JS.Publish(progressSubject, event); err != nil {
			a.Logger.Debug("failed to publish progress", zap.String("session", sessionID), zap.Error(err))
		}
	})

	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Repo.SaveBacktestResult(saveCtx, params, summary); err != nil {
		a.Logger.Error("failed to persist backtest result",
			zap.String("session", sessionID), zap.Error(err))
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		a.Logger.Error("failed to encode backtest result", zap.String("session", sessionID), zap.Error(err))
		return
	}
	if _, err := a.JS.Publish(infrastructure.SubjectResultPrefix+sessionID, payload); err != nil {
		a.Logger.Error("failed to publish backtest result",
			zap.String("session", sessionID), zap.Error(err))
	}
}

// setupRouter configures the Gin router and its routes
func (a *App) setupRouter() *gin.Engine {
	r := gin.Default()

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	apiHandler := api.NewHandler(a.Repo, a.startBacktest, a.Logger)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/strategies", apiHandler.ListStrategies)
		v1.POST("/backtest", apiHandler.RunBacktest)
		v1.GET("/backtest/:session", apiHandler.GetBacktest)
	}

	r.GET("/ws", func(c *gin.Context) {
		a.Gateway.ServeHTTP(c.Writer, c.Request)
	})

	return r
}
