package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/parkmeter/internal/api/geocoder"
	"github.com/langchou/parkmeter/internal/api/handlers"
	"github.com/langchou/parkmeter/internal/cache"
	"github.com/langchou/parkmeter/internal/clock"
	"github.com/langchou/parkmeter/internal/config"
	"github.com/langchou/parkmeter/internal/observability"
	"github.com/langchou/parkmeter/internal/repository"
	"github.com/langchou/parkmeter/internal/service"
	"github.com/langchou/parkmeter/pkg/ws"
)

// stores 服务层使用的仓库集合
type stores struct {
	zones     service.ZoneRepository
	schedules service.ScheduleRepository
	tariffs   service.TariffRepository
	vehicles  interface {
		service.VehicleRepository
		handlers.VehicleStore
	}
	sessions service.SessionRepository
	alarms   service.AlarmRepository
	seed     repository.SeedTarget
}

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting parkmeter",
		zap.String("port", cfg.ServerPort),
		zap.String("store", cfg.Store),
		zap.String("timezone", cfg.Timezone))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 存储
	var st stores
	switch cfg.Store {
	case config.StoreMemory:
		mem := repository.NewMemory()
		st = stores{
			zones:     mem.Zones,
			schedules: mem.Schedules,
			tariffs:   mem.Tariffs,
			vehicles:  mem.Vehicles,
			sessions:  mem.Sessions,
			alarms:    mem.Alarms,
			seed:      mem.SeedTarget(),
		}
		logger.Warn("Using in-memory store, data is lost on restart")
	default:
		db, err := repository.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect database", zap.Error(err))
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		logger.Info("Database migrated successfully")

		st = stores{
			zones:     repository.NewZoneRepository(db),
			schedules: repository.NewScheduleRepository(db),
			tariffs:   repository.NewTariffRepository(db),
			vehicles:  repository.NewVehicleRepository(db),
			sessions:  repository.NewSessionRepository(db),
			alarms:    repository.NewAlarmRepository(db),
			seed:      repository.PostgresSeedTarget(db),
		}
	}

	// 初始数据
	if cfg.SeedFile != "" {
		seed, err := repository.LoadSeed(cfg.SeedFile)
		if err != nil {
			logger.Fatal("Failed to load seed file", zap.String("path", cfg.SeedFile), zap.Error(err))
		}
		n, err := repository.ApplySeed(ctx, st.seed, seed)
		if err != nil {
			logger.Fatal("Failed to apply seed", zap.Error(err))
		}
		logger.Info("Seed applied", zap.String("path", cfg.SeedFile), zap.Int("zones", n))
	}

	// 指标
	var metrics *observability.Collector
	if cfg.MetricsEnabled {
		metrics, err = observability.NewCollector(prometheus.DefaultRegisterer)
		if err != nil {
			logger.Fatal("Failed to register metrics", zap.Error(err))
		}
	}

	clk := clock.NewReal(cfg.Location)

	// 区域目录
	catalog := service.NewCatalog(st.zones, st.schedules, st.tariffs, clk, cfg.Location, cfg.CatalogTTL, logger)
	catalog.SetMetrics(metrics)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		catalogCache := cache.NewCatalogCache(rdb, cfg.RedisPrefix, cfg.CatalogTTL, logger)
		if err := catalogCache.Ping(ctx); err != nil {
			logger.Warn("Redis unavailable, catalog cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			catalog.SetCache(catalogCache)
			logger.Info("Catalog cache enabled", zap.String("addr", cfg.RedisAddr))
		}
	}
	if cfg.SeedFile != "" {
		catalog.Invalidate(ctx)
	}
	if _, err := catalog.Refresh(ctx); err != nil {
		logger.Fatal("Failed to load zone catalog", zap.Error(err))
	}

	// WebSocket Hub
	wsHub := ws.NewHub(logger)
	go wsHub.Run(ctx)

	// 服务
	resolver := service.NewZoneResolver(catalog, logger)

	planner := service.NewAlarmPlanner(st.alarms, st.sessions, catalog, clk, cfg.AlarmLead, logger)
	planner.SetMetrics(metrics)

	engine := service.NewSessionEngine(st.vehicles, st.sessions, st.alarms, catalog, resolver, planner, clk, logger)
	engine.SetMetrics(metrics)
	engine.SetListener(wsHub)
	engine.SetRejectClosedZones(cfg.RejectClosedZone)
	if cfg.GeocoderEnabled {
		engine.SetGeocoder(geocoder.NewClient(cfg.GeocoderURL, logger))
	}

	sweeper := service.NewExpirationScheduler(engine, st.sessions, catalog, clk, cfg.SweepInterval, logger)
	sweeper.SetMetrics(metrics)
	sweeper.Start(ctx)

	dispatcher := service.NewAlarmDispatcher(st.alarms, st.sessions, wsHub, clk, cfg.AlarmInterval, logger)
	dispatcher.SetMetrics(metrics)
	dispatcher.Start(ctx)

	// HTTP 处理器
	handler := handlers.NewHandler(logger, engine, resolver, catalog, sweeper, st.vehicles, clk, wsHub)
	handler.SetMetrics(metrics)

	wsHub.SetInitDataProvider(func() *ws.InitData {
		initCtx, initCancel := context.WithTimeout(ctx, 5*time.Second)
		defer initCancel()
		views, err := handler.ZoneViews(initCtx)
		if err != nil {
			logger.Warn("Failed to build websocket init data", zap.Error(err))
			return nil
		}
		return &ws.InitData{Zones: views}
	})

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handlers.RequestID())
	router.Use(handlers.Logger(logger))
	router.Use(handlers.CORS())

	handler.RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 停止后台循环
	sweeper.Stop()
	dispatcher.Stop()

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	cancel()

	logger.Info("Server exited")
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}
