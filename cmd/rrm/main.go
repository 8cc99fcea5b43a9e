// Package main is the entry point for the rendering resource manager.
// A single binary serves the REST API and the WebSocket event stream and
// runs the background keep-alive sweeper.
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
	"go.uber.org/zap"

	// Common packages
	"github.com/bluegrid/rrm/internal/common/config"
	"github.com/bluegrid/rrm/internal/common/httpmw"
	"github.com/bluegrid/rrm/internal/common/logger"
	"github.com/bluegrid/rrm/internal/common/tracing"

	// Storage
	"github.com/bluegrid/rrm/internal/db"

	// Event bus
	"github.com/bluegrid/rrm/internal/events"

	// WebSocket gateway
	gateways "github.com/bluegrid/rrm/internal/gateway/websocket"

	// Renderer configurations
	"github.com/bluegrid/rrm/internal/rendering"
	renderinghandlers "github.com/bluegrid/rrm/internal/rendering/handlers"
	renderingrepo "github.com/bluegrid/rrm/internal/rendering/repository"
	renderingservice "github.com/bluegrid/rrm/internal/rendering/service"

	// Renderer probe
	"github.com/bluegrid/rrm/internal/renderer"

	// Launchers
	"github.com/bluegrid/rrm/internal/scheduler"
	"github.com/bluegrid/rrm/internal/scheduler/docker"
	"github.com/bluegrid/rrm/internal/scheduler/process"
	"github.com/bluegrid/rrm/internal/scheduler/slurm"

	// Session engine
	sessionhandlers "github.com/bluegrid/rrm/internal/session/handlers"
	"github.com/bluegrid/rrm/internal/session/models"
	sessionrepo "github.com/bluegrid/rrm/internal/session/repository"
	sessionservice "github.com/bluegrid/rrm/internal/session/service"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting Rendering Resource Manager...", zap.String("version", version))

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Initialize event bus (in-memory by default, NATS if configured)
	providedBus, busCleanup, err := events.Provide(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize event bus", zap.Error(err))
	}
	defer busCleanup()
	eventBus := providedBus.Bus

	// 5. Open storage and build the repositories
	pool, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err), zap.String("driver", cfg.Database.Driver))
	}
	defer pool.Close()
	log.Info("Database ready", zap.String("driver", pool.Driver()))

	sessionRepo, closeSessionRepo, err := sessionrepo.Provide(pool.Driver(), pool.Writer(), pool.Reader())
	if err != nil {
		log.Fatal("Failed to initialize session store", zap.Error(err))
	}
	defer closeSessionRepo()

	configRepo, closeConfigRepo, err := renderingrepo.Provide(pool.Driver(), pool.Writer(), pool.Reader())
	if err != nil {
		log.Fatal("Failed to initialize configuration store", zap.Error(err))
	}
	defer closeConfigRepo()

	// The policy row gates session creation and supplies the keep-alive
	// horizon; it must exist before the first request.
	err = sessionRepo.EnsurePolicy(ctx, models.GlobalPolicy{
		SessionCreationEnabled: true,
		KeepAliveTimeout:       cfg.Session.KeepAliveTimeout,
	})
	if err != nil {
		log.Fatal("Failed to initialize global policy", zap.Error(err))
	}

	// Seed renderer configurations from YAML when configured
	if cfg.Database.SeedPath != "" {
		count, err := rendering.SeedFromFile(ctx, configRepo, cfg.Database.SeedPath, log)
		if err != nil {
			log.Warn("Failed to seed renderer configurations",
				zap.String("path", cfg.Database.SeedPath), zap.Error(err))
		} else {
			log.Info("Seeded renderer configurations",
				zap.String("path", cfg.Database.SeedPath), zap.Int("count", count))
		}
	}

	// 6. Renderer probe and launcher
	probeClient := renderer.NewClient(cfg.Renderer, log)

	launcher, closeLauncher, err := buildLauncher(cfg, probeClient, log)
	if err != nil {
		log.Fatal("Failed to initialize launcher", zap.Error(err))
	}
	if closeLauncher != nil {
		defer func() {
			if err := closeLauncher(); err != nil {
				log.Error("Launcher close error", zap.Error(err))
			}
		}()
	}
	log.Info("Launcher ready", zap.String("mode", cfg.Launcher.Mode))

	// 7. Services
	configSvc := renderingservice.NewService(configRepo, eventBus, log)
	engine := sessionservice.New(sessionRepo, configRepo, launcher, probeClient, eventBus, cfg.Renderer, log)
	defer engine.Close()

	sweeper := sessionservice.NewSweeper(engine, sessionRepo, cfg.Session.SweepIntervalDuration(), log)
	sweeper.Start()

	// 8. WebSocket gateway for the lifecycle event stream
	gateway := gateways.Provide(ctx, eventBus, log)

	// ============================================
	// HTTP SERVER (REST + WebSocket endpoints)
	// ============================================
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(httpmw.AuthPassthrough())
	router.Use(httpmw.RequestLogger(log, "rrm"))
	router.Use(httpmw.OtelTracing("rrm"))

	// WebSocket endpoint - realtime lifecycle stream
	gateway.SetupRoutes(router)

	// REST handlers
	sessionhandlers.RegisterRoutes(router, engine, log)
	renderinghandlers.RegisterRoutes(router, configSvc, log)

	// Health check (simple HTTP for load balancers/monitoring)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "rrm",
			"version": version,
		})
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("HTTP server listening",
			zap.String("host", cfg.Server.Host), zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("API configured",
		zap.String("websocket", "/ws/events"),
		zap.String("health", "/health"),
	)

	// ============================================
	// GRACEFUL SHUTDOWN
	// ============================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Rendering Resource Manager...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Stop the sweeper before the engine so no teardown starts against a
	// closing launcher.
	sweeper.Stop()
	engine.Close()

	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Error("Tracing shutdown error", zap.Error(err))
	}

	log.Info("Rendering Resource Manager stopped")
}

// buildLauncher constructs the launcher selected by launcher.mode. The
// returned cleanup releases the control channel (SSH connection, Docker
// client); the process launcher has nothing to release.
func buildLauncher(cfg *config.Config, exiter scheduler.ExitRequester, log *logger.Logger) (scheduler.Launcher, func() error, error) {
	switch cfg.Launcher.Mode {
	case config.LauncherSlurm:
		l := slurm.NewLauncher(cfg.Slurm, exiter, log)
		return l, l.Close, nil
	case config.LauncherProcess:
		return process.NewLauncher(cfg.Launcher.WorkDir, exiter, log), nil, nil
	case config.LauncherDocker:
		l, err := docker.NewLauncher(cfg.Docker, exiter, log)
		if err != nil {
			return nil, nil, err
		}
		return l, l.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown launcher mode %q", cfg.Launcher.Mode)
	}
}

// corsMiddleware returns a CORS middleware for HTTP and WebSocket connections
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version, Sec-WebSocket-Protocol")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
