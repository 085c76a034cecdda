package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"huddle-client/internal/conn"
	"huddle-client/internal/session"
	"huddle-client/pkg/config"
	"huddle-client/pkg/constants"
	"huddle-client/pkg/logger"
)

// logNotifier routes user-facing notices to the log; a UI shell would
// replace this with its toast layer
type logNotifier struct {
	log *zap.Logger
}

func (n *logNotifier) Notify(message string) {
	n.log.Info("Notice", zap.String("message", message))
}

// logAlerter stands in for the haptic ring alert on headless deployments
type logAlerter struct {
	log *zap.Logger
}

func (a *logAlerter) Start() { a.log.Info("Ring alert started") }
func (a *logAlerter) Stop()  { a.log.Debug("Ring alert stopped") }

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize logger
	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 3. Session token is the daemon's credential
	sessionToken := os.Getenv("SESSION_TOKEN")
	if sessionToken == "" {
		logger.Fatal("SESSION_TOKEN environment variable is required")
	}

	// 4. Build the session object graph
	sess, err := session.New(cfg, sessionToken, logger.Log,
		session.WithNotifier(&logNotifier{log: logger.Component("notify")}),
		session.WithAlerter(&logAlerter{log: logger.Component("alert")}),
	)
	if err != nil {
		logger.Fatal("Failed to build session", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sess.Start(ctx); err != nil {
		logger.Fatal("Failed to start session", zap.Error(err))
	}

	// 5. Setup Gin router for health, metrics and debug
	if cfg.Daemon.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "realtimed",
			"time":    time.Now().UTC(),
		})
	})

	router.GET("/readyz", func(c *gin.Context) {
		state := sess.Conn.State()
		status := http.StatusOK
		if state != conn.StateConnected {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"connection": state})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/debug/state", func(c *gin.Context) {
		calls, err := sess.Gateway.ListCalls(c.Request.Context(), constants.DefaultPageSize, 0)
		if err != nil {
			calls = nil
		}
		c.JSON(http.StatusOK, gin.H{
			"connection":    sess.Conn.State(),
			"current_call":  sess.Calls.Current(),
			"typing_active": sess.Typing.ActiveCount(),
			"unread_badge":  sess.Unread.Badge(),
			"call_history":  calls,
		})
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Daemon.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Realtime daemon started", zap.Int("port", cfg.Daemon.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 6. Graceful shutdown: logout semantics on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server shutdown failed", zap.Error(err))
	}
	sess.Close()
}
