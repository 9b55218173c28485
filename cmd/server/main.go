package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"emailsleuth/config"
	"emailsleuth/internal/dnsresolve"
	"emailsleuth/internal/engine"
	"emailsleuth/internal/handler"
	"emailsleuth/internal/score"
)

func main() {
	cfg, dnsCfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	logger, err := cfg.Logger()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting email-sleuth service",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
	)

	httpClient := &http.Client{Timeout: cfg.Engine.RequestTimeout}
	resolver := dnsresolve.New(dnsCfg.Servers, dnsCfg.Timeout, dnsCfg.Attempts, logger)
	sleuthEngine := engine.New(cfg.Engine, httpClient, resolver, logger)

	scoreCfg := score.Config{
		GenericPrefixes:            cfg.Engine.GenericEmailPrefixes,
		ConfidenceThreshold:        cfg.Engine.ConfidenceThreshold,
		GenericConfidenceThreshold: cfg.Engine.GenericConfidenceThreshold,
		MaxAlternatives:            cfg.Engine.MaxAlternatives,
		MinSleep:                   cfg.Engine.MinSleep,
		MaxSleep:                   cfg.Engine.MaxSleep,
	}

	emailHandler := handler.NewEmailHandler(sleuthEngine, scoreCfg, logger)

	router := setupRouter(emailHandler, logger, cfg)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Info("server starting", zap.String("address", addr))

	if err := http.ListenAndServe(addr, router); err != nil {
		logger.Fatal("server failed to start", zap.Error(err))
	}
}

func setupRouter(emailHandler *handler.EmailHandler, logger *zap.Logger, cfg *config.Config) *gin.Engine {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(ginLogger(logger))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/health", emailHandler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/find-email", emailHandler.FindEmail)
	}

	return router
}

func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		logger.Info("HTTP request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", latency),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
