package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/NEO6667/Collaborative-Canvas/internal/domain"
	wsHandler "github.com/NEO6667/Collaborative-Canvas/internal/handler/websocket"
	"github.com/NEO6667/Collaborative-Canvas/internal/hub"
	"github.com/NEO6667/Collaborative-Canvas/internal/middleware"
	"github.com/NEO6667/Collaborative-Canvas/internal/oplog"
	"github.com/NEO6667/Collaborative-Canvas/internal/registry"
	"github.com/NEO6667/Collaborative-Canvas/internal/service"
)

// Config 存储从环境变量（和可选的 .env 文件）加载的配置。
type Config struct {
	ServerPort      string
	LogLevel        string
	AppEnv          string // development / production
	CanvasWidth     int
	CanvasHeight    int
	MaxHistory      int
	RedisAddr       string // 为空时不启用速率限制
	RedisPassword   string
	RedisDB         int
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// LoadConfig 从环境变量加载配置。
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件（如果存在），忽略错误，允许只使用环境变量。
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:    os.Getenv("SERVER_PORT"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		AppEnv:        os.Getenv("APP_ENV"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		// --- 默认值 ---
		CanvasWidth:     domain.DefaultCanvasWidth,
		CanvasHeight:    domain.DefaultCanvasHeight,
		MaxHistory:      oplog.DefaultMaxHistory,
		RateLimitMax:    100,
		RateLimitWindow: 1 * time.Second,
	}

	cfg.RedisDB, _ = strconv.Atoi(os.Getenv("REDIS_DB")) // 忽略错误，默认为 0

	if v := os.Getenv("CANVAS_WIDTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CanvasWidth = n
		}
	}
	if v := os.Getenv("CANVAS_HEIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CanvasHeight = n
		}
	}
	if v := os.Getenv("MAX_HISTORY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxHistory = n
		}
	}

	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// App 包含应用的所有组件。
type App struct {
	Config      *Config
	Log         *logrus.Logger
	RedisClient *redis.Client // 可选，仅用于速率限制
	Hub         *hub.Hub
	HttpServer  *http.Server
}

// NewApp 创建并装配应用的所有组件。
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel) // 已在 LoadConfig 验证
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(logLevel)
	log.Infof("Logger initialized (Level: %s)", logLevel.String())

	// 3. 可选的 Redis（仅速率限制使用；同步核心完全在内存中）
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr, err)
		}
		log.Info("Redis client initialized (rate limiting enabled)")
	} else {
		log.Info("REDIS_ADDR not set, rate limiting disabled")
	}

	// 4. 初始化同步核心：注册表、操作日志、协调器、Hub
	canvas := domain.CanvasSize{Width: cfg.CanvasWidth, Height: cfg.CanvasHeight}
	reg := registry.New(canvas)
	ops := oplog.NewStore(cfg.MaxHistory)
	coordinator := service.NewCoordinator(reg, ops)
	hubInstance := hub.NewHub(coordinator)
	log.Info("Synchronization core initialized")

	// 5. 初始化 Handler 和路由
	handler := wsHandler.NewHandler(hubInstance, coordinator)

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	if redisClient != nil {
		router.Use(middleware.RateLimit(redisClient, cfg.RateLimitMax, cfg.RateLimitWindow))
	}

	router.GET("/ws", handler.HandleConnection)
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	log.Info("Router setup complete")

	// 6. HTTP Server
	httpServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	return &App{
		Config:      cfg,
		Log:         log,
		RedisClient: redisClient,
		Hub:         hubInstance,
		HttpServer:  httpServer,
	}, nil
}

// Start 启动 HTTP 服务器。
func (a *App) Start() {
	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening")
	}()
}

// Shutdown 优雅地关闭应用。
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully")
	}

	// 关闭所有客户端连接；readPump 退出时会逐个走正常的离开流程。
	a.Hub.Shutdown()

	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}

	a.Log.Info("Application shutdown complete")
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志。
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})
		switch {
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}
