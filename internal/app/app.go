package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/studyspace/core/internal/config"
	"github.com/studyspace/core/internal/database"
	"github.com/studyspace/core/internal/middleware"
	"github.com/studyspace/core/internal/modules/ai"
	"github.com/studyspace/core/internal/modules/gateway"
	"github.com/studyspace/core/internal/modules/ingest"
	"github.com/studyspace/core/internal/modules/rag"
	jwtpkg "github.com/studyspace/core/internal/pkg/jwt"
	pkgredis "github.com/studyspace/core/internal/pkg/redis"
	"github.com/studyspace/core/internal/pkg/storage"
	"github.com/studyspace/core/internal/pkg/taskqueue"
)

var processStart = time.Now()

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	db     *gorm.DB
	hub    *gateway.Hub
	logger *zap.Logger
	cancel context.CancelFunc
}

// New initializes the application: config → DB → Redis → pipeline → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	if secret := strings.TrimSpace(cfg.JWTSecret); secret != "" {
		jwtpkg.SetSecret(secret)
	} else {
		logger.Warn("jwt_secret is empty, using built-in default secret")
	}

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	store, err := storage.New(cfg.Uploads)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	embedder, err := ai.NewOpenAIEmbedder(cfg.AI.Embedding)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	generator := ai.NewClient(cfg.AI)

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(buildCORSConfig(cfg)))

	hub := gateway.NewHub(rc, logger, func(token string) (string, bool) {
		claims, err := middleware.ValidateTokenClaims(db, token)
		if err != nil {
			return "", false
		}
		return claims.UserID, true
	})

	taskSvc := taskqueue.NewService(rc)
	notifier := gateway.NewNotifier(db, hub, logger)
	retriever := rag.NewRetriever(db, embedder, cfg.RAG, logger)
	pipeline := ingest.NewPipeline(db, store, embedder, taskSvc, notifier, cfg.RAG, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	go pipeline.Run(ctx)

	app := &App{cfg: cfg, router: router, db: db, hub: hub, logger: logger, cancel: cancel}
	app.registerRoutes(rc, store, generator, retriever, pipeline)
	return app, nil
}

func buildCORSConfig(cfg *config.AppConfig) cors.Config {
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Idempotence"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}
	if len(cfg.AllowedOrigins) > 0 && !cfg.IsDev() {
		patterns := cfg.AllowedOrigins
		corsConfig.AllowOriginFunc = func(origin string) bool {
			host := extractOriginHost(origin)
			for _, pattern := range patterns {
				if matchOriginPattern(pattern, host) {
					return true
				}
			}
			return false
		}
	} else {
		corsConfig.AllowOriginFunc = func(origin string) bool { return true }
	}
	return corsConfig
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops background goroutines.
func (a *App) Shutdown() { a.cancel() }
