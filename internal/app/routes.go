package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/studyspace/core/internal/middleware"
	aimod "github.com/studyspace/core/internal/modules/ai"
	"github.com/studyspace/core/internal/modules/auth"
	"github.com/studyspace/core/internal/modules/chat"
	"github.com/studyspace/core/internal/modules/document"
	"github.com/studyspace/core/internal/modules/gateway"
	"github.com/studyspace/core/internal/modules/ingest"
	"github.com/studyspace/core/internal/modules/project"
	"github.com/studyspace/core/internal/modules/rag"
	"github.com/studyspace/core/internal/modules/study"
	pkgredis "github.com/studyspace/core/internal/pkg/redis"
	"github.com/studyspace/core/internal/pkg/response"
	"github.com/studyspace/core/internal/pkg/storage"
)

const apiPrefix = "/api/v1"

func (a *App) registerRoutes(rc *pkgredis.Client, store storage.Backend, generator aimod.Generator, retriever *rag.Retriever, pipeline *ingest.Pipeline) {
	r := a.router
	db := a.db
	cfg := a.cfg
	authMW := middleware.Auth(db)

	r.NoRoute(func(c *gin.Context) { response.NotFound(c) })
	r.NoMethod(func(c *gin.Context) { response.MethodNotAllowed(c) })

	appInfo := gin.H{
		"name":    "studyspace-core",
		"version": "1.0.0",
	}

	// Rate limiting and idempotence run on every route (requires Redis).
	r.Use(middleware.RateLimit(rc.Raw()))
	r.Use(middleware.Idempotence(rc.Raw()))

	// socket.io gateway at the root, where /socket.io/* clients expect it.
	gateway.RegisterRoutes(r.Group(""), a.hub)

	api := r.Group(apiPrefix)

	api.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/info", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })
	api.GET("/uptime", func(c *gin.Context) {
		uptimeMs := time.Since(processStart).Milliseconds()
		c.JSON(http.StatusOK, gin.H{
			"timestamp": uptimeMs,
			"humanize":  humanizeDuration(time.Duration(uptimeMs) * time.Millisecond),
		})
	})

	// Services
	projectSvc := project.NewService(db)
	documentSvc := document.NewService(db, store, pipeline, projectSvc, a.logger)
	chatSvc := chat.NewService(db, retriever, generator, cfg.RAG, cfg.AI.TargetLanguage, a.logger)
	studySvc := study.NewService(db, generator, cfg.RAG, cfg.AI.TargetLanguage, a.logger)

	// Handlers
	auth.NewHandler(auth.NewService(db)).RegisterRoutes(api, authMW)
	project.NewHandler(projectSvc).RegisterRoutes(api, authMW)
	document.NewHandler(documentSvc, projectSvc).RegisterRoutes(api, authMW)
	chat.NewHandler(chatSvc, projectSvc).RegisterRoutes(api, authMW)
	study.NewHandler(studySvc, projectSvc).RegisterRoutes(api, authMW)
}

func humanizeDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Truncate(time.Second).String()
	}
	if d < time.Hour {
		return d.Truncate(time.Minute).String()
	}
	if d < 24*time.Hour {
		return d.Truncate(time.Hour).String()
	}
	return d.Truncate(24 * time.Hour).String()
}
