package server

import (
	"github.com/abduss/cloudnest/internal/auth"
	"github.com/abduss/cloudnest/internal/config"
	"github.com/abduss/cloudnest/internal/file"
	"github.com/abduss/cloudnest/internal/link"
	"github.com/abduss/cloudnest/internal/logger"
	"github.com/abduss/cloudnest/internal/metrics"
	"github.com/gin-gonic/gin"
)

// Dependencies groups the services required by the HTTP router.
type Dependencies struct {
	Config      config.Config
	Checks      []Check
	AuthService *auth.Service
	FileService *file.Service
	LinkService *link.Service
}

// NewRouter builds the API engine: health, metrics, the authenticated /v1
// surface, public share links and the worker callback.
func NewRouter(deps Dependencies) *gin.Engine {
	router := newEngine()

	registerHealthRoutes(router, deps.Checks)
	metrics.Register(router, deps.Config.Metrics.PrometheusPath)

	if deps.FileService != nil {
		file.RegisterInternalRoutes(router, deps.FileService, deps.Config.Internal.Token)
	}
	if deps.LinkService != nil {
		link.RegisterPublicRoutes(router, deps.LinkService)
	}

	api := router.Group("/v1")
	if deps.AuthService != nil {
		auth.RegisterRoutes(api, deps.AuthService)

		protected := api.Group("/")
		protected.Use(auth.AuthMiddleware(deps.AuthService))

		if deps.FileService != nil {
			file.RegisterRoutes(protected, deps.FileService)
		}
		if deps.LinkService != nil {
			link.RegisterRoutes(protected, deps.LinkService)
		}
	}

	return router
}

// NewWorkerRouter serves only health and metrics for a worker process.
func NewWorkerRouter(cfg config.Config, checks []Check) *gin.Engine {
	router := newEngine()
	registerHealthRoutes(router, checks)
	metrics.Register(router, cfg.Metrics.PrometheusPath)
	return router
}

func newEngine() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.Middleware())
	router.Use(metrics.Middleware())
	return router
}
