package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/synergereader/internal/api/admin"
	"github.com/liliang-cn/synergereader/internal/api/middleware"
	"github.com/liliang-cn/synergereader/internal/api/reader"
	"go.uber.org/zap"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	APIKey       string
	AllowOrigins []string
	// Probe, when set, supplies the body reported by GET /test
	Probe  func() gin.H
	Logger *zap.Logger
}

// Handlers are the route groups served by the router
type Handlers struct {
	Reader *reader.Handler
	Admin  *admin.Handler
}

// SetupRouter sets up the Gin router
func SetupRouter(h Handlers, cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLog(logger))
	r.Use(middleware.CORS(cfg.AllowOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/test", func(c *gin.Context) {
		var probe gin.H
		if cfg.Probe != nil {
			probe = cfg.Probe()
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "config": probe})
	})

	h.Reader.RegisterRoutes(r)

	// Curation routes share paths with the reader API but need the admin key
	curation := r.Group("")
	curation.Use(middleware.AdminKey(cfg.APIKey, logger))
	h.Admin.RegisterRoutes(curation)

	return r
}
