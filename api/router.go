package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/ims_backend/middlewares"
	"github.com/mmdatafocus/ims_backend/models"
	"github.com/mmdatafocus/ims_backend/syncer"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Store          *models.Store
	Coordinator    *syncer.Coordinator
	Logger         *logrus.Logger
	Secret         []byte
	TokenLifespan  time.Duration
	AuthRequired   bool
	Production     bool
	AllowedOrigins []string
}

type handler struct {
	store        *models.Store
	logger       *logrus.Logger
	secret       []byte
	lifespan     time.Duration
	authRequired bool
}

func corsConfig(cfg Config) cors.Config {
	corsConfig := cors.DefaultConfig()
	// production requires an explicit allowlist; everything else allows all
	if cfg.Production {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		if len(corsConfig.AllowOrigins) == 0 {
			corsConfig.AllowOrigins = []string{"http://localhost"}
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", middlewares.CorrelationHeader)
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", middlewares.CorrelationHeader)
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	return corsConfig
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// NewRouter wires the local HTTP API used by the site UI.
func NewRouter(cfg Config) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = cfg.Store.Logger()
	}
	lifespan := cfg.TokenLifespan
	if lifespan <= 0 {
		lifespan = 12 * time.Hour
	}
	h := &handler{
		store:        cfg.Store,
		logger:       logger,
		secret:       cfg.Secret,
		lifespan:     lifespan,
		authRequired: cfg.AuthRequired,
	}

	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(cors.New(corsConfig(cfg)))
	r.Use(middlewares.RequestLogger(logger))
	r.Use(middlewares.CustomErrorLogger(logger))
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/api/login", h.login)

	g := r.Group("/api", middlewares.AuthMiddleware(cfg.Secret, cfg.AuthRequired))
	admin := middlewares.AdminOnly(cfg.AuthRequired)

	g.GET("/products", h.listProducts)
	g.POST("/products", h.addProduct)
	g.GET("/products/search", h.searchProducts)
	g.GET("/products/lookup", h.lookupProduct)
	g.GET("/products/low-stock", h.lowStockProducts)
	g.GET("/products/export", h.exportProducts)
	g.GET("/products/:id", h.getProduct)
	g.PATCH("/products/:id", h.updateProduct)
	g.DELETE("/products/:id", h.deleteProduct)
	g.POST("/products/:id/adjust", h.adjustStock)
	g.POST("/products/:id/count", h.countStock)

	g.GET("/adjustments", h.listAdjustments)
	g.POST("/sales", h.createSale)
	g.GET("/transactions", h.listTransactions)
	g.GET("/transactions/:id", h.getTransaction)
	g.GET("/audit-logs", h.auditLogs)

	if c := cfg.Coordinator; c != nil {
		g.POST("/sync", c.SyncHandler())
		g.GET("/sync/status", c.StatusHandler())
		g.GET("/sync/runs", c.HistoryHandler())
		g.GET("/sync/conflicts", c.ConflictsHandler())
		g.POST("/sync/conflicts/resolve", admin, c.ResolveConflictHandler())
		r.POST("/pubsub/sync", c.PubSubPushHandler())
	}

	r.NoRoute(customNotFoundHandler)
	return r
}
