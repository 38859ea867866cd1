package router

import (
	"time"

	"bomcore/internal/config"
	"bomcore/internal/handler"
	"bomcore/internal/middleware"
	"bomcore/internal/repository"
	"bomcore/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(1000, time.Minute)) // 1000 req/min per IP

	// ── Repositories ─────────────────────────────────────────────────────────
	itemRepo := repository.NewItemRepository(db)
	bomRepo := repository.NewBOMRepository(db)
	deductionRepo := repository.NewDeductionRepository(db)
	customerRepo := repository.NewCustomerRepository(db)

	// ── Services ─────────────────────────────────────────────────────────────
	bomSvc := service.NewBOMService(bomRepo, itemRepo, cfg.MaxBOMDepth)
	resolvers := []service.ResolverStrategy{
		service.NewShallowResolver(bomRepo),
		service.NewDeepResolver(bomRepo, cfg.MaxBOMDepth),
	}
	deductionSvc := service.NewDeductionService(itemRepo, deductionRepo, resolvers, rdb,
		service.DeductionConfig{
			DefaultStrategy:    cfg.ResolverStrategy,
			AllowNegativeStock: cfg.AllowNegativeStock,
			MaxRetries:         cfg.DeductionMaxRetries,
			RetryBase:          time.Duration(cfg.DeductionRetryBaseMs) * time.Millisecond,
		})

	// ── Handlers ─────────────────────────────────────────────────────────────
	bomHandler := handler.NewBOMHandler(bomSvc, customerRepo)
	productionHandler := handler.NewProductionHandler(deductionSvc)

	r.GET("/health", handler.Health(db, rdb))

	v1 := r.Group("/api/v1")
	{
		bom := v1.Group("/bom")
		{
			bom.POST("/edges", bomHandler.UpsertEdge)
			bom.POST("/edges/bulk", bomHandler.BulkUpsert)
			bom.DELETE("/edges/:id", bomHandler.DeactivateEdge)
			bom.GET("/:item_id/children", bomHandler.QueryChildren)
			bom.GET("/:item_id/entries", bomHandler.ListEntries)
		}
		production := v1.Group("/production")
		{
			production.POST("/events", productionHandler.HandleEvent)
			production.GET("/transactions/:tx_id/log", productionHandler.AuditTrail)
		}
	}

	return r
}
