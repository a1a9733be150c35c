package http

import (
	"github.com/EternisAI/silo-license/internal/api/http/handler"
	"github.com/EternisAI/silo-license/internal/api/http/middleware"
	"github.com/EternisAI/silo-license/internal/auth"
	"github.com/EternisAI/silo-license/internal/licenses"
	"github.com/EternisAI/silo-license/internal/metrics"
	"github.com/EternisAI/silo-license/internal/receipt"
	"github.com/gin-gonic/gin"
)

// Services carries everything the routes depend on. Receipts, Metrics,
// RateLimiter and StorePinger are optional.
type Services struct {
	Engine      *licenses.Engine
	Admin       *licenses.Admin
	Recorder    *licenses.Recorder
	Verifier    *auth.Verifier
	Receipts    *receipt.Signer
	Metrics     *metrics.Metrics
	RateLimiter gin.HandlerFunc
	StoreDriver string
	StorePinger handler.Pinger
}

func SetupRoute(engine *gin.Engine, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler(srvs.StoreDriver, srvs.StorePinger)
	engine.GET("/health", healthHandler.Check)

	if srvs.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(srvs.Metrics.Handler()))
	}

	v1 := engine.Group("/api/v1")
	public := v1.Group("")
	if srvs.RateLimiter != nil {
		public.Use(srvs.RateLimiter)
	}

	licenseHandler := handler.NewLicenseHandler(srvs.Engine, srvs.Receipts, srvs.Metrics)
	public.POST("/licenses/validate", licenseHandler.Validate)
	public.POST("/licenses/activate", licenseHandler.Activate)

	usageHandler := handler.NewUsageHandler(srvs.Recorder, srvs.Metrics)
	public.POST("/usage", usageHandler.Record)

	adminHandler := handler.NewAdminHandler(srvs.Admin)
	admin := v1.Group("/admin")
	admin.Use(middleware.AdminAuth(srvs.Verifier))
	{
		admin.POST("/licenses", adminHandler.CreateLicense)
		admin.GET("/licenses", adminHandler.ListLicenses)
		admin.GET("/licenses/:key", adminHandler.GetLicense)
		admin.POST("/licenses/:key/deactivate", adminHandler.DeactivateLicense)
		admin.POST("/licenses/:key/reactivate", adminHandler.ReactivateLicense)
		admin.GET("/usage", usageHandler.Summary)
	}
}
