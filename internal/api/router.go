package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"presence-tracker-backend/config"
	"presence-tracker-backend/internal/mw"
	"presence-tracker-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(s store.Store, engine Engine, webpushOptions *webpush.Options, serverCfg config.ServerConfig) *gin.Engine {
	r := gin.Default()
	if serverCfg.RequestIPHeader != "" {
		// ClientIP feeds the per-IP rate limiter; behind a proxy the real
		// address arrives in a header.
		r.TrustedPlatform = serverCfg.RequestIPHeader
	}

	handler := NewHandler(s, engine, webpushOptions, serverCfg.HeatmapLookback)

	rps := serverCfg.RateLimitPerSec
	if rps <= 0 {
		rps = 10
	}
	rateLimiter := mw.RateLimiter(rate.Limit(rps), 5)

	cacheTTL := time.Duration(serverCfg.CacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/targets", handler.GetTargets)
		api.POST("/targets", handler.PostTarget)
		api.DELETE("/targets/:id", handler.DeleteTarget)

		api.GET("/targets/:id/sessions", handler.GetSessions)
		api.GET("/targets/:id/events", handler.GetEvents)
		api.GET("/targets/:id/heatmap", caching, handler.GetHeatmap)

		api.GET("/engine/status", handler.GetEngineStatus)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
