package api

import (
	"github.com/gilby125/tripfinder/config"
	"github.com/gilby125/tripfinder/pkg/cache"
	"github.com/gilby125/tripfinder/pkg/health"
	"github.com/gilby125/tripfinder/pkg/middleware"
	"github.com/gilby125/tripfinder/queue"
	"github.com/gin-gonic/gin"
)

// Deps are the services behind the HTTP surface. History, Queue, Workers,
// Health and Cache are optional.
type Deps struct {
	Trips   TripSearcher
	History HistoryLister
	Queue   queue.Queue
	Workers WorkerLister
	Health  *health.HealthChecker
	Cache   *cache.CacheManager
	Config  *config.Config
}

// RegisterRoutes registers all API routes
func RegisterRoutes(router *gin.Engine, d Deps) {
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Recovery())

	router.GET("/health", HealthCheck(d.Health))

	v1 := router.Group("/api/v1")
	{
		directory := v1.Group("")
		directory.Use(middleware.ResponseCache(d.Cache, middleware.CacheConfig{TTL: cache.ShortTTL, KeyPrefix: "api"}))
		directory.GET("/airports", GetAirports(d.Trips))
		directory.GET("/airports/base", GetBaseAirports(d.Trips))
		directory.GET("/countries", GetCountries(d.Trips))
		directory.GET("/regions", GetRegions())

		v1.POST("/trips/search", SearchTrips(d.Trips, d.Config.SearchConfig, false))
		v1.POST("/trips/search.csv", SearchTrips(d.Trips, d.Config.SearchConfig, true))
		v1.GET("/searches", ListSearches(d.History))

		admin := v1.Group("/admin")
		admin.Use(middleware.AdminAuth(d.Config.AdminAuthConfig))
		if d.Queue != nil {
			admin.POST("/base-airports", RebuildGraph(d.Queue))
			admin.POST("/refresh", RefreshGraph(d.Queue))
			admin.GET("/jobs/:id", GetJob(d.Queue))
			admin.DELETE("/jobs/:id", CancelJob(d.Queue))
			admin.GET("/queue", GetQueueStats(d.Queue))
		}
		if d.Workers != nil {
			admin.GET("/workers", ListWorkers(d.Workers))
		}
	}
}
