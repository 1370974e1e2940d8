package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gilby125/tripfinder/config"
	"github.com/gilby125/tripfinder/db"
	"github.com/gilby125/tripfinder/graph"
	"github.com/gilby125/tripfinder/pkg/buildinfo"
	"github.com/gilby125/tripfinder/pkg/health"
	"github.com/gilby125/tripfinder/pkg/logger"
	"github.com/gilby125/tripfinder/pkg/macros"
	"github.com/gilby125/tripfinder/pkg/middleware"
	"github.com/gilby125/tripfinder/pkg/worker_registry"
	"github.com/gilby125/tripfinder/queue"
	"github.com/gilby125/tripfinder/trips"
	"github.com/gilby125/tripfinder/worker"
	"github.com/gin-gonic/gin"
)

// TripSearcher runs searches and serves the airport directory.
type TripSearcher interface {
	Search(ctx context.Context, req trips.SearchRequest) (*trips.Result, error)
	Airports(ctx context.Context, query string) ([]graph.Airport, error)
	Countries(ctx context.Context) ([]string, error)
	BaseAirports(ctx context.Context) ([]graph.Airport, error)
}

// HistoryLister reads recent searches.
type HistoryLister interface {
	ListSearches(ctx context.Context, limit int) ([]db.SearchRecord, error)
}

// WorkerLister reads live worker heartbeats.
type WorkerLister interface {
	ListActive(ctx context.Context, within time.Duration, limit int64) ([]worker_registry.Heartbeat, error)
}

// HealthCheck returns the health report; 503 when any check is down.
func HealthCheck(h *health.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h == nil {
			c.JSON(http.StatusOK, gin.H{"status": health.StatusUp, "build": buildinfo.Info()})
			return
		}
		report := h.CheckHealth(c.Request.Context())
		status := http.StatusOK
		if report.Status != health.StatusUp {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": report.Status, "build": buildinfo.Info(), "report": report})
	}
}

// GetAirports returns the airport directory, filtered by ?q=.
func GetAirports(s TripSearcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		airports, err := s.Airports(c.Request.Context(), c.Query("q"))
		if err != nil {
			respondError(c, http.StatusServiceUnavailable, "Failed to load airports", err)
			return
		}
		c.JSON(http.StatusOK, airports)
	}
}

// GetBaseAirports returns the airports searches can start from.
func GetBaseAirports(s TripSearcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		airports, err := s.BaseAirports(c.Request.Context())
		if err != nil {
			respondError(c, http.StatusServiceUnavailable, "Failed to load base airports", err)
			return
		}
		c.JSON(http.StatusOK, airports)
	}
}

// GetCountries returns the sorted distinct countries of the route graph.
func GetCountries(s TripSearcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		countries, err := s.Countries(c.Request.Context())
		if err != nil {
			respondError(c, http.StatusServiceUnavailable, "Failed to load countries", err)
			return
		}
		c.JSON(http.StatusOK, countries)
	}
}

// GetRegions lists the REGION:* macros accepted in country lists.
func GetRegions() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, macros.GetAllRegionInfo())
	}
}

// SearchTrips runs a search from a JSON body or an HTML form post. The
// response is CSV when forceCSV is set or format=csv is requested.
func SearchTrips(s TripSearcher, cfg config.SearchConfig, forceCSV bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body TripSearchBody
		if strings.HasPrefix(c.ContentType(), "application/json") {
			if err := c.ShouldBindJSON(&body); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
				return
			}
		} else {
			parsed, err := ParseSearchForm(c)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			body = parsed
		}

		req, err := BuildSearchRequest(body, cfg)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := s.Search(c.Request.Context(), req)
		if err != nil {
			respondError(c, searchErrorStatus(err), "Search failed", err)
			return
		}

		if forceCSV || strings.EqualFold(body.Format, "csv") || strings.EqualFold(c.Query("format"), "csv") {
			c.Header("Content-Type", "text/csv; charset=utf-8")
			c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="trips-%s.csv"`, result.ID))
			c.Status(http.StatusOK)
			if err := trips.WriteCSV(c.Writer, result.Itineraries); err != nil {
				logger.Error(err, "Failed to write CSV", "search_id", result.ID.String())
			}
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func searchErrorStatus(err error) int {
	switch {
	case errors.Is(err, trips.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, trips.ErrGraphQuery):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// ListSearches returns the most recent searches, newest first.
func ListSearches(h HistoryLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h == nil {
			c.JSON(http.StatusOK, []db.SearchRecord{})
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if err != nil || limit < 1 || limit > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
			return
		}
		records, err := h.ListSearches(c.Request.Context(), limit)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to list searches", err)
			return
		}
		if records == nil {
			records = []db.SearchRecord{}
		}
		c.JSON(http.StatusOK, records)
	}
}

// BaseAirportsRequest is the body of POST /api/v1/admin/base-airports.
type BaseAirportsRequest struct {
	BaseAirports []string `json:"base_airports" form:"base_airports"`
}

// RebuildGraph enqueues a full rebuild around a new base airport set.
func RebuildGraph(q queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body BaseAirportsRequest
		if err := c.ShouldBind(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		codes, err := parseAirportCodes("base_airports", body.BaseAirports)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(codes) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "at least one base airport is required"})
			return
		}
		enqueue(c, q, queue.JobRebuildGraph, queue.RebuildPayload{BaseAirports: codes})
	}
}

// RefreshGraph enqueues a refresh of the current base airports.
func RefreshGraph(q queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		enqueue(c, q, queue.JobRefreshGraph, queue.RefreshPayload{})
	}
}

func enqueue(c *gin.Context, q queue.Queue, jobType string, payload interface{}) {
	ctx := queue.WithEnqueueMeta(c.Request.Context(), queue.EnqueueMeta{
		Actor:     "http",
		RequestID: middleware.GetRequestID(c),
		RemoteIP:  c.ClientIP(),
	})
	id, err := q.Enqueue(ctx, jobType, payload)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to enqueue job", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": id, "type": jobType, "status": queue.StatusPending})
}

// GetJob returns a graph maintenance job record.
func GetJob(q queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := q.GetJob(c.Request.Context(), c.Param("id"))
		if errors.Is(err, queue.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to get job", err)
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

// CancelJob requests cancellation of a pending or running job.
func CancelJob(q queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		job, err := q.GetJob(ctx, c.Param("id"))
		if errors.Is(err, queue.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to get job", err)
			return
		}
		if err := q.CancelJob(ctx, job.Type, job.ID); err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to cancel job", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"job_id": job.ID, "status": queue.StatusCanceled})
	}
}

// GetQueueStats returns job counts per state for each graph queue.
func GetQueueStats(q queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		out := make(map[string]map[string]int64, len(worker.Queues))
		for _, name := range worker.Queues {
			stats, err := q.GetQueueStats(c.Request.Context(), name)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "Failed to get queue stats", err)
				return
			}
			out[name] = stats
		}
		c.JSON(http.StatusOK, out)
	}
}

// ListWorkers returns workers that sent a heartbeat recently.
func ListWorkers(w WorkerLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		workers, err := w.ListActive(c.Request.Context(), worker_registry.DefaultTTL, 100)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to list workers", err)
			return
		}
		c.JSON(http.StatusOK, workers)
	}
}

func respondError(c *gin.Context, status int, msg string, err error) {
	logger.WithContext(c.Request.Context()).Error(err, msg, "path", c.Request.URL.Path, "status", status)
	c.JSON(status, gin.H{"error": msg + ": " + err.Error()})
}
