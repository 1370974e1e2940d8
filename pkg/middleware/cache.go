package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gilby125/tripfinder/pkg/cache"
	"github.com/gilby125/tripfinder/pkg/logger"
	"github.com/gin-gonic/gin"
)

// CacheConfig holds response cache configuration.
type CacheConfig struct {
	TTL       time.Duration
	KeyPrefix string
	SkipPaths []string
}

type capturingWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *capturingWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

// CachedResponse is a stored JSON response.
type CachedResponse struct {
	StatusCode  int       `json:"status_code"`
	Body        []byte    `json:"body"`
	ContentType string    `json:"content_type"`
	CachedAt    time.Time `json:"cached_at"`
}

// ResponseCache caches successful JSON GET responses of read-only directory
// routes. A nil cache manager disables it.
func ResponseCache(cm *cache.CacheManager, cfg CacheConfig) gin.HandlerFunc {
	if cfg.TTL <= 0 {
		cfg.TTL = cache.ShortTTL
	}
	return func(c *gin.Context) {
		if cm == nil || c.Request.Method != http.MethodGet || skipped(cfg.SkipPaths, c.Request.URL.Path) {
			c.Next()
			return
		}

		key := ResponseCacheKey(cfg.KeyPrefix, c.Request)
		log := logger.WithField("cache_key", key)

		var hit CachedResponse
		err := cm.GetJSON(c.Request.Context(), key, &hit)
		if err == nil {
			log.Debug("Response cache hit")
			c.Header("X-Cache", "HIT")
			c.Data(hit.StatusCode, hit.ContentType, hit.Body)
			c.Abort()
			return
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Error(err, "Response cache read failed")
		}

		body := &bytes.Buffer{}
		c.Writer = &capturingWriter{ResponseWriter: c.Writer, body: body}
		c.Header("X-Cache", "MISS")
		c.Next()

		status := c.Writer.Status()
		contentType := c.Writer.Header().Get("Content-Type")
		if status < 200 || status >= 300 || !strings.Contains(contentType, "application/json") {
			return
		}
		entry := CachedResponse{StatusCode: status, Body: body.Bytes(), ContentType: contentType, CachedAt: time.Now()}
		if err := cm.SetJSON(c.Request.Context(), key, entry, cfg.TTL); err != nil {
			log.Error(err, "Response cache write failed")
		}
	}
}

// ResponseCacheKey derives the cache key from method, path and query.
func ResponseCacheKey(prefix string, req *http.Request) string {
	sum := sha256.Sum256([]byte(req.Method + " " + req.URL.Path + "?" + req.URL.RawQuery))
	key := "response:" + hex.EncodeToString(sum[:16])
	if prefix != "" {
		return prefix + ":" + key
	}
	return key
}

func skipped(prefixes []string, path string) bool {
	return slices.ContainsFunc(prefixes, func(p string) bool { return strings.HasPrefix(path, p) })
}
