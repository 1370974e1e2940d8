package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gilby125/tripfinder/config"
	"github.com/gilby125/tripfinder/pkg/logger"
	"github.com/gin-gonic/gin"
)

// AdminRealm is advertised on rejected admin requests.
const AdminRealm = "route graph admin"

// AdminAuth gates the operator endpoints that enqueue graph rebuilds and
// refreshes, cancel jobs, and inspect the queue and workers. With auth
// disabled every request is let through.
func AdminAuth(cfg config.AdminAuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled || operatorToken(c, cfg) || operatorLogin(c, cfg) {
			c.Next()
			return
		}

		logger.Warn("Rejected admin request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"client_ip", c.ClientIP(),
			"request_id", GetRequestID(c))
		c.Header("WWW-Authenticate", `Basic realm="`+AdminRealm+`"`)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "operator credentials required to manage graph jobs",
		})
	}
}

func operatorToken(c *gin.Context, cfg config.AdminAuthConfig) bool {
	if cfg.Token == "" {
		return false
	}
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	return ok && equal(token, cfg.Token)
}

func operatorLogin(c *gin.Context, cfg config.AdminAuthConfig) bool {
	if cfg.Username == "" || cfg.Password == "" {
		return false
	}
	user, pass, ok := c.Request.BasicAuth()
	// Both fields are always compared.
	userOK := equal(user, cfg.Username)
	passOK := equal(pass, cfg.Password)
	return ok && userOK && passOK
}

func equal(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
