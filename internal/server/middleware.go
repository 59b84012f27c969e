package server

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/glamlot/glamlot/internal/observability/obscontext"
	"go.uber.org/zap"
)

const headerAuthorization = "Authorization"

// AdminAuthRequired gates the operator surface behind the static admin
// token. With no token configured the surface stays closed.
func (s *Server) AdminAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := s.cfg.AdminAPIToken
		if token == "" {
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		presented := bearerToken(c.GetHeader(headerAuthorization))
		if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), "operator", operatorID(c))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// AdminRateLimit throttles the operator surface. The limiter degrades
// open: when redis is unreachable the request proceeds.
func (s *Server) AdminRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.adminLimiter.Enabled() {
			c.Next()
			return
		}

		res, err := s.adminLimiter.Allow(c.Request.Context(), operatorID(c))
		if err != nil {
			s.log.Warn("admin rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			c.Header("Retry-After", res.RetryAfter.Round(time.Second).String())
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func operatorID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader("X-Operator-Id")); id != "" {
		return id
	}
	return c.ClientIP()
}
