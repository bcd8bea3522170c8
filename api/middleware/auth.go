package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

// identityKey is the gin context key carrying the caller identity. Auth
// sets it to the presented API key; RateLimit reads it to bucket callers.
const identityKey = "api_key"

// Auth guards the v1 surface with the static API keys from configuration.
// Callers present a key through either header:
//
//	X-API-Key: <key>
//	Authorization: Bearer <key>
//
// Keys are compared in constant time. With no keys configured the
// middleware passes everything through, so local and test deployments
// stay open.
func Auth(cfg config.AuthConfig) gin.HandlerFunc {
	keys := make([][]byte, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}
	if len(keys) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		presented, ok := credential(c)
		if !ok {
			abortUnauthorized(c, "API key required: send X-API-Key or Authorization: Bearer <key>")
			return
		}
		for _, k := range keys {
			if subtle.ConstantTimeCompare([]byte(presented), k) == 1 {
				c.Set(identityKey, presented)
				c.Next()
				return
			}
		}
		abortUnauthorized(c, "API key not recognized")
	}
}

// credential extracts the presented key, preferring X-API-Key over the
// bearer token.
func credential(c *gin.Context) (string, bool) {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key, true
	}
	if token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok && token != "" {
		return token, true
	}
	return "", false
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ScrapeResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeUnauthorized,
			Message: msg,
		},
	})
}
