package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig lists the origins allowed to drive workspaces from a browser
type CORSConfig struct {
	AllowOrigins []string
	MaxAge       time.Duration
}

// DefaultCORSConfig allows any origin; the editor page and the runner page
// are served from different hosts.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		MaxAge:       12 * time.Hour,
	}
}

// CORS creates the CORS middleware
func CORS(cfg CORSConfig) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", RequestIDHeader},
		ExposeHeaders: []string{RequestIDHeader, "Retry-After"},
		MaxAge:        cfg.MaxAge,
	}
	if len(cfg.AllowOrigins) == 0 || (len(cfg.AllowOrigins) == 1 && cfg.AllowOrigins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.AllowOrigins
	}
	return cors.New(c)
}
