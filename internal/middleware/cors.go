package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type CORSConfig struct {
	AllowOrigins []string
	MaxAge       time.Duration
}

// CORS allows the browser front end to call the API with bearer tokens.
func CORS(config CORSConfig) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodOptions,
		},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", HeaderXRequestID},
		ExposeHeaders: []string{"Content-Length", HeaderXRequestID, "Retry-After"},
		MaxAge:        config.MaxAge,
	}

	allowAll := len(config.AllowOrigins) == 0
	for _, o := range config.AllowOrigins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = config.AllowOrigins
		c.AllowCredentials = true
	}
	return cors.New(c)
}
