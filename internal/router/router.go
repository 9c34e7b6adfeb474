package router

import (
	"net/http"
	"slices"
	"time"

	"messer/internal/logger"
	"messer/internal/middleware"
	"messer/internal/server"
	"messer/internal/social"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// requestLogger logs one line per HTTP request. Websocket requests log when
// the session ends.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		c.Set("requestID", requestID)
		start := time.Now()

		c.Next()

		logger.Info("http request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// corsConfig treats an empty list or a "*" entry as allow-all, which
// cannot be combined with credentials.
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	allowAll := len(origins) == 0 || slices.Contains(origins, "*")
	if allowAll {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// SetupRouter wires the HTTP surface around the websocket endpoint.
func SetupRouter(ws *server.ConnectionHandler, svc *social.Service, allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.Use(cors.New(corsConfig(allowedOrigins)))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		// identity is checked inside the session, not by middleware
		api.GET("/ws", ws.WebSocketHandler())

		auth := api.Group("/")
		auth.Use(middleware.JWT())
		{
			auth.GET("/friends", server.FriendsHandler(svc))
		}
	}

	return r
}
