package httpapi

import (
	"context"
	"net/http"
	"time"

	"meetrix/internal/microservices/http-api/handler"
	"meetrix/internal/microservices/http-api/middleware"
	"meetrix/internal/microservices/http-api/service"
	"meetrix/internal/microservices/websocket"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
)

// Pinger is the health check of a backing store
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps is everything the router mounts
type Deps struct {
	AuthService         service.AuthService
	AuthHandler         *handler.AuthHandler
	NotificationHandler *handler.NotificationHandler
	CableHandler        *websocket.Handler
	Hub                 *websocket.Hub
	RateLimiter         *middleware.RateLimiter
	Database            Pinger
	CORSOrigins         []string
}

// NewHTTPHandler is the router behind the CORS layer, ready for http.Server
func NewHTTPHandler(deps Deps) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})(NewRouter(deps))
}

// NewRouter wires every route under /api/v1
func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())

	r.GET("/healthz", healthHandler(deps))

	api := r.Group("/api/v1")

	auth := api.Group("/auth")
	if deps.RateLimiter != nil {
		auth.Use(deps.RateLimiter.Middleware())
	}
	deps.AuthHandler.RegisterRoutes(auth)

	// the cable authenticates its own handshake (query token or bearer)
	api.GET("/cable", deps.CableHandler.ServeWS)

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(deps.AuthService))
	if deps.RateLimiter != nil {
		protected.Use(deps.RateLimiter.Middleware())
	}

	deps.NotificationHandler.RegisterRoutes(protected.Group("/notifications"))

	admin := protected.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	deps.NotificationHandler.RegisterAdminRoutes(admin)

	return r
}

func healthHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		dbStatus := "ok"
		if deps.Database != nil {
			if err := deps.Database.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				dbStatus = "unavailable"
			}
		}

		c.JSON(status, gin.H{
			"status":   http.StatusText(status),
			"database": dbStatus,
			"realtime": deps.Hub.Stats(),
		})
	}
}
