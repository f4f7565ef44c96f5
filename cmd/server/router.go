package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/thereayou/unimeet/internal/handlers"
	"github.com/thereayou/unimeet/internal/middleware"
)

type Handlers struct {
	Auth   *handlers.AuthHandler
	Users  *handlers.UserHandler
	Events *handlers.EventHandler
	WS     *handlers.WebSocketHandler
}

// HealthCheck проверяет зависимости для /health
type HealthCheck func(ctx context.Context) error

func APIEndpoints(r *gin.Engine, h Handlers, authn *middleware.Authenticator, authLimit *middleware.IPRateLimiter, health HealthCheck) {
	r.GET("/health", func(c *gin.Context) {
		if health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := health(ctx); err != nil {
				c.String(http.StatusServiceUnavailable, "unavailable")
				return
			}
		}
		c.String(http.StatusOK, "ok")
	})

	// Auth endpoints
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", authLimit.Middleware(), h.Auth.Register)
		authGroup.POST("/login", authLimit.Middleware(), h.Auth.Login)
		authGroup.POST("/logout", authn.AuthMiddleware(), h.Auth.Logout)
	}

	profile := r.Group("/profile", authn.AuthMiddleware())
	{
		profile.GET("", h.Users.GetMe)
		profile.PUT("", h.Users.UpdateMe)
		profile.GET("/registrations", h.Users.MyRegistrations)
	}

	r.GET("/users/:id", authn.AuthMiddleware(), h.Users.GetUser)

	events := r.Group("/events")
	{
		events.GET("", authn.OptionalAuth(), h.Events.ListEvents)
		events.GET("/:id", authn.OptionalAuth(), h.Events.GetEvent)
		events.POST("", authn.AuthMiddleware(), h.Events.CreateEvent)
		events.PUT("/:id", authn.AuthMiddleware(), h.Events.UpdateEvent)
		events.DELETE("/:id", authn.AuthMiddleware(), h.Events.DeleteEvent)
		events.POST("/:id/register", authn.AuthMiddleware(), h.Events.Register)
	}

	r.GET("/ws", authn.WSAuthMiddleware(), h.WS.HandleWebSocket)
}
