package server

import (
	"github.com/labstack/echo/v4"
	"github.com/nfrund/relay/internal/handlers"
	"github.com/nfrund/relay/internal/middleware"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	s.E.GET("/health", handlers.Health)
	s.E.GET("/ws", s.hub.Handler())
	s.E.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	api := s.E.Group("/api", middleware.RateLimiter(10, 20))
	api.GET("/presence", s.presence.GetPresence)
	api.GET("/presence/:userID", s.presence.GetUserPresence)
}
