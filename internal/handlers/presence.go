package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/relay/internal/middleware"
	"github.com/nfrund/relay/internal/presence"
)

// PresenceReader is the read side of the presence service.
type PresenceReader interface {
	GetOnlineUsers() []string
	GetPresence(userID string) ([]presence.Presence, bool)
}

// PresenceHandler serves presence snapshots over HTTP.
type PresenceHandler struct {
	presence PresenceReader
}

func NewPresenceHandler(p PresenceReader) *PresenceHandler {
	return &PresenceHandler{presence: p}
}

// GetPresence returns the current online users as JSON.
func (h *PresenceHandler) GetPresence(c echo.Context) error {
	if h.presence == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: "Unavailable", Message: "presence service not available"})
	}

	online := h.presence.GetOnlineUsers()
	middleware.FromContext(c.Request().Context()).Debug("Presence snapshot served", "count", len(online))
	return c.JSON(http.StatusOK, OnlineUsersResponse{OnlineUsers: online, Count: len(online)})
}

// GetUserPresence returns the live connections of one user.
func (h *PresenceHandler) GetUserPresence(c echo.Context) error {
	if h.presence == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: "Unavailable", Message: "presence service not available"})
	}

	userID := c.Param("userID")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Code: "InvalidPayload", Message: "userID parameter required"})
	}

	conns, online := h.presence.GetPresence(userID)
	if !online {
		return c.JSON(http.StatusNotFound, ErrorResponse{Code: "Offline", Message: "user not found or offline"})
	}
	return c.JSON(http.StatusOK, UserPresenceResponse{UserID: userID, Connections: conns})
}

// Health reports liveness.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}
