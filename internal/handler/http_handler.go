package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/calderhq/parley/internal/service"
	"github.com/calderhq/parley/pkg/response"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

// HTTPHandler exposes the read-only REST surface over the same
// history and stats queries the websocket join path uses.
type HTTPHandler struct {
	history service.HistoryService
}

func NewHTTPHandler(history service.HistoryService) *HTTPHandler {
	return &HTTPHandler{history: history}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/rooms/:room/messages", h.GetMessages)
		api.GET("/rooms/:room/stats", h.GetStats)
	}

	r.GET("/health", h.HealthCheck)
}

// GetMessages returns the recent window for a room, oldest-first.
func (h *HTTPHandler) GetMessages(c *gin.Context) {
	room := c.Param("room")

	limit := defaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
		if limit > maxLimit {
			limit = maxLimit
		}
	}

	messages, err := h.history.RoomHistory(c.Request.Context(), room, limit)
	if err != nil {
		response.InternalError(c, "failed to load room history")
		return
	}

	response.Success(c, messages)
}

func (h *HTTPHandler) GetStats(c *gin.Context) {
	room := c.Param("room")

	stats, err := h.history.RoomStats(c.Request.Context(), room)
	if err != nil {
		response.InternalError(c, "failed to derive room stats")
		return
	}

	response.Success(c, stats)
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
