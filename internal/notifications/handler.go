package notifications

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/intranet-events/backend/pkg/response"
)

// Handler serves the email log endpoint.
type Handler struct {
	logs *LogRepository
}

// NewHandler creates a notifications handler.
func NewHandler(logs *LogRepository) *Handler {
	return &Handler{logs: logs}
}

// ListByEvent handles GET /events/:id/notifications (organizers only).
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || eventID <= 0 {
		response.BadRequest(c, "invalid event id")
		return
	}
	logs, err := h.logs.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		response.Internal(c, "failed to load email logs")
		return
	}
	response.OK(c, logs)
}
