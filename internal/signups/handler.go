package signups

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/intranet-events/backend/internal/middleware"
	"github.com/intranet-events/backend/pkg/response"
)

// SignupRequest is the body for POST /events/:id/signups. Without slot_id
// the signup is plain attendance.
type SignupRequest struct {
	SlotID *int64 `json:"slot_id"`
}

// Handler serves the signup endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a signup handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func pathID(c *gin.Context, what string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid "+what+" id")
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrEventNotFound), errors.Is(err, ErrSlotNotFound), errors.Is(err, ErrSignupNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrRoleNotAllowed), errors.Is(err, ErrHelperRestricted):
		response.Forbidden(c, err.Error())
	case errors.Is(err, ErrHelpersDisabled):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrAlreadySignedUp):
		response.Conflict(c, err.Error(), nil)
	default:
		h.logger.Error("signup request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.Internal(c, "internal error")
	}
}

// Create handles POST /events/:id/signups.
func (h *Handler) Create(c *gin.Context) {
	eventID, ok := pathID(c, "event")
	if !ok {
		return
	}
	var req SignupRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	res, err := h.svc.Signup(c.Request.Context(), eventID, middleware.CurrentIdentity(c), req.SlotID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, res)
}

// Cancel handles DELETE /signups/:id.
func (h *Handler) Cancel(c *gin.Context) {
	signupID, ok := pathID(c, "signup")
	if !ok {
		return
	}
	res, err := h.svc.Cancel(c.Request.Context(), signupID, middleware.CurrentIdentity(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, res)
}

// List handles GET /events/:id/signups (organizers only).
func (h *Handler) List(c *gin.Context) {
	eventID, ok := pathID(c, "event")
	if !ok {
		return
	}
	list, err := h.svc.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// Roster handles GET /events/:id/signups.csv (organizers only).
func (h *Handler) Roster(c *gin.Context) {
	eventID, ok := pathID(c, "event")
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.svc.ExportRoster(c.Request.Context(), eventID, &buf); err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="event-%d-roster.csv"`, eventID))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
